package sys

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// HealthRouter answers GET / so hosting platforms consider the process alive.
func HealthRouter() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(MsgHealthBody))
	}).Methods(http.MethodGet, http.MethodHead)
	return r
}

// RegisterHealthDaemon serves the health endpoint on addr for the lifetime of the bot.
func RegisterHealthDaemon(addr string) {
	RegisterDaemon(LogHealth, func(ctx context.Context) (bool, func(), func()) {
		if addr == "" {
			return false, nil, nil
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           HealthRouter(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		run := func() {
			LogHealth(MsgHealthListening, addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				LogError(MsgHealthServeFailed, err)
			}
		}
		shutdown := func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				LogWarn(MsgHealthShutdownFail, err)
			}
		}
		return true, run, shutdown
	})
}
