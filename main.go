package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/leeineian/chorus/home"
	"github.com/leeineian/chorus/proc"
	"github.com/leeineian/chorus/sys"
	"github.com/spf13/cobra"
)

const pidFile = ".bot.pid"

type options struct {
	silent  bool
	skipReg bool
	logFile bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		sys.LogFatal("%v", err)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           sys.GetProjectName(),
		Short:         "Telegram voice chat music bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.silent || opts.logFile {
				sys.InitLogger(opts.silent, opts.logFile)
			}

			replaceRunningInstance()
			pid := os.Getpid()
			if err := os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0644); err != nil {
				sys.LogWarn("Failed to write PID file: %v", err)
			}
			defer os.Remove(pidFile)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, pid, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.silent, "silent", false, "Disable all log output")
	cmd.Flags().BoolVar(&opts.skipReg, "skip-reg", false, "Skip publishing the command menu")
	cmd.Flags().BoolVar(&opts.logFile, "log-file", false, "Also write logs to a file")
	return cmd
}

// replaceRunningInstance terminates a previous instance recorded in the PID file.
func replaceRunningInstance() {
	pidData, err := os.ReadFile(pidFile)
	if err != nil {
		return
	}
	oldPid, err := strconv.Atoi(string(pidData))
	if err != nil || oldPid == os.Getpid() {
		return
	}
	process, err := os.FindProcess(oldPid)
	if err != nil || process.Signal(syscall.Signal(0)) != nil {
		return
	}

	sys.LogInfo("Killing running instance... (PID: %d)", oldPid)
	if err := process.Signal(syscall.SIGTERM); err != nil {
		sys.LogWarn("Failed to kill old instance: %v", err)
		return
	}
	for i := 0; i < 50; i++ {
		if err := process.Signal(syscall.Signal(0)); err != nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	sys.LogInfo("Old instance terminated.")
}

func run(ctx context.Context, pid int, opts *options) error {
	cfg, err := sys.LoadConfig()
	if err != nil {
		return fmt.Errorf(sys.MsgConfigFailedToLoad, err)
	}
	if cfg.LogFile && !opts.logFile {
		sys.InitLogger(opts.silent || cfg.Silent, true)
	}
	if path := sys.GetLogPath(); path != "" {
		sys.LogInfo("Writing logs to %s", path)
	}
	sys.SetAppContext(ctx)

	if err := sys.InitDatabase(ctx, cfg.DSN()); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer sys.CloseDatabase()

	if cfg.InstallYTDLP {
		if err := proc.EnsureYTDLP(ctx); err != nil {
			sys.LogWarn(sys.MsgGenericError, err)
		}
	}

	caller := proc.NewRTMPCaller(cfg.FFmpegPath, sys.ResolveEndpoint)
	vm := proc.InitVoiceManager(caller, proc.NewYTDLPResolver(), cfg.ResolveTimeout)

	sys.LogInfo(sys.MsgBotStarting, sys.GetProjectName())
	client, err := sys.CreateClient(cfg)
	if err != nil {
		return err
	}
	sys.AttachClient(client)

	if !opts.skipReg {
		go func() {
			if err := sys.SyncCommandMenu(ctx, cfg.BotToken); err != nil {
				sys.LogError(sys.MsgBotRegisterFail, err)
			}
		}()
	}

	sys.RegisterHealthDaemon(cfg.HealthAddr())
	sys.StartDaemons(ctx)

	me := client.Me()
	sys.LogInfo(sys.MsgBotReady, "@"+me.Username, me.ID, pid)
	<-ctx.Done()
	if !opts.silent {
		fmt.Println()
	}
	sys.LogInfo(sys.MsgBotShutdown, "@"+me.Username)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sys.LogVoice(sys.MsgVoiceShuttingDown)
	vm.Shutdown(shutdownCtx)
	sys.ShutdownDaemons(shutdownCtx)
	_ = client.Stop()
	return nil
}
