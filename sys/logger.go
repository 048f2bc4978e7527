package sys

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// --- Globals & Styles ---

var (
	// Level colors
	infoColor  = color.New()
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	fatalColor = color.New(color.FgRed, color.Bold)

	// Component colors
	databaseColor = color.New()
	voiceColor    = color.New(color.FgMagenta)
	resolverColor = color.New(color.FgMagenta)
	streamColor   = color.New(color.FgBlue)
	healthColor   = color.New(color.FgHiBlack)
	loaderColor   = color.New(color.FgCyan)

	DefaultTimeFormat = "15:04:05"
	IsSilent          = false
	LogToFile         = false
	Logger            *slog.Logger

	logFile *os.File
	logMu   sync.Mutex
)

func init() {
	InitLogger(false, false)
}

// InitLogger initializes the global structured logger
func InitLogger(silent bool, saveToFile bool) {
	logMu.Lock()
	defer logMu.Unlock()

	IsSilent = silent
	LogToFile = saveToFile
	level := slog.LevelInfo
	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		level = slog.LevelDebug
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writer io.Writer = os.Stdout
	var err error

	if LogToFile {
		logName := GetProjectName() + ".log"
		if exePath, exeErr := os.Executable(); exeErr == nil {
			logName = filepath.Base(exePath) + ".log"
		}

		logFile, err = os.OpenFile(logName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", logName, err)
		} else {
			writer = io.MultiWriter(os.Stdout, NewStripANSIWriter(logFile))
		}
	}

	color.NoColor = false

	Logger = slog.New(NewBotLogHandler(writer, &BotLogHandlerOptions{
		Silent: IsSilent,
		Level:  level,
	}))
	slog.SetDefault(Logger)
}

func SetSilentMode(silent bool) {
	InitLogger(silent, LogToFile)
}

// --- Public Logging API ---

func LogInfo(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

func LogWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func LogError(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}

var osExit = os.Exit

// LogFatal logs at fatal level and exits with status 1.
func LogFatal(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	slog.Log(context.Background(), slog.LevelError+4, msg)
	osExit(1)
}

func LogDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}

// Component Loggers

func LogDatabase(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "database"))
}

func LogVoice(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "voice"))
}

func LogResolver(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "resolver"))
}

func LogStream(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "stream"))
}

func LogHealth(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "health"))
}

func LogLoader(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "loader"))
}

// --- Log Handler Implementation ---

type BotLogHandlerOptions struct {
	Silent bool
	Level  slog.Leveler
}

type BotLogHandler struct {
	w    io.Writer
	opts *BotLogHandlerOptions
	mu   *sync.Mutex
}

func NewBotLogHandler(w io.Writer, opts *BotLogHandlerOptions) *BotLogHandler {
	if opts == nil {
		opts = &BotLogHandlerOptions{Level: slog.LevelInfo}
	}
	return &BotLogHandler{
		w:    w,
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *BotLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.opts.Silent {
		return false
	}
	return level >= h.opts.Level.Level()
}

func (h *BotLogHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opts.Silent {
		return nil
	}

	var levelStr string
	var levelColor *color.Color

	switch {
	case r.Level >= slog.LevelError+4:
		levelStr = "FATAL"
		levelColor = fatalColor
	case r.Level >= slog.LevelError:
		levelStr = "ERROR"
		levelColor = errorColor
	case r.Level >= slog.LevelWarn:
		levelStr = "WARN"
		levelColor = warnColor
	case r.Level >= slog.LevelInfo:
		levelStr = "INFO"
		levelColor = infoColor
	default:
		levelStr = "DEBUG"
		levelColor = infoColor
	}

	component := ""
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = strings.ToUpper(a.Value.String())
			return false
		}
		return true
	})

	fmt.Fprintf(h.w, "%s", time.Now().Format(DefaultTimeFormat))

	if component != "" {
		if levelStr != "INFO" {
			fmt.Fprintf(h.w, " %s", levelColor.Sprintf("[%s]", levelStr))
		}
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(getComponentColor(component), fmt.Sprintf("[%s] %s", component, r.Message)))
	} else {
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(levelColor, fmt.Sprintf("[%s] %s", levelStr, r.Message)))
	}

	return nil
}

func (h *BotLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *BotLogHandler) WithGroup(name string) slog.Handler       { return h }

// --- Formatting Helpers ---

func getComponentColor(name string) *color.Color {
	switch name {
	case "DATABASE":
		return databaseColor
	case "VOICE":
		return voiceColor
	case "RESOLVER":
		return resolverColor
	case "STREAM":
		return streamColor
	case "HEALTH":
		return healthColor
	case "LOADER":
		return loaderColor
	default:
		return color.New(color.FgCyan)
	}
}

// colorizeWithResets re-applies the outer color after every reset sequence
// so nested coloring inside a message does not end the line's color early.
func colorizeWithResets(c *color.Color, text string) string {
	if !strings.Contains(text, "\x1b[0m") {
		return c.Sprint(text)
	}

	marker := "@@@MSG@@@"
	wrapped := c.Sprint(marker)
	idx := strings.Index(wrapped, marker)
	if idx <= 0 {
		return text
	}
	startSeq := wrapped[:idx]

	return c.Sprint(strings.ReplaceAll(text, "\x1b[0m", "\x1b[0m"+startSeq))
}

func GetLogPath() string {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile == nil {
		return ""
	}
	return logFile.Name()
}

// --- ANSI Stripper ---

type StripANSIWriter struct {
	w  io.Writer
	re *regexp.Regexp
}

func NewStripANSIWriter(w io.Writer) *StripANSIWriter {
	return &StripANSIWriter{
		w:  w,
		re: regexp.MustCompile(`\x1b\[[0-9;]*m`),
	}
}

func (s *StripANSIWriter) Write(p []byte) (n int, err error) {
	_, err = s.w.Write(s.re.ReplaceAll(p, nil))
	return len(p), err
}

// --- Message Constants ---

const (
	// --- Infrastructure & Lifecycle ---
	MsgConfigFailedToLoad    = "Failed to load config: %v"
	MsgConfigMissingAPIID    = "API_ID is not set in the environment or .env file"
	MsgConfigMissingAPIHash  = "API_HASH is not set in the environment or .env file"
	MsgConfigMissingBotToken = "BOT_TOKEN is not set in the environment or .env file"
	MsgDatabaseInitSuccess   = "Database initialized successfully"
	MsgDatabaseTableError    = "Failed to create table: %w"
	MsgDatabasePragmaError   = "Failed to set pragma %s: %w"
	MsgDaemonStarting        = "Starting..."
	MsgBotStarting           = "Starting %s..."
	MsgBotReady              = "%s is online! (ID: %d) (PID: %d)"
	MsgBotShutdown           = "Shutting down %s..."
	MsgBotRegisterFail       = "Command menu sync failed: %v"
	MsgGenericError          = "%v"

	// --- Command Loader & Registry ---
	MsgLoaderAttached       = "Attached %d commands to the client"
	MsgLoaderMenuSynced     = "Published %d commands to the Bot API menu"
	MsgLoaderHandlerFailed  = "/%s failed in chat %d: %v"
	MsgLoaderHandlerPanic   = "/%s panicked in chat %d: %v"
	MsgLoaderReplyFailed    = "Failed to reply in chat %d: %v"
	MsgLoaderIgnoredPrivate = "Ignoring /%s from private chat %d"

	// --- Health ---
	MsgHealthListening    = "Listening on %s"
	MsgHealthServeFailed  = "Health server stopped: %v"
	MsgHealthShutdownFail = "Health server shutdown failed: %v"
	MsgHealthBody         = "Bot is running!"

	// --- Voice ---
	MsgVoiceQueued        = "[%s] Queued in chat %d: %s (position %d)"
	MsgVoiceAdvance       = "[%s] Now streaming in chat %d: %s"
	MsgVoiceEmpty         = "[%s] Queue empty in chat %d, leaving call"
	MsgVoiceJoinFailed    = "[%s] Failed to stream %s in chat %d: %v"
	MsgVoiceLeaveFailed   = "Failed to leave call in chat %d: %v"
	MsgVoiceStreamEnded   = "Stream ended in chat %d"
	MsgVoiceStopped       = "Stopped chat %d (cancelled %d pending resolutions)"
	MsgVoiceShuttingDown  = "Shutting down voice manager..."
	MsgVoiceDroppedLate   = "Dropping %q for chat %d: stopped while resolving"
	MsgVoiceSkipNoSession = "Skip ignored in chat %d: nothing queued"

	// --- Resolver ---
	MsgResolverSearching = "Searching %s for: %s"
	MsgResolverFound     = "Resolved %q to %s"
	MsgResolverFallback  = "%s search failed for %q: %v"
	MsgResolverInstall   = "Installing yt-dlp..."
	MsgResolverInstalled = "yt-dlp ready at %s (%s)"

	// --- Stream ---
	MsgStreamStarting = "Starting ffmpeg for chat %d"
	MsgStreamExited   = "ffmpeg for chat %d exited: %v"
	MsgStreamFFmpeg   = "ffmpeg[%d]: %s"

	// --- User-facing replies ---
	MsgPlayUsage      = "Usage: /play <YouTube URL or song name>"
	MsgPlayQueued     = "🎶 Queued: <b>%s</b> (position %d)"
	MsgPlayStarted    = "▶️ Now playing: <b>%s</b>"
	MsgSkipDone       = "⏭ Skipped current track."
	MsgPaused         = "⏸ Paused"
	MsgResumed        = "▶️ Resumed"
	MsgStopped        = "⏹ Stopped playback and cleared queue."
	MsgQueueEmpty     = "Queue is empty."
	MsgQueueHeader    = "Upcoming tracks:"
	MsgRTMPUsage      = "Usage: /rtmp <rtmp_url> <stream_key>"
	MsgRTMPSaved      = "✅ RTMP endpoint saved for this chat."
	MsgRTMPConfigured = "🔗 RTMP endpoint: <code>%s</code> (key set)"
	MsgRTMPDefault    = "🔗 Using the default RTMP endpoint: <code>%s</code>"
	MsgRTMPCleared    = "🗑 RTMP endpoint removed for this chat."
	MsgRTMPMissing    = "No RTMP endpoint configured. Start an RTMP stream in this chat and use /rtmp <url> <key>."
	MsgHelpHeader     = "<b>Available commands</b>"

	ErrPlayFailed    = "❌ Could not play \"%s\": %s"
	ErrVoiceFailed   = "⚠️ Voice call error: %s"
	ErrCommandFailed = "⚠️ Something went wrong running /%s."
	ErrRTMPInvalid   = "❌ The RTMP URL must start with rtmp:// or rtmps://"
	ErrRTMPSave      = "❌ Failed to save the RTMP endpoint."
	ErrRTMPLookup    = "❌ Failed to read the RTMP endpoint."
)
