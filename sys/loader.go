package sys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/amarnathcjd/gogram/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

// --- Global State & Setup ---

var AppContext = context.Background()

func SetAppContext(ctx context.Context) {
	AppContext = ctx
}

// Command describes a chat command as shown in the Bot API menu and /help.
type Command struct {
	Name        string
	Description string
	Usage       string
	Hidden      bool
}

// CommandEvent is a single invocation of a command in a chat.
type CommandEvent interface {
	ChatID() int64
	Command() string
	Args() string
	Reply(ctx context.Context, text string) error
}

type CommandHandler func(ctx context.Context, e CommandEvent) error

var (
	registryMu      sync.RWMutex
	commands        []Command
	commandHandlers = map[string]CommandHandler{}
)

// Telegram allows roughly 30 messages per second per bot.
var outbound = rate.NewLimiter(rate.Limit(25), 30)

// --- Command & Handler Registration ---

func RegisterCommand(cmd Command, handler CommandHandler) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := strings.ToLower(cmd.Name)
	cmd.Name = name
	if _, exists := commandHandlers[name]; !exists {
		commands = append(commands, cmd)
	}
	commandHandlers[name] = handler
}

// Commands returns the registered commands in registration order.
func Commands() []Command {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return append([]Command(nil), commands...)
}

func lookupHandler(name string) (CommandHandler, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	h, ok := commandHandlers[name]
	return h, ok
}

// ParseCommand splits "/name@bot args" into its lowercase name and trimmed arguments.
func ParseCommand(text string) (name, args string, ok bool) {
	return ParseCommandFor(text, "")
}

// ParseCommandFor is ParseCommand for a bot named botUsername. A command
// addressed to another bot with "@name" is rejected. An empty botUsername
// accepts any addressee.
func ParseCommandFor(text, botUsername string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if len(text) < 2 || (text[0] != '/' && text[0] != '!') {
		return "", "", false
	}

	head, rest, _ := strings.Cut(text[1:], " ")
	if i := strings.IndexAny(head, "\n\t"); i >= 0 {
		rest = head[i+1:] + " " + rest
		head = head[:i]
	}
	head, target, addressed := strings.Cut(head, "@")
	if addressed && botUsername != "" && !strings.EqualFold(target, strings.TrimPrefix(botUsername, "@")) {
		return "", "", false
	}
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// Pace blocks until another outbound message fits under the bot's send rate.
func Pace(ctx context.Context) error {
	return outbound.Wait(ctx)
}

// Dispatch routes e to its handler. It reports false for unknown commands.
func Dispatch(ctx context.Context, e CommandEvent) (handled bool) {
	h, ok := lookupHandler(e.Command())
	if !ok {
		return false
	}

	handled = true
	defer func() {
		if r := recover(); r != nil {
			LogError(MsgLoaderHandlerPanic, e.Command(), e.ChatID(), r)
			replyFailure(ctx, e)
		}
	}()

	if err := h(ctx, e); err != nil {
		LogError(MsgLoaderHandlerFailed, e.Command(), e.ChatID(), err)
		replyFailure(ctx, e)
	}
	return handled
}

func replyFailure(ctx context.Context, e CommandEvent) {
	if err := e.Reply(ctx, fmt.Sprintf(ErrCommandFailed, e.Command())); err != nil {
		LogError(MsgLoaderReplyFailed, e.ChatID(), err)
	}
}

// --- Telegram Client ---

// CreateClient connects to Telegram and logs in as the bot.
func CreateClient(cfg *Config) (*telegram.Client, error) {
	client, err := telegram.NewClient(telegram.ClientConfig{
		AppID:         cfg.APIID,
		AppHash:       cfg.APIHash,
		MemorySession: true,
		SessionName:   GetProjectName(),
		FloodHandler:  handleFlood,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	if _, err := client.Conn(); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := client.LoginBot(cfg.BotToken); err != nil {
		return nil, fmt.Errorf("failed to log in: %w", err)
	}
	return client, nil
}

func handleFlood(err error) bool {
	if wait := telegram.GetFloodWait(err); wait > 0 {
		LogWarn("Flood wait detected, sleeping for %ds", wait)
		time.Sleep(time.Duration(wait) * time.Second)
		return true
	}
	return false
}

type messageEvent struct {
	m    *telegram.NewMessage
	name string
	args string
}

func (e *messageEvent) ChatID() int64   { return e.m.ChatID() }
func (e *messageEvent) Command() string { return e.name }
func (e *messageEvent) Args() string    { return e.args }

func (e *messageEvent) Reply(ctx context.Context, text string) error {
	if err := Pace(ctx); err != nil {
		return err
	}
	_, err := e.m.Reply(text, telegram.SendOptions{ParseMode: "HTML"})
	return err
}

func commandPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^[/!]` + regexp.QuoteMeta(name) + `(@\w+)?(\s|$)`)
}

// AttachClient installs a message handler for every registered command.
// Private chats are ignored; the bot only plays in groups and channels.
func AttachClient(client *telegram.Client) {
	var username string
	if me := client.Me(); me != nil {
		username = me.Username
	}

	cmds := Commands()
	for _, cmd := range cmds {
		client.AddMessageHandler(commandPattern(cmd.Name), func(m *telegram.NewMessage) error {
			name, args, ok := ParseCommandFor(m.Text(), username)
			if !ok {
				return nil
			}
			if m.IsPrivate() {
				LogDebug(MsgLoaderIgnoredPrivate, name, m.ChatID())
				return nil
			}
			Dispatch(AppContext, &messageEvent{m: m, name: name, args: args})
			return nil
		})
	}
	LogLoader(MsgLoaderAttached, len(cmds))
}

// --- Command Menu Sync ---

func menuCommands() []tgbotapi.BotCommand {
	visible := lo.Filter(Commands(), func(c Command, _ int) bool { return !c.Hidden })
	return lo.Map(visible, func(c Command, _ int) tgbotapi.BotCommand {
		return tgbotapi.BotCommand{Command: c.Name, Description: c.Description}
	})
}

func calculateCommandHash(cmds []tgbotapi.BotCommand) string {
	data, err := json.Marshal(cmds)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// SyncCommandMenu publishes the command list through the Bot API unless it is unchanged.
func SyncCommandMenu(ctx context.Context, token string) error {
	cmds := menuCommands()
	hash := calculateCommandHash(cmds)

	if DB != nil {
		if prev, err := GetBotConfig(ctx, "command_menu_hash"); err == nil && prev == hash && hash != "" {
			LogLoader("Command menu unchanged, skipping sync")
			return nil
		}
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return err
	}
	if _, err := api.Request(tgbotapi.NewSetMyCommands(cmds...)); err != nil {
		return err
	}

	if DB != nil {
		_ = SetBotConfig(ctx, "command_menu_hash", hash)
	}
	LogLoader(MsgLoaderMenuSynced, len(cmds))
	return nil
}

// --- Daemon System ---

type daemonEntry struct {
	starter func(ctx context.Context) (bool, func(), func())
	logger  func(format string, v ...any)
}

var (
	daemonsOnce         sync.Once
	registeredDaemons   []daemonEntry
	activeShutdownHooks []func()
	activeShutdownMu    sync.Mutex
)

// RegisterDaemon registers a background daemon. The starter reports whether the
// daemon should run and returns its run and shutdown functions.
func RegisterDaemon(logger func(format string, v ...any), starter func(ctx context.Context) (bool, func(), func())) {
	registeredDaemons = append(registeredDaemons, daemonEntry{starter: starter, logger: logger})
}

func StartDaemons(ctx context.Context) {
	daemonsOnce.Do(func() {
		type activeDaemon struct {
			entry daemonEntry
			run   func()
		}
		var active []activeDaemon

		for _, daemon := range registeredDaemons {
			if ok, run, shutdown := daemon.starter(ctx); ok && run != nil {
				if shutdown != nil {
					activeShutdownMu.Lock()
					activeShutdownHooks = append(activeShutdownHooks, shutdown)
					activeShutdownMu.Unlock()
				}
				active = append(active, activeDaemon{daemon, run})
			}
		}

		for _, ad := range active {
			ad.entry.logger(MsgDaemonStarting)
		}

		for _, ad := range active {
			go ad.run()
		}
	})
}

func ShutdownDaemons(ctx context.Context) {
	activeShutdownMu.Lock()
	defer activeShutdownMu.Unlock()

	var wg sync.WaitGroup
	for _, shutdown := range activeShutdownHooks {
		if shutdown != nil {
			wg.Add(1)
			go func(s func()) {
				defer wg.Done()
				s()
			}(shutdown)
		}
	}
	wg.Wait()
	activeShutdownHooks = nil
}
