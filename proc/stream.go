package proc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/leeineian/chorus/sys"
)

// Caller is the voice-call client a chat's playback is pushed through.
type Caller interface {
	// Join replaces the chat's stream with source. The stream id is reported
	// back through OnStreamEnd when source finishes on its own.
	Join(ctx context.Context, chatID int64, source string, stream uuid.UUID) error
	Leave(ctx context.Context, chatID int64) error
	Pause(ctx context.Context, chatID int64) error
	Resume(ctx context.Context, chatID int64) error
	OnStreamEnd(fn func(chatID int64, stream uuid.UUID))
}

var (
	ErrNoEndpoint   = errors.New("no RTMP endpoint configured for this chat")
	ErrNotStreaming = errors.New("nothing is streaming in this chat")
)

// EndpointLookup returns the RTMP ingest for a chat.
type EndpointLookup func(ctx context.Context, chatID int64) (sys.RTMPEndpoint, bool, error)

const stopTimeout = 5 * time.Second

type rtmpStream struct {
	cmd     *exec.Cmd
	id      uuid.UUID
	done    chan struct{}
	stopped atomic.Bool
}

// RTMPCaller re-streams each chat's current source into the chat's RTMP
// voice chat ingest with one ffmpeg process per chat.
type RTMPCaller struct {
	FFmpegPath string
	Lookup     EndpointLookup

	mu      sync.Mutex
	streams map[int64]*rtmpStream
	onEnd   func(chatID int64, stream uuid.UUID)
}

func NewRTMPCaller(ffmpegPath string, lookup EndpointLookup) *RTMPCaller {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &RTMPCaller{
		FFmpegPath: ffmpegPath,
		Lookup:     lookup,
		streams:    make(map[int64]*rtmpStream),
	}
}

func (c *RTMPCaller) OnStreamEnd(fn func(chatID int64, stream uuid.UUID)) {
	c.mu.Lock()
	c.onEnd = fn
	c.mu.Unlock()
}

// Join starts streaming source to the chat, replacing whatever was playing.
func (c *RTMPCaller) Join(ctx context.Context, chatID int64, source string, stream uuid.UUID) error {
	if c.Lookup == nil {
		return ErrNoEndpoint
	}
	ep, ok, err := c.Lookup(ctx, chatID)
	if err != nil {
		return fmt.Errorf("lookup rtmp endpoint: %w", err)
	}
	if !ok || ep.URL == "" {
		return ErrNoEndpoint
	}

	c.stop(chatID)

	// The process outlives the command that started it, so it is not bound to ctx.
	cmd := exec.Command(c.FFmpegPath, buildFFmpegArgs(source, ep.Target())...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr: %w", err)
	}

	sys.LogStream(sys.MsgStreamStarting, chatID)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	st := &rtmpStream{cmd: cmd, id: stream, done: make(chan struct{})}
	c.mu.Lock()
	c.streams[chatID] = st
	c.mu.Unlock()

	go c.watch(chatID, st, stderr)
	return nil
}

// Leave stops the chat's stream. Leaving an idle chat is not an error.
func (c *RTMPCaller) Leave(_ context.Context, chatID int64) error {
	c.stop(chatID)
	return nil
}

func (c *RTMPCaller) Pause(_ context.Context, chatID int64) error {
	return c.signal(chatID, pauseSignal)
}

func (c *RTMPCaller) Resume(_ context.Context, chatID int64) error {
	return c.signal(chatID, resumeSignal)
}

// Streaming reports whether an ffmpeg process is running for the chat.
func (c *RTMPCaller) Streaming(chatID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.streams[chatID]
	return ok
}

func (c *RTMPCaller) signal(chatID int64, sig processSignal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.streams[chatID]
	if !ok {
		return ErrNotStreaming
	}
	return sig(st.cmd)
}

func (c *RTMPCaller) stop(chatID int64) {
	c.mu.Lock()
	st, ok := c.streams[chatID]
	if ok {
		delete(c.streams, chatID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	st.stopped.Store(true)
	if st.cmd.Process != nil {
		_ = st.cmd.Process.Kill()
	}
	select {
	case <-st.done:
	case <-time.After(stopTimeout):
		sys.LogWarn("ffmpeg for chat %d did not exit within %s", chatID, stopTimeout)
	}
}

// watch drains ffmpeg's stderr, reaps the process and reports natural ends.
func (c *RTMPCaller) watch(chatID int64, st *rtmpStream, stderr io.Reader) {
	pid := st.cmd.Process.Pid
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			sys.LogDebug(sys.MsgStreamFFmpeg, pid, line)
		}
	}
	// Scan stops at an overlong line; drain the rest so ffmpeg never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, stderr)
	err := st.cmd.Wait()
	close(st.done)

	c.mu.Lock()
	if c.streams[chatID] == st {
		delete(c.streams, chatID)
	}
	onEnd := c.onEnd
	c.mu.Unlock()

	if st.stopped.Load() {
		return
	}
	sys.LogStream(sys.MsgStreamExited, chatID, err)
	if onEnd != nil {
		onEnd(chatID, st.id)
	}
}

func buildFFmpegArgs(source, target string) []string {
	args := []string{"-hide_banner", "-loglevel", "warning", "-nostdin"}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		args = append(args, "-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5")
	}
	return append(args,
		"-re",
		"-i", source,
		"-vn",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "48000",
		"-ac", "2",
		"-f", "flv",
		target,
	)
}
