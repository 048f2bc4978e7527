package proc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leeineian/chorus/sys"
)

func staticLookup(ep sys.RTMPEndpoint, ok bool) EndpointLookup {
	return func(context.Context, int64) (sys.RTMPEndpoint, bool, error) {
		return ep, ok, nil
	}
}

// fakeFFmpeg writes a shell script standing in for ffmpeg.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

var testEndpoint = sys.RTMPEndpoint{URL: "rtmps://dc4-1.rtmp.t.me/s/", Key: "secret"}

func TestBuildFFmpegArgs(t *testing.T) {
	args := buildFFmpegArgs("https://cdn.example/a.webm", testEndpoint.Target())

	if args[len(args)-1] != "rtmps://dc4-1.rtmp.t.me/s/secret" {
		t.Errorf("Expected target last, got %q", args[len(args)-1])
	}
	if !containsSeq(args, "-i", "https://cdn.example/a.webm") {
		t.Errorf("Expected input source, got %v", args)
	}
	if !containsSeq(args, "-f", "flv") {
		t.Errorf("Expected flv muxer, got %v", args)
	}
	if !containsSeq(args, "-reconnect", "1") {
		t.Errorf("Expected reconnect flags for http input, got %v", args)
	}

	local := buildFFmpegArgs("/tmp/a.mp3", "rtmp://host/app")
	if containsSeq(local, "-reconnect", "1") {
		t.Errorf("Expected no reconnect flags for a file, got %v", local)
	}
}

func containsSeq(args []string, a, b string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == a && args[i+1] == b {
			return true
		}
	}
	return false
}

func TestRTMPEndpointTarget(t *testing.T) {
	tests := []struct {
		ep   sys.RTMPEndpoint
		want string
	}{
		{sys.RTMPEndpoint{URL: "rtmps://h/s/", Key: "k"}, "rtmps://h/s/k"},
		{sys.RTMPEndpoint{URL: "rtmps://h/s", Key: "k"}, "rtmps://h/s/k"},
		{sys.RTMPEndpoint{URL: "rtmp://h/live"}, "rtmp://h/live"},
	}
	for _, tt := range tests {
		if got := tt.ep.Target(); got != tt.want {
			t.Errorf("Target(%+v) = %q, want %q", tt.ep, got, tt.want)
		}
	}
}

func TestRTMPCaller_NoEndpoint(t *testing.T) {
	c := NewRTMPCaller("ffmpeg", staticLookup(sys.RTMPEndpoint{}, false))
	if err := c.Join(context.Background(), testChat, "http://x/a.mp3", uuid.New()); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("Expected ErrNoEndpoint, got %v", err)
	}

	boom := errors.New("db locked")
	c.Lookup = func(context.Context, int64) (sys.RTMPEndpoint, bool, error) { return sys.RTMPEndpoint{}, false, boom }
	if err := c.Join(context.Background(), testChat, "http://x/a.mp3", uuid.New()); !errors.Is(err, boom) {
		t.Errorf("Expected lookup error to be wrapped, got %v", err)
	}
}

func TestRTMPCaller_IdleChat(t *testing.T) {
	c := NewRTMPCaller("", nil)
	ctx := context.Background()

	if err := c.Pause(ctx, testChat); !errors.Is(err, ErrNotStreaming) {
		t.Errorf("Expected ErrNotStreaming on pause, got %v", err)
	}
	if err := c.Resume(ctx, testChat); !errors.Is(err, ErrNotStreaming) {
		t.Errorf("Expected ErrNotStreaming on resume, got %v", err)
	}
	if err := c.Leave(ctx, testChat); err != nil {
		t.Errorf("Expected idempotent leave, got %v", err)
	}
}

func expectNaturalEnd(t *testing.T, body string) {
	t.Helper()
	c := NewRTMPCaller(fakeFFmpeg(t, body), staticLookup(testEndpoint, true))
	ended := make(chan uuid.UUID, 1)
	c.OnStreamEnd(func(chatID int64, stream uuid.UUID) {
		if chatID == testChat {
			ended <- stream
		}
	})

	stream := uuid.New()
	if err := c.Join(context.Background(), testChat, "http://x/a.mp3", stream); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-ended:
		if got != stream {
			t.Errorf("Expected end for stream %s, got %s", stream, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Expected stream-end notification")
	}
	if c.Streaming(testChat) {
		t.Error("Expected finished stream to be forgotten")
	}
}

func TestRTMPCaller_NaturalEndNotifies(t *testing.T) {
	expectNaturalEnd(t, "exit 0")
}

func TestRTMPCaller_OverlongStderrLine(t *testing.T) {
	// One 200 KB line on stderr, well past the scanner's token limit.
	expectNaturalEnd(t, "head -c 200000 /dev/zero | tr '\\000' x >&2\nexit 0")
}

func TestRTMPCaller_LeaveSuppressesEnd(t *testing.T) {
	c := NewRTMPCaller(fakeFFmpeg(t, "exec sleep 30"), staticLookup(testEndpoint, true))
	ended := make(chan uuid.UUID, 4)
	c.OnStreamEnd(func(_ int64, stream uuid.UUID) { ended <- stream })
	ctx := context.Background()

	if err := c.Join(ctx, testChat, "http://x/a.mp3", uuid.New()); err != nil {
		t.Fatal(err)
	}
	if !c.Streaming(testChat) {
		t.Fatal("Expected stream to be running")
	}
	if err := c.Pause(ctx, testChat); err != nil {
		t.Errorf("Pause failed: %v", err)
	}
	if err := c.Resume(ctx, testChat); err != nil {
		t.Errorf("Resume failed: %v", err)
	}

	// Joining again replaces the running process without an end event.
	if err := c.Join(ctx, testChat, "http://x/b.mp3", uuid.New()); err != nil {
		t.Fatal(err)
	}
	if err := c.Leave(ctx, testChat); err != nil {
		t.Fatal(err)
	}
	if c.Streaming(testChat) {
		t.Error("Expected no stream after leave")
	}

	select {
	case stream := <-ended:
		t.Errorf("Expected no end notification for stopped streams, got %s", stream)
	case <-time.After(300 * time.Millisecond):
	}
}
