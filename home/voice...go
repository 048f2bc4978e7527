package home

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/leeineian/chorus/proc"
	"github.com/leeineian/chorus/sys"
)

func init() {
	sys.RegisterCommand(sys.Command{
		Name:        "play",
		Description: "Queue a YouTube URL or search for a song",
		Usage:       "/play <YouTube URL or song name>",
	}, handleMusicPlay)

	sys.RegisterCommand(sys.Command{
		Name:        "skip",
		Description: "Skip the current track",
	}, handleMusicSkip)

	sys.RegisterCommand(sys.Command{
		Name:        "pause",
		Description: "Pause playback",
	}, handleMusicPause)

	sys.RegisterCommand(sys.Command{
		Name:        "resume",
		Description: "Resume playback",
	}, handleMusicResume)

	sys.RegisterCommand(sys.Command{
		Name:        "stop",
		Description: "Stop playback and clear the queue",
	}, handleMusicStop)

	sys.RegisterCommand(sys.Command{
		Name:        "queue",
		Description: "Show upcoming tracks",
	}, handleMusicQueue)
}

// voiceError renders a caller failure for the chat.
func voiceError(err error) string {
	if errors.Is(err, proc.ErrNoEndpoint) {
		return sys.MsgRTMPMissing
	}
	return fmt.Sprintf(sys.ErrVoiceFailed, html.EscapeString(err.Error()))
}

func replyVoiceError(ctx context.Context, e sys.CommandEvent, err error) error {
	return e.Reply(ctx, voiceError(err))
}
