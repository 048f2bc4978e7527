package home

import (
	"context"

	"github.com/leeineian/chorus/proc"
	"github.com/leeineian/chorus/sys"
)

func handleMusicPause(ctx context.Context, e sys.CommandEvent) error {
	if err := proc.GetVoiceManager().Pause(ctx, e.ChatID()); err != nil {
		return replyVoiceError(ctx, e, err)
	}
	return e.Reply(ctx, sys.MsgPaused)
}

func handleMusicResume(ctx context.Context, e sys.CommandEvent) error {
	if err := proc.GetVoiceManager().Resume(ctx, e.ChatID()); err != nil {
		return replyVoiceError(ctx, e, err)
	}
	return e.Reply(ctx, sys.MsgResumed)
}
