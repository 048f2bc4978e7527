package home

import (
	"context"

	"github.com/leeineian/chorus/proc"
	"github.com/leeineian/chorus/sys"
)

func handleMusicSkip(ctx context.Context, e sys.CommandEvent) error {
	skipped, err := proc.GetVoiceManager().Skip(ctx, e.ChatID())
	if !skipped {
		return nil
	}
	if rerr := e.Reply(ctx, sys.MsgSkipDone); rerr != nil {
		return rerr
	}
	if err != nil {
		return replyVoiceError(ctx, e, err)
	}
	return nil
}
