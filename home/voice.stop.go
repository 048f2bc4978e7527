package home

import (
	"context"

	"github.com/leeineian/chorus/proc"
	"github.com/leeineian/chorus/sys"
)

func handleMusicStop(ctx context.Context, e sys.CommandEvent) error {
	if err := proc.GetVoiceManager().Stop(ctx, e.ChatID()); err != nil {
		sys.LogWarn(sys.MsgVoiceLeaveFailed, e.ChatID(), err)
	}
	return e.Reply(ctx, sys.MsgStopped)
}
