package home

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/leeineian/chorus/proc"
	"github.com/leeineian/chorus/sys"
	"github.com/samber/lo"
)

func handleMusicQueue(ctx context.Context, e sys.CommandEvent) error {
	return e.Reply(ctx, renderQueue(proc.GetVoiceManager().Snapshot(e.ChatID())))
}

// renderQueue lists tracks 1-indexed in playback order, the playing track first.
func renderQueue(tracks []proc.Track) string {
	if len(tracks) == 0 {
		return sys.MsgQueueEmpty
	}
	lines := lo.Map(tracks, func(t proc.Track, i int) string {
		return fmt.Sprintf("%d. %s", i+1, html.EscapeString(t.Title))
	})
	return sys.MsgQueueHeader + "\n" + strings.Join(lines, "\n")
}
