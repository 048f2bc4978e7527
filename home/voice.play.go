package home

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/leeineian/chorus/proc"
	"github.com/leeineian/chorus/sys"
)

func handleMusicPlay(ctx context.Context, e sys.CommandEvent) error {
	query := e.Args()
	if query == "" {
		return e.Reply(ctx, sys.MsgPlayUsage)
	}

	res, err := proc.GetVoiceManager().Enqueue(ctx, e.ChatID(), query)
	if err != nil {
		var rerr *proc.ResolveError
		switch {
		case errors.Is(err, proc.ErrStopped):
			return nil
		case errors.As(err, &rerr):
			return e.Reply(ctx, fmt.Sprintf(sys.ErrPlayFailed, html.EscapeString(query), html.EscapeString(rerr.Err.Error())))
		default:
			return replyVoiceError(ctx, e, err)
		}
	}

	title := html.EscapeString(res.Track.Title)
	if res.Started {
		return e.Reply(ctx, fmt.Sprintf(sys.MsgPlayStarted, title))
	}
	return e.Reply(ctx, fmt.Sprintf(sys.MsgPlayQueued, title, res.Position))
}
