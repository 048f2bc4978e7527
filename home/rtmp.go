package home

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/leeineian/chorus/sys"
)

func init() {
	sys.RegisterCommand(sys.Command{
		Name:        "rtmp",
		Description: "Set or show this chat's RTMP stream endpoint",
		Usage:       "/rtmp <rtmp_url> <stream_key> | /rtmp clear",
	}, handleRTMP)
}

func handleRTMP(ctx context.Context, e sys.CommandEvent) error {
	fields := strings.Fields(e.Args())
	switch {
	case len(fields) == 0:
		return showRTMP(ctx, e)
	case len(fields) == 1 && strings.EqualFold(fields[0], "clear"):
		if err := sys.DeleteChatEndpoint(ctx, e.ChatID()); err != nil {
			sys.LogError(sys.MsgGenericError, err)
			return e.Reply(ctx, sys.ErrRTMPSave)
		}
		return e.Reply(ctx, sys.MsgRTMPCleared)
	case len(fields) != 2:
		return e.Reply(ctx, sys.MsgRTMPUsage)
	}

	if !sys.IsRTMPURL(fields[0]) {
		return e.Reply(ctx, sys.ErrRTMPInvalid)
	}
	ep := sys.RTMPEndpoint{URL: fields[0], Key: fields[1]}
	if err := sys.SetChatEndpoint(ctx, e.ChatID(), ep); err != nil {
		sys.LogError(sys.MsgGenericError, err)
		return e.Reply(ctx, sys.ErrRTMPSave)
	}
	return e.Reply(ctx, sys.MsgRTMPSaved)
}

// showRTMP never echoes the stream key.
func showRTMP(ctx context.Context, e sys.CommandEvent) error {
	ep, ok, err := sys.GetChatEndpoint(ctx, e.ChatID())
	if err != nil {
		sys.LogError(sys.MsgGenericError, err)
		return e.Reply(ctx, sys.ErrRTMPLookup)
	}
	if ok {
		return e.Reply(ctx, fmt.Sprintf(sys.MsgRTMPConfigured, html.EscapeString(ep.URL)))
	}
	if sys.GlobalConfig != nil && sys.GlobalConfig.RTMPURL != "" {
		return e.Reply(ctx, fmt.Sprintf(sys.MsgRTMPDefault, html.EscapeString(sys.GlobalConfig.RTMPURL)))
	}
	return e.Reply(ctx, sys.MsgRTMPMissing)
}
