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
		Name:        "help",
		Description: "List available commands",
	}, handleHelp)

	sys.RegisterCommand(sys.Command{
		Name:   "start",
		Hidden: true,
	}, handleHelp)
}

func handleHelp(ctx context.Context, e sys.CommandEvent) error {
	var sb strings.Builder
	sb.WriteString(sys.MsgHelpHeader)
	for _, c := range sys.Commands() {
		if c.Hidden {
			continue
		}
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		sb.WriteString(fmt.Sprintf("\n%s - %s", html.EscapeString(usage), html.EscapeString(c.Description)))
	}
	return e.Reply(ctx, sb.String())
}
