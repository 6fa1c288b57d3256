package adapter

import (
	"context"
	"errors"
	"net/http"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// ChatExists reports whether the bot can see chatID (getChat). Telegram
// answers 400/403 for chats the bot is not in; those map to (false, nil).
func (a *Adapter) ChatExists(ctx context.Context, chatID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	chat, err := a.bot.ChatByID(chatID)
	if err == nil {
		return chat != nil, nil
	}
	var terr *tele.Error
	if errors.As(err, &terr) && (terr.Code == http.StatusBadRequest || terr.Code == http.StatusForbidden) {
		return false, nil
	}
	return false, err
}

// menuCommands converts and bounds cmds to what setMyCommands accepts.
func menuCommands(cmds []kit.BotCommand) []tele.Command {
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if r := []rune(d); len(r) > 256 {
			d = string(r[:256])
		}
		out = append(out, tele.Command{Text: c.Command, Description: d})
		if len(out) == 100 {
			break
		}
	}
	return out
}

func menuKey(cmds []tele.Command) string {
	var b strings.Builder
	for _, c := range cmds {
		b.WriteString(c.Text)
		b.WriteByte(0)
		b.WriteString(c.Description)
		b.WriteByte(0)
	}
	return b.String()
}

// UpdateMenuCommands publishes the /menu command list. The network call is
// skipped when the list did not change since the last success.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	menu := menuCommands(cmds)
	key := menuKey(menu)

	a.menuMu.Lock()
	defer a.menuMu.Unlock()
	if key == a.menuKey {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.bot.SetCommands(menu); err != nil {
		return err
	}
	a.menuKey = key
	a.log.Info("menu commands updated", logx.Int("count", len(menu)))
	return nil
}
