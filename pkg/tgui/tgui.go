// Package tgui holds the Telegram UI pieces the bot renders: inline
// keyboards, callback data and sendable text messages.
package tgui

import (
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"
)

// MaxMessageRunes is Telegram's text limit after entity parsing.
const MaxMessageRunes = 4096

// Keyboard accumulates inline button rows.
type Keyboard struct {
	rows [][]tele.InlineButton
}

// Row appends one row of buttons.
func (k *Keyboard) Row(btns ...tele.InlineButton) *Keyboard {
	if len(btns) > 0 {
		k.rows = append(k.rows, btns)
	}
	return k
}

// Markup renders the keyboard for the adapter's send options.
func (k *Keyboard) Markup() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{InlineKeyboard: k.rows}
}

// Button is a callback button; data is sent back verbatim.
func Button(text, data string) tele.InlineButton {
	return tele.InlineButton{Text: text, Data: data}
}

// YesNo is a one-row confirm keyboard. Both buttons carry payload, under
// yesAction and noAction of module.
func YesNo(yesLabel, noLabel, module, yesAction, noAction, payload string) (*Keyboard, error) {
	yes, err := Data(module, yesAction, payload)
	if err != nil {
		return nil, err
	}
	no, err := Data(module, noAction, payload)
	if err != nil {
		return nil, err
	}
	return new(Keyboard).Row(Button(yesLabel, yes), Button(noLabel, no)), nil
}

// Truncate cuts s to n runes, marking the cut with "…" inside the budget.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
