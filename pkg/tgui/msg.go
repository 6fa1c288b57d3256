package tgui

import (
	"context"

	kit "remindbot/internal/transport"
)

// Message is text plus the options it is sent with, so a prompt can be
// sent and later edited in place with the same settings.
type Message struct {
	Text string
	Opt  kit.SendOptions
}

// Plain is a plain-text message without link previews.
func Plain(text string) Message {
	return Message{Text: Truncate(text, MaxMessageRunes), Opt: kit.SendOptions{DisablePreview: true}}
}

// WithKeyboard returns a copy carrying kb; nil removes any keyboard.
func (m Message) WithKeyboard(kb *Keyboard) Message {
	m.Opt.Markup = nil
	if kb != nil {
		m.Opt.Markup = kb.Markup()
	}
	return m
}

func (m Message) Send(ctx context.Context, ad kit.Adapter, to kit.ChatTarget) (kit.MessageRef, error) {
	opt := m.Opt
	return ad.SendText(ctx, to, m.Text, &opt)
}

func (m Message) Edit(ctx context.Context, ad kit.Adapter, ref kit.MessageRef) error {
	opt := m.Opt
	return ad.EditText(ctx, ref, m.Text, &opt)
}
