// Package transport is the edge between the chat platform and the bot.
// Adapters turn platform events into Updates and carry text back out.
package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

// Update carries exactly one of Message or Callback, as named by Kind.
type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID       int
	ChatID   int64
	ThreadID int // forum topic, 0 outside topics
	FromID   int64
	Text     string
}

func (m *Message) Target() ChatTarget { return ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID} }

// Callback is an inline button press on the message MessageID.
type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

func (c *Callback) Target() ChatTarget { return ChatTarget{ChatID: c.ChatID, ThreadID: c.ThreadID} }

// Ref points at the message holding the pressed button.
func (c *Callback) Ref() MessageRef {
	return MessageRef{ChatID: c.ChatID, ThreadID: c.ThreadID, MessageID: c.MessageID}
}

// ChatTarget is where text goes: a chat and optionally a forum topic.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// Markup is passed through to the adapter untouched; the Telegram
	// adapter expects *telebot.ReplyMarkup.
	Markup any
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// ChatLookup reports whether the bot can reach a chat.
type ChatLookup interface {
	ChatExists(ctx context.Context, chatID int64) (bool, error)
}

type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters with a command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
