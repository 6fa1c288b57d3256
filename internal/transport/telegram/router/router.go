package router

import (
	"context"
	"strings"
	"sync"
	"time"

	"remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

// Command is a single slash command. Names and aliases are one token each;
// "/name@bot" is matched by name.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackAccess defaults to owner-only; public buttons opt in with
// CallbackAccessEveryone.
type CallbackAccess int

const (
	CallbackAccessOwnerOnly CallbackAccess = iota
	CallbackAccessEveryone
)

// CallbackRoute handles callback data "<module>:<action>[:<payload>]".
type CallbackRoute struct {
	Module      string
	Action      string
	Description string
	Access      CallbackAccess
	Timeout     time.Duration
	Handle      CallbackHandlerFunc
}

func (r CallbackRoute) key() string { return r.Module + ":" + r.Action }

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	Flags   map[string]string
	Bools   map[string]bool
	Payload string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger

	mgr *CommandManager
}

// Text returns the raw message text (empty for callbacks).
func (r *Request) Text() string {
	if r == nil || r.Update.Message == nil {
		return ""
	}
	return r.Update.Message.Text
}

// Reply sends plain text to the chat and topic the request came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// HelpText lists the registered commands, or details one when name is set.
func (r *Request) HelpText(name string) string {
	if r == nil || r.mgr == nil {
		return ""
	}
	return r.mgr.tables().help(name)
}

// table is an immutable routing snapshot swapped in by SetRegistry.
type table struct {
	cmds      []Command // registration order, used for help and the menu
	byName    map[string]int
	callbacks map[string]CallbackRoute
}

func (t *table) lookup(word string) (Command, bool) {
	i, ok := t.byName[strings.ToLower(word)]
	if !ok {
		return Command{}, false
	}
	return t.cmds[i], true
}

type CommandManager struct {
	log     logx.Logger
	adapter kit.Adapter

	mu     sync.RWMutex
	tab    *table
	owners map[int64]struct{}

	supMu sync.Mutex
	sup   *supervisor.Supervisor

	jobs chan job
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, owners []int64) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &CommandManager{
		log:     log,
		adapter: adapter,
		tab:     &table{byName: map[string]int{}, callbacks: map[string]CallbackRoute{}},
		jobs:    make(chan job, jobQueueCap),
	}
	m.SetOwners(owners)
	return m
}

// SetOwners replaces the ids allowed through owner-only routes. Safe during
// hot reload.
func (m *CommandManager) SetOwners(owners []int64) {
	set := make(map[int64]struct{}, len(owners))
	for _, id := range owners {
		set[id] = struct{}{}
	}
	m.mu.Lock()
	m.owners = set
	m.mu.Unlock()
}

func (m *CommandManager) isOwner(id int64) bool {
	m.mu.RLock()
	_, ok := m.owners[id]
	m.mu.RUnlock()
	return ok
}

func (m *CommandManager) tables() *table {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tab
}

// SetRegistry installs commands and callback routes. A generic /help is
// added unless one of cmds is already named "help". Later names and aliases
// never shadow earlier ones.
func (m *CommandManager) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	t := &table{byName: map[string]int{}, callbacks: map[string]CallbackRoute{}}

	claim := func(word string, idx int) {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" || strings.ContainsAny(word, " \t") {
			return
		}
		if _, taken := t.byName[word]; !taken {
			t.byName[word] = idx
		}
		if safe := menuName(word); safe != "" && safe != word {
			if _, taken := t.byName[safe]; !taken {
				t.byName[safe] = idx
			}
		}
	}

	for _, c := range cmds {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" || c.Handle == nil {
			continue
		}
		t.cmds = append(t.cmds, c)
		idx := len(t.cmds) - 1
		claim(c.Name, idx)
		for _, a := range c.Aliases {
			claim(a, idx)
		}
	}
	if _, ok := t.byName["help"]; !ok {
		t.cmds = append(t.cmds, Command{
			Name:        "help",
			Aliases:     []string{"h"},
			Description: "show help",
			Usage:       "/help [command]",
			Handle: func(ctx context.Context, req *Request) error {
				name := ""
				if len(req.Args) > 0 {
					name = req.Args[0]
				}
				return req.Reply(ctx, req.HelpText(name))
			},
		})
		idx := len(t.cmds) - 1
		claim("help", idx)
		claim("h", idx)
	}

	for _, r := range cbs {
		r.Module = strings.TrimSpace(r.Module)
		r.Action = strings.TrimSpace(r.Action)
		if r.Module == "" || r.Action == "" || r.Handle == nil {
			continue
		}
		t.callbacks[r.key()] = r
	}

	m.mu.Lock()
	m.tab = t
	m.mu.Unlock()
	m.log.Debug("command registry updated", logx.Int("commands", len(t.cmds)), logx.Int("callbacks", len(t.callbacks)))
}

// PublishMenu pushes the command list to the platform menu when the adapter
// supports it.
func (m *CommandManager) PublishMenu(ctx context.Context) error {
	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return up.UpdateMenuCommands(ctx, m.tables().menu())
}

// Supervisor returns the dispatcher's supervisor, nil when it is not running.
func (m *CommandManager) Supervisor() *supervisor.Supervisor {
	m.supMu.Lock()
	defer m.supMu.Unlock()
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *supervisor.Supervisor) {
	m.supMu.Lock()
	m.sup = sup
	m.supMu.Unlock()
}
