package router

import (
	"context"
	"runtime"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const (
	jobQueueCap = 256
	minWorkers  = 2
	maxWorkers  = 8

	replyUnknown      = "unknown command, try /help"
	replyUnauthorized = "unauthorized"
	replyBusy         = "busy, try again"
)

type job struct {
	h    HandlerFunc
	req  *Request
	done func(ctx context.Context)
}

func (m *CommandManager) run(ctx context.Context, j job) {
	_ = j.h(ctx, j.req)
	if j.done != nil {
		j.done(ctx)
	}
}

// DispatchLoop reads updates until ctx is done or updates is closed and runs
// matched handlers on a small worker pool.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := min(max(runtime.NumCPU(), minWorkers), maxWorkers)
	sup := supervisor.NewSupervisor(ctx, supervisor.WithLogger(m.log.With(logx.String("comp", "telegram.router"))))
	m.setSupervisor(sup)

	for i := range workers {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case j := <-m.jobs:
					m.run(c, j)
				}
			}
		}, supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second), supervisor.WithPublishFirstError(true))
	}
	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("queue", cap(m.jobs)))

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.setSupervisor(nil)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			switch up.Kind {
			case kit.UpdateMessage:
				m.routeMessage(ctx, up)
			case kit.UpdateCallback:
				m.routeCallback(ctx, up)
			}
		}
	}
}

func (m *CommandManager) enqueue(j job) bool {
	select {
	case m.jobs <- j:
		return true
	default:
		return false
	}
}

// commandWord extracts the command name from "/name@bot rest".
func commandWord(tok string) string {
	word, _, _ := strings.Cut(strings.TrimPrefix(tok, "/"), "@")
	return word
}

func (m *CommandManager) newRequest(up kit.Update, chat kit.ChatTarget, from int64, command string) *Request {
	rid := newReqID()
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: command,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int("thread_id", chat.ThreadID),
			logx.Int64("from_id", from),
			logx.String("cmd", command),
		),
		mgr: m,
	}
}

func (m *CommandManager) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	toks := tokenizeCommandLine(text)
	if len(toks) == 0 {
		return
	}
	chat := msg.Target()

	cmd, ok := m.tables().lookup(commandWord(toks[0]))
	if !ok {
		_, _ = m.adapter.SendText(ctx, chat, replyUnknown, nil)
		return
	}
	if cmd.Access == AccessOwnerOnly && !m.isOwner(msg.FromID) {
		_, _ = m.adapter.SendText(ctx, chat, replyUnauthorized, nil)
		return
	}

	req := m.newRequest(up, chat, msg.FromID, cmd.Name)
	req.Args, req.Flags, req.Bools = parseFlags(toks[1:])

	h := Chain(cmd.Handle, Recover(), AccessLog(), Timeout(cmd.Timeout))
	if !m.enqueue(job{h: h, req: req}) {
		_, _ = m.adapter.SendText(ctx, chat, replyBusy, nil)
	}
}

func (m *CommandManager) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	parts := strings.SplitN(strings.TrimSpace(cb.Data), ":", 3)
	if len(parts) < 2 {
		return
	}
	route, ok := m.tables().callbacks[parts[0]+":"+parts[1]]
	if !ok {
		return
	}
	if route.Access == CallbackAccessOwnerOnly && !m.isOwner(cb.FromID) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
		return
	}

	req := m.newRequest(up, cb.Target(), cb.FromID, "cb:"+route.key())
	if len(parts) == 3 {
		req.Payload = parts[2]
	}
	h := Chain(func(c context.Context, r *Request) error {
		return route.Handle(c, r, r.Payload)
	}, Recover(), AccessLog(), Timeout(route.Timeout))

	// an empty answer clears the client's loading spinner
	done := func(c context.Context) { _ = m.adapter.AnswerCallback(c, cb.ID, "") }
	if !m.enqueue(job{h: h, req: req, done: done}) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "busy")
	}
}
