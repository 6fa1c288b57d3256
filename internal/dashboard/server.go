package dashboard

import (
	"context"
	_ "embed"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"remindbot/internal/delivery"
	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/scheduler"
	logx "remindbot/pkg/logx"
)

//go:embed static/index.html
var indexHTML []byte

type Config struct {
	Addr        string
	CORSOrigins []string
}

// Scheduled is the registry view the dashboard reports on.
type Scheduled interface {
	Len() int
	Triggers() []scheduler.Trigger
}

// Activity is the recent-event view behind /api/activity.
type Activity interface {
	Recent(n int) []eventbus.Event
}

// RuntimeView reports supervised goroutines by subsystem.
type RuntimeView func() map[string]supervisor.SupervisorSnapshot

type Server struct {
	cfg      Config
	svc      *reminder.Service
	sched    Scheduled
	activity Activity
	runtime  RuntimeView
	log      logx.Logger
	engine   *gin.Engine
}

func New(cfg Config, svc *reminder.Service, sched Scheduled, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:   cfg,
		svc:   svc,
		sched: sched,
		log:   log.With(logx.String("comp", "dashboard")),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// SetActivity attaches the fire history. Call before Run.
func (s *Server) SetActivity(a Activity) { s.activity = a }

// SetRuntime attaches the supervisor view. Call before Run.
func (s *Server) SetRuntime(fn RuntimeView) { s.runtime = fn }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())
	r.Use(cors.New(corsConfig(s.cfg.CORSOrigins)))

	r.GET("/dashboard", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})
	r.GET("/healthz", s.health)

	api := r.Group("/api")
	api.GET("/reminders", resolve(s.listReminders))
	api.POST("/reminders", resolve(s.createReminder))
	api.DELETE("/reminders/:id", resolve(s.deleteReminder))
	api.GET("/triggers", resolve(s.listTriggers))
	api.GET("/activity", resolve(s.listActivity))
	api.GET("/runtime", resolve(s.runtimeView))
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS", "HEAD"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

// requestLog mirrors the router's request log: slow or failed requests at
// INFO/WARN, the rest at DEBUG.
func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		d := time.Since(start)
		fields := []logx.Field{
			logx.String("method", c.Request.Method),
			logx.String("path", c.FullPath()),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("dur", d),
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			s.log.Warn("request failed", fields...)
		case d >= 750*time.Millisecond:
			s.log.Info("request ok", fields...)
		default:
			s.log.Debug("request ok", fields...)
		}
	}
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("dashboard listening", logx.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.log.Warn("dashboard shutdown", logx.Err(err))
		}
		<-errCh
		s.log.Info("dashboard stopped")
		return nil
	}
}

type apiError struct {
	Code    int
	Message string
}

type handlerFunc func(c *gin.Context) (int, any, *apiError)

func resolve(h handlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, body, apiErr := h(c)
		if apiErr != nil {
			c.JSON(apiErr.Code, gin.H{"error": apiErr.Message})
			return
		}
		if body == nil {
			c.Status(status)
			return
		}
		c.JSON(status, body)
	}
}

// toAPIError maps service errors: validation is the caller's fault, the
// rest is logged and reported without detail.
func (s *Server) toAPIError(op string, err error) *apiError {
	var ve *reminder.ValidationError
	switch {
	case errors.As(err, &ve):
		return &apiError{Code: http.StatusBadRequest, Message: ve.Error()}
	case errors.Is(err, reminder.ErrNotFound):
		return &apiError{Code: http.StatusNotFound, Message: "reminder not found"}
	}
	s.log.Error(op+" failed", logx.Err(err))
	return &apiError{Code: http.StatusInternalServerError, Message: "storage error"}
}

func (s *Server) health(c *gin.Context) {
	n := 0
	if s.sched != nil {
		n = s.sched.Len()
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "scheduled": n})
}

func (s *Server) listReminders(c *gin.Context) (int, any, *apiError) {
	rs, err := s.svc.List(c.Request.Context(), strings.TrimSpace(c.Query("guild_id")))
	if err != nil {
		return 0, nil, s.toAPIError("list reminders", err)
	}
	if rs == nil {
		rs = []reminder.Reminder{}
	}
	return http.StatusOK, rs, nil
}

type createRequest struct {
	GuildID  string `form:"guild_id" json:"guild_id"`
	Channel  string `form:"channel" json:"channel"`
	Time     string `form:"time" json:"time"`
	Message  string `form:"message" json:"message"`
	Times    *int   `form:"times" json:"times"`
	Days     string `form:"days" json:"days"`
	Timezone string `form:"timezone" json:"timezone"`
}

func (s *Server) createReminder(c *gin.Context) (int, any, *apiError) {
	var req createRequest
	if err := c.ShouldBind(&req); err != nil {
		return 0, nil, &apiError{Code: http.StatusBadRequest, Message: "invalid request body"}
	}
	// form binding turns a blank field into 0; blank means not given
	if v, ok := c.GetPostForm("times"); ok && strings.TrimSpace(v) == "" {
		req.Times = nil
	}
	to, err := delivery.ParseChannel(req.Channel)
	if err != nil {
		return 0, nil, &apiError{Code: http.StatusBadRequest, Message: "channel: must be <chat_id> or <chat_id>:<topic_id>"}
	}
	days, err := reminder.ParseDays(req.Days)
	if err != nil {
		return 0, nil, s.toAPIError("create reminder", err)
	}
	r, err := s.svc.Create(c.Request.Context(), reminder.CreateInput{
		GuildID:        req.GuildID,
		ChannelID:      delivery.FormatChannel(to),
		TimeOfDay:      req.Time,
		Message:        req.Message,
		MaxOccurrences: req.Times,
		Days:           days,
		Timezone:       req.Timezone,
	})
	if err != nil {
		return 0, nil, s.toAPIError("create reminder", err)
	}
	return http.StatusCreated, r, nil
}

func (s *Server) deleteReminder(c *gin.Context) (int, any, *apiError) {
	if err := s.svc.CancelByID(c.Request.Context(), c.Param("id")); err != nil {
		return 0, nil, s.toAPIError("delete reminder", err)
	}
	return http.StatusNoContent, nil, nil
}

func (s *Server) listTriggers(c *gin.Context) (int, any, *apiError) {
	if s.sched == nil {
		return http.StatusOK, []scheduler.Trigger{}, nil
	}
	ts := s.sched.Triggers()
	if ts == nil {
		ts = []scheduler.Trigger{}
	}
	return http.StatusOK, ts, nil
}

func (s *Server) listActivity(c *gin.Context) (int, any, *apiError) {
	if s.activity == nil {
		return http.StatusOK, []eventbus.Event{}, nil
	}
	n := 50
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return 0, nil, &apiError{Code: http.StatusBadRequest, Message: "limit must be a positive integer"}
		}
		n = v
	}
	return http.StatusOK, s.activity.Recent(n), nil
}

func (s *Server) runtimeView(c *gin.Context) (int, any, *apiError) {
	if s.runtime == nil {
		return http.StatusOK, map[string]supervisor.SupervisorSnapshot{}, nil
	}
	return http.StatusOK, s.runtime(), nil
}
