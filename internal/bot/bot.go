package bot

import (
	"context"
	"sync"

	"digestbot/internal/audit"
	"digestbot/internal/config"
	"digestbot/internal/llm"
	"digestbot/internal/session"
	"digestbot/internal/telegram"
	"digestbot/internal/tempfile"
	"digestbot/internal/transcode"
	"digestbot/internal/worker"
	"digestbot/pkg/logger"
	"digestbot/pkg/resilience"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

// Deps are the long-lived clients built once in main
type Deps struct {
	Generator  llm.Generator
	Files      *tempfile.Store
	Transcoder Transcoder
	Target     transcode.Format
}

type Bot struct {
	cfg        *config.Config
	tb         *tele.Bot
	router     *Router
	controller *Controller
	sessions   *session.Table

	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup
}

func NewBot(cfg *config.Config, deps Deps) (*Bot, error) {
	logger.Info("Starting bot initialization")

	pref := tele.Settings{
		Token: cfg.Telegram.Token,
		Poller: &tele.LongPoller{
			Timeout: cfg.Telegram.PollTimeout,
		},
		OnError: func(err error, c tele.Context) {
			fields := []zap.Field{zap.Error(err)}
			if c != nil && c.Chat() != nil {
				fields = append(fields, zap.Int64("chat_id", c.Chat().ID))
			}
			logger.Error("Telegram handler error", fields...)
		},
	}

	tb, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}

	logger.Info("Bot created successfully", zap.String("username", tb.Me.Username))

	client := telegram.NewClient(tb)
	auditor := audit.NewLogger(
		client,
		telegram.Peer(cfg.Audit.ChannelID),
		resilience.NewRateLimiter(cfg.Audit.Rate, cfg.Audit.RateInterval),
	)
	sessions := session.NewTable(cfg.Convert.SessionTTL)
	processor := worker.NewProcessor(client, deps.Generator, deps.Files, auditor, cfg.MaxFileSize(), cfg.Media.RequestTimeout)
	controller := NewController(client, sessions, deps.Transcoder, deps.Files, auditor, deps.Target, cfg.Media.RequestTimeout)

	ctx, cancel := context.WithCancel(context.Background())

	bot := &Bot{
		cfg:        cfg,
		tb:         tb,
		router:     NewRouter(client, controller, processor, auditor),
		controller: controller,
		sessions:   sessions,
		ctx:        ctx,
		cancel:     cancel,
	}

	bot.registerHandlers()
	return bot, nil
}

func (b *Bot) registerHandlers() {
	for _, endpoint := range []string{
		"/start",
		"/convert",
		"/cancel",
		tele.OnText,
		tele.OnVoice,
		tele.OnVideoNote,
		tele.OnMedia,
		tele.OnLocation,
		tele.OnContact,
		tele.OnPoll,
	} {
		b.tb.Handle(endpoint, b.handle)
	}
}

// handle runs on the poller's goroutine for this update
func (b *Bot) handle(c tele.Context) error {
	msg := c.Message()
	if msg == nil {
		return nil
	}

	if !b.enter() {
		logger.Debug("Update dropped during shutdown", zap.Int("message_id", msg.ID))
		return nil
	}
	defer b.inflight.Done()

	b.router.Dispatch(b.ctx, telegram.FromTele(msg))
	return nil
}

// enter registers an in-flight update unless shutdown has begun
func (b *Bot) enter() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return false
	}
	b.inflight.Add(1)
	return true
}

// drain refuses new updates and waits for the in-flight ones
func (b *Bot) drain() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()

	b.inflight.Wait()
}

// Start runs the session janitor and blocks on the long poller
func (b *Bot) Start() {
	go b.sessions.Run(b.ctx, b.cfg.Convert.SweepInterval, func(s session.Session) {
		b.controller.NotifyExpired(b.ctx, s)
	})

	logger.Info("Bot started")
	b.tb.Start()
}

// Stop stops polling, waits for in-flight updates and stops the janitor
func (b *Bot) Stop() {
	b.tb.Stop()
	b.drain()
	b.cancel()
	logger.Info("Bot stopped")
}
