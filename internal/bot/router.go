package bot

import (
	"context"

	"digestbot/internal/audit"
	"digestbot/internal/telegram"
	"digestbot/internal/worker"
	"digestbot/pkg/logger"

	"go.uber.org/zap"
)

const startBanner = "👋 Hi! Send me a voice message, a video note or a text and I will transcribe and summarize it.\n\n" +
	"Commands:\n" +
	"/convert - convert a voice message to another audio format\n" +
	"/cancel - cancel the current conversion"

const (
	unknownCommandNotice = "🤔 Unknown command. Send /start to see what I can do."
	unsupportedNotice    = "🤷 I can only handle voice messages, video notes and text."
)

// Digester turns a voice note, video note or text into a digest reply
type Digester interface {
	Process(ctx context.Context, msg telegram.IncomingMessage) error
}

// Dialogue is offered every message before the stateless handlers
type Dialogue interface {
	Handle(ctx context.Context, msg telegram.IncomingMessage) bool
}

type Router struct {
	tr       telegram.Transport
	dialogue Dialogue
	digester Digester
	auditor  audit.Mirrorer
}

func NewRouter(tr telegram.Transport, dialogue Dialogue, digester Digester, auditor audit.Mirrorer) *Router {
	return &Router{
		tr:       tr,
		dialogue: dialogue,
		digester: digester,
		auditor:  auditor,
	}
}

// Dispatch routes one inbound message. It never panics.
func (r *Router) Dispatch(ctx context.Context, msg telegram.IncomingMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Panic in message handler",
				zap.Any("panic", rec),
				zap.Int64("chat_id", msg.ChatID),
				zap.Int("message_id", msg.ID),
				zap.Stack("stack"))
			r.reply(ctx, msg, worker.FailureNotice)
		}
	}()

	logger.Debug("Message received",
		zap.Int64("chat_id", msg.ChatID),
		zap.Int64("user_id", msg.Sender.ID),
		zap.Stringer("kind", msg.Kind))

	if r.dialogue.Handle(ctx, msg) {
		return
	}

	switch msg.Kind {
	case telegram.KindCommand:
		r.handleCommand(ctx, msg)
	case telegram.KindVoice, telegram.KindVideoNote, telegram.KindText:
		if err := r.digester.Process(ctx, msg); err != nil {
			logger.Debug("Digest request aborted", zap.Error(err))
		}
	default:
		r.replyAndAudit(ctx, msg, unsupportedNotice)
	}
}

func (r *Router) handleCommand(ctx context.Context, msg telegram.IncomingMessage) {
	switch msg.Command {
	case "start":
		r.replyAndAudit(ctx, msg, startBanner)
	default:
		r.replyAndAudit(ctx, msg, unknownCommandNotice)
	}
}

func (r *Router) reply(ctx context.Context, msg telegram.IncomingMessage, text string) {
	if _, err := r.tr.Send(ctx, telegram.ChatPeer(msg.ChatID), text, msg.ID); err != nil {
		logger.Error("Failed to send reply",
			zap.Int64("chat_id", msg.ChatID),
			zap.Error(err))
	}
}

func (r *Router) replyAndAudit(ctx context.Context, msg telegram.IncomingMessage, text string) {
	r.reply(ctx, msg, text)
	r.auditor.Mirror(ctx, msg, text)
}
