package audit

import (
	"context"
	"fmt"

	"digestbot/internal/telegram"
	"digestbot/pkg/logger"
	"digestbot/pkg/resilience"

	"go.uber.org/zap"
)

// Mirrorer copies an interaction to the audit destination
type Mirrorer interface {
	Mirror(ctx context.Context, msg telegram.IncomingMessage, response string)
}

// Logger mirrors every interaction to an audit channel. Failures are logged
// and never surface to the caller.
type Logger struct {
	tr      telegram.Transport
	dest    telegram.Peer
	limiter *resilience.RateLimiter
}

// NewLogger creates an audit logger posting to dest. limiter may be nil.
func NewLogger(tr telegram.Transport, dest telegram.Peer, limiter *resilience.RateLimiter) *Logger {
	return &Logger{
		tr:      tr,
		dest:    dest,
		limiter: limiter,
	}
}

// Mirror forwards msg verbatim and, when response is not empty, posts the
// annotated response text.
func (l *Logger) Mirror(ctx context.Context, msg telegram.IncomingMessage, response string) {
	fields := []zap.Field{
		zap.Int64("chat_id", msg.ChatID),
		zap.Int("message_id", msg.ID),
		zap.Int64("user_id", msg.Sender.ID),
	}

	if err := l.wait(ctx); err != nil {
		logger.Warn("Audit skipped", append(fields, zap.Error(err))...)
		return
	}
	if err := l.tr.Forward(ctx, l.dest, msg.Ref()); err != nil {
		logger.Error("Failed to forward message to audit channel", append(fields, zap.Error(err))...)
	}

	if response == "" {
		return
	}

	for _, part := range Annotate(msg.Sender, response) {
		if err := l.wait(ctx); err != nil {
			logger.Warn("Audit reply skipped", append(fields, zap.Error(err))...)
			return
		}
		if _, err := l.tr.Send(ctx, l.dest, part, 0); err != nil {
			logger.Error("Failed to send reply to audit channel", append(fields, zap.Error(err))...)
			return
		}
	}
}

// Annotate builds the audit messages for response: the header naming the
// recipient, then the response itself cut to one Telegram message. Header
// and response share a message when both fit.
func Annotate(to telegram.Sender, response string) []string {
	header := fmt.Sprintf("🤖 Reply to %s (ID %d):", to.DisplayName(), to.ID)
	body := telegram.Truncate(response, telegram.MaxMessageLength)

	if joined := header + "\n" + body; telegram.Length(joined) <= telegram.MaxMessageLength {
		return []string{joined}
	}
	return []string{header, body}
}

func (l *Logger) wait(ctx context.Context) error {
	if l.limiter == nil {
		return ctx.Err()
	}
	return l.limiter.Wait(ctx)
}
