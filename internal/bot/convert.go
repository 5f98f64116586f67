package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"digestbot/internal/audit"
	"digestbot/internal/session"
	"digestbot/internal/telegram"
	"digestbot/internal/tempfile"
	"digestbot/internal/transcode"
	"digestbot/pkg/logger"

	"go.uber.org/zap"
)

const (
	expiredNotice         = "⌛ The conversion dialogue expired. Send /convert to start again."
	cancelledNotice       = "✅ Conversion cancelled."
	nothingToCancelNotice = "ℹ️ Nothing to cancel."
	convertingNotice      = "⏳ Converting…"
	engineMissingNotice   = "❌ Conversion failed: transcoding engine (ffmpeg) is not installed on the server."
)

// Transcoder converts a local audio file into the target format
type Transcoder interface {
	Convert(ctx context.Context, src string, target transcode.Format) (string, error)
}

// Controller runs the /convert dialogue. The transition logic lives in the
// session package; Controller performs the effects.
type Controller struct {
	tr         telegram.Transport
	sessions   *session.Table
	transcoder Transcoder
	files      *tempfile.Store
	auditor    audit.Mirrorer
	target     transcode.Format
	timeout    time.Duration
}

func NewController(
	tr telegram.Transport,
	sessions *session.Table,
	transcoder Transcoder,
	files *tempfile.Store,
	auditor audit.Mirrorer,
	target transcode.Format,
	timeout time.Duration,
) *Controller {
	return &Controller{
		tr:         tr,
		sessions:   sessions,
		transcoder: transcoder,
		files:      files,
		auditor:    auditor,
		target:     target,
		timeout:    timeout,
	}
}

// Handle offers msg to the dialogue. It returns false when the message
// should go to the stateless handlers.
func (c *Controller) Handle(ctx context.Context, msg telegram.IncomingMessage) bool {
	key := session.Key{UserID: msg.Sender.ID, ChatID: msg.ChatID}
	out := c.sessions.Fire(key, eventOf(msg))

	if out.Expired {
		c.reply(ctx, msg, expiredNotice)
	}

	switch out.Action {
	case session.ActionPass:
		return false
	case session.ActionPromptVoice:
		c.replyAndAudit(ctx, msg, c.promptText())
	case session.ActionReprompt:
		c.replyAndAudit(ctx, msg, c.repromptText())
	case session.ActionAckCancel:
		c.replyAndAudit(ctx, msg, cancelledNotice)
	case session.ActionNothingToCancel:
		c.replyAndAudit(ctx, msg, nothingToCancelNotice)
	case session.ActionTranscode:
		c.transcode(ctx, msg, out.Session)
	}
	return true
}

// NotifyExpired tells the user their dialogue timed out
func (c *Controller) NotifyExpired(ctx context.Context, s session.Session) {
	if _, err := c.tr.Send(ctx, telegram.ChatPeer(s.Key.ChatID), expiredNotice, 0); err != nil {
		logger.Warn("Failed to send expiry notice",
			zap.String("session_id", s.ID),
			zap.Int64("chat_id", s.Key.ChatID),
			zap.Error(err))
	}
}

func (c *Controller) promptText() string {
	return fmt.Sprintf("🎙️ Send me a voice message and I will convert it to %s. Send /cancel to stop.", strings.ToUpper(c.target.Name))
}

func (c *Controller) repromptText() string {
	return "🎙️ I'm still waiting for a voice message to convert. Send /cancel to stop."
}

func (c *Controller) transcode(ctx context.Context, msg telegram.IncomingMessage, s session.Session) {
	log := logger.With(
		zap.String("session_id", s.ID),
		zap.Int64("chat_id", msg.ChatID),
		zap.Int64("user_id", msg.Sender.ID),
		zap.String("target", c.target.Name))

	placeholder, err := c.tr.Send(ctx, telegram.ChatPeer(msg.ChatID), convertingNotice, msg.ID)
	hasPlaceholder := err == nil
	if err != nil {
		log.Warn("Failed to send placeholder", zap.Error(err))
	}

	workCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		workCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	fileName, err := c.convertAndSend(workCtx, log, msg)
	if err != nil {
		log.Error("Conversion failed", zap.Error(err))

		text := "❌ Conversion failed: " + err.Error()
		if errors.Is(err, transcode.ErrEngineNotFound) {
			text = engineMissingNotice
		}
		if hasPlaceholder {
			if err := c.tr.Edit(ctx, placeholder, text); err == nil {
				c.auditor.Mirror(ctx, msg, text)
				return
			}
		}
		c.replyAndAudit(ctx, msg, text)
		return
	}

	if hasPlaceholder {
		if err := c.tr.Delete(ctx, placeholder); err != nil {
			log.Warn("Failed to delete placeholder", zap.Error(err))
		}
	}

	log.Info("Voice message converted", zap.String("file_name", fileName))
	c.auditor.Mirror(ctx, msg, "🎧 Converted audio sent: "+fileName)
}

func (c *Controller) convertAndSend(ctx context.Context, log *zap.Logger, msg telegram.IncomingMessage) (string, error) {
	att := msg.Attachment
	if att == nil {
		return "", errors.New("voice message has no attachment")
	}

	src, err := c.files.Acquire("convert", msg.Sender.ID, att.UniqueID, ".ogg")
	if err != nil {
		return "", err
	}
	defer release(log, src)

	if err := c.tr.Download(ctx, att.FileID, src.Path); err != nil {
		return "", err
	}

	outPath, err := c.transcoder.Convert(ctx, src.Path, c.target)
	if err != nil {
		return "", err
	}
	out := c.files.Adopt(outPath)
	defer release(log, out)

	fileName := fmt.Sprintf("voice_%d%s", msg.ID, c.target.Ext)
	if err := c.tr.SendAudio(ctx, telegram.ChatPeer(msg.ChatID), out.Path, fileName, msg.ID); err != nil {
		return "", err
	}
	return fileName, nil
}

func (c *Controller) reply(ctx context.Context, msg telegram.IncomingMessage, text string) {
	if _, err := c.tr.Send(ctx, telegram.ChatPeer(msg.ChatID), text, msg.ID); err != nil {
		logger.Error("Failed to send reply",
			zap.Int64("chat_id", msg.ChatID),
			zap.Error(err))
	}
}

func (c *Controller) replyAndAudit(ctx context.Context, msg telegram.IncomingMessage, text string) {
	c.reply(ctx, msg, text)
	c.auditor.Mirror(ctx, msg, text)
}

func eventOf(msg telegram.IncomingMessage) session.Event {
	switch msg.Kind {
	case telegram.KindVoice:
		return session.EventVoice
	case telegram.KindCommand:
		switch msg.Command {
		case "convert":
			return session.EventConvert
		case "cancel":
			return session.EventCancel
		}
	}
	return session.EventOther
}

func release(log *zap.Logger, f *tempfile.File) {
	if err := f.Release(); err != nil {
		log.Warn("Failed to remove temp file", zap.String("path", f.Path), zap.Error(err))
	}
}
