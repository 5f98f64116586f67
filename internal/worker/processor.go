package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"digestbot/internal/audit"
	"digestbot/internal/digest"
	"digestbot/internal/llm"
	"digestbot/internal/telegram"
	"digestbot/internal/tempfile"
	"digestbot/pkg/logger"
	"digestbot/pkg/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrFileTooLarge  = errors.New("file is too large")
	ErrNoAttachment  = errors.New("message has no attachment")
	ErrNotDigestible = errors.New("message kind cannot be digested")
)

const (
	FailureNotice  = "❌ Sorry, something went wrong while processing your message. Please try again later."
	TooLargeNotice = "❌ This file is too large to process (limit %d MB)."
)

var placeholders = map[model.MediaKind]string{
	model.MediaVoice:     "⏳ Processing voice message…",
	model.MediaVideoNote: "⏳ Processing video note…",
	model.MediaText:      "⏳ Summarizing text…",
}

type Processor struct {
	tr          telegram.Transport
	runner      *digest.Runner
	files       *tempfile.Store
	auditor     audit.Mirrorer
	maxFileSize int64
	timeout     time.Duration
}

// NewProcessor creates the per-request pipeline. maxFileSize and timeout
// are disabled when zero.
func NewProcessor(
	tr telegram.Transport,
	gen llm.Generator,
	files *tempfile.Store,
	auditor audit.Mirrorer,
	maxFileSize int64,
	timeout time.Duration,
) *Processor {
	return &Processor{
		tr:          tr,
		runner:      digest.NewRunner(gen),
		files:       files,
		auditor:     auditor,
		maxFileSize: maxFileSize,
		timeout:     timeout,
	}
}

// Process digests a voice note, a video note or a text message and replies
// with the aggregated result. The returned error is the cause of an aborted
// request; the user and the audit channel have already been told about it.
func (p *Processor) Process(ctx context.Context, msg telegram.IncomingMessage) error {
	kind, ok := mediaKindOf(msg.Kind)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotDigestible, msg.Kind)
	}

	log := logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.Int64("chat_id", msg.ChatID),
		zap.Int64("user_id", msg.Sender.ID),
		zap.Int("message_id", msg.ID),
		zap.String("kind", string(kind)))

	log.Info("Processing message")
	start := time.Now()

	placeholder, err := p.tr.Send(ctx, telegram.ChatPeer(msg.ChatID), placeholders[kind], msg.ID)
	hasPlaceholder := err == nil
	if err != nil {
		log.Warn("Failed to send placeholder", zap.Error(err))
	}

	reply, err := p.run(ctx, log, msg, kind)
	if err != nil {
		log.Error("Processing failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		p.deliver(ctx, log, msg, placeholder, hasPlaceholder, p.failureText(err))
		p.auditor.Mirror(ctx, msg, "❌ Processing failed: "+err.Error())
		return err
	}

	p.deliver(ctx, log, msg, placeholder, hasPlaceholder, reply)
	p.auditor.Mirror(ctx, msg, reply)

	log.Info("Message processed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("reply_length", len(reply)))

	return nil
}

// run turns panics into errors so the caller can still reply
func (p *Processor) run(ctx context.Context, log *zap.Logger, msg telegram.IncomingMessage, kind model.MediaKind) (reply string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Panic while processing message", zap.Any("panic", rec), zap.Stack("stack"))
			err = fmt.Errorf("internal error: %v", rec)
		}
	}()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var fragments []model.Fragment
	if kind == model.MediaText {
		fragments, err = p.digestText(ctx, msg)
	} else {
		fragments, err = p.digestMedia(ctx, log, msg, kind)
	}
	if err != nil {
		return "", err
	}

	return telegram.Truncate(digest.Aggregate(fragments), telegram.MaxMessageLength), nil
}

func (p *Processor) digestText(ctx context.Context, msg telegram.IncomingMessage) ([]model.Fragment, error) {
	tasks, err := digest.TasksFor(model.MediaText, msg.Text)
	if err != nil {
		return nil, err
	}
	return p.runner.Run(ctx, tasks, nil), nil
}

func (p *Processor) digestMedia(ctx context.Context, log *zap.Logger, msg telegram.IncomingMessage, kind model.MediaKind) ([]model.Fragment, error) {
	att := msg.Attachment
	if att == nil {
		return nil, ErrNoAttachment
	}
	if p.maxFileSize > 0 && att.Size > p.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, att.Size)
	}

	tasks, err := digest.TasksFor(kind, "")
	if err != nil {
		return nil, err
	}

	file, err := p.files.Acquire(string(kind), msg.Sender.ID, att.UniqueID, digest.Ext(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err := file.Release(); err != nil {
			log.Warn("Failed to remove temp file", zap.String("path", file.Path), zap.Error(err))
		}
	}()

	if err := p.tr.Download(ctx, att.FileID, file.Path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(file.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read downloaded file: %w", err)
	}

	log.Debug("Media downloaded", zap.Int("size", len(data)))

	mimeType := att.MIMEType
	if mimeType == "" {
		mimeType = digest.MIMEType(kind)
	}

	return p.runner.Run(ctx, tasks, &model.Media{Data: data, MIMEType: mimeType}), nil
}

// deliver edits the placeholder in place or, without one, replies with text
func (p *Processor) deliver(ctx context.Context, log *zap.Logger, msg telegram.IncomingMessage, placeholder telegram.Ref, hasPlaceholder bool, text string) {
	if hasPlaceholder {
		err := p.tr.Edit(ctx, placeholder, text)
		if err == nil {
			return
		}
		log.Warn("Failed to edit placeholder, sending reply instead", zap.Error(err))
	}

	if _, err := p.tr.Send(ctx, telegram.ChatPeer(msg.ChatID), text, msg.ID); err != nil {
		log.Error("Failed to deliver reply", zap.Error(err))
	}
}

func (p *Processor) failureText(err error) string {
	if errors.Is(err, ErrFileTooLarge) {
		return fmt.Sprintf(TooLargeNotice, p.maxFileSize/(1024*1024))
	}
	return FailureNotice
}

func mediaKindOf(k telegram.Kind) (model.MediaKind, bool) {
	switch k {
	case telegram.KindVoice:
		return model.MediaVoice, true
	case telegram.KindVideoNote:
		return model.MediaVideoNote, true
	case telegram.KindText:
		return model.MediaText, true
	default:
		return "", false
	}
}
