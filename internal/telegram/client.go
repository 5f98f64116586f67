package telegram

import (
	"context"
	"fmt"

	"digestbot/pkg/logger"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

// Client implements Transport on top of a telebot bot. It holds no
// per-request state and is safe for concurrent use.
type Client struct {
	tb *tele.Bot
}

func NewClient(tb *tele.Bot) *Client {
	return &Client{tb: tb}
}

func (c *Client) Send(ctx context.Context, to Peer, text string, replyTo int) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}

	opts := &tele.SendOptions{DisableWebPagePreview: true}
	if replyTo != 0 {
		opts.ReplyTo = &tele.Message{ID: replyTo}
	}

	msg, err := c.tb.Send(to, text, opts)
	if err != nil {
		return Ref{}, fmt.Errorf("failed to send message: %w", err)
	}

	return refOf(msg), nil
}

func (c *Client) Edit(ctx context.Context, msg Ref, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := c.tb.Edit(msg, text, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, msg Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.tb.Delete(msg); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func (c *Client) Forward(ctx context.Context, to Peer, msg Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := c.tb.Forward(to, msg); err != nil {
		return fmt.Errorf("failed to forward message: %w", err)
	}
	return nil
}

func (c *Client) SendAudio(ctx context.Context, to Peer, path, fileName string, replyTo int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	audio := &tele.Audio{
		File:     tele.FromDisk(path),
		FileName: fileName,
	}

	opts := &tele.SendOptions{}
	if replyTo != 0 {
		opts.ReplyTo = &tele.Message{ID: replyTo}
	}

	if _, err := c.tb.Send(to, audio, opts); err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	return nil
}

func (c *Client) Download(ctx context.Context, fileID, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.tb.Download(&tele.File{FileID: fileID}, dst); err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}

	logger.Debug("File downloaded from Telegram",
		zap.String("file_id", fileID),
		zap.String("path", dst))

	return nil
}

func refOf(msg *tele.Message) Ref {
	if msg == nil {
		return Ref{}
	}
	ref := Ref{MessageID: msg.ID}
	if msg.Chat != nil {
		ref.ChatID = msg.Chat.ID
	}
	return ref
}
