package telegram

import (
	"context"
	"strconv"
)

// Peer addresses a chat either by numeric id or by @username. It satisfies
// telebot's Recipient.
type Peer string

// ChatPeer addresses a chat by id
func ChatPeer(id int64) Peer {
	return Peer(strconv.FormatInt(id, 10))
}

func (p Peer) Recipient() string {
	return string(p)
}

// Ref addresses one message. It satisfies telebot's Editable.
type Ref struct {
	ChatID    int64
	MessageID int
}

func (r Ref) MessageSig() (string, int64) {
	return strconv.Itoa(r.MessageID), r.ChatID
}

// Transport is everything the bot needs from the chat platform.
// Every call may fail with a transport error.
type Transport interface {
	// Send posts text, optionally as a reply to replyTo (0 for none).
	Send(ctx context.Context, to Peer, text string, replyTo int) (Ref, error)
	Edit(ctx context.Context, msg Ref, text string) error
	Delete(ctx context.Context, msg Ref) error
	Forward(ctx context.Context, to Peer, msg Ref) error
	SendAudio(ctx context.Context, to Peer, path, fileName string, replyTo int) error
	// Download stores the attachment behind fileID at dst.
	Download(ctx context.Context, fileID, dst string) error
}
