package telegram

import (
	"strconv"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"
)

// MaxMessageLength is Telegram's limit for a single text message
const MaxMessageLength = 4096

// TruncationMarker is appended to text cut at MaxMessageLength
const TruncationMarker = "… [truncated]"

// Kind is the payload variant of an inbound message
type Kind int

const (
	KindOther Kind = iota
	KindCommand
	KindVoice
	KindVideoNote
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindVoice:
		return "voice"
	case KindVideoNote:
		return "video_note"
	case KindText:
		return "text"
	default:
		return "other"
	}
}

// Sender identifies who wrote a message
type Sender struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
}

// DisplayName is the best human-readable name for the sender
func (s Sender) DisplayName() string {
	name := strings.TrimSpace(s.FirstName + " " + s.LastName)
	if name != "" {
		return name
	}
	if s.Username != "" {
		return "@" + s.Username
	}
	return strconv.FormatInt(s.ID, 10)
}

// Attachment references a binary blob stored by Telegram
type Attachment struct {
	FileID   string
	UniqueID string
	Size     int64
	Duration int
	MIMEType string
}

// IncomingMessage is the transport-independent view of one update
type IncomingMessage struct {
	ID     int
	ChatID int64
	Sender Sender
	Kind   Kind

	Command    string
	Args       string
	Text       string
	Attachment *Attachment
}

// Ref returns the address of the message itself
func (m IncomingMessage) Ref() Ref {
	return Ref{ChatID: m.ChatID, MessageID: m.ID}
}

// FromTele converts a telebot message into an IncomingMessage
func FromTele(m *tele.Message) IncomingMessage {
	msg := IncomingMessage{ID: m.ID}
	if m.Chat != nil {
		msg.ChatID = m.Chat.ID
	}
	if m.Sender != nil {
		msg.Sender = Sender{
			ID:        m.Sender.ID,
			FirstName: m.Sender.FirstName,
			LastName:  m.Sender.LastName,
			Username:  m.Sender.Username,
		}
	}

	switch {
	case m.Voice != nil:
		msg.Kind = KindVoice
		msg.Attachment = &Attachment{
			FileID:   m.Voice.FileID,
			UniqueID: m.Voice.UniqueID,
			Size:     int64(m.Voice.FileSize),
			Duration: m.Voice.Duration,
			MIMEType: m.Voice.MIME,
		}
	case m.VideoNote != nil:
		msg.Kind = KindVideoNote
		msg.Attachment = &Attachment{
			FileID:   m.VideoNote.FileID,
			UniqueID: m.VideoNote.UniqueID,
			Size:     int64(m.VideoNote.FileSize),
			Duration: m.VideoNote.Duration,
			MIMEType: "video/mp4",
		}
	case strings.HasPrefix(m.Text, "/"):
		msg.Kind = KindCommand
		msg.Command, msg.Args = ParseCommand(m.Text)
		msg.Text = m.Text
	case m.Text != "":
		msg.Kind = KindText
		msg.Text = m.Text
	default:
		msg.Kind = KindOther
		msg.Text = m.Caption
	}

	return msg
}

// ParseCommand splits "/cmd@bot args" into "cmd" and "args"
func ParseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}

	head, args, _ := strings.Cut(text[1:], " ")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	return strings.ToLower(head), strings.TrimSpace(args)
}

// Length counts text the way Telegram does, in UTF-16 code units
func Length(text string) int {
	n := 0
	for _, r := range text {
		n += unitsOf(r)
	}
	return n
}

// Truncate cuts text longer than limit UTF-16 units so that the result,
// including TruncationMarker, fits in limit units. Surrogate pairs are never
// split, so the result may be one unit short of limit. Shorter text is
// returned unchanged.
func Truncate(text string, limit int) string {
	if Length(text) <= limit {
		return text
	}

	budget := limit - Length(TruncationMarker)
	if budget < 0 {
		budget = 0
	}

	used, end := 0, 0
	for end < len(text) {
		r, size := utf8.DecodeRuneInString(text[end:])
		u := unitsOf(r)
		if used+u > budget {
			break
		}
		used += u
		end += size
	}

	return text[:end] + TruncationMarker
}

func unitsOf(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}
