package telegram

import (
	"strings"
	"testing"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestFromTele(t *testing.T) {
	chat := &tele.Chat{ID: 100}
	sender := &tele.User{ID: 7, FirstName: "Ada", LastName: "Lovelace", Username: "ada"}

	tests := []struct {
		name string
		msg  *tele.Message
		kind Kind
		test func(t *testing.T, m IncomingMessage)
	}{
		{
			name: "voice",
			msg: &tele.Message{ID: 1, Chat: chat, Sender: sender, Voice: &tele.Voice{
				File:     tele.File{FileID: "f1", UniqueID: "u1", FileSize: 2048},
				Duration: 12,
				MIME:     "audio/ogg",
			}},
			kind: KindVoice,
			test: func(t *testing.T, m IncomingMessage) {
				assert.Equal(t, &Attachment{FileID: "f1", UniqueID: "u1", Size: 2048, Duration: 12, MIMEType: "audio/ogg"}, m.Attachment)
			},
		},
		{
			name: "video note",
			msg: &tele.Message{ID: 2, Chat: chat, Sender: sender, VideoNote: &tele.VideoNote{
				File:     tele.File{FileID: "f2", UniqueID: "u2"},
				Duration: 5,
			}},
			kind: KindVideoNote,
			test: func(t *testing.T, m IncomingMessage) {
				assert.Equal(t, "f2", m.Attachment.FileID)
				assert.Equal(t, "video/mp4", m.Attachment.MIMEType)
			},
		},
		{
			name: "command with bot suffix",
			msg:  &tele.Message{ID: 3, Chat: chat, Sender: sender, Text: "/Convert@digest_bot now"},
			kind: KindCommand,
			test: func(t *testing.T, m IncomingMessage) {
				assert.Equal(t, "convert", m.Command)
				assert.Equal(t, "now", m.Args)
			},
		},
		{
			name: "text",
			msg:  &tele.Message{ID: 4, Chat: chat, Sender: sender, Text: "hello"},
			kind: KindText,
			test: func(t *testing.T, m IncomingMessage) {
				assert.Equal(t, "hello", m.Text)
				assert.Nil(t, m.Attachment)
			},
		},
		{
			name: "photo",
			msg:  &tele.Message{ID: 5, Chat: chat, Sender: sender, Photo: &tele.Photo{}, Caption: "look"},
			kind: KindOther,
			test: func(t *testing.T, m IncomingMessage) {
				assert.Equal(t, "look", m.Text)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := FromTele(tt.msg)
			assert.Equal(t, tt.kind, m.Kind)
			assert.Equal(t, tt.msg.ID, m.ID)
			assert.Equal(t, int64(100), m.ChatID)
			assert.Equal(t, int64(7), m.Sender.ID)
			assert.Equal(t, Ref{ChatID: 100, MessageID: tt.msg.ID}, m.Ref())
			tt.test(t, m)
		})
	}
}

func TestSender_DisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", Sender{ID: 1, FirstName: "Ada", LastName: "Lovelace"}.DisplayName())
	assert.Equal(t, "Ada", Sender{ID: 1, FirstName: "Ada"}.DisplayName())
	assert.Equal(t, "@ada", Sender{ID: 1, Username: "ada"}.DisplayName())
	assert.Equal(t, "42", Sender{ID: 42}.DisplayName())
}

func TestParseCommand(t *testing.T) {
	cmd, args := ParseCommand("/start")
	assert.Equal(t, "start", cmd)
	assert.Empty(t, args)

	cmd, args = ParseCommand("hello")
	assert.Empty(t, cmd)
	assert.Equal(t, "hello", args)
}

func TestLength_CountsUTF16Units(t *testing.T) {
	assert.Equal(t, 0, Length(""))
	assert.Equal(t, 3, Length("abc"))
	assert.Equal(t, 3, Length("яяя"))
	assert.Equal(t, 2, Length("📄"))
	assert.Equal(t, 3, Length("🖼️"))
	assert.Equal(t, len(utf16.Encode([]rune(TruncationMarker))), Length(TruncationMarker))
}

func TestTruncate(t *testing.T) {
	atLimit := strings.Repeat("я", MaxMessageLength)
	assert.Equal(t, atLimit, Truncate(atLimit, MaxMessageLength))

	short := "short text"
	assert.Equal(t, short, Truncate(short, MaxMessageLength))

	over := strings.Repeat("я", MaxMessageLength+1)
	cut := Truncate(over, MaxMessageLength)
	assert.Equal(t, MaxMessageLength, Length(cut))
	assert.True(t, strings.HasSuffix(cut, TruncationMarker))
	assert.True(t, strings.HasPrefix(cut, "яяя"))
}

func TestTruncate_EmojiHeadersFitTelegramLimit(t *testing.T) {
	text := "📄 Transcript:\n" + strings.Repeat("a", 3000) + "\n\n🖼️ Visuals:\n" + strings.Repeat("b", 2000)

	cut := Truncate(text, MaxMessageLength)

	assert.LessOrEqual(t, Length(cut), MaxMessageLength)
	assert.True(t, strings.HasSuffix(cut, TruncationMarker))
	assert.True(t, strings.HasPrefix(cut, "📄 Transcript:\n"))
}

func TestTruncate_EmojiAtLimitPassesThrough(t *testing.T) {
	text := strings.Repeat("📌", MaxMessageLength/2)
	require.Equal(t, MaxMessageLength, Length(text))

	assert.Equal(t, text, Truncate(text, MaxMessageLength))
}

func TestTruncate_NeverSplitsSurrogatePairs(t *testing.T) {
	// the budget left after "xy" is odd, so the last pair is dropped whole
	text := "xy" + strings.Repeat("📌", MaxMessageLength)

	cut := Truncate(text, MaxMessageLength)

	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, MaxMessageLength-1, Length(cut))
	body := strings.TrimSuffix(cut, TruncationMarker)
	assert.Equal(t, "xy", body[:2])
	assert.Empty(t, strings.ReplaceAll(body[2:], "📌", ""))
}

func TestPeerAndRef(t *testing.T) {
	assert.Equal(t, "-100123", ChatPeer(-100123).Recipient())
	assert.Equal(t, "@audit", Peer("@audit").Recipient())

	id, chat := Ref{ChatID: 5, MessageID: 9}.MessageSig()
	assert.Equal(t, "9", id)
	assert.Equal(t, int64(5), chat)
}
