package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"digestbot/internal/session"
	"digestbot/internal/telegram"
	"digestbot/internal/tempfile"
	"digestbot/internal/transcode"
	"digestbot/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type sent struct {
	op      string
	chatID  int64
	text    string
	replyTo int
}

type fakeTransport struct {
	mu      sync.Mutex
	calls   []sent
	nextID  int
	audioAt string

	downloadErr error
	audioErr    error
}

func (f *fakeTransport) add(s sent) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
	f.nextID++
	return f.nextID
}

func (f *fakeTransport) Send(ctx context.Context, to telegram.Peer, text string, replyTo int) (telegram.Ref, error) {
	var chatID int64
	fmt.Sscan(to.Recipient(), &chatID)
	id := f.add(sent{op: "send", chatID: chatID, text: text, replyTo: replyTo})
	return telegram.Ref{ChatID: chatID, MessageID: 1000 + id}, nil
}

func (f *fakeTransport) Edit(ctx context.Context, msg telegram.Ref, text string) error {
	f.add(sent{op: "edit", chatID: msg.ChatID, text: text})
	return nil
}

func (f *fakeTransport) Delete(ctx context.Context, msg telegram.Ref) error {
	f.add(sent{op: "delete", chatID: msg.ChatID})
	return nil
}

func (f *fakeTransport) Forward(ctx context.Context, to telegram.Peer, msg telegram.Ref) error {
	f.add(sent{op: "forward", chatID: msg.ChatID})
	return nil
}

func (f *fakeTransport) SendAudio(ctx context.Context, to telegram.Peer, path, fileName string, replyTo int) error {
	f.add(sent{op: "audio", text: fileName, replyTo: replyTo})
	if _, err := os.Stat(path); err != nil {
		return err
	}
	f.mu.Lock()
	f.audioAt = path
	f.mu.Unlock()
	return f.audioErr
}

func (f *fakeTransport) Download(ctx context.Context, fileID, dst string) error {
	f.add(sent{op: "download", text: fileID})
	if f.downloadErr != nil {
		return f.downloadErr
	}
	return os.WriteFile(dst, []byte("OggS"), 0o600)
}

func (f *fakeTransport) texts(op string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c.text)
		}
	}
	return out
}

func (f *fakeTransport) count(op string) int {
	return len(f.texts(op))
}

type fakeDigester struct {
	mu   sync.Mutex
	msgs []telegram.IncomingMessage
	fn   func(msg telegram.IncomingMessage)
}

func (d *fakeDigester) Process(ctx context.Context, msg telegram.IncomingMessage) error {
	d.mu.Lock()
	d.msgs = append(d.msgs, msg)
	d.mu.Unlock()
	if d.fn != nil {
		d.fn(msg)
	}
	return nil
}

type fakeAuditor struct {
	mu        sync.Mutex
	responses []string
}

func (a *fakeAuditor) Mirror(ctx context.Context, msg telegram.IncomingMessage, response string) {
	a.mu.Lock()
	a.responses = append(a.responses, response)
	a.mu.Unlock()
}

type fakeTranscoder struct {
	err   error
	hangs bool
}

func (t *fakeTranscoder) Convert(ctx context.Context, src string, target transcode.Format) (string, error) {
	if t.hangs {
		<-ctx.Done()
		return "", fmt.Errorf("ffmpeg killed: %w", ctx.Err())
	}
	if t.err != nil {
		return "", t.err
	}
	dst := transcode.OutputPath(src, target)
	return dst, os.WriteFile(dst, []byte("ID3"), 0o600)
}

type harness struct {
	tr       *fakeTransport
	digester *fakeDigester
	auditor  *fakeAuditor
	coder    *fakeTranscoder
	sessions *session.Table
	dir      string
	router   *Router
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	store, err := tempfile.NewStore(dir)
	require.NoError(t, err)

	h := &harness{
		tr:       &fakeTransport{},
		digester: &fakeDigester{},
		auditor:  &fakeAuditor{},
		coder:    &fakeTranscoder{},
		sessions: session.NewTable(time.Hour),
		dir:      dir,
	}
	controller := NewController(h.tr, h.sessions, h.coder, store, h.auditor, transcode.FormatMP3, time.Second)
	h.router = NewRouter(h.tr, controller, h.digester, h.auditor)
	return h
}

func (h *harness) dispatch(msg telegram.IncomingMessage) {
	h.router.Dispatch(context.Background(), msg)
}

func (h *harness) assertNoTempFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

var nextMessageID = 0

func message(kind telegram.Kind) telegram.IncomingMessage {
	nextMessageID++
	return telegram.IncomingMessage{
		ID:     nextMessageID,
		ChatID: 100,
		Sender: telegram.Sender{ID: 7, FirstName: "Ada"},
		Kind:   kind,
	}
}

func command(name string) telegram.IncomingMessage {
	msg := message(telegram.KindCommand)
	msg.Command = name
	msg.Text = "/" + name
	return msg
}

func text(s string) telegram.IncomingMessage {
	msg := message(telegram.KindText)
	msg.Text = s
	return msg
}

func voice() telegram.IncomingMessage {
	msg := message(telegram.KindVoice)
	msg.Attachment = &telegram.Attachment{FileID: "voice-file", UniqueID: "voice-uniq", Size: 4, MIMEType: "audio/ogg"}
	return msg
}

func TestRouter_StatelessRouting(t *testing.T) {
	h := newHarness(t)

	h.dispatch(voice())
	h.dispatch(message(telegram.KindVideoNote))
	h.dispatch(text("hello"))
	require.Len(t, h.digester.msgs, 3)

	h.dispatch(command("start"))
	h.dispatch(command("help"))
	h.dispatch(message(telegram.KindOther))

	assert.Equal(t, []string{startBanner, unknownCommandNotice, unsupportedNotice}, h.tr.texts("send"))
	assert.Equal(t, []string{startBanner, unknownCommandNotice, unsupportedNotice}, h.auditor.responses)
}

func TestRouter_ConvertDialogueHappyPath(t *testing.T) {
	h := newHarness(t)

	h.dispatch(command("convert"))
	require.Len(t, h.tr.texts("send"), 1)
	assert.Contains(t, h.tr.texts("send")[0], "MP3")

	v := voice()
	h.dispatch(v)

	assert.Empty(t, h.digester.msgs, "voice in dialogue must not be summarized")
	assert.Equal(t, []string{fmt.Sprintf("voice_%d.mp3", v.ID)}, h.tr.texts("audio"))
	assert.Equal(t, 1, h.tr.count("delete"), "placeholder removed")
	assert.Equal(t, 0, h.sessions.Len())
	h.assertNoTempFiles(t)

	// the dialogue is over, the next voice note is summarized again
	h.dispatch(voice())
	assert.Len(t, h.digester.msgs, 1)
}

func TestRouter_TextWhileAwaitingIsNotSummarized(t *testing.T) {
	h := newHarness(t)

	h.dispatch(command("convert"))
	h.dispatch(text("what now?"))

	assert.Empty(t, h.digester.msgs)
	sends := h.tr.texts("send")
	require.Len(t, sends, 2)
	assert.Contains(t, sends[1], "still waiting")
	assert.Equal(t, 1, h.sessions.Len())
}

func TestRouter_CommandsWhileAwaitingReprompt(t *testing.T) {
	h := newHarness(t)

	h.dispatch(command("convert"))
	h.dispatch(command("start"))
	h.dispatch(command("convert"))
	h.dispatch(message(telegram.KindVideoNote))

	sends := h.tr.texts("send")
	require.Len(t, sends, 4)
	for _, s := range sends[1:] {
		assert.Contains(t, s, "still waiting")
	}
	assert.NotContains(t, sends, startBanner)
	assert.Empty(t, h.digester.msgs)
}

func TestRouter_Cancel(t *testing.T) {
	h := newHarness(t)

	h.dispatch(command("cancel"))
	h.dispatch(command("convert"))
	h.dispatch(command("cancel"))
	h.dispatch(voice())

	sends := h.tr.texts("send")
	require.Len(t, sends, 3)
	assert.Equal(t, nothingToCancelNotice, sends[0])
	assert.Equal(t, cancelledNotice, sends[2])
	assert.Len(t, h.digester.msgs, 1, "voice after cancel is summarized")
	assert.Zero(t, h.tr.count("audio"))
}

func TestRouter_ConversionEngineMissingEndsSession(t *testing.T) {
	h := newHarness(t)
	h.coder.err = fmt.Errorf("%w: ffmpeg", transcode.ErrEngineNotFound)

	h.dispatch(command("convert"))
	h.dispatch(voice())

	assert.Equal(t, []string{engineMissingNotice}, h.tr.texts("edit"))
	assert.Contains(t, h.auditor.responses, engineMissingNotice)
	assert.Equal(t, 0, h.sessions.Len())
	h.assertNoTempFiles(t)
}

func TestRouter_ConversionFailureReportsCause(t *testing.T) {
	h := newHarness(t)
	h.coder.err = errors.New("ffmpeg failed: invalid data found")

	h.dispatch(command("convert"))
	h.dispatch(voice())

	edits := h.tr.texts("edit")
	require.Len(t, edits, 1)
	assert.True(t, strings.HasPrefix(edits[0], "❌ Conversion failed: "))
	assert.Contains(t, edits[0], "invalid data found")
	assert.Equal(t, 0, h.sessions.Len())
	h.assertNoTempFiles(t)
}

func TestRouter_ConversionSendFailureReleasesFiles(t *testing.T) {
	h := newHarness(t)
	h.tr.audioErr = errors.New("request entity too large")

	h.dispatch(command("convert"))
	h.dispatch(voice())

	assert.Len(t, h.tr.texts("edit"), 1)
	h.assertNoTempFiles(t)
}

func TestRouter_DownloadFailureDuringConversion(t *testing.T) {
	h := newHarness(t)
	h.tr.downloadErr = errors.New("network down")

	h.dispatch(command("convert"))
	h.dispatch(voice())

	edits := h.tr.texts("edit")
	require.Len(t, edits, 1)
	assert.Contains(t, edits[0], "network down")
	h.assertNoTempFiles(t)
}

func TestRouter_DialoguesArePerChat(t *testing.T) {
	h := newHarness(t)

	h.dispatch(command("convert"))

	other := voice()
	other.ChatID = 200
	h.dispatch(other)

	assert.Len(t, h.digester.msgs, 1)
	assert.Equal(t, 1, h.sessions.Len())
}

func TestRouter_RecoversFromPanics(t *testing.T) {
	h := newHarness(t)
	h.digester.fn = func(telegram.IncomingMessage) { panic("boom") }

	assert.NotPanics(t, func() { h.dispatch(text("hi")) })
	assert.Equal(t, []string{worker.FailureNotice}, h.tr.texts("send"))
}

func TestController_NotifyExpired(t *testing.T) {
	h := newHarness(t)
	controller := NewController(h.tr, h.sessions, h.coder, nil, h.auditor, transcode.FormatMP3, 0)

	controller.NotifyExpired(context.Background(), session.Session{ID: "s", Key: session.Key{UserID: 7, ChatID: 100}})

	assert.Equal(t, []string{expiredNotice}, h.tr.texts("send"))
}

func TestRouter_HungConversionIsBounded(t *testing.T) {
	h := newHarness(t)
	h.coder.hangs = true

	h.dispatch(command("convert"))

	done := make(chan struct{})
	go func() {
		h.dispatch(voice())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("conversion was not cut off by the request timeout")
	}

	edits := h.tr.texts("edit")
	require.Len(t, edits, 1)
	assert.Contains(t, edits[0], context.DeadlineExceeded.Error())
	assert.Equal(t, 0, h.sessions.Len())
	h.assertNoTempFiles(t)
}

type stubContext struct {
	tele.Context
	msg *tele.Message
}

func (c stubContext) Message() *tele.Message {
	return c.msg
}

func TestBot_HandleDropsUpdatesAfterDrain(t *testing.T) {
	h := newHarness(t)
	b := &Bot{router: h.router, ctx: context.Background()}

	update := stubContext{msg: &tele.Message{ID: 1, Chat: &tele.Chat{ID: 100}, Sender: &tele.User{ID: 7}, Text: "hello"}}

	require.NoError(t, b.handle(update))
	assert.Len(t, h.digester.msgs, 1)

	b.drain()

	require.NoError(t, b.handle(update))
	assert.Len(t, h.digester.msgs, 1, "update after drain must not be dispatched")
	assert.False(t, b.enter())
}

func TestBot_DrainWaitsForInflightUpdates(t *testing.T) {
	h := newHarness(t)
	b := &Bot{router: h.router, ctx: context.Background()}

	started := make(chan struct{})
	release := make(chan struct{})
	h.digester.fn = func(telegram.IncomingMessage) {
		close(started)
		<-release
	}

	go b.handle(stubContext{msg: &tele.Message{ID: 1, Chat: &tele.Chat{ID: 100}, Sender: &tele.User{ID: 7}, Text: "hello"}})
	<-started

	drained := make(chan struct{})
	go func() {
		b.drain()
		close(drained)
	}()

	select {
	case <-drained:
		t.Fatal("drain returned while an update was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("drain did not return")
	}
}
