package assistant_test

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sixty/internal/assistant"
	"sixty/internal/curriculum"
	"sixty/internal/domain"
	"sixty/internal/progress"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeGateway struct {
	mu       sync.Mutex
	contexts []assistant.Context
	reply    assistant.Reply
	err      error
	audio    []byte
	release  chan struct{}
	entered  chan struct{}
}

func (f *fakeGateway) SendMessage(ctx context.Context, c assistant.Context, text string) (assistant.Reply, error) {
	f.mu.Lock()
	f.contexts = append(f.contexts, c)
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.reply, f.err
}

func (f *fakeGateway) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	return f.audio, f.err
}

func TestSystemInstruction(t *testing.T) {
	cat := curriculum.Default()
	s := progress.ToggleDayTask(domain.DefaultState(), cat, 1, 1)
	c := assistant.BuildContext(s, cat, 1)

	require.Equal(t, 1, c.Day)
	assert.Equal(t, "Install VS Code: PENDING, Set up Git: DONE, First Hello World: PENDING", c.TaskStatus())

	brief := c.SystemInstruction()
	for _, want := range []string{
		"- Day 1/60",
		"- Module: HTML & CSS",
		"- Topic: Environment Setup",
		"- Goal: Get VS Code, Git, and Chrome ready.",
		"2. Help unblock PENDING tasks.",
		"4. Professional, tactical tone.",
	} {
		assert.Contains(t, brief, want)
	}
}

func TestBuildContextUnknownDay(t *testing.T) {
	c := assistant.BuildContext(domain.DefaultState(), curriculum.Default(), 61)
	assert.Equal(t, 61, c.Day)
	assert.Empty(t, c.Tasks)
}

func TestAskAppendsReply(t *testing.T) {
	gw := &fakeGateway{reply: assistant.Reply{
		Text:      "Use flexbox.",
		Citations: []assistant.Citation{{URI: "https://developer.mozilla.org", Title: "MDN"}},
	}}
	cv := assistant.NewConversation(gw, nil)

	msg, err := cv.Ask(context.Background(), assistant.Context{Day: 3}, "  how do I center a div?  ")
	require.NoError(t, err)
	assert.Equal(t, assistant.RoleModel, msg.Role)
	assert.Equal(t, "Use flexbox.", msg.Text)
	assert.Len(t, msg.Citations, 1)

	msgs := cv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "how do I center a div?", msgs[0].Text)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
	assert.False(t, cv.Pending())
}

func TestAskRejectsBlank(t *testing.T) {
	cv := assistant.NewConversation(&fakeGateway{}, nil)
	_, err := cv.Ask(context.Background(), assistant.Context{}, " \n\t")
	assert.ErrorIs(t, err, assistant.ErrEmptyMessage)
	assert.Empty(t, cv.Messages())
}

func TestAskEmptyReplyFallsBack(t *testing.T) {
	cv := assistant.NewConversation(&fakeGateway{}, nil)
	msg, err := cv.Ask(context.Background(), assistant.Context{}, "hi")
	require.NoError(t, err)
	assert.Equal(t, "System malfunction.", msg.Text)
}

func TestAskGatewayFailureIsRecovered(t *testing.T) {
	cv := assistant.NewConversation(&fakeGateway{err: errors.New("503")}, nil)
	msg, err := cv.Ask(context.Background(), assistant.Context{}, "hi")
	require.NoError(t, err)
	assert.True(t, msg.Dropped)
	assert.Equal(t, "Advisor link dropped. Reconnecting...", msg.Text)
	assert.False(t, cv.Pending())

	// the log stays usable
	_, err = cv.Ask(context.Background(), assistant.Context{}, "again")
	require.NoError(t, err)
	assert.Len(t, cv.Messages(), 4)
}

func TestAskWhilePendingIsBusy(t *testing.T) {
	gw := &fakeGateway{
		reply:   assistant.Reply{Text: "ok"},
		release: make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	cv := assistant.NewConversation(gw, nil)

	done := make(chan error, 1)
	go func() {
		_, err := cv.Ask(context.Background(), assistant.Context{}, "first")
		done <- err
	}()
	<-gw.entered
	require.True(t, cv.Pending())

	_, err := cv.Ask(context.Background(), assistant.Context{}, "second")
	assert.ErrorIs(t, err, assistant.ErrBusy)

	close(gw.release)
	require.NoError(t, <-done)
	msgs := cv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
}

func TestSpeech(t *testing.T) {
	gw := &fakeGateway{reply: assistant.Reply{Text: "hello"}, audio: []byte{1, 0, 2, 0}}
	cv := assistant.NewConversation(gw, nil)
	_, err := cv.Speech(context.Background(), 0)
	assert.ErrorIs(t, err, assistant.ErrNoMessage)

	_, err = cv.Ask(context.Background(), assistant.Context{}, "hi")
	require.NoError(t, err)
	pcm, err := cv.Speech(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 2, 0}, pcm)

	gw.audio = nil
	pcm, err = cv.Speech(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, pcm)
}

func TestEncodeWAV(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	wav := assistant.EncodeWAV(pcm, assistant.SampleRate, assistant.Channels)
	require.Len(t, wav, 44+len(pcm))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24]))
	assert.Equal(t, uint32(24000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(48000), binary.LittleEndian.Uint32(wav[28:32]))
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, pcm, wav[44:])
}

// blockingSink plays until cancelled.
type blockingSink struct {
	started chan int
}

func (b blockingSink) Play(ctx context.Context, pcm []byte) error {
	b.started <- len(pcm)
	<-ctx.Done()
	return nil
}

type instantSink struct{}

func (instantSink) Play(context.Context, []byte) error { return nil }

func TestPlayerSinglePlayback(t *testing.T) {
	sink := blockingSink{started: make(chan int, 2)}
	p := assistant.NewPlayer(sink, nil)

	p.Play(1, []byte{0, 0})
	<-sink.started
	idx, ok := p.Playing()
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	p.Play(3, []byte{0, 0, 0, 0})
	<-sink.started
	idx, ok = p.Playing()
	require.True(t, ok)
	assert.Equal(t, 3, idx)

	// toggling the playing message stops it
	assert.False(t, p.Toggle(3, nil))
	_, ok = p.Playing()
	assert.False(t, ok)
	p.Stop()
}

func TestPlayerFinishes(t *testing.T) {
	p := assistant.NewPlayer(instantSink{}, nil)
	p.Play(0, []byte{0, 0})
	p.Wait()
	require.Eventually(t, func() bool {
		_, ok := p.Playing()
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestCommandSinkRequiresCommand(t *testing.T) {
	err := assistant.CommandSink{}.Play(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no player command"))
}
