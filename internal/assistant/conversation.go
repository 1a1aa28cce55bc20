package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a reply is already pending")
	ErrNoMessage    = errors.New("no such message")
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Message struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
	// Dropped marks the placeholder appended when the gateway failed.
	Dropped bool `json:"dropped,omitempty"`
}

// Conversation is the in-memory chat log for one activation. Nothing here is persisted.
type Conversation struct {
	Gateway Gateway
	Logger  *zap.Logger

	mu       sync.Mutex
	messages []Message
	pending  bool
}

func NewConversation(gw Gateway, logger *zap.Logger) *Conversation {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conversation{Gateway: gw, Logger: logger}
}

// Ask records text, forwards it with c and appends the reply. Only one request may
// be in flight; a second one fails with ErrBusy instead of queueing. A gateway
// failure is absorbed into a placeholder reply.
func (cv *Conversation) Ask(ctx context.Context, c Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	cv.mu.Lock()
	if cv.pending {
		cv.mu.Unlock()
		return Message{}, ErrBusy
	}
	cv.pending = true
	cv.messages = append(cv.messages, Message{ID: uuid.NewString(), Role: RoleUser, Text: text})
	cv.mu.Unlock()

	reply, err := cv.Gateway.SendMessage(ctx, c, text)
	msg := Message{ID: uuid.NewString(), Role: RoleModel, Text: reply.Text, Citations: reply.Citations}
	if err != nil {
		cv.Logger.Warn("advisor request failed", zap.Int("day", c.Day), zap.Error(err))
		msg = Message{ID: msg.ID, Role: RoleModel, Text: droppedReply, Dropped: true}
	} else if msg.Text == "" {
		msg.Text = fallbackReply
	}

	cv.mu.Lock()
	defer cv.mu.Unlock()
	cv.messages = append(cv.messages, msg)
	cv.pending = false
	return msg, nil
}

// Pending reports whether a reply is outstanding.
func (cv *Conversation) Pending() bool {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.pending
}

func (cv *Conversation) Messages() []Message {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	out := make([]Message, len(cv.messages))
	copy(out, cv.messages)
	return out
}

func (cv *Conversation) Message(index int) (Message, error) {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	if index < 0 || index >= len(cv.messages) {
		return Message{}, ErrNoMessage
	}
	return cv.messages[index], nil
}

// Speech synthesizes the text of message index. A reply without audio yields nil, nil.
func (cv *Conversation) Speech(ctx context.Context, index int) ([]byte, error) {
	msg, err := cv.Message(index)
	if err != nil {
		return nil, err
	}
	pcm, err := cv.Gateway.SynthesizeSpeech(ctx, msg.Text)
	if err != nil {
		cv.Logger.Error("audio generation failed", zap.Int("message", index), zap.Error(err))
		return nil, err
	}
	if len(pcm) == 0 {
		cv.Logger.Debug("no audio returned", zap.Int("message", index))
		return nil, nil
	}
	return pcm, nil
}
