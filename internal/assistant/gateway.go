package assistant

import (
	"context"
	"errors"
)

const (
	// SampleRate and Channels describe the PCM16 audio SynthesizeSpeech returns.
	SampleRate = 24000
	Channels   = 1

	fallbackReply  = "System malfunction."
	fallbackSource = "Official Source"
	droppedReply   = "Advisor link dropped. Reconnecting..."
)

var ErrNoAPIKey = errors.New("assistant api key not configured")

type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type Reply struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
}

// Gateway talks to the hosted model.
type Gateway interface {
	// SendMessage continues the session. The Context only briefs the first call;
	// later turns reuse the session it created.
	SendMessage(ctx context.Context, c Context, text string) (Reply, error)
	// SynthesizeSpeech returns raw PCM16 audio, or nil when the model sent none.
	SynthesizeSpeech(ctx context.Context, text string) ([]byte, error)
}
