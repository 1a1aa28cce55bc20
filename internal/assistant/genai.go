package assistant

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	DefaultChatModel   = "gemini-3-pro-preview"
	DefaultSpeechModel = "gemini-2.5-flash-preview-tts"
	DefaultVoice       = "Zephyr"
)

type GenAIOptions struct {
	APIKey      string
	ChatModel   string
	SpeechModel string
	Voice       string
}

// GenAI is the Gemini-backed Gateway. The chat session is created on the first
// message and kept for the life of the value.
type GenAI struct {
	client      *genai.Client
	chatModel   string
	speechModel string
	voice       string
	logger      *zap.Logger

	mu   sync.Mutex
	chat *genai.Chat
}

func NewGenAI(ctx context.Context, opts GenAIOptions, logger *zap.Logger) (*GenAI, error) {
	if opts.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if opts.ChatModel == "" {
		opts.ChatModel = DefaultChatModel
	}
	if opts.SpeechModel == "" {
		opts.SpeechModel = DefaultSpeechModel
	}
	if opts.Voice == "" {
		opts.Voice = DefaultVoice
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAI{
		client:      client,
		chatModel:   opts.ChatModel,
		speechModel: opts.SpeechModel,
		voice:       opts.Voice,
		logger:      logger,
	}, nil
}

func (g *GenAI) session(ctx context.Context, c Context) (*genai.Chat, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.chat != nil {
		return g.chat, nil
	}
	chat, err := g.client.Chats.Create(ctx, g.chatModel, &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: c.SystemInstruction()}}},
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("create chat session: %w", err)
	}
	g.logger.Debug("chat session created", zap.String("model", g.chatModel), zap.Int("day", c.Day))
	g.chat = chat
	return chat, nil
}

func (g *GenAI) SendMessage(ctx context.Context, c Context, text string) (Reply, error) {
	chat, err := g.session(ctx, c)
	if err != nil {
		return Reply{}, err
	}
	resp, err := chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return Reply{}, fmt.Errorf("send message: %w", err)
	}
	reply := Reply{Text: resp.Text(), Citations: citations(resp)}
	if reply.Text == "" {
		reply.Text = fallbackReply
	}
	return reply, nil
}

func citations(resp *genai.GenerateContentResponse) []Citation {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var out []Citation
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		title := chunk.Web.Title
		if title == "" {
			title = fallbackSource
		}
		out = append(out, Citation{URI: chunk.Web.URI, Title: title})
	}
	return out
}

func (g *GenAI) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.speechModel, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.voice},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data, nil
		}
	}
	return nil, nil
}
