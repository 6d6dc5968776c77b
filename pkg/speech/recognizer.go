package speech

import (
	"bytes"
	"context"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// Recognizer transcribes one finished recording.
type Recognizer interface {
	Transcribe(ctx context.Context, rec *Recording) (string, error)
}

// Source produces recordings from whatever capture backend is available.
// Start begins capturing; Stop returns the finished recording. The UI holds
// exactly one capture open at a time.
type Source interface {
	Start() error
	Stop() (*Recording, error)
}

// TranscriptionClient recognizes speech through the audio transcription API
// of an OpenAI-compatible server.
type TranscriptionClient struct {
	api   *openai.Client
	model string
}

var _ Recognizer = &TranscriptionClient{}

func NewTranscriptionClient(baseURL, apiKey, model string) *TranscriptionClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &TranscriptionClient{api: openai.NewClientWithConfig(cfg), model: model}
}

func (t *TranscriptionClient) Transcribe(ctx context.Context, rec *Recording) (string, error) {
	if rec == nil || rec.Empty() {
		return "", errors.New("speech: empty recording")
	}
	resp, err := t.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		Reader:   bytes.NewReader(rec.WAV()),
		FilePath: "push-to-talk.wav",
		Language: "ja",
	})
	if err != nil {
		return "", errors.Wrap(err, "transcription")
	}
	return strings.TrimSpace(resp.Text), nil
}
