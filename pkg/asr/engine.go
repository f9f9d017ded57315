package asr

import (
	"context"
	"errors"
	"fmt"
)

// ErrEngineUnavailable marks transcription failures caused by missing
// or unreachable ASR resources (binary, model weights).
var ErrEngineUnavailable = errors.New("ASR resources not available")

type Word struct {
	Text  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is a contiguous chunk of transcribed speech. Words is empty
// when word-level timestamps are disabled.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Words []Word  `json:"words,omitempty"`
}

type Transcript struct {
	Engine      string    `json:"engine"`
	Text        string    `json:"text"`
	DurationSec float64   `json:"duration_sec"`
	SampleRate  int       `json:"sample_rate"`
	Segments    []Segment `json:"segments"`
}

// Engine transcribes a normalized mono PCM WAV file. Implementations
// must be safe for use from concurrently running jobs.
type Engine interface {
	Transcribe(ctx context.Context, wavPath string) (*Transcript, error)
}

type Options struct {
	Engine         string
	PythonBin      string
	Model          string
	Language       string
	WordTimestamps bool
}

// New selects the configured engine implementation.
func New(opts Options) (Engine, error) {
	switch opts.Engine {
	case "", "whisper":
		return NewWhisperEngine(opts), nil
	case "stub":
		return &StubEngine{}, nil
	default:
		return nil, fmt.Errorf("unknown asr engine %q", opts.Engine)
	}
}
