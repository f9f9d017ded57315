package asr

import (
	"context"

	"audio-moderation/pkg/media"
)

// StubEngine is the demo-mode engine: it reports header-derived
// duration and a placeholder transcript without touching any model.
type StubEngine struct{}

func (e *StubEngine) Transcribe(_ context.Context, wavPath string) (*Transcript, error) {
	duration, err := media.WavDuration(wavPath)
	if err != nil {
		return nil, err
	}

	seg := Segment{
		Text:  "(stub) transcription pending",
		Start: 0,
		End:   duration,
	}

	return &Transcript{
		Engine:      "stub",
		Text:        seg.Text,
		DurationSec: duration,
		SampleRate:  16000,
		Segments:    []Segment{seg},
	}, nil
}
