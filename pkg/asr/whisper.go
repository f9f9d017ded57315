package asr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"audio-moderation/pkg/media"
)

// WhisperEngine invokes OpenAI Whisper as an external process
// (`python -m whisper`) and parses its JSON output.
type WhisperEngine struct {
	pythonBin      string
	model          string
	language       string
	wordTimestamps bool

	// one transcription at a time; the model is memory-hungry and the
	// external process is not reentrant per output directory
	mu sync.Mutex
}

func NewWhisperEngine(opts Options) *WhisperEngine {
	bin := opts.PythonBin
	if bin == "" {
		bin = "python"
	}
	model := opts.Model
	if model == "" {
		model = "base.en"
	}
	return &WhisperEngine{
		pythonBin:      bin,
		model:          model,
		language:       opts.Language,
		wordTimestamps: opts.WordTimestamps,
	}
}

// whisperOutput matches Whisper's JSON output file.
type whisperOutput struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []struct {
			Word  string  `json:"word"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"words"`
	} `json:"segments"`
}

func (e *WhisperEngine) Transcribe(ctx context.Context, wavPath string) (*Transcript, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sampleRate, headerDuration := wavHeaderInfo(wavPath)

	outDir, err := os.MkdirTemp("", "whisper-out-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(outDir)

	absPath, err := filepath.Abs(wavPath)
	if err != nil {
		return nil, err
	}

	args := []string{
		"-m", "whisper",
		absPath,
		"--model", e.model,
		"--output_dir", outDir,
		"--output_format", "json",
		"--fp16", "False",
	}
	if e.language != "" {
		args = append(args, "--language", e.language)
	}
	if e.wordTimestamps {
		args = append(args, "--word_timestamps", "True")
	}

	output, err := runCommand(ctx, e.pythonBin, args...)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("wav", wavPath).Msg("whisper invocation failed")
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	zerolog.Ctx(ctx).Debug().Msg(strings.TrimSpace(string(output)))

	base := strings.TrimSuffix(filepath.Base(wavPath), filepath.Ext(wavPath))
	raw, err := os.ReadFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return nil, fmt.Errorf("%w: read whisper output: %v", ErrEngineUnavailable, err)
	}

	var out whisperOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse whisper output: %w", err)
	}

	segments := make([]Segment, 0, len(out.Segments))
	lastEnd := 0.0
	for _, s := range out.Segments {
		seg := Segment{
			Text:  strings.TrimSpace(s.Text),
			Start: s.Start,
			End:   s.End,
		}
		if seg.End > lastEnd {
			lastEnd = seg.End
		}
		for _, w := range s.Words {
			seg.Words = append(seg.Words, Word{Text: w.Word, Start: w.Start, End: w.End})
		}
		segments = append(segments, seg)
	}

	duration := headerDuration
	if lastEnd > duration {
		duration = lastEnd
	}

	return &Transcript{
		Engine:      "whisper",
		Text:        strings.TrimSpace(out.Text),
		DurationSec: duration,
		SampleRate:  sampleRate,
		Segments:    segments,
	}, nil
}

// wavHeaderInfo is best-effort; the transcript still works without it.
func wavHeaderInfo(wavPath string) (int, float64) {
	duration, err := media.WavDuration(wavPath)
	if err != nil {
		return 0, 0
	}
	return 16000, duration
}
