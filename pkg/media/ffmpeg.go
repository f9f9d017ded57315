package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"
)

// ConversionError marks input that ffmpeg could not decode. The
// pipeline maps it to a conversion failure on the job record.
type ConversionError struct {
	Input  string
	Detail string
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("failed to convert file %q: %s", filepath.Base(e.Input), e.Detail)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Normalizer converts any supported media file into the canonical
// 16 kHz mono 16-bit PCM WAV the ASR engines consume.
type Normalizer interface {
	Normalize(ctx context.Context, inputPath, outputPath string) error
}

type FFmpegNormalizer struct {
	Bin string
}

func NewFFmpegNormalizer() *FFmpegNormalizer {
	return &FFmpegNormalizer{Bin: "ffmpeg"}
}

func (n *FFmpegNormalizer) Normalize(ctx context.Context, inputPath, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), os.ModePerm); err != nil {
		return err
	}

	args := []string{
		"-y",
		"-i", inputPath,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, n.Bin, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		zerolog.Ctx(ctx).Debug().Str("input", inputPath).Msg(string(output))
		return &ConversionError{
			Input:  inputPath,
			Detail: "ensure it is a valid audio or video file",
			Err:    err,
		}
	}

	return nil
}
