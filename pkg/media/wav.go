package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// WavDuration reads the RIFF header of a PCM WAV file and returns its
// duration in seconds.
func WavDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var header [12]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return 0, fmt.Errorf("read wav header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return 0, errors.New("not a RIFF/WAVE file")
	}

	var byteRate uint32
	var dataSize uint32

	for {
		var chunk [8]byte
		if _, err := io.ReadFull(f, chunk[:]); err != nil {
			break
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			var fmtChunk [16]byte
			if _, err := io.ReadFull(f, fmtChunk[:]); err != nil {
				return 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			byteRate = binary.LittleEndian.Uint32(fmtChunk[8:12])
			if size > 16 {
				if _, err := f.Seek(int64(size-16), io.SeekCurrent); err != nil {
					return 0, err
				}
			}
		case "data":
			dataSize = size
		default:
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				return 0, err
			}
		}

		if byteRate != 0 && dataSize != 0 {
			break
		}
		if id == "data" {
			// data payload not needed, skip past it
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				break
			}
		}
	}

	if byteRate == 0 {
		return 0, errors.New("wav fmt chunk missing or zero byte rate")
	}
	return float64(dataSize) / float64(byteRate), nil
}
