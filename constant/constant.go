package constant

import (
	"path/filepath"
	"strings"
)

type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

func (s JobStatus) String() string {
	return string(s)
}

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// CanTransition enforces the one-directional job state machine:
// PENDING -> RUNNING -> {SUCCESS, FAILED}.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusRunning
	case JobStatusRunning:
		return to == JobStatusSuccess || to == JobStatusFailed
	default:
		return false
	}
}

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}

var allowedExtensions = map[string]struct{}{
	".wav": {}, ".mp3": {}, ".m4a": {}, ".aac": {}, ".flac": {},
	".ogg": {}, ".oga": {}, ".opus": {}, ".wma": {}, ".amr": {},
	".aiff": {}, ".aif": {}, ".mp4": {}, ".m4v": {}, ".mov": {},
	".mkv": {}, ".webm": {}, ".avi": {},
}

// AllowedUpload accepts audio/video by MIME prefix or extension allow-list.
// The filename is client-supplied and only ever used for this check.
func AllowedUpload(filename, contentType string) bool {
	if strings.HasPrefix(contentType, "audio/") || strings.HasPrefix(contentType, "video/") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	_, ok := allowedExtensions[ext]
	return ok
}
