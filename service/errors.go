package service

import (
	"errors"
	"fmt"

	"audio-moderation/pkg/asr"
	"audio-moderation/pkg/media"
)

var (
	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("job not found")
	// ErrForbidden is returned when the principal does not own the job.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFinished is returned by export paths for non-SUCCESS jobs.
	ErrNotFinished = errors.New("job not finished")
)

// failureReason maps a pipeline stage error onto the recorded error
// taxonomy: conversion failure, ASR-unavailable, or pipeline fault.
func failureReason(err error) string {
	var convErr *media.ConversionError
	if errors.As(err, &convErr) {
		return fmt.Sprintf("conversion failed: %s", convErr.Error())
	}
	if errors.Is(err, asr.ErrEngineUnavailable) {
		return err.Error()
	}
	return fmt.Sprintf("pipeline fault: %s", err.Error())
}
