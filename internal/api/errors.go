package api

import (
	"errors"
	"net/http"

	"github.com/MrWong99/phrasecoach/internal/continuation"
	"github.com/MrWong99/phrasecoach/internal/resilience"
	"github.com/MrWong99/phrasecoach/internal/turn"
	"github.com/MrWong99/phrasecoach/pkg/provider/stt"
)

// Error codes carried by 500 responses.
const (
	CodeUpstream             = "upstream_error"
	CodeGenerationSchema     = "generation_schema"
	CodeGenerationIncomplete = "generation_incomplete"
	CodeInternal             = "internal"
)

// Messages of the fixed error responses.
const (
	msgNoSpeech = "No transcription results"
	msgInternal = "Internal Server Error"
)

// ValidationError is a request the boundary rejected before evaluation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// classify maps an error to its HTTP status and response body.
func classify(err error) (int, ErrorResponse) {
	var (
		verr     *ValidationError
		turnVerr *turn.ValidationError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrorResponse{Error: verr.Message}
	case errors.As(err, &turnVerr):
		return http.StatusBadRequest, ErrorResponse{Error: turnVerr.Message}
	case errors.Is(err, turn.ErrNoSpeech):
		return http.StatusBadRequest, ErrorResponse{Error: msgNoSpeech}
	}
	return http.StatusInternalServerError, ErrorResponse{
		Error:   msgInternal,
		Details: err.Error(),
		Code:    Code(err),
	}
}

// Code returns the short code identifying the class of a pipeline failure.
func Code(err error) string {
	var upstream *stt.UpstreamError
	switch {
	case errors.Is(err, continuation.ErrIncomplete):
		return CodeGenerationIncomplete
	case errors.Is(err, continuation.ErrSchema), errors.Is(err, continuation.ErrNoJSON):
		return CodeGenerationSchema
	case errors.As(err, &upstream), errors.Is(err, resilience.ErrAllFailed):
		return CodeUpstream
	}
	return CodeInternal
}
