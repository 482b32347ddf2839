package stt

import (
	"io"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of an upstream error body is kept.
const maxErrorBody = 2048

// NewUpstreamError builds an [UpstreamError] from a non-success HTTP response,
// reading at most a few kilobytes of its body. The caller still owns and must
// close resp.Body.
func NewUpstreamError(provider string, resp *http.Response) *UpstreamError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &UpstreamError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(data)),
	}
}
