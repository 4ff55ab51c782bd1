// Package proxy implements the Request Pipeline (spec §4.G): the top-level
// HTTP handler composing the classifier, fetcher, rewriter, SSRF guard,
// signer, and cache tier. Grounded on the teacher's StreamHandler.ServeHLS
// composition (internal/handlers/stream.go) and cmd/server/main.go's router
// wiring.
package proxy

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/laurikarhu/hlsproxy/internal/fetch"
	"github.com/laurikarhu/hlsproxy/internal/rewrite"
	"github.com/laurikarhu/hlsproxy/internal/scraper"
	"github.com/laurikarhu/hlsproxy/internal/ssrf"
)

// Kind is the error taxonomy from spec §7.
type Kind int

const (
	Internal Kind = iota
	BadRequest
	Forbidden
	NotFound
	UpstreamStatus
	BadGateway
	Timeout
	Unavailable
)

// Error carries a Kind and a user-facing message; the Pipeline maps it to
// an HTTP status and the `{error: string}` envelope.
type Error struct {
	Kind    Kind
	Status  int // only meaningful for UpstreamStatus, mirrors the origin's code
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// classifyError maps an error returned by the Fetcher, Rewriter, or SSRF
// Guard to a Pipeline Error per spec §7's table, unless it already is one.
func classifyError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	var upstreamErr *fetch.UpstreamError
	if errors.As(err, &upstreamErr) {
		return &Error{Kind: UpstreamStatus, Status: upstreamErr.StatusCode, Message: err.Error()}
	}

	if errors.Is(err, fetch.ErrTimeout) {
		return newError(Timeout, "origin fetch timed out")
	}

	if errors.Is(err, ssrf.ErrForbiddenHost) {
		return newError(Forbidden, "Forbidden host")
	}

	if errors.Is(err, rewrite.ErrEmptyUpstream) {
		return newError(BadGateway, "empty upstream body")
	}

	var uninitErr *scraper.ErrUninitialized
	if errors.As(err, &uninitErr) {
		return newError(Unavailable, "scraper source unavailable")
	}

	return newError(Internal, err.Error())
}

func (k Kind) httpStatus(status int) int {
	switch k {
	case BadRequest:
		return http.StatusBadRequest
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case UpstreamStatus:
		return status
	case BadGateway:
		return http.StatusBadGateway
	case Timeout:
		return http.StatusGatewayTimeout
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes the `{error: string}` envelope from spec §6 at the
// status mapped from err's Kind.
func writeError(w http.ResponseWriter, err error) {
	pe := classifyError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(pe.Kind.httpStatus(pe.Status))
	json.NewEncoder(w).Encode(map[string]string{"error": pe.Message})
}
