package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/isdmx/playbuild/admission"
	"github.com/isdmx/playbuild/compile"
	"github.com/isdmx/playbuild/rustfmt"
	"github.com/isdmx/playbuild/sandbox"
	"github.com/isdmx/playbuild/validate"
)

// ErrorResponse is the JSON body of every rejected request.
type ErrorResponse struct {
	Kind      compile.Kind `json:"kind"`
	TimeLeft  int          `json:"time_left,omitempty"`
	Word      string       `json:"word,omitempty"`
	Stdout    *string      `json:"stdout,omitempty"`
	Stderr    *string      `json:"stderr,omitempty"`
	Reference string       `json:"reference,omitempty"`
}

var statusByKind = map[compile.Kind]int{
	compile.KindRateLimit:           http.StatusTooManyRequests,
	compile.KindActiveRequestExists: http.StatusTooManyRequests,
	compile.KindInvalidBody:         http.StatusBadRequest,
	compile.KindDisallowedWord:      http.StatusBadRequest,
	compile.KindBuildFailed:         http.StatusBadRequest,
	compile.KindBadCode:             http.StatusBadRequest,
	compile.KindOverloaded:          http.StatusServiceUnavailable,
	compile.KindInternal:            http.StatusInternalServerError,
}

// writeCompileError maps an admission or compile error to its response.
// Internal details never reach the client.
func (s *Server) writeCompileError(w http.ResponseWriter, info *requestInfo, err error) {
	kind := compile.KindOf(err)
	resp := &ErrorResponse{Kind: kind}
	retryAfter := 0

	var (
		limited    *admission.RateLimitedError
		cooling    *admission.CoolingDownError
		disallowed *validate.DisallowedConstructError
		failed     *sandbox.BuildFailedError
		badCode    *rustfmt.BadCodeError
	)
	switch {
	case errors.As(err, &limited):
		resp.TimeLeft = admission.Seconds(limited.RetryAfter)
		retryAfter = resp.TimeLeft
	case errors.As(err, &cooling):
		retryAfter = admission.Seconds(cooling.RetryAfter)
	case errors.Is(err, sandbox.ErrOverloaded):
		retryAfter = admission.Seconds(s.config.RateLimit.OverloadCooldown)
	case errors.As(err, &disallowed):
		resp.Word = disallowed.Construct
	case errors.As(err, &failed):
		resp.Stdout = &failed.Stdout
		resp.Stderr = &failed.Stderr
	case errors.As(err, &badCode):
		resp.Stderr = &badCode.Stderr
	}
	writeError(w, info.id, kind, resp, retryAfter)
}

func writeError(w http.ResponseWriter, reference string, kind compile.Kind, resp *ErrorResponse, retryAfter int) {
	if resp == nil {
		resp = &ErrorResponse{Kind: kind}
	}
	if kind == compile.KindInternal {
		resp.Reference = reference
	}
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
