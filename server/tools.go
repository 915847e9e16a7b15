package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/isdmx/playbuild/admission"
	"github.com/isdmx/playbuild/compile"
	"github.com/isdmx/playbuild/logger"
	"github.com/isdmx/playbuild/sandbox"
)

// ClippyRequest is the body of a lint request.
type ClippyRequest struct {
	Code string `json:"code"`
	Fix  bool   `json:"fix"`
}

// ClippyResponse carries the lint output. FixedCode is null unless fixes
// were requested.
type ClippyResponse struct {
	FixedCode *string `json:"fixed_code"`
	Stderr    string  `json:"stderr"`
}

// FormatRequest is the body of a format request.
type FormatRequest struct {
	Code string `json:"code"`
}

// FormatResponse carries rustfmt's output.
type FormatResponse struct {
	FormattedCode string `json:"formatted_code"`
}

func (s *Server) handleClippy(w http.ResponseWriter, r *http.Request) {
	info := infoFrom(r.Context())

	var body ClippyRequest
	if err := s.readJSON(r, &body); err != nil {
		s.logger.Info("Invalid request body", logger.RequestID(info.id), zap.Error(err))
		s.rejectAdmitted(w, info, compile.ErrInvalidRequest)
		return
	}

	vars := mux.Vars(r)
	result, err := s.service.Clippy(r.Context(), compile.ClippyRequest{
		ID:      info.id,
		PeerIP:  info.peerIP,
		Code:    body.Code,
		Version: vars["version"],
		Channel: vars["channel"],
		Fix:     body.Fix,
	})
	if err != nil {
		if errors.Is(err, sandbox.ErrOverloaded) {
			s.admission.TriggerCooldown()
		}
		if compile.KindOf(err) == compile.KindInternal {
			s.logger.Error("Clippy failed", logger.RequestID(info.id), zap.Error(err))
		}
		s.rejectAdmitted(w, info, err)
		return
	}

	info.class = admission.ClassSuccess
	writeJSON(w, http.StatusOK, ClippyResponse{FixedCode: result.FixedCode, Stderr: result.Stderr})
}

func (s *Server) handleFormat(w http.ResponseWriter, r *http.Request) {
	info := infoFrom(r.Context())

	var body FormatRequest
	if err := s.readJSON(r, &body); err != nil {
		s.logger.Info("Invalid request body", logger.RequestID(info.id), zap.Error(err))
		s.rejectAdmitted(w, info, compile.ErrInvalidRequest)
		return
	}

	formatted, err := s.service.Format(r.Context(), info.id, body.Code)
	if err != nil {
		if compile.KindOf(err) == compile.KindInternal {
			s.logger.Error("Format failed", logger.RequestID(info.id), zap.Error(err))
		}
		s.rejectAdmitted(w, info, err)
		return
	}

	info.class = admission.ClassSuccess
	writeJSON(w, http.StatusOK, FormatResponse{FormattedCode: formatted})
}
