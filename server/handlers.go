package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/isdmx/playbuild/admission"
	"github.com/isdmx/playbuild/compile"
	"github.com/isdmx/playbuild/logger"
	"github.com/isdmx/playbuild/metrics"
	"github.com/isdmx/playbuild/sandbox"
)

// CompileRequest is the JSON form of a compile request body.
type CompileRequest struct {
	Code    string `json:"code"`
	Version string `json:"version,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// HealthResponse reports whether an image is ready to build.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Channel string `json:"channel"`
	Image   string `json:"image"`
}

var errInvalidBody = errors.New("unreadable request body")

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	info := infoFrom(r.Context())

	req, err := s.readCompileRequest(r)
	if err != nil {
		s.logger.Info("Invalid request body", logger.RequestID(info.id), zap.Error(err))
		s.finishError(w, info, compile.ErrInvalidRequest)
		return
	}
	req.ID = info.id
	req.PeerIP = info.peerIP
	req.ReceivedAt = info.received
	req.BypassCache = s.bypassRequested(r)

	result, err := s.service.Compile(r.Context(), req)
	if err != nil {
		if errors.Is(err, sandbox.ErrOverloaded) {
			s.admission.TriggerCooldown()
		}
		if compile.KindOf(err) == compile.KindInternal {
			s.logger.Error("Compile failed", logger.RequestID(info.id), zap.Error(err))
		}
		s.finishError(w, info, err)
		return
	}

	info.class = admission.ClassSuccess
	s.metrics.IncRequest(metrics.StatusSuccess)
	s.metrics.ObserveRequestDuration(time.Since(info.received))

	h := w.Header()
	h.Set("Content-Type", "application/wasm")
	h.Set("Content-Encoding", "gzip")
	h.Set("Content-Length", strconv.Itoa(len(result.Body)))
	h.Set(HeaderWasmLength, strconv.FormatUint(result.WasmLength, 10))
	h.Set(HeaderJSLength, strconv.FormatUint(result.JSLength, 10))
	h.Set(HeaderCacheStatus, result.CacheStatus)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Body)
}

func (s *Server) finishError(w http.ResponseWriter, info *requestInfo, err error) {
	s.metrics.IncRequest(compile.KindOf(err).Status())
	s.rejectAdmitted(w, info, err)
}

// rejectAdmitted settles the admission window for err and writes the error
// response.
func (s *Server) rejectAdmitted(w http.ResponseWriter, info *requestInfo, err error) {
	info.class = compile.KindOf(err).Class()
	s.writeCompileError(w, info, err)
}

// readCompileRequest accepts raw source, or a JSON envelope when the content
// type says so. Path variables override body fields.
func (s *Server) readCompileRequest(r *http.Request) (compile.Request, error) {
	data, err := s.readBody(r)
	if err != nil {
		return compile.Request{}, err
	}

	var req compile.Request
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body CompileRequest
		if err := json.Unmarshal(data, &body); err != nil {
			return compile.Request{}, errors.Join(errInvalidBody, err)
		}
		req.Code, req.Version, req.Channel = body.Code, body.Version, body.Channel
	} else {
		req.Code = string(data)
	}

	vars := mux.Vars(r)
	if v := vars["version"]; v != "" {
		req.Version = v
	}
	if c := vars["channel"]; c != "" {
		req.Channel = c
	}
	return req, nil
}

func (s *Server) readBody(r *http.Request) ([]byte, error) {
	limit := int64(s.config.Server.MaxBodyKB) * 1024
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, errors.Join(errInvalidBody, err)
	}
	if int64(len(data)) > limit {
		return nil, errors.Join(errInvalidBody, errors.New("body too large"))
	}
	return data, nil
}

// readJSON decodes a size-limited JSON body into v.
func (s *Server) readJSON(r *http.Request, v any) error {
	data, err := s.readBody(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Join(errInvalidBody, err)
	}
	return nil
}

func (s *Server) bypassRequested(r *http.Request) bool {
	token := s.config.Cache.BypassToken
	presented := r.Header.Get(HeaderCacheBypass)
	if token == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(presented)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := infoFrom(r.Context())
	vars := mux.Vars(r)

	resolver := s.service.Resolver()
	version, channel, err := resolver.Resolve(vars["version"], vars["channel"])
	if err != nil {
		writeError(w, info.id, compile.KindInvalidBody, nil, 0)
		return
	}

	image := resolver.ImageFor(version, channel)
	resp := HealthResponse{Status: "ok", Version: version.String(), Channel: channel.String(), Image: image}
	ok, err := s.service.Runner().ImageAvailable(r.Context(), image)
	if err != nil {
		s.logger.Error("Health check failed", logger.RequestID(info.id), zap.String("image", image), zap.Error(err))
		writeError(w, info.id, compile.KindInternal, nil, 0)
		return
	}
	if !ok {
		resp.Status = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUnknown answers unrouted requests and starts the invalid window for
// the caller.
func (s *Server) handleUnknown(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := infoFrom(r.Context())
		if info.peerErr == nil {
			s.admission.Penalize(info.peerIP)
		}
		w.WriteHeader(status)
	}
}
