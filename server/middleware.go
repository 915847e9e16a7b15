package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/playbuild/admission"
	"github.com/isdmx/playbuild/compile"
	"github.com/isdmx/playbuild/logger"
)

var errInvalidClientIP = errors.New("invalid client address")

type contextKey struct{}

// requestInfo travels with the request context. Handlers set class so the
// admission middleware can start the right window.
type requestInfo struct {
	id       string
	peerIP   string
	peerErr  error
	received time.Time
	class    admission.Class
}

func infoFrom(ctx context.Context) *requestInfo {
	if info, ok := ctx.Value(contextKey{}).(*requestInfo); ok {
		return info
	}
	return &requestInfo{class: admission.ClassFailure}
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &requestInfo{
			id:       uuid.NewString(),
			received: time.Now(),
			class:    admission.ClassFailure,
		}
		info.peerIP, info.peerErr = s.clientIP(r)
		w.Header().Set(HeaderReferenceNumber, info.id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, info)))
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.config.Server.AllowedOrigin)
		h.Set("Access-Control-Expose-Headers", strings.Join(exposedHeaders, ", "))
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, "+HeaderCacheBypass)
			h.Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		info := infoFrom(r.Context())
		s.logger.Info("Request completed",
			logger.RequestID(info.id),
			logger.PeerIP(info.peerIP),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int("bytes", rec.bytes),
			logger.Duration(time.Since(info.received)))
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				info := infoFrom(r.Context())
				s.logger.Error("Handler panicked",
					logger.RequestID(info.id),
					zap.Any("panic", p),
					zap.ByteString("stack", debug.Stack()))
				s.metrics.IncRequest(compile.KindInternal.Status())
				writeError(w, info.id, compile.KindInternal, nil, 0)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withAdmission gates a route on the admission controller and reports the
// outcome class once the handler returns, panics included.
func (s *Server) withAdmission(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := infoFrom(r.Context())
		if info.peerErr != nil {
			s.logger.Info("Rejected request without a usable client address",
				logger.RequestID(info.id), zap.Error(info.peerErr))
			s.metrics.IncRequest(compile.KindInvalidBody.Status())
			writeError(w, info.id, compile.KindInvalidBody, nil, 0)
			return
		}
		if err := s.admission.Admit(info.peerIP); err != nil {
			kind := compile.KindOf(err)
			s.metrics.IncRequest(kind.Status())
			s.writeCompileError(w, info, err)
			return
		}
		defer func() {
			s.admission.Complete(info.peerIP, info.class)
		}()
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the address admission keys the caller by. With a
// forwarding header configured the header is mandatory and its first entry
// must parse as an IP; otherwise the connection's remote host is used.
func (s *Server) clientIP(r *http.Request) (string, error) {
	name := s.config.Server.ClientIPHeader
	if name == "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		return host, nil
	}

	v := r.Header.Get(name)
	if v == "" {
		return "", fmt.Errorf("%w: missing %s header", errInvalidClientIP, name)
	}
	first, _, _ := strings.Cut(v, ",")
	ip := net.ParseIP(strings.TrimSpace(first))
	if ip == nil {
		return "", fmt.Errorf("%w: %s header %q", errInvalidClientIP, name, first)
	}
	return ip.String(), nil
}
