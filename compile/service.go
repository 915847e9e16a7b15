package compile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/playbuild/artifact"
	"github.com/isdmx/playbuild/cache"
	"github.com/isdmx/playbuild/config"
	"github.com/isdmx/playbuild/logger"
	"github.com/isdmx/playbuild/metrics"
	"github.com/isdmx/playbuild/rustfmt"
	"github.com/isdmx/playbuild/sandbox"
	"github.com/isdmx/playbuild/toolchain"
	"github.com/isdmx/playbuild/validate"
)

// Cache status values reported to clients.
const (
	CacheHit    = "HIT"
	CacheMiss   = "MISS"
	CacheBypass = "BYPASS"
)

// Cache is the subset of cache.Store the service needs.
type Cache interface {
	Lookup(key cache.Key) (cache.Entry, bool, error)
	Insert(key cache.Key, entry cache.Entry)
}

// Request is one build request.
type Request struct {
	ID     string
	PeerIP string
	Code   string
	// Version and Channel may be empty to use the configured defaults.
	Version     string
	Channel     string
	ReceivedAt  time.Time
	BypassCache bool
}

// Result is a compressed, packaged build.
type Result struct {
	Body        []byte
	WasmLength  uint64
	JSLength    uint64
	CacheStatus string
	Version     toolchain.Version
	Channel     toolchain.Channel
}

// Service compiles requests.
type Service struct {
	logger    *zap.Logger
	filter    *validate.Filter
	resolver  *toolchain.Resolver
	cache     Cache
	runner    sandbox.Runner
	metrics   metrics.Recorder
	formatter Formatter
	command   []string
	clippy    []string
}

// Formatter formats source outside the sandbox.
type Formatter interface {
	Format(ctx context.Context, id, code string) (string, error)
}

// ServiceOption defines a functional option for Service
type ServiceOption func(*Service)

// WithFormatter replaces the host rustfmt formatter
func WithFormatter(f Formatter) ServiceOption {
	return func(s *Service) {
		s.formatter = f
	}
}

// NewService wires the pipeline stages together.
func NewService(
	log *zap.Logger,
	cfg *config.Config,
	filter *validate.Filter,
	resolver *toolchain.Resolver,
	store Cache,
	runner sandbox.Runner,
	rec metrics.Recorder,
	opts ...ServiceOption,
) *Service {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	s := &Service{
		logger:   log,
		filter:   filter,
		resolver: resolver,
		cache:    store,
		runner:   runner,
		metrics:  rec,
		command:  cfg.Sandbox.BuildCommand,
		clippy:   cfg.Sandbox.ClippyCommand,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.formatter == nil {
		s.formatter = rustfmt.NewFormatter(log, cfg)
	}
	return s
}

// Resolver exposes the version resolver, e.g. for health checks.
func (s *Service) Resolver() *toolchain.Resolver {
	return s.resolver
}

// Runner exposes the sandbox runner, e.g. for health checks.
func (s *Service) Runner() sandbox.Runner {
	return s.runner
}

// Compile validates, builds and packages req.Code. A cache hit returns
// without touching the sandbox. The build ignores ctx cancellation and is
// bounded only by the sandbox timeout.
//
//nolint:funlen // one linear pipeline
func (s *Service) Compile(ctx context.Context, req Request) (Result, error) {
	log := s.logger.With(logger.RequestID(req.ID), logger.PeerIP(req.PeerIP))

	if err := s.filter.Validate(req.Code); err != nil {
		log.Info("Rejected source", zap.Error(err))
		return Result{}, err
	}

	version, channel, err := s.resolver.Resolve(req.Version, req.Channel)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	log = log.With(logger.Version(version.String()), logger.Channel(channel.String()))
	s.metrics.IncRequestOptions(version.String(), channel.String())

	// The key covers exactly what the sandbox builds.
	source := toolchain.AdaptSource(req.Code, version)
	key, keyErr := cache.KeyFor(source, version, channel)
	cacheable := keyErr == nil
	if !cacheable {
		log.Debug("Source not cacheable", zap.Error(keyErr))
	} else {
		log = log.With(logger.CacheKey(key.String()))
	}

	status := CacheMiss
	switch {
	case req.BypassCache:
		status = CacheBypass
		s.metrics.IncCacheLookup(metrics.CacheBypass)
	case cacheable:
		entry, ok, err := s.cache.Lookup(key)
		if err != nil {
			log.Warn("Cache lookup failed", zap.Error(err))
		}
		if ok {
			s.metrics.IncCacheLookup(metrics.CacheHit)
			log.Info("Cache hit")
			return Result{
				Body:        entry.Body,
				WasmLength:  entry.WasmLength,
				JSLength:    entry.JSLength,
				CacheStatus: CacheHit,
				Version:     version,
				Channel:     channel,
			}, nil
		}
		s.metrics.IncCacheLookup(metrics.CacheMiss)
	default:
		s.metrics.IncCacheLookup(metrics.CacheMiss)
	}

	out, err := s.runner.Run(context.WithoutCancel(ctx), sandbox.RunRequest{
		ID:      req.ID,
		Image:   s.resolver.ImageFor(version, channel),
		Command: s.command,
		Source:  source,
	})
	if err != nil {
		return Result{}, err
	}

	packaged := artifact.Package(out.Wasm, artifact.ProcessJS(out.JS), []byte(out.Stderr))
	body, err := artifact.Compress(packaged.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to compress artifact: %w", err)
	}

	entry := cache.Entry{
		WasmLength: uint64(packaged.WasmLength),
		JSLength:   uint64(packaged.JSLength),
		Body:       body,
	}
	if cacheable {
		s.cache.Insert(key, entry)
	}

	log.Info("Build succeeded",
		logger.CacheStatus(status),
		zap.Int("size", len(body)))

	return Result{
		Body:        body,
		WasmLength:  entry.WasmLength,
		JSLength:    entry.JSLength,
		CacheStatus: status,
		Version:     version,
		Channel:     channel,
	}, nil
}
