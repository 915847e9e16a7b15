package compile

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/isdmx/playbuild/logger"
	"github.com/isdmx/playbuild/sandbox"
	"github.com/isdmx/playbuild/validate"
)

// Exit codes of cargo clippy that still produce a usable report.
const (
	ClippyExitClean    = 0
	ClippyExitWarnings = 101
)

// ClippyRequest is one lint request.
type ClippyRequest struct {
	ID      string
	PeerIP  string
	Code    string
	Version string
	Channel string
	Fix     bool
}

// ClippyResult is the lint report. FixedCode is set only when Fix was
// requested.
type ClippyResult struct {
	FixedCode *string
	Stderr    string
}

// Clippy lints req.Code inside the sandbox, optionally applying the
// suggested fixes. The source is linted as written.
func (s *Service) Clippy(ctx context.Context, req ClippyRequest) (ClippyResult, error) {
	log := s.logger.With(logger.RequestID(req.ID), logger.PeerIP(req.PeerIP))

	if err := s.filter.Validate(req.Code); err != nil {
		log.Info("Rejected source", zap.Error(err))
		return ClippyResult{}, err
	}

	version, channel, err := s.resolver.Resolve(req.Version, req.Channel)
	if err != nil {
		return ClippyResult{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	log = log.With(logger.Version(version.String()), logger.Channel(channel.String()))

	command := slices.Clone(s.clippy)
	if req.Fix {
		command = append(command, "--fix", "--allow-no-vcs")
	}

	out, err := s.runner.Exec(context.WithoutCancel(ctx), sandbox.RunRequest{
		ID:         req.ID,
		Image:      s.resolver.ImageFor(version, channel),
		Command:    command,
		Source:     req.Code,
		ReadSource: req.Fix,
	})
	if err != nil {
		return ClippyResult{}, err
	}

	switch out.ExitCode {
	case ClippyExitClean, ClippyExitWarnings:
	default:
		log.Error("Clippy failed",
			zap.Int("exit_code", out.ExitCode),
			zap.String("stderr", out.Stderr))
		return ClippyResult{}, fmt.Errorf("%w: clippy exited with code %d",
			sandbox.ErrInfrastructure, out.ExitCode)
	}

	result := ClippyResult{Stderr: out.Stderr}
	if req.Fix {
		fixed := out.Source
		result.FixedCode = &fixed
	}
	log.Info("Clippy finished", zap.Int("exit_code", out.ExitCode), zap.Bool("fix", req.Fix))
	return result, nil
}

// Format runs code through rustfmt on the host.
func (s *Service) Format(ctx context.Context, id, code string) (string, error) {
	if err := validate.NonEmpty(code); err != nil {
		return "", err
	}
	return s.formatter.Format(ctx, id, code)
}
