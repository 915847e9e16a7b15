package rustfmt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/playbuild/config"
	"github.com/isdmx/playbuild/logger"
	"github.com/isdmx/playbuild/sandbox"
)

// ExitBadCode is what rustfmt exits with when it cannot parse its input.
const ExitBadCode = 1

// ErrFormatter wraps every failure that is not the caller's fault.
var ErrFormatter = errors.New("rustfmt failure")

// BadCodeError carries rustfmt's parse errors.
type BadCodeError struct {
	Stderr string
}

func (e *BadCodeError) Error() string {
	return "rustfmt could not parse the source"
}

// CommandRunner runs a host command with the given stdin.
type CommandRunner interface {
	RunCommandWithInput(ctx context.Context, args []string, input []byte) (stdout, stderr string, exitCode int, err error)
}

// Formatter runs rustfmt over source text.
type Formatter struct {
	logger    *zap.Logger
	command   []string
	timeout   time.Duration
	cmdRunner CommandRunner
}

// Option defines a functional option for Formatter
type Option func(*Formatter)

// WithCommandRunner sets the CommandRunner used to start rustfmt
func WithCommandRunner(cmdRunner CommandRunner) Option {
	return func(f *Formatter) {
		f.cmdRunner = cmdRunner
	}
}

// NewFormatter creates a Formatter from the format configuration
func NewFormatter(log *zap.Logger, cfg *config.Config, opts ...Option) *Formatter {
	f := &Formatter{
		logger:    log,
		command:   cfg.Format.Command,
		timeout:   cfg.GetFormatTimeout(),
		cmdRunner: sandbox.RealCommandRunner{},
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Format returns code as rustfmt prints it. Unparseable input yields a
// *BadCodeError; anything else that goes wrong wraps ErrFormatter.
func (f *Formatter) Format(ctx context.Context, id, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	stdout, stderr, exitCode, err := f.cmdRunner.RunCommandWithInput(ctx, f.command, []byte(code))
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: timed out after %s", ErrFormatter, f.timeout)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFormatter, err)
	}

	switch exitCode {
	case 0:
		return stdout, nil
	case ExitBadCode:
		return "", &BadCodeError{Stderr: stderr}
	default:
		f.logger.Error("rustfmt failed",
			logger.RequestID(id),
			zap.Int("exit_code", exitCode),
			zap.String("stderr", stderr))
		return "", fmt.Errorf("%w: exit code %d", ErrFormatter, exitCode)
	}
}
