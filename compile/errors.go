package compile

import (
	"errors"

	"github.com/isdmx/playbuild/admission"
	"github.com/isdmx/playbuild/metrics"
	"github.com/isdmx/playbuild/rustfmt"
	"github.com/isdmx/playbuild/sandbox"
	"github.com/isdmx/playbuild/validate"
)

// ErrInvalidRequest wraps request fields that cannot be parsed, such as an
// unknown version or channel.
var ErrInvalidRequest = errors.New("invalid request")

// Kind is the client-facing error discriminator.
type Kind string

const (
	KindRateLimit           Kind = "RateLimit"
	KindActiveRequestExists Kind = "ActiveRequestExists"
	KindInvalidBody         Kind = "InvalidBody"
	KindDisallowedWord      Kind = "DisallowedWord"
	KindBuildFailed         Kind = "BuildFailed"
	KindBadCode             Kind = "BadCode"
	KindOverloaded          Kind = "Overloaded"
	KindInternal            Kind = "Internal"
)

// KindOf classifies an error from admission or Compile. Anything
// unrecognised is Internal.
func KindOf(err error) Kind {
	var (
		limited    *admission.RateLimitedError
		cooling    *admission.CoolingDownError
		disallowed *validate.DisallowedConstructError
		failed     *sandbox.BuildFailedError
		badCode    *rustfmt.BadCodeError
	)
	switch {
	case errors.As(err, &limited):
		return KindRateLimit
	case errors.Is(err, admission.ErrAlreadyActive):
		return KindActiveRequestExists
	case errors.As(err, &cooling), errors.Is(err, sandbox.ErrOverloaded):
		return KindOverloaded
	case errors.Is(err, validate.ErrEmptyBody), errors.Is(err, ErrInvalidRequest):
		return KindInvalidBody
	case errors.As(err, &disallowed):
		return KindDisallowedWord
	case errors.As(err, &failed):
		return KindBuildFailed
	case errors.As(err, &badCode):
		return KindBadCode
	default:
		return KindInternal
	}
}

// Class returns the admission window class a request ending in this kind earns.
func (k Kind) Class() admission.Class {
	switch k {
	case KindInvalidBody, KindDisallowedWord:
		return admission.ClassInvalid
	default:
		return admission.ClassFailure
	}
}

// Status returns the metrics label for the kind.
func (k Kind) Status() string {
	switch k {
	case KindRateLimit:
		return metrics.StatusRateLimited
	case KindActiveRequestExists:
		return metrics.StatusActiveRequest
	case KindInvalidBody:
		return metrics.StatusInvalidBody
	case KindDisallowedWord:
		return metrics.StatusDisallowedWord
	case KindBuildFailed:
		return metrics.StatusBuildFailed
	case KindBadCode:
		return metrics.StatusBadCode
	case KindOverloaded:
		return metrics.StatusOverloaded
	default:
		return metrics.StatusInternal
	}
}
