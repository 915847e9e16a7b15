package sandbox

import (
	"errors"
	"fmt"
)

// Exit codes with a fixed meaning.
const (
	// ExitUserError is what cargo exits with when the compiler rejects the program.
	ExitUserError = 101
	// ExitOOMKilled is 128+SIGKILL, reported when the container runs out of memory.
	ExitOOMKilled = 137
)

var (
	// ErrOverloaded means the host ran out of resources for this build.
	ErrOverloaded = errors.New("sandbox overloaded")
	// ErrInfrastructure wraps every failure that is not the user's fault.
	ErrInfrastructure = errors.New("sandbox infrastructure failure")
)

// BuildFailedError carries compiler output for a build the user broke.
type BuildFailedError struct {
	Stdout string
	Stderr string
}

func (e *BuildFailedError) Error() string {
	return fmt.Sprintf("build failed with exit code %d", ExitUserError)
}

// Classify maps a container exit code to the error returned to callers.
// It returns nil for a successful exit.
func Classify(out BuildOutput) error {
	switch out.ExitCode {
	case 0:
		return nil
	case ExitUserError:
		return &BuildFailedError{Stdout: out.Stdout, Stderr: out.Stderr}
	case ExitOOMKilled:
		return ErrOverloaded
	default:
		return fmt.Errorf("%w: container exited with code %d", ErrInfrastructure, out.ExitCode)
	}
}
