package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// RunRequest describes one build attempt.
type RunRequest struct {
	// ID names the container and is echoed in logs. Empty means generate one.
	ID      string
	Image   string
	Command []string
	// Source is the already adapted compilation unit.
	Source string
	// ReadSource asks Exec to return the source file as the container left it.
	ReadSource bool
}

// BuildOutput is what a finished container left behind.
type BuildOutput struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Wasm     []byte
	JS       []byte
	// Source is set by Exec when ReadSource was requested.
	Source string
}

// Runner builds source inside an isolated container.
type Runner interface {
	// Run builds the source and collects the wasm and JS outputs.
	Run(ctx context.Context, req RunRequest) (BuildOutput, error)
	// Exec runs an arbitrary command over the source and reports its raw exit code.
	Exec(ctx context.Context, req RunRequest) (BuildOutput, error)
	ImageAvailable(ctx context.Context, image string) (bool, error)
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments. A non-zero exit is
// reported through exitCode, not err.
func (c RealCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	return c.RunCommandWithInput(ctx, args, nil)
}

// RunCommandWithInput is RunCommand with stdin fed from input.
func (RealCommandRunner) RunCommandWithInput(ctx context.Context, args []string, input []byte) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // arguments are built by callers, never by clients
	if input != nil {
		cmd.Stdin = bytes.NewReader(input)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", "", 0, err
		}
		exitCode = exitErr.ExitCode()
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// FileSystem defines the file operations an instance needs on its bind directory
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	ReadFile(filename string) ([]byte, error)
	RemoveAll(path string) error
}

// RealFileSystem implements FileSystem on the host
type RealFileSystem struct{}

func (RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// File permissions for the bind directory. The container user must be able
// to read the source and write outputs next to it.
const (
	DirPermission  = 0o777
	FilePermission = 0o644
)

// Files the build image is expected to leave in the bind directory.
const (
	OutputWasm = "game_bg.wasm"
	OutputJS   = "game.js"
)

// ContainerPrefix is prepended to every container name.
const ContainerPrefix = "playbuild"
