package sandbox

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/playbuild/config"
	"github.com/isdmx/playbuild/logger"
	"github.com/isdmx/playbuild/metrics"
	"github.com/isdmx/playbuild/toolchain"
)

// Flavor captures the differences between container CLIs.
type Flavor struct {
	Binary       string
	ExtraRunArgs []string
	// VolumeSuffix is appended to the -v mount spec, e.g. ":z" for SELinux relabeling.
	VolumeSuffix string
}

// ContainerRunner implements Runner on top of a docker-compatible CLI.
type ContainerRunner struct {
	logger    *zap.Logger
	config    *config.Config
	flavor    Flavor
	cmdRunner CommandRunner
	fs        FileSystem
	newID     func() string
	metrics   metrics.Recorder
}

// Option defines a functional option for ContainerRunner
type Option func(*ContainerRunner)

// WithCommandRunner sets the CommandRunner used to drive the container CLI
func WithCommandRunner(cmdRunner CommandRunner) Option {
	return func(r *ContainerRunner) {
		r.cmdRunner = cmdRunner
	}
}

// WithFileSystem sets the FileSystem used for bind directories
func WithFileSystem(fs FileSystem) Option {
	return func(r *ContainerRunner) {
		r.fs = fs
	}
}

// WithIDGenerator replaces the instance id source
func WithIDGenerator(newID func() string) Option {
	return func(r *ContainerRunner) {
		r.newID = newID
	}
}

// WithRecorder reports teardown failures to rec
func WithRecorder(rec metrics.Recorder) Option {
	return func(r *ContainerRunner) {
		r.metrics = rec
	}
}

// NewContainerRunner creates a runner for the given CLI flavor
func NewContainerRunner(log *zap.Logger, cfg *config.Config, flavor Flavor, opts ...Option) *ContainerRunner {
	r := &ContainerRunner{
		logger:    log,
		config:    cfg,
		flavor:    flavor,
		cmdRunner: &RealCommandRunner{},
		fs:        &RealFileSystem{},
		newID:     uuid.NewString,
		metrics:   metrics.NoopRecorder{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// instance is one build attempt: a bind directory and, once started, a container.
type instance struct {
	id      string
	name    string
	bindDir string
	started bool
}

// Run writes the source into a fresh bind directory, builds it in a
// container and collects the outputs. The container and directory are
// removed on every return path.
func (r *ContainerRunner) Run(ctx context.Context, req RunRequest) (BuildOutput, error) {
	inst, log, out, err := r.launch(ctx, req)
	if inst != nil {
		defer r.teardown(log, inst)
	}
	if err != nil {
		return out, err
	}

	if err := Classify(out); err != nil {
		if errors.Is(err, ErrInfrastructure) {
			log.Error("Build failed unexpectedly",
				zap.Int("exit_code", out.ExitCode),
				zap.String("stderr", out.Stderr))
		}
		return out, err
	}

	out.Wasm, err = r.fs.ReadFile(filepath.Join(inst.bindDir, OutputWasm))
	if err != nil {
		return out, fmt.Errorf("%w: failed to read %s: %w", ErrInfrastructure, OutputWasm, err)
	}
	if limit := r.config.MaxArtifactBytes(); limit > 0 && len(out.Wasm) > limit {
		return out, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrInfrastructure, OutputWasm, len(out.Wasm), limit)
	}
	out.JS, err = r.fs.ReadFile(filepath.Join(inst.bindDir, OutputJS))
	if err != nil {
		return out, fmt.Errorf("%w: failed to read %s: %w", ErrInfrastructure, OutputJS, err)
	}

	return out, nil
}

// Exec runs req.Command over the source like Run but leaves the exit code to
// the caller. Only an out-of-memory kill is mapped, to ErrOverloaded. With
// req.ReadSource set the source file is read back after the container exits.
func (r *ContainerRunner) Exec(ctx context.Context, req RunRequest) (BuildOutput, error) {
	inst, log, out, err := r.launch(ctx, req)
	if inst != nil {
		defer r.teardown(log, inst)
	}
	if err != nil {
		return out, err
	}
	if out.ExitCode == ExitOOMKilled {
		return out, ErrOverloaded
	}

	if req.ReadSource {
		data, err := r.fs.ReadFile(filepath.Join(inst.bindDir, toolchain.SourceFileName))
		if err != nil {
			return out, fmt.Errorf("%w: failed to read back %s: %w", ErrInfrastructure, toolchain.SourceFileName, err)
		}
		out.Source = string(data)
	}
	return out, nil
}

// launch prepares an instance and runs the container to completion. A
// non-nil instance must be passed to teardown, whatever the error.
func (r *ContainerRunner) launch(ctx context.Context, req RunRequest) (*instance, *zap.Logger, BuildOutput, error) {
	id := req.ID
	if id == "" {
		id = r.newID()
	}
	inst := &instance{
		id:      id,
		name:    ContainerPrefix + "." + id,
		bindDir: filepath.Join(r.config.Sandbox.WorkRoot, id),
	}
	log := r.logger.With(logger.RequestID(id), logger.Container(inst.name))

	if err := r.fs.MkdirAll(inst.bindDir, DirPermission); err != nil {
		return nil, log, BuildOutput{}, fmt.Errorf("%w: failed to create bind directory: %w", ErrInfrastructure, err)
	}

	sourcePath := filepath.Join(inst.bindDir, toolchain.SourceFileName)
	if err := r.fs.WriteFile(sourcePath, []byte(req.Source), FilePermission); err != nil {
		return inst, log, BuildOutput{}, fmt.Errorf("%w: failed to write source: %w", ErrInfrastructure, err)
	}

	timeout := r.config.GetTimeout()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := r.runArgs(inst, req)
	start := time.Now()
	inst.started = true
	stdout, stderr, exitCode, err := r.cmdRunner.RunCommand(runCtx, args)
	out := BuildOutput{ExitCode: exitCode, Stdout: stdout, Stderr: stderr}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		r.stop(log, inst)
		return inst, log, out, fmt.Errorf("%w: container timed out after %s", ErrInfrastructure, timeout)
	}
	if err != nil {
		return inst, log, out, fmt.Errorf("%w: failed to run container: %w", ErrInfrastructure, err)
	}

	log.Info("Container exited",
		zap.Int("exit_code", exitCode),
		logger.Duration(time.Since(start)))
	return inst, log, out, nil
}

func (r *ContainerRunner) runArgs(inst *instance, req RunRequest) []string {
	sb := r.config.Sandbox
	args := []string{
		r.flavor.Binary, "run",
		"--name", inst.name,
		"-v", inst.bindDir + ":" + sb.MountPath + r.flavor.VolumeSuffix,
	}
	args = append(args, r.flavor.ExtraRunArgs...)
	if sb.MemoryMB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", sb.MemoryMB))
	}
	if sb.CPUs > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(sb.CPUs, 'f', -1, 64))
	}
	if !sb.NetworkEnabled {
		args = append(args, "--network", "none")
	}
	args = append(args, "--security-opt", "no-new-privileges:true")
	args = append(args, req.Image)
	return append(args, req.Command...)
}

// stop kills a container that outlived its deadline.
func (r *ContainerRunner) stop(log *zap.Logger, inst *instance) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, stderr, code, err := r.cmdRunner.RunCommand(ctx, []string{r.flavor.Binary, "stop", inst.name})
	if err != nil || code != 0 {
		log.Warn("Failed to stop container after timeout",
			zap.Int("exit_code", code),
			zap.String("stderr", stderr),
			zap.Error(err))
	}
}

// teardown removes the container and the bind directory. Failures are logged only.
func (r *ContainerRunner) teardown(log *zap.Logger, inst *instance) {
	if inst.started {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_, stderr, code, err := r.cmdRunner.RunCommand(ctx,
			[]string{r.flavor.Binary, "container", "rm", "-f", inst.name})
		cancel()
		if err != nil || code != 0 {
			r.metrics.IncTeardownFailure()
			log.Error("Failed to remove container",
				zap.Int("exit_code", code),
				zap.String("stderr", stderr),
				zap.Error(err))
		}
	}
	if err := r.fs.RemoveAll(inst.bindDir); err != nil {
		r.metrics.IncTeardownFailure()
		log.Error("Failed to remove bind directory", zap.String("path", inst.bindDir), zap.Error(err))
	}
}

// ImageAvailable reports whether image is present locally.
func (r *ContainerRunner) ImageAvailable(ctx context.Context, image string) (bool, error) {
	_, _, code, err := r.cmdRunner.RunCommand(ctx, []string{r.flavor.Binary, "image", "inspect", image})
	if err != nil {
		return false, fmt.Errorf("failed to inspect image %s: %w", image, err)
	}
	return code == 0, nil
}
