package compile

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/playbuild/admission"
	"github.com/isdmx/playbuild/cache"
	"github.com/isdmx/playbuild/config"
	"github.com/isdmx/playbuild/rustfmt"
	"github.com/isdmx/playbuild/sandbox"
	"github.com/isdmx/playbuild/sandbox/sandboxtest"
	"github.com/isdmx/playbuild/toolchain"
	"github.com/isdmx/playbuild/validate"
)

type formatterFunc func(ctx context.Context, id, code string) (string, error)

func (f formatterFunc) Format(ctx context.Context, id, code string) (string, error) {
	return f(ctx, id, code)
}

func TestClippy(t *testing.T) {
	t.Run("report only", func(t *testing.T) {
		runner := &sandboxtest.Runner{ExecOutput: sandbox.BuildOutput{ExitCode: 0, Stderr: "Checking game"}}
		svc, _ := newTestService(t, runner)

		res, err := svc.Clippy(context.Background(), ClippyRequest{ID: "1", Code: program, Version: "0.12", Channel: "stable"})
		require.NoError(t, err)
		assert.Nil(t, res.FixedCode)
		assert.Equal(t, "Checking game", res.Stderr)

		reqs := runner.ExecRequests()
		require.Len(t, reqs, 1)
		assert.Equal(t, []string{"cargo", "clippy", "--target", "wasm32-unknown-unknown"}, reqs[0].Command)
		assert.Equal(t, "registry.local/bevy-0.12-stable:main", reqs[0].Image)
		assert.Equal(t, program, reqs[0].Source)
		assert.False(t, reqs[0].ReadSource)
		assert.Zero(t, runner.Calls())
	})

	t.Run("fix with warnings", func(t *testing.T) {
		fixed := "fn main() {}\n"
		runner := &sandboxtest.Runner{ExecOutput: sandbox.BuildOutput{
			ExitCode: ClippyExitWarnings,
			Stderr:   "warning: unused variable",
			Source:   fixed,
		}}
		svc, _ := newTestService(t, runner)

		res, err := svc.Clippy(context.Background(), ClippyRequest{ID: "1", Code: program, Fix: true})
		require.NoError(t, err)
		require.NotNil(t, res.FixedCode)
		assert.Equal(t, fixed, *res.FixedCode)
		assert.Equal(t, "warning: unused variable", res.Stderr)

		reqs := runner.ExecRequests()
		require.Len(t, reqs, 1)
		assert.Equal(t, []string{"cargo", "clippy", "--target", "wasm32-unknown-unknown", "--fix", "--allow-no-vcs"}, reqs[0].Command)
		assert.True(t, reqs[0].ReadSource)
	})

	t.Run("unexpected exit is internal", func(t *testing.T) {
		runner := &sandboxtest.Runner{ExecOutput: sandbox.BuildOutput{ExitCode: 2, Stderr: "error: no such command"}}
		svc, _ := newTestService(t, runner)

		_, err := svc.Clippy(context.Background(), ClippyRequest{ID: "1", Code: program})
		require.ErrorIs(t, err, sandbox.ErrInfrastructure)
		assert.Equal(t, KindInternal, KindOf(err))
	})

	t.Run("oom is overloaded", func(t *testing.T) {
		runner := &sandboxtest.Runner{ExecErr: sandbox.ErrOverloaded}
		svc, _ := newTestService(t, runner)

		_, err := svc.Clippy(context.Background(), ClippyRequest{ID: "1", Code: program})
		assert.Equal(t, KindOverloaded, KindOf(err))
	})

	t.Run("denylist applies", func(t *testing.T) {
		runner := &sandboxtest.Runner{}
		svc, _ := newTestService(t, runner)

		_, err := svc.Clippy(context.Background(), ClippyRequest{ID: "1", Code: `const S: &str = include_str!("/etc/passwd");`})
		var disallowed *validate.DisallowedConstructError
		require.ErrorAs(t, err, &disallowed)
		assert.Empty(t, runner.ExecRequests())
	})

	t.Run("unknown version", func(t *testing.T) {
		runner := &sandboxtest.Runner{}
		svc, _ := newTestService(t, runner)

		_, err := svc.Clippy(context.Background(), ClippyRequest{ID: "1", Code: program, Version: "0.9"})
		assert.Equal(t, KindInvalidBody, KindOf(err))
		assert.Empty(t, runner.ExecRequests())
	})

	t.Run("source is not adapted", func(t *testing.T) {
		runner := &sandboxtest.Runner{}
		svc, _ := newTestService(t, runner)

		_, err := svc.Clippy(context.Background(), ClippyRequest{ID: "1", Code: program, Version: "0.12"})
		require.NoError(t, err)
		reqs := runner.ExecRequests()
		require.Len(t, reqs, 1)
		assert.NotEqual(t, toolchain.AdaptSource(program, toolchain.VersionV0_12), reqs[0].Source)
		assert.Equal(t, program, reqs[0].Source)
	})
}

func TestFormat(t *testing.T) {
	newService := func(t *testing.T, f Formatter) *Service {
		t.Helper()
		log := zaptest.NewLogger(t)
		cfg := testConfig()
		resolver, err := toolchain.NewResolver(cfg)
		require.NoError(t, err)
		store, err := cache.NewStore(log, cfg, cache.WithFs(afero.NewMemMapFs()))
		require.NoError(t, err)
		return NewService(log, cfg, validate.NewFilter(config.DefaultDisallowedConstructs), resolver, store,
			&sandboxtest.Runner{}, nil, WithFormatter(f))
	}

	t.Run("formatted", func(t *testing.T) {
		var got string
		svc := newService(t, formatterFunc(func(_ context.Context, _, code string) (string, error) {
			got = code
			return "fn main() {}\n", nil
		}))

		out, err := svc.Format(context.Background(), "1", "fn main(){}")
		require.NoError(t, err)
		assert.Equal(t, "fn main() {}\n", out)
		assert.Equal(t, "fn main(){}", got)
	})

	t.Run("bad code", func(t *testing.T) {
		svc := newService(t, formatterFunc(func(context.Context, string, string) (string, error) {
			return "", &rustfmt.BadCodeError{Stderr: "error: expected item"}
		}))

		_, err := svc.Format(context.Background(), "1", "fn main(")
		assert.Equal(t, KindBadCode, KindOf(err))
		assert.Equal(t, admission.ClassFailure, KindBadCode.Class())
	})

	t.Run("formatter failure is internal", func(t *testing.T) {
		svc := newService(t, formatterFunc(func(context.Context, string, string) (string, error) {
			return "", rustfmt.ErrFormatter
		}))

		_, err := svc.Format(context.Background(), "1", "fn main() {}")
		assert.Equal(t, KindInternal, KindOf(err))
	})

	t.Run("empty source never reaches rustfmt", func(t *testing.T) {
		called := false
		svc := newService(t, formatterFunc(func(context.Context, string, string) (string, error) {
			called = true
			return "", errors.New("unreachable")
		}))

		_, err := svc.Format(context.Background(), "1", " \n")
		assert.ErrorIs(t, err, validate.ErrEmptyBody)
		assert.False(t, called)
	})
}
