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
	"github.com/isdmx/playbuild/artifact"
	"github.com/isdmx/playbuild/cache"
	"github.com/isdmx/playbuild/config"
	"github.com/isdmx/playbuild/sandbox"
	"github.com/isdmx/playbuild/sandbox/sandboxtest"
	"github.com/isdmx/playbuild/toolchain"
	"github.com/isdmx/playbuild/validate"
)

const program = `use bevy::prelude::*;

fn main() {
    App::new().add_plugins(DefaultPlugins).run();
}
`

func testConfig() *config.Config {
	return &config.Config{
		Sandbox: config.SandboxConfig{
			ImageTemplate: "registry.local/bevy-{version}-{channel}:main",
			BuildCommand:  []string{"sh", "build.sh"},
			ClippyCommand: []string{"cargo", "clippy", "--target", "wasm32-unknown-unknown"},
		},
		Cache: config.CacheConfig{Dir: "/cache"},
		Toolchain: config.ToolchainConfig{
			DefaultVersion: "0.14",
			DefaultChannel: "nightly",
		},
	}
}

func newTestService(t *testing.T, runner sandbox.Runner) (*Service, *cache.Store) {
	t.Helper()
	log := zaptest.NewLogger(t)
	cfg := testConfig()
	resolver, err := toolchain.NewResolver(cfg)
	require.NoError(t, err)
	store, err := cache.NewStore(log, cfg, cache.WithFs(afero.NewMemMapFs()))
	require.NoError(t, err)
	return NewService(log, cfg, validate.NewFilter(config.DefaultDisallowedConstructs), resolver, store, runner, nil), store
}

func TestCompileMissThenHit(t *testing.T) {
	runner := sandboxtest.Succeeding("WASM", "export function __exit() {}\n")
	runner.Output.Stderr = "Compiling game v0.1.0"
	svc, _ := newTestService(t, runner)

	first, err := svc.Compile(context.Background(), Request{ID: "1", Code: program, Version: "main", Channel: "nightly"})
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, first.CacheStatus)
	assert.Equal(t, toolchain.VersionMain, first.Version)

	body, err := artifact.Decompress(first.Body)
	require.NoError(t, err)
	wasm, js, stderr, err := artifact.Segments(body, int(first.WasmLength), int(first.JSLength))
	require.NoError(t, err)
	assert.Equal(t, "WASM", string(wasm))
	assert.Contains(t, string(js), "function __exit()")
	assert.NotContains(t, string(js), "export ")
	assert.Equal(t, "Compiling game v0.1.0", string(stderr))
	assert.Equal(t, len(body), int(first.WasmLength+first.JSLength)+len(stderr))

	// whitespace and comments do not change the key
	second, err := svc.Compile(context.Background(), Request{ID: "2", Code: program + "// trailing\n", Version: "main", Channel: "nightly"})
	require.NoError(t, err)
	assert.Equal(t, CacheHit, second.CacheStatus)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, first.WasmLength, second.WasmLength)
	assert.Equal(t, first.JSLength, second.JSLength)

	assert.Equal(t, 1, runner.Calls())
}

func TestCompileRunRequest(t *testing.T) {
	runner := sandboxtest.Succeeding("W", "J")
	svc, _ := newTestService(t, runner)

	_, err := svc.Compile(context.Background(), Request{ID: "req", Code: program})
	require.NoError(t, err)

	reqs := runner.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "req", reqs[0].ID)
	assert.Equal(t, "registry.local/bevy-0.14-nightly:main", reqs[0].Image)
	assert.Equal(t, []string{"sh", "build.sh"}, reqs[0].Command)
	assert.Contains(t, reqs[0].Source, "playground_lib")
}

func TestCompileBypass(t *testing.T) {
	runner := sandboxtest.Succeeding("W", "J")
	svc, _ := newTestService(t, runner)

	_, err := svc.Compile(context.Background(), Request{Code: program})
	require.NoError(t, err)

	res, err := svc.Compile(context.Background(), Request{Code: program, BypassCache: true})
	require.NoError(t, err)
	assert.Equal(t, CacheBypass, res.CacheStatus)
	assert.Equal(t, 2, runner.Calls())

	// the bypassed build was still inserted
	res, err = svc.Compile(context.Background(), Request{Code: program})
	require.NoError(t, err)
	assert.Equal(t, CacheHit, res.CacheStatus)
	assert.Equal(t, 2, runner.Calls())
}

func TestCompileVersionsDoNotShareCache(t *testing.T) {
	runner := sandboxtest.Succeeding("W", "J")
	svc, _ := newTestService(t, runner)

	for _, v := range []string{"0.13", "0.14"} {
		res, err := svc.Compile(context.Background(), Request{Code: program, Version: v})
		require.NoError(t, err)
		assert.Equal(t, CacheMiss, res.CacheStatus)
	}
	assert.Equal(t, 2, runner.Calls())
}

func TestCompileUncacheableSource(t *testing.T) {
	runner := sandboxtest.Succeeding("W", "J")
	svc, store := newTestService(t, runner)

	code := "fn main() { let s = \"unterminated; }"
	res, err := svc.Compile(context.Background(), Request{Code: code})
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, res.CacheStatus)

	n, err := store.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCompileRejections(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		kind Kind
	}{
		{"Empty", Request{Code: "  "}, KindInvalidBody},
		{"Disallowed", Request{Code: `const S: &str = include_str!("/etc/passwd");`}, KindDisallowedWord},
		{"UnknownVersion", Request{Code: program, Version: "0.9"}, KindInvalidBody},
		{"UnknownChannel", Request{Code: program, Channel: "beta"}, KindInvalidBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := sandboxtest.Succeeding("W", "J")
			svc, _ := newTestService(t, runner)

			_, err := svc.Compile(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, admission.ClassInvalid, KindOf(err).Class())
			assert.Zero(t, runner.Calls(), "no sandbox for rejected input")
		})
	}
}

func TestCompileSandboxFailures(t *testing.T) {
	tests := []struct {
		name     string
		exitCode int
		kind     Kind
	}{
		{"UserError", sandbox.ExitUserError, KindBuildFailed},
		{"Overloaded", sandbox.ExitOOMKilled, KindOverloaded},
		{"Internal", 2, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestService(t, sandboxtest.Failing(tt.exitCode, "out", "err"))

			_, err := svc.Compile(context.Background(), Request{Code: program})
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, admission.ClassFailure, KindOf(err).Class())

			n, err := store.Len()
			require.NoError(t, err)
			assert.Equal(t, 0, n, "failures are not cached")
		})
	}
}

func TestCompileIgnoresCallerCancellation(t *testing.T) {
	runner := &sandboxtest.Runner{RunFunc: func(ctx context.Context, _ sandbox.RunRequest) (sandbox.BuildOutput, error) {
		if ctx.Err() != nil {
			return sandbox.BuildOutput{}, ctx.Err()
		}
		return sandbox.BuildOutput{Wasm: []byte("W"), JS: []byte("J")}, nil
	}}
	svc, _ := newTestService(t, runner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Compile(ctx, Request{Code: program})
	require.NoError(t, err)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindRateLimit, KindOf(&admission.RateLimitedError{}))
	assert.Equal(t, KindActiveRequestExists, KindOf(admission.ErrAlreadyActive))
	assert.Equal(t, KindOverloaded, KindOf(&admission.CoolingDownError{}))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "build_failed", KindBuildFailed.Status())
}

func TestCompileKeyFollowsAdaptedSource(t *testing.T) {
	runner := &sandboxtest.Runner{RunFunc: func(_ context.Context, req sandbox.RunRequest) (sandbox.BuildOutput, error) {
		return sandbox.BuildOutput{Wasm: []byte("W"), JS: []byte(req.Source)}, nil
	}}
	svc, _ := newTestService(t, runner)

	// the spacing hides App::new() from the exit hook adaptation
	spaced, err := svc.Compile(context.Background(), Request{Code: "fn main() { App::new ().run(); }", Version: "0.12"})
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, spaced.CacheStatus)

	hooked, err := svc.Compile(context.Background(), Request{Code: "fn main() { App::new().run(); }", Version: "0.12"})
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, hooked.CacheStatus)
	assert.NotEqual(t, spaced.Body, hooked.Body)

	reqs := runner.Requests()
	require.Len(t, reqs, 2)
	assert.NotContains(t, reqs[0].Source, "add_systems(Update, __check_exit_flag)")
	assert.Contains(t, reqs[1].Source, "add_systems(Update, __check_exit_flag)")

	again, err := svc.Compile(context.Background(), Request{Code: "fn main() {\n    App::new().run();\n}\n", Version: "0.12"})
	require.NoError(t, err)
	assert.Equal(t, CacheHit, again.CacheStatus)
	assert.Equal(t, hooked.Body, again.Body)
	assert.Equal(t, 2, runner.Calls())
}
