package rustfmt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/playbuild/config"
)

// MockCommandRunner implements CommandRunner for testing
type MockCommandRunner struct {
	stdout   string
	stderr   string
	exitCode int
	err      error
	block    bool

	args  []string
	input []byte
}

func (m *MockCommandRunner) RunCommandWithInput(ctx context.Context, args []string, input []byte) (stdout, stderr string, exitCode int, err error) {
	m.args = args
	m.input = input
	if m.block {
		<-ctx.Done()
		return "", "", -1, nil
	}
	return m.stdout, m.stderr, m.exitCode, m.err
}

func newTestFormatter(t *testing.T, cmd *MockCommandRunner) *Formatter {
	t.Helper()
	cfg := &config.Config{Format: config.FormatConfig{Command: []string{"rustfmt", "--edition", "2021"}, TimeoutSec: 5}}
	return NewFormatter(zaptest.NewLogger(t), cfg, WithCommandRunner(cmd))
}

func TestFormat(t *testing.T) {
	cmd := &MockCommandRunner{stdout: "fn main() {}\n"}
	f := newTestFormatter(t, cmd)

	out, err := f.Format(context.Background(), "req", "fn   main(){}")
	require.NoError(t, err)
	assert.Equal(t, "fn main() {}\n", out)
	assert.Equal(t, []string{"rustfmt", "--edition", "2021"}, cmd.args)
	assert.Equal(t, []byte("fn   main(){}"), cmd.input)
}

func TestFormatBadCode(t *testing.T) {
	f := newTestFormatter(t, &MockCommandRunner{exitCode: ExitBadCode, stderr: "error: expected one of `!` or `::`"})

	_, err := f.Format(context.Background(), "req", "fn main( {")
	var bad *BadCodeError
	require.True(t, errors.As(err, &bad))
	assert.Contains(t, bad.Stderr, "expected one of")
	assert.NotErrorIs(t, err, ErrFormatter)
}

func TestFormatFailures(t *testing.T) {
	tests := []struct {
		name string
		cmd  *MockCommandRunner
	}{
		{"UnexpectedExit", &MockCommandRunner{exitCode: 2, stderr: "internal error"}},
		{"NotInstalled", &MockCommandRunner{err: errors.New("executable file not found in $PATH")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestFormatter(t, tt.cmd).Format(context.Background(), "req", "fn main() {}")
			assert.ErrorIs(t, err, ErrFormatter)
		})
	}
}

func TestFormatTimeout(t *testing.T) {
	f := newTestFormatter(t, &MockCommandRunner{block: true})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.Format(ctx, "req", "fn main() {}")
	assert.ErrorIs(t, err, ErrFormatter)
	assert.Contains(t, err.Error(), "timed out")
}
