package runner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gymbridge/gymbridge/internal/appstate"
	"github.com/gymbridge/gymbridge/internal/scripts/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript writes an sh script into a temp dir and returns a descriptor
// for it. Tests use sh as the interpreter so the suite needs no Python.
func writeScript(t *testing.T, body string, timeout time.Duration, fns ...registry.Function) registry.Descriptor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return registry.Descriptor{
		Name:      "test_script",
		Path:      path,
		Mode:      registry.ModeDiscrete,
		Functions: fns,
		Timeout:   timeout,
	}
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	return New("sh", WithGrace(time.Second))
}

// assertProcessGone polls until the pid no longer exists.
func assertProcessGone(t *testing.T, pid int) {
	t.Helper()
	assert.Eventually(t, func() bool {
		err := syscall.Kill(pid, 0)
		return err == syscall.ESRCH
	}, 5*time.Second, 20*time.Millisecond, "process %d still running", pid)
}

func TestRunDiscrete_Success(t *testing.T) {
	t.Parallel()
	desc := writeScript(t, `cat > /dev/null
echo "progress line"
echo '{"x": 1}'
`, 5*time.Second)

	result, err := newTestRunner(t).RunDiscrete(
		context.Background(), desc, "", appstate.Snapshot{"frequency": 1.0})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": float64(1)}, result)
}

func TestRunDiscrete_SnapshotOnStdin(t *testing.T) {
	t.Parallel()
	// The script echoes its stdin back as the result.
	desc := writeScript(t, "cat\n", 5*time.Second)

	snap := appstate.Snapshot{"frequency": 2.5, "comment": "hi"}
	result, err := newTestRunner(t).RunDiscrete(context.Background(), desc, "", snap)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"frequency": 2.5, "comment": "hi"}, result)
}

func TestRunDiscrete_FunctionSelector(t *testing.T) {
	t.Parallel()
	// $1 is --function, $2 the function name.
	desc := writeScript(t, `cat > /dev/null
echo "{\"selected\": \"$2\"}"
`, 5*time.Second, registry.Function{Name: "echo_one", Display: "Echo One"})

	result, err := newTestRunner(t).RunDiscrete(
		context.Background(), desc, "echo_one", appstate.Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"selected": "echo_one"}, result)
}

func TestRunDiscrete_UnknownFunction(t *testing.T) {
	t.Parallel()
	desc := writeScript(t, "echo '{}'\n", 5*time.Second)

	_, err := newTestRunner(t).RunDiscrete(
		context.Background(), desc, "nope", appstate.Snapshot{})
	require.ErrorIs(t, err, ErrUnknownFunction)
}

func TestRunDiscrete_NonZeroExit(t *testing.T) {
	t.Parallel()
	desc := writeScript(t, "cat > /dev/null\nexit 1\n", 5*time.Second)

	_, err := newTestRunner(t).RunDiscrete(context.Background(), desc, "", appstate.Snapshot{})
	require.ErrorIs(t, err, ErrNonZeroExit)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
}

func TestRunDiscrete_MalformedOutput(t *testing.T) {
	t.Parallel()

	t.Run("not json", func(t *testing.T) {
		desc := writeScript(t, "cat > /dev/null\necho 'not json'\n", 5*time.Second)
		_, err := newTestRunner(t).RunDiscrete(context.Background(), desc, "", appstate.Snapshot{})
		require.ErrorIs(t, err, ErrMalformedOutput)
	})

	t.Run("empty output", func(t *testing.T) {
		desc := writeScript(t, "cat > /dev/null\n", 5*time.Second)
		_, err := newTestRunner(t).RunDiscrete(context.Background(), desc, "", appstate.Snapshot{})
		require.ErrorIs(t, err, ErrMalformedOutput)
	})
}

func TestRunDiscrete_Timeout(t *testing.T) {
	t.Parallel()
	pidFile := filepath.Join(t.TempDir(), "pid")
	desc := writeScript(t, `cat > /dev/null
echo $$ > `+pidFile+`
exec sleep 30
`, 300*time.Millisecond)

	start := time.Now()
	_, err := newTestRunner(t).RunDiscrete(context.Background(), desc, "", appstate.Snapshot{})
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)

	// The process must be gone after a timeout, not lingering.
	pidBytes, readErr := os.ReadFile(pidFile)
	require.NoError(t, readErr)
	pid, convErr := strconv.Atoi(strings.TrimSpace(string(pidBytes)))
	require.NoError(t, convErr)
	assertProcessGone(t, pid)
}

func TestRunDiscrete_SpawnFailed(t *testing.T) {
	t.Parallel()
	r := New("/nonexistent/interpreter")
	desc := registry.Descriptor{
		Name:    "ghost",
		Path:    "ghost.py",
		Mode:    registry.ModeDiscrete,
		Timeout: time.Second,
	}
	_, err := r.RunDiscrete(context.Background(), desc, "", appstate.Snapshot{})
	require.ErrorIs(t, err, ErrSpawnFailed)
}

func TestParseResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		stdout  string
		want    any
		wantErr bool
	}{
		{"single object", `{"x": 1}`, map[string]any{"x": float64(1)}, false},
		{"progress then result", "working...\ndone\n42\n", float64(42), false},
		{"trailing newlines", "\"ok\"\n\n\n", "ok", false},
		{"scalar string", `"hello"`, "hello", false},
		{"array", `[1, 2]`, []any{float64(1), float64(2)}, false},
		{"garbage", "not json", nil, true},
		{"empty", "", nil, true},
		{"whitespace only", "  \n\t\n", nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseResult([]byte(tc.stdout))
			if tc.wantErr {
				require.ErrorIs(t, err, ErrMalformedOutput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLimitedWriter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := newLimitedWriter(&buf, 10)

	n, err := w.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 16, n, "writes always report success to the child")
	assert.Equal(t, "0123456789", buf.String())

	n, err = w.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "0123456789", buf.String())
}
