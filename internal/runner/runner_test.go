package runner_test

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/algohub/algohub/internal/model"
	"github.com/algohub/algohub/internal/runner"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	t.Parallel()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}

	t.Run("stdout and stderr", func(t *testing.T) {
		t.Parallel()
		res := runner.New().Run(t.Context(), runner.Command{
			Tool: "sh",
			Path: sh,
			Args: []string{"-c", "echo stdout; printf 'stderr\\nstderr' 1>&2"},
		})
		require.NoError(t, res.Err)
		require.True(t, res.OK())
		require.Equal(t, 0, res.ExitCode)
		require.Equal(t, "stdout\n", res.Stdout.String())
		require.Equal(t, "stderr\nstderr", res.Stderr.String())
		require.Equal(t, "stdout\n\nstderr\nstderr", res.Combined())
		require.NotZero(t, res.Started)
		require.False(t, res.Stopped.Before(res.Started))
	})

	t.Run("working directory and env", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		res := runner.New().Run(t.Context(), runner.Command{
			Path: sh,
			Args: []string{"-c", "pwd; echo $ALGOHUB_TEST"},
			Dir:  dir,
			Env:  []string{"ALGOHUB_TEST=golang"},
		})
		require.NoError(t, res.Err)
		lines := strings.Split(strings.TrimSpace(res.Stdout.String()), "\n")
		require.Len(t, lines, 2)
		require.True(t, strings.HasSuffix(lines[0], dir[strings.LastIndex(dir, "/"):]))
		require.Equal(t, "golang", lines[1])
	})

	t.Run("exit code", func(t *testing.T) {
		t.Parallel()
		res := runner.New().Run(t.Context(), runner.Command{
			Path: sh,
			Args: []string{"-c", "echo partial; exit 3"},
		})
		require.Error(t, res.Err)
		require.ErrorIs(t, res.Err, model.ErrToolFailed)
		var exitErr *exec.ExitError
		require.ErrorAs(t, res.Err, &exitErr)
		require.Equal(t, 3, res.ExitCode)
		require.Equal(t, "partial\n", res.Stdout.String())
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()
		res := runner.New().Run(t.Context(), runner.Command{
			Path:    sh,
			Args:    []string{"-c", "exec sleep 10"},
			Timeout: 100 * time.Millisecond,
		})
		require.ErrorIs(t, res.Err, model.ErrToolFailed)
		require.ErrorIs(t, res.Err, context.DeadlineExceeded)
		require.Less(t, res.Stopped.Sub(res.Started), 5*time.Second)
	})

	t.Run("canceled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		res := runner.New().Run(ctx, runner.Command{
			Path: sh,
			Args: []string{"-c", "exec sleep 10"},
		})
		require.ErrorIs(t, res.Err, model.ErrToolFailed)
		require.True(t, errors.Is(res.Err, context.Canceled))
	})
}

func TestRunNotFound(t *testing.T) {
	t.Parallel()
	res := runner.New().Run(t.Context(), runner.Command{
		Tool: "nope",
		Path: "does not exist",
	})
	require.ErrorIs(t, res.Err, model.ErrToolFailed)
	var execErr *exec.Error
	require.ErrorAs(t, res.Err, &execErr)
	require.Equal(t, "does not exist", execErr.Name)
	require.Equal(t, -1, res.ExitCode)
}
