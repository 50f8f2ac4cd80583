package runner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/algohub/algohub/internal/log"
	"github.com/algohub/algohub/internal/model"
)

const waitDelay = 5 * time.Second

// Command is a single invocation of an external tool
type Command struct {
	Tool    string // short name used in logs
	Path    string
	Args    []string
	Dir     string   // working directory, empty means the current one
	Env     []string // added on top of the process environment
	Timeout time.Duration
}

type Result struct {
	Command  Command
	Started  time.Time
	Stopped  time.Time
	ExitCode int
	Stdout   *bytes.Buffer
	Stderr   *bytes.Buffer
	Err      error
}

// OK returns true if the tool finished with exit code 0
func (r Result) OK() bool {
	return r.Err == nil
}

// Combined returns stdout and stderr separated by a new line
func (r Result) Combined() string {
	var sb strings.Builder
	if r.Stdout != nil {
		sb.Write(r.Stdout.Bytes())
	}
	sb.WriteByte('\n')
	if r.Stderr != nil {
		sb.Write(r.Stderr.Bytes())
	}
	return sb.String()
}

// Runner executes commands synchronously. It is safe for a concurrent use.
type Runner struct{}

func New() Runner {
	return Runner{}
}

// Run executes the command and waits for it. Non-zero exit code, a missing
// binary or a timeout are reported in Result.Err, which wraps model.ErrToolFailed.
// The process is killed when ctx is canceled.
func (Runner) Run(ctx context.Context, proto Command) Result {
	tool := proto.Tool
	if tool == "" {
		tool = proto.Path
	}
	ctx = log.ContextAttrs(ctx, slog.String("tool", tool))

	res := Result{
		Command: Command{
			Tool:    tool,
			Path:    proto.Path,
			Args:    append([]string(nil), proto.Args...),
			Dir:     proto.Dir,
			Env:     append([]string(nil), proto.Env...),
			Timeout: proto.Timeout,
		},
		ExitCode: -1,
		Stdout:   &bytes.Buffer{},
		Stderr:   &bytes.Buffer{},
	}

	if proto.Timeout == 0 {
		slog.DebugContext(ctx, "command has no timeout", "path", proto.Path)
	} else {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, proto.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, res.Command.Path, res.Command.Args...)
	cmd.Dir = proto.Dir
	if len(proto.Env) > 0 {
		cmd.Env = append(os.Environ(), proto.Env...)
	}
	cmd.Stdout = res.Stdout
	stderr := &stderrWriter{ctx: ctx, buf: res.Stderr}
	cmd.Stderr = stderr
	// children inheriting the pipes must not block the return forever
	cmd.WaitDelay = waitDelay

	slog.InfoContext(ctx, "command started",
		"path", proto.Path,
		"args", Redact(proto.Args),
		"dir", proto.Dir,
	)
	res.Started = time.Now().UTC()
	if err := cmd.Start(); err != nil {
		res.Stopped = time.Now().UTC()
		res.Err = fmt.Errorf("%w: %s: %w", model.ErrToolFailed, tool, err)
		slog.ErrorContext(ctx, "command failed to start", "error", err)
		return res
	}

	err := cmd.Wait()
	stderr.flush()
	res.Stopped = time.Now().UTC()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case err == nil:
	case ctx.Err() != nil:
		res.Err = fmt.Errorf("%w: %s: %w", model.ErrToolFailed, tool, ctx.Err())
	default:
		res.Err = fmt.Errorf("%w: %s: %w", model.ErrToolFailed, tool, err)
	}

	attrs := []any{
		"elapsed", res.Stopped.Sub(res.Started).String(),
		"exit_code", res.ExitCode,
	}
	if res.Err != nil {
		slog.WarnContext(ctx, "command failed", append(attrs, "error", res.Err, "args", Redact(proto.Args))...)
	} else {
		slog.InfoContext(ctx, "command finished", attrs...)
	}
	return res
}

// stderrWriter copies stderr and logs it line by line
type stderrWriter struct {
	ctx     context.Context
	buf     *bytes.Buffer
	partial []byte
}

func (w *stderrWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.log(w.partial[:i])
		w.partial = w.partial[i+1:]
	}
	return len(p), nil
}

func (w *stderrWriter) flush() {
	if len(w.partial) > 0 {
		w.log(w.partial)
		w.partial = nil
	}
}

func (w *stderrWriter) log(line []byte) {
	slog.DebugContext(w.ctx, "stderr", "line", string(bytes.TrimRight(line, "\r")))
}
