// Package tools builds the command lines of the external assessment tools
// and post-processes the files they leave behind. The tools are executed
// through an Executor, runner.Runner in production.
package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/algohub/algohub/internal/model"
	"github.com/algohub/algohub/internal/runner"
)

// ErrMalformedOutput is returned when a tool wrote something unexpected
var ErrMalformedOutput = errors.New("malformed tool output")

type Executor interface {
	Run(ctx context.Context, cmd runner.Command) runner.Result
}

type Toolbox struct {
	exec      Executor
	tools     model.Tools
	gowitness model.Gowitness
}

func New(exec Executor, tools model.Tools, gowitness model.Gowitness) Toolbox {
	return Toolbox{
		exec:      exec,
		tools:     tools,
		gowitness: gowitness,
	}
}

func (t Toolbox) run(ctx context.Context, tool, path, dir string, timeout time.Duration, args ...string) runner.Result {
	return t.exec.Run(ctx, runner.Command{
		Tool:    tool,
		Path:    path,
		Args:    args,
		Dir:     dir,
		Timeout: timeout,
	})
}

func mkdir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
