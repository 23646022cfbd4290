package engine

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/timmy/mdconv/internal/logger"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()
	logger.CtxDebug(ctx, "Running %s %s", name, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	entry := logger.With(logger.Fields{"cmd": name}).WithDuration(time.Since(start).Milliseconds())
	if err != nil {
		entry.WithField("stderr", truncate(errb.String(), 8<<10)).Warn(ctx, "Command failed: %v", err)
	} else {
		entry.WithField("stdout_bytes", out.Len()).Debug(ctx, "Command finished")
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
