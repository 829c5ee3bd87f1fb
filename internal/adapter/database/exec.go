package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/semmidev/dbtoolkit/internal/domain"
)

// toolRun describes one vendor utility invocation.
type toolRun struct {
	name   string
	binary string
	args   []string
	env    []string
	stdin  string // file fed to stdin, if any
	stdout string // file receiving stdout, if any
}

func (r toolRun) run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, r.binary, r.args...)
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if r.stdin != "" {
		in, err := os.Open(r.stdin)
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer in.Close()
		cmd.Stdin = in
	}

	if r.stdout != "" {
		out, err := os.Create(r.stdout)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer out.Close()
		cmd.Stdout = out
	} else {
		cmd.Stdout = io.Discard
	}

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s interrupted: %w", r.name, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &domain.ToolError{Tool: r.name, Stderr: stderr.String(), ExitCode: exitErr.ExitCode()}
		}
		return fmt.Errorf("%s failed: %w", r.name, err)
	}

	return nil
}

// ctxReader stops a copy once its context ends.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func copyFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create dest file: %w", err)
	}

	if _, err := io.Copy(out, ctxReader{ctx: ctx, r: in}); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy file: %w", err)
	}

	return out.Close()
}
