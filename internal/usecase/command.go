package usecase

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/semmidev/dbtoolkit/internal/config"
)

type CommandResult struct {
	Success  bool   `json:"success"`
	Output   string `json:"output"`
	Error    string `json:"error"`
	ExitCode int    `json:"exit_code"`
}

// StreamEvent is one message of a streamed command: an output line
// ("stdout", "stderr"), the final "exit", or an "error" starting it.
type StreamEvent struct {
	Type    string `json:"type"`
	Data    string `json:"data,omitempty"`
	Code    *int   `json:"code,omitempty"`
	Success *bool  `json:"success,omitempty"`
}

type VersionInfo struct {
	Version   *string `json:"version"`
	Installed bool    `json:"installed"`
}

// MigratorExecutor passes commands through to the migrator CLI. Arguments are
// split on whitespace and never interpreted by a shell.
type MigratorExecutor struct {
	binary         string
	workDir        string
	defaultTimeout time.Duration
	logger         Logger
}

func NewMigratorExecutor(cfg config.MigratorConfig, logger Logger) *MigratorExecutor {
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MigratorExecutor{
		binary:         cfg.Binary,
		workDir:        cfg.WorkDir,
		defaultTimeout: timeout,
		logger:         logger,
	}
}

func (e *MigratorExecutor) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Dir = e.workDir
	cmd.WaitDelay = time.Second
	return cmd
}

// Run executes the command and collects its output. A zero timeout uses the
// configured default.
func (e *MigratorExecutor) Run(ctx context.Context, command string, timeout time.Duration) CommandResult {
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := e.command(runCtx, strings.Fields(command)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		e.logger.Warnf("Migrator command timed out after %s: %s", timeout, command)
		return CommandResult{Success: false, Error: "Command timed out", ExitCode: -1}
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return CommandResult{Success: false, Error: err.Error(), ExitCode: -1}
	}

	code := cmd.ProcessState.ExitCode()
	return CommandResult{
		Success:  code == 0,
		Output:   stdout.String(),
		Error:    stderr.String(),
		ExitCode: code,
	}
}

// Stream runs the command and forwards each output line to sink as it is
// produced, finishing with an exit event. Sink calls are serialized. A sink
// error stops the command.
func (e *MigratorExecutor) Stream(ctx context.Context, command string, sink func(StreamEvent) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := e.command(ctx, strings.Fields(command)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return sink(StreamEvent{Type: "error", Data: err.Error()})
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return sink(StreamEvent{Type: "error", Data: err.Error()})
	}
	if err := cmd.Start(); err != nil {
		return sink(StreamEvent{Type: "error", Data: err.Error()})
	}

	var mu sync.Mutex
	emit := func(ev StreamEvent) error {
		mu.Lock()
		defer mu.Unlock()
		if err := sink(ev); err != nil {
			cancel()
			return err
		}
		return nil
	}

	var g errgroup.Group
	g.Go(func() error { return forwardLines(stdout, "stdout", emit) })
	g.Go(func() error { return forwardLines(stderr, "stderr", emit) })

	sinkErr := g.Wait()
	waitErr := cmd.Wait()

	if sinkErr != nil {
		return sinkErr
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return emit(StreamEvent{Type: "error", Data: waitErr.Error()})
	}

	code := cmd.ProcessState.ExitCode()
	success := code == 0
	return emit(StreamEvent{Type: "exit", Code: &code, Success: &success})
}

// forwardLines drains r completely even after a sink failure so the child
// never blocks on a full pipe.
func forwardLines(r io.Reader, stream string, emit func(StreamEvent) error) error {
	var sinkErr error
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if sinkErr != nil {
			continue
		}
		if err := emit(StreamEvent{Type: stream, Data: strings.TrimRight(scanner.Text(), "\r")}); err != nil {
			sinkErr = fmt.Errorf("forward %s: %w", stream, err)
		}
	}
	if sinkErr != nil {
		return sinkErr
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("read %s: %w", stream, err)
	}
	return nil
}

// Version asks the CLI for its version. A missing binary reports
// installed=false rather than an error.
func (e *MigratorExecutor) Version(ctx context.Context) VersionInfo {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	out, err := e.command(ctx, "--version").Output()
	if err != nil {
		return VersionInfo{Installed: false}
	}
	v := strings.TrimSpace(string(out))
	return VersionInfo{Version: &v, Installed: true}
}
