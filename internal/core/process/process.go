// Package process inspects and controls the external chat client process by
// image name.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Controller is the OS-facing capability the watchdog needs.
type Controller interface {
	IsRunning(ctx context.Context, name string) (bool, error)
	Kill(ctx context.Context, name string) error
	Spawn(ctx context.Context, path string, args ...string) error
	RunScript(ctx context.Context, interpreter, script string) (ScriptResult, error)
}

// ScriptResult is the outcome of a finished helper script.
type ScriptResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// OK reports a zero exit status.
func (r ScriptResult) OK() bool { return r.ExitCode == 0 }

type runFunc func(ctx context.Context, name string, args ...string) (stdout string, stderr string, err error)

type startFunc func(path string, args ...string) error

// Exec implements Controller with tasklist/taskkill on Windows and
// pgrep/pkill elsewhere.
type Exec struct {
	goos  string
	run   runFunc
	start startFunc
}

var _ Controller = (*Exec)(nil)

// NewExec returns a Controller for the running OS.
func NewExec() *Exec {
	return &Exec{goos: runtime.GOOS, run: runCommand, start: startDetached}
}

func runCommand(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), strings.TrimSpace(stderr.String()), err
}

// exitCode extracts a process exit status. ok is false when err did not
// come from a process that ran to completion.
func exitCode(err error) (code int, ok bool) {
	if err == nil {
		return 0, true
	}
	var ee interface{ ExitCode() int }
	if errors.As(err, &ee) {
		return ee.ExitCode(), true
	}
	return -1, false
}

func (e *Exec) IsRunning(ctx context.Context, name string) (bool, error) {
	if e.goos == "windows" {
		out, _, err := e.run(ctx, "tasklist", "/FI", "IMAGENAME eq "+name, "/NH")
		if err != nil {
			return false, fmt.Errorf("tasklist: %w", err)
		}
		return strings.Contains(strings.ToLower(out), strings.ToLower(name)), nil
	}

	_, stderr, err := e.run(ctx, "pgrep", "-x", name)
	switch code, ok := exitCode(err); {
	case ok && code == 0:
		return true, nil
	case ok && code == 1:
		return false, nil
	default:
		return false, fmt.Errorf("pgrep: %w: %s", err, stderr)
	}
}

func (e *Exec) Kill(ctx context.Context, name string) error {
	if e.goos == "windows" {
		_, stderr, err := e.run(ctx, "taskkill", "/F", "/IM", name)
		if code, ok := exitCode(err); ok && code == 128 {
			return nil // no such process
		}
		if err != nil {
			return fmt.Errorf("taskkill: %w: %s", err, stderr)
		}
		return nil
	}

	_, stderr, err := e.run(ctx, "pkill", "-9", "-x", name)
	if code, ok := exitCode(err); ok && code <= 1 {
		return nil
	}
	return fmt.Errorf("pkill: %w: %s", err, stderr)
}

// Spawn launches path detached from this process so it survives a daemon
// restart.
func (e *Exec) Spawn(_ context.Context, path string, args ...string) error {
	if err := e.start(path, args...); err != nil {
		return fmt.Errorf("spawn %s: %w", path, err)
	}
	return nil
}

// RunScript runs script with interpreter to completion. A non-zero exit is
// reported in the result, not as an error.
func (e *Exec) RunScript(ctx context.Context, interpreter, script string) (ScriptResult, error) {
	stdout, stderr, err := e.run(ctx, interpreter, script)
	code, ok := exitCode(err)
	if !ok {
		return ScriptResult{ExitCode: -1, Stdout: stdout, Stderr: stderr}, fmt.Errorf("run %s %s: %w", interpreter, script, err)
	}
	return ScriptResult{ExitCode: code, Stdout: stdout, Stderr: stderr}, nil
}

func startDetached(path string, args ...string) error {
	cmd := exec.Command(path, args...)
	cmd.SysProcAttr = detachAttr()
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}
