package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const (
	// drainPollInterval bounds how long a running child can go unobserved
	// between cancel/deadline checks.
	drainPollInterval = 200 * time.Millisecond
	// killGrace is how long a terminated child gets to exit before a hard kill.
	killGrace = 5 * time.Second
)

// RunSpec describes one child-process invocation.
type RunSpec struct {
	Args           []string
	FailureCode    string
	FailureMessage string
	Timeout        time.Duration

	// OnAttach and OnDetach bracket the lifetime of the child so the caller
	// can expose it to a cancel path. OnDetach runs on every exit path.
	OnAttach func(*exec.Cmd)
	OnDetach func()
}

// Runner launches child processes, drains their output concurrently, enforces
// a wall-clock timeout and responds to context cancellation by terminating
// the process. A single blocking wait-then-read would deadlock on pipe
// buffers for verbose children (yt-dlp's metadata dump is the pathological
// case), so output is drained while the wait is polled.
type Runner struct {
	captureMax int
}

// NewRunner creates a Runner that truncates captured stdout/stderr to
// captureMax bytes when reporting failures.
func NewRunner(captureMax int) *Runner {
	if captureMax < 1 {
		captureMax = 12000
	}
	return &Runner{captureMax: captureMax}
}

// Run executes the command and returns its stdout and stderr on exit code 0.
// A non-zero exit raises the caller's failure code with captured output in
// the details. Cancellation raises JOB_CANCELLED; a timeout raises the
// caller's failure code with the timeout appended to the message.
func (r *Runner) Run(ctx context.Context, spec RunSpec) (string, string, error) {
	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)

	// os/exec copies each pipe on its own goroutine when Stdout/Stderr are
	// plain writers, which is the concurrent drain we need.
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", "", NewErrorWithDetails(spec.FailureCode, spec.FailureMessage, map[string]any{
			"command": spec.Args,
			"message": err.Error(),
		})
	}

	if spec.OnAttach != nil {
		spec.OnAttach(cmd)
	}
	if spec.OnDetach != nil {
		defer spec.OnDetach()
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	deadline := time.Now().Add(spec.Timeout)
	var waitErr error

drain:
	for {
		select {
		case waitErr = <-waitCh:
			break drain
		case <-ctx.Done():
			r.terminate(cmd, waitCh)
			return "", "", errCancelled()
		case <-time.After(drainPollInterval):
			if time.Now().After(deadline) {
				r.terminate(cmd, waitCh)
				timeoutSec := int(spec.Timeout.Seconds())
				return "", "", NewErrorWithDetails(
					spec.FailureCode,
					fmt.Sprintf("%s Timeout after %ds.", spec.FailureMessage, timeoutSec),
					map[string]any{"timeoutSec": timeoutSec, "command": spec.Args},
				)
			}
		}
	}

	outText := decodeOutput(stdout.Bytes())
	errText := decodeOutput(stderr.Bytes())

	if waitErr != nil {
		exitCode := -1
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
		stdoutSafe, stdoutTruncated := truncateText(outText, r.captureMax)
		stderrSafe, stderrTruncated := truncateText(errText, r.captureMax)
		return "", "", NewErrorWithDetails(spec.FailureCode, spec.FailureMessage, map[string]any{
			"exitCode":        exitCode,
			"command":         spec.Args,
			"stdout":          stdoutSafe,
			"stderr":          stderrSafe,
			"outputTruncated": stdoutTruncated || stderrTruncated,
		})
	}

	return outText, errText, nil
}

// terminate sends SIGTERM and escalates to a hard kill after killGrace.
func (r *Runner) terminate(cmd *exec.Cmd, waitCh <-chan error) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-waitCh:
	case <-time.After(killGrace):
		_ = cmd.Process.Kill()
		<-waitCh
	}
}

// TerminateProcess terminates a detached child process reference. Used by the
// cancel path, which holds only the attached *exec.Cmd.
func TerminateProcess(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	go func() {
		time.Sleep(killGrace)
		// The runner's Wait has reaped a child that exited on SIGTERM, so a
		// late Kill returns ErrProcessDone instead of signalling a reused pid.
		_ = cmd.Process.Kill()
	}()
}

// decodeOutput interprets child output as UTF-8, replacing invalid bytes.
func decodeOutput(raw []byte) string {
	return strings.ToValidUTF8(string(raw), "�")
}
