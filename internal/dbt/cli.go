package dbt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
)

// maxLineSize bounds a single dbt log line. Compiled SQL in debug output can
// be large.
const maxLineSize = 4 << 20

// stderrTail is how much dbt stderr is kept for error messages.
const stderrTail = 4 << 10

// RunOptions configures a single dbt invocation.
type RunOptions struct {
	// Select is passed as --select when non-empty.
	Select string

	// Exclude is passed as --exclude when non-empty.
	Exclude string

	// RaiseOnError makes Wait return a *CommandError when dbt exits non-zero.
	// When false, failures are only visible in the event stream.
	RaiseOnError bool

	// Env is appended to the process environment.
	Env []string
}

// Stream is a single-use sequence of events from a running dbt process.
type Stream interface {
	// Events yields events as dbt emits them. It can be ranged over once.
	Events() iter.Seq[Event]

	// Wait drains any unread output and waits for the process to exit.
	Wait() error

	// ExitCode is the process exit code. Valid after Wait.
	ExitCode() int
}

// Runner starts dbt invocations.
type Runner interface {
	Run(ctx context.Context, args []string, opts RunOptions) (Stream, error)
}

// CommandError is returned by Wait when dbt exits non-zero and RaiseOnError is set.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("dbt %s failed with exit code %d", strings.Join(e.Args, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

// Unwrap lets errors.Is match oerrors.ErrToolFailed.
func (e *CommandError) Unwrap() error {
	return oerrors.ErrToolFailed
}

// CLI runs the dbt executable against one project.
type CLI struct {
	// Executable is the dbt binary. If empty, "dbt" is looked up in PATH.
	Executable string

	// ProjectDir is passed as --project-dir.
	ProjectDir string

	// ProfilesDir is passed as --profiles-dir when non-empty.
	ProfilesDir string

	// Target is passed as --target when non-empty.
	Target string

	// Stderr receives dbt stderr in addition to the captured tail. Optional.
	Stderr io.Writer
}

// NewCLI creates a CLI for the project in projectDir using dbt from PATH.
func NewCLI(projectDir string) *CLI {
	return &CLI{
		Executable: "dbt",
		ProjectDir: projectDir,
	}
}

// CommandArgs returns the full argument list passed to the executable:
// the caller's args, then project flags, JSON logging, and selection.
func (c *CLI) CommandArgs(args []string, opts RunOptions) []string {
	full := append([]string{}, args...)
	if c.ProjectDir != "" {
		full = append(full, "--project-dir", c.ProjectDir)
	}
	if c.ProfilesDir != "" {
		full = append(full, "--profiles-dir", c.ProfilesDir)
	}
	if c.Target != "" {
		full = append(full, "--target", c.Target)
	}
	full = append(full, "--log-format", "json")
	if opts.Select != "" {
		full = append(full, "--select", opts.Select)
	}
	if opts.Exclude != "" {
		full = append(full, "--exclude", opts.Exclude)
	}
	return full
}

// Run starts dbt with args and returns the running invocation.
func (c *CLI) Run(ctx context.Context, args []string, opts RunOptions) (Stream, error) {
	exe, err := c.lookPath()
	if err != nil {
		return nil, err
	}

	// dbt runs inside the project, so a relative --project-dir must not be
	// resolved twice.
	resolved := *c
	if resolved.ProjectDir != "" {
		if abs, err := filepath.Abs(resolved.ProjectDir); err == nil {
			resolved.ProjectDir = abs
		}
	}
	full := resolved.CommandArgs(args, opts)
	cmd := exec.CommandContext(ctx, exe, full...)
	cmd.Dir = resolved.ProjectDir
	cmd.Env = append(os.Environ(), opts.Env...)

	inv := &Invocation{
		ctx:   ctx,
		args:  args,
		raise: opts.RaiseOnError,
		cmd:   cmd,
	}
	if c.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&inv.stderr, c.Stderr)
	} else {
		cmd.Stderr = &inv.stderr
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("dbt stdout pipe: %w", err)
	}
	inv.stdout = stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting dbt %s: %w", strings.Join(args, " "), err)
	}
	return inv, nil
}

// Parse runs `dbt parse`, which writes target/manifest.json.
func (c *CLI) Parse(ctx context.Context) error {
	stream, err := c.Run(ctx, []string{"parse"}, RunOptions{RaiseOnError: true})
	if err != nil {
		return err
	}
	for range stream.Events() {
	}
	return stream.Wait()
}

func (c *CLI) lookPath() (string, error) {
	exe := c.Executable
	if exe == "" {
		exe = "dbt"
	}
	path, err := exec.LookPath(exe)
	if err != nil {
		return "", oerrors.NewNotFoundError(
			fmt.Sprintf("dbt executable %q not found", exe),
			"",
			"Install dbt-core with an adapter, or set dbt.executable in the config file",
		)
	}
	return path, nil
}

// Invocation is a running dbt process.
type Invocation struct {
	ctx    context.Context
	args   []string
	raise  bool
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr tailBuffer

	mu       sync.Mutex
	consumed bool
	readErr  error

	waitOnce sync.Once
	waitErr  error
	exitCode int
}

// Events yields parsed events line by line. Only the first call yields
// anything; later calls return an empty sequence.
func (i *Invocation) Events() iter.Seq[Event] {
	i.mu.Lock()
	first := !i.consumed
	i.consumed = true
	i.mu.Unlock()

	return func(yield func(Event) bool) {
		if !first {
			return
		}
		r := bufio.NewReaderSize(i.stdout, 64<<10)
		for {
			line, oversized, err := readLine(r, maxLineSize)
			switch {
			case oversized:
				ev := Event{Level: "warn", Message: fmt.Sprintf("skipped a dbt log line longer than %d bytes", maxLineSize)}
				if !yield(ev) {
					return
				}
			case strings.TrimSpace(line) != "":
				if !yield(ParseEvent(line)) {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					i.mu.Lock()
					i.readErr = err
					i.mu.Unlock()
				}
				return
			}
		}
	}
}

// readLine reads one line without its line ending. A line longer than max
// is consumed in full and reported as oversized instead of returned.
func readLine(r *bufio.Reader, max int) (string, bool, error) {
	var buf []byte
	oversized := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversized {
			if len(buf)+len(chunk) > max+1 {
				oversized = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if oversized {
			return "", true, err
		}
		return strings.TrimRight(string(buf), "\r\n"), false, err
	}
}

// Wait drains unread stdout and waits for dbt to exit. With RaiseOnError a
// non-zero exit returns *CommandError; otherwise only IO failures and
// context cancellation are returned. A failed read of dbt output is always
// returned, since the events after it were lost.
func (i *Invocation) Wait() error {
	i.waitOnce.Do(func() {
		_, _ = io.Copy(io.Discard, i.stdout)
		i.waitErr = i.wait(i.cmd.Wait())

		i.mu.Lock()
		readErr := i.readErr
		i.mu.Unlock()
		if i.waitErr == nil && readErr != nil {
			i.waitErr = fmt.Errorf("reading output of dbt %s: %w", strings.Join(i.args, " "), readErr)
		}
	})
	return i.waitErr
}

// wait records the exit code of a finished process and maps err to the
// error Wait returns.
func (i *Invocation) wait(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		i.exitCode = -1
		return fmt.Errorf("dbt %s: %w", strings.Join(i.args, " "), err)
	}
	i.exitCode = exitErr.ExitCode()
	if ctxErr := i.ctx.Err(); ctxErr != nil {
		return fmt.Errorf("dbt %s interrupted: %w", strings.Join(i.args, " "), ctxErr)
	}
	if i.raise {
		return &CommandError{
			Args:     i.args,
			ExitCode: i.exitCode,
			Stderr:   i.stderr.String(),
		}
	}
	return nil
}

// ExitCode returns the process exit code. Valid after Wait.
func (i *Invocation) ExitCode() int {
	return i.exitCode
}

// tailBuffer keeps the last stderrTail bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > stderrTail {
		t.buf = t.buf[len(t.buf)-stderrTail:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
