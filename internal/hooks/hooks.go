// Package hooks parses and runs the user-configured hook commands. Hooks
// are split with POSIX shell word rules and run with the working directory
// set to the config file's directory, stdout and stderr forwarded.
package hooks

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/google/shlex"
)

// FailedError reports a hook that exited non-zero.
type FailedError struct {
	Command  string
	ExitCode int
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("hook %q failed with exit code %d", e.Command, e.ExitCode)
}

// Runner executes hook command lists.
type Runner struct {
	// Dir is the working directory hooks run in.
	Dir string

	// Env is the complete subprocess environment.
	Env []string

	// Stdout and Stderr receive the hook output. Nil defaults to the
	// process streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Run executes each command in order, stopping at the first failure.
func (r *Runner) Run(commands []string) error {
	for _, command := range commands {
		if err := r.runOne(command); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runOne(command string) error {
	words, err := shlex.Split(command)
	if err != nil {
		return fmt.Errorf("parsing hook command %q: %w", command, err)
	}
	if len(words) == 0 {
		return nil
	}

	cmd := exec.Command(words[0], words[1:]...)
	cmd.Dir = r.Dir
	cmd.Env = r.Env
	cmd.Stdout = r.stdout()
	cmd.Stderr = r.stderr()

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &FailedError{Command: command, ExitCode: exitErr.ExitCode()}
		}
		return fmt.Errorf("running hook %q: %w", command, err)
	}
	return nil
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout != nil {
		return r.Stdout
	}
	return os.Stdout
}

func (r *Runner) stderr() io.Writer {
	if r.Stderr != nil {
		return r.Stderr
	}
	return os.Stderr
}
