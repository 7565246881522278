package qtforge

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Runner runs an external command. Executor is the real implementation;
// tests substitute a recorder.
type Runner interface {
	Run(cmd *exec.Cmd) error
}

// Executor runs external tools (conan, patch) on behalf of the pipeline.
type Executor struct {
	Context context.Context // The context to use for cancellation
	DryRun  bool            // DryRun prints the command line instead of running it
}

// NewExecutor returns an Executor bound to ctx.
func NewExecutor(ctx context.Context) *Executor {
	return &Executor{Context: ctx}
}

// Run executes cmd. The child runs in its own process group and the whole
// group is killed when the context is cancelled.
func (e *Executor) Run(cmd *exec.Cmd) error {
	// --- Phase 0: wire up stdio ---
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if e.DryRun {
		colArrow.Print("-> ")
		colNote.Printf("[dry-run] %s", commandLine(cmd))
		if cmd.Dir != "" {
			colNote.Printf(" (in %s)", cmd.Dir)
		}
		fmt.Println()
		return nil
	}
	if cmd.Err != nil {
		return fmt.Errorf("cannot run %s: %w", cmd.Args[0], cmd.Err)
	}

	// --- Phase 1: build the final command ---
	finalCmd := exec.CommandContext(e.Context, cmd.Path, cmd.Args[1:]...)
	finalCmd.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		finalCmd.Env = cmd.Env
	} else {
		finalCmd.Env = os.Environ()
	}
	finalCmd.Stdin = cmd.Stdin
	finalCmd.Stdout = cmd.Stdout
	finalCmd.Stderr = cmd.Stderr

	// --- Phase 2: isolate process group for context-based cleanup ---
	finalCmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// --- Phase 3: start and watch for cancel ---
	if err := finalCmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", cmd.Args[0], err)
	}

	pgid := finalCmd.Process.Pid
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-e.Context.Done():
			_ = unix.Kill(-pgid, unix.SIGKILL)
		case <-done:
		}
	}()

	// --- Phase 4: wait and return ---
	if waitErr := finalCmd.Wait(); waitErr != nil {
		if e.Context.Err() != nil {
			time.Sleep(100 * time.Millisecond)
			return fmt.Errorf("command aborted: %v", e.Context.Err())
		}
		return fmt.Errorf("%s failed: %w", commandLine(cmd), waitErr)
	}
	return nil
}

// commandLine renders cmd for messages, quoting arguments that contain spaces.
func commandLine(cmd *exec.Cmd) string {
	parts := make([]string, len(cmd.Args))
	for i, a := range cmd.Args {
		if strings.ContainsAny(a, " \t") {
			a = "'" + a + "'"
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}
