package sandbox

import (
	"context"
	"os"
	"testing"
	"time"
)

// singleStageGenerator runs exactly one command and stops.
type singleStageGenerator struct {
	cmd  []string
	used bool
}

func (g *singleStageGenerator) Next(prev *ProcessExecuteResult) ([]string, bool, error) {
	if g.used {
		return nil, true, nil
	}
	g.used = true
	return g.cmd, false, nil
}

func TestExecuteSimpleSuccess(t *testing.T) {
	dir, err := NewWorkDir()
	if err != nil {
		t.Fatalf("NewWorkDir: %v", err)
	}
	defer os.RemoveAll(dir)

	gen := &singleStageGenerator{cmd: []string{"/bin/echo", "hello"}}
	result, err := Execute(context.Background(), gen, dir, "", 2*time.Second)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success() {
		t.Fatalf("expected success, got exit code %d, stderr %q", result.ExitCode, result.Stderr)
	}
	if result.Stdout != "hello\n" {
		t.Fatalf("Stdout = %q, want %q", result.Stdout, "hello\n")
	}
}

func TestExecuteTimeout(t *testing.T) {
	dir, err := NewWorkDir()
	if err != nil {
		t.Fatalf("NewWorkDir: %v", err)
	}
	defer os.RemoveAll(dir)

	gen := &singleStageGenerator{cmd: []string{"/bin/sleep", "5"}}
	result, err := Execute(context.Background(), gen, dir, "", 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode != TimeoutExitCode {
		t.Fatalf("ExitCode = %d, want %d", result.ExitCode, TimeoutExitCode)
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	dir, err := NewWorkDir()
	if err != nil {
		t.Fatalf("NewWorkDir: %v", err)
	}
	defer os.RemoveAll(dir)

	gen := &singleStageGenerator{cmd: []string{"/bin/false"}}
	result, err := Execute(context.Background(), gen, dir, "", 2*time.Second)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success() {
		t.Fatal("expected failure from /bin/false")
	}
}

func TestExecuteStdinIsPiped(t *testing.T) {
	dir, err := NewWorkDir()
	if err != nil {
		t.Fatalf("NewWorkDir: %v", err)
	}
	defer os.RemoveAll(dir)

	gen := &singleStageGenerator{cmd: []string{"/bin/cat"}}
	result, err := Execute(context.Background(), gen, dir, "ping", 2*time.Second)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Stdout != "ping" {
		t.Fatalf("Stdout = %q, want %q", result.Stdout, "ping")
	}
}

// twoStageGenerator models a compile-then-run language: the first
// stage's result decides whether a CompileError short-circuits the
// second.
type twoStageGenerator struct {
	compileCmd, runCmd []string
	stage              int
}

func (g *twoStageGenerator) Next(prev *ProcessExecuteResult) ([]string, bool, error) {
	switch g.stage {
	case 0:
		g.stage++
		return g.compileCmd, false, nil
	case 1:
		g.stage++
		if prev != nil && !prev.Success() {
			return nil, false, &CompileError{Stderr: prev.Stderr}
		}
		return g.runCmd, false, nil
	default:
		return nil, true, nil
	}
}

func TestExecuteCompileErrorShortCircuits(t *testing.T) {
	dir, err := NewWorkDir()
	if err != nil {
		t.Fatalf("NewWorkDir: %v", err)
	}
	defer os.RemoveAll(dir)

	gen := &twoStageGenerator{
		compileCmd: []string{"/bin/false"},
		runCmd:     []string{"/bin/echo", "should not run"},
	}
	result, err := Execute(context.Background(), gen, dir, "", 2*time.Second)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode != CompileErrorExitCode {
		t.Fatalf("ExitCode = %d, want %d", result.ExitCode, CompileErrorExitCode)
	}
}

func TestExecuteTwoStageSuccess(t *testing.T) {
	dir, err := NewWorkDir()
	if err != nil {
		t.Fatalf("NewWorkDir: %v", err)
	}
	defer os.RemoveAll(dir)

	gen := &twoStageGenerator{
		compileCmd: []string{"/bin/true"},
		runCmd:     []string{"/bin/echo", "compiled"},
	}
	result, err := Execute(context.Background(), gen, dir, "", 2*time.Second)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Stdout != "compiled\n" {
		t.Fatalf("Stdout = %q, want %q", result.Stdout, "compiled\n")
	}
}

func TestExecuteNoOrphanProcesses(t *testing.T) {
	dir, err := NewWorkDir()
	if err != nil {
		t.Fatalf("NewWorkDir: %v", err)
	}
	defer os.RemoveAll(dir)

	// Spawns a grandchild that would outlive a naive single-kill.
	gen := &singleStageGenerator{cmd: []string{"/bin/sh", "-c", "sleep 10 & sleep 10"}}
	start := time.Now()
	result, err := Execute(context.Background(), gen, dir, "", 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode != TimeoutExitCode {
		t.Fatalf("ExitCode = %d, want %d", result.ExitCode, TimeoutExitCode)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Execute took %v, process group teardown may have left an orphan running", elapsed)
	}
}
