package lang

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PATRIC3/judge-host/internal/sandbox"
)

// resourceLimitHeaderTemplate is injected ahead of the submission's
// own C++ source as resource_limit.h, installing the same
// alarm-triggered SIGKILL backstop as the Python preamble, expressed
// in C++ since the submission runs as a native process with no
// interpreter to intercept signals on its behalf.
const resourceLimitHeaderTemplate = `
#include <sys/resource.h>
#include <stdio.h>
#include <stdlib.h>
#include <unistd.h>
#include <signal.h>

static void _exec_time_exceeded(int sig) {
    printf("Suicide from timeout.\n");
    fflush(stdout);
    killpg(0, SIGKILL);
    kill(0, SIGKILL);
    _exit(%d);
}

class _ExecResourceLimit {
public:
    _ExecResourceLimit(int timeout, long memory_limit) {
        struct rlimit rlim;
        if (timeout > 0) {
            getrlimit(RLIMIT_CPU, &rlim);
            rlim.rlim_cur = timeout;
            setrlimit(RLIMIT_CPU, &rlim);
        }
        if (memory_limit > 0) {
            getrlimit(RLIMIT_AS, &rlim);
            rlim.rlim_cur = memory_limit;
            setrlimit(RLIMIT_AS, &rlim);
        }
        getrlimit(RLIMIT_CORE, &rlim);
        rlim.rlim_cur = 0;
        setrlimit(RLIMIT_CORE, &rlim);

        if (timeout > 0) {
            signal(SIGALRM, _exec_time_exceeded);
            alarm(timeout);
        }
    }
};

static _ExecResourceLimit _exec_resource_limit(%d, %d);
`

// CppAdapter compiles a submission with g++ (or a compatible compiler)
// and then runs the resulting binary, two sandbox stages joined by a
// CompileError short-circuit on a non-zero compile exit.
type CppAdapter struct {
	CompilerPath string
	CompileFlags string
}

// NewGenerator writes resource_limit.h and source.cpp and returns a
// two-stage CommandGenerator: compile, then run.
func (a *CppAdapter) NewGenerator(workDir, source string, timeoutSeconds, memoryLimitBytes int) (sandbox.CommandGenerator, error) {
	headerPath := filepath.Join(workDir, "resource_limit.h")
	header := fmt.Sprintf(resourceLimitHeaderTemplate, sandbox.TimeoutExitCode, timeoutSeconds, memoryLimitBytes)
	if err := os.WriteFile(headerPath, []byte(header), 0o644); err != nil {
		return nil, fmt.Errorf("lang: writing resource_limit.h: %w", err)
	}

	sourcePath := filepath.Join(workDir, "source.cpp")
	var src strings.Builder
	src.WriteString("#include \"resource_limit.h\"\n")
	src.WriteString(source)
	if err := os.WriteFile(sourcePath, []byte(src.String()), 0o644); err != nil {
		return nil, fmt.Errorf("lang: writing source.cpp: %w", err)
	}

	exePath := filepath.Join(workDir, "run")

	compilerPath := a.CompilerPath
	if compilerPath == "" {
		compilerPath = "g++"
	}
	flags := a.CompileFlags
	if flags == "" {
		flags = "-O2 -std=c++17"
	}

	compileCmd := append([]string{compilerPath}, strings.Fields(flags)...)
	compileCmd = append(compileCmd, "-o", exePath, sourcePath)

	return &cppGenerator{
		compileCmd: compileCmd,
		runCmd:     []string{exePath},
	}, nil
}

type cppGenerator struct {
	compileCmd, runCmd []string
	stage              int
}

func (g *cppGenerator) Next(prev *sandbox.ProcessExecuteResult) ([]string, bool, error) {
	switch g.stage {
	case 0:
		g.stage++
		return g.compileCmd, false, nil
	case 1:
		g.stage++
		if prev != nil && !prev.Success() {
			return nil, false, &sandbox.CompileError{Stderr: prev.Stderr}
		}
		return g.runCmd, false, nil
	default:
		return nil, true, nil
	}
}
