package lang

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PATRIC3/judge-host/internal/sandbox"
)

// pythonPreTemplate installs an alarm-based suicide timer and rlimits
// before the submission's own code runs, matching the defense-in-depth
// the original judge wraps around every Python submission: rlimit
// alone can be bypassed by a process that catches SIGXCPU, so an
// alarm-triggered SIGKILL backs it up.
const pythonPreTemplate = `
def _exec_prepare():
    import signal
    import resource
    import os

    os.environ['OPENBLAS_NUM_THREADS'] = '1'

    def _exec_time_exceeded(*_):
        print('Suicide from timeout.', flush=True)
        try:
            os.killpg(0, signal.SIGKILL)
        except Exception:
            pass
        try:
            os.kill(0, signal.SIGKILL)
        except Exception:
            pass
        os._exit(%d)

    timeout = %d
    memory_limit = %d

    resource.setrlimit(resource.RLIMIT_CORE, (0, 0))
    if timeout:
        signal.signal(signal.SIGALRM, _exec_time_exceeded)
        signal.alarm(timeout)
        soft, hard = resource.getrlimit(resource.RLIMIT_CPU)
        resource.setrlimit(resource.RLIMIT_CPU, (timeout, hard))
    if memory_limit:
        soft, hard = resource.getrlimit(resource.RLIMIT_AS)
        resource.setrlimit(resource.RLIMIT_AS, (memory_limit, hard))

_exec_prepare()
`

// scriptEndingMark separates the submission's own stdout from the
// runtime-cost trailer PythonAdapter appends after it.
const scriptEndingMark = "@@E"
const durationMark = "@@D"

const pythonPostTemplate = `

def _exec_end():
    import time
    print("` + scriptEndingMark + `")
    print("` + durationMark + `" + str(time.process_time()), flush=True)

_exec_end()
`

// pythonMemoryOverheadBytes is headroom added on top of the
// submission's configured memory limit for the interpreter's own
// footprint, so legitimate programs near the limit are not killed for
// overhead they did not ask for.
const pythonMemoryOverheadBytes = 128 * 1024 * 1024

// PythonAdapter runs a submission under CPython with an injected
// rlimit+alarm preamble.
type PythonAdapter struct {
	PythonPath string
}

// NewGenerator writes the wrapped source to source.py and returns a
// single-stage CommandGenerator that interprets it directly.
func (a *PythonAdapter) NewGenerator(workDir, source string, timeoutSeconds, memoryLimitBytes int) (sandbox.CommandGenerator, error) {
	memLimit := 0
	if memoryLimitBytes > 0 {
		memLimit = memoryLimitBytes + pythonMemoryOverheadBytes
	}

	var b strings.Builder
	fmt.Fprintf(&b, pythonPreTemplate, sandbox.TimeoutExitCode, timeoutSeconds, memLimit)
	b.WriteString("\n")
	b.WriteString(source)
	b.WriteString("\n")
	b.WriteString(pythonPostTemplate)

	sourcePath := filepath.Join(workDir, "source.py")
	if err := os.WriteFile(sourcePath, []byte(b.String()), 0o644); err != nil {
		return nil, fmt.Errorf("lang: writing python source: %w", err)
	}

	pythonPath := a.PythonPath
	if pythonPath == "" {
		pythonPath = "python3"
	}

	return &pythonGenerator{cmd: []string{pythonPath, sourcePath}}, nil
}

type pythonGenerator struct {
	cmd  []string
	used bool
}

func (g *pythonGenerator) Next(prev *sandbox.ProcessExecuteResult) ([]string, bool, error) {
	if g.used {
		return nil, true, nil
	}
	g.used = true
	return g.cmd, false, nil
}

// SplitTrailer separates a submission's real stdout from the
// scriptEndingMark/durationMark trailer PythonAdapter's post-template
// appends, returning the clean stdout. Callers that don't need the
// reported duration can ignore the second return value.
func SplitTrailer(stdout string) (clean string, durationLine string) {
	idx := strings.Index(stdout, scriptEndingMark)
	if idx < 0 {
		return stdout, ""
	}
	clean = stdout[:idx]
	trailer := stdout[idx+len(scriptEndingMark):]
	for _, line := range strings.Split(trailer, "\n") {
		if strings.HasPrefix(line, durationMark) {
			return clean, strings.TrimPrefix(line, durationMark)
		}
	}
	return clean, ""
}
