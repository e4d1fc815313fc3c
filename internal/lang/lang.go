// Package lang adapts the language-agnostic sandbox executor to
// specific languages: it writes the submission's source into a
// sandbox work directory wrapped in a resource-limiting preamble, and
// produces the staged commands sandbox.Execute needs to run it.
package lang

import (
	"fmt"

	"github.com/PATRIC3/judge-host/internal/judge"
	"github.com/PATRIC3/judge-host/internal/sandbox"
)

// Adapter builds a sandbox.CommandGenerator for one submission,
// writing whatever source files that language needs into workDir.
type Adapter interface {
	// NewGenerator writes the wrapped source into workDir and returns
	// a CommandGenerator that will compile (if needed) and run it.
	NewGenerator(workDir, source string, timeoutSeconds, memoryLimitBytes int) (sandbox.CommandGenerator, error)
}

// For builds the Adapter for a given language, using cfg's
// compiler/interpreter paths.
func For(language judge.Language, cfg Config) (Adapter, error) {
	switch language {
	case judge.LanguagePython:
		return &PythonAdapter{PythonPath: cfg.PythonPath}, nil
	case judge.LanguageCpp:
		return &CppAdapter{CompilerPath: cfg.CppCompilerPath, CompileFlags: cfg.CppCompileFlags}, nil
	default:
		return nil, fmt.Errorf("lang: unsupported language %q", language)
	}
}

// Config carries the compiler/interpreter paths an Adapter needs,
// mirroring internal/config.LangConfig without importing internal/config
// (adapters should not need to know about viper or the rest of the
// config tree).
type Config struct {
	PythonPath      string
	CppCompilerPath string
	CppCompileFlags string
}
