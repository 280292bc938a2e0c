// Package recipe evaluates mesh processing recipes written in a small Lisp.
// It wraps zygomys in a sandboxed environment whose builtins append stages
// to a Recipe in evaluation order.
package recipe

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/meshforge/pkg/meshio"
	"github.com/chazu/meshforge/pkg/stage"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError is a non-fatal error in recipe source, such as a parse error,
// an unknown builtin or an out-of-domain parameter.
type EvalError struct {
	Line    int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Export is the export target declared by a recipe.
type Export struct {
	Format  meshio.Format
	Prefix  string
	Preview bool
}

// Recipe is the result of evaluating recipe source.
type Recipe struct {
	Stages []stage.Stage
	// Export is nil when the recipe declares no export.
	Export *Export
}

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = 5 * time.Second

// Engine evaluates recipes. It is safe for concurrent use; each call to
// Evaluate runs in a fresh sandbox, and a call that is overtaken by a
// newer one reports its result as superseded.
type Engine struct {
	Timeout time.Duration

	mu         sync.Mutex
	generation uint64
}

// NewEngine returns an Engine with DefaultTimeout.
func NewEngine() *Engine {
	return &Engine{Timeout: DefaultTimeout}
}

// Evaluate runs source and returns the recipe it describes.
//
// Return semantics:
//   - On success: recipe, nil, nil
//   - On errors in the source: nil, eval errors, nil
//   - On timeout, panic or supersession: nil, nil, error
func (e *Engine) Evaluate(source string) (*Recipe, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	timeout := e.Timeout
	e.mu.Unlock()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ch := make(chan evalResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("recipe: panic during evaluation: %v", r)}
			}
		}()
		r, evalErrs, err := evaluate(source)
		ch <- evalResult{recipe: r, errors: evalErrs, err: err}
	}()

	return waitWithTimeout(ch, gen, timeout, &e.mu, &e.generation)
}

// EvaluateFile reads and evaluates the recipe at path. Eval errors are
// joined into the returned error.
func (e *Engine) EvaluateFile(path string) (*Recipe, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("recipe: %w", err)
	}
	r, evalErrs, err := e.Evaluate(string(src))
	if err != nil {
		return nil, err
	}
	if len(evalErrs) > 0 {
		msgs := make([]string, len(evalErrs))
		for i, ee := range evalErrs {
			msgs[i] = ee.Error()
		}
		return nil, fmt.Errorf("recipe %s: %s", path, strings.Join(msgs, "; "))
	}
	return r, nil
}

func evaluate(source string) (*Recipe, []EvalError, error) {
	r := &Recipe{}
	if strings.TrimSpace(source) == "" {
		return r, nil, nil
	}

	// Sandbox mode keeps recipes away from the filesystem and syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerBuiltins(env, r)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}
	return r, nil, nil
}

// linePattern matches zygomys messages of the form "Error on line N: ...".
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into eval errors, keeping the
// line number when the message carries one.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
