package completion

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// FilterEnv is the environment completion filter expressions are evaluated against.
type FilterEnv struct {
	Name     string
	SavePath string
	InfoHash string
	Tracker  string
	Files    int
	Size     int64
}

// Filter decides whether completion side effects run for a job.
// A nil Filter matches everything.
type Filter struct {
	expression string
	program    *vm.Program
}

// CompileFilter compiles a boolean expression. An empty expression yields a nil Filter.
func CompileFilter(expression string) (*Filter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, nil
	}
	program, err := expr.Compile(expression, expr.Env(FilterEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling completion filter %q: %w", expression, err)
	}
	return &Filter{expression: expression, program: program}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expression
}

// Match evaluates the filter for a job.
func (f *Filter) Match(j Job) (bool, error) {
	if f == nil {
		return true, nil
	}
	env := FilterEnv{
		Name:     j.Name,
		SavePath: j.SavePath,
		InfoHash: j.InfoHash,
		Tracker:  j.Tracker,
		Files:    len(j.Files),
		Size:     j.Size,
	}
	result, err := expr.Run(f.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluating completion filter: %w", err)
	}
	return result.(bool), nil
}
