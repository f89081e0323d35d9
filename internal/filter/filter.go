// Package filter narrows option lists with user supplied predicates such as
//
//	kind == "node" && layer startsWith "Store"
//	geometry in ["point", "polygon"] || label matches "^sales_"
//
// Predicates are expr-lang expressions evaluated against the fields of one
// option at a time.
package filter

import (
	"errors"
	"fmt"
	"strings"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
	"github.com/leapstack-labs/mapsource/pkg/core"
)

// env is the variable set visible to a predicate. Layer fields are empty
// for table options.
type env struct {
	ID       string `expr:"id"`
	Label    string `expr:"label"`
	Kind     string `expr:"kind"`
	Geometry string `expr:"geometry"`
	Layer    string `expr:"layer"`
	Color    string `expr:"color"`
	Title    string `expr:"title"`
}

// Predicate is a compiled filter expression.
type Predicate struct {
	expression string
	program    *exprvm.Program
}

// Compile compiles expression. An empty or blank expression yields a nil
// predicate, which matches every option.
func Compile(expression string) (*Predicate, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, nil
	}

	program, err := exprlang.Compile(expression,
		exprlang.Env(env{}),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expression, err)
	}
	return &Predicate{expression: expression, program: program}, nil
}

// String returns the source expression.
func (p *Predicate) String() string {
	if p == nil {
		return ""
	}
	return p.expression
}

// Match reports whether opt satisfies the predicate.
func (p *Predicate) Match(opt core.SourceOption) (bool, error) {
	if p == nil {
		return true, nil
	}
	if opt == nil {
		return false, errors.New("nil option")
	}

	out, err := exprlang.Run(p.program, envOf(opt))
	if err != nil {
		return false, fmt.Errorf("filter %q on %s: %w", p.expression, opt.Identifier(), err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Apply returns the options matching p, preserving order.
func (p *Predicate) Apply(opts []core.SourceOption) ([]core.SourceOption, error) {
	if p == nil {
		return opts, nil
	}
	out := make([]core.SourceOption, 0, len(opts))
	for _, opt := range opts {
		ok, err := p.Match(opt)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, opt)
		}
	}
	return out, nil
}

func envOf(opt core.SourceOption) env {
	e := env{
		ID:       opt.Identifier(),
		Label:    opt.Label(),
		Kind:     string(opt.Kind()),
		Geometry: string(opt.Geometry()),
	}
	if n, ok := opt.(core.NodeOption); ok {
		e.Layer = n.LayerName
		e.Color = n.LayerColor
		e.Title = n.Title
	}
	return e
}
