package behavior

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/nstehr/vimy/vimy-tactics/bt"
)

// CompileCondition compiles an expr boolean against Env. Runtime errors are
// logged and read as false.
func CompileCondition(src string) (bt.Predicate, error) {
	prog, err := expr.Compile(src, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", src, err)
	}
	return func(ctx *bt.Context) bool {
		out, err := vm.Run(prog, envFor(ctx))
		if err != nil {
			slog.Warn("condition error", "expr", src, "unit", ctx.EntityID, "error", err)
			return false
		}
		b, ok := out.(bool)
		return ok && b
	}, nil
}

// CompileScore compiles an expr number against Env. Runtime errors are
// logged and read as -Inf so the option is never picked.
func CompileScore(src string) (func(ctx *bt.Context) float64, error) {
	prog, err := expr.Compile(src, expr.Env(Env{}), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("compile score %q: %w", src, err)
	}
	return func(ctx *bt.Context) float64 {
		out, err := vm.Run(prog, envFor(ctx))
		if err != nil {
			slog.Warn("score error", "expr", src, "unit", ctx.EntityID, "error", err)
			return math.Inf(-1)
		}
		f, ok := out.(float64)
		if !ok {
			return math.Inf(-1)
		}
		return f
	}, nil
}

func mustCondition(src string) bt.Predicate {
	p, err := CompileCondition(src)
	if err != nil {
		panic(err)
	}
	return p
}

func mustScore(src string) func(*bt.Context) float64 {
	s, err := CompileScore(src)
	if err != nil {
		panic(err)
	}
	return s
}
