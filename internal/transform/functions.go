// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package transform

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/dataforge/migrator/internal/model"
)

func (e Evaluator) evalFunctionCall(expr Expr, ctx EvalContext) (model.Value, error) {
	args := make([]model.Value, len(expr.Args))
	for i, a := range expr.Args {
		// env() takes its single argument as a literal name, not a value to
		// evaluate against the row — handle it before evaluating args.
		if expr.FuncName == "env" {
			break
		}
		v, err := e.EvaluateExpr(a, ctx)
		if err != nil {
			return model.Value{}, err
		}
		args[i] = v
	}

	switch expr.FuncName {
	case "env":
		return e.callEnv(expr, ctx)
	case "lower":
		if err := arity(expr.FuncName, args, 1); err != nil {
			return model.Value{}, err
		}
		return model.String(strings.ToLower(args[0].AsString())), nil
	case "upper":
		if err := arity(expr.FuncName, args, 1); err != nil {
			return model.Value{}, err
		}
		return model.String(strings.ToUpper(args[0].AsString())), nil
	case "trim":
		if err := arity(expr.FuncName, args, 1); err != nil {
			return model.Value{}, err
		}
		return model.String(strings.TrimSpace(args[0].AsString())), nil
	case "concat":
		var b strings.Builder
		for _, a := range args {
			b.WriteString(a.AsString())
		}
		return model.String(b.String()), nil
	case "coalesce":
		for _, a := range args {
			if !a.IsNull() {
				return a, nil
			}
		}
		return model.Null(), nil
	case "length":
		if err := arity(expr.FuncName, args, 1); err != nil {
			return model.Value{}, err
		}
		return model.Int(int64(len(args[0].AsString()))), nil
	case "matches":
		if err := arity(expr.FuncName, args, 2); err != nil {
			return model.Value{}, err
		}
		return callMatches(args[0], args[1])
	default:
		return model.Value{}, fmt.Errorf("transform: unknown function %q", expr.FuncName)
	}
}

func arity(name string, args []model.Value, n int) error {
	if len(args) != n {
		return fmt.Errorf("transform: %s() expects %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

func (e Evaluator) callEnv(expr Expr, ctx EvalContext) (model.Value, error) {
	if len(expr.Args) != 1 || expr.Args[0].Kind != ExprLiteral || expr.Args[0].LiteralKind != LiteralString {
		return model.Value{}, fmt.Errorf("transform: env() expects a single string literal argument")
	}
	if ctx.Env == nil {
		return model.Null(), nil
	}
	v, ok := ctx.Env(expr.Args[0].Str)
	if !ok {
		return model.Null(), nil
	}
	return model.String(v), nil
}

// callMatches implements the matches(value, pattern) builtin using
// regexp2, which supports the lookaround/backreference syntax stdlib
// regexp's RE2 engine cannot, so the DSL can express patterns like
// `matches(email, "(?<=@)\\w+\\.com$")`.
func callMatches(value, pattern model.Value) (model.Value, error) {
	if value.IsNull() {
		return model.Bool(false), nil
	}
	re, err := regexp2.Compile(pattern.AsString(), regexp2.None)
	if err != nil {
		return model.Value{}, fmt.Errorf("transform: invalid matches() pattern: %w", err)
	}
	ok, err := re.MatchString(value.AsString())
	if err != nil {
		return model.Value{}, fmt.Errorf("transform: matches() evaluation failed: %w", err)
	}
	return model.Bool(ok), nil
}
