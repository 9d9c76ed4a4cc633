// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package transform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dataforge/migrator/internal/model"
)

// EnvGetter is a pure lookup function from environment variable name to its
// value, or "", false if unset. Both evaluation contexts below thread the
// same EnvGetter through so a computed expression can read env() the same
// way whether it is being evaluated at schema-build time or per-row at
// runtime.
type EnvGetter func(name string) (string, bool)

// EvalContext selects what an expression's identifiers and dot-paths
// resolve against. It mirrors the original's build-time/runtime split
// (crates/expression-engine/src/context.rs): schema and type inference
// need only the declared column definitions and env, while per-row
// computed fields need the row's actual field values. No field mapping is
// carried here: identifiers resolve against the row's current field names.
type EvalContext struct {
	// Row is the current row being transformed. Nil in build-time contexts.
	Row *model.Row
	// Definitions holds column-name -> declared-type info used for
	// build-time (schema inference) evaluation when Row is nil.
	Definitions map[string]string
	Env         EnvGetter
}

// Evaluator evaluates a parsed Expr against an EvalContext, producing a
// model.Value. regexp2 backs the matches() builtin (see functions.go) for
// pattern features (lookaround, backreferences) stdlib regexp's RE2 engine
// cannot express.
type Evaluator struct{}

func NewEvaluator() Evaluator { return Evaluator{} }

// Evaluate parses and evaluates src against ctx in one step.
func (e Evaluator) Evaluate(src string, ctx EvalContext) (model.Value, error) {
	expr, err := ParseExpr(src)
	if err != nil {
		return model.Value{}, err
	}
	return e.EvaluateExpr(expr, ctx)
}

// EvaluateExpr evaluates an already-parsed Expr against ctx.
func (e Evaluator) EvaluateExpr(expr Expr, ctx EvalContext) (model.Value, error) {
	switch expr.Kind {
	case ExprLiteral:
		return evalLiteral(expr), nil

	case ExprIdentifier:
		return e.resolveIdent(expr.Path[0], ctx)

	case ExprDotPath:
		return e.resolveDotPath(expr.Path, ctx)

	case ExprGrouped:
		return e.EvaluateExpr(*expr.Inner, ctx)

	case ExprIsNull:
		v, err := e.EvaluateExpr(*expr.Inner, ctx)
		if err != nil {
			return model.Value{}, err
		}
		return model.Bool(v.IsNull()), nil

	case ExprIsNotNull:
		v, err := e.EvaluateExpr(*expr.Inner, ctx)
		if err != nil {
			return model.Value{}, err
		}
		return model.Bool(!v.IsNull()), nil

	case ExprUnary:
		return e.evalUnary(expr, ctx)

	case ExprBinary:
		return e.evalBinary(expr, ctx)

	case ExprArray:
		// Arrays evaluate to a comma-joined string representation; the
		// expression language has no first-class array Value, matching the
		// original's scalar-only Value type used by computed fields.
		parts := make([]string, len(expr.Elements))
		for i, el := range expr.Elements {
			v, err := e.EvaluateExpr(el, ctx)
			if err != nil {
				return model.Value{}, err
			}
			parts[i] = v.AsString()
		}
		return model.String(strings.Join(parts, ",")), nil

	case ExprWhen:
		return e.evalWhen(expr, ctx)

	case ExprFunctionCall:
		return e.evalFunctionCall(expr, ctx)

	default:
		return model.Value{}, fmt.Errorf("transform: unhandled expression kind %d", expr.Kind)
	}
}

func evalLiteral(expr Expr) model.Value {
	switch expr.LiteralKind {
	case LiteralString:
		return model.String(expr.Str)
	case LiteralNumber:
		return model.Float(expr.Num)
	case LiteralBool:
		return model.Bool(expr.Bool)
	default:
		return model.Null()
	}
}

func (e Evaluator) resolveIdent(name string, ctx EvalContext) (model.Value, error) {
	if name == "env" {
		return model.Value{}, fmt.Errorf("transform: env must be called as a function, e.g. env(\"NAME\")")
	}
	if ctx.Row != nil {
		if v, ok := ctx.Row.Get(name); ok {
			return v, nil
		}
		return model.Null(), nil
	}
	if t, ok := ctx.Definitions[name]; ok {
		return model.String(t), nil
	}
	return model.Null(), nil
}

func (e Evaluator) resolveDotPath(path []string, ctx EvalContext) (model.Value, error) {
	// The only dot-path form the row context supports is table.column,
	// where table is the row's own entity name (computed fields only see
	// their own row, never a join).
	if ctx.Row != nil {
		return e.resolveIdent(path[len(path)-1], ctx)
	}
	return model.Null(), nil
}

func (e Evaluator) evalUnary(expr Expr, ctx EvalContext) (model.Value, error) {
	v, err := e.EvaluateExpr(*expr.Operand, ctx)
	if err != nil {
		return model.Value{}, err
	}
	switch expr.UnOp {
	case OpNot:
		return model.Bool(!truthy(v)), nil
	case OpNegate:
		f, err := asFloat(v)
		if err != nil {
			return model.Value{}, err
		}
		return model.Float(-f), nil
	default:
		return model.Value{}, fmt.Errorf("transform: unknown unary operator")
	}
}

func (e Evaluator) evalBinary(expr Expr, ctx EvalContext) (model.Value, error) {
	if expr.BinOp == OpAnd || expr.BinOp == OpOr {
		left, err := e.EvaluateExpr(*expr.Left, ctx)
		if err != nil {
			return model.Value{}, err
		}
		if expr.BinOp == OpAnd && !truthy(left) {
			return model.Bool(false), nil
		}
		if expr.BinOp == OpOr && truthy(left) {
			return model.Bool(true), nil
		}
		right, err := e.EvaluateExpr(*expr.Right, ctx)
		if err != nil {
			return model.Value{}, err
		}
		return model.Bool(truthy(right)), nil
	}

	left, err := e.EvaluateExpr(*expr.Left, ctx)
	if err != nil {
		return model.Value{}, err
	}
	right, err := e.EvaluateExpr(*expr.Right, ctx)
	if err != nil {
		return model.Value{}, err
	}

	switch expr.BinOp {
	case OpEq:
		return model.Bool(valuesEqual(left, right)), nil
	case OpNotEq:
		return model.Bool(!valuesEqual(left, right)), nil
	case OpGt, OpLt, OpGtEq, OpLtEq:
		return evalComparison(expr.BinOp, left, right)
	case OpAdd:
		// "+" doubles as string concatenation when either side is a string,
		// matching the computed-field DSL's most common use (building a
		// display name from two columns).
		if left.Kind == model.ValueString || right.Kind == model.ValueString {
			return model.String(left.AsString() + right.AsString()), nil
		}
		return arith(left, right, func(a, b float64) float64 { return a + b })
	case OpSub:
		return arith(left, right, func(a, b float64) float64 { return a - b })
	case OpMul:
		return arith(left, right, func(a, b float64) float64 { return a * b })
	case OpDiv:
		return arith(left, right, func(a, b float64) float64 {
			if b == 0 {
				return 0
			}
			return a / b
		})
	case OpMod:
		return arith(left, right, func(a, b float64) float64 {
			if b == 0 {
				return 0
			}
			return float64(int64(a) % int64(b))
		})
	default:
		return model.Value{}, fmt.Errorf("transform: unknown binary operator")
	}
}

func evalComparison(op BinaryOp, left, right model.Value) (model.Value, error) {
	var less, greater bool
	if left.Kind == model.ValueString || right.Kind == model.ValueString {
		less = left.AsString() < right.AsString()
		greater = left.AsString() > right.AsString()
	} else {
		a, err := asFloat(left)
		if err != nil {
			return model.Value{}, err
		}
		b, err := asFloat(right)
		if err != nil {
			return model.Value{}, err
		}
		less = a < b
		greater = a > b
	}
	switch op {
	case OpGt:
		return model.Bool(greater), nil
	case OpLt:
		return model.Bool(less), nil
	case OpGtEq:
		return model.Bool(greater || (!less && !greater)), nil
	case OpLtEq:
		return model.Bool(less || (!less && !greater)), nil
	default:
		return model.Value{}, fmt.Errorf("transform: unknown comparison operator")
	}
}

func arith(left, right model.Value, fn func(a, b float64) float64) (model.Value, error) {
	a, err := asFloat(left)
	if err != nil {
		return model.Value{}, err
	}
	b, err := asFloat(right)
	if err != nil {
		return model.Value{}, err
	}
	return model.Float(fn(a, b)), nil
}

func asFloat(v model.Value) (float64, error) {
	switch v.Kind {
	case model.ValueFloat:
		return v.Float, nil
	case model.ValueInt:
		return float64(v.Int), nil
	case model.ValueNull:
		return 0, nil
	case model.ValueString:
		f, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return 0, fmt.Errorf("transform: cannot use %q as a number", v.Str)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("transform: cannot use value of kind %d as a number", v.Kind)
	}
}

func truthy(v model.Value) bool {
	switch v.Kind {
	case model.ValueBool:
		return v.Bool
	case model.ValueNull:
		return false
	case model.ValueString:
		return v.Str != ""
	case model.ValueInt:
		return v.Int != 0
	case model.ValueFloat:
		return v.Float != 0
	default:
		return true
	}
}

func valuesEqual(a, b model.Value) bool {
	if a.Kind == model.ValueNull || b.Kind == model.ValueNull {
		return a.Kind == b.Kind
	}
	if a.Kind == model.ValueString || b.Kind == model.ValueString {
		return a.AsString() == b.AsString()
	}
	af, aerr := asFloat(a)
	bf, berr := asFloat(b)
	if aerr == nil && berr == nil {
		return af == bf
	}
	return a.AsString() == b.AsString()
}

func (e Evaluator) evalWhen(expr Expr, ctx EvalContext) (model.Value, error) {
	for _, branch := range expr.Branches {
		cond, err := e.EvaluateExpr(branch.Condition, ctx)
		if err != nil {
			return model.Value{}, err
		}
		if truthy(cond) {
			return e.EvaluateExpr(branch.Value, ctx)
		}
	}
	if expr.ElseValue != nil {
		return e.EvaluateExpr(*expr.ElseValue, ctx)
	}
	return model.Null(), nil
}
