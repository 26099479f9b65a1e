package runtime

import (
	"context"
	"math"

	"github.com/risor-io/risor/object"
)

// mathPrefix keeps the Tcl math functions from colliding with Risor's own
// builtins (int, float, min, ...).
const mathPrefix = "tcl_"

var mathFuncs = map[string]*object.Builtin{
	"abs":    numericFunc("abs", 1, nil),
	"int":    numericFunc("int", 1, func(x []float64) float64 { return math.Trunc(x[0]) }),
	"round":  numericFunc("round", 1, func(x []float64) float64 { return math.Round(x[0]) }),
	"floor":  floatFunc("floor", 1, func(x []float64) float64 { return math.Floor(x[0]) }),
	"ceil":   floatFunc("ceil", 1, func(x []float64) float64 { return math.Ceil(x[0]) }),
	"double": floatFunc("double", 1, func(x []float64) float64 { return x[0] }),
	"sqrt":   floatFunc("sqrt", 1, func(x []float64) float64 { return math.Sqrt(x[0]) }),
	"exp":    floatFunc("exp", 1, func(x []float64) float64 { return math.Exp(x[0]) }),
	"log":    floatFunc("log", 1, func(x []float64) float64 { return math.Log(x[0]) }),
	"log10":  floatFunc("log10", 1, func(x []float64) float64 { return math.Log10(x[0]) }),
	"sin":    floatFunc("sin", 1, func(x []float64) float64 { return math.Sin(x[0]) }),
	"cos":    floatFunc("cos", 1, func(x []float64) float64 { return math.Cos(x[0]) }),
	"tan":    floatFunc("tan", 1, func(x []float64) float64 { return math.Tan(x[0]) }),
	"asin":   floatFunc("asin", 1, func(x []float64) float64 { return math.Asin(x[0]) }),
	"acos":   floatFunc("acos", 1, func(x []float64) float64 { return math.Acos(x[0]) }),
	"atan":   floatFunc("atan", 1, func(x []float64) float64 { return math.Atan(x[0]) }),
	"atan2":  floatFunc("atan2", 2, func(x []float64) float64 { return math.Atan2(x[0], x[1]) }),
	"pow":    floatFunc("pow", 2, func(x []float64) float64 { return math.Pow(x[0], x[1]) }),
	"hypot":  floatFunc("hypot", 2, func(x []float64) float64 { return math.Hypot(x[0], x[1]) }),
	"fmod":   floatFunc("fmod", 2, func(x []float64) float64 { return math.Mod(x[0], x[1]) }),
	"min":    extremum("min", func(a, b float64) bool { return a < b }),
	"max":    extremum("max", func(a, b float64) bool { return a > b }),
}

// toFloat converts a numeric operand. isInt reports whether it was an Int.
func toFloat(name string, obj object.Object) (f float64, isInt bool, errObj *object.Error) {
	switch v := obj.(type) {
	case *object.Int:
		return float64(v.Value()), true, nil
	case *object.Float:
		return v.Value(), false, nil
	case *object.Bool:
		if v.Value() {
			return 1, true, nil
		}
		return 0, true, nil
	}
	return 0, false, object.Errorf("%s: expected number but got %s", name, obj.Inspect())
}

func floatArgs(name string, n int, args []object.Object) ([]float64, *object.Error) {
	if len(args) != n {
		return nil, object.NewArgsError(name, n, len(args))
	}
	xs := make([]float64, n)
	for i, a := range args {
		f, _, errObj := toFloat(name, a)
		if errObj != nil {
			return nil, errObj
		}
		xs[i] = f
	}
	return xs, nil
}

// floatFunc builds a function whose result is always a Float.
func floatFunc(name string, n int, fn func([]float64) float64) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		xs, errObj := floatArgs(name, n, args)
		if errObj != nil {
			return errObj
		}
		return object.NewFloat(fn(xs))
	})
}

// numericFunc builds a function that returns an Int where Tcl does. A nil
// fn is abs, which keeps the operand type.
func numericFunc(name string, n int, fn func([]float64) float64) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if fn == nil && len(args) == 1 {
			if v, ok := args[0].(*object.Int); ok {
				if v.Value() < 0 {
					return object.NewInt(-v.Value())
				}
				return v
			}
		}
		xs, errObj := floatArgs(name, n, args)
		if errObj != nil {
			return errObj
		}
		if fn == nil {
			return object.NewFloat(math.Abs(xs[0]))
		}
		return object.NewInt(int64(fn(xs)))
	})
}

func extremum(name string, better func(a, b float64) bool) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) == 0 {
			return object.Errorf("%s: too few arguments", name)
		}
		best := args[0]
		bestF, _, errObj := toFloat(name, best)
		if errObj != nil {
			return errObj
		}
		for _, a := range args[1:] {
			f, _, errObj := toFloat(name, a)
			if errObj != nil {
				return errObj
			}
			if better(f, bestF) {
				best, bestF = a, f
			}
		}
		return best
	})
}

// opPrefix names the operator builtins, apart from the math functions.
const opPrefix = "tclop_"

var opFuncs = map[string]*object.Builtin{
	opPrefix + "div":  object.NewBuiltin("/", divOp),
	opPrefix + "mod":  object.NewBuiltin("%", modOp),
	opPrefix + "pow":  object.NewBuiltin("**", powOp),
	opPrefix + "bnot": object.NewBuiltin("~", bnotOp),
}

// toInt accepts Int and Bool operands.
func toInt(obj object.Object) (int64, bool) {
	switch v := obj.(type) {
	case *object.Int:
		return v.Value(), true
	case *object.Bool:
		if v.Value() {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func operandError(op string, obj object.Object) *object.Error {
	if _, ok := obj.(*object.Float); ok {
		return object.Errorf("can't use floating-point value as operand of %q", op)
	}
	return object.Errorf("can't use non-numeric string as operand of %q", op)
}

// divOp floors integer quotients, so -7/2 is -4.
func divOp(_ context.Context, args ...object.Object) object.Object {
	if len(args) != 2 {
		return object.NewArgsError("/", 2, len(args))
	}
	a, aInt := toInt(args[0])
	b, bInt := toInt(args[1])
	if aInt && bInt {
		if b == 0 {
			return object.Errorf("divide by zero")
		}
		q := a / b
		if (a%b != 0) && ((a < 0) != (b < 0)) {
			q--
		}
		return object.NewInt(q)
	}
	x, _, errObj := toFloat("/", args[0])
	if errObj != nil {
		return operandError("/", args[0])
	}
	y, _, errObj := toFloat("/", args[1])
	if errObj != nil {
		return operandError("/", args[1])
	}
	return object.NewFloat(x / y)
}

// modOp takes the sign of the divisor, so -7%2 is 1.
func modOp(_ context.Context, args ...object.Object) object.Object {
	if len(args) != 2 {
		return object.NewArgsError("%", 2, len(args))
	}
	for _, a := range args {
		if _, ok := toInt(a); !ok {
			return operandError("%", a)
		}
	}
	a, _ := toInt(args[0])
	b, _ := toInt(args[1])
	if b == 0 {
		return object.Errorf("divide by zero")
	}
	r := a % b
	if r != 0 && ((r < 0) != (b < 0)) {
		r += b
	}
	return object.NewInt(r)
}

// powOp keeps integer results for integer operands.
func powOp(_ context.Context, args ...object.Object) object.Object {
	if len(args) != 2 {
		return object.NewArgsError("**", 2, len(args))
	}
	base, bInt := toInt(args[0])
	exp, eInt := toInt(args[1])
	if !bInt || !eInt {
		x, _, errObj := toFloat("**", args[0])
		if errObj != nil {
			return operandError("**", args[0])
		}
		y, _, errObj := toFloat("**", args[1])
		if errObj != nil {
			return operandError("**", args[1])
		}
		return object.NewFloat(math.Pow(x, y))
	}
	if exp < 0 {
		switch base {
		case 0:
			return object.Errorf("exponentiation of zero by negative power")
		case 1:
			return object.NewInt(1)
		case -1:
			if exp%2 == 0 {
				return object.NewInt(1)
			}
			return object.NewInt(-1)
		}
		return object.NewInt(0)
	}
	result := int64(1)
	for ; exp > 0; exp >>= 1 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
	}
	return object.NewInt(result)
}

func bnotOp(_ context.Context, args ...object.Object) object.Object {
	if len(args) != 1 {
		return object.NewArgsError("~", 1, len(args))
	}
	v, ok := toInt(args[0])
	if !ok {
		return operandError("~", args[0])
	}
	return object.NewInt(^v)
}
