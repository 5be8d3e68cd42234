package builtin

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/longregen/cogexec/internal/domain/models"
	"github.com/longregen/cogexec/internal/ports"
)

var CalculatorSpec = &models.ToolSpec{
	Name:        "calculator",
	Description: "Evaluates mathematical expressions. Supports +, -, *, /, ^, and sqrt/abs/sin/cos/tan/log/ln/ceil/floor.",
	ArgSchema: models.ArgSchema{
		Required: []string{"expression"},
		Properties: map[string]models.ArgConstraint{
			"expression": {Type: "string"},
		},
	},
	RiskTier:       models.RiskSafe,
	RateLimitClass: "safe",
	SideEffect:     models.SideEffectReadOnly,
}

type Calculator struct{}

func NewCalculator() *Calculator { return &Calculator{} }

func (c *Calculator) Run(ctx context.Context, args map[string]any, execCtx *ports.ExecutionContext) (*models.ExecutionResult, error) {
	start := time.Now()

	expression, ok := args["expression"].(string)
	if !ok || expression == "" {
		return nil, fmt.Errorf("expression must be a non-empty string")
	}

	result, err := evaluateExpression(expression)
	if err != nil {
		return &models.ExecutionResult{
			Success:      false,
			ErrorKind:    "evaluation_error",
			ErrorMessage: err.Error(),
			Duration:     time.Since(start),
		}, nil
	}

	return &models.ExecutionResult{
		Success:  true,
		Value:    map[string]any{"expression": expression, "result": result},
		Duration: time.Since(start),
	}, nil
}

// evaluateExpression is a minimal recursive-descent-by-substring evaluator:
// good enough for the single-shot arithmetic the calculator tool is scoped
// to, not a general parser. It does not handle parentheses beyond the
// function-call forms below.
func evaluateExpression(expr string) (float64, error) {
	expr = strings.TrimSpace(expr)
	expr = strings.ToLower(expr)

	for _, fn := range []struct {
		prefix string
		apply  func(float64) float64
	}{
		{"sqrt(", math.Sqrt},
		{"abs(", math.Abs},
		{"sin(", math.Sin},
		{"cos(", math.Cos},
		{"tan(", math.Tan},
		{"log(", math.Log10},
		{"ln(", math.Log},
		{"ceil(", math.Ceil},
		{"floor(", math.Floor},
	} {
		if strings.HasPrefix(expr, fn.prefix) && strings.HasSuffix(expr, ")") {
			inner := expr[len(fn.prefix) : len(expr)-1]
			val, err := evaluateExpression(inner)
			if err != nil {
				return 0, err
			}
			return fn.apply(val), nil
		}
	}

	if strings.Contains(expr, "^") {
		parts := strings.SplitN(expr, "^", 2)
		if len(parts) != 2 {
			return 0, fmt.Errorf("invalid exponentiation expression")
		}
		base, err := evaluateExpression(parts[0])
		if err != nil {
			return 0, err
		}
		exp, err := evaluateExpression(parts[1])
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}

	for i, op := range []string{"*", "/"} {
		if strings.Contains(expr, op) {
			parts := strings.SplitN(expr, op, 2)
			if len(parts) != 2 {
				return 0, fmt.Errorf("invalid %s expression", op)
			}
			left, err := evaluateExpression(parts[0])
			if err != nil {
				return 0, err
			}
			right, err := evaluateExpression(parts[1])
			if err != nil {
				return 0, err
			}
			if i == 0 {
				return left * right, nil
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return left / right, nil
		}
	}

	for i, op := range []string{"+", "-"} {
		idx := strings.LastIndex(expr, op)
		if idx > 0 {
			left, err := evaluateExpression(expr[:idx])
			if err != nil {
				return 0, err
			}
			right, err := evaluateExpression(expr[idx+1:])
			if err != nil {
				return 0, err
			}
			if i == 0 {
				return left + right, nil
			}
			return left - right, nil
		}
	}

	val, err := strconv.ParseFloat(expr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid expression: %s", expr)
	}
	return val, nil
}
