package validation

import (
	"fmt"

	"route-pipeline/internal/model"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"
)

// RegisterExpression compiles a CEL expression and registers it as a custom predicate.
// The expression sees `value` (the rule's field) and `record` (the whole record)
// and must evaluate to a bool.
func (e *Engine) RegisterExpression(name, expr string) error {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return fmt.Errorf("cel environment: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return model.Errorf(model.KindConfiguration, "predicate "+name, "compile %q: %v", expr, iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return model.Errorf(model.KindConfiguration, "predicate "+name, "program: %v", err)
	}

	e.RegisterCustom(name, func(value interface{}, rec model.CanonicalRecord, _ map[string]interface{}) (bool, error) {
		vars := map[string]interface{}{
			"value":  celValue(value),
			"record": celRecord(rec),
		}
		out, _, err := prg.Eval(vars)
		if err != nil {
			return false, err
		}
		b, ok := out.Value().(bool)
		if !ok {
			return false, fmt.Errorf("expression returned %T, want bool", out.Value())
		}
		return b, nil
	})
	return nil
}

// RegisterExpressions registers every name -> expression pair.
func (e *Engine) RegisterExpressions(exprs map[string]string) error {
	for name, expr := range exprs {
		if err := e.RegisterExpression(name, expr); err != nil {
			return err
		}
	}
	return nil
}

func celValue(v interface{}) interface{} {
	if d, ok := v.(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return v
}

func celRecord(rec model.CanonicalRecord) map[string]interface{} {
	out := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		if v == nil {
			continue
		}
		out[k] = celValue(v)
	}
	return out
}
