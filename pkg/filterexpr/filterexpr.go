// Package filterexpr turns a restricted CEL expression into typed predicates.
//
// Only conjunctions of simple comparisons are accepted:
//
//	content_id in ['a', 'b'] && repetitions >= 2 && next_review <= timestamp('2025-01-01T00:00:00Z')
//
// Each field is whitelisted in a schema together with the operators it accepts,
// and every operator maps to a destination field of a params struct (see Bind).
package filterexpr

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Kind is the literal type a filter field accepts.
type Kind int

const (
	KindString Kind = iota + 1
	KindNumber
	KindTimestamp
)

func (k Kind) celType() (*cel.Type, error) {
	switch k {
	case KindString:
		return cel.StringType, nil
	case KindNumber:
		return cel.DoubleType, nil
	case KindTimestamp:
		return cel.TimestampType, nil
	default:
		return nil, fmt.Errorf("unknown field kind %d", k)
	}
}

// Op is a supported comparison.
type Op string

const (
	OpEQ  Op = "=="
	OpGTE Op = ">="
	OpLTE Op = "<="
	OpIN  Op = "in"
	OpSW  Op = "startsWith"
)

// Field whitelists one filter identifier. Ops maps each allowed operator to the
// params struct field that receives the literal.
type Field struct {
	Kind Kind
	Ops  map[Op]string
}

// Fields is the filter half of a schema, keyed by identifier.
type Fields map[string]Field

// Predicate is one validated comparison of the conjunction.
type Predicate struct {
	Field string
	Op    Op
	// Value is a string, []string, float64 or time.Time depending on Kind and Op.
	Value any
}

// ErrUnsupported is wrapped by every rejection of an expression shape.
var ErrUnsupported = errors.New("filterexpr: unsupported expression")

// Parse compiles filter against the schema. An empty filter yields no predicates.
func Parse(filter string, fields Fields) ([]Predicate, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return nil, nil
	}
	if len(fields) == 0 {
		return nil, errors.New("filterexpr: schema has no fields")
	}

	env, err := newEnv(fields)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Parse(filter)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("filterexpr: %w", issues.Err())
	}
	parsed, err := cel.AstToParsedExpr(ast)
	if err != nil {
		return nil, fmt.Errorf("filterexpr: convert ast: %w", err)
	}

	var terms []*exprpb.Expr
	if err := flattenAnd(parsed.GetExpr(), &terms); err != nil {
		return nil, err
	}

	preds := make([]Predicate, 0, len(terms))
	for _, term := range terms {
		pred, err := predicateOf(term)
		if err != nil {
			return nil, err
		}
		rule, ok := fields[pred.Field]
		if !ok {
			return nil, fmt.Errorf("%w: field %q is not filterable", ErrUnsupported, pred.Field)
		}
		if _, ok := rule.Ops[pred.Op]; !ok {
			return nil, fmt.Errorf("%w: operator %s not allowed on %q", ErrUnsupported, pred.Op, pred.Field)
		}
		if err := checkLiteral(rule.Kind, pred); err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}
	return preds, nil
}

func newEnv(fields Fields) (*cel.Env, error) {
	opts := make([]cel.EnvOption, 0, len(fields)+1)
	for name, f := range fields {
		t, err := f.Kind.celType()
		if err != nil {
			return nil, fmt.Errorf("filterexpr: field %q: %w", name, err)
		}
		opts = append(opts, cel.Variable(name, t))
	}
	opts = append(opts, cel.CrossTypeNumericComparisons(true))
	return cel.NewEnv(opts...)
}

func flattenAnd(expr *exprpb.Expr, out *[]*exprpb.Expr) error {
	if expr == nil {
		return fmt.Errorf("%w: empty expression", ErrUnsupported)
	}
	call := expr.GetCallExpr()
	if call == nil {
		*out = append(*out, expr)
		return nil
	}
	switch call.GetFunction() {
	case "_&&_":
		for _, arg := range call.GetArgs() {
			if err := flattenAnd(arg, out); err != nil {
				return err
			}
		}
		return nil
	case "_||_", "!_", "_?_:_":
		return fmt.Errorf("%w: only && may join comparisons", ErrUnsupported)
	default:
		*out = append(*out, expr)
		return nil
	}
}

func predicateOf(expr *exprpb.Expr) (Predicate, error) {
	call := expr.GetCallExpr()
	if call == nil {
		return Predicate{}, fmt.Errorf("%w: expected a comparison", ErrUnsupported)
	}

	var (
		op        Op
		fieldExpr *exprpb.Expr
		valueExpr *exprpb.Expr
	)
	args := call.GetArgs()
	switch call.GetFunction() {
	case "_==_", "_>=_", "_<=_":
		if len(args) != 2 {
			return Predicate{}, fmt.Errorf("%w: comparison needs two operands", ErrUnsupported)
		}
		op = map[string]Op{"_==_": OpEQ, "_>=_": OpGTE, "_<=_": OpLTE}[call.GetFunction()]
		fieldExpr, valueExpr = args[0], args[1]
	case "@in":
		if len(args) != 2 {
			return Predicate{}, fmt.Errorf("%w: in needs two operands", ErrUnsupported)
		}
		op = OpIN
		fieldExpr, valueExpr = args[0], args[1]
	case "startsWith":
		if call.GetTarget() == nil || len(args) != 1 {
			return Predicate{}, fmt.Errorf("%w: use field.startsWith('prefix')", ErrUnsupported)
		}
		op = OpSW
		fieldExpr, valueExpr = call.GetTarget(), args[0]
	default:
		return Predicate{}, fmt.Errorf("%w: function %q", ErrUnsupported, call.GetFunction())
	}

	ident := fieldExpr.GetIdentExpr()
	if ident == nil {
		return Predicate{}, fmt.Errorf("%w: left operand must be a field name", ErrUnsupported)
	}
	value, err := literalOf(valueExpr)
	if err != nil {
		return Predicate{}, err
	}
	return Predicate{Field: ident.GetName(), Op: op, Value: value}, nil
}

func literalOf(expr *exprpb.Expr) (any, error) {
	if c := expr.GetConstExpr(); c != nil {
		switch v := c.GetConstantKind().(type) {
		case *exprpb.Constant_StringValue:
			return v.StringValue, nil
		case *exprpb.Constant_Int64Value:
			return float64(v.Int64Value), nil
		case *exprpb.Constant_Uint64Value:
			return float64(v.Uint64Value), nil
		case *exprpb.Constant_DoubleValue:
			return v.DoubleValue, nil
		default:
			return nil, fmt.Errorf("%w: literal %T", ErrUnsupported, v)
		}
	}

	if list := expr.GetListExpr(); list != nil {
		out := make([]string, 0, len(list.GetElements()))
		for _, el := range list.GetElements() {
			s := el.GetConstExpr().GetStringValue()
			if _, ok := el.GetConstExpr().GetConstantKind().(*exprpb.Constant_StringValue); !ok {
				return nil, fmt.Errorf("%w: list elements must be strings", ErrUnsupported)
			}
			out = append(out, s)
		}
		return out, nil
	}

	if call := expr.GetCallExpr(); call != nil && call.GetFunction() == "timestamp" {
		if len(call.GetArgs()) != 1 {
			return nil, fmt.Errorf("%w: timestamp() takes one string", ErrUnsupported)
		}
		raw := call.GetArgs()[0].GetConstExpr().GetStringValue()
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: timestamp %q is not RFC3339", ErrUnsupported, raw)
		}
		return ts, nil
	}

	return nil, fmt.Errorf("%w: right operand must be a literal", ErrUnsupported)
}

func checkLiteral(kind Kind, p Predicate) error {
	ok := false
	switch kind {
	case KindString:
		if p.Op == OpIN {
			list, isList := p.Value.([]string)
			ok = isList && len(list) > 0
			for _, s := range list {
				ok = ok && s != ""
			}
		} else {
			_, ok = p.Value.(string)
		}
	case KindNumber:
		_, ok = p.Value.(float64)
	case KindTimestamp:
		_, ok = p.Value.(time.Time)
	}
	if !ok {
		return fmt.Errorf("%w: bad literal for %q", ErrUnsupported, p.Field)
	}
	return nil
}
