package filterexpr

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// Bind parses filter and assigns every predicate to the params struct field named
// by the schema. Pointer fields are allocated on demand.
func Bind(filter string, params any, fields Fields) error {
	preds, err := Parse(filter, fields)
	if err != nil {
		return err
	}
	if len(preds) == 0 {
		return nil
	}

	dst, err := structOf(params)
	if err != nil {
		return err
	}
	for _, p := range preds {
		name := fields[p.Field].Ops[p.Op]
		f := dst.FieldByName(name)
		if !f.IsValid() || !f.CanSet() {
			return fmt.Errorf("filterexpr: %s has no settable field %q", dst.Type(), name)
		}
		if err := assign(f, p.Value); err != nil {
			return fmt.Errorf("filterexpr: %s: %w", p.Field, err)
		}
	}
	return nil
}

func structOf(params any) (reflect.Value, error) {
	rv := reflect.ValueOf(params)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, errors.New("filterexpr: params must be a non-nil struct pointer")
	}
	return rv.Elem(), nil
}

func assign(f reflect.Value, value any) error {
	if f.Kind() == reflect.Ptr {
		if f.IsNil() {
			f.Set(reflect.New(f.Type().Elem()))
		}
		return assign(f.Elem(), value)
	}

	switch v := value.(type) {
	case string:
		if f.Kind() != reflect.String {
			return fmt.Errorf("cannot store string in %s", f.Type())
		}
		f.SetString(v)
	case []string:
		if f.Kind() != reflect.Slice || f.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("cannot store list in %s", f.Type())
		}
		f.Set(reflect.ValueOf(append([]string(nil), v...)))
	case time.Time:
		if f.Type() != timeType {
			return fmt.Errorf("cannot store timestamp in %s", f.Type())
		}
		f.Set(reflect.ValueOf(v))
	case float64:
		return assignNumber(f, v)
	default:
		return fmt.Errorf("unsupported literal %T", value)
	}
	return nil
}

func assignNumber(f reflect.Value, v float64) error {
	switch f.Kind() {
	case reflect.Float32, reflect.Float64:
		f.SetFloat(v)
	case reflect.Int, reflect.Int32, reflect.Int64:
		if v != math.Trunc(v) {
			return fmt.Errorf("%v is not an integer", v)
		}
		if f.OverflowInt(int64(v)) {
			return fmt.Errorf("%v overflows %s", v, f.Type())
		}
		f.SetInt(int64(v))
	default:
		return fmt.Errorf("cannot store number in %s", f.Type())
	}
	return nil
}
