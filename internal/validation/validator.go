package validation

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Validator validates structs using `validate` struct tags.
//
// Supported rules: required, oneof=a b c, min=n, max=n. For strings min and
// max bound the length, for numbers the value. Nil pointers skip every rule
// but required, so optional fields of partial updates validate cleanly.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// FieldError reports the first rule a field failed
type FieldError struct {
	Field string
	Rule  string
	Msg   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Validate validates a struct
func (v *Validator) Validate(s interface{}) error {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("validate expects a struct")
	}

	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		tag := fieldType.Tag.Get("validate")

		if tag == "" {
			continue
		}

		if err := v.validateField(field, tag); err != nil {
			err.Field = fieldName(fieldType)
			return err
		}
	}

	return nil
}

func fieldName(f reflect.StructField) string {
	if name := strings.Split(f.Tag.Get("json"), ",")[0]; name != "" && name != "-" {
		return name
	}
	return f.Name
}

// validateField validates a single field
func (v *Validator) validateField(field reflect.Value, tag string) *FieldError {
	for _, rule := range strings.Split(tag, ",") {
		parts := strings.SplitN(rule, "=", 2)
		ruleName := parts[0]
		param := ""
		if len(parts) == 2 {
			param = parts[1]
		}

		if ruleName == "required" {
			if field.IsZero() || (field.Kind() == reflect.String && strings.TrimSpace(field.String()) == "") {
				return &FieldError{Rule: ruleName, Msg: "field is required"}
			}
			continue
		}

		target := field
		if target.Kind() == reflect.Ptr {
			if target.IsNil() {
				continue
			}
			target = target.Elem()
		}

		switch ruleName {
		case "oneof":
			value := fmt.Sprint(target.Interface())
			allowed := strings.Fields(param)
			if !contains(allowed, value) {
				return &FieldError{Rule: ruleName, Msg: fmt.Sprintf("must be one of [%s]", strings.Join(allowed, " "))}
			}

		case "min", "max":
			limit, err := strconv.ParseFloat(param, 64)
			if err != nil {
				continue
			}
			n, ok := measure(target)
			if !ok {
				continue
			}
			if ruleName == "min" && n < limit {
				return &FieldError{Rule: ruleName, Msg: fmt.Sprintf("minimum is %s", param)}
			}
			if ruleName == "max" && n > limit {
				return &FieldError{Rule: ruleName, Msg: fmt.Sprintf("maximum is %s", param)}
			}
		}
	}

	return nil
}

func measure(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.String:
		return float64(len([]rune(v.String()))), true
	case reflect.Slice, reflect.Map:
		return float64(v.Len()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	}
	return 0, false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
