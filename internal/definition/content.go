package definition

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/watzon/actra/internal/value"
)

// sanitizePolicy strips all HTML; sanitized content keeps text only.
var sanitizePolicy = bluemonday.StrictPolicy()

// CheckFields validates the fixed action fields against the definition's
// constraints. Present fields are also checked against their declared value
// format. Findings use the same path convention as load-time validation.
func CheckFields(def *Definition, fields map[string]value.Value) ValidationErrors {
	var errs ValidationErrors

	for name, constraint := range def.Fields {
		path := fmt.Sprintf("fields.%s", name)
		v, present := fields[name]
		if present && v.IsNull() {
			present = false
		}

		switch constraint {
		case FieldRequired:
			if !present {
				errs = append(errs, &ValidationError{
					Path:    path,
					Message: "missing required field",
				})
			}
		case FieldForbidden:
			if present {
				errs = append(errs, &ValidationError{
					Path:    path,
					Message: "field is forbidden",
				})
			}
		}
	}

	for name, v := range fields {
		if v.IsNull() {
			continue
		}
		typeName, ok := FieldNames[name]
		if !ok {
			continue
		}
		if err := CheckFieldType(typeName, v); err != nil {
			errs = append(errs, &ValidationError{
				Path:    fmt.Sprintf("fields.%s", name),
				Message: err.Error(),
			})
		}
	}

	return errs
}

// ValidateContent checks an action's content against the definition's
// content schema and returns the (possibly sanitized) content. Definitions
// without a content schema accept anything unchanged.
func ValidateContent(def *Definition, content value.Value) (value.Value, error) {
	if def.Schema == nil || def.Schema.Content == nil {
		return content, nil
	}
	schema := def.Schema.Content

	if content.IsNull() {
		return content, nil
	}

	if schema.Sanitize && content.Kind() == value.KindString {
		content = value.String(sanitizePolicy.Sanitize(content.StringValue()))
	}

	if errs := checkContent("content", schema, content); len(errs) > 0 {
		return value.Null(), errs
	}
	return content, nil
}

func checkContent(path string, schema *ContentSchema, v value.Value) ValidationErrors {
	var errs ValidationErrors

	fail := func(format string, args ...any) {
		errs = append(errs, &ValidationError{
			Path:    path,
			Message: fmt.Sprintf(format, args...),
		})
	}

	switch schema.Type {
	case ContentString:
		if v.Kind() != value.KindString {
			fail("must be a string, got %s", v.Kind())
			return errs
		}
		s := v.StringValue()
		if schema.MinLength != nil && len(s) < *schema.MinLength {
			fail("must be at least %d characters", *schema.MinLength)
		}
		if schema.MaxLength != nil && len(s) > *schema.MaxLength {
			fail("must be at most %d characters", *schema.MaxLength)
		}
		if schema.Pattern != "" {
			// Pattern validity is checked at load time.
			if re, err := regexp.Compile(schema.Pattern); err == nil && !re.MatchString(s) {
				fail("does not match pattern %q", schema.Pattern)
			}
		}
	case ContentNumber:
		if v.Kind() != value.KindNumber {
			fail("must be a number, got %s", v.Kind())
			return errs
		}
	case ContentBoolean:
		if v.Kind() != value.KindBool {
			fail("must be a boolean, got %s", v.Kind())
			return errs
		}
	case ContentObject:
		if v.Kind() != value.KindMap {
			fail("must be an object, got %s", v.Kind())
			return errs
		}
		errs = append(errs, checkObjectContent(path, schema, v)...)
	case ContentJSON:
		// Anything goes.
	}

	if len(schema.Enum) > 0 && !matchesEnum(schema.Enum, v) {
		fail("must be one of the allowed values")
	}

	return errs
}

func checkObjectContent(path string, schema *ContentSchema, v value.Value) ValidationErrors {
	var errs ValidationErrors
	obj := v.MapValue()

	for _, name := range schema.Required {
		if item, ok := obj[name]; !ok || item.IsNull() {
			errs = append(errs, &ValidationError{
				Path:    fmt.Sprintf("%s.%s", path, name),
				Message: "missing required property",
			})
		}
	}

	for name, field := range schema.Properties {
		item, ok := obj[name]
		if !ok || item.IsNull() {
			continue
		}
		errs = append(errs, checkSchemaField(fmt.Sprintf("%s.%s", path, name), field, item)...)
	}

	return errs
}

func checkSchemaField(path string, field *SchemaField, v value.Value) ValidationErrors {
	var errs ValidationErrors

	fail := func(format string, args ...any) {
		errs = append(errs, &ValidationError{
			Path:    path,
			Message: fmt.Sprintf(format, args...),
		})
	}

	switch strings.ToLower(field.Type) {
	case "string":
		if v.Kind() != value.KindString {
			fail("must be a string, got %s", v.Kind())
			return errs
		}
		s := v.StringValue()
		if field.MinLength != nil && len(s) < *field.MinLength {
			fail("must be at least %d characters", *field.MinLength)
		}
		if field.MaxLength != nil && len(s) > *field.MaxLength {
			fail("must be at most %d characters", *field.MaxLength)
		}
	case "number":
		if v.Kind() != value.KindNumber {
			fail("must be a number, got %s", v.Kind())
			return errs
		}
	case "boolean":
		if v.Kind() != value.KindBool {
			fail("must be a boolean, got %s", v.Kind())
			return errs
		}
	case "array", "list":
		if v.Kind() != value.KindList {
			fail("must be an array, got %s", v.Kind())
			return errs
		}
		if field.Items != nil {
			for i, item := range v.ListValue() {
				errs = append(errs, checkSchemaField(fmt.Sprintf("%s[%d]", path, i), field.Items, item)...)
			}
		}
	case "object", "json", "":
		// Unconstrained.
	default:
		fail("unknown property type %q", field.Type)
		return errs
	}

	if len(field.Enum) > 0 && !matchesEnum(field.Enum, v) {
		fail("must be one of the allowed values")
	}

	return errs
}

func matchesEnum(enum []any, v value.Value) bool {
	for _, allowed := range enum {
		av, err := value.FromAny(allowed)
		if err != nil {
			continue
		}
		if av.Equal(v) {
			return true
		}
	}
	return false
}
