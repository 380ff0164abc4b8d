package definition

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/watzon/actra/internal/expr"
)

// MaxNestingDepth bounds control-flow nesting (if/switch/foreach) inside a
// single hook. Deeper structures are rejected at load time.
const MaxNestingDepth = 10

var (
	typeRegex    = regexp.MustCompile(`^[A-Z][A-Z0-9_]*(:[A-Z0-9_]+)?$`)
	subtypeRegex = regexp.MustCompile(`^[A-Z0-9_]+$`)
	versionRegex = regexp.MustCompile(`^\d+\.\d+(\.\d+)?$`)
	flagChars    = "RrCcOo"
)

type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("definition validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Validate checks a decoded definition for structural problems. It collects
// every finding rather than stopping at the first, so a single load attempt
// reports all defects at once.
func Validate(def *Definition) ValidationErrors {
	var errs ValidationErrors

	if def.Type == "" {
		errs = append(errs, &ValidationError{
			Path:    "type",
			Message: "is required",
		})
	} else if !typeRegex.MatchString(def.Type) {
		errs = append(errs, &ValidationError{
			Path:    "type",
			Message: fmt.Sprintf("%q is not a valid action type identifier", def.Type),
		})
	}

	if def.Version == "" {
		errs = append(errs, &ValidationError{
			Path:    "version",
			Message: "is required",
		})
	} else if !versionRegex.MatchString(def.Version) {
		errs = append(errs, &ValidationError{
			Path:    "version",
			Message: fmt.Sprintf("%q is not a valid semantic version", def.Version),
		})
	}

	for code := range def.Subtypes {
		if !subtypeRegex.MatchString(code) {
			errs = append(errs, &ValidationError{
				Path:    fmt.Sprintf("subtypes.%s", code),
				Message: "is not a valid subtype code",
			})
		}
	}

	errs = append(errs, validateFields(def.Fields)...)

	if def.Schema != nil && def.Schema.Content != nil {
		errs = append(errs, validateContentSchema("schema.content", def.Schema.Content)...)
	}

	errs = append(errs, validateBehavior(&def.Behavior)...)

	if def.KeyPattern != "" {
		if err := checkTemplate(def.KeyPattern); err != nil {
			errs = append(errs, &ValidationError{
				Path:    "key_pattern",
				Message: err.Error(),
			})
		}
	}

	for _, kind := range HookKinds {
		ops, ok := def.Hooks.Get(kind)
		if !ok {
			continue
		}
		errs = append(errs, validateOperations(fmt.Sprintf("hooks.%s", kind), ops, 0)...)
	}

	return errs
}

func validateFields(fields map[string]FieldConstraint) ValidationErrors {
	var errs ValidationErrors
	for name, constraint := range fields {
		path := fmt.Sprintf("fields.%s", name)
		if _, ok := FieldNames[name]; !ok {
			errs = append(errs, &ValidationError{
				Path:    path,
				Message: "is not a recognized action field",
			})
			continue
		}
		switch constraint {
		case FieldRequired, FieldForbidden:
		default:
			errs = append(errs, &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("constraint must be %q or %q, got %q", FieldRequired, FieldForbidden, constraint),
			})
		}
	}
	return errs
}

func validateContentSchema(path string, schema *ContentSchema) ValidationErrors {
	var errs ValidationErrors

	if !schema.Type.IsValid() {
		errs = append(errs, &ValidationError{
			Path:    path + ".type",
			Message: fmt.Sprintf("%q is not a recognized content type", schema.Type),
		})
	}

	if schema.MinLength != nil && *schema.MinLength < 0 {
		errs = append(errs, &ValidationError{
			Path:    path + ".min_length",
			Message: "must not be negative",
		})
	}
	if schema.MaxLength != nil && *schema.MaxLength < 0 {
		errs = append(errs, &ValidationError{
			Path:    path + ".max_length",
			Message: "must not be negative",
		})
	}
	if schema.MinLength != nil && schema.MaxLength != nil && *schema.MinLength > *schema.MaxLength {
		errs = append(errs, &ValidationError{
			Path:    path + ".min_length",
			Message: "must not exceed max_length",
		})
	}

	if schema.Pattern != "" {
		if _, err := regexp.Compile(schema.Pattern); err != nil {
			errs = append(errs, &ValidationError{
				Path:    path + ".pattern",
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			})
		}
	}

	if schema.Type == ContentObject {
		for name, field := range schema.Properties {
			if field == nil {
				errs = append(errs, &ValidationError{
					Path:    fmt.Sprintf("%s.properties.%s", path, name),
					Message: "must not be null",
				})
			}
		}
		for _, name := range schema.Required {
			if _, ok := schema.Properties[name]; !ok {
				errs = append(errs, &ValidationError{
					Path:    path + ".required",
					Message: fmt.Sprintf("references undeclared property %q", name),
				})
			}
		}
	} else if len(schema.Properties) > 0 || len(schema.Required) > 0 {
		errs = append(errs, &ValidationError{
			Path:    path,
			Message: "properties are only allowed for object content",
		})
	}

	return errs
}

func validateBehavior(b *Behavior) ValidationErrors {
	var errs ValidationErrors

	if b.TTL < 0 {
		errs = append(errs, &ValidationError{
			Path:    "behavior.ttl",
			Message: "must not be negative",
		})
	}
	for _, r := range b.DefaultFlags {
		if !strings.ContainsRune(flagChars, r) {
			errs = append(errs, &ValidationError{
				Path:    "behavior.default_flags",
				Message: fmt.Sprintf("unknown flag %q", string(r)),
			})
			break
		}
	}

	return errs
}

// validateOperations walks a hook's statement tree, tracking control-flow
// nesting depth and checking each operation's required arguments.
func validateOperations(path string, ops OperationList, depth int) ValidationErrors {
	var errs ValidationErrors

	if depth > MaxNestingDepth {
		return ValidationErrors{{
			Path:    path,
			Message: fmt.Sprintf("control-flow nesting exceeds %d levels", MaxNestingDepth),
		}}
	}

	for i, op := range ops {
		opPath := fmt.Sprintf("%s[%d](%s)", path, i, op.OpName())
		errs = append(errs, validateOperation(opPath, op, depth)...)
	}
	return errs
}

func validateOperation(path string, op Operation, depth int) ValidationErrors {
	var errs ValidationErrors

	require := func(field string, e *expr.Expression) {
		if e == nil {
			errs = append(errs, &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("missing required argument %q", field),
			})
			return
		}
		if e.Depth() > expr.MaxDepth {
			errs = append(errs, &ValidationError{
				Path:    fmt.Sprintf("%s.%s", path, field),
				Message: fmt.Sprintf("expression depth exceeds %d", expr.MaxDepth),
			})
		}
	}
	optional := func(field string, e *expr.Expression) {
		if e != nil {
			require(field, e)
		}
	}
	requireName := func(field, v string) {
		if v == "" {
			errs = append(errs, &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("missing required argument %q", field),
			})
		}
	}

	switch o := op.(type) {
	case *UpdateProfileOp:
		require("target", o.Target)
		if len(o.Set) == 0 {
			errs = append(errs, &ValidationError{Path: path, Message: "'set' must not be empty"})
		}
		for k, e := range o.Set {
			require("set."+k, e)
		}
	case *GetProfileOp:
		require("target", o.Target)
	case *CreateActionOp:
		if o.Type == "" {
			requireName("type", o.Type)
		} else if !typeRegex.MatchString(o.Type) {
			errs = append(errs, &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%q is not a valid action type identifier", o.Type),
			})
		}
		optional("subtype", o.Subtype)
		optional("audience", o.Audience)
		optional("parent", o.Parent)
		optional("subject", o.Subject)
		optional("content", o.Content)
		optional("attachments", o.Attachments)
	case *GetActionOp:
		if o.Key == nil && o.ActionID == nil {
			errs = append(errs, &ValidationError{
				Path:    path,
				Message: "requires either 'key' or 'action_id'",
			})
		}
		optional("key", o.Key)
		optional("action_id", o.ActionID)
	case *UpdateActionOp:
		require("target", o.Target)
		if len(o.Set) == 0 {
			errs = append(errs, &ValidationError{Path: path, Message: "'set' must not be empty"})
		}
		for k, u := range o.Set {
			errs = append(errs, validateUpdateValue(fmt.Sprintf("%s.set.%s", path, k), u)...)
		}
	case *DeleteActionOp:
		require("target", o.Target)
	case *IfOp:
		require("condition", o.Condition)
		errs = append(errs, validateOperations(path+".then", o.Then, depth+1)...)
		if o.Else != nil {
			errs = append(errs, validateOperations(path+".else", o.Else, depth+1)...)
		}
	case *SwitchOp:
		require("value", o.Value)
		for label, list := range o.Cases {
			errs = append(errs, validateOperations(fmt.Sprintf("%s.cases.%s", path, label), list, depth+1)...)
		}
		if o.Default != nil {
			errs = append(errs, validateOperations(path+".default", o.Default, depth+1)...)
		}
	case *ForeachOp:
		require("array", o.Array)
		errs = append(errs, validateOperations(path+".do", o.Do, depth+1)...)
	case *ReturnOp:
		optional("value", o.Value)
	case *SetOp:
		requireName("var", o.Var)
		require("value", o.Value)
	case *GetOp:
		requireName("var", o.Var)
		require("from", o.From)
	case *MergeOp:
		requireName("as", o.As)
		if len(o.Objects) == 0 {
			errs = append(errs, &ValidationError{Path: path, Message: "'objects' must not be empty"})
		}
		for i, e := range o.Objects {
			require(fmt.Sprintf("objects[%d]", i), e)
		}
	case *SyncAttachmentOp:
		require("file_id", o.FileID)
		optional("from", o.From)
	case *BroadcastToFollowersOp:
		require("action_id", o.ActionID)
		require("token", o.Token)
	case *SendToAudienceOp:
		require("action_id", o.ActionID)
		require("token", o.Token)
		require("audience", o.Audience)
	case *CreateNotificationOp:
		require("user", o.User)
		require("type", o.Type)
		require("action_id", o.ActionID)
		optional("priority", o.Priority)
	case *LogOp:
		require("message", o.Message)
		switch o.Level {
		case "", "debug", "info", "warn", "error":
		default:
			errs = append(errs, &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("unknown log level %q", o.Level),
			})
		}
	case *AbortOp:
		require("error", o.Error)
	default:
		errs = append(errs, &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("unknown operation %q", op.OpName()),
		})
	}

	return errs
}

func validateUpdateValue(path string, u UpdateValue) ValidationErrors {
	var errs ValidationErrors

	set := 0
	for _, e := range []*expr.Expression{u.Direct, u.Increment, u.Decrement, u.Set} {
		if e == nil {
			continue
		}
		set++
		if e.Depth() > expr.MaxDepth {
			errs = append(errs, &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("expression depth exceeds %d", expr.MaxDepth),
			})
		}
	}
	if set == 0 {
		errs = append(errs, &ValidationError{Path: path, Message: "must provide a value"})
	}
	if set > 1 {
		errs = append(errs, &ValidationError{Path: path, Message: "must provide exactly one value form"})
	}
	return errs
}

// checkTemplate verifies placeholder brace balance in a key pattern without
// evaluating it.
func checkTemplate(tpl string) error {
	rest := tpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			return nil
		}
		rest = rest[open+1:]
		close := strings.IndexByte(rest, '}')
		if close < 0 {
			return fmt.Errorf("unterminated placeholder in %q", tpl)
		}
		switch {
		case rest[:close] == "":
			return fmt.Errorf("empty placeholder in %q", tpl)
		case strings.ContainsRune(rest[:close], '{'):
			return fmt.Errorf("unterminated placeholder in %q", tpl)
		}
		rest = rest[close+1:]
	}
}
