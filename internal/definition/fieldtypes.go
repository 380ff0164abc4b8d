package definition

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/watzon/actra/internal/value"
)

// FieldTypeChecker validates one field value against the format rules of
// its declared type.
type FieldTypeChecker func(v value.Value) error

var (
	// idTagRegex matches federated identity tags: lowercase dotted
	// domain labels, e.g. "alice.example.com".
	idTagRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)

	// opaqueIDRegex matches action and file identifiers: URL-safe token
	// characters, 8-128 long (covers UUIDs and base64url digests).
	opaqueIDRegex = regexp.MustCompile(`^[A-Za-z0-9._~-]{8,128}$`)
)

var (
	checkersMu sync.RWMutex
	checkers   = map[string]FieldTypeChecker{
		"idTag":      checkIDTag,
		"actionId":   checkOpaqueID("action id"),
		"fileId":     checkOpaqueID("file id"),
		"subjectRef": checkSubjectRef,
		"fileIdList": checkFileIDList,
		"json":       func(value.Value) error { return nil },
	}
)

// RegisterFieldType installs or replaces a field-type checker. The checker
// set is keyed by declared field type, not by field name.
func RegisterFieldType(name string, checker FieldTypeChecker) {
	checkersMu.Lock()
	defer checkersMu.Unlock()
	checkers[name] = checker
}

// CheckFieldType validates a value against the named field type. Unknown
// type names are an error so misdeclared definitions surface early.
func CheckFieldType(name string, v value.Value) error {
	checkersMu.RLock()
	checker, ok := checkers[name]
	checkersMu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown field type %q", name)
	}
	return checker(v)
}

// HasFieldType reports whether a checker is registered for the type name.
func HasFieldType(name string) bool {
	checkersMu.RLock()
	defer checkersMu.RUnlock()
	_, ok := checkers[name]
	return ok
}

func checkIDTag(v value.Value) error {
	if v.Kind() != value.KindString {
		return fmt.Errorf("identity tag must be a string, got %s", v.Kind())
	}
	if !idTagRegex.MatchString(v.StringValue()) {
		return fmt.Errorf("invalid identity tag %q", v.StringValue())
	}
	return nil
}

func checkOpaqueID(label string) FieldTypeChecker {
	return func(v value.Value) error {
		if v.Kind() != value.KindString {
			return fmt.Errorf("%s must be a string, got %s", label, v.Kind())
		}
		if !opaqueIDRegex.MatchString(v.StringValue()) {
			return fmt.Errorf("invalid %s %q", label, v.StringValue())
		}
		return nil
	}
}

// checkSubjectRef accepts an action id or any non-empty string subject.
func checkSubjectRef(v value.Value) error {
	if v.Kind() != value.KindString {
		return fmt.Errorf("subject must be a string, got %s", v.Kind())
	}
	if v.StringValue() == "" {
		return fmt.Errorf("subject must not be empty")
	}
	return nil
}

func checkFileIDList(v value.Value) error {
	if v.Kind() != value.KindList {
		return fmt.Errorf("attachments must be a list, got %s", v.Kind())
	}
	check := checkOpaqueID("file id")
	for i, item := range v.ListValue() {
		if err := check(item); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}
