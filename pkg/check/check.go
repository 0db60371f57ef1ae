package check

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

// message renders the optional printf-style message callers pass after the checked values.
func message(msgAndArgs []interface{}) string {
	if len(msgAndArgs) == 0 {
		return ""
	}
	format, ok := msgAndArgs[0].(string)
	if !ok {
		return describe(msgAndArgs[0])
	}
	if len(msgAndArgs) == 1 {
		return format
	}
	return fmt.Sprintf(format, msgAndArgs[1:]...)
}

// describe prints v, following non-nil pointers so that the pointee is shown with its type.
func describe(v interface{}) string {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Sprintf("%+v", v)
	}
	for rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	return fmt.Sprintf("%T(%+v)", v, rv.Interface())
}

// check returns nil when condition holds, otherwise an error built from the caller supplied
// message (msgAndArgs) followed by the detail describing the failed comparison.
func check(condition bool, msgAndArgs []interface{}, detail string, detailArgs ...interface{}) error {
	if condition {
		return nil
	}
	description := errors.Errorf(detail, detailArgs...)
	if msg := message(msgAndArgs); msg != "" {
		return errors.Wrap(description, msg)
	}
	return description
}

// True checks whether the condition is true.
func True(condition bool, msgAndArgs ...interface{}) error {
	return check(condition, msgAndArgs, "expected true, got false")
}

// False checks whether the condition is false.
func False(condition bool, msgAndArgs ...interface{}) error {
	return check(!condition, msgAndArgs, "expected false, got true")
}

// Equal checks whether the two values are equal.
func Equal(actual, expected interface{}, msgAndArgs ...interface{}) error {
	return check(actual == expected, msgAndArgs, "%s != %s", describe(actual), describe(expected))
}

// NotEmpty checks whether the string is not empty.
func NotEmpty(actual string, msgAndArgs ...interface{}) error {
	return check(actual != "", msgAndArgs, "expected a non-empty string")
}

// In checks whether the actual string is one of the expected values.
func In(actual string, expected []string, msgAndArgs ...interface{}) error {
	for _, e := range expected {
		if actual == e {
			return nil
		}
	}
	return check(false, msgAndArgs, "%s not in %v", actual, expected)
}

// GreaterThan checks whether actual is strictly greater than expected.
func GreaterThan(actual, expected float64, msgAndArgs ...interface{}) error {
	return check(actual > expected, msgAndArgs, "%v is not greater than %v", actual, expected)
}

// GreaterThanOrEqualTo checks whether actual is greater than or equal to expected.
func GreaterThanOrEqualTo(actual, expected float64, msgAndArgs ...interface{}) error {
	return check(actual >= expected, msgAndArgs, "%v is less than %v", actual, expected)
}

// LessThanOrEqualTo checks whether actual is less than or equal to expected.
func LessThanOrEqualTo(actual, expected float64, msgAndArgs ...interface{}) error {
	return check(actual <= expected, msgAndArgs, "%v is greater than %v", actual, expected)
}

// LenEqual checks whether a collection of length actual has the expected length. Zero-length
// collections are accepted when allowEmpty is set.
func LenEqual(actual, expected int, allowEmpty bool, msgAndArgs ...interface{}) error {
	if allowEmpty && actual == 0 {
		return nil
	}
	return check(actual == expected, msgAndArgs, "length %d, expected %d", actual, expected)
}
