package check

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Validatable is implemented by configuration that can check itself.
type Validatable interface {
	Validate() []error
}

// Validate checks v and everything reachable from it through pointers, slices and exported struct
// fields. Every failure is reported, prefixed with the path it was found at.
func Validate(v interface{}) error {
	var result *multierror.Error
	walk(reflect.ValueOf(v), "root", func(err error) {
		result = multierror.Append(result, err)
	})
	if result == nil {
		return nil
	}
	result.ErrorFormat = listErrors
	return result
}

func listErrors(errs []error) string {
	lines := make([]string, 0, len(errs))
	for _, err := range errs {
		lines = append(lines, err.Error())
	}
	sort.Strings(lines)
	return fmt.Sprintf("invalid configuration, %d errors found:\n\t%s",
		len(errs), strings.Join(lines, "\n\t"))
}

func walk(v reflect.Value, path string, report func(error)) {
	switch v.Kind() {
	case reflect.Invalid:
		return
	case reflect.Ptr:
		if !v.IsNil() {
			walk(v.Elem(), path, report)
		}
		return
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			walk(v.Index(i), fmt.Sprintf("%s[%d]", path, i), report)
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if f := t.Field(i); f.IsExported() {
				walk(v.Field(i), path+"."+f.Name, report)
			}
		}
	}

	// An addressable copy picks up pointer receivers too.
	addr := reflect.New(v.Type())
	addr.Elem().Set(v)
	c, ok := addr.Interface().(Validatable)
	if !ok {
		return
	}
	for _, err := range c.Validate() {
		if err != nil {
			report(errors.Wrapf(err, "error found at %s", path))
		}
	}
}
