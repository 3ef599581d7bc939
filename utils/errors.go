package utils

import (
	"reflect"

	"github.com/pkg/errors"
)

// TypeStr returns a readable name for the type of v. Passing a pointer to an interface
// type names the interface itself.
func TypeStr(v interface{}) string {
	if v == nil {
		return "<unknown (nil interface)>"
	}
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Interface {
		return t.Elem().String()
	}
	return t.String()
}

// NewUnexpectedTypeError is used when there is a type mismatch.
func NewUnexpectedTypeError(expected interface{}, actual interface{}) error {
	return errors.Errorf("expected %s but got %s", TypeStr(expected), TypeStr(actual))
}

// NewUnimplementedInterfaceError is used when there is a failed interface check.
func NewUnimplementedInterfaceError(expected string, actual interface{}) error {
	return errors.Errorf("expected implementation of %s but got %s", expected, TypeStr(actual))
}
