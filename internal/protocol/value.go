// Package protocol implements the wire protocol spoken by the analytics
// process: a small JSON decoder producing a tagged Value tree, plus typed
// extraction of the business messages carried in it.
//
// The decoder is deliberately self-contained. Every failure is an ordinary
// error value so the ingestion loop can skip a bad message and continue.
package protocol

import (
	"errors"
	"fmt"
)

// Kind tags the variants a decoded Value can hold.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	}
	return "invalid"
}

// ErrMalformed is wrapped by every decode failure.
var ErrMalformed = errors.New("malformed message")

// FieldMissingError reports a required key absent from an object.
type FieldMissingError struct {
	Key string
}

func (e *FieldMissingError) Error() string {
	return fmt.Sprintf("field missing: %s", e.Key)
}

// TypeMismatchError reports a field present with the wrong kind.
type TypeMismatchError struct {
	Key  string
	Want Kind
	Got  Kind
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: %s is %s, want %s", e.Key, e.Got, e.Want)
}

// Value is one node of a decoded message: string, number, bool, null,
// object, or array. Accessors return an error instead of panicking when
// the kind does not match.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	obj  map[string]Value
	arr  []Value
}

// Kind returns the variant tag of the value.
func (v Value) Kind() Kind { return v.kind }

// AsString returns the string payload.
func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", &TypeMismatchError{Want: KindString, Got: v.kind}
	}
	return v.str, nil
}

// AsFloat returns the numeric payload.
func (v Value) AsFloat() (float64, error) {
	if v.kind != KindNumber {
		return 0, &TypeMismatchError{Want: KindNumber, Got: v.kind}
	}
	return v.num, nil
}

// AsInt returns the numeric payload truncated to an integer.
func (v Value) AsInt() (int64, error) {
	if v.kind != KindNumber {
		return 0, &TypeMismatchError{Want: KindNumber, Got: v.kind}
	}
	return int64(v.num), nil
}

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, &TypeMismatchError{Want: KindBool, Got: v.kind}
	}
	return v.b, nil
}

// Field looks up key in an object value.
func (v Value) Field(key string) (Value, error) {
	if v.kind != KindObject {
		return Value{}, &TypeMismatchError{Key: key, Want: KindObject, Got: v.kind}
	}
	child, ok := v.obj[key]
	if !ok {
		return Value{}, &FieldMissingError{Key: key}
	}
	return child, nil
}

// Contains reports whether an object value has the given key.
// Non-objects never contain anything.
func (v Value) Contains(key string) bool {
	if v.kind != KindObject {
		return false
	}
	_, ok := v.obj[key]
	return ok
}

// Len returns the element count for arrays and the key count for objects,
// and 0 for every other kind.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	}
	return 0
}

// Index returns the i-th element of an array value.
func (v Value) Index(i int) (Value, error) {
	if v.kind != KindArray {
		return Value{}, &TypeMismatchError{Want: KindArray, Got: v.kind}
	}
	if i < 0 || i >= len(v.arr) {
		return Value{}, fmt.Errorf("array index %d out of range (len %d)", i, len(v.arr))
	}
	return v.arr[i], nil
}

// Typed field helpers used by the message extractors. They attach the key
// to any error so rejection logs name the offending field.

func stringField(v Value, key string) (string, error) {
	child, err := v.Field(key)
	if err != nil {
		return "", err
	}
	s, err := child.AsString()
	if err != nil {
		return "", &TypeMismatchError{Key: key, Want: KindString, Got: child.kind}
	}
	return s, nil
}

func floatField(v Value, key string) (float64, error) {
	child, err := v.Field(key)
	if err != nil {
		return 0, err
	}
	f, err := child.AsFloat()
	if err != nil {
		return 0, &TypeMismatchError{Key: key, Want: KindNumber, Got: child.kind}
	}
	return f, nil
}

func intField(v Value, key string) (int64, error) {
	child, err := v.Field(key)
	if err != nil {
		return 0, err
	}
	n, err := child.AsInt()
	if err != nil {
		return 0, &TypeMismatchError{Key: key, Want: KindNumber, Got: child.kind}
	}
	return n, nil
}
