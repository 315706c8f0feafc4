package protocol

import (
	"errors"
	"testing"
)

func TestParse_Scalars(t *testing.T) {
	v, err := Parse(`"hello"`)
	if err != nil {
		t.Fatalf("parse string: %v", err)
	}
	if s, _ := v.AsString(); s != "hello" {
		t.Errorf("expected 'hello', got %q", s)
	}

	v, err = Parse(`-12.5e2`)
	if err != nil {
		t.Fatalf("parse number: %v", err)
	}
	if f, _ := v.AsFloat(); f != -1250 {
		t.Errorf("expected -1250, got %g", f)
	}

	v, err = Parse(`true`)
	if err != nil {
		t.Fatalf("parse bool: %v", err)
	}
	if b, _ := v.AsBool(); !b {
		t.Error("expected true")
	}

	v, err = Parse(`null`)
	if err != nil {
		t.Fatalf("parse null: %v", err)
	}
	if v.Kind() != KindNull {
		t.Errorf("expected null kind, got %s", v.Kind())
	}
}

func TestParse_Object(t *testing.T) {
	v, err := Parse(`{"pair_name": "AAPL_MSFT", "z_score": -2.15, "shares_a": 100, "nested": {"ok": true}}`)
	if err != nil {
		t.Fatalf("parse object: %v", err)
	}
	if v.Kind() != KindObject {
		t.Fatalf("expected object, got %s", v.Kind())
	}

	pair, err := v.Field("pair_name")
	if err != nil {
		t.Fatalf("field pair_name: %v", err)
	}
	if s, _ := pair.AsString(); s != "AAPL_MSFT" {
		t.Errorf("expected 'AAPL_MSFT', got %q", s)
	}

	z, _ := v.Field("z_score")
	if f, _ := z.AsFloat(); f != -2.15 {
		t.Errorf("expected -2.15, got %g", f)
	}

	shares, _ := v.Field("shares_a")
	if n, _ := shares.AsInt(); n != 100 {
		t.Errorf("expected 100, got %d", n)
	}

	nested, err := v.Field("nested")
	if err != nil {
		t.Fatalf("field nested: %v", err)
	}
	if !nested.Contains("ok") {
		t.Error("expected nested object to contain 'ok'")
	}
}

func TestParse_Array(t *testing.T) {
	v, err := Parse(`[1, "two", [3]]`)
	if err != nil {
		t.Fatalf("parse array: %v", err)
	}
	if v.Len() != 3 {
		t.Fatalf("expected len 3, got %d", v.Len())
	}

	first, err := v.Index(0)
	if err != nil {
		t.Fatalf("index 0: %v", err)
	}
	if f, _ := first.AsFloat(); f != 1 {
		t.Errorf("expected 1, got %g", f)
	}

	if _, err := v.Index(3); err == nil {
		t.Error("expected out-of-range error for index 3")
	}
}

func TestParse_StringEscapes(t *testing.T) {
	v, err := Parse(`"a\"b\\c\nd\te"`)
	if err != nil {
		t.Fatalf("parse escapes: %v", err)
	}
	s, _ := v.AsString()
	if s != "a\"b\\c\nd\te" {
		t.Errorf("unexpected unescaped string: %q", s)
	}

	if _, err := Parse(`"bad \x escape"`); err == nil {
		t.Error("expected error for invalid escape")
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := []string{
		``,
		`{`,
		`{"a"}`,
		`{"a": 1,}`,
		`{"a": }`,
		`[1, 2`,
		`"unterminated`,
		`trun`,
		`@`,
	}
	for _, in := range cases {
		if _, err := Parse(in); err == nil {
			t.Errorf("expected parse error for %q", in)
		} else if !errors.Is(err, ErrMalformed) {
			t.Errorf("expected ErrMalformed for %q, got %v", in, err)
		}
	}
}

func TestValue_TypeMismatch(t *testing.T) {
	v, err := Parse(`{"n": 42}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	n, _ := v.Field("n")
	if _, err := n.AsString(); err == nil {
		t.Error("expected type mismatch reading number as string")
	}

	var tm *TypeMismatchError
	_, err = stringField(v, "n")
	if !errors.As(err, &tm) {
		t.Fatalf("expected TypeMismatchError, got %v", err)
	}
	if tm.Key != "n" {
		t.Errorf("expected key 'n' in error, got %q", tm.Key)
	}
}

func TestValue_FieldMissing(t *testing.T) {
	v, err := Parse(`{}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var fm *FieldMissingError
	_, err = v.Field("absent")
	if !errors.As(err, &fm) {
		t.Fatalf("expected FieldMissingError, got %v", err)
	}
	if fm.Key != "absent" {
		t.Errorf("expected key 'absent', got %q", fm.Key)
	}

	if v.Contains("absent") {
		t.Error("empty object should not contain 'absent'")
	}
}
