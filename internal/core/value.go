package core

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ValueKind discriminates the two scalar shapes a field leaf can hold.
type ValueKind int

const (
	KindText ValueKind = iota
	KindNumber
)

// Value is one scalar leaf value: free text (names, reasons, dates) or an
// exact decimal number (revenue and expense amounts). Values travel through
// edit requests and change-sets, so equality must be exact, not float-ish.
type Value struct {
	kind ValueKind
	text string
	num  decimal.Decimal
}

// Text builds a text value.
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// Number builds a numeric value.
func Number(d decimal.Decimal) Value {
	return Value{kind: KindNumber, num: d}
}

// NumberFromInt builds a numeric value from an integer amount.
func NumberFromInt(n int64) Value {
	return Number(decimal.NewFromInt(n))
}

// Kind returns the value's shape.
func (v Value) Kind() ValueKind { return v.kind }

// AsText returns the text payload; empty for numbers.
func (v Value) AsText() string { return v.text }

// AsNumber returns the numeric payload; zero for text.
func (v Value) AsNumber() decimal.Decimal { return v.num }

// Equal reports exact equality: same kind and same payload. Numbers compare
// by decimal value, so 150 and 150.00 are equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	if v.kind == KindNumber {
		return v.num.Equal(o.num)
	}
	return v.text == o.text
}

// String renders the value for logs and error messages.
func (v Value) String() string {
	if v.kind == KindNumber {
		return v.num.String()
	}
	return v.text
}

// MarshalJSON encodes numbers as JSON numbers and text as JSON strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindNumber {
		return []byte(v.num.String()), nil
	}
	return json.Marshal(v.text)
}

// UnmarshalJSON accepts a JSON number or string. Booleans, null, arrays and
// objects are not scalar leaves and are rejected with ErrValidation.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("%w: malformed value: %v", ErrValidation, err)
	}

	switch t := raw.(type) {
	case string:
		*v = Text(t)
		return nil
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return fmt.Errorf("%w: invalid number %q", ErrValidation, t.String())
		}
		*v = Number(d)
		return nil
	default:
		return fmt.Errorf("%w: value must be a string or number, got %T", ErrValidation, raw)
	}
}
