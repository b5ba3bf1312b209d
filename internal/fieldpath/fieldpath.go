// Package fieldpath implements the dotted+indexed address grammar used to
// name one scalar leaf inside an entry, e.g. "expenses.staffSalary[1].amount".
//
// Grammar: segment ("." segment)*, segment = identifier | identifier "[" integer "]".
// Two paths are equal iff their normalized string forms are equal.
package fieldpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalid is returned for malformed paths and for addresses that do not
// resolve to exactly one scalar leaf. It is always a client input error.
var ErrInvalid = errors.New("invalid field path")

// Segment is one step of a path: a field name, optionally indexed into an
// ordered item list.
type Segment struct {
	Name    string
	Index   int
	Indexed bool
}

func (s Segment) String() string {
	if s.Indexed {
		return s.Name + "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Name
}

// Path is a parsed field address. The zero value is invalid; obtain one via
// Parse or MustParse.
type Path struct {
	segs []Segment
}

// Parse validates and parses a raw path string. Malformed input (empty
// segments, unbalanced brackets, non-integer or negative indices, stray
// characters) fails with ErrInvalid.
func Parse(raw string) (Path, error) {
	if strings.TrimSpace(raw) == "" {
		return Path{}, fmt.Errorf("%w: empty path", ErrInvalid)
	}
	if raw != strings.TrimSpace(raw) {
		return Path{}, fmt.Errorf("%w: leading or trailing whitespace in %q", ErrInvalid, raw)
	}

	parts := strings.Split(raw, ".")
	segs := make([]Segment, 0, len(parts))
	for _, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return Path{}, fmt.Errorf("%w: segment %q in %q", err, part, raw)
		}
		segs = append(segs, seg)
	}
	return Path{segs: segs}, nil
}

// MustParse is Parse for compile-time-known paths; it panics on error.
func MustParse(raw string) Path {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func parseSegment(part string) (Segment, error) {
	if part == "" {
		return Segment{}, fmt.Errorf("%w: empty segment", ErrInvalid)
	}

	name := part
	idx := -1
	indexed := false

	if open := strings.IndexByte(part, '['); open >= 0 {
		if !strings.HasSuffix(part, "]") {
			return Segment{}, fmt.Errorf("%w: unbalanced brackets", ErrInvalid)
		}
		name = part[:open]
		inner := part[open+1 : len(part)-1]
		if strings.ContainsAny(inner, "[]") {
			return Segment{}, fmt.Errorf("%w: nested brackets", ErrInvalid)
		}
		n, err := strconv.Atoi(inner)
		if err != nil {
			return Segment{}, fmt.Errorf("%w: non-integer index %q", ErrInvalid, inner)
		}
		if n < 0 {
			return Segment{}, fmt.Errorf("%w: negative index %d", ErrInvalid, n)
		}
		idx = n
		indexed = true
	} else if strings.ContainsRune(part, ']') {
		return Segment{}, fmt.Errorf("%w: unbalanced brackets", ErrInvalid)
	}

	if !isIdentifier(name) {
		return Segment{}, fmt.Errorf("%w: invalid identifier %q", ErrInvalid, name)
	}

	return Segment{Name: name, Index: idx, Indexed: indexed}, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Segments returns the parsed steps in order. The returned slice must not be
// modified.
func (p Path) Segments() []Segment {
	return p.segs
}

// String returns the normalized form of the path.
func (p Path) String() string {
	var b strings.Builder
	for i, s := range p.segs {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// Equal reports whether two paths address the same leaf.
func (p Path) Equal(o Path) bool {
	return p.String() == o.String()
}

// IsZero reports whether the path is the unusable zero value.
func (p Path) IsZero() bool {
	return len(p.segs) == 0
}
