package fieldpath

import (
	"errors"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"single scalar", "date", "date"},
		{"nested scalar", "expenses.rent", "expenses.rent"},
		{"indexed list leaf", "expenses.staffSalary[1].amount", "expenses.staffSalary[1].amount"},
		{"index zero", "purchaseCost[0].item", "purchaseCost[0].item"},
		{"large index", "expenses.other[42].reason", "expenses.other[42].reason"},
		{"underscore identifier", "some_field.child", "some_field.child"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.raw, err)
			}
			if got := p.String(); got != tt.want {
				t.Errorf("Parse(%q).String() = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"leading whitespace", " date"},
		{"trailing whitespace", "date "},
		{"empty segment leading dot", ".date"},
		{"empty segment trailing dot", "date."},
		{"empty segment double dot", "expenses..rent"},
		{"unbalanced open bracket", "staffSalary[1.amount"},
		{"unbalanced close bracket", "staffSalary1].amount"},
		{"nested brackets", "staffSalary[[1]].amount"},
		{"non-integer index", "staffSalary[one].amount"},
		{"negative index", "staffSalary[-1].amount"},
		{"empty index", "staffSalary[].amount"},
		{"index without name", "[0].amount"},
		{"digit-leading identifier", "1date"},
		{"invalid character", "expenses.sta ff"},
		{"trailing garbage after index", "staffSalary[1]x.amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			if err == nil {
				t.Fatalf("Parse(%q) expected error, got nil", tt.raw)
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Parse(%q) error = %v, want ErrInvalid", tt.raw, err)
			}
		})
	}
}

func TestPath_Segments(t *testing.T) {
	p := MustParse("expenses.staffSalary[1].amount")
	segs := p.Segments()
	if len(segs) != 3 {
		t.Fatalf("Segments() len = %d, want 3", len(segs))
	}
	if segs[0].Name != "expenses" || segs[0].Indexed {
		t.Errorf("segs[0] = %+v, want plain expenses", segs[0])
	}
	if segs[1].Name != "staffSalary" || !segs[1].Indexed || segs[1].Index != 1 {
		t.Errorf("segs[1] = %+v, want staffSalary[1]", segs[1])
	}
	if segs[2].Name != "amount" || segs[2].Indexed {
		t.Errorf("segs[2] = %+v, want plain amount", segs[2])
	}
}

func TestPath_Equal(t *testing.T) {
	a := MustParse("expenses.staffSalary[1].amount")
	b := MustParse("expenses.staffSalary[1].amount")
	c := MustParse("expenses.staffSalary[2].amount")

	if !a.Equal(b) {
		t.Errorf("equal paths reported unequal")
	}
	if a.Equal(c) {
		t.Errorf("paths with different indices reported equal")
	}
}

func TestPath_IsZero(t *testing.T) {
	var zero Path
	if !zero.IsZero() {
		t.Errorf("zero Path should report IsZero")
	}
	if MustParse("date").IsZero() {
		t.Errorf("parsed path should not report IsZero")
	}
}

func TestMustParse_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("MustParse on invalid input should panic")
		}
	}()
	MustParse("not..valid")
}
