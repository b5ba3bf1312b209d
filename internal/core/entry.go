package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"roiboard/internal/fieldpath"
)

// Entry is one daily revenue/expense record. It is the subject of all edit
// requests; STAFF actors mutate it only through the approved-change path.
type Entry struct {
	ID           string          `json:"id"`
	Date         time.Time       `json:"date"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	PurchaseCost []PurchaseItem  `json:"purchaseCost"`
	Expenses     Expenses        `json:"expenses"`
	CreatedBy    string          `json:"createdBy"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// PurchaseItem is one line of the purchase cost list.
type PurchaseItem struct {
	Item   string          `json:"item"`
	Amount decimal.Decimal `json:"amount"`
}

// StaffLine is one salary or accommodation line.
type StaffLine struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// OtherLine is one miscellaneous expense line.
type OtherLine struct {
	Reason string          `json:"reason"`
	Amount decimal.Decimal `json:"amount"`
}

// Expenses groups the entry's expense fields: ordered item lists plus flat
// numeric categories. Every item-list entry has the fixed key set of its
// category.
type Expenses struct {
	StaffSalary        []StaffLine     `json:"staffSalary"`
	StaffAccommodation []StaffLine     `json:"staffAccommodation"`
	Other              []OtherLine     `json:"other"`
	Food               decimal.Decimal `json:"food"`
	Rent               decimal.Decimal `json:"rent"`
	Electricity        decimal.Decimal `json:"electricity"`
	TravelFuel         decimal.Decimal `json:"travelFuel"`
	MobInternet        decimal.Decimal `json:"mobInternet"`
	Maintenance        decimal.Decimal `json:"maintenance"`
	Transport          decimal.Decimal `json:"transport"`
	Marketing          decimal.Decimal `json:"marketing"`
	Consulting         decimal.Decimal `json:"consulting"`
	Software           decimal.Decimal `json:"software"`
	Incentive          decimal.Decimal `json:"incentive"`
	StockClearance     decimal.Decimal `json:"stockClearance"`
}

// flatExpenseNames lists the flat numeric categories in declaration order.
var flatExpenseNames = []string{
	"food", "rent", "electricity", "travelFuel", "mobInternet",
	"maintenance", "transport", "marketing", "consulting", "software",
	"incentive", "stockClearance",
}

const dateLayout = "2006-01-02"

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrNegativeAmount  = errors.New("amount cannot be negative")
	ErrEmptyEntryID    = errors.New("empty entry id")
	ErrEmptyCreatedBy  = errors.New("empty creator id")
	ErrEmptyLineItem   = errors.New("empty line item label")
	ErrNegativeRevenue = errors.New("total revenue cannot be negative")
)

// Validate checks the invariants an entry must hold before it is stored.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrEmptyEntryID
	}
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if strings.TrimSpace(e.CreatedBy) == "" {
		return ErrEmptyCreatedBy
	}
	if e.TotalRevenue.IsNegative() {
		return ErrNegativeRevenue
	}
	for _, p := range e.PurchaseCost {
		if p.Amount.IsNegative() {
			return fmt.Errorf("purchase cost %q: %w", p.Item, ErrNegativeAmount)
		}
	}
	for _, s := range e.Expenses.StaffSalary {
		if s.Amount.IsNegative() {
			return fmt.Errorf("staff salary %q: %w", s.Name, ErrNegativeAmount)
		}
	}
	for _, s := range e.Expenses.StaffAccommodation {
		if s.Amount.IsNegative() {
			return fmt.Errorf("staff accommodation %q: %w", s.Name, ErrNegativeAmount)
		}
	}
	for _, o := range e.Expenses.Other {
		if o.Amount.IsNegative() {
			return fmt.Errorf("other expense %q: %w", o.Reason, ErrNegativeAmount)
		}
	}
	for _, name := range flatExpenseNames {
		if v, _ := e.Expenses.flat(name); v.IsNegative() {
			return fmt.Errorf("expenses.%s: %w", name, ErrNegativeAmount)
		}
	}
	return nil
}

// Clone returns a deep copy. Apply works on a clone so that the caller's
// entry and all structurally shared siblings stay untouched.
func (e Entry) Clone() Entry {
	out := e
	out.PurchaseCost = append([]PurchaseItem(nil), e.PurchaseCost...)
	out.Expenses.StaffSalary = append([]StaffLine(nil), e.Expenses.StaffSalary...)
	out.Expenses.StaffAccommodation = append([]StaffLine(nil), e.Expenses.StaffAccommodation...)
	out.Expenses.Other = append([]OtherLine(nil), e.Expenses.Other...)
	return out
}

// Resolve walks the entry and returns the scalar leaf addressed by path.
// A segment that does not exist, an index out of range, or a terminal target
// that is not a scalar all fail with fieldpath.ErrInvalid.
func (e Entry) Resolve(p fieldpath.Path) (Value, error) {
	segs := p.Segments()
	if len(segs) == 0 {
		return Value{}, fmt.Errorf("%w: empty path", fieldpath.ErrInvalid)
	}

	switch segs[0].Name {
	case "date":
		if segs[0].Indexed || len(segs) != 1 {
			return Value{}, pathErr(p, "date is a scalar")
		}
		return Text(e.Date.Format(dateLayout)), nil

	case "totalRevenue":
		if segs[0].Indexed || len(segs) != 1 {
			return Value{}, pathErr(p, "totalRevenue is a scalar")
		}
		return Number(e.TotalRevenue), nil

	case "purchaseCost":
		item, err := indexInto(p, segs[0], e.PurchaseCost)
		if err != nil {
			return Value{}, err
		}
		if len(segs) != 2 || segs[1].Indexed {
			return Value{}, pathErr(p, "purchase cost lines have item and amount")
		}
		switch segs[1].Name {
		case "item":
			return Text(item.Item), nil
		case "amount":
			return Number(item.Amount), nil
		}
		return Value{}, pathErr(p, "unknown purchase cost key "+segs[1].Name)

	case "expenses":
		if segs[0].Indexed {
			return Value{}, pathErr(p, "expenses is not a list")
		}
		return e.Expenses.resolve(p, segs[1:])
	}

	return Value{}, pathErr(p, "unknown field "+segs[0].Name)
}

func (x Expenses) resolve(p fieldpath.Path, segs []fieldpath.Segment) (Value, error) {
	if len(segs) == 0 {
		return Value{}, pathErr(p, "expenses is not a scalar")
	}

	switch segs[0].Name {
	case "staffSalary", "staffAccommodation":
		lines := x.StaffSalary
		if segs[0].Name == "staffAccommodation" {
			lines = x.StaffAccommodation
		}
		line, err := indexInto(p, segs[0], lines)
		if err != nil {
			return Value{}, err
		}
		if len(segs) != 2 || segs[1].Indexed {
			return Value{}, pathErr(p, "staff lines have name and amount")
		}
		switch segs[1].Name {
		case "name":
			return Text(line.Name), nil
		case "amount":
			return Number(line.Amount), nil
		}
		return Value{}, pathErr(p, "unknown staff line key "+segs[1].Name)

	case "other":
		line, err := indexInto(p, segs[0], x.Other)
		if err != nil {
			return Value{}, err
		}
		if len(segs) != 2 || segs[1].Indexed {
			return Value{}, pathErr(p, "other lines have reason and amount")
		}
		switch segs[1].Name {
		case "reason":
			return Text(line.Reason), nil
		case "amount":
			return Number(line.Amount), nil
		}
		return Value{}, pathErr(p, "unknown other line key "+segs[1].Name)
	}

	if v, ok := x.flat(segs[0].Name); ok {
		if segs[0].Indexed || len(segs) != 1 {
			return Value{}, pathErr(p, segs[0].Name+" is a scalar")
		}
		return Number(v), nil
	}
	return Value{}, pathErr(p, "unknown expense field "+segs[0].Name)
}

// Apply returns a copy of the entry with the addressed leaf replaced. The
// receiver is never mutated. Failure modes match Resolve, plus ErrValidation
// when the value's shape does not match the leaf (text into an amount, a
// number into a name, an unparseable date).
func (e Entry) Apply(p fieldpath.Path, v Value) (Entry, error) {
	// Resolving first rejects bad addresses before any copying happens.
	if _, err := e.Resolve(p); err != nil {
		return Entry{}, err
	}

	out := e.Clone()
	segs := p.Segments()

	switch segs[0].Name {
	case "date":
		if v.Kind() != KindText {
			return Entry{}, fmt.Errorf("%w: date expects a YYYY-MM-DD string", ErrValidation)
		}
		t, err := time.Parse(dateLayout, v.AsText())
		if err != nil {
			return Entry{}, fmt.Errorf("%w: invalid date %q", ErrValidation, v.AsText())
		}
		out.Date = t

	case "totalRevenue":
		n, err := numberFor(p, v)
		if err != nil {
			return Entry{}, err
		}
		out.TotalRevenue = n

	case "purchaseCost":
		line := &out.PurchaseCost[segs[0].Index]
		if segs[1].Name == "item" {
			s, err := textFor(p, v)
			if err != nil {
				return Entry{}, err
			}
			line.Item = s
		} else {
			n, err := numberFor(p, v)
			if err != nil {
				return Entry{}, err
			}
			line.Amount = n
		}

	case "expenses":
		if err := out.Expenses.apply(p, segs[1:], v); err != nil {
			return Entry{}, err
		}
	}

	return out, nil
}

func (x *Expenses) apply(p fieldpath.Path, segs []fieldpath.Segment, v Value) error {
	switch segs[0].Name {
	case "staffSalary", "staffAccommodation":
		lines := x.StaffSalary
		if segs[0].Name == "staffAccommodation" {
			lines = x.StaffAccommodation
		}
		line := &lines[segs[0].Index]
		if segs[1].Name == "name" {
			s, err := textFor(p, v)
			if err != nil {
				return err
			}
			line.Name = s
		} else {
			n, err := numberFor(p, v)
			if err != nil {
				return err
			}
			line.Amount = n
		}
		return nil

	case "other":
		line := &x.Other[segs[0].Index]
		if segs[1].Name == "reason" {
			s, err := textFor(p, v)
			if err != nil {
				return err
			}
			line.Reason = s
		} else {
			n, err := numberFor(p, v)
			if err != nil {
				return err
			}
			line.Amount = n
		}
		return nil
	}

	n, err := numberFor(p, v)
	if err != nil {
		return err
	}
	x.setFlat(segs[0].Name, n)
	return nil
}

// Leaves enumerates every addressable leaf of the entry in a fixed
// structural order: scalars first, then purchase cost lines, then expense
// lists, then flat categories.
func (e Entry) Leaves() []fieldpath.Path {
	out := []fieldpath.Path{
		fieldpath.MustParse("date"),
		fieldpath.MustParse("totalRevenue"),
	}
	for i := range e.PurchaseCost {
		out = append(out,
			fieldpath.MustParse(fmt.Sprintf("purchaseCost[%d].item", i)),
			fieldpath.MustParse(fmt.Sprintf("purchaseCost[%d].amount", i)),
		)
	}
	for i := range e.Expenses.StaffSalary {
		out = append(out,
			fieldpath.MustParse(fmt.Sprintf("expenses.staffSalary[%d].name", i)),
			fieldpath.MustParse(fmt.Sprintf("expenses.staffSalary[%d].amount", i)),
		)
	}
	for i := range e.Expenses.StaffAccommodation {
		out = append(out,
			fieldpath.MustParse(fmt.Sprintf("expenses.staffAccommodation[%d].name", i)),
			fieldpath.MustParse(fmt.Sprintf("expenses.staffAccommodation[%d].amount", i)),
		)
	}
	for i := range e.Expenses.Other {
		out = append(out,
			fieldpath.MustParse(fmt.Sprintf("expenses.other[%d].reason", i)),
			fieldpath.MustParse(fmt.Sprintf("expenses.other[%d].amount", i)),
		)
	}
	for _, name := range flatExpenseNames {
		out = append(out, fieldpath.MustParse("expenses."+name))
	}
	return out
}

func (x Expenses) flat(name string) (decimal.Decimal, bool) {
	switch name {
	case "food":
		return x.Food, true
	case "rent":
		return x.Rent, true
	case "electricity":
		return x.Electricity, true
	case "travelFuel":
		return x.TravelFuel, true
	case "mobInternet":
		return x.MobInternet, true
	case "maintenance":
		return x.Maintenance, true
	case "transport":
		return x.Transport, true
	case "marketing":
		return x.Marketing, true
	case "consulting":
		return x.Consulting, true
	case "software":
		return x.Software, true
	case "incentive":
		return x.Incentive, true
	case "stockClearance":
		return x.StockClearance, true
	}
	return decimal.Decimal{}, false
}

func (x *Expenses) setFlat(name string, v decimal.Decimal) {
	switch name {
	case "food":
		x.Food = v
	case "rent":
		x.Rent = v
	case "electricity":
		x.Electricity = v
	case "travelFuel":
		x.TravelFuel = v
	case "mobInternet":
		x.MobInternet = v
	case "maintenance":
		x.Maintenance = v
	case "transport":
		x.Transport = v
	case "marketing":
		x.Marketing = v
	case "consulting":
		x.Consulting = v
	case "software":
		x.Software = v
	case "incentive":
		x.Incentive = v
	case "stockClearance":
		x.StockClearance = v
	}
}

type keyedLine interface {
	PurchaseItem | StaffLine | OtherLine
}

func indexInto[T keyedLine](p fieldpath.Path, seg fieldpath.Segment, lines []T) (T, error) {
	var zero T
	if !seg.Indexed {
		return zero, pathErr(p, seg.Name+" is a list and needs an index")
	}
	if seg.Index >= len(lines) {
		return zero, pathErr(p, fmt.Sprintf("%s[%d] out of range (len %d)", seg.Name, seg.Index, len(lines)))
	}
	return lines[seg.Index], nil
}

func numberFor(p fieldpath.Path, v Value) (decimal.Decimal, error) {
	if v.Kind() != KindNumber {
		return decimal.Decimal{}, fmt.Errorf("%w: %s expects a number", ErrValidation, p)
	}
	return v.AsNumber(), nil
}

func textFor(p fieldpath.Path, v Value) (string, error) {
	if v.Kind() != KindText {
		return "", fmt.Errorf("%w: %s expects text", ErrValidation, p)
	}
	return v.AsText(), nil
}

func pathErr(p fieldpath.Path, detail string) error {
	return fmt.Errorf("%w: %s: %s", fieldpath.ErrInvalid, p, detail)
}
