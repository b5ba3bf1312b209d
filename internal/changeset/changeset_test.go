package changeset

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"roiboard/internal/auth"
	"roiboard/internal/core"
	"roiboard/internal/ledger/memory"
)

func baselineEntry() core.Entry {
	date := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	return core.Entry{
		ID:           "e1",
		Date:         date,
		TotalRevenue: decimal.NewFromInt(5000),
		PurchaseCost: []core.PurchaseItem{
			{Item: "rice", Amount: decimal.NewFromInt(300)},
		},
		Expenses: core.Expenses{
			StaffSalary: []core.StaffLine{
				{Name: "Asha", Amount: decimal.NewFromInt(800)},
			},
			Rent:        decimal.NewFromInt(100),
			Electricity: decimal.NewFromInt(75),
		},
		CreatedBy: "owner-1",
		CreatedAt: date,
		UpdatedAt: date,
	}
}

func approve(t *testing.T, store *memory.Store, id, entryID, fieldPath, requester string) {
	t.Helper()
	req := core.EditRequest{
		ID:          id,
		EntryID:     entryID,
		FieldPath:   fieldPath,
		OldValue:    core.NumberFromInt(0),
		NewValue:    core.NumberFromInt(1),
		Reason:      "correction",
		RequestedBy: requester,
		Status:      core.StatusPending,
		CreatedAt:   time.Now(),
	}
	if err := store.CreateRequest(context.Background(), req); err != nil {
		t.Fatalf("CreateRequest %s: %v", id, err)
	}
	if _, err := store.Decide(context.Background(), id, core.StatusApproved, "owner-1"); err != nil {
		t.Fatalf("Decide %s: %v", id, err)
	}
}

func TestBuild_OwnerDiff(t *testing.T) {
	ctx := context.Background()
	fields := auth.NewFieldAuthorizer(memory.New())
	owner := auth.Actor{ID: "owner-1", Role: auth.RoleOwner}

	baseline := baselineEntry()
	edited := baseline.Clone()
	edited.Expenses.Rent = decimal.NewFromInt(150)

	changes, err := Build(ctx, baseline, edited, owner, fields)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("len(changes) = %d, want 1", len(changes))
	}
	if got := changes[0].Path.String(); got != "expenses.rent" {
		t.Errorf("path = %s, want expenses.rent", got)
	}
	if !changes[0].Value.Equal(core.NumberFromInt(150)) {
		t.Errorf("value = %v, want 150", changes[0].Value)
	}
}

func TestBuild_NoDiffIsNoOp(t *testing.T) {
	ctx := context.Background()
	fields := auth.NewFieldAuthorizer(memory.New())
	owner := auth.Actor{ID: "owner-1", Role: auth.RoleOwner}

	baseline := baselineEntry()
	changes, err := Build(ctx, baseline, baseline.Clone(), owner, fields)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("identical records produced %d changes", len(changes))
	}
}

func TestBuild_EquivalentNumbersAreNotChanges(t *testing.T) {
	ctx := context.Background()
	fields := auth.NewFieldAuthorizer(memory.New())
	owner := auth.Actor{ID: "owner-1", Role: auth.RoleOwner}

	baseline := baselineEntry()
	edited := baseline.Clone()
	// 100 and 100.00 are the same amount
	edited.Expenses.Rent = decimal.RequireFromString("100.00")

	changes, err := Build(ctx, baseline, edited, owner, fields)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("trailing-zero rewording produced %d changes", len(changes))
	}
}

func TestBuild_StaffForbiddenChangesDropped(t *testing.T) {
	ctx := context.Background()
	fields := auth.NewFieldAuthorizer(memory.New())
	staff := auth.Actor{ID: "staff-1", Role: auth.RoleStaff}

	baseline := baselineEntry()
	edited := baseline.Clone()
	edited.Expenses.Rent = decimal.NewFromInt(150)
	edited.Expenses.Electricity = decimal.NewFromInt(90)

	changes, err := Build(ctx, baseline, edited, staff, fields)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("staff without approvals got %d changes through", len(changes))
	}
}

func TestBuild_StaffKeepsOnlyApprovedFields(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	fields := auth.NewFieldAuthorizer(store)
	staff := auth.Actor{ID: "staff-1", Role: auth.RoleStaff}

	approve(t, store, "r1", "e1", "expenses.rent", staff.ID)

	baseline := baselineEntry()
	edited := baseline.Clone()
	edited.Expenses.Rent = decimal.NewFromInt(150)
	edited.Expenses.Electricity = decimal.NewFromInt(90)

	changes, err := Build(ctx, baseline, edited, staff, fields)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("len(changes) = %d, want 1", len(changes))
	}
	if got := changes[0].Path.String(); got != "expenses.rent" {
		t.Errorf("kept %s, want expenses.rent", got)
	}
}

func TestBuild_OrderedByPath(t *testing.T) {
	ctx := context.Background()
	fields := auth.NewFieldAuthorizer(memory.New())
	owner := auth.Actor{ID: "owner-1", Role: auth.RoleOwner}

	baseline := baselineEntry()
	edited := baseline.Clone()
	edited.TotalRevenue = decimal.NewFromInt(5500)
	edited.Expenses.Rent = decimal.NewFromInt(150)
	edited.PurchaseCost[0].Amount = decimal.NewFromInt(320)

	changes, err := Build(ctx, baseline, edited, owner, fields)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []string{"expenses.rent", "purchaseCost[0].amount", "totalRevenue"}
	if len(changes) != len(want) {
		t.Fatalf("len(changes) = %d, want %d", len(changes), len(want))
	}
	for i, w := range want {
		if got := changes[i].Path.String(); got != w {
			t.Errorf("changes[%d] = %s, want %s", i, got, w)
		}
	}
}

func TestBuild_ShapeChangeOnlyDiffsSharedLeaves(t *testing.T) {
	ctx := context.Background()
	fields := auth.NewFieldAuthorizer(memory.New())
	owner := auth.Actor{ID: "owner-1", Role: auth.RoleOwner}

	baseline := baselineEntry()
	edited := baseline.Clone()
	// an extra line exists only in the edited record; its leaves are not
	// shared with the baseline and cannot surface as changes
	edited.PurchaseCost = append(edited.PurchaseCost, core.PurchaseItem{
		Item: "oil", Amount: decimal.NewFromInt(120),
	})
	edited.Expenses.Rent = decimal.NewFromInt(150)

	changes, err := Build(ctx, baseline, edited, owner, fields)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(changes) != 1 || changes[0].Path.String() != "expenses.rent" {
		t.Errorf("changes = %+v, want only expenses.rent", changes)
	}
}
