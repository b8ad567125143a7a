package formstate_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-rentreport/pkg/clock"
	"github.com/goliatone/go-rentreport/pkg/formstate"
	"github.com/goliatone/go-rentreport/pkg/model"
	"github.com/goliatone/go-rentreport/pkg/validation"
)

func backRentForm() model.FormModel {
	return model.FormModel{
		ID: "back-rent",
		Fields: []model.Field{
			{Name: "email", Kind: model.KindEmail, Required: true},
			{Name: "plan", Kind: model.KindString, Default: "basic"},
			{
				Name:     "history",
				Kind:     model.KindSection,
				MinItems: 1,
				MaxItems: 3,
				Fields: []model.Field{
					{Name: "startDate", Kind: model.KindDate, Required: true},
					{Name: "endDate", Kind: model.KindDate, Required: true},
					{Name: "verifyWithLandlord", Kind: model.KindBoolean, Default: false},
				},
			},
		},
	}
}

func newState() *formstate.State {
	now := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	return formstate.New(backRentForm(), validation.New(validation.WithClock(clock.NewManual(now))))
}

func TestNew_SeedsDefaults(t *testing.T) {
	want := model.Values{
		"plan":    "basic",
		"history": []model.Values{{"verifyWithLandlord": false}},
	}
	if diff := cmp.Diff(want, newState().Values()); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendThenRemove_ReindexesRemainingEntries(t *testing.T) {
	state := newState()
	mustSet(t, state, "history.0.startDate", "2025-01-01")
	mustSet(t, state, "history.0.endDate", "2025-04-01")

	idx, err := state.Append("history")
	if err != nil || idx != 1 {
		t.Fatalf("append: idx=%d err=%v", idx, err)
	}
	mustSet(t, state, "history.1.startDate", "2025-04-01")

	idx, err = state.Append("history")
	if err != nil || idx != 2 {
		t.Fatalf("append: idx=%d err=%v", idx, err)
	}
	mustSet(t, state, "history.2.startDate", "2025-08-01")
	mustSet(t, state, "history.2.endDate", "2025-12-01")
	state.Touch("history.2.endDate")

	if err := state.Remove("history", 1); err != nil {
		t.Fatalf("remove: %v", err)
	}

	date := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	want := []model.Values{
		{"startDate": date(2025, 1, 1), "endDate": date(2025, 4, 1), "verifyWithLandlord": false},
		{"startDate": date(2025, 8, 1), "endDate": date(2025, 12, 1), "verifyWithLandlord": false},
	}
	if diff := cmp.Diff(want, state.Values().Entries("history")); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	if !state.Dirty("history.1.endDate") || !state.Touched("history[1].endDate") {
		t.Fatalf("flags of the last entry should move to index 1")
	}
	if state.Touched("history.2.endDate") || state.Dirty("history.2.startDate") {
		t.Fatalf("flags at the old index should be gone")
	}
	if errs := state.Errors(); errs.Has("history.1.endDate") || len(errs.Under("history")) != 0 {
		t.Fatalf("unexpected section errors %#v", errs)
	}
}

func TestAppend_RespectsMaxItems(t *testing.T) {
	state := newState()
	for i := 0; i < 2; i++ {
		if _, err := state.Append("history"); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if _, err := state.Append("history"); err == nil {
		t.Fatalf("expected max items error")
	}
	if _, err := state.Append("email"); err == nil {
		t.Fatalf("expected non-section error")
	}
}

func TestErrors_RecomputedAndVisibility(t *testing.T) {
	state := newState()
	if !state.Errors().Has("email") {
		t.Fatalf("expected required error for email")
	}
	if len(state.VisibleErrors()) != 0 {
		t.Fatalf("untouched errors should be hidden, got %#v", state.VisibleErrors())
	}

	mustSet(t, state, "email", "not-an-email")
	state.Touch("email")
	if got := state.VisibleErrors()["email"]; got != "Enter a valid email address" {
		t.Fatalf("unexpected email message %q", got)
	}

	mustSet(t, state, "email", "ada@example.com")
	if state.Errors().Has("email") {
		t.Fatalf("email error should clear after a valid value")
	}

	if _, err := state.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	visible := state.VisibleErrors()
	if !visible.Has("history.0.startDate") || !visible.Has("history.0.endDate") {
		t.Fatalf("submit should reveal every error, got %#v", visible)
	}
}

func TestSet_KeepsUnconvertibleInput(t *testing.T) {
	state := newState()
	mustSet(t, state, "history.0.startDate", "01/02/2025")

	got, _ := state.Values().Get("history.0.startDate")
	if got != "01/02/2025" {
		t.Fatalf("raw input should be kept, got %#v", got)
	}
	if msg := state.Errors()["history.0.startDate"]; msg != "Enter a valid date" {
		t.Fatalf("unexpected message %q", msg)
	}
	if err := state.Set("missing", "x"); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestReset(t *testing.T) {
	state := newState()
	mustSet(t, state, "email", "ada@example.com")
	state.Reset()
	if state.IsDirty() || state.Values().Has("email") {
		t.Fatalf("reset should discard changes")
	}
}

func mustSet(t *testing.T, state *formstate.State, path string, value any) {
	t.Helper()
	if err := state.Set(path, value); err != nil {
		t.Fatalf("set %s: %v", path, err)
	}
}
