package rules_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-rentreport/pkg/model"
	"github.com/goliatone/go-rentreport/pkg/rules"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func build(t *testing.T, name string, params map[string]string) rules.Refiner {
	t.Helper()
	refiner, err := rules.Defaults().Build(model.Refinement{Rule: name, Params: params})
	if err != nil {
		t.Fatalf("build %s: %v", name, err)
	}
	return refiner
}

func TestWholeMonths(t *testing.T) {
	cases := []struct {
		a, b time.Time
		want int
	}{
		{day(2025, 1, 15), day(2025, 2, 15), 1},
		{day(2025, 1, 31), day(2025, 2, 28), 0},
		{day(2024, 3, 1), day(2025, 3, 1), 12},
		{day(2024, 3, 2), day(2025, 3, 1), 11},
		{day(2024, 11, 10), day(2025, 2, 9), 2},
	}
	for _, tc := range cases {
		if got := rules.WholeMonths(tc.a, tc.b); got != tc.want {
			t.Fatalf("WholeMonths(%s, %s): want %d, got %d", tc.a.Format(model.DateLayout), tc.b.Format(model.DateLayout), tc.want, got)
		}
	}
}

func TestAge(t *testing.T) {
	now := day(2026, 6, 10)
	if got := rules.Age(day(2008, 6, 10), now); got != 18 {
		t.Fatalf("birthday today: want 18, got %d", got)
	}
	if got := rules.Age(day(2008, 6, 11), now); got != 17 {
		t.Fatalf("birthday tomorrow: want 17, got %d", got)
	}
}

func TestPasswordMatch(t *testing.T) {
	refiner := build(t, rules.PasswordMatch, nil)
	pairs := []struct {
		password, confirm string
	}{
		{"Secret#123", "Secret#123"},
		{"Secret#123", "secret#123"},
		{"", ""},
		{"abc", "abc "},
	}
	for _, pair := range pairs {
		errs := refiner.Refine(model.Values{"password": pair.password, "confirmPassword": pair.confirm}, time.Time{})
		if passed := len(errs) == 0; passed != (pair.password == pair.confirm) {
			t.Fatalf("password %q confirm %q: passed=%v", pair.password, pair.confirm, passed)
		}
		if len(errs) > 0 && !errs.Has("confirmPassword") {
			t.Fatalf("expected error on confirmPassword, got %#v", errs)
		}
	}
}

func TestMinAge(t *testing.T) {
	refiner := build(t, rules.MinAge, map[string]string{"field": "birthDate"})
	now := day(2026, 1, 1)

	if errs := refiner.Refine(model.Values{"birthDate": day(2000, 1, 1)}, now); len(errs) != 0 {
		t.Fatalf("adult rejected: %#v", errs)
	}
	errs := refiner.Refine(model.Values{"birthDate": day(2010, 1, 1)}, now)
	want := model.Errors{"birthDate": "You must be at least 18 years old"}
	if diff := cmp.Diff(want, errs); diff != "" {
		t.Fatalf("minor mismatch (-want +got):\n%s", diff)
	}
}

func TestDateWindow(t *testing.T) {
	refiner := build(t, rules.DateWindow, map[string]string{
		"section":        "history",
		"earliestMonths": "24",
		"latestMonths":   "0",
	})
	now := day(2026, 10, 16)
	values := model.Values{"history": []model.Values{
		{"startDate": day(2024, 10, 16), "endDate": day(2025, 6, 1)},
		{"startDate": day(2024, 10, 15), "endDate": day(2026, 10, 17)},
	}}

	want := model.Errors{
		"history.1.startDate": "Start date must be within the last 24 months",
		"history.1.endDate":   "End date cannot be in the future",
	}
	if diff := cmp.Diff(want, refiner.Refine(values, now)); diff != "" {
		t.Fatalf("window errors mismatch (-want +got):\n%s", diff)
	}
}

func TestRentalPeriod(t *testing.T) {
	refiner := build(t, rules.RentalPeriod, map[string]string{"section": "history"})
	values := model.Values{"history": []model.Values{
		{"startDate": day(2025, 1, 1), "endDate": day(2025, 6, 1)},
		{"startDate": day(2025, 6, 1), "endDate": day(2025, 5, 1)},
		{"startDate": day(2025, 1, 10), "endDate": day(2025, 2, 9)},
		{"startDate": day(2024, 1, 1), "endDate": day(2025, 3, 1)},
	}}

	want := model.Errors{
		"history.1.endDate": "End date cannot be before start date",
		"history.2.endDate": "Rental period must be at least 1 month",
		"history.3.endDate": "Rental period cannot exceed 13 months",
	}
	if diff := cmp.Diff(want, refiner.Refine(values, time.Time{})); diff != "" {
		t.Fatalf("period errors mismatch (-want +got):\n%s", diff)
	}
}

func TestHistorySpan_UnionOfEntries(t *testing.T) {
	refiner := build(t, rules.HistorySpan, map[string]string{"section": "history"})

	cases := []struct {
		name    string
		entries []model.Values
		pass    bool
	}{
		{
			name: "exactly twelve months",
			entries: []model.Values{
				{"startDate": day(2025, 1, 1), "endDate": day(2025, 6, 30)},
				{"startDate": day(2025, 7, 1), "endDate": day(2026, 1, 1)},
			},
			pass: true,
		},
		{
			name: "appended entry widens span",
			entries: []model.Values{
				{"startDate": day(2025, 1, 1), "endDate": day(2025, 6, 30)},
				{"startDate": day(2025, 7, 1), "endDate": day(2026, 2, 1)},
			},
			pass: false,
		},
		{
			name: "order does not matter",
			entries: []model.Values{
				{"startDate": day(2025, 9, 1), "endDate": day(2025, 12, 1)},
				{"startDate": day(2025, 2, 1), "endDate": day(2025, 4, 1)},
			},
			pass: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errs := refiner.Refine(model.Values{"history": tc.entries}, time.Time{})
			if passed := len(errs) == 0; passed != tc.pass {
				t.Fatalf("want pass=%v, got errors %#v", tc.pass, errs)
			}
			if !tc.pass && !errs.Has("history") {
				t.Fatalf("expected span error on history, got %#v", errs)
			}
		})
	}
}

func TestHistorySpan_IncludesPrimaryPeriod(t *testing.T) {
	refiner := build(t, rules.HistorySpan, map[string]string{
		"section":      "history",
		"primaryStart": "startDate",
		"primaryEnd":   "endDate",
		"maxMonths":    "13",
	})
	values := model.Values{
		"startDate": day(2024, 1, 1),
		"endDate":   day(2024, 6, 1),
		"history": []model.Values{
			{"startDate": day(2024, 6, 1), "endDate": day(2025, 3, 1)},
		},
	}
	if errs := refiner.Refine(values, time.Time{}); !errs.Has("history") {
		t.Fatalf("expected span violation, got %#v", errs)
	}
}

func TestRegistry_BuildErrors(t *testing.T) {
	reg := rules.Defaults()
	if _, err := reg.Build(model.Refinement{Rule: "unknown"}); err == nil {
		t.Fatalf("expected unknown refinement error")
	}
	if _, err := reg.Build(model.Refinement{Rule: rules.RentalPeriod, Params: map[string]string{"maxMonths": "x"}}); err == nil {
		t.Fatalf("expected param error")
	}
	if _, err := reg.Build(model.Refinement{Rule: rules.DateWindow}); err == nil {
		t.Fatalf("expected missing bound error")
	}
	if err := reg.Register(rules.PasswordMatch, func(map[string]string) (rules.Refiner, error) { return nil, nil }); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
