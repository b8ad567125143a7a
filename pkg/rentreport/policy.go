package rentreport

import (
	"strconv"

	"github.com/goliatone/go-rentreport/pkg/forms"
	"github.com/goliatone/go-rentreport/pkg/model"
	"github.com/goliatone/go-rentreport/pkg/rules"
)

// BackRentPolicy bounds the rental periods accepted by a back-rent form.
// Member and public purchasers get different windows.
type BackRentPolicy struct {
	FormID string
	// EarliestMonths is how far back a period may start.
	EarliestMonths int
	// LatestMonths is how far from today a period may end; 0 is today.
	LatestMonths int
	// MaxSpanMonths caps whole months from the earliest start to the
	// latest end.
	MaxSpanMonths int
}

var (
	MemberPolicy = BackRentPolicy{FormID: forms.BackRentMember, EarliestMonths: 24, LatestMonths: 0, MaxSpanMonths: 12}
	PublicPolicy = BackRentPolicy{FormID: forms.BackRentPublic, EarliestMonths: 36, LatestMonths: 0, MaxSpanMonths: 13}
)

// Refinements returns the refinements enforcing p over section.
func (p BackRentPolicy) Refinements(section string) []model.Refinement {
	return []model.Refinement{
		{Rule: rules.RentalPeriod, Params: map[string]string{"section": section}},
		{Rule: rules.DateWindow, Params: map[string]string{
			"section":        section,
			"earliestMonths": strconv.Itoa(p.EarliestMonths),
			"latestMonths":   strconv.Itoa(p.LatestMonths),
		}},
		{Rule: rules.HistorySpan, Params: map[string]string{
			"section":   section,
			"maxMonths": strconv.Itoa(p.MaxSpanMonths),
		}},
	}
}

// Apply replaces the form's back-rent refinements with the ones of p.
func (p BackRentPolicy) Apply(form model.FormModel) model.FormModel {
	kept := make([]model.Refinement, 0, len(form.Refinements))
	for _, refinement := range form.Refinements {
		switch refinement.Rule {
		case rules.RentalPeriod, rules.DateWindow, rules.HistorySpan:
			continue
		}
		kept = append(kept, refinement)
	}
	form.Refinements = append(kept, p.Refinements("history")...)
	return form
}
