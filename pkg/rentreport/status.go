// Package rentreport implements the member and public reporting flows: rent
// payments, back-rent reports, the dashboard read models and the admin
// dashboard.
package rentreport

import "time"

// Status is the reporting status attached to a rent report.
type Status string

const (
	StatusReported Status = "Reported"
	StatusLate     Status = "Late"
)

// OnTimeDay is the last day of the month a report counts as on time.
const OnTimeDay = 5

// StatusAt returns the status of a report submitted at now: Reported on or
// before the 5th of the month, Late afterwards.
func StatusAt(now time.Time) Status {
	if now.Day() <= OnTimeDay {
		return StatusReported
	}
	return StatusLate
}
