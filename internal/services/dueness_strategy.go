package services

import (
	"fmt"

	"fintrack/internal/core"
)

// DuenessChecker decides whether a recurring template produces an entry on a
// given day. Implementations are looked up by frequency.
type DuenessChecker interface {
	IsDue(rt core.RecurringTemplate, asOf core.Date) bool
}

// AnchorDayChecker fires on the exact day of month given by the template's
// anchor day, from the start date onwards. Months shorter than the anchor
// day are skipped.
type AnchorDayChecker struct{}

func (AnchorDayChecker) IsDue(rt core.RecurringTemplate, asOf core.Date) bool {
	if asOf.Before(rt.StartDate.Time) {
		return false
	}
	return asOf.Day() == rt.EffectiveAnchorDay()
}

// duenessStrategies maps frequencies to their checkers. Every frequency
// currently resolves to the anchor-day rule; interval and weekday semantics
// are not expressed yet.
var duenessStrategies = map[core.Frequency]DuenessChecker{
	core.Daily:   AnchorDayChecker{},
	core.Weekly:  AnchorDayChecker{},
	core.Monthly: AnchorDayChecker{},
	core.Yearly:  AnchorDayChecker{},
}

// GetDuenessChecker returns the checker registered for frequency.
func GetDuenessChecker(frequency core.Frequency) (DuenessChecker, error) {
	checker, ok := duenessStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", frequency)
	}
	return checker, nil
}
