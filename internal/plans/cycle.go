package plans

import (
	"time"

	"github.com/sherlocker/sherlocker-backend/pkg/enums"
)

// AddCycle advances from by one billing cycle of the given periodicity.
// Unknown periodicities are treated as monthly.
func AddCycle(periodicity enums.PlanPeriodicity, from time.Time) time.Time {
	switch periodicity {
	case enums.PlanPeriodicityDays:
		return from.AddDate(0, 0, 1)
	case enums.PlanPeriodicityAnnual:
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}

// SubtractCycle moves from back by one billing cycle.
func SubtractCycle(periodicity enums.PlanPeriodicity, from time.Time) time.Time {
	switch periodicity {
	case enums.PlanPeriodicityDays:
		return from.AddDate(0, 0, -1)
	case enums.PlanPeriodicityAnnual:
		return from.AddDate(-1, 0, 0)
	default:
		return from.AddDate(0, -1, 0)
	}
}
