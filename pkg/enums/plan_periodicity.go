package enums

// PlanPeriodicity is the billing cycle length of a plan.
type PlanPeriodicity string

const (
	PlanPeriodicityDays    PlanPeriodicity = "DAYS"
	PlanPeriodicityMonthly PlanPeriodicity = "MONTHLY"
	PlanPeriodicityAnnual  PlanPeriodicity = "ANNUAL"
)

func (p PlanPeriodicity) IsValid() bool {
	return known(p, []PlanPeriodicity{PlanPeriodicityDays, PlanPeriodicityMonthly, PlanPeriodicityAnnual})
}
