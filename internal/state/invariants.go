package state

import (
	"TrueMarket/internal/num"
	"fmt"
)

// CheckInvariants verifies the structural invariants of a market:
//
//	outcome_count == len(outcomes), within [MinOutcomes, MaxOutcomes]
//	shares_available == sum(outcomes[i].shares_available)
//	outcomes[i].shares_available <= outcomes[i].shares_total
//
// A violation after a successful mutation is a bug, not a user error.
func (m *Market) CheckInvariants() error {
	if int(m.OutcomeCount) != len(m.Outcomes) {
		return fmt.Errorf("market %d: outcome_count %d != %d outcomes", m.ID, m.OutcomeCount, len(m.Outcomes))
	}
	if m.OutcomeCount < MinOutcomes || m.OutcomeCount > MaxOutcomes {
		return fmt.Errorf("market %d: outcome_count %d outside [%d,%d]", m.ID, m.OutcomeCount, MinOutcomes, MaxOutcomes)
	}

	sum := num.Zero
	for _, o := range m.Outcomes {
		if o.SharesTotal.Lt(o.SharesAvailable) {
			return fmt.Errorf("market %d outcome %d: available %s > total %s",
				m.ID, o.ID, o.SharesAvailable, o.SharesTotal)
		}
		var err error
		if sum, err = sum.Add(o.SharesAvailable); err != nil {
			return fmt.Errorf("market %d: pool sum: %w", m.ID, err)
		}
	}
	if sum.Cmp(m.SharesAvailable) != 0 {
		return fmt.Errorf("market %d: pool sum %s != shares_available %s", m.ID, sum, m.SharesAvailable)
	}
	return nil
}

// CheckTotalsGrew verifies no outcome's shares_total decreased from before.
func CheckTotalsGrew(before, after *Market) error {
	if len(before.Outcomes) != len(after.Outcomes) {
		return fmt.Errorf("market %d: outcome count changed %d -> %d", after.ID, len(before.Outcomes), len(after.Outcomes))
	}
	for i := range before.Outcomes {
		if after.Outcomes[i].SharesTotal.Lt(before.Outcomes[i].SharesTotal) {
			return fmt.Errorf("market %d outcome %d: shares_total decreased %s -> %s",
				after.ID, i, before.Outcomes[i].SharesTotal, after.Outcomes[i].SharesTotal)
		}
	}
	return nil
}
