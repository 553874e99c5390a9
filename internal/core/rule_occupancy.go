package core

import (
	"context"
	"fmt"

	"hostelcore/pkg/domain"
)

// NewOccupancyBoundsRule keeps every changed hostel's available counters
// within [0, total].
func NewOccupancyBoundsRule() domain.Rule {
	return occupancyBoundsRule{}
}

type occupancyBoundsRule struct{}

func (occupancyBoundsRule) Name() string { return "occupancy_bounds" }

func (occupancyBoundsRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	seen := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != domain.EntityHostel || change.Action == domain.ActionDelete {
			continue
		}
		after, ok := domain.DecodeChangePayload[domain.Hostel](change.After)
		if !ok {
			continue
		}
		if _, dup := seen[after.ID]; dup {
			continue
		}
		seen[after.ID] = struct{}{}
		hostel, ok := view.FindHostel(after.ID)
		if !ok {
			continue
		}
		checks := []struct {
			label            string
			available, total int
		}{
			{"rooms", hostel.AvailableRooms, hostel.TotalRooms},
			{"beds", hostel.AvailableBeds, hostel.TotalBeds},
		}
		for _, c := range checks {
			if c.total < 0 || c.available < 0 || c.available > c.total {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "occupancy_bounds",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("hostel %s (%s) available %s %d outside [0, %d]", hostel.Name, hostel.ID, c.label, c.available, c.total),
					Entity:   domain.EntityHostel,
					EntityID: hostel.ID,
				})
			}
		}
	}
	return res, nil
}

// NewOccupancyGuardRule blocks availability counter changes on existing
// hostels outside an approval transaction.
func NewOccupancyGuardRule() domain.Rule {
	return occupancyGuardRule{}
}

type occupancyGuardRule struct{}

func (occupancyGuardRule) Name() string { return "occupancy_guard" }

func (occupancyGuardRule) Evaluate(ctx context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	if hasCapacityGrant(ctx) {
		return res, nil
	}
	for _, change := range changes {
		if change.Entity != domain.EntityHostel || change.Action != domain.ActionUpdate {
			continue
		}
		before, okBefore := domain.DecodeChangePayload[domain.Hostel](change.Before)
		after, okAfter := domain.DecodeChangePayload[domain.Hostel](change.After)
		if !okBefore || !okAfter {
			continue
		}
		if before.AvailableRooms == after.AvailableRooms && before.AvailableBeds == after.AvailableBeds {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "occupancy_guard",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("hostel %s availability may only change when a request is approved", after.ID),
			Entity:   domain.EntityHostel,
			EntityID: after.ID,
		})
	}
	return res, nil
}
