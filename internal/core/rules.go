package core

import "context"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewOccupancyBoundsRule())
	engine.Register(NewOccupancyGuardRule())
	engine.Register(RequestLifecycleRule())
	engine.Register(NewPendingApprovalConsistencyRule())
	return engine
}

type capacityGrantKey struct{}

// withCapacityGrant marks ctx as an approval transaction, the only scope in
// which hostel availability counters may move.
func withCapacityGrant(ctx context.Context) context.Context {
	return context.WithValue(ctx, capacityGrantKey{}, true)
}

func hasCapacityGrant(ctx context.Context) bool {
	granted, _ := ctx.Value(capacityGrantKey{}).(bool)
	return granted
}
