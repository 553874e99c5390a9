package core

import "hostelcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Student            = domain.Student
	Hostel             = domain.Hostel
	AllocationRequest  = domain.AllocationRequest
	LeaveRequest       = domain.LeaveRequest
	Complaint          = domain.Complaint
	Announcement       = domain.Announcement
	FoodMenu           = domain.FoodMenu
	MenuItem           = domain.MenuItem
	Session            = domain.Session
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
	Rule               = domain.Rule
)

const (
	EntityStudent           = domain.EntityStudent
	EntityHostel            = domain.EntityHostel
	EntityAllocationRequest = domain.EntityAllocationRequest
	EntityLeaveRequest      = domain.EntityLeaveRequest
	EntityComplaint         = domain.EntityComplaint
	EntityAnnouncement      = domain.EntityAnnouncement
	EntityFoodMenu          = domain.EntityFoodMenu
	EntitySession           = domain.EntitySession
	EntityNotificationState = domain.EntityNotificationState
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}
