package core

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"hostelcore/internal/infra/persistence/memory"
	"hostelcore/pkg/domain"
)

// Service is the single command authority over a persistent store. Every
// mutating operation runs inside one store transaction, so the status checks
// and the writes they guard are applied atomically.
type Service struct {
	store     PersistentStore
	opts      serviceOptions
	validate  *validator.Validate
	projector *Projector
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		store:     store,
		opts:      options,
		validate:  validator.New(),
		projector: NewProjector(store),
	}
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine. A nil engine selects the default rule set. The store stamps
// records with the service clock.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	options := defaultServiceOptions()
	for _, opt := range opts {
		opt(&options)
	}
	store := memory.NewStore(engine, memory.WithNowFunc(options.clock.Now))
	return NewService(store, opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Projector returns the notification projector bound to the service store.
func (s *Service) Projector() *Projector {
	return s.projector
}

// TransferCapacity reports the configured transfer approval policy.
func (s *Service) TransferCapacity() TransferCapacityMode {
	return s.opts.transferMode
}

func (s *Service) now() time.Time {
	return s.opts.clock.Now()
}

type operationMeta struct {
	entity EntityType
	action Action
}

var operations = map[string]operationMeta{
	"register_student":        {EntityStudent, ActionCreate},
	"update_student_profile":  {EntityStudent, ActionUpdate},
	"assign_room":             {EntityStudent, ActionUpdate},
	"set_student_warning":     {EntityStudent, ActionUpdate},
	"set_profile_image":       {EntityStudent, ActionUpdate},
	"delete_student":          {EntityStudent, ActionDelete},
	"create_hostel":           {EntityHostel, ActionCreate},
	"update_hostel":           {EntityHostel, ActionUpdate},
	"delete_hostel":           {EntityHostel, ActionDelete},
	"submit_allocation":       {EntityAllocationRequest, ActionCreate},
	"submit_transfer":         {EntityAllocationRequest, ActionCreate},
	"approve_request":         {EntityAllocationRequest, ActionUpdate},
	"reject_request":          {EntityAllocationRequest, ActionUpdate},
	"dismiss_allocation":      {EntityAllocationRequest, ActionUpdate},
	"submit_leave":            {EntityLeaveRequest, ActionCreate},
	"approve_leave":           {EntityLeaveRequest, ActionUpdate},
	"reject_leave":            {EntityLeaveRequest, ActionUpdate},
	"dismiss_leave":           {EntityLeaveRequest, ActionUpdate},
	"submit_complaint":        {EntityComplaint, ActionCreate},
	"set_complaint_status":    {EntityComplaint, ActionUpdate},
	"attach_complaint_image":  {EntityComplaint, ActionUpdate},
	"post_announcement":       {EntityAnnouncement, ActionCreate},
	"delete_announcement":     {EntityAnnouncement, ActionDelete},
	"publish_food_menu":       {EntityFoodMenu, ActionUpdate},
	"sign_in":                 {EntitySession, ActionCreate},
	"sign_out":                {EntitySession, ActionDelete},
	"mark_notifications_read": {EntityNotificationState, ActionUpdate},
	"mark_all_read":           {EntityNotificationState, ActionUpdate},
	"clear_notifications":     {EntityNotificationState, ActionUpdate},
}

// run executes fn in a store transaction wrapped with tracing, metrics,
// audit and logging. fn returns the id of the entity it acted on. A version
// conflict from a durable store re-runs fn against the reloaded state.
func (s *Service) run(ctx context.Context, op string, fn func(tx Transaction) (string, error)) (Result, error) {
	ctx, span := s.opts.tracer.Start(ctx, op)
	start := time.Now()

	var (
		res      Result
		err      error
		entityID string
	)
	for attempt := 0; ; attempt++ {
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			id, fnErr := fn(tx)
			entityID = id
			return fnErr
		})
		if err == nil || !errors.Is(err, domain.ErrVersionConflict) || attempt >= s.opts.conflictRetries {
			break
		}
		s.opts.logger.Warn("store version conflict, retrying", "operation", op, "attempt", attempt+1, "error", err)
	}

	duration := time.Since(start)
	span.End(err)
	s.opts.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.recordAuditError(ctx, op, entityID, duration, err)
		s.opts.logger.Error("operation failed", "operation", op, "entity_id", entityID, "error", err)
		return res, err
	}
	s.recordAuditSuccess(ctx, op, entityID, duration)
	for _, v := range res.Violations {
		s.opts.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", string(v.Severity), "entity_id", v.EntityID, "message", v.Message)
	}
	s.opts.logger.Debug("operation completed", "operation", op, "entity_id", entityID, "duration", duration)
	return res, nil
}

func (s *Service) recordAuditSuccess(ctx context.Context, op, entityID string, duration time.Duration) {
	s.recordAudit(ctx, op, entityID, duration, nil)
}

func (s *Service) recordAuditError(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	s.recordAudit(ctx, op, entityID, duration, err)
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	meta, ok := operations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.opts.audit.Record(ctx, entry)
}

// validateInput runs struct tag validation and converts failures into a
// *domain.ValidationError keyed by field name.
func (s *Service) validateInput(input any) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &domain.ValidationError{Fields: map[string]string{"input": err.Error()}}
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = fe.Tag()
	}
	return &domain.ValidationError{Fields: fields}
}

func (s *Service) publish(ctx context.Context, event OutcomeEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if err := s.opts.outcomes.Publish(ctx, event); err != nil {
		s.opts.logger.Warn("publish outcome failed", "type", event.Type, "id", event.ID, "error", err)
	}
}

func strPtr(v string) *string {
	return &v
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
