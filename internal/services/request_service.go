package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"fleet-system/internal/dto"
	"fleet-system/internal/entities"
	"fleet-system/internal/events"
	"fleet-system/internal/repositories"
	"fleet-system/internal/workflow"
	"fleet-system/pkg/apperrors"
	"fleet-system/pkg/constants"
	"fleet-system/pkg/eventbus"
)

// timeoutInspectionChecker bounds every inspection lookup with the
// collaborator timeout so a slow lookup surfaces as TIMEOUT instead of
// hanging the transition.
type timeoutInspectionChecker struct {
	inner   repositories.InspectionRepositoryInterface
	timeout time.Duration
}

func (c *timeoutInspectionChecker) HasInspectionToday(ctx context.Context, vehiclePlate string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ok, err := c.inner.HasInspectionToday(ctx, vehiclePlate)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return false, context.DeadlineExceeded
	}
	return ok, err
}

// RequestService drives the full lifecycle of service requests: create,
// apply actions, chat, projections. All writes go through the workflow
// aggregate and land with compare-and-swap semantics; a losing writer is
// retried once on a fresh read before CONFLICT reaches the caller.
type RequestService struct {
	requestRepository     repositories.RequestRepositoryInterface
	idempotencyRepository repositories.IdempotencyRepositoryInterface
	machine               *workflow.Machine
	bus                   *eventbus.Bus
	logger                *zap.Logger

	requoteLimit      int
	commitRetries     int
	idempotencyKeyTTL time.Duration
}

func NewRequestService(
	requestRepository repositories.RequestRepositoryInterface,
	idempotencyRepository repositories.IdempotencyRepositoryInterface,
	inspectionRepository repositories.InspectionRepositoryInterface,
	bus *eventbus.Bus,
	logger *zap.Logger,
	collaboratorTimeout time.Duration,
	idempotencyKeyTTL time.Duration,
	requoteLimit int,
	commitRetries int,
) *RequestService {
	checker := &timeoutInspectionChecker{inner: inspectionRepository, timeout: collaboratorTimeout}
	return &RequestService{
		requestRepository:     requestRepository,
		idempotencyRepository: idempotencyRepository,
		machine:               workflow.NewMachine(workflow.NewPolicy(), checker),
		bus:                   bus,
		logger:                logger,
		requoteLimit:          requoteLimit,
		commitRetries:         commitRetries,
		idempotencyKeyTTL:     idempotencyKeyTTL,
	}
}

// CreateRequest opens a new request in REQUESTED for the acting
// requester.
func (s *RequestService) CreateRequest(ctx context.Context, actor entities.Actor, payload dto.CreateServiceRequestDTO) (*entities.ServiceRequest, error) {
	req, err := workflow.Create(actor, workflow.CreateFields{
		VehiclePlate: payload.VehiclePlate,
		CostCenter:   payload.CostCenter,
		Priority:     constants.Priority(payload.Priority),
		Category:     payload.Category,
		Subcategory:  payload.Subcategory,
		Description:  payload.Description,
		Odometer:     payload.Odometer,
	}, time.Now())
	if err != nil {
		return nil, err
	}

	if err := s.requestRepository.CreateRequest(ctx, req); err != nil {
		s.logger.Error("failed to persist new request", zap.String("code", req.Code), zap.Error(err))
		return nil, err
	}

	s.logger.Info("service request created",
		zap.String("requestId", req.ID),
		zap.String("code", req.Code),
		zap.String("plate", req.VehiclePlate),
	)
	return req, nil
}

// ApplyAction runs one lifecycle action against the request. With an
// idempotency key, a replayed call returns the current snapshot without
// a second transition; without one, the caller relies on CAS alone.
func (s *RequestService) ApplyAction(ctx context.Context, actor entities.Actor, requestID string, payload dto.ApplyActionDTO) (*entities.ServiceRequest, error) {
	action := constants.Action(payload.Action)

	if payload.IdempotencyKey != "" {
		fresh, err := s.idempotencyRepository.Reserve(ctx, requestID, payload.IdempotencyKey, s.idempotencyKeyTTL)
		if err != nil {
			return nil, err
		}
		if !fresh {
			entryID, err := s.idempotencyRepository.Committed(ctx, requestID, payload.IdempotencyKey)
			if err != nil {
				return nil, err
			}
			if entryID != "" {
				s.logger.Info("idempotency key replayed, returning snapshot",
					zap.String("requestId", requestID),
					zap.String("key", payload.IdempotencyKey),
				)
				return s.requestRepository.FindRequest(ctx, requestID)
			}
			// Reserved but never confirmed: the earlier attempt died
			// before its commit, or is still in flight. Run the action;
			// the stage CAS keeps a concurrent twin from applying twice.
		}
	}

	req, cs, err := s.applyWithRetry(ctx, actor, requestID, action, payload)
	if payload.IdempotencyKey != "" {
		if err != nil {
			// A failed transition must not burn the key: the client
			// retries with the same one.
			if relErr := s.idempotencyRepository.Release(ctx, requestID, payload.IdempotencyKey); relErr != nil {
				s.logger.Warn("failed to release idempotency key", zap.String("requestId", requestID), zap.Error(relErr))
			}
		} else if cs.Entry != nil {
			if confErr := s.idempotencyRepository.Confirm(ctx, requestID, payload.IdempotencyKey, cs.Entry.ID); confErr != nil {
				s.logger.Warn("failed to confirm idempotency key", zap.String("requestId", requestID), zap.Error(confErr))
			}
		}
	}
	return req, err
}

func (s *RequestService) applyWithRetry(ctx context.Context, actor entities.Actor, requestID string, action constants.Action, payload dto.ApplyActionDTO) (*entities.ServiceRequest, *workflow.ChangeSet, error) {
	actionPayload := workflow.ActionPayload{
		Comment:    payload.Comment,
		Assignment: payload.Assignment.ToAssignment(),
		Lines:      dto.ToBudgetLines(payload.Lines),
		Decision:   payload.Decision,
	}
	if payload.Intake != nil {
		actionPayload.Intake = &workflow.IntakeRecord{
			Workshop: payload.Intake.Workshop,
			Receiver: payload.Intake.Receiver,
			Odometer: payload.Intake.Odometer,
		}
	}

	attempts := 1 + s.commitRetries
	for attempt := 1; ; attempt++ {
		req, err := s.requestRepository.FindRequest(ctx, requestID)
		if err != nil {
			return nil, nil, err
		}

		agg := workflow.NewAggregate(req, s.machine, s.requoteLimit)
		cs, err := agg.Apply(ctx, actor, action, actionPayload)
		if err != nil {
			return nil, nil, err
		}

		err = s.requestRepository.ApplyChange(ctx, cs)
		if err == nil {
			s.publishStageChange(ctx, agg.Request(), cs)
			return agg.Request(), cs, nil
		}
		if errors.Is(err, apperrors.ErrConflict) && attempt < attempts {
			s.logger.Warn("lost stage race, retrying on fresh state",
				zap.String("requestId", requestID),
				zap.String("action", string(action)),
				zap.Int("attempt", attempt),
			)
			continue
		}
		return nil, nil, err
	}
}

func (s *RequestService) publishStageChange(ctx context.Context, req *entities.ServiceRequest, cs *workflow.ChangeSet) {
	if !cs.StageChanged || cs.Entry == nil {
		return
	}
	event := events.RequestStageChangedEvent{
		RequestID:   req.ID,
		RequestCode: req.Code,
		RequesterID: req.RequesterID,
		ToStage:     cs.NewStage,
		FromStage:   cs.ExpectedStage,
		Entry:       *cs.Entry,
	}
	if req.Assignment != nil {
		event.ProviderID = req.Assignment.ProviderID
	}
	s.bus.Publish(ctx, event)
}

// SendMessage appends a chat message and bumps the opposite side's
// unread counter.
func (s *RequestService) SendMessage(ctx context.Context, actor entities.Actor, requestID string, payload dto.SendMessageDTO) (*entities.Message, error) {
	req, err := s.requestRepository.FindRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	agg := workflow.NewAggregate(req, s.machine, s.requoteLimit)
	cs, err := agg.SendMessage(actor, payload.Text, payload.IsAutomated)
	if err != nil {
		return nil, err
	}

	if err := s.requestRepository.ApplyChange(ctx, cs); err != nil {
		return nil, err
	}

	event := events.RequestMessageSentEvent{
		RequestID:   req.ID,
		RequestCode: req.Code,
		RequesterID: req.RequesterID,
		Message:     *cs.Message,
	}
	if req.Assignment != nil {
		event.ProviderID = req.Assignment.ProviderID
	}
	s.bus.Publish(ctx, event)

	return cs.Message, nil
}

// MarkRead resets the caller's own unread counter: requesters reset the
// requester side, staff reset the dispatch side.
func (s *RequestService) MarkRead(ctx context.Context, actor entities.Actor, requestID string, sideName string) error {
	side := workflow.Side(sideName)
	if constants.IsStaffRole(actor.Role) {
		if side != workflow.SideDispatch {
			return apperrors.ErrRoleNotPermitted
		}
	} else if side != workflow.SideRequester {
		return apperrors.ErrRoleNotPermitted
	}
	return s.requestRepository.MarkRead(ctx, requestID, side)
}

// FindRequest loads the full aggregate. Requesters only see their own
// requests and providers only the ones assigned to them; a foreign id
// answers NOT_FOUND rather than hinting the request exists.
func (s *RequestService) FindRequest(ctx context.Context, actor entities.Actor, requestID string) (*entities.ServiceRequest, error) {
	req, err := s.requestRepository.FindRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case constants.RoleRequester:
		if req.RequesterID != actor.ID {
			return nil, apperrors.ErrNotFound
		}
	case constants.RoleProvider:
		if req.Assignment == nil || req.Assignment.ProviderID != actor.ID {
			return nil, apperrors.ErrNotFound
		}
	}
	return req, nil
}

// ListRequests returns board summaries. Requesters are pinned to their
// own requests and providers to their assignments, regardless of the
// filter they sent.
func (s *RequestService) ListRequests(ctx context.Context, actor entities.Actor, filter dto.ListRequestsFilterDTO) ([]dto.RequestSummaryDTO, uint64, error) {
	switch actor.Role {
	case constants.RoleRequester:
		filter.RequesterID = actor.ID
	case constants.RoleProvider:
		filter.ProviderID = actor.ID
	}
	if filter.Stage != "" && !constants.IsKnownStage(constants.Stage(filter.Stage)) {
		return nil, 0, apperrors.NewInvalidInputError("unknown stage filter")
	}
	return s.requestRepository.ListRequests(ctx, filter)
}

// GetHistory returns the audit trail in the requested order.
func (s *RequestService) GetHistory(ctx context.Context, actor entities.Actor, requestID string, newestFirst bool) ([]entities.HistoryEntry, error) {
	if _, err := s.FindRequest(ctx, actor, requestID); err != nil {
		return nil, err
	}
	return s.requestRepository.GetHistory(ctx, requestID, newestFirst)
}

// PurgeRequest permanently removes a terminal request and its ledgers.
// Dispatcher-only housekeeping.
func (s *RequestService) PurgeRequest(ctx context.Context, actor entities.Actor, requestID string) error {
	if actor.Role != constants.RoleDispatcher {
		return apperrors.ErrRoleNotPermitted
	}
	req, err := s.requestRepository.FindRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if !constants.IsTerminalStage(req.Stage) {
		return apperrors.ErrWrongStage
	}

	if err := s.requestRepository.DeleteRequest(ctx, requestID); err != nil {
		return err
	}
	s.logger.Info("request purged", zap.String("requestId", requestID), zap.String("code", req.Code))
	return nil
}
