package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleet-system/internal/dto"
	"fleet-system/internal/entities"
	"fleet-system/internal/events"
	"fleet-system/internal/workflow"
	"fleet-system/pkg/apperrors"
	"fleet-system/pkg/constants"
	"fleet-system/pkg/eventbus"
)

var (
	testRequester  = entities.Actor{ID: "u-req", Name: "Carla Mendez", Role: constants.RoleRequester}
	testDispatcher = entities.Actor{ID: "u-dis", Name: "Jorge Paz", Role: constants.RoleDispatcher}
	testProvider   = entities.Actor{ID: "u-pro", Name: "Taller Norte", Role: constants.RoleProvider}
)

// fakeRequestRepository keeps aggregates in memory and honors the
// compare-and-swap contract of ApplyChange.
type fakeRequestRepository struct {
	mu       sync.Mutex
	requests map[string]*entities.ServiceRequest

	// conflictOnce simulates a concurrent writer: the first ApplyChange
	// loses the race after the other writer moved the stage.
	conflictOnce  bool
	conflictStage constants.Stage
	applyCalls    int
}

func newFakeRequestRepository() *fakeRequestRepository {
	return &fakeRequestRepository{requests: make(map[string]*entities.ServiceRequest)}
}

func (f *fakeRequestRepository) CreateRequest(ctx context.Context, req *entities.ServiceRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *req
	f.requests[req.ID] = &clone
	return nil
}

func (f *fakeRequestRepository) FindRequest(ctx context.Context, id string) (*entities.ServiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.requests[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	clone := *stored
	clone.History = append([]entities.HistoryEntry(nil), stored.History...)
	clone.Messages = append([]entities.Message(nil), stored.Messages...)
	return &clone, nil
}

func (f *fakeRequestRepository) ApplyChange(ctx context.Context, cs *workflow.ChangeSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCalls++

	stored, ok := f.requests[cs.RequestID]
	if !ok {
		return apperrors.ErrNotFound
	}

	if f.conflictOnce {
		f.conflictOnce = false
		from := stored.Stage
		stored.Stage = f.conflictStage
		stored.History = append(stored.History, entities.HistoryEntry{
			ID:        uuid.NewString(),
			Timestamp: time.Now().UTC(),
			ActorID:   "u-other",
			ActorName: "Other Writer",
			FromStage: &from,
			ToStage:   f.conflictStage,
		})
		return apperrors.ErrConflict
	}

	if cs.StageChanged {
		if stored.Stage != cs.ExpectedStage {
			return apperrors.ErrConflict
		}
		stored.Stage = cs.NewStage
	}
	if cs.Entry != nil {
		stored.History = append(stored.History, *cs.Entry)
	}
	if cs.Message != nil {
		stored.Messages = append(stored.Messages, *cs.Message)
		if cs.IncrementUnread == workflow.SideRequester {
			stored.UnreadForRequester++
		} else if cs.IncrementUnread == workflow.SideDispatch {
			stored.UnreadForDispatch++
		}
	}
	if cs.Assignment != nil {
		stored.Assignment = cs.Assignment
	}
	if cs.Budget != nil {
		if cs.ArchiveBudget != nil && cs.ArchiveBudget.ID == cs.Budget.ID {
			stored.BudgetHistory = append(stored.BudgetHistory, *cs.ArchiveBudget)
			stored.Budget = nil
		} else {
			budget := *cs.Budget
			stored.Budget = &budget
		}
	}
	stored.UpdatedAt = cs.UpdatedAt
	return nil
}

func (f *fakeRequestRepository) ListRequests(ctx context.Context, filter dto.ListRequestsFilterDTO) ([]dto.RequestSummaryDTO, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dto.RequestSummaryDTO, 0)
	for _, req := range f.requests {
		if filter.RequesterID != "" && req.RequesterID != filter.RequesterID {
			continue
		}
		if filter.ProviderID != "" && (req.Assignment == nil || req.Assignment.ProviderID != filter.ProviderID) {
			continue
		}
		if filter.Stage != "" && string(req.Stage) != filter.Stage {
			continue
		}
		out = append(out, dto.ToSummary(req))
	}
	return out, uint64(len(out)), nil
}

func (f *fakeRequestRepository) GetHistory(ctx context.Context, requestID string, newestFirst bool) ([]entities.HistoryEntry, error) {
	req, err := f.FindRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	entries := append([]entities.HistoryEntry(nil), req.History...)
	if newestFirst {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	return entries, nil
}

func (f *fakeRequestRepository) MarkRead(ctx context.Context, requestID string, side workflow.Side) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.requests[requestID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if side == workflow.SideDispatch {
		stored.UnreadForDispatch = 0
	} else {
		stored.UnreadForRequester = 0
	}
	return nil
}

func (f *fakeRequestRepository) DeleteRequest(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.requests[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(f.requests, id)
	return nil
}

// fakeIdempotencyRepository maps reservations to their committed entry
// id, "pending" until Confirm.
type fakeIdempotencyRepository struct {
	mu       sync.Mutex
	reserved map[string]string
	released []string
}

func newFakeIdempotencyRepository() *fakeIdempotencyRepository {
	return &fakeIdempotencyRepository{reserved: make(map[string]string)}
}

func (f *fakeIdempotencyRepository) Reserve(ctx context.Context, requestID, key string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	full := requestID + ":" + key
	if _, held := f.reserved[full]; held {
		return false, nil
	}
	f.reserved[full] = "pending"
	return true, nil
}

func (f *fakeIdempotencyRepository) Confirm(ctx context.Context, requestID, key, entryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserved[requestID+":"+key] = entryID
	return nil
}

func (f *fakeIdempotencyRepository) Committed(ctx context.Context, requestID, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val := f.reserved[requestID+":"+key]
	if val == "pending" {
		return "", nil
	}
	return val, nil
}

func (f *fakeIdempotencyRepository) Release(ctx context.Context, requestID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	full := requestID + ":" + key
	delete(f.reserved, full)
	f.released = append(f.released, full)
	return nil
}

type fakeInspectionRepository struct {
	hasInspection bool
	block         bool
}

func (f *fakeInspectionRepository) HasInspectionToday(ctx context.Context, plate string) (bool, error) {
	if f.block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return f.hasInspection, nil
}

func (f *fakeInspectionRepository) RecordInspection(ctx context.Context, inspection *entities.VehicleInspection) error {
	return nil
}

type serviceFixture struct {
	service     *RequestService
	requests    *fakeRequestRepository
	idempotency *fakeIdempotencyRepository
	inspections *fakeInspectionRepository
	bus         *eventbus.Bus
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		requests:    newFakeRequestRepository(),
		idempotency: newFakeIdempotencyRepository(),
		inspections: &fakeInspectionRepository{hasInspection: true},
		bus:         eventbus.New(zap.NewNop(), time.Second),
	}
	f.service = NewRequestService(
		f.requests, f.idempotency, f.inspections, f.bus, zap.NewNop(),
		50*time.Millisecond, time.Hour, 0, 1,
	)
	return f
}

func (f *serviceFixture) seedRequest(t *testing.T, stage constants.Stage) string {
	t.Helper()
	req, err := f.service.CreateRequest(context.Background(), testRequester, dto.CreateServiceRequestDTO{
		VehiclePlate: "ABC-123",
		Description:  "Brake pads worn out",
	})
	require.NoError(t, err)
	if stage != constants.StageRequested {
		f.requests.mu.Lock()
		stored := f.requests.requests[req.ID]
		from := stored.Stage
		stored.Stage = stage
		stored.History = append(stored.History, entities.HistoryEntry{
			ID:        uuid.NewString(),
			Timestamp: time.Now().UTC(),
			ActorID:   testDispatcher.ID,
			ActorName: testDispatcher.Name,
			FromStage: &from,
			ToStage:   stage,
		})
		f.requests.mu.Unlock()
	}
	return req.ID
}

func assignPayload() dto.ApplyActionDTO {
	return dto.ApplyActionDTO{
		Action: string(constants.ActionAssignTurn),
		Assignment: &dto.AssignmentDTO{
			ProviderID:   testProvider.ID,
			ProviderName: testProvider.Name,
			Workshop:     "Taller Norte",
		},
	}
}

func TestRequestService_CreateRequest(t *testing.T) {
	f := newServiceFixture(t)

	req, err := f.service.CreateRequest(context.Background(), testRequester, dto.CreateServiceRequestDTO{
		VehiclePlate: "XYZ-987",
		Description:  "Coolant leak",
		Priority:     "HIGH",
	})
	require.NoError(t, err)
	assert.Equal(t, constants.StageRequested, req.Stage)

	stored, err := f.requests.FindRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.Code, stored.Code)
	require.Len(t, stored.History, 1)
}

func TestRequestService_ApplyActionHappyPath(t *testing.T) {
	f := newServiceFixture(t)
	id := f.seedRequest(t, constants.StageRequested)

	received := make(chan eventbus.Event, 1)
	f.bus.Subscribe(events.RequestStageChangedEventName, func(ctx context.Context, e eventbus.Event) error {
		received <- e
		return nil
	})

	req, err := f.service.ApplyAction(context.Background(), testDispatcher, id, assignPayload())
	require.NoError(t, err)
	assert.Equal(t, constants.StageScheduling, req.Stage)
	require.NotNil(t, req.Assignment)
	assert.Equal(t, testProvider.ID, req.Assignment.ProviderID)

	select {
	case e := <-received:
		event, ok := e.(events.RequestStageChangedEvent)
		require.True(t, ok)
		assert.Equal(t, constants.StageScheduling, event.ToStage)
		assert.Equal(t, id, event.RequestID)
	case <-time.After(time.Second):
		t.Fatal("stage change event was not published")
	}
}

func TestRequestService_LostRaceRetriesOnFreshState(t *testing.T) {
	f := newServiceFixture(t)
	id := f.seedRequest(t, constants.StageRequested)

	// Another dispatcher moves the request to REVIEW between our read
	// and our commit. Assigning a turn is still legal from REVIEW, so
	// the retry succeeds on fresh state.
	f.requests.conflictOnce = true
	f.requests.conflictStage = constants.StageReview

	req, err := f.service.ApplyAction(context.Background(), testDispatcher, id, assignPayload())
	require.NoError(t, err)
	assert.Equal(t, constants.StageScheduling, req.Stage)
	assert.Equal(t, 2, f.requests.applyCalls)

	// History shows the real path: REQUESTED -> REVIEW -> SCHEDULING.
	stored, err := f.requests.FindRequest(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, stored.History, 3)
	assert.Equal(t, constants.StageReview, *stored.History[2].FromStage)
}

func TestRequestService_ConflictSurfacesWhenRetriesExhausted(t *testing.T) {
	f := newServiceFixture(t)
	id := f.seedRequest(t, constants.StageRequested)

	// The concurrent writer lands the request in a stage where the
	// action is no longer legal; the retry fails with WRONG_STAGE.
	f.requests.conflictOnce = true
	f.requests.conflictStage = constants.StageInWorkshop

	_, err := f.service.ApplyAction(context.Background(), testDispatcher, id, assignPayload())
	assert.ErrorIs(t, err, apperrors.ErrWrongStage)
}

func TestRequestService_IdempotencyReplayReturnsSnapshot(t *testing.T) {
	f := newServiceFixture(t)
	id := f.seedRequest(t, constants.StageRequested)

	payload := assignPayload()
	payload.IdempotencyKey = "key-1"

	req, err := f.service.ApplyAction(context.Background(), testDispatcher, id, payload)
	require.NoError(t, err)
	assert.Equal(t, constants.StageScheduling, req.Stage)
	historyLen := len(req.History)

	// Same key again: current snapshot, no second transition.
	req, err = f.service.ApplyAction(context.Background(), testDispatcher, id, payload)
	require.NoError(t, err)
	assert.Equal(t, constants.StageScheduling, req.Stage)
	assert.Len(t, req.History, historyLen)
}

func TestRequestService_UnconfirmedKeyDoesNotMaskTheAction(t *testing.T) {
	f := newServiceFixture(t)
	id := f.seedRequest(t, constants.StageRequested)

	payload := assignPayload()
	payload.IdempotencyKey = "key-3"

	// A previous attempt reserved the key and died before its commit.
	fresh, err := f.idempotency.Reserve(context.Background(), id, payload.IdempotencyKey, time.Hour)
	require.NoError(t, err)
	require.True(t, fresh)

	// The retry must run the action, not answer with a stale snapshot.
	req, err := f.service.ApplyAction(context.Background(), testDispatcher, id, payload)
	require.NoError(t, err)
	assert.Equal(t, constants.StageScheduling, req.Stage)
	assert.Equal(t, 1, f.requests.applyCalls)

	// Now the key is confirmed and a further replay is a real replay.
	req, err = f.service.ApplyAction(context.Background(), testDispatcher, id, payload)
	require.NoError(t, err)
	assert.Equal(t, constants.StageScheduling, req.Stage)
	assert.Equal(t, 1, f.requests.applyCalls)
}

func TestRequestService_FailedActionReleasesIdempotencyKey(t *testing.T) {
	f := newServiceFixture(t)
	id := f.seedRequest(t, constants.StageRequested)

	payload := dto.ApplyActionDTO{
		Action:         string(constants.ActionSubmitBudget),
		IdempotencyKey: "key-2",
	}
	_, err := f.service.ApplyAction(context.Background(), testProvider, id, payload)
	require.Error(t, err)

	require.Len(t, f.idempotency.released, 1)
	assert.Equal(t, id+":key-2", f.idempotency.released[0])
}

func TestRequestService_InspectionTimeout(t *testing.T) {
	f := newServiceFixture(t)
	f.inspections.block = true
	id := f.seedRequest(t, constants.StageScheduling)

	_, err := f.service.ApplyAction(context.Background(), testProvider, id, dto.ApplyActionDTO{
		Action: string(constants.ActionRecordIntake),
	})
	require.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestRequestService_SendMessageAndMarkRead(t *testing.T) {
	f := newServiceFixture(t)
	id := f.seedRequest(t, constants.StageScheduling)

	received := make(chan eventbus.Event, 1)
	f.bus.Subscribe(events.RequestMessageSentEventName, func(ctx context.Context, e eventbus.Event) error {
		received <- e
		return nil
	})

	msg, err := f.service.SendMessage(context.Background(), testDispatcher, id, dto.SendMessageDTO{Text: "Scheduled for Tuesday"})
	require.NoError(t, err)
	assert.Equal(t, testDispatcher.ID, msg.SenderID)

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("message event was not published")
	}

	stored, err := f.requests.FindRequest(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UnreadForRequester)

	// The requester resets their own side; resetting dispatch is denied.
	require.NoError(t, f.service.MarkRead(context.Background(), testRequester, id, "requester"))
	assert.ErrorIs(t, f.service.MarkRead(context.Background(), testRequester, id, "dispatch"), apperrors.ErrRoleNotPermitted)

	stored, err = f.requests.FindRequest(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UnreadForRequester)
}

func TestRequestService_RequesterVisibility(t *testing.T) {
	f := newServiceFixture(t)
	id := f.seedRequest(t, constants.StageRequested)

	stranger := entities.Actor{ID: "u-other", Name: "Otro Usuario", Role: constants.RoleRequester}
	_, err := f.service.FindRequest(context.Background(), stranger, id)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// Listing pins requesters to their own requests.
	list, total, err := f.service.ListRequests(context.Background(), stranger, dto.ListRequestsFilterDTO{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)

	list, total, err = f.service.ListRequests(context.Background(), testRequester, dto.ListRequestsFilterDTO{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
}

func TestRequestService_ProviderVisibility(t *testing.T) {
	f := newServiceFixture(t)
	id := f.seedRequest(t, constants.StageRequested)

	rival := entities.Actor{ID: "u-rival", Name: "Taller Sur", Role: constants.RoleProvider}

	// Before any assignment no provider sees the request.
	_, err := f.service.FindRequest(context.Background(), testProvider, id)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.service.ApplyAction(context.Background(), testDispatcher, id, assignPayload())
	require.NoError(t, err)

	// The assigned provider sees it; a rival workshop does not.
	_, err = f.service.FindRequest(context.Background(), testProvider, id)
	require.NoError(t, err)
	_, err = f.service.FindRequest(context.Background(), rival, id)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// Listing pins providers to their own assignments, even when they
	// ask for someone else's.
	list, total, err := f.service.ListRequests(context.Background(), rival, dto.ListRequestsFilterDTO{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)

	list, total, err = f.service.ListRequests(context.Background(), testProvider, dto.ListRequestsFilterDTO{ProviderID: rival.ID})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	// The rival cannot post to the thread either.
	_, err = f.service.SendMessage(context.Background(), rival, id, dto.SendMessageDTO{Text: "we can do it cheaper"})
	assert.ErrorIs(t, err, apperrors.ErrRoleNotPermitted)
}

func TestRequestService_PurgeGuards(t *testing.T) {
	f := newServiceFixture(t)
	id := f.seedRequest(t, constants.StageRequested)

	assert.ErrorIs(t, f.service.PurgeRequest(context.Background(), testProvider, id), apperrors.ErrRoleNotPermitted)
	assert.ErrorIs(t, f.service.PurgeRequest(context.Background(), testDispatcher, id), apperrors.ErrWrongStage)

	cancelled := f.seedRequest(t, constants.StageCancelled)
	require.NoError(t, f.service.PurgeRequest(context.Background(), testDispatcher, cancelled))

	_, err := f.requests.FindRequest(context.Background(), cancelled)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRequestService_BudgetFlowEndToEnd(t *testing.T) {
	f := newServiceFixture(t)
	id := f.seedRequest(t, constants.StageInWorkshop)

	req, err := f.service.ApplyAction(context.Background(), testProvider, id, dto.ApplyActionDTO{
		Action: string(constants.ActionSubmitBudget),
		Lines: []dto.BudgetLineDTO{
			{Description: "Brake pads", Quantity: 2, UnitPrice: decimal.NewFromInt(150)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, constants.StageBudgeting, req.Stage)
	require.NotNil(t, req.Budget)
	assert.True(t, req.Budget.Total.Equal(decimal.NewFromInt(300)))

	req, err = f.service.ApplyAction(context.Background(), entities.Actor{ID: "u-aud", Name: "Rosa Quispe", Role: constants.RoleAuditor}, id, dto.ApplyActionDTO{
		Action:   string(constants.ActionResolveBudget),
		Decision: constants.DecisionRejected,
		Comment:  "overpriced",
	})
	require.NoError(t, err)
	assert.Equal(t, constants.StageScheduling, req.Stage)
	assert.Nil(t, req.Budget)
	require.Len(t, req.BudgetHistory, 1)
	assert.Equal(t, constants.AuditRejected, req.BudgetHistory[0].AuditStatus)
}
