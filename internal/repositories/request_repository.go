package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-system/internal/dto"
	"fleet-system/internal/entities"
	"fleet-system/internal/workflow"
	"fleet-system/pkg/apperrors"
	"fleet-system/pkg/constants"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const (
	requestTable  = "service_requests"
	historyTable  = "request_history"
	messageTable  = "request_messages"
	budgetTable   = "request_budgets"
	requestFields = `id, code, vehicle_plate, requester_id, requester_name, cost_center,
		priority, category, subcategory, description, odometer_at_request, stage,
		provider_id, provider_name, workshop, turn_date,
		unread_for_dispatch, unread_for_requester, created_at, updated_at`
)

type RequestRepositoryInterface interface {
	CreateRequest(ctx context.Context, req *entities.ServiceRequest) error
	FindRequest(ctx context.Context, id string) (*entities.ServiceRequest, error)
	ListRequests(ctx context.Context, filter dto.ListRequestsFilterDTO) ([]dto.RequestSummaryDTO, uint64, error)
	GetHistory(ctx context.Context, requestID string, newestFirst bool) ([]entities.HistoryEntry, error)
	ApplyChange(ctx context.Context, cs *workflow.ChangeSet) error
	MarkRead(ctx context.Context, requestID string, side workflow.Side) error
	DeleteRequest(ctx context.Context, id string) error
}

type requestRepository struct{ storage *pgxpool.Pool }

func NewRequestRepository(storage *pgxpool.Pool) RequestRepositoryInterface {
	return &requestRepository{storage: storage}
}

// CreateRequest persists a freshly created aggregate: the main row and
// its creation history entry in one transaction.
func (r *requestRepository) CreateRequest(ctx context.Context, req *entities.ServiceRequest) error {
	tx, err := r.storage.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`
		INSERT INTO %s (id, code, vehicle_plate, requester_id, requester_name, cost_center,
			priority, category, subcategory, description, odometer_at_request, stage,
			unread_for_dispatch, unread_for_requester, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 0, 0, $13, $14)`,
		requestTable)
	_, err = tx.Exec(ctx, query,
		req.ID, req.Code, req.VehiclePlate, req.RequesterID, req.RequesterName, req.CostCenter,
		req.Priority, req.Category, req.Subcategory, req.Description, req.OdometerAtRequest, req.Stage,
		req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return err
	}

	for _, entry := range req.History {
		if err := insertHistoryEntry(ctx, tx, req.ID, entry); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ApplyChange persists one aggregate change set atomically. The stage
// update is a compare-and-swap on the stage column: zero affected rows
// with an existing request means another writer won the race, and the
// caller gets CONFLICT. Ledger inserts dedupe on id so a replayed
// change set is harmless.
func (r *requestRepository) ApplyChange(ctx context.Context, cs *workflow.ChangeSet) error {
	tx, err := r.storage.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if cs.StageChanged {
		tag, err := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET stage = $1, updated_at = $2 WHERE id = $3 AND stage = $4`, requestTable),
			cs.NewStage, cs.UpdatedAt, cs.RequestID, cs.ExpectedStage,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx,
				fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, requestTable),
				cs.RequestID,
			).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return apperrors.ErrNotFound
			}
			return apperrors.ErrConflict
		}
	} else {
		tag, err := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET updated_at = $1 WHERE id = $2`, requestTable),
			cs.UpdatedAt, cs.RequestID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperrors.ErrNotFound
		}
	}

	if cs.Entry != nil {
		if err := insertHistoryEntry(ctx, tx, cs.RequestID, *cs.Entry); err != nil {
			return err
		}
	}

	if cs.Message != nil {
		inserted, err := insertMessage(ctx, tx, cs.RequestID, *cs.Message)
		if err != nil {
			return err
		}
		// The counter moves only when the message row is new, so a
		// replayed send never double-counts.
		if inserted && cs.IncrementUnread != "" {
			column := unreadColumn(cs.IncrementUnread)
			_, err = tx.Exec(ctx,
				fmt.Sprintf(`UPDATE %s SET %s = %s + 1 WHERE id = $1`, requestTable, column, column),
				cs.RequestID,
			)
			if err != nil {
				return err
			}
		}
	}

	if cs.Assignment != nil {
		_, err = tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET provider_id = $1, provider_name = $2, workshop = $3, turn_date = $4 WHERE id = $5`, requestTable),
			cs.Assignment.ProviderID, cs.Assignment.ProviderName, cs.Assignment.Workshop, cs.Assignment.TurnDate, cs.RequestID,
		)
		if err != nil {
			return err
		}
	}

	if cs.Budget != nil {
		archived := cs.ArchiveBudget != nil && cs.ArchiveBudget.ID == cs.Budget.ID
		if err := upsertBudget(ctx, tx, cs.RequestID, *cs.Budget, archived); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func insertHistoryEntry(ctx context.Context, tx pgx.Tx, requestID string, entry entities.HistoryEntry) error {
	_, err := tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, request_id, occurred_at, actor_id, actor_name, from_stage, to_stage, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`, historyTable),
		entry.ID, requestID, entry.Timestamp, entry.ActorID, entry.ActorName, entry.FromStage, entry.ToStage, entry.Comment,
	)
	return err
}

func insertMessage(ctx context.Context, tx pgx.Tx, requestID string, msg entities.Message) (bool, error) {
	tag, err := tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, request_id, sender_id, sender_name, sender_role, text, sent_at, is_automated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`, messageTable),
		msg.ID, requestID, msg.SenderID, msg.SenderName, msg.SenderRole, msg.Text, msg.Timestamp, msg.IsAutomated,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func upsertBudget(ctx context.Context, tx pgx.Tx, requestID string, budget entities.Budget, archived bool) error {
	lines, err := json.Marshal(budget.Lines)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, request_id, lines, total, created_by, created_at,
			audit_status, resolved_by, resolution_comment, resolved_at, archived)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			audit_status = EXCLUDED.audit_status,
			resolved_by = EXCLUDED.resolved_by,
			resolution_comment = EXCLUDED.resolution_comment,
			resolved_at = EXCLUDED.resolved_at,
			archived = EXCLUDED.archived`, budgetTable),
		budget.ID, requestID, lines, budget.Total, budget.CreatedBy, budget.CreatedAt,
		budget.AuditStatus, budget.ResolvedBy, budget.ResolutionComment, budget.ResolvedAt, archived,
	)
	return err
}

func unreadColumn(side workflow.Side) string {
	if side == workflow.SideRequester {
		return "unread_for_requester"
	}
	return "unread_for_dispatch"
}

type dbRequest struct {
	ID                 string
	Code               string
	VehiclePlate       string
	RequesterID        string
	RequesterName      string
	CostCenter         sql.NullString
	Priority           string
	Category           sql.NullString
	Subcategory        sql.NullString
	Description        string
	OdometerAtRequest  int64
	Stage              string
	ProviderID         sql.NullString
	ProviderName       sql.NullString
	Workshop           sql.NullString
	TurnDate           sql.NullTime
	UnreadForDispatch  int
	UnreadForRequester int
	CreatedAt          sql.NullTime
	UpdatedAt          sql.NullTime
}

func (db *dbRequest) toEntity() *entities.ServiceRequest {
	req := &entities.ServiceRequest{
		ID:                 db.ID,
		Code:               db.Code,
		VehiclePlate:       db.VehiclePlate,
		RequesterID:        db.RequesterID,
		RequesterName:      db.RequesterName,
		CostCenter:         db.CostCenter.String,
		Priority:           constants.Priority(db.Priority),
		Category:           db.Category.String,
		Subcategory:        db.Subcategory.String,
		Description:        db.Description,
		OdometerAtRequest:  db.OdometerAtRequest,
		Stage:              constants.Stage(db.Stage),
		UnreadForDispatch:  db.UnreadForDispatch,
		UnreadForRequester: db.UnreadForRequester,
		CreatedAt:          db.CreatedAt.Time,
		UpdatedAt:          db.UpdatedAt.Time,
	}
	if db.ProviderID.Valid {
		req.Assignment = &entities.ProviderAssignment{
			ProviderID:   db.ProviderID.String,
			ProviderName: db.ProviderName.String,
			Workshop:     db.Workshop.String,
		}
		if db.TurnDate.Valid {
			turn := db.TurnDate.Time
			req.Assignment.TurnDate = &turn
		}
	}
	return req
}

func scanRequestRow(row pgx.Row) (*dbRequest, error) {
	var db dbRequest
	err := row.Scan(
		&db.ID, &db.Code, &db.VehiclePlate, &db.RequesterID, &db.RequesterName, &db.CostCenter,
		&db.Priority, &db.Category, &db.Subcategory, &db.Description, &db.OdometerAtRequest, &db.Stage,
		&db.ProviderID, &db.ProviderName, &db.Workshop, &db.TurnDate,
		&db.UnreadForDispatch, &db.UnreadForRequester, &db.CreatedAt, &db.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &db, nil
}

// FindRequest loads the full aggregate: the main row plus the three
// ledgers.
func (r *requestRepository) FindRequest(ctx context.Context, id string) (*entities.ServiceRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, requestFields, requestTable)
	db, err := scanRequestRow(r.storage.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	req := db.toEntity()

	if req.History, err = r.GetHistory(ctx, id, false); err != nil {
		return nil, err
	}
	if req.Messages, err = r.loadMessages(ctx, id); err != nil {
		return nil, err
	}
	if req.Budget, req.BudgetHistory, err = r.loadBudgets(ctx, id); err != nil {
		return nil, err
	}
	return req, nil
}

// GetHistory returns the audit trail, oldest first by default.
func (r *requestRepository) GetHistory(ctx context.Context, requestID string, newestFirst bool) ([]entities.HistoryEntry, error) {
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	rows, err := r.storage.Query(ctx, fmt.Sprintf(`
		SELECT id, occurred_at, actor_id, actor_name, from_stage, to_stage, comment
		FROM %s WHERE request_id = $1 ORDER BY occurred_at %s, id %s`, historyTable, order, order),
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]entities.HistoryEntry, 0)
	for rows.Next() {
		var e entities.HistoryEntry
		var fromStage sql.NullString
		var comment sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ActorID, &e.ActorName, &fromStage, &e.ToStage, &comment); err != nil {
			return nil, err
		}
		if fromStage.Valid {
			stage := constants.Stage(fromStage.String)
			e.FromStage = &stage
		}
		e.Comment = comment.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *requestRepository) loadMessages(ctx context.Context, requestID string) ([]entities.Message, error) {
	rows, err := r.storage.Query(ctx, fmt.Sprintf(`
		SELECT id, sender_id, sender_name, sender_role, text, sent_at, is_automated
		FROM %s WHERE request_id = $1 ORDER BY sent_at ASC, id ASC`, messageTable),
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]entities.Message, 0)
	for rows.Next() {
		var m entities.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.SenderName, &m.SenderRole, &m.Text, &m.Timestamp, &m.IsAutomated); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *requestRepository) loadBudgets(ctx context.Context, requestID string) (*entities.Budget, []entities.Budget, error) {
	rows, err := r.storage.Query(ctx, fmt.Sprintf(`
		SELECT id, lines, total, created_by, created_at,
			audit_status, resolved_by, resolution_comment, resolved_at, archived
		FROM %s WHERE request_id = $1 ORDER BY created_at ASC, id ASC`, budgetTable),
		requestID,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var current *entities.Budget
	archive := make([]entities.Budget, 0)
	for rows.Next() {
		var b entities.Budget
		var linesRaw []byte
		var resolvedBy, resolutionComment sql.NullString
		var resolvedAt sql.NullTime
		var archived bool
		if err := rows.Scan(&b.ID, &linesRaw, &b.Total, &b.CreatedBy, &b.CreatedAt,
			&b.AuditStatus, &resolvedBy, &resolutionComment, &resolvedAt, &archived); err != nil {
			return nil, nil, err
		}
		if err := json.Unmarshal(linesRaw, &b.Lines); err != nil {
			return nil, nil, err
		}
		b.ResolvedBy = resolvedBy.String
		b.ResolutionComment = resolutionComment.String
		if resolvedAt.Valid {
			at := resolvedAt.Time
			b.ResolvedAt = &at
		}
		if archived {
			archive = append(archive, b)
		} else {
			budget := b
			current = &budget
		}
	}
	if len(archive) == 0 {
		archive = nil
	}
	return current, archive, rows.Err()
}

// ListRequests returns board summaries matching the filter plus the
// total match count for pagination.
func (r *requestRepository) ListRequests(ctx context.Context, filter dto.ListRequestsFilterDTO) ([]dto.RequestSummaryDTO, uint64, error) {
	where := sq.And{}
	if filter.Stage != "" {
		where = append(where, sq.Eq{"stage": filter.Stage})
	}
	if filter.RequesterID != "" {
		where = append(where, sq.Eq{"requester_id": filter.RequesterID})
	}
	if filter.ProviderID != "" {
		where = append(where, sq.Eq{"provider_id": filter.ProviderID})
	}
	if filter.VehiclePlate != "" {
		where = append(where, sq.Eq{"vehicle_plate": filter.VehiclePlate})
	}

	countQuery := psql.Select("COUNT(*)").From(requestTable)
	if len(where) > 0 {
		countQuery = countQuery.Where(where)
	}
	sqlStr, args, err := countQuery.ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total uint64
	if err := r.storage.QueryRow(ctx, sqlStr, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []dto.RequestSummaryDTO{}, 0, nil
	}

	limit := filter.Limit
	if limit == 0 || limit > 200 {
		limit = 50
	}
	listQuery := psql.Select(
		"id", "code", "vehicle_plate", "requester_name", "priority", "stage",
		"description", "unread_for_dispatch", "unread_for_requester", "updated_at",
	).
		From(requestTable).
		OrderBy("updated_at DESC").
		Limit(limit).
		Offset(filter.Offset)
	if len(where) > 0 {
		listQuery = listQuery.Where(where)
	}
	sqlStr, args, err = listQuery.ToSql()
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.storage.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	summaries := make([]dto.RequestSummaryDTO, 0)
	for rows.Next() {
		var s dto.RequestSummaryDTO
		if err := rows.Scan(&s.ID, &s.Code, &s.VehiclePlate, &s.RequesterName, &s.Priority, &s.Stage,
			&s.Description, &s.UnreadForDispatch, &s.UnreadForRequester, &s.UpdatedAt); err != nil {
			return nil, 0, err
		}
		summaries = append(summaries, s)
	}
	return summaries, total, rows.Err()
}

// MarkRead resets one side's unread counter to zero.
func (r *requestRepository) MarkRead(ctx context.Context, requestID string, side workflow.Side) error {
	column := unreadColumn(side)
	tag, err := r.storage.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET %s = 0 WHERE id = $1`, requestTable, column),
		requestID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// DeleteRequest removes the request and, via cascade, its ledgers.
func (r *requestRepository) DeleteRequest(ctx context.Context, id string) error {
	tag, err := r.storage.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, requestTable), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
