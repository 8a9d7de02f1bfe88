package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/sabrina-Riya/officecore/internal/models"
	"github.com/sabrina-Riya/officecore/internal/store"
)

const uniqueViolationCode = "23505"

// DB is the subset of pgxpool.Pool the store needs. pgxmock satisfies it too,
// which is how the store tests run without a database.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Store struct {
	db         DB
	sessionTTL time.Duration
	bcryptCost int
}

type Options struct {
	SessionTTL time.Duration
	BcryptCost int
}

func NewStore(db DB, options Options) *Store {
	ttl := options.SessionTTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	cost := options.BcryptCost
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Store{db: db, sessionTTL: ttl, bcryptCost: cost}
}

const leaveColumns = `
	l.leave_id, l.user_id, u.name, l.start_date, l.end_date, l.reason, l.status,
	l.approved_by, a.name, l.actioned_at, l.rejection_reason, l.created_at`

const leaveFrom = `
	FROM leave_requests l
	JOIN users u ON u.user_id = l.user_id
	LEFT JOIN users a ON a.user_id = l.approved_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLeave(row rowScanner) (models.LeaveRequest, error) {
	var leave models.LeaveRequest
	var approvedByNull sql.NullString
	var actionedByNull sql.NullString
	var actionedAtNull sql.NullTime
	var rejectionNull sql.NullString
	if err := row.Scan(
		&leave.LeaveID, &leave.UserID, &leave.EmployeeName, &leave.StartDate, &leave.EndDate,
		&leave.Reason, &leave.Status, &approvedByNull, &actionedByNull, &actionedAtNull,
		&rejectionNull, &leave.CreatedAt,
	); err != nil {
		return models.LeaveRequest{}, err
	}
	leave.ApprovedBy = nullStringPtr(approvedByNull)
	leave.ActionedAt = nullTimePtr(actionedAtNull)
	leave.RejectionReason = nullStringPtr(rejectionNull)
	if actionedByNull.Valid {
		leave.ActionedByName = actionedByNull.String
	}
	return leave, nil
}

func (s *Store) InsertLeave(ctx context.Context, input store.SubmitLeaveInput) (models.LeaveRequest, error) {
	leaveID := uuid.NewString()
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var leave models.LeaveRequest
	row := s.db.QueryRow(ctx, `
		INSERT INTO leave_requests (leave_id, user_id, start_date, end_date, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING leave_id, user_id, start_date, end_date, reason, status, created_at
	`, leaveID, input.UserID, input.StartDate, input.EndDate, input.Reason, models.StatusPending, createdAt)
	if err := row.Scan(&leave.LeaveID, &leave.UserID, &leave.StartDate, &leave.EndDate, &leave.Reason, &leave.Status, &leave.CreatedAt); err != nil {
		return models.LeaveRequest{}, translateLeaveInsertError(err)
	}
	return leave, nil
}

func (s *Store) GetLeave(ctx context.Context, leaveID string) (models.LeaveRequest, error) {
	row := s.db.QueryRow(ctx, `
		SELECT`+leaveColumns+leaveFrom+`
		WHERE l.leave_id = $1 AND l.deleted_at IS NULL
	`, leaveID)
	leave, err := scanLeave(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.LeaveRequest{}, store.ErrLeaveNotFound
		}
		return models.LeaveRequest{}, err
	}
	return leave, nil
}

func (s *Store) UpdateLeave(ctx context.Context, input store.EditLeaveInput) (models.LeaveRequest, error) {
	var leave models.LeaveRequest
	row := s.db.QueryRow(ctx, `
		UPDATE leave_requests
		SET start_date = $1,
			end_date = $2,
			reason = $3
		WHERE leave_id = $4 AND user_id = $5 AND status = 'pending' AND deleted_at IS NULL
		RETURNING leave_id, user_id, start_date, end_date, reason, status, created_at
	`, input.StartDate, input.EndDate, input.Reason, input.LeaveID, input.UserID)
	if err := row.Scan(&leave.LeaveID, &leave.UserID, &leave.StartDate, &leave.EndDate, &leave.Reason, &leave.Status, &leave.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.LeaveRequest{}, s.explainMissedUpdate(ctx, input.LeaveID)
		}
		return models.LeaveRequest{}, err
	}
	return leave, nil
}

func (s *Store) ApproveLeave(ctx context.Context, input store.LeaveActionInput) (models.LeaveRequest, error) {
	return s.transitionLeave(ctx, input, models.StatusApproved)
}

func (s *Store) RejectLeave(ctx context.Context, input store.LeaveActionInput) (models.LeaveRequest, error) {
	return s.transitionLeave(ctx, input, models.StatusRejected)
}

func (s *Store) CancelLeave(ctx context.Context, input store.LeaveActionInput) (models.LeaveRequest, error) {
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var leave models.LeaveRequest
	row := s.db.QueryRow(ctx, `
		UPDATE leave_requests
		SET status = 'cancelled',
			actioned_at = $1
		WHERE leave_id = $2 AND user_id = $3 AND status = 'pending' AND deleted_at IS NULL
		RETURNING leave_id, user_id, start_date, end_date, reason, status, created_at
	`, occurredAt, input.LeaveID, input.ActorID)
	if err := row.Scan(&leave.LeaveID, &leave.UserID, &leave.StartDate, &leave.EndDate, &leave.Reason, &leave.Status, &leave.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.LeaveRequest{}, s.explainMissedUpdate(ctx, input.LeaveID)
		}
		return models.LeaveRequest{}, err
	}
	leave.ActionedAt = &occurredAt
	return leave, nil
}

// transitionLeave is the admin-side conditional update. The status predicate
// makes the check-and-write atomic: of two racing actions exactly one matches
// the pending row.
func (s *Store) transitionLeave(ctx context.Context, input store.LeaveActionInput, to string) (models.LeaveRequest, error) {
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var leave models.LeaveRequest
	var rejectionNull sql.NullString
	row := s.db.QueryRow(ctx, `
		UPDATE leave_requests
		SET status = $1,
			approved_by = $2,
			actioned_at = $3,
			rejection_reason = $4
		WHERE leave_id = $5 AND status = 'pending' AND deleted_at IS NULL
		RETURNING leave_id, user_id, start_date, end_date, reason, status, approved_by, rejection_reason, created_at
	`, to, input.ActorID, occurredAt, nullIfEmpty(input.Reason), input.LeaveID)
	var approvedByNull sql.NullString
	if err := row.Scan(&leave.LeaveID, &leave.UserID, &leave.StartDate, &leave.EndDate, &leave.Reason, &leave.Status, &approvedByNull, &rejectionNull, &leave.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.LeaveRequest{}, s.explainMissedUpdate(ctx, input.LeaveID)
		}
		return models.LeaveRequest{}, err
	}
	leave.ApprovedBy = nullStringPtr(approvedByNull)
	leave.RejectionReason = nullStringPtr(rejectionNull)
	leave.ActionedAt = &occurredAt
	return leave, nil
}

// explainMissedUpdate disambiguates a conditional update that matched zero
// rows: the row either does not exist or is no longer pending.
func (s *Store) explainMissedUpdate(ctx context.Context, leaveID string) error {
	var status string
	row := s.db.QueryRow(ctx, `
		SELECT status FROM leave_requests WHERE leave_id = $1 AND deleted_at IS NULL
	`, leaveID)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrLeaveNotFound
		}
		return err
	}
	return fmt.Errorf("%w: request is %s", store.ErrInvalidState, status)
}

func (s *Store) CountLeavesByUser(ctx context.Context, userID, status string) (int, error) {
	query := `SELECT COUNT(1) FROM leave_requests WHERE user_id = $1 AND deleted_at IS NULL`
	args := []any{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}

	var count int
	row := s.db.QueryRow(ctx, query, args...)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) ListLeavesByUser(ctx context.Context, userID string, page store.Pagination) ([]models.LeaveRequest, error) {
	limit, offset := normalizePage(page.Limit, page.Offset)
	rows, err := s.db.Query(ctx, `
		SELECT`+leaveColumns+leaveFrom+`
		WHERE l.user_id = $1 AND l.deleted_at IS NULL
		ORDER BY l.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeaves(rows)
}

func (s *Store) ListLeaves(ctx context.Context, filter store.LeaveFilter) ([]models.LeaveRequest, error) {
	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := `
		SELECT` + leaveColumns + leaveFrom + `
		WHERE l.deleted_at IS NULL`
	args := []any{}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND l.status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}
	query += fmt.Sprintf(" ORDER BY l.created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeaves(rows)
}

func (s *Store) LeaveSummary(ctx context.Context, userID string) (store.LeaveSummary, error) {
	query := `
		SELECT COUNT(1),
			COUNT(1) FILTER (WHERE status = 'pending'),
			COUNT(1) FILTER (WHERE status = 'approved'),
			COUNT(1) FILTER (WHERE status = 'rejected')
		FROM leave_requests
		WHERE deleted_at IS NULL`
	args := []any{}
	if userID != "" {
		query += ` AND user_id = $1`
		args = append(args, userID)
	}

	var summary store.LeaveSummary
	row := s.db.QueryRow(ctx, query, args...)
	if err := row.Scan(&summary.Total, &summary.Pending, &summary.Approved, &summary.Rejected); err != nil {
		return store.LeaveSummary{}, err
	}
	return summary, nil
}

func (s *Store) ListPendingOldest(ctx context.Context, limit int) ([]models.LeaveRequest, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.Query(ctx, `
		SELECT`+leaveColumns+leaveFrom+`
		WHERE l.status = 'pending' AND l.deleted_at IS NULL
		ORDER BY l.created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeaves(rows)
}

func collectLeaves(rows pgx.Rows) ([]models.LeaveRequest, error) {
	var leaves []models.LeaveRequest
	for rows.Next() {
		leave, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leave)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return leaves, nil
}

func (s *Store) CreateUser(ctx context.Context, input store.CreateUserInput) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return models.User{}, err
	}

	var user models.User
	var rawRole string
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (user_id, name, email, password_hash, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		RETURNING user_id, name, email, role, active, created_at
	`, uuid.NewString(), input.Name, input.Email, string(hash), string(input.Role), time.Now().UTC())
	if err := row.Scan(&user.UserID, &user.Name, &user.Email, &rawRole, &user.Active, &user.CreatedAt); err != nil {
		return models.User{}, translateUserInsertError(err)
	}
	user.Role = loadRole(rawRole)
	return user, nil
}

// EnsureAdmin creates the bootstrap admin account if it does not already
// exist. Reports whether a row was inserted.
func (s *Store) EnsureAdmin(ctx context.Context, name, email, password string) (bool, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return false, err
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO users (user_id, name, email, password_hash, role, active, created_at)
		VALUES ($1, $2, $3, $4, 'admin', TRUE, $5)
		ON CONFLICT (email) DO NOTHING
	`, uuid.NewString(), name, email, string(hash), time.Now().UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	var rawRole string
	row := s.db.QueryRow(ctx, `
		SELECT user_id, name, email, role, active, created_at
		FROM users
		WHERE user_id = $1
	`, userID)
	if err := row.Scan(&user.UserID, &user.Name, &user.Email, &rawRole, &user.Active, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, err
	}
	user.Role = loadRole(rawRole)
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, name, email, role, active, created_at
		FROM users
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		var rawRole string
		if err := rows.Scan(&user.UserID, &user.Name, &user.Email, &rawRole, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.Role = loadRole(rawRole)
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) SetUserActive(ctx context.Context, userID string, active bool) (models.User, error) {
	var user models.User
	var rawRole string
	row := s.db.QueryRow(ctx, `
		UPDATE users
		SET active = $1
		WHERE user_id = $2
		RETURNING user_id, name, email, role, active, created_at
	`, active, userID)
	if err := row.Scan(&user.UserID, &user.Name, &user.Email, &rawRole, &user.Active, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, err
	}
	user.Role = loadRole(rawRole)
	return user, nil
}

func (s *Store) SetUserRole(ctx context.Context, userID string, role models.Role) (models.User, error) {
	var user models.User
	var rawRole string
	row := s.db.QueryRow(ctx, `
		UPDATE users
		SET role = $1
		WHERE user_id = $2
		RETURNING user_id, name, email, role, active, created_at
	`, string(role), userID)
	if err := row.Scan(&user.UserID, &user.Name, &user.Email, &rawRole, &user.Active, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, err
	}
	user.Role = loadRole(rawRole)
	return user, nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	row := s.db.QueryRow(ctx, `SELECT COUNT(1) FROM users`)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) Login(ctx context.Context, input store.LoginInput) (store.LoginResult, error) {
	var user models.User
	var rawRole string
	var passwordHash string
	row := s.db.QueryRow(ctx, `
		SELECT user_id, name, email, password_hash, role, active, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`, input.Email)
	if err := row.Scan(&user.UserID, &user.Name, &user.Email, &passwordHash, &rawRole, &user.Active, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.LoginResult{}, store.ErrInvalidCredentials
		}
		return store.LoginResult{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(input.Password)); err != nil {
		return store.LoginResult{}, store.ErrInvalidCredentials
	}
	if !user.Active {
		return store.LoginResult{}, store.ErrUserInactive
	}
	user.Role = loadRole(rawRole)

	session := models.Session{
		SessionID: uuid.NewString(),
		UserID:    user.UserID,
		ExpiresAt: time.Now().UTC().Add(s.sessionTTL),
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`, session.SessionID, session.UserID, session.ExpiresAt, time.Now().UTC())
	if err != nil {
		return store.LoginResult{}, err
	}

	return store.LoginResult{User: user, Session: session}, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error) {
	var session models.Session
	var user models.User
	var rawRole string
	row := s.db.QueryRow(ctx, `
		SELECT s.session_id, s.user_id, s.expires_at, u.user_id, u.name, u.email, u.role, u.active, u.created_at
		FROM sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.session_id = $1 AND s.expires_at > $2
	`, sessionID, time.Now().UTC())
	if err := row.Scan(&session.SessionID, &session.UserID, &session.ExpiresAt, &user.UserID, &user.Name, &user.Email, &rawRole, &user.Active, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, models.User{}, store.ErrSessionNotFound
		}
		return models.Session{}, models.User{}, err
	}
	if !user.Active {
		return models.Session{}, models.User{}, store.ErrUserInactive
	}
	user.Role = loadRole(rawRole)
	return session, user, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	return err
}

func (s *Store) InsertAudit(ctx context.Context, entry models.AuditEntry) (string, error) {
	auditID := uuid.NewString()
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_logs (audit_id, action, performed_by, entity_kind, entity_id, old_status, new_status, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, auditID, entry.Action, entry.PerformedBy, entry.EntityKind, entry.EntityID,
		nullIfEmpty(entry.OldStatus), nullIfEmpty(entry.NewStatus), nullIfEmpty(entry.Message), createdAt)
	if err != nil {
		return "", err
	}
	return auditID, nil
}

func (s *Store) ListAudit(ctx context.Context, filter store.AuditFilter) ([]models.AuditEntry, error) {
	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := `
		SELECT audit_id, action, performed_by, entity_kind, entity_id, old_status, new_status, message, created_at
		FROM audit_logs
		WHERE 1=1`
	args := []any{}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", len(args)+1)
		args = append(args, filter.Action)
	}
	if filter.PerformedBy != "" {
		query += fmt.Sprintf(" AND performed_by = $%d", len(args)+1)
		args = append(args, filter.PerformedBy)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		var oldNull, newNull, msgNull sql.NullString
		if err := rows.Scan(&entry.AuditID, &entry.Action, &entry.PerformedBy, &entry.EntityKind, &entry.EntityID, &oldNull, &newNull, &msgNull, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.OldStatus = oldNull.String
		entry.NewStatus = newNull.String
		entry.Message = msgNull.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// translateUserInsertError maps the unique-email violation to the sentinel the
// services branch on.
func translateUserInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return store.ErrEmailExists
	}
	return err
}

// translateLeaveInsertError maps a violation of the one-pending-per-user
// partial index to the policy sentinel.
func translateLeaveInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return fmt.Errorf("%w: a pending request already exists", store.ErrPolicyLimit)
	}
	return err
}

// loadRole tolerates legacy casing in stored role values; unknown values fall
// back to employee so a bad row never grants admin.
func loadRole(raw string) models.Role {
	if role, ok := models.NormalizeRole(raw); ok {
		return role
	}
	return models.RoleEmployee
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}
