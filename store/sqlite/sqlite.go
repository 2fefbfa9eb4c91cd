/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces using SQLite. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  leave.Store:         Balance-change ledger rows
  leave.Entitlements:  Period entitlement lookups
  leave.LeaveRequests: Leave requests, their dates and status options
  leave.Periods:       Absence period lookups
  leave.Contracts:     Job contract windows

KEY TABLES:
  balance_changes:     The ledger - one signed row per grant, deduction or
                       expiry correction
  entitlements:        Per-contact per-period entitlement records
  leave_requests:      Request headers (contact, type, status, span)
  leave_request_dates: One row per calendar day of a request
  absence_periods:     The periods entitlements belong to
  contracts:           Contract windows bounding valid leave days

  The collaborator tables are reference copies of records a host HR system
  would own. The ledger never cascades into them; Save* methods exist so the
  demo server and tests can populate them.

INDEXES:
  - idx_balance_changes_source: source lookups (hot path)
  - idx_balance_changes_expiry: expiry scans
  - idx_balance_changes_corrected: correction upsert lookups
  - idx_leave_request_dates_request / _date: per-day joins

DATES:
  Stored as YYYY-MM-DD strings; amounts as exact decimal strings.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite is opened with WAL mode so
  readers don't block each other.

USAGE:
  st, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  ledger := leave.NewLedger(st, st, leave.FlatWorkPattern{}, leave.DefaultOptionSet())

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - leave/store.go: Interface definitions
  - leave/store/memory.go: In-memory ledger for testing
  - leave/store/directory.go: Fixture-backed collaborators
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/attunehr/leave-engine/leave"
	"github.com/attunehr/leave-engine/leave/store"
)

// Store implements the ledger and collaborator interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	approved []int64
	open     []int64
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	st := &Store{
		db:       db,
		approved: store.DefaultApprovedStatuses(),
		open:     store.DefaultOpenStatuses(),
	}
	if err := st.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return st, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetStatusOptions overrides the deployment's status option lists.
func (s *Store) SetStatusOptions(approved, open []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved = approved
	s.open = open
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Balance changes (the ledger)
	CREATE TABLE IF NOT EXISTS balance_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL,
		source_type TEXT NOT NULL,
		type_id INTEGER NOT NULL,
		amount TEXT NOT NULL,
		expiry_date TEXT,
		expired_balance_change_id INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_balance_changes_source
		ON balance_changes(source_type, source_id);
	CREATE INDEX IF NOT EXISTS idx_balance_changes_expiry
		ON balance_changes(expiry_date) WHERE expiry_date IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_balance_changes_corrected
		ON balance_changes(expired_balance_change_id)
		WHERE expired_balance_change_id IS NOT NULL;

	-- Absence periods
	CREATE TABLE IF NOT EXISTS absence_periods (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL
	);

	-- Period entitlements
	CREATE TABLE IF NOT EXISTS entitlements (
		id INTEGER PRIMARY KEY,
		contact_id INTEGER NOT NULL,
		type_id INTEGER NOT NULL,
		period_id INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entitlements_contact
		ON entitlements(contact_id, period_id);

	-- Leave requests
	CREATE TABLE IF NOT EXISTS leave_requests (
		id INTEGER PRIMARY KEY,
		contact_id INTEGER NOT NULL,
		type_id INTEGER NOT NULL,
		status_id INTEGER NOT NULL,
		request_type TEXT NOT NULL,
		from_date TEXT NOT NULL,
		to_date TEXT,
		deleted BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_contact
		ON leave_requests(contact_id, type_id);

	-- One row per calendar day of a request
	CREATE TABLE IF NOT EXISTS leave_request_dates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		leave_request_id INTEGER NOT NULL,
		date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_request_dates_request
		ON leave_request_dates(leave_request_id);
	CREATE INDEX IF NOT EXISTS idx_leave_request_dates_date
		ON leave_request_dates(date);

	-- Job contracts (collapsed latest-revision view)
	CREATE TABLE IF NOT EXISTS contracts (
		id INTEGER PRIMARY KEY,
		contact_id INTEGER NOT NULL,
		period_start_date TEXT NOT NULL,
		period_end_date TEXT,
		deleted BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_contact
		ON contracts(contact_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER (leave.Store interface)
// =============================================================================

const balanceChangeColumns = `id, source_id, source_type, type_id, amount, expiry_date, expired_balance_change_id`

// Insert appends a ledger row and returns its id.
func (s *Store) Insert(ctx context.Context, bc *leave.BalanceChange) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO balance_changes
		(source_id, source_type, type_id, amount, expiry_date, expired_balance_change_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		bc.SourceID,
		string(bc.SourceType),
		bc.TypeID,
		bc.Amount.String(),
		nullDate(bc.ExpiryDate),
		nullInt64(bc.ExpiredBalanceChangeID),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert balance change: %w", err)
	}
	return res.LastInsertId()
}

// Update rewrites an existing ledger row in place.
func (s *Store) Update(ctx context.Context, bc *leave.BalanceChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE balance_changes
		SET source_id = ?, source_type = ?, type_id = ?, amount = ?,
		    expiry_date = ?, expired_balance_change_id = ?
		WHERE id = ?`,
		bc.SourceID,
		string(bc.SourceType),
		bc.TypeID,
		bc.Amount.String(),
		nullDate(bc.ExpiryDate),
		nullInt64(bc.ExpiredBalanceChangeID),
		bc.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance change: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return leave.ErrBalanceChangeNotFound
	}
	return nil
}

// FindByID returns a ledger row by id.
func (s *Store) FindByID(ctx context.Context, id int64) (*leave.BalanceChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.queryBalanceChanges(ctx,
		`SELECT `+balanceChangeColumns+` FROM balance_changes WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, leave.ErrBalanceChangeNotFound
	}
	return &rows[0], nil
}

// BySource returns rows matching (sourceType, sourceID in ids), ordered by id.
func (s *Store) BySource(ctx context.Context, sourceType leave.SourceType, sourceIDs []int64) ([]leave.BalanceChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(sourceIDs) == 0 {
		return nil, nil
	}

	query := `SELECT ` + balanceChangeColumns + `
		FROM balance_changes
		WHERE source_type = ? AND source_id IN (` + placeholders(len(sourceIDs)) + `)
		ORDER BY id ASC`

	args := make([]any, 0, len(sourceIDs)+1)
	args = append(args, string(sourceType))
	for _, id := range sourceIDs {
		args = append(args, id)
	}
	return s.queryBalanceChanges(ctx, query, args...)
}

// EntitlementComponents returns the entitlement-sourced breakdown rows. With
// expiredOnly false, only rows without a correction reference; with
// expiredOnly true, only corrections whose expiry date is before asOf.
func (s *Store) EntitlementComponents(ctx context.Context, entitlementID int64, expiredOnly bool, asOf leave.Date) ([]leave.BalanceChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if expiredOnly {
		return s.queryBalanceChanges(ctx, `
			SELECT `+balanceChangeColumns+`
			FROM balance_changes
			WHERE source_type = ? AND source_id = ?
			  AND expired_balance_change_id IS NOT NULL
			  AND expiry_date < ?
			ORDER BY id ASC`,
			string(leave.SourceEntitlement), entitlementID, asOf.String())
	}
	return s.queryBalanceChanges(ctx, `
		SELECT `+balanceChangeColumns+`
		FROM balance_changes
		WHERE source_type = ? AND source_id = ?
		  AND expired_balance_change_id IS NULL
		ORDER BY id ASC`,
		string(leave.SourceEntitlement), entitlementID)
}

// CorrectionFor returns the correction row expiring the given original, or nil.
func (s *Store) CorrectionFor(ctx context.Context, originalID int64) (*leave.BalanceChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.queryBalanceChanges(ctx, `
		SELECT `+balanceChangeColumns+`
		FROM balance_changes
		WHERE expired_balance_change_id = ?
		ORDER BY id ASC LIMIT 1`,
		originalID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// DueForExpiry returns non-correction rows with an expiry date before asOf
// and no correction yet, earliest-expiring first, id as tie-break.
func (s *Store) DueForExpiry(ctx context.Context, asOf leave.Date) ([]leave.BalanceChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryBalanceChanges(ctx, `
		SELECT `+balanceChangeColumns+`
		FROM balance_changes
		WHERE expiry_date IS NOT NULL
		  AND expiry_date < ?
		  AND expired_balance_change_id IS NULL
		  AND NOT EXISTS (
			SELECT 1 FROM balance_changes c
			WHERE c.expired_balance_change_id = balance_changes.id
		  )
		ORDER BY expiry_date ASC, id ASC`,
		asOf.String())
}

// ExpiringBetween returns non-correction rows whose expiry date falls in
// [from, to], whether or not a correction already exists.
func (s *Store) ExpiringBetween(ctx context.Context, from, to leave.Date) ([]leave.BalanceChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryBalanceChanges(ctx, `
		SELECT `+balanceChangeColumns+`
		FROM balance_changes
		WHERE expiry_date IS NOT NULL
		  AND expiry_date >= ? AND expiry_date <= ?
		  AND expired_balance_change_id IS NULL
		ORDER BY expiry_date ASC, id ASC`,
		from.String(), to.String())
}

// DeleteBySource removes all rows matching (sourceType, sourceID in ids).
func (s *Store) DeleteBySource(ctx context.Context, sourceType leave.SourceType, sourceIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sourceIDs) == 0 {
		return nil
	}

	query := `DELETE FROM balance_changes
		WHERE source_type = ? AND source_id IN (` + placeholders(len(sourceIDs)) + `)`

	args := make([]any, 0, len(sourceIDs)+1)
	args = append(args, string(sourceType))
	for _, id := range sourceIDs {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *Store) queryBalanceChanges(ctx context.Context, query string, args ...any) ([]leave.BalanceChange, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance changes: %w", err)
	}
	defer rows.Close()

	var changes []leave.BalanceChange
	for rows.Next() {
		bc, err := scanBalanceChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, bc)
	}
	return changes, rows.Err()
}

func scanBalanceChange(rows *sql.Rows) (leave.BalanceChange, error) {
	var (
		bc          leave.BalanceChange
		sourceType  string
		amount      string
		expiryDate  sql.NullString
		correctedID sql.NullInt64
	)

	err := rows.Scan(&bc.ID, &bc.SourceID, &sourceType, &bc.TypeID, &amount, &expiryDate, &correctedID)
	if err != nil {
		return bc, fmt.Errorf("failed to scan balance change: %w", err)
	}

	bc.SourceType = leave.SourceType(sourceType)
	bc.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return bc, fmt.Errorf("bad amount %q on balance change %d: %w", amount, bc.ID, err)
	}
	if expiryDate.Valid {
		d, err := leave.ParseDate(expiryDate.String)
		if err != nil {
			return bc, fmt.Errorf("bad expiry date on balance change %d: %w", bc.ID, err)
		}
		bc.ExpiryDate = &d
	}
	if correctedID.Valid {
		id := correctedID.Int64
		bc.ExpiredBalanceChangeID = &id
	}
	return bc, nil
}

// =============================================================================
// ABSENCE PERIODS (leave.Periods interface)
// =============================================================================

// SavePeriod inserts or updates an absence period.
func (s *Store) SavePeriod(ctx context.Context, p leave.AbsencePeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO absence_periods (id, title, start_date, end_date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			start_date = excluded.start_date,
			end_date = excluded.end_date`,
		p.ID, p.Title, p.StartDate.String(), p.EndDate.String(),
	)
	return err
}

// PeriodByID returns the absence period or leave.ErrPeriodNotFound.
func (s *Store) PeriodByID(ctx context.Context, id int64) (*leave.AbsencePeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, start_date, end_date FROM absence_periods WHERE id = ?`, id)
	return scanPeriod(row)
}

// PeriodContainingDates returns the period containing [from, to], or
// leave.ErrPeriodNotFound.
func (s *Store) PeriodContainingDates(ctx context.Context, from, to leave.Date) (*leave.AbsencePeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, start_date, end_date
		FROM absence_periods
		WHERE start_date <= ? AND end_date >= ?
		ORDER BY start_date ASC LIMIT 1`,
		from.String(), to.String())
	return scanPeriod(row)
}

func scanPeriod(row *sql.Row) (*leave.AbsencePeriod, error) {
	var p leave.AbsencePeriod
	var start, end string

	err := row.Scan(&p.ID, &p.Title, &start, &end)
	if err == sql.ErrNoRows {
		return nil, leave.ErrPeriodNotFound
	}
	if err != nil {
		return nil, err
	}

	if p.StartDate, err = leave.ParseDate(start); err != nil {
		return nil, err
	}
	if p.EndDate, err = leave.ParseDate(end); err != nil {
		return nil, err
	}
	return &p, nil
}

// =============================================================================
// ENTITLEMENTS (leave.Entitlements interface)
// =============================================================================

// SaveEntitlement inserts or updates an entitlement record.
func (s *Store) SaveEntitlement(ctx context.Context, e leave.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entitlements (id, contact_id, type_id, period_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			contact_id = excluded.contact_id,
			type_id = excluded.type_id,
			period_id = excluded.period_id`,
		e.ID, e.ContactID, e.TypeID, e.PeriodID,
	)
	return err
}

// EntitlementByID returns the entitlement or leave.ErrEntitlementNotFound.
func (s *Store) EntitlementByID(ctx context.Context, id int64) (*leave.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e leave.Entitlement
	err := s.db.QueryRowContext(ctx,
		`SELECT id, contact_id, type_id, period_id FROM entitlements WHERE id = ?`, id,
	).Scan(&e.ID, &e.ContactID, &e.TypeID, &e.PeriodID)
	if err == sql.ErrNoRows {
		return nil, leave.ErrEntitlementNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// EntitlementForLeaveRequest returns the entitlement covering the request's
// contact, absence type and from-date, or leave.ErrEntitlementNotFound.
func (s *Store) EntitlementForLeaveRequest(ctx context.Context, lr *leave.LeaveRequest) (*leave.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e leave.Entitlement
	err := s.db.QueryRowContext(ctx, `
		SELECT e.id, e.contact_id, e.type_id, e.period_id
		FROM entitlements e
		JOIN absence_periods p ON p.id = e.period_id
		WHERE e.contact_id = ? AND e.type_id = ?
		  AND p.start_date <= ? AND p.end_date >= ?
		LIMIT 1`,
		lr.ContactID, lr.TypeID, lr.FromDate.String(), lr.FromDate.String(),
	).Scan(&e.ID, &e.ContactID, &e.TypeID, &e.PeriodID)
	if err == sql.ErrNoRows {
		return nil, leave.ErrEntitlementNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// EntitlementsForContacts returns entitlements for the contacts in the given
// period. typeID zero matches any absence type.
func (s *Store) EntitlementsForContacts(ctx context.Context, contactIDs []int64, periodID, typeID int64) ([]leave.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(contactIDs) == 0 {
		return nil, nil
	}

	query := `SELECT id, contact_id, type_id, period_id
		FROM entitlements
		WHERE period_id = ? AND contact_id IN (` + placeholders(len(contactIDs)) + `)`

	args := make([]any, 0, len(contactIDs)+2)
	args = append(args, periodID)
	for _, id := range contactIDs {
		args = append(args, id)
	}
	if typeID != 0 {
		query += ` AND type_id = ?`
		args = append(args, typeID)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ents []leave.Entitlement
	for rows.Next() {
		var e leave.Entitlement
		if err := rows.Scan(&e.ID, &e.ContactID, &e.TypeID, &e.PeriodID); err != nil {
			return nil, err
		}
		ents = append(ents, e)
	}
	return ents, rows.Err()
}

// =============================================================================
// LEAVE REQUESTS (leave.LeaveRequests interface)
// =============================================================================

// SaveLeaveRequest inserts or updates a request header.
func (s *Store) SaveLeaveRequest(ctx context.Context, lr leave.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_requests
		(id, contact_id, type_id, status_id, request_type, from_date, to_date, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			contact_id = excluded.contact_id,
			type_id = excluded.type_id,
			status_id = excluded.status_id,
			request_type = excluded.request_type,
			from_date = excluded.from_date,
			to_date = excluded.to_date,
			deleted = excluded.deleted`,
		lr.ID, lr.ContactID, lr.TypeID, lr.StatusID, string(lr.RequestType),
		lr.FromDate.String(), nullDate(lr.ToDate), lr.Deleted,
	)
	return err
}

// SaveLeaveRequestWithDays saves the header and one date row per calendar day
// of the request's span, replacing any previous dates. Returns the dates.
func (s *Store) SaveLeaveRequestWithDays(ctx context.Context, lr leave.LeaveRequest) ([]leave.LeaveRequestDate, error) {
	if err := s.SaveLeaveRequest(ctx, lr); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM leave_request_dates WHERE leave_request_id = ?`, lr.ID); err != nil {
		return nil, err
	}

	var out []leave.LeaveRequestDate
	for day := lr.FromDate; day.BeforeOrEqual(lr.EffectiveToDate()); day = day.AddDays(1) {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO leave_request_dates (leave_request_id, date) VALUES (?, ?)`,
			lr.ID, day.String())
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		out = append(out, leave.LeaveRequestDate{ID: id, LeaveRequestID: lr.ID, Date: day})
	}
	return out, nil
}

const leaveRequestColumns = `id, contact_id, type_id, status_id, request_type, from_date, to_date, deleted`

// LeaveRequestByID returns the request or leave.ErrLeaveRequestNotFound.
// Deleted requests are still returned; callers check the flag.
func (s *Store) LeaveRequestByID(ctx context.Context, id int64) (*leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	requests, err := s.queryLeaveRequests(ctx,
		`SELECT `+leaveRequestColumns+` FROM leave_requests WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, leave.ErrLeaveRequestNotFound
	}
	return &requests[0], nil
}

// LeaveRequestDateByID returns a single request date or
// leave.ErrLeaveRequestNotFound.
func (s *Store) LeaveRequestDateByID(ctx context.Context, id int64) (*leave.LeaveRequestDate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d leave.LeaveRequestDate
	var dateStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, leave_request_id, date FROM leave_request_dates WHERE id = ?`, id,
	).Scan(&d.ID, &d.LeaveRequestID, &dateStr)
	if err == sql.ErrNoRows {
		return nil, leave.ErrLeaveRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	if d.Date, err = leave.ParseDate(dateStr); err != nil {
		return nil, err
	}
	return &d, nil
}

// DatesFor returns the request's dates ordered by date ascending.
func (s *Store) DatesFor(ctx context.Context, leaveRequestID int64) ([]leave.LeaveRequestDate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryDates(ctx, `
		SELECT id, leave_request_id, date
		FROM leave_request_dates
		WHERE leave_request_id = ?
		ORDER BY date ASC, id ASC`,
		leaveRequestID)
}

// DatesOn returns the dates of the contact's non-deleted requests falling on
// the given calendar day.
func (s *Store) DatesOn(ctx context.Context, contactID int64, day leave.Date) ([]leave.LeaveRequestDate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryDates(ctx, `
		SELECT d.id, d.leave_request_id, d.date
		FROM leave_request_dates d
		JOIN leave_requests lr ON lr.id = d.leave_request_id
		WHERE lr.contact_id = ? AND d.date = ? AND lr.deleted = FALSE
		ORDER BY d.id ASC`,
		contactID, day.String())
}

// FindLeaveRequests returns requests matching the query, ordered by id. The
// filter itself runs through leave.LeaveRequestQuery.Matches so semantics
// stay identical across backends.
func (s *Store) FindLeaveRequests(ctx context.Context, q leave.LeaveRequestQuery) ([]leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all, err := s.queryLeaveRequests(ctx,
		`SELECT `+leaveRequestColumns+` FROM leave_requests ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}

	matched := all[:0:0]
	for _, lr := range all {
		if q.Matches(lr) {
			matched = append(matched, lr)
		}
	}
	return matched, nil
}

// ApprovedStatuses lists the status option values counted as approved.
func (s *Store) ApprovedStatuses() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.approved...)
}

// OpenStatuses lists the status option values counted as open.
func (s *Store) OpenStatuses() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.open...)
}

func (s *Store) queryLeaveRequests(ctx context.Context, query string, args ...any) ([]leave.LeaveRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave requests: %w", err)
	}
	defer rows.Close()

	var requests []leave.LeaveRequest
	for rows.Next() {
		var (
			lr          leave.LeaveRequest
			requestType string
			fromDate    string
			toDate      sql.NullString
		)
		if err := rows.Scan(&lr.ID, &lr.ContactID, &lr.TypeID, &lr.StatusID,
			&requestType, &fromDate, &toDate, &lr.Deleted); err != nil {
			return nil, err
		}

		lr.RequestType = leave.RequestType(requestType)
		if lr.FromDate, err = leave.ParseDate(fromDate); err != nil {
			return nil, err
		}
		if toDate.Valid {
			d, err := leave.ParseDate(toDate.String)
			if err != nil {
				return nil, err
			}
			lr.ToDate = &d
		}
		requests = append(requests, lr)
	}
	return requests, rows.Err()
}

func (s *Store) queryDates(ctx context.Context, query string, args ...any) ([]leave.LeaveRequestDate, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave request dates: %w", err)
	}
	defer rows.Close()

	var dates []leave.LeaveRequestDate
	for rows.Next() {
		var d leave.LeaveRequestDate
		var dateStr string
		if err := rows.Scan(&d.ID, &d.LeaveRequestID, &dateStr); err != nil {
			return nil, err
		}
		if d.Date, err = leave.ParseDate(dateStr); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// =============================================================================
// CONTRACTS (leave.Contracts interface)
// =============================================================================

// SaveContract inserts or updates a contract window.
func (s *Store) SaveContract(ctx context.Context, c leave.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts (id, contact_id, period_start_date, period_end_date, deleted)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			contact_id = excluded.contact_id,
			period_start_date = excluded.period_start_date,
			period_end_date = excluded.period_end_date,
			deleted = excluded.deleted`,
		c.ID, c.ContactID, c.PeriodStartDate.String(), nullDate(c.PeriodEndDate), c.Deleted,
	)
	return err
}

// ContractsFor returns the contact's contract windows, deleted ones included.
func (s *Store) ContractsFor(ctx context.Context, contactID int64) ([]leave.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contact_id, period_start_date, period_end_date, deleted
		FROM contracts
		WHERE contact_id = ?
		ORDER BY period_start_date ASC, id ASC`,
		contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []leave.Contract
	for rows.Next() {
		var (
			c     leave.Contract
			start string
			end   sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.ContactID, &start, &end, &c.Deleted); err != nil {
			return nil, err
		}
		if c.PeriodStartDate, err = leave.ParseDate(start); err != nil {
			return nil, err
		}
		if end.Valid {
			d, err := leave.ParseDate(end.String)
			if err != nil {
				return nil, err
			}
			c.PeriodEndDate = &d
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"balance_changes", "leave_request_dates", "leave_requests",
		"entitlements", "contracts", "absence_periods",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func placeholders(n int) string {
	out := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

func nullDate(d *leave.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

var (
	_ leave.Store         = (*Store)(nil)
	_ leave.Entitlements  = (*Store)(nil)
	_ leave.LeaveRequests = (*Store)(nil)
	_ leave.Periods       = (*Store)(nil)
	_ leave.Contracts     = (*Store)(nil)
)
