// Package pg implements registry.Service on PostgreSQL via database/sql
// and the pgx stdlib driver. Fingerprint uniqueness and referential
// behaviour (owner set-null, history cascade) are enforced by the schema;
// the transfer protocol runs in a single transaction with the asset row
// locked, so concurrent stale-owner transfers serialize.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"assetblock.org/internal/digest"
	"assetblock.org/internal/ids"
	"assetblock.org/internal/obs"
	"assetblock.org/internal/registry"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

var _ registry.Service = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle. Used by tests and cmd wiring.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) RegisterAccount(ctx context.Context, p registry.RegisterParams) (registry.Account, error) {
	uid := strings.TrimSpace(p.UID)
	email := strings.TrimSpace(p.Email)
	if uid == "" || email == "" {
		return registry.Account{}, fmt.Errorf("%w: uid and email are required", registry.ErrInvalidArgument)
	}
	username := strings.TrimSpace(p.Username)
	if username == "" {
		username = localPart(email)
	}
	role := strings.TrimSpace(p.Role)
	if role == "" {
		role = registry.RoleClient
	}

	// Upsert-by-uid: the unique constraint makes registration idempotent
	// without a read-then-write race.
	var acc registry.Account
	err := s.db.QueryRowContext(ctx, `
		insert into accounts(uid, email, username, role)
		values ($1,$2,$3,$4)
		on conflict (uid) do nothing
		returning id, uid, email, username, role, created_at
	`, uid, email, username, role).Scan(&acc.ID, &acc.UID, &acc.Email, &acc.Username, &acc.Role, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s.GetAccount(ctx, uid)
	}
	if err != nil {
		// uid conflicts are absorbed above, so a unique violation here
		// is the email constraint.
		if isUniqueViolation(err) {
			return registry.Account{}, registry.ErrEmailTaken
		}
		return registry.Account{}, err
	}

	s.LogActivity(ctx, uid, email, registry.ActionRegister, "New user registered")
	return acc, nil
}

func (s *Store) GetAccount(ctx context.Context, uid string) (registry.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		select id, uid, email, username, role, created_at from accounts where uid=$1
	`, uid))
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (registry.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		select id, uid, email, username, role, created_at from accounts where email=$1
	`, email))
}

func (s *Store) ListAccounts(ctx context.Context) ([]registry.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, uid, email, username, role, created_at
		from accounts
		order by created_at desc, id desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []registry.Account{}
	for rows.Next() {
		var acc registry.Account
		if err := rows.Scan(&acc.ID, &acc.UID, &acc.Email, &acc.Username, &acc.Role, &acc.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, acc)
	}
	return res, rows.Err()
}

const assetColumns = `
	a.id, a.asset_name, a.hash, a.file_type, a.file_size, a.description,
	a.status, coalesce(a.owner_uid,''), coalesce(u.email,''), coalesce(u.username,''),
	a.created_at, a.updated_at`

func (s *Store) UploadAsset(ctx context.Context, p registry.UploadParams) (registry.Asset, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return registry.Asset{}, fmt.Errorf("%w: asset name is required", registry.ErrInvalidArgument)
	}
	hash := digest.Sum(p.Content)

	if dup, err := s.findByHash(ctx, hash); err != nil {
		return registry.Asset{}, err
	} else if dup != nil {
		return registry.Asset{}, dup
	}

	fileType := strings.TrimSpace(p.FileType)
	if fileType == "" {
		fileType = "unknown"
	}

	var asset registry.Asset
	err := s.db.QueryRowContext(ctx, `
		insert into assets(asset_name, hash, file_type, file_size, description, owner_uid)
		values ($1,$2,$3,$4,$5,$6)
		returning id, asset_name, hash, file_type, file_size, description, status, created_at, updated_at
	`, name, hash, fileType, int64(len(p.Content)), p.Description, p.OwnerUID).Scan(
		&asset.ID, &asset.Name, &asset.Hash, &asset.FileType, &asset.FileSize,
		&asset.Description, &asset.Status, &asset.CreatedAt, &asset.UpdatedAt,
	)
	if err != nil {
		// Concurrent upload of the same bytes: the constraint decides the
		// winner, the loser gets the usual conflict.
		if isUniqueViolation(err) {
			if dup, ferr := s.findByHash(ctx, hash); ferr == nil && dup != nil {
				return registry.Asset{}, dup
			}
		}
		return registry.Asset{}, err
	}
	asset.OwnerUID = p.OwnerUID
	asset.OwnerEmail = p.OwnerEmail

	s.LogActivity(ctx, p.OwnerUID, p.OwnerEmail, registry.ActionUpload,
		fmt.Sprintf("Uploaded %q [hash: %s...]", name, digest.Short(hash)))
	return asset, nil
}

func (s *Store) GetAsset(ctx context.Context, id int64) (registry.Asset, error) {
	return s.scanAsset(s.db.QueryRowContext(ctx, `
		select `+assetColumns+`
		from assets a
		left join accounts u on a.owner_uid = u.uid
		where a.id=$1
	`, id))
}

func (s *Store) ListAssetsByOwner(ctx context.Context, ownerUID string) ([]registry.Asset, error) {
	return s.listAssets(ctx, `
		select `+assetColumns+`
		from assets a
		left join accounts u on a.owner_uid = u.uid
		where a.owner_uid=$1
		order by a.created_at desc, a.id desc
	`, ownerUID)
}

func (s *Store) ListAssets(ctx context.Context) ([]registry.Asset, error) {
	return s.listAssets(ctx, `
		select `+assetColumns+`
		from assets a
		left join accounts u on a.owner_uid = u.uid
		order by a.created_at desc, a.id desc
	`)
}

func (s *Store) SearchAssets(ctx context.Context, query string) ([]registry.Asset, error) {
	pattern := "%" + query + "%"
	return s.listAssets(ctx, `
		select `+assetColumns+`
		from assets a
		left join accounts u on a.owner_uid = u.uid
		where a.asset_name ilike $1 or a.hash ilike $1 or a.description ilike $1
		order by a.created_at desc, a.id desc
	`, pattern)
}

func (s *Store) UpdateAssetStatus(ctx context.Context, id int64, status string) (registry.Asset, error) {
	if !registry.ValidStatus(status) {
		return registry.Asset{}, registry.ErrInvalidStatus
	}
	res, err := s.db.ExecContext(ctx, `
		update assets set status=$2, updated_at=now() where id=$1
	`, id, status)
	if err != nil {
		return registry.Asset{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return registry.Asset{}, registry.ErrNotFound
	}
	return s.GetAsset(ctx, id)
}

func (s *Store) DeleteAsset(ctx context.Context, id int64) error {
	// Transfer records go with the asset via the FK cascade.
	res, err := s.db.ExecContext(ctx, `delete from assets where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return registry.ErrNotFound
	}
	return nil
}

func (s *Store) TransferAsset(ctx context.Context, p registry.TransferParams) (registry.TransferResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return registry.TransferResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the asset row: a concurrent transfer of the same asset waits
	// here and then sees the new owner.
	var owner sql.NullString
	err = tx.QueryRowContext(ctx, `
		select owner_uid from assets where id=$1 for update
	`, p.AssetID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.TransferResult{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.TransferResult{}, err
	}
	if !owner.Valid || owner.String != p.FromUID {
		return registry.TransferResult{}, registry.ErrForbidden
	}

	var toUID, toEmail string
	err = tx.QueryRowContext(ctx, `
		select uid, email from accounts where email=$1
	`, p.ToEmail).Scan(&toUID, &toEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.TransferResult{}, registry.ErrRecipientNotFound
	}
	if err != nil {
		return registry.TransferResult{}, err
	}
	if toUID == p.FromUID {
		return registry.TransferResult{}, registry.ErrSelfTransfer
	}

	// Capture the sender email for the ledger. Missing sender row should
	// not happen once the ownership check passed; fall back to empty.
	var fromEmail string
	err = tx.QueryRowContext(ctx, `select email from accounts where uid=$1`, p.FromUID).Scan(&fromEmail)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return registry.TransferResult{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		update assets set owner_uid=$2, updated_at=now() where id=$1
	`, p.AssetID, toUID); err != nil {
		return registry.TransferResult{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into transfer_records(asset_id, from_uid, to_uid, from_email, to_email, note)
		values ($1,$2,$3,$4,$5,$6)
	`, p.AssetID, p.FromUID, toUID, fromEmail, toEmail, p.Note); err != nil {
		return registry.TransferResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return registry.TransferResult{}, err
	}

	// Outside the transaction on purpose: a failed activity write must not
	// roll back the transfer.
	s.LogActivity(ctx, p.FromUID, fromEmail, registry.ActionTransfer,
		fmt.Sprintf("Transferred asset #%d to %s", p.AssetID, toEmail))

	return registry.TransferResult{
		AssetID:       p.AssetID,
		NewOwnerUID:   toUID,
		NewOwnerEmail: toEmail,
	}, nil
}

func (s *Store) TransferHistory(ctx context.Context, assetID int64) ([]registry.TransferRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, asset_id, from_uid, to_uid, from_email, to_email, note, transferred_at
		from transfer_records
		where asset_id=$1
		order by transferred_at desc, id desc
	`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []registry.TransferRecord{}
	for rows.Next() {
		var tr registry.TransferRecord
		if err := rows.Scan(&tr.ID, &tr.AssetID, &tr.FromUID, &tr.ToUID, &tr.FromEmail, &tr.ToEmail, &tr.Note, &tr.TransferredAt); err != nil {
			return nil, err
		}
		res = append(res, tr)
	}
	return res, rows.Err()
}

// LogActivity appends to the activity trail. Best effort by contract:
// failures are logged and discarded, never surfaced to the caller.
func (s *Store) LogActivity(ctx context.Context, uid, email, action, details string) {
	_, err := s.db.ExecContext(ctx, `
		insert into activity_entries(id, uid, email, action, details)
		values ($1,$2,$3,$4,$5)
	`, ids.New(), uid, email, action, details)
	if err != nil {
		obs.LogRequest(map[string]any{
			"ts":     time.Now().UTC().Format(time.RFC3339Nano),
			"level":  "warn",
			"msg":    "activity append failed",
			"action": action,
			"error":  err.Error(),
		})
	}
}

func (s *Store) ListActivity(ctx context.Context, uid string, limit int) ([]registry.ActivityEntry, error) {
	if limit <= 0 {
		limit = registry.DefaultActivityLimit
	}
	return s.listActivity(ctx, `
		select id, uid, email, action, details, created_at
		from activity_entries
		where uid=$1
		order by created_at desc, id desc
		limit $2
	`, uid, limit)
}

func (s *Store) ListAllActivity(ctx context.Context, limit int) ([]registry.ActivityEntry, error) {
	if limit <= 0 {
		limit = registry.DefaultAllActivityLimit
	}
	return s.listActivity(ctx, `
		select id, uid, email, action, details, created_at
		from activity_entries
		order by created_at desc, id desc
		limit $1
	`, limit)
}

func (s *Store) Stats(ctx context.Context) (registry.Stats, error) {
	var st registry.Stats
	err := s.db.QueryRowContext(ctx, `
		select
			(select count(*) from accounts),
			(select count(*) from assets),
			(select count(*) from transfer_records),
			(select count(*) from assets where status='Active'),
			(select count(*) from assets where status='Pending')
	`).Scan(&st.TotalUsers, &st.TotalAssets, &st.TotalTransfers, &st.ActiveAssets, &st.PendingAssets)
	if err != nil {
		return registry.Stats{}, err
	}
	return st, nil
}

// --- helpers ---

func (s *Store) scanAccount(row *sql.Row) (registry.Account, error) {
	var acc registry.Account
	err := row.Scan(&acc.ID, &acc.UID, &acc.Email, &acc.Username, &acc.Role, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Account{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.Account{}, err
	}
	return acc, nil
}

func (s *Store) scanAsset(row *sql.Row) (registry.Asset, error) {
	var a registry.Asset
	err := row.Scan(&a.ID, &a.Name, &a.Hash, &a.FileType, &a.FileSize, &a.Description,
		&a.Status, &a.OwnerUID, &a.OwnerEmail, &a.OwnerName, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Asset{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.Asset{}, err
	}
	return a, nil
}

func (s *Store) listAssets(ctx context.Context, query string, args ...any) ([]registry.Asset, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []registry.Asset{}
	for rows.Next() {
		var a registry.Asset
		if err := rows.Scan(&a.ID, &a.Name, &a.Hash, &a.FileType, &a.FileSize, &a.Description,
			&a.Status, &a.OwnerUID, &a.OwnerEmail, &a.OwnerName, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *Store) listActivity(ctx context.Context, query string, args ...any) ([]registry.ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []registry.ActivityEntry{}
	for rows.Next() {
		var e registry.ActivityEntry
		if err := rows.Scan(&e.ID, &e.UID, &e.Email, &e.Action, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (s *Store) findByHash(ctx context.Context, hash string) (*registry.DuplicateError, error) {
	var id int64
	var name string
	err := s.db.QueryRowContext(ctx, `
		select id, asset_name from assets where hash=$1
	`, hash).Scan(&id, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &registry.DuplicateError{ExistingID: id, ExistingName: name}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func localPart(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}
