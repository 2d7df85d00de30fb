package registry

import (
	"errors"
	"fmt"
	"time"
)

// Roles assigned at registration. Nothing in this package enforces them;
// role-based restrictions are the API caller's responsibility.
const (
	RoleClient = "client"
	RoleAdmin  = "admin"
)

// Asset lifecycle states. Any other value is rejected.
const (
	StatusActive    = "Active"
	StatusPending   = "Pending"
	StatusSuspended = "Suspended"
)

// ValidStatus reports whether s is one of the three recognised states.
func ValidStatus(s string) bool {
	return s == StatusActive || s == StatusPending || s == StatusSuspended
}

// Activity action tags written by the core operations. The column is
// free-form; administrative surfaces may append their own tags.
const (
	ActionRegister = "REGISTER"
	ActionUpload   = "UPLOAD"
	ActionTransfer = "TRANSFER"
	ActionStatus   = "STATUS_UPDATE"
	ActionDelete   = "DELETE"
)

// Account is a registered user, keyed by the identity provider's stable UID.
type Account struct {
	ID        int64     `json:"id"`
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Asset is a registered content item. OwnerUID is empty when the owning
// account has been removed; the asset itself survives.
type Asset struct {
	ID          int64     `json:"id"`
	Name        string    `json:"asset_name"`
	Hash        string    `json:"hash"`
	FileType    string    `json:"file_type"`
	FileSize    int64     `json:"file_size"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	OwnerUID    string    `json:"owner_uid,omitempty"`
	OwnerEmail  string    `json:"owner_email,omitempty"`
	OwnerName   string    `json:"owner_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TransferRecord is one row of an asset's append-only ownership ledger.
// Emails are captured at transfer time, not joined live.
type TransferRecord struct {
	ID            int64     `json:"id"`
	AssetID       int64     `json:"asset_id"`
	FromUID       string    `json:"from_uid"`
	ToUID         string    `json:"to_uid"`
	FromEmail     string    `json:"from_email"`
	ToEmail       string    `json:"to_email"`
	Note          string    `json:"note"`
	TransferredAt time.Time `json:"transferred_at"`
}

// TransferResult confirms a completed ownership change.
type TransferResult struct {
	AssetID       int64  `json:"asset_id"`
	NewOwnerUID   string `json:"new_owner_uid"`
	NewOwnerEmail string `json:"new_owner_email"`
}

// ActivityEntry is a best-effort audit record. Writes never block or fail
// the operation that triggered them.
type ActivityEntry struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats aggregates platform counters for the admin console.
type Stats struct {
	TotalUsers     int64 `json:"total_users"`
	TotalAssets    int64 `json:"total_assets"`
	TotalTransfers int64 `json:"total_transfers"`
	ActiveAssets   int64 `json:"active_assets"`
	PendingAssets  int64 `json:"pending_assets"`
}

// RegisterParams creates or fetches an account. Registration is idempotent
// by UID: re-registering an existing identity returns the stored account.
type RegisterParams struct {
	UID      string
	Email    string
	Username string // defaults to the local-part of Email
	Role     string // defaults to RoleClient
}

// UploadParams registers a new asset.
type UploadParams struct {
	Content     []byte
	OwnerUID    string
	OwnerEmail  string
	Name        string
	FileType    string // defaults to "unknown"
	Description string
}

// TransferParams moves an asset between accounts. The recipient is
// addressed by email and must already be registered.
type TransferParams struct {
	AssetID int64
	FromUID string
	ToEmail string
	Note    string
}

var (
	ErrNotFound          = errors.New("not found")
	ErrRecipientNotFound = errors.New("recipient not found: they must be registered")
	ErrEmailTaken        = errors.New("email already registered to another account")
	ErrForbidden         = errors.New("does not own this asset")
	ErrInvalidStatus     = errors.New("status must be one of Active, Pending, Suspended")
	ErrSelfTransfer      = errors.New("cannot transfer asset to yourself")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrDuplicateAsset    = errors.New("asset already exists")
)

// DuplicateError reports a rejected upload together with the asset that
// already holds the fingerprint, so the owner can locate their original
// registration. errors.Is(err, ErrDuplicateAsset) matches it.
type DuplicateError struct {
	ExistingID   int64
	ExistingName string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("asset already exists: registered to asset #%d (%q)", e.ExistingID, e.ExistingName)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicateAsset }
