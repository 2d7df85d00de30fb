// Package registry implements the asset registry core: accounts, assets,
// ownership transfers and the best-effort activity trail.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"assetblock.org/internal/digest"
	"assetblock.org/internal/ids"
)

// Default page sizes for activity listings.
const (
	DefaultActivityLimit    = 20
	DefaultAllActivityLimit = 50
)

// Service defines the registry operations exposed to the API layer.
// Listings are ordered newest first. Mutating operations append an
// activity entry as a side effect; a failed append never fails the
// operation itself.
type Service interface {
	RegisterAccount(ctx context.Context, p RegisterParams) (Account, error)
	GetAccount(ctx context.Context, uid string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)

	UploadAsset(ctx context.Context, p UploadParams) (Asset, error)
	GetAsset(ctx context.Context, id int64) (Asset, error)
	ListAssetsByOwner(ctx context.Context, ownerUID string) ([]Asset, error)
	ListAssets(ctx context.Context) ([]Asset, error)
	SearchAssets(ctx context.Context, query string) ([]Asset, error)
	UpdateAssetStatus(ctx context.Context, id int64, status string) (Asset, error)
	DeleteAsset(ctx context.Context, id int64) error

	TransferAsset(ctx context.Context, p TransferParams) (TransferResult, error)
	TransferHistory(ctx context.Context, assetID int64) ([]TransferRecord, error)

	LogActivity(ctx context.Context, uid, email, action, details string)
	ListActivity(ctx context.Context, uid string, limit int) ([]ActivityEntry, error)
	ListAllActivity(ctx context.Context, limit int) ([]ActivityEntry, error)

	Stats(ctx context.Context) (Stats, error)
}

// InMemory implements Service with in-process concurrency safety. It backs
// the HTTP tests and local development; production runs on the Postgres
// store, which shares these semantics.
type InMemory struct {
	mu         sync.RWMutex
	accounts   map[string]*Account // uid -> account
	assets     map[int64]*Asset
	transfers  []TransferRecord
	activity   []ActivityEntry
	nextAcct   int64
	nextAsset  int64
	nextRecord int64
}

var _ Service = (*InMemory)(nil)

// NewInMemory creates an empty registry.
func NewInMemory() *InMemory {
	return &InMemory{
		accounts: make(map[string]*Account),
		assets:   make(map[int64]*Asset),
	}
}

func (s *InMemory) RegisterAccount(ctx context.Context, p RegisterParams) (Account, error) {
	uid := strings.TrimSpace(p.UID)
	email := strings.TrimSpace(p.Email)
	if uid == "" || email == "" {
		return Account{}, fmt.Errorf("%w: uid and email are required", ErrInvalidArgument)
	}

	s.mu.Lock()
	if acc, ok := s.accounts[uid]; ok {
		out := *acc
		s.mu.Unlock()
		return out, nil
	}
	if s.findByEmail(email) != nil {
		s.mu.Unlock()
		return Account{}, ErrEmailTaken
	}
	username := strings.TrimSpace(p.Username)
	if username == "" {
		username = localPart(email)
	}
	role := strings.TrimSpace(p.Role)
	if role == "" {
		role = RoleClient
	}
	s.nextAcct++
	acc := &Account{
		ID:        s.nextAcct,
		UID:       uid,
		Email:     email,
		Username:  username,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	s.accounts[uid] = acc
	out := *acc
	s.mu.Unlock()

	s.LogActivity(ctx, uid, email, ActionRegister, "New user registered")
	return out, nil
}

func (s *InMemory) GetAccount(ctx context.Context, uid string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[uid]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *acc, nil
}

func (s *InMemory) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acc := s.findByEmail(email); acc != nil {
		return *acc, nil
	}
	return Account{}, ErrNotFound
}

func (s *InMemory) ListAccounts(ctx context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		res = append(res, *acc)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	return res, nil
}

func (s *InMemory) UploadAsset(ctx context.Context, p UploadParams) (Asset, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return Asset{}, fmt.Errorf("%w: asset name is required", ErrInvalidArgument)
	}
	hash := digest.Sum(p.Content)

	s.mu.Lock()
	for _, a := range s.assets {
		if a.Hash == hash {
			dup := &DuplicateError{ExistingID: a.ID, ExistingName: a.Name}
			s.mu.Unlock()
			return Asset{}, dup
		}
	}
	fileType := strings.TrimSpace(p.FileType)
	if fileType == "" {
		fileType = "unknown"
	}
	now := time.Now().UTC()
	s.nextAsset++
	asset := &Asset{
		ID:          s.nextAsset,
		Name:        name,
		Hash:        hash,
		FileType:    fileType,
		FileSize:    int64(len(p.Content)),
		Description: p.Description,
		Status:      StatusActive,
		OwnerUID:    p.OwnerUID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.assets[asset.ID] = asset
	out := s.joined(asset)
	s.mu.Unlock()

	s.LogActivity(ctx, p.OwnerUID, p.OwnerEmail, ActionUpload,
		fmt.Sprintf("Uploaded %q [hash: %s...]", name, digest.Short(hash)))
	return out, nil
}

func (s *InMemory) GetAsset(ctx context.Context, id int64) (Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return Asset{}, ErrNotFound
	}
	return s.joined(a), nil
}

func (s *InMemory) ListAssetsByOwner(ctx context.Context, ownerUID string) ([]Asset, error) {
	return s.listWhere(func(a *Asset) bool { return a.OwnerUID == ownerUID })
}

func (s *InMemory) ListAssets(ctx context.Context) ([]Asset, error) {
	return s.listWhere(func(a *Asset) bool { return true })
}

func (s *InMemory) SearchAssets(ctx context.Context, query string) ([]Asset, error) {
	q := strings.ToLower(query)
	return s.listWhere(func(a *Asset) bool {
		return strings.Contains(strings.ToLower(a.Name), q) ||
			strings.Contains(strings.ToLower(a.Hash), q) ||
			strings.Contains(strings.ToLower(a.Description), q)
	})
}

func (s *InMemory) UpdateAssetStatus(ctx context.Context, id int64, status string) (Asset, error) {
	if !ValidStatus(status) {
		return Asset{}, ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return Asset{}, ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	return s.joined(a), nil
}

func (s *InMemory) DeleteAsset(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[id]; !ok {
		return ErrNotFound
	}
	delete(s.assets, id)
	kept := s.transfers[:0]
	for _, tr := range s.transfers {
		if tr.AssetID != id {
			kept = append(kept, tr)
		}
	}
	s.transfers = kept
	return nil
}

func (s *InMemory) TransferAsset(ctx context.Context, p TransferParams) (TransferResult, error) {
	s.mu.Lock()
	asset, ok := s.assets[p.AssetID]
	if !ok {
		s.mu.Unlock()
		return TransferResult{}, ErrNotFound
	}
	// Ownership before recipient resolution: a non-owner never learns
	// whether the recipient email is registered.
	if asset.OwnerUID != p.FromUID {
		s.mu.Unlock()
		return TransferResult{}, ErrForbidden
	}
	recipient := s.findByEmail(p.ToEmail)
	if recipient == nil {
		s.mu.Unlock()
		return TransferResult{}, ErrRecipientNotFound
	}
	if recipient.UID == p.FromUID {
		s.mu.Unlock()
		return TransferResult{}, ErrSelfTransfer
	}
	senderEmail := ""
	if sender, ok := s.accounts[p.FromUID]; ok {
		senderEmail = sender.Email
	}

	asset.OwnerUID = recipient.UID
	asset.UpdatedAt = time.Now().UTC()
	s.nextRecord++
	s.transfers = append(s.transfers, TransferRecord{
		ID:            s.nextRecord,
		AssetID:       asset.ID,
		FromUID:       p.FromUID,
		ToUID:         recipient.UID,
		FromEmail:     senderEmail,
		ToEmail:       recipient.Email,
		Note:          p.Note,
		TransferredAt: asset.UpdatedAt,
	})
	res := TransferResult{
		AssetID:       asset.ID,
		NewOwnerUID:   recipient.UID,
		NewOwnerEmail: recipient.Email,
	}
	s.mu.Unlock()

	s.LogActivity(ctx, p.FromUID, senderEmail, ActionTransfer,
		fmt.Sprintf("Transferred asset #%d to %s", p.AssetID, recipient.Email))
	return res, nil
}

func (s *InMemory) TransferHistory(ctx context.Context, assetID int64) ([]TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := []TransferRecord{}
	for _, tr := range s.transfers {
		if tr.AssetID == assetID {
			res = append(res, tr)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	return res, nil
}

func (s *InMemory) LogActivity(ctx context.Context, uid, email, action, details string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, ActivityEntry{
		ID:        ids.New(),
		UID:       uid,
		Email:     email,
		Action:    action,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	})
}

func (s *InMemory) ListActivity(ctx context.Context, uid string, limit int) ([]ActivityEntry, error) {
	return s.listActivity(func(e ActivityEntry) bool { return e.UID == uid }, limit, DefaultActivityLimit), nil
}

func (s *InMemory) ListAllActivity(ctx context.Context, limit int) ([]ActivityEntry, error) {
	return s.listActivity(func(e ActivityEntry) bool { return true }, limit, DefaultAllActivityLimit), nil
}

func (s *InMemory) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		TotalUsers:     int64(len(s.accounts)),
		TotalAssets:    int64(len(s.assets)),
		TotalTransfers: int64(len(s.transfers)),
	}
	for _, a := range s.assets {
		switch a.Status {
		case StatusActive:
			st.ActiveAssets++
		case StatusPending:
			st.PendingAssets++
		}
	}
	return st, nil
}

// --- helpers (callers hold the lock where noted) ---

// joined fills the denormalised owner columns; lock held.
func (s *InMemory) joined(a *Asset) Asset {
	out := *a
	if acc, ok := s.accounts[a.OwnerUID]; ok {
		out.OwnerEmail = acc.Email
		out.OwnerName = acc.Username
	}
	return out
}

// findByEmail resolves an account by exact email; lock held.
func (s *InMemory) findByEmail(email string) *Account {
	for _, acc := range s.accounts {
		if acc.Email == email {
			return acc
		}
	}
	return nil
}

func (s *InMemory) listWhere(match func(*Asset) bool) ([]Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := []Asset{}
	for _, a := range s.assets {
		if match(a) {
			res = append(res, s.joined(a))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	return res, nil
}

func (s *InMemory) listActivity(match func(ActivityEntry) bool, limit, def int) []ActivityEntry {
	if limit <= 0 {
		limit = def
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := []ActivityEntry{}
	for i := len(s.activity) - 1; i >= 0 && len(res) < limit; i-- {
		if match(s.activity[i]) {
			res = append(res, s.activity[i])
		}
	}
	return res
}

func localPart(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}
