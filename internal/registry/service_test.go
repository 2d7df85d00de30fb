package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func register(t *testing.T, s Service, uid, email string) Account {
	t.Helper()
	acc, err := s.RegisterAccount(context.Background(), RegisterParams{UID: uid, Email: email})
	if err != nil {
		t.Fatalf("register %s: %v", uid, err)
	}
	return acc
}

func upload(t *testing.T, s Service, owner Account, name string, content []byte) Asset {
	t.Helper()
	a, err := s.UploadAsset(context.Background(), UploadParams{
		Content:    content,
		OwnerUID:   owner.UID,
		OwnerEmail: owner.Email,
		Name:       name,
	})
	if err != nil {
		t.Fatalf("upload %s: %v", name, err)
	}
	return a
}

func TestRegisterIdempotent(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	first := register(t, s, "u1", "alice@example.com")
	if first.Username != "alice" {
		t.Fatalf("username should default to email local-part, got %q", first.Username)
	}
	if first.Role != RoleClient {
		t.Fatalf("role should default to client, got %q", first.Role)
	}

	second, err := s.RegisterAccount(ctx, RegisterParams{UID: "u1", Email: "other@example.com", Username: "someone"})
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if second.ID != first.ID || second.Email != first.Email || second.Username != first.Username {
		t.Fatalf("re-registration must return the existing account unchanged: %+v vs %+v", second, first)
	}

	all, _ := s.ListAccounts(ctx)
	if len(all) != 1 {
		t.Fatalf("expected a single account row, got %d", len(all))
	}
}

func TestRegisterDuplicateEmailRejected(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	register(t, s, "u1", "a@x.com")

	if _, err := s.RegisterAccount(ctx, RegisterParams{UID: "u2", Email: "a@x.com"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken for a second uid on the same email, got %v", err)
	}

	all, _ := s.ListAccounts(ctx)
	if len(all) != 1 {
		t.Fatalf("duplicate email must not create an account, got %d rows", len(all))
	}
	acc, err := s.GetAccountByEmail(ctx, "a@x.com")
	if err != nil || acc.UID != "u1" {
		t.Fatalf("email lookup must stay unambiguous: %+v, %v", acc, err)
	}
}

func TestUploadDuplicateRejected(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	alice := register(t, s, "u1", "alice@example.com")
	bob := register(t, s, "u2", "bob@example.com")

	first := upload(t, s, alice, "report.pdf", []byte("identical bytes"))
	if first.Status != StatusActive {
		t.Fatalf("new assets must start Active, got %s", first.Status)
	}
	if first.FileType != "unknown" {
		t.Fatalf("missing content type must default to unknown, got %q", first.FileType)
	}
	if first.FileSize != int64(len("identical bytes")) {
		t.Fatalf("unexpected size %d", first.FileSize)
	}

	// Same bytes under a different name and owner are still a duplicate.
	_, err := s.UploadAsset(ctx, UploadParams{
		Content:    []byte("identical bytes"),
		OwnerUID:   bob.UID,
		OwnerEmail: bob.Email,
		Name:       "copy.pdf",
	})
	if !errors.Is(err, ErrDuplicateAsset) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected *DuplicateError, got %T", err)
	}
	if dup.ExistingID != first.ID || dup.ExistingName != "report.pdf" {
		t.Fatalf("conflict must reference the first asset: %+v", dup)
	}
}

func TestTransferInvariant(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	alice := register(t, s, "u1", "a@x.com")
	bob := register(t, s, "u2", "b@x.com")
	asset := upload(t, s, alice, "hello.txt", []byte("hello"))

	res, err := s.TransferAsset(ctx, TransferParams{AssetID: asset.ID, FromUID: alice.UID, ToEmail: bob.Email})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.NewOwnerUID != bob.UID || res.NewOwnerEmail != bob.Email {
		t.Fatalf("unexpected result: %+v", res)
	}

	got, err := s.GetAsset(ctx, asset.ID)
	if err != nil {
		t.Fatalf("get asset: %v", err)
	}
	if got.OwnerUID != bob.UID {
		t.Fatalf("owner not updated: %s", got.OwnerUID)
	}
	if got.OwnerEmail != bob.Email || got.OwnerName != "b" {
		t.Fatalf("owner join missing: %+v", got)
	}

	hist, err := s.TransferHistory(ctx, asset.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(hist))
	}
	rec := hist[0]
	if rec.FromUID != alice.UID || rec.ToUID != bob.UID || rec.FromEmail != "a@x.com" || rec.ToEmail != "b@x.com" {
		t.Fatalf("ledger row wrong: %+v", rec)
	}

	// Stale sender: alice no longer owns the asset.
	if _, err := s.TransferAsset(ctx, TransferParams{AssetID: asset.ID, FromUID: alice.UID, ToEmail: bob.Email}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on stale transfer, got %v", err)
	}
}

func TestTransferRejections(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	alice := register(t, s, "u1", "a@x.com")
	asset := upload(t, s, alice, "hello.txt", []byte("hello"))

	if _, err := s.TransferAsset(ctx, TransferParams{AssetID: 404, FromUID: alice.UID, ToEmail: "b@x.com"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing asset: expected ErrNotFound, got %v", err)
	}
	if _, err := s.TransferAsset(ctx, TransferParams{AssetID: asset.ID, FromUID: alice.UID, ToEmail: "ghost@x.com"}); !errors.Is(err, ErrRecipientNotFound) {
		t.Fatalf("unregistered recipient: expected ErrRecipientNotFound, got %v", err)
	}
	if _, err := s.TransferAsset(ctx, TransferParams{AssetID: asset.ID, FromUID: alice.UID, ToEmail: alice.Email}); !errors.Is(err, ErrSelfTransfer) {
		t.Fatalf("self transfer: expected ErrSelfTransfer, got %v", err)
	}
	// Ownership is checked before the recipient is resolved, so a
	// non-owner learns nothing about which emails are registered.
	if _, err := s.TransferAsset(ctx, TransferParams{AssetID: asset.ID, FromUID: "intruder", ToEmail: "ghost@x.com"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner with unknown recipient: expected ErrForbidden, got %v", err)
	}

	got, _ := s.GetAsset(ctx, asset.ID)
	if got.OwnerUID != alice.UID {
		t.Fatalf("owner changed by a rejected transfer: %s", got.OwnerUID)
	}
	hist, _ := s.TransferHistory(ctx, asset.ID)
	if len(hist) != 0 {
		t.Fatalf("rejected transfers must not append ledger rows, got %d", len(hist))
	}
}

func TestStatusDomain(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	alice := register(t, s, "u1", "a@x.com")
	asset := upload(t, s, alice, "hello.txt", []byte("hello"))

	if _, err := s.UpdateAssetStatus(ctx, asset.ID, "Archived"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	updated, err := s.UpdateAssetStatus(ctx, asset.ID, StatusSuspended)
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if updated.Status != StatusSuspended {
		t.Fatalf("status not applied: %s", updated.Status)
	}
	got, _ := s.GetAsset(ctx, asset.ID)
	if got.Status != StatusSuspended {
		t.Fatalf("status not visible on read: %s", got.Status)
	}
	if !got.UpdatedAt.After(got.CreatedAt) && !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Fatalf("updated_at went backwards: %v < %v", got.UpdatedAt, got.CreatedAt)
	}
}

func TestCascadeDelete(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	alice := register(t, s, "u1", "a@x.com")
	bob := register(t, s, "u2", "b@x.com")
	asset := upload(t, s, alice, "hello.txt", []byte("hello"))

	if _, err := s.TransferAsset(ctx, TransferParams{AssetID: asset.ID, FromUID: alice.UID, ToEmail: bob.Email}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := s.DeleteAsset(ctx, asset.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetAsset(ctx, asset.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	hist, err := s.TransferHistory(ctx, asset.ID)
	if err != nil {
		t.Fatalf("history after delete must not error: %v", err)
	}
	if len(hist) != 0 {
		t.Fatalf("transfer records must cascade, got %d", len(hist))
	}
	if err := s.DeleteAsset(ctx, asset.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete: expected ErrNotFound, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	alice := register(t, s, "u1", "a@x.com")

	report, err := s.UploadAsset(ctx, UploadParams{
		Content: []byte("q1"), OwnerUID: alice.UID, OwnerEmail: alice.Email,
		Name: "Report.pdf", Description: "Q1 numbers",
	})
	if err != nil {
		t.Fatalf("upload report: %v", err)
	}
	if _, err := s.UploadAsset(ctx, UploadParams{
		Content: []byte("beach"), OwnerUID: alice.UID, OwnerEmail: alice.Email,
		Name: "Photo.png", Description: "vacation",
	}); err != nil {
		t.Fatalf("upload photo: %v", err)
	}

	res, err := s.SearchAssets(ctx, "report")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 1 || res[0].ID != report.ID {
		t.Fatalf("case-insensitive name search failed: %+v", res)
	}

	// Fingerprint prefix also matches.
	res, _ = s.SearchAssets(ctx, report.Hash[:12])
	if len(res) != 1 || res[0].ID != report.ID {
		t.Fatalf("hash search failed: %+v", res)
	}

	// Empty query is an unfiltered listing, newest first.
	res, _ = s.SearchAssets(ctx, "")
	if len(res) != 2 || res[0].Name != "Photo.png" {
		t.Fatalf("empty query must list everything newest first: %+v", res)
	}
}

func TestActivityAndStats(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	alice := register(t, s, "u1", "a@x.com")
	bob := register(t, s, "u2", "b@x.com")
	asset := upload(t, s, alice, "hello.txt", []byte("hello"))
	if _, err := s.TransferAsset(ctx, TransferParams{AssetID: asset.ID, FromUID: alice.UID, ToEmail: bob.Email}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	mine, err := s.ListActivity(ctx, alice.UID, 0)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	// REGISTER, UPLOAD, TRANSFER for alice; newest first.
	if len(mine) != 3 || mine[0].Action != ActionTransfer || mine[2].Action != ActionRegister {
		t.Fatalf("unexpected activity: %+v", mine)
	}

	all, err := s.ListAllActivity(ctx, 2)
	if err != nil {
		t.Fatalf("list all activity: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("limit not applied: %d", len(all))
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := Stats{TotalUsers: 2, TotalAssets: 1, TotalTransfers: 1, ActiveAssets: 1}
	if st != want {
		t.Fatalf("stats mismatch: %+v want %+v", st, want)
	}
}

func TestEndToEndScenario(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	u1 := register(t, s, "u1", "a@x.com")
	asset := upload(t, s, u1, "hello.txt", []byte("hello"))
	if asset.ID != 1 || asset.Status != StatusActive {
		t.Fatalf("unexpected first asset: %+v", asset)
	}

	u2 := register(t, s, "u2", "b@x.com")
	if _, err := s.TransferAsset(ctx, TransferParams{AssetID: 1, FromUID: u1.UID, ToEmail: "b@x.com"}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	got, _ := s.GetAsset(ctx, 1)
	if got.OwnerUID != u2.UID {
		t.Fatalf("asset 1 should now belong to u2, got %s", got.OwnerUID)
	}
	hist, _ := s.TransferHistory(ctx, 1)
	if len(hist) != 1 || hist[0].FromEmail != "a@x.com" || hist[0].ToEmail != "b@x.com" {
		t.Fatalf("unexpected history: %+v", hist)
	}

	if _, err := s.TransferAsset(ctx, TransferParams{AssetID: 1, FromUID: u1.UID, ToEmail: "b@x.com"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("u1 no longer owns asset 1: expected ErrForbidden, got %v", err)
	}
}

func TestConcurrentUploadsSingleWinner(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	alice := register(t, s, "u1", "a@x.com")

	var wg sync.WaitGroup
	var mu sync.Mutex
	okCount := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UploadAsset(ctx, UploadParams{
				Content: []byte("same content"), OwnerUID: alice.UID, OwnerEmail: alice.Email, Name: "race.bin",
			})
			if err == nil {
				mu.Lock()
				okCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if okCount != 1 {
		t.Fatalf("fingerprint uniqueness violated: %d uploads succeeded", okCount)
	}
}
