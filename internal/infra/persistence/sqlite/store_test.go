package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"casetrack/pkg/domain"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreReloadsSnapshotAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casetrack.db")
	store := openTestStore(t, path)

	var (
		req domain.Request
		c   domain.Case
		seq int
	)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var txErr error
		req, txErr = tx.CreateRequest(domain.Request{
			RequestingUnit:       "101",
			TargetUnit:           "012",
			DeviceCountRequested: 2,
			Status:               domain.RequestStatusAwaitingMaterial,
		})
		if txErr != nil {
			return txErr
		}
		c, txErr = tx.CreateCase(domain.Case{Unit: "012", Year: 2026, Status: domain.CaseStatusDraft, Priority: domain.PriorityMedium})
		if txErr != nil {
			return txErr
		}
		seq, txErr = tx.AllocateSequence("012", 2026)
		return txErr
	})
	if err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	if seq != 1 {
		t.Fatalf("first sequence = %d, want 1", seq)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openTestStore(t, path)
	gotReq, ok := reopened.GetRequest(domain.UnrestrictedScope(), req.ID)
	if !ok {
		t.Fatalf("request %s not hydrated after reopen", req.ID)
	}
	if gotReq.TargetUnit != "012" || gotReq.Version != 1 {
		t.Fatalf("hydrated request = %+v", gotReq)
	}
	gotCase, ok := reopened.GetCase(domain.UnrestrictedScope(), c.ID)
	if !ok {
		t.Fatalf("case %s not hydrated after reopen", c.ID)
	}
	if gotCase.Unit != "012" || gotCase.Status != domain.CaseStatusDraft {
		t.Fatalf("hydrated case = %+v", gotCase)
	}

	// Sequence counters survive the restart; the next allocation continues.
	_, err = reopened.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var txErr error
		seq, txErr = tx.AllocateSequence("012", 2026)
		return txErr
	})
	if err != nil {
		t.Fatalf("allocate after reopen: %v", err)
	}
	if seq != 2 {
		t.Fatalf("sequence after reopen = %d, want 2", seq)
	}
}

func TestStoreWritesSnapshotTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casetrack.db")
	store := openTestStore(t, path)
	if store.Path() != path {
		t.Fatalf("path = %q, want %q", store.Path(), path)
	}

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, txErr := tx.CreateRequest(domain.Request{
			RequestingUnit:       "101",
			TargetUnit:           "012",
			DeviceCountRequested: 1,
			Status:               domain.RequestStatusAwaitingMaterial,
		})
		return txErr
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	var buckets int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&buckets); err != nil {
		t.Fatalf("count buckets: %v", err)
	}
	if buckets != len(sqliteBuckets) {
		t.Fatalf("snapshot buckets = %d, want %d", buckets, len(sqliteBuckets))
	}
}

func TestStoreFailedTransactionDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casetrack.db")
	store := openTestStore(t, path)

	sentinel := errors.New("abort")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, txErr := tx.CreateCase(domain.Case{Unit: "012", Year: 2026, Status: domain.CaseStatusDraft, Priority: domain.PriorityMedium}); txErr != nil {
			return txErr
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openTestStore(t, path)
	if got := reopened.ListCases(domain.UnrestrictedScope()); len(got) != 0 {
		t.Fatalf("rolled back case leaked to disk: %v", got)
	}
}
