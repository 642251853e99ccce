package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"casetrack/pkg/domain"
)

func allocate(t *testing.T, store *Store, unit string, year int) int {
	t.Helper()
	var got int
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var txErr error
		got, txErr = tx.AllocateSequence(unit, year)
		return txErr
	})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	return got
}

func TestAllocateSequenceStartsAtOneAndCounts(t *testing.T) {
	store := newTestStore(t)
	for want := 1; want <= 3; want++ {
		if got := allocate(t, store, "012", 2026); got != want {
			t.Fatalf("allocation %d returned %d", want, got)
		}
	}
}

func TestAllocateSequenceIsPerUnitAndYear(t *testing.T) {
	store := newTestStore(t)
	if got := allocate(t, store, "012", 2026); got != 1 {
		t.Fatalf("first 012/2026 allocation = %d", got)
	}
	if got := allocate(t, store, "034", 2026); got != 1 {
		t.Fatalf("other unit should have its own counter, got %d", got)
	}
	if got := allocate(t, store, "012", 2027); got != 1 {
		t.Fatalf("other year should have its own counter, got %d", got)
	}
	if got := allocate(t, store, "012", 2026); got != 2 {
		t.Fatalf("012/2026 should continue at 2, got %d", got)
	}
}

func TestAllocateSequenceRolledBackIsNotConsumed(t *testing.T) {
	store := newTestStore(t)
	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, txErr := tx.AllocateSequence("012", 2026); txErr != nil {
			return txErr
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected rollback error, got %v", err)
	}
	if got := allocate(t, store, "012", 2026); got != 1 {
		t.Fatalf("rolled-back allocation must not consume the number, got %d", got)
	}
}

func TestAllocateSequenceRejectsBadInput(t *testing.T) {
	store := newTestStore(t)
	for _, tc := range []struct {
		unit string
		year int
	}{
		{"", 2026},
		{"012", 0},
		{"012", -3},
	} {
		_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
			_, txErr := tx.AllocateSequence(tc.unit, tc.year)
			return txErr
		})
		var unavailable *domain.SequenceUnavailableError
		if !errors.As(err, &unavailable) {
			t.Fatalf("allocate(%q, %d) should fail, got %v", tc.unit, tc.year, err)
		}
	}
}

func TestAllocateSequenceConcurrentAllocationsAreDistinct(t *testing.T) {
	store := newTestStore(t)
	const workers = 16

	var wg sync.WaitGroup
	results := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
				seq, txErr := tx.AllocateSequence("012", 2026)
				if txErr != nil {
					return txErr
				}
				results <- seq
				return nil
			})
			if err != nil {
				t.Errorf("allocate: %v", err)
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool)
	for seq := range results {
		if seen[seq] {
			t.Fatalf("sequence %d issued twice", seq)
		}
		seen[seq] = true
	}
	for want := 1; want <= workers; want++ {
		if !seen[want] {
			t.Fatalf("sequence %d never issued", want)
		}
	}
}
