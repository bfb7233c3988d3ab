package sequence

import (
	"sync"
	"testing"
)

func TestSequencer_Monotonic(t *testing.T) {
	s := New(0)
	for want := uint64(1); want <= 5; want++ {
		if got := s.Next(); got != want {
			t.Fatalf("Next() = %d, want %d", got, want)
		}
	}
	if s.Current() != 5 {
		t.Errorf("Current() = %d, want 5", s.Current())
	}

	s.Reset(41)
	if got := s.Next(); got != 42 {
		t.Errorf("Next() after Reset(41) = %d, want 42", got)
	}
}

func TestSequencer_ConcurrentUnique(t *testing.T) {
	s := New(0)
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[uint64]bool, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, s.Next())
			}
			mu.Lock()
			for _, id := range local {
				if seen[id] {
					t.Errorf("duplicate id %d", id)
				}
				seen[id] = true
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("issued %d ids, want %d", len(seen), workers*perWorker)
	}
	if s.Current() != workers*perWorker {
		t.Errorf("Current() = %d", s.Current())
	}
}
