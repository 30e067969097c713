package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"psurops/internal/errors"
	"psurops/internal/projection"
	"psurops/internal/record"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, backend Backend) (*Store, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)}
	s := NewStore(backend, Options{Clock: c.Now, Timeout: time.Second})
	t.Cleanup(func() { _ = s.Close() })
	return s, c
}

// storeSuite runs the behavioral contract against any backend.
func storeSuite(t *testing.T, open func(t *testing.T) Backend) {
	ctx := context.Background()

	t.Run("create derives due date and generates identifier", func(t *testing.T) {
		s, _ := newTestStore(t, open(t))
		r, err := s.Create(ctx, &record.Record{PeriodEnd: "2024-06-30", Writer: "Ana"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if r.Identifier != "TD001" {
			t.Errorf("Identifier = %q, want TD001", r.Identifier)
		}
		if r.DueDate != "2024-07-30" {
			t.Errorf("DueDate = %q, want 2024-07-30", r.DueDate)
		}
		if r.Version != 1 || r.RowID == 0 {
			t.Errorf("Version = %d RowID = %d", r.Version, r.RowID)
		}

		r2, err := s.Create(ctx, &record.Record{})
		if err != nil {
			t.Fatal(err)
		}
		if r2.Identifier != "TD002" {
			t.Errorf("second Identifier = %q, want TD002", r2.Identifier)
		}
	})

	t.Run("duplicates are tolerated and read in insertion order", func(t *testing.T) {
		s, _ := newTestStore(t, open(t))
		a, _ := s.Create(ctx, &record.Record{Identifier: "TD001", Writer: "A"})
		b, _ := s.Create(ctx, &record.Record{Identifier: "TD001", Writer: "B"})

		first, err := s.ReadByIdentifier(ctx, "TD001")
		if err != nil {
			t.Fatal(err)
		}
		if first.RowID != a.RowID {
			t.Errorf("ReadByIdentifier returned row %d, want %d", first.RowID, a.RowID)
		}
		all, err := s.ReadAllByIdentifier(ctx, "TD001")
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 2 || all[0].RowID != a.RowID || all[1].RowID != b.RowID {
			t.Errorf("ReadAllByIdentifier = %v", all)
		}
		dups, _ := s.DuplicateIdentifiers(ctx)
		if len(dups) != 1 || dups[0] != "TD001" {
			t.Errorf("DuplicateIdentifiers = %v", dups)
		}
		none, err := s.ReadAllByIdentifier(ctx, "TD404")
		if err != nil || len(none) != 0 {
			t.Errorf("ReadAllByIdentifier(missing) = %v, %v", none, err)
		}
	})

	t.Run("update touches only the first duplicate and bumps version by one", func(t *testing.T) {
		s, c := newTestStore(t, open(t))
		a, _ := s.Create(ctx, &record.Record{Identifier: "TD001", Status: "Not Started", PeriodEnd: "2024-01-31"})
		b, _ := s.Create(ctx, &record.Record{Identifier: "TD001", Status: "Not Started"})
		c.Advance(time.Hour)

		updated, err := s.Update(ctx, "TD001", map[string]interface{}{
			"identifier": "TD999",
			"status":     "Done",
			"End Period": "2024-03-31",
		})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if updated.Identifier != "TD001" {
			t.Errorf("identifier changed to %q", updated.Identifier)
		}
		if updated.Version != a.Version+1 {
			t.Errorf("Version = %d, want %d", updated.Version, a.Version+1)
		}
		if updated.DueDate != "2024-04-30" {
			t.Errorf("DueDate = %q, want 2024-04-30", updated.DueDate)
		}
		if !updated.UpdatedAt.After(a.UpdatedAt) {
			t.Error("UpdatedAt not advanced")
		}

		all, _ := s.ReadAllByIdentifier(ctx, "TD001")
		if all[1].RowID != b.RowID || all[1].Status != "Not Started" || all[1].Version != 1 {
			t.Errorf("second duplicate changed: %+v", all[1])
		}
		if _, err := s.ReadByIdentifier(ctx, "TD999"); !errors.Is(err, errors.NotFound) {
			t.Errorf("TD999 should not exist, got %v", err)
		}
	})

	t.Run("update rejects only-immutable and unknown fields", func(t *testing.T) {
		s, _ := newTestStore(t, open(t))
		_, _ = s.Create(ctx, &record.Record{Identifier: "TD001"})

		_, err := s.Update(ctx, "TD001", map[string]interface{}{"version": 9, "due_date": "2030-01-01"})
		if !errors.Is(err, errors.ImmutableField) {
			t.Errorf("expected IMMUTABLE_FIELD, got %v", err)
		}
		_, err = s.Update(ctx, "TD001", map[string]interface{}{"colour": "red"})
		if !errors.Is(err, errors.ValidationError) {
			t.Errorf("expected VALIDATION_ERROR, got %v", err)
		}
		_, err = s.Update(ctx, "TD404", map[string]interface{}{"status": "x"})
		if !errors.Is(err, errors.NotFound) {
			t.Errorf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("delete removes every duplicate", func(t *testing.T) {
		s, _ := newTestStore(t, open(t))
		_, _ = s.Create(ctx, &record.Record{Identifier: "TD001"})
		_, _ = s.Create(ctx, &record.Record{Identifier: "TD001"})
		_, _ = s.Create(ctx, &record.Record{Identifier: "TD002"})

		n, err := s.Delete(ctx, "TD001")
		if err != nil || n != 2 {
			t.Fatalf("Delete() = %d, %v", n, err)
		}
		rest, _ := s.ReadAllByIdentifier(ctx, "TD001")
		if len(rest) != 0 {
			t.Errorf("rows remain: %v", rest)
		}
		if _, err := s.Delete(ctx, "TD001"); !errors.Is(err, errors.NotFound) {
			t.Errorf("second delete: %v", err)
		}
	})

	t.Run("delete row keeps other duplicates", func(t *testing.T) {
		s, _ := newTestStore(t, open(t))
		a, _ := s.Create(ctx, &record.Record{Identifier: "TD001"})
		b, _ := s.Create(ctx, &record.Record{Identifier: "TD001"})
		if err := s.DeleteRow(ctx, a.RowID); err != nil {
			t.Fatal(err)
		}
		first, err := s.ReadByIdentifier(ctx, "TD001")
		if err != nil || first.RowID != b.RowID {
			t.Errorf("ReadByIdentifier after DeleteRow = %v, %v", first, err)
		}
		if err := s.DeleteRow(ctx, a.RowID); !errors.Is(err, errors.NotFound) {
			t.Errorf("DeleteRow(missing) = %v", err)
		}
	})

	t.Run("healing read persists corrected due date", func(t *testing.T) {
		backend := open(t)
		s, _ := newTestStore(t, backend)
		created, _ := s.Create(ctx, &record.Record{Identifier: "TD001", PeriodEnd: "2024-06-30"})

		stale := created.Clone()
		stale.DueDate = "1999-01-01"
		if ok, err := backend.Replace(ctx, stale, created.Version); err != nil || !ok {
			t.Fatalf("corrupting row: %v %v", ok, err)
		}

		pure, err := s.ReadByIdentifier(ctx, "TD001", Pure())
		if err != nil {
			t.Fatal(err)
		}
		if pure.DueDate != "2024-07-30" || pure.Version != created.Version {
			t.Errorf("pure read = due %q version %d", pure.DueDate, pure.Version)
		}
		raw, _ := backend.Get(ctx, created.RowID)
		if raw.DueDate != "1999-01-01" {
			t.Errorf("pure read wrote to the backend: %q", raw.DueDate)
		}

		healed, err := s.ReadByIdentifier(ctx, "TD001")
		if err != nil {
			t.Fatal(err)
		}
		if healed.DueDate != "2024-07-30" || healed.Version != created.Version+1 {
			t.Errorf("healed = due %q version %d", healed.DueDate, healed.Version)
		}
		raw, _ = backend.Get(ctx, created.RowID)
		if raw.DueDate != "2024-07-30" {
			t.Errorf("heal not persisted: %q", raw.DueDate)
		}
	})

	t.Run("malformed period end yields absent due sorted last", func(t *testing.T) {
		s, _ := newTestStore(t, open(t))
		_, _ = s.Create(ctx, &record.Record{Identifier: "TD002", PeriodEnd: "garbage"})
		_, _ = s.Create(ctx, &record.Record{Identifier: "TD001", PeriodEnd: "2025-06-01"})

		rs, err := s.Filter(ctx, projection.Criteria{})
		if err != nil {
			t.Fatal(err)
		}
		if len(rs) != 2 || rs[0].Identifier != "TD001" || rs[1].DueDate != "" {
			t.Errorf("Filter order = %v", rs)
		}
		within, _ := s.Filter(ctx, projection.Criteria{WithinDays: projection.Days(365)})
		if len(within) != 1 || within[0].Identifier != "TD001" {
			t.Errorf("WithinDays = %v", within)
		}
	})

	t.Run("secondary key lookup", func(t *testing.T) {
		s, _ := newTestStore(t, open(t))
		_, _ = s.Create(ctx, &record.Record{Identifier: "TD001", ReportNumber: "PSUR045"})
		r, err := s.ReadBySecondaryKey(ctx, "psur045")
		if err != nil || r.Identifier != "TD001" {
			t.Errorf("ReadBySecondaryKey = %v, %v", r, err)
		}
		if _, err := s.ReadBySecondaryKey(ctx, "PSUR999"); !errors.Is(err, errors.NotFound) {
			t.Errorf("missing key: %v", err)
		}
	})

	t.Run("notes are append only", func(t *testing.T) {
		s, c := newTestStore(t, open(t))
		_, _ = s.Create(ctx, &record.Record{Identifier: "TD001"})
		if _, err := s.AppendNote(ctx, "TD001", "first"); err != nil {
			t.Fatal(err)
		}
		c.Advance(time.Minute)
		_, _ = s.Update(ctx, "TD001", map[string]interface{}{"status": "Done", "notes": "overwrite"})
		r, err := s.AppendNote(ctx, "TD001", "second")
		if err != nil {
			t.Fatal(err)
		}
		want := "[2025-06-15 09:00] first\n[2025-06-15 09:01] second"
		if r.Notes != want {
			t.Errorf("Notes = %q, want %q", r.Notes, want)
		}
		if _, err := s.AppendNote(ctx, "TD001", "   "); !errors.Is(err, errors.ValidationError) {
			t.Errorf("blank note: %v", err)
		}
	})

	t.Run("statistics and missing fields", func(t *testing.T) {
		s, _ := newTestStore(t, open(t))
		_, _ = s.Create(ctx, &record.Record{Identifier: "TD001", PeriodEnd: "2025-05-01", Status: "Done", Writer: "Ana"})
		_, _ = s.Create(ctx, &record.Record{Identifier: "TD001", PeriodEnd: "2025-06-01"})
		_, _ = s.Create(ctx, &record.Record{Identifier: "TD002"})

		st, err := s.Statistics(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if st.Total != 3 || st.Overdue != 1 || st.DueWithin30 != 1 {
			t.Errorf("stats = %+v", st)
		}
		if st.ByWriter["Unassigned"] != 2 || st.ByStatus["Unknown"] != 2 {
			t.Errorf("defaults = %v %v", st.ByWriter, st.ByStatus)
		}
		if len(st.Duplicates) != 1 {
			t.Errorf("duplicates = %v", st.Duplicates)
		}

		missing, err := s.FindMissing(ctx, []string{"Writer", "due_date"})
		if err != nil {
			t.Fatal(err)
		}
		if len(missing) != 2 {
			t.Errorf("FindMissing = %d entries", len(missing))
		}
		if _, err := s.FindMissing(ctx, []string{"nope"}); !errors.Is(err, errors.ValidationError) {
			t.Errorf("unknown field: %v", err)
		}
	})

	t.Run("search is case-insensitive and limited", func(t *testing.T) {
		s, _ := newTestStore(t, open(t))
		_, _ = s.Create(ctx, &record.Record{Identifier: "TD002", ProductName: "Cardiac Stent"})
		_, _ = s.Create(ctx, &record.Record{Identifier: "TD001", ProductName: "Stent Delivery System"})
		_, _ = s.Create(ctx, &record.Record{Identifier: "TD003", ProductName: "Catheter"})

		rs, err := s.Search(ctx, "STENT", 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(rs) != 1 || rs[0].Identifier != "TD001" {
			t.Errorf("Search = %v", rs)
		}
	})

	t.Run("reload replaces everything", func(t *testing.T) {
		s, _ := newTestStore(t, open(t))
		_, _ = s.Create(ctx, &record.Record{Identifier: "TD050"})
		n, err := s.Reload(ctx, []*record.Record{
			{Identifier: "TD010", PeriodEnd: "2025-01-01"},
			{Identifier: ""},
		})
		if err != nil || n != 2 {
			t.Fatalf("Reload = %d, %v", n, err)
		}
		all, _ := s.All(ctx)
		if len(all) != 2 || all[0].DueDate != "2025-01-31" || all[1].Identifier != "TD011" {
			t.Errorf("after reload = %+v", all)
		}
	})

	t.Run("concurrent updates each bump version once", func(t *testing.T) {
		s, _ := newTestStore(t, open(t))
		created, _ := s.Create(ctx, &record.Record{Identifier: "TD001"})

		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.AppendNote(ctx, "TD001", "hello")
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("AppendNote: %v", err)
			}
		}
		final, _ := s.ReadByIdentifier(ctx, "TD001")
		if final.Version != created.Version+writers {
			t.Errorf("Version = %d, want %d", final.Version, created.Version+writers)
		}
	})

	t.Run("concurrent creates get distinct identifiers", func(t *testing.T) {
		s, _ := newTestStore(t, open(t))
		assertDistinctAutoIdentifiers(t, s, 8)
	})
}

func assertDistinctAutoIdentifiers(t *testing.T, s *Store, creators int) {
	t.Helper()
	ctx := context.Background()
	var wg sync.WaitGroup
	ids := make(chan string, creators)
	for i := 0; i < creators; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.Create(ctx, &record.Record{PeriodEnd: "2025-01-01"})
			if err != nil {
				t.Errorf("Create() error = %v", err)
				return
			}
			ids <- r.Identifier
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		if seen[id] {
			t.Errorf("identifier %s handed out twice", id)
		}
		seen[id] = true
	}
	dups, err := s.DuplicateIdentifiers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(dups) != 0 {
		t.Errorf("DuplicateIdentifiers() = %v, want none", dups)
	}
}

func TestStore_Memory(t *testing.T) {
	storeSuite(t, func(t *testing.T) Backend { return NewMemoryBackend() })
}

type failingBackend struct {
	*MemoryBackend
}

func (failingBackend) List(ctx context.Context) ([]*record.Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// laggyBackend answers List slowly, like a remote store.
type laggyBackend struct {
	*MemoryBackend
}

func (b laggyBackend) List(ctx context.Context) ([]*record.Record, error) {
	time.Sleep(5 * time.Millisecond)
	return b.MemoryBackend.List(ctx)
}

func TestStore_AutoIdentifiersWithSlowBackend(t *testing.T) {
	s, _ := newTestStore(t, laggyBackend{NewMemoryBackend()})
	assertDistinctAutoIdentifiers(t, s, 5)
	all, err := s.All(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Fatalf("rows = %d, want 5", len(all))
	}
	if all[4].Identifier != "TD005" {
		t.Errorf("last identifier = %q, want TD005", all[4].Identifier)
	}
}

func TestStore_TimeoutIsBackendUnavailable(t *testing.T) {
	s := NewStore(failingBackend{NewMemoryBackend()}, Options{Timeout: 10 * time.Millisecond})
	_, err := s.All(context.Background())
	if !errors.Is(err, errors.BackendUnavailable) {
		t.Fatalf("expected BACKEND_UNAVAILABLE, got %v", err)
	}
}
