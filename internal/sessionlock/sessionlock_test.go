package sessionlock

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/voicelayer/voicelayer/internal/proc"
)

// alwaysAlive is a liveness probe that reports every PID as a live process
// owned by the caller.
func alwaysAlive(int) proc.Status { return proc.StatusAlive }

// alwaysDead reports every PID as gone.
func alwaysDead(int) proc.Status { return proc.StatusDead }

func TestAcquire_FreeLock_Succeeds(t *testing.T) {
	m := New(&MemStore{}, WithPID(111), WithLiveness(alwaysAlive))

	lock, err := m.Acquire("mcp")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if lock.PID != 111 {
		t.Errorf("lock.PID = %d, want 111", lock.PID)
	}
	if lock.SessionID != "mcp-111" {
		t.Errorf("lock.SessionID = %q, want %q", lock.SessionID, "mcp-111")
	}
	if lock.StartedAt.IsZero() {
		t.Error("lock.StartedAt is zero")
	}
}

func TestAcquire_HeldByLiveOther_ReturnsBusyWithOwner(t *testing.T) {
	store := &MemStore{}
	a := New(store, WithPID(111), WithLiveness(alwaysAlive))
	b := New(store, WithPID(222), WithLiveness(alwaysAlive))

	winner, err := a.Acquire("mcp")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	_, err = b.Acquire("mcp")
	var busy *BusyError
	if !errors.As(err, &busy) {
		t.Fatalf("second Acquire error = %v, want *BusyError", err)
	}
	if busy.Owner.SessionID != "mcp-111" {
		t.Errorf("busy owner session = %q, want %q", busy.Owner.SessionID, "mcp-111")
	}
	if !busy.Owner.StartedAt.Equal(winner.StartedAt) {
		t.Errorf("busy owner timestamp = %v, want %v", busy.Owner.StartedAt, winner.StartedAt)
	}
}

func TestAcquire_SelfAcquire_IsIdempotent(t *testing.T) {
	store := &MemStore{}
	m := New(store, WithPID(111), WithLiveness(alwaysAlive))

	first, err := m.Acquire("mcp")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	second, err := m.Acquire("mcp")
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if second.PID != first.PID || second.SessionID != first.SessionID || !second.StartedAt.Equal(first.StartedAt) {
		t.Errorf("second Acquire returned %+v, want the original %+v", second, first)
	}
}

func TestAcquire_DeadOwner_IsReclaimed(t *testing.T) {
	store := &MemStore{}
	stale, _ := json.Marshal(Lock{PID: 999999, SessionID: "mcp-999999", StartedAt: time.Now().UTC()})
	if err := store.Create(stale); err != nil {
		t.Fatalf("seed stale record: %v", err)
	}

	m := New(store, WithPID(333), WithLiveness(alwaysDead))
	lock, err := m.Acquire("mcp")
	if err != nil {
		t.Fatalf("Acquire over stale lock: %v", err)
	}
	if lock.PID != 333 {
		t.Errorf("reclaimed lock PID = %d, want 333", lock.PID)
	}
}

func TestAcquire_ForeignAliveOwner_IsNotReclaimed(t *testing.T) {
	// EPERM while signaling means "a different user's live process": busy.
	store := &MemStore{}
	held, _ := json.Marshal(Lock{PID: 444, SessionID: "mcp-444", StartedAt: time.Now().UTC()})
	if err := store.Create(held); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	m := New(store, WithPID(555), WithLiveness(func(int) proc.Status { return proc.StatusAliveForeign }))
	_, err := m.Acquire("mcp")
	var busy *BusyError
	if !errors.As(err, &busy) {
		t.Fatalf("Acquire error = %v, want *BusyError", err)
	}
	if busy.Owner.PID != 444 {
		t.Errorf("busy owner PID = %d, want 444", busy.Owner.PID)
	}
}

func TestAcquire_CorruptRecord_IsReclaimed(t *testing.T) {
	store := &MemStore{}
	if err := store.Create([]byte("not json")); err != nil {
		t.Fatalf("seed corrupt record: %v", err)
	}

	m := New(store, WithPID(111), WithLiveness(alwaysAlive))
	if _, err := m.Acquire("mcp"); err != nil {
		t.Fatalf("Acquire over corrupt record: %v", err)
	}
}

// raceStore reports no existing record but fails Create with ErrExists,
// simulating a concurrent acquirer winning between the read and the write.
type raceStore struct {
	MemStore
}

func (s *raceStore) Read() ([]byte, error) { return nil, ErrNotExist }
func (s *raceStore) Create([]byte) error   { return ErrExists }

func TestAcquire_LostCreateRace_IsBusy(t *testing.T) {
	m := New(&raceStore{}, WithPID(111), WithLiveness(alwaysAlive))
	_, err := m.Acquire("mcp")
	var busy *BusyError
	if !errors.As(err, &busy) {
		t.Fatalf("Acquire error = %v, want *BusyError", err)
	}
}

func TestAcquire_StorageFailure_Propagates(t *testing.T) {
	ioErr := errors.New("disk on fire")
	m := New(&MemStore{CreateErr: ioErr}, WithPID(111), WithLiveness(alwaysAlive))
	if _, err := m.Acquire("mcp"); !errors.Is(err, ioErr) {
		t.Fatalf("Acquire error = %v, want wrapped %v", err, ioErr)
	}
}

func TestAcquire_ConcurrentDistinctProcesses_ExactlyOneWins(t *testing.T) {
	store := &MemStore{}

	const contenders = 16
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		locks  []Lock
		busies []*BusyError
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			m := New(store, WithPID(pid), WithLiveness(alwaysAlive))
			lock, err := m.Acquire("mcp")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				locks = append(locks, lock)
				return
			}
			var busy *BusyError
			if errors.As(err, &busy) {
				busies = append(busies, busy)
				return
			}
			t.Errorf("pid %d: unexpected error %v", pid, err)
		}(1000 + i)
	}
	wg.Wait()

	if len(locks) != 1 {
		t.Fatalf("%d acquires succeeded, want exactly 1", len(locks))
	}
	winner := locks[0]
	for _, busy := range busies {
		// A loser that read the record sees exactly the winner's identity.
		if busy.Owner.PID != 0 && busy.Owner.PID != winner.PID {
			t.Errorf("loser saw owner pid %d, want %d", busy.Owner.PID, winner.PID)
		}
	}
	if len(locks)+len(busies) != contenders {
		t.Errorf("accounted for %d outcomes, want %d", len(locks)+len(busies), contenders)
	}
}

func TestRelease_OwnLock_RemovesRecord(t *testing.T) {
	store := &MemStore{}
	m := New(store, WithPID(111), WithLiveness(alwaysAlive))
	if _, err := m.Acquire("mcp"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := m.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := store.Read(); !errors.Is(err, ErrNotExist) {
		t.Errorf("record still present after Release")
	}
}

func TestRelease_ForeignLock_LeavesRecord(t *testing.T) {
	store := &MemStore{}
	owner := New(store, WithPID(111), WithLiveness(alwaysAlive))
	if _, err := owner.Acquire("mcp"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	other := New(store, WithPID(222), WithLiveness(alwaysAlive))
	if err := other.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := store.Read(); err != nil {
		t.Error("foreign lock record was deleted")
	}
}

func TestRelease_NoRecord_IsNoop(t *testing.T) {
	m := New(&MemStore{}, WithPID(111))
	if err := m.Release(); err != nil {
		t.Fatalf("Release on empty store: %v", err)
	}
}

func TestStatus_Transitions(t *testing.T) {
	store := &MemStore{}
	us := New(store, WithPID(111), WithLiveness(alwaysAlive))
	them := New(store, WithPID(222), WithLiveness(alwaysAlive))

	holder, _, err := us.Status()
	if err != nil || holder != Free {
		t.Fatalf("Status on empty store = %v, %v; want Free", holder, err)
	}

	if _, err := us.Acquire("mcp"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	holder, lock, err := us.Status()
	if err != nil || holder != HeldByUs {
		t.Fatalf("owner Status = %v, %v; want HeldByUs", holder, err)
	}
	if lock.SessionID != "mcp-111" {
		t.Errorf("Status lock session = %q, want %q", lock.SessionID, "mcp-111")
	}

	holder, lock, err = them.Status()
	if err != nil || holder != HeldByOther {
		t.Fatalf("other Status = %v, %v; want HeldByOther", holder, err)
	}
	if lock.PID != 111 {
		t.Errorf("Status lock PID = %d, want 111", lock.PID)
	}
}

func TestFileStore_CreateReadRemove_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicelayer", "mic.lock")
	store := NewFileStore(path)

	if _, err := store.Read(); !errors.Is(err, ErrNotExist) {
		t.Fatalf("Read on missing file = %v, want ErrNotExist", err)
	}
	if err := store.Create([]byte(`{"pid":1}`)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create([]byte(`{"pid":2}`)); !errors.Is(err, ErrExists) {
		t.Fatalf("second Create = %v, want ErrExists", err)
	}
	data, err := store.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != `{"pid":1}` {
		t.Errorf("Read = %q, want the first record", data)
	}
	if err := store.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := store.Remove(); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
}

func TestFileStore_DeadOwnerReclaim_EndToEnd(t *testing.T) {
	// Real liveness probe against a PID that cannot exist.
	path := filepath.Join(t.TempDir(), "mic.lock")
	store := NewFileStore(path)
	stale, _ := json.Marshal(Lock{PID: 999999, SessionID: "mcp-999999", StartedAt: time.Now().UTC()})
	if err := store.Create(stale); err != nil {
		t.Fatalf("seed: %v", err)
	}

	m := New(store)
	lock, err := m.Acquire("mcp")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	data, err := store.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var onDisk Lock
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if onDisk.PID != lock.PID {
		t.Errorf("record PID = %d, want %d", onDisk.PID, lock.PID)
	}
}
