package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
	"github.com/felixgeelhaar/milestone/pkg/domain/syncstate"
	"github.com/felixgeelhaar/milestone/pkg/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// fakeRemote is an in-memory blob store. When gate is non-nil every push
// waits for a value on it; the value is the error the push returns.
type fakeRemote struct {
	mu       sync.Mutex
	blob     roadmap.Snapshot
	exists   bool
	fetchErr error
	pushErr  error
	gate     chan error
	pushed   []roadmap.Snapshot
	fetches  int
}

func (f *fakeRemote) Fetch(ctx context.Context) (roadmap.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if !f.exists {
		return nil, roadmap.ErrNotFound
	}
	return f.blob.Clone(), nil
}

func (f *fakeRemote) Push(ctx context.Context, snap roadmap.Snapshot) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()

	var err error
	if gate != nil {
		err = <-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		err = f.pushErr
	}
	f.pushed = append(f.pushed, snap)
	if err == nil {
		f.blob = snap.Clone()
		f.exists = true
	}
	return err
}

func (f *fakeRemote) set(snap roadmap.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blob = snap
	f.exists = true
}

func (f *fakeRemote) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushed)
}

type fakeLocal struct {
	mu      sync.Mutex
	stored  roadmap.Snapshot
	readErr error
	saves   int
}

func (f *fakeLocal) Load() roadmap.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stored == nil {
		return roadmap.Default()
	}
	return f.stored.Clone()
}

func (f *fakeLocal) Read() (roadmap.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.stored.Clone(), nil
}

func (f *fakeLocal) Save(snap roadmap.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.stored = snap.Clone()
}

const testWindow = 2500 * time.Millisecond

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func remoteSnapshot() roadmap.Snapshot {
	return roadmap.Snapshot{{
		ID: 1, Name: "Auth", Priority: roadmap.PriorityP1, Effort: 5,
		Subtasks: []roadmap.SubTask{
			{ID: "1-1", Name: "Login", Completed: true},
			{ID: "1-2", Name: "Refresh token", Completed: false},
		},
	}}
}

func newSharedController(t *testing.T, remote *fakeRemote, clock *fakeClock) *SyncController {
	t.Helper()
	c, err := NewSyncController(remote, nil, SyncOptions{
		SuppressionWindow: testWindow,
		Logger:            quietLogger(),
		Clock:             clock.Now,
	})
	if err != nil {
		t.Fatalf("NewSyncController: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func waitPushes(t *testing.T, c *SyncController) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("pushes did not finish: %v", err)
	}
}

func TestNewSyncController_StoreSelection(t *testing.T) {
	if _, err := NewSyncController(nil, nil, SyncOptions{}); err == nil {
		t.Error("expected error without stores")
	}
	if _, err := NewSyncController(&fakeRemote{}, &fakeLocal{}, SyncOptions{}); err == nil {
		t.Error("expected error with both stores")
	}

	c, err := NewSyncController(nil, &fakeLocal{}, SyncOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if c.Variant() != VariantStandalone {
		t.Errorf("Variant() = %s", c.Variant())
	}
	if !c.Snapshot().Equal(roadmap.Default()) {
		t.Error("working snapshot should start as the bundled roadmap")
	}
}

func TestStart_AdoptsRemote(t *testing.T) {
	remote := &fakeRemote{}
	remote.set(remoteSnapshot())
	c := newSharedController(t, remote, newFakeClock())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	view := c.View()
	if !view.Snapshot.Equal(remoteSnapshot()) {
		t.Error("expected remote snapshot to be adopted")
	}
	if view.State != syncstate.Idle || view.LastSync.IsZero() {
		t.Errorf("unexpected view state %s, lastSync %v", view.State, view.LastSync)
	}
	if remote.pushCount() != 0 {
		t.Errorf("expected no pushes, got %d", remote.pushCount())
	}
}

func TestStart_NotFoundSeedsOnce(t *testing.T) {
	remote := &fakeRemote{}
	c := newSharedController(t, remote, newFakeClock())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitPushes(t, c)

	if remote.pushCount() != 1 {
		t.Fatalf("expected exactly one seeding push, got %d", remote.pushCount())
	}
	if !remote.pushed[0].Equal(roadmap.Default()) {
		t.Error("seeding push should carry the bundled roadmap")
	}
	if !c.Snapshot().Equal(roadmap.Default()) {
		t.Error("bundled roadmap should be adopted locally")
	}
	if c.View().Offline() {
		t.Error("seeding success should not leave the error flag set")
	}
}

func TestStart_NetworkErrorDoesNotSeed(t *testing.T) {
	remote := &fakeRemote{fetchErr: &roadmap.NetworkError{Op: "fetch", StatusCode: 503}}
	c := newSharedController(t, remote, newFakeClock())

	err := c.Start(context.Background())
	if !errors.Is(err, roadmap.ErrNetwork) {
		t.Fatalf("Start() err = %v, want network error", err)
	}
	waitPushes(t, c)

	if remote.pushCount() != 0 {
		t.Errorf("expected zero seeding pushes, got %d", remote.pushCount())
	}
	view := c.View()
	if !view.Offline() {
		t.Error("expected error flag")
	}
	if !view.Snapshot.Equal(roadmap.Default()) {
		t.Error("expected bundled roadmap as working snapshot")
	}
}

func TestToggle_AppliesLocallyAndPushes(t *testing.T) {
	remote := &fakeRemote{}
	remote.set(remoteSnapshot())
	c := newSharedController(t, remote, newFakeClock())
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	view := c.ToggleSubtask(1, "1-2")
	want := roadmap.Stats{TotalSubtasks: 2, CompletedSubtasks: 2, Percentage: 100}
	if view.Stats != want {
		t.Errorf("Stats = %+v, want %+v", view.Stats, want)
	}

	waitPushes(t, c)
	if remote.pushCount() != 1 {
		t.Fatalf("expected one push, got %d", remote.pushCount())
	}
	if !remote.pushed[0].Equal(view.Snapshot) {
		t.Error("push should carry the new snapshot")
	}
	if c.View().State != syncstate.Idle {
		t.Errorf("state after push = %s", c.View().State)
	}
}

func TestToggle_UnknownIDDoesNotPush(t *testing.T) {
	remote := &fakeRemote{}
	remote.set(remoteSnapshot())
	c := newSharedController(t, remote, newFakeClock())
	_ = c.Start(context.Background())

	before := c.View()
	after := c.ToggleSubtask(1, "nope")
	c.ToggleAccordion(99)
	waitPushes(t, c)

	if remote.pushCount() != 0 {
		t.Errorf("no-op intents should not push, got %d", remote.pushCount())
	}
	if after.Revision != before.Revision {
		t.Error("no-op intent should not produce a new revision")
	}
}

func TestRefresh_SuppressionWindow(t *testing.T) {
	const epsilon = time.Millisecond

	tests := []struct {
		name    string
		elapsed time.Duration
		force   bool
		adopt   bool
	}{
		{"just inside window", testWindow - epsilon, false, false},
		{"just outside window", testWindow + epsilon, false, true},
		{"forced inside window", testWindow - epsilon, true, true},
		{"immediately", 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			remote := &fakeRemote{}
			remote.set(remoteSnapshot())
			c := newSharedController(t, remote, clock)
			if err := c.Start(context.Background()); err != nil {
				t.Fatal(err)
			}

			writeAt := clock.Now()
			local := c.ToggleSubtask(1, "1-2").Snapshot
			waitPushes(t, c)

			// Another writer replaces the blob after our push landed.
			other := roadmap.ToggleSubtask(remoteSnapshot(), 1, "1-1")
			remote.set(other)

			clock.Set(writeAt.Add(tt.elapsed))
			if err := c.Refresh(context.Background(), tt.force); err != nil {
				t.Fatalf("Refresh: %v", err)
			}

			got := c.Snapshot()
			if tt.adopt && !got.Equal(other) {
				t.Error("expected remote snapshot to be adopted")
			}
			if !tt.adopt && !got.Equal(local) {
				t.Error("expected local snapshot to be kept")
			}
		})
	}
}

func TestRefresh_NewerLocalWriteSupersedes(t *testing.T) {
	clock := newFakeClock()
	remote := &fakeRemote{}
	remote.set(remoteSnapshot())
	c := newSharedController(t, remote, clock)
	_ = c.Start(context.Background())

	t0 := clock.Now()
	c.ToggleSubtask(1, "1-2")
	waitPushes(t, c)

	clock.Set(t0.Add(2 * time.Second))
	local := c.ToggleAccordion(1).Snapshot
	waitPushes(t, c)
	remote.set(remoteSnapshot())

	// Outside the first write's window but inside the second's.
	clock.Set(t0.Add(testWindow + time.Millisecond))
	_ = c.Refresh(context.Background(), false)

	if !c.Snapshot().Equal(local) {
		t.Error("newer local write should suppress the inbound snapshot")
	}
}

func TestRefresh_FailureKeepsSnapshotAndSuccessClearsFlag(t *testing.T) {
	clock := newFakeClock()
	remote := &fakeRemote{}
	remote.set(remoteSnapshot())
	c := newSharedController(t, remote, clock)
	_ = c.Start(context.Background())

	remote.mu.Lock()
	remote.fetchErr = &roadmap.NetworkError{Op: "fetch", Err: errors.New("dial tcp: refused")}
	remote.mu.Unlock()

	if err := c.Refresh(context.Background(), false); !errors.Is(err, roadmap.ErrNetwork) {
		t.Fatalf("Refresh() err = %v", err)
	}
	if !c.View().Offline() {
		t.Fatal("expected error flag after failed fetch")
	}
	if !c.Snapshot().Equal(remoteSnapshot()) {
		t.Error("last known good snapshot should be retained")
	}

	remote.mu.Lock()
	remote.fetchErr = nil
	remote.mu.Unlock()

	if err := c.ForceSync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.View().Offline() {
		t.Error("successful fetch should clear the error flag")
	}
}

func TestPushFailure_NoRollback(t *testing.T) {
	remote := &fakeRemote{}
	remote.set(remoteSnapshot())
	c := newSharedController(t, remote, newFakeClock())
	_ = c.Start(context.Background())

	remote.mu.Lock()
	remote.pushErr = &roadmap.NetworkError{Op: "push", StatusCode: 500}
	remote.mu.Unlock()

	toggled := c.ToggleSubtask(1, "1-2").Snapshot
	waitPushes(t, c)

	view := c.View()
	if !view.Offline() || view.Syncing() {
		t.Errorf("expected offline and not syncing, got %s", view.State)
	}
	if !view.Snapshot.Equal(toggled) {
		t.Error("failed push must not roll back the local change")
	}
}

func TestConcurrentPushes_StateTracksInFlight(t *testing.T) {
	remote := &fakeRemote{}
	remote.set(remoteSnapshot())
	c := newSharedController(t, remote, newFakeClock())
	_ = c.Start(context.Background())

	remote.mu.Lock()
	remote.gate = make(chan error)
	gate := remote.gate
	remote.mu.Unlock()

	c.ToggleSubtask(1, "1-2")
	second := c.ToggleAccordion(1)
	if second.State != syncstate.Syncing {
		t.Fatalf("expected syncing with two pushes in flight, got %s", second.State)
	}

	gate <- errors.New("first push lost")
	waitState(t, c, syncstate.Resyncing)

	gate <- nil
	waitState(t, c, syncstate.Idle)

	if remote.pushCount() != 2 {
		t.Errorf("expected one push per mutation, got %d", remote.pushCount())
	}
}

func waitState(t *testing.T, c *SyncController, want syncstate.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.View().State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", c.View().State, want)
}

func TestClose_IgnoresLateResults(t *testing.T) {
	remote := &fakeRemote{}
	remote.set(remoteSnapshot())
	c := newSharedController(t, remote, newFakeClock())
	_ = c.Start(context.Background())

	remote.mu.Lock()
	remote.gate = make(chan error)
	gate := remote.gate
	remote.mu.Unlock()

	c.ToggleSubtask(1, "1-2")
	c.Close()
	before := c.View()

	gate <- nil
	waitPushes(t, c)

	if after := c.View(); after.Revision != before.Revision || after.State != before.State {
		t.Errorf("closed controller changed: %+v -> %+v", before.State, after.State)
	}
	if err := c.Refresh(context.Background(), true); err != nil {
		t.Errorf("Refresh after Close should be ignored, got %v", err)
	}
}

func TestReplace_PushesEvenWhenEqual(t *testing.T) {
	remote := &fakeRemote{}
	remote.set(remoteSnapshot())
	c := newSharedController(t, remote, newFakeClock())
	_ = c.Start(context.Background())

	c.Replace(remoteSnapshot())
	waitPushes(t, c)

	if remote.pushCount() != 1 {
		t.Errorf("import should push immediately, got %d pushes", remote.pushCount())
	}
}

func TestSubscribe(t *testing.T) {
	remote := &fakeRemote{}
	remote.set(remoteSnapshot())
	c := newSharedController(t, remote, newFakeClock())

	var mu sync.Mutex
	var views []View
	unsubscribe := c.Subscribe(func(v View) {
		mu.Lock()
		defer mu.Unlock()
		views = append(views, v)
	})

	_ = c.Start(context.Background())
	c.ToggleSubtask(1, "1-2")
	waitPushes(t, c)
	unsubscribe()
	c.ToggleSubtask(1, "1-2")
	waitPushes(t, c)

	mu.Lock()
	defer mu.Unlock()
	// start, toggle, push completion
	if len(views) != 3 {
		t.Fatalf("expected 3 views, got %d", len(views))
	}
	for i := 1; i < len(views); i++ {
		if views[i].Revision <= views[i-1].Revision {
			t.Errorf("revisions not increasing: %d then %d", views[i-1].Revision, views[i].Revision)
		}
	}
}

func TestRun_PollsUntilClosed(t *testing.T) {
	remote := &fakeRemote{}
	remote.set(remoteSnapshot())
	c, err := NewSyncController(remote, nil, SyncOptions{
		PollInterval: 10 * time.Millisecond,
		Logger:       quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	_ = c.Start(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	changed := roadmap.ToggleAccordion(remoteSnapshot(), 1)
	remote.set(changed)

	deadline := time.Now().Add(2 * time.Second)
	for !c.Snapshot().Equal(changed) {
		if time.Now().After(deadline) {
			t.Fatal("poll loop never adopted the remote change")
		}
		time.Sleep(5 * time.Millisecond)
	}

	c.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after Close")
	}
}

func TestStandalone_LoadSaveAndExternalEdits(t *testing.T) {
	clock := newFakeClock()
	local := &fakeLocal{stored: remoteSnapshot()}
	c, err := NewSyncController(nil, local, SyncOptions{
		SuppressionWindow: testWindow,
		Logger:            quietLogger(),
		Clock:             clock.Now,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !c.Snapshot().Equal(remoteSnapshot()) {
		t.Fatal("expected stored snapshot to be loaded")
	}

	view := c.ToggleSubtask(1, "1-2")
	if local.saves != 1 || !local.Load().Equal(view.Snapshot) {
		t.Error("mutation should be saved synchronously")
	}
	if view.Syncing() {
		t.Error("standalone variant never reports syncing")
	}

	// Someone edits the file by hand.
	edited := roadmap.ToggleAccordion(view.Snapshot, 1)
	local.mu.Lock()
	local.stored = edited
	local.mu.Unlock()

	clock.Set(clock.Now().Add(testWindow + time.Second))
	_ = c.Refresh(context.Background(), false)
	if !c.Snapshot().Equal(edited) {
		t.Error("external edit should be adopted after the window")
	}

	local.mu.Lock()
	local.readErr = &roadmap.ParseError{Source: "roadmap.json", Err: errors.New("truncated")}
	local.mu.Unlock()
	if err := c.Refresh(context.Background(), true); err == nil {
		t.Error("expected read error")
	}
	if !c.Snapshot().Equal(edited) {
		t.Error("unreadable file must not replace the snapshot")
	}
}

func TestStandalone_EmptySlotIsNotAFailure(t *testing.T) {
	store := storage.NewFileStore(t.TempDir(), quietLogger())
	c, err := NewSyncController(nil, store, SyncOptions{Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := c.View()

	if err := c.Refresh(context.Background(), false); err != nil {
		t.Fatalf("Refresh on an empty slot: %v", err)
	}
	view := c.View()
	if view.Offline() || view.State != syncstate.Idle {
		t.Errorf("state = %s, want idle", view.State)
	}
	if !view.Snapshot.Equal(roadmap.Default()) || view.Revision != before.Revision {
		t.Error("empty slot must leave the bundled roadmap in place")
	}

	// Once something is saved the slot is read as usual.
	c.ToggleSubtask(1, "1-1")
	if err := c.Refresh(context.Background(), true); err != nil {
		t.Fatalf("Refresh after save: %v", err)
	}
	if c.Snapshot().Equal(roadmap.Default()) {
		t.Error("saved toggle should survive the refresh")
	}
}
