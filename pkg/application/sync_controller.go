package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
	"github.com/felixgeelhaar/milestone/pkg/domain/syncstate"
	"github.com/google/uuid"
)

// RemoteStore reads and replaces the shared snapshot.
type RemoteStore interface {
	Fetch(ctx context.Context) (roadmap.Snapshot, error)
	Push(ctx context.Context, snap roadmap.Snapshot) error
}

// LocalStore is the standalone persistence slot.
type LocalStore interface {
	Load() roadmap.Snapshot
	Save(snap roadmap.Snapshot)
}

// snapshotReader is implemented by local stores that can report read
// failures. Polling uses it so a half-written file is never adopted.
type snapshotReader interface {
	Read() (roadmap.Snapshot, error)
}

// Variant says where the snapshot is replicated.
type Variant string

const (
	VariantShared     Variant = "shared"
	VariantStandalone Variant = "standalone"
)

const (
	DefaultPollInterval      = 5 * time.Second
	DefaultSuppressionWindow = 2500 * time.Millisecond
)

// SyncOptions tunes the controller. Zero values take the defaults.
type SyncOptions struct {
	PollInterval      time.Duration
	SuppressionWindow time.Duration
	Logger            *slog.Logger
	Clock             func() time.Time
}

func (o SyncOptions) withDefaults() SyncOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.SuppressionWindow <= 0 {
		o.SuppressionWindow = DefaultSuppressionWindow
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// View is what presentation renders. It is a value: holding on to it is safe.
type View struct {
	Snapshot roadmap.Snapshot `json:"tasks"`
	Stats    roadmap.Stats    `json:"stats"`
	State    syncstate.State  `json:"state"`
	LastSync time.Time        `json:"lastSync"`
	Variant  Variant          `json:"variant"`
	// Revision increases with every change. Subscribers may see views out of
	// order and should drop any revision not newer than the last rendered one.
	Revision uint64 `json:"revision"`
}

// Syncing reports whether a push is in flight.
func (v View) Syncing() bool { return v.State.IsSyncing() }

// Offline reports whether the last fetch or push failed.
func (v View) Offline() bool { return v.State.IsOffline() }

// Groups buckets the snapshot by priority tier.
func (v View) Groups() map[roadmap.Priority][]roadmap.Task {
	return roadmap.GroupByPriority(v.Snapshot)
}

// SyncController owns the working snapshot and reconciles it with the
// configured store.
//
// Local intents are applied synchronously and never wait for I/O. In the
// shared variant every change is pushed in its own goroutine, and the poll
// loop adopts the remote copy unless a local write happened within the
// suppression window. Replication is whole-snapshot, last writer wins.
type SyncController struct {
	id      string
	remote  RemoteStore
	local   LocalStore
	variant Variant
	opts    SyncOptions
	logger  *slog.Logger
	machine *syncstate.Machine

	mu             sync.Mutex
	snapshot       roadmap.Snapshot
	lastLocalWrite time.Time
	lastSync       time.Time
	inflight       int
	revision       uint64
	closed         bool
	subscribers    map[int]func(View)
	nextSub        int

	pushes   sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// NewSyncController wires exactly one store: remote selects the shared
// variant, local the standalone one. The bundled roadmap is the working
// snapshot until Start runs.
func NewSyncController(remote RemoteStore, local LocalStore, opts SyncOptions) (*SyncController, error) {
	variant := VariantShared
	switch {
	case remote != nil && local != nil:
		return nil, errors.New("sync controller takes either a remote or a local store, not both")
	case remote == nil && local == nil:
		return nil, errors.New("sync controller needs a remote or a local store")
	case local != nil:
		variant = VariantStandalone
	}

	machine, err := syncstate.NewMachine()
	if err != nil {
		return nil, err
	}

	opts = opts.withDefaults()
	id := uuid.New().String()

	return &SyncController{
		id:          id,
		remote:      remote,
		local:       local,
		variant:     variant,
		opts:        opts,
		logger:      opts.Logger.With("instance", id[:8], "variant", string(variant)),
		machine:     machine,
		snapshot:    roadmap.Default(),
		subscribers: make(map[int]func(View)),
		stop:        make(chan struct{}),
	}, nil
}

// ID identifies this controller instance.
func (c *SyncController) ID() string { return c.id }

// Variant returns the replication variant.
func (c *SyncController) Variant() Variant { return c.variant }

// Snapshot returns the current snapshot. Callers must not modify it.
func (c *SyncController) Snapshot() roadmap.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// View returns the current presentation state.
func (c *SyncController) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *SyncController) viewLocked() View {
	return View{
		Snapshot: c.snapshot,
		Stats:    roadmap.DeriveStats(c.snapshot),
		State:    c.machine.Current(),
		LastSync: c.lastSync,
		Variant:  c.variant,
		Revision: c.revision,
	}
}

// Subscribe registers fn for every view change. fn runs on the goroutine
// that caused the change and must not block.
func (c *SyncController) Subscribe(fn func(View)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

// changedLocked bumps the revision and returns what to deliver once the lock is released.
func (c *SyncController) changedLocked() (View, []func(View)) {
	c.revision++
	subs := make([]func(View), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	return c.viewLocked(), subs
}

func deliver(view View, subs []func(View)) {
	for _, fn := range subs {
		fn(view)
	}
}

// Start loads the initial snapshot.
//
// Shared variant: a missing remote blob is seeded with the bundled roadmap
// (one push). Any other fetch failure keeps the bundled roadmap, marks the
// controller offline and is returned; the remote copy is never seeded then,
// since it may hold real data. The controller stays usable either way.
func (c *SyncController) Start(ctx context.Context) error {
	if c.variant == VariantStandalone {
		snap := c.local.Load()
		c.mu.Lock()
		c.snapshot = snap
		c.lastSync = c.opts.Clock()
		view, subs := c.changedLocked()
		c.mu.Unlock()
		deliver(view, subs)
		return nil
	}

	snap, err := c.remote.Fetch(ctx)
	switch {
	case err == nil:
		c.mu.Lock()
		c.snapshot = snap
		c.lastSync = c.opts.Clock()
		c.machine.Fire(syncstate.Completion(true, c.inflight))
		view, subs := c.changedLocked()
		c.mu.Unlock()
		deliver(view, subs)
		c.logger.Info("loaded remote snapshot", "tasks", len(snap))
		return nil

	case errors.Is(err, roadmap.ErrNotFound):
		c.logger.Info("remote snapshot missing, seeding bundled roadmap")
		c.mu.Lock()
		c.snapshot = roadmap.Default()
		c.persistLocked(c.snapshot)
		view, subs := c.changedLocked()
		c.mu.Unlock()
		deliver(view, subs)
		return nil

	default:
		c.mu.Lock()
		c.machine.Fire(syncstate.Completion(false, c.inflight))
		view, subs := c.changedLocked()
		c.mu.Unlock()
		deliver(view, subs)
		c.logger.Warn("remote unreachable, working offline on bundled roadmap", "err", err)
		return fmt.Errorf("initial fetch: %w", err)
	}
}

// Run polls on the configured interval until ctx is done or Close is called.
// Each tick starts its own refresh; a slow fetch does not delay the next one.
func (c *SyncController) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case <-ticker.C:
			go func() {
				if err := c.Refresh(context.WithoutCancel(ctx), false); err != nil {
					c.logger.Debug("poll failed", "err", err)
				}
			}()
		}
	}
}

// ForceSync fetches and adopts the stored snapshot regardless of recent local writes.
func (c *SyncController) ForceSync(ctx context.Context) error {
	return c.Refresh(ctx, true)
}

// Refresh fetches the stored snapshot and adopts it, unless this instance
// wrote within the suppression window and force is false.
// A standalone slot that was never written has nothing to adopt and is not a
// failure.
func (c *SyncController) Refresh(ctx context.Context, force bool) error {
	snap, err := c.fetch(ctx)
	absent := c.variant == VariantStandalone && errors.Is(err, os.ErrNotExist)
	if absent {
		err = nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	if err != nil {
		before := c.machine.Current()
		after := c.machine.Fire(syncstate.Completion(false, c.inflight))
		var view View
		var subs []func(View)
		if before != after {
			view, subs = c.changedLocked()
		}
		c.mu.Unlock()
		deliver(view, subs)
		c.logger.Warn("fetch failed, keeping current snapshot", "err", err)
		return err
	}

	before := c.machine.Current()
	after := c.machine.Fire(syncstate.Completion(true, c.inflight))
	c.lastSync = c.opts.Clock()
	adopted := !absent && c.adoptLocked(snap, force)
	var view View
	var subs []func(View)
	if adopted || before != after {
		view, subs = c.changedLocked()
	}
	c.mu.Unlock()

	deliver(view, subs)
	return nil
}

func (c *SyncController) fetch(ctx context.Context) (roadmap.Snapshot, error) {
	if c.variant == VariantShared {
		return c.remote.Fetch(ctx)
	}
	if r, ok := c.local.(snapshotReader); ok {
		return r.Read()
	}
	return c.local.Load(), nil
}

// adoptLocked applies the suppression window and replaces the snapshot when
// the inbound one differs.
func (c *SyncController) adoptLocked(snap roadmap.Snapshot, force bool) bool {
	if !force && !c.lastLocalWrite.IsZero() {
		if elapsed := c.opts.Clock().Sub(c.lastLocalWrite); elapsed < c.opts.SuppressionWindow {
			c.logger.Debug("discarding inbound snapshot inside suppression window", "elapsed", elapsed)
			return false
		}
	}
	if snap.Equal(c.snapshot) {
		return false
	}
	c.snapshot = snap
	c.logger.Info("adopted inbound snapshot", "tasks", len(snap), "forced", force)
	return true
}

// ToggleSubtask flips one subtask and propagates the new snapshot.
func (c *SyncController) ToggleSubtask(taskID int, subtaskID string) View {
	view := c.mutate(func(s roadmap.Snapshot) roadmap.Snapshot {
		return roadmap.ToggleSubtask(s, taskID, subtaskID)
	}, false)
	c.logger.Debug("toggled subtask", "task_id", taskID, "subtask_id", subtaskID)
	return view
}

// ToggleAccordion flips the expansion state of one task and propagates it.
func (c *SyncController) ToggleAccordion(taskID int) View {
	view := c.mutate(func(s roadmap.Snapshot) roadmap.Snapshot {
		return roadmap.ToggleAccordion(s, taskID)
	}, false)
	c.logger.Debug("toggled task", "task_id", taskID)
	return view
}

// Replace swaps in a whole snapshot (import) and propagates it, even when
// it equals the current one.
func (c *SyncController) Replace(snap roadmap.Snapshot) View {
	view := c.mutate(func(roadmap.Snapshot) roadmap.Snapshot { return snap }, true)
	c.logger.Info("replaced snapshot", "tasks", len(snap))
	return view
}

func (c *SyncController) mutate(apply func(roadmap.Snapshot) roadmap.Snapshot, always bool) View {
	c.mu.Lock()
	next := apply(c.snapshot)
	if !always && next.Equal(c.snapshot) {
		view := c.viewLocked()
		c.mu.Unlock()
		return view
	}
	c.snapshot = next
	c.persistLocked(next)
	view, subs := c.changedLocked()
	c.mu.Unlock()

	deliver(view, subs)
	return view
}

// persistLocked records the local write and hands the snapshot to the store.
// Remote pushes are fire-and-forget: no queue, no coalescing, no rollback.
func (c *SyncController) persistLocked(snap roadmap.Snapshot) {
	c.lastLocalWrite = c.opts.Clock()

	if c.variant == VariantStandalone {
		c.local.Save(snap)
		return
	}

	c.inflight++
	c.machine.Fire(syncstate.EventPush)
	c.pushes.Add(1)
	go c.push(snap)
}

func (c *SyncController) push(snap roadmap.Snapshot) {
	defer c.pushes.Done()

	start := time.Now()
	err := c.remote.Push(context.Background(), snap)

	c.mu.Lock()
	c.inflight--
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.machine.Fire(syncstate.Completion(err == nil, c.inflight))
	if err == nil {
		c.lastSync = c.opts.Clock()
	}
	view, subs := c.changedLocked()
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("push failed, local snapshot kept", "err", err, "elapsed", time.Since(start))
	} else {
		c.logger.Debug("pushed snapshot", "elapsed", time.Since(start))
	}
	deliver(view, subs)
}

// Wait blocks until every push started so far has completed.
func (c *SyncController) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.pushes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the poll loop. Requests still in flight complete but their
// results are ignored.
func (c *SyncController) Close() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.stop)
	})
}
