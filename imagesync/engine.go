// Package imagesync keeps the layer store eventually consistent with
// an external image-session source. A single goroutine drains a global
// FIFO task queue; content hashing bounds duplicate work and a
// per-conversation gate keeps two reconciliations for one conversation
// from overlapping. Task failures are logged and dropped: the policy is
// at-most-once, an artifact that never materialized has no hash
// recorded and is retried by the next pass.
package imagesync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/layer"
	"github.com/gogpu/canvas/session"
	"github.com/gogpu/canvas/store"
)

// Source is the external image-session contract the engine reconciles
// against. The session package provides an in-memory implementation.
type Source interface {
	ListSessionsByConversation(ctx context.Context, conversationID uuid.UUID) ([]session.ImageSession, error)
	SelectVersion(ctx context.Context, sessionID uuid.UUID, index int) error
	PushUpdate(ctx context.Context, sess session.ImageSession) error
}

// Default engine tuning.
const (
	DefaultQueueCapacity  = 64
	DefaultDebounceWindow = 300 * time.Millisecond
	DefaultTaskInterval   = time.Millisecond
	DefaultLayerOffset    = 20
)

// Stats holds engine counters, updated atomically.
type Stats struct {
	Processed uint64
	Failed    uint64
	Dropped   uint64
}

// conversation is the per-conversation reconciliation state. ctx is
// cancelled on teardown so in-flight source calls abort.
type conversation struct {
	ctx       context.Context
	cancel    context.CancelFunc
	timer     *time.Timer
	processed map[uint64]struct{}
	syncing   bool
	torndown  bool
}

// Engine is the queue-driven reconciler. Create with New, stop with
// Close; all exported methods are safe for concurrent use.
type Engine struct {
	store  *store.Store
	source Source
	logger *slog.Logger

	limiter        *rate.Limiter
	debounceWindow time.Duration
	hashBucket     time.Duration
	layerOffset    float64

	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu            sync.Mutex
	closed        bool
	conversations map[uuid.UUID]*conversation

	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to the package logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithQueueCapacity sets the task queue capacity.
func WithQueueCapacity(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.tasks = make(chan Task, n)
		}
	}
}

// WithDebounceWindow sets how long RequestSync coalesces before a pull
// task is enqueued.
func WithDebounceWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.debounceWindow = d
		}
	}
}

// WithHashBucket sets the dedup time bucket width.
func WithHashBucket(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.hashBucket = d
		}
	}
}

// WithTaskInterval sets the minimum spacing between task executions,
// the inter-task yield that keeps the queue from starving renders.
func WithTaskInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithLayerOffset sets the cascade offset for newly materialized
// layers.
func WithLayerOffset(o float64) Option {
	return func(e *Engine) {
		if o >= 0 {
			e.layerOffset = o
		}
	}
}

// New creates an engine over the store and source and starts its
// worker goroutine. Call Close to stop it.
func New(st *store.Store, src Source, opts ...Option) (*Engine, error) {
	if st == nil || src == nil {
		return nil, fmt.Errorf("imagesync: nil store or source")
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:          st,
		source:         src,
		logger:         canvas.Logger(),
		limiter:        rate.NewLimiter(rate.Every(DefaultTaskInterval), 1),
		debounceWindow: DefaultDebounceWindow,
		hashBucket:     DefaultHashBucket,
		layerOffset:    DefaultLayerOffset,
		tasks:          make(chan Task, DefaultQueueCapacity),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		conversations:  make(map[uuid.UUID]*conversation),
	}
	for _, opt := range opts {
		opt(e)
	}

	go e.run()
	e.logger.Info("sync engine started",
		"queue_capacity", cap(e.tasks),
		"debounce", e.debounceWindow,
		"hash_bucket", e.hashBucket)
	return e, nil
}

// Enqueue appends a task to the global FIFO queue. A full queue drops
// the task: the at-most-once policy prefers liveness, and hash dedup
// makes the next pass cheap.
func (e *Engine) Enqueue(t Task) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	// New work revives a torn-down conversation.
	if c, ok := e.conversations[t.ConversationID]; ok && c.torndown {
		delete(e.conversations, t.ConversationID)
	}
	e.mu.Unlock()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}

	select {
	case e.tasks <- t:
		return nil
	default:
		e.dropped.Add(1)
		e.logger.Warn("task dropped, queue full",
			"task_id", t.ID, "kind", t.Kind.String(), "conversation_id", t.ConversationID)
		return ErrQueueFull
	}
}

// SyncConversation enqueues an immediate pull for the conversation.
func (e *Engine) SyncConversation(conversationID uuid.UUID) error {
	return e.Enqueue(Task{ConversationID: conversationID, Kind: TaskPull})
}

// PushConversation enqueues a push of store-originated layers.
func (e *Engine) PushConversation(conversationID uuid.UUID) error {
	return e.Enqueue(Task{ConversationID: conversationID, Kind: TaskPush})
}

// RequestSync schedules a debounced pull: rapid calls within the
// debounce window collapse into one task.
func (e *Engine) RequestSync(conversationID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	c := e.conversationLocked(conversationID)
	if c.timer != nil {
		c.timer.Reset(e.debounceWindow)
		return
	}
	c.timer = time.AfterFunc(e.debounceWindow, func() {
		e.mu.Lock()
		if cur, ok := e.conversations[conversationID]; ok {
			cur.timer = nil
		}
		e.mu.Unlock()
		_ = e.Enqueue(Task{ConversationID: conversationID, Kind: TaskPull})
	})
}

// SelectVersion applies a version selection synchronously: the source
// switches first, then the linked layer's displayed URL and index are
// updated. Idempotent by construction; no hashing involved.
func (e *Engine) SelectVersion(ctx context.Context, conversationID, sessionID uuid.UUID, index int) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	e.mu.Unlock()

	if err := e.source.SelectVersion(ctx, sessionID, index); err != nil {
		return fmt.Errorf("imagesync: select version: %w", err)
	}

	cont, err := e.store.ContainerByConversation(conversationID)
	if err != nil {
		return err
	}
	l := layerForSession(cont, sessionID)
	if l == nil {
		return fmt.Errorf("%w: %s", ErrNoSessionLayer, sessionID)
	}

	img := *l.Image
	if index >= 0 && index < len(img.VersionURLs) {
		img.SelectedVersion = index
	}
	return e.store.UpdateLayer(cont.ID, l.ID, store.Patch{Image: &img})
}

// TeardownConversation drops the conversation's pending work: queued
// tasks become no-ops, the debounce timer stops, in-flight source
// calls are cancelled, and the processed-hash set is forgotten.
func (e *Engine) TeardownConversation(conversationID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.conversations[conversationID]
	if !ok {
		c = &conversation{}
		e.conversations[conversationID] = c
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.processed = nil
	c.torndown = true
	e.logger.Debug("conversation torn down", "conversation_id", conversationID)
}

// Close stops the worker and cancels all conversation work. Pending
// tasks are discarded.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, c := range e.conversations {
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		if c.cancel != nil {
			c.cancel()
		}
	}
	e.mu.Unlock()

	e.cancel()
	<-e.done
	e.logger.Info("sync engine stopped",
		"processed", e.processed.Load(),
		"failed", e.failed.Load(),
		"dropped", e.dropped.Load())
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Processed: e.processed.Load(),
		Failed:    e.failed.Load(),
		Dropped:   e.dropped.Load(),
	}
}

// Pending reports queued task count.
func (e *Engine) Pending() int { return len(e.tasks) }

// run drains the queue one task at a time with an inter-task yield.
func (e *Engine) run() {
	defer close(e.done)
	for {
		if err := e.limiter.Wait(e.ctx); err != nil {
			return
		}
		select {
		case <-e.ctx.Done():
			return
		case t := <-e.tasks:
			e.process(t)
		}
	}
}

// process executes one task. Errors are logged and the task dropped.
func (e *Engine) process(t Task) {
	ctx, ok := e.conversationContext(t.ConversationID)
	if !ok {
		e.logger.Debug("skipping task for torn-down conversation",
			"task_id", t.ID, "conversation_id", t.ConversationID)
		return
	}

	var err error
	switch t.Kind {
	case TaskPull:
		err = e.pull(ctx, t.ConversationID)
	case TaskPush:
		err = e.push(ctx, t.ConversationID)
	case TaskVersionSelect:
		err = e.SelectVersion(ctx, t.ConversationID, t.Version.SessionID, t.Version.Index)
	default:
		err = fmt.Errorf("imagesync: unknown task kind %d", t.Kind)
	}

	if err != nil {
		e.failed.Add(1)
		e.logger.Warn("sync task failed",
			"task_id", t.ID, "kind", t.Kind.String(),
			"conversation_id", t.ConversationID, "error", err)
		return
	}
	e.processed.Add(1)
}

// pull reconciles external sessions into the store. The source is read
// at execution time, so a pull enqueued before further external
// mutations still observes the latest state.
func (e *Engine) pull(ctx context.Context, conversationID uuid.UUID) error {
	if !e.beginSync(conversationID) {
		// An in-flight pass will pick up the latest state.
		return nil
	}
	defer e.endSync(conversationID)

	sessions, err := e.source.ListSessionsByConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil
	}

	cont, err := e.store.ContainerByConversation(conversationID)
	if err != nil {
		cid := e.store.CreateContainer(uuid.New(), conversationID)
		if cont, err = e.store.Container(cid); err != nil {
			return err
		}
	}

	for _, sess := range sessions {
		url := sess.ImageURL()
		if url == "" {
			continue
		}
		hash := ContentHash("image", url, sess.CreatedAt, e.hashBucket)
		if e.alreadyProcessed(conversationID, hash) {
			continue
		}

		// Fresh snapshot each iteration: earlier materializations in
		// this pass must be visible to the session-layer lookup and
		// the cascade offset.
		snap, err := e.store.Container(cont.ID)
		if err != nil {
			return err
		}
		if err := e.materialize(snap, sess, url); err != nil {
			// Not marked processed; the next pass retries.
			e.logger.Warn("session not materialized",
				"session_id", sess.ID, "error", err)
			continue
		}
		e.markProcessed(conversationID, hash)
	}
	return nil
}

// materialize updates the layer linked to the session, or creates a
// new image layer at a cascade offset.
func (e *Engine) materialize(cont *store.Container, sess session.ImageSession, url string) error {
	content := &layer.ImageContent{
		SourceURL:       url,
		VersionURLs:     sess.Images,
		SelectedVersion: sess.SelectedVersion,
		Generation:      &layer.GenerationInfo{Prompt: sess.Prompt},
	}

	if l := layerForSession(cont, sess.ID); l != nil {
		return e.store.UpdateLayer(cont.ID, l.ID, store.Patch{Image: content})
	}

	name := sess.Prompt
	if name == "" {
		name = "Generated image"
	}
	offset := e.layerOffset * float64(len(cont.Order))
	_, err := e.store.AddLayer(cont.ID, layer.KindImage, content,
		store.WithName(name),
		store.WithPosition(offset, offset),
		store.WithProvenance(layer.ProvenanceAI),
		store.WithSessionID(sess.ID),
	)
	return err
}

// push reconciles store-originated image layers to the source. A layer
// without a session link gets a session id derived from its own id, so
// repeated pushes address the same session.
func (e *Engine) push(ctx context.Context, conversationID uuid.UUID) error {
	cont, err := e.store.ContainerByConversation(conversationID)
	if err != nil {
		return err
	}

	for _, id := range cont.Order {
		l := cont.Layers[id]
		if l == nil || l.Image == nil || l.Meta.Provenance == layer.ProvenanceAI {
			continue
		}
		sessID := l.Meta.SessionID
		if sessID == uuid.Nil {
			sessID = l.ID
		}

		images := l.Image.VersionURLs
		if len(images) == 0 && l.Image.SourceURL != "" {
			images = []string{l.Image.SourceURL}
		}
		var prompt string
		if l.Image.Generation != nil {
			prompt = l.Image.Generation.Prompt
		}

		err := e.source.PushUpdate(ctx, session.ImageSession{
			ID:              sessID,
			ConversationID:  conversationID,
			Prompt:          prompt,
			Images:          images,
			SelectedVersion: l.Image.SelectedVersion,
		})
		if err != nil {
			return fmt.Errorf("push layer %s: %w", l.ID, err)
		}
	}
	return nil
}

// conversationLocked returns the live state for a conversation,
// creating it if needed. Callers hold e.mu.
func (e *Engine) conversationLocked(id uuid.UUID) *conversation {
	c, ok := e.conversations[id]
	if !ok || c.torndown {
		ctx, cancel := context.WithCancel(e.ctx)
		c = &conversation{
			ctx:       ctx,
			cancel:    cancel,
			processed: make(map[uint64]struct{}),
		}
		e.conversations[id] = c
	}
	return c
}

// conversationContext returns the conversation-scoped context, or
// false when the conversation is torn down.
func (e *Engine) conversationContext(id uuid.UUID) (context.Context, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.conversations[id]; ok && c.torndown {
		return nil, false
	}
	return e.conversationLocked(id).ctx, true
}

func (e *Engine) beginSync(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.conversationLocked(id)
	if c.syncing {
		return false
	}
	c.syncing = true
	return true
}

func (e *Engine) endSync(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.conversations[id]; ok {
		c.syncing = false
	}
}

func (e *Engine) alreadyProcessed(id uuid.UUID, hash uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.conversationLocked(id)
	_, ok := c.processed[hash]
	return ok
}

func (e *Engine) markProcessed(id uuid.UUID, hash uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.conversationLocked(id)
	if c.processed == nil {
		c.processed = make(map[uint64]struct{})
	}
	c.processed[hash] = struct{}{}
}

// layerForSession finds the layer linked to an external session.
func layerForSession(cont *store.Container, sessionID uuid.UUID) *layer.Layer {
	for _, id := range cont.Order {
		if l := cont.Layers[id]; l != nil && l.Meta.SessionID == sessionID {
			return l
		}
	}
	return nil
}
