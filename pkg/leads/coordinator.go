package leads

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	rderrors "github.com/redoraai/redora-cli/pkg/errors"
	"github.com/redoraai/redora-cli/pkg/events"
	"github.com/redoraai/redora-cli/pkg/logging"
	"github.com/redoraai/redora-cli/pkg/observability"
)

// historySize bounds the settled transitions kept for inspection.
const historySize = 64

// Coordinator owns the four category lists and the detail cursor.
//
// Every lead appears in at most one category and the cursor, when set,
// names a lead in NEW. All mutation goes through LoadAll, Classify, Select
// and OnFilterChanged; readers get copies through Snapshot and friends.
// The lock is never held across a call to the QueryService.
type Coordinator struct {
	svc       QueryService
	logger    logging.Logger
	metrics   *observability.LeadMetrics
	tracer    *observability.Tracer
	publisher events.Publisher
	observer  func(Snapshot)
	now       func() time.Time
	tenantID  string

	mu       sync.Mutex
	lists    [numCategories][]Lead
	cursor   string
	filter   Filter
	loading  bool
	lastErr  error
	epoch    uint64
	revision uint64

	// inflight holds unconfirmed transitions by lead id. idle is closed
	// whenever inflight is empty.
	inflight map[string]*Transition
	idle     chan struct{}

	// confirmed records the load epoch current when a lead's transition
	// was confirmed. A load started at or before that epoch may carry the
	// lead's old status and must not overwrite it.
	confirmed map[string]uint64

	history []Transition
}

// NewCoordinator returns a Coordinator with empty lists.
func NewCoordinator(svc QueryService, opts ...Option) *Coordinator {
	idle := make(chan struct{})
	close(idle)
	c := &Coordinator{
		svc:       svc,
		logger:    logging.NewNopLogger(),
		tracer:    observability.NewTracer(),
		publisher: events.NopPublisher{},
		now:       time.Now,
		inflight:  make(map[string]*Transition),
		idle:      idle,
		confirmed: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logging.F("component", "leads.coordinator"))
	return c
}

// LoadAll fetches all four categories for filter and replaces local state
// in one step. On failure the previous lists are kept and the error is
// recorded as LastError. A response that arrives after a newer load has
// started is discarded and LoadAll returns nil.
func (c *Coordinator) LoadAll(ctx context.Context, filter Filter) error {
	if err := filter.Validate(); err != nil {
		return rderrors.Classify(err, rderrors.OpLoad, "")
	}

	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	c.loading = true
	c.revision++
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	log := c.logger.WithContext(ctx).With(
		logging.F("epoch", epoch),
		logging.F("relevancy_score", filter.RelevancyScore),
		logging.F("subreddit", filter.Subreddit),
	)
	ctx, span := c.tracer.StartLoadSpan(ctx, epoch, filter.RelevancyScore, filter.Subreddit)
	log = withTraceID(ctx, log)
	start := c.now()

	staged, err := c.fetchAll(ctx, filter)
	elapsed := c.now().Sub(start).Seconds()

	c.mu.Lock()
	if epoch != c.epoch {
		latest := c.epoch
		c.mu.Unlock()
		log.Debug("Discarding stale load", logging.F("latest_epoch", latest))
		c.metrics.RecordLoad(observability.ResultStale, elapsed)
		observability.EndSpan(span, observability.ResultStale, nil, "", false)
		return nil
	}
	c.loading = false

	if err != nil {
		opErr := rderrors.Classify(err, rderrors.OpLoad, "")
		c.lastErr = opErr
		c.revision++
		snap = c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)

		log.Warn("Load failed, keeping previous lists", logging.Err(err), logging.F("code", string(opErr.Code)))
		c.metrics.RecordLoad(observability.ResultError, elapsed)
		observability.EndSpan(span, observability.ResultError, err, string(opErr.Code), rderrors.IsErrorRetryable(opErr))
		return opErr
	}

	c.commitLocked(staged, epoch)
	c.filter = filter
	c.lastErr = nil
	c.revision++
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	c.recordSizes(snap)

	log.Debug("Loaded leads",
		logging.F("new", len(snap.New)),
		logging.F("completed", len(snap.Completed)),
		logging.F("discarded", len(snap.Discarded)),
		logging.F("leads", len(snap.Leads)),
	)
	c.metrics.RecordLoad(observability.ResultOK, elapsed)
	observability.EndSpan(span, observability.ResultOK, nil, "", false)
	return nil
}

// OnFilterChanged waits for every pending Classify to settle, then loads
// with the new filter. Waiting stops early if ctx is done.
func (c *Coordinator) OnFilterChanged(ctx context.Context, filter Filter) error {
	if err := c.waitIdle(ctx); err != nil {
		return rderrors.Classify(err, rderrors.OpLoad, "")
	}
	return c.LoadAll(ctx, filter)
}

// fetchAll fetches NEW with the filter, then the three status-keyed
// categories concurrently.
func (c *Coordinator) fetchAll(ctx context.Context, filter Filter) ([numCategories][]Lead, error) {
	var staged [numCategories][]Lead

	fresh, err := c.svc.GetRelevantLeads(ctx, filter)
	if err != nil {
		return staged, err
	}
	staged[CategoryNew] = fresh

	g, gctx := errgroup.WithContext(ctx)
	for _, cat := range []Category{CategoryCompleted, CategoryDiscarded, CategoryLeads} {
		g.Go(func() error {
			got, err := c.svc.GetLeadsByStatus(gctx, cat.Status())
			if err != nil {
				return err
			}
			staged[cat] = got
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return staged, err
	}
	return staged, nil
}

// commitLocked replaces the lists with staged. Leads with a pending
// transition, or one confirmed since this load began, keep their local
// placement. Caller holds c.mu.
func (c *Coordinator) commitLocked(staged [numCategories][]Lead, epoch uint64) {
	keep := make(map[string]struct{}, len(c.inflight)+len(c.confirmed))
	for id := range c.inflight {
		keep[id] = struct{}{}
	}
	for id, at := range c.confirmed {
		if at >= epoch {
			keep[id] = struct{}{}
		} else {
			delete(c.confirmed, id)
		}
	}

	var next [numCategories][]Lead
	seen := make(map[string]struct{})
	for _, cat := range Categories {
		for _, l := range staged[cat] {
			if _, ok := keep[l.ID]; ok {
				continue
			}
			if _, ok := seen[l.ID]; ok {
				continue
			}
			seen[l.ID] = struct{}{}
			l = l.clone()
			l.Status = cat.Status()
			next[cat] = append(next[cat], l)
		}
	}
	for _, cat := range Categories {
		for _, l := range c.lists[cat] {
			if _, ok := keep[l.ID]; !ok {
				continue
			}
			if _, ok := seen[l.ID]; ok {
				continue
			}
			seen[l.ID] = struct{}{}
			next[cat] = append(next[cat], l)
		}
	}

	c.lists = next
	c.cursor = ""
	if len(next[CategoryNew]) > 0 {
		c.cursor = next[CategoryNew][0].ID
	}
}

// Classify moves leadID out of NEW to the category for status, then asks
// the server to persist it. If the server rejects the change the move is
// undone exactly and an *errors.OperationError is returned. Calls for a
// lead that is not in NEW, or with status NEW, do nothing.
func (c *Coordinator) Classify(ctx context.Context, leadID string, status Status) error {
	if !status.IsValid() {
		return &rderrors.OperationError{
			Code:    rderrors.ErrCodeValidation,
			Op:      rderrors.OpClassify,
			LeadID:  leadID,
			Message: "unknown status " + string(status),
			Cause:   rderrors.ErrValidation,
		}
	}
	if status == StatusNew {
		return nil
	}
	dest, _ := CategoryFor(status)

	c.mu.Lock()
	idx := indexOf(c.lists[CategoryNew], leadID)
	if idx < 0 {
		c.mu.Unlock()
		return nil
	}
	tr := &Transition{
		ID:         uuid.New().String(),
		LeadID:     leadID,
		From:       StatusNew,
		To:         status,
		State:      TransitionPending,
		StartedAt:  c.now(),
		lead:       c.lists[CategoryNew][idx],
		origIndex:  idx,
		prevCursor: c.cursor,
		before:     leadIDs(c.lists[CategoryNew][:idx]),
		after:      leadIDs(c.lists[CategoryNew][idx+1:]),
	}

	c.lists[CategoryNew] = removeAt(c.lists[CategoryNew], idx)
	moved := tr.lead
	moved.Status = status
	c.lists[dest] = append(c.lists[dest], moved)
	if c.cursor == leadID {
		c.cursor = ""
		if idx < len(c.lists[CategoryNew]) {
			c.cursor = c.lists[CategoryNew][idx].ID
		}
	}

	if len(c.inflight) == 0 {
		c.idle = make(chan struct{})
	}
	c.inflight[leadID] = tr
	pending := len(c.inflight)
	c.revision++
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	c.metrics.SetPending(pending)

	log := c.logger.WithContext(ctx).With(
		logging.LeadID(leadID),
		logging.F("status", string(status)),
		logging.F("transition_id", tr.ID),
	)
	ctx, span := c.tracer.StartClassifySpan(ctx, leadID, string(status))
	log = withTraceID(ctx, log)

	err := c.svc.UpdateLeadStatus(ctx, leadID, status)

	var opErr *rderrors.OperationError
	c.mu.Lock()
	delete(c.inflight, leadID)
	if len(c.inflight) == 0 {
		close(c.idle)
	}
	pending = len(c.inflight)
	tr.SettledAt = c.now()
	if err == nil {
		tr.State = TransitionConfirmed
		c.confirmed[leadID] = c.epoch
	} else {
		opErr = rderrors.Classify(err, rderrors.OpClassify, leadID)
		tr.State = TransitionRolledBack
		tr.Err = opErr
		c.rollbackLocked(tr, dest)
		c.lastErr = opErr
	}
	c.pushHistoryLocked(*tr)
	c.revision++
	snap = c.snapshotLocked()
	settled := *tr
	c.mu.Unlock()
	c.notify(snap)
	c.metrics.SetPending(pending)
	c.recordSizes(snap)

	if opErr != nil {
		log.Warn("Classification rejected, rolled back", logging.Err(err), logging.F("code", string(opErr.Code)))
		c.metrics.RecordTransition(string(status), observability.ResultRolledBack)
		observability.EndSpan(span, observability.ResultRolledBack, err, string(opErr.Code), rderrors.IsErrorRetryable(opErr))
		return opErr
	}

	log.Debug("Classification confirmed")
	c.metrics.RecordTransition(string(status), observability.ResultConfirmed)
	observability.EndSpan(span, observability.ResultConfirmed, nil, "", false)
	c.publish(ctx, settled)
	return nil
}

// rollbackLocked undoes the optimistic move of tr. Caller holds c.mu.
func (c *Coordinator) rollbackLocked(tr *Transition, dest Category) {
	restored := tr.lead
	for _, cat := range []Category{dest, CategoryCompleted, CategoryDiscarded, CategoryLeads} {
		if i := indexOf(c.lists[cat], tr.LeadID); i >= 0 {
			restored = c.lists[cat][i]
			c.lists[cat] = removeAt(c.lists[cat], i)
			break
		}
	}
	restored.Status = tr.From
	delete(c.confirmed, tr.LeadID)

	if indexOf(c.lists[CategoryNew], tr.LeadID) < 0 {
		c.lists[CategoryNew] = insertAt(c.lists[CategoryNew], restoreIndex(c.lists[CategoryNew], tr), restored)
	}
	if tr.prevCursor == "" || indexOf(c.lists[CategoryNew], tr.prevCursor) >= 0 {
		c.cursor = tr.prevCursor
	}
}

// withTraceID tags log with the active span's trace id, if any.
func withTraceID(ctx context.Context, log logging.Logger) logging.Logger {
	if id := observability.GetTraceID(ctx); id != "" {
		return log.With(logging.F("trace_id", id))
	}
	return log
}

func (c *Coordinator) publish(ctx context.Context, tr Transition) {
	ev := events.TransitionEvent{
		BaseEvent:    events.NewBaseEvent(events.ChannelLeadStatusChanged),
		TransitionID: tr.ID,
		TenantID:     c.tenantID,
		LeadID:       tr.LeadID,
		SourceID:     tr.lead.SourceID,
		FromStatus:   string(tr.From),
		ToStatus:     string(tr.To),
		StartedAt:    tr.StartedAt,
		ConfirmedAt:  tr.SettledAt,
	}
	ev.CorrelationID = logging.RequestIDFromContext(ctx)
	if err := c.publisher.PublishTransition(context.WithoutCancel(ctx), ev); err != nil {
		c.logger.Warn("Failed to publish transition",
			logging.Err(err),
			logging.LeadID(tr.LeadID),
			logging.F("transition_id", tr.ID),
		)
	}
}

// waitIdle blocks until no transition is pending or ctx is done.
func (c *Coordinator) waitIdle(ctx context.Context) error {
	for {
		c.mu.Lock()
		if len(c.inflight) == 0 {
			c.mu.Unlock()
			return nil
		}
		idle := c.idle
		c.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Select opens leadID in the detail view. It reports whether the cursor
// moved; ids not in NEW are ignored.
func (c *Coordinator) Select(leadID string) bool {
	c.mu.Lock()
	if leadID == c.cursor || indexOf(c.lists[CategoryNew], leadID) < 0 {
		c.mu.Unlock()
		return false
	}
	c.cursor = leadID
	c.revision++
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return true
}

// Next moves the cursor to the following lead in NEW.
func (c *Coordinator) Next() bool { return c.step(1) }

// Prev moves the cursor to the preceding lead in NEW.
func (c *Coordinator) Prev() bool { return c.step(-1) }

func (c *Coordinator) step(delta int) bool {
	c.mu.Lock()
	list := c.lists[CategoryNew]
	if len(list) == 0 {
		c.mu.Unlock()
		return false
	}
	i := indexOf(list, c.cursor)
	switch {
	case i < 0:
		i = 0
	case i+delta < 0 || i+delta >= len(list):
		c.mu.Unlock()
		return false
	default:
		i += delta
	}
	c.cursor = list[i].ID
	c.revision++
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return true
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Selected returns the lead under the cursor.
func (c *Coordinator) Selected() (Lead, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := indexOf(c.lists[CategoryNew], c.cursor)
	if i < 0 {
		return Lead{}, false
	}
	return c.lists[CategoryNew][i].clone(), true
}

// List returns a copy of one category.
func (c *Coordinator) List(cat Category) []Lead {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cat >= numCategories {
		return nil
	}
	return cloneLeads(c.lists[cat])
}

// Counts returns per-category sizes.
func (c *Coordinator) Counts() map[Category]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Category]int, numCategories)
	for _, cat := range Categories {
		out[cat] = len(c.lists[cat])
	}
	return out
}

// Filter returns the filter of the last committed load.
func (c *Coordinator) Filter() Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// Pending returns the number of unconfirmed transitions.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// History returns recently settled transitions, oldest first.
func (c *Coordinator) History() []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Transition, len(c.history))
	copy(out, c.history)
	return out
}

func (c *Coordinator) pushHistoryLocked(tr Transition) {
	if len(c.history) == historySize {
		copy(c.history, c.history[1:])
		c.history = c.history[:historySize-1]
	}
	c.history = append(c.history, tr)
}

func (c *Coordinator) snapshotLocked() Snapshot {
	return Snapshot{
		New:       cloneLeads(c.lists[CategoryNew]),
		Completed: cloneLeads(c.lists[CategoryCompleted]),
		Discarded: cloneLeads(c.lists[CategoryDiscarded]),
		Leads:     cloneLeads(c.lists[CategoryLeads]),
		Selected:  c.cursor,
		Filter:    c.filter,
		Loading:   c.loading,
		LastError: c.lastErr,
		Pending:   len(c.inflight),
		Epoch:     c.epoch,
		Revision:  c.revision,
	}
}

func (c *Coordinator) notify(s Snapshot) {
	if c.observer != nil {
		c.observer(s)
	}
}

func (c *Coordinator) recordSizes(s Snapshot) {
	if c.metrics == nil {
		return
	}
	for cat, n := range s.Counts() {
		c.metrics.SetCategorySize(cat.String(), n)
	}
}

// restoreIndex finds where a rolled back lead re-enters NEW: right after
// the nearest earlier neighbour still present, else right before the
// nearest later one, else at its original index clamped to the list.
func restoreIndex(list []Lead, tr *Transition) int {
	for i := len(tr.before) - 1; i >= 0; i-- {
		if at := indexOf(list, tr.before[i]); at >= 0 {
			return at + 1
		}
	}
	for _, id := range tr.after {
		if at := indexOf(list, id); at >= 0 {
			return at
		}
	}
	return min(tr.origIndex, len(list))
}

func leadIDs(list []Lead) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = list[i].ID
	}
	return out
}

func indexOf(list []Lead, id string) int {
	if id == "" {
		return -1
	}
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func removeAt(list []Lead, i int) []Lead {
	out := make([]Lead, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...)
}

func insertAt(list []Lead, i int, l Lead) []Lead {
	out := make([]Lead, 0, len(list)+1)
	out = append(out, list[:i]...)
	out = append(out, l)
	return append(out, list[i:]...)
}

func cloneLeads(list []Lead) []Lead {
	if list == nil {
		return nil
	}
	out := make([]Lead, len(list))
	for i := range list {
		out[i] = list[i].clone()
	}
	return out
}
