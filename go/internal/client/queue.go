package client

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bingo/go/internal/apperr"
	"github.com/mcdev12/bingo/go/internal/bingo"
)

// DefaultMaxRetries is how many failed sends an action survives
const DefaultMaxRetries = 3

type ActionType string

const (
	ActionMark   ActionType = "mark"
	ActionUnmark ActionType = "unmark"
)

// PendingAction is a mark or unmark the server has not acknowledged yet
type PendingAction struct {
	ID         string     `json:"id"`
	Type       ActionType `json:"type"`
	Number     int        `json:"number"`
	Timestamp  time.Time  `json:"timestamp"`
	RetryCount int        `json:"retryCount"`
}

// QueueStore persists the ordered action list
type QueueStore interface {
	Load() ([]PendingAction, error)
	Save(actions []PendingAction) error
}

// Sender delivers queued actions
type Sender interface {
	Connected() bool
	SendAction(ctx context.Context, a PendingAction) error
}

// SyncResult summarizes one Sync pass
type SyncResult struct {
	Sent      int
	Dropped   int
	Remaining int
}

// Queue is the offline action queue. Every change is written through to the store.
type Queue struct {
	store      QueueStore
	maxRetries int

	mu      sync.Mutex
	actions []PendingAction
	syncing bool
}

// NewQueue loads persisted actions. Unreadable data starts an empty queue.
func NewQueue(store QueueStore, maxRetries int) *Queue {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	q := &Queue{store: store, maxRetries: maxRetries}

	actions, err := store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("discarding unreadable pending actions")
		actions = nil
		if err := store.Save(nil); err != nil {
			log.Error().Err(err).Msg("failed to reset pending actions")
		}
	}
	q.actions = sortedActions(actions)
	return q
}

// Enqueue appends an action and persists the queue
func (q *Queue) Enqueue(a PendingAction) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions = append(q.actions, a)
	return q.saveLocked()
}

// Pending returns a copy of the queued actions in replay order
func (q *Queue) Pending() []PendingAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	return sortedActions(q.actions)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

// Sync replays queued actions in timestamp order. It does nothing when the
// queue is empty, a pass is already running, or the sender is offline.
// Actions enqueued while a pass runs are picked up by that same pass. A
// retryable failure below the ceiling ends the pass so later actions never
// overtake it; the returned error is that failure.
func (q *Queue) Sync(ctx context.Context, sender Sender) (SyncResult, error) {
	q.mu.Lock()
	if q.syncing || len(q.actions) == 0 || !sender.Connected() {
		res := SyncResult{Remaining: len(q.actions)}
		q.mu.Unlock()
		return res, nil
	}
	q.syncing = true
	batch := sortedActions(q.actions)
	q.mu.Unlock()

	var res SyncResult
	for {
		if err := q.replay(ctx, sender, batch, &res); err != nil {
			q.mu.Lock()
			q.syncing = false
			res.Remaining = len(q.actions)
			q.mu.Unlock()
			return res, err
		}

		// checked under the lock that clears syncing, so an Enqueue racing
		// this point either joins the next batch or starts its own pass
		q.mu.Lock()
		if len(q.actions) == 0 || !sender.Connected() {
			q.syncing = false
			res.Remaining = len(q.actions)
			q.mu.Unlock()
			return res, nil
		}
		batch = sortedActions(q.actions)
		q.mu.Unlock()
	}
}

func (q *Queue) replay(ctx context.Context, sender Sender, batch []PendingAction, res *SyncResult) error {
	for _, a := range batch {
		err := sender.SendAction(ctx, a)
		if err == nil {
			q.remove(a.ID)
			res.Sent++
			continue
		}

		if rejected(err) {
			log.Warn().
				Err(err).
				Str("action_id", a.ID).
				Str("type", string(a.Type)).
				Int("number", a.Number).
				Msg("server rejected pending action, dropping it")
			q.remove(a.ID)
			res.Dropped++
			continue
		}

		// failures while offline do not count toward the ceiling
		if apperr.Retryable(err) && !sender.Connected() {
			return err
		}

		if retries := q.bumpRetry(a.ID); retries >= q.maxRetries {
			log.Warn().
				Err(err).
				Str("action_id", a.ID).
				Int("retries", retries).
				Msg("pending action hit retry ceiling, dropping it")
			q.remove(a.ID)
			res.Dropped++
			continue
		}
		return err
	}
	return nil
}

// rejected reports a definitive server refusal that retrying cannot change
func rejected(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound, apperr.KindInvalidState, apperr.KindInvalidArgument, apperr.KindUnauthenticated:
		return true
	default:
		return false
	}
}

func (q *Queue) remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, a := range q.actions {
		if a.ID == id {
			q.actions = append(q.actions[:i:i], q.actions[i+1:]...)
			break
		}
	}
	if err := q.saveLocked(); err != nil {
		log.Error().Err(err).Msg("failed to persist pending actions")
	}
}

func (q *Queue) bumpRetry(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for i := range q.actions {
		if q.actions[i].ID == id {
			q.actions[i].RetryCount++
			count = q.actions[i].RetryCount
			break
		}
	}
	if err := q.saveLocked(); err != nil {
		log.Error().Err(err).Msg("failed to persist pending actions")
	}
	return count
}

func (q *Queue) saveLocked() error {
	return q.store.Save(q.actions)
}

func sortedActions(actions []PendingAction) []PendingAction {
	out := append([]PendingAction(nil), actions...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Merge applies pending actions, in order, on top of the server's marks so an
// unacknowledged action is never visually lost
func Merge(serverMarks []int, pending []PendingAction) []int {
	marks := bingo.NewMarkSet(serverMarks)
	for _, a := range sortedActions(pending) {
		if !bingo.ValidNumber(a.Number) {
			continue
		}
		switch a.Type {
		case ActionMark:
			marks[a.Number] = struct{}{}
		case ActionUnmark:
			delete(marks, a.Number)
		}
	}
	return marks.Sorted()
}
