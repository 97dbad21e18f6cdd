// Package sync reconciles per-user exams between a remote document store and
// the local store. The first remote failure degrades the session for good and
// every later call is served locally.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"sync/atomic"

	"github.com/conorfennell/quizvault/internal/domain"
	"github.com/conorfennell/quizvault/internal/logging"
	"github.com/conorfennell/quizvault/internal/remote"
	"github.com/conorfennell/quizvault/internal/storage"
)

// ErrInvalidExam is returned when an exam cannot be written.
var ErrInvalidExam = errors.New("invalid exam")

// Reconciler mediates between the remote exam collections and the local
// store. Writes are last-write-wins by exam id.
type Reconciler struct {
	client  remote.Client
	session *Session
	local   *storage.Namespace
	logger  *slog.Logger

	mu   stdsync.Mutex
	subs map[*subscription]struct{}
}

type subscription struct {
	// ctx bounds the subscription's local reads.
	ctx      context.Context
	userID   string
	onChange func([]domain.Exam)
	onError  func(error)

	detached atomic.Bool
	// local is set once the subscription is served from the local store.
	local  atomic.Bool
	cancel func()
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// New builds a reconciler. A nil client degrades the session immediately.
func New(client remote.Client, session *Session, opts ...Option) *Reconciler {
	r := &Reconciler{
		client:  client,
		session: session,
		local:   session.Store().Namespace(storage.Exams),
		subs:    map[*subscription]struct{}{},
	}
	for _, o := range opts {
		o(r)
	}
	r.logger = logging.OrDefault(r.logger)
	session.watch(r.moveSubscriptionsLocal)
	if client == nil && session.degrade() {
		r.logger.Info("no remote store configured, running local-only")
	}
	return r
}

// Session returns the session the reconciler reports health to.
func (r *Reconciler) Session() *Session { return r.session }

func (r *Reconciler) remoteFailed(ctx context.Context, op, userID string, err error) *RemoteSyncError {
	rerr := &RemoteSyncError{Op: op, UserID: userID, Err: err}
	if r.session.degrade() {
		r.logger.Warn("remote sync failed, switching to local-only mode", "op", op, "user", userID, "error", err)
	}
	return rerr
}

// Subscribe delivers the user's full exam list to onChange whenever it
// changes. If the remote listener fails, the session is degraded, onError
// receives a *RemoteSyncError and one local snapshot follows; later local
// writes are pushed the same way. ctx bounds the subscription's local reads.
// The returned function detaches the listener; a callback already running may
// still finish.
func (r *Reconciler) Subscribe(ctx context.Context, userID string, onChange func([]domain.Exam), onError func(error)) func() {
	sub := &subscription{ctx: ctx, userID: userID, onChange: onChange, onError: onError}
	r.mu.Lock()
	r.subs[sub] = struct{}{}
	r.mu.Unlock()

	unsubscribe := func() {
		sub.detached.Store(true)
		r.mu.Lock()
		delete(r.subs, sub)
		cancel := sub.cancel
		r.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}

	if !r.session.Healthy() {
		sub.local.Store(true)
		r.deliverLocal(ctx, sub)
		return unsubscribe
	}

	onSnapshot := func(s remote.Snapshot) {
		if sub.detached.Load() || sub.local.Load() {
			return
		}
		// Another reconciler on the session may have degraded it.
		if !r.session.Healthy() {
			r.moveSubscriptionsLocal()
			return
		}
		// An empty cache answer is usually a cold cache; wait for the server.
		if s.FromCache && len(s.Docs) == 0 {
			return
		}
		sub.onChange(r.decode(userID, s.Docs))
	}
	onListenerError := func(err error) {
		if sub.detached.Load() || !sub.local.CompareAndSwap(false, true) {
			return
		}
		r.mu.Lock()
		cancel := sub.cancel
		r.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		rerr := r.remoteFailed(ctx, "subscribe", userID, err)
		if sub.onError != nil {
			sub.onError(rerr)
		}
		r.deliverLocal(ctx, sub)
	}

	cancel, err := r.client.Subscribe(ctx, remote.ExamsCollection(userID), onSnapshot, onListenerError)
	if err != nil {
		onListenerError(err)
		return unsubscribe
	}
	r.mu.Lock()
	sub.cancel = cancel
	r.mu.Unlock()
	if sub.local.Load() || sub.detached.Load() {
		cancel()
	}
	return unsubscribe
}

// moveSubscriptionsLocal detaches every remote listener and serves a local
// snapshot to its subscriber. It runs when the session degrades, whichever
// reconciler caused it.
func (r *Reconciler) moveSubscriptionsLocal() {
	type move struct {
		sub    *subscription
		cancel func()
	}
	r.mu.Lock()
	var moved []move
	for sub := range r.subs {
		if sub.local.CompareAndSwap(false, true) {
			moved = append(moved, move{sub: sub, cancel: sub.cancel})
		}
	}
	r.mu.Unlock()

	for _, m := range moved {
		if m.cancel != nil {
			m.cancel()
		}
		r.deliverLocal(m.sub.ctx, m.sub)
	}
}

func (r *Reconciler) deliverLocal(ctx context.Context, sub *subscription) {
	if sub.detached.Load() {
		return
	}
	exams, err := r.localList(ctx, sub.userID)
	if err != nil {
		r.logger.Error("failed to load local exams", "user", sub.userID, "error", err)
		if sub.onError != nil {
			sub.onError(err)
		}
		return
	}
	sub.onChange(exams)
}

// publishLocal pushes the user's local list to subscriptions served locally.
func (r *Reconciler) publishLocal(ctx context.Context, userID string) {
	r.mu.Lock()
	var targets []*subscription
	for sub := range r.subs {
		if sub.userID == userID && sub.local.Load() {
			targets = append(targets, sub)
		}
	}
	r.mu.Unlock()

	for _, sub := range targets {
		r.deliverLocal(ctx, sub)
	}
}

// decode turns remote documents into exams owned by userID whatever the
// documents say. Undecodable documents are skipped.
func (r *Reconciler) decode(userID string, docs []remote.Document) []domain.Exam {
	exams := make([]domain.Exam, 0, len(docs))
	for _, doc := range docs {
		var e domain.Exam
		if err := json.Unmarshal(doc.Data, &e); err != nil {
			r.logger.Warn("skipping undecodable remote exam", "user", userID, "id", doc.ID, "error", err)
			continue
		}
		e.ID = doc.ID
		e.OwnerID = userID
		exams = append(exams, e)
	}
	return exams
}

// Snapshot returns the user's exams.
func (r *Reconciler) Snapshot(ctx context.Context, userID string) ([]domain.Exam, error) {
	if r.session.Healthy() {
		snap, err := r.client.Get(ctx, remote.ExamsCollection(userID))
		if err == nil {
			return r.decode(userID, snap.Docs), nil
		}
		r.remoteFailed(ctx, "snapshot", userID, err)
	}
	return r.localList(ctx, userID)
}

// Upsert writes exam for userID, stamping the owner.
func (r *Reconciler) Upsert(ctx context.Context, userID string, exam domain.Exam) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidExam)
	}
	if exam.ID == "" {
		return fmt.Errorf("%w: exam id is required", ErrInvalidExam)
	}
	exam.OwnerID = userID
	if err := exam.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidExam, err)
	}

	if r.session.Healthy() {
		data, err := json.Marshal(exam)
		if err != nil {
			return fmt.Errorf("failed to encode exam %s: %w", exam.ID, err)
		}
		err = r.client.Set(ctx, remote.ExamsCollection(userID), exam.ID, data)
		if err == nil {
			return nil
		}
		r.remoteFailed(ctx, "upsert", userID, err)
	}

	err := r.updateLocal(ctx, userID, func(exams []domain.Exam) []domain.Exam {
		for i := range exams {
			if exams[i].ID == exam.ID {
				exams[i] = exam
				return exams
			}
		}
		return append(exams, exam)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert exam %s locally: %w", exam.ID, err)
	}
	return nil
}

// Delete removes one exam. Deleting a missing exam is not an error.
func (r *Reconciler) Delete(ctx context.Context, userID, examID string) error {
	if r.session.Healthy() {
		err := r.client.Delete(ctx, remote.ExamsCollection(userID), examID)
		if err == nil {
			return nil
		}
		r.remoteFailed(ctx, "delete", userID, err)
	}

	err := r.updateLocal(ctx, userID, func(exams []domain.Exam) []domain.Exam {
		kept := exams[:0]
		for _, e := range exams {
			if e.ID != examID {
				kept = append(kept, e)
			}
		}
		return kept
	})
	if err != nil {
		return fmt.Errorf("failed to delete exam %s locally: %w", examID, err)
	}
	return nil
}

// DeleteAll removes every exam of the user.
func (r *Reconciler) DeleteAll(ctx context.Context, userID string) error {
	if r.session.Healthy() {
		err := r.deleteAllRemote(ctx, userID)
		if err == nil {
			return nil
		}
		r.remoteFailed(ctx, "delete all", userID, err)
	}

	if err := r.local.Remove(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete exams of %s locally: %w", userID, err)
	}
	r.publishLocal(ctx, userID)
	return nil
}

func (r *Reconciler) deleteAllRemote(ctx context.Context, userID string) error {
	collection := remote.ExamsCollection(userID)
	snap, err := r.client.Get(ctx, collection)
	if err != nil {
		return err
	}
	for _, doc := range snap.Docs {
		if err := r.client.Delete(ctx, collection, doc.ID); err != nil {
			return err
		}
	}
	return nil
}

// Seed writes exams for a user who has none yet and reports whether it did.
func (r *Reconciler) Seed(ctx context.Context, userID string, exams []domain.Exam) (bool, error) {
	existing, err := r.Snapshot(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	for _, e := range exams {
		if err := r.Upsert(ctx, userID, e); err != nil {
			return false, fmt.Errorf("failed to seed exam %s: %w", e.ID, err)
		}
	}
	r.logger.Info("seeded exams", "user", userID, "count", len(exams))
	return true, nil
}

func (r *Reconciler) localList(ctx context.Context, userID string) ([]domain.Exam, error) {
	var exams []domain.Exam
	if _, err := r.local.Get(ctx, userID, &exams); err != nil {
		return nil, err
	}
	if exams == nil {
		exams = []domain.Exam{}
	}
	for i := range exams {
		exams[i].OwnerID = userID
	}
	return exams, nil
}

// updateLocal is a read-modify-write of the user's whole exam array. It is
// not atomic with respect to other writers.
func (r *Reconciler) updateLocal(ctx context.Context, userID string, fn func([]domain.Exam) []domain.Exam) error {
	exams, err := r.localList(ctx, userID)
	if err != nil {
		return err
	}
	if err := r.local.Set(ctx, userID, fn(exams)); err != nil {
		return err
	}
	r.publishLocal(ctx, userID)
	return nil
}
