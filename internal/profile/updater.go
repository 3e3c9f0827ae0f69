package profile

import (
	"context"
	"log"
	"time"

	"vowline/internal/domain"
)

// Update is one observed outcome queued for asynchronous aggregation.
type Update struct {
	VendorID     string
	Category     string
	DelayMinutes float64
	OnTime       bool
}

// PersistFunc writes an updated profile back to durable storage.
type PersistFunc func(ctx context.Context, p domain.VendorPerformanceProfile) error

// Updater is the asynchronous write path: recordActuals enqueues, a single
// worker folds updates into the Store and persists the result. Keeping one
// worker serializes writes without ever blocking readers.
type Updater struct {
	Store   *Store
	Persist PersistFunc
	Now     func() time.Time

	queue chan Update
	done  chan struct{}
}

func NewUpdater(store *Store, persist PersistFunc) *Updater {
	return &Updater{
		Store:   store,
		Persist: persist,
		Now:     time.Now,
		queue:   make(chan Update, 64),
		done:    make(chan struct{}),
	}
}

// Start runs the worker until ctx is canceled or the queue is closed.
func (u *Updater) Start(ctx context.Context) {
	go func() {
		defer close(u.done)
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-u.queue:
				if !ok {
					return
				}
				u.apply(ctx, upd)
			}
		}
	}()
}

// Enqueue hands an update to the worker. Blocks only if the queue is full,
// which bounds memory under a burst of post-event recordings.
func (u *Updater) Enqueue(upd Update) {
	u.queue <- upd
}

// Close drains and stops the worker.
func (u *Updater) Close() {
	close(u.queue)
	<-u.done
}

func (u *Updater) apply(ctx context.Context, upd Update) {
	p := u.Store.Apply(upd.VendorID, upd.Category, upd.DelayMinutes, upd.OnTime, u.Now())
	if u.Persist == nil {
		return
	}
	if err := u.Persist(ctx, p); err != nil {
		log.Printf("profile: persist %s/%s failed: %v", upd.VendorID, upd.Category, err)
	}
}
