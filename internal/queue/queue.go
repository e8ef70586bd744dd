package queue

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"kvadrat/server/internal/models"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// ListingQueue buffers batches of ingested listings between the HTTP
// handler and the batch processors. Push never blocks the caller; a full
// buffer is reported as an error so the API can answer 503 instead of
// stalling a request.
type ListingQueue struct {
	items    chan []*models.Listing
	done     chan struct{}
	maxSize  int
	closed   bool
	mu       sync.RWMutex
	logger   *logrus.Logger
	handlers []func([]*models.Listing) error
}

func NewListingQueue(bufferSize int, logger *logrus.Logger) *ListingQueue {
	return &ListingQueue{
		items:    make(chan []*models.Listing, bufferSize),
		done:     make(chan struct{}),
		maxSize:  bufferSize,
		logger:   logger,
		handlers: make([]func([]*models.Listing) error, 0),
	}
}

// Push enqueues one batch. The read lock is held across the send so Close
// cannot close the channel under an in-flight push.
func (q *ListingQueue) Push(listings []*models.Listing) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- listings:
		q.logger.WithField("batch_size", len(listings)).Debug("Pushed batch to queue")
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe registers a handler invoked for every dequeued batch.
func (q *ListingQueue) Subscribe(handler func([]*models.Listing) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start launches the dispatch loop.
func (q *ListingQueue) Start() {
	go q.run()
}

func (q *ListingQueue) run() {
	for {
		select {
		case <-q.done:
			// Drain what was accepted before the close so no batch is
			// dropped, then exit.
			for {
				select {
				case batch := <-q.items:
					q.dispatch(batch)
				default:
					return
				}
			}
		case batch := <-q.items:
			q.dispatch(batch)
		}
	}
}

// dispatch feeds one batch to every registered handler. A failing handler
// is logged and does not stop the others.
func (q *ListingQueue) dispatch(batch []*models.Listing) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(batch); err != nil {
			q.logger.WithError(err).Error("Handler failed to process batch")
		}
	}
}

// Close rejects further pushes. The items channel stays open; the dispatch
// loop drains any buffered batches and stops on its own.
func (q *ListingQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.done)
	return nil
}

// Len reports the number of batches currently buffered.
func (q *ListingQueue) Len() int {
	return len(q.items)
}

// IsClosed reports whether Close has been called.
func (q *ListingQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
