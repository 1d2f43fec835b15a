package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/weewoocad/accounts/internal/api/metrics"
	"github.com/weewoocad/accounts/internal/core/ports"
)

const (
	defaultWorkers     = 4
	channelBuffer      = 256
	defaultSendTimeout = 30 * time.Second
)

// ErrQueueFull is returned when the target worker channel has no free slot.
var ErrQueueFull = errors.New("notification queue full")

// ErrDispatcherClosed is returned for messages submitted after Close.
var ErrDispatcherClosed = errors.New("notification dispatcher closed")

// SentMarker abstracts the delivery dedup store (Redis).
type SentMarker interface {
	MarkSent(ctx context.Context, token string) (bool, error)
	Unmark(ctx context.Context, token string) error
}

// Dispatcher routes verification messages to a fixed set of workers using
// consistent hashing on the recipient address, so messages for one address
// are delivered in order. It satisfies ports.Notifier; SendVerification only
// enqueues.
type Dispatcher struct {
	workers     []chan ports.VerificationMessage
	sender      ports.Notifier
	marker      SentMarker
	sendTimeout time.Duration
	log         zerolog.Logger
	wg          sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers delivering
// through sender. marker may be nil to disable dedup.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, sender ports.Notifier, marker SentMarker, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers:     make([]chan ports.VerificationMessage, numWorkers),
		sender:      sender,
		marker:      marker,
		sendTimeout: defaultSendTimeout,
		log:         log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.VerificationMessage, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Wait blocks until every worker has stopped.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting work. Workers deliver what is already queued and then
// exit. Later SendVerification calls fail with ErrDispatcherClosed.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, ch := range d.workers {
		close(ch)
	}
}

// SendVerification enqueues msg for the worker responsible for its address.
// It never blocks; a full channel drops the message with ErrQueueFull.
func (d *Dispatcher) SendVerification(_ context.Context, msg ports.VerificationMessage) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		return ErrDispatcherClosed
	}

	idx := d.shardIndex(msg.Email)
	select {
	case d.workers[idx] <- msg:
		metrics.NotificationQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
		return nil
	default:
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

// shardIndex maps an address deterministically to a worker index.
func (d *Dispatcher) shardIndex(email string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(email))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.VerificationMessage) {
	defer d.wg.Done()
	label := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			metrics.NotificationQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
			d.deliver(ctx, id, msg)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, id int, msg ports.VerificationMessage) {
	if d.marker != nil {
		claimed, err := d.marker.MarkSent(ctx, msg.Token)
		if err != nil {
			d.log.Warn().Err(err).Str("username", msg.Username).Msg("dedup check failed, sending anyway")
		} else if !claimed {
			metrics.NotificationsTotal.WithLabelValues("duplicate").Inc()
			d.log.Debug().Str("username", msg.Username).Msg("verification already sent, skipped")
			return
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	start := time.Now()
	err := d.sender.SendVerification(sendCtx, msg)
	metrics.NotificationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		d.log.Error().Err(err).
			Str("username", msg.Username).
			Int("worker_id", id).
			Msg("verification delivery failed")
		if d.marker != nil {
			if uerr := d.marker.Unmark(ctx, msg.Token); uerr != nil {
				d.log.Warn().Err(uerr).Str("username", msg.Username).Msg("failed to release dedup key")
			}
		}
		return
	}

	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	d.log.Info().Str("username", msg.Username).Int("worker_id", id).Msg("verification sent")
}
