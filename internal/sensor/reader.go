package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"procodus.dev/lab-services/pkg/metrics"
	"procodus.dev/lab-services/pkg/serial"
)

// ReaderState is the lifecycle state of a Reader.
type ReaderState string

// Reader states.
const (
	StateDisabled     ReaderState = "disabled"
	StateStarting     ReaderState = "starting"
	StateConnected    ReaderState = "connected"
	StateReconnecting ReaderState = "reconnecting"
	StateStopped      ReaderState = "stopped"
)

// readBufferSize bounds one transport read. Only the last byte is kept.
const readBufferSize = 64

// ReaderStatus is a snapshot of a Reader's health.
type ReaderStatus struct {
	State         ReaderState `json:"state"`
	LastError     string      `json:"last_error,omitempty"`
	Reconnects    uint64      `json:"reconnects"`
	BytesRead     uint64      `json:"bytes_read"`
	LastReadingAt *time.Time  `json:"last_reading_at,omitempty"`
}

// ReaderConfig holds the configuration for a Reader.
type ReaderConfig struct {
	Logger *slog.Logger
	Opener serial.Opener
	Slot   *Slot

	// NewBackOff builds the reconnect policy. Defaults to an exponential
	// backoff without an elapsed time limit.
	NewBackOff func() backoff.BackOff

	// Clock stamps readings. Defaults to time.Now.
	Clock func() time.Time

	Metrics *metrics.SensorMetrics
}

// Reader pulls bytes from a serial transport and stores the last one in a Slot.
// Transport failures are logged and the transport is reopened with backoff.
type Reader struct {
	logger     *slog.Logger
	opener     serial.Opener
	slot       *Slot
	newBackOff func() backoff.BackOff
	now        func() time.Time
	metrics    *metrics.SensorMetrics

	mu     sync.Mutex
	status ReaderStatus
}

// NewReader validates cfg and returns a Reader in the starting state.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Opener == nil {
		return nil, errors.New("serial opener cannot be nil")
	}
	if cfg.Slot == nil {
		return nil, errors.New("slot cannot be nil")
	}

	r := &Reader{
		logger:     cfg.Logger,
		opener:     cfg.Opener,
		slot:       cfg.Slot,
		newBackOff: cfg.NewBackOff,
		now:        cfg.Clock,
		metrics:    cfg.Metrics,
		status:     ReaderStatus{State: StateStarting},
	}
	if r.newBackOff == nil {
		r.newBackOff = defaultBackOff
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Run reads until ctx is canceled. It returns nil on cancellation and an
// error only if the backoff policy gives up.
func (r *Reader) Run(ctx context.Context) error {
	defer func() {
		r.metrics.SetReaderConnected(false)
		r.update(func(s *ReaderStatus) { s.State = StateStopped })
		r.logger.Info("serial reader stopped")
	}()

	b := r.newBackOff()
	b.Reset()

	for {
		healthy, err := r.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if healthy {
			b.Reset()
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			r.logger.Error("serial reader giving up", "error", err)
			return fmt.Errorf("serial reader stopped retrying: %w", err)
		}

		r.logger.Warn("serial transport failed, reconnecting",
			"error", err,
			"retry_in", wait,
		)
		r.metrics.SetReaderConnected(false)
		r.metrics.IncReaderReconnects()
		r.update(func(s *ReaderStatus) {
			s.State = StateReconnecting
			s.LastError = err.Error()
			s.Reconnects++
		})

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// session opens one transport and reads from it until it fails or ctx is canceled.
// healthy reports whether at least one byte was read.
func (r *Reader) session(ctx context.Context) (healthy bool, err error) {
	t, err := r.opener.Open(ctx)
	if err != nil {
		return false, fmt.Errorf("open: %w", err)
	}

	var closeOnce sync.Once
	closeTransport := func() {
		closeOnce.Do(func() {
			if cerr := t.Close(); cerr != nil {
				r.logger.Debug("failed to close serial transport", "error", cerr)
			}
		})
	}
	// Unblocks a pending Read on cancellation.
	stop := context.AfterFunc(ctx, closeTransport)
	defer func() {
		stop()
		closeTransport()
	}()

	r.logger.Info("serial transport connected")
	r.metrics.SetReaderConnected(true)
	r.update(func(s *ReaderStatus) { s.State = StateConnected })

	buf := make([]byte, readBufferSize)
	for {
		n, err := t.Read(buf)
		if n > 0 {
			reading := NewReading(buf[n-1], r.now())
			r.slot.Store(reading)
			r.metrics.AddReaderBytes(n)
			r.update(func(s *ReaderStatus) {
				s.BytesRead += uint64(n)
				at := reading.CapturedAt
				s.LastReadingAt = &at
			})
			healthy = true
		}
		if err != nil {
			return healthy, fmt.Errorf("read: %w", err)
		}
		if ctx.Err() != nil {
			return healthy, ctx.Err()
		}
	}
}

// Status returns a snapshot of the reader's health.
func (r *Reader) Status() ReaderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Reader) update(fn func(*ReaderStatus)) {
	r.mu.Lock()
	fn(&r.status)
	r.mu.Unlock()
}
