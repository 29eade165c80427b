// Package mock provides in-memory serial transports for testing.
package mock

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"procodus.dev/lab-services/pkg/serial"
)

// ErrClosed is returned by Read on a closed Transport.
var ErrClosed = errors.New("mock transport closed")

// Transport is a serial line fed from a channel of chunks.
// Each Read returns the next chunk, a queued error, or (0, nil) after ReadTimeout.
type Transport struct {
	ReadTimeout time.Duration

	chunks chan []byte
	errs   chan error
	closed chan struct{}
	once   sync.Once

	mu         sync.Mutex
	closeCalls int
}

// NewTransport creates an open Transport with a 10ms read timeout.
func NewTransport() *Transport {
	return &Transport{
		ReadTimeout: 10 * time.Millisecond,
		chunks:      make(chan []byte, 64),
		errs:        make(chan error, 8),
		closed:      make(chan struct{}),
	}
}

// Feed queues bytes for the next Read.
func (t *Transport) Feed(b ...byte) {
	t.chunks <- b
}

// Fail makes a subsequent Read return err, simulating a disconnect.
func (t *Transport) Fail(err error) {
	t.errs <- err
}

// Read implements serial.Transport.
func (t *Transport) Read(p []byte) (int, error) {
	select {
	case <-t.closed:
		return 0, ErrClosed
	default:
	}

	select {
	case <-t.closed:
		return 0, ErrClosed
	case err := <-t.errs:
		return 0, err
	case chunk := <-t.chunks:
		return copy(p, chunk), nil
	case <-time.After(t.ReadTimeout):
		return 0, nil
	}
}

// Close implements serial.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closeCalls++
	t.mu.Unlock()
	t.once.Do(func() { close(t.closed) })
	return nil
}

// Closed reports whether Close has been called.
func (t *Transport) Closed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// CloseCalls returns the number of Close calls.
func (t *Transport) CloseCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeCalls
}

// Opener hands out queued transports or errors in order.
// Once the queue is empty Open returns io.EOF.
type Opener struct {
	mu      sync.Mutex
	results []result
	calls   int
}

type result struct {
	t   serial.Transport
	err error
}

// NewOpener creates an Opener that returns the given transports in order.
func NewOpener(transports ...serial.Transport) *Opener {
	o := &Opener{}
	for _, t := range transports {
		o.results = append(o.results, result{t: t})
	}
	return o
}

// QueueTransport appends a successful open.
func (o *Opener) QueueTransport(t serial.Transport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result{t: t})
}

// QueueError appends a failed open.
func (o *Opener) QueueError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result{err: err})
}

// Open implements serial.Opener.
func (o *Opener) Open(ctx context.Context) (serial.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.calls++
	if len(o.results) == 0 {
		return nil, io.EOF
	}
	r := o.results[0]
	o.results = o.results[1:]
	return r.t, r.err
}

// Calls returns the number of Open calls.
func (o *Opener) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

// Ensure the mocks implement the serial interfaces.
var (
	_ serial.Transport = (*Transport)(nil)
	_ serial.Opener    = (*Opener)(nil)
)
