package sensor_test

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"procodus.dev/lab-services/internal/sensor"
	"procodus.dev/lab-services/pkg/logger"
	"procodus.dev/lab-services/pkg/metrics"
	"procodus.dev/lab-services/pkg/serial/mock"
)

var _ = Describe("Reader", func() {
	var (
		slot    *sensor.Slot
		opener  *mock.Opener
		m       *metrics.SensorMetrics
		ctx     context.Context
		cancel  context.CancelFunc
		runDone chan error
	)

	fastBackOff := func() backoff.BackOff {
		return backoff.NewConstantBackOff(5 * time.Millisecond)
	}

	newReader := func(newBackOff func() backoff.BackOff) *sensor.Reader {
		r, err := sensor.NewReader(sensor.ReaderConfig{
			Logger:     logger.Discard(),
			Opener:     opener,
			Slot:       slot,
			NewBackOff: newBackOff,
			Metrics:    m,
		})
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		return r
	}

	start := func(r *sensor.Reader) {
		done, runCtx := runDone, ctx
		go func() {
			done <- r.Run(runCtx)
		}()
	}

	BeforeEach(func() {
		slot = &sensor.Slot{}
		opener = mock.NewOpener()
		m = metrics.NewSensorMetrics(prometheus.NewRegistry(), "test")
		ctx, cancel = context.WithCancel(context.Background())
		runDone = make(chan error, 1)
		DeferCleanup(cancel)
	})

	Describe("NewReader", func() {
		It("should require a logger, an opener and a slot", func() {
			_, err := sensor.NewReader(sensor.ReaderConfig{Opener: opener, Slot: slot})
			Expect(err).To(MatchError(ContainSubstring("logger")))

			_, err = sensor.NewReader(sensor.ReaderConfig{Logger: logger.Discard(), Slot: slot})
			Expect(err).To(MatchError(ContainSubstring("opener")))

			_, err = sensor.NewReader(sensor.ReaderConfig{Logger: logger.Discard(), Opener: opener})
			Expect(err).To(MatchError(ContainSubstring("slot")))
		})

		It("should start in the starting state", func() {
			Expect(newReader(nil).Status().State).To(Equal(sensor.StateStarting))
		})
	})

	It("should store the last byte of each read", func() {
		t := mock.NewTransport()
		opener.QueueTransport(t)
		r := newReader(fastBackOff)
		start(r)

		t.Feed(10, 20, 23)

		Eventually(func() float64 {
			reading, _ := slot.Load()
			return reading.Celsius
		}).Should(Equal(23.0))

		status := r.Status()
		Expect(status.State).To(Equal(sensor.StateConnected))
		Expect(status.BytesRead).To(Equal(uint64(3)))
		Expect(status.LastReadingAt).NotTo(BeNil())
		Expect(testutil.ToFloat64(m.ReaderBytes)).To(Equal(3.0))
		Expect(testutil.ToFloat64(m.ReaderConnected)).To(Equal(1.0))
	})

	It("should keep the previous reading across empty reads", func() {
		t := mock.NewTransport()
		opener.QueueTransport(t)
		start(newReader(fastBackOff))

		t.Feed(25)
		Eventually(func() bool {
			_, ok := slot.Load()
			return ok
		}).Should(BeTrue())

		Consistently(func() float64 {
			reading, _ := slot.Load()
			return reading.Celsius
		}, 50*time.Millisecond).Should(Equal(25.0))
	})

	It("should reconnect after a transport failure", func() {
		first := mock.NewTransport()
		second := mock.NewTransport()
		opener.QueueTransport(first)
		opener.QueueTransport(second)
		r := newReader(fastBackOff)
		start(r)

		first.Fail(errors.New("device unplugged"))

		Eventually(first.Closed).Should(BeTrue())
		Eventually(func() int { return opener.Calls() }).Should(Equal(2))

		second.Feed(22)
		Eventually(func() float64 {
			reading, _ := slot.Load()
			return reading.Celsius
		}).Should(Equal(22.0))

		status := r.Status()
		Expect(status.State).To(Equal(sensor.StateConnected))
		Expect(status.Reconnects).To(Equal(uint64(1)))
		Expect(status.LastError).To(ContainSubstring("device unplugged"))
		Expect(testutil.ToFloat64(m.ReaderReconnects)).To(Equal(1.0))
	})

	It("should keep retrying when the port cannot be opened", func() {
		opener.QueueError(errors.New("no such device"))
		opener.QueueError(errors.New("no such device"))
		t := mock.NewTransport()
		opener.QueueTransport(t)
		r := newReader(fastBackOff)
		start(r)

		t.Feed(19)

		Eventually(func() float64 {
			reading, _ := slot.Load()
			return reading.Celsius
		}).Should(Equal(19.0))
		Expect(r.Status().Reconnects).To(Equal(uint64(2)))
	})

	It("should stop cleanly and close the transport on cancellation", func() {
		t := mock.NewTransport()
		opener.QueueTransport(t)
		r := newReader(fastBackOff)
		start(r)

		Eventually(func() sensor.ReaderState { return r.Status().State }).Should(Equal(sensor.StateConnected))

		cancel()

		Eventually(runDone).Should(Receive(BeNil()))
		Expect(t.Closed()).To(BeTrue())
		Expect(r.Status().State).To(Equal(sensor.StateStopped))
		Expect(testutil.ToFloat64(m.ReaderConnected)).To(Equal(0.0))
	})

	It("should stop while waiting to reconnect", func() {
		slow := func() backoff.BackOff { return backoff.NewConstantBackOff(time.Hour) }
		r := newReader(slow)
		start(r)

		Eventually(func() sensor.ReaderState { return r.Status().State }).Should(Equal(sensor.StateReconnecting))

		cancel()
		Eventually(runDone).Should(Receive(BeNil()))
	})

	It("should return an error when the backoff policy gives up", func() {
		r := newReader(func() backoff.BackOff { return &backoff.StopBackOff{} })
		start(r)

		var err error
		Eventually(runDone).Should(Receive(&err))
		Expect(err).To(MatchError(io.EOF))
		Expect(r.Status().State).To(Equal(sensor.StateStopped))
	})
})
