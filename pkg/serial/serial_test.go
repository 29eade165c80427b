package serial_test

import (
	"context"
	"errors"
	"io"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/lab-services/pkg/serial"
	"procodus.dev/lab-services/pkg/serial/mock"
)

var _ = Describe("Serial", func() {
	Describe("NewPortOpener", func() {
		It("should reject an empty port name", func() {
			opener, err := serial.NewPortOpener(serial.Config{})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("port name"))
			Expect(opener).To(BeNil())
		})

		It("should fill in defaults", func() {
			opener, err := serial.NewPortOpener(serial.Config{Port: "/dev/ttyUSB0"})
			Expect(err).NotTo(HaveOccurred())
			Expect(opener.Config().BaudRate).To(Equal(serial.DefaultBaudRate))
			Expect(opener.Config().ReadTimeout).To(Equal(serial.DefaultReadTimeout))
		})

		It("should keep explicit settings", func() {
			opener, err := serial.NewPortOpener(serial.Config{
				Port:        "COM3",
				BaudRate:    9600,
				ReadTimeout: time.Second,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(opener.Config().BaudRate).To(Equal(9600))
			Expect(opener.Config().ReadTimeout).To(Equal(time.Second))
		})

		It("should not open a port for a canceled context", func() {
			opener, err := serial.NewPortOpener(serial.Config{Port: "/dev/does-not-exist"})
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err = opener.Open(ctx)
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})

		It("should fail to open a nonexistent device", func() {
			opener, err := serial.NewPortOpener(serial.Config{Port: "/dev/does-not-exist"})
			Expect(err).NotTo(HaveOccurred())

			_, err = opener.Open(context.Background())
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("/dev/does-not-exist"))
		})
	})

	Describe("OpenerFunc", func() {
		It("should delegate to the function", func() {
			t := mock.NewTransport()
			opener := serial.OpenerFunc(func(context.Context) (serial.Transport, error) {
				return t, nil
			})

			got, err := opener.Open(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeIdenticalTo(t))
		})
	})

	Describe("mock.Transport", func() {
		It("should return fed bytes then time out with no data", func() {
			t := mock.NewTransport()
			t.Feed(0x17, 0x18)

			buf := make([]byte, 8)
			n, err := t.Read(buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(buf[:n]).To(Equal([]byte{0x17, 0x18}))

			n, err = t.Read(buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})

		It("should report errors and closure", func() {
			t := mock.NewTransport()
			t.Fail(io.ErrUnexpectedEOF)

			_, err := t.Read(make([]byte, 1))
			Expect(err).To(MatchError(io.ErrUnexpectedEOF))

			Expect(t.Close()).To(Succeed())
			Expect(t.Close()).To(Succeed())
			Expect(t.Closed()).To(BeTrue())
			Expect(t.CloseCalls()).To(Equal(2))

			_, err = t.Read(make([]byte, 1))
			Expect(err).To(MatchError(mock.ErrClosed))
		})
	})

	Describe("mock.Opener", func() {
		It("should hand out queued results in order then EOF", func() {
			t := mock.NewTransport()
			opener := mock.NewOpener()
			opener.QueueError(errors.New("busy"))
			opener.QueueTransport(t)

			_, err := opener.Open(context.Background())
			Expect(err).To(MatchError("busy"))

			got, err := opener.Open(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeIdenticalTo(t))

			_, err = opener.Open(context.Background())
			Expect(err).To(MatchError(io.EOF))
			Expect(opener.Calls()).To(Equal(3))
		})
	})
})
