package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/lab-services/pkg/logger"
)

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("should create a non-nil logger from a nil config", func() {
			Expect(logger.New(nil)).NotTo(BeNil())
		})

		It("should write JSON records by default", func() {
			buf := &bytes.Buffer{}
			log := logger.New(&logger.Config{Output: buf, Level: slog.LevelInfo})

			log.Info("file written", "filename", "a.txt", "size", 3)

			var entry map[string]interface{}
			Expect(json.Unmarshal(buf.Bytes(), &entry)).To(Succeed())
			Expect(entry).To(HaveKeyWithValue("msg", "file written"))
			Expect(entry).To(HaveKeyWithValue("filename", "a.txt"))
			Expect(entry).To(HaveKeyWithValue("size", float64(3)))
		})

		It("should write key=value records in text format", func() {
			buf := &bytes.Buffer{}
			log := logger.New(&logger.Config{Output: buf, Format: logger.FormatText})

			log.Info("config created", "sensor_id", "s1")

			Expect(buf.String()).To(ContainSubstring("msg=\"config created\""))
			Expect(buf.String()).To(ContainSubstring("sensor_id=s1"))
		})
	})

	Describe("Level filtering", func() {
		DescribeTable("should respect the configured level",
			func(level slog.Level, logFunc func(*slog.Logger), shouldAppear bool) {
				buf := &bytes.Buffer{}
				log := logger.New(&logger.Config{Level: level, Output: buf})

				logFunc(log)

				Expect(len(strings.TrimSpace(buf.String())) > 0).To(Equal(shouldAppear))
			},
			Entry("debug at debug", slog.LevelDebug, func(l *slog.Logger) { l.Debug("m") }, true),
			Entry("debug at info", slog.LevelInfo, func(l *slog.Logger) { l.Debug("m") }, false),
			Entry("warn at info", slog.LevelInfo, func(l *slog.Logger) { l.Warn("m") }, true),
			Entry("info at error", slog.LevelError, func(l *slog.Logger) { l.Info("m") }, false),
		)
	})

	Describe("ParseLevel", func() {
		DescribeTable("should parse level strings",
			func(input string, expected slog.Level) {
				Expect(logger.ParseLevel(input)).To(Equal(expected))
			},
			Entry("debug", "debug", slog.LevelDebug),
			Entry("upper case", "DEBUG", slog.LevelDebug),
			Entry("info", "info", slog.LevelInfo),
			Entry("warning", "warning", slog.LevelWarn),
			Entry("error", "error", slog.LevelError),
			Entry("unknown defaults to info", "verbose", slog.LevelInfo),
			Entry("empty defaults to info", "", slog.LevelInfo),
		)
	})

	Describe("ParseFormat", func() {
		It("should recognise text", func() {
			Expect(logger.ParseFormat("Text")).To(Equal(logger.FormatText))
		})

		It("should fall back to JSON", func() {
			Expect(logger.ParseFormat("yaml")).To(Equal(logger.FormatJSON))
		})
	})

	Describe("ForComponent", func() {
		It("should tag every record with the component", func() {
			buf := &bytes.Buffer{}
			log := logger.ForComponent(logger.New(&logger.Config{Output: buf}), "filestore")

			log.Info("listing")

			var entry map[string]interface{}
			Expect(json.Unmarshal(buf.Bytes(), &entry)).To(Succeed())
			Expect(entry).To(HaveKeyWithValue("component", "filestore"))
		})
	})

	Describe("Discard", func() {
		It("should not panic when logging", func() {
			Expect(func() { logger.Discard().Error("ignored") }).NotTo(Panic())
		})
	})
})
