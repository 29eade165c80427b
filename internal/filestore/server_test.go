package filestore_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"

	"procodus.dev/lab-services/internal/filestore"
	"procodus.dev/lab-services/pkg/events/mock"
	"procodus.dev/lab-services/pkg/logger"
)

var _ = Describe("File Store Server", func() {
	var validConfig func() *filestore.ServerConfig

	BeforeEach(func() {
		validConfig = func() *filestore.ServerConfig {
			return &filestore.ServerConfig{
				Logger:   logger.Discard(),
				HTTPPort: 8080,
				BaseDir:  "files",
				Fs:       afero.NewMemMapFs(),
			}
		}
	})

	Describe("NewServer", func() {
		Context("with valid configuration", func() {
			It("should create a server", func() {
				server, err := filestore.NewServer(validConfig())
				Expect(err).NotTo(HaveOccurred())
				Expect(server).NotTo(BeNil())
			})

			It("should create the base directory on startup", func() {
				cfg := validConfig()
				cfg.BaseDir = "data/files"

				_, err := filestore.NewServer(cfg)
				Expect(err).NotTo(HaveOccurred())

				ok, err := afero.DirExists(cfg.Fs, "data/files")
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
			})
		})

		Context("with invalid configuration", func() {
			It("should return error when config is nil", func() {
				server, err := filestore.NewServer(nil)
				Expect(err).To(MatchError(ContainSubstring("config cannot be nil")))
				Expect(server).To(BeNil())
			})

			It("should return error when logger is nil", func() {
				cfg := validConfig()
				cfg.Logger = nil

				server, err := filestore.NewServer(cfg)
				Expect(err).To(MatchError(ContainSubstring("logger")))
				Expect(server).To(BeNil())
			})

			It("should return error when HTTP port is not positive", func() {
				for _, port := range []int{0, -1} {
					cfg := validConfig()
					cfg.HTTPPort = port

					server, err := filestore.NewServer(cfg)
					Expect(err).To(MatchError(ContainSubstring("HTTP port")))
					Expect(server).To(BeNil())
				}
			})

			It("should return error when base directory is empty", func() {
				cfg := validConfig()
				cfg.BaseDir = ""

				server, err := filestore.NewServer(cfg)
				Expect(err).To(MatchError(ContainSubstring("base directory")))
				Expect(server).To(BeNil())
			})

			It("should return error when the base directory cannot be created", func() {
				cfg := validConfig()
				cfg.Fs = afero.NewReadOnlyFs(afero.NewMemMapFs())

				server, err := filestore.NewServer(cfg)
				Expect(err).To(HaveOccurred())
				Expect(server).To(BeNil())
			})
		})
	})

	Describe("Server Run", func() {
		It("should shutdown when context is canceled", func() {
			cfg := validConfig()
			cfg.HTTPPort = 18181

			server, err := filestore.NewServer(cfg)
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- server.Run(ctx)
			}()

			Eventually(done, 2*time.Second).Should(Receive(BeNil()))
		})

		It("should shutdown immediately with pre-canceled context", func() {
			cfg := validConfig()
			cfg.HTTPPort = 18182

			server, err := filestore.NewServer(cfg)
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			done := make(chan error, 1)
			go func() {
				done <- server.Run(ctx)
			}()

			Eventually(done, time.Second).Should(Receive())
		})
	})

	Describe("Server Shutdown", func() {
		It("should close the event publisher once across repeated calls", func() {
			publisher := mock.NewPublisher()
			cfg := validConfig()
			cfg.Publisher = publisher

			server, err := filestore.NewServer(cfg)
			Expect(err).NotTo(HaveOccurred())

			Expect(server.Shutdown()).To(Succeed())
			Expect(server.Shutdown()).To(Succeed())
			Expect(publisher.CloseCalls()).To(Equal(1))
		})

		It("should report a publisher close failure", func() {
			publisher := mock.NewPublisher()
			publisher.CloseError = errors.New("broker gone")
			cfg := validConfig()
			cfg.Publisher = publisher

			server, err := filestore.NewServer(cfg)
			Expect(err).NotTo(HaveOccurred())

			Expect(server.Shutdown()).To(MatchError(ContainSubstring("broker gone")))
		})
	})
})
