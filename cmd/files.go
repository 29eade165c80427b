package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/lab-services/internal/filestore"
	"procodus.dev/lab-services/pkg/metrics"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Run the file store server",
	Long: `Run the file store HTTP server that:
- Lists, reads, creates, updates and deletes text files in one directory
- Names files created without a name by timestamp
- Publishes change events to RabbitMQ when configured
- Exposes Prometheus metrics on /metrics`,
	RunE: runFiles,
}

func init() {
	rootCmd.AddCommand(filesCmd)

	filesCmd.Flags().Int("http-port", 8080, "HTTP server port")
	filesCmd.Flags().String("base-dir", "./files", "Directory holding the managed files")
	filesCmd.Flags().String("rabbitmq-url", "", "RabbitMQ URL for change events (empty disables them)")
	filesCmd.Flags().String("queue-name", "file-events", "RabbitMQ queue name for change events")

	bindFlags(filesCmd.Flags(), map[string]string{
		"files.http.port":           "http-port",
		"files.base_dir":            "base-dir",
		"files.events.rabbitmq_url": "rabbitmq-url",
		"files.events.queue_name":   "queue-name",
	})
}

func runFiles(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting file store service")

	publisher, err := newPublisher(logger,
		viper.GetString("files.events.rabbitmq_url"),
		viper.GetString("files.events.queue_name"),
	)
	if err != nil {
		logger.Error("failed to create event publisher", "error", err)
		return err
	}

	config := &filestore.ServerConfig{
		Logger:      logger,
		HTTPPort:    viper.GetInt("files.http.port"),
		BaseDir:     viper.GetString("files.base_dir"),
		Publisher:   publisher,
		Metrics:     metrics.NewFileStoreMetrics(metrics.Registry, ""),
		HTTPMetrics: metrics.NewHTTPMetrics(metrics.Registry, ""),
		Gatherer:    metrics.Registry,
	}

	server, err := filestore.NewServer(config)
	if err != nil {
		_ = publisher.Close()
		logger.Error("failed to create file store server", "error", err)
		return err
	}

	logger.Info("file store server configuration",
		"http_port", config.HTTPPort,
		"base_dir", config.BaseDir,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("file store server error", "error", err)
		return err
	}

	logger.Info("file store server stopped")
	return nil
}
