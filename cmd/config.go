package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"procodus.dev/lab-services/pkg/events"
	"procodus.dev/lab-services/pkg/logger"
	"procodus.dev/lab-services/pkg/metrics"
)

// envPrefix scopes environment overrides, e.g. LABSVC_FILES_HTTP_PORT.
const envPrefix = "LABSVC"

// InitConfig initializes Viper configuration.
// Sources in increasing precedence: config file, .env file, environment, flags.
func InitConfig(cfgFile string) error {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/labsvc/")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if errors.As(err, &configNotFoundErr) {
			// Config file not found; rely on env vars and defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// GetLogger creates a slog.Logger based on configuration.
func GetLogger() *slog.Logger {
	return logger.New(&logger.Config{
		Output: os.Stdout,
		Format: logger.ParseFormat(viper.GetString("log.format")),
		Level:  logger.ParseLevel(viper.GetString("log.level")),
	})
}

// newPublisher returns a RabbitMQ event publisher, or events.Nop when url is empty.
func newPublisher(log *slog.Logger, url, queue string) (events.Publisher, error) {
	if url == "" {
		log.Info("change events disabled, no RabbitMQ URL configured")
		return events.Nop{}, nil
	}

	client, err := events.NewClient(events.Config{
		URL:       url,
		QueueName: queue,
		Logger:    logger.ForComponent(log, "events"),
		Metrics:   metrics.NewEventsMetrics(metrics.Registry, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}
	return client, nil
}
