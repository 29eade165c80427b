package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/lab-services/internal/sensor"
	"procodus.dev/lab-services/pkg/metrics"
	"procodus.dev/lab-services/pkg/serial"
)

var sensorCmd = &cobra.Command{
	Use:   "sensor",
	Short: "Run the sensor server",
	Long: `Run the sensor HTTP server that:
- Reads the attached temperature sensor over a serial port in the background
- Keeps a display scale (Celsius, Fahrenheit, Kelvin) per sensor in JSON config files
- Serves readings converted to the configured scale
- Publishes config change events to RabbitMQ when configured`,
	RunE: runSensor,
}

func init() {
	rootCmd.AddCommand(sensorCmd)

	sensorCmd.Flags().Int("http-port", 8081, "HTTP server port")
	sensorCmd.Flags().String("config-dir", "./sensors", "Directory holding sensor config files")
	sensorCmd.Flags().String("source", sensor.SourceSimulated, "Reading source (simulated, serial)")
	sensorCmd.Flags().String("serial-port", "", "Serial port of the sensor, e.g. /dev/ttyUSB0 (empty disables the reader)")
	sensorCmd.Flags().Int("baud-rate", serial.DefaultBaudRate, "Serial baud rate")
	sensorCmd.Flags().Duration("read-timeout", serial.DefaultReadTimeout, "Timeout of a single serial read")
	sensorCmd.Flags().String("rabbitmq-url", "", "RabbitMQ URL for change events (empty disables them)")
	sensorCmd.Flags().String("queue-name", "sensor-events", "RabbitMQ queue name for change events")

	bindFlags(sensorCmd.Flags(), map[string]string{
		"sensor.http.port":           "http-port",
		"sensor.config_dir":          "config-dir",
		"sensor.source":              "source",
		"sensor.serial.port":         "serial-port",
		"sensor.serial.baud_rate":    "baud-rate",
		"sensor.serial.read_timeout": "read-timeout",
		"sensor.events.rabbitmq_url": "rabbitmq-url",
		"sensor.events.queue_name":   "queue-name",
	})
}

func runSensor(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting sensor service")

	var opener serial.Opener
	if port := viper.GetString("sensor.serial.port"); port != "" {
		portOpener, err := serial.NewPortOpener(serial.Config{
			Port:        port,
			BaudRate:    viper.GetInt("sensor.serial.baud_rate"),
			ReadTimeout: viper.GetDuration("sensor.serial.read_timeout"),
		})
		if err != nil {
			logger.Error("invalid serial configuration", "error", err)
			return err
		}
		opener = portOpener

		cfg := portOpener.Config()
		logger.Info("serial reader enabled",
			"port", cfg.Port,
			"baud_rate", cfg.BaudRate,
			"read_timeout", cfg.ReadTimeout.String(),
		)
	}

	publisher, err := newPublisher(logger,
		viper.GetString("sensor.events.rabbitmq_url"),
		viper.GetString("sensor.events.queue_name"),
	)
	if err != nil {
		logger.Error("failed to create event publisher", "error", err)
		return err
	}

	config := &sensor.ServerConfig{
		Logger:      logger,
		HTTPPort:    viper.GetInt("sensor.http.port"),
		ConfigDir:   viper.GetString("sensor.config_dir"),
		Source:      viper.GetString("sensor.source"),
		Opener:      opener,
		Publisher:   publisher,
		Metrics:     metrics.NewSensorMetrics(metrics.Registry, ""),
		HTTPMetrics: metrics.NewHTTPMetrics(metrics.Registry, ""),
		Gatherer:    metrics.Registry,
	}

	server, err := sensor.NewServer(config)
	if err != nil {
		_ = publisher.Close()
		logger.Error("failed to create sensor server", "error", err)
		return err
	}

	logger.Info("sensor server configuration",
		"http_port", config.HTTPPort,
		"config_dir", config.ConfigDir,
		"source", config.Source,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("sensor server error", "error", err)
		return err
	}

	logger.Info("sensor server stopped")
	return nil
}
