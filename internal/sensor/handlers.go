package sensor

import (
	"encoding/json"
	"errors"
	"net/http"

	"procodus.dev/lab-services/internal/httpx"
	"procodus.dev/lab-services/pkg/events"
)

// configRequest is the body of config create and update. A missing scale means Celsius.
// Scale is kept raw so an explicit null or a non-string value can be rejected.
type configRequest struct {
	Scale json.RawMessage `json:"scale"`
}

type listResponse struct {
	Sensors []string `json:"sensors"`
}

type readingResponse struct {
	SensorID string  `json:"sensor_id"`
	Value    float64 `json:"value"`
	Scale    Scale   `json:"scale"`
}

type configResponse struct {
	Message string `json:"message"`
	Scale   Scale  `json:"scale"`
}

type healthResponse struct {
	Status string       `json:"status"`
	Source string       `json:"source"`
	Reader ReaderStatus `json:"reader"`
}

// handleList serves the ids of every configured sensor.
func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	ids, err := s.configs.List()
	if err != nil {
		s.logger.Error("failed to list sensor configs", "error", err)
		httpx.WriteError(w, s.logger, http.StatusInternalServerError, "internal server error")
		return
	}
	httpx.WriteJSON(w, s.logger, http.StatusOK, listResponse{Sensors: ids})
}

// handleRead serves the current reading of a sensor in its configured scale.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.logger.Debug("handling read request", "sensor_id", id)

	scale, _, err := s.configs.Load(id)
	if err != nil {
		if errors.Is(err, ErrInvalidSensorID) {
			httpx.WriteError(w, s.logger, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("failed to load sensor config", "sensor_id", id, "error", err)
		httpx.WriteError(w, s.logger, http.StatusInternalServerError, "internal server error")
		return
	}

	celsius, err := s.source.Celsius()
	if err != nil {
		if errors.Is(err, ErrNoReading) {
			httpx.WriteError(w, s.logger, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.logger.Error("failed to obtain reading", "sensor_id", id, "error", err)
		httpx.WriteError(w, s.logger, http.StatusInternalServerError, "internal server error")
		return
	}

	s.metrics.ObserveReading(string(scale), s.source.Name())
	httpx.WriteJSON(w, s.logger, http.StatusOK, readingResponse{
		SensorID: id,
		Value:    Convert(celsius, scale),
		Scale:    scale,
	})
}

// handleCreate creates a sensor config.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	scale, err := decodeScale(r)
	if err != nil {
		s.metrics.ObserveConfig("create", "invalid")
		httpx.WriteError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.configs.Create(id, scale); err != nil {
		s.configError(w, "create", err)
		return
	}

	s.logger.Info("sensor config created", "sensor_id", id, "scale", scale)
	s.metrics.ObserveConfig("create", "success")
	s.publisher.Publish(events.New(events.TypeConfigCreated, id, "scale", string(scale)))

	httpx.WriteJSON(w, s.logger, http.StatusCreated, configResponse{Message: "Config created", Scale: scale})
}

// handleUpdateByID updates the config derived from the sensor id.
func (s *Server) handleUpdateByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.update(w, r, id, FileName(id), func(scale Scale) error {
		return s.configs.UpdateByID(id, scale)
	})
}

// handleUpdateFile updates the config stored under a literal file name.
func (s *Server) handleUpdateFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	file := r.PathValue("config_file")
	s.update(w, r, id, file, func(scale Scale) error {
		return s.configs.Update(file, scale)
	})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request, id, file string, apply func(Scale) error) {
	scale, err := decodeScale(r)
	if err != nil {
		s.metrics.ObserveConfig("update", "invalid")
		httpx.WriteError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}

	if err := apply(scale); err != nil {
		s.configError(w, "update", err)
		return
	}

	s.logger.Info("sensor config updated", "sensor_id", id, "config_file", file, "scale", scale)
	s.metrics.ObserveConfig("update", "success")
	s.publisher.Publish(events.New(events.TypeConfigUpdated, id,
		"scale", string(scale),
		"config_file", file,
	))

	httpx.WriteJSON(w, s.logger, http.StatusOK, configResponse{Message: "Config updated", Scale: scale})
}

// handleHealth reports liveness and the reader's status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, s.logger, http.StatusOK, healthResponse{
		Status: "ok",
		Source: s.source.Name(),
		Reader: s.ReaderStatus(),
	})
}

// configError maps a ConfigStore error onto the response envelope.
func (s *Server) configError(w http.ResponseWriter, op string, err error) {
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrConflict):
		s.metrics.ObserveConfig(op, "conflict")
		httpx.WriteError(w, s.logger, http.StatusConflict, "Config already exists")
	case errors.Is(err, ErrNotFound):
		s.metrics.ObserveConfig(op, "not_found")
		httpx.WriteError(w, s.logger, http.StatusNotFound, "Config not found")
	case errors.As(err, &verr):
		s.metrics.ObserveConfig(op, "invalid")
		httpx.WriteError(w, s.logger, http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrInvalidSensorID):
		s.metrics.ObserveConfig(op, "invalid")
		httpx.WriteError(w, s.logger, http.StatusBadRequest, err.Error())
	default:
		s.metrics.ObserveConfig(op, "error")
		s.logger.Error("sensor config operation failed", "operation", op, "error", err)
		httpx.WriteError(w, s.logger, http.StatusInternalServerError, "internal server error")
	}
}

// decodeScale reads the requested scale. An empty body or absent scale means Celsius.
// A null or non-string scale is returned as its JSON text, which never validates.
func decodeScale(r *http.Request) (Scale, error) {
	var req configRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		if errors.Is(err, httpx.ErrEmptyBody) {
			return Celsius, nil
		}
		return "", err
	}
	if len(req.Scale) == 0 {
		return Celsius, nil
	}

	var scale string
	if string(req.Scale) == "null" || json.Unmarshal(req.Scale, &scale) != nil {
		return Scale(req.Scale), nil
	}
	return Scale(scale), nil
}
