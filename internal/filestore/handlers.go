package filestore

import (
	"errors"
	"net/http"
	"strconv"

	"procodus.dev/lab-services/internal/httpx"
	"procodus.dev/lab-services/pkg/events"
)

// createRequest is the body of POST /files and PUT /files.
type createRequest struct {
	Name    string  `json:"name"`
	Content *string `json:"content"`
}

// updateRequest is the body of PUT /files/{name}.
type updateRequest struct {
	Content string `json:"content"`
}

// createResponse reports the resolved file name.
type createResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
}

// messageResponse acknowledges an update or delete.
type messageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// handleList serves the names of every entry in the base directory.
func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	s.logger.Debug("handling list request")

	names, err := s.store.List()
	if err != nil {
		s.storeError(w, "list", err)
		return
	}

	s.metrics.Observe("list", "success")
	httpx.WriteJSON(w, s.logger, http.StatusOK, names)
}

// handleRead serves one file's path, size and content.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s.logger.Debug("handling read request", "filename", name)

	file, err := s.store.Read(name)
	if err != nil {
		s.storeError(w, "read", err)
		return
	}

	s.metrics.Observe("read", "success")
	httpx.WriteJSON(w, s.logger, http.StatusOK, file)
}

// handleCreate writes a file under a server-generated name.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	s.create(w, r, false)
}

// handleCreateNamed writes a file under the client-chosen name, overwriting it if present.
func (s *Server) handleCreateNamed(w http.ResponseWriter, r *http.Request) {
	s.create(w, r, true)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request, named bool) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		s.metrics.Observe("create", "invalid")
		httpx.WriteError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}

	if req.Content == nil {
		s.metrics.Observe("create", "invalid")
		httpx.WriteError(w, s.logger, http.StatusBadRequest, "content is required")
		return
	}

	name := ""
	status := http.StatusCreated
	if named {
		if req.Name == "" {
			s.metrics.Observe("create", "invalid")
			httpx.WriteError(w, s.logger, http.StatusBadRequest, "name is required")
			return
		}
		name = req.Name
		status = http.StatusOK
	}

	filename, err := s.store.Create(*req.Content, name)
	if err != nil {
		s.storeError(w, "create", err)
		return
	}

	s.logger.Info("file written", "filename", filename, "size", len(*req.Content))
	s.metrics.Observe("create", "success")
	s.publisher.Publish(events.New(events.TypeFileCreated, filename,
		"size", strconv.Itoa(len(*req.Content)),
	))

	httpx.WriteJSON(w, s.logger, status, createResponse{Status: "OK", Filename: filename})
}

// handleUpdate overwrites an existing file.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		s.metrics.Observe("update", "invalid")
		httpx.WriteError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.Update(name, req.Content); err != nil {
		s.storeError(w, "update", err)
		return
	}

	s.logger.Info("file updated", "filename", name, "size", len(req.Content))
	s.metrics.Observe("update", "success")
	s.publisher.Publish(events.New(events.TypeFileUpdated, name,
		"size", strconv.Itoa(len(req.Content)),
	))

	httpx.WriteJSON(w, s.logger, http.StatusOK, messageResponse{Status: "OK", Message: "File updated"})
}

// handleDelete removes a file.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if err := s.store.Delete(name); err != nil {
		s.storeError(w, "delete", err)
		return
	}

	s.logger.Info("file deleted", "filename", name)
	s.metrics.Observe("delete", "success")
	s.publisher.Publish(events.New(events.TypeFileDeleted, name))

	httpx.WriteJSON(w, s.logger, http.StatusOK, messageResponse{Status: "OK", Message: "File deleted"})
}

// handleHealth serves health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// storeError maps a Store error onto the response envelope.
func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		s.metrics.Observe(op, "not_found")
		httpx.WriteError(w, s.logger, http.StatusNotFound, ErrNotFound.Error())
	case errors.Is(err, ErrInvalidName):
		s.metrics.Observe(op, "invalid")
		httpx.WriteError(w, s.logger, http.StatusBadRequest, err.Error())
	default:
		s.metrics.Observe(op, "error")
		s.logger.Error("file store operation failed", "operation", op, "error", err)
		httpx.WriteError(w, s.logger, http.StatusInternalServerError, "internal server error")
	}
}
