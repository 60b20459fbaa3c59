package devbackend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"servisca-quickmatch/internal/log"
	"servisca-quickmatch/internal/tasks"
)

type (
	// Server is a stand-in for the matching backend: it assigns task ids,
	// fans topic events out and scripts a "searching" status. It does not
	// match anything
	Server struct {
		hub         *Hub
		logger      *slog.Logger
		searchDelay time.Duration
		newID       func() string
		mux         *http.ServeMux
	}

	ServerOption func(*Server)

	createResponse struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}

	taskCreatedEvent struct {
		Type     string         `json:"type"`
		TaskID   string         `json:"task_id"`
		Category tasks.Category `json:"category"`
		Lat      float64        `json:"lat"`
		Lng      float64        `json:"lng"`
	}

	errorResponse struct {
		Error string `json:"error"`
	}
)

const maxBodySize = 1 << 20

var searchingEvent = []byte(`{"status":"searching"}`)

func WithSearchDelay(d time.Duration) ServerOption {
	return func(s *Server) {
		s.searchDelay = d
	}
}

// WithIDGenerator replaces the uuid-based task id source
func WithIDGenerator(fn func() string) ServerOption {
	return func(s *Server) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewServer(hub *Hub, opts ...ServerOption) *Server {
	s := &Server{
		hub:    hub,
		logger: log.Discard(),
		newID:  NewTaskID,
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("/ws", hub.ServeWS)
	s.mux.HandleFunc("POST /tasks/create", s.createTask)
	s.mux.HandleFunc("POST /publish", s.publish)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// NewTaskID returns "tsk" plus the first 12 hex digits of a random uuid
func NewTaskID() string {
	return "tsk" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req tasks.CreateRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	if msg := validate(req); msg != "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		return
	}

	id := s.newID()
	s.logger.Info("task created", log.TaskID(id), log.UserID(req.UserID),
		slog.Bool("quick_match", req.QuickMatch))

	created, err := json.Marshal(taskCreatedEvent{
		Type:     "task_created",
		TaskID:   id,
		Category: req.Category,
		Lat:      req.Lat,
		Lng:      req.Lng,
	})
	if err == nil {
		s.publishLogged(tasks.UserTopic(req.UserID), created)
	}

	if req.QuickMatch {
		topic := tasks.TaskTopic(id)
		time.AfterFunc(s.searchDelay, func() {
			s.publishLogged(topic, searchingEvent)
		})
	}

	writeJSON(w, http.StatusOK, createResponse{TaskID: id, Status: "searching"})
}

func (s *Server) publish(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing topic"})
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil || !json.Valid(data) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "event must be json"})
		return
	}
	if err := s.hub.Publish(r.Context(), topic, data); err != nil {
		s.logger.Warn("publish failed", log.Topic(topic), log.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "publish failed"})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) publishLogged(topic string, event []byte) {
	if err := s.hub.Publish(context.Background(), topic, event); err != nil {
		s.logger.Warn("publish failed", log.Topic(topic), log.Error(err))
	}
}

func validate(req tasks.CreateRequest) string {
	if strings.TrimSpace(req.UserID) == "" {
		return "missing user_id"
	}
	if _, err := tasks.ParseCategory(string(req.Category)); err != nil {
		return err.Error()
	}
	if req.Lat < -90 || req.Lat > 90 || req.Lng < -180 || req.Lng > 180 {
		return "coordinates out of range"
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
