// Package server exposes the HTTP surface of the runtime: the WebSocket
// audio capture socket, the outbound event stream, health and readiness
// probes, the Prometheus scrape endpoint, and a small settings API.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkaiser42/aloud/internal/observe"
	"github.com/mkaiser42/aloud/internal/pipeline"
	"github.com/mkaiser42/aloud/internal/store"
	"github.com/mkaiser42/aloud/pkg/audio"
)

const (
	// captureReadLimit bounds a single capture frame. Chunks arrive in small
	// client-side buffers, well under this.
	captureReadLimit = 1 << 20

	// eventBufferSize is the per-subscriber event queue depth. A subscriber
	// that falls further behind loses events rather than stalling the worker.
	eventBufferSize = 64

	// eventWriteTimeout bounds a single event frame write.
	eventWriteTimeout = 10 * time.Second
)

// PipelineControl starts and stops the capture pipeline. Implemented by
// [pipeline.Worker].
type PipelineControl interface {
	Start(ctx context.Context) error
	Stop()
}

// Server wires the HTTP routes. Construct with [New], mount via [Handler].
type Server struct {
	queue    *audio.ChunkQueue
	hub      *pipeline.Hub
	worker   PipelineControl
	settings *store.SettingsRepo
	metrics  *observe.Metrics
	checks   []HealthCheck
	log      *slog.Logger
}

// New creates a Server. metrics may be nil to disable client gauges; checks
// feed the /readyz endpoint.
func New(queue *audio.ChunkQueue, hub *pipeline.Hub, worker PipelineControl, settings *store.SettingsRepo, metrics *observe.Metrics, log *slog.Logger, checks ...HealthCheck) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		queue:    queue,
		hub:      hub,
		worker:   worker,
		settings: settings,
		metrics:  metrics,
		checks:   checks,
		log:      log,
	}
}

// Handler returns the route table:
//
//	GET    /ws/capture          — audio capture socket (handshake + PCM frames)
//	GET    /ws/events           — outbound event stream
//	POST   /api/pipeline/start  — start the capture pipeline
//	POST   /api/pipeline/stop   — stop the capture pipeline
//	GET    /api/settings        — all persisted settings
//	GET    /api/settings/{key}  — one setting
//	PUT    /api/settings/{key}  — upsert one setting
//	DELETE /api/settings/{key}  — remove one setting
//	GET    /healthz             — liveness probe
//	GET    /readyz              — readiness probe
//	GET    /metrics             — Prometheus scrape
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/capture", s.handleCapture)
	mux.HandleFunc("GET /ws/events", s.handleEvents)
	mux.HandleFunc("POST /api/pipeline/start", s.handlePipelineStart)
	mux.HandleFunc("POST /api/pipeline/stop", s.handlePipelineStop)
	mux.HandleFunc("GET /api/settings", s.handleSettingsList)
	mux.HandleFunc("GET /api/settings/{key}", s.handleSettingGet)
	mux.HandleFunc("PUT /api/settings/{key}", s.handleSettingPut)
	mux.HandleFunc("DELETE /api/settings/{key}", s.handleSettingDelete)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// captureHandshake is the first (text) frame on the capture socket. The
// client declares its capture sample rate; all later frames are binary
// little-endian int16 mono PCM at that rate.
type captureHandshake struct {
	SampleRate int `json:"sample_rate"`
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("capture accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "capture closed")
	conn.SetReadLimit(captureReadLimit)

	ctx := r.Context()

	typ, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	var hs captureHandshake
	if typ != websocket.MessageText || json.Unmarshal(data, &hs) != nil || hs.SampleRate <= 0 {
		conn.Close(websocket.StatusPolicyViolation, "expected handshake {\"sample_rate\": N}")
		return
	}
	s.queue.SetClientSampleRate(hs.SampleRate)
	s.log.Info("capture client connected", "sample_rate", hs.SampleRate)

	if s.metrics != nil {
		s.metrics.ActiveCaptureClients.Add(ctx, 1)
		defer s.metrics.ActiveCaptureClients.Add(ctx, -1)
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			s.log.Info("capture client disconnected", "err", err)
			return
		}
		if typ == websocket.MessageBinary {
			s.queue.Put(data)
		}
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("event stream accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "event stream closed")

	events := make(chan pipeline.Event, eventBufferSize)
	unsubscribe := s.hub.Subscribe(pipeline.ObserverFunc(func(ev pipeline.Event) {
		select {
		case events <- ev:
		default:
			s.log.Debug("event subscriber lagging, dropping", "event", ev.Type)
		}
	}))
	defer unsubscribe()

	// The client never sends application frames on this socket. CloseRead
	// keeps control frames (ping, close) serviced and cancels the context
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	if s.metrics != nil {
		s.metrics.ActiveEventClients.Add(ctx, 1)
		defer s.metrics.ActiveEventClients.Add(ctx, -1)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				s.log.Error("event marshal failed", "event", ev.Type, "err", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) handlePipelineStart(w http.ResponseWriter, r *http.Request) {
	if err := s.worker.Start(context.WithoutCancel(r.Context())); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handlePipelineStop(w http.ResponseWriter, _ *http.Request) {
	s.worker.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleSettingsList(w http.ResponseWriter, r *http.Request) {
	all, err := s.settings.All(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleSettingGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	value, err := s.settings.Get(r.Context(), key)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if value == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "setting not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

// settingUpdate is the JSON body for PUT /api/settings/{key}.
type settingUpdate struct {
	Value string `json:"value"`
}

func (s *Server) handleSettingPut(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var body settingUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := s.settings.Set(r.Context(), key, body.Value); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": body.Value})
}

func (s *Server) handleSettingDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.Delete(r.Context(), r.PathValue("key")); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
