// internal/httpapi/server.go
package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tamzrod/benchlab-telemetry/internal/fleet"
	"github.com/tamzrod/benchlab-telemetry/internal/gateway"
	"github.com/tamzrod/benchlab-telemetry/internal/sensor"
)

// Service is the query surface served over HTTP. *gateway.Gateway satisfies it.
type Service interface {
	List() []fleet.Device
	Info(uid string) (fleet.Device, error)
	Get(uid string) (sensor.Reading, error)
	GetSensor(uid, name string) (sensor.Value, error)
	GetHistory(uid string, n int) ([]sensor.Reading, error)
	Sensors(uid string) ([]string, error)
	Subscribe(uid string) (*gateway.Subscription, error)
}

// Options configures the handler.
type Options struct {
	Logger *slog.Logger

	// WriteTimeout bounds each stream message write.
	WriteTimeout time.Duration

	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

const DefaultWriteTimeout = 2 * time.Second

type server struct {
	svc      Service
	log      *slog.Logger
	wt       time.Duration
	upgrader websocket.Upgrader
}

// NewHandler returns the HTTP router for svc.
func NewHandler(svc Service, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	s := &server{
		svc: svc,
		log: log.With("component", "http"),
		wt:  opts.WriteTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Local bench tool: dashboards on other origins are expected.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	metricsHandler := promhttp.Handler()
	if opts.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})
	}

	r := mux.NewRouter()
	r.HandleFunc("/devices", s.devices).Methods(http.MethodGet)

	d := r.PathPrefix("/device/{uid}").Subrouter()
	d.HandleFunc("/info", s.info).Methods(http.MethodGet)
	d.HandleFunc("/telemetry", s.telemetry).Methods(http.MethodGet)
	d.HandleFunc("/telemetry/{sensor}", s.sensorValue).Methods(http.MethodGet)
	d.HandleFunc("/history", s.history).Methods(http.MethodGet)
	d.HandleFunc("/sensors", s.sensors).Methods(http.MethodGet)
	d.HandleFunc("/stream", s.stream).Methods(http.MethodGet)

	r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return r
}

// ------------------------------------------------------------
// HANDLERS
// ------------------------------------------------------------

func (s *server) devices(w http.ResponseWriter, r *http.Request) {
	s.write(w, r, http.StatusOK, s.svc.List())
}

func (s *server) info(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Info(mux.Vars(r)["uid"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, r, http.StatusOK, d)
}

func (s *server) telemetry(w http.ResponseWriter, r *http.Request) {
	rd, err := s.svc.Get(mux.Vars(r)["uid"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, r, http.StatusOK, rd)
}

type sensorBody struct {
	Name  string  `json:"name" cbor:"name"`
	Value float64 `json:"value" cbor:"value"`
	Unit  string  `json:"unit" cbor:"unit"`
}

func (s *server) sensorValue(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	v, err := s.svc.GetSensor(vars["uid"], vars["sensor"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, r, http.StatusOK, sensorBody{Name: vars["sensor"], Value: v.Value, Unit: v.Unit})
}

func (s *server) history(w http.ResponseWriter, r *http.Request) {
	n := 0
	if q := r.URL.Query().Get("n"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 0 {
			s.badRequest(w, r, "n must be a non-negative integer")
			return
		}
		n = v
	}

	h, err := s.svc.GetHistory(mux.Vars(r)["uid"], n)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, r, http.StatusOK, h)
}

func (s *server) sensors(w http.ResponseWriter, r *http.Request) {
	names, err := s.svc.Sensors(mux.Vars(r)["uid"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, r, http.StatusOK, names)
}
