package httpctrl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Agrid-Dev/thermozone/internal/enclosure"
	"github.com/Agrid-Dev/thermozone/internal/ports"
	"github.com/Agrid-Dev/thermozone/internal/run"
)

type Server struct {
	svc ports.TrajectoryService
	srv *http.Server
}

// New returns a runnable server.
func New(svc ports.TrajectoryService, addr string) *Server {
	mux := http.NewServeMux()
	s := &Server{svc: svc}

	mux.HandleFunc("GET /v1", s.handleSummary)
	mux.HandleFunc("GET /v1/final", s.handleFinal)
	mux.HandleFunc("GET /v1/steps/{step}", s.handleStep)
	mux.HandleFunc("GET /v1/zones/{zone}", s.handleZone)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ---- DTOs ----

type zoneDTO struct {
	Zone            int            `json:"zone"`
	Temperature     float64        `json:"temperature"`
	Heater          string         `json:"heater"`
	CooldownMinutes float64        `json:"cooldown_minutes"`
	Flows           enclosure.Flow `json:"flows"`
}

type stepDTO struct {
	RunID       string    `json:"run_id"`
	Step        int       `json:"step"`
	Time        float64   `json:"time_h"`
	Exterior    float64   `json:"t_ext"`
	Ground      float64   `json:"t_sol"`
	AnyHeaterOn bool      `json:"any_heater_on"`
	Zones       []zoneDTO `json:"zones"`
}

type zoneSeriesDTO struct {
	RunID        string    `json:"run_id"`
	Zone         int       `json:"zone"`
	Times        []float64 `json:"times_h"`
	Temperatures []float64 `json:"temperatures"`
}

func toDTO(runID string, s enclosure.Snapshot) stepDTO {
	dto := stepDTO{
		RunID:       runID,
		Step:        s.Step,
		Time:        s.Time,
		Exterior:    s.Exterior,
		Ground:      s.Ground,
		AnyHeaterOn: s.AnyHeaterOn,
		Zones:       make([]zoneDTO, len(s.Temperatures)),
	}
	for i, temp := range s.Temperatures {
		state := enclosure.HeaterOff
		if s.HeatersOn[i] {
			state = enclosure.HeaterOn
		}
		dto.Zones[i] = zoneDTO{
			Zone:            i + 1,
			Temperature:     temp,
			Heater:          state.String(),
			CooldownMinutes: s.Cooldowns[i] * 60,
			Flows:           s.Flows[i],
		}
	}
	return dto
}

// ---- Handlers ----

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Summary())
}

func (s *Server) handleFinal(w http.ResponseWriter, _ *http.Request) {
	s.respondStep(w, s.svc.Len()-1)
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	step, ok := pathInt(w, r, "step")
	if !ok {
		return
	}
	s.respondStep(w, step)
}

func (s *Server) handleZone(w http.ResponseWriter, r *http.Request) {
	zone, ok := pathInt(w, r, "zone")
	if !ok {
		return
	}
	series, err := s.svc.Zone(zone)
	if err != nil {
		writeErr(w, statusFor(err), err.Error())
		return
	}
	times := make([]float64, len(series))
	for i := range times {
		snap, err := s.svc.Step(i)
		if err != nil {
			writeErr(w, statusFor(err), err.Error())
			return
		}
		times[i] = snap.Time
	}
	writeJSON(w, http.StatusOK, zoneSeriesDTO{
		RunID:        s.svc.Summary().RunID,
		Zone:         zone,
		Times:        times,
		Temperatures: series,
	})
}

// ---- generic helpers ----

func (s *Server) respondStep(w http.ResponseWriter, step int) {
	snap, err := s.svc.Step(step)
	if err != nil {
		writeErr(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toDTO(s.svc.Summary().RunID, snap))
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, run.ErrStepOutOfRange), errors.Is(err, enclosure.ErrUnknownZoneTopology):
		return http.StatusNotFound
	case errors.Is(err, run.ErrNotCompleted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
