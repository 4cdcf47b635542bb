package httpstatus

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jose-valero/tribunaldo-bot/internal/domain"
)

type FocusStatser interface {
	Stats() domain.FocusStats
}

type CamStatser interface {
	Stats() domain.CamStats
}

type statsPayload struct {
	Focus    domain.FocusStats `json:"focus"`
	StudyCam domain.CamStats   `json:"study_cam"`
	Uptime   string            `json:"uptime"`
}

type Server struct {
	focus   FocusStatser
	cam     CamStatser
	gather  prometheus.Gatherer
	started time.Time
	mux     *http.ServeMux
}

func New(focus FocusStatser, cam CamStatser, gather prometheus.Gatherer) *Server {
	s := &Server{focus: focus, cam: cam, gather: gather, started: time.Now(), mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/stats", s.handleStats)
	if s.gather != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))
	}
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	out := statsPayload{Uptime: time.Since(s.started).Round(time.Second).String()}
	if s.focus != nil {
		out.Focus = s.focus.Stats()
	}
	if s.cam != nil {
		out.StudyCam = s.cam.Stats()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		log.Printf("[http] stats encode: %v", err)
	}
}

// Run escucha en addr hasta que ctx se cancela.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		log.Printf("🌐 HTTP listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			log.Printf("[http] shutdown: %v", err)
		}
		<-errc
		return nil
	}
}
