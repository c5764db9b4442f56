// Package diagnostics exposes the orchestrator's operational surface:
// /healthz, /readyz, and /metrics. It is read-only: the admin tool and
// every control surface are external collaborators, so nothing here
// mutates pool state.
package diagnostics

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/r3e-network/pool-orchestrator/internal/element"
	"github.com/r3e-network/pool-orchestrator/internal/registry"
	"github.com/r3e-network/pool-orchestrator/pkg/logging"
)

// Metrics is the orchestrator's Prometheus instrument set. Components
// record through it; the diagnostics server serves it.
type Metrics struct {
	ElementsTotal    *prometheus.GaugeVec
	MotionsStarted   prometheus.Counter
	MotionsCompleted prometheus.Counter
	ReloadsTotal     prometheus.Counter
	EventsFired      prometheus.Counter
}

// NewMetrics registers the instrument set on the default registerer.
func NewMetrics() *Metrics {
	return &Metrics{
		ElementsTotal: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pool_elements_total",
			Help: "Registered pool elements by type.",
		}, []string{"type"}),
		MotionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pool_motions_started_total",
			Help: "Motion/acquisition requests accepted by the scheduler.",
		}),
		MotionsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pool_motions_completed_total",
			Help: "Motions whose poll loop reached termination.",
		}),
		ReloadsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pool_controller_reloads_total",
			Help: "Completed controller code reloads.",
		}),
		EventsFired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pool_events_fired_total",
			Help: "Events delivered through the element event bus.",
		}),
	}
}

// Server is the diagnostics HTTP handler set.
type Server struct {
	reg       *registry.Registry
	log       *logging.Component
	jwtSecret []byte
	startedAt time.Time
}

// New constructs a Server. jwtSecret optionally gates every endpoint with
// an HS256 bearer token; empty means open (a cluster-internal port).
func New(reg *registry.Registry, jwtSecret string, log *logging.Logger) *Server {
	var comp *logging.Component
	if log != nil {
		comp = log.Named("diagnostics")
	}
	return &Server{
		reg:       reg,
		log:       comp,
		jwtSecret: []byte(jwtSecret),
		startedAt: time.Now(),
	}
}

// Router builds the chi router for the diagnostics surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if len(s.jwtSecret) > 0 {
		r.Use(s.requireJWT)
	}
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func (s *Server) requireJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		_, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return s.jwtSecret, nil
		})
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type healthReport struct {
	Status     string         `json:"status"`
	UptimeSecs float64        `json:"uptime_seconds"`
	Goroutines int            `json:"goroutines"`
	CPUPercent float64        `json:"cpu_percent"`
	RSSBytes   uint64         `json:"rss_bytes"`
	Elements   map[string]int `json:"elements"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := healthReport{
		Status:     "ok",
		UptimeSecs: time.Since(s.startedAt).Seconds(),
		Goroutines: runtime.NumGoroutine(),
		Elements:   s.elementCounts(r),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			report.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			report.RSSBytes = mem.RSS
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) elementCounts(r *http.Request) map[string]int {
	counts := make(map[string]int)
	for _, t := range []element.Type{
		element.TypeController, element.TypeMotor, element.TypePseudoMotor,
		element.TypeCounterTimer, element.TypeZeroD, element.TypeOneD, element.TypeTwoD,
		element.TypePseudoCounter, element.TypeMotorGroup, element.TypeMeasurementGroup,
		element.TypeCommunication, element.TypeIORegister, element.TypeInstrument,
	} {
		if n := len(s.reg.ByType(r.Context(), t)); n > 0 {
			counts[string(t)] = n
		}
	}
	return counts
}
