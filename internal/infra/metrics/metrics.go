package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics junta los contadores del bot. Los atómicos siempre cuentan; los de
// Prometheus sólo después de Register. Un *Metrics nil es válido (no-op).
type Metrics struct {
	FocusEntries        atomic.Uint64
	FocusExits          atomic.Uint64
	RestrictionsExpired atomic.Uint64
	CamWarnings         atomic.Uint64
	CamKicks            atomic.Uint64
	CamCompliances      atomic.Uint64
	ChatReplies         atomic.Uint64
	ChatFailures        atomic.Uint64

	focusEntries        prometheus.Counter
	focusExits          prometheus.Counter
	restrictionsExpired prometheus.Counter
	camWarnings         prometheus.Counter
	camKicks            prometheus.Counter
	camCompliances      prometheus.Counter
	chatReplies         prometheus.Counter
	chatFailures        prometheus.Counter
	camSessions         prometheus.Gauge
	capabilityErrors    *prometheus.CounterVec

	registerOnce sync.Once
}

func New() *Metrics { return &Metrics{} }

func (m *Metrics) Register(registry prometheus.Registerer) {
	if m == nil || registry == nil {
		return
	}
	m.registerOnce.Do(func() {
		f := promauto.With(registry)
		m.focusEntries = f.NewCounter(prometheus.CounterOpts{
			Name: "tribunaldo_focus_entries_total",
			Help: "Members that entered focus mode",
		})
		m.focusExits = f.NewCounter(prometheus.CounterOpts{
			Name: "tribunaldo_focus_exits_total",
			Help: "Members that left focus mode",
		})
		m.restrictionsExpired = f.NewCounter(prometheus.CounterOpts{
			Name: "tribunaldo_focus_restrictions_expired_total",
			Help: "Restriction windows that elapsed",
		})
		m.camWarnings = f.NewCounter(prometheus.CounterOpts{
			Name: "tribunaldo_studycam_warnings_total",
			Help: "Grace or warning countdowns started",
		})
		m.camKicks = f.NewCounter(prometheus.CounterOpts{
			Name: "tribunaldo_studycam_kicks_total",
			Help: "Members disconnected for keeping camera and screen share off",
		})
		m.camCompliances = f.NewCounter(prometheus.CounterOpts{
			Name: "tribunaldo_studycam_compliances_total",
			Help: "Countdowns cancelled because camera or screen share came on",
		})
		m.chatReplies = f.NewCounter(prometheus.CounterOpts{
			Name: "tribunaldo_chat_replies_total",
			Help: "Assistant replies generated",
		})
		m.chatFailures = f.NewCounter(prometheus.CounterOpts{
			Name: "tribunaldo_chat_failures_total",
			Help: "Assistant generations that failed",
		})
		m.camSessions = f.NewGauge(prometheus.GaugeOpts{
			Name: "tribunaldo_studycam_sessions",
			Help: "Members currently tracked in the study-camera channel",
		})
		m.capabilityErrors = f.NewCounterVec(prometheus.CounterOpts{
			Name: "tribunaldo_capability_errors_total",
			Help: "Failed role or voice mutations by operation",
		}, []string{"op"})
	})
}

func inc(a *atomic.Uint64, c prometheus.Counter) {
	a.Add(1)
	if c != nil {
		c.Inc()
	}
}

func (m *Metrics) IncFocusEntry() {
	if m != nil {
		inc(&m.FocusEntries, m.focusEntries)
	}
}

func (m *Metrics) IncFocusExit() {
	if m != nil {
		inc(&m.FocusExits, m.focusExits)
	}
}

func (m *Metrics) IncRestrictionExpired() {
	if m != nil {
		inc(&m.RestrictionsExpired, m.restrictionsExpired)
	}
}

func (m *Metrics) IncCamWarning() {
	if m != nil {
		inc(&m.CamWarnings, m.camWarnings)
	}
}

func (m *Metrics) IncCamKick() {
	if m != nil {
		inc(&m.CamKicks, m.camKicks)
	}
}

func (m *Metrics) IncCamCompliance() {
	if m != nil {
		inc(&m.CamCompliances, m.camCompliances)
	}
}

func (m *Metrics) IncChatReply() {
	if m != nil {
		inc(&m.ChatReplies, m.chatReplies)
	}
}

func (m *Metrics) IncChatFailure() {
	if m != nil {
		inc(&m.ChatFailures, m.chatFailures)
	}
}

func (m *Metrics) SetCamSessions(n int) {
	if m != nil && m.camSessions != nil {
		m.camSessions.Set(float64(n))
	}
}

// CapabilityError cuenta fallos de grant/revoke/disconnect por operación.
func (m *Metrics) CapabilityError(op string) {
	if m != nil && m.capabilityErrors != nil {
		m.capabilityErrors.WithLabelValues(op).Inc()
	}
}
