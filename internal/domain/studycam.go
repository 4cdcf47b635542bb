package domain

type CamPhase int

const (
	PhaseInitialGrace CamPhase = iota
	PhaseContinuous
	PhaseWarningActive
)

func (p CamPhase) String() string {
	switch p {
	case PhaseInitialGrace:
		return "INITIAL_GRACE"
	case PhaseContinuous:
		return "CONTINUOUS"
	case PhaseWarningActive:
		return "WARNING_ACTIVE"
	}
	return "UNKNOWN"
}

// Outcome: cómo terminó un countdown. Siempre exactamente uno.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeComplied
	OutcomeDeparted
	OutcomeKicked
	OutcomeShutdown
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeComplied:
		return "complied"
	case OutcomeDeparted:
		return "departed"
	case OutcomeKicked:
		return "kicked"
	case OutcomeShutdown:
		return "shutdown"
	}
	return "unknown"
}

// CamStats es la foto que exponemos en /status y /stats.
type CamStats struct {
	Sessions         map[string]int `json:"sessions"`
	ActiveCountdowns int            `json:"active_countdowns"`
	PendingKickMarks int            `json:"pending_kick_marks"`
	Warnings         uint64         `json:"warnings_total"`
	Kicks            uint64         `json:"kicks_total"`
	Compliances      uint64         `json:"compliances_total"`
	GraceSeconds     int            `json:"grace_seconds"`
}

// FocusStats: registros pendientes del modo foco.
type FocusStats struct {
	PendingRestrictions int `json:"pending_restrictions"`
	RemovedRoleRecords  int `json:"removed_role_records"`
	ArmedTimers         int `json:"armed_timers"`
}
