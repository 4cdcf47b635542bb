package domain

import "time"

type Template string

const (
	TplFocusEntered Template = "focus.entered"
	TplFocusExited  Template = "focus.exited"

	TplCamWelcome       Template = "cam.welcome"        // entró con cámara
	TplCamGrace         Template = "cam.grace"          // countdown inicial
	TplCamApproved      Template = "cam.approved"       // prendió dentro de la gracia
	TplCamWarning       Template = "cam.warning"        // apagó estando en CONTINUOUS
	TplCamReenabled     Template = "cam.reenabled"      // volvió a prender durante el aviso
	TplCamKicked        Template = "cam.kicked"         // expulsado tras la gracia
	TplCamKickedWarning Template = "cam.kicked_warning" // expulsado tras el aviso
	TplCamLeft          Template = "cam.left"           // salida voluntaria
)

// Claves de sustitución que usan los templates.
const (
	VarMember    = "member"
	VarChannel   = "channel"
	VarRemaining = "remaining" // segundos
	VarTotal     = "total"     // segundos
	VarTaken     = "taken"     // segundos
	VarCamKind   = "cam_kind"  // camera | screen
	VarStayed    = "stayed"    // segundos
)

// Notification es el payload semántico que el core entrega al emisor.
// Vars es siempre una copia propia.
type Notification struct {
	ChannelID string
	Template  Template
	MemberID  string
	Vars      map[string]string
	// ExpireAfter > 0: el emisor borra el mensaje pasado ese tiempo.
	ExpireAfter time.Duration
}

// MessageRef identifica un mensaje ya enviado (para editarlo o borrarlo).
type MessageRef struct {
	ChannelID string
	MessageID string
}

func (r MessageRef) IsZero() bool { return r.MessageID == "" }
