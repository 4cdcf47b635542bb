package domain

// VoiceTransition es lo que nos llega del gateway por cada VoiceStateUpdate.
// Canal vacío = no estaba / no está en voz.
type VoiceTransition struct {
	MemberID          string
	PreviousChannelID string
	NewChannelID      string
	CameraOn          bool
	ScreenShareOn     bool
}

// CameraOrShare: cámara o transmisión de pantalla activa en el estado nuevo.
func (t VoiceTransition) CameraOrShare() bool { return t.CameraOn || t.ScreenShareOn }

// Entered: entró a channelID (desde ningún canal o desde otro).
func (t VoiceTransition) Entered(channelID string) bool {
	return channelID != "" && t.NewChannelID == channelID && t.PreviousChannelID != channelID
}

// Left: salió de channelID (a ningún canal o a otro).
func (t VoiceTransition) Left(channelID string) bool {
	return channelID != "" && t.PreviousChannelID == channelID && t.NewChannelID != channelID
}

// Stayed: sigue en channelID (mute, cámara, stream, etc).
func (t VoiceTransition) Stayed(channelID string) bool {
	return channelID != "" && t.PreviousChannelID == channelID && t.NewChannelID == channelID
}

// VoiceState es la foto "en vivo" de un miembro en voz.
type VoiceState struct {
	ChannelID     string
	CameraOn      bool
	ScreenShareOn bool
}

func (v VoiceState) CameraOrShare() bool { return v.CameraOn || v.ScreenShareOn }

// Member es lo mínimo que el core necesita de un miembro del servidor.
type Member struct {
	ID      string
	RoleIDs []string
}

func (m Member) HasRole(roleID string) bool {
	for _, r := range m.RoleIDs {
		if r == roleID {
			return true
		}
	}
	return false
}
