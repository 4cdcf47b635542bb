package domain

import "time"

// ExitRecord: un miembro cumpliendo la restricción post-foco.
type ExitRecord struct {
	MemberID string
	ExitAt   time.Time
}

// RemovedRolesRecord: cargos de distracción que le sacamos al entrar en foco.
// El orden se respeta al restaurar.
type RemovedRolesRecord struct {
	MemberID string
	RoleIDs  []string
}

// State es todo lo que se persiste. Lo demás (sesiones de cámara, kick marks)
// vive sólo en memoria.
type State struct {
	Exits        map[string]ExitRecord
	RemovedRoles map[string]RemovedRolesRecord
}

func NewState() State {
	return State{
		Exits:        map[string]ExitRecord{},
		RemovedRoles: map[string]RemovedRolesRecord{},
	}
}

// Clone devuelve una copia profunda (los lectores externos nunca tocan la original).
func (s State) Clone() State {
	out := NewState()
	for k, v := range s.Exits {
		out.Exits[k] = v
	}
	for k, v := range s.RemovedRoles {
		out.RemovedRoles[k] = RemovedRolesRecord{
			MemberID: v.MemberID,
			RoleIDs:  append([]string(nil), v.RoleIDs...),
		}
	}
	return out
}
