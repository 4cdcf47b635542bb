package service

import (
	"sync"
	"time"
)

// kickMarks: miembros que desconectamos nosotros. El evento de salida que
// llega justo después no cuenta como salida voluntaria.
type kickMarks struct {
	mu     sync.Mutex
	marks  map[string]*time.Timer // nil = marcado sin limpieza agendada
	closed bool
}

func newKickMarks() *kickMarks { return &kickMarks{marks: map[string]*time.Timer{}} }

func (k *kickMarks) Mark(memberID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if t := k.marks[memberID]; t != nil {
		t.Stop()
	}
	k.marks[memberID] = nil
}

func (k *kickMarks) Has(memberID string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.marks[memberID]
	return ok
}

// ClearAfter borra la marca pasado ttl (si nadie la volvió a marcar antes).
func (k *kickMarks) ClearAfter(memberID string, ttl time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return
	}
	old, ok := k.marks[memberID]
	if !ok {
		return
	}
	if old != nil {
		old.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(ttl, func() {
		k.mu.Lock()
		if cur, ok := k.marks[memberID]; ok && cur == t {
			delete(k.marks, memberID)
		}
		k.mu.Unlock()
	})
	k.marks[memberID] = t
}

// Clear borra la marca ya (re-entrada al canal o disconnect fallido).
func (k *kickMarks) Clear(memberID string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, ok := k.marks[memberID]
	if !ok {
		return false
	}
	if t != nil {
		t.Stop()
	}
	delete(k.marks, memberID)
	return true
}

func (k *kickMarks) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.marks)
}

func (k *kickMarks) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closed = true
	for id, t := range k.marks {
		if t != nil {
			t.Stop()
		}
		delete(k.marks, id)
	}
}
