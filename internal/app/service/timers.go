package service

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jose-valero/tribunaldo-bot/internal/domain"
)

const (
	timerArmed int32 = iota
	timerFired
	timerCancelled
)

// TimerHandle es una acción diferida para un miembro. Cancel es seguro de
// llamar siempre (nil, ya disparado, ya cancelado).
type TimerHandle struct {
	memberID string
	t        *time.Timer
	state    atomic.Int32
	owner    *Timers
}

// Cancel devuelve true si evitó que la acción corra.
func (h *TimerHandle) Cancel() bool {
	if h == nil || !h.state.CompareAndSwap(timerArmed, timerCancelled) {
		return false
	}
	if h.t != nil && h.t.Stop() {
		h.owner.wg.Done()
	}
	h.owner.forget(h)
	return true
}

func (h *TimerHandle) Fired() bool { return h != nil && h.state.Load() == timerFired }

// Timers agenda acciones diferidas por miembro (una por miembro: agendar de
// nuevo reemplaza y cancela la anterior).
type Timers struct {
	mu     sync.Mutex
	armed  map[string]*TimerHandle
	wg     sync.WaitGroup
	closed bool
}

func NewTimers() *Timers { return &Timers{armed: map[string]*TimerHandle{}} }

func (tm *Timers) Schedule(memberID string, delay time.Duration, action func()) *TimerHandle {
	h := &TimerHandle{memberID: memberID, owner: tm}

	tm.mu.Lock()
	if tm.closed {
		tm.mu.Unlock()
		h.state.Store(timerCancelled)
		return h
	}
	prev := tm.armed[memberID]
	tm.armed[memberID] = h
	tm.wg.Add(1)
	h.t = time.AfterFunc(delay, func() {
		defer tm.wg.Done()
		if !h.state.CompareAndSwap(timerArmed, timerFired) {
			return
		}
		tm.forget(h)
		action()
	})
	tm.mu.Unlock()

	if prev != nil && prev.Cancel() {
		log.Printf("[timers] member=%s: timer anterior reemplazado", memberID)
	}
	return h
}

// Cancel cancela el timer armado del miembro, si hay.
func (tm *Timers) Cancel(memberID string) bool {
	tm.mu.Lock()
	h := tm.armed[memberID]
	tm.mu.Unlock()
	return h.Cancel()
}

func (tm *Timers) Armed(memberID string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	_, ok := tm.armed[memberID]
	return ok
}

func (tm *Timers) Len() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.armed)
}

func (tm *Timers) forget(h *TimerHandle) {
	tm.mu.Lock()
	if tm.armed[h.memberID] == h {
		delete(tm.armed, h.memberID)
	}
	tm.mu.Unlock()
}

// Resume retoma los registros persistidos: los vencidos disparan ya (en este
// goroutine), el resto se agenda por lo que les falta.
func (tm *Timers) Resume(records []domain.ExitRecord, window time.Duration, now time.Time, fire func(rec domain.ExitRecord)) (expired, scheduled int) {
	for _, rec := range records {
		rec := rec
		elapsed := now.Sub(rec.ExitAt)
		if elapsed >= window {
			fire(rec)
			expired++
			continue
		}
		tm.Schedule(rec.MemberID, window-elapsed, func() { fire(rec) })
		scheduled++
	}
	return expired, scheduled
}

// StopAll cancela lo armado y espera a las acciones que ya estén corriendo.
// Después de StopAll, Schedule no arma nada.
func (tm *Timers) StopAll() {
	tm.mu.Lock()
	tm.closed = true
	hs := make([]*TimerHandle, 0, len(tm.armed))
	for _, h := range tm.armed {
		hs = append(hs, h)
	}
	tm.mu.Unlock()

	for _, h := range hs {
		h.Cancel()
	}
	tm.wg.Wait()
}
