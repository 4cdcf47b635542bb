package service

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jose-valero/tribunaldo-bot/internal/domain"
)

// MemberQueue ejecuta trabajos en orden FIFO por miembro. Cada miembro con
// trabajo pendiente tiene un worker propio que termina al vaciarse la cola;
// miembros distintos avanzan en paralelo.
type MemberQueue struct {
	mu     sync.Mutex
	queues map[string][]func()
	wg     sync.WaitGroup
	closed bool
}

func NewMemberQueue() *MemberQueue {
	return &MemberQueue{queues: map[string][]func(){}}
}

// Submit encola fn para memberID. false si la cola ya está cerrada.
func (q *MemberQueue) Submit(memberID string, fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	pending, running := q.queues[memberID]
	q.queues[memberID] = append(pending, fn)
	if !running {
		q.wg.Add(1)
		go q.work(memberID)
	}
	return true
}

func (q *MemberQueue) work(memberID string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		pending := q.queues[memberID]
		if len(pending) == 0 {
			delete(q.queues, memberID)
			q.mu.Unlock()
			return
		}
		fn := pending[0]
		pending[0] = nil
		q.queues[memberID] = pending[1:]
		q.mu.Unlock()

		runContained(memberID, fn)
	}
}

// un panic de un miembro no tumba al resto
func runContained(memberID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[dispatch] member=%s: panic: %v\n%s", memberID, r, debug.Stack())
		}
	}()
	fn()
}

// Pending: miembros con trabajo en curso o en cola.
func (q *MemberQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues)
}

// Close deja de aceptar trabajos y espera a que se vacíen las colas.
func (q *MemberQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}

type VoiceHandler interface {
	HandleVoice(ctx context.Context, tr domain.VoiceTransition)
}

// VoiceDispatcher reparte cada transición a los controladores, en el orden
// de llegada por miembro, sin bloquear al gateway.
type VoiceDispatcher struct {
	queue    *MemberQueue
	handlers []VoiceHandler
	timeout  time.Duration
}

func NewVoiceDispatcher(queue *MemberQueue, timeout time.Duration, handlers ...VoiceHandler) *VoiceDispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &VoiceDispatcher{queue: queue, handlers: handlers, timeout: timeout}
}

func (d *VoiceDispatcher) Dispatch(tr domain.VoiceTransition) {
	ok := d.queue.Submit(tr.MemberID, func() {
		for _, h := range d.handlers {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			h.HandleVoice(ctx, tr)
			cancel()
		}
	})
	if !ok {
		log.Printf("[dispatch] member=%s: cola cerrada, evento descartado", tr.MemberID)
	}
}
