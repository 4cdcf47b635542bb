package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jose-valero/tribunaldo-bot/internal/domain"
)

// umbrales (segundos restantes) en los que se edita el mensaje del countdown
var countdownThresholds = []int{30, 20, 15, 10, 5, 3, 2, 1}

// nextThreshold devuelve el umbral recién cruzado, si hay. last es el último
// umbral ya mostrado (al arrancar: la duración total + 1).
func nextThreshold(remaining, last int) (int, bool) {
	for _, th := range countdownThresholds {
		if remaining <= th && last > th {
			return th, true
		}
	}
	return 0, false
}

// countdown es una gracia o un aviso en curso. El primero que gana settle
// decide el resultado; los demás caminos se retiran sin efectos.
type countdown struct {
	memberID  string
	phase     domain.CamPhase // PhaseInitialGrace o PhaseWarningActive
	startedAt time.Time
	msg       domain.MessageRef

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	outcome atomic.Int32
}

func newCountdown(parent context.Context, memberID string, phase domain.CamPhase, startedAt time.Time) *countdown {
	ctx, cancel := context.WithCancel(parent)
	return &countdown{
		memberID:  memberID,
		phase:     phase,
		startedAt: startedAt,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (c *countdown) settle(o domain.Outcome) bool {
	return c.outcome.CompareAndSwap(int32(domain.OutcomePending), int32(o))
}

// stop resuelve con o (si nadie resolvió antes) y corta el loop de polling.
func (c *countdown) stop(o domain.Outcome) bool {
	won := c.settle(o)
	c.cancel()
	return won
}

func (c *countdown) Outcome() domain.Outcome { return domain.Outcome(c.outcome.Load()) }

func (c *countdown) pending() bool { return c.Outcome() == domain.OutcomePending }

// Done se cierra cuando el goroutine de polling terminó.
func (c *countdown) Done() <-chan struct{} { return c.done }

func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}
