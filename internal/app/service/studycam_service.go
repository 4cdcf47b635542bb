package service

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/jose-valero/tribunaldo-bot/internal/domain"
	"github.com/jose-valero/tribunaldo-bot/internal/infra/metrics"
)

const (
	camNoticeTTL = 30 * time.Second // bienvenida, aprobado, religado, salida
	camKickedTTL = 60 * time.Second
	camOpTimeout = 15 * time.Second
)

type StudyCamConfig struct {
	ChannelID    string // canal de voz con cámara obligatoria
	LogChannelID string // donde van los avisos
	Grace        time.Duration
	PollInterval time.Duration
	KickMarkTTL  time.Duration
}

type camSession struct {
	memberID  string
	enteredAt time.Time
	phase     domain.CamPhase
	cd        *countdown // nil en CONTINUOUS
}

// StudyCamService vigila el canal de estudio con cámara. Los eventos de un
// mismo miembro llegan en orden (MemberQueue); los countdowns corren en su
// propio goroutine y compiten con los eventos vía countdown.settle.
type StudyCamService struct {
	cfg      StudyCamConfig
	guild    Guild
	notifier Notifier
	metrics  *metrics.Metrics
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*camSession
	closed   bool

	marks  *kickMarks
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewStudyCamService(cfg StudyCamConfig, guild Guild, notifier Notifier, m *metrics.Metrics) *StudyCamService {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &StudyCamService{
		cfg:      cfg,
		guild:    guild,
		notifier: notifier,
		metrics:  m,
		now:      time.Now,
		sessions: map[string]*camSession{},
		marks:    newKickMarks(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *StudyCamService) HandleVoice(ctx context.Context, tr domain.VoiceTransition) {
	ch := s.cfg.ChannelID
	vs := domain.VoiceState{ChannelID: tr.NewChannelID, CameraOn: tr.CameraOn, ScreenShareOn: tr.ScreenShareOn}
	switch {
	case tr.Entered(ch):
		s.enter(ctx, tr.MemberID, vs)
	case tr.Left(ch):
		s.leave(ctx, tr.MemberID)
	case tr.Stayed(ch):
		s.update(ctx, tr.MemberID, vs)
	}
}

func (s *StudyCamService) enter(ctx context.Context, memberID string, vs domain.VoiceState) {
	if s.marks.Clear(memberID) {
		log.Printf("[studycam] member=%s: volvió a entrar, kick mark limpiado", memberID)
	}
	s.dropStale(memberID)

	if vs.CameraOrShare() {
		s.startContinuous(memberID)
		if _, err := s.notifier.Notify(ctx, s.notice(domain.TplCamWelcome, memberID, nil, camNoticeTTL)); err != nil {
			log.Printf("[studycam] member=%s: welcome notify: %v", memberID, err)
		}
		return
	}
	s.startCountdown(ctx, memberID, domain.PhaseInitialGrace)
}

// Rebuild recrea una sesión perdida (reinicio) desde el estado de voz en vivo,
// sin mensaje de bienvenida.
func (s *StudyCamService) rebuild(ctx context.Context, memberID string, vs domain.VoiceState) {
	if vs.CameraOrShare() {
		s.startContinuous(memberID)
		return
	}
	s.startCountdown(ctx, memberID, domain.PhaseInitialGrace)
}

func (s *StudyCamService) update(ctx context.Context, memberID string, vs domain.VoiceState) {
	s.mu.Lock()
	sess := s.sessions[memberID]
	var phase domain.CamPhase
	var cd *countdown
	if sess != nil {
		phase, cd = sess.phase, sess.cd
	}
	s.mu.Unlock()

	if sess == nil {
		log.Printf("[studycam] member=%s: sin sesión, reconstruyendo", memberID)
		s.rebuild(ctx, memberID, vs)
		return
	}

	switch phase {
	case domain.PhaseInitialGrace, domain.PhaseWarningActive:
		if vs.CameraOrShare() && cd != nil {
			s.comply(ctx, cd, vs)
		}
	case domain.PhaseContinuous:
		if !vs.CameraOrShare() {
			s.startCountdown(ctx, memberID, domain.PhaseWarningActive)
		}
	}
}

func (s *StudyCamService) leave(ctx context.Context, memberID string) {
	s.mu.Lock()
	sess := s.sessions[memberID]
	delete(s.sessions, memberID)
	n := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetCamSessions(n)

	if s.marks.Has(memberID) {
		if sess != nil && sess.cd != nil {
			sess.cd.stop(domain.OutcomeDeparted)
		}
		s.marks.ClearAfter(memberID, s.cfg.KickMarkTTL)
		log.Printf("[studycam] member=%s: salida por kick, sin aviso", memberID)
		return
	}
	if sess == nil || sess.cd == nil {
		return
	}

	c := sess.cd
	// el poll pudo haber visto la salida antes que el evento
	if !c.stop(domain.OutcomeDeparted) && c.Outcome() != domain.OutcomeDeparted {
		return
	}
	if c.msg.IsZero() {
		return
	}
	switch c.phase {
	case domain.PhaseInitialGrace:
		vars := map[string]string{domain.VarStayed: strconv.Itoa(seconds(s.now().Sub(sess.enteredAt)))}
		if err := s.notifier.Update(ctx, c.msg, s.notice(domain.TplCamLeft, memberID, vars, camNoticeTTL)); err != nil {
			log.Printf("[studycam] member=%s: left notice: %v", memberID, err)
		}
	case domain.PhaseWarningActive:
		if err := s.notifier.Delete(ctx, c.msg); err != nil {
			log.Printf("[studycam] member=%s: delete warning: %v", memberID, err)
		}
	}
}

func (s *StudyCamService) startContinuous(memberID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.sessions[memberID] = &camSession{memberID: memberID, enteredAt: s.now(), phase: domain.PhaseContinuous}
	n := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetCamSessions(n)
}

// startCountdown arranca una gracia (sesión nueva) o un aviso (sesión en
// CONTINUOUS) y manda el mensaje con el tiempo total. El countdown se publica
// en sessions recién con msg asignado; después msg no cambia.
func (s *StudyCamService) startCountdown(ctx context.Context, memberID string, phase domain.CamPhase) {
	started := s.now()
	c := newCountdown(s.ctx, memberID, phase, started)

	total := strconv.Itoa(seconds(s.cfg.Grace))
	tpl := domain.TplCamGrace
	if phase == domain.PhaseWarningActive {
		tpl = domain.TplCamWarning
	}
	ref, err := s.notifier.Notify(ctx, s.notice(tpl, memberID, map[string]string{
		domain.VarRemaining: total,
		domain.VarTotal:     total,
	}, 0))
	if err != nil {
		log.Printf("[studycam] member=%s: countdown notify: %v", memberID, err)
	}
	c.msg = ref

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.stop(domain.OutcomeShutdown)
		if !ref.IsZero() {
			_ = s.notifier.Delete(ctx, ref)
		}
		return
	}
	sess := s.sessions[memberID]
	if sess == nil {
		sess = &camSession{memberID: memberID, enteredAt: started}
		s.sessions[memberID] = sess
	}
	if sess.cd != nil {
		sess.cd.stop(domain.OutcomeDeparted)
	}
	sess.phase = phase
	sess.cd = c
	n := len(s.sessions)
	s.wg.Add(1)
	s.mu.Unlock()
	s.metrics.SetCamSessions(n)

	s.metrics.IncCamWarning()
	log.Printf("[studycam] member=%s: %s iniciado (%s)", memberID, phase, s.cfg.Grace)

	go s.run(c)
}

func (s *StudyCamService) run(c *countdown) {
	defer s.wg.Done()
	defer close(c.done)

	tick := time.NewTicker(s.cfg.PollInterval)
	defer tick.Stop()
	last := seconds(s.cfg.Grace) + 1

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-tick.C:
		}

		elapsed := s.now().Sub(c.startedAt)
		if elapsed >= s.cfg.Grace {
			s.expire(c)
			return
		}

		vs, ok := s.guild.VoiceState(c.ctx, c.memberID)
		if !ok || vs.ChannelID != s.cfg.ChannelID {
			// el evento de salida hace la limpieza y el aviso
			if c.settle(domain.OutcomeDeparted) {
				log.Printf("[studycam] member=%s: ya no está en el canal", c.memberID)
			}
			return
		}
		if vs.CameraOrShare() {
			s.comply(s.ctx, c, vs)
			return
		}

		remaining := seconds(s.cfg.Grace - elapsed)
		if th, crossed := nextThreshold(remaining, last); crossed {
			last = th
			s.refresh(c, remaining)
		}
	}
}

func (s *StudyCamService) refresh(c *countdown, remaining int) {
	if c.msg.IsZero() || !c.pending() {
		return
	}
	tpl := domain.TplCamGrace
	if c.phase == domain.PhaseWarningActive {
		tpl = domain.TplCamWarning
	}
	ctx, cancel := context.WithTimeout(c.ctx, camOpTimeout)
	defer cancel()
	err := s.notifier.Update(ctx, c.msg, s.notice(tpl, c.memberID, map[string]string{
		domain.VarRemaining: strconv.Itoa(remaining),
		domain.VarTotal:     strconv.Itoa(seconds(s.cfg.Grace)),
	}, 0))
	if err != nil && c.ctx.Err() == nil {
		log.Printf("[studycam] member=%s: update countdown: %v", c.memberID, err)
	}
}

// comply: cámara o pantalla encendida antes del plazo. Vuelve a CONTINUOUS.
func (s *StudyCamService) comply(ctx context.Context, c *countdown, vs domain.VoiceState) bool {
	if !c.stop(domain.OutcomeComplied) {
		return false
	}
	s.mu.Lock()
	if sess := s.sessions[c.memberID]; sess != nil && sess.cd == c {
		sess.cd = nil
		sess.phase = domain.PhaseContinuous
	}
	s.mu.Unlock()
	s.metrics.IncCamCompliance()

	taken := s.now().Sub(c.startedAt)
	vars := map[string]string{domain.VarTaken: strconv.Itoa(seconds(taken))}
	tpl := domain.TplCamReenabled
	if c.phase == domain.PhaseInitialGrace {
		tpl = domain.TplCamApproved
		vars[domain.VarRemaining] = strconv.Itoa(seconds(s.cfg.Grace - taken))
		vars[domain.VarCamKind] = "camera"
		if !vs.CameraOn && vs.ScreenShareOn {
			vars[domain.VarCamKind] = "screen"
		}
	}
	log.Printf("[studycam] member=%s: %s cumplido en %s", c.memberID, c.phase, taken.Round(time.Millisecond))

	ctx, cancel := context.WithTimeout(ctx, camOpTimeout)
	defer cancel()
	n := s.notice(tpl, c.memberID, vars, camNoticeTTL)
	var err error
	if c.msg.IsZero() {
		_, err = s.notifier.Notify(ctx, n)
	} else {
		err = s.notifier.Update(ctx, c.msg, n)
	}
	if err != nil {
		log.Printf("[studycam] member=%s: compliance notice: %v", c.memberID, err)
	}
	return true
}

// expire: se acabó el plazo. Revalida en vivo antes de desconectar.
func (s *StudyCamService) expire(c *countdown) {
	ctx, cancel := context.WithTimeout(s.ctx, camOpTimeout)
	defer cancel()

	vs, ok := s.guild.VoiceState(ctx, c.memberID)
	if !ok || vs.ChannelID != s.cfg.ChannelID {
		c.settle(domain.OutcomeDeparted)
		return
	}
	if vs.CameraOrShare() {
		// prendió justo en el último tick
		s.comply(ctx, c, vs)
		return
	}
	if !c.settle(domain.OutcomeKicked) {
		return
	}

	s.marks.Mark(c.memberID)
	s.mu.Lock()
	if sess := s.sessions[c.memberID]; sess != nil && sess.cd == c {
		delete(s.sessions, c.memberID)
	}
	n := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetCamSessions(n)
	s.metrics.IncCamKick()

	tpl := domain.TplCamKicked
	if c.phase == domain.PhaseWarningActive {
		tpl = domain.TplCamKickedWarning
	}
	if !c.msg.IsZero() {
		if err := s.notifier.Update(ctx, c.msg, s.notice(tpl, c.memberID, map[string]string{
			domain.VarTotal: strconv.Itoa(seconds(s.cfg.Grace)),
		}, camKickedTTL)); err != nil {
			log.Printf("[studycam] member=%s: kicked notice: %v", c.memberID, err)
		}
	}

	if err := s.guild.Disconnect(ctx, c.memberID); err != nil {
		log.Printf("[studycam] member=%s: disconnect: %v", c.memberID, err)
		s.metrics.CapabilityError("disconnect")
		s.marks.Clear(c.memberID)
		return
	}
	// si el evento de salida no llega, la marca igual se limpia
	s.marks.ClearAfter(c.memberID, s.cfg.KickMarkTTL)
	log.Printf("[studycam] member=%s: expulsado (%s)", c.memberID, c.phase)
}

// dropStale descarta una sesión vieja (evento de salida perdido).
func (s *StudyCamService) dropStale(memberID string) {
	s.mu.Lock()
	sess := s.sessions[memberID]
	delete(s.sessions, memberID)
	s.mu.Unlock()
	if sess != nil && sess.cd != nil {
		sess.cd.stop(domain.OutcomeDeparted)
	}
}

func (s *StudyCamService) notice(tpl domain.Template, memberID string, vars map[string]string, ttl time.Duration) domain.Notification {
	out := map[string]string{
		domain.VarMember:  memberID,
		domain.VarChannel: s.cfg.ChannelID,
	}
	for k, v := range vars {
		out[k] = v
	}
	return domain.Notification{
		ChannelID:   s.cfg.LogChannelID,
		Template:    tpl,
		MemberID:    memberID,
		Vars:        out,
		ExpireAfter: ttl,
	}
}

// Rescan reconstruye sesiones para quien ya estaba en el canal al arrancar.
func (s *StudyCamService) Rescan(ctx context.Context) int {
	members := s.guild.VoiceMembers(ctx, s.cfg.ChannelID)
	n := 0
	for memberID, vs := range members {
		s.mu.Lock()
		_, tracked := s.sessions[memberID]
		s.mu.Unlock()
		if tracked {
			continue
		}
		s.rebuild(ctx, memberID, vs)
		n++
	}
	log.Printf("[studycam] rescan: %d sesiones reconstruidas", n)
	return n
}

func (s *StudyCamService) Phase(memberID string) (domain.CamPhase, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[memberID]
	if !ok {
		return 0, false
	}
	return sess.phase, true
}

func (s *StudyCamService) KickMarked(memberID string) bool { return s.marks.Has(memberID) }

func (s *StudyCamService) Stats() domain.CamStats {
	st := domain.CamStats{
		Sessions:     map[string]int{},
		GraceSeconds: seconds(s.cfg.Grace),
	}
	s.mu.Lock()
	for _, sess := range s.sessions {
		st.Sessions[sess.phase.String()]++
		if sess.cd != nil && sess.cd.pending() {
			st.ActiveCountdowns++
		}
	}
	s.mu.Unlock()
	st.PendingKickMarks = s.marks.Len()
	if s.metrics != nil {
		st.Warnings = s.metrics.CamWarnings.Load()
		st.Kicks = s.metrics.CamKicks.Load()
		st.Compliances = s.metrics.CamCompliances.Load()
	}
	return st
}

// Shutdown cancela todos los countdowns y espera a que terminen.
func (s *StudyCamService) Shutdown() {
	s.mu.Lock()
	s.closed = true
	for id, sess := range s.sessions {
		if sess.cd != nil {
			sess.cd.stop(domain.OutcomeShutdown)
		}
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.cancel()
	s.marks.Stop()
	s.metrics.SetCamSessions(0)
	log.Printf("[studycam] shutdown ok")
}
