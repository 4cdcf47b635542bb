package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jose-valero/tribunaldo-bot/internal/domain"
	"github.com/jose-valero/tribunaldo-bot/internal/infra/metrics"
)

const focusOpTimeout = 15 * time.Second

type FocusConfig struct {
	ChannelID          string // canal de voz de foco
	LogChannelID       string
	FocusRoleID        string
	RestrictionRoleID  string
	DistractionRoleIDs []string // el orden se respeta al guardar y restaurar
	RestrictionWindow  time.Duration
}

// FocusService maneja NORMAL <-> FOCUSED. Es el único dueño de ExitRecord y
// RemovedRolesRecord; cada cambio se persiste antes de seguir.
type FocusService struct {
	cfg      FocusConfig
	guild    Guild
	notifier Notifier
	store    StateStore
	timers   *Timers
	metrics  *metrics.Metrics
	now      func() time.Time

	mu    sync.Mutex
	state domain.State
}

func NewFocusService(cfg FocusConfig, guild Guild, notifier Notifier, store StateStore, timers *Timers, m *metrics.Metrics) *FocusService {
	if timers == nil {
		timers = NewTimers()
	}
	return &FocusService{
		cfg:      cfg,
		guild:    guild,
		notifier: notifier,
		store:    store,
		timers:   timers,
		metrics:  m,
		now:      time.Now,
		state:    domain.NewState(),
	}
}

// Load trae el estado persistido. Llamar antes de Resume.
func (s *FocusService) Load(ctx context.Context) error {
	st, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load focus state: %w", err)
	}
	if st.Exits == nil || st.RemovedRoles == nil {
		st = mergeState(domain.NewState(), st)
	}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	log.Printf("[focus] estado cargado: %d restricciones, %d registros de cargos", len(st.Exits), len(st.RemovedRoles))
	return nil
}

func mergeState(dst, src domain.State) domain.State {
	for k, v := range src.Exits {
		dst.Exits[k] = v
	}
	for k, v := range src.RemovedRoles {
		dst.RemovedRoles[k] = v
	}
	return dst
}

// persistLocked guarda una copia del estado. Requiere s.mu.
func (s *FocusService) persistLocked(ctx context.Context) error {
	return s.store.SaveAll(ctx, s.state.Clone())
}

func (s *FocusService) HandleVoice(ctx context.Context, tr domain.VoiceTransition) {
	switch {
	case tr.Entered(s.cfg.ChannelID):
		s.enter(ctx, tr.MemberID)
	case tr.Left(s.cfg.ChannelID):
		s.exit(ctx, tr.MemberID)
	}
}

func (s *FocusService) enter(ctx context.Context, memberID string) {
	m, ok, err := s.guild.FetchMember(ctx, memberID)
	if err != nil {
		log.Printf("[focus] member=%s: lookup: %v", memberID, err)
		return
	}
	if !ok {
		log.Printf("[focus] member=%s: ya no está en el servidor", memberID)
		return
	}
	// ya en foco (rebote): no volver a registrar cargos
	if m.HasRole(s.cfg.FocusRoleID) {
		log.Printf("[focus] member=%s: ya tiene el cargo de foco, nada que hacer", memberID)
		return
	}
	if err := s.guild.GrantRole(ctx, memberID, s.cfg.FocusRoleID); err != nil {
		log.Printf("[focus] member=%s: grant focus role: %v", memberID, err)
		s.metrics.CapabilityError("grant")
		return
	}

	held := make([]string, 0, len(s.cfg.DistractionRoleIDs))
	for _, roleID := range s.cfg.DistractionRoleIDs {
		if m.HasRole(roleID) && s.guild.RoleExists(ctx, roleID) {
			held = append(held, roleID)
		}
	}

	if len(held) > 0 {
		// se registra antes de sacar nada
		s.mu.Lock()
		rec := s.state.RemovedRoles[memberID]
		rec.MemberID = memberID
		rec.RoleIDs = appendMissing(rec.RoleIDs, held...)
		s.state.RemovedRoles[memberID] = rec
		err := s.persistLocked(ctx)
		s.mu.Unlock()
		if err != nil {
			log.Printf("[focus] member=%s: persist removed roles: %v", memberID, err)
			return
		}

		for _, roleID := range held {
			if err := s.guild.RevokeRole(ctx, memberID, roleID); err != nil {
				log.Printf("[focus] member=%s: revoke %s: %v", memberID, roleID, err)
				s.metrics.CapabilityError("revoke")
			}
		}
	}

	if _, err := s.notifier.Notify(ctx, s.notice(domain.TplFocusEntered, memberID)); err != nil {
		log.Printf("[focus] member=%s: notify entered: %v", memberID, err)
	}
	s.metrics.IncFocusEntry()
	log.Printf("[focus] member=%s: entró en foco (%d cargos guardados)", memberID, len(held))
}

func (s *FocusService) exit(ctx context.Context, memberID string) {
	exitAt := s.now()

	_, ok, err := s.guild.FetchMember(ctx, memberID)
	if err != nil {
		log.Printf("[focus] member=%s: lookup: %v", memberID, err)
		return
	}
	if !ok {
		// se fue del servidor: sólo limpieza
		s.mu.Lock()
		delete(s.state.Exits, memberID)
		delete(s.state.RemovedRoles, memberID)
		err := s.persistLocked(ctx)
		s.mu.Unlock()
		if err != nil {
			log.Printf("[focus] member=%s: persist cleanup: %v", memberID, err)
		}
		s.timers.Cancel(memberID)
		log.Printf("[focus] member=%s: salió del servidor, registros borrados", memberID)
		return
	}

	// 1. registro de salida, persistido antes de armar nada
	s.mu.Lock()
	s.state.Exits[memberID] = domain.ExitRecord{MemberID: memberID, ExitAt: exitAt}
	err = s.persistLocked(ctx)
	if err != nil {
		delete(s.state.Exits, memberID)
	}
	s.mu.Unlock()
	restrict := err == nil
	if !restrict {
		log.Printf("[focus] member=%s: persist exit record: %v (sin restricción)", memberID, err)
	}

	// 2. cargo de restricción
	if restrict {
		if err := s.guild.GrantRole(ctx, memberID, s.cfg.RestrictionRoleID); err != nil {
			log.Printf("[focus] member=%s: grant restriction role: %v", memberID, err)
			s.metrics.CapabilityError("grant")
		}
	}

	// 3. aviso
	if _, err := s.notifier.Notify(ctx, s.notice(domain.TplFocusExited, memberID)); err != nil {
		log.Printf("[focus] member=%s: notify exited: %v", memberID, err)
	}

	// 4. fuera el cargo de foco (sacar un cargo que no tiene no falla)
	if err := s.guild.RevokeRole(ctx, memberID, s.cfg.FocusRoleID); err != nil {
		log.Printf("[focus] member=%s: revoke focus role: %v", memberID, err)
		s.metrics.CapabilityError("revoke")
	}

	// 5. devolver cargos
	s.restore(ctx, memberID)

	// 6. timer de restricción
	if restrict {
		s.timers.Schedule(memberID, s.cfg.RestrictionWindow, func() {
			s.expire(domain.ExitRecord{MemberID: memberID, ExitAt: exitAt})
		})
	}
	s.metrics.IncFocusExit()
	log.Printf("[focus] member=%s: salió de foco, restricción por %s", memberID, s.cfg.RestrictionWindow)
}

// restore devuelve los cargos guardados que todavía existen y borra el
// registro. Dar un cargo que ya tiene no falla.
func (s *FocusService) restore(ctx context.Context, memberID string) {
	s.mu.Lock()
	rec, ok := s.state.RemovedRoles[memberID]
	s.mu.Unlock()
	if !ok {
		return
	}

	restored := 0
	for _, roleID := range rec.RoleIDs {
		if !s.guild.RoleExists(ctx, roleID) {
			log.Printf("[focus] member=%s: cargo %s ya no existe, se omite", memberID, roleID)
			continue
		}
		if err := s.guild.GrantRole(ctx, memberID, roleID); err != nil {
			log.Printf("[focus] member=%s: restore %s: %v", memberID, roleID, err)
			s.metrics.CapabilityError("grant")
			continue
		}
		restored++
	}

	s.mu.Lock()
	delete(s.state.RemovedRoles, memberID)
	err := s.persistLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		log.Printf("[focus] member=%s: persist restore: %v", memberID, err)
	}
	log.Printf("[focus] member=%s: %d/%d cargos devueltos", memberID, restored, len(rec.RoleIDs))
}

// expire corre cuando vence la ventana de restricción (o al arrancar si ya
// venció). Si el miembro ya no está, sólo limpia.
func (s *FocusService) expire(rec domain.ExitRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), focusOpTimeout)
	defer cancel()

	_, ok, err := s.guild.FetchMember(ctx, rec.MemberID)
	if err != nil {
		// se reintenta en el próximo arranque
		log.Printf("[focus] member=%s: lookup al vencer: %v", rec.MemberID, err)
		return
	}
	if ok {
		if err := s.guild.RevokeRole(ctx, rec.MemberID, s.cfg.RestrictionRoleID); err != nil {
			log.Printf("[focus] member=%s: revoke restriction role: %v", rec.MemberID, err)
			s.metrics.CapabilityError("revoke")
		}
	}

	s.mu.Lock()
	cur, exists := s.state.Exits[rec.MemberID]
	// una salida más nueva tiene su propio timer
	if exists && cur.ExitAt.Equal(rec.ExitAt) {
		delete(s.state.Exits, rec.MemberID)
		if err := s.persistLocked(ctx); err != nil {
			log.Printf("[focus] member=%s: persist expire: %v", rec.MemberID, err)
		}
	}
	s.mu.Unlock()

	s.metrics.IncRestrictionExpired()
	if !ok {
		log.Printf("[focus] member=%s: restricción vencida, miembro ausente (sólo limpieza)", rec.MemberID)
		return
	}
	log.Printf("[focus] member=%s: restricción vencida", rec.MemberID)
}

// Resume reconcilia el estado persistido con el servidor al arrancar.
func (s *FocusService) Resume(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	exits := make([]domain.ExitRecord, 0, len(s.state.Exits))
	for _, rec := range s.state.Exits {
		exits = append(exits, rec)
	}
	removed := make([]domain.RemovedRolesRecord, 0, len(s.state.RemovedRoles))
	for _, rec := range s.state.RemovedRoles {
		removed = append(removed, rec)
	}
	s.mu.Unlock()

	live := make([]domain.ExitRecord, 0, len(exits))
	orphans := 0
	for _, rec := range exits {
		m, ok, err := s.guild.FetchMember(ctx, rec.MemberID)
		if err != nil {
			log.Printf("[focus] resume member=%s: lookup: %v", rec.MemberID, err)
			// se agenda igual; expire vuelve a mirar
			live = append(live, rec)
			continue
		}
		if !ok {
			s.mu.Lock()
			delete(s.state.Exits, rec.MemberID)
			s.mu.Unlock()
			orphans++
			continue
		}
		if now.Sub(rec.ExitAt) < s.cfg.RestrictionWindow && !m.HasRole(s.cfg.RestrictionRoleID) {
			if err := s.guild.GrantRole(ctx, rec.MemberID, s.cfg.RestrictionRoleID); err != nil {
				log.Printf("[focus] resume member=%s: grant restriction role: %v", rec.MemberID, err)
				s.metrics.CapabilityError("grant")
			}
		}
		live = append(live, rec)
	}
	if orphans > 0 {
		s.mu.Lock()
		err := s.persistLocked(ctx)
		s.mu.Unlock()
		if err != nil {
			log.Printf("[focus] resume: persist: %v", err)
		}
	}

	expired, scheduled := s.timers.Resume(live, s.cfg.RestrictionWindow, now, s.expire)

	// quien quedó en foco (cargo o cargos guardados) pero ya no está en el
	// canal salió con el bot caído: se le aplica la salida completa
	pending := map[string]struct{}{}
	for _, rec := range removed {
		pending[rec.MemberID] = struct{}{}
	}
	holders, err := s.guild.RoleMembers(ctx, s.cfg.FocusRoleID)
	if err != nil {
		log.Printf("[focus] resume: miembros con cargo de foco: %v", err)
	}
	for _, id := range holders {
		pending[id] = struct{}{}
	}

	exited := 0
	for memberID := range pending {
		if vs, inVoice := s.guild.VoiceState(ctx, memberID); inVoice && vs.ChannelID == s.cfg.ChannelID {
			continue
		}
		if _, ok, err := s.guild.FetchMember(ctx, memberID); err != nil || !ok {
			// se guarda hasta que vuelva
			continue
		}
		s.exit(ctx, memberID)
		exited++
	}

	log.Printf("[focus] resume: %d vencidas, %d reagendadas, %d huérfanas, %d salidas pendientes",
		expired, scheduled, orphans, exited)
}

func (s *FocusService) notice(tpl domain.Template, memberID string) domain.Notification {
	return domain.Notification{
		ChannelID: s.cfg.LogChannelID,
		Template:  tpl,
		MemberID:  memberID,
		Vars: map[string]string{
			domain.VarMember:  memberID,
			domain.VarChannel: s.cfg.ChannelID,
			domain.VarTotal:   fmt.Sprintf("%d", seconds(s.cfg.RestrictionWindow)),
		},
	}
}

// Snapshot devuelve una copia del estado (nunca la original).
func (s *FocusService) Snapshot() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *FocusService) Stats() domain.FocusStats {
	s.mu.Lock()
	st := domain.FocusStats{
		PendingRestrictions: len(s.state.Exits),
		RemovedRoleRecords:  len(s.state.RemovedRoles),
	}
	s.mu.Unlock()
	st.ArmedTimers = s.timers.Len()
	return st
}

func appendMissing(dst []string, ids ...string) []string {
	for _, id := range ids {
		found := false
		for _, have := range dst {
			if have == id {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, id)
		}
	}
	return dst
}
