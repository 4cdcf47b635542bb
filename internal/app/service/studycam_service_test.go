package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/tribunaldo-bot/internal/domain"
	"github.com/jose-valero/tribunaldo-bot/internal/infra/metrics"
)

const camCh = "vc-cam"

type camFixture struct {
	svc   *StudyCamService
	guild *fakeGuild
	notes *fakeNotifier
	m     *metrics.Metrics
}

func newCamFixture(t *testing.T, grace time.Duration) *camFixture {
	t.Helper()
	f := &camFixture{
		guild: newFakeGuild(),
		notes: &fakeNotifier{},
		m:     metrics.New(),
	}
	f.svc = NewStudyCamService(StudyCamConfig{
		ChannelID:    camCh,
		LogChannelID: logCh,
		Grace:        grace,
		PollInterval: 5 * time.Millisecond,
		KickMarkTTL:  100 * time.Millisecond,
	}, f.guild, f.notes, f.m)
	t.Cleanup(f.svc.Shutdown)
	return f
}

// join deja al miembro en el canal (estado en vivo) y entrega el evento.
func (f *camFixture) join(id string, camera bool) {
	f.guild.addMember(id)
	f.guild.setVoice(id, domain.VoiceState{ChannelID: camCh, CameraOn: camera})
	f.svc.HandleVoice(context.Background(), domain.VoiceTransition{MemberID: id, NewChannelID: camCh, CameraOn: camera})
}

func (f *camFixture) toggle(id string, camera, screen bool) {
	f.guild.setVoice(id, domain.VoiceState{ChannelID: camCh, CameraOn: camera, ScreenShareOn: screen})
	f.svc.HandleVoice(context.Background(), domain.VoiceTransition{
		MemberID: id, PreviousChannelID: camCh, NewChannelID: camCh, CameraOn: camera, ScreenShareOn: screen,
	})
}

func (f *camFixture) leave(id string) {
	f.guild.setVoice(id, domain.VoiceState{})
	f.svc.HandleVoice(context.Background(), domain.VoiceTransition{MemberID: id, PreviousChannelID: camCh})
}

func (f *camFixture) phase(id string) domain.CamPhase {
	p, _ := f.svc.Phase(id)
	return p
}

func TestNextThreshold(t *testing.T) {
	cases := []struct {
		remaining, last int
		want            int
		ok              bool
	}{
		{59, 61, 0, false},
		{30, 61, 30, true},
		{29, 30, 20, false},
		{20, 30, 20, true},
		{4, 10, 5, true},
		{3, 5, 3, true},
		{0, 1, 0, false},
		{0, 2, 1, true},
	}
	for _, c := range cases {
		got, ok := nextThreshold(c.remaining, c.last)
		assert.Equal(t, c.ok, ok, "remaining=%d last=%d", c.remaining, c.last)
		if c.ok {
			assert.Equal(t, c.want, got)
		}
	}
}

func TestCountdownSettlesOnce(t *testing.T) {
	c := newCountdown(context.Background(), "u1", domain.PhaseInitialGrace, time.Now())
	outcomes := []domain.Outcome{domain.OutcomeComplied, domain.OutcomeDeparted, domain.OutcomeKicked, domain.OutcomeShutdown}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		o := outcomes[i%len(outcomes)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.stop(o) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.NotEqual(t, domain.OutcomePending, c.Outcome())
}

func TestStudyCamKickAfterGrace(t *testing.T) {
	f := newCamFixture(t, 80*time.Millisecond)
	f.join("u1", false)

	assert.Equal(t, domain.PhaseInitialGrace, f.phase("u1"))
	assert.Equal(t, []domain.Template{domain.TplCamGrace}, f.notes.sentTemplates())

	require.Eventually(t, func() bool { return f.guild.disconnectCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, f.svc.KickMarked("u1"))
	_, tracked := f.svc.Phase("u1")
	assert.False(t, tracked)

	kicked, ok := f.notes.lastUpdate(domain.TplCamKicked)
	require.True(t, ok)
	assert.Equal(t, camKickedTTL, kicked.n.ExpireAfter)

	// el evento de salida provocado por el kick no genera aviso
	f.svc.HandleVoice(context.Background(), domain.VoiceTransition{MemberID: "u1", PreviousChannelID: camCh})
	_, left := f.notes.lastUpdate(domain.TplCamLeft)
	assert.False(t, left)

	require.Eventually(t, func() bool { return !f.svc.KickMarked("u1") }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), f.m.CamKicks.Load())
}

func TestStudyCamWelcomeWhenCameraAlreadyOn(t *testing.T) {
	f := newCamFixture(t, 50*time.Millisecond)
	f.join("u1", true)

	assert.Equal(t, domain.PhaseContinuous, f.phase("u1"))
	assert.Equal(t, []domain.Template{domain.TplCamWelcome}, f.notes.sentTemplates())
	assert.Zero(t, f.svc.Stats().ActiveCountdowns)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, f.guild.disconnectCount())
}

func TestStudyCamWarningCancelledByReenable(t *testing.T) {
	f := newCamFixture(t, 150*time.Millisecond)
	f.join("u1", true)

	f.toggle("u1", false, false)
	assert.Equal(t, domain.PhaseWarningActive, f.phase("u1"))
	assert.Equal(t, 1, f.svc.Stats().ActiveCountdowns)

	time.Sleep(30 * time.Millisecond)
	f.toggle("u1", true, false)

	assert.Equal(t, domain.PhaseContinuous, f.phase("u1"))
	re, ok := f.notes.lastUpdate(domain.TplCamReenabled)
	require.True(t, ok)
	assert.Equal(t, camNoticeTTL, re.n.ExpireAfter)

	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, f.guild.disconnectCount())
	assert.Equal(t, uint64(1), f.m.CamCompliances.Load())
}

func TestStudyCamWarningKick(t *testing.T) {
	f := newCamFixture(t, 60*time.Millisecond)
	f.join("u1", true)
	f.toggle("u1", false, false)

	require.Eventually(t, func() bool { return f.guild.disconnectCount() == 1 }, time.Second, 5*time.Millisecond)
	_, ok := f.notes.lastUpdate(domain.TplCamKickedWarning)
	assert.True(t, ok)
}

func TestStudyCamApprovedWithinGrace(t *testing.T) {
	f := newCamFixture(t, 120*time.Millisecond)
	f.join("u1", false)

	// prende cerca del final (T - ε)
	time.Sleep(90 * time.Millisecond)
	f.toggle("u1", false, true)

	assert.Equal(t, domain.PhaseContinuous, f.phase("u1"))
	ap, ok := f.notes.lastUpdate(domain.TplCamApproved)
	require.True(t, ok)
	assert.Equal(t, "screen", ap.n.Vars[domain.VarCamKind])

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, f.guild.disconnectCount())
}

func TestStudyCamPollDetectsCamera(t *testing.T) {
	f := newCamFixture(t, 200*time.Millisecond)
	f.join("u1", false)

	// sólo cambia el estado en vivo; el evento se perdió
	f.guild.setVoice("u1", domain.VoiceState{ChannelID: camCh, CameraOn: true})

	require.Eventually(t, func() bool { return f.phase("u1") == domain.PhaseContinuous }, time.Second, 5*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	assert.Zero(t, f.guild.disconnectCount())
}

func TestStudyCamVoluntaryLeaveDuringGrace(t *testing.T) {
	f := newCamFixture(t, 200*time.Millisecond)
	f.join("u1", false)
	time.Sleep(20 * time.Millisecond)
	f.leave("u1")

	left, ok := f.notes.lastUpdate(domain.TplCamLeft)
	require.True(t, ok)
	assert.Equal(t, "m1", left.ref.MessageID)
	_, tracked := f.svc.Phase("u1")
	assert.False(t, tracked)

	time.Sleep(250 * time.Millisecond)
	assert.Zero(t, f.guild.disconnectCount())
}

func TestStudyCamLeaveDuringWarningDeletesMessage(t *testing.T) {
	f := newCamFixture(t, 200*time.Millisecond)
	f.join("u1", true)
	f.toggle("u1", false, false)
	f.leave("u1")

	assert.Equal(t, 1, f.notes.deleteCount())
	_, left := f.notes.lastUpdate(domain.TplCamLeft)
	assert.False(t, left)
}

func TestStudyCamRejoinClearsKickMark(t *testing.T) {
	f := newCamFixture(t, 40*time.Millisecond)
	f.join("u1", false)
	require.Eventually(t, func() bool { return f.guild.disconnectCount() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, f.svc.KickMarked("u1"))

	f.join("u1", true)
	assert.False(t, f.svc.KickMarked("u1"))
	assert.Equal(t, domain.PhaseContinuous, f.phase("u1"))
}

func TestStudyCamDisconnectFailureClearsMark(t *testing.T) {
	f := newCamFixture(t, 40*time.Millisecond)
	f.guild.disconnectErr = errBoom
	f.join("u1", false)

	require.Eventually(t, func() bool {
		_, ok := f.notes.lastUpdate(domain.TplCamKicked)
		return ok
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !f.svc.KickMarked("u1") }, time.Second, 5*time.Millisecond)
}

func TestStudyCamUpdateWithoutSessionRebuilds(t *testing.T) {
	f := newCamFixture(t, time.Second)
	f.guild.addMember("u1")
	f.toggle("u1", false, false)

	assert.Equal(t, domain.PhaseInitialGrace, f.phase("u1"))

	f.guild.addMember("u2")
	f.toggle("u2", true, false)
	assert.Equal(t, domain.PhaseContinuous, f.phase("u2"))
	assert.NotContains(t, f.notes.sentTemplates(), domain.TplCamWelcome)
}

func TestStudyCamRescan(t *testing.T) {
	f := newCamFixture(t, time.Second)
	f.guild.addMember("cam")
	f.guild.addMember("nocam")
	f.guild.addMember("elsewhere")
	f.guild.setVoice("cam", domain.VoiceState{ChannelID: camCh, CameraOn: true})
	f.guild.setVoice("nocam", domain.VoiceState{ChannelID: camCh})
	f.guild.setVoice("elsewhere", domain.VoiceState{ChannelID: "vc-other"})

	n := f.svc.Rescan(context.Background())

	assert.Equal(t, 2, n)
	assert.Equal(t, domain.PhaseContinuous, f.phase("cam"))
	assert.Equal(t, domain.PhaseInitialGrace, f.phase("nocam"))
	_, tracked := f.svc.Phase("elsewhere")
	assert.False(t, tracked)

	st := f.svc.Stats()
	assert.Equal(t, 1, st.Sessions["CONTINUOUS"])
	assert.Equal(t, 1, st.Sessions["INITIAL_GRACE"])
	assert.Equal(t, 1, st.ActiveCountdowns)
}

func TestStudyCamShutdownStopsCountdowns(t *testing.T) {
	f := newCamFixture(t, 60*time.Millisecond)
	f.join("u1", false)
	f.join("u2", false)

	f.svc.Shutdown()
	time.Sleep(100 * time.Millisecond)

	assert.Zero(t, f.guild.disconnectCount())
	assert.Empty(t, f.svc.Stats().Sessions)

	// después del shutdown no se arma nada nuevo
	f.join("u3", false)
	_, tracked := f.svc.Phase("u3")
	assert.False(t, tracked)
}

func TestStudyCamExactlyOneOutcomeUnderRace(t *testing.T) {
	for i := 0; i < 10; i++ {
		f := newCamFixture(t, 30*time.Millisecond)
		f.join("u1", false)
		time.Sleep(28 * time.Millisecond)
		f.toggle("u1", true, false)

		time.Sleep(60 * time.Millisecond)
		kicks := f.m.CamKicks.Load()
		complied := f.m.CamCompliances.Load()
		assert.Equal(t, uint64(1), kicks+complied, "iteración %d", i)
		f.svc.Shutdown()
	}
}

func TestStudyCamCountdownPublishedWithMessage(t *testing.T) {
	f := newCamFixture(t, time.Hour)
	f.guild.addMember("u1")
	f.guild.setVoice("u1", domain.VoiceState{ChannelID: camCh, CameraOn: true})
	f.svc.HandleVoice(context.Background(), domain.VoiceTransition{MemberID: "u1", NewChannelID: camCh, CameraOn: true})

	var during []domain.CamPhase
	var tracked []bool
	f.notes.onNotify = func(n domain.Notification) {
		if n.Template != domain.TplCamGrace && n.Template != domain.TplCamWarning {
			return
		}
		p, ok := f.svc.Phase(n.MemberID)
		during = append(during, p)
		tracked = append(tracked, ok)
	}

	// aviso: mientras se manda el mensaje la sesión sigue en CONTINUOUS
	f.toggle("u1", false, false)
	// gracia: mientras se manda el mensaje no hay sesión visible
	f.guild.addMember("u2")
	f.guild.setVoice("u2", domain.VoiceState{ChannelID: camCh})
	f.svc.HandleVoice(context.Background(), domain.VoiceTransition{MemberID: "u2", NewChannelID: camCh})

	require.Equal(t, []bool{true, false}, tracked)
	assert.Equal(t, domain.PhaseContinuous, during[0])
	assert.Equal(t, domain.PhaseWarningActive, f.phase("u1"))
	assert.Equal(t, domain.PhaseInitialGrace, f.phase("u2"))

	// la salida ve el mensaje del countdown
	f.leave("u2")
	left, ok := f.notes.lastUpdate(domain.TplCamLeft)
	require.True(t, ok)
	assert.False(t, left.ref.IsZero())
}
