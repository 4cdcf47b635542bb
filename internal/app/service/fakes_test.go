package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jose-valero/tribunaldo-bot/internal/domain"
)

var errBoom = errors.New("boom")

// ---- guild ----

type fakeGuild struct {
	mu            sync.Mutex
	members       map[string]map[string]bool // member -> roles
	voice         map[string]domain.VoiceState
	roles         map[string]bool
	grantErr      map[string]error // por roleID
	disconnectErr error
	disconnects   []string
	revokes       []string // "member:role"
	grants        []string
	beforeRevoke  func(memberID, roleID string)

	// con lagging, FetchMember devuelve los cargos de cuando se agregó el
	// miembro, no los actuales
	lagging bool
	initial map[string][]string
}

func newFakeGuild(roles ...string) *fakeGuild {
	g := &fakeGuild{
		members:  map[string]map[string]bool{},
		voice:    map[string]domain.VoiceState{},
		roles:    map[string]bool{},
		grantErr: map[string]error{},
		initial:  map[string][]string{},
	}
	for _, r := range roles {
		g.roles[r] = true
	}
	return g
}

func (g *fakeGuild) addMember(id string, roles ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set := map[string]bool{}
	for _, r := range roles {
		set[r] = true
	}
	g.members[id] = set
	g.initial[id] = append([]string(nil), roles...)
}

func (g *fakeGuild) removeMember(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members, id)
	delete(g.voice, id)
}

func (g *fakeGuild) setVoice(id string, vs domain.VoiceState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if vs.ChannelID == "" {
		delete(g.voice, id)
		return
	}
	g.voice[id] = vs
}

func (g *fakeGuild) hasRole(id, role string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.members[id][role]
}

func (g *fakeGuild) disconnectCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.disconnects)
}

func (g *fakeGuild) revokeCalls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.revokes...)
}

func (g *fakeGuild) FetchMember(_ context.Context, id string) (domain.Member, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.members[id]
	if !ok {
		return domain.Member{}, false, nil
	}
	m := domain.Member{ID: id}
	if g.lagging {
		m.RoleIDs = append(m.RoleIDs, g.initial[id]...)
	} else {
		for r := range set {
			m.RoleIDs = append(m.RoleIDs, r)
		}
	}
	sort.Strings(m.RoleIDs)
	return m, true, nil
}

func (g *fakeGuild) RoleMembers(_ context.Context, roleID string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for id, set := range g.members {
		if set[roleID] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (g *fakeGuild) VoiceState(_ context.Context, id string) (domain.VoiceState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	vs, ok := g.voice[id]
	return vs, ok
}

func (g *fakeGuild) RoleExists(_ context.Context, roleID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.roles[roleID]
}

func (g *fakeGuild) VoiceMembers(_ context.Context, channelID string) map[string]domain.VoiceState {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := map[string]domain.VoiceState{}
	for id, vs := range g.voice {
		if vs.ChannelID == channelID {
			out[id] = vs
		}
	}
	return out
}

func (g *fakeGuild) GrantRole(_ context.Context, memberID, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.grantErr[roleID]; err != nil {
		return err
	}
	set, ok := g.members[memberID]
	if !ok {
		return fmt.Errorf("unknown member %s", memberID)
	}
	set[roleID] = true
	g.grants = append(g.grants, memberID+":"+roleID)
	return nil
}

func (g *fakeGuild) RevokeRole(_ context.Context, memberID, roleID string) error {
	if g.beforeRevoke != nil {
		g.beforeRevoke(memberID, roleID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.members[memberID]
	if !ok {
		return fmt.Errorf("unknown member %s", memberID)
	}
	delete(set, roleID)
	g.revokes = append(g.revokes, memberID+":"+roleID)
	return nil
}

func (g *fakeGuild) Disconnect(_ context.Context, memberID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disconnectErr != nil {
		return g.disconnectErr
	}
	delete(g.voice, memberID)
	g.disconnects = append(g.disconnects, memberID)
	return nil
}

// ---- notifier ----

type sentNote struct {
	ref domain.MessageRef
	n   domain.Notification
}

type fakeNotifier struct {
	mu      sync.Mutex
	seq     int
	sent    []sentNote
	updates []sentNote
	deletes []domain.MessageRef
	err     error

	onNotify func(n domain.Notification) // antes de registrar el envío
}

func (f *fakeNotifier) Notify(_ context.Context, n domain.Notification) (domain.MessageRef, error) {
	if f.onNotify != nil {
		f.onNotify(n)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.MessageRef{}, f.err
	}
	f.seq++
	ref := domain.MessageRef{ChannelID: n.ChannelID, MessageID: fmt.Sprintf("m%d", f.seq)}
	f.sent = append(f.sent, sentNote{ref: ref, n: n})
	return ref, nil
}

func (f *fakeNotifier) Update(_ context.Context, ref domain.MessageRef, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, sentNote{ref: ref, n: n})
	return f.err
}

func (f *fakeNotifier) Delete(_ context.Context, ref domain.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, ref)
	return f.err
}

func (f *fakeNotifier) sentTemplates() []domain.Template {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Template, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.n.Template)
	}
	return out
}

func (f *fakeNotifier) updateTemplates() []domain.Template {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Template, 0, len(f.updates))
	for _, s := range f.updates {
		out = append(out, s.n.Template)
	}
	return out
}

func (f *fakeNotifier) lastUpdate(tpl domain.Template) (sentNote, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.updates) - 1; i >= 0; i-- {
		if f.updates[i].n.Template == tpl {
			return f.updates[i], true
		}
	}
	return sentNote{}, false
}

func (f *fakeNotifier) deleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deletes)
}

// ---- store ----

type memStore struct {
	mu      sync.Mutex
	st      domain.State
	saves   int
	saveErr error
}

func newMemStore() *memStore { return &memStore{st: domain.NewState()} }

func (m *memStore) LoadAll(context.Context) (domain.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Clone(), nil
}

func (m *memStore) SaveAll(_ context.Context, st domain.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.st = st.Clone()
	m.saves++
	return nil
}

func (m *memStore) snapshot() domain.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Clone()
}

// ---- chat ----

type fakeGen struct {
	mu       sync.Mutex
	reply    string
	err      error
	prompts  []string
	historyN []int
}

func (f *fakeGen) Generate(_ context.Context, history []domain.ChatTurn, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.historyN = append(f.historyN, len(history))
	return f.reply, f.err
}

type memHistory struct {
	mu    sync.Mutex
	turns map[string][]domain.ChatTurn
}

func newMemHistory() *memHistory { return &memHistory{turns: map[string][]domain.ChatTurn{}} }

func (h *memHistory) Append(_ context.Context, t domain.ChatTurn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns[t.MemberID] = append(h.turns[t.MemberID], t)
	return nil
}

func (h *memHistory) Recent(_ context.Context, memberID string, limit int) ([]domain.ChatTurn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ts := h.turns[memberID]
	if len(ts) > limit {
		ts = ts[len(ts)-limit:]
	}
	return append([]domain.ChatTurn(nil), ts...), nil
}

func (h *memHistory) Trim(_ context.Context, memberID string, keep int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ts := h.turns[memberID]; len(ts) > keep {
		h.turns[memberID] = append([]domain.ChatTurn(nil), ts[len(ts)-keep:]...)
	}
	return nil
}

func (h *memHistory) Clear(_ context.Context, memberID string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.turns[memberID]
	delete(h.turns, memberID)
	return ok, nil
}
