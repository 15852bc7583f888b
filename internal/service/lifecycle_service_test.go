package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-orchestrator/internal/domain"
	"github.com/spec-kit/ticket-orchestrator/internal/events"
	"github.com/spec-kit/ticket-orchestrator/internal/gateway"
	"github.com/spec-kit/ticket-orchestrator/internal/observability"
	"github.com/spec-kit/ticket-orchestrator/internal/repository"
	apperrors "github.com/spec-kit/ticket-orchestrator/pkg/util/errorutil"
)

const (
	testWorkspace = "ws-1"
	supportRole   = "role-support"
)

// memTickets is an in-memory TicketRepository with per-method error hooks.
type memTickets struct {
	mu      sync.Mutex
	byName  map[string]*domain.Ticket
	counter int

	insertErr  error
	assignErr  error
	closureErr error
}

func newMemTickets() *memTickets {
	return &memTickets{byName: map[string]*domain.Ticket{}}
}

func (m *memTickets) key(workspaceID, name string) string { return workspaceID + "/" + name }

func (m *memTickets) Insert(_ context.Context, t *domain.Ticket) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	t.ID = int64(m.counter)
	t.Number = m.counter
	t.Name = domain.TicketName(t.Number)
	t.Status = domain.TicketStatusOpen
	t.CreatedAt = time.Now()
	copied := *t
	m.byName[m.key(t.WorkspaceID, t.Name)] = &copied
	return nil
}

func (m *memTickets) GetByName(_ context.Context, workspaceID, name string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byName[m.key(workspaceID, name)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

// setChannel patches the stored channel reference for seeded tickets.
func (m *memTickets) setChannel(workspaceID, name, channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.byName[m.key(workspaceID, name)]; ok {
		t.ChannelID = channelID
	}
}

func (m *memTickets) AssignSupport(_ context.Context, workspaceID, name, supportID, supportTag string) error {
	if m.assignErr != nil {
		return m.assignErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byName[m.key(workspaceID, name)]
	if !ok {
		return repository.ErrNotFound
	}
	t.ClaimerID = &supportID
	t.ClaimerTag = &supportTag
	t.Status = domain.TicketStatusClaimed
	return nil
}

func (m *memTickets) UpdateClosure(_ context.Context, workspaceID, name, supportID, supportTag string, closedAt time.Time, transcriptRef string) error {
	if m.closureErr != nil {
		return m.closureErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byName[m.key(workspaceID, name)]
	if !ok {
		return repository.ErrNotFound
	}
	if t.ClaimerID == nil {
		t.ClaimerID = &supportID
		t.ClaimerTag = &supportTag
	}
	t.Status = domain.TicketStatusClosed
	t.ClosedAt = &closedAt
	t.TranscriptRef = &transcriptRef
	return nil
}

func (m *memTickets) SaveStatusMessage(_ context.Context, workspaceID, name, logChannelID, logMessageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.byName[m.key(workspaceID, name)]; ok {
		t.LogChannelID = &logChannelID
		t.LogMessageID = &logMessageID
	}
	return nil
}

func (m *memTickets) GetOpenByOwner(_ context.Context, workspaceID, ownerID string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.byName {
		if t.WorkspaceID == workspaceID && t.OwnerID == ownerID && !t.IsClosed() {
			copied := *t
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memTickets) ListOpen(_ context.Context, workspaceID string) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Ticket
	for _, t := range m.byName {
		if t.WorkspaceID == workspaceID && !t.IsClosed() {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memTickets) ListUnclaimed(_ context.Context, workspaceID string) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Ticket
	for _, t := range m.byName {
		if t.WorkspaceID == workspaceID && !t.IsClosed() && !t.IsClaimed() {
			out = append(out, *t)
		}
	}
	return out, nil
}

type staticConfig struct {
	cfg *domain.WorkspaceConfig
	err error
}

func (s staticConfig) Get(context.Context, string) (*domain.WorkspaceConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.cfg == nil {
		return nil, repository.ErrNotFound
	}
	return s.cfg, nil
}

type fakeTranscripts struct {
	mu          sync.Mutex
	captures    int
	saves       int
	deliveries  int
	captureErr  error
	saveErr     error
	deliverErr  error
	deliverTier int
}

func (f *fakeTranscripts) Capture(context.Context, string) ([]gateway.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	f.captures++
	return []gateway.Message{{ID: "1", Content: "hello"}}, nil
}

func (f *fakeTranscripts) Save(channelName, _, _ string, _ []gateway.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.saves++
	return "/tmp/" + channelName + ".html", nil
}

func (f *fakeTranscripts) Deliver(context.Context, *domain.WorkspaceConfig, string, string, string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deliverErr != nil {
		return f.deliverTier, f.deliverErr
	}
	f.deliveries++
	return f.deliverTier, nil
}

type recordingTimers struct {
	mu      sync.Mutex
	resets  []string
	cancels []string
}

func (r *recordingTimers) ResetTimers(_ context.Context, _, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets = append(r.resets, channelID)
}

func (r *recordingTimers) CancelTimers(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels = append(r.cancels, channelID)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingDispatcher) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (r *recordingDispatcher) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	svc         *LifecycleService
	tickets     *memTickets
	gw          *gateway.Fake
	transcripts *fakeTranscripts
	timers      *recordingTimers
	dispatcher  *recordingDispatcher
	metrics     *observability.Metrics
}

func defaultConfig() *domain.WorkspaceConfig {
	return &domain.WorkspaceConfig{
		WorkspaceID:       testWorkspace,
		SupportRoleID:     supportRole,
		TicketCategoryID:  "cat-1",
		LogChannelID:      "chan-log",
		FallbackChannelID: "chan-fallback",
	}
}

func newFixture(t *testing.T, cfg *domain.WorkspaceConfig) *fixture {
	t.Helper()
	f := &fixture{
		tickets:     newMemTickets(),
		gw:          gateway.NewFake(),
		transcripts: &fakeTranscripts{deliverTier: 1},
		timers:      &recordingTimers{},
		dispatcher:  &recordingDispatcher{},
		metrics:     observability.NewMetrics(),
	}
	f.svc = NewLifecycleService(LifecycleDependencies{
		Tickets:     f.tickets,
		Configs:     staticConfig{cfg: cfg},
		Gateway:     f.gw,
		Transcripts: f.transcripts,
		Timers:      f.timers,
		Sessions:    NewForwardSessions(time.Minute),
		Dispatcher:  f.dispatcher,
		Metrics:     f.metrics,
		Logger:      zap.NewNop(),
	}, 10*time.Millisecond)
	t.Cleanup(f.svc.Shutdown)
	return f
}

// seedTicket stores an open ticket and its channel, returning the channel ID.
func (f *fixture) seedTicket(t *testing.T, ownerID, claimerID string) (string, string) {
	t.Helper()
	ticket := &domain.Ticket{WorkspaceID: testWorkspace, Type: "support", OwnerID: ownerID, OwnerTag: ownerID + "#1"}
	if err := f.tickets.Insert(context.Background(), ticket); err != nil {
		t.Fatalf("seed insert: %v", err)
	}
	channelID := "chan-" + ticket.Name
	f.gw.AddChannel(channelID, testWorkspace, ticket.Name, domain.EncodeTopic(ownerID, claimerID))
	f.tickets.setChannel(testWorkspace, ticket.Name, channelID)
	if claimerID != "" {
		if err := f.tickets.AssignSupport(context.Background(), testWorkspace, ticket.Name, claimerID, claimerID+"#1"); err != nil {
			t.Fatalf("seed claim: %v", err)
		}
	}
	return channelID, ticket.Name
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates channel and arms timers", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		f.gw.AddMember("owner", "owner#1")

		ticket, err := f.svc.Open(context.Background(), testWorkspace, Actor{ID: "owner", Tag: "owner#1"}, "support")
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if ticket.Name != "ticket-1" {
			t.Fatalf("ticket name = %q, want ticket-1", ticket.Name)
		}
		ch, err := f.gw.GetChannel(context.Background(), ticket.ChannelID)
		if err != nil {
			t.Fatalf("channel not created: %v", err)
		}
		if ch.Name != ticket.Name {
			t.Fatalf("channel name = %q, want renamed to %q", ch.Name, ticket.Name)
		}
		if owner, claimer := domain.ParseTopic(ch.Topic); owner != "owner" || claimer != "" {
			t.Fatalf("topic = %q, want owner metadata without claimer", ch.Topic)
		}
		if len(f.timers.resets) != 1 || f.timers.resets[0] != ticket.ChannelID {
			t.Fatalf("timer resets = %v, want one for %s", f.timers.resets, ticket.ChannelID)
		}
		if got := f.dispatcher.ofType(events.EventTicketOpened); len(got) != 1 {
			t.Fatalf("opened events = %d, want 1", len(got))
		}
	})

	t.Run("second open for same owner is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		if _, err := f.svc.Open(context.Background(), testWorkspace, Actor{ID: "owner"}, "support"); err != nil {
			t.Fatalf("first Open: %v", err)
		}
		_, err := f.svc.Open(context.Background(), testWorkspace, Actor{ID: "owner"}, "billing")
		if !apperrors.HasCode(err, "TICKET_ALREADY_OPEN") {
			t.Fatalf("err = %v, want TICKET_ALREADY_OPEN", err)
		}
	})

	t.Run("unconfigured workspace is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, &domain.WorkspaceConfig{WorkspaceID: testWorkspace})
		_, err := f.svc.Open(context.Background(), testWorkspace, Actor{ID: "owner"}, "support")
		if !apperrors.HasCode(err, "NOT_CONFIGURED") {
			t.Fatalf("err = %v, want NOT_CONFIGURED", err)
		}
	})

	t.Run("channel creation failure persists nothing and stays retryable", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		f.gw.CreateChannelErr = context.DeadlineExceeded

		if _, err := f.svc.Open(context.Background(), testWorkspace, Actor{ID: "owner"}, "support"); err == nil {
			t.Fatal("Open succeeded despite channel creation failure")
		}
		if _, err := f.tickets.GetOpenByOwner(context.Background(), testWorkspace, "owner"); err == nil {
			t.Fatal("ticket row persisted despite channel creation failure")
		}

		f.gw.CreateChannelErr = nil
		ticket, err := f.svc.Open(context.Background(), testWorkspace, Actor{ID: "owner"}, "support")
		if err != nil {
			t.Fatalf("retry after gateway recovery: %v", err)
		}
		if ticket.ChannelID == "" {
			t.Fatalf("retried ticket has no channel: %+v", ticket)
		}
	})

	t.Run("insert failure removes the provisional channel", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		f.tickets.insertErr = context.DeadlineExceeded

		_, err := f.svc.Open(context.Background(), testWorkspace, Actor{ID: "owner"}, "support")
		if !apperrors.HasCode(err, "PERSISTENCE_ERROR") {
			t.Fatalf("err = %v, want PERSISTENCE_ERROR", err)
		}
		if len(f.gw.DeletedChannels) != 1 {
			t.Fatalf("provisional channel not removed: deleted=%v", f.gw.DeletedChannels)
		}

		f.tickets.insertErr = nil
		if _, err := f.svc.Open(context.Background(), testWorkspace, Actor{ID: "owner"}, "support"); err != nil {
			t.Fatalf("retry after store recovery: %v", err)
		}
	})

	t.Run("rename failure voids the ticket and stays retryable", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		f.gw.RenameChannelErr = context.DeadlineExceeded

		if _, err := f.svc.Open(context.Background(), testWorkspace, Actor{ID: "owner"}, "support"); err == nil {
			t.Fatal("Open succeeded despite rename failure")
		}
		if _, err := f.tickets.GetOpenByOwner(context.Background(), testWorkspace, "owner"); err == nil {
			t.Fatal("owner still holds an open ticket after failed setup")
		}

		f.gw.RenameChannelErr = nil
		if _, err := f.svc.Open(context.Background(), testWorkspace, Actor{ID: "owner"}, "support"); err != nil {
			t.Fatalf("retry after rename recovery: %v", err)
		}
	})
}

func TestClaim(t *testing.T) {
	t.Parallel()

	t.Run("success persists before side effects", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		channelID, name := f.seedTicket(t, "owner", "")
		f.gw.AddMember("helper", "helper#1", supportRole)

		if err := f.svc.Claim(context.Background(), testWorkspace, channelID, Actor{ID: "helper", Tag: "helper#1"}); err != nil {
			t.Fatalf("Claim: %v", err)
		}

		ticket, err := f.tickets.GetByName(context.Background(), testWorkspace, name)
		if err != nil {
			t.Fatalf("GetByName: %v", err)
		}
		if !ticket.IsClaimed() || *ticket.ClaimerID != "helper" {
			t.Fatalf("ticket not claimed by helper: %+v", ticket)
		}
		ch, _ := f.gw.GetChannel(context.Background(), channelID)
		if _, claimer := domain.ParseTopic(ch.Topic); claimer != "helper" {
			t.Fatalf("topic claimer = %q, want helper", claimer)
		}
		if msgs := f.gw.SentMessages(channelID); len(msgs) != 1 || !strings.Contains(msgs[0], "<@helper>") {
			t.Fatalf("notice messages = %v", msgs)
		}
		if got := f.dispatcher.ofType(events.EventTicketClaimed); len(got) != 1 {
			t.Fatalf("claimed events = %d, want 1", len(got))
		}
		// claiming must not reset or cancel inactivity timers
		if len(f.timers.resets) != 0 || len(f.timers.cancels) != 0 {
			t.Fatalf("timers touched on claim: resets=%v cancels=%v", f.timers.resets, f.timers.cancels)
		}
	})

	t.Run("owner cannot claim own ticket", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		channelID, _ := f.seedTicket(t, "owner", "")
		// even when the owner holds the support role
		f.gw.AddMember("owner", "owner#1", supportRole)

		err := f.svc.Claim(context.Background(), testWorkspace, channelID, Actor{ID: "owner"})
		if !apperrors.HasCode(err, "SELF_CLAIM_FORBIDDEN") {
			t.Fatalf("err = %v, want SELF_CLAIM_FORBIDDEN", err)
		}
	})

	t.Run("non-support member is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		channelID, _ := f.seedTicket(t, "owner", "")
		f.gw.AddMember("bystander", "bystander#1")

		err := f.svc.Claim(context.Background(), testWorkspace, channelID, Actor{ID: "bystander"})
		if !apperrors.HasCode(err, "UNAUTHORIZED") {
			t.Fatalf("err = %v, want UNAUTHORIZED", err)
		}
	})

	t.Run("already claimed ticket is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		channelID, _ := f.seedTicket(t, "owner", "first")
		f.gw.AddMember("second", "second#1", supportRole)

		err := f.svc.Claim(context.Background(), testWorkspace, channelID, Actor{ID: "second"})
		if !apperrors.HasCode(err, "ALREADY_CLAIMED") {
			t.Fatalf("err = %v, want ALREADY_CLAIMED", err)
		}
	})

	t.Run("non-ticket channel is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		f.gw.AddChannel("chan-general", testWorkspace, "general", "")
		f.gw.AddMember("helper", "helper#1", supportRole)

		err := f.svc.Claim(context.Background(), testWorkspace, "chan-general", Actor{ID: "helper"})
		if !apperrors.HasCode(err, "NOT_A_TICKET_CHANNEL") {
			t.Fatalf("err = %v, want NOT_A_TICKET_CHANNEL", err)
		}
	})

	t.Run("missing support role config is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, &domain.WorkspaceConfig{WorkspaceID: testWorkspace, TicketCategoryID: "cat-1"})
		channelID, _ := f.seedTicket(t, "owner", "")
		f.gw.AddMember("helper", "helper#1", supportRole)

		err := f.svc.Claim(context.Background(), testWorkspace, channelID, Actor{ID: "helper"})
		if !apperrors.HasCode(err, "NOT_CONFIGURED") {
			t.Fatalf("err = %v, want NOT_CONFIGURED", err)
		}
	})

	t.Run("persistence failure aborts before side effects", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		channelID, _ := f.seedTicket(t, "owner", "")
		f.gw.AddMember("helper", "helper#1", supportRole)
		f.tickets.assignErr = context.DeadlineExceeded

		err := f.svc.Claim(context.Background(), testWorkspace, channelID, Actor{ID: "helper"})
		if !apperrors.HasCode(err, "PERSISTENCE_ERROR") {
			t.Fatalf("err = %v, want PERSISTENCE_ERROR", err)
		}
		ch, _ := f.gw.GetChannel(context.Background(), channelID)
		if _, claimer := domain.ParseTopic(ch.Topic); claimer != "" {
			t.Fatalf("topic mutated despite persistence failure: %q", ch.Topic)
		}
		if msgs := f.gw.SentMessages(channelID); len(msgs) != 0 {
			t.Fatalf("notice sent despite persistence failure: %v", msgs)
		}
		if got := f.dispatcher.ofType(events.EventTicketClaimed); len(got) != 0 {
			t.Fatalf("event published despite persistence failure")
		}
	})
}

func TestForward(t *testing.T) {
	t.Parallel()

	t.Run("full flow reassigns the claimer", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		channelID, name := f.seedTicket(t, "owner", "alice")
		f.gw.AddMember("alice", "alice#1", supportRole)
		f.gw.AddMember("bob", "bob#1", supportRole)

		session, err := f.svc.BeginForward(context.Background(), testWorkspace, channelID, Actor{ID: "alice"})
		if err != nil {
			t.Fatalf("BeginForward: %v", err)
		}
		if len(session.Candidates) != 1 || session.Candidates[0].ID != "bob" {
			t.Fatalf("candidates = %+v, want only bob", session.Candidates)
		}

		if err := f.svc.CompleteForward(context.Background(), testWorkspace, channelID, Actor{ID: "alice"}, session.Token, "bob"); err != nil {
			t.Fatalf("CompleteForward: %v", err)
		}
		ticket, _ := f.tickets.GetByName(context.Background(), testWorkspace, name)
		if ticket.ClaimerID == nil || *ticket.ClaimerID != "bob" {
			t.Fatalf("claimer = %v, want bob", ticket.ClaimerID)
		}
		forwarded := f.dispatcher.ofType(events.EventTicketForwarded)
		if len(forwarded) != 1 {
			t.Fatalf("forwarded events = %d, want 1", len(forwarded))
		}
		payload := forwarded[0].Payload.(events.TicketClaimedPayload)
		if payload.PreviousClaimerID != "alice" || payload.ClaimerID != "bob" {
			t.Fatalf("payload = %+v", payload)
		}
	})

	t.Run("unclaimed ticket cannot be forwarded", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		channelID, _ := f.seedTicket(t, "owner", "")
		f.gw.AddMember("alice", "alice#1", supportRole)

		_, err := f.svc.BeginForward(context.Background(), testWorkspace, channelID, Actor{ID: "alice"})
		if !apperrors.HasCode(err, "MUST_BE_CLAIMED_FIRST") {
			t.Fatalf("err = %v, want MUST_BE_CLAIMED_FIRST", err)
		}
	})

	t.Run("only the claimer may forward", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		channelID, name := f.seedTicket(t, "owner", "alice")
		f.gw.AddMember("alice", "alice#1", supportRole)
		f.gw.AddMember("bob", "bob#1", supportRole)

		_, err := f.svc.BeginForward(context.Background(), testWorkspace, channelID, Actor{ID: "bob"})
		if !apperrors.HasCode(err, "UNAUTHORIZED") {
			t.Fatalf("err = %v, want UNAUTHORIZED", err)
		}
		ticket, _ := f.tickets.GetByName(context.Background(), testWorkspace, name)
		if ticket.ClaimerID == nil || *ticket.ClaimerID != "alice" {
			t.Fatalf("claimer changed: %v", ticket.ClaimerID)
		}
	})

	t.Run("no other support members", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		channelID, _ := f.seedTicket(t, "owner", "alice")
		f.gw.AddMember("alice", "alice#1", supportRole)

		_, err := f.svc.BeginForward(context.Background(), testWorkspace, channelID, Actor{ID: "alice"})
		if !apperrors.HasCode(err, "NO_OTHER_SUPPORT_MEMBERS") {
			t.Fatalf("err = %v, want NO_OTHER_SUPPORT_MEMBERS", err)
		}
	})

	t.Run("session token is single use", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		channelID, _ := f.seedTicket(t, "owner", "alice")
		f.gw.AddMember("alice", "alice#1", supportRole)
		f.gw.AddMember("bob", "bob#1", supportRole)

		session, err := f.svc.BeginForward(context.Background(), testWorkspace, channelID, Actor{ID: "alice"})
		if err != nil {
			t.Fatalf("BeginForward: %v", err)
		}
		if err := f.svc.CompleteForward(context.Background(), testWorkspace, channelID, Actor{ID: "alice"}, session.Token, "bob"); err != nil {
			t.Fatalf("first CompleteForward: %v", err)
		}
		err = f.svc.CompleteForward(context.Background(), testWorkspace, channelID, Actor{ID: "alice"}, session.Token, "bob")
		if !apperrors.HasCode(err, "UNAUTHORIZED") {
			t.Fatalf("replayed token err = %v, want UNAUTHORIZED", err)
		}
	})

	t.Run("owner is never an eligible target", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		channelID, _ := f.seedTicket(t, "owner", "alice")
		f.gw.AddMember("alice", "alice#1", supportRole)
		// owner somehow holds the support role
		f.gw.AddMember("owner", "owner#1", supportRole)
		f.gw.AddMember("bob", "bob#1", supportRole)

		session, err := f.svc.BeginForward(context.Background(), testWorkspace, channelID, Actor{ID: "alice"})
		if err != nil {
			t.Fatalf("BeginForward: %v", err)
		}
		err = f.svc.CompleteForward(context.Background(), testWorkspace, channelID, Actor{ID: "alice"}, session.Token, "owner")
		if !apperrors.HasCode(err, "SELF_CLAIM_FORBIDDEN") {
			t.Fatalf("err = %v, want SELF_CLAIM_FORBIDDEN", err)
		}
	})
}

func TestClose(t *testing.T) {
	t.Parallel()

	t.Run("happy path cancels timers and persists closure", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		channelID, name := f.seedTicket(t, "owner", "alice")
		f.gw.AddMember("alice", "alice#1", supportRole)

		if err := f.svc.Close(context.Background(), testWorkspace, channelID, Actor{ID: "alice", Tag: "alice#1"}, domain.CloseReasonManual); err != nil {
			t.Fatalf("Close: %v", err)
		}

		ticket, _ := f.tickets.GetByName(context.Background(), testWorkspace, name)
		if !ticket.IsClosed() {
			t.Fatalf("ticket not closed: %+v", ticket)
		}
		if ticket.TranscriptRef == nil || *ticket.TranscriptRef == "" {
			t.Fatalf("transcript ref not recorded")
		}
		if len(f.timers.cancels) != 1 || f.timers.cancels[0] != channelID {
			t.Fatalf("timer cancels = %v", f.timers.cancels)
		}
		if f.transcripts.captures != 1 || f.transcripts.saves != 1 || f.transcripts.deliveries != 1 {
			t.Fatalf("pipeline calls: captures=%d saves=%d deliveries=%d",
				f.transcripts.captures, f.transcripts.saves, f.transcripts.deliveries)
		}
		if got := f.dispatcher.ofType(events.EventTicketClosed); len(got) != 1 {
			t.Fatalf("closed events = %d, want 1", len(got))
		}
		if got := f.dispatcher.ofType(events.EventTranscriptDelivered); len(got) != 1 {
			t.Fatalf("delivered events = %d, want 1", len(got))
		}

		// channel deletion runs after the grace delay
		deadline := time.Now().Add(time.Second)
		for {
			if _, err := f.gw.GetChannel(context.Background(), channelID); err != nil {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("channel not deleted after grace delay")
			}
			time.Sleep(5 * time.Millisecond)
		}
	})

	t.Run("closing a closed ticket is a no-op", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		channelID, _ := f.seedTicket(t, "owner", "alice")
		f.gw.AddMember("alice", "alice#1", supportRole)

		if err := f.svc.Close(context.Background(), testWorkspace, channelID, Actor{ID: "alice"}, domain.CloseReasonManual); err != nil {
			t.Fatalf("first Close: %v", err)
		}
		// re-register the channel: deletion may already have fired
		f.gw.AddChannel(channelID, testWorkspace, "ticket-1", "")
		if err := f.svc.Close(context.Background(), testWorkspace, channelID, Actor{ID: "alice"}, domain.CloseReasonManual); err != nil {
			t.Fatalf("second Close: %v", err)
		}
		if f.transcripts.captures != 1 || f.transcripts.saves != 1 {
			t.Fatalf("pipeline reran on idempotent close: captures=%d saves=%d",
				f.transcripts.captures, f.transcripts.saves)
		}
		if got := f.dispatcher.ofType(events.EventTicketClosed); len(got) != 1 {
			t.Fatalf("closed events = %d, want exactly 1", len(got))
		}
	})

	t.Run("capture failure leaves the ticket open", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		channelID, name := f.seedTicket(t, "owner", "alice")
		f.gw.AddMember("alice", "alice#1", supportRole)
		f.transcripts.captureErr = apperrors.NewCaptureFailed(context.DeadlineExceeded)

		err := f.svc.Close(context.Background(), testWorkspace, channelID, Actor{ID: "alice"}, domain.CloseReasonManual)
		if !apperrors.HasCode(err, "CAPTURE_FAILED") {
			t.Fatalf("err = %v, want CAPTURE_FAILED", err)
		}
		ticket, _ := f.tickets.GetByName(context.Background(), testWorkspace, name)
		if ticket.IsClosed() {
			t.Fatalf("ticket closed despite capture failure")
		}
		if got := f.dispatcher.ofType(events.EventTicketClosed); len(got) != 0 {
			t.Fatalf("closed event published despite capture failure")
		}
		// the still-open ticket must stay under inactivity watch
		if len(f.timers.cancels) != 0 {
			t.Fatalf("timers cancelled despite aborted close: %v", f.timers.cancels)
		}
	})

	t.Run("persistence failure dispatches no side effects", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		channelID, _ := f.seedTicket(t, "owner", "alice")
		f.gw.AddMember("alice", "alice#1", supportRole)
		f.tickets.closureErr = context.DeadlineExceeded

		err := f.svc.Close(context.Background(), testWorkspace, channelID, Actor{ID: "alice"}, domain.CloseReasonManual)
		if !apperrors.HasCode(err, "PERSISTENCE_ERROR") {
			t.Fatalf("err = %v, want PERSISTENCE_ERROR", err)
		}
		if msgs := f.gw.SentMessages(channelID); len(msgs) != 0 {
			t.Fatalf("close notice sent despite persistence failure: %v", msgs)
		}
		if f.transcripts.deliveries != 0 {
			t.Fatalf("transcript delivered despite persistence failure")
		}
	})

	t.Run("manual close requires the support role", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		channelID, _ := f.seedTicket(t, "owner", "alice")
		f.gw.AddMember("bystander", "bystander#1")

		err := f.svc.Close(context.Background(), testWorkspace, channelID, Actor{ID: "bystander"}, domain.CloseReasonManual)
		if !apperrors.HasCode(err, "UNAUTHORIZED") {
			t.Fatalf("err = %v, want UNAUTHORIZED", err)
		}
	})

	t.Run("automated close bypasses authorization", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		channelID, name := f.seedTicket(t, "owner", "")

		if err := f.svc.CloseAutomated(context.Background(), testWorkspace, channelID); err != nil {
			t.Fatalf("CloseAutomated: %v", err)
		}
		ticket, _ := f.tickets.GetByName(context.Background(), testWorkspace, name)
		if !ticket.IsClosed() {
			t.Fatalf("ticket not closed")
		}
		closed := f.dispatcher.ofType(events.EventTicketClosed)
		if len(closed) != 1 {
			t.Fatalf("closed events = %d, want 1", len(closed))
		}
		payload := closed[0].Payload.(events.TicketClosedPayload)
		if payload.Reason != domain.CloseReasonAutomated || payload.SupportID != domain.SystemActorID {
			t.Fatalf("payload = %+v", payload)
		}
	})

	t.Run("delivery failure does not undo closure", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, defaultConfig())
		channelID, name := f.seedTicket(t, "owner", "alice")
		f.gw.AddMember("alice", "alice#1", supportRole)
		f.transcripts.deliverErr = context.DeadlineExceeded
		f.transcripts.deliverTier = 3

		if err := f.svc.Close(context.Background(), testWorkspace, channelID, Actor{ID: "alice"}, domain.CloseReasonManual); err != nil {
			t.Fatalf("Close: %v", err)
		}
		ticket, _ := f.tickets.GetByName(context.Background(), testWorkspace, name)
		if !ticket.IsClosed() {
			t.Fatalf("closure rolled back on delivery failure")
		}
		delivered := f.dispatcher.ofType(events.EventTranscriptDelivered)
		if len(delivered) != 1 {
			t.Fatalf("delivered events = %d, want 1", len(delivered))
		}
		if payload := delivered[0].Payload.(events.TranscriptDeliveredPayload); payload.Tier != 3 {
			t.Fatalf("tier = %d, want 3 (storage only)", payload.Tier)
		}
	})
}
