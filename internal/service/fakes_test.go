package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/config"
	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/events"
	"github.com/spec-kit/case-service/internal/lock"
	"github.com/spec-kit/case-service/internal/outbox"
	"github.com/spec-kit/case-service/internal/repository"
	"github.com/spec-kit/case-service/internal/sla"
)

type fakeTx struct {
	calls int
}

func (f *fakeTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type fakeCaseRepo struct {
	mu          sync.Mutex
	seq         int
	cases       map[string]*domain.Case
	updates     int
	lastFilter  repository.CaseFilter
	listResult  []domain.Case
	listTotal   int
	beforeWrite func(id string)
}

func newFakeCaseRepo() *fakeCaseRepo {
	return &fakeCaseRepo{cases: map[string]*domain.Case{}}
}

func (r *fakeCaseRepo) Create(_ context.Context, c *domain.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	c.ID = fmt.Sprintf("case-%d", r.seq)
	c.Version = 1
	cp := *c
	r.cases[c.ID] = &cp
	return nil
}

func (r *fakeCaseRepo) Update(_ context.Context, c *domain.Case) error {
	if r.beforeWrite != nil {
		r.beforeWrite(c.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.cases[c.ID]
	if !ok || stored.Version != c.Version {
		return repository.ErrStaleCase
	}
	r.updates++
	c.Version++
	cp := *c
	r.cases[c.ID] = &cp
	return nil
}

func (r *fakeCaseRepo) GetByID(_ context.Context, id string) (*domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCaseRepo) List(_ context.Context, filter repository.CaseFilter) ([]domain.Case, int, error) {
	r.lastFilter = filter
	return r.listResult, r.listTotal, nil
}

func (r *fakeCaseRepo) ListSLACandidates(_ context.Context, horizon time.Time) ([]domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Case
	for _, c := range r.cases {
		if c.Status.IsOpen() && c.SLADeadline != nil && !c.SLADeadline.After(horizon) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SLADeadline.Before(*out[j].SLADeadline) })
	return out, nil
}

func (r *fakeCaseRepo) MarkSLAMissed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.cases[id]; ok && !c.SLAMissed {
		c.SLAMissed = true
		c.Version++
	}
	return nil
}

func (r *fakeCaseRepo) put(c domain.Case) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Version == 0 {
		c.Version = 1
	}
	r.cases[c.ID] = &c
}

type fakeActivityRepo struct {
	mu        sync.Mutex
	seq       int
	items     []domain.CaseActivity
	failCases map[string]error
}

func (r *fakeActivityRepo) Create(_ context.Context, a *domain.CaseActivity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failCases[a.CaseID]; err != nil {
		return err
	}
	r.seq++
	a.ID = fmt.Sprintf("act-%d", r.seq)
	r.items = append(r.items, *a)
	return nil
}

func (r *fakeActivityRepo) ListByCase(_ context.Context, caseID string, limit, offset int) ([]domain.CaseActivity, error) {
	out := r.forCase(caseID)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeActivityRepo) LatestByTag(_ context.Context, caseID, tag string) (*domain.CaseActivity, error) {
	var latest *domain.CaseActivity
	for _, a := range r.forCase(caseID) {
		if a.Tag != nil && *a.Tag == tag {
			a := a
			latest = &a
		}
	}
	return latest, nil
}

func (r *fakeActivityRepo) forCase(caseID string) []domain.CaseActivity {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.CaseActivity
	for _, a := range r.items {
		if a.CaseID == caseID {
			out = append(out, a)
		}
	}
	return out
}

func (r *fakeActivityRepo) ofType(caseID string, t domain.ActivityType) []domain.CaseActivity {
	var out []domain.CaseActivity
	for _, a := range r.forCase(caseID) {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

type fakeCaseTypeRepo map[string]*domain.CaseTypePolicy

func (r fakeCaseTypeRepo) GetByID(_ context.Context, id string) (*domain.CaseTypePolicy, error) {
	p, ok := r[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return p, nil
}

type fakeSequenceRepo struct {
	counters map[int]int
}

func (r *fakeSequenceRepo) Next(_ context.Context, year int) (int, error) {
	if r.counters == nil {
		r.counters = map[int]int{}
	}
	r.counters[year]++
	return r.counters[year], nil
}

type fakeOrderRepo struct {
	orders map[string]*domain.Order
}

func (r *fakeOrderRepo) LinkToCase(_ context.Context, caseID string, orderIDs []string) error {
	for _, id := range orderIDs {
		if _, ok := r.orders[id]; !ok {
			return pgx.ErrNoRows
		}
	}
	for _, id := range orderIDs {
		cid := caseID
		r.orders[id].CaseID = &cid
	}
	return nil
}

func (r *fakeOrderRepo) ListByCase(_ context.Context, caseID string) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range r.orders {
		if o.CaseID != nil && *o.CaseID == caseID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) SettlePending(_ context.Context, caseID string, status domain.OrderStatus) (int64, error) {
	var n int64
	for _, o := range r.orders {
		if o.CaseID != nil && *o.CaseID == caseID && o.Status == domain.OrderStatusPending {
			o.Status = status
			n++
		}
	}
	return n, nil
}

type fakeUserRepo struct {
	users []domain.SupportUser
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.SupportUser, error) {
	for _, u := range r.users {
		if u.ID == id {
			u := u
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) ListActiveWithLoad(_ context.Context) ([]domain.SupportUser, error) {
	var out []domain.SupportUser
	for _, u := range r.users {
		if u.Active {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeTemplateRepo map[domain.NotificationEvent]string

func (r fakeTemplateRepo) GetActiveByEvent(_ context.Context, event domain.NotificationEvent) (*domain.NotificationTemplate, error) {
	body, ok := r[event]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &domain.NotificationTemplate{Event: event, Body: body, IsActive: true}, nil
}

type fakeWebhookRepo struct {
	subs []domain.WebhookSubscription
}

func (r *fakeWebhookRepo) GetByID(_ context.Context, id string) (*domain.WebhookSubscription, error) {
	for _, s := range r.subs {
		if s.ID == id {
			s := s
			return &s, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeWebhookRepo) ListActiveByEvent(_ context.Context, event string) ([]domain.WebhookSubscription, error) {
	var out []domain.WebhookSubscription
	for _, s := range r.subs {
		if s.Wants(event) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeEnqueuer struct {
	entries []domain.OutboxEntry
	err     error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, eventType string, payload outbox.Payload) (*domain.OutboxEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	entry := domain.OutboxEntry{
		ID:        fmt.Sprintf("outbox-%d", len(f.entries)+1),
		EventType: eventType,
		Channel:   payload.Channel(),
		Status:    domain.OutboxStatusPending,
	}
	entry.Payload, _ = json.Marshal(payload)
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *fakeEnqueuer) byChannel(ch domain.OutboxChannel) []domain.OutboxEntry {
	var out []domain.OutboxEntry
	for _, e := range f.entries {
		if e.Channel == ch {
			out = append(out, e)
		}
	}
	return out
}

type fakeLocker struct {
	held map[string]bool
	err  error
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (lock.ReleaseFunc, error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.held[key] {
		return nil, lock.ErrLocked
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	l.held[key] = true
	return func(context.Context) error {
		delete(l.held, key)
		return nil
	}, nil
}

var errBoom = errors.New("boom")

// fixture wires every service over the fakes.
type fixture struct {
	now        time.Time
	tx         *fakeTx
	cases      *fakeCaseRepo
	activities *fakeActivityRepo
	caseTypes  fakeCaseTypeRepo
	sequences  *fakeSequenceRepo
	orders     *fakeOrderRepo
	users      *fakeUserRepo
	templates  fakeTemplateRepo
	webhooks   *fakeWebhookRepo
	outbox     *fakeEnqueuer
	locker     *fakeLocker
	dispatcher events.Dispatcher

	notifications *NotificationService
	caseService   *CaseService
	slaService    *SLAService
}

type fixtureOptions struct {
	autoAssign  bool
	noMessaging bool
	webhooks    bool
	stream      bool
	logger      *zap.Logger
}

func newFixture(opts fixtureOptions) *fixture {
	f := &fixture{
		now:        time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		tx:         &fakeTx{},
		cases:      newFakeCaseRepo(),
		activities: &fakeActivityRepo{},
		caseTypes: fakeCaseTypeRepo{
			"ct-billing": {
				ID: "ct-billing", Name: "Billing dispute", Category: "billing",
				DefaultSeverity: domain.SeverityNormal, DefaultSLAMinutes: 15, IsActive: true,
			},
		},
		sequences:  &fakeSequenceRepo{},
		orders:     &fakeOrderRepo{orders: map[string]*domain.Order{}},
		users:      &fakeUserRepo{},
		templates:  fakeTemplateRepo{},
		webhooks:   &fakeWebhookRepo{},
		outbox:     &fakeEnqueuer{},
		locker:     &fakeLocker{},
		dispatcher: events.NewInMemoryDispatcher(),
	}
	messaging := config.MessagingConfig{Endpoint: "https://chat.example/push", AccessToken: "t", Target: "ops"}
	if opts.noMessaging {
		messaging = config.MessagingConfig{}
	}
	clock := func() time.Time { return f.now }

	f.notifications = NewNotificationService(NotificationDependencies{
		Outbox:         f.outbox,
		Templates:      f.templates,
		Webhooks:       f.webhooks,
		Users:          f.users,
		CaseTypes:      f.caseTypes,
		Dispatcher:     f.dispatcher,
		Messaging:      messaging,
		WebhookEnabled: opts.webhooks,
		StreamEnabled:  opts.stream,
		Logger:         opts.logger,
	})
	f.notifications.RegisterHandlers()

	f.caseService = NewCaseService(CaseDependencies{
		Tx:            f.tx,
		CaseRepo:      f.cases,
		ActivityRepo:  f.activities,
		CaseTypeRepo:  f.caseTypes,
		SequenceRepo:  f.sequences,
		OrderRepo:     f.orders,
		Assignment:    NewAssignmentService(f.users),
		Notifications: f.notifications,
		Dispatcher:    f.dispatcher,
		Locker:        f.locker,
		AutoAssign:    opts.autoAssign,
		Clock:         clock,
	})
	f.slaService = NewSLAService(SLADependencies{
		Tx:            f.tx,
		CaseRepo:      f.cases,
		ActivityRepo:  f.activities,
		Notifications: f.notifications,
		Dispatcher:    f.dispatcher,
		Policy:        sla.DefaultPolicy(),
	})
	return f
}

func strPtr(s string) *string { return &s }
