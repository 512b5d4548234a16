package submission

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"engagepulse/internal/registry"
	"engagepulse/internal/tierconfig"
)

type fakeRegistry struct {
	conns map[string]*registry.Connection
}

func (f *fakeRegistry) Get(ctx context.Context, chatID string) (*registry.Connection, error) {
	conn, ok := f.conns[chatID]
	if !ok {
		return nil, registry.ErrNotLinked
	}
	return conn, nil
}

type fakeConfigSource struct {
	configs map[string]tierconfig.TierConfig
}

func (f *fakeConfigSource) Get(ctx context.Context, tier string) (tierconfig.TierConfig, error) {
	cfg, ok := f.configs[tier]
	if !ok {
		return tierconfig.Fallback(), nil
	}
	return cfg, nil
}

type fakeBalances struct {
	balances map[string]int64
}

func (f *fakeBalances) Balance(ctx context.Context, memberID string) (int64, error) {
	return f.balances[memberID], nil
}

type fakeStore struct {
	counts    map[string]int // memberID|day
	created   []*Submission
	createErr error
	lastCost  int64
	lastDay   string
}

func (f *fakeStore) DailyCount(ctx context.Context, memberID, day string) (int, error) {
	return f.counts[memberID+"|"+day], nil
}

func (f *fakeStore) Create(ctx context.Context, sub *Submission, cost int64, limit int, day string) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.counts[sub.MemberID+"|"+day]+1 > limit {
		return &DailyLimitExceededError{Limit: limit, Used: f.counts[sub.MemberID+"|"+day]}
	}
	f.created = append(f.created, sub)
	f.counts[sub.MemberID+"|"+day]++
	f.lastCost = cost
	f.lastDay = day
	return nil
}

func (f *fakeStore) ListByMember(ctx context.Context, memberID string, limit int) ([]*Submission, error) {
	return f.created, nil
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fixture struct {
	service  Service
	store    *fakeStore
	registry *fakeRegistry
	configs  *fakeConfigSource
	balances *fakeBalances
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    &fakeStore{counts: map[string]int{}},
		registry: &fakeRegistry{conns: map[string]*registry.Connection{}},
		configs:  &fakeConfigSource{configs: map[string]tierconfig.TierConfig{}},
		balances: &fakeBalances{balances: map[string]int64{}},
		now:      time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	svc := NewService(f.store, f.registry, f.configs, f.balances, 48*time.Hour, time.UTC, testLogger())
	svc.(*service).now = func() time.Time { return f.now }
	f.service = svc
	return f
}

func (f *fixture) link(chatID, handle, tier string) {
	f.registry.conns[chatID] = &registry.Connection{ChatID: chatID, Handle: handle, Tier: tier}
}

func TestSubmitRejectsUnlinkedMember(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Submit(context.Background(), "stranger", "post-1")
	if !errors.Is(err, registry.ErrNotLinked) {
		t.Fatalf("expected ErrNotLinked, got %v", err)
	}
	if len(f.store.created) != 0 {
		t.Error("no submission should be created")
	}
}

func TestSubmitDebitsCostAndSetsExpiry(t *testing.T) {
	f := newFixture(t)
	f.link("chat-1", "alice", "star")
	f.configs.configs["star"] = tierconfig.TierConfig{
		Tier: "star", SubmissionCost: 40, DailyLimit: 20, Multiplier: 1.5,
	}
	f.balances.balances["chat-1"] = 100

	sub, err := f.service.Submit(context.Background(), "chat-1", "post-1")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if f.store.lastCost != 40 {
		t.Errorf("debited cost = %d, want 40", f.store.lastCost)
	}
	if f.store.lastDay != "2026-03-14" {
		t.Errorf("counter day = %q, want 2026-03-14", f.store.lastDay)
	}
	wantExpiry := f.now.Add(48 * time.Hour)
	if !sub.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expiry = %v, want %v", sub.ExpiresAt, wantExpiry)
	}
}

func TestSubmitEnforcesDailyLimit(t *testing.T) {
	f := newFixture(t)
	f.link("chat-1", "alice", "micro")
	f.balances.balances["chat-1"] = 10_000

	ctx := context.Background()
	limit := tierconfig.Fallback().DailyLimit
	for i := 0; i < limit; i++ {
		if _, err := f.service.Submit(ctx, "chat-1", string(rune('a'+i))); err != nil {
			t.Fatalf("submission %d failed: %v", i, err)
		}
	}

	_, err := f.service.Submit(ctx, "chat-1", "one-too-many")
	var limitErr *DailyLimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected DailyLimitExceededError, got %v", err)
	}
	if limitErr.Limit != limit || limitErr.Used != limit {
		t.Errorf("limit error = %d/%d, want %d/%d", limitErr.Used, limitErr.Limit, limit, limit)
	}
}

func TestSubmitDailyLimitResetsNextDay(t *testing.T) {
	f := newFixture(t)
	f.link("chat-1", "alice", "micro")
	f.balances.balances["chat-1"] = 10_000
	ctx := context.Background()

	limit := tierconfig.Fallback().DailyLimit
	for i := 0; i < limit; i++ {
		if _, err := f.service.Submit(ctx, "chat-1", string(rune('a'+i))); err != nil {
			t.Fatalf("submission %d failed: %v", i, err)
		}
	}
	if _, err := f.service.Submit(ctx, "chat-1", "blocked"); err == nil {
		t.Fatal("expected limit rejection")
	}

	f.now = f.now.Add(24 * time.Hour)
	if _, err := f.service.Submit(ctx, "chat-1", "fresh-day"); err != nil {
		t.Errorf("next-day submission should pass: %v", err)
	}
}

func TestSubmitRejectsInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.link("chat-1", "alice", "micro")
	f.balances.balances["chat-1"] = 49 // fallback cost is 50

	_, err := f.service.Submit(context.Background(), "chat-1", "post-1")
	var balErr *InsufficientBalanceError
	if !errors.As(err, &balErr) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if balErr.Cost != 50 || balErr.Balance != 49 {
		t.Errorf("balance error = cost %d balance %d, want 50/49", balErr.Cost, balErr.Balance)
	}
	if len(f.store.created) != 0 {
		t.Error("no submission should be created")
	}
}

func TestSubmitReadsConfigFresh(t *testing.T) {
	f := newFixture(t)
	f.link("chat-1", "alice", "rising")
	f.configs.configs["rising"] = tierconfig.TierConfig{
		Tier: "rising", SubmissionCost: 50, DailyLimit: 10, Multiplier: 1.0,
	}
	f.balances.balances["chat-1"] = 60
	ctx := context.Background()

	if _, err := f.service.Submit(ctx, "chat-1", "post-1"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// An admin config change applies to the very next submission, no
	// restart, no cache.
	f.configs.configs["rising"] = tierconfig.TierConfig{
		Tier: "rising", SubmissionCost: 80, DailyLimit: 10, Multiplier: 1.0,
	}
	_, err := f.service.Submit(ctx, "chat-1", "post-2")
	var balErr *InsufficientBalanceError
	if !errors.As(err, &balErr) {
		t.Fatalf("expected InsufficientBalanceError against the new cost, got %v", err)
	}
	if balErr.Cost != 80 {
		t.Errorf("rejection used cost %d, want the updated 80", balErr.Cost)
	}
}

func TestSubmitUnknownTierFallsBack(t *testing.T) {
	f := newFixture(t)
	f.link("chat-1", "alice", "platinum") // tier nobody configured
	f.balances.balances["chat-1"] = 100

	sub, err := f.service.Submit(context.Background(), "chat-1", "post-1")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if sub == nil {
		t.Fatal("expected a submission")
	}
	if f.store.lastCost != tierconfig.Fallback().SubmissionCost {
		t.Errorf("cost = %d, want fallback %d", f.store.lastCost, tierconfig.Fallback().SubmissionCost)
	}
}

func TestSubmitPropagatesDuplicate(t *testing.T) {
	f := newFixture(t)
	f.link("chat-1", "alice", "micro")
	f.balances.balances["chat-1"] = 100
	f.store.createErr = ErrAlreadySubmitted

	_, err := f.service.Submit(context.Background(), "chat-1", "post-1")
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
}
