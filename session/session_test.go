package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/giantswarm/webkit/instrumentation"
	"github.com/giantswarm/webkit/internal/testutil"
	"github.com/giantswarm/webkit/security"
	"github.com/giantswarm/webkit/storage"
	"github.com/giantswarm/webkit/storage/mock"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// sequenceGenerator replays fixed values, then repeats the last one.
type sequenceGenerator struct {
	mu     sync.Mutex
	values []string
	calls  int
}

func (g *sequenceGenerator) Generate(int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.values[min(g.calls, len(g.values)-1)]
	g.calls++
	return v, nil
}

func newTestHandler(t *testing.T, store storage.Store, config Config) (*Handler, *testutil.MockTime) {
	t.Helper()
	clock := testutil.NewMockTime(epoch)
	if config.Now == nil {
		config.Now = clock.Now
	}
	if config.Logger == nil {
		config.Logger = testutil.DiscardLogger()
	}
	h, err := NewHandler(store, config)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	t.Cleanup(h.Stop)
	return h, clock
}

func TestNewHandler(t *testing.T) {
	store := testutil.NewStore(t)

	tests := []struct {
		name    string
		store   storage.Store
		config  Config
		wantErr bool
	}{
		{name: "defaults", store: store},
		{name: "local roles", store: store, config: Config{RolesMode: RolesLocal}},
		{name: "nil store", store: nil, wantErr: true},
		{name: "unknown roles mode", store: store, config: Config{RolesMode: "remote"}, wantErr: true},
		{name: "negative token length", store: store, config: Config{TokenLength: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHandler(tt.store, tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewHandler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("NewHandler() error = %v, want ErrInvalidConfig", err)
				}
				return
			}
			cfg := h.Config()
			if cfg.Timeout != DefaultTimeout || cfg.TokenLength != DefaultTokenLength || cfg.GarbageExtra != DefaultGarbageExtra {
				t.Errorf("Config() = %+v, want defaults", cfg)
			}
			if _, ok := cfg.Carrier.(CookieCarrier); !ok {
				t.Errorf("Config().Carrier = %T, want CookieCarrier", cfg.Carrier)
			}
		})
	}
}

func TestSession_Open(t *testing.T) {
	store := testutil.NewStore(t)
	h, _ := newTestHandler(t, store, Config{})
	ctx := context.Background()

	s, err := h.Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if len(s.Token()) != DefaultTokenLength {
		t.Errorf("Token() length = %d, want %d", len(s.Token()), DefaultTokenLength)
	}
	if !s.UpdateTime().Equal(epoch) {
		t.Errorf("UpdateTime() = %v, want %v", s.UpdateTime(), epoch)
	}

	stored, err := store.HRead(ctx, "session:value:"+s.Token(), "token")
	if err != nil || stored != s.Token() {
		t.Errorf("stored token = %q, %v; want %q", stored, err, s.Token())
	}
	updated, err := store.HRead(ctx, "session:value:"+s.Token(), "update_time")
	if err != nil || updated != "1767268800" {
		t.Errorf("stored update_time = %q, %v; want unix seconds", updated, err)
	}
}

func TestSession_OpenReopenClosesPrevious(t *testing.T) {
	store := testutil.NewStore(t)
	h, _ := newTestHandler(t, store, Config{})
	ctx := context.Background()

	s, err := h.Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	first := s.Token()
	if err := s.Open(ctx); err != nil {
		t.Fatalf("Open() second call error = %v", err)
	}
	if s.Token() == first {
		t.Fatal("Open() reused the previous token")
	}
	if ok, _ := h.SessionExists(ctx, first); ok {
		t.Error("previous session still stored after reopen")
	}
}

func TestSession_OpenRetriesOnCollision(t *testing.T) {
	store := testutil.NewStore(t)
	gen := &sequenceGenerator{values: []string{"AAAA", "AAAA", "AAAA", "BBBB"}}
	h, _ := newTestHandler(t, store, Config{Generator: gen, TokenLength: 4})
	ctx := context.Background()

	first, err := h.Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	second, err := h.Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if first.Token() != "AAAA" || second.Token() != "BBBB" {
		t.Errorf("tokens = %q, %q; want AAAA, BBBB", first.Token(), second.Token())
	}
	if gen.calls != 4 {
		t.Errorf("generator calls = %d, want 4", gen.calls)
	}
}

func TestSession_OpenExhausted(t *testing.T) {
	store := testutil.NewStore(t)
	gen := &sequenceGenerator{values: []string{"SAME"}}
	h, _ := newTestHandler(t, store, Config{Generator: gen, TokenLength: 4})
	ctx := context.Background()

	if _, err := h.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	s := h.New()
	err := s.Open(ctx)
	if !errors.Is(err, security.ErrNonceExhausted) {
		t.Fatalf("Open() error = %v, want ErrNonceExhausted", err)
	}
	if s.IsOpen() {
		t.Error("session bound after failed Open()")
	}
}

func TestSession_ConcurrentOpenUnique(t *testing.T) {
	store := testutil.NewStore(t)
	// A tiny alphabet space forces collisions between goroutines.
	h, _ := newTestHandler(t, store, Config{TokenLength: 2})
	ctx := context.Background()

	const n = 200
	tokens := make([]string, n)
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := h.Open(ctx)
			if err != nil {
				errs <- err
				return
			}
			tokens[i] = s.Token()
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Open() error = %v", err)
	}

	seen := make(map[string]bool, n)
	for _, token := range tokens {
		if seen[token] {
			t.Fatalf("token %q issued twice", token)
		}
		seen[token] = true
	}
}

func TestSession_Expiry(t *testing.T) {
	store := testutil.NewStore(t)
	h, clock := newTestHandler(t, store, Config{Timeout: 10 * time.Second, GarbageExtra: 5 * time.Second})
	ctx := context.Background()

	s, err := h.Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	steps := []struct {
		advance   time.Duration
		valid     bool
		garbage   bool
		remaining time.Duration
	}{
		{advance: 0, valid: true, remaining: 10 * time.Second},
		{advance: 10 * time.Second, valid: true, remaining: 0},
		{advance: time.Second, valid: false, remaining: 0},
		{advance: 4 * time.Second, valid: false, garbage: false},
		{advance: time.Second, valid: false, garbage: true},
		{advance: time.Hour, valid: false, garbage: true},
	}
	for i, step := range steps {
		clock.Advance(step.advance)
		if got := s.IsValid(); got != step.valid {
			t.Errorf("step %d: IsValid() = %v, want %v", i, got, step.valid)
		}
		if got := s.IsGarbage(); got != step.garbage {
			t.Errorf("step %d: IsGarbage() = %v, want %v", i, got, step.garbage)
		}
		if got := s.TimeRemaining(); got != step.remaining {
			t.Errorf("step %d: TimeRemaining() = %v, want %v", i, got, step.remaining)
		}
	}

	if err := s.Update(ctx); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !s.IsValid() {
		t.Error("IsValid() = false after Update()")
	}
}

func TestSession_NeverExpires(t *testing.T) {
	store := testutil.NewStore(t)
	h, clock := newTestHandler(t, store, Config{Timeout: security.NeverExpires})
	ctx := context.Background()

	s, err := h.Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	clock.Advance(100 * 365 * 24 * time.Hour)
	if !s.IsValid() || s.IsGarbage() {
		t.Error("session with negative timeout expired")
	}
	if s.TimeRemaining() != security.NeverExpires {
		t.Errorf("TimeRemaining() = %v, want NeverExpires", s.TimeRemaining())
	}
}

func TestSession_UpdateUnbound(t *testing.T) {
	h, _ := newTestHandler(t, testutil.NewStore(t), Config{})
	if err := h.New().Update(context.Background()); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Update() error = %v, want ErrNotOpen", err)
	}
}

func TestSession_Close(t *testing.T) {
	store := testutil.NewStore(t)
	h, _ := newTestHandler(t, store, Config{})
	ctx := context.Background()

	var got []Snapshot
	h.OnClose("record", func(_ context.Context, snap Snapshot) { got = append(got, snap) })
	h.OnClose("removed", func(context.Context, Snapshot) { t.Error("removed callback called") })
	h.RemoveOnClose("removed")

	s, err := h.Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	token := s.Token()
	if _, err := s.Roles().Add(ctx, "admin"); err != nil {
		t.Fatalf("Roles().Add() error = %v", err)
	}

	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if s.IsOpen() || s.Token() != "" {
		t.Error("session still bound after Close()")
	}
	if len(got) != 1 || got[0].Token != token || got[0].Timeout != DefaultTimeout {
		t.Errorf("callback snapshots = %+v", got)
	}

	keys, err := storage.Match(ctx, store, "session:*")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("keys left after Close() = %v", keys)
	}

	if err := s.Close(ctx); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("callbacks ran %d times, want 1", len(got))
	}
}

func TestSession_CloseKeepsOtherSessions(t *testing.T) {
	store := testutil.NewStore(t)
	h, _ := newTestHandler(t, store, Config{})
	ctx := context.Background()

	a, _ := h.Open(ctx)
	b, _ := h.Open(ctx)
	if _, err := b.Roles().Add(ctx, "user"); err != nil {
		t.Fatalf("Roles().Add() error = %v", err)
	}
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if ok, _ := h.SessionExists(ctx, b.Token()); !ok {
		t.Error("other session removed")
	}
	if ok, _ := b.Roles().Is(ctx, "user"); !ok {
		t.Error("other session lost its role")
	}
}

func TestHandler_Load(t *testing.T) {
	store := testutil.NewStore(t)
	h, clock := newTestHandler(t, store, Config{Timeout: time.Minute})
	ctx := context.Background()

	s, err := h.Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	clock.Advance(30 * time.Second)
	loaded, err := h.Load(ctx, s.Token())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !loaded.UpdateTime().Equal(epoch.Add(30 * time.Second)) {
		t.Errorf("Load() did not touch session: update time %v", loaded.UpdateTime())
	}

	clock.Advance(61 * time.Second)
	if _, err := h.Load(ctx, s.Token()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Load() expired error = %v, want ErrSessionNotFound", err)
	}
	if _, err := h.Load(ctx, "unknown"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Load() unknown error = %v, want ErrSessionNotFound", err)
	}
	if _, err := h.Load(ctx, ""); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Load() empty error = %v, want ErrSessionNotFound", err)
	}
}

func TestHandler_LoadSessionVirgin(t *testing.T) {
	store := testutil.NewStore(t)
	h, _ := newTestHandler(t, store, Config{})
	ctx := context.Background()

	if err := store.HWrite(ctx, "session:value:broken", "update_time", "yesterday"); err != nil {
		t.Fatalf("HWrite() error = %v", err)
	}
	virgin := h.New()
	if err := h.LoadSession(ctx, "broken", virgin); err == nil {
		t.Error("LoadSession() with corrupt update time error = nil")
	}
	if virgin.IsOpen() {
		t.Error("virgin bound after failed load")
	}
	if err := h.LoadSession(ctx, "missing", virgin); err != nil || virgin.IsOpen() {
		t.Errorf("LoadSession() missing = %v, bound %v", err, virgin.IsOpen())
	}
}

func TestHandler_StoreUnavailable(t *testing.T) {
	store := mock.NewMockStore()
	store.FailAll(storage.Unavailable("dial", errors.New("connection refused")))
	h, _ := newTestHandler(t, store, Config{})
	ctx := context.Background()

	if _, err := h.Open(ctx); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("Open() error = %v, want ErrUnavailable", err)
	}
	if _, err := h.Load(ctx, "token"); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("Load() error = %v, want ErrUnavailable", err)
	}
	if _, err := h.CleanSessions(ctx); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("CleanSessions() error = %v, want ErrUnavailable", err)
	}
}

func TestHandler_CleanSessions(t *testing.T) {
	store := testutil.NewStore(t)
	h, clock := newTestHandler(t, store, Config{Timeout: 10 * time.Second, GarbageExtra: 10 * time.Second})
	ctx := context.Background()

	var closed []string
	h.OnClose("gc", func(_ context.Context, snap Snapshot) { closed = append(closed, snap.Token) })

	stale1, _ := h.Open(ctx)
	stale2, _ := h.Open(ctx)
	if _, err := stale2.Roles().Add(ctx, "admin"); err != nil {
		t.Fatalf("Roles().Add() error = %v", err)
	}
	fresh, _ := h.Open(ctx)
	expired, _ := h.Open(ctx)

	clock.Advance(15 * time.Second)
	if err := expired.Update(ctx); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	clock.Advance(10 * time.Second)
	if err := fresh.Update(ctx); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	clock.Advance(time.Second)

	// stale1/stale2: idle 26s > 20s, expired: idle 11s (invalid, not garbage)
	n, err := h.CleanSessions(ctx)
	if err != nil {
		t.Fatalf("CleanSessions() error = %v", err)
	}
	if n != 2 || len(closed) != 2 {
		t.Fatalf("CleanSessions() = %d (callbacks %d), want 2", n, len(closed))
	}
	for _, s := range []*Session{stale1, stale2} {
		if ok, _ := h.SessionExists(ctx, s.Token()); ok {
			t.Errorf("garbage session %s still stored", s.Token())
		}
	}
	for _, s := range []*Session{fresh, expired} {
		if ok, _ := h.SessionExists(ctx, s.Token()); !ok {
			t.Errorf("session %s collected too early", s.Token())
		}
	}
	if keys, _ := storage.Match(ctx, store, "session:roles:*"); len(keys) != 0 {
		t.Errorf("roles of collected sessions left: %v", keys)
	}
}

func TestHandler_StartStop(t *testing.T) {
	store := testutil.NewStore(t)
	h, clock := newTestHandler(t, store, Config{
		Timeout:        time.Second,
		GarbageExtra:   time.Second,
		CleanFrequency: 10 * time.Millisecond,
	})
	ctx := context.Background()

	s, err := h.Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	clock.Advance(time.Minute)

	h.Start(ctx)
	h.Start(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for {
		ok, err := h.SessionExists(ctx, s.Token())
		if err != nil {
			t.Fatalf("SessionExists() error = %v", err)
		}
		if !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("collector did not remove the garbage session")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.Stop()
	h.Stop()
}

func TestHandler_RunInitialSweepOnly(t *testing.T) {
	store := testutil.NewStore(t)
	h, clock := newTestHandler(t, store, Config{Timeout: time.Second, CleanFrequency: -1})
	ctx := context.Background()

	s, _ := h.Open(ctx)
	clock.Advance(time.Hour)

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return with negative clean frequency")
	}
	if ok, _ := h.SessionExists(ctx, s.Token()); ok {
		t.Error("initial sweep did not collect garbage session")
	}
}

func TestHandler_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	inst, err := instrumentation.New(instrumentation.Config{Enabled: true, Registerer: reg})
	if err != nil {
		t.Fatalf("instrumentation.New() error = %v", err)
	}
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })

	store := testutil.NewStore(t)
	h, clock := newTestHandler(t, store, Config{Timeout: time.Second, Instrumentation: inst})
	ctx := context.Background()

	s, _ := h.Open(ctx)
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	_, _ = h.Open(ctx)
	clock.Advance(time.Hour)
	if _, err := h.CleanSessions(ctx); err != nil {
		t.Fatalf("CleanSessions() error = %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	want := map[string]bool{"session_opened": false, "session_closed": false, "session_gc_collected": false}
	for _, mf := range families {
		for prefix := range want {
			if strings.HasPrefix(mf.GetName(), prefix) {
				want[prefix] = true
			}
		}
	}
	for prefix, found := range want {
		if !found {
			t.Errorf("metric family %s* not exported", prefix)
		}
	}
}
