package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/access-sync/internal/errs"
	"github.com/and161185/access-sync/internal/model"
)

func strategies(ps ...model.Platform) []Strategy {
	out := make([]Strategy, 0, len(ps))
	for _, p := range ps {
		out = append(out, MirrorStrategy(p))
	}
	return out
}

func mustStatus(t *testing.T, m *memStore, user, inst uuid.UUID, want model.AccountStatus) {
	t.Helper()
	got, ok := m.status(user, inst)
	if !ok {
		t.Fatalf("no account row for %s/%s, want %s", user, inst, want)
	}
	if got != want {
		t.Fatalf("status=%s want %s", got, want)
	}
}

func TestClassify(t *testing.T) {
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	emails := map[string]uuid.UUID{"a@co.com": a, "b@co.com": b}
	raw := []model.MirrorUser{
		{NativeID: "1", Email: "A@co.com", Status: "false"},
		{NativeID: "2", Email: "b@co.com", Status: "false"},
		{NativeID: "3", Email: "b@co.com", Status: "true"},
		{NativeID: "4", Email: "stranger@else.com", Status: "false"},
		{NativeID: "5", Email: "", Status: "false"},
	}
	c := Classify(raw, emails, func(u model.MirrorUser) bool { return u.Status == "true" })

	if len(c.ToActivate) != 1 || c.ToActivate[0] != a {
		t.Fatalf("toActivate=%v", c.ToActivate)
	}
	if len(c.ToSuspend) != 1 || c.ToSuspend[0] != b {
		t.Fatalf("toSuspend=%v", c.ToSuspend)
	}
	if c.Ignored != 2 {
		t.Fatalf("ignored=%d want 2", c.Ignored)
	}
	if len(c.Seen()) != 2 {
		t.Fatalf("seen=%v", c.Seen())
	}
}

func TestMissing(t *testing.T) {
	a, b, c := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	got := Missing([]uuid.UUID{a, b, c}, []uuid.UUID{b})
	if len(got) != 2 || got[0] != a || got[1] != c {
		t.Fatalf("missing=%v", got)
	}
}

func TestReconcile_ActivateThenDeactivateWhenGone(t *testing.T) {
	m := newMemStore()
	a := m.addEmployee("a@co.com")
	jc := m.addInstance(model.PlatformJumpCloud)
	m.setMirror(model.PlatformJumpCloud, model.MirrorUser{NativeID: "j1", Email: "a@co.com", Status: "ACTIVATED"})
	r := NewReconciler(m, strategies(model.PlatformJumpCloud), false, zaptest.NewLogger(t))

	if _, err := r.Run(context.Background(), noProgress); err != nil {
		t.Fatalf("run: %v", err)
	}
	mustStatus(t, m, a, jc, model.AccountActive)
	seenBefore := m.accounts[accKey{a, jc}].seen

	m.setMirror(model.PlatformJumpCloud)
	rep, err := r.Run(context.Background(), noProgress)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	mustStatus(t, m, a, jc, model.AccountDeactivated)
	if m.accounts[accKey{a, jc}].seen != seenBefore {
		t.Fatal("deactivation must not refresh last_seen_at")
	}
	if rep.Platforms[0].Deactivated != 1 {
		t.Fatalf("report=%+v", rep)
	}
}

func TestReconcile_SuspendedDoesNotTouchOtherPlatforms(t *testing.T) {
	m := newMemStore()
	b := m.addEmployee("b@co.com")
	gws := m.addInstance(model.PlatformGoogle)
	slk := m.addInstance(model.PlatformSlack)
	m.setMirror(model.PlatformGoogle, model.MirrorUser{NativeID: "g1", Email: "b@co.com", Status: "true"})
	m.setMirror(model.PlatformSlack, model.MirrorUser{NativeID: "U1", Email: "b@co.com", Status: "false"})
	r := NewReconciler(m, strategies(model.PlatformGoogle, model.PlatformSlack), false, nil)

	if _, err := r.Run(context.Background(), noProgress); err != nil {
		t.Fatalf("run: %v", err)
	}
	mustStatus(t, m, b, gws, model.AccountSuspended)
	mustStatus(t, m, b, slk, model.AccountActive)

	r = NewReconciler(m, strategies(model.PlatformGoogle), false, nil)
	m.setMirror(model.PlatformGoogle, model.MirrorUser{NativeID: "g1", Email: "b@co.com", Status: "false"})
	m.setMirror(model.PlatformSlack)
	if _, err := r.Run(context.Background(), noProgress); err != nil {
		t.Fatalf("run: %v", err)
	}
	mustStatus(t, m, b, gws, model.AccountActive)
	mustStatus(t, m, b, slk, model.AccountActive)
}

func TestReconcile_MissingPrimaryInstanceSkipped(t *testing.T) {
	m := newMemStore()
	a := m.addEmployee("a@co.com")
	jc := m.addInstance(model.PlatformJumpCloud)
	m.setMirror(model.PlatformJumpCloud, model.MirrorUser{NativeID: "j1", Email: "a@co.com", Status: "ACTIVATED"})
	m.setMirror(model.PlatformAtlassian, model.MirrorUser{NativeID: "at1", Email: "a@co.com", Status: "active"})
	var p progressLog
	r := NewReconciler(m, strategies(model.PlatformAtlassian, model.PlatformJumpCloud), false, nil)

	rep, err := r.Run(context.Background(), p.fn())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	mustStatus(t, m, a, jc, model.AccountActive)
	if len(m.accounts) != 1 {
		t.Fatalf("accounts=%d want 1", len(m.accounts))
	}
	if len(rep.Skipped) != 1 || rep.Skipped[0].Platform != model.PlatformAtlassian {
		t.Fatalf("skipped=%+v", rep.Skipped)
	}
	if len(p.steps) == 0 {
		t.Fatal("expected progress reports")
	}
}

func TestReconcile_StrictFailsOnMissingInstance(t *testing.T) {
	m := newMemStore()
	m.addEmployee("a@co.com")
	m.addInstance(model.PlatformJumpCloud)
	m.setMirror(model.PlatformJumpCloud, model.MirrorUser{NativeID: "j1", Email: "a@co.com", Status: "ACTIVATED"})
	r := NewReconciler(m, strategies(model.PlatformJumpCloud, model.PlatformAtlassian), true, nil)

	_, err := r.Run(context.Background(), noProgress)
	if !errors.Is(err, errs.ErrNoPrimaryInstance) {
		t.Fatalf("want ErrNoPrimaryInstance, got %v", err)
	}
	if len(m.accounts) != 0 || m.rollbacks != 1 {
		t.Fatalf("expected rollback, accounts=%d rollbacks=%d", len(m.accounts), m.rollbacks)
	}
}

func TestReconcile_FailureRollsBackAllPlatforms(t *testing.T) {
	m := newMemStore()
	a := m.addEmployee("a@co.com")
	jc := m.addInstance(model.PlatformJumpCloud)
	m.addInstance(model.PlatformGoogle)
	m.setMirror(model.PlatformJumpCloud, model.MirrorUser{NativeID: "j1", Email: "a@co.com", Status: "ACTIVATED"})
	m.setMirror(model.PlatformGoogle, model.MirrorUser{NativeID: "g1", Email: "a@co.com", Status: "true"})
	m.failOn = "MarkSeen:suspended"
	r := NewReconciler(m, strategies(model.PlatformJumpCloud, model.PlatformGoogle), false, nil)

	if _, err := r.Run(context.Background(), noProgress); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := m.status(a, jc); ok {
		t.Fatal("jumpcloud changes must be rolled back")
	}
}

func TestReconcile_ThreeStateCompleteness(t *testing.T) {
	m := newMemStore()
	active := m.addEmployee("active@co.com")
	susp := m.addEmployee("susp@co.com")
	gone := m.addEmployee("gone@co.com")
	never := m.addEmployee("never@co.com")
	inst := m.addInstance(model.PlatformLDAP)
	m.accounts[accKey{gone, inst}] = account{status: model.AccountActive, seen: 1}
	m.setMirror(model.PlatformLDAP,
		model.MirrorUser{NativeID: "1", Email: "active@co.com", Status: "512"},
		model.MirrorUser{NativeID: "2", Email: "susp@co.com", Status: "514"},
		model.MirrorUser{NativeID: "3", Email: "contractor@else.com", Status: "512"},
	)
	r := NewReconciler(m, strategies(model.PlatformLDAP), false, nil)

	for i := 0; i < 2; i++ {
		if _, err := r.Run(context.Background(), noProgress); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		mustStatus(t, m, active, inst, model.AccountActive)
		mustStatus(t, m, susp, inst, model.AccountSuspended)
		mustStatus(t, m, gone, inst, model.AccountDeactivated)
		if _, ok := m.status(never, inst); ok {
			t.Fatal("unobserved employee without prior row must not get one")
		}
		if len(m.accounts) != 3 {
			t.Fatalf("accounts=%d want 3", len(m.accounts))
		}
	}
}

func TestFullSyncThenReconcile_UpstreamDeletionDeactivates(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	a := m.addEmployee("a@co.com")
	gws := m.addInstance(model.PlatformGoogle)
	adapter := &fakeAdapter{p: model.PlatformGoogle, users: []model.MirrorUser{
		{NativeID: "g1", Email: "a@co.com", Status: "false"},
	}}
	refresh := NewFullSync(adapter, m, 0, zaptest.NewLogger(t))
	r := NewReconciler(m, strategies(model.PlatformGoogle), false, zaptest.NewLogger(t))

	if _, err := refresh.Run(ctx, noProgress); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, err := r.Run(ctx, noProgress); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	mustStatus(t, m, a, gws, model.AccountActive)

	adapter.users = nil
	if _, err := refresh.Run(ctx, noProgress); err != nil {
		t.Fatalf("sync after deletion: %v", err)
	}
	if _, err := r.Run(ctx, noProgress); err != nil {
		t.Fatalf("reconcile after deletion: %v", err)
	}
	mustStatus(t, m, a, gws, model.AccountDeactivated)
	if len(m.mirrors[model.PlatformGoogle]) != 1 {
		t.Fatalf("retracted row must be kept, mirror=%v", m.mirrors[model.PlatformGoogle])
	}
}

func TestUserSyncThenReconcile_NotFoundDeactivates(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	bob := m.addEmployee("bob@co.com")
	sl := m.addInstance(model.PlatformSlack)
	adapter := &fakeAdapter{p: model.PlatformSlack, users: []model.MirrorUser{
		{NativeID: "U1", Email: "bob@co.com", Status: "false"},
	}}
	var sleeps []time.Duration
	refresh := newUserSync(adapter, m, &sleeps)
	r := NewReconciler(m, strategies(model.PlatformSlack), false, zaptest.NewLogger(t))

	if _, err := refresh.Run(ctx, noProgress); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, err := r.Run(ctx, noProgress); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	mustStatus(t, m, bob, sl, model.AccountActive)

	adapter.users = nil
	if _, err := refresh.Run(ctx, noProgress); err != nil {
		t.Fatalf("sync after deletion: %v", err)
	}
	if _, err := r.Run(ctx, noProgress); err != nil {
		t.Fatalf("reconcile after deletion: %v", err)
	}
	mustStatus(t, m, bob, sl, model.AccountDeactivated)
}
