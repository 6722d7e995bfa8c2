package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/access-sync/internal/errs"
	"github.com/and161185/access-sync/internal/identity"
	"github.com/and161185/access-sync/internal/model"
	"github.com/and161185/access-sync/internal/platform"
	"github.com/and161185/access-sync/internal/repository"
)

type accKey struct{ user, inst uuid.UUID }

type account struct {
	status model.AccountStatus
	seen   int
}

// memStore is an in-memory stand-in for every repository the sync services use.
type memStore struct {
	mu        sync.Mutex
	employees []model.Employee
	instances map[string]uuid.UUID
	mirrors   map[model.Platform]map[string]model.MirrorUser
	absent    map[model.Platform]map[string]bool
	accounts  map[accKey]account
	failOn    string
	upserts   int
	commits   int
	rollbacks int
}

var (
	_ repository.EmployeeRepository    = (*memStore)(nil)
	_ repository.AppInstanceRepository = (*memStore)(nil)
	_ repository.MirrorRepository      = (*memStore)(nil)
	_ repository.AccountRepository     = (*memStore)(nil)
	_ repository.TxManager             = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		instances: map[string]uuid.UUID{},
		mirrors:   map[model.Platform]map[string]model.MirrorUser{},
		absent:    map[model.Platform]map[string]bool{},
		accounts:  map[accKey]account{},
	}
}

func (m *memStore) addEmployee(email string) uuid.UUID {
	id := uuid.Must(uuid.NewV4())
	m.employees = append(m.employees, model.Employee{ID: id, Email: email, IsActive: true})
	return id
}

func (m *memStore) addInstance(p model.Platform) uuid.UUID {
	id := uuid.Must(uuid.NewV4())
	m.instances[string(p)] = id
	return id
}

func (m *memStore) setMirror(p model.Platform, users ...model.MirrorUser) {
	m.mirrors[p] = map[string]model.MirrorUser{}
	m.absent[p] = map[string]bool{}
	for _, u := range users {
		m.mirrors[p][u.NativeID] = u
	}
}

func (m *memStore) isAbsent(p model.Platform, nativeID string) bool {
	return m.absent[p][nativeID]
}

func (m *memStore) markAbsent(p model.Platform, nativeID string) bool {
	if m.absent[p] == nil {
		m.absent[p] = map[string]bool{}
	}
	if m.absent[p][nativeID] {
		return false
	}
	m.absent[p][nativeID] = true
	return true
}

func (m *memStore) status(user, inst uuid.UUID) (model.AccountStatus, bool) {
	a, ok := m.accounts[accKey{user, inst}]
	return a.status, ok
}

func (m *memStore) fail(op string) error {
	if m.failOn == op {
		return errors.New(op + " failed")
	}
	return nil
}

func (m *memStore) WithinTx(ctx context.Context, fn func(context.Context, repository.Repos) error) error {
	snapshot := make(map[accKey]account, len(m.accounts))
	for k, v := range m.accounts {
		snapshot[k] = v
	}
	if err := fn(ctx, repository.Repos{Employees: m, Instances: m, Mirrors: m, Accounts: m}); err != nil {
		m.accounts = snapshot
		m.rollbacks++
		return err
	}
	m.commits++
	return nil
}

func (m *memStore) EmailIndex(context.Context) (map[string]uuid.UUID, error) {
	if err := m.fail("EmailIndex"); err != nil {
		return nil, err
	}
	out := map[string]uuid.UUID{}
	for _, e := range m.employees {
		out[identity.NormalizeEmail(e.Email)] = e.ID
	}
	return out, nil
}

func (m *memStore) ListActive(_ context.Context, asOf time.Time) ([]model.Employee, error) {
	if err := m.fail("ListActive"); err != nil {
		return nil, err
	}
	var out []model.Employee
	for _, e := range m.employees {
		if e.HasAccessOn(asOf) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) PrimaryID(_ context.Context, appKey string) (uuid.UUID, error) {
	if err := m.fail("PrimaryID"); err != nil {
		return uuid.Nil, err
	}
	id, ok := m.instances[appKey]
	if !ok {
		return uuid.Nil, errs.ErrNotFound
	}
	return id, nil
}

func (m *memStore) Upsert(_ context.Context, p model.Platform, users []model.MirrorUser) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Upsert"); err != nil {
		return 0, err
	}
	m.upserts++
	if m.mirrors[p] == nil {
		m.mirrors[p] = map[string]model.MirrorUser{}
	}
	for _, u := range users {
		m.mirrors[p][u.NativeID] = u
		delete(m.absent[p], u.NativeID)
	}
	return int64(len(users)), nil
}

func (m *memStore) MarkAbsentExcept(_ context.Context, p model.Platform, keep []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("MarkAbsentExcept"); err != nil {
		return 0, err
	}
	kept := make(map[string]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	var n int64
	for id := range m.mirrors[p] {
		if !kept[id] && m.markAbsent(p, id) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) MarkAbsentByEmail(_ context.Context, p model.Platform, emails []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("MarkAbsentByEmail"); err != nil {
		return 0, err
	}
	var n int64
	for id, u := range m.mirrors[p] {
		for _, e := range emails {
			if strings.EqualFold(u.Email, e) && m.markAbsent(p, id) {
				n++
			}
		}
	}
	return n, nil
}

func (m *memStore) List(_ context.Context, p model.Platform) ([]model.MirrorUser, error) {
	if err := m.fail("List"); err != nil {
		return nil, err
	}
	var out []model.MirrorUser
	for id, u := range m.mirrors[p] {
		if !m.isAbsent(p, id) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NativeID < out[j].NativeID })
	return out, nil
}

func (m *memStore) EnsureExists(_ context.Context, inst uuid.UUID, ids []uuid.UUID) (int64, error) {
	if err := m.fail("EnsureExists"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		k := accKey{id, inst}
		if _, ok := m.accounts[k]; !ok {
			m.accounts[k] = account{status: model.AccountDeactivated}
			n++
		}
	}
	return n, nil
}

func (m *memStore) MarkSeen(_ context.Context, inst uuid.UUID, ids []uuid.UUID, status model.AccountStatus) (int64, error) {
	if err := m.fail("MarkSeen:" + string(status)); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		k := accKey{id, inst}
		if a, ok := m.accounts[k]; ok {
			m.accounts[k] = account{status: status, seen: a.seen + 1}
			n++
		}
	}
	return n, nil
}

func (m *memStore) MarkDeactivated(_ context.Context, inst uuid.UUID, ids []uuid.UUID) (int64, error) {
	if err := m.fail("MarkDeactivated"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		k := accKey{id, inst}
		if a, ok := m.accounts[k]; ok && a.status != model.AccountDeactivated {
			m.accounts[k] = account{status: model.AccountDeactivated, seen: a.seen}
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListUserIDs(_ context.Context, inst uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for k := range m.accounts {
		if k.inst == inst {
			out = append(out, k.user)
		}
	}
	return out, nil
}

func (m *memStore) ListByEmployee(_ context.Context, user uuid.UUID) ([]model.UserAccount, error) {
	var out []model.UserAccount
	for k, a := range m.accounts {
		if k.user == user {
			out = append(out, model.UserAccount{UserID: user, AppInstanceID: k.inst, Status: a.status})
		}
	}
	return out, nil
}

func (m *memStore) CountByStatus(context.Context) ([]model.StatusCount, error) {
	if err := m.fail("CountByStatus"); err != nil {
		return nil, err
	}
	byInst := map[uuid.UUID]string{}
	for k, id := range m.instances {
		byInst[id] = k
	}
	counts := map[[2]string]int{}
	for k, a := range m.accounts {
		counts[[2]string{byInst[k.inst], string(a.status)}]++
	}
	var out []model.StatusCount
	for k, n := range counts {
		out = append(out, model.StatusCount{AppKey: k[0], Status: model.AccountStatus(k[1]), Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AppKey != out[j].AppKey {
			return out[i].AppKey < out[j].AppKey
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

// fakeAdapter serves a fixed directory.
type fakeAdapter struct {
	p       model.Platform
	users   []model.MirrorUser
	listErr error
	errFor  map[string]bool

	mu        sync.Mutex
	lookups   []string
	suspended []string
	inFlight  int
	maxFlight int
}

var _ platform.Adapter = (*fakeAdapter)(nil)

func (f *fakeAdapter) Platform() model.Platform { return f.p }

func (f *fakeAdapter) ListAll(context.Context) ([]model.MirrorUser, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.MirrorUser(nil), f.users...), nil
}

func (f *fakeAdapter) GetStatus(_ context.Context, email string) model.StatusResult {
	f.mu.Lock()
	f.lookups = append(f.lookups, email)
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	f.mu.Unlock()
	time.Sleep(time.Millisecond)
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.errFor[email] {
		if email == "panic@x.io" {
			panic("boom")
		}
		return platform.Failed(f.p, errors.New("rate limited"))
	}
	for _, u := range f.users {
		if u.Email == email {
			return platform.StatusOf(f.p, u)
		}
	}
	return platform.NotFound(f.p, email)
}

func (f *fakeAdapter) Suspend(_ context.Context, email string) model.SuspendResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suspended = append(f.suspended, email)
	return platform.Suspended(f.p, email)
}

type progressLog struct {
	steps    []string
	percents []float64
}

func (p *progressLog) fn() ProgressFunc {
	return func(step string, percent float64) {
		p.steps = append(p.steps, step)
		p.percents = append(p.percents, percent)
	}
}

func noProgress(string, float64) {}
