package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/riskauth/internal/models"
	"github.com/BradenHooton/riskauth/internal/repositories"
)

var errStoreDown = errors.New("store unavailable")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryOTPStore is an in-process OTPStore. WithAccount holds a single mutex.
type memoryOTPStore struct {
	mu      sync.Mutex
	records map[string]*models.OTPRecord
	err     error
}

func newMemoryOTPStore() *memoryOTPStore {
	return &memoryOTPStore{records: make(map[string]*models.OTPRecord)}
}

func (m *memoryOTPStore) WithAccount(ctx context.Context, accountID string, fn func(repositories.OTPTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	return fn(&memoryOTPTx{store: m, accountID: accountID})
}

func (m *memoryOTPStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for id, rec := range m.records {
		if rec.ExpiresAt.Before(before) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

func (m *memoryOTPStore) get(accountID string) (models.OTPRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[accountID]
	if !ok {
		return models.OTPRecord{}, false
	}
	return *rec, true
}

func (m *memoryOTPStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type memoryOTPTx struct {
	store     *memoryOTPStore
	accountID string
}

func (t *memoryOTPTx) Find(ctx context.Context) (*models.OTPRecord, error) {
	rec, ok := t.store.records[t.accountID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (t *memoryOTPTx) Create(ctx context.Context, rec *models.OTPRecord) error {
	if _, ok := t.store.records[t.accountID]; ok {
		return models.ErrConflict
	}
	cp := *rec
	cp.AccountID = t.accountID
	t.store.records[t.accountID] = &cp
	return nil
}

func (t *memoryOTPTx) IncrementAttempts(ctx context.Context) error {
	rec, ok := t.store.records[t.accountID]
	if !ok {
		return models.ErrNotFound
	}
	rec.Attempts++
	return nil
}

func (t *memoryOTPTx) DeleteAll(ctx context.Context) error {
	delete(t.store.records, t.accountID)
	return nil
}

// memoryRiskHistory is an append-only RiskHistory.
type memoryRiskHistory struct {
	mu           sync.Mutex
	records      []*models.RiskRecord
	findErr      error
	appendErr    error
	trustedErr   error
	trustedCalls int
}

func (h *memoryRiskHistory) seed(rec *models.RiskRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec.Seq = int64(len(h.records) + 1)
	h.records = append(h.records, rec)
}

func (h *memoryRiskHistory) FindLatest(ctx context.Context, accountID string) (*models.RiskRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.findErr != nil {
		return nil, h.findErr
	}
	for i := len(h.records) - 1; i >= 0; i-- {
		if h.records[i].AccountID == accountID {
			cp := *h.records[i]
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (h *memoryRiskHistory) Append(ctx context.Context, rec *models.RiskRecord) (*models.RiskRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.appendErr != nil {
		return nil, h.appendErr
	}
	cp := *rec
	cp.Seq = int64(len(h.records) + 1)
	cp.CreatedAt = rec.LastLoginAt
	h.records = append(h.records, &cp)
	return &cp, nil
}

func (h *memoryRiskHistory) FindTrustedDevices(ctx context.Context, accountID string) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trustedCalls++
	if h.trustedErr != nil {
		return nil, h.trustedErr
	}
	seen := map[string]bool{}
	for _, r := range h.records {
		if r.AccountID == accountID && r.IsTrustedDevice && r.DeviceID != "" {
			seen[r.DeviceID] = true
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (h *memoryRiskHistory) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

func (h *memoryRiskHistory) latest(accountID string) *models.RiskRecord {
	rec, _ := h.FindLatest(context.Background(), accountID)
	return rec
}

// stubIdentity is a CredentialVerifier over fixed users.
type stubIdentity struct {
	users     map[string]*models.User
	passwords map[string]string
	err       error
}

func newStubIdentity(users ...*models.User) *stubIdentity {
	s := &stubIdentity{users: map[string]*models.User{}, passwords: map[string]string{}}
	for _, u := range users {
		s.users[u.Email] = u
		s.passwords[u.Email] = "correct-password"
	}
	return s
}

func (s *stubIdentity) VerifyCredentials(ctx context.Context, email, password string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[email]
	if !ok || s.passwords[email] != password {
		return nil, models.ErrInvalidCredentials
	}
	return u, nil
}

func (s *stubIdentity) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	return u, nil
}

type stubSessions struct {
	expiresAt time.Time
	err       error
}

func (s *stubSessions) GenerateSessionToken(user *models.User) (string, time.Time, error) {
	if s.err != nil {
		return "", time.Time{}, s.err
	}
	return "session-" + user.ID, s.expiresAt, nil
}

type sentEmail struct {
	Kind string
	To   string
	Body string
}

// recordingEmail captures outgoing mail.
type recordingEmail struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (r *recordingEmail) record(kind, to, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEmail{Kind: kind, To: to, Body: body})
	return r.err
}

func (r *recordingEmail) SendOTPEmail(ctx context.Context, to, code string, expiresAt time.Time) error {
	return r.record("otp", to, code)
}

func (r *recordingEmail) SendPasswordSetEmail(ctx context.Context, to, name, link string) error {
	return r.record("password_set", to, link)
}

func (r *recordingEmail) SendRejectionEmail(ctx context.Context, to, reason string) error {
	return r.record("rejection", to, reason)
}

func (r *recordingEmail) byKind(kind string) []sentEmail {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentEmail
	for _, e := range r.sent {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (r *recordingEmail) lastCode() string {
	otps := r.byKind("otp")
	if len(otps) == 0 {
		return ""
	}
	return otps[len(otps)-1].Body
}

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc        func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc     func(ctx context.Context, email string) (*models.User, error)
	ListFunc           func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateFunc         func(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePasswordFunc func(ctx context.Context, id, passwordHash, tokenKey string) error
	DeleteFunc         func(ctx context.Context, id string) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash, tokenKey string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash, tokenKey)
	}
	return nil
}

func (m *MockUserRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// MockRiskStatsRepository implements RiskStatsRepository for testing
type MockRiskStatsRepository struct {
	CountByRiskLevelFunc func(ctx context.Context) ([]models.RiskLevelCount, error)
	CountDailySinceFunc  func(ctx context.Context, since time.Time) ([]models.DailyLoginCount, error)
}

func (m *MockRiskStatsRepository) CountByRiskLevel(ctx context.Context) ([]models.RiskLevelCount, error) {
	if m.CountByRiskLevelFunc != nil {
		return m.CountByRiskLevelFunc(ctx)
	}
	return nil, nil
}

func (m *MockRiskStatsRepository) CountDailySince(ctx context.Context, since time.Time) ([]models.DailyLoginCount, error) {
	if m.CountDailySinceFunc != nil {
		return m.CountDailySinceFunc(ctx, since)
	}
	return nil, nil
}

// fixedClock returns a settable clock.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
