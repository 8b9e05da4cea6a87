package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/rollcall/internal/auth"
	"github.com/BradenHooton/rollcall/internal/models"
	pkgauth "github.com/BradenHooton/rollcall/pkg/auth"
	pkglogger "github.com/BradenHooton/rollcall/pkg/logger"
)

// testClock is a manually advanced clock shared by the services under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ============================================================================
// In-memory repositories
// ============================================================================

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
	err   error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[string]*models.User{}}
}

func (m *memUserRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memUserRepo) Create(_ context.Context, user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username {
			return nil, models.ErrConflict
		}
	}
	cp := *user
	cp.ID = uuid.New().String()
	cp.TokenKey = uuid.New().String()
	m.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memUserRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.ErrNotFound
	}
	now := time.Now()
	u.PasswordHash = passwordHash
	u.TokenKey = uuid.New().String()
	u.PasswordChangedAt = &now
	return nil
}

func (m *memUserRepo) Count(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

type memBlockedRepo struct {
	mu      sync.Mutex
	records map[string]*models.BlockedDevice
	now     func() time.Time
}

func newMemBlockedRepo(now func() time.Time) *memBlockedRepo {
	return &memBlockedRepo{records: map[string]*models.BlockedDevice{}, now: now}
}

func (m *memBlockedRepo) GetByFingerprint(_ context.Context, hash string) (*models.BlockedDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[hash]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memBlockedRepo) IncrementFailure(_ context.Context, fp models.Fingerprint, maxAttempts int) (*models.BlockedDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash := fp.Hash()
	r, ok := m.records[hash]
	if !ok {
		r = &models.BlockedDevice{
			ID:              uuid.New().String(),
			FingerprintHash: hash,
			IPAddress:       fp.IPAddress,
			UserAgent:       fp.UserAgent,
			CreatedAt:       m.now(),
		}
		m.records[hash] = r
	}
	r.FailedAttempts++
	r.UpdatedAt = m.now()
	if r.FailedAttempts >= maxAttempts && r.BlockedAt == nil {
		at := m.now()
		r.BlockedAt = &at
	}
	cp := *r
	return &cp, nil
}

func (m *memBlockedRepo) DeleteByFingerprint(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, hash)
	return nil
}

func (m *memBlockedRepo) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, r := range m.records {
		if r.ID == id {
			delete(m.records, k)
			return nil
		}
	}
	return models.ErrNotFound
}

func (m *memBlockedRepo) ListBlocked(_ context.Context, minAttempts int) ([]*models.BlockedDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.BlockedDevice
	for _, r := range m.records {
		if r.FailedAttempts >= minAttempts {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memBlockedRepo) CountBlocked(ctx context.Context, minAttempts int) (int64, error) {
	list, _ := m.ListBlocked(ctx, minAttempts)
	return int64(len(list)), nil
}

type memTrustedRepo struct {
	mu      sync.Mutex
	devices []*models.TrustedDevice
}

func (m *memTrustedRepo) find(userID, hash string) *models.TrustedDevice {
	for _, d := range m.devices {
		if d.UserID == userID && d.FingerprintHash == hash {
			return d
		}
	}
	return nil
}

func (m *memTrustedRepo) Touch(_ context.Context, userID, hash string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.find(userID, hash); d != nil {
		d.LastLogin = at
		return true, nil
	}
	return false, nil
}

func (m *memTrustedRepo) ListByUser(_ context.Context, userID string) ([]*models.TrustedDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked(userID), nil
}

func (m *memTrustedRepo) listLocked(userID string) []*models.TrustedDevice {
	var out []*models.TrustedDevice
	for _, d := range m.devices {
		if d.UserID == userID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastLogin.After(out[j].LastLogin) })
	return out
}

func (m *memTrustedRepo) Upsert(_ context.Context, userID string, fp models.Fingerprint, at time.Time) (*models.TrustedDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.find(userID, fp.Hash()); d != nil {
		d.LastLogin = at
		cp := *d
		return &cp, nil
	}
	d := &models.TrustedDevice{
		ID:              uuid.New().String(),
		UserID:          userID,
		FingerprintHash: fp.Hash(),
		IPAddress:       fp.IPAddress,
		UserAgent:       fp.UserAgent,
		LastLogin:       at,
		CreatedAt:       at,
	}
	m.devices = append(m.devices, d)
	cp := *d
	return &cp, nil
}

func (m *memTrustedRepo) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.devices {
		if d.ID == id && d.UserID == userID {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			return nil
		}
	}
	return models.ErrNotFound
}

func (m *memTrustedRepo) TrimToLimit(_ context.Context, userID string, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.listLocked(userID)
	if len(list) <= keep {
		return 0, nil
	}
	drop := map[string]bool{}
	for _, d := range list[keep:] {
		drop[d.ID] = true
	}
	kept := m.devices[:0]
	for _, d := range m.devices {
		if !drop[d.ID] {
			kept = append(kept, d)
		}
	}
	m.devices = kept
	return int64(len(drop)), nil
}

func (m *memTrustedRepo) CountAll(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.devices)), nil
}

type memTokenRepo struct {
	mu        sync.Mutex
	tokens    map[string]*models.RememberToken
	createErr error
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: map[string]*models.RememberToken{}}
}

func (m *memTokenRepo) Create(_ context.Context, token *models.RememberToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.tokens[token.Selector]; exists {
		return models.ErrConflict
	}
	token.ID = uuid.New().String()
	cp := *token
	m.tokens[token.Selector] = &cp
	return nil
}

func (m *memTokenRepo) GetBySelector(_ context.Context, selector string) (*models.RememberToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[selector]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTokenRepo) DeleteBySelector(_ context.Context, selector string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tokens[selector]
	delete(m.tokens, selector)
	return ok, nil
}

func (m *memTokenRepo) DeleteByID(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sel, t := range m.tokens {
		if t.ID == id && t.UserID == userID {
			delete(m.tokens, sel)
			return nil
		}
	}
	return models.ErrNotFound
}

func (m *memTokenRepo) DeleteAllForUser(_ context.Context, userID, exceptSelector string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for sel, t := range m.tokens {
		if t.UserID == userID && sel != exceptSelector {
			delete(m.tokens, sel)
			n++
		}
	}
	return n, nil
}

func (m *memTokenRepo) MarkUsed(_ context.Context, id string, at time.Time, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.ID == id {
			t.LastUsed = &at
			if expiresAt != nil {
				t.ExpiresAt = *expiresAt
			}
		}
	}
	return nil
}

func (m *memTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for sel, t := range m.tokens {
		if t.IsExpired(now) {
			delete(m.tokens, sel)
			n++
		}
	}
	return n, nil
}

func (m *memTokenRepo) ListActiveByUser(_ context.Context, userID string, now time.Time) ([]*models.RememberToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.RememberToken
	for _, t := range m.tokens {
		if t.UserID == userID && !t.IsExpired(now) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTokenRepo) CountActive(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tokens {
		if !t.IsExpired(now) {
			n++
		}
	}
	return n, nil
}

func (m *memTokenRepo) selectors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.tokens))
	for sel := range m.tokens {
		out = append(out, sel)
	}
	sort.Strings(out)
	return out
}

type memRevocationRepo struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func newMemRevocationRepo() *memRevocationRepo {
	return &memRevocationRepo{revoked: map[string]time.Time{}}
}

func (m *memRevocationRepo) Revoke(_ context.Context, sessionID, _ string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[sessionID] = expiresAt
	return nil
}

func (m *memRevocationRepo) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[sessionID]
	return ok, nil
}

func (m *memRevocationRepo) CleanupExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, exp := range m.revoked {
		if !exp.After(now) {
			delete(m.revoked, id)
			n++
		}
	}
	return n, nil
}

// recordingAlerter captures alerts instead of sending them.
type recordingAlerter struct {
	mu         sync.Mutex
	blocked    []models.Fingerprint
	mismatches []string
}

func (r *recordingAlerter) DeviceBlocked(_ context.Context, fp models.Fingerprint, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocked = append(r.blocked, fp)
}

func (r *recordingAlerter) TokenMismatch(_ context.Context, userID, _, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mismatches = append(r.mismatches, userID)
}

// ============================================================================
// Wiring
// ============================================================================

const (
	testAdminUsername = "admin"
	testAdminPassword = "secret123"
)

// testEnv is a fully wired AuthService over in-memory storage.
type testEnv struct {
	clock       *testClock
	users       *memUserRepo
	blocked     *memBlockedRepo
	trusted     *memTrustedRepo
	tokenRepo   *memTokenRepo
	revocations *memRevocationRepo
	alerts      *recordingAlerter
	limiter     *auth.SlidingWindowLimiter

	credentials *CredentialService
	lockout     *LockoutService
	devices     *TrustedDeviceService
	tokens      *RememberTokenService
	sessions    *auth.SessionManager
	auth        *AuthService
	admin       *models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := discardLogger()
	audit := pkglogger.NewAuditLogger(logger)
	clock := newTestClock()

	e := &testEnv{
		clock:       clock,
		users:       newMemUserRepo(),
		blocked:     newMemBlockedRepo(clock.Now),
		trusted:     &memTrustedRepo{},
		tokenRepo:   newMemTokenRepo(),
		revocations: newMemRevocationRepo(),
		alerts:      &recordingAlerter{},
		limiter: auth.NewSlidingWindowLimiter(5, 15*time.Minute,
			auth.WithClock(clock.Now), auth.WithCleanupProbability(0)),
	}

	e.tokens = NewRememberTokenService(e.tokenRepo, 30*24*time.Hour, false, logger, audit)
	e.tokens.now = clock.Now
	e.credentials = NewCredentialService(e.users, e.tokens, pkgauth.NewHasher(bcrypt.MinCost), logger, audit)
	e.lockout = NewLockoutService(e.blocked, 3, 0, e.alerts, logger, audit)
	e.lockout.now = clock.Now
	e.devices = NewTrustedDeviceService(e.trusted, 3, logger)
	e.devices.now = clock.Now
	e.sessions = auth.NewSessionManager("test-secret-32-characters-long!!", 24*time.Hour, e.users)
	e.auth = NewAuthService(e.credentials, e.lockout, e.limiter, e.devices, e.tokens, e.sessions,
		e.revocations, e.users, nil, e.alerts, logger, audit)
	e.auth.now = clock.Now

	created, err := e.credentials.EnsureUser(context.Background(), testAdminUsername, testAdminPassword)
	require.NoError(t, err)
	require.True(t, created)

	e.admin, err = e.users.GetByUsername(context.Background(), testAdminUsername)
	require.NoError(t, err)
	return e
}

func testFingerprint(ip string) models.Fingerprint {
	return models.Fingerprint{IPAddress: ip, UserAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0"}
}
