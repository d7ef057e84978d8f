package session_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapaeventos/authkit/internal/nav"
	"github.com/mapaeventos/authkit/internal/session"
	storagemem "github.com/mapaeventos/authkit/internal/storage/memory"
)

func tokenWith(t *testing.T, claims map[string]any) string {
	t.Helper()
	header, _ := json.Marshal(map[string]any{"alg": "HS256", "typ": "JWT"})
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(payload) + "." + enc.EncodeToString([]byte("s"))
}

type countingNav struct {
	to       atomic.Int32
	lastPath atomic.Value
}

func (n *countingNav) NavigateTo(path string) {
	n.to.Add(1)
	n.lastPath.Store(path)
}
func (n *countingNav) NavigateExternal(string) {}

func testMonitor(store *session.TokenStore, navigator nav.Navigator) *session.Monitor {
	return session.NewMonitor(session.MonitorConfig{
		WarnThreshold: 5 * time.Minute,
		PollInterval:  10 * time.Millisecond,
		LogoutDelay:   10 * time.Millisecond,
		SignInPath:    "/login",
	}, store, navigator, nil)
}

func TestExpiredTokenClearsAndRedirectsOnce(t *testing.T) {
	raw := storagemem.New()
	store := session.NewTokenStore(raw)
	store.SetTokens(tokenWith(t, map[string]any{"exp": time.Now().Add(-10 * time.Second).Unix()}), "")
	store.SetUserInfo(`{"role":"cliente"}`)

	navigator := &countingNav{}
	m := testMonitor(store, navigator)

	var expired atomic.Int32
	m.OnExpired = func() { expired.Add(1) }

	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool {
		return m.State() == session.StateExpired
	}, time.Second, 5*time.Millisecond)

	assert.False(t, store.Present())
	_, ok := store.UserInfo()
	assert.False(t, ok)
	assert.Equal(t, int32(1), expired.Load())

	// El redirect sale una sola vez, después del delay.
	require.Eventually(t, func() bool {
		return navigator.to.Load() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "/login", navigator.lastPath.Load())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), navigator.to.Load())
}

func TestNoTokenExpiresImmediately(t *testing.T) {
	store := session.NewTokenStore(storagemem.New())
	m := testMonitor(store, &countingNav{})
	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool {
		return m.State() == session.StateExpired
	}, time.Second, 5*time.Millisecond)
}

func TestMissingExpNeverExpiresByTime(t *testing.T) {
	store := session.NewTokenStore(storagemem.New())
	store.SetTokens(tokenWith(t, map[string]any{"sub": "u1"}), "")

	m := testMonitor(store, &countingNav{})
	m.Start(context.Background())
	defer m.Stop()

	// Varios polls después sigue vigilando: sin exp no hay evidencia.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, session.StateWatching, m.State())
	assert.True(t, store.Present())
}

func TestWarningTriggersSignInWhenAccepted(t *testing.T) {
	store := session.NewTokenStore(storagemem.New())
	store.SetTokens(tokenWith(t, map[string]any{"exp": time.Now().Add(2 * time.Minute).Unix()}), "")

	m := testMonitor(store, &countingNav{})
	var signIns atomic.Int32
	m.OnWarning = func() bool { return true }
	m.SignIn = func(ctx context.Context) error {
		signIns.Add(1)
		store.SetTokens(tokenWith(t, map[string]any{"exp": time.Now().Add(time.Hour).Unix()}), "")
		return nil
	}

	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool {
		return signIns.Load() >= 1
	}, time.Second, 5*time.Millisecond)

	// Con el token renovado el monitor vuelve a vigilar y no insiste.
	require.Eventually(t, func() bool {
		return m.State() == session.StateWatching
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), signIns.Load())
}

func TestRenewalRearmsWarningCycle(t *testing.T) {
	store := session.NewTokenStore(storagemem.New())
	base := time.Now()
	var clock atomic.Int64
	clock.Store(base.Unix())
	now := func() time.Time { return time.Unix(clock.Load(), 0) }

	store.SetTokens(tokenWith(t, map[string]any{"exp": base.Add(2 * time.Minute).Unix()}), "")

	m := session.NewMonitor(session.MonitorConfig{
		WarnThreshold: 5 * time.Minute,
		PollInterval:  10 * time.Millisecond,
		LogoutDelay:   10 * time.Millisecond,
		Now:           now,
	}, store, &countingNav{}, nil)

	var warnings atomic.Int32
	m.OnWarning = func() bool {
		warnings.Add(1)
		return true
	}
	m.SignIn = func(ctx context.Context) error {
		store.SetTokens(tokenWith(t, map[string]any{"exp": now().Add(time.Hour).Unix()}), "")
		return nil
	}

	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool {
		return warnings.Load() == 1 && m.State() == session.StateWatching
	}, time.Second, 5*time.Millisecond)

	// El token renovado también se acerca a expirar: segundo aviso.
	clock.Store(base.Add(57 * time.Minute).Unix())
	require.Eventually(t, func() bool {
		return warnings.Load() == 2
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return m.State() == session.StateWatching
	}, time.Second, 5*time.Millisecond)
	assert.True(t, store.Present())
}

func TestWarningDeclinedStaysWarned(t *testing.T) {
	store := session.NewTokenStore(storagemem.New())
	store.SetTokens(tokenWith(t, map[string]any{"exp": time.Now().Add(2 * time.Minute).Unix()}), "")

	m := testMonitor(store, &countingNav{})
	var warnings atomic.Int32
	m.OnWarning = func() bool {
		warnings.Add(1)
		return false
	}

	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool {
		return m.State() == session.StateWarning
	}, time.Second, 5*time.Millisecond)

	// El warning no se repite en cada poll.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), warnings.Load())
}

func TestStartStopIdempotent(t *testing.T) {
	store := session.NewTokenStore(storagemem.New())
	store.SetTokens(tokenWith(t, map[string]any{"exp": time.Now().Add(time.Hour).Unix()}), "")

	m := testMonitor(store, &countingNav{})
	ctx := context.Background()

	m.Start(ctx)
	m.Start(ctx) // segundo Start: no-op, un solo timer
	assert.Equal(t, session.StateWatching, m.State())

	m.Stop()
	m.Stop() // segundo Stop: no-op
	assert.Equal(t, session.StateIdle, m.State())

	// Ciclo fresco después de stop.
	m.Start(ctx)
	assert.Equal(t, session.StateWatching, m.State())
	m.Stop()
}
