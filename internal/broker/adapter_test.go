package broker_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapaeventos/authkit/internal/broker"
	"github.com/mapaeventos/authkit/internal/events"
	"github.com/mapaeventos/authkit/internal/session"
	storagemem "github.com/mapaeventos/authkit/internal/storage/memory"
)

func idToken(t *testing.T, sub string) string {
	t.Helper()
	header, _ := json.Marshal(map[string]any{"alg": "HS256", "typ": "JWT"})
	payload, err := json.Marshal(map[string]any{"sub": sub, "name": "Ana"})
	require.NoError(t, err)
	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(payload) + "." + enc.EncodeToString([]byte("s"))
}

// tokenEndpoint responde el grant recibido con un set de tokens fijo.
func tokenEndpoint(t *testing.T, id string, wantGrant string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if wantGrant != "" {
			assert.Equal(t, wantGrant, r.Form.Get("grant_type"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "acc-nuevo",
			"id_token":      id,
			"refresh_token": "rt-nuevo",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func newAdapter(t *testing.T, cfg broker.Config) (*broker.Adapter, *session.TokenStore, *events.Bus) {
	t.Helper()
	store := session.NewTokenStore(storagemem.New())
	bus := events.NewBus()
	return broker.New(cfg, store, bus, nil), store, bus
}

func TestSilentRefreshHappyPath(t *testing.T) {
	srv := tokenEndpoint(t, idToken(t, "u1"), "refresh_token")
	a, store, bus := newAdapter(t, broker.Config{TokenEndpoint: srv.URL, ClientID: "spa"})
	store.Raw().Set("broker.account.refresh_token", "rt-viejo")

	ch, unsub := bus.Subscribe()
	defer unsub()

	require.NoError(t, a.AcquireToken(context.Background()))
	assert.Equal(t, "acc-nuevo", store.AccessToken())
	assert.NotEmpty(t, store.IDToken())

	select {
	case ev := <-ch:
		assert.Equal(t, events.KindTokenRenewed, ev.Kind)
		assert.Equal(t, "acc-nuevo", ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("sin evento de renovación")
	}

	// El refresh token rota y la cuenta queda cacheada.
	rt, _ := store.Raw().Get("broker.account.refresh_token")
	assert.Equal(t, "rt-nuevo", rt)
	assert.Equal(t, []string{"u1"}, a.Accounts())
}

func TestInteractiveFallbackWhenNoAccount(t *testing.T) {
	srv := tokenEndpoint(t, idToken(t, "u1"), "")
	addr := freeAddr(t)
	a, store, _ := newAdapter(t, broker.Config{
		AuthEndpoint:  "https://idp/authorize",
		TokenEndpoint: srv.URL,
		ClientID:      "spa",
		ListenAddr:    addr,
		FlowTimeout:   5 * time.Second,
	})

	// El "navegador": sigue el redirect de vuelta al loopback con el code.
	a.OpenBrowser = func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		state := u.Query().Get("state")
		go func() {
			cb := fmt.Sprintf("http://%s/callback?state=%s&code=c123", addr, url.QueryEscape(state))
			for i := 0; i < 50; i++ {
				if resp, err := http.Get(cb); err == nil {
					resp.Body.Close()
					return
				}
				time.Sleep(20 * time.Millisecond)
			}
		}()
		return nil
	}

	// Sin cuenta cacheada: silent falla y cae al interactivo.
	require.NoError(t, a.AcquireToken(context.Background()))
	assert.Equal(t, "acc-nuevo", store.AccessToken())
}

func TestAcquisitionExhaustedIsSoftFailure(t *testing.T) {
	addr := freeAddr(t)
	a, store, _ := newAdapter(t, broker.Config{
		AuthEndpoint:  "https://idp/authorize",
		TokenEndpoint: "http://127.0.0.1:1/token", // nadie escucha
		ClientID:      "spa",
		ListenAddr:    addr,
		FlowTimeout:   time.Second,
	})
	a.OpenBrowser = func(string) error { return fmt.Errorf("sin display") }

	err := a.AcquireToken(context.Background())
	assert.ErrorIs(t, err, broker.ErrAcquisitionFailed)
	assert.False(t, store.Present())
}

func TestSignOutClearsAndPublishes(t *testing.T) {
	a, store, bus := newAdapter(t, broker.Config{})
	store.SetTokens("acc", idToken(t, "u1"))
	store.Raw().Set("broker.account.current", "u1")

	ch, unsub := bus.Subscribe()
	defer unsub()

	a.SignOut()
	assert.False(t, store.Present())
	assert.Empty(t, a.Accounts())

	select {
	case ev := <-ch:
		assert.Equal(t, events.KindAccountRemoved, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("sin evento de cuenta removida")
	}
}

func TestAuthenticatedConsultsBothSources(t *testing.T) {
	a, store, _ := newAdapter(t, broker.Config{})
	assert.False(t, a.Authenticated())

	// Token crudo sin cuenta del broker (cache del broker borrada).
	store.SetTokens("acc", "")
	assert.True(t, a.Authenticated())
	store.ClearAll()

	// Cuenta del broker sin tokens crudos.
	store.Raw().Set("broker.account.current", "u1")
	assert.True(t, a.Authenticated())
}
