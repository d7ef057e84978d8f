// Package broker orquesta los flujos de adquisición de tokens contra el
// identity broker externo: silent (refresh), interactivo (loopback +
// navegador) y redirect (página hosteada, solo sign-in inicial).
//
// Orden estricto y secuencial: nunca dos estrategias a la vez, nunca más
// de un prompt interactivo simultáneo.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mapaeventos/authkit/internal/events"
	"github.com/mapaeventos/authkit/internal/metrics"
	"github.com/mapaeventos/authkit/internal/session"
	"github.com/mapaeventos/authkit/internal/token"
)

// Claves internas del broker en el storage (se purgan en ClearAll).
const (
	keyRefreshToken   = "broker.account.refresh_token"
	keyCurrentAccount = "broker.account.current"
)

var (
	// ErrAcquisitionFailed: silent e interactivo agotados. El caller trata
	// la sesión como no autenticada; no es un error duro de UI.
	ErrAcquisitionFailed = errors.New("broker: token acquisition failed")

	// ErrNoAccount: no hay cuenta cacheada para el paso silent.
	ErrNoAccount = errors.New("broker: no cached account")
)

// Config del broker.
type Config struct {
	// AuthEndpoint es el authorization endpoint del broker.
	AuthEndpoint string
	// TokenEndpoint es el token endpoint del broker.
	TokenEndpoint string
	ClientID      string
	Scopes        []string

	// ListenAddr es la dirección loopback donde se recibe el callback
	// del flujo interactivo. Ej: "127.0.0.1:8910".
	ListenAddr string

	// SignInURL es la página de login hosteada del provider, usada como
	// fallback estático cuando el flujo interactivo no puede invocarse.
	SignInURL string

	// FlowTimeout: máximo que se espera el callback interactivo.
	// Default: 5m.
	FlowTimeout time.Duration
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Adapter implementa las tres estrategias de adquisición y normaliza los
// resultados en el TokenStore.
type Adapter struct {
	cfg   Config
	store *session.TokenStore
	bus   *events.Bus
	http  *http.Client
	log   *zap.Logger

	// OpenBrowser abre una URL en el navegador del usuario. Inyectable;
	// si es nil el flujo interactivo solo imprime la URL en el log.
	OpenBrowser func(url string) error

	// interactiveMu garantiza a lo sumo un prompt interactivo a la vez.
	interactiveMu sync.Mutex
}

func New(cfg Config, store *session.TokenStore, bus *events.Bus, log *zap.Logger) *Adapter {
	if cfg.FlowTimeout <= 0 {
		cfg.FlowTimeout = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		cfg:   cfg,
		store: store,
		bus:   bus,
		http:  &http.Client{Timeout: 10 * time.Second},
		log:   log,
	}
}

// AcquireToken corre silent → interactivo, en ese orden, cada paso solo
// si el anterior falló. Redirect nunca se usa como fallback de refresh:
// navegaría al usuario fuera de la vista actual en medio de un refresh
// de fondo.
//
// En éxito escribe los tokens y publica el evento de renovación. En
// agotamiento loguea y devuelve ErrAcquisitionFailed: la UI degrada a
// "no autenticado" en vez de mostrar un error duro.
func (a *Adapter) AcquireToken(ctx context.Context) error {
	if err := a.acquireSilent(ctx); err == nil {
		metrics.TokenRenewals.WithLabelValues("silent").Inc()
		return nil
	} else {
		a.log.Debug("silent falló, probando interactivo", zap.Error(err))
	}

	if err := a.acquireInteractive(ctx); err == nil {
		metrics.TokenRenewals.WithLabelValues("interactive").Inc()
		return nil
	} else {
		a.log.Warn("adquisición de token agotada", zap.Error(err))
	}

	metrics.TokenRenewals.WithLabelValues("failed").Inc()
	return ErrAcquisitionFailed
}

// SignIn corre el flujo redirect de página completa contra la página
// hosteada del provider. Solo para el sign-in inicial.
func (a *Adapter) SignIn(ctx context.Context) error {
	tr, err := a.runCodeFlow(ctx, a.cfg.SignInURL)
	if err != nil {
		return fmt.Errorf("broker: sign-in: %w", err)
	}
	a.persist(tr)
	a.bus.Publish(events.Event{Kind: events.KindAccountAdded, Payload: a.currentAccount()})
	return nil
}

// SignOut limpia tokens, perfil cacheado y claves del broker, y publica
// la remoción de cuenta.
func (a *Adapter) SignOut() {
	a.store.ClearAll()
	a.bus.Publish(events.Event{Kind: events.KindAccountRemoved})
}

// Accounts devuelve las cuentas que el broker conoce. Puede estar en
// desacuerdo con los tokens crudos del storage (cache del broker borrada
// pero token persistido, o viceversa).
func (a *Adapter) Accounts() []string {
	if acc := a.currentAccount(); acc != "" {
		return []string{acc}
	}
	return nil
}

// Authenticated consulta ambas fuentes: tokens presentes o cuenta del
// broker. Es el check que usa la barra de navegación.
func (a *Adapter) Authenticated() bool {
	return a.store.Present() || len(a.Accounts()) > 0
}

// acquireSilent renueva con el refresh token de la cuenta cacheada.
// Camino rápido, sin interacción.
func (a *Adapter) acquireSilent(ctx context.Context) error {
	rt, ok := a.store.Raw().Get(keyRefreshToken)
	if !ok || rt == "" {
		return ErrNoAccount
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", rt)
	form.Set("client_id", a.cfg.ClientID)
	if len(a.cfg.Scopes) > 0 {
		form.Set("scope", strings.Join(a.cfg.Scopes, " "))
	}

	tr, err := a.postToken(ctx, form)
	if err != nil {
		return err
	}
	a.persist(tr)
	a.bus.Publish(events.Event{Kind: events.KindTokenRenewed, Payload: tr.AccessToken})
	return nil
}

// acquireInteractive corre el flujo de authorization code con servidor
// loopback y navegador: el único paso de refresh que muestra un prompt.
func (a *Adapter) acquireInteractive(ctx context.Context) error {
	a.interactiveMu.Lock()
	defer a.interactiveMu.Unlock()

	a.bus.Publish(events.Event{Kind: events.KindInteractionStatus, Payload: "started"})
	defer a.bus.Publish(events.Event{Kind: events.KindInteractionStatus, Payload: "none"})

	tr, err := a.runCodeFlow(ctx, a.cfg.AuthEndpoint)
	if err != nil {
		return err
	}
	a.persist(tr)
	a.bus.Publish(events.Event{Kind: events.KindTokenRenewed, Payload: tr.AccessToken})
	return nil
}

// persist normaliza la respuesta del broker en el TokenStore.
func (a *Adapter) persist(tr *tokenResponse) {
	a.store.SetTokens(tr.AccessToken, tr.IDToken)
	if tr.RefreshToken != "" {
		a.store.Raw().Set(keyRefreshToken, tr.RefreshToken)
	}
	if sub := token.String(token.Decode(tr.IDToken), "sub"); sub != "" {
		a.store.Raw().Set(keyCurrentAccount, sub)
	}
}

func (a *Adapter) postToken(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", a.cfg.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var b struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&b)
		return nil, fmt.Errorf("token http %d: %s %s", resp.StatusCode, b.Error, b.ErrorDescription)
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

func (a *Adapter) currentAccount() string {
	v, _ := a.store.Raw().Get(keyCurrentAccount)
	return v
}
