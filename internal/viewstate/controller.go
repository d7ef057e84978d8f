// Package viewstate es el agregador de la barra de navegación: combina
// eventos del broker, presencia de tokens y el perfil del backend en un
// único view-state "¿está logueado / quién es / qué puede ver?".
package viewstate

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mapaeventos/authkit/internal/events"
	"github.com/mapaeventos/authkit/internal/nav"
	"github.com/mapaeventos/authkit/internal/profile"
	"github.com/mapaeventos/authkit/internal/roles"
	"github.com/mapaeventos/authkit/internal/session"
	"github.com/mapaeventos/authkit/internal/token"
)

// genericName es el nombre visible cuando no hay mejor candidato.
// Cosmético: acá se falla abierto, a diferencia de las capabilities.
const genericName = "Usuario"

// unauthorizedRedirectDelay es la ventana de mensaje antes de redirigir
// cuando el backend respondió 401/403.
const unauthorizedRedirectDelay = 1500 * time.Millisecond

// Capabilities son los cuatro flags de visibilidad derivados del rol.
// Cada uno falla cerrado: ante incertidumbre, false.
type Capabilities struct {
	AdminPanel   bool
	CreateEvents bool
	ManageEvents bool
	Reserve      bool
}

// State es el snapshot que consume la barra de navegación.
type State struct {
	LoggedIn    bool
	DisplayName string
	Caps        Capabilities
}

// Authenticator es lo que el controller necesita del broker.
type Authenticator interface {
	Authenticated() bool
}

// RoleResolver es la cadena backend-first del resolver.
type RoleResolver interface {
	ResolveAsync(ctx context.Context) (string, error)
}

// Controller mantiene el view-state de la barra. Init suscribe al bus
// por la vida de la vista; Close desuscribe, obligatorio: un listener
// filtrado sobrevive navegaciones.
type Controller struct {
	store    *session.TokenStore
	broker   Authenticator
	resolver RoleResolver
	bus      *events.Bus
	nav      nav.Navigator
	signPath string
	log      *zap.Logger

	mu    sync.Mutex
	state State
	// epoch identifica la identidad vigente; una completion async con
	// epoch viejo se descarta en vez de pisar estado ajeno.
	epoch string

	unsub func()
	wg    sync.WaitGroup
}

func NewController(store *session.TokenStore, broker Authenticator, resolver RoleResolver, bus *events.Bus, navigator nav.Navigator, signInPath string, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	if signInPath == "" {
		signInPath = "/login"
	}
	return &Controller{
		store:    store,
		broker:   broker,
		resolver: resolver,
		bus:      bus,
		nav:      navigator,
		signPath: signInPath,
		log:      log,
		epoch:    uuid.NewString(),
	}
}

// Init arranca el controller: consume un token embebido en el fragment
// de currentURL si lo hay (vuelta de un redirect), se suscribe al bus y
// computa el estado inicial.
func (c *Controller) Init(ctx context.Context, currentURL string) {
	if access, id := tokensFromFragment(currentURL); access != "" || id != "" {
		c.store.SetTokens(access, id)
		c.log.Debug("token consumido del fragment de la URL")
	}

	ch, unsub := c.bus.Subscribe()
	c.mu.Lock()
	c.unsub = unsub
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				c.handle(ctx, ev)
			}
		}
	}()

	c.refresh(ctx)
}

// Close desuscribe del bus y espera el loop de eventos.
func (c *Controller) Close() {
	c.mu.Lock()
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	c.wg.Wait()
}

// State devuelve el snapshot actual.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) handle(ctx context.Context, ev events.Event) {
	switch ev.Kind {
	case events.KindAccountAdded, events.KindTokenRenewed:
		c.refresh(ctx)
	case events.KindAccountRemoved:
		c.mu.Lock()
		c.epoch = uuid.NewString()
		c.state = State{}
		c.mu.Unlock()
	}
}

// refresh recomputa el view-state. La parte de red corre async y valida
// el epoch antes de escribir: un logout en el medio la vuelve irrelevante.
func (c *Controller) refresh(ctx context.Context) {
	authenticated := c.broker.Authenticated()

	c.mu.Lock()
	if !authenticated {
		c.epoch = uuid.NewString()
		c.state = State{}
		c.mu.Unlock()
		return
	}
	epoch := c.epoch
	c.state.LoggedIn = true
	c.state.DisplayName = c.cachedDisplayName()
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		role, err := c.resolver.ResolveAsync(ctx)
		if err != nil && errors.Is(err, profile.ErrUnauthorized) {
			c.sessionInvalidated(epoch)
			return
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.epoch != epoch {
			return
		}
		if err != nil {
			// Transitorio: se conserva la sesión; capabilities en false.
			c.state.Caps = Capabilities{}
			return
		}
		c.state.Caps = capabilitiesFor(role)
	}()
}

// sessionInvalidated es la secuencia para 401/403 del backend: limpiar
// estado local, avisar y redirigir tras la ventana de mensaje.
func (c *Controller) sessionInvalidated(epoch string) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.epoch = uuid.NewString()
	c.state = State{}
	c.mu.Unlock()

	c.log.Warn("backend respondió no autorizado, cerrando sesión local")
	c.store.ClearAll()
	navigator := c.nav
	path := c.signPath
	time.AfterFunc(unauthorizedRedirectDelay, func() {
		if navigator != nil {
			navigator.NavigateTo(path)
		}
	})
}

// cachedDisplayName saca el nombre visible de los claims del id token.
// Caller tiene el lock; solo lecturas del store, que es thread-safe.
func (c *Controller) cachedDisplayName() string {
	tok := c.store.IDToken()
	if tok == "" {
		tok = c.store.AccessToken()
	}
	if name := token.DisplayName(token.Decode(tok)); name != "" {
		return name
	}
	return genericName
}

// capabilitiesFor deriva los cuatro flags de visibilidad del rol.
func capabilitiesFor(role string) Capabilities {
	return Capabilities{
		AdminPanel:   roles.Is(role, roles.RoleAdministrador),
		CreateEvents: roles.Is(role, roles.RoleProductor, roles.RoleAdministrador),
		ManageEvents: roles.Is(role, roles.RoleProductor, roles.RoleAdministrador),
		Reserve:      roles.Is(role, roles.RoleCliente, roles.RoleAdministrador),
	}
}

// tokensFromFragment parsea access_token / id_token del fragment de una
// URL post-redirect (https://app/#id_token=...&access_token=...).
func tokensFromFragment(raw string) (access, id string) {
	if raw == "" {
		return "", ""
	}
	i := strings.IndexByte(raw, '#')
	if i < 0 || i == len(raw)-1 {
		return "", ""
	}
	vals, err := url.ParseQuery(raw[i+1:])
	if err != nil {
		return "", ""
	}
	return vals.Get("access_token"), vals.Get("id_token")
}
