// Package guard implementa los dos gates de navegación: autenticación y
// rol. Son predicados con efecto (redirigen al denegar) y son gating de
// conveniencia de UI, no un límite de seguridad: la autorización real la
// hace el backend en cada request.
package guard

import (
	"context"

	"go.uber.org/zap"

	"github.com/mapaeventos/authkit/internal/metrics"
	"github.com/mapaeventos/authkit/internal/nav"
	"github.com/mapaeventos/authkit/internal/roles"
	"github.com/mapaeventos/authkit/internal/session"
)

// Route es la metadata de una ruta protegida. Roles vacío significa
// "cualquier usuario autenticado".
type Route struct {
	Path  string
	Roles []string
}

// SignInStarter es lo que el auth guard necesita del broker.
type SignInStarter interface {
	SignIn(ctx context.Context) error
}

// RoleResolver es lo que el role guard necesita del resolver.
type RoleResolver interface {
	ResolveAsync(ctx context.Context) (string, error)
}

// AuthGuard permite la navegación si hay sesión presente; si no, dispara
// el sign-in del broker, con fallback a la URL estática de login cuando
// el broker mismo no puede invocarse (ej: contexto no seguro).
type AuthGuard struct {
	store     *session.TokenStore
	broker    SignInStarter
	nav       nav.Navigator
	signInURL string
	log       *zap.Logger
}

func NewAuthGuard(store *session.TokenStore, broker SignInStarter, navigator nav.Navigator, signInURL string, log *zap.Logger) *AuthGuard {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthGuard{store: store, broker: broker, nav: navigator, signInURL: signInURL, log: log}
}

// Allow devuelve true si hay al menos un token. La lectura del storage es
// un snapshot válido solo para este paso síncrono: un sign-out agendado
// puede limpiarlo inmediatamente después.
func (g *AuthGuard) Allow(ctx context.Context) bool {
	if g.store.Present() {
		return true
	}
	metrics.GuardDenials.WithLabelValues("auth").Inc()

	if g.broker != nil {
		if err := g.broker.SignIn(ctx); err == nil {
			return false
		} else {
			g.log.Warn("sign-in del broker falló, fallback a URL estática", zap.Error(err))
		}
	}
	if g.nav != nil && g.signInURL != "" {
		g.nav.NavigateExternal(g.signInURL)
	}
	return false
}

// RoleGuard compara el rol resuelto (cadena backend-first) contra la
// lista de la ruta, case-insensitive.
type RoleGuard struct {
	resolver RoleResolver
	nav      nav.Navigator
	log      *zap.Logger
}

func NewRoleGuard(resolver RoleResolver, navigator nav.Navigator, log *zap.Logger) *RoleGuard {
	if log == nil {
		log = zap.NewNop()
	}
	return &RoleGuard{resolver: resolver, nav: navigator, log: log}
}

// Allow devuelve true si la ruta no exige roles, o si el rol resuelto
// está en la lista. Ante un fallo de resolución deniega (fail closed):
// no saber el rol no es motivo para dejar pasar.
func (g *RoleGuard) Allow(ctx context.Context, route Route) bool {
	if len(route.Roles) == 0 {
		return true
	}

	role, err := g.resolver.ResolveAsync(ctx)
	if err != nil {
		g.log.Warn("resolución de rol falló, denegando", zap.String("path", route.Path), zap.Error(err))
		metrics.GuardDenials.WithLabelValues("role").Inc()
		if g.nav != nil {
			g.nav.NavigateTo("/")
		}
		return false
	}

	if !roles.Is(role, route.Roles...) {
		metrics.GuardDenials.WithLabelValues("role").Inc()
		if g.nav != nil {
			g.nav.NavigateTo("/")
		}
		return false
	}
	return true
}
