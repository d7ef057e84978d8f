// Package roles resuelve el rol efectivo del usuario con una cadena de
// fallbacks: backend autoritativo → claims del id token → perfil cacheado
// → rol por defecto. La resolución nunca falla hacia arriba: siempre hay
// un rol, aunque sea el genérico.
package roles

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mapaeventos/authkit/internal/profile"
	"github.com/mapaeventos/authkit/internal/session"
	"github.com/mapaeventos/authkit/internal/token"
)

// Roles conocidos de la aplicación. La comparación es siempre
// case-insensitive (ver Is).
const (
	RoleAdministrador = "administrador"
	RoleProductor     = "productor"
	RoleCliente       = "cliente"

	// RoleDefault es el piso de la cadena: nunca se devuelve vacío.
	RoleDefault = "Usuario"
)

// ProfileFetcher es lo que el resolver necesita del cliente de perfil.
type ProfileFetcher interface {
	Fetch(ctx context.Context, bearer string) (*profile.Profile, error)
}

type Resolver struct {
	profiles ProfileFetcher
	store    *session.TokenStore
	sf       singleflight.Group
	log      *zap.Logger
}

func NewResolver(profiles ProfileFetcher, store *session.TokenStore, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{profiles: profiles, store: store, log: log}
}

// ResolveFromCache resuelve el rol sin tocar la red: claims del token,
// después el blob de perfil cacheado, después el default. Síncrono.
func (r *Resolver) ResolveFromCache() string {
	tok := r.store.IDToken()
	if tok == "" {
		tok = r.store.AccessToken()
	}
	if role := token.Role(token.Decode(tok)); role != "" {
		return role
	}

	if blob, ok := r.store.UserInfo(); ok && blob != "" {
		var p struct {
			Role string `json:"role"`
		}
		// Un blob corrupto se ignora y se sigue al default.
		if err := json.Unmarshal([]byte(blob), &p); err == nil && p.Role != "" {
			return p.Role
		}
	}
	return RoleDefault
}

// ResolveAsync corre la cadena completa, backend primero. Si el backend
// responde con rol, ese rol gana sin importar qué digan los claims.
//
// Siempre devuelve un rol no vacío. El error acompaña al rol cuando el
// paso autoritativo falló: el caller decide la política. Los guards
// deniegan (fail closed), el controller de la barra usa el rol
// best-effort (fail open para lo cosmético).
func (r *Resolver) ResolveAsync(ctx context.Context) (string, error) {
	bearer := r.store.AccessToken()
	if bearer == "" {
		return r.ResolveFromCache(), nil
	}

	// singleflight: N llamadas concurrentes con el mismo bearer hacen
	// un solo fetch.
	v, err, _ := r.sf.Do(bearer, func() (any, error) {
		return r.profiles.Fetch(ctx, bearer)
	})
	if err != nil {
		r.log.Warn("perfil no disponible, rol desde cache", zap.Error(err))
		return r.ResolveFromCache(), err
	}
	p, _ := v.(*profile.Profile)
	if p != nil && p.Role != "" {
		return p.Role, nil
	}
	return r.ResolveFromCache(), nil
}

// Is compara un rol contra una lista de aceptados, case-insensitive y
// tolerante a espacios.
func Is(role string, allowed ...string) bool {
	have := strings.ToLower(strings.TrimSpace(role))
	for _, a := range allowed {
		if have == strings.ToLower(strings.TrimSpace(a)) {
			return true
		}
	}
	return false
}
