// Package session contiene el almacén tipado de tokens y el monitor de
// expiración de sesión.
package session

import "github.com/mapaeventos/authkit/internal/storage"

// Claves fijas del storage.
const (
	KeyAccessToken = "authkit.access_token"
	KeyIDToken     = "authkit.id_token"
	KeyUserInfo    = "authkit.user_info"
)

// brokerKeyPrefixes son claves internas del broker que se purgan en masa
// al cerrar sesión (estado de flows, cuentas cacheadas).
var brokerKeyPrefixes = []string{
	"broker.account.",
	"broker.flow.",
	"broker.interaction",
}

// TokenStore envuelve el storage con accessors tipados. Sin lógica más
// allá de get/set/clear: las decisiones viven en broker, monitor y guards.
type TokenStore struct {
	st storage.Store
}

func NewTokenStore(st storage.Store) *TokenStore {
	return &TokenStore{st: st}
}

// Raw expone el storage subyacente para claves ajenas a los tokens
// (ej: estado interno del broker, que comparte el mismo ClearAll).
func (t *TokenStore) Raw() storage.Store { return t.st }

func (t *TokenStore) AccessToken() string {
	v, _ := t.st.Get(KeyAccessToken)
	return v
}

func (t *TokenStore) IDToken() string {
	v, _ := t.st.Get(KeyIDToken)
	return v
}

// SetTokens escribe el par access/id. Un token vacío no pisa el existente.
func (t *TokenStore) SetTokens(access, id string) {
	if access != "" {
		t.st.Set(KeyAccessToken, access)
	}
	if id != "" {
		t.st.Set(KeyIDToken, id)
	}
}

func (t *TokenStore) UserInfo() (string, bool) {
	return t.st.Get(KeyUserInfo)
}

func (t *TokenStore) SetUserInfo(blob string) {
	t.st.Set(KeyUserInfo, blob)
}

// Present indica si hay sesión: al menos un token no vacío.
func (t *TokenStore) Present() bool {
	return t.AccessToken() != "" || t.IDToken() != ""
}

// ClearAll elimina tokens, perfil cacheado y claves internas del broker
// en una sola operación. Invariante: nunca queda un perfil cacheado
// huérfano después de limpiar tokens.
func (t *TokenStore) ClearAll() {
	t.st.Remove(KeyAccessToken)
	t.st.Remove(KeyIDToken)
	t.st.Remove(KeyUserInfo)
	for _, k := range t.st.Keys() {
		for _, p := range brokerKeyPrefixes {
			if len(k) >= len(p) && k[:len(p)] == p {
				t.st.Remove(k)
				break
			}
		}
	}
}
