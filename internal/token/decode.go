// Package token decodifica el payload de un JWT compacto sin validar la
// firma. Se usa para hints de UI (nombre, rol, exp), nunca para
// decisiones de confianza; la autorización real vive en el backend.
package token

import (
	"encoding/json"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Claves candidatas para el nombre visible, en orden de preferencia.
var displayNameClaims = []string{"name", "given_name", "preferred_username", "email"}

// Claves candidatas para el rol.
var roleClaims = []string{"extension_Roles", "role"}

// Decode parsea el segmento de claims de un token compacto y lo devuelve
// como mapa. Ante cualquier input malformado (cantidad de segmentos,
// base64 inválido, JSON inválido) devuelve un mapa vacío: nunca error,
// nunca panic. El caller no puede distinguir "sin claims" de "token roto",
// y no necesita hacerlo.
func Decode(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	claims := jwtv5.MapClaims{}
	if _, _, err := jwtv5.NewParser().ParseUnverified(raw, claims); err != nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return out
}

// String devuelve el primer claim string no vacío entre keys.
func String(claims map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, _ := claims[k].(string); s != "" {
			return s
		}
	}
	return ""
}

// Expiry devuelve el instante de expiración del claim exp.
// ok=false si exp falta o no es numérico: la ausencia del claim no es
// evidencia de invalidez, y el caller debe tratarla como "sin información".
func Expiry(claims map[string]any) (time.Time, bool) {
	switch v := claims["exp"].(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.Unix(n, 0), true
		}
	}
	return time.Time{}, false
}

// DisplayName devuelve el mejor candidato a nombre visible, o "".
func DisplayName(claims map[string]any) string {
	return String(claims, displayNameClaims...)
}

// Role devuelve el claim de rol (extension_Roles o role), o "".
// Acepta string o lista de strings (se toma la primera).
func Role(claims map[string]any) string {
	for _, k := range roleClaims {
		switch v := claims[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case []any:
			for _, e := range v {
				if s, _ := e.(string); s != "" {
					return s
				}
			}
		}
	}
	return ""
}
