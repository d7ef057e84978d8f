package token_test

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapaeventos/authkit/internal/token"
)

// makeToken arma un JWT compacto sin firmar con las claims dadas.
func makeToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	header, err := json.Marshal(map[string]any{"alg": "HS256", "typ": "JWT"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(payload) + "." + enc.EncodeToString([]byte("sig"))
}

func TestDecodeMalformedNeverPanics(t *testing.T) {
	cases := map[string]string{
		"vacío":               "",
		"sin puntos":          "nonesuch",
		"dos segmentos":       "aaa.bbb",
		"cuatro segmentos":    "a.b.c.d",
		"base64 inválido":     "!!!.@@@.###",
		"payload no JSON":     "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte("no es json")) + ".x",
		"payload JSON escalar": "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(`"plano"`)) + ".x",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			got := token.Decode(raw)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestDecodeValidToken(t *testing.T) {
	raw := makeToken(t, map[string]any{
		"sub":  "user-1",
		"name": "Ana Pérez",
		"exp":  float64(1900000000),
	})
	claims := token.Decode(raw)
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, "Ana Pérez", claims["name"])
}

func TestExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	claims := token.Decode(makeToken(t, map[string]any{"exp": exp}))
	got, ok := token.Expiry(claims)
	require.True(t, ok)
	assert.Equal(t, exp, got.Unix())

	// Sin exp: no hay información, no un token inválido.
	_, ok = token.Expiry(token.Decode(makeToken(t, map[string]any{"sub": "x"})))
	assert.False(t, ok)

	// exp no numérico se trata como ausente.
	_, ok = token.Expiry(token.Decode(makeToken(t, map[string]any{"exp": "mañana"})))
	assert.False(t, ok)
}

func TestDisplayNameFallbackOrder(t *testing.T) {
	cases := []struct {
		claims map[string]any
		want   string
	}{
		{map[string]any{"name": "Ana", "email": "a@e.com"}, "Ana"},
		{map[string]any{"given_name": "Ana"}, "Ana"},
		{map[string]any{"preferred_username": "anap"}, "anap"},
		{map[string]any{"email": "a@e.com"}, "a@e.com"},
		{map[string]any{"sub": "u1"}, ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, token.DisplayName(token.Decode(makeToken(t, c.claims))))
	}
}

func TestRoleClaim(t *testing.T) {
	assert.Equal(t, "productor", token.Role(token.Decode(makeToken(t, map[string]any{"extension_Roles": "productor"}))))
	assert.Equal(t, "cliente", token.Role(token.Decode(makeToken(t, map[string]any{"role": "cliente"}))))
	// extension_Roles gana sobre role.
	assert.Equal(t, "administrador", token.Role(token.Decode(makeToken(t, map[string]any{
		"extension_Roles": "administrador",
		"role":            "cliente",
	}))))
	// Lista: se toma la primera.
	assert.Equal(t, "productor", token.Role(token.Decode(makeToken(t, map[string]any{
		"role": []string{"productor", "cliente"},
	}))))
	assert.Equal(t, "", token.Role(token.Decode(makeToken(t, map[string]any{"sub": "x"}))))
}
