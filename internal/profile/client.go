// Package profile es el cliente del endpoint de perfil del backend, la
// fuente autoritativa de rol. Distingue "no autorizado" (la sesión local
// debe limpiarse) de "no disponible" (transitorio, la sesión se conserva).
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrUnauthorized: el backend respondió 401/403. Es la señal explícita
	// de sesión inválida: el caller limpia el estado local.
	ErrUnauthorized = errors.New("profile: unauthorized")

	// ErrUnavailable: error de transporte o 5xx. No es evidencia de
	// credenciales inválidas: el caller conserva la sesión.
	ErrUnavailable = errors.New("profile: unavailable")
)

// Profile es la respuesta del endpoint de perfil.
type Profile struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch trae el perfil del usuario autenticado con el bearer dado.
func (c *Client) Fetch(ctx context.Context, bearer string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/profile", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode/100 == 5:
		return nil, fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode/100 != 2:
		return nil, fmt.Errorf("profile: http %d", resp.StatusCode)
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("profile: decode: %w", err)
	}
	return &p, nil
}
