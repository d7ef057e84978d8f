package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// callbackResult es lo que devuelve el endpoint loopback.
type callbackResult struct {
	code string
	err  error
}

// runCodeFlow corre un authorization-code flow completo: levanta el
// servidor loopback, abre el navegador en authBase y espera el callback
// con el code, que intercambia por tokens.
//
// authBase distingue el flujo interactivo (authorization endpoint) del
// redirect de sign-in inicial (página de login hosteada); ambos terminan
// en el mismo callback.
func (a *Adapter) runCodeFlow(ctx context.Context, authBase string) (*tokenResponse, error) {
	if authBase == "" {
		return nil, errors.New("auth endpoint vacío")
	}

	state := uuid.NewString()
	nonce := uuid.NewString()
	redirectURI := "http://" + a.cfg.ListenAddr + "/callback"

	authURL, err := buildAuthURL(authBase, a.cfg.ClientID, redirectURI, a.cfg.Scopes, state, nonce)
	if err != nil {
		return nil, err
	}

	results := make(chan callbackResult, 1)
	deliver := func(res callbackResult) {
		select {
		case results <- res:
		default:
		}
	}
	r := chi.NewRouter()
	r.Get("/callback", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			deliver(callbackResult{err: errors.New("state mismatch")})
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, e, http.StatusBadRequest)
			deliver(callbackResult{err: fmt.Errorf("broker error: %s", e)})
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			deliver(callbackResult{err: errors.New("missing code")})
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body>Sesión iniciada. Podés cerrar esta pestaña.</body></html>")
		deliver(callbackResult{code: code})
	})

	srv := &http.Server{Addr: a.cfg.ListenAddr, Handler: r}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	if a.OpenBrowser != nil {
		if err := a.OpenBrowser(authURL); err != nil {
			return nil, fmt.Errorf("abrir navegador: %w", err)
		}
	} else {
		a.log.Info("abrí esta URL para iniciar sesión", zap.String("url", authURL))
	}

	var res callbackResult
	select {
	case res = <-results:
	case err := <-serveErr:
		return nil, fmt.Errorf("loopback server: %w", err)
	case <-time.After(a.cfg.FlowTimeout):
		return nil, errors.New("timeout esperando el callback")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", res.code)
	form.Set("client_id", a.cfg.ClientID)
	form.Set("redirect_uri", redirectURI)
	return a.postToken(ctx, form)
}

func buildAuthURL(base, clientID, redirectURI string, scopes []string, state, nonce string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("auth endpoint inválido: %w", err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", clientID)
	q.Set("redirect_uri", redirectURI)
	if len(scopes) > 0 {
		q.Set("scope", strings.Join(scopes, " "))
	}
	q.Set("state", state)
	q.Set("nonce", nonce)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
