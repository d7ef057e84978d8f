package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mapaeventos/authkit/internal/metrics"
	"github.com/mapaeventos/authkit/internal/nav"
	"github.com/mapaeventos/authkit/internal/token"
)

// State es el estado del monitor de sesión.
type State string

const (
	StateIdle     State = "idle"
	StateWatching State = "watching"
	StateWarning  State = "warning"
	StateExpired  State = "expired"
)

// MonitorConfig parametriza el monitor. Zero value usa los defaults.
type MonitorConfig struct {
	// WarnThreshold: tiempo restante bajo el cual se ofrece renovar.
	// Default: 5m.
	WarnThreshold time.Duration

	// PollInterval: período del chequeo recurrente. Default: 60s.
	PollInterval time.Duration

	// LogoutDelay: espera entre notificar la expiración y redirigir,
	// para que el mensaje alcance a verse. Default: 1s.
	LogoutDelay time.Duration

	// SignInPath: ruta interna de inicio de sesión. Default: "/login".
	SignInPath string

	// Now: reloj inyectable, hook para tests. Default: time.Now.
	Now func() time.Time
}

func (c *MonitorConfig) defaults() {
	if c.WarnThreshold <= 0 {
		c.WarnThreshold = 5 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	if c.LogoutDelay <= 0 {
		c.LogoutDelay = time.Second
	}
	if c.SignInPath == "" {
		c.SignInPath = "/login"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Monitor vigila la expiración del token presente en el TokenStore.
//
// Máquina de estados: idle → watching → warning → expired.
// Start y Stop son idempotentes: dos Start seguidos dejan exactamente un
// timer activo. expired es terminal para el ciclo actual; después de un
// nuevo sign-in el dueño hace Stop + Start para un ciclo fresco. Una
// renovación aceptada desde el warning vuelve sola a watching.
//
// El chequeo solo lee tokens, nunca los escribe (salvo el ClearAll de la
// secuencia de expiración), así puede solaparse con una adquisición en
// vuelo sin hazard.
type Monitor struct {
	cfg   MonitorConfig
	store *TokenStore
	nav   nav.Navigator
	log   *zap.Logger

	// OnWarning se invoca al entrar en warning; true = el usuario aceptó
	// renovar y se dispara SignIn. Opcional.
	OnWarning func() bool

	// OnExpired notifica al usuario antes del redirect. Opcional.
	OnExpired func()

	// SignIn dispara el flujo de sign-in completo (redirect del broker).
	// Opcional; se usa cuando el usuario acepta el warning.
	SignIn func(ctx context.Context) error

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

func NewMonitor(cfg MonitorConfig, store *TokenStore, navigator nav.Navigator, log *zap.Logger) *Monitor {
	cfg.defaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		cfg:   cfg,
		store: store,
		nav:   navigator,
		log:   log,
		state: StateIdle,
	}
}

// State devuelve el estado actual.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start evalúa el token una vez de inmediato y arma el chequeo
// recurrente. No-op si el monitor no está en idle.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return
	}
	m.state = StateWatching
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.check(ctx)

	go func() {
		t := time.NewTicker(m.cfg.PollInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.check(ctx)
			}
		}
	}()
}

// Stop cancela el chequeo recurrente y vuelve a idle. Idempotente.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.state = StateIdle
}

// check evalúa el token actual y aplica las transiciones.
func (m *Monitor) check(ctx context.Context) {
	m.mu.Lock()
	st := m.state
	m.mu.Unlock()
	if st != StateWatching && st != StateWarning {
		return
	}

	tok := m.store.AccessToken()
	if tok == "" {
		tok = m.store.IDToken()
	}
	if tok == "" {
		m.expire()
		return
	}

	exp, ok := token.Expiry(token.Decode(tok))
	if !ok {
		// Sin claim exp no hay evidencia de invalidez: seguimos vigilando.
		return
	}

	remaining := exp.Sub(m.cfg.Now())
	switch {
	case remaining <= 0:
		m.expire()
	case remaining <= m.cfg.WarnThreshold:
		m.warn(ctx, remaining)
	}
}

func (m *Monitor) warn(ctx context.Context, remaining time.Duration) {
	m.mu.Lock()
	if m.state != StateWatching {
		// Ya avisamos; el próximo check decide si pasa a expired.
		m.mu.Unlock()
		return
	}
	m.state = StateWarning
	m.mu.Unlock()

	m.log.Info("sesión por expirar", zap.Duration("remaining", remaining))
	if m.OnWarning != nil && m.OnWarning() && m.SignIn != nil {
		if err := m.SignIn(ctx); err != nil {
			m.log.Warn("sign-in desde warning falló", zap.Error(err))
			return
		}
		// Renovación exitosa: de vuelta a watching, así el token fresco
		// recibe su propio aviso cuando se acerque a expirar.
		m.mu.Lock()
		if m.state == StateWarning {
			m.state = StateWatching
		}
		m.mu.Unlock()
	}
}

// expire ejecuta la secuencia de cierre: limpiar storage, notificar,
// y tras LogoutDelay redirigir al sign-in. Una sola vez por ciclo.
func (m *Monitor) expire() {
	m.mu.Lock()
	if m.state == StateExpired {
		m.mu.Unlock()
		return
	}
	m.state = StateExpired
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()

	m.log.Info("sesión expirada, cerrando")
	metrics.SessionExpirations.Inc()
	m.store.ClearAll()
	if m.OnExpired != nil {
		m.OnExpired()
	}
	delay := m.cfg.LogoutDelay
	navigator := m.nav
	path := m.cfg.SignInPath
	time.AfterFunc(delay, func() {
		if navigator != nil {
			navigator.NavigateTo(path)
		}
	})
}
