// Package metrics define los contadores Prometheus del toolkit en un
// paquete standalone para evitar ciclos de import entre broker, session
// y guards.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TokenRenewals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_token_renewals_total",
		Help: "Adquisiciones de token por resultado (silent|interactive|failed)",
	}, []string{"outcome"})

	SessionExpirations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authkit_session_expirations_total",
		Help: "Sesiones cerradas por expiración del token",
	})

	GuardDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_guard_denials_total",
		Help: "Navegaciones denegadas por guard (auth|role)",
	}, []string{"guard"})
)

// Register registra los contadores en el registry dado (o el default si
// es nil). Re-registrar es tolerado.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{TokenRenewals, SessionExpirations, GuardDenials} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
