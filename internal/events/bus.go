// Package events es el stream de eventos del broker de identidad:
// cuentas agregadas/quitadas, tokens renovados, estado de interacción.
// Los consumidores DEBEN desuscribirse al desmontar su vista; un listener
// filtrado sobrevive navegaciones y procesa eventos de una sesión ajena.
package events

import "sync"

// Kind identifica el tipo de evento.
type Kind string

const (
	KindAccountAdded      Kind = "account_added"
	KindAccountRemoved    Kind = "account_removed"
	KindTokenRenewed      Kind = "token_renewed"
	KindInteractionStatus Kind = "interaction_status"
)

// Event es un evento del broker. Payload es opcional según el Kind
// (ej: el nuevo access token en KindTokenRenewed).
type Event struct {
	Kind    Kind
	Payload string
}

// Bus es un pub/sub mínimo. Publish nunca bloquea: un suscriptor lento
// pierde eventos en vez de frenar al publicador.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: map[int]chan Event{}}
}

// Subscribe devuelve un canal de eventos y la función de desuscripción.
// La desuscripción es idempotente y cierra el canal.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, 16)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

// Publish entrega el evento a todos los suscriptores sin bloquear.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
