package memory

import (
	gocache "github.com/patrickmn/go-cache"
)

// Store implementa storage.Store sobre go-cache sin expiración:
// los tokens se invalidan por claim, no por TTL del cache.
type Store struct{ c *gocache.Cache }

func New() *Store {
	return &Store{c: gocache.New(gocache.NoExpiration, 0)}
}

func (m *Store) Get(k string) (string, bool) {
	v, ok := m.c.Get(k)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, true
}

func (m *Store) Set(k, v string) { m.c.Set(k, v, gocache.NoExpiration) }
func (m *Store) Remove(k string) { m.c.Delete(k) }

func (m *Store) Keys() []string {
	items := m.c.Items()
	out := make([]string, 0, len(items))
	for k := range items {
		out = append(out, k)
	}
	return out
}

func (m *Store) Clear() { m.c.Flush() }
