// Package redis es el binding de storage para despliegues kiosko /
// multi-proceso donde varios procesos comparten una misma sesión.
package redis

import (
	"context"

	rdb "github.com/redis/go-redis/v9"
)

type Store struct {
	c      *rdb.Client
	prefix string
}

func New(addr string, db int, prefix string) *Store {
	return &Store{c: rdb.NewClient(&rdb.Options{Addr: addr, DB: db}), prefix: prefix}
}

func (r *Store) key(k string) string { return r.prefix + k }

func (r *Store) Get(k string) (string, bool) {
	v, err := r.c.Get(context.Background(), r.key(k)).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (r *Store) Set(k, v string) {
	_ = r.c.Set(context.Background(), r.key(k), v, 0).Err()
}

func (r *Store) Remove(k string) {
	_ = r.c.Del(context.Background(), r.key(k)).Err()
}

func (r *Store) Keys() []string {
	keys, err := r.c.Keys(context.Background(), r.prefix+"*").Result()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k[len(r.prefix):])
	}
	return out
}

func (r *Store) Clear() {
	for _, k := range r.Keys() {
		r.Remove(k)
	}
}
