// Package storage define el puerto de almacenamiento clave-valor que usa
// el resto del toolkit: una interface inyectable con bindings de memoria,
// archivo y redis, para que los tests sustituyan un fake sin tocar disco.
package storage

// Store es un almacén clave-valor plano, sin TTL: los tokens expiran por
// su claim exp, no por el storage.
type Store interface {
	Get(key string) (value string, ok bool)
	Set(key, value string)
	Remove(key string)
	// Keys devuelve las claves presentes (para limpiezas por prefijo).
	Keys() []string
	// Clear elimina todas las claves.
	Clear()
}
