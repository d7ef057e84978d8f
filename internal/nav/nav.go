// Package nav define el puerto de navegación: una interface para que
// guards y monitor puedan redirigir al usuario sin acoplarse a una UI
// concreta (CLI, webview, tests).
package nav

// Navigator redirige al usuario dentro o fuera de la aplicación.
type Navigator interface {
	// NavigateTo navega a una ruta interna de la aplicación.
	NavigateTo(path string)
	// NavigateExternal navega a una URL absoluta externa (ej: la página
	// de login hosteada del identity provider).
	NavigateExternal(url string)
}

// Funcs adapta dos funciones a Navigator.
type Funcs struct {
	To       func(path string)
	External func(url string)
}

func (f Funcs) NavigateTo(path string) {
	if f.To != nil {
		f.To(path)
	}
}

func (f Funcs) NavigateExternal(url string) {
	if f.External != nil {
		f.External(url)
	}
}
