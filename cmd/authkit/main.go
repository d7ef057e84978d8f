// authkit: CLI para operar la sesión contra el identity broker.
// Subcomandos: login, logout, refresh, whoami, watch.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mapaeventos/authkit/internal/app"
	"github.com/mapaeventos/authkit/internal/config"
	"github.com/mapaeventos/authkit/internal/nav"
	"github.com/mapaeventos/authkit/internal/observability/logger"
	"github.com/mapaeventos/authkit/internal/token"
)

var cfgPath string

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "authkit",
		Short: "Sesión y autorización contra el identity broker",
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "ruta al YAML de configuración")

	root.AddCommand(loginCmd(), logoutCmd(), refreshCmd(), whoamiCmd(), watchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// build arma el container con un navigator de consola.
func build() (*app.Container, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, AppName: "authkit"})

	navigator := nav.Funcs{
		To:       func(path string) { fmt.Println("→ navegar a", path) },
		External: func(url string) { fmt.Println("→ abrir", url) },
	}
	c, err := app.New(cfg, navigator)
	if err != nil {
		return nil, err
	}
	c.Broker.OpenBrowser = openBrowser
	return c, nil
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Inicia sesión con el flujo redirect del broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer logger.Sync()
			c, err := build()
			if err != nil {
				return err
			}
			if err := c.Broker.SignIn(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("sesión iniciada")
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Cierra la sesión y limpia el storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer logger.Sync()
			c, err := build()
			if err != nil {
				return err
			}
			c.Broker.SignOut()
			fmt.Println("sesión cerrada")
			return nil
		},
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Renueva el token: silent primero, interactivo si hace falta",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer logger.Sync()
			c, err := build()
			if err != nil {
				return err
			}
			if err := c.Broker.AcquireToken(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("token renovado")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Muestra los claims del token y el rol resuelto",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer logger.Sync()
			c, err := build()
			if err != nil {
				return err
			}
			if !c.Store.Present() {
				return fmt.Errorf("no hay sesión; corré `authkit login`")
			}

			claims := token.Decode(c.Store.IDToken())
			if len(claims) == 0 {
				claims = token.Decode(c.Store.AccessToken())
			}
			b, _ := json.MarshalIndent(claims, "", "  ")
			fmt.Println(string(b))

			role, err := c.Roles.ResolveAsync(cmd.Context())
			if err != nil {
				logger.L().Warn("rol resuelto desde cache", zap.Error(err))
			}
			fmt.Println("rol:", role)
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Corre el monitor de expiración de sesión",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer logger.Sync()
			c, err := build()
			if err != nil {
				return err
			}

			c.Monitor.OnWarning = func() bool {
				fmt.Println("la sesión está por expirar; renovando...")
				return true
			}
			c.Monitor.OnExpired = func() {
				fmt.Println("la sesión expiró")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c.NavBar.Init(ctx, "")
			defer c.NavBar.Close()

			c.Monitor.Start(ctx)
			defer c.Monitor.Stop()

			<-ctx.Done()
			return nil
		},
	}
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
