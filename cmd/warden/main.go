package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/The-Noona-Project/noona-warden/pkg/api"
	"github.com/The-Noona-Project/noona-warden/pkg/catalog"
	"github.com/The-Noona-Project/noona-warden/pkg/engine"
	"github.com/The-Noona-Project/noona-warden/pkg/history"
	"github.com/The-Noona-Project/noona-warden/pkg/install"
	"github.com/The-Noona-Project/noona-warden/pkg/log"
	"github.com/The-Noona-Project/noona-warden/pkg/metrics"
	"github.com/The-Noona-Project/noona-warden/pkg/runtime"
	"github.com/The-Noona-Project/noona-warden/pkg/wizard"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const (
	defaultAPIPort        = "4001"
	vaultStorePath        = "/v1/storage"
	engineShutdownTimeout = 30 * time.Second
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden - Noona's container control plane",
	Long: `Warden bootstraps and supervises the Noona service stack on a local
Docker-compatible runtime: it resolves a runtime endpoint, installs the
service catalog in dependency order, tracks per-service history and
drives the setup wizard state.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Warden version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("port", "", "API listen port (default $WARDEN_API_PORT or 4001)")
	serveCmd.Flags().String("runtime-endpoint", "", "container runtime endpoint, tried before the platform defaults")
	serveCmd.Flags().String("vault-url", "", "comma-separated Noona vault base URLs (default $NOONA_VAULT_URL)")
	serveCmd.Flags().String("vault-token", "", "bearer token for the vault storage endpoint (default $NOONA_VAULT_TOKEN)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control-plane API server",
	Long: `Start the Warden control plane: connect to the container runtime,
load the service catalog and serve the HTTP API until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.InitFromDebugEnv(os.Getenv("DEBUG"))
		logger := log.WithComponent("warden")
		metrics.SetVersion(Version)

		port, _ := cmd.Flags().GetString("port")
		if port == "" {
			port = os.Getenv("WARDEN_API_PORT")
		}
		if port == "" {
			port = defaultAPIPort
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		endpoint, _ := cmd.Flags().GetString("runtime-endpoint")
		var endpoints []string
		if endpoint != "" {
			endpoints = append(endpoints, endpoint)
		}
		resolver := runtime.NewResolver(runtime.Options{Endpoints: endpoints})

		rt, err := resolver.Resolve(ctx)
		if err != nil {
			metrics.RegisterComponent("runtime", false, err.Error())
			return fmt.Errorf("failed to resolve container runtime: %w", err)
		}
		defer rt.Close()
		metrics.RegisterComponent("runtime", true, "connected to "+rt.Endpoint())

		cat, err := catalog.Load()
		if err != nil {
			metrics.RegisterComponent("catalog", false, err.Error())
			return fmt.Errorf("failed to load service catalog: %w", err)
		}
		cat.WithRuntime(rt)
		metrics.RegisterComponent("catalog", true, fmt.Sprintf("%d services", len(cat.Names())))

		hist := history.New()
		wiz := wizard.NewService(wizard.NewKVClient(vaultEndpoints(cmd), vaultToken(cmd)))
		eng := engine.New(engine.Options{
			Runtime:  rt,
			History:  hist,
			Resolver: resolver,
		})
		coordinator := install.NewCoordinator(install.Options{
			Catalog: cat,
			Engine:  eng,
			History: hist,
			Runtime: rt,
			Wizard:  wiz,
		})

		collector := metrics.NewCollector(rt)
		collector.Start()
		defer collector.Stop()

		metrics.RegisterComponent("api", true, "serving on :"+port)

		server := api.NewServer(api.Options{
			Catalog:     cat,
			Coordinator: coordinator,
			Engine:      eng,
			History:     hist,
			Wizard:      wiz,
		})

		logger.Info().Str("version", Version).Str("port", port).Msg("warden starting")
		if err := server.Start(ctx, ":"+port); err != nil {
			return fmt.Errorf("API server error: %w", err)
		}

		// Drained. Stop anything we started before exiting.
		logger.Info().Msg("shutting down managed services")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), engineShutdownTimeout)
		defer cancel()
		eng.ShutdownAll(shutdownCtx)

		logger.Info().Msg("shutdown complete")
		return nil
	},
}

// vaultEndpoints assembles candidate vault storage URLs: the flag or
// NOONA_VAULT_URL (comma-separated), then a host-service fallback when
// HOST_SERVICE_URL is set.
func vaultEndpoints(cmd *cobra.Command) []string {
	raw, _ := cmd.Flags().GetString("vault-url")
	if raw == "" {
		raw = os.Getenv("NOONA_VAULT_URL")
	}

	var urls []string
	for _, u := range strings.Split(raw, ",") {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		urls = append(urls, strings.TrimRight(u, "/")+vaultStorePath)
	}

	if host := strings.TrimRight(os.Getenv("HOST_SERVICE_URL"), "/"); host != "" {
		urls = append(urls, fmt.Sprintf("%s:3120%s", host, vaultStorePath))
	}
	if len(urls) == 0 {
		urls = []string{"http://noona-store:3120" + vaultStorePath}
	}
	return urls
}

func vaultToken(cmd *cobra.Command) string {
	token, _ := cmd.Flags().GetString("vault-token")
	if token != "" {
		return token
	}
	return os.Getenv("NOONA_VAULT_TOKEN")
}
