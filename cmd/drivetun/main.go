// drivetun is the CLI entry point.
//
// This tool runs a point-to-point IP tunnel whose uplink travels over a TCP
// control connection while the downlink is batched into a rotating set of
// files in remote storage (Google Drive by default). The server only sends
// the index of each freshly written file; the client downloads it.
//
// It can be launched interactively (no -role) or non-interactively via CLI
// flags (-role, -config, -debug).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/pterm/pterm"

	"github.com/1ureka/drivetun/internal/app"
	"github.com/1ureka/drivetun/internal/config"
	"github.com/1ureka/drivetun/internal/util"
)

var version = "dev"

func main() {
	role := flag.String("role", "", "Role: server or client")
	configPath := flag.String("config", "", "Settings file (default ./settings.json when present)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := run(config.Role(*role), *configPath, *debugMode); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	util.LogInfo("successfully closed tunnel")
}

// run owns every deferred cleanup so main can exit with a status afterwards.
func run(role config.Role, configPath string, debug bool) error {
	// Root context, cancelled on Ctrl+C or SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pterm.Info.Println(fmt.Sprintf("drivetun v%s", version))
	pterm.Println()

	settings, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	closeLog := app.ConfigureLogging(settings)
	defer closeLog()
	if debug {
		util.EnableDebug()
	}

	if role == "" {
		role = askRole()
	}

	switch role {
	case config.RoleServer:
		return app.RunServer(ctx, settings, app.ServerOptions{})
	case config.RoleClient:
		return app.RunClient(ctx, settings, app.ClientOptions{})
	default:
		return fmt.Errorf("invalid -role %q: must be 'server' or 'client'", role)
	}
}

// askRole falls back to an interactive prompt when no -role flag is provided.
func askRole() config.Role {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Server: own the exit interface and write slots", "Client: connect and read slots"}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	if strings.HasPrefix(choice, "Server") {
		return config.RoleServer
	}
	return config.RoleClient
}
