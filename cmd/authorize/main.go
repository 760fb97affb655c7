// authorize runs the one-time Google Drive authorization and writes the token
// cache, so the server can later start unattended. It then lists the slot
// folder as a smoke test.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	_ "github.com/joho/godotenv/autoload"
	"github.com/pterm/pterm"

	"github.com/1ureka/drivetun/internal/auth"
	"github.com/1ureka/drivetun/internal/config"
	"github.com/1ureka/drivetun/internal/storage/gdrive"
	"github.com/1ureka/drivetun/internal/util"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	configPath := flag.String("config", "", "Settings file (default ./settings.json when present)")
	force := flag.Bool("force", false, "Discard the cached token and authorize again")
	flag.Parse()

	settings, err := config.Load(*configPath)
	if err != nil {
		util.LogError("failed to load settings: %v", err)
		os.Exit(1)
	}

	if err := run(ctx, settings, *force); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, s *config.Settings, force bool) error {
	if force {
		if err := os.Remove(s.Storage.TokenFile); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	cfg, err := auth.LoadConfig(s.Storage.SecretFile)
	if err != nil {
		return err
	}
	src, err := auth.NewSource(ctx, cfg, s.Storage.TokenFile, auth.TerminalPrompter)
	if err != nil {
		return err
	}
	if _, err := src.ValidToken(); err != nil {
		return err
	}
	util.LogSuccess("token saved to %s", s.Storage.TokenFile)

	if s.FolderID == "" {
		return nil
	}

	store, err := gdrive.New(ctx, src, s.StorageTimeout())
	if err != nil {
		return err
	}
	objs, err := store.ListChildren(ctx, s.FolderID)
	if err != nil {
		return err
	}

	data := pterm.TableData{{"#", "Name", "ID"}}
	for i, o := range objs {
		data = append(data, []string{pterm.Sprint(i), o.Name, o.ID})
	}
	util.LogInfo("folder %s holds %d object(s)", s.FolderID, len(objs))
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
