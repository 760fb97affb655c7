package app

import (
	"context"
	"fmt"

	"github.com/1ureka/drivetun/internal/auth"
	"github.com/1ureka/drivetun/internal/config"
	"github.com/1ureka/drivetun/internal/storage"
	"github.com/1ureka/drivetun/internal/storage/gdrive"
	"github.com/1ureka/drivetun/internal/storage/localfs"
	"github.com/1ureka/drivetun/internal/storage/memstore"
	"github.com/1ureka/drivetun/internal/util"
)

// openStore builds the configured storage backend. For Drive this loads the
// client secret, makes sure a usable token exists (running the interactive
// authorization when needed) and verifies it before any request is made.
func openStore(ctx context.Context, s *config.Settings, prompter auth.Prompter) (storage.Store, error) {
	switch s.Storage.Backend {
	case config.BackendGDrive:
		cfg, err := auth.LoadConfig(s.Storage.SecretFile)
		if err != nil {
			return nil, err
		}
		src, err := auth.NewSource(ctx, cfg, s.Storage.TokenFile, prompter)
		if err != nil {
			return nil, err
		}
		if _, err := src.ValidToken(); err != nil {
			return nil, fmt.Errorf("no valid access token: %w", err)
		}
		util.LogSuccess("Google Drive authorized")
		return gdrive.New(ctx, src, s.StorageTimeout())

	case config.BackendLocalFS:
		util.LogInfo("using directory %s as slot storage", s.FolderID)
		return localfs.New(s.FolderID), nil

	case config.BackendMemory:
		util.LogWarning("using in-memory slot storage, no client can read the downlink")
		return memstore.New(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", s.Storage.Backend)
}

// ConfigureLogging applies the log.* settings. The returned closer flushes
// the log file, if any.
func ConfigureLogging(s *config.Settings) func() {
	util.SetLevel(s.Log.Level)
	util.SetJSON(s.Log.Format == "json")
	f := util.SetLogFile(util.LogFile{
		Path:       s.Log.File,
		MaxSizeMB:  s.Log.MaxSizeMB,
		MaxBackups: s.Log.MaxBackups,
		MaxAgeDays: s.Log.MaxAgeDays,
		Compress:   s.Log.Compress,
	})
	return func() { f.Close() }
}
