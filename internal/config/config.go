// Package config holds the settings model shared by both roles and loads it
// from a JSON file, environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Role represents the side of the tunnel this process runs.
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// Storage backends.
const (
	BackendGDrive  = "gdrive"
	BackendLocalFS = "localfs"
	BackendMemory  = "memory"
)

// EnvPrefix prefixes every environment override, e.g. DRIVETUN_PORT or
// DRIVETUN_STORAGE_BACKEND.
const EnvPrefix = "DRIVETUN"

// DefaultFile is the settings file looked up in the working directory.
const DefaultFile = "settings.json"

// Settings is the complete configuration.
type Settings struct {
	PacketDuration   int    `mapstructure:"packet_duration"` // ms
	MaxQueuedPackets int    `mapstructure:"max_queued_packets"`
	FolderID         string `mapstructure:"folder_id"`
	FileCount        int    `mapstructure:"file_count"`
	Port             int    `mapstructure:"port"`
	StatsInterval    int    `mapstructure:"stats_interval"` // seconds, 0 disables

	Storage   StorageConfig   `mapstructure:"storage"`
	Interface InterfaceConfig `mapstructure:"interface"`
	Client    ClientConfig    `mapstructure:"client"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	SecretFile string `mapstructure:"secret_file"`
	TokenFile  string `mapstructure:"token_file"`
	Timeout    int    `mapstructure:"timeout"` // seconds
}

type InterfaceConfig struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
	Peer    string `mapstructure:"peer"`
	MTU     int    `mapstructure:"mtu"`
}

type ClientConfig struct {
	ServerAddr string          `mapstructure:"server_addr"` // host:port of the TCP listener
	WSURL      string          `mapstructure:"ws_url"`      // used instead of ServerAddr when set
	Interface  InterfaceConfig `mapstructure:"interface"`
}

type WebSocketConfig struct {
	Port  int    `mapstructure:"port"` // 0 disables the listener
	Token string `mapstructure:"token"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the endpoint
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // text or json
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns Settings populated with defaults for every key.
func Default() *Settings {
	return &Settings{
		PacketDuration:   200,
		MaxQueuedPackets: 1024,
		FileCount:        8,
		Port:             5000,
		StatsInterval:    10,
		Storage: StorageConfig{
			Backend:    BackendGDrive,
			SecretFile: "secret.json",
			TokenFile:  "token.json",
			Timeout:    16,
		},
		Interface: InterfaceConfig{
			Name:    "gdvpn",
			Address: "10.0.0.1",
			Peer:    "10.0.0.2",
			MTU:     1500,
		},
		Client: ClientConfig{
			Interface: InterfaceConfig{
				Name:    "gdvpn",
				Address: "10.0.0.2",
				Peer:    "10.0.0.1",
				MTU:     1500,
			},
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads settings from path. With an empty path, settings.json in the
// working directory is used when present, otherwise defaults and environment
// alone. Settings are not validated; call Validate for the role in use.
func Load(path string) (*Settings, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFile, ".json"))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// setDefaults seeds every key so env-only configurations work.
func setDefaults(v *viper.Viper, cfg *Settings) {
	v.SetDefault("packet_duration", cfg.PacketDuration)
	v.SetDefault("max_queued_packets", cfg.MaxQueuedPackets)
	v.SetDefault("folder_id", cfg.FolderID)
	v.SetDefault("file_count", cfg.FileCount)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("stats_interval", cfg.StatsInterval)

	v.SetDefault("storage.backend", cfg.Storage.Backend)
	v.SetDefault("storage.secret_file", cfg.Storage.SecretFile)
	v.SetDefault("storage.token_file", cfg.Storage.TokenFile)
	v.SetDefault("storage.timeout", cfg.Storage.Timeout)

	setInterfaceDefaults(v, "interface", cfg.Interface)
	v.SetDefault("client.server_addr", cfg.Client.ServerAddr)
	v.SetDefault("client.ws_url", cfg.Client.WSURL)
	setInterfaceDefaults(v, "client.interface", cfg.Client.Interface)

	v.SetDefault("websocket.port", cfg.WebSocket.Port)
	v.SetDefault("websocket.token", cfg.WebSocket.Token)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age_days", cfg.Log.MaxAgeDays)
	v.SetDefault("log.compress", cfg.Log.Compress)
}

func setInterfaceDefaults(v *viper.Viper, prefix string, c InterfaceConfig) {
	v.SetDefault(prefix+".name", c.Name)
	v.SetDefault(prefix+".address", c.Address)
	v.SetDefault(prefix+".peer", c.Peer)
	v.SetDefault(prefix+".mtu", c.MTU)
}

// Validate checks the settings used by role.
func (s *Settings) Validate(role Role) error {
	var errs []error

	switch s.Storage.Backend {
	case BackendGDrive, BackendLocalFS, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", s.Storage.Backend))
	}
	switch strings.ToLower(s.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log.format %q", s.Log.Format))
	}

	switch role {
	case RoleServer:
		if s.PacketDuration <= 0 {
			errs = append(errs, fmt.Errorf("packet_duration must be positive, got %d", s.PacketDuration))
		}
		if s.MaxQueuedPackets <= 0 {
			errs = append(errs, fmt.Errorf("max_queued_packets must be positive, got %d", s.MaxQueuedPackets))
		}
		if s.FileCount < 1 || s.FileCount > 1<<16 {
			errs = append(errs, fmt.Errorf("file_count must be 1~65536, got %d", s.FileCount))
		}
		if s.Port < 1 || s.Port > 65535 {
			errs = append(errs, fmt.Errorf("port must be 1~65535, got %d", s.Port))
		}
		if strings.TrimSpace(s.FolderID) == "" {
			errs = append(errs, errors.New("folder_id is required"))
		}
		if err := validateMTU("interface.mtu", s.Interface.MTU); err != nil {
			errs = append(errs, err)
		}
		if s.WebSocket.Port != 0 {
			if s.WebSocket.Port < 1 || s.WebSocket.Port > 65535 {
				errs = append(errs, fmt.Errorf("websocket.port must be 1~65535, got %d", s.WebSocket.Port))
			}
			if s.WebSocket.Token == "" {
				errs = append(errs, errors.New("websocket.token is required when websocket.port is set"))
			}
		}

	case RoleClient:
		if s.Client.ServerAddr == "" && s.Client.WSURL == "" {
			errs = append(errs, errors.New("client.server_addr or client.ws_url is required"))
		}
		if err := validateMTU("client.interface.mtu", s.Client.Interface.MTU); err != nil {
			errs = append(errs, err)
		}
		switch s.Storage.Backend {
		case BackendMemory:
			errs = append(errs, errors.New("the memory backend cannot be read by a client process"))
		case BackendLocalFS:
			if strings.TrimSpace(s.FolderID) == "" {
				errs = append(errs, errors.New("folder_id is required for the localfs backend"))
			}
		}

	default:
		errs = append(errs, fmt.Errorf("invalid role %q", role))
	}

	return errors.Join(errs...)
}

func validateMTU(key string, mtu int) error {
	if mtu < 68 || mtu > 32767 {
		return fmt.Errorf("%s must be 68~32767, got %d", key, mtu)
	}
	return nil
}

// Window is the relay batching window.
func (s *Settings) Window() time.Duration {
	return time.Duration(s.PacketDuration) * time.Millisecond
}

// StorageTimeout bounds each storage request.
func (s *Settings) StorageTimeout() time.Duration {
	return time.Duration(s.Storage.Timeout) * time.Second
}

// StatsEvery is the statistics logging interval.
func (s *Settings) StatsEvery() time.Duration {
	return time.Duration(s.StatsInterval) * time.Second
}
