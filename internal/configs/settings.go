package configs

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "simulacra"

// HomeEnv overrides the XDG locations when set.
const HomeEnv = "SIMULACRA_HOME"

type Settings struct {
	ConfigDir string
	DataDir   string
}

// ResolveSettings works out the config and data directories for this user.
func ResolveSettings() (*Settings, error) {
	if home := os.Getenv(HomeEnv); home != "" {
		return &Settings{
			ConfigDir: filepath.Join(home, "config"),
			DataDir:   filepath.Join(home, "data"),
		}, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("error getting config directory: %w", err)
	}

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("error getting home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return &Settings{
		ConfigDir: filepath.Join(configDir, appName),
		DataDir:   filepath.Join(dataDir, appName),
	}, nil
}

func (s *Settings) ConfigPath() string {
	return filepath.Join(s.ConfigDir, "config.toml")
}

func (s *Settings) HistoryPath() string {
	return filepath.Join(s.DataDir, "history.json")
}

func (s *Settings) UsersPath() string {
	return filepath.Join(s.DataDir, "users.toml")
}

func (s *Settings) SessionPath() string {
	return filepath.Join(s.DataDir, "session.toml")
}

func (s *Settings) RelayStoragePath() string {
	return filepath.Join(s.DataDir, "relay.json")
}
