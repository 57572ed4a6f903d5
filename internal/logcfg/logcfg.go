package logcfg

import (
	"os"

	logs "github.com/danmuck/smplog"
)

const envConfigPath = "SMPLOG_CONFIG"

// Load returns file-backed logging configuration when available, otherwise
// defaults. An explicit path (from the node config) wins over the
// environment and the working-directory candidates.
func Load(explicit string) logs.Config {
	candidates := []string{
		explicit,
		os.Getenv(envConfigPath),
		"./smplog.config.toml",
		"./local/smplog.config.toml",
	}

	for _, path := range candidates {
		if path == "" {
			continue
		}
		if cfg, err := logs.ConfigFromFile(path); err == nil {
			return cfg
		}
	}

	return logs.DefaultConfig()
}
