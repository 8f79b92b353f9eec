package configs

import (
	"flag"
	"os"

	"github.com/codecoalition/collabd/internal/infrastructure/env"
)

// DetermineConfigPath resolves the config file location from the -config
// flag, the COLLABD_CONFIG env var, or a set of conventional candidates.
// An empty return value means "defaults only".
func DetermineConfigPath() string {
	var configPath string

	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	if configPath == "" {
		configPath = env.GetString("COLLABD_CONFIG", "")
	}

	if configPath == "" {
		candidates := []string{
			"./config.yaml",
			"./config.yml",
			"/etc/collabd/config.yaml",
			"/app/config.yaml",
		}

		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	return configPath
}
