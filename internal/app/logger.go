package app

import (
	"strings"

	"github.com/charlesng35/cmsconsole/pkg/logger"
)

// ConfigureLogging initialises the global logger from the server section, defaulting to info.
func ConfigureLogging(server ServerConfig) error {
	level := strings.TrimSpace(server.LogLevel)
	if level == "" {
		level = "info"
	}
	return logger.InitWithOptions(level, logger.Options{
		Format: strings.TrimSpace(server.LogFormat),
		Fields: map[string]string{"service": "cmsconsole"},
	})
}
