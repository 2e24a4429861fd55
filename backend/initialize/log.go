package initialize

import (
	"os"

	"droidfleet/backend/config"
	"droidfleet/backend/global"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	// basic zerolog setup: console writer to stdout
	cw := zerolog.ConsoleWriter{Out: os.Stdout}
	logger := log.Output(cw)
	global.Logger = logger

	config.OnLogLevelChange(ApplyLogLevel)
}

// ApplyLogLevel sets the global zerolog level; unknown levels fall
// back to info.
func ApplyLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
