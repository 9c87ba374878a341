package mainboilerplate

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// LogConfig configures handling of application log events.
type LogConfig struct {
	Level  string `long:"level" env:"LEVEL" default:"warn" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" description:"Logging level. VFS opens and ignored truncations are logged at debug"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"json" choice:"text" choice:"color" description:"Logging output format"`
	Caller bool   `long:"caller" env:"CALLER" description:"Annotate log events with their calling function"`
}

// InitLog configures the standard logger from the LogConfig.
// Log events are written to stderr, leaving stdout to command output.
func InitLog(cfg LogConfig) {
	var formatters = map[string]log.Formatter{
		"json":  &log.JSONFormatter{},
		"text":  &log.TextFormatter{DisableColors: true, FullTimestamp: true},
		"color": &log.TextFormatter{ForceColors: true, FullTimestamp: true},
	}
	if f, ok := formatters[cfg.Format]; ok {
		log.SetFormatter(f)
	}
	log.SetOutput(os.Stderr)
	log.SetReportCaller(cfg.Caller)

	var lvl, err = log.ParseLevel(cfg.Level)
	if err != nil {
		log.WithField("err", err).Fatal("unrecognized log level")
	}
	log.SetLevel(lvl)
}
