package main

import (
	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
	mbp "go.gazette.dev/pagevfs/mainboilerplate"
)

const iniFilename = "pagevfs.ini"

// Config common to all commands.
var baseCfg = new(struct {
	Backend     mbp.BackendConfig     `group:"Backend" namespace:"backend" env-namespace:"BACKEND"`
	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
})

func main() {
	var parser = flags.NewParser(baseCfg, flags.Default)

	parser.LongDescription = `pagevfs is a tool for SQLite databases whose pages are held
in a backing store: a blob or key-value store (as one object per page), or a flat
page table file.

See --help pages of each sub-command for documentation and usage examples.
Optionally configure pagevfs with a '` + iniFilename + `' file in the current working directory,
or with '~/.config/pagevfs/` + iniFilename + `'. Use the 'print-config' sub-command to inspect
the tool's current configuration.
`

	mbp.Must(addCmdQuery(parser.Command), "could not add query subcommand")
	mbp.Must(addCmdInspect(parser.Command), "could not add inspect subcommand")
	mbp.Must(addCmdPurge(parser.Command), "could not add purge subcommand")
	mbp.AddPrintConfigCmd(parser, iniFilename)

	mbp.MustParseConfig(parser, iniFilename)
}

// startup initializes logging and store providers, and returns a closure
// which should be deferred by the command.
func startup() func() {
	mbp.InitLog(baseCfg.Log)
	mbp.RegisterStoreProviders()

	log.WithFields(log.Fields{
		"version":   mbp.Version,
		"buildDate": mbp.BuildDate,
		"backend":   baseCfg.Backend.URL,
	}).Debug("starting pagevfs")

	return mbp.InitDiagnosticsAndRecover(baseCfg.Diagnostics)
}
