// Package mainboilerplate contains shared boilerplate for pagevfs programs:
// logging, configuration parsing, diagnostics, and construction of a
// pagefile.Backend from a backing store URL.
package mainboilerplate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
)

// Version and BuildDate are populated at link time (-ldflags -X).
var (
	Version   = "development"
	BuildDate = "unknown"
)

// ConfigSearchPaths returns candidate locations of INI file |configName|,
// in order of preference: the working directory, and then ~/.config/pagevfs
// of $HOME or %UserProfile%.
func ConfigSearchPaths(configName string) []string {
	var out = []string{configName}
	for _, env := range []string{"HOME", "UserProfile"} {
		if home := os.Getenv(env); home != "" {
			out = append(out, filepath.Join(home, ".config", "pagevfs", configName))
		}
	}
	return out
}

// MustParseConfig parses the Parser from the first INI file found of
// ConfigSearchPaths, then from environment bindings and explicit flags.
// A backing store URL, for example, may be fixed in pagevfs.ini and
// overridden by --backend.url.
func MustParseConfig(parser *flags.Parser, configName string) {
	// Options of other programs may share the INI file.
	var restore = parser.Options
	parser.Options |= flags.IgnoreUnknown

	for _, path := range ConfigSearchPaths(configName) {
		var err = flags.NewIniParser(parser).ParseFile(path)
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			fmt.Fprintf(os.Stderr, "parsing %s: %s\n", path, err)
			os.Exit(1)
		}
		break
	}

	parser.Options = restore
	MustParseArgs(parser)
}

// MustParseArgs parses command-line arguments into the Parser, and
// exits on user error.
func MustParseArgs(parser *flags.Parser) {
	var _, err = parser.ParseArgs(os.Args[1:])
	if err == nil {
		return
	}
	var flagErr, ok = err.(*flags.Error)
	if !ok {
		Must(err, "fatal error")
	}

	switch flagErr.Type {
	case flags.ErrDuplicatedFlag, flags.ErrTag, flags.ErrInvalidTag, flags.ErrShortNameTooLong, flags.ErrMarshal:
		panic(err) // Programming error of a configuration struct.
	case flags.ErrCommandRequired, flags.ErrHelp:
		if flagErr.Type == flags.ErrCommandRequired || parser.Options&flags.PrintErrors == 0 {
			parser.WriteHelp(os.Stderr)
			fmt.Fprintf(os.Stderr, "\npagevfs %s (built %s)\n", Version, BuildDate)
		}
	}
	// Otherwise go-flags has already printed the error.
	os.Exit(1)
}

// AddPrintConfigCmd adds a "print-config" command to the Parser, which
// writes the effective configuration in INI form. Its output is a valid
// |configName|.
func AddPrintConfigCmd(parser *flags.Parser, configName string) {
	_, _ = parser.AddCommand("print-config", "Print combined configuration and exit", `
Print the configuration which results from `+configName+`, environment
variables, and flags, in INI format.
`, &printConfig{parser})
}

type printConfig struct {
	*flags.Parser `no-flag:"t"`
}

func (p printConfig) Execute([]string) error {
	flags.NewIniParser(p.Parser).Write(os.Stdout,
		flags.IniIncludeComments|flags.IniCommentDefaults|flags.IniIncludeDefaults)
	return nil
}
