// Package cli implements the CLI flag surface and the interactive
// command registry from spec.md §6. Grounded in shape on teacher's
// cmd/sip-tg-bridge/main.go (flat flag parsing into a config struct,
// signal.NotifyContext-driven shutdown), generalized from a single
// hardcoded config path argument to the full short-option set spec.md
// names.
package cli

import (
	"flag"
	"fmt"
	"os"
)

// Flags is the parsed form of spec.md §6's CLI surface.
type Flags struct {
	IPv4Only   bool
	IPv6Only   bool
	UserAgent  string
	Daemon     bool
	ExecCmds   []string
	ConfigDir  string
	Modules    []string
	AudioPath  string
	SIPTrace   bool
	QuitAfter  int
	NetIf      string
	UAParams   string
	Verbose    bool
	Timestamps bool
	NoColor    bool
	Help       bool
}

type stringList []string

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// Parse parses args (normally os.Args[1:]) into Flags, matching the
// short-option set spec.md §6 lists: -4/-6/-a/-d/-e/-f/-m/-p/-s/-t/-n/
// -u/-v/-T/-c/-h.
func Parse(args []string) (*Flags, error) {
	fs := flag.NewFlagSet("sipagent", flag.ContinueOnError)
	f := &Flags{}

	var execCmds, modules stringList

	fs.BoolVar(&f.IPv4Only, "4", false, "force IPv4 only")
	fs.BoolVar(&f.IPv6Only, "6", false, "force IPv6 only")
	fs.StringVar(&f.UserAgent, "a", "", "User-Agent string")
	fs.BoolVar(&f.Daemon, "d", false, "run as daemon")
	fs.Var(&execCmds, "e", "execute interactive command (repeatable)")
	fs.StringVar(&f.ConfigDir, "f", "", "config directory")
	fs.Var(&modules, "m", "pre-load module (repeatable)")
	fs.StringVar(&f.AudioPath, "p", "", "audio files path")
	fs.BoolVar(&f.SIPTrace, "s", false, "enable SIP trace")
	fs.IntVar(&f.QuitAfter, "t", 0, "quit after N seconds")
	fs.StringVar(&f.NetIf, "n", "", "network interface")
	fs.StringVar(&f.UAParams, "u", "", "extra UA parameters")
	fs.BoolVar(&f.Verbose, "v", false, "verbose")
	fs.BoolVar(&f.Timestamps, "T", false, "timestamps in logs")
	fs.BoolVar(&f.NoColor, "c", false, "disable color")
	fs.BoolVar(&f.Help, "h", false, "help")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	f.ExecCmds = execCmds
	f.Modules = modules
	return f, nil
}

// ExitUsageError is spec.md §6's "-2 on CLI usage error" exit code.
const ExitUsageError = -2

func Usage() {
	fmt.Fprintln(os.Stderr, "usage: sipagent [-46dsvTc] [-a ua] [-e cmd] [-f dir] [-m mod] [-p path] [-t sec] [-n if] [-u params]")
}
