package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/maxgio92/featscan"
)

const (
	progName = "featscan"
	colorEnv = "FEATSCAN_COLOR"
)

// Color modes accepted by --color and FEATSCAN_COLOR.
const (
	colorAuto   = "auto"
	colorAlways = "always"
	colorNever  = "never"
)

type config struct {
	path  string
	color string
	opts  featscan.Options
}

func parseColor(v string) (string, error) {
	switch v {
	case colorAuto, colorAlways, colorNever:
		return v, nil
	}
	return "", fmt.Errorf("invalid color mode %q, want %s, %s or %s", v, colorAuto, colorAlways, colorNever)
}

// parseArgs parses the command line. Flags may appear before or after the
// path; when several mode or verbosity flags are given the last one wins.
// Everything after "--" is the path. A nil config with a nil error means
// help was requested.
func parseArgs(args []string, getenv func(string) string) (*config, error) {
	cfg := &config{
		color: colorAuto,
		opts: featscan.Options{
			Mode:        featscan.ModeDetect,
			Attribution: featscan.Coverage,
			Verbosity:   featscan.Normal,
		},
	}
	if v := getenv(colorEnv); v != "" {
		c, err := parseColor(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", colorEnv, err)
		}
		cfg.color = c
	}

	fs := newFlagSet(cfg)
	for len(args) > 0 {
		err := fs.Parse(args)
		if err == flag.ErrHelp {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		rest := fs.Args()
		if len(rest) == 0 {
			break
		}
		consumed := len(args) - len(rest)
		escaped := consumed > 0 && args[consumed-1] == "--"
		if rest[0] != "" {
			cfg.path = rest[0]
		}
		if escaped {
			break
		}
		args = rest[1:]
	}
	return cfg, nil
}

func newFlagSet(cfg *config) *flag.FlagSet {
	fs := flag.NewFlagSet(progName, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	mode := func(m featscan.Mode) func(string) error {
		return func(string) error {
			cfg.opts.Mode = m
			return nil
		}
	}
	verbosity := func(v featscan.Verbosity) func(string) error {
		return func(string) error {
			cfg.opts.Verbosity = v
			return nil
		}
	}

	for _, name := range []string{"s", "stats"} {
		fs.BoolFunc(name, "count instructions per feature", mode(featscan.ModeStats))
	}
	for _, name := range []string{"d", "details"} {
		fs.BoolFunc(name, "count instructions per feature and mnemonic, and registers", mode(featscan.ModeDetails))
	}
	for _, name := range []string{"v", "verbose"} {
		fs.BoolFunc(name, "print the file path and the text sections", verbosity(featscan.Verbose))
	}
	for _, name := range []string{"q", "quiet"} {
		fs.BoolFunc(name, "print the results only", verbosity(featscan.Quiet))
	}
	fs.BoolFunc("primary", "credit only the first feature of each instruction", func(string) error {
		cfg.opts.Attribution = featscan.Primary
		return nil
	})
	fs.Func("color", "colorize the output: auto, always or never", func(v string) error {
		c, err := parseColor(v)
		if err != nil {
			return err
		}
		cfg.color = c
		return nil
	})
	return fs
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `Usage: %s [options] [--] <file>

Detect the CPU instruction-set extensions used by an x86 executable
(ELF, PE or Mach-O).

Options:
  -s, --stats         count instructions per feature
  -d, --details       count instructions per feature and mnemonic, and registers
  -v, --verbose       print the file path and the text sections
  -q, --quiet         print the results only
      --primary       credit only the first feature of each instruction
      --color=<when>  colorize the output: auto, always or never
                      (default from %s, else auto)
  -h, --help          print this help

Environment:
  %s    default color mode
  %s    trace the run on stderr when set
`, progName, colorEnv, colorEnv, debugEnv)
}
