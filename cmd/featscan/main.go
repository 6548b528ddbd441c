// Package main provides the featscan command, which reports the CPU
// instruction-set extensions an x86 executable uses.
package main

import (
	"log"
	"os"
	"time"

	alog "github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/maxgio92/featscan"
)

// debugEnv enables the debug trace on stderr when set to a non-empty value.
const debugEnv = "FEATSCAN_DEBUG"

func main() {
	log.SetFlags(0)
	log.SetPrefix("Error: ")
	setupTrace(os.Getenv(debugEnv) != "")

	cfg, err := parseArgs(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatal(err)
	}
	if cfg == nil || cfg.path == "" {
		usage(os.Stdout)
		return
	}

	cfg.opts.Color = useColor(cfg.color, term.IsTerminal(int(os.Stdout.Fd())))
	ctx := alog.WithFields(alog.Fields{
		"path":        cfg.path,
		"mode":        cfg.opts.Mode,
		"attribution": cfg.opts.Attribution,
		"color":       cfg.opts.Color,
	})
	ctx.Debug("analyzing")

	start := time.Now()
	if err := featscan.Analyze(cfg.path, cfg.opts, os.Stdout); err != nil {
		ctx.WithError(err).Debug("analysis failed")
		log.Fatal(err)
	}
	ctx.WithDuration(time.Since(start)).Debug("analysis done")
}

// setupTrace routes the debug trace to stderr. The trace is silent unless
// enabled.
func setupTrace(enabled bool) {
	alog.SetHandler(cli.New(os.Stderr))
	if enabled {
		alog.SetLevel(alog.DebugLevel)
	} else {
		alog.SetLevel(alog.FatalLevel)
	}
}

// useColor resolves a color mode against whether stdout is a terminal.
func useColor(mode string, tty bool) bool {
	switch mode {
	case colorAlways:
		return true
	case colorNever:
		return false
	}
	return tty && !color.NoColor
}
