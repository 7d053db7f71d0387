// Package aux orchestrates the auxiliary console's bootstrap: mode
// resolution, parameter correction, the nested acquisition of store,
// transport, logic, and diffusion, and the hosted plugin itself.
package aux

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"tally/config"
)

// RunMode selects how much of a node the console runs against.
type RunMode uint8

const (
	// ModeAutomatic tries the full configuration and falls back to
	// light when it is recoverably absent.
	ModeAutomatic RunMode = iota + 1
	// ModeLight never touches configuration; standalone commands only.
	ModeLight
	// ModeWithConfig requires the full configuration; any load failure
	// is fatal.
	ModeWithConfig
)

func (m RunMode) String() string {
	switch m {
	case ModeAutomatic:
		return "auto"
	case ModeLight:
		return "light"
	case ModeWithConfig:
		return "with-config"
	default:
		return "unknown"
	}
}

// ParseRunMode maps the CLI flag value onto a RunMode.
func ParseRunMode(s string) (RunMode, error) {
	switch s {
	case "auto", "":
		return ModeAutomatic, nil
	case "light":
		return ModeLight, nil
	case "with-config":
		return ModeWithConfig, nil
	default:
		return 0, fmt.Errorf("unknown run mode %q (auto, light, with-config)", s)
	}
}

// Resolution is the resolver's verdict: either a loaded configuration or
// the decision to run without one.
type Resolution struct {
	Config *config.Config
}

// HasConfig reports whether a configuration context exists for this run.
func (r Resolution) HasConfig() bool { return r.Config != nil }

// errClass is the two-way recoverability tag for configuration load
// failures.
type errClass uint8

const (
	classRecoverable errClass = iota + 1
	classFatal
)

// classifyConfigErr decides whether a load failure may downgrade an
// automatic run to light. Exactly three kinds are recoverable: a missing
// file, an undecodable file, and a decoded-but-invalid file. Everything
// else is fatal.
func classifyConfigErr(err error) errClass {
	var perr *config.ParseError
	var verr *config.ValidationError
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.As(err, &perr), errors.As(err, &verr):
		return classRecoverable
	default:
		return classFatal
	}
}

// resolveMode produces the configuration context for the run. It emits
// exactly one informational line naming the resolved mode, before any
// resource acquisition. load is the seam for tests; production passes
// config.Load.
func resolveMode(mode RunMode, configPath string, load func(string) (*config.Config, error)) (Resolution, error) {
	switch mode {
	case ModeLight:
		slog.Info("Mode: light")
		return Resolution{}, nil

	case ModeWithConfig:
		cfg, err := load(configPath)
		if err != nil {
			return Resolution{}, fmt.Errorf("load configuration: %w", err)
		}
		slog.Info("Mode: with-config")
		return Resolution{Config: cfg}, nil

	case ModeAutomatic:
		cfg, err := load(configPath)
		if err != nil {
			if classifyConfigErr(err) == classRecoverable {
				slog.Info("Mode: light", "reason", err)
				return Resolution{}, nil
			}
			return Resolution{}, fmt.Errorf("load configuration: %w", err)
		}
		slog.Info("Mode: with-config")
		return Resolution{Config: cfg}, nil

	default:
		return Resolution{}, fmt.Errorf("unknown run mode %d", mode)
	}
}
