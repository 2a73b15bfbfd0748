package transport

import (
	"log/slog"
	"math/rand"

	"github.com/trustlens/trustlens/pkg/config"
)

// SelectMode determines the transport mode for an audit by priority:
// explicit CLI flag > configured mode (env/file) > percentage rollout.
// rng is injected for deterministic tests; pass nil for the default.
func SelectMode(forced Mode, cfg *config.TransportConfig, rng func() float64) Mode {
	if rng == nil {
		rng = rand.Float64
	}

	var mode Mode
	var via string
	switch {
	case forced != "":
		mode, via = forced, "cli_flag"
	case cfg.Mode != "":
		mode, via = Mode(cfg.Mode), "config"
	case rng() < cfg.Rollout:
		mode, via = ModeQueue, "rollout"
	default:
		mode, via = ModeStdout, "rollout"
	}

	slog.Info("Transport mode selected",
		"mode", mode, "via", via, "rollout", cfg.Rollout)
	return mode
}
