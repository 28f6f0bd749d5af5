package source

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lesaffrejb-beep/drone-night-clip/internal/backend"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/diagnostics"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/fx"
)

// ResolveBackend probes the render pipeline once at startup and picks the
// effects tier. An explicit override wins; otherwise the full pass chain is
// tried and a construction failure degrades to the safe tier, provided the
// base render pass itself still constructs. When even that pass is gone the
// canvas tier takes over with no composer at all: effects are baked into
// pixels downstream.
func ResolveBackend(override string, reg *backend.Registry, diag DiagSink) (backend.Composer, fx.Tier) {
	if reg == nil {
		reg = backend.DefaultRegistry()
	}
	switch strings.ToLower(override) {
	case "safe":
		emitDegraded(diag, fx.TierSafe, "safe tier forced by configuration")
		return backend.NewBasePass(), fx.TierSafe
	case "none", "canvas":
		emitDegraded(diag, fx.TierNone, "canvas tier forced by configuration")
		return nil, fx.TierNone
	}

	chain, err := backend.NewChain(reg)
	if err == nil {
		log.Info().Msg("full effects chain ready")
		return chain, fx.TierFull
	}

	if f, ok := reg.Get("render"); ok {
		if _, rerr := f(); rerr == nil {
			emitDegraded(diag, fx.TierSafe, err.Error())
			return backend.NewBasePass(), fx.TierSafe
		}
	}
	emitDegraded(diag, fx.TierNone, err.Error())
	return nil, fx.TierNone
}

func emitDegraded(diag DiagSink, tier fx.Tier, detail string) {
	log.Warn().Str("tier", tier.String()).Str("detail", detail).Msg("effects tier degraded")
	if diag == nil {
		return
	}
	diag(diagnostics.Diagnostic{
		Severity: diagnostics.Warn,
		Code:     diagnostics.CodeBackendDegraded,
		Summary:  "effects pipeline degraded",
		Detail:   detail,
		LikelyCauses: []string{
			"a required pass failed to construct",
			"tier override set in configuration",
		},
		SuggestedFixes: []string{
			"clear the backend override to re-probe the full chain",
		},
		Evidence: map[string]any{"tier": tier.String()},
	})
}
