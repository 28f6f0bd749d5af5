package source

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/lesaffrejb-beep/drone-night-clip/internal/diagnostics"
	"github.com/lesaffrejb-beep/drone-night-clip/internal/scene"
)

// DiagSink receives resolution diagnostics. Nil sinks are allowed.
type DiagSink = diagnostics.Sink

// Resolver walks a provider chain until a payload parses.
type Resolver struct {
	Providers []Provider
	Diag      DiagSink
}

// NewResolver builds the standard chain: remote URL first when configured,
// then the embedded preset tier.
func NewResolver(sceneURL, preset string) *Resolver {
	var ps []Provider
	if sceneURL != "" {
		ps = append(ps, &HTTPProvider{URL: sceneURL})
	}
	ps = append(ps, &EmbeddedProvider{Preset: preset})
	return &Resolver{Providers: ps}
}

// Resolve returns a usable scene, always. Each failed tier emits a fallback
// diagnostic; the hardcoded scene terminates the chain.
func (r *Resolver) Resolve(ctx context.Context) *scene.Scene {
	for _, p := range r.Providers {
		data, err := p.Fetch(ctx)
		if err != nil {
			r.fallback(p.Name(), err.Error())
			continue
		}
		if !parseable(data) {
			r.fallback(p.Name(), "payload is not a JSON scene document")
			continue
		}
		s := scene.Normalize(data)
		r.resolved(p.Name(), s)
		return s
	}
	s := scene.DefaultScene()
	r.resolved("builtin", s)
	return s
}

// parseable rejects payloads that are not a JSON object. Partial objects are
// fine; normalization fills the gaps.
func parseable(data []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe != nil
}

func (r *Resolver) fallback(provider, detail string) {
	log.Warn().Str("provider", provider).Str("detail", detail).Msg("scene provider failed, trying next tier")
	r.emit(diagnostics.Diagnostic{
		Severity: diagnostics.Warn,
		Code:     diagnostics.CodeSourceFallback,
		Summary:  "scene provider failed, falling back",
		Detail:   detail,
		LikelyCauses: []string{
			"scene service unreachable or slow",
			"endpoint returned something other than a scene document",
		},
		SuggestedFixes: []string{
			"check the configured scene URL",
			"inspect the endpoint response body",
		},
		Evidence: map[string]any{"provider": provider},
	})
}

func (r *Resolver) resolved(provider string, s *scene.Scene) {
	log.Info().
		Str("provider", provider).
		Str("title", s.Meta.Title).
		Int("shots", len(s.Shots)).
		Float64("bpm", s.Meta.BPM).
		Msg("scene resolved")
	r.emit(diagnostics.Diagnostic{
		Severity: diagnostics.Info,
		Code:     diagnostics.CodeSourceResolved,
		Summary:  "scene resolved",
		Evidence: map[string]any{
			"provider": provider,
			"title":    s.Meta.Title,
			"shots":    len(s.Shots),
		},
	})
}

func (r *Resolver) emit(d diagnostics.Diagnostic) {
	if r.Diag != nil {
		r.Diag(d)
	}
}
