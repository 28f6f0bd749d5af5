// Package source resolves where the scene comes from. Providers form an
// ordered chain of tiers: remote HTTP, embedded presets, and finally the
// hardcoded fallback scene. Resolution never fails; it only degrades.
package source

import (
	"context"
	"embed"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/lesaffrejb-beep/drone-night-clip/internal/scene"
)

// DefaultFetchTimeout bounds a remote fetch. The engine must reach its first
// frame quickly even when the scene service hangs.
const DefaultFetchTimeout = 3 * time.Second

// maxPayload caps a remote scene document.
const maxPayload = 1 << 20

// Provider produces a raw scene payload. Any error falls through to the next
// tier in the chain.
type Provider interface {
	Name() string
	Fetch(ctx context.Context) ([]byte, error)
}

// HTTPProvider fetches the scene document from a URL. The request is bounded
// by Timeout and aborts early when the caller's context is cancelled.
type HTTPProvider struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

func (p *HTTPProvider) Name() string { return "http" }

func (p *HTTPProvider) Fetch(ctx context.Context) ([]byte, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, err
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scene fetch %s: unexpected status %s", p.URL, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPayload))
}

//go:embed scenes/*.json
var sceneFS embed.FS

// DefaultPreset is served when no preset name is configured.
const DefaultPreset = "neon-run"

// EmbeddedProvider serves one of the presets compiled into the binary.
type EmbeddedProvider struct {
	Preset string
}

func (p *EmbeddedProvider) Name() string { return "embedded" }

func (p *EmbeddedProvider) Fetch(_ context.Context) ([]byte, error) {
	name := p.Preset
	if name == "" {
		name = DefaultPreset
	}
	data, err := sceneFS.ReadFile("scenes/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("unknown preset %q", name)
	}
	return data, nil
}

// Presets lists the embedded scene names, sorted.
func Presets() []string {
	entries, err := sceneFS.ReadDir("scenes")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names
}

// ResolvePreset returns a normalized embedded scene. The only failure mode is
// an unknown name.
func ResolvePreset(name string) (*scene.Scene, error) {
	data, err := (&EmbeddedProvider{Preset: name}).Fetch(context.Background())
	if err != nil {
		return nil, err
	}
	return scene.Normalize(data), nil
}
