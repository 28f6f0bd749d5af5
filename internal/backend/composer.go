package backend

import (
	"fmt"
	"sync"
)

// Uniform names of the render backend contract. The effects evaluator writes
// these; whatever shading backend the host wires up reads them by name.
const (
	UBloomStrength = "bloomStrength"
	UVignette      = "vignette"
	UGrain         = "grain"
	UTime          = "time"
	UPulse         = "pulse"
	UAccent        = "accent"
	USparkle       = "sparkle"
)

// Composer is the numeric surface of the post-processing chain: named
// uniforms plus the two renderer-level scalars (exposure, fog density) that
// survive even when the effect passes do not.
type Composer interface {
	SetUniform(name string, v float64)
	Uniform(name string) float64
	SetExposure(v float64)
	Exposure() float64
	SetFog(v float64)
	Fog() float64
}

// PassFactory constructs one stage of the chain. Factories come from the
// host's shading backend; construction fails when a shader dependency is
// missing, which is what drives the safe-mode downgrade.
type PassFactory func() (*Pass, error)

// Pass is a constructed chain stage.
type Pass struct {
	Name     string
	Uniforms []string
}

// Registry maps pass names to factories.
type Registry struct{ m map[string]PassFactory }

func NewRegistry() *Registry { return &Registry{m: map[string]PassFactory{}} }

func (r *Registry) Register(name string, f PassFactory) {
	if f == nil {
		return
	}
	r.m[name] = f
}

func (r *Registry) Get(name string) (PassFactory, bool) { f, ok := r.m[name]; return f, ok }

// DefaultRegistry carries the three passes of the full pipeline: the base
// render pass, the bloom pass, and the grade pass owning the vignette/grain/
// sparkle uniforms.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("render", func() (*Pass, error) {
		return &Pass{Name: "render", Uniforms: []string{UTime}}, nil
	})
	r.Register("bloom", func() (*Pass, error) {
		return &Pass{Name: "bloom", Uniforms: []string{UBloomStrength}}, nil
	})
	r.Register("grade", func() (*Pass, error) {
		return &Pass{Name: "grade", Uniforms: []string{UVignette, UGrain, UPulse, UAccent, USparkle}}, nil
	})
	return r
}

// requiredPasses is the dependency list of the full pipeline; a registry
// missing any of them cannot build a Chain.
var requiredPasses = []string{"render", "bloom", "grade"}

// Chain is the full-pipeline composer: every pass constructed, every uniform
// addressable. Construction validates the pass list so a missing shader
// dependency fails here, once, instead of mid-frame.
type Chain struct {
	mu       sync.RWMutex
	passes   []*Pass
	uniforms map[string]float64
	exposure float64
	fog      float64
}

func NewChain(reg *Registry) (*Chain, error) {
	if reg == nil {
		reg = DefaultRegistry()
	}
	c := &Chain{
		uniforms: map[string]float64{},
		exposure: 1,
	}
	for _, name := range requiredPasses {
		f, ok := reg.Get(name)
		if !ok {
			return nil, fmt.Errorf("effect chain missing %q pass", name)
		}
		p, err := f()
		if err != nil {
			return nil, fmt.Errorf("construct %q pass: %w", name, err)
		}
		c.passes = append(c.passes, p)
		for _, u := range p.Uniforms {
			c.uniforms[u] = 0
		}
	}
	return c, nil
}

func (c *Chain) SetUniform(name string, v float64) {
	c.mu.Lock()
	c.uniforms[name] = v
	c.mu.Unlock()
}

func (c *Chain) Uniform(name string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uniforms[name]
}

func (c *Chain) SetExposure(v float64) {
	c.mu.Lock()
	c.exposure = v
	c.mu.Unlock()
}

func (c *Chain) Exposure() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exposure
}

func (c *Chain) SetFog(v float64) {
	c.mu.Lock()
	c.fog = v
	c.mu.Unlock()
}

func (c *Chain) Fog() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fog
}

// Passes lists constructed pass names, in order.
func (c *Chain) Passes() []string {
	out := make([]string, len(c.passes))
	for i, p := range c.passes {
		out[i] = p.Name
	}
	return out
}

// BasePass is the safe-mode composer: the bare render pass with exposure and
// fog intact but no effect uniforms. Uniform writes vanish, reads return 0.
type BasePass struct {
	mu       sync.RWMutex
	exposure float64
	fog      float64
}

func NewBasePass() *BasePass { return &BasePass{exposure: 1} }

func (b *BasePass) SetUniform(string, float64) {}
func (b *BasePass) Uniform(string) float64     { return 0 }

func (b *BasePass) SetExposure(v float64) {
	b.mu.Lock()
	b.exposure = v
	b.mu.Unlock()
}

func (b *BasePass) Exposure() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.exposure
}

func (b *BasePass) SetFog(v float64) {
	b.mu.Lock()
	b.fog = v
	b.mu.Unlock()
}

func (b *BasePass) Fog() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fog
}
