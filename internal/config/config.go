package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Preview struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type Audio struct {
	Track   string `yaml:"track,omitempty"` // .mp3 or .wav soundtrack
	Speaker bool   `yaml:"speaker"`         // attach the system audio device
}

type Capture struct {
	Dir    string `yaml:"dir"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

type Config struct {
	Listen   string `yaml:"listen"`
	SceneURL string `yaml:"scene_url,omitempty"`
	Preset   string `yaml:"preset,omitempty"`
	Backend  string `yaml:"backend,omitempty"` // "" auto | "safe" | "none"
	FPS      int    `yaml:"fps"`

	Preview Preview `yaml:"preview"`
	Audio   Audio   `yaml:"audio,omitempty"`
	Capture Capture `yaml:"capture"`
}

func Default() *Config {
	return &Config{
		Listen: ":8080",
		FPS:    60,
		Preview: Preview{
			Width:  320,
			Height: 180,
		},
		Capture: Capture{
			Dir:    ".",
			Width:  640,
			Height: 360,
		},
	}
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}
