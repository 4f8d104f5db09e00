package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning is the optional operations overlay. Gameplay rules live in the JSON
// game config; everything here only changes how the process runs, so ops can
// adjust it without touching the game definition.
type Tuning struct {
	HTTP     HTTP     `yaml:"http"`
	Snapshot Snapshot `yaml:"snapshot"`
	Observer Observer `yaml:"observer"`
	Events   Events   `yaml:"events"`
}

type HTTP struct {
	Addr              string `yaml:"addr"`
	ReadTimeoutMs     int    `yaml:"read_timeout_ms"`
	ShutdownTimeoutMs int    `yaml:"shutdown_timeout_ms"`
}

type Snapshot struct {
	SavePeriodMs int `yaml:"save_period_ms"`
}

type Observer struct {
	Enabled     bool `yaml:"enabled"`
	AllowRemote bool `yaml:"allow_remote"`
	QueueSize   int  `yaml:"queue_size"`
}

type Events struct {
	Dir string `yaml:"dir"`
}

func Default() Tuning {
	return Tuning{
		HTTP: HTTP{
			Addr:              ":8080",
			ReadTimeoutMs:     30000,
			ShutdownTimeoutMs: 5000,
		},
		Observer: Observer{
			Enabled:   true,
			QueueSize: 16,
		},
	}
}

// Load reads the overlay at path on top of the defaults. An empty path keeps
// the defaults; keys absent from the file keep their default values.
func Load(path string) (Tuning, error) {
	t := Default()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning overlay %s: %w", path, err)
	}
	if t.Observer.QueueSize <= 0 {
		t.Observer.QueueSize = Default().Observer.QueueSize
	}
	return t, nil
}
