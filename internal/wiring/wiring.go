// Package wiring loads interrupt wiring from configuration and applies it to
// a controller: which lines exist, which class and index they occupy, and how
// they trigger. Configuration is external data, so every malformed entry is
// reported as an error rather than a panic.
package wiring

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tinyrange/gic"
)

// Line is one configured interrupt line.
type Line struct {
	// Name identifies the line in logs and errors, e.g. "uart0".
	Name string `yaml:"name"`

	// Class is one of "sgi", "ppi" or "spi".
	Class string `yaml:"class"`

	// Index is the class-relative interrupt index.
	Index uint32 `yaml:"index"`

	// Trigger is "edge" or "level". Defaults to "level" when empty, the
	// common case for peripheral lines.
	Trigger string `yaml:"trigger"`
}

// Config is a validated interrupt wiring.
type Config struct {
	Lines []ResolvedLine
}

// ResolvedLine is a configured line with its identifier minted and its
// trigger mode decoded.
type ResolvedLine struct {
	Name    string
	ID      gic.IntID
	Trigger gic.TriggerMode
}

type rawConfig struct {
	Interrupts []Line `yaml:"interrupts"`
}

// Parse decodes and validates a YAML wiring document.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("wiring: parsing config: %w", err)
	}
	if len(raw.Interrupts) == 0 {
		return nil, fmt.Errorf("wiring: config declares no interrupts")
	}

	cfg := &Config{}
	seen := make(map[gic.IntID]string)
	for _, line := range raw.Interrupts {
		resolved, err := resolve(line)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[resolved.ID]; dup {
			return nil, fmt.Errorf("wiring: %q and %q both claim %v", prev, line.Name, resolved.ID)
		}
		seen[resolved.ID] = line.Name
		cfg.Lines = append(cfg.Lines, resolved)
	}
	return cfg, nil
}

// Load reads and parses a wiring file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wiring: reading config: %w", err)
	}
	return Parse(data)
}

func resolve(line Line) (ResolvedLine, error) {
	if line.Name == "" {
		return ResolvedLine{}, fmt.Errorf("wiring: interrupt line without a name")
	}

	var class gic.Class
	switch line.Class {
	case "sgi":
		class = gic.ClassSGI
	case "ppi":
		class = gic.ClassPPI
	case "spi":
		class = gic.ClassSPI
	default:
		return ResolvedLine{}, fmt.Errorf("wiring: %q: unknown interrupt class %q", line.Name, line.Class)
	}

	id, ok := gic.Translate(class, line.Index)
	if !ok {
		return ResolvedLine{}, fmt.Errorf("wiring: %q: %s index %d out of range", line.Name, class, line.Index)
	}

	var mode gic.TriggerMode
	switch line.Trigger {
	case "edge":
		mode = gic.TriggerEdge
	case "level", "":
		mode = gic.TriggerLevel
	default:
		return ResolvedLine{}, fmt.Errorf("wiring: %q: unknown trigger mode %q", line.Name, line.Trigger)
	}

	return ResolvedLine{Name: line.Name, ID: id, Trigger: mode}, nil
}

// Apply configures and unmasks every line on the controller. SGIs keep their
// fixed edge configuration, so only their mask is touched.
func (c *Config) Apply(log *slog.Logger, ctrl gic.Controller) {
	if log == nil {
		log = slog.Default()
	}
	for _, line := range c.Lines {
		if !line.ID.IsSGI() {
			ctrl.SetTrigger(line.ID, line.Trigger)
		}
		ctrl.EnableInterrupt(line.ID)
		log.Info("wiring: enabled interrupt",
			"name", line.Name,
			"intid", line.ID.String(),
			"trigger", line.Trigger.String())
	}
}
