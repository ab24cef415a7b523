package config

import (
	"strings"

	"github.com/snrtools/salc/pkg/cli"
)

type Feature int

const (
	FeatPercentMod Feature = iota
	FeatCaseFold
	FeatCount
)

type Warning int

const (
	WarnDuplicateCase Warning = iota
	WarnUnusedAlias
	WarnEmptyBlock
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning
}

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		Warnings:   make(map[Warning]Info),
		FeatureMap: make(map[string]Feature),
		WarningMap: make(map[string]Warning),
	}

	features := map[Feature]Info{
		FeatPercentMod: {"percent-mod", true, "Recognize '%' as an alias for the 'mod' operator."},
		FeatCaseFold:   {"case-fold-mnemonics", true, "Match instruction mnemonics case-insensitively."},
	}

	warnings := map[Warning]Info{
		WarnDuplicateCase: {"duplicate-case", true, "Warn when a jump table repeats a case value."},
		WarnUnusedAlias:   {"unused-alias", true, "Warn about parameter aliases the body never reads."},
		WarnEmptyBlock:    {"empty-block", false, "Warn about labels with no instructions before the next label."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

func (c *Config) applyFlag(flag string) {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		name = trimmed
		isWarning = true
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		}
	} else {
		if f, ok := c.FeatureMap[name]; ok {
			c.SetFeature(f, enable)
		}
	}
}

// SetupFlagGroups registers the -W<warning> and -F<feature> families on the
// flag set and returns the entries so the caller can feed ProcessFlags.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) (warnings, features []cli.FlagGroupEntry) {
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		warnings = append(warnings, cli.FlagGroupEntry{
			Name: info.Name, Usage: info.Description,
			Enabled: new(bool), Disabled: new(bool),
		})
	}
	warnings = append(warnings, cli.FlagGroupEntry{
		Name: "all", Usage: "Every warning at once.",
		Enabled: new(bool), Disabled: new(bool),
	})
	fs.AddFlagGroup("Warnings", "W", "warning", warnings)

	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		features = append(features, cli.FlagGroupEntry{
			Name: info.Name, Usage: info.Description,
			Enabled: new(bool), Disabled: new(bool),
		})
	}
	fs.AddFlagGroup("Features", "F", "feature", features)
	return warnings, features
}

// ProcessFlags applies -W/-F flags in two passes so that a broad -Wall or
// -Wno-all never overrides a specific flag, regardless of order.
func (c *Config) ProcessFlags(visitFlag func(fn func(name string))) {
	visitFlag(func(name string) {
		if name == "Wall" || name == "Wno-all" {
			c.applyFlag("-" + name)
		}
	})
	visitFlag(func(name string) {
		if name != "Wall" && name != "Wno-all" {
			c.applyFlag("-" + name)
		}
	})
}
