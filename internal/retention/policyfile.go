package retention

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// PolicyFile is the on-disk TOML shape for a retention configuration,
// grounded on the teacher's own TOML encoding convention (its formula
// definitions round-trip through github.com/BurntSushi/toml).
//
//	[keep]
//	explicit_versions = [0, 1, 2]
//	keep_time = "30d"
//	keep_versions = 10
//	allow_full_removal = false
//
//	[[keep.schedule]]
//	timeframe = "7d"
//	interval = "1d"
//
//	[[keep.schedule]]
//	timeframe = "30d"
//	interval = "7d"
type PolicyFile struct {
	Keep PolicyFileKeep `toml:"keep"`
}

type PolicyFileKeep struct {
	ExplicitVersions []int             `toml:"explicit_versions"`
	KeepTime         string            `toml:"keep_time"`
	KeepVersions     int               `toml:"keep_versions"`
	AllowFullRemoval bool              `toml:"allow_full_removal"`
	Schedule         []PolicyFileEntry `toml:"schedule"`
}

type PolicyFileEntry struct {
	Timeframe string `toml:"timeframe"`
	Interval  string `toml:"interval"`
}

// LoadPolicyFile decodes a retention policy TOML file at path.
func LoadPolicyFile(path string) (*PolicyFile, error) {
	var pf PolicyFile
	if _, err := toml.DecodeFile(path, &pf); err != nil {
		return nil, fmt.Errorf("load retention policy %s: %w", path, err)
	}
	return &pf, nil
}

// BuildRemovers turns a decoded PolicyFile into the Remover set
// Evaluate expects, resolving duration strings with time.ParseDuration
// (extended informally to accept a trailing "d" for days, since
// operators write retention windows in days far more often than
// hours).
func (pf *PolicyFile) BuildRemovers(now time.Time) ([]Remover, error) {
	var removers []Remover

	if len(pf.Keep.ExplicitVersions) > 0 {
		versions := make(map[int]bool, len(pf.Keep.ExplicitVersions))
		for _, v := range pf.Keep.ExplicitVersions {
			versions[v] = true
		}
		removers = append(removers, ExplicitVersionsRemover{Versions: versions})
	}

	if pf.Keep.KeepTime != "" {
		d, err := parseDuration(pf.Keep.KeepTime)
		if err != nil {
			return nil, fmt.Errorf("keep_time: %w", err)
		}
		removers = append(removers, KeepTimeRemover{Cutoff: now.Add(-d)})
	}

	if pf.Keep.KeepVersions > 0 {
		removers = append(removers, KeepVersionsRemover{N: pf.Keep.KeepVersions})
	}

	if len(pf.Keep.Schedule) > 0 {
		timeframes := make([]TimeframeInterval, 0, len(pf.Keep.Schedule))
		for _, e := range pf.Keep.Schedule {
			tf, err := parseDuration(e.Timeframe)
			if err != nil {
				return nil, fmt.Errorf("schedule timeframe %q: %w", e.Timeframe, err)
			}
			iv, err := parseDuration(e.Interval)
			if err != nil {
				return nil, fmt.Errorf("schedule interval %q: %w", e.Interval, err)
			}
			timeframes = append(timeframes, TimeframeInterval{Timeframe: tf, Interval: iv})
		}
		removers = append(removers, RetentionPolicyRemover{
			Timeframes:       timeframes,
			Now:              now,
			AllowFullRemoval: pf.Keep.AllowFullRemoval,
		})
	}

	return removers, nil
}

// parseDuration extends time.ParseDuration with a "d" (day) unit,
// since nothing in the standard library accepts one.
func parseDuration(s string) (time.Duration, error) {
	if n := len(s); n > 1 && s[n-1] == 'd' {
		days, err := time.ParseDuration(s[:n-1] + "h")
		if err != nil {
			return 0, err
		}
		return days * 24, nil
	}
	return time.ParseDuration(s)
}
