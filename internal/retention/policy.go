// Package retention implements the four independent fileset removers
// and their union (spec §4.8): ExplicitVersions, KeepTime,
// KeepVersions, and the timeframe/interval RetentionPolicy schedule.
package retention

import (
	"sort"
	"time"
)

// Snapshot is the subset of model.Fileset the removers need. Version is
// the zero-based index when filesets are ordered by timestamp
// descending (spec glossary: FilesetsWithBackupVersion) -- callers
// compute it once via AssignVersions and reuse it across removers.
type Snapshot struct {
	FilesetID    int64
	Timestamp    time.Time
	IsFullBackup bool
	Version      int
}

// AssignVersions sorts filesets by timestamp descending and stamps
// each with its user-visible version index.
func AssignVersions(filesets []Snapshot) []Snapshot {
	out := make([]Snapshot, len(filesets))
	copy(out, filesets)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	for i := range out {
		out[i].Version = i
	}
	return out
}

// Remover produces the set of fileset IDs it considers deletable out of
// the full, version-stamped, descending-by-time snapshot list.
type Remover interface {
	Deletable(filesets []Snapshot) map[int64]bool
}

// ExplicitVersionsRemover deletes filesets whose user-visible version
// index is named explicitly by the operator.
type ExplicitVersionsRemover struct {
	Versions map[int]bool
}

func (r ExplicitVersionsRemover) Deletable(filesets []Snapshot) map[int64]bool {
	out := make(map[int64]bool)
	for _, fs := range filesets {
		if r.Versions[fs.Version] {
			out[fs.FilesetID] = true
		}
	}
	return out
}

// KeepTimeRemover deletes filesets older than Cutoff, except that,
// scanning newest-first, the filesets older than Cutoff are retained up
// to and including the first full backup among them, even though they
// fall before Cutoff -- restoring must always have at least one full
// backup to restore from (property P4).
type KeepTimeRemover struct {
	Cutoff time.Time
}

func (r KeepTimeRemover) Deletable(filesets []Snapshot) map[int64]bool {
	ordered := AssignVersions(filesets)
	out := make(map[int64]bool)
	seenFull := false
	for _, fs := range ordered {
		if !fs.Timestamp.Before(r.Cutoff) {
			continue
		}
		if !seenFull {
			if fs.IsFullBackup {
				seenFull = true
			}
			continue
		}
		out[fs.FilesetID] = true
	}
	return out
}

// KeepVersionsRemover retains the N most recent full backups (plus
// every partial sandwiched between kept fulls) and deletes the rest
// (property P5).
type KeepVersionsRemover struct {
	N int
}

func (r KeepVersionsRemover) Deletable(filesets []Snapshot) map[int64]bool {
	ordered := AssignVersions(filesets)
	out := make(map[int64]bool)
	fullsKept := 0
	for _, fs := range ordered {
		if fullsKept < r.N {
			if fs.IsFullBackup {
				fullsKept++
			}
			continue
		}
		out[fs.FilesetID] = true
	}
	return out
}

// TimeframeInterval is one (timeframe, interval) pair of a
// RetentionPolicy schedule: within Timeframe, keep at most one backup
// per Interval.
type TimeframeInterval struct {
	Timeframe time.Duration
	Interval  time.Duration
}

// RetentionPolicyRemover implements the timeframe/interval schedule
// (spec §4.8 rule 4, property P6): timeframes are processed from
// smallest to largest regardless of input order, so the result is
// independent of how the operator listed them.
type RetentionPolicyRemover struct {
	Timeframes       []TimeframeInterval
	Now              time.Time
	AllowFullRemoval bool
}

func (r RetentionPolicyRemover) Deletable(filesets []Snapshot) map[int64]bool {
	ordered := AssignVersions(filesets)
	if len(ordered) == 0 {
		return map[int64]bool{}
	}

	timeframes := make([]TimeframeInterval, len(r.Timeframes))
	copy(timeframes, r.Timeframes)
	sort.Slice(timeframes, func(i, j int) bool { return timeframes[i].Timeframe < timeframes[j].Timeframe })

	kept := make(map[int64]bool, len(ordered))
	mostRecent := ordered[0]
	kept[mostRecent.FilesetID] = true

	rest := ordered[1:]
	consumed := make(map[int64]bool, len(rest))

	for _, tf := range timeframes {
		cutoff := r.Now.Add(-tf.Timeframe)

		withinTimeframe := make([]Snapshot, 0, len(rest))
		for _, fs := range rest {
			if consumed[fs.FilesetID] {
				continue
			}
			if !fs.Timestamp.Before(cutoff) {
				withinTimeframe = append(withinTimeframe, fs)
			}
		}
		sort.SliceStable(withinTimeframe, func(i, j int) bool {
			return withinTimeframe[i].Timestamp.Before(withinTimeframe[j].Timestamp)
		})

		var lastKept *time.Time
		for _, fs := range withinTimeframe {
			consumed[fs.FilesetID] = true
			if !fs.IsFullBackup {
				kept[fs.FilesetID] = true
				continue
			}
			if lastKept == nil || fs.Timestamp.Sub(*lastKept) >= tf.Interval {
				kept[fs.FilesetID] = true
				t := fs.Timestamp
				lastKept = &t
			}
		}
	}

	out := make(map[int64]bool)
	for _, fs := range ordered {
		if !kept[fs.FilesetID] {
			out[fs.FilesetID] = true
		}
	}

	if !r.AllowFullRemoval {
		delete(out, mostRecent.FilesetID)
	} else {
		insideTimeframe := false
		for _, tf := range timeframes {
			if !mostRecent.Timestamp.Before(r.Now.Add(-tf.Timeframe)) {
				insideTimeframe = true
			}
		}
		if !insideTimeframe {
			out[mostRecent.FilesetID] = true
		}
	}

	return out
}

// Evaluate unions every Remover's deletable set and applies the safety
// floor: if the union would delete every fileset and allowFullRemoval
// is false, the oldest entry is dropped from the delete set so at
// least one backup always survives (spec §4.8 "Safety").
func Evaluate(filesets []Snapshot, removers []Remover, allowFullRemoval bool) map[int64]bool {
	ordered := AssignVersions(filesets)

	deletable := make(map[int64]bool)
	for _, r := range removers {
		for id := range r.Deletable(ordered) {
			deletable[id] = true
		}
	}

	if !allowFullRemoval && len(deletable) == len(ordered) && len(ordered) > 0 {
		oldest := ordered[len(ordered)-1]
		delete(deletable, oldest.FilesetID)
	}

	return deletable
}
