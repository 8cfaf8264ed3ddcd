// Package compact computes the wasted-space report, decides which
// block volumes are worth reclaiming or compacting, and orchestrates
// block reassignment and delete ordering.
package compact

import (
	"context"
	"fmt"
	"sort"

	"github.com/blockvault/blockvault/internal/model"
	"github.com/blockvault/blockvault/internal/storage"
)

// VolumeWaste is one row of the wasted-space report (spec §4.4).
type VolumeWaste struct {
	VolumeID       int64
	ActiveSize     int64
	InactiveSize   int64
	DataSize       int64 // ActiveSize + InactiveSize
	WastedSize     int64 // == InactiveSize
	CompressedSize int64 // physical remote size
	SortTime       int64 // earliest fileset timestamp in the database (the same for every row), 0 if none
}

// WastedSpaceReport computes a VolumeWaste row for every Blocks volume,
// stably sorted by SortTime ascending. SortTime is the same for every
// row, so the rows keep the order ListRemoteVolumes returned them in.
func WastedSpaceReport(ctx context.Context, s storage.Storage) ([]VolumeWaste, error) {
	volumes, err := s.ListRemoteVolumes(ctx, model.VolumeTypeBlocks)
	if err != nil {
		return nil, fmt.Errorf("wasted space report: list block volumes: %w", err)
	}

	timestamps, err := s.FilesetTimestamps(ctx)
	if err != nil {
		return nil, fmt.Errorf("wasted space report: list fileset timestamps: %w", err)
	}
	earliestFileset := int64(0)
	if len(timestamps) > 0 {
		earliestFileset = timestamps[0]
	}

	report := make([]VolumeWaste, 0, len(volumes))
	for _, v := range volumes {
		active, inactive, err := s.VolumeUsage(ctx, v.ID)
		if err != nil {
			return nil, fmt.Errorf("wasted space report: volume %d: %w", v.ID, err)
		}
		report = append(report, VolumeWaste{
			VolumeID:       v.ID,
			ActiveSize:     active,
			InactiveSize:   inactive,
			DataSize:       active + inactive,
			WastedSize:     inactive,
			CompressedSize: v.Size,
			// Every volume gets the database's earliest fileset
			// timestamp; no per-volume lookup of the filesets that
			// reference it is made.
			SortTime: earliestFileset,
		})
	}

	sort.SliceStable(report, func(i, j int) bool {
		return report[i].SortTime < report[j].SortTime
	})
	return report, nil
}

// Thresholds parameterises the compact decision rules (spec §4.5).
type Thresholds struct {
	VolumeSize        int64
	WasteThreshold    float64 // fraction, e.g. 0.2 for 20%
	SmallFileSize     int64
	MaxSmallFileCount int
}

// Decision is the outcome of evaluating the wasted-space report against
// Thresholds.
type Decision struct {
	CleanDelete        []VolumeWaste
	Waste              []VolumeWaste
	Small              []VolumeWaste
	ShouldReclaim      bool
	ShouldCompact      bool
	CompactableVolumes []VolumeWaste
}

// Evaluate applies the compact decision rules (spec §4.5) to report.
func Evaluate(report []VolumeWaste, t Thresholds) Decision {
	var d Decision
	cleanDelete := make(map[int64]bool)

	for _, v := range report {
		if v.DataSize <= v.WastedSize {
			d.CleanDelete = append(d.CleanDelete, v)
			cleanDelete[v.VolumeID] = true
		}
	}

	var wasteCompressedTotal int64
	for _, v := range report {
		if cleanDelete[v.VolumeID] {
			continue
		}
		wastedByData := v.DataSize > 0 && float64(v.WastedSize)/float64(v.DataSize) >= t.WasteThreshold
		wastedByVolume := t.VolumeSize > 0 && float64(v.WastedSize)/float64(t.VolumeSize) >= t.WasteThreshold
		if wastedByData || wastedByVolume {
			d.Waste = append(d.Waste, v)
			wasteCompressedTotal += v.CompressedSize
		}
	}

	var smallCompressedTotal int64
	for _, v := range report {
		if cleanDelete[v.VolumeID] {
			continue
		}
		if v.CompressedSize <= t.SmallFileSize {
			d.Small = append(d.Small, v)
			smallCompressedTotal += v.CompressedSize
		}
	}

	d.ShouldReclaim = len(d.CleanDelete) > 0

	wastePercentageOK := len(report) > 0 && float64(len(d.Waste))/float64(len(report)) >= t.WasteThreshold
	d.ShouldCompact = (wastePercentageOK && len(d.Waste) >= 2) ||
		smallCompressedTotal > t.VolumeSize ||
		len(d.Small) > t.MaxSmallFileCount

	d.CompactableVolumes = unionPreservingWasteOrder(d.Waste, d.Small)
	return d
}

// unionPreservingWasteOrder returns waste followed by any entries in
// small not already present, keeping waste's oldest-first ordering.
func unionPreservingWasteOrder(waste, small []VolumeWaste) []VolumeWaste {
	seen := make(map[int64]bool, len(waste))
	out := make([]VolumeWaste, 0, len(waste)+len(small))
	for _, v := range waste {
		seen[v.VolumeID] = true
		out = append(out, v)
	}
	for _, v := range small {
		if !seen[v.VolumeID] {
			seen[v.VolumeID] = true
			out = append(out, v)
		}
	}
	return out
}
