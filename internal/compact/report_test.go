package compact

import "testing"

func TestEvaluateCleanDelete(t *testing.T) {
	report := []VolumeWaste{
		{VolumeID: 1, DataSize: 100, WastedSize: 100, CompressedSize: 50},
		{VolumeID: 2, DataSize: 100, WastedSize: 20, CompressedSize: 90},
	}
	d := Evaluate(report, Thresholds{VolumeSize: 1000, WasteThreshold: 0.5, SmallFileSize: 10, MaxSmallFileCount: 5})

	if len(d.CleanDelete) != 1 || d.CleanDelete[0].VolumeID != 1 {
		t.Fatalf("expected volume 1 to be clean-delete, got %+v", d.CleanDelete)
	}
	if !d.ShouldReclaim {
		t.Error("expected ShouldReclaim to be true when a clean-delete volume exists")
	}
	for _, v := range d.Waste {
		if v.VolumeID == 1 {
			t.Error("clean-delete volume should not also appear in Waste")
		}
	}
}

func TestEvaluateWastePercentage(t *testing.T) {
	report := []VolumeWaste{
		{VolumeID: 1, DataSize: 100, WastedSize: 60, CompressedSize: 100},
		{VolumeID: 2, DataSize: 100, WastedSize: 60, CompressedSize: 100},
		{VolumeID: 3, DataSize: 100, WastedSize: 5, CompressedSize: 100},
	}
	d := Evaluate(report, Thresholds{VolumeSize: 1000, WasteThreshold: 0.5, SmallFileSize: 0, MaxSmallFileCount: 100})

	if len(d.Waste) != 2 {
		t.Fatalf("expected 2 wasteful volumes, got %d", len(d.Waste))
	}
	if !d.ShouldCompact {
		t.Error("expected ShouldCompact when waste ratio and count both clear threshold")
	}
}

func TestEvaluateSmallFiles(t *testing.T) {
	report := []VolumeWaste{
		{VolumeID: 1, DataSize: 10, WastedSize: 0, CompressedSize: 5},
		{VolumeID: 2, DataSize: 10, WastedSize: 0, CompressedSize: 5},
	}
	d := Evaluate(report, Thresholds{VolumeSize: 1000, WasteThreshold: 0.9, SmallFileSize: 20, MaxSmallFileCount: 1})

	if len(d.Small) != 2 {
		t.Fatalf("expected both volumes flagged small, got %d", len(d.Small))
	}
	if !d.ShouldCompact {
		t.Error("expected ShouldCompact when small-file count exceeds MaxSmallFileCount")
	}
}

func TestUnionPreservingWasteOrder(t *testing.T) {
	waste := []VolumeWaste{{VolumeID: 2}, {VolumeID: 1}}
	small := []VolumeWaste{{VolumeID: 1}, {VolumeID: 3}}

	got := unionPreservingWasteOrder(waste, small)
	want := []int64{2, 1, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i, v := range got {
		if v.VolumeID != want[i] {
			t.Errorf("entry %d: got volume %d, want %d", i, v.VolumeID, want[i])
		}
	}
}
