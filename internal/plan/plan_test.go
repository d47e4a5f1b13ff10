package plan_test

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"keeper/internal/errs"
	"keeper/internal/media"
	"keeper/internal/plan"
	"keeper/internal/testsupport"
)

func TestSelectKeeperPrecedence(t *testing.T) {
	day := 24 * time.Hour

	cases := []struct {
		name   string
		assets []media.Asset
		want   string
	}{
		{
			name: "resolution wins over size",
			assets: []media.Asset{
				testsupport.PhotoAsset("a", "/p/a.jpg",
					testsupport.WithCaptureTime(testsupport.FixtureTime(day))),
				testsupport.PhotoAsset("b", "/p/b.jpg",
					testsupport.WithDimensions(1200, 900),
					testsupport.WithFileSize(99_999_999),
					testsupport.WithCaptureTime(testsupport.FixtureTime(0))),
			},
			want: "a",
		},
		{
			name: "lossless wins over resolution",
			assets: []media.Asset{
				testsupport.PhotoAsset("a", "/p/a.jpg"),
				testsupport.PhotoAsset("b", "/p/b.dng",
					testsupport.WithLossless(),
					testsupport.WithDimensions(1200, 900)),
			},
			want: "b",
		},
		{
			name: "size breaks resolution tie",
			assets: []media.Asset{
				testsupport.PhotoAsset("a", "/p/a.jpg", testsupport.WithFileSize(1000)),
				testsupport.PhotoAsset("b", "/p/b.jpg", testsupport.WithFileSize(2000)),
			},
			want: "b",
		},
		{
			name: "earliest capture breaks size tie",
			assets: []media.Asset{
				testsupport.PhotoAsset("a", "/p/a.jpg",
					testsupport.WithCaptureTime(testsupport.FixtureTime(day))),
				testsupport.PhotoAsset("b", "/p/b.jpg",
					testsupport.WithCaptureTime(testsupport.FixtureTime(0))),
			},
			want: "b",
		},
		{
			name: "lowest id is the final tiebreak",
			assets: []media.Asset{
				testsupport.PhotoAsset("b", "/p/b.jpg"),
				testsupport.PhotoAsset("a", "/p/a.jpg"),
			},
			want: "a",
		},
		{
			name: "higher bitrate wins for videos",
			assets: []media.Asset{
				testsupport.VideoAsset("a", "/v/a.mp4"),
				func() media.Asset {
					v := testsupport.VideoAsset("b", "/v/b.mp4")
					v.Bitrate = 16_000_000
					return v
				}(),
			},
			want: "b",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := plan.SelectKeeper(tc.assets).ID; got != tc.want {
				t.Fatalf("SelectKeeper = %s, want %s", got, tc.want)
			}
		})
	}
}

// The canonical scenario: A is the keeper on resolution, yet the merged
// capture date comes from B because B shot first.
func TestPlanMergeTakesEarliestCaptureFromLoser(t *testing.T) {
	captureA := time.Date(2023, 5, 2, 10, 0, 0, 0, time.UTC)
	captureB := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)

	a := testsupport.PhotoAsset("a", "/p/a.jpg", testsupport.WithCaptureTime(captureA))
	b := testsupport.PhotoAsset("b", "/p/b.jpg",
		testsupport.WithDimensions(1200, 900),
		testsupport.WithCaptureTime(captureB))

	pln, err := plan.PlanMerge("group-1", []media.Asset{a, b}, "")
	if err != nil {
		t.Fatalf("PlanMerge failed: %v", err)
	}
	if pln.KeeperID != "a" {
		t.Fatalf("keeper = %s, want a", pln.KeeperID)
	}

	var captureChange *plan.FieldChange
	for i := range pln.FieldChanges {
		if pln.FieldChanges[i].Field == plan.FieldCaptureTime {
			captureChange = &pln.FieldChanges[i]
		}
	}
	if captureChange == nil {
		t.Fatalf("expected a capture time change, got %+v", pln.FieldChanges)
	}
	if captureChange.SourceAssetID != "b" {
		t.Fatalf("capture change sourced from %s, want b", captureChange.SourceAssetID)
	}
	if when, ok := captureChange.NewValue.(time.Time); !ok || !when.Equal(captureB) {
		t.Fatalf("capture change value = %v, want %v", captureChange.NewValue, captureB)
	}
}

func TestPlanMergeUnionsTagsAndFillsLocation(t *testing.T) {
	a := testsupport.PhotoAsset("a", "/p/a.jpg", testsupport.WithTags("beach", "family"))
	b := testsupport.PhotoAsset("b", "/p/b.jpg",
		testsupport.WithDimensions(1200, 900),
		testsupport.WithTags("family", "sunset"),
		testsupport.WithLocation(59.33, 18.07))

	pln, err := plan.PlanMerge("group-1", []media.Asset{a, b}, "")
	if err != nil {
		t.Fatalf("PlanMerge failed: %v", err)
	}

	changes := map[string]plan.FieldChange{}
	for _, change := range pln.FieldChanges {
		changes[change.Field] = change
	}

	tagChange, ok := changes[plan.FieldTags]
	if !ok {
		t.Fatal("expected a tag union change")
	}
	if got := tagChange.NewValue.([]string); !reflect.DeepEqual(got, []string{"beach", "family", "sunset"}) {
		t.Fatalf("tag union = %v", got)
	}
	if tagChange.SourceAssetID != "b" {
		t.Fatalf("tag change sourced from %s, want b", tagChange.SourceAssetID)
	}

	locChange, ok := changes[plan.FieldLocation]
	if !ok {
		t.Fatal("expected a location change for the geotagged loser")
	}
	loc := locChange.NewValue.(media.Location)
	if !loc.Complete() || loc.Latitude != 59.33 {
		t.Fatalf("location change = %+v", loc)
	}
}

func TestPlanMergeNoChangesWhenKeeperComplete(t *testing.T) {
	a := testsupport.PhotoAsset("a", "/p/a.jpg",
		testsupport.WithTags("beach"),
		testsupport.WithLocation(1, 2),
		testsupport.WithCaptureTime(testsupport.FixtureTime(0)))
	b := testsupport.PhotoAsset("b", "/p/b.jpg",
		testsupport.WithDimensions(1200, 900),
		testsupport.WithTags("beach"),
		testsupport.WithCaptureTime(testsupport.FixtureTime(time.Hour)))

	pln, err := plan.PlanMerge("group-1", []media.Asset{a, b}, "")
	if err != nil {
		t.Fatalf("PlanMerge failed: %v", err)
	}
	if len(pln.FieldChanges) != 0 {
		t.Fatalf("expected no field changes, got %+v", pln.FieldChanges)
	}
}

func TestPlanMergeRelocationsAndSpaceFreed(t *testing.T) {
	a := testsupport.PhotoAsset("a", "/p/a.jpg", testsupport.WithFileSize(5000))
	b := testsupport.PhotoAsset("b", "/p/b.jpg",
		testsupport.WithDimensions(1200, 900), testsupport.WithFileSize(3000))
	c := testsupport.PhotoAsset("c", "/p/c.jpg",
		testsupport.WithDimensions(800, 600), testsupport.WithFileSize(1000))

	pln, err := plan.PlanMerge("group-1", []media.Asset{c, a, b}, "")
	if err != nil {
		t.Fatalf("PlanMerge failed: %v", err)
	}
	if pln.KeeperID != "a" {
		t.Fatalf("keeper = %s, want a", pln.KeeperID)
	}
	if len(pln.Relocate) != 2 {
		t.Fatalf("expected two relocations, got %+v", pln.Relocate)
	}
	if pln.SpaceFreed != 4000 {
		t.Fatalf("space freed = %d, want 4000", pln.SpaceFreed)
	}
	// Relocations follow member ID order regardless of input order.
	if pln.Relocate[0].AssetID != "b" || pln.Relocate[1].AssetID != "c" {
		t.Fatalf("unexpected relocation order: %+v", pln.Relocate)
	}
}

func TestPlanMergeKeeperOverride(t *testing.T) {
	a := testsupport.PhotoAsset("a", "/p/a.jpg")
	b := testsupport.PhotoAsset("b", "/p/b.jpg", testsupport.WithDimensions(1200, 900))

	pln, err := plan.PlanMerge("group-1", []media.Asset{a, b}, "b")
	if err != nil {
		t.Fatalf("PlanMerge with override failed: %v", err)
	}
	if pln.KeeperID != "b" {
		t.Fatalf("override ignored, keeper = %s", pln.KeeperID)
	}

	if _, err := plan.PlanMerge("group-1", []media.Asset{a, b}, "zz"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown override, got %v", err)
	}
	if _, err := plan.PlanMerge("group-1", []media.Asset{a}, ""); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected ErrValidation for undersized group, got %v", err)
	}
}
