package plan

import (
	"fmt"
	"sort"
	"time"

	"keeper/internal/errs"
	"keeper/internal/media"
)

// Merged metadata field names. These are the only fields a merge rewrites on
// the keeper; the keeper's format is always preserved as-is.
const (
	FieldCaptureTime = "capture_time"
	FieldTags        = "tags"
	FieldLocation    = "location"
)

// FieldChange records one metadata decision: Field on the keeper becomes
// NewValue, sourced from SourceAssetID. Callers may replace NewValue before
// handing the plan to the executor.
type FieldChange struct {
	Field         string `json:"field"`
	SourceAssetID string `json:"source_asset_id"`
	NewValue      any    `json:"new_value"`
}

// Relocation identifies one non-keeper file the executor will move into the
// holding area.
type Relocation struct {
	AssetID    string `json:"asset_id"`
	SourcePath string `json:"source_path"`
	FileSize   int64  `json:"file_size"`
}

// Plan is the full, side-effect-free description of a merge. It is a plain
// value: building one commits to nothing.
type Plan struct {
	GroupID      string        `json:"group_id"`
	KeeperID     string        `json:"keeper_id"`
	FieldChanges []FieldChange `json:"field_changes"`
	Relocate     []Relocation  `json:"relocate"`
	SpaceFreed   int64         `json:"space_freed"`
}

// SelectKeeper picks the asset to retain. Precedence: lossless format, then
// higher resolution (pixel count, or bitrate when pixels tie or are absent),
// then larger file, then earliest capture date, then lowest ID. The same
// members always yield the same keeper.
func SelectKeeper(assets []media.Asset) media.Asset {
	keeper := assets[0]
	for _, candidate := range assets[1:] {
		if betterKeeper(candidate, keeper) {
			keeper = candidate
		}
	}
	return keeper
}

func betterKeeper(a, b media.Asset) bool {
	if a.Lossless != b.Lossless {
		return a.Lossless
	}
	if ap, bp := a.Pixels(), b.Pixels(); ap != bp {
		return ap > bp
	}
	if a.Bitrate != b.Bitrate {
		return a.Bitrate > b.Bitrate
	}
	if a.FileSize != b.FileSize {
		return a.FileSize > b.FileSize
	}
	if earlier, decided := earlierCapture(a, b); decided {
		return earlier
	}
	return a.ID < b.ID
}

// earlierCapture prefers a known capture time over an unknown one, and the
// earlier of two known times. Reports decided=false when indistinguishable.
func earlierCapture(a, b media.Asset) (earlier, decided bool) {
	switch {
	case a.CaptureTime.IsZero() && b.CaptureTime.IsZero():
		return false, false
	case a.CaptureTime.IsZero():
		return false, true
	case b.CaptureTime.IsZero():
		return true, true
	case a.CaptureTime.Equal(b.CaptureTime):
		return false, false
	default:
		return a.CaptureTime.Before(b.CaptureTime), true
	}
}

// PlanMerge computes the merge plan for a group. keeperOverride, when
// non-empty, must name a member and replaces the automatic keeper choice.
// Field changes are emitted only where the merged value differs from what the
// keeper already carries.
func PlanMerge(groupID string, members []media.Asset, keeperOverride string) (Plan, error) {
	if len(members) < 2 {
		return Plan{}, errs.Wrap(errs.ErrValidation, "plan", "plan merge",
			fmt.Sprintf("group %s has %d members, need at least 2", groupID, len(members)), nil)
	}

	sorted := make([]media.Asset, len(members))
	copy(sorted, members)
	media.SortAssets(sorted)

	keeper := SelectKeeper(sorted)
	if keeperOverride != "" {
		found := false
		for _, asset := range sorted {
			if asset.ID == keeperOverride {
				keeper = asset
				found = true
				break
			}
		}
		if !found {
			return Plan{}, errs.Wrap(errs.ErrValidation, "plan", "plan merge",
				fmt.Sprintf("keeper override %s is not a member of group %s", keeperOverride, groupID), nil)
		}
	}

	p := Plan{GroupID: groupID, KeeperID: keeper.ID}
	p.FieldChanges = fieldChanges(keeper, sorted)
	for _, asset := range sorted {
		if asset.ID == keeper.ID {
			continue
		}
		p.Relocate = append(p.Relocate, Relocation{
			AssetID:    asset.ID,
			SourcePath: asset.Path,
			FileSize:   asset.FileSize,
		})
		p.SpaceFreed += asset.FileSize
	}
	return p, nil
}

func fieldChanges(keeper media.Asset, members []media.Asset) []FieldChange {
	var changes []FieldChange

	if source, when, ok := earliestCapture(members); ok {
		if keeper.CaptureTime.IsZero() || when.Before(keeper.CaptureTime) {
			changes = append(changes, FieldChange{
				Field:         FieldCaptureTime,
				SourceAssetID: source,
				NewValue:      when,
			})
		}
	}

	if merged, source, changed := unionTags(keeper, members); changed {
		changes = append(changes, FieldChange{
			Field:         FieldTags,
			SourceAssetID: source,
			NewValue:      merged,
		})
	}

	if !keeper.Location.Complete() {
		for _, asset := range members {
			if asset.ID == keeper.ID || !asset.Location.Complete() {
				continue
			}
			changes = append(changes, FieldChange{
				Field:         FieldLocation,
				SourceAssetID: asset.ID,
				NewValue:      asset.Location,
			})
			break
		}
	}

	return changes
}

// earliestCapture finds the earliest known capture time across members and
// the ID of the asset carrying it. Members are ID-sorted, so ties resolve to
// the lowest ID.
func earliestCapture(members []media.Asset) (string, time.Time, bool) {
	var (
		source string
		when   time.Time
	)
	for _, asset := range members {
		if asset.CaptureTime.IsZero() {
			continue
		}
		if source == "" || asset.CaptureTime.Before(when) {
			source, when = asset.ID, asset.CaptureTime
		}
	}
	return source, when, source != ""
}

// unionTags merges every member's tags into a sorted set. The reported source
// is the lowest-ID non-keeper member that contributed a tag the keeper lacks.
func unionTags(keeper media.Asset, members []media.Asset) ([]string, string, bool) {
	have := make(map[string]bool, len(keeper.Tags))
	for _, tag := range keeper.Tags {
		have[tag] = true
	}

	merged := make(map[string]bool, len(have))
	for tag := range have {
		merged[tag] = true
	}
	source := ""
	for _, asset := range members {
		if asset.ID == keeper.ID {
			continue
		}
		for _, tag := range asset.Tags {
			if merged[tag] {
				continue
			}
			merged[tag] = true
			if source == "" {
				source = asset.ID
			}
		}
	}
	if source == "" {
		return nil, "", false
	}

	out := make([]string, 0, len(merged))
	for tag := range merged {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out, source, true
}
