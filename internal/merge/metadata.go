package merge

import (
	"encoding/json"
	"fmt"
	"time"

	"keeper/internal/media"
	"keeper/internal/plan"
)

// sidecarSuffix names the metadata sidecar written next to the keeper.
// Embedding merged values back into EXIF or container atoms is the metadata
// decoder's job; the engine records its decisions here.
const sidecarSuffix = ".keeper.json"

func sidecarPath(keeperPath string) string {
	return keeperPath + sidecarSuffix
}

// sidecarDoc is the merged-metadata document written for the keeper.
type sidecarDoc struct {
	AssetID       string         `json:"asset_id"`
	TransactionID string         `json:"transaction_id"`
	CaptureTime   time.Time      `json:"capture_time,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Location      media.Location `json:"location,omitempty"`
	MergedAt      time.Time      `json:"merged_at"`
}

// mergedSidecar applies the plan's field changes over the keeper's current
// metadata and renders the sidecar document.
func mergedSidecar(keeper media.Asset, changes []plan.FieldChange, txID string, now time.Time) ([]byte, error) {
	doc := sidecarDoc{
		AssetID:       keeper.ID,
		TransactionID: txID,
		CaptureTime:   keeper.CaptureTime,
		Tags:          keeper.Tags,
		Location:      keeper.Location,
		MergedAt:      now.UTC(),
	}
	for _, change := range changes {
		switch change.Field {
		case plan.FieldCaptureTime:
			when, ok := change.NewValue.(time.Time)
			if !ok {
				return nil, fmt.Errorf("field %s: expected time.Time, got %T", change.Field, change.NewValue)
			}
			doc.CaptureTime = when
		case plan.FieldTags:
			tags, ok := change.NewValue.([]string)
			if !ok {
				return nil, fmt.Errorf("field %s: expected []string, got %T", change.Field, change.NewValue)
			}
			doc.Tags = tags
		case plan.FieldLocation:
			loc, ok := change.NewValue.(media.Location)
			if !ok {
				return nil, fmt.Errorf("field %s: expected media.Location, got %T", change.Field, change.NewValue)
			}
			doc.Location = loc
		default:
			return nil, fmt.Errorf("unknown merge field %q", change.Field)
		}
	}
	return json.MarshalIndent(doc, "", "  ")
}
