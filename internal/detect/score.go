package detect

import (
	"math"
	"time"

	"keeper/internal/media"
	"keeper/internal/signature"
	"keeper/internal/textutil"
)

// Signal names reported in group rationale.
const (
	SignalChecksum    = "checksum"
	SignalPerceptual  = "perceptual"
	SignalFilename    = "filename"
	SignalCaptureTime = "capture_time"
	SignalDimensions  = "dimensions"
	SignalSpecialPair = "special_pair"

	PenaltyDateGap        = "date_gap"
	PenaltyCameraMismatch = "camera_mismatch"
)

// sigTable holds the signatures computed for one pass, indexed by snapshot
// position. Entries are absent when computation failed or was skipped.
type sigTable struct {
	images map[int]signature.Signature
	videos map[int]signature.VideoSignature
}

// scorePair aggregates weighted signals minus penalties for one candidate
// pair, clamped to [0,1]. The returned rationale lists every judged signal
// in evaluation order.
func (d *Detector) scorePair(i, j int, a, b media.Asset, sigs *sigTable) (float64, []Signal) {
	w := d.cfg.Weights
	det := d.cfg.Detection
	rationale := make([]Signal, 0, 7)
	total := 0.0

	// Checksum equality. Exact groups are built in pass 1, so this fires
	// here only for assets whose checksums arrived after bucketing.
	if a.Checksum != "" && a.Checksum == b.Checksum {
		total += w.Checksum
		rationale = append(rationale, Signal{
			Name: SignalChecksum, Value: 1, Threshold: 1,
			Contribution: w.Checksum, Verdict: VerdictPass,
		})
	}

	// Perceptual distance against the configured cutoff.
	if dist, ok := perceptualDistance(i, j, a, sigs); ok {
		sig := Signal{Name: SignalPerceptual, Value: float64(dist), Threshold: float64(det.PerceptualDistanceCutoff)}
		switch {
		case dist <= det.PerceptualDistanceCutoff:
			sig.Verdict = VerdictPass
			sig.Contribution = w.Perceptual * (1 - float64(dist)/float64(det.PerceptualDistanceCutoff+1))
		case dist <= 2*det.PerceptualDistanceCutoff:
			sig.Verdict = VerdictWarn
		default:
			sig.Verdict = VerdictFail
		}
		total += sig.Contribution
		rationale = append(rationale, sig)
	}

	// Filename similarity.
	if simValue := textutil.FilenameSimilarity(a.Path, b.Path); simValue > 0 {
		sig := Signal{Name: SignalFilename, Value: simValue, Threshold: 0.4, Contribution: w.Filename * simValue}
		switch {
		case simValue >= 0.8:
			sig.Verdict = VerdictPass
		case simValue >= 0.4:
			sig.Verdict = VerdictWarn
		default:
			sig.Verdict = VerdictFail
			sig.Contribution = 0
		}
		total += sig.Contribution
		rationale = append(rationale, sig)
	}

	// Capture-date proximity.
	window := time.Duration(det.CaptureWindowSeconds) * time.Second
	if !a.CaptureTime.IsZero() && !b.CaptureTime.IsZero() && window > 0 {
		delta := a.CaptureTime.Sub(b.CaptureTime).Abs()
		sig := Signal{Name: SignalCaptureTime, Value: delta.Seconds(), Threshold: window.Seconds()}
		if delta <= window {
			sig.Verdict = VerdictPass
			sig.Contribution = w.CaptureTime * (1 - delta.Seconds()/window.Seconds())
		} else {
			sig.Verdict = VerdictFail
		}
		total += sig.Contribution
		rationale = append(rationale, sig)
	}

	// Dimension or duration equality.
	if sig, ok := dimensionSignal(a, b, w.Dimensions); ok {
		total += sig.Contribution
		rationale = append(rationale, sig)
	}

	// Penalties.
	gap := time.Duration(det.DateGapDays) * 24 * time.Hour
	if !a.CaptureTime.IsZero() && !b.CaptureTime.IsZero() && gap > 0 {
		if delta := a.CaptureTime.Sub(b.CaptureTime).Abs(); delta > gap {
			total -= w.DateGapPenalty
			rationale = append(rationale, Signal{
				Name: PenaltyDateGap, Value: delta.Hours() / 24, Threshold: gap.Hours() / 24,
				Contribution: w.DateGapPenalty, Penalty: true, Verdict: VerdictFail,
			})
		}
	}
	if a.CameraModel != "" && b.CameraModel != "" && a.CameraModel != b.CameraModel {
		total -= w.CameraMismatchPenalty
		rationale = append(rationale, Signal{
			Name: PenaltyCameraMismatch, Value: 1, Threshold: 0,
			Contribution: w.CameraMismatchPenalty, Penalty: true, Verdict: VerdictFail,
		})
	}

	// Special-pair bonus applies only to pairs that are already candidates
	// on baseline evidence; pairing never substitutes for similarity.
	baseline := clamp01(total)
	if baseline >= det.ReviewThreshold && a.PairedWith(b) {
		total += w.SpecialPairBonus
		rationale = append(rationale, Signal{
			Name: SignalSpecialPair, Value: 1, Threshold: det.ReviewThreshold,
			Contribution: w.SpecialPairBonus, Verdict: VerdictPass,
		})
	}

	return clamp01(total), rationale
}

func perceptualDistance(i, j int, a media.Asset, sigs *sigTable) (int, bool) {
	if a.Type == media.TypeVideo {
		va, okA := sigs.videos[i]
		vb, okB := sigs.videos[j]
		if !okA || !okB {
			return 0, false
		}
		return va.DistanceTo(vb)
	}
	sa, okA := sigs.images[i]
	sb, okB := sigs.images[j]
	if !okA || !okB {
		return 0, false
	}
	return sa.DistanceTo(sb), true
}

func dimensionSignal(a, b media.Asset, weight float64) (Signal, bool) {
	switch a.Type {
	case media.TypePhoto:
		if a.Width == 0 || a.Height == 0 || b.Width == 0 || b.Height == 0 {
			return Signal{}, false
		}
		same := (a.Width == b.Width && a.Height == b.Height) ||
			(a.Width == b.Height && a.Height == b.Width) // rotated copy
		sig := Signal{Name: SignalDimensions, Threshold: 1}
		if same {
			sig.Value = 1
			sig.Verdict = VerdictPass
			sig.Contribution = weight
		} else {
			sig.Verdict = VerdictFail
		}
		return sig, true
	default:
		if a.Duration == 0 || b.Duration == 0 {
			return Signal{}, false
		}
		delta := (a.Duration - b.Duration).Abs()
		sig := Signal{Name: SignalDimensions, Value: delta.Seconds(), Threshold: 1}
		if delta <= time.Second {
			sig.Verdict = VerdictPass
			sig.Contribution = weight
		} else {
			sig.Verdict = VerdictFail
		}
		return sig, true
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
