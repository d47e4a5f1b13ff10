package detect

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"keeper/internal/bucket"
	"keeper/internal/config"
	"keeper/internal/errs"
	"keeper/internal/logging"
	"keeper/internal/media"
	"keeper/internal/plan"
	"keeper/internal/signature"
)

// Detector runs detection passes with a fixed configuration. Configuration is
// treated as immutable for the duration of a pass.
type Detector struct {
	cfg    *config.Config
	sigs   SignatureSource
	logger *slog.Logger
	ignore IgnorePredicate
}

// Option customizes a Detector.
type Option func(*Detector)

// WithIgnorePredicate installs an externally-owned pair suppression callback.
func WithIgnorePredicate(pred IgnorePredicate) Option {
	return func(d *Detector) { d.ignore = pred }
}

// NewDetector constructs a detector over the provided signature source.
func NewDetector(cfg *config.Config, sigs SignatureSource, logger *slog.Logger, opts ...Option) *Detector {
	d := &Detector{
		cfg:    cfg,
		sigs:   sigs,
		logger: logging.NewComponentLogger(logger, "detect"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Pass is one in-flight detection pass. Events is drained lazily by the
// caller; Wait blocks until the pass finishes.
type Pass struct {
	events chan ProgressEvent
	done   chan struct{}
	result *Result
	err    error
}

// Events returns the progress stream. The channel is closed when the pass
// completes. Emission is sampled: when the buffer is full, events are dropped
// rather than stalling detection.
func (p *Pass) Events() <-chan ProgressEvent { return p.events }

// Wait blocks until the pass completes and returns its result. On
// cancellation the result is partial and flagged incomplete, and the error
// wraps ErrCancelled.
func (p *Pass) Wait() (*Result, error) {
	<-p.done
	return p.result, p.err
}

func (p *Pass) emit(event ProgressEvent) {
	select {
	case p.events <- event:
	default:
	}
}

// Start begins a detection pass over a snapshot of the provided assets and
// returns immediately. The snapshot is taken here, so scanner mutations after
// Start never tear the pass.
func (d *Detector) Start(ctx context.Context, assets []media.Asset) *Pass {
	snapshot := media.Snapshot(assets)
	p := &Pass{
		events: make(chan ProgressEvent, len(snapshot)+64),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		defer close(p.events)
		p.result, p.err = d.run(ctx, snapshot, p)
	}()
	return p
}

// Run executes a pass synchronously, discarding progress events.
func (d *Detector) Run(ctx context.Context, assets []media.Asset) (*Result, error) {
	pass := d.Start(ctx, assets)
	for range pass.Events() {
	}
	return pass.Wait()
}

func (d *Detector) run(ctx context.Context, snapshot []media.Asset, p *Pass) (*Result, error) {
	result := &Result{}

	// Pass 1: exact checksum groups. No signature work for these assets.
	exactGroups, remaining := d.exactPass(snapshot)
	result.Groups = append(result.Groups, exactGroups...)
	p.emit(ProgressEvent{Stage: "exact", Completed: len(snapshot) - len(remaining), Total: len(snapshot)})

	// Pass 2: signatures, bucketed pairwise scoring, clustering.
	sigs, failures, cancelled := d.signaturePhase(ctx, snapshot, remaining, p)
	result.SignatureFailures = failures

	pairs, comparisons, compareCancelled := d.comparePhase(ctx, snapshot, remaining, sigs, p)
	result.Comparisons = comparisons
	cancelled = cancelled || compareCancelled

	result.Groups = append(result.Groups, d.cluster(snapshot, pairs)...)

	sort.Slice(result.Groups, func(i, j int) bool {
		return result.Groups[i].Members[0] < result.Groups[j].Members[0]
	})
	p.emit(ProgressEvent{Stage: "cluster", Completed: len(result.Groups), Total: len(result.Groups)})

	d.logger.Info("detection pass finished",
		logging.Int("assets", len(snapshot)),
		logging.Int("groups", len(result.Groups)),
		logging.Int("comparisons", comparisons),
		logging.Int("signature_failures", failures),
		logging.Bool("cancelled", cancelled),
	)

	if cancelled {
		result.Incomplete = true
		for i := range result.Groups {
			result.Groups[i].Incomplete = true
		}
		return result, errs.Wrap(errs.ErrCancelled, "detect", "run pass", "cancelled between asset boundaries", ctx.Err())
	}
	return result, nil
}

// exactPass groups byte-identical assets by checksum at confidence 1.0 and
// returns the snapshot indices left for candidate comparison.
func (d *Detector) exactPass(snapshot []media.Asset) ([]Group, []int) {
	byChecksum := make(map[string][]int)
	for i, asset := range snapshot {
		if asset.Checksum == "" {
			continue
		}
		byChecksum[asset.Checksum] = append(byChecksum[asset.Checksum], i)
	}

	grouped := make(map[int]bool)
	var groups []Group
	for _, indices := range byChecksum {
		if len(indices) < 2 {
			continue
		}
		members := make([]string, 0, len(indices))
		assets := make([]media.Asset, 0, len(indices))
		for _, idx := range indices {
			grouped[idx] = true
			members = append(members, snapshot[idx].ID)
			assets = append(assets, snapshot[idx])
		}
		sort.Strings(members)
		groups = append(groups, Group{
			ID:         GroupID(members),
			Members:    members,
			Confidence: 1.0,
			Rationale: []Signal{{
				Name: SignalChecksum, Value: 1, Threshold: 1,
				Contribution: 1, Verdict: VerdictPass,
			}},
			SuggestedKeeper: plan.SelectKeeper(assets).ID,
			Status:          StatusOpen,
		})
	}

	remaining := make([]int, 0, len(snapshot)-len(grouped))
	for i := range snapshot {
		if !grouped[i] {
			remaining = append(remaining, i)
		}
	}
	return groups, remaining
}

// signaturePhase computes perceptual signatures for the remaining assets on a
// bounded worker pool. Each worker checks for cancellation before starting an
// asset, so a cancelled phase stops at an asset boundary and returns what it
// has. Signature failures are tolerated; the asset simply scores without a
// perceptual signal.
func (d *Detector) signaturePhase(ctx context.Context, snapshot []media.Asset, remaining []int, p *Pass) (*sigTable, int, bool) {
	sigs := &sigTable{
		images: make(map[int]signature.Signature),
		videos: make(map[int]signature.VideoSignature),
	}

	var mu sync.Mutex
	failures := 0
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers())
	for _, idx := range remaining {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			asset := snapshot[idx]
			var err error
			switch asset.Type {
			case media.TypePhoto:
				var sig signature.Signature
				if sig, err = d.sigs.ComputeImage(gctx, asset); err == nil {
					mu.Lock()
					sigs.images[idx] = sig
					mu.Unlock()
				}
			case media.TypeVideo:
				var sig signature.VideoSignature
				if sig, err = d.sigs.ComputeVideo(gctx, asset); err == nil {
					mu.Lock()
					sigs.videos[idx] = sig
					mu.Unlock()
				}
			default:
				// Audio has no perceptual signature; checksum and
				// metadata signals carry it.
			}

			mu.Lock()
			if err != nil && gctx.Err() == nil {
				failures++
				d.logger.Debug("signature unavailable",
					logging.String(logging.FieldAssetID, asset.ID),
					logging.Error(err),
				)
			}
			completed++
			done := completed
			mu.Unlock()
			p.emit(ProgressEvent{Stage: "signatures", Completed: done, Total: len(remaining), AssetID: asset.ID})
			return nil
		})
	}
	_ = g.Wait()

	return sigs, failures, ctx.Err() != nil
}

// scoredPair is one comparison result; i < j index the snapshot.
type scoredPair struct {
	i, j      int
	score     float64
	rationale []Signal
}

// comparePhase scores same-bucket pairs in parallel across buckets, then
// merges per-bucket results in deterministic bucket order. Overlapping fuzzy
// buckets can produce the same pair twice; the first occurrence wins.
func (d *Detector) comparePhase(ctx context.Context, snapshot []media.Asset, remaining []int, sigs *sigTable, p *Pass) ([]scoredPair, int, bool) {
	buckets := bucket.Partition(subset(snapshot, remaining), d.cfg.Detection.BucketTolerance)

	perBucket := make([][]scoredPair, len(buckets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers())
	for bi, b := range buckets {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			var scored []scoredPair
			for x := 0; x < len(b.Indices); x++ {
				for y := x + 1; y < len(b.Indices); y++ {
					i, j := remaining[b.Indices[x]], remaining[b.Indices[y]]
					a, c := snapshot[i], snapshot[j]
					if d.ignore != nil && d.ignore(a.ID, c.ID) {
						continue
					}
					score, rationale := d.scorePair(i, j, a, c, sigs)
					scored = append(scored, scoredPair{i: i, j: j, score: score, rationale: rationale})
				}
			}
			perBucket[bi] = scored
			p.emit(ProgressEvent{Stage: "compare", Completed: bi + 1, Total: len(buckets)})
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[[2]int]bool)
	var pairs []scoredPair
	comparisons := 0
	for _, scored := range perBucket {
		for _, pair := range scored {
			key := [2]int{pair.i, pair.j}
			if seen[key] {
				continue
			}
			seen[key] = true
			comparisons++
			pairs = append(pairs, pair)
		}
	}
	return pairs, comparisons, ctx.Err() != nil
}

// cluster unions every pair at or above the review threshold, then reports
// connected components as groups. A group's confidence is the minimum score
// among its scored member pairs, so a weak transitive link caps the whole
// group; groups below the auto-merge threshold are flagged incomplete and are
// never auto-actionable.
func (d *Detector) cluster(snapshot []media.Asset, pairs []scoredPair) []Group {
	uf := newUnionFind(len(snapshot))
	for _, pair := range pairs {
		if pair.score >= d.cfg.Detection.ReviewThreshold {
			uf.union(pair.i, pair.j)
		}
	}

	// Minimum scored pair per component, including scored pairs that fell
	// below the review threshold but whose endpoints got chained together
	// anyway.
	minPair := make(map[int]scoredPair)
	for _, pair := range pairs {
		root := uf.find(pair.i)
		if root != uf.find(pair.j) {
			continue
		}
		current, ok := minPair[root]
		if !ok || pair.score < current.score {
			minPair[root] = pair
		}
	}

	componentMembers := make(map[int][]int)
	for _, pair := range pairs {
		if pair.score < d.cfg.Detection.ReviewThreshold {
			continue
		}
		root := uf.find(pair.i)
		componentMembers[root] = append(componentMembers[root], pair.i, pair.j)
	}

	var groups []Group
	for root, indices := range componentMembers {
		memberSet := make(map[int]bool, len(indices))
		for _, idx := range indices {
			memberSet[idx] = true
		}
		members := make([]string, 0, len(memberSet))
		assets := make([]media.Asset, 0, len(memberSet))
		for idx := range memberSet {
			members = append(members, snapshot[idx].ID)
			assets = append(assets, snapshot[idx])
		}
		sort.Strings(members)

		weakest := minPair[root]
		group := Group{
			ID:              GroupID(members),
			Members:         members,
			Confidence:      weakest.score,
			Rationale:       weakest.rationale,
			SuggestedKeeper: plan.SelectKeeper(assets).ID,
			Status:          StatusOpen,
		}
		if group.Confidence < d.cfg.Detection.AutoMergeThreshold {
			group.Incomplete = true
		}
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Members[0] < groups[j].Members[0] })
	return groups
}

func (d *Detector) workers() int {
	if d.cfg.Detection.Workers > 0 {
		return d.cfg.Detection.Workers
	}
	return runtime.NumCPU()
}

func subset(snapshot []media.Asset, indices []int) []media.Asset {
	out := make([]media.Asset, 0, len(indices))
	for _, idx := range indices {
		out = append(out, snapshot[idx])
	}
	return out
}
