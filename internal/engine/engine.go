package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"keeper/internal/config"
	"keeper/internal/detect"
	"keeper/internal/errs"
	"keeper/internal/ledger"
	"keeper/internal/logging"
	"keeper/internal/media"
	"keeper/internal/merge"
	"keeper/internal/plan"
	"keeper/internal/signature"
)

// Engine bundles the duplicate manager's moving parts behind one handle.
type Engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *ledger.Store
	detector *detect.Detector
	executor *merge.Executor
}

// Option customizes engine construction.
type Option func(*options)

type options struct {
	decoder  signature.FrameDecoder
	ignore   detect.IgnorePredicate
	execOpts []merge.Option
}

// WithFrameDecoder supplies the video frame decoder. Without one, video
// assets fall back to checksum and metadata signals only.
func WithFrameDecoder(decoder signature.FrameDecoder) Option {
	return func(o *options) { o.decoder = decoder }
}

// WithIgnorePredicate suppresses known-distinct pairs during detection.
func WithIgnorePredicate(pred detect.IgnorePredicate) Option {
	return func(o *options) { o.ignore = pred }
}

// WithExecutorOptions forwards options to the merge executor.
func WithExecutorOptions(opts ...merge.Option) Option {
	return func(o *options) { o.execOpts = append(o.execOpts, opts...) }
}

// New opens the ledger and runs crash recovery before returning. Any merge
// left pending by a previous run is rolled back here; no operation is
// accepted against an unrecovered ledger.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store, err := ledger.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	service := signature.NewService(signature.Options{
		VideoFramesMin: cfg.Detection.VideoFramesMin,
		VideoFramesMax: cfg.Detection.VideoFramesMax,
		VideoShort:     time.Duration(cfg.Detection.VideoShortSeconds) * time.Second,
	}, o.decoder)

	engineLogger := logging.NewComponentLogger(logger, "engine")
	eng := &Engine{
		cfg:    cfg,
		logger: engineLogger,
		store:  store,
		detector: detect.NewDetector(cfg, &persistentSignatures{service: service, store: store},
			logger, detectOptions(o)...),
		executor: merge.NewExecutor(cfg, store, logger, o.execOpts...),
	}

	recovered, err := eng.executor.Recover(context.Background())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("startup recovery: %w", err)
	}
	if recovered > 0 {
		engineLogger.Warn("rolled back crashed merges", logging.Int("count", recovered))
	}
	return eng, nil
}

func detectOptions(o options) []detect.Option {
	if o.ignore == nil {
		return nil
	}
	return []detect.Option{detect.WithIgnorePredicate(o.ignore)}
}

// Close releases the ledger.
func (e *Engine) Close() error { return e.store.Close() }

// Detect runs a full detection pass and persists the resulting groups. The
// returned pass streams progress; callers wanting a blocking run use Wait.
func (e *Engine) Detect(ctx context.Context, assets []media.Asset) *detect.Pass {
	return e.detector.Start(ctx, assets)
}

// DetectAndSave runs a blocking detection pass and stores its groups.
// Cancellation still returns the partial result; partial groups are flagged
// incomplete and are not persisted.
func (e *Engine) DetectAndSave(ctx context.Context, assets []media.Asset) (*detect.Result, error) {
	result, err := e.detector.Run(ctx, assets)
	if err != nil {
		return result, err
	}
	if saveErr := e.SaveGroups(ctx, result.Groups); saveErr != nil {
		return result, saveErr
	}
	return result, nil
}

// SaveGroups persists detection output.
func (e *Engine) SaveGroups(ctx context.Context, groups []detect.Group) error {
	if err := e.store.SaveGroups(ctx, groups); err != nil {
		return fmt.Errorf("persist groups: %w", err)
	}
	return nil
}

// Groups lists stored groups, optionally filtered by status.
func (e *Engine) Groups(ctx context.Context, status detect.Status) ([]detect.Group, error) {
	return e.store.LoadGroups(ctx, status)
}

// Group fetches one stored group.
func (e *Engine) Group(ctx context.Context, id string) (detect.Group, error) {
	return e.store.GetGroup(ctx, id)
}

// IgnoreGroup marks a group ignored so later passes stop surfacing it.
func (e *Engine) IgnoreGroup(ctx context.Context, id string) error {
	if _, err := e.store.GetGroup(ctx, id); err != nil {
		return err
	}
	return e.store.UpdateGroupStatus(ctx, id, detect.StatusIgnored)
}

// PlanGroup builds the merge plan for a stored group. keeperOverride, when
// non-empty, must name a member.
func (e *Engine) PlanGroup(ctx context.Context, groupID string, assets []media.Asset, keeperOverride string) (plan.Plan, error) {
	group, err := e.store.GetGroup(ctx, groupID)
	if err != nil {
		return plan.Plan{}, err
	}
	members, err := memberAssets(group, assets)
	if err != nil {
		return plan.Plan{}, err
	}
	return plan.PlanMerge(group.ID, members, keeperOverride)
}

// Merge executes a plan and resolves its group on success.
func (e *Engine) Merge(ctx context.Context, pln plan.Plan, assets []media.Asset) (*ledger.Transaction, error) {
	tx, err := e.executor.Execute(ctx, pln, assets)
	if err != nil {
		return tx, err
	}
	if pln.GroupID != "" {
		if statusErr := e.store.UpdateGroupStatus(ctx, pln.GroupID, detect.StatusResolved); statusErr != nil {
			e.logger.Error("resolve group after merge",
				logging.String(logging.FieldGroupID, pln.GroupID),
				logging.Error(statusErr),
			)
		}
	}
	return tx, nil
}

// Undo reverses a committed merge and reopens its group.
func (e *Engine) Undo(ctx context.Context, txID string) (*ledger.Transaction, error) {
	tx, err := e.executor.Undo(ctx, txID)
	if err != nil {
		return tx, err
	}
	if tx.GroupID != "" {
		if statusErr := e.store.UpdateGroupStatus(ctx, tx.GroupID, detect.StatusOpen); statusErr != nil {
			e.logger.Error("reopen group after undo",
				logging.String(logging.FieldGroupID, tx.GroupID),
				logging.Error(statusErr),
			)
		}
	}
	return tx, nil
}

// Transactions lists the merge history, newest first.
func (e *Engine) Transactions(ctx context.Context) ([]*ledger.Transaction, error) {
	return e.store.ListTransactions(ctx)
}

// Transaction fetches one transaction.
func (e *Engine) Transaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	return e.store.GetTransaction(ctx, id)
}

func memberAssets(group detect.Group, assets []media.Asset) ([]media.Asset, error) {
	byID := make(map[string]media.Asset, len(assets))
	for _, asset := range assets {
		byID[asset.ID] = asset
	}
	members := make([]media.Asset, 0, len(group.Members))
	for _, id := range group.Members {
		asset, ok := byID[id]
		if !ok {
			return nil, errs.Wrap(errs.ErrValidation, "engine", "plan group",
				fmt.Sprintf("group member %s missing from library", id), nil)
		}
		members = append(members, asset)
	}
	return members, nil
}
