package detect

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"keeper/internal/media"
	"keeper/internal/signature"
)

// Verdict classifies how one signal judged a pair.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictWarn Verdict = "warn"
	VerdictFail Verdict = "fail"
)

// Signal is one weighted piece of evidence about a pair: the raw measured
// value, the threshold it was judged against, and what it contributed to the
// aggregate confidence. Penalty signals subtract instead of add.
type Signal struct {
	Name         string  `json:"name"`
	Value        float64 `json:"value"`
	Threshold    float64 `json:"threshold"`
	Contribution float64 `json:"contribution"`
	Penalty      bool    `json:"penalty,omitempty"`
	Verdict      Verdict `json:"verdict"`
}

// Status tracks a group's review lifecycle.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
	StatusIgnored  Status = "ignored"
)

// Group is one set of duplicate or near-duplicate assets. Members are sorted
// by asset ID; the rationale is the ordered signal list of the pair that set
// the group's (minimum) confidence.
type Group struct {
	ID              string   `json:"id"`
	Members         []string `json:"members"`
	Confidence      float64  `json:"confidence"`
	Rationale       []Signal `json:"rationale,omitempty"`
	Incomplete      bool     `json:"incomplete,omitempty"`
	SuggestedKeeper string   `json:"suggested_keeper"`
	Status          Status   `json:"status"`
}

// GroupID derives a deterministic identifier from sorted member IDs so
// re-running detection on unchanged input reproduces identical groups.
func GroupID(members []string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("keeper:group:"+strings.Join(members, ","))).String()
}

// ProgressEvent reports pass progress. Stage is one of "exact",
// "signatures", "compare", or "cluster".
type ProgressEvent struct {
	Stage     string
	Completed int
	Total     int
	AssetID   string
}

// Result is the outcome of one detection pass. Incomplete marks passes that
// were cancelled before scoring everything; the groups present are valid but
// the set may be missing members.
type Result struct {
	Groups            []Group
	Incomplete        bool
	Comparisons       int
	SignatureFailures int
}

// IgnorePredicate suppresses known-uninteresting pairs. It is injected
// configuration; the engine keeps no ignore state of its own.
type IgnorePredicate func(assetA, assetB string) bool

// SignatureSource supplies perceptual signatures. Production code wires
// signature.Service; tests substitute counting fakes.
type SignatureSource interface {
	ComputeImage(ctx context.Context, asset media.Asset) (signature.Signature, error)
	ComputeVideo(ctx context.Context, asset media.Asset) (signature.VideoSignature, error)
}
