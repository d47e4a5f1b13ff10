// Package errs centralizes the sentinel errors every engine component tags
// failures with, plus the wrapping helper that attaches component and
// operation context while keeping errors.Is classification intact.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Signature computation failures. Both leave the asset eligible for
	// exact-checksum matching; neither is fatal to a detection pass.
	ErrUnreadableSource  = errors.New("unreadable source")
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrCancelled marks a detection pass stopped cooperatively; partial
	// results are still returned, flagged incomplete.
	ErrCancelled = errors.New("detection cancelled")

	// Merge failures raised before any mutation begins.
	ErrKeeperInaccessible = errors.New("keeper inaccessible")
	ErrPermissionDenied   = errors.New("permission denied")

	// ErrPartialFailure marks a merge transaction that failed mid-flight and
	// was compensated back to its starting state.
	ErrPartialFailure = errors.New("partial merge failure")

	// Undo refusals. Both are definitive; no partial undo is attempted.
	ErrUndoExpired    = errors.New("undo window expired")
	ErrUndoSuperseded = errors.New("undo superseded by later transaction")

	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrValidation
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "engine failure"
	}
	return strings.Join(parts, ": ")
}
