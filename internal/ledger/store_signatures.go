package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"keeper/internal/media"
	"keeper/internal/signature"
)

// SaveImageSignature persists a computed signature keyed by the asset's
// identity and file fingerprint. A changed file gets a fresh row; the old one
// is removed.
func (s *Store) SaveImageSignature(ctx context.Context, asset media.Asset, sig signature.Signature) error {
	if err := s.execWithRetry(ctx,
		"DELETE FROM image_signatures WHERE asset_id = ?", asset.ID); err != nil {
		return fmt.Errorf("clear stale image signature: %w", err)
	}
	err := s.execWithRetry(ctx,
		`INSERT INTO image_signatures (
            asset_id, file_size, mod_time, algorithm, bits, hash, computed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		asset.ID,
		asset.FileSize,
		asset.ModTime.UnixNano(),
		sig.Algorithm,
		sig.Bits,
		int64(sig.Hash),
		formatTime(sig.ComputedAt),
	)
	if err != nil {
		return fmt.Errorf("insert image signature: %w", err)
	}
	return nil
}

// LoadImageSignature returns the stored signature for the asset, or false
// when none matches the asset's current size and modification time.
func (s *Store) LoadImageSignature(ctx context.Context, asset media.Asset) (signature.Signature, bool, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT algorithm, bits, hash, computed_at FROM image_signatures
         WHERE asset_id = ? AND file_size = ? AND mod_time = ?`,
		asset.ID, asset.FileSize, asset.ModTime.UnixNano(),
	)
	var (
		sig        signature.Signature
		hash       int64
		computedAt string
	)
	err := row.Scan(&sig.Algorithm, &sig.Bits, &hash, &computedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return signature.Signature{}, false, nil
	}
	if err != nil {
		return signature.Signature{}, false, fmt.Errorf("load image signature: %w", err)
	}
	sig.AssetID = asset.ID
	sig.Hash = uint64(hash)
	if sig.ComputedAt, err = time.Parse(time.RFC3339Nano, computedAt); err != nil {
		return signature.Signature{}, false, fmt.Errorf("parse computed_at: %w", err)
	}
	return sig, true, nil
}

// SaveVideoSignature persists a video's frame signature set.
func (s *Store) SaveVideoSignature(ctx context.Context, asset media.Asset, sig signature.VideoSignature) error {
	frames, err := json.Marshal(sig.Frames)
	if err != nil {
		return fmt.Errorf("marshal frames: %w", err)
	}
	if err := s.execWithRetry(ctx,
		"DELETE FROM video_signatures WHERE asset_id = ?", asset.ID); err != nil {
		return fmt.Errorf("clear stale video signature: %w", err)
	}
	err = s.execWithRetry(ctx,
		`INSERT INTO video_signatures (
            asset_id, file_size, mod_time, duration_ns, width, height,
            frames_json, incomplete, computed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		asset.ID,
		asset.FileSize,
		asset.ModTime.UnixNano(),
		int64(sig.Duration),
		sig.Width,
		sig.Height,
		string(frames),
		boolToInt(sig.Incomplete),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert video signature: %w", err)
	}
	return nil
}

// LoadVideoSignature returns the stored video signature for the asset, or
// false when none matches the asset's current file fingerprint.
func (s *Store) LoadVideoSignature(ctx context.Context, asset media.Asset) (signature.VideoSignature, bool, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT duration_ns, width, height, frames_json, incomplete FROM video_signatures
         WHERE asset_id = ? AND file_size = ? AND mod_time = ?`,
		asset.ID, asset.FileSize, asset.ModTime.UnixNano(),
	)
	var (
		sig        signature.VideoSignature
		durationNS int64
		frames     string
		incomplete int
	)
	err := row.Scan(&durationNS, &sig.Width, &sig.Height, &frames, &incomplete)
	if errors.Is(err, sql.ErrNoRows) {
		return signature.VideoSignature{}, false, nil
	}
	if err != nil {
		return signature.VideoSignature{}, false, fmt.Errorf("load video signature: %w", err)
	}
	sig.AssetID = asset.ID
	sig.Duration = time.Duration(durationNS)
	sig.Incomplete = incomplete != 0
	if err := json.Unmarshal([]byte(frames), &sig.Frames); err != nil {
		return signature.VideoSignature{}, false, fmt.Errorf("unmarshal frames: %w", err)
	}
	return sig, true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
