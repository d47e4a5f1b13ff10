package engine

import (
	"context"

	"keeper/internal/ledger"
	"keeper/internal/media"
	"keeper/internal/signature"
)

// persistentSignatures layers the ledger under the signature service:
// signatures survive restarts, keyed by the file's size and modification
// time, so an unchanged library never recomputes. Store failures degrade to
// plain computation rather than failing detection.
type persistentSignatures struct {
	service *signature.Service
	store   *ledger.Store
}

func (p *persistentSignatures) ComputeImage(ctx context.Context, asset media.Asset) (signature.Signature, error) {
	if sig, ok, err := p.store.LoadImageSignature(ctx, asset); err == nil && ok {
		return sig, nil
	}
	sig, err := p.service.ComputeImage(ctx, asset)
	if err != nil {
		return signature.Signature{}, err
	}
	_ = p.store.SaveImageSignature(ctx, asset, sig)
	return sig, nil
}

func (p *persistentSignatures) ComputeVideo(ctx context.Context, asset media.Asset) (signature.VideoSignature, error) {
	if sig, ok, err := p.store.LoadVideoSignature(ctx, asset); err == nil && ok && !sig.Incomplete {
		return sig, nil
	}
	sig, err := p.service.ComputeVideo(ctx, asset)
	if err != nil {
		return signature.VideoSignature{}, err
	}
	_ = p.store.SaveVideoSignature(ctx, asset, sig)
	return sig, nil
}
