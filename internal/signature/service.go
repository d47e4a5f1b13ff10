package signature

import (
	"context"
	"errors"
	"image"
	"os"
	"strings"
	"time"

	"github.com/ajdnik/imghash"
	"github.com/ajdnik/imghash/hashtype"
	"github.com/disintegration/imaging"

	// Register decoders beyond the stdlib set so image signatures cover the
	// container formats scanners commonly hand us.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"keeper/internal/errs"
	"keeper/internal/media"
)

// FrameDecoder supplies decoded video frames at the requested offset.
// Container parsing is an external collaborator; the engine only hashes the
// pixels it gets back.
type FrameDecoder interface {
	DecodeFrame(ctx context.Context, path string, offset time.Duration) (image.Image, error)
}

// Options configures signature computation.
type Options struct {
	// VideoFramesMin and VideoFramesMax bound video frame sampling.
	VideoFramesMin int
	VideoFramesMax int
	// VideoShort guards sampling for clips shorter than this duration.
	VideoShort time.Duration
}

func (o *Options) normalize() {
	if o.VideoFramesMin <= 0 {
		o.VideoFramesMin = 3
	}
	if o.VideoFramesMax < o.VideoFramesMin {
		o.VideoFramesMax = o.VideoFramesMin
	}
	if o.VideoShort <= 0 {
		o.VideoShort = 2 * time.Second
	}
}

// Service computes and memoizes perceptual signatures.
type Service struct {
	opts    Options
	decoder FrameDecoder
	cache   *cache
	now     func() time.Time
}

// NewService constructs a signature service. decoder may be nil; video
// signature computation then fails with ErrUnsupportedFormat and video assets
// stay eligible for exact-checksum matching only.
func NewService(opts Options, decoder FrameDecoder) *Service {
	opts.normalize()
	return &Service{
		opts:    opts,
		decoder: decoder,
		cache:   newCache(),
		now:     time.Now,
	}
}

// ComputeImage returns the perceptual signature for a photo asset, consulting
// the cache first. Failures are tagged ErrUnreadableSource or
// ErrUnsupportedFormat and are never fatal to a detection pass.
func (s *Service) ComputeImage(ctx context.Context, asset media.Asset) (Signature, error) {
	return s.cache.image(asset, func() (Signature, error) {
		if err := ctx.Err(); err != nil {
			return Signature{}, err
		}
		return s.computeImage(asset)
	})
}

func (s *Service) computeImage(asset media.Asset) (Signature, error) {
	img, err := imaging.Open(asset.Path, imaging.AutoOrientation(true))
	if err != nil {
		return Signature{}, classifyDecodeError(asset, err)
	}
	return s.hashImage(asset.ID, img), nil
}

// ComputeVideo samples frames across the asset's duration and hashes each.
// Individual frame failures degrade the signature to incomplete rather than
// failing the whole asset; only a fully frameless result is an error.
func (s *Service) ComputeVideo(ctx context.Context, asset media.Asset) (VideoSignature, error) {
	return s.cache.video(asset, func() (VideoSignature, error) {
		return s.computeVideo(ctx, asset)
	})
}

func (s *Service) computeVideo(ctx context.Context, asset media.Asset) (VideoSignature, error) {
	if s.decoder == nil {
		return VideoSignature{}, errs.Wrap(errs.ErrUnsupportedFormat, "signature", "compute video",
			"no frame decoder configured", nil)
	}

	sig := VideoSignature{
		AssetID:  asset.ID,
		Duration: asset.Duration,
		Width:    asset.Width,
		Height:   asset.Height,
	}
	for _, offset := range s.frameOffsets(asset.Duration) {
		if err := ctx.Err(); err != nil {
			return VideoSignature{}, err
		}
		frame, err := s.decoder.DecodeFrame(ctx, asset.Path, offset)
		if err != nil {
			sig.Incomplete = true
			continue
		}
		sig.Frames = append(sig.Frames, FrameSignature{
			Offset:    offset,
			Signature: s.hashImage(asset.ID, frame),
		})
	}
	if len(sig.Frames) == 0 {
		return VideoSignature{}, errs.Wrap(errs.ErrUnreadableSource, "signature", "compute video",
			"no frame could be decoded", nil)
	}
	return sig, nil
}

// frameOffsets spreads sample points across the duration: a single midpoint
// frame for very short clips, start/middle/end for typical videos, and one
// extra frame per ten minutes up to the configured maximum.
func (s *Service) frameOffsets(duration time.Duration) []time.Duration {
	if duration <= 0 {
		return []time.Duration{0}
	}
	if duration < s.opts.VideoShort {
		return []time.Duration{duration / 2}
	}
	count := s.opts.VideoFramesMin + int(duration/(10*time.Minute))
	if count > s.opts.VideoFramesMax {
		count = s.opts.VideoFramesMax
	}
	offsets := make([]time.Duration, count)
	for i := range offsets {
		offsets[i] = time.Duration(float64(duration) * (float64(i) + 0.5) / float64(count))
	}
	return offsets
}

func (s *Service) hashImage(assetID string, img image.Image) Signature {
	phasher := imghash.NewPHash()
	h := phasher.Calculate(img)
	return Signature{
		AssetID:    assetID,
		Algorithm:  AlgorithmPHash,
		Bits:       BitWidth,
		Hash:       packHash(h),
		ComputedAt: s.now().UTC(),
	}
}

// packHash folds the hash bytes into a single word so Hamming math stays
// allocation-free. A 64-entry hash is one element per bit; anything else is
// packed big-endian byte by byte.
func packHash(h hashtype.Binary) uint64 {
	if len(h) == BitWidth {
		var v uint64
		for i, bit := range h {
			if bit != 0 {
				v |= 1 << uint(BitWidth-1-i)
			}
		}
		return v
	}
	var v uint64
	for i := 0; i < len(h) && i < 8; i++ {
		v = v<<8 | uint64(h[i])
	}
	return v
}

func classifyDecodeError(asset media.Asset, err error) error {
	if errors.Is(err, image.ErrFormat) || strings.Contains(err.Error(), "unknown format") {
		return errs.Wrap(errs.ErrUnsupportedFormat, "signature", "decode image", asset.Path, err)
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return errs.Wrap(errs.ErrUnreadableSource, "signature", "open image", asset.Path, err)
	}
	return errs.Wrap(errs.ErrUnreadableSource, "signature", "decode image", asset.Path, err)
}
