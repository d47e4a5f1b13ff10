package signature

import (
	"context"
	"errors"
	"sync"

	"keeper/internal/media"
)

// cacheKey invalidates naturally: a changed size or mtime produces a new key,
// and the stale entry for the old key is evicted on next access.
type cacheKey struct {
	assetID string
	size    int64
	modTime int64
}

func keyFor(asset media.Asset) cacheKey {
	return cacheKey{assetID: asset.ID, size: asset.FileSize, modTime: asset.ModTime.UnixNano()}
}

type imageEntry struct {
	once sync.Once
	sig  Signature
	err  error
}

type videoEntry struct {
	once sync.Once
	sig  VideoSignature
	err  error
}

// cache memoizes signatures with per-entry locking: the map mutex is held
// only for entry lookup, never across a computation, so parallel workers
// hashing different assets do not serialize.
type cache struct {
	mu     sync.Mutex
	images map[cacheKey]*imageEntry
	videos map[cacheKey]*videoEntry
	latest map[string]cacheKey
}

func newCache() *cache {
	return &cache{
		images: make(map[cacheKey]*imageEntry),
		videos: make(map[cacheKey]*videoEntry),
		latest: make(map[string]cacheKey),
	}
}

func (c *cache) image(asset media.Asset, compute func() (Signature, error)) (Signature, error) {
	key := keyFor(asset)

	c.mu.Lock()
	c.evictStale(asset.ID, key)
	entry, ok := c.images[key]
	if !ok {
		entry = &imageEntry{}
		c.images[key] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.sig, entry.err = compute()
	})
	if isContextErr(entry.err) {
		// Never memoize a cancellation; the next pass retries.
		c.mu.Lock()
		if c.images[key] == entry {
			delete(c.images, key)
		}
		c.mu.Unlock()
	}
	return entry.sig, entry.err
}

func (c *cache) video(asset media.Asset, compute func() (VideoSignature, error)) (VideoSignature, error) {
	key := keyFor(asset)

	c.mu.Lock()
	c.evictStale(asset.ID, key)
	entry, ok := c.videos[key]
	if !ok {
		entry = &videoEntry{}
		c.videos[key] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.sig, entry.err = compute()
	})
	if isContextErr(entry.err) {
		c.mu.Lock()
		if c.videos[key] == entry {
			delete(c.videos, key)
		}
		c.mu.Unlock()
	}
	return entry.sig, entry.err
}

// evictStale drops cached entries recorded under an older (size, mtime) for
// the same asset. Caller holds c.mu.
func (c *cache) evictStale(assetID string, key cacheKey) {
	prev, ok := c.latest[assetID]
	if ok && prev != key {
		delete(c.images, prev)
		delete(c.videos, prev)
	}
	c.latest[assetID] = key
}

func isContextErr(err error) bool {
	return err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
