package core

import (
	"context"
	"time"

	"github.com/variantlabs/imagesync/internal/catalog"
)

// Options tunes the engine. Zero values fall back to the defaults below.
type Options struct {
	// MaxFileSize caps uploaded file bytes.
	MaxFileSize int64

	// DefaultVariant is the rendition used when a caller or bulk row does
	// not name one.
	DefaultVariant string

	// RelinkMaxBytes caps the external download during a relink.
	RelinkMaxBytes int64

	// BulkWorkers bounds per-row concurrency in BulkAttach.
	BulkWorkers int

	// MaxBulkRows caps the number of rows accepted in one batch.
	MaxBulkRows int

	// MaxConcurrentUploads bounds simultaneous CDN-bound uploads.
	MaxConcurrentUploads int

	// UploadWaitTime is how long to wait for an upload slot.
	UploadWaitTime time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = 10 << 20
	}
	if o.DefaultVariant == "" {
		o.DefaultVariant = "public"
	}
	if o.RelinkMaxBytes <= 0 {
		o.RelinkMaxBytes = o.MaxFileSize
	}
	if o.BulkWorkers <= 0 {
		o.BulkWorkers = 4
	}
	if o.MaxBulkRows <= 0 {
		o.MaxBulkRows = 1000
	}
	return o
}

// Service provides the image synchronization operations.
type Service struct {
	store   Store
	cdn     CDN
	norm    *catalog.Normalizer
	limiter *UploadLimiter
	opts    Options
}

// NewService creates a Service. The normalizer must carry the same
// delivery base URL the store was built with.
func NewService(store Store, cdnClient CDN, norm *catalog.Normalizer, opts Options) *Service {
	opts = opts.withDefaults()
	return &Service{
		store:   store,
		cdn:     cdnClient,
		norm:    norm,
		limiter: NewUploadLimiter(opts.MaxConcurrentUploads, opts.UploadWaitTime),
		opts:    opts,
	}
}

// Limiter exposes the upload limiter for shutdown draining.
func (s *Service) Limiter() *UploadLimiter { return s.limiter }

// Resolve reads and normalizes an entity's image list without mutating
// anything. CDN entries get their delivery URL recomputed from image id
// and variant so stale stored URLs never leak out.
func (s *Service) Resolve(ctx context.Context, ref string) (*ResolveResult, error) {
	entries, format, err := s.store.GetImages(ctx, ref)
	if err != nil {
		return nil, MapError(err)
	}

	return &ResolveResult{
		OK:      true,
		Entries: s.enrich(entries),
		Format:  format,
	}, nil
}

// enrich recomputes delivery URLs for CDN entries. External entries pass
// through untouched.
func (s *Service) enrich(entries []catalog.ImageEntry) []catalog.ImageEntry {
	out := make([]catalog.ImageEntry, len(entries))
	copy(out, entries)
	for i, e := range out {
		if e.Source == catalog.SourceCDN && e.ImageID != "" {
			if url := s.norm.DeliveryURL(e.ImageID, e.Variant); url != "" {
				out[i].URL = url
			}
		}
	}
	return out
}

// requireCDN rejects operations that need the integration before any
// remote call is attempted. Read-only paths never call this, so resolve
// and validate keep working against external-only entries.
func (s *Service) requireCDN(op string) *OpError {
	if s.cdn.Configured() {
		return nil
	}
	return opErr(CodeMissingEnv, "%s requires the image service integration; set the CDN account and token", op)
}
