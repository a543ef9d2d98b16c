package core

import (
	"context"
	"net/http"
	"strings"

	"github.com/variantlabs/imagesync/internal/catalog"
	"github.com/variantlabs/imagesync/internal/logging"
)

// Upload pushes raw file bytes to the image service and appends the
// resulting entry to the end of the entity's list. It never auto-promotes
// the new entry to primary.
//
// The CDN call happens before the catalog write: if it fails, the list is
// left untouched. The append itself runs under the entity row lock, so two
// concurrent uploads for the same entity both land instead of one
// overwriting the other.
func (s *Service) Upload(ctx context.Context, ref, filename string, data []byte, variant string) (*UploadOutcome, error) {
	if err := s.requireCDN("upload"); err != nil {
		return nil, err
	}
	if err := validateImageBytes(data, s.opts.MaxFileSize); err != nil {
		return nil, err
	}
	if variant == "" {
		variant = s.opts.DefaultVariant
	}

	// Entity must exist before we create a remote asset for it.
	if _, _, err := s.store.GetImages(ctx, ref); err != nil {
		return nil, MapError(err)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, MapError(err)
	}
	defer s.limiter.Release()

	res, err := s.cdn.Upload(ctx, filename, data, variant)
	if err != nil {
		return nil, MapError(err)
	}

	entry := catalog.ImageEntry{
		URL:     res.DeliveryURL,
		Source:  catalog.SourceCDN,
		ImageID: res.ImageID,
		Variant: variant,
	}

	err = s.store.WithEntityLock(ctx, ref, func(entries []catalog.ImageEntry, _ catalog.StorageFormat) ([]catalog.ImageEntry, error) {
		if catalog.ContainsKey(entries, entry) {
			return nil, opErr(CodeDuplicate, "image %s is already attached", res.ImageID)
		}
		return append(entries, entry), nil
	})
	if err != nil {
		return nil, MapError(err)
	}

	logging.WithFields(ctx, "entity", ref, "image_id", res.ImageID, "variant", variant).
		Info("image uploaded and attached", "latency_ms", res.LatencyMS, "correlation_id", res.CorrelationID)

	return &UploadOutcome{
		OK:            true,
		Entry:         entry,
		LatencyMS:     res.LatencyMS,
		CorrelationID: res.CorrelationID,
	}, nil
}

// validateImageBytes applies the size and sniffed-type checks. Decoding
// beyond content sniffing is out of scope.
func validateImageBytes(data []byte, maxSize int64) *OpError {
	if len(data) == 0 {
		return opErr(CodeInvalidPayload, "empty file")
	}
	if int64(len(data)) > maxSize {
		return opErr(CodeInvalidPayload, "file exceeds %d bytes", maxSize)
	}
	if ct := http.DetectContentType(data); !strings.HasPrefix(ct, "image/") {
		return opErr(CodeInvalidPayload, "unsupported content type %s", ct)
	}
	return nil
}
