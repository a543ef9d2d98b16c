package core

import (
	"context"
	"strings"

	"github.com/variantlabs/imagesync/internal/catalog"
	"github.com/variantlabs/imagesync/internal/logging"
)

// DeleteOrigin deletes a CDN asset at origin. It deliberately does not
// touch any catalog entity's image list: origin deletion and catalog
// detachment are independent actions, so an admin can delete an asset and
// decide separately when to detach the now-broken reference (Validate
// surfaces it as broken in the meantime).
func (s *Service) DeleteOrigin(ctx context.Context, imageID string) (*DeleteOutcome, error) {
	if imageID == "" {
		return nil, opErr(CodeInvalidPayload, "image id is required")
	}
	if err := s.requireCDN("origin delete"); err != nil {
		return nil, err
	}

	res, err := s.cdn.Delete(ctx, imageID)
	if err != nil {
		return nil, MapError(err)
	}

	logging.WithFields(ctx, "image_id", imageID).
		Info("origin asset deleted", "latency_ms", res.LatencyMS, "correlation_id", res.CorrelationID)

	return &DeleteOutcome{OK: true, LatencyMS: res.LatencyMS, CorrelationID: res.CorrelationID}, nil
}

// Detach removes the entry matching target (image id or URL) from the
// entity's list, preserving the relative order of the remainder. It is
// idempotent: detaching an absent entry reports Removed 0 without error.
// No CDN call is made.
func (s *Service) Detach(ctx context.Context, ref, target string) (*DetachOutcome, error) {
	if target == "" {
		return nil, opErr(CodeInvalidPayload, "target image id or url is required")
	}

	out := &DetachOutcome{OK: true}
	err := s.store.WithEntityLock(ctx, ref, func(entries []catalog.ImageEntry, _ catalog.StorageFormat) ([]catalog.ImageEntry, error) {
		kept := make([]catalog.ImageEntry, 0, len(entries))
		for _, e := range entries {
			if e.Matches(target) {
				out.Removed++
				continue
			}
			kept = append(kept, e)
		}
		out.Entries = s.enrich(kept)
		return kept, nil
	})
	if err != nil {
		return nil, MapError(err)
	}

	logging.WithFields(ctx, "entity", ref, "target", target).
		Info("entries detached", "removed", out.Removed)
	return out, nil
}

// MakePrimary moves the entry matching target to index 0; all other
// entries keep their relative order. When the target is already primary
// the list is returned unchanged and no purge is attempted.
//
// Index 0 is externally cacheable, so an actual move triggers a
// best-effort purge of the previous primary's URL after the reorder has
// committed. The purge outcome is reported separately and never rolls the
// reorder back.
func (s *Service) MakePrimary(ctx context.Context, ref, target string) (*ReorderOutcome, error) {
	if target == "" {
		return nil, opErr(CodeInvalidPayload, "target image id or url is required")
	}

	out := &ReorderOutcome{OK: true}
	var oldPrimaryURL string

	err := s.store.WithEntityLock(ctx, ref, func(entries []catalog.ImageEntry, _ catalog.StorageFormat) ([]catalog.ImageEntry, error) {
		idx := -1
		for i, e := range entries {
			if e.Matches(target) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, opErr(CodeInvalidPayload, "no entry matching %q", target)
		}
		if idx == 0 {
			out.Entries = s.enrich(entries)
			return entries, nil
		}

		// Purge must target the URL callers actually cache, which for a
		// CDN entry is the recomputed delivery URL, not the stored one.
		oldPrimaryURL = s.enrich(entries[:1])[0].URL
		reordered := make([]catalog.ImageEntry, 0, len(entries))
		reordered = append(reordered, entries[idx])
		reordered = append(reordered, entries[:idx]...)
		reordered = append(reordered, entries[idx+1:]...)

		out.Changed = true
		out.Entries = s.enrich(reordered)
		return reordered, nil
	})
	if err != nil {
		return nil, MapError(err)
	}

	if out.Changed {
		out.Purge = s.purgeAfterReorder(ctx, oldPrimaryURL)
	}

	logging.WithFields(ctx, "entity", ref, "target", target).
		Info("primary image set", "changed", out.Changed)
	return out, nil
}

// purgeAfterReorder invalidates the previous primary URL. The reorder is
// already committed, so failures are reported in the outcome rather than
// returned.
func (s *Service) purgeAfterReorder(ctx context.Context, url string) *PurgeOutcome {
	if url == "" {
		return &PurgeOutcome{Skipped: true}
	}
	if !s.cdn.Configured() {
		return &PurgeOutcome{URL: url, Skipped: true}
	}

	res, err := s.cdn.Purge(ctx, url)
	if err != nil {
		logging.FromContext(ctx).Warn("purge of previous primary failed", "url", url, "error", err)
		return &PurgeOutcome{
			URL:            url,
			LatencyMS:      res.LatencyMS,
			CorrelationIDs: res.CorrelationIDs,
			Error:          MapError(err).Message,
		}
	}
	return &PurgeOutcome{
		OK:             true,
		URL:            url,
		LatencyMS:      res.LatencyMS,
		CorrelationIDs: res.CorrelationIDs,
	}
}

// Relink migrates an existing external entry into CDN-hosted form while
// preserving its list position, hence its primary status. The bytes are
// downloaded from the entry's URL and re-uploaded to the CDN; only once
// the upload has succeeded is the entry replaced in place. Any earlier
// failure leaves the original entry completely untouched.
func (s *Service) Relink(ctx context.Context, ref, url string) (*RelinkOutcome, error) {
	if url == "" {
		return nil, opErr(CodeInvalidPayload, "source url is required")
	}
	if err := s.requireCDN("relink"); err != nil {
		return nil, err
	}

	entries, _, err := s.store.GetImages(ctx, ref)
	if err != nil {
		return nil, MapError(err)
	}
	idx := indexOfExternal(entries, url)
	if idx < 0 {
		return nil, opErr(CodeInvalidPayload, "no external entry with url %q", url)
	}

	data, err := s.cdn.Fetch(ctx, url, s.opts.RelinkMaxBytes)
	if err != nil {
		return nil, MapError(err)
	}
	if err := validateImageBytes(data, s.opts.RelinkMaxBytes); err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, MapError(err)
	}
	defer s.limiter.Release()

	variant := s.opts.DefaultVariant
	res, err := s.cdn.Upload(ctx, filenameFromURL(url), data, variant)
	if err != nil {
		return nil, MapError(err)
	}

	replacement := catalog.ImageEntry{
		URL:     res.DeliveryURL,
		Source:  catalog.SourceCDN,
		ImageID: res.ImageID,
		Variant: variant,
	}

	out := &RelinkOutcome{OK: true, Entry: replacement, LatencyMS: res.LatencyMS, CorrelationID: res.CorrelationID}
	err = s.store.WithEntityLock(ctx, ref, func(current []catalog.ImageEntry, _ catalog.StorageFormat) ([]catalog.ImageEntry, error) {
		// Re-locate under the lock; a concurrent mutation may have moved
		// or removed the entry since the unlocked read.
		i := indexOfExternal(current, url)
		if i < 0 {
			return nil, opErr(CodeInvalidPayload, "external entry %q disappeared during relink", url)
		}
		if catalog.ContainsKey(current, replacement) {
			return nil, opErr(CodeDuplicate, "image %s is already attached", res.ImageID)
		}
		updated := make([]catalog.ImageEntry, len(current))
		copy(updated, current)
		updated[i] = replacement
		out.Index = i
		out.Entries = s.enrich(updated)
		return updated, nil
	})
	if err != nil {
		return nil, MapError(err)
	}

	logging.WithFields(ctx, "entity", ref, "url", url, "image_id", res.ImageID).
		Info("external image relinked", "index", out.Index, "latency_ms", res.LatencyMS)
	return out, nil
}

func indexOfExternal(entries []catalog.ImageEntry, url string) int {
	for i, e := range entries {
		if e.Source == catalog.SourceExternal && e.URL == url {
			return i
		}
	}
	return -1
}

// filenameFromURL derives an upload filename from the last path segment.
func filenameFromURL(url string) string {
	name := url
	if i := strings.IndexByte(name, '?'); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "relinked-image"
	}
	return name
}
