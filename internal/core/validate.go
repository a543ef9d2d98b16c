package core

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/variantlabs/imagesync/internal/catalog"
	"github.com/variantlabs/imagesync/internal/logging"
)

// Validate probes every resolved entry's URL, independent of source, and
// classifies each as ok or broken. It is purely observational: neither
// catalog nor CDN state is mutated, and a broken entry is a normal result
// to be acted on manually via Detach. Probing needs no CDN credentials, so
// validation keeps working when the integration is not configured.
func (s *Service) Validate(ctx context.Context, ref string) (*ValidateOutcome, error) {
	entries, _, err := s.store.GetImages(ctx, ref)
	if err != nil {
		return nil, MapError(err)
	}
	entries = s.enrich(entries)

	health := make([]EntryHealth, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.BulkWorkers)
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			health[i] = s.probeEntry(gctx, entry)
			return nil
		})
	}
	g.Wait()

	out := &ValidateOutcome{OK: true, Total: len(health), Entries: health}
	for _, h := range health {
		if h.Status == HealthBroken {
			out.Broken++
		}
	}

	logging.WithFields(ctx, "entity", ref).
		Info("entries validated", "total", out.Total, "broken", out.Broken)
	return out, nil
}

func (s *Service) probeEntry(ctx context.Context, entry catalog.ImageEntry) EntryHealth {
	h := EntryHealth{Entry: entry, Status: HealthBroken}
	if entry.URL == "" {
		h.Detail = "entry has no url"
		return h
	}

	res, err := s.cdn.Probe(ctx, entry.URL)
	if err != nil {
		h.Detail = MapError(err).Message
		return h
	}

	h.HTTPStatus = res.Status
	h.LatencyMS = res.LatencyMS
	h.CorrelationID = res.CorrelationID
	if res.Status >= 200 && res.Status < 400 {
		h.Status = HealthOK
	} else {
		h.Detail = fmt.Sprintf("status %d", res.Status)
	}
	return h
}

// Purge requests edge-cache invalidation for a single delivery URL. It is
// stateless and independently callable, not only from MakePrimary.
func (s *Service) Purge(ctx context.Context, url string) (*PurgeOutcome, error) {
	if url == "" {
		return nil, opErr(CodeInvalidPayload, "url is required")
	}
	if err := s.requireCDN("purge"); err != nil {
		return nil, err
	}

	res, err := s.cdn.Purge(ctx, url)
	if err != nil {
		return nil, MapError(err)
	}

	logging.FromContext(ctx).Info("url purged", "url", url, "latency_ms", res.LatencyMS)
	return &PurgeOutcome{
		OK:             true,
		URL:            url,
		LatencyMS:      res.LatencyMS,
		CorrelationIDs: res.CorrelationIDs,
	}, nil
}
