package core

// bulk.go implements batch attachment of existing CDN assets from tabular
// input. Each row resolves its entity by slug, checks deduplication, and
// appends the referenced entry. Rows are fully isolated: a bad slug or a
// failed write on one row never aborts the rest of the batch, which is the
// property that distinguishes bulk ingestion from a single transactional
// batch.

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/variantlabs/imagesync/internal/catalog"
	"github.com/variantlabs/imagesync/internal/logging"
)

// BulkAttach applies every row independently with bounded concurrency and
// returns per-row results in input order.
func (s *Service) BulkAttach(ctx context.Context, rows []BulkRow) (*BulkOutcome, error) {
	if len(rows) == 0 {
		return nil, opErr(CodeInvalidPayload, "no rows provided")
	}
	if len(rows) > s.opts.MaxBulkRows {
		return nil, opErr(CodeInvalidPayload, "batch exceeds %d rows", s.opts.MaxBulkRows)
	}
	// Rows reference already-hosted assets, so no authenticated CDN call
	// is made; only the delivery base is needed to build and classify
	// delivery URLs.
	if !s.norm.HasDeliveryBase() {
		return nil, opErr(CodeMissingEnv, "bulk attach requires the delivery base URL; set CDN_DELIVERY_BASE_URL")
	}

	results := make([]BulkRowResult, len(rows))

	// The group limit bounds pressure on the database and the image
	// service; errors stay in the per-row results so the group itself
	// never cancels.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.BulkWorkers)
	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			results[i] = s.attachRow(gctx, row)
			return nil
		})
	}
	g.Wait()

	out := &BulkOutcome{OK: true, Total: len(rows), Results: results}
	for _, r := range results {
		switch r.Status {
		case RowAttached:
			out.Attached++
		case RowSkipped:
			out.Skipped++
		default:
			out.Errors++
		}
	}

	logging.FromContext(ctx).Info("bulk attach finished",
		"total", out.Total, "attached", out.Attached, "skipped", out.Skipped, "errors", out.Errors)
	return out, nil
}

// attachRow processes a single row. All failures are folded into the row
// result; nothing escapes as an error.
func (s *Service) attachRow(ctx context.Context, row BulkRow) BulkRowResult {
	res := BulkRowResult{Slug: row.Slug}

	entry, err := s.entryFromRow(row)
	if err != nil {
		res.Status = RowError
		res.Detail = err.Error()
		return res
	}

	err = s.store.WithEntityLock(ctx, row.Slug, func(entries []catalog.ImageEntry, _ catalog.StorageFormat) ([]catalog.ImageEntry, error) {
		if catalog.ContainsKey(entries, entry) {
			return nil, errRowSkipped
		}
		return append(entries, entry), nil
	})
	switch {
	case err == nil:
		res.Status = RowAttached
		res.Detail = entry.ImageID
	case errors.Is(err, errRowSkipped):
		res.Status = RowSkipped
		res.Detail = fmt.Sprintf("image %s already attached", entry.ImageID)
	default:
		res.Status = RowError
		res.Detail = MapError(err).Message
	}
	return res
}

// errRowSkipped aborts the row transaction without marking the row failed.
var errRowSkipped = errors.New("row skipped")

// entryFromRow builds the CDN entry a row references, from either a bare
// image id or a full delivery URL.
func (s *Service) entryFromRow(row BulkRow) (catalog.ImageEntry, error) {
	if row.Slug == "" {
		return catalog.ImageEntry{}, fmt.Errorf("missing slug")
	}

	switch {
	case row.ImageID != "":
		variant := s.opts.DefaultVariant
		return catalog.ImageEntry{
			URL:     s.norm.DeliveryURL(row.ImageID, variant),
			Source:  catalog.SourceCDN,
			ImageID: row.ImageID,
			Variant: variant,
		}, nil

	case row.DeliveryURL != "":
		entry := s.norm.EntryFromURL(row.DeliveryURL)
		if entry.Source != catalog.SourceCDN {
			return catalog.ImageEntry{}, fmt.Errorf("url %q is not under the configured delivery base", row.DeliveryURL)
		}
		return entry, nil

	default:
		return catalog.ImageEntry{}, fmt.Errorf("row needs cdn_image_id or delivery_url")
	}
}

// ParseBulkCSV reads bulk rows from CSV input. The header must contain a
// slug column plus cdn_image_id and/or delivery_url; unknown columns are
// ignored. Blank lines are skipped. Malformed rows surface later as
// per-row errors, not here: only an unreadable file or a bad header is a
// batch-level failure.
func ParseBulkCSV(r io.Reader) ([]BulkRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, opErr(CodeInvalidPayload, "read csv header: %v", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	slugCol, ok := idx["slug"]
	if !ok {
		return nil, opErr(CodeInvalidPayload, "csv header is missing the slug column")
	}
	idCol, hasID := idx["cdn_image_id"]
	urlCol, hasURL := idx["delivery_url"]
	if !hasID && !hasURL {
		return nil, opErr(CodeInvalidPayload, "csv header needs cdn_image_id or delivery_url")
	}

	var rows []BulkRow
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, opErr(CodeInvalidPayload, "read csv row: %v", err)
		}

		row := BulkRow{Slug: field(record, slugCol)}
		if hasID {
			row.ImageID = field(record, idCol)
		}
		if hasURL && row.ImageID == "" {
			row.DeliveryURL = field(record, urlCol)
		}
		if row.Slug == "" && row.ImageID == "" && row.DeliveryURL == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
