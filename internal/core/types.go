package core

import (
	"context"

	"github.com/variantlabs/imagesync/internal/catalog"
	"github.com/variantlabs/imagesync/internal/cdn"
)

// Store is the catalog persistence contract the engine needs. All writes
// go through WithEntityLock so read-modify-write cycles serialize.
// Satisfied by *catalog.Store; tests use an in-memory fake.
type Store interface {
	GetImages(ctx context.Context, ref string) ([]catalog.ImageEntry, catalog.StorageFormat, error)
	WithEntityLock(ctx context.Context, ref string, fn catalog.MutateFunc) error
}

// CDN is the image service contract the engine needs.
// Satisfied by *cdn.Client; tests use a fake.
type CDN interface {
	Configured() bool
	Upload(ctx context.Context, filename string, data []byte, variant string) (cdn.UploadResult, error)
	Delete(ctx context.Context, imageID string) (cdn.DeleteResult, error)
	DeliveryURL(imageID, variant string) string
	Purge(ctx context.Context, url string) (cdn.PurgeResult, error)
	Probe(ctx context.Context, url string) (cdn.ProbeResult, error)
	Fetch(ctx context.Context, url string, maxBytes int64) ([]byte, error)
}

// ResolveResult is the enriched read of an entity's image list.
type ResolveResult struct {
	OK      bool                  `json:"ok"`
	Entries []catalog.ImageEntry  `json:"images"`
	Format  catalog.StorageFormat `json:"storage_format"`
}

// UploadOutcome reports a successful upload-and-attach.
type UploadOutcome struct {
	OK            bool               `json:"ok"`
	Entry         catalog.ImageEntry `json:"entry"`
	LatencyMS     int64              `json:"latency_ms"`
	CorrelationID string             `json:"correlation_id,omitempty"`
}

// DeleteOutcome reports an origin deletion. The catalog list is never
// modified by this operation.
type DeleteOutcome struct {
	OK            bool   `json:"ok"`
	LatencyMS     int64  `json:"latency_ms"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// DetachOutcome reports entries removed from a list. Removing an absent
// entry is not an error; Removed is simply 0.
type DetachOutcome struct {
	OK      bool                 `json:"ok"`
	Removed int                  `json:"removed"`
	Entries []catalog.ImageEntry `json:"images"`
}

// PurgeOutcome reports an edge-cache invalidation attempt.
type PurgeOutcome struct {
	OK             bool     `json:"ok"`
	URL            string   `json:"url,omitempty"`
	LatencyMS      int64    `json:"latency_ms"`
	CorrelationIDs []string `json:"correlation_ids,omitempty"`
	Error          string   `json:"error,omitempty"`
	Skipped        bool     `json:"skipped,omitempty"`
}

// ReorderOutcome reports a make-primary operation. Purge describes the
// best-effort invalidation of the previous primary URL; a purge failure
// never rolls back the committed reorder, so callers can retry
// invalidation independently.
type ReorderOutcome struct {
	OK      bool                 `json:"ok"`
	Changed bool                 `json:"changed"`
	Entries []catalog.ImageEntry `json:"images"`
	Purge   *PurgeOutcome        `json:"purge,omitempty"`
}

// RelinkOutcome reports an external entry migrated to CDN-hosted form.
// Index is the list position, which relink preserves.
type RelinkOutcome struct {
	OK            bool                 `json:"ok"`
	Entry         catalog.ImageEntry   `json:"entry"`
	Index         int                  `json:"index"`
	Entries       []catalog.ImageEntry `json:"images"`
	LatencyMS     int64                `json:"latency_ms"`
	CorrelationID string               `json:"correlation_id,omitempty"`
}

// Row statuses in a bulk-attach result set.
const (
	RowAttached = "attached"
	RowSkipped  = "skipped"
	RowError    = "error"
)

// BulkRow is one input row for BulkAttach. Exactly one of ImageID or
// DeliveryURL must be set.
type BulkRow struct {
	Slug        string `json:"slug"`
	ImageID     string `json:"cdn_image_id,omitempty"`
	DeliveryURL string `json:"delivery_url,omitempty"`
}

// BulkRowResult is the per-row outcome of a bulk attach.
type BulkRowResult struct {
	Slug   string `json:"slug"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// BulkOutcome summarizes a bulk attach. Row failures are isolated into
// Results; the batch itself never aborts.
type BulkOutcome struct {
	OK       bool            `json:"ok"`
	Total    int             `json:"total"`
	Attached int             `json:"attached"`
	Skipped  int             `json:"skipped"`
	Errors   int             `json:"errors"`
	Results  []BulkRowResult `json:"results"`
}

// Entry health classifications produced by Validate.
const (
	HealthOK     = "ok"
	HealthBroken = "broken"
)

// EntryHealth is the probe result for a single entry.
type EntryHealth struct {
	Entry         catalog.ImageEntry `json:"entry"`
	Status        string             `json:"status"`
	HTTPStatus    int                `json:"http_status,omitempty"`
	LatencyMS     int64              `json:"latency_ms"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	Detail        string             `json:"detail,omitempty"`
}

// ValidateOutcome reports the health of every entry on an entity. A broken
// entry is data, not an error; remediation happens manually via Detach.
type ValidateOutcome struct {
	OK      bool          `json:"ok"`
	Total   int           `json:"total"`
	Broken  int           `json:"broken"`
	Entries []EntryHealth `json:"entries"`
}
