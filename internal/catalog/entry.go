// Package catalog provides access to a catalog entity's ordered image list.
//
// Each entity row stores its images as a JSONB array. Two on-disk shapes
// exist: the canonical form (array of objects with url/source/image_id/
// variant) and a legacy form (array of bare URL strings) left over from
// before the CDN integration. Every read normalizes to []ImageEntry; the
// detected shape is carried alongside so writes can preserve it until the
// data is migrated.
package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Image provenance values. Only CDN-hosted entries carry an image id and
// variant; only they can be deleted at origin.
const (
	SourceCDN      = "cdn"
	SourceExternal = "external"
)

// StorageFormat identifies the on-disk shape of an entity's images field.
type StorageFormat string

const (
	// FormatCanonical is an array of ImageEntry objects.
	FormatCanonical StorageFormat = "canonical"

	// FormatLegacy is a flat array of URL strings.
	FormatLegacy StorageFormat = "legacy"
)

// ImageEntry is one element of an entity's ordered image list.
// The entry at index 0 is the primary image surfaced to public views.
type ImageEntry struct {
	URL     string `json:"url"`
	Source  string `json:"source"`
	ImageID string `json:"image_id,omitempty"`
	Variant string `json:"variant,omitempty"`
}

// Key returns the deduplication key for the entry: (source, image_id) for
// CDN entries, the URL for external entries.
func (e ImageEntry) Key() string {
	if e.Source == SourceCDN && e.ImageID != "" {
		return SourceCDN + ":" + e.ImageID
	}
	return SourceExternal + ":" + e.URL
}

// Matches reports whether target identifies this entry. A target matches a
// CDN entry by image id or URL, an external entry by URL only.
func (e ImageEntry) Matches(target string) bool {
	if target == "" {
		return false
	}
	if e.Source == SourceCDN && e.ImageID == target {
		return true
	}
	return e.URL == target
}

// Normalizer converts between the stored JSON shapes and []ImageEntry.
//
// The delivery base URL is resolved once at startup from configuration and
// injected here; it lets the normalizer re-infer CDN provenance for legacy
// string entries that point at the CDN's delivery host.
type Normalizer struct {
	deliveryBase string
}

// NewNormalizer creates a Normalizer. deliveryBase may be empty, in which
// case legacy strings always normalize as external entries.
func NewNormalizer(deliveryBase string) *Normalizer {
	return &Normalizer{deliveryBase: strings.TrimRight(deliveryBase, "/")}
}

// Normalize parses the raw JSONB images field. It accepts the canonical
// object array, the legacy string array, and SQL NULL (empty list, treated
// as canonical). The returned slice is always non-nil.
func (n *Normalizer) Normalize(raw []byte) ([]ImageEntry, StorageFormat, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []ImageEntry{}, FormatCanonical, nil
	}

	var objects []ImageEntry
	if err := json.Unmarshal(raw, &objects); err == nil {
		out := make([]ImageEntry, 0, len(objects))
		for _, e := range objects {
			if e.URL == "" && e.ImageID == "" {
				continue
			}
			out = append(out, n.canonicalize(e))
		}
		return out, FormatCanonical, nil
	}

	var strs []string
	if err := json.Unmarshal(raw, &strs); err != nil {
		return nil, "", fmt.Errorf("images field is neither object array nor string array: %w", err)
	}

	out := make([]ImageEntry, 0, len(strs))
	for _, s := range strs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, n.EntryFromURL(s))
	}
	return out, FormatLegacy, nil
}

// Marshal serializes entries in the requested storage format. Legacy
// output is an array of URL strings; CDN entries flatten to their delivery
// URL and are recovered by EntryFromURL on the next read.
func (n *Normalizer) Marshal(entries []ImageEntry, format StorageFormat) ([]byte, error) {
	if format == FormatLegacy {
		urls := make([]string, 0, len(entries))
		for _, e := range entries {
			urls = append(urls, e.URL)
		}
		return json.Marshal(urls)
	}
	if entries == nil {
		entries = []ImageEntry{}
	}
	return json.Marshal(entries)
}

// canonicalize fills derived fields on an object-form entry: missing
// source is inferred, and a CDN entry missing its URL gets the delivery
// URL built from id and variant.
func (n *Normalizer) canonicalize(e ImageEntry) ImageEntry {
	switch e.Source {
	case SourceCDN, SourceExternal:
	default:
		if e.ImageID != "" {
			e.Source = SourceCDN
		} else {
			e.Source = SourceExternal
		}
	}
	if e.Source == SourceExternal {
		e.ImageID = ""
		e.Variant = ""
	}
	if e.Source == SourceCDN && e.URL == "" && n.deliveryBase != "" {
		e.URL = n.DeliveryURL(e.ImageID, e.Variant)
	}
	return e
}

// EntryFromURL classifies a bare URL. URLs under the delivery base parse
// back into CDN entries ("<base>/<image_id>/<variant>"); anything else is
// external. Used for legacy string entries and for bulk rows given as
// delivery URLs.
func (n *Normalizer) EntryFromURL(url string) ImageEntry {
	if n.deliveryBase != "" && strings.HasPrefix(url, n.deliveryBase+"/") {
		rest := strings.TrimPrefix(url, n.deliveryBase+"/")
		parts := strings.Split(rest, "/")
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return ImageEntry{
				URL:     url,
				Source:  SourceCDN,
				ImageID: parts[0],
				Variant: parts[1],
			}
		}
	}
	return ImageEntry{URL: url, Source: SourceExternal}
}

// HasDeliveryBase reports whether a delivery base URL is configured.
func (n *Normalizer) HasDeliveryBase() bool {
	return n.deliveryBase != ""
}

// DeliveryURL builds the delivery URL for a CDN image id and variant.
func (n *Normalizer) DeliveryURL(imageID, variant string) string {
	if n.deliveryBase == "" {
		return ""
	}
	return n.deliveryBase + "/" + imageID + "/" + variant
}

// ContainsKey reports whether entries already holds an entry with the same
// deduplication key as candidate.
func ContainsKey(entries []ImageEntry, candidate ImageEntry) bool {
	key := candidate.Key()
	for _, e := range entries {
		if e.Key() == key {
			return true
		}
	}
	return false
}
