package core

// fakes_test.go provides in-memory doubles for the Store and CDN
// contracts so operation semantics can be tested without Postgres or the
// image service.

import (
	"context"
	"fmt"
	"sync"

	"github.com/variantlabs/imagesync/internal/catalog"
	"github.com/variantlabs/imagesync/internal/cdn"
)

const fakeDeliveryBase = "https://imagedelivery.net/test-hash"

type fakeStore struct {
	mu       sync.Mutex
	entities map[string][]catalog.ImageEntry
	formats  map[string]catalog.StorageFormat
	writeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entities: make(map[string][]catalog.ImageEntry),
		formats:  make(map[string]catalog.StorageFormat),
	}
}

func (f *fakeStore) seed(ref string, format catalog.StorageFormat, entries ...catalog.ImageEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities[ref] = append([]catalog.ImageEntry{}, entries...)
	f.formats[ref] = format
}

func (f *fakeStore) snapshot(ref string) []catalog.ImageEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]catalog.ImageEntry{}, f.entities[ref]...)
}

func (f *fakeStore) GetImages(_ context.Context, ref string) ([]catalog.ImageEntry, catalog.StorageFormat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, ok := f.entities[ref]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", catalog.ErrEntityNotFound, ref)
	}
	return append([]catalog.ImageEntry{}, entries...), f.formats[ref], nil
}

func (f *fakeStore) WithEntityLock(_ context.Context, ref string, fn catalog.MutateFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, ok := f.entities[ref]
	if !ok {
		return fmt.Errorf("%w: %s", catalog.ErrEntityNotFound, ref)
	}
	updated, err := fn(append([]catalog.ImageEntry{}, entries...), f.formats[ref])
	if err != nil {
		return err
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	f.entities[ref] = updated
	return nil
}

type fakeCDN struct {
	mu         sync.Mutex
	configured bool

	uploadErr error
	deleteErr error
	purgeErr  error
	fetchErr  error

	nextID      int
	probeStatus map[string]int
	fetchData   map[string][]byte

	uploads []string // filenames in upload order
	deleted []string
	purged  []string
}

func newFakeCDN() *fakeCDN {
	return &fakeCDN{
		configured:  true,
		probeStatus: make(map[string]int),
		fetchData:   make(map[string][]byte),
	}
}

func (f *fakeCDN) Configured() bool { return f.configured }

func (f *fakeCDN) Upload(_ context.Context, filename string, data []byte, variant string) (cdn.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return cdn.UploadResult{}, f.uploadErr
	}
	f.nextID++
	id := fmt.Sprintf("img-%d", f.nextID)
	f.uploads = append(f.uploads, filename)
	return cdn.UploadResult{
		ImageID:       id,
		Variant:       variant,
		DeliveryURL:   f.DeliveryURL(id, variant),
		LatencyMS:     12,
		CorrelationID: "ray-" + id,
	}, nil
}

func (f *fakeCDN) Delete(_ context.Context, imageID string) (cdn.DeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return cdn.DeleteResult{}, f.deleteErr
	}
	f.deleted = append(f.deleted, imageID)
	return cdn.DeleteResult{OK: true, LatencyMS: 8, CorrelationID: "ray-del"}, nil
}

func (f *fakeCDN) DeliveryURL(imageID, variant string) string {
	return fakeDeliveryBase + "/" + imageID + "/" + variant
}

func (f *fakeCDN) Purge(_ context.Context, url string) (cdn.PurgeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.purgeErr != nil {
		return cdn.PurgeResult{}, f.purgeErr
	}
	f.purged = append(f.purged, url)
	return cdn.PurgeResult{OK: true, LatencyMS: 5, CorrelationIDs: []string{"ray-purge"}}, nil
}

func (f *fakeCDN) Probe(_ context.Context, url string) (cdn.ProbeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.probeStatus[url]
	if !ok {
		return cdn.ProbeResult{}, fmt.Errorf("probe request: no such host")
	}
	return cdn.ProbeResult{Status: status, LatencyMS: 3, CorrelationID: "ray-probe"}, nil
}

func (f *fakeCDN) Fetch(_ context.Context, url string, maxBytes int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	data, ok := f.fetchData[url]
	if !ok {
		return nil, fmt.Errorf("fetch request: no such host")
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("fetch %s: body exceeds %d bytes", url, maxBytes)
	}
	return append([]byte{}, data...), nil
}

// newTestService wires a Service over the fakes with small limits.
func newTestService(store *fakeStore, client *fakeCDN) *Service {
	return NewService(store, client, catalog.NewNormalizer(fakeDeliveryBase), Options{
		MaxFileSize:    1 << 20,
		DefaultVariant: "public",
		BulkWorkers:    2,
		MaxBulkRows:    100,
	})
}

// pngBytes is a minimal payload http.DetectContentType sniffs as image/png.
var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}
