package catalog

import (
	"encoding/json"
	"reflect"
	"testing"
)

const testDeliveryBase = "https://imagedelivery.net/AbCd1234"

func TestNormalize_CanonicalArray(t *testing.T) {
	n := NewNormalizer(testDeliveryBase)

	raw := []byte(`[
		{"url":"https://imagedelivery.net/AbCd1234/img-1/public","source":"cdn","image_id":"img-1","variant":"public"},
		{"url":"https://external.example/photo.jpg","source":"external"}
	]`)

	entries, format, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if format != FormatCanonical {
		t.Errorf("format = %q, want canonical", format)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Source != SourceCDN || entries[0].ImageID != "img-1" {
		t.Errorf("first entry = %+v, want cdn img-1", entries[0])
	}
	if entries[1].Source != SourceExternal || entries[1].URL != "https://external.example/photo.jpg" {
		t.Errorf("second entry = %+v, want external", entries[1])
	}
}

func TestNormalize_LegacyStringArray(t *testing.T) {
	n := NewNormalizer(testDeliveryBase)

	tests := []struct {
		name string
		raw  string
		want []ImageEntry
	}{
		{
			name: "external urls",
			raw:  `["https://a.example/1.jpg", "https://b.example/2.jpg"]`,
			want: []ImageEntry{
				{URL: "https://a.example/1.jpg", Source: SourceExternal},
				{URL: "https://b.example/2.jpg", Source: SourceExternal},
			},
		},
		{
			name: "delivery url recovers cdn provenance",
			raw:  `["https://imagedelivery.net/AbCd1234/img-9/thumb"]`,
			want: []ImageEntry{
				{URL: "https://imagedelivery.net/AbCd1234/img-9/thumb", Source: SourceCDN, ImageID: "img-9", Variant: "thumb"},
			},
		},
		{
			name: "delivery host with unexpected path stays external",
			raw:  `["https://imagedelivery.net/AbCd1234/too/many/parts"]`,
			want: []ImageEntry{
				{URL: "https://imagedelivery.net/AbCd1234/too/many/parts", Source: SourceExternal},
			},
		},
		{
			name: "blank strings dropped",
			raw:  `["", "  ", "https://a.example/1.jpg"]`,
			want: []ImageEntry{
				{URL: "https://a.example/1.jpg", Source: SourceExternal},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, format, err := n.Normalize([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if format != FormatLegacy {
				t.Errorf("format = %q, want legacy", format)
			}
			if !reflect.DeepEqual(entries, tt.want) {
				t.Errorf("entries = %+v, want %+v", entries, tt.want)
			}
		})
	}
}

func TestNormalize_EmptyAndNull(t *testing.T) {
	n := NewNormalizer(testDeliveryBase)

	for _, raw := range [][]byte{nil, []byte("null"), []byte("[]")} {
		entries, format, err := n.Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize(%q) failed: %v", raw, err)
		}
		if entries == nil || len(entries) != 0 {
			t.Errorf("Normalize(%q) = %v, want empty non-nil slice", raw, entries)
		}
		if format != FormatCanonical {
			t.Errorf("Normalize(%q) format = %q, want canonical", raw, format)
		}
	}
}

func TestNormalize_RejectsGarbage(t *testing.T) {
	n := NewNormalizer(testDeliveryBase)
	if _, _, err := n.Normalize([]byte(`{"not":"an array"}`)); err == nil {
		t.Error("expected error for object input")
	}
	if _, _, err := n.Normalize([]byte(`42`)); err == nil {
		t.Error("expected error for scalar input")
	}
}

func TestNormalize_InfersMissingSource(t *testing.T) {
	n := NewNormalizer(testDeliveryBase)

	raw := []byte(`[{"url":"https://x.example/a.jpg"},{"image_id":"img-3","variant":"public"}]`)
	entries, _, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if entries[0].Source != SourceExternal {
		t.Errorf("entry without image_id should be external, got %q", entries[0].Source)
	}
	if entries[1].Source != SourceCDN {
		t.Errorf("entry with image_id should be cdn, got %q", entries[1].Source)
	}
	if want := testDeliveryBase + "/img-3/public"; entries[1].URL != want {
		t.Errorf("cdn entry url = %q, want %q", entries[1].URL, want)
	}
}

func TestMarshal_LegacyRoundTrip(t *testing.T) {
	n := NewNormalizer(testDeliveryBase)

	entries := []ImageEntry{
		{URL: "https://external.example/1.jpg", Source: SourceExternal},
		{URL: testDeliveryBase + "/img-5/public", Source: SourceCDN, ImageID: "img-5", Variant: "public"},
	}

	raw, err := n.Marshal(entries, FormatLegacy)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var urls []string
	if err := json.Unmarshal(raw, &urls); err != nil {
		t.Fatalf("legacy output is not a string array: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("got %d urls, want 2", len(urls))
	}

	// The flattened form must normalize back without losing provenance.
	back, format, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("re-Normalize failed: %v", err)
	}
	if format != FormatLegacy {
		t.Errorf("round-trip format = %q, want legacy", format)
	}
	if !reflect.DeepEqual(back, entries) {
		t.Errorf("round-trip = %+v, want %+v", back, entries)
	}
}

func TestMarshal_CanonicalNilBecomesEmptyArray(t *testing.T) {
	n := NewNormalizer("")
	raw, err := n.Marshal(nil, FormatCanonical)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(raw) != "[]" {
		t.Errorf("Marshal(nil) = %s, want []", raw)
	}
}

func TestImageEntry_Key(t *testing.T) {
	cdnA := ImageEntry{URL: "https://d/a/public", Source: SourceCDN, ImageID: "a", Variant: "public"}
	cdnAThumb := ImageEntry{URL: "https://d/a/thumb", Source: SourceCDN, ImageID: "a", Variant: "thumb"}
	ext := ImageEntry{URL: "https://x.example/a.jpg", Source: SourceExternal}

	// Same asset in different variants dedupes to one key.
	if cdnA.Key() != cdnAThumb.Key() {
		t.Errorf("variant should not affect key: %q vs %q", cdnA.Key(), cdnAThumb.Key())
	}
	if cdnA.Key() == ext.Key() {
		t.Error("cdn and external keys must differ")
	}
}

func TestImageEntry_Matches(t *testing.T) {
	entry := ImageEntry{URL: "https://d/a/public", Source: SourceCDN, ImageID: "img-a", Variant: "public"}

	if !entry.Matches("img-a") {
		t.Error("should match by image id")
	}
	if !entry.Matches("https://d/a/public") {
		t.Error("should match by url")
	}
	if entry.Matches("img-b") {
		t.Error("should not match other ids")
	}
	if entry.Matches("") {
		t.Error("empty target must never match")
	}
}

func TestContainsKey(t *testing.T) {
	entries := []ImageEntry{
		{URL: "https://x.example/a.jpg", Source: SourceExternal},
		{URL: "https://d/a/public", Source: SourceCDN, ImageID: "img-a", Variant: "public"},
	}

	if !ContainsKey(entries, ImageEntry{Source: SourceCDN, ImageID: "img-a"}) {
		t.Error("expected cdn match by id")
	}
	if !ContainsKey(entries, ImageEntry{Source: SourceExternal, URL: "https://x.example/a.jpg"}) {
		t.Error("expected external match by url")
	}
	if ContainsKey(entries, ImageEntry{Source: SourceCDN, ImageID: "img-z"}) {
		t.Error("unexpected match")
	}
}
