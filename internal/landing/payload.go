// Package landing loads the landing page payload from the cache and the
// backend and merges both into the screen state section by section.
package landing

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

// Section names of the landing payload.
const (
	SectionCategories          = "categories"
	SectionSlider              = "slider"
	SectionDeals               = "deals"
	SectionTrending            = "trending"
	SectionCategoryWiseProduct = "categoryWiseProduct"
	SectionNewProducts         = "newProducts"
	SectionBanners             = "banners"
)

// FieldImageSimilarity enables the image search entry point when "1".
const FieldImageSimilarity = "enable_image_similarity"

// ErrNotObject is returned when a payload is not a JSON object.
var ErrNotObject = errors.New("landing: payload is not a JSON object")

// Payload is the landing page data keyed by section name. Sections are kept
// as raw JSON; the screen replaces them whole and never looks inside.
type Payload map[string]json.RawMessage

// ParsePayload decodes a JSON object into a Payload.
func ParsePayload(data []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotObject
	}
	var p Payload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Has reports whether the payload carries a non-null section.
func (p Payload) Has(name string) bool {
	raw, ok := p[name]
	return ok && !isNull(raw)
}

// Names returns the non-null section names in sorted order.
func (p Payload) Names() []string {
	names := make([]string, 0, len(p))
	for name, raw := range p {
		if !isNull(raw) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ImageSimilarity reports whether enable_image_similarity is set. The server
// sends "1"; a bare 1 or true is accepted as well.
func (p Payload) ImageSimilarity() bool {
	raw, ok := p[FieldImageSimilarity]
	if !ok {
		return false
	}
	switch strings.TrimSpace(string(raw)) {
	case `"1"`, `1`, `true`:
		return true
	default:
		return false
	}
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
