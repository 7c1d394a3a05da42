package compat

import (
	"strings"

	"github.com/moyoez/dlnacast-go/types"
)

// Adapter rewrites outgoing media URLs and metadata for one class of
// renderers. Zero behaviors mean pass-through.
type Adapter struct {
	Name     string
	Priority int

	matches        func(d *types.Descriptor) bool
	formatMediaURL func(mediaURL string) string
	formatMetadata func(mediaURL, title string) string
}

// adapterTable is scanned in order; on a priority tie the earlier row wins,
// so selection is deterministic for a given descriptor. The generic row is
// the guaranteed fallback.
var adapterTable = []Adapter{
	{
		Name:           "samsung-minimal-metadata",
		Priority:       10,
		matches:        keywordMatcher("samsung", "tizen"),
		formatMetadata: BuildMinimalDIDL,
	},
	{
		Name:           "xiaomi-plain-url",
		Priority:       10,
		matches:        keywordMatcher("xiaomi", "mitv", "mibox", "mi box"),
		formatMediaURL: stripQuery,
	},
	{
		Name:           "lg-minimal-metadata",
		Priority:       5,
		matches:        keywordMatcher("lg electronics", "lge", "webos"),
		formatMetadata: BuildMinimalDIDL,
	},
	{
		Name:     "generic",
		Priority: 0,
	},
}

// Select picks the highest-priority adapter compatible with d. The generic
// entry matches everything, so there is always a winner.
func Select(d *types.Descriptor) Adapter {
	best := Adapter{Priority: -1}
	for _, adapter := range adapterTable {
		if adapter.Priority <= best.Priority {
			continue
		}
		if adapter.Compatible(d) {
			best = adapter
		}
	}
	return best
}

// Compatible reports whether this adapter should handle the descriptor.
func (a Adapter) Compatible(d *types.Descriptor) bool {
	if a.matches == nil {
		return true
	}
	return a.matches(d)
}

// FormatMediaURL applies the adapter's URL rewrite, if any.
func (a Adapter) FormatMediaURL(mediaURL string) string {
	if a.formatMediaURL == nil {
		return mediaURL
	}
	return a.formatMediaURL(mediaURL)
}

// FormatMetadata builds the DIDL-Lite fragment sent with the media URL.
func (a Adapter) FormatMetadata(mediaURL, title string) string {
	if a.formatMetadata == nil {
		return BuildDIDL(mediaURL, title)
	}
	return a.formatMetadata(mediaURL, title)
}

// tvKeywords marks descriptors that read like televisions. Used for list
// ordering, not for filtering.
var tvKeywords = []string{
	"tv", "television", "bravia", "aquos", "viera",
	"samsung", "lg electronics", "webos",
	"hisense", "tcl", "skyworth", "konka", "changhong", "haier",
	"xiaomi", "mitv", "philips", "sharp", "sony",
}

// IsTVLike reports whether the descriptor text reads like a television.
func IsTVLike(d *types.Descriptor) bool {
	if d == nil {
		return false
	}
	haystack := descriptorText(d)
	for _, keyword := range tvKeywords {
		if strings.Contains(haystack, keyword) {
			return true
		}
	}
	return false
}

func keywordMatcher(keywords ...string) func(*types.Descriptor) bool {
	return func(d *types.Descriptor) bool {
		if d == nil {
			return false
		}
		haystack := descriptorText(d)
		for _, keyword := range keywords {
			if strings.Contains(haystack, keyword) {
				return true
			}
		}
		return false
	}
}

func descriptorText(d *types.Descriptor) string {
	return strings.ToLower(d.Manufacturer + " " + d.ModelName + " " + d.FriendlyName)
}

// stripQuery drops the query string. Some renderers truncate or reject long
// signed URLs, and they play the bare path fine.
func stripQuery(mediaURL string) string {
	if i := strings.IndexByte(mediaURL, '?'); i >= 0 {
		return mediaURL[:i]
	}
	return mediaURL
}
