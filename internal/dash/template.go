// Package dash builds the shared manifest.Manifest model from a parsed
// DASH MPD (C6, §4.4): period timing, the three segment-addressing modes
// (SegmentBase/SegmentList/SegmentTemplate, §4.4.6), BaseURL resolution,
// and DRM signaling collection (§4.4.7). Segment URL templating is a
// single substituter covering every DASH identifier, including the %0Nd
// width-formatted $Number$/$Time$/$Bandwidth$ forms RFC 4.3.3.1 permits.
package dash

import (
	"regexp"
	"strconv"
)

var templateIdentifier = regexp.MustCompile(`\$(RepresentationID|Number|Bandwidth|Time)(%0(\d+)d)?\$|\$\$`)

// TemplateParams supplies the values a $Number$/$Time$/$Bandwidth$/
// $RepresentationID$ placeholder may reference; number and t are
// pointers since a given template only ever uses one of the two.
type TemplateParams struct {
	RepresentationID string
	Bandwidth        int
	Number           *uint64
	Time             *uint64
}

// SubstituteTemplate expands every placeholder in tpl against params,
// following the $$-escapes-to-$ and %0Nd zero-padding rules of §4.4.6.
func SubstituteTemplate(tpl string, params TemplateParams) string {
	return templateIdentifier.ReplaceAllStringFunc(tpl, func(match string) string {
		if match == "$$" {
			return "$"
		}
		sub := templateIdentifier.FindStringSubmatch(match)
		name := sub[1]
		width := sub[3]

		var value string
		switch name {
		case "RepresentationID":
			value = params.RepresentationID
		case "Bandwidth":
			value = strconv.Itoa(params.Bandwidth)
		case "Number":
			if params.Number != nil {
				value = strconv.FormatUint(*params.Number, 10)
			}
		case "Time":
			if params.Time != nil {
				value = strconv.FormatUint(*params.Time, 10)
			}
		}

		if width != "" {
			n, err := strconv.Atoi(width)
			if err == nil {
				for len(value) < n {
					value = "0" + value
				}
			}
		}
		return value
	})
}
