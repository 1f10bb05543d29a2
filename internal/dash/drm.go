package dash

import (
	"encoding/base64"
	"regexp"

	"manifestd/internal/manifest"
	"manifestd/internal/mpdmodel"
)

// psshElement matches a namespaced <*:pssh>base64</*:pssh> child of a
// ContentProtection element; DRM vendors vary the namespace prefix
// (cenc:pssh, mspr:pssh) so the element name itself is the only stable
// anchor.
var psshElement = regexp.MustCompile(`(?s)<[\w]*:?pssh[^>]*>([^<]+)</[\w]*:?pssh>`)

// drmInfoFromProtections converts a Representation's effective
// ContentProtection list into the shared manifest.DRMInfo shape,
// extracting any inline cenc:pssh payload (§4.4.7).
func drmInfoFromProtections(protections []mpdmodel.ContentProtection) []manifest.DRMInfo {
	out := make([]manifest.DRMInfo, 0, len(protections))
	for _, cp := range protections {
		info := manifest.DRMInfo{KeySystem: cp.SchemeIDURI}
		if m := psshElement.FindStringSubmatch(cp.Content); m != nil {
			if decoded, err := base64.StdEncoding.DecodeString(m[1]); err == nil {
				info.PSSH = decoded
				info.Initialized = true
			}
		}
		out = append(out, info)
	}
	return out
}
