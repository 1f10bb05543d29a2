package mpdmodel

// EffectiveSegmentTemplate resolves the SegmentTemplate inherited down the
// AdaptationSet -> Representation chain (§4.4.2): a Representation-level
// SegmentTemplate overrides the AdaptationSet's wholesale (DASH does not
// merge individual attributes across levels for this element), falling
// back to the AdaptationSet's if the Representation has none.
func EffectiveSegmentTemplate(as *AdaptationSet, rep *Representation) *SegmentTemplate {
	if rep.SegmentTemplate != nil {
		return rep.SegmentTemplate
	}
	return as.SegmentTemplate
}

// EffectiveSegmentList resolves the SegmentList the same way.
func EffectiveSegmentList(as *AdaptationSet, rep *Representation) *SegmentList {
	if rep.SegmentList != nil {
		return rep.SegmentList
	}
	return as.SegmentList
}

// EffectiveSegmentBase resolves the bare SegmentBase the same way.
func EffectiveSegmentBase(as *AdaptationSet, rep *Representation) *SegmentBase {
	if rep.SegmentBase != nil {
		return rep.SegmentBase
	}
	return as.SegmentBase
}

// EffectiveCodecs resolves the codecs string: Representation overrides
// AdaptationSet.
func EffectiveCodecs(as *AdaptationSet, rep *Representation) string {
	if rep.Codecs != "" {
		return rep.Codecs
	}
	return as.Codecs
}

// EffectiveMimeType resolves the mimeType attribute the same way.
func EffectiveMimeType(as *AdaptationSet, rep *Representation) string {
	if rep.MimeType != "" {
		return rep.MimeType
	}
	return as.MimeType
}

// EffectiveContentProtections concatenates ContentProtection entries from
// both the AdaptationSet and the Representation: unlike scalar attributes,
// DRM signaling is additive across levels (§4.4.7).
func EffectiveContentProtections(as *AdaptationSet, rep *Representation) []ContentProtection {
	if len(as.ContentProtections) == 0 {
		return rep.ContentProtections
	}
	if len(rep.ContentProtections) == 0 {
		return as.ContentProtections
	}
	out := make([]ContentProtection, 0, len(as.ContentProtections)+len(rep.ContentProtections))
	out = append(out, as.ContentProtections...)
	out = append(out, rep.ContentProtections...)
	return out
}

// BaseURLLevels returns, for one Period/AdaptationSet/Representation
// triple, the BaseURL value lists at each level in resolution order
// (MPD is supplied by the caller as the root), suitable for
// urlresolve.Combine.
func BaseURLLevels(period *Period, as *AdaptationSet, rep *Representation) [][]string {
	toValues := func(bs []BaseURL) []string {
		out := make([]string, len(bs))
		for i, b := range bs {
			out[i] = b.Value
		}
		return out
	}
	return [][]string{
		toValues(period.BaseURLs),
		toValues(as.BaseURLs),
		toValues(rep.BaseURLs),
	}
}
