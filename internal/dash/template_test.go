package dash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteTemplateBasicIdentifiers(t *testing.T) {
	number := uint64(42)
	got := SubstituteTemplate("$RepresentationID$/seg-$Number$.m4s", TemplateParams{
		RepresentationID: "video-1",
		Number:           &number,
	})
	assert.Equal(t, "video-1/seg-42.m4s", got)
}

func TestSubstituteTemplateZeroPadding(t *testing.T) {
	number := uint64(7)
	got := SubstituteTemplate("seg-$Number%05d$.m4s", TemplateParams{Number: &number})
	assert.Equal(t, "seg-00007.m4s", got)
}

func TestSubstituteTemplateTimeAndBandwidth(t *testing.T) {
	tm := uint64(9000)
	got := SubstituteTemplate("$Bandwidth$/chunk-$Time$.m4s", TemplateParams{Bandwidth: 128000, Time: &tm})
	assert.Equal(t, "128000/chunk-9000.m4s", got)
}

func TestSubstituteTemplateEscapedDollar(t *testing.T) {
	got := SubstituteTemplate("price_$$5.m4s", TemplateParams{})
	assert.Equal(t, "price_$5.m4s", got)
}

func TestSubstituteTemplateMissingValueLeavesEmpty(t *testing.T) {
	got := SubstituteTemplate("seg-$Number$.m4s", TemplateParams{})
	assert.Equal(t, "seg-.m4s", got)
}
