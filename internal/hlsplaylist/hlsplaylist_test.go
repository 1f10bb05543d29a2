package hlsplaylist

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manifestd/internal/manifesterrors"
)

func TestScanRejectsMissingHeader(t *testing.T) {
	_, err := Scan(strings.NewReader("#EXT-X-VERSION:3\n"))
	require.Error(t, err)
	code, ok := manifesterrors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, manifesterrors.CodeHLSPlaylistHeaderMissing, code)
}

func TestScanSimpleMediaPlaylist(t *testing.T) {
	src := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-VERSION:3",
		"#EXT-X-TARGETDURATION:6",
		"#EXT-X-MEDIA-SEQUENCE:10",
		"#EXTINF:6.006,",
		"seg10.ts",
		"#EXTINF:6.006,",
		"seg11.ts",
		"#EXT-X-ENDLIST",
		"",
	}, "\n")

	lines, err := Scan(strings.NewReader(src))
	require.NoError(t, err)

	var tags, uris int
	for _, l := range lines {
		if l.Kind == LineTag {
			tags++
		} else {
			uris++
		}
	}
	assert.Equal(t, 6, tags)
	assert.Equal(t, 2, uris)
	assert.Equal(t, "seg10.ts", lines[4].URI)
}

func TestParseAttributeListHandlesQuotedCommas(t *testing.T) {
	attrs, err := ParseAttributeList(`BANDWIDTH=1280000,CODECS="avc1.4d401f,mp4a.40.2",RESOLUTION=640x360`)
	require.NoError(t, err)
	assert.Equal(t, "1280000", attrs["BANDWIDTH"])
	assert.Equal(t, "avc1.4d401f,mp4a.40.2", attrs["CODECS"])
	assert.Equal(t, "640x360", attrs["RESOLUTION"])
}

func TestParseAttributeListTrailingQuotedValue(t *testing.T) {
	attrs, err := ParseAttributeList(`TYPE=AUDIO,GROUP-ID="aac",NAME="English",URI="audio/eng/index.m3u8"`)
	require.NoError(t, err)
	assert.Equal(t, "AUDIO", attrs["TYPE"])
	assert.Equal(t, "aac", attrs["GROUP-ID"])
	assert.Equal(t, "audio/eng/index.m3u8", attrs["URI"])
}

func TestAttrHelpers(t *testing.T) {
	attrs := map[string]string{"BANDWIDTH": "1280000", "DEFAULT": "YES", "FRAME-RATE": "29.97"}

	n, ok := AttrInt(attrs, "BANDWIDTH")
	require.True(t, ok)
	assert.Equal(t, 1280000, n)

	f, ok := AttrFloat(attrs, "FRAME-RATE")
	require.True(t, ok)
	assert.InDelta(t, 29.97, f, 0.001)

	assert.True(t, AttrBool(attrs, "DEFAULT"))
	assert.False(t, AttrBool(attrs, "AUTOSELECT"))

	_, ok = AttrInt(attrs, "MISSING")
	assert.False(t, ok)
}

func TestParseByteRange(t *testing.T) {
	length, offset, hasOffset, err := ParseByteRange("1024@512")
	require.NoError(t, err)
	assert.Equal(t, int64(1024), length)
	assert.Equal(t, int64(512), offset)
	assert.True(t, hasOffset)

	length, _, hasOffset, err = ParseByteRange("2048")
	require.NoError(t, err)
	assert.Equal(t, int64(2048), length)
	assert.False(t, hasOffset)
}

func TestParseInfValue(t *testing.T) {
	dur, title, err := ParseInfValue("6.006,some title")
	require.NoError(t, err)
	assert.InDelta(t, 6.006, dur, 0.0001)
	assert.Equal(t, "some title", title)

	dur, title, err = ParseInfValue("6.006,")
	require.NoError(t, err)
	assert.InDelta(t, 6.006, dur, 0.0001)
	assert.Equal(t, "", title)
}

func TestScanParsesStreamInfAttributes(t *testing.T) {
	src := "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=2000000,CODECS=\"avc1.640028,mp4a.40.2\"\nvariant.m3u8\n"
	lines, err := Scan(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, LineTag, lines[0].Kind)
	assert.Equal(t, "2000000", lines[0].Tag.Attributes["BANDWIDTH"])
	assert.Equal(t, "avc1.640028,mp4a.40.2", lines[0].Tag.Attributes["CODECS"])
}

func TestSubstituteVariablesAppliesNameValueToLaterLines(t *testing.T) {
	src := strings.Join([]string{
		"#EXTM3U",
		`#EXT-X-DEFINE:NAME="host",VALUE="https://cdn.example.com"`,
		`#EXT-X-MAP:URI="{$host}/init.mp4"`,
		"{$host}/seg0.mp4",
		"",
	}, "\n")
	lines, err := Scan(strings.NewReader(src))
	require.NoError(t, err)

	out, vars := SubstituteVariables(lines, nil)
	assert.Equal(t, "https://cdn.example.com", vars["host"])
	assert.Equal(t, "https://cdn.example.com/init.mp4", out[1].Tag.Attributes["URI"])
	assert.Equal(t, "https://cdn.example.com/seg0.mp4", out[2].URI)
}

func TestSubstituteVariablesImportResolvesFromParent(t *testing.T) {
	src := strings.Join([]string{
		"#EXTM3U",
		`#EXT-X-DEFINE:IMPORT="host"`,
		"{$host}/seg0.mp4",
		"",
	}, "\n")
	lines, err := Scan(strings.NewReader(src))
	require.NoError(t, err)

	out, vars := SubstituteVariables(lines, map[string]string{"host": "https://cdn.example.com"})
	assert.Equal(t, "https://cdn.example.com", vars["host"])
	assert.Equal(t, "https://cdn.example.com/seg0.mp4", out[1].URI)
}

func TestSubstituteVariablesLeavesUndefinedReferenceVerbatim(t *testing.T) {
	src := "#EXTM3U\nseg-{$missing}.mp4\n"
	lines, err := Scan(strings.NewReader(src))
	require.NoError(t, err)

	out, _ := SubstituteVariables(lines, nil)
	assert.Equal(t, "seg-{$missing}.mp4", out[0].URI)
}
