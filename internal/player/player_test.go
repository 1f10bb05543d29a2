package player

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manifestd/internal/config"
	"manifestd/internal/manifest"
	"manifestd/internal/netfetch"
)

type fakeEngine struct {
	bodies    map[string][]byte
	requested []string
}

type fakeOperation struct {
	resp *netfetch.Response
	err  error
}

func (o *fakeOperation) Wait(ctx context.Context) (*netfetch.Response, error) { return o.resp, o.err }
func (o *fakeOperation) Abort()                                               {}

func (e *fakeEngine) Request(reqType netfetch.RequestType, req *netfetch.Request) netfetch.Operation {
	uri := req.URIs[0]
	e.requested = append(e.requested, uri)
	body, ok := e.bodies[uri]
	if !ok {
		return &fakeOperation{err: assertAnError{uri}}
	}
	return &fakeOperation{resp: &netfetch.Response{URI: uri, Data: body, Status: 200}}
}

type assertAnError struct{ uri string }

func (e assertAnError) Error() string { return "fakeEngine: no body registered for " + e.uri }

const testMPD = `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT120S">
  <BaseURL>https://cdn.example.com/</BaseURL>
  <Period id="p0">
    <AdaptationSet id="0" contentType="video" mimeType="video/mp4" codecs="avc1.640028">
      <SegmentTemplate timescale="1" media="$RepresentationID$/$Number$.m4s" initialization="$RepresentationID$/init.mp4" duration="4" startNumber="1"/>
      <Representation id="v0" bandwidth="500000" width="640" height="360"/>
    </AdaptationSet>
    <AdaptationSet id="1" contentType="audio" mimeType="audio/mp4" codecs="mp4a.40.2" lang="en">
      <SegmentTemplate timescale="1" media="$RepresentationID$/$Number$.m4s" initialization="$RepresentationID$/init.mp4" duration="4" startNumber="1"/>
      <Representation id="a0" bandwidth="128000"/>
    </AdaptationSet>
  </Period>
</MPD>`

const testMaster = `#EXTM3U
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",NAME="English",LANGUAGE="en",URI="audio.m3u8"
#EXT-X-STREAM-INF:BANDWIDTH=2500000,CODECS="avc1.640028,mp4a.40.2",RESOLUTION=1280x720,AUDIO="aud"
video.m3u8
`

const testVideoPlaylist = `#EXTM3U
#EXT-X-VERSION:6
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:6.000,
video_seg0.mp4
#EXT-X-ENDLIST
`

const testAudioPlaylist = `#EXTM3U
#EXT-X-VERSION:6
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:6.000,
audio_seg0.mp4
#EXT-X-ENDLIST
`

func TestStartDispatchesToDASHByExtension(t *testing.T) {
	engine := &fakeEngine{bodies: map[string][]byte{
		"https://cdn.example/manifest.mpd": []byte(testMPD),
	}}
	p := NewParser(engine)

	m, err := p.Start(context.Background(), "https://cdn.example/manifest.mpd", Interface{})
	require.NoError(t, err)
	defer p.Stop()

	variants := m.AllVariants()
	require.Len(t, variants, 1)
	assert.NotNil(t, variants[0].Stream(manifest.ContentVideo))
	assert.NotNil(t, variants[0].Stream(manifest.ContentAudio))
}

func TestStartDispatchesToHLSByExtension(t *testing.T) {
	engine := &fakeEngine{bodies: map[string][]byte{
		"https://cdn.example/master.m3u8": []byte(testMaster),
		"https://cdn.example/video.m3u8":  []byte(testVideoPlaylist),
		"https://cdn.example/audio.m3u8":  []byte(testAudioPlaylist),
	}}
	p := NewParser(engine)

	m, err := p.Start(context.Background(), "https://cdn.example/master.m3u8", Interface{})
	require.NoError(t, err)
	defer p.Stop()

	variants := m.AllVariants()
	require.Len(t, variants, 1)
	assert.NotNil(t, variants[0].Stream(manifest.ContentVideo))
	assert.NotNil(t, variants[0].Stream(manifest.ContentAudio))
}

func TestStartAppliesDisableAudioConfig(t *testing.T) {
	engine := &fakeEngine{bodies: map[string][]byte{
		"https://cdn.example/manifest.mpd": []byte(testMPD),
	}}
	p := NewParser(engine)
	p.Configure(config.Config{DisableAudio: true})

	m, err := p.Start(context.Background(), "https://cdn.example/manifest.mpd", Interface{})
	require.NoError(t, err)
	defer p.Stop()

	variants := m.AllVariants()
	require.Len(t, variants, 1)
	assert.NotNil(t, variants[0].Stream(manifest.ContentVideo))
	assert.Nil(t, variants[0].Stream(manifest.ContentAudio))
}

func TestStartRunsFilterAndReportsItsError(t *testing.T) {
	engine := &fakeEngine{bodies: map[string][]byte{
		"https://cdn.example/manifest.mpd": []byte(testMPD),
	}}
	p := NewParser(engine)

	filterErr := assertAnError{"rejected by host"}
	_, err := p.Start(context.Background(), "https://cdn.example/manifest.mpd", Interface{
		Filter: func(ctx context.Context, m *manifest.Manifest) error { return filterErr },
	})
	require.Error(t, err)
	assert.Equal(t, filterErr, err)
}

func TestBanLocationSteersNextDASHRefreshAwayFromMirror(t *testing.T) {
	dynamicMPD := `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="dynamic" availabilityStartTime="2026-01-01T00:00:00Z" minimumUpdatePeriod="PT2S">
  <Location>https://mirror-a.example/manifest.mpd</Location>
  <Location>https://mirror-b.example/manifest.mpd</Location>
  <Period id="p0">
    <AdaptationSet id="0" contentType="video" mimeType="video/mp4" codecs="avc1.640028">
      <SegmentTemplate timescale="1" media="$RepresentationID$/$Number$.m4s" duration="4" startNumber="1"/>
      <Representation id="v0" bandwidth="500000"/>
    </AdaptationSet>
  </Period>
</MPD>`

	engine := &fakeEngine{bodies: map[string][]byte{
		"https://cdn.example/manifest.mpd":      []byte(dynamicMPD),
		"https://mirror-a.example/manifest.mpd": []byte(dynamicMPD),
		"https://mirror-b.example/manifest.mpd": []byte(dynamicMPD),
	}}
	p := NewParser(engine)

	_, err := p.Start(context.Background(), "https://cdn.example/manifest.mpd", Interface{})
	require.NoError(t, err)
	defer p.Stop()

	p.BanLocation("https://mirror-a.example/manifest.mpd")

	require.NoError(t, p.Update(context.Background()))

	assert.Contains(t, engine.requested, "https://mirror-b.example/manifest.mpd")
	assert.NotContains(t, engine.requested, "https://mirror-a.example/manifest.mpd")
}

func TestUpdateWithNoActivePresentationErrors(t *testing.T) {
	p := NewParser(&fakeEngine{bodies: map[string][]byte{}})
	err := p.Update(context.Background())
	assert.Error(t, err)
}

func TestUpdateRefreshesActiveDASHPresentation(t *testing.T) {
	dynamicMPD := `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="dynamic" availabilityStartTime="2026-01-01T00:00:00Z" minimumUpdatePeriod="PT2S">
  <Period id="p0">
    <AdaptationSet id="0" contentType="video" mimeType="video/mp4" codecs="avc1.640028">
      <SegmentTemplate timescale="1" media="$RepresentationID$/$Number$.m4s" duration="4" startNumber="1"/>
      <Representation id="v0" bandwidth="500000"/>
    </AdaptationSet>
  </Period>
</MPD>`
	engine := &fakeEngine{bodies: map[string][]byte{
		"https://cdn.example/live.mpd": []byte(dynamicMPD),
	}}
	p := NewParser(engine)

	_, err := p.Start(context.Background(), "https://cdn.example/live.mpd", Interface{})
	require.NoError(t, err)
	defer p.Stop()

	require.NoError(t, p.Update(context.Background()))
}

func TestDetectFormatByExtensionRecognizesBothFormats(t *testing.T) {
	f, ok := detectFormatByExtension("https://cdn.example/a/b.mpd")
	require.True(t, ok)
	assert.Equal(t, formatDASH, f)

	f, ok = detectFormatByExtension("https://cdn.example/a/b.m3u8")
	require.True(t, ok)
	assert.Equal(t, formatHLS, f)

	_, ok = detectFormatByExtension("https://cdn.example/a/b")
	assert.False(t, ok)
}

func TestDetectFormatByContentSniffsBody(t *testing.T) {
	f, err := detectFormatByContent("https://cdn.example/a", []byte(testMPD))
	require.NoError(t, err)
	assert.Equal(t, formatDASH, f)

	f, err = detectFormatByContent("https://cdn.example/a", []byte(testMaster))
	require.NoError(t, err)
	assert.Equal(t, formatHLS, f)

	_, err = detectFormatByContent("https://cdn.example/a", []byte("not a manifest"))
	assert.Error(t, err)
}
