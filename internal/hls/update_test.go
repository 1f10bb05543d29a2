package hls

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manifestd/internal/manifest"
)

const updateTestMasterNoAudio = `#EXTM3U
#EXT-X-VERSION:7
#EXT-X-STREAM-INF:BANDWIDTH=2500000,CODECS="avc1.640028",RESOLUTION=1280x720
video.m3u8
`

const updateTestVideoLiveGen1 = `#EXTM3U
#EXT-X-VERSION:6
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:6.000,
video_seg0.mp4
#EXTINF:6.000,
video_seg1.mp4
`

const updateTestVideoLiveGen2 = `#EXTM3U
#EXT-X-VERSION:6
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:1
#EXTINF:6.000,
video_seg1.mp4
#EXTINF:6.000,
video_seg2.mp4
`

func TestSessionStartArmsSchedulerForLivePlaylist(t *testing.T) {
	engine := &fakeEngine{bodies: map[string][]byte{
		"https://cdn.example/master.m3u8": []byte(updateTestMasterNoAudio),
		"https://cdn.example/video.m3u8":  []byte(updateTestVideoLiveGen1),
	}}

	s := NewSession(engine, BuildOptions{}, nil)
	require.NoError(t, s.Start(context.Background(), "https://cdn.example/master.m3u8"))
	defer s.Stop()

	assert.True(t, s.Manifest.Timeline.IsLive())
	assert.NotNil(t, s.scheduler)
	assert.Equal(t, 6.0, s.Manifest.MinUpdatePeriod)
}

func TestSessionStartDoesNotArmSchedulerForVodPlaylist(t *testing.T) {
	vod := updateTestVideoLiveGen1 + "#EXT-X-ENDLIST\n"
	engine := &fakeEngine{bodies: map[string][]byte{
		"https://cdn.example/master.m3u8": []byte(updateTestMasterNoAudio),
		"https://cdn.example/video.m3u8":  []byte(vod),
	}}

	s := NewSession(engine, BuildOptions{}, nil)
	require.NoError(t, s.Start(context.Background(), "https://cdn.example/master.m3u8"))

	assert.False(t, s.Manifest.Timeline.IsLive())
	assert.Nil(t, s.scheduler)
}

func TestSessionUpdateMergesNewSegmentsPreservingStreamIdentity(t *testing.T) {
	engine := &fakeEngine{bodies: map[string][]byte{
		"https://cdn.example/master.m3u8": []byte(updateTestMasterNoAudio),
		"https://cdn.example/video.m3u8":  []byte(updateTestVideoLiveGen1),
	}}

	s := NewSession(engine, BuildOptions{}, nil)
	require.NoError(t, s.Start(context.Background(), "https://cdn.example/master.m3u8"))
	defer s.Stop()

	variant := s.Manifest.AllVariants()[0]
	video := variant.Stream(manifest.ContentVideo)
	require.NotNil(t, video)
	videoID := video.ID
	require.Equal(t, 2, video.Index.Len())

	engine.bodies["https://cdn.example/video.m3u8"] = []byte(updateTestVideoLiveGen2)

	_, err := s.update(context.Background())
	require.NoError(t, err)

	refreshed := s.Manifest.AllVariants()[0].Stream(manifest.ContentVideo)
	require.NotNil(t, refreshed)
	assert.Equal(t, videoID, refreshed.ID, "stream identity must survive a live update")
	assert.Equal(t, 3, refreshed.Index.Len(), "position 0 retained plus two positions (1 re-merged, 2 new)")
}

func TestSessionUpdatePropagatesFetchErrorToOnError(t *testing.T) {
	engine := &fakeEngine{bodies: map[string][]byte{
		"https://cdn.example/master.m3u8": []byte(updateTestMasterNoAudio),
		"https://cdn.example/video.m3u8":  []byte(updateTestVideoLiveGen1),
	}}

	var reported error
	s := NewSession(engine, BuildOptions{}, func(err error) { reported = err })
	require.NoError(t, s.Start(context.Background(), "https://cdn.example/master.m3u8"))
	defer s.Stop()

	delete(engine.bodies, "https://cdn.example/video.m3u8")

	_, err := s.update(context.Background())
	require.Error(t, err)
	assert.Equal(t, err, reported)
}
