package dash

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manifestd/internal/mpdmodel"
	"manifestd/internal/netfetch"
)

type fakeTimingEngine struct {
	bodies  map[string][]byte
	headers map[string]http.Header
}

type fakeTimingOperation struct {
	resp *netfetch.Response
	err  error
}

func (o *fakeTimingOperation) Wait(ctx context.Context) (*netfetch.Response, error) {
	return o.resp, o.err
}
func (o *fakeTimingOperation) Abort() {}

func (e *fakeTimingEngine) Request(reqType netfetch.RequestType, req *netfetch.Request) netfetch.Operation {
	uri := req.URIs[0]
	if body, ok := e.bodies[uri]; ok {
		return &fakeTimingOperation{resp: &netfetch.Response{URI: uri, Data: body, Status: 200}}
	}
	if hdr, ok := e.headers[uri]; ok {
		return &fakeTimingOperation{resp: &netfetch.Response{URI: uri, Headers: hdr, Status: 200}}
	}
	return &fakeTimingOperation{err: assert.AnError}
}

func TestSyncClockOffsetDirectScheme(t *testing.T) {
	localNow := time.Date(2026, 1, 1, 12, 0, 5, 0, time.UTC)
	serverNow := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	timings := []mpdmodel.UTCTiming{
		{SchemeIDURI: utcSchemeDirect, Value: serverNow.Format(time.RFC3339)},
	}

	offset, ok := syncClockOffset(context.Background(), &fakeTimingEngine{}, timings, "", localNow)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, offset)
}

func TestSyncClockOffsetSkipsFailingProviderAndTriesNext(t *testing.T) {
	localNow := time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC)
	serverNow := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	timings := []mpdmodel.UTCTiming{
		{SchemeIDURI: utcSchemeXSDate, Value: "https://unreachable.example/time"},
		{SchemeIDURI: utcSchemeDirect, Value: serverNow.Format(time.RFC3339)},
	}

	offset, ok := syncClockOffset(context.Background(), &fakeTimingEngine{}, timings, "", localNow)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, offset)
}

func TestSyncClockOffsetAllProvidersFailStaysZero(t *testing.T) {
	timings := []mpdmodel.UTCTiming{
		{SchemeIDURI: utcSchemeXSDate, Value: "https://unreachable.example/time"},
	}
	_, ok := syncClockOffset(context.Background(), &fakeTimingEngine{}, timings, "", time.Now())
	assert.False(t, ok)
}

func TestSyncClockOffsetNoEngineIsNoop(t *testing.T) {
	timings := []mpdmodel.UTCTiming{{SchemeIDURI: utcSchemeDirect, Value: "2026-01-01T00:00:00Z"}}
	_, ok := syncClockOffset(context.Background(), nil, timings, "", time.Now())
	assert.False(t, ok)
}

func TestResolveUTCTimingHTTPHeadUsesDateHeader(t *testing.T) {
	serverNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	engine := &fakeTimingEngine{headers: map[string]http.Header{
		"https://time.example/": {"Date": []string{serverNow.Format(http.TimeFormat)}},
	}}
	ut := mpdmodel.UTCTiming{SchemeIDURI: utcSchemeHead, Value: "https://time.example/"}

	got, ok := resolveUTCTiming(context.Background(), engine, ut)
	require.True(t, ok)
	assert.True(t, got.Equal(serverNow))
}
