package dash

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"manifestd/internal/mpdmodel"
	"manifestd/internal/netfetch"
)

var errNoTimingURI = errors.New("dash: UTCTiming element has no URI value")

// UTC-timing scheme URIs the probe recognizes (§4.4.3).
const (
	utcSchemeXSDate = "urn:mpeg:dash:utc:http-xsdate:2014"
	utcSchemeISO    = "urn:mpeg:dash:utc:http-iso:2014"
	utcSchemeHead   = "urn:mpeg:dash:utc:http-head:2014"
	utcSchemeDirect = "urn:mpeg:dash:utc:direct:2014"
)

// syncClockOffset tries each UTCTiming element in document order, each
// independently abortable, and applies the first one that resolves a server
// wall-clock time. If every MPD-declared element fails and fallbackURI is
// set, it is tried last via the same HEAD+Date-header mechanism as the
// http-head scheme (§4.4.3's configured fallback). A single provider's
// failure is silent; so is total failure — the timeline's clockOffset
// simply stays at its zero default.
func syncClockOffset(ctx context.Context, engine netfetch.Engine, timings []mpdmodel.UTCTiming, fallbackURI string, localNow time.Time) (time.Duration, bool) {
	if engine == nil {
		return 0, false
	}
	for _, ut := range timings {
		serverNow, ok := resolveUTCTiming(ctx, engine, ut)
		if ok {
			return localNow.Sub(serverNow), true
		}
	}
	if fallbackURI != "" {
		if serverNow, ok := fetchDateHeader(ctx, engine, []string{fallbackURI}); ok {
			return localNow.Sub(serverNow), true
		}
	}
	return 0, false
}

func resolveUTCTiming(ctx context.Context, engine netfetch.Engine, ut mpdmodel.UTCTiming) (time.Time, bool) {
	switch ut.SchemeIDURI {
	case utcSchemeDirect:
		t, err := mpdmodel.ParseDateTime(ut.Value)
		if err != nil {
			return time.Time{}, false
		}
		return t, true

	case utcSchemeHead:
		return fetchDateHeader(ctx, engine, strings.Fields(ut.Value))

	case utcSchemeXSDate, utcSchemeISO:
		data, err := fetchTiming(ctx, engine, strings.Fields(ut.Value))
		if err != nil {
			return time.Time{}, false
		}
		t, err := mpdmodel.ParseDateTime(strings.TrimSpace(string(data)))
		if err != nil {
			return time.Time{}, false
		}
		return t, true

	default:
		return time.Time{}, false
	}
}

func fetchTiming(ctx context.Context, engine netfetch.Engine, uris []string) ([]byte, error) {
	if len(uris) == 0 {
		return nil, errNoTimingURI
	}
	op := engine.Request(netfetch.RequestTiming, &netfetch.Request{URIs: uris})
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func fetchDateHeader(ctx context.Context, engine netfetch.Engine, uris []string) (time.Time, bool) {
	if len(uris) == 0 {
		return time.Time{}, false
	}
	op := engine.Request(netfetch.RequestTiming, &netfetch.Request{URIs: uris, Method: http.MethodHead})
	resp, err := op.Wait(ctx)
	if err != nil || resp == nil {
		return time.Time{}, false
	}
	dateHeader := resp.Headers.Get("Date")
	if dateHeader == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(dateHeader)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
