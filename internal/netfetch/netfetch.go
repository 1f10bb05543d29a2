// Package netfetch implements the §6.1 networking interface consumed by the
// DASH and HLS parsers: a single abortable-fetch method, independent of any
// particular HTTP client, plus a net/http-backed implementation with a
// redirect-capturing transport.
package netfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"manifestd/internal/manifesterrors"
)

// RequestType distinguishes the four kinds of fetch the parsers issue.
type RequestType int

const (
	RequestManifest RequestType = iota
	RequestSegment
	RequestTiming
	RequestKey
)

// Request describes a fetch. Multiple URIs imply fallback semantics chosen
// by the Engine implementation; callers treat them as opaque alternatives.
type Request struct {
	URIs       []string
	Headers    map[string]string
	Method     string
	Body       []byte
	RangeStart *int64
	RangeEnd   *int64 // inclusive, per HTTP Range semantics
}

// Response is what a successful fetch resolves to. URI is the effective URI
// after redirects, which callers must use as the new base for relative
// resolution.
type Response struct {
	URI     string
	Data    []byte
	Headers http.Header
	Status  int
}

// Operation is an in-flight, abortable fetch. Abort causes the pending
// Wait to return ErrAborted; it is safe to call Abort after completion
// (a no-op).
type Operation interface {
	Wait(ctx context.Context) (*Response, error)
	Abort()
}

// Engine is the single method the parsers depend on for all network I/O.
type Engine interface {
	Request(requestType RequestType, req *Request) Operation
}

// HTTPEngine is a net/http-backed Engine. Redirects are followed manually
// so the effective URI can be captured, and a ResponseHeaderTimeout bounds
// slow origins.
type HTTPEngine struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPEngine builds an HTTPEngine with a redirect-capturing transport
// configuration.
func NewHTTPEngine(userAgent string) *HTTPEngine {
	return &HTTPEngine{
		Client: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: 10 * time.Second},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		UserAgent: userAgent,
	}
}

type httpOperation struct {
	cancel context.CancelFunc
	result chan opResult
	once   chan struct{}
}

type opResult struct {
	resp *Response
	err  error
}

func (o *httpOperation) Wait(ctx context.Context) (*Response, error) {
	select {
	case r := <-o.result:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *httpOperation) Abort() {
	select {
	case <-o.once:
		return
	default:
		close(o.once)
		o.cancel()
	}
}

// Request issues a fetch against req.URIs[0], following redirects itself so
// the effective URI survives in Response.URI. The remaining URIs are not
// tried.
func (e *HTTPEngine) Request(requestType RequestType, req *Request) Operation {
	ctx, cancel := context.WithCancel(context.Background())
	op := &httpOperation{cancel: cancel, result: make(chan opResult, 1), once: make(chan struct{})}

	go func() {
		resp, err := e.doFetch(ctx, req)
		select {
		case op.result <- opResult{resp, err}:
		default:
		}
	}()

	return op
}

func (e *HTTPEngine) doFetch(ctx context.Context, req *Request) (*Response, error) {
	if len(req.URIs) == 0 {
		return nil, manifesterrors.New(manifesterrors.Critical, manifesterrors.CategoryNetwork,
			manifesterrors.CodeBadHTTPStatus, fmt.Errorf("no URIs supplied"))
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	uri := req.URIs[0]
	for {
		httpReq, err := http.NewRequestWithContext(ctx, method, uri, nil)
		if err != nil {
			return nil, err
		}
		if e.UserAgent != "" {
			httpReq.Header.Set("User-Agent", e.UserAgent)
		}
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}
		if req.RangeStart != nil {
			end := ""
			if req.RangeEnd != nil {
				end = fmt.Sprintf("%d", *req.RangeEnd)
			}
			httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-%s", *req.RangeStart, end))
		}

		resp, err := e.Client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, manifesterrors.ErrAborted
			}
			return nil, err
		}

		if resp.StatusCode == http.StatusFound || resp.StatusCode == http.StatusMovedPermanently ||
			resp.StatusCode == http.StatusTemporaryRedirect || resp.StatusCode == http.StatusPermanentRedirect {
			loc, lerr := resp.Location()
			resp.Body.Close()
			if lerr != nil {
				return nil, lerr
			}
			uri = loc.String()
			continue
		}

		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, manifesterrors.New(manifesterrors.Critical, manifesterrors.CategoryNetwork,
				manifesterrors.CodeBadHTTPStatus, fmt.Errorf("status %d from %s", resp.StatusCode, uri), resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, manifesterrors.ErrAborted
			}
			return nil, err
		}

		return &Response{URI: uri, Data: data, Headers: resp.Header, Status: resp.StatusCode}, nil
	}
}
