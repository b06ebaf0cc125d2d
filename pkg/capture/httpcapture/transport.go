// Package httpcapture reports net/http client requests to a capture engine.
package httpcapture

import (
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"mercator-hq/nettrace/pkg/capture"
)

// Recorder receives request events. *capture.Engine implements it.
type Recorder interface {
	Observed(id capture.TaskID, snap capture.Snapshot) bool
	Completed(id capture.TaskID, meta *capture.ResponseMeta, err error)
	RecordError(id capture.TaskID, err error)
}

// Transport is an http.RoundTripper that reports each request to a Recorder.
//
// The TaskID is taken from the request context (capture.WithTaskID) or
// minted per request. The span of a successful request ends when its
// response body reaches EOF or is closed.
type Transport struct {
	// Base performs the request. Defaults to http.DefaultTransport.
	Base http.RoundTripper

	Recorder Recorder
}

// NewTransport returns a Transport wrapping base.
func NewTransport(base http.RoundTripper, recorder Recorder) *Transport {
	return &Transport{Base: base, Recorder: recorder}
}

// NewClient returns an http.Client whose transport reports to recorder.
func NewClient(recorder Recorder) *http.Client {
	return &http.Client{Transport: NewTransport(nil, recorder)}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper. The caller's request is not
// modified; injected headers are set on a clone.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Recorder == nil {
		return t.base().RoundTrip(req)
	}

	id, ok := capture.TaskIDFromContext(req.Context())
	if !ok {
		id = capture.NewTaskID()
	}

	out := req.Clone(req.Context())
	if out.Header == nil {
		out.Header = make(http.Header)
	}

	snap := capture.Snapshot{
		Method:  out.Method,
		URL:     out.URL,
		Headers: capture.NewHTTPHeaders(out.Header),
	}
	if out.Body != nil && out.Body != http.NoBody && out.ContentLength >= 0 {
		size := out.ContentLength
		snap.BodySize = &size
	}

	captured := t.Recorder.Observed(id, snap)

	resp, err := t.base().RoundTrip(out)
	if !captured {
		return resp, err
	}
	if err != nil {
		t.Recorder.Completed(id, nil, err)
		return resp, err
	}
	if resp.Body == nil {
		t.Recorder.Completed(id, &capture.ResponseMeta{StatusCode: resp.StatusCode}, nil)
		return resp, nil
	}

	resp.Body = &countingBody{
		body:     resp.Body,
		id:       id,
		status:   resp.StatusCode,
		recorder: t.Recorder,
	}
	return resp, nil
}

// countingBody counts bytes read and reports completion once.
type countingBody struct {
	body     io.ReadCloser
	id       capture.TaskID
	status   int
	recorder Recorder

	n    atomic.Int64
	once sync.Once
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	b.n.Add(int64(n))

	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		b.finish()
	default:
		b.recorder.RecordError(b.id, err)
	}
	return n, err
}

func (b *countingBody) Close() error {
	err := b.body.Close()
	b.finish()
	return err
}

func (b *countingBody) finish() {
	b.once.Do(func() {
		b.recorder.Completed(b.id, &capture.ResponseMeta{
			StatusCode:       b.status,
			AccumulatedBytes: b.n.Load(),
		}, nil)
	})
}
