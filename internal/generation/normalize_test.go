package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"text2image-service/internal/upstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	records []ImageRecord
}

func (s *memorySink) Append(r ImageRecord) {
	s.records = append(s.records, r)
}

func okResponse(body string) *upstream.RawResponse {
	return &upstream.RawResponse{StatusCode: 200, Body: []byte(body)}
}

func decode(t *testing.T, s string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestExtractURL_KnownShapes(t *testing.T) {
	tests := []struct {
		name  string
		entry string
		want  string
	}{
		{"content image string", `{"message":{"content":[{"image":"https://a/1.png"}]}}`, "https://a/1.png"},
		{"content image object", `{"message":{"content":[{"image":{"url":"https://a/2.png"}}]}}`, "https://a/2.png"},
		{"content url", `{"message":{"content":[{"url":"https://a/3.png"}]}}`, "https://a/3.png"},
		{"entry image string", `{"image":"https://a/4.png"}`, "https://a/4.png"},
		{"entry image object", `{"image":{"url":"https://a/4b.png"}}`, "https://a/4b.png"},
		{"entry url", `{"url":"https://a/5.png"}`, "https://a/5.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ExtractURL(decode(t, tt.entry))
			assert.True(t, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractURL_PriorityOrder(t *testing.T) {
	entry := `{"url":"https://a/entry.png","image":"https://a/image.png","message":{"content":[{"url":"https://a/content-url.png","image":"https://a/content-image.png"}]}}`
	got, found := ExtractURL(decode(t, entry))
	assert.True(t, found)
	assert.Equal(t, "https://a/content-image.png", got)
}

func TestExtractURL_NoMatch(t *testing.T) {
	for _, entry := range []string{
		`{"message":{"content":[{"text":"sorry"}]}}`,
		`{"message":{"content":[]}}`,
		`{"image":{"b64":"xxx"}}`,
		`{"url":""}`,
		`"just a string"`,
		`42`,
	} {
		_, found := ExtractURL(decode(t, entry))
		assert.False(t, found, entry)
	}
}

func TestNormalize_SuccessShapeTwo(t *testing.T) {
	sink := &memorySink{}
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	n := &Normalizer{Sink: sink, Now: func() time.Time { return now }}
	body := `{
		"request_id": "req-1",
		"output": {"choices": [
			{"message": {"content": [{"image": {"url": "https://img/a.png"}}]}},
			{"message": {"content": [{"image": {"url": "https://img/b.png"}}]}}
		]}
	}`
	req := Request{Prompt: "cat", Size: "1024*768", Model: "qwen-image-plus"}

	out := n.Normalize(okResponse(body), req)

	require.Equal(t, StatusSuccess, out.Status)
	require.Len(t, out.Images, 2)
	assert.Equal(t, "req-1-0", out.Images[0].ID)
	assert.Equal(t, "req-1-1", out.Images[1].ID)
	assert.Equal(t, "https://img/a.png", out.Images[0].URL)
	assert.Equal(t, "https://img/b.png", out.Images[1].URL)
	for _, img := range out.Images {
		assert.Equal(t, "2025-06-01T08:00:00.000Z", img.CreatedAt)
		assert.Equal(t, 1024, img.Width)
		assert.Equal(t, 768, img.Height)
		assert.Equal(t, "cat", img.Prompt)
		assert.Equal(t, "qwen-image-plus", img.Model)
		assert.Equal(t, "1024*768", img.Size)
		assert.False(t, img.Downloaded)
	}
	assert.Equal(t, out.Images, sink.records, "every image is appended before returning")
}

func TestNormalize_TopLevelChoicesAndDroppedEntries(t *testing.T) {
	sink := &memorySink{}
	now := time.UnixMilli(1700000000123)
	n := &Normalizer{Sink: sink, Now: func() time.Time { return now }}
	body := `{"choices": [{"text": "nothing"}, {"url": "https://img/only.png"}]}`

	out := n.Normalize(okResponse(body), Request{Prompt: "p", Size: "weird"})

	require.Equal(t, StatusSuccess, out.Status)
	require.Len(t, out.Images, 1)
	assert.Equal(t, "1700000000123-0", out.Images[0].ID, "falls back to a time based request id")
	assert.Equal(t, FallbackWidth, out.Images[0].Width)
	assert.Equal(t, FallbackHeight, out.Images[0].Height)
	assert.Len(t, sink.records, 1)
}

func TestNormalize_NoImageData(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"empty choices", `{"output": {"choices": []}}`, MessageNoImageData},
		{"absent choices", `{"output": {}}`, MessageNoImageData},
		{"no extractable url", `{"output": {"choices": [{"message": {"content": [{"text": "hi"}]}}]}}`, MessageNoImageData},
		{"upstream message kept", `{"code": "DataInspectionFailed", "message": "Input data may contain inappropriate content."}`, "Input data may contain inappropriate content."},
		{"not json", `<html>`, MessageNoImageData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memorySink{}
			out := (&Normalizer{Sink: sink}).Normalize(okResponse(tt.body), Request{Prompt: "p"})

			assert.Equal(t, StatusError, out.Status)
			assert.Equal(t, FailureNoImageData, out.Failure)
			assert.Equal(t, tt.wantMsg, out.Error)
			assert.Empty(t, out.Images)
			assert.Empty(t, sink.records)
		})
	}
}

func TestNormalize_UpstreamRejection(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"message field", 401, `{"code":"InvalidApiKey","message":"Invalid API-key provided."}`, "Invalid API-key provided."},
		{"error string", 400, `{"error":"bad size"}`, "bad size"},
		{"error object", 429, `{"error":{"message":"Throttling"}}`, "Throttling"},
		{"error_message", 400, `{"error_message":"bad params"}`, "bad params"},
		{"no message", 500, `{}`, MessageUpstream},
		{"no body", 502, ``, MessageUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memorySink{}
			raw := &upstream.RawResponse{StatusCode: tt.status, Body: []byte(tt.body)}
			out := (&Normalizer{Sink: sink}).Normalize(raw, Request{Prompt: "p"})

			assert.Equal(t, StatusError, out.Status)
			assert.Equal(t, FailureUpstream, out.Failure)
			assert.Equal(t, tt.wantMsg, out.Error)
			assert.Empty(t, sink.records)
		})
	}
}

type fakeTransport struct {
	raw      *upstream.RawResponse
	err      error
	gotPath  string
	gotBody  interface{}
	requests int
}

func (f *fakeTransport) Post(_ context.Context, path string, body interface{}) (*upstream.RawResponse, error) {
	f.requests++
	f.gotPath = path
	f.gotBody = body
	return f.raw, f.err
}

func TestPipeline_Generate(t *testing.T) {
	transport := &fakeTransport{raw: okResponse(`{"request_id":"r","output":{"choices":[{"message":{"content":[{"image":"https://img/1.png"}]}}]}}`)}
	sink := &memorySink{}
	p := NewPipeline(transport, "/gen", sink)

	out := p.Generate(context.Background(), Request{Prompt: "cat"}.WithDefaults())

	require.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, 1, transport.requests)
	assert.Equal(t, "/gen", transport.gotPath)
	body, isUpstream := transport.gotBody.(UpstreamRequest)
	require.True(t, isUpstream)
	assert.Equal(t, DefaultModel, body.Model)
	assert.Len(t, sink.records, 1)
}

func TestPipeline_TransportErrorIsDistinctFromShapeMismatch(t *testing.T) {
	refused := &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}
	p := NewPipeline(&fakeTransport{err: upstream.Classify(refused)}, "/gen", &memorySink{})

	out := p.Generate(context.Background(), Request{Prompt: "cat"})

	assert.Equal(t, StatusError, out.Status)
	assert.Equal(t, FailureTransport, out.Failure)
	assert.Equal(t, "无法连接到服务器，请检查网络连接", out.Error)

	plain := TransportOutcome(errors.New("socket closed"))
	assert.Equal(t, FailureTransport, plain.Failure)
	assert.Equal(t, "socket closed", plain.Error)
}

func TestOutcome_JSONRoundTrip(t *testing.T) {
	for _, o := range []Outcome{
		Idle(),
		Generating(),
		Failed(FailureUpstream, "x"),
		Succeeded([]ImageRecord{{ID: "a-0", URL: "u", CreatedAt: "2025-01-01T00:00:00.000Z"}}),
	} {
		data, err := json.Marshal(o)
		require.NoError(t, err)
		var back Outcome
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, o, back)
	}
	assert.False(t, Generating().Terminal())
	assert.True(t, Failed(FailureBusy, MessageBusy).Terminal())
}
