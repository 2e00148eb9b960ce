package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"text2image-service/internal/generation"
	"text2image-service/internal/upstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_SuccessUpdatesGalleryAndDraft(t *testing.T) {
	env := newTestEnv(t, &scriptedTransport{raw: successBody("https://img/a.png")}, 4)

	w := env.doJSON(http.MethodPost, "/api/v1/generate", "s1", map[string]interface{}{"prompt": "  a cat  "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var outcome generation.Outcome
	assert.Equal(t, 200, decodeData(t, w, &outcome))
	assert.Equal(t, generation.StatusSuccess, outcome.Status)
	require.Len(t, outcome.Images, 1)
	assert.Equal(t, "https://img/a.png", outcome.Images[0].URL)
	assert.Equal(t, "a cat", outcome.Images[0].Prompt)
	assert.Equal(t, 1328, outcome.Images[0].Width)

	assert.Len(t, env.images.List(), 1)

	sent, ok := env.transport.last.Load().(generation.UpstreamRequest)
	require.True(t, ok)
	assert.Equal(t, generation.DefaultModel, sent.Model)
	assert.Equal(t, generation.DefaultSize, sent.Parameters.Size)

	saved, ok := env.srv.Sessions.Draft("s1").Outcome()
	require.True(t, ok)
	assert.Equal(t, generation.StatusSuccess, saved.Status)

	form, ok := env.srv.Sessions.Draft("s1").Form()
	require.True(t, ok)
	assert.Equal(t, "a cat", form.Prompt)
	assert.False(t, env.srv.Sessions.InFlight("s1"))
}

func TestGenerate_FailureIsAnOutcome(t *testing.T) {
	raw := &upstream.RawResponse{StatusCode: http.StatusBadRequest, Body: []byte(`{"code":"InvalidParameter","message":"bad size"}`)}
	env := newTestEnv(t, &scriptedTransport{raw: raw}, 4)

	w := env.doJSON(http.MethodPost, "/api/v1/generate", "s1", map[string]interface{}{"prompt": "x"})
	require.Equal(t, http.StatusOK, w.Code)

	var outcome generation.Outcome
	decodeData(t, w, &outcome)
	assert.Equal(t, generation.StatusError, outcome.Status)
	assert.Equal(t, generation.FailureUpstream, outcome.Failure)
	assert.Equal(t, "bad size", outcome.Error)
	assert.Empty(t, env.images.List())
}

func TestGenerate_RejectsEmptyPrompt(t *testing.T) {
	env := newTestEnv(t, &scriptedTransport{raw: successBody("https://img/a.png")}, 4)

	w := env.doJSON(http.MethodPost, "/api/v1/generate", "s1", map[string]interface{}{"prompt": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, int32(0), env.transport.calls.Load())

	w = env.do(http.MethodPost, "/api/v1/generate", "s1", []byte("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerate_Multipart(t *testing.T) {
	env := newTestEnv(t, &scriptedTransport{raw: successBody("https://img/a.png", "https://img/b.png")}, 4)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("prompt", "山水画"))
	require.NoError(t, mw.WriteField("size", "1024*1024"))
	require.NoError(t, mw.WriteField("n", "2"))
	require.NoError(t, mw.WriteField("watermark", "on"))
	require.NoError(t, mw.WriteField("promptExtend", "false"))
	require.NoError(t, mw.Close())

	w := env.do(http.MethodPost, "/api/v1/generate", "m1", buf.Bytes(), mw.FormDataContentType())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var outcome generation.Outcome
	decodeData(t, w, &outcome)
	require.Len(t, outcome.Images, 2)
	assert.Equal(t, 1024, outcome.Images[0].Width)

	form, ok := env.srv.Sessions.Draft("m1").Form()
	require.True(t, ok)
	assert.Equal(t, "山水画", form.Prompt)
	assert.Equal(t, 2, form.Count)
	assert.True(t, form.Watermark)
	require.NotNil(t, form.PromptExtend)
	assert.False(t, *form.PromptExtend)
}

func TestGenerate_OneRequestPerSession(t *testing.T) {
	transport := &scriptedTransport{raw: successBody("https://img/a.png"), block: make(chan struct{})}
	env := newTestEnv(t, transport, 4)

	var first *httptest.ResponseRecorder
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = env.doJSON(http.MethodPost, "/api/v1/generate", "s1", map[string]interface{}{"prompt": "one"})
	}()
	require.Eventually(t, func() bool { return transport.calls.Load() == 1 }, timeoutWait, pollTick)

	saved, ok := env.srv.Sessions.Draft("s1").Outcome()
	require.True(t, ok)
	assert.Equal(t, generation.StatusGenerating, saved.Status)

	second := env.doJSON(http.MethodPost, "/api/v1/generate", "s1", map[string]interface{}{"prompt": "two"})
	assert.Equal(t, http.StatusConflict, second.Code)

	close(transport.block)
	wg.Wait()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, int32(1), transport.calls.Load())
}

func TestGenerate_BusyWhenQueueFull(t *testing.T) {
	transport := &scriptedTransport{raw: successBody("https://img/a.png"), block: make(chan struct{})}
	env := newTestEnv(t, transport, 1)

	var wg sync.WaitGroup
	submit := func(sessionID string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.doJSON(http.MethodPost, "/api/v1/generate", sessionID, map[string]interface{}{"prompt": sessionID})
		}()
	}
	submit("a")
	require.Eventually(t, func() bool { return transport.calls.Load() == 1 }, timeoutWait, pollTick)
	submit("b")
	require.Eventually(t, func() bool { return env.pool.Pending() == 1 }, timeoutWait, pollTick)

	w := env.doJSON(http.MethodPost, "/api/v1/generate", "c", map[string]interface{}{"prompt": "c"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	saved, ok := env.srv.Sessions.Draft("c").Outcome()
	require.True(t, ok)
	assert.Equal(t, generation.FailureBusy, saved.Failure)
	assert.False(t, env.srv.Sessions.InFlight("c"))

	close(transport.block)
	wg.Wait()
}

func TestGenerate_AssignsSessionCookie(t *testing.T) {
	env := newTestEnv(t, &scriptedTransport{raw: successBody("https://img/a.png")}, 4)

	w := env.doJSON(http.MethodGet, "/api/v1/session/exists", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
	assert.Zero(t, cookies[0].MaxAge)
	assert.Equal(t, cookies[0].Value, w.Header().Get(SessionHeader))
}
