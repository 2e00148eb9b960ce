package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"text2image-service/internal/generation"
	"text2image-service/internal/imagestore"
	"text2image-service/internal/kv"
	"text2image-service/internal/session"
	"text2image-service/internal/storage"
	"text2image-service/internal/upstream"
	"text2image-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeForwarder struct {
	mu   sync.Mutex
	body []byte
	resp *upstream.RawResponse
	err  error
}

func (f *fakeForwarder) Forward(ctx context.Context, body []byte) (*upstream.RawResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.body = append([]byte(nil), body...)
	return f.resp, f.err
}

// scriptedTransport 返回固定响应；block 非空时在其关闭前阻塞
type scriptedTransport struct {
	raw   *upstream.RawResponse
	err   error
	block chan struct{}
	calls atomic.Int32
	last  atomic.Value
}

func (t *scriptedTransport) Post(ctx context.Context, path string, body interface{}) (*upstream.RawResponse, error) {
	t.calls.Add(1)
	t.last.Store(body)
	if t.block != nil {
		<-t.block
	}
	return t.raw, t.err
}

type testEnv struct {
	srv       *Server
	pool      *worker.Pool
	router    *gin.Engine
	images    *imagestore.Store
	forwarder *fakeForwarder
	transport *scriptedTransport
}

func newTestEnv(t *testing.T, transport *scriptedTransport, queueSize int) *testEnv {
	t.Helper()
	images := imagestore.New(kv.NewMemoryMedium())
	pipeline := generation.NewPipeline(transport, "/gen", images)
	pool := worker.NewPool(pipeline, 1, queueSize, 5*time.Second)
	pool.Start()
	t.Cleanup(pool.Stop)

	forwarder := &fakeForwarder{}
	srv := NewServer(Server{
		Proxy:    forwarder,
		Images:   images,
		Sessions: session.NewManager(time.Hour),
		Pool:     pool,
		Cache:    storage.NewImageCache(t.TempDir(), 5*time.Second, 16),
		Build:    BuildInfo{Version: "test"},
	})
	return &testEnv{srv: srv, pool: pool, router: srv.Router(), images: images, forwarder: forwarder, transport: transport}
}

func (e *testEnv) do(method, path, sessionID string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(method, path, sessionID string, body interface{}) *httptest.ResponseRecorder {
	var data []byte
	if body != nil {
		data, _ = json.Marshal(body)
	}
	return e.do(method, path, sessionID, data, "application/json")
}

// decodeData 解析统一响应并把 data 字段写入 out
func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) int {
	t.Helper()
	var env struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env.Code
}

func successBody(urls ...string) *upstream.RawResponse {
	contents := make([]map[string]interface{}, 0, len(urls))
	for _, u := range urls {
		contents = append(contents, map[string]interface{}{
			"message": map[string]interface{}{
				"content": []map[string]interface{}{{"image": u}},
			},
		})
	}
	body, _ := json.Marshal(map[string]interface{}{
		"request_id": "req-1",
		"output":     map[string]interface{}{"choices": contents},
	})
	return &upstream.RawResponse{StatusCode: http.StatusOK, Body: body}
}

func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for x := 0; x < 32; x++ {
		for y := 0; y < 32; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(server.Close)
	return server
}
