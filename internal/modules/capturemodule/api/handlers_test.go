package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/mantonx/scrollcast/internal/database"
	apperrors "github.com/mantonx/scrollcast/internal/errors"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/capturetest"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/history"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/scratch"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/types"
)

// MockCaptureService is a mock implementation of CaptureService
type MockCaptureService struct {
	mock.Mock
}

func (m *MockCaptureService) Capture(ctx context.Context, req types.CaptureRequest, observer types.Observer) (*types.CaptureResult, error) {
	args := m.Called(ctx, req, observer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.CaptureResult), args.Error(1)
}

func (m *MockCaptureService) Get(ctx context.Context, id string) (*database.CaptureRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.CaptureRecord), args.Error(1)
}

func (m *MockCaptureService) List(ctx context.Context, opts history.ListOptions) ([]database.CaptureRecord, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]database.CaptureRecord), args.Error(1)
}

func (m *MockCaptureService) Active() int {
	return m.Called().Int(0)
}

func (m *MockCaptureService) StorageStats() (*scratch.Stats, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scratch.Stats), args.Error(1)
}

func setupRouter(svc CaptureService) (*gin.Engine, *APIHandler) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewAPIHandler(svc, "test", nil)
	RegisterRoutes(router, handler)
	return router, handler
}

func gifResult(t *testing.T) *types.CaptureResult {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.gif")
	require.NoError(t, os.WriteFile(path, capturetest.GIF, 0o644))
	return &types.CaptureResult{
		ID:         "c1",
		Kind:       types.KindFrames,
		URL:        "https://example.com",
		GIFPath:    "/videos/c1/capture.gif",
		GIFFile:    path,
		FrameCount: 6,
		SizesBytes: types.Sizes{GIF: int64(len(capturetest.GIF))},
	}
}

func ndjsonLines(t *testing.T, body string) []string {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(body), "\n")
	for _, l := range lines {
		require.True(t, gjson.Valid(l), "invalid json line %q", l)
	}
	return lines
}

func TestCaptureGIF_StreamsAttachment(t *testing.T) {
	svc := new(MockCaptureService)
	result := gifResult(t)
	svc.On("Capture", mock.Anything, mock.MatchedBy(func(r types.CaptureRequest) bool {
		return r.Mode == types.ModeFrames && r.Width == 320 && r.FPS == 60 && r.ScrollStepPx == 12 && r.SlowAnimations
	}), mock.Anything).Return(result, nil)
	router, _ := setupRouter(svc)

	form := url.Values{
		"url":            {"https://example.com"},
		"width":          {"100"},
		"fps":            {"999"},
		"scrollStep":     {"12px"},
		"slowAnimations": {"on"},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/gif", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="capture.gif"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, capturetest.GIF, w.Body.Bytes())
	svc.AssertExpectations(t)
}

func TestCaptureGIF_InvalidURLNeverCaptures(t *testing.T) {
	for _, target := range []string{"", "ftp://example.com", "example.com", "http://"} {
		t.Run(target, func(t *testing.T) {
			svc := new(MockCaptureService)
			router, _ := setupRouter(svc)

			body := `{"url":"` + target + `"}`
			req := httptest.NewRequest(http.MethodPost, "/api/gif", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.True(t, strings.HasPrefix(w.Body.String(), "invalid_request: "), w.Body.String())
			assert.Equal(t, "invalid_request", w.Header().Get("X-Capture-Stage"))
			svc.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCaptureGIF_FailureIsPlainText(t *testing.T) {
	svc := new(MockCaptureService)
	svc.On("Capture", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperrors.NewLaunchFailure(errors.New("no browser executable found")))
	router, _ := setupRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/gif", strings.NewReader(`{"url":"https://example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "launch: browser launch failed: no browser executable found", w.Body.String())
	assert.Equal(t, "launch", w.Header().Get("X-Capture-Stage"))
}

func TestStreamCapture_LogsThenResult(t *testing.T) {
	svc := new(MockCaptureService)
	result := &types.CaptureResult{ID: "v1", Kind: types.KindVideo, GIFPath: "/videos/v1/capture.gif", MP4Path: "/videos/v1/capture.mp4"}
	svc.On("Capture", mock.Anything, mock.MatchedBy(func(r types.CaptureRequest) bool {
		return r.Mode == types.ModeVideo && r.DurationMs == 2000
	}), mock.Anything).Run(func(args mock.Arguments) {
		obs := args.Get(2).(types.Observer)
		obs("launching browser")
		obs("scrolling")
	}).Return(result, nil)
	router, _ := setupRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/scroll", strings.NewReader(`{"url":"https://example.com","duration":"2000"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	lines := ndjsonLines(t, w.Body.String())
	require.Len(t, lines, 3)
	assert.Equal(t, "log", gjson.Get(lines[0], "type").String())
	assert.Equal(t, "launching browser", gjson.Get(lines[0], "message").String())
	assert.Equal(t, "result", gjson.Get(lines[2], "type").String())
	assert.Equal(t, "/videos/v1/capture.mp4", gjson.Get(lines[2], "payload.mp4Path").String())
}

func TestStreamCapture_InvalidRequest(t *testing.T) {
	svc := new(MockCaptureService)
	router, _ := setupRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/scroll", strings.NewReader(`{"url":"javascript:alert(1)"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	lines := ndjsonLines(t, w.Body.String())
	require.Len(t, lines, 1)
	assert.Equal(t, "error", gjson.Get(lines[0], "type").String())
	assert.Equal(t, "invalid_request", gjson.Get(lines[0], "stage").String())
	svc.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything, mock.Anything)
}

func TestStreamCapture_FailureEvent(t *testing.T) {
	svc := new(MockCaptureService)
	svc.On("Capture", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperrors.NewNavigationFailure("https://example.com", errors.New("net::ERR_NAME_NOT_RESOLVED")))
	router, _ := setupRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/scroll", strings.NewReader(`{"url":"https://example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	lines := ndjsonLines(t, w.Body.String())
	last := lines[len(lines)-1]
	assert.Equal(t, "error", gjson.Get(last, "type").String())
	assert.Equal(t, "navigation", gjson.Get(last, "stage").String())
	assert.Contains(t, gjson.Get(last, "message").String(), "ERR_NAME_NOT_RESOLVED")
}

func TestCreateCapture(t *testing.T) {
	svc := new(MockCaptureService)
	svc.On("Capture", mock.Anything, mock.MatchedBy(func(r types.CaptureRequest) bool {
		return r.Mode == types.ModeVideo
	}), mock.Anything).Return(&types.CaptureResult{ID: "c9", Kind: types.KindVideo, GIFPath: "/videos/c9/capture.gif"}, nil)
	router, _ := setupRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/captures", strings.NewReader(`{"url":"https://example.com","mode":"video"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "c9", gjson.Get(w.Body.String(), "id").String())
	assert.Equal(t, "video", gjson.Get(w.Body.String(), "kind").String())
}

func TestCreateCapture_InvalidMode(t *testing.T) {
	svc := new(MockCaptureService)
	router, _ := setupRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/captures", strings.NewReader(`{"url":"https://example.com","mode":"webm"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := w.Body.String()
	assert.Equal(t, "INVALID_REQUEST", gjson.Get(body, "code").String())
	assert.Equal(t, "mode", gjson.Get(body, "details.field").String())
	assert.Equal(t, "invalid_request", gjson.Get(body, "details.stage").String())
}

func TestListCaptures(t *testing.T) {
	svc := new(MockCaptureService)
	svc.On("List", mock.Anything, history.ListOptions{Limit: 5, Status: database.CaptureStatusFailed}).
		Return([]database.CaptureRecord{{ID: "a", Status: database.CaptureStatusFailed}}, nil)
	router, _ := setupRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/captures?limit=5&status=failed", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "count").Int())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/captures?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNumberOfCalls(t, "List", 1)
}

func TestGetCapture_NotFound(t *testing.T) {
	svc := new(MockCaptureService)
	svc.On("Get", mock.Anything, "nope").Return(nil, apperrors.NewNotFound("capture", "nope"))
	router, _ := setupRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/captures/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", gjson.Get(w.Body.String(), "code").String())
}

func TestHealth(t *testing.T) {
	svc := new(MockCaptureService)
	svc.On("Active").Return(2)
	svc.On("StorageStats").Return(&scratch.Stats{Workspaces: 4, TotalSize: 2048, Oldest: 90 * time.Second}, nil)
	router, handler := setupRouter(svc)
	handler.childCount = func() (int, error) { return 3, nil }

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, "ok", gjson.Get(body, "status").String())
	assert.Equal(t, int64(2), gjson.Get(body, "active").Int())
	assert.Equal(t, int64(3), gjson.Get(body, "childProcesses").Int())
	assert.Equal(t, int64(4), gjson.Get(body, "storage.workspaces").Int())
	assert.Equal(t, int64(2048), gjson.Get(body, "storage.bytes").Int())
	assert.Equal(t, int64(90), gjson.Get(body, "storage.oldestSecs").Int())
}

func TestHealth_StorageUnavailable(t *testing.T) {
	svc := new(MockCaptureService)
	svc.On("Active").Return(0)
	svc.On("StorageStats").Return(nil, errors.New("permission denied"))
	router, handler := setupRouter(svc)
	handler.childCount = func() (int, error) { return 0, nil }

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, gjson.Get(w.Body.String(), "storage").Exists())
}

func TestCaptureSocket(t *testing.T) {
	svc := new(MockCaptureService)
	svc.On("Capture", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(2).(types.Observer)("page loaded")
	}).Return(&types.CaptureResult{ID: "w1", Kind: types.KindVideo}, nil)
	router, _ := setupRouter(svc)
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/scroll/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"url": "https://example.com"}))

	var events []types.Event
	for {
		var ev types.Event
		if err := conn.ReadJSON(&ev); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	assert.Equal(t, types.EventLog, events[0].Type)
	assert.Equal(t, types.EventResult, events[1].Type)
	assert.Equal(t, "w1", events[1].Payload.ID)
}

func TestCaptureSocket_ClientGoneCancelsCapture(t *testing.T) {
	started := make(chan struct{})
	canceled := make(chan struct{})
	svc := new(MockCaptureService)
	svc.On("Capture", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		close(started)
		select {
		case <-args.Get(0).(context.Context).Done():
			close(canceled)
		case <-time.After(10 * time.Second):
		}
	}).Return(nil, context.Canceled)
	router, _ := setupRouter(svc)
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/scroll/ws", nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"url": "https://example.com"}))
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("capture never started")
	}
	require.NoError(t, conn.Close())

	select {
	case <-canceled:
	case <-time.After(5 * time.Second):
		t.Fatal("capture context was not canceled after the client disconnected")
	}
}

func TestCaptureSocket_InvalidRequest(t *testing.T) {
	svc := new(MockCaptureService)
	router, _ := setupRouter(svc)
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/scroll/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"url": "file:///etc/passwd"}))

	var ev types.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, types.EventError, ev.Type)
	assert.Equal(t, "invalid_request", ev.Stage)
	svc.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything, mock.Anything)
}
