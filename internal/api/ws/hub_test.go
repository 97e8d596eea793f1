package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facewatch/pkg/dto"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func receive(t *testing.T, c *Client) dto.WSMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg dto.WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return dto.WSMessage{}
	}
}

func cameraOf(t *testing.T, msg dto.WSMessage) string {
	t.Helper()
	data, ok := msg.Data.(map[string]any)
	require.True(t, ok)
	return data["camera_id"].(string)
}

func TestHub_CameraIsolation(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()

	cam1 := &Client{send: make(chan []byte, 4), topic: ResultsTopic("cam-1")}
	cam2 := &Client{send: make(chan []byte, 4), topic: ResultsTopic("cam-2")}
	cam1Errors := &Client{send: make(chan []byte, 4), topic: ErrorsTopic("cam-1")}
	h.register <- cam1
	h.register <- cam2
	h.register <- cam1Errors

	require.NoError(t, h.PublishResult(ctx, "cam-1", dto.DetectionResult{CameraID: "cam-1"}))
	require.NoError(t, h.PublishResult(ctx, "cam-2", dto.DetectionResult{CameraID: "cam-2"}))
	require.NoError(t, h.PublishError(ctx, "cam-1", dto.DetectionError{CameraID: "cam-1", Code: "NO_FACE_DETECTED"}))

	msg := receive(t, cam1)
	assert.Equal(t, "detection_result", msg.Type)
	assert.Equal(t, "cam-1", cameraOf(t, msg))

	msg = receive(t, cam2)
	assert.Equal(t, "cam-2", cameraOf(t, msg))

	msg = receive(t, cam1Errors)
	assert.Equal(t, "detection_error", msg.Type)

	// messages are processed in order, so nothing else is pending
	assert.Empty(t, cam1.send)
	assert.Empty(t, cam2.send)
	assert.Empty(t, cam1Errors.send)
}

func TestHub_NoSubscribers(t *testing.T) {
	h := startHub(t)
	assert.NoError(t, h.PublishResult(context.Background(), "nobody", dto.DetectionResult{}))
	assert.Zero(t, h.Subscribers(ResultsTopic("nobody")))
}

func TestHub_DropsSlowClient(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()

	slow := &Client{send: make(chan []byte, 1), topic: ResultsTopic("cam-1")}
	h.register <- slow

	require.NoError(t, h.PublishResult(ctx, "cam-1", dto.DetectionResult{CameraID: "cam-1"}))
	require.NoError(t, h.PublishResult(ctx, "cam-1", dto.DetectionResult{CameraID: "cam-1"}))

	require.Eventually(t, func() bool {
		return h.Subscribers(ResultsTopic("cam-1")) == 0
	}, time.Second, 5*time.Millisecond)

	// the buffered message is still readable, then the channel is closed
	<-slow.send
	_, open := <-slow.send
	assert.False(t, open)
}

func TestHub_WebSocketSubscription(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := startHub(t)

	r := gin.New()
	r.GET("/ws/detections/:cameraId", h.HandleDetections)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/detections/cam-9"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return h.Subscribers(ResultsTopic("cam-9")) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.PublishResult(context.Background(), "cam-9", dto.DetectionResult{CameraID: "cam-9", Matched: true}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg dto.WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "detection_result", msg.Type)
	assert.Equal(t, "cam-9", cameraOf(t, msg))
}
