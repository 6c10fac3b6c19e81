package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backoffice/internal/policy"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResolver map[string]policy.Actor

func (r staticResolver) Resolve(_ context.Context, raw string) (policy.Actor, error) {
	a, ok := r[raw]
	if !ok {
		return policy.Actor{}, errors.New("unknown token")
	}
	return a, nil
}

var (
	ownerActor   = policy.NewActor(uuid.New(), []policy.RoleRef{{Name: policy.RoleUser}}, []string{"invoice.view"})
	otherActor   = policy.NewActor(uuid.New(), []policy.RoleRef{{Name: policy.RoleUser}}, []string{"invoice.view"})
	managerActor = policy.NewActor(uuid.New(), []policy.RoleRef{{Name: policy.RoleManager}}, []string{"invoice.view"})
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	auth := staticResolver{
		"owner":    ownerActor,
		"other":    otherActor,
		"manager":  managerActor,
		"stranger": policy.NewActor(uuid.New(), nil, nil),
	}
	router := gin.New()
	router.GET("/ws", func(c *gin.Context) { ServeWs(hub, auth, c) })
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestPublishWithoutRunDoesNotBlock(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish("invoice.updated", ownerActor.UserID, i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
}

func TestServeWsRejectsBadTokens(t *testing.T) {
	_, url := startHub(t)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=bogus", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=stranger", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestBroadcastReachesClient(t *testing.T) {
	hub, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=owner", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish("invoice.sent", ownerActor.UserID, map[string]string{"id": "42"})

	msg := readEvent(t, conn)
	assert.Equal(t, "invoice.sent", msg.Event)
	assert.Equal(t, "42", msg.Data["id"])

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

type frame struct {
	Event string            `json:"event"`
	Data  map[string]string `json:"data"`
}

func readEvent(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	return readEvents(t, conn, 1)[0]
}

// readEvents collects n events; queued events may share a newline-separated frame.
func readEvents(t *testing.T, conn *websocket.Conn, n int) []frame {
	t.Helper()
	var out []frame
	for len(out) < n {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		for _, line := range strings.Split(string(raw), "\n") {
			var msg frame
			require.NoError(t, json.Unmarshal([]byte(line), &msg))
			out = append(out, msg)
		}
	}
	return out
}

func TestOwnScopedClientsOnlyReceiveTheirInvoices(t *testing.T) {
	hub, url := startHub(t)

	conns := map[string]*websocket.Conn{}
	for _, token := range []string{"owner", "other", "manager"} {
		conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
		require.NoError(t, err)
		defer conn.Close()
		conns[token] = conn
	}
	require.Eventually(t, func() bool { return hub.Count() == 3 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish("invoice.updated", ownerActor.UserID, map[string]string{"id": "owned"})
	hub.Publish("invoice.updated", otherActor.UserID, map[string]string{"id": "foreign"})

	assert.Equal(t, "owned", readEvent(t, conns["owner"]).Data["id"])
	assert.Equal(t, "foreign", readEvent(t, conns["other"]).Data["id"], "the owner's invoice is skipped")

	seen := readEvents(t, conns["manager"], 2)
	require.Len(t, seen, 2)
	assert.Equal(t, "owned", seen[0].Data["id"])
	assert.Equal(t, "foreign", seen[1].Data["id"])
}
