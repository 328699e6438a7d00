package controllers

import (
	"github.com/adamlounds/glucoscope/models"
	socketio "github.com/googollee/go-socket.io"
	"github.com/stretchr/testify/assert"
	"testing"
	"time"
)

// fakeConn records what the controller does with a connection. Methods the
// controller never calls are left to the embedded nil interface.
type fakeConn struct {
	socketio.Conn
	ctx     interface{}
	rooms   []string
	emitted []string
}

func (f *fakeConn) ID() string { return "conn1" }
func (f *fakeConn) Context() interface{} { return f.ctx }
func (f *fakeConn) SetContext(ctx interface{}) { f.ctx = ctx }
func (f *fakeConn) Join(room string) { f.rooms = append(f.rooms, room) }
func (f *fakeConn) Emit(event string, v ...interface{}) { f.emitted = append(f.emitted, event) }

type broadcast struct {
	room  string
	event string
	args  []interface{}
}

type fakeBroadcaster struct {
	sent []broadcast
}

func (f *fakeBroadcaster) BroadcastToRoom(namespace string, room string, event string, args ...interface{}) bool {
	f.sent = append(f.sent, broadcast{room: room, event: event, args: args})
	return true
}

func TestSocketController_Authorize(t *testing.T) {
	tests := []struct {
		name          string
		secret        string
		expected      map[string]bool
		expectedRooms []string
	}{
		{
			name:          "api secret joins the admin user's room",
			secret:        testSecretHash,
			expected:      map[string]bool{"read": true},
			expectedRooms: []string{"user:admin"},
		},
		{
			name:          "readable token joins its user's room",
			secret:        "watcher-def456",
			expected:      map[string]bool{"read": true},
			expectedRooms: []string{"user:u1"},
		},
		{
			name:     "token without forecast permission",
			secret:   "phone-abc123",
			expected: map[string]bool{"read": false},
		},
		{
			name:     "unknown secret",
			secret:   "nope",
			expected: map[string]bool{"read": false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := SocketController{Context: contextWithSilentLogger(), SockSvr: &fakeBroadcaster{}, AuthService: testAuthService()}
			conn := &fakeConn{}

			got := c.Authorize(conn, authorizeEvent{Client: "web", Secret: tt.secret})

			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.expectedRooms, conn.rooms)
			if tt.expected["read"] {
				assert.Equal(t, []string{"connected"}, conn.emitted)
			} else {
				assert.Empty(t, conn.emitted)
			}
		})
	}
}

func TestSocketController_ForecastCreated(t *testing.T) {
	broadcaster := &fakeBroadcaster{}
	c := SocketController{Context: contextWithSilentLogger(), SockSvr: broadcaster, AuthService: testAuthService()}
	record := models.ForecastRecord{
		CreatedTime:      time.Date(2024, 11, 28, 12, 0, 0, 0, time.UTC),
		ID:               "01JDR9",
		UserID:           "u1",
		PredictedGlucose: 151.25,
	}

	c.ForecastCreated(contextWithSilentLogger(), record)

	assert.Equal(t, []broadcast{{room: "user:u1", event: "forecastUpdate", args: []interface{}{record}}}, broadcaster.sent)
}

func TestSocketController_OnConnect(t *testing.T) {
	c := SocketController{Context: contextWithSilentLogger(), SockSvr: &fakeBroadcaster{}, AuthService: testAuthService()}
	conn := &fakeConn{ctx: "stale"}
	assert.NoError(t, c.OnConnect(conn))
	assert.Equal(t, "", conn.Context())
}
