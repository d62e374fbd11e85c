package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameTypeConstants(t *testing.T) {
	assert.Equal(t, "req", FrameTypeRequest)
	assert.Equal(t, "res", FrameTypeResponse)
	assert.Equal(t, "event", FrameTypeEvent)
}

func TestProtocolVersion(t *testing.T) {
	assert.Equal(t, 1, ProtocolVersion)
}

// --- NewRequest tests ---

func TestNewRequest(t *testing.T) {
	frame, err := NewRequest("req-1", "health", nil)
	require.NoError(t, err)

	assert.Equal(t, FrameTypeRequest, frame.Type)
	assert.Equal(t, "req-1", frame.ID)
	assert.Equal(t, "health", frame.Method)
}

func TestNewRequest_WithParams(t *testing.T) {
	params := map[string]string{"interface": "192.168.250.1/24"}
	frame, err := NewRequest("req-2", "network.request", params)
	require.NoError(t, err)

	assert.Equal(t, FrameTypeRequest, frame.Type)
	assert.Equal(t, "req-2", frame.ID)
	assert.Equal(t, "network.request", frame.Method)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(frame.Params, &decoded))
	assert.Equal(t, "192.168.250.1/24", decoded["interface"])
}

func TestNewRequest_MarshalRoundTrip(t *testing.T) {
	frame, err := NewRequest("req-3", "route.request", map[string]string{
		"gateway":     "192.168.250.3",
		"destination": "172.16.0.0/16",
	})
	require.NoError(t, err)

	data, err := json.Marshal(frame)
	require.NoError(t, err)

	var decoded Frame
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, FrameTypeRequest, decoded.Type)
	assert.Equal(t, "req-3", decoded.ID)
	assert.Equal(t, "route.request", decoded.Method)
}

// --- NewResponse tests ---

func TestNewResponse(t *testing.T) {
	frame, err := NewResponse("req-1", map[string]string{"status": "ok"})
	require.NoError(t, err)

	assert.Equal(t, FrameTypeResponse, frame.Type)
	assert.Equal(t, "req-1", frame.ID)
	require.NotNil(t, frame.OK)
	assert.True(t, *frame.OK)
	assert.Nil(t, frame.Error)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, "ok", payload["status"])
}

func TestNewResponse_NilPayload(t *testing.T) {
	frame, err := NewResponse("req-1", nil)
	require.NoError(t, err)
	assert.Equal(t, FrameTypeResponse, frame.Type)
	require.NotNil(t, frame.OK)
	assert.True(t, *frame.OK)
}

// --- NewErrorResponse tests ---

func TestNewErrorResponse(t *testing.T) {
	frame := NewErrorResponse("req-1", ErrorShape{
		Code:    "unauthorized",
		Message: "invalid token",
	})

	assert.Equal(t, FrameTypeResponse, frame.Type)
	assert.Equal(t, "req-1", frame.ID)
	require.NotNil(t, frame.OK)
	assert.False(t, *frame.OK)
	require.NotNil(t, frame.Error)
	assert.Equal(t, "unauthorized", frame.Error.Code)
	assert.Equal(t, "invalid token", frame.Error.Message)
}

func TestNewErrorResponse_WithRetry(t *testing.T) {
	frame := NewErrorResponse("req-2", ErrorShape{
		Code:       "rate_limited",
		Message:    "too many requests",
		Retryable:  true,
		RetryAfter: 5000,
	})

	require.NotNil(t, frame.Error)
	assert.True(t, frame.Error.Retryable)
	assert.Equal(t, 5000, frame.Error.RetryAfter)
}

// --- NewEvent tests ---

func TestNewEvent(t *testing.T) {
	frame, err := NewEvent(EventTableUpdated, map[string]any{"table": map[string]any{}}, 42)
	require.NoError(t, err)

	assert.Equal(t, FrameTypeEvent, frame.Type)
	assert.Equal(t, EventTableUpdated, frame.Event)
	assert.Equal(t, int64(42), frame.Seq)
}

func TestNewEvent_ZeroSeq(t *testing.T) {
	frame, err := NewEvent(EventConnectChallenge, map[string]string{"nonce": "abc"}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), frame.Seq)
}

// --- ConnectParams tests ---

func TestConnectParams_Marshal(t *testing.T) {
	params := ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client: ClientInfo{
			ID:          "web/0",
			DisplayName: "web unit 0",
			Version:     "1.0.0",
			Platform:    "linux",
			Mode:        "host",
		},
		Auth:      &ConnectAuth{Token: "secret"},
		UserAgent: "iprouted-test/1.0",
	}

	data, err := json.Marshal(params)
	require.NoError(t, err)

	var decoded ConnectParams
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 1, decoded.MinProtocol)
	assert.Equal(t, "web/0", decoded.Client.ID)
	assert.Equal(t, "host", decoded.Client.Mode)
	require.NotNil(t, decoded.Auth)
	assert.Equal(t, "secret", decoded.Auth.Token)
}

func TestConnectParams_OmitsNilAuth(t *testing.T) {
	params := ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client: ClientInfo{
			ID:       "cli",
			Version:  "1.0.0",
			Platform: "linux",
			Mode:     "observer",
		},
	}

	data, err := json.Marshal(params)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"auth"`)
}

// --- ErrorShape tests ---

func TestErrorShape_OmitsEmpty(t *testing.T) {
	err := ErrorShape{
		Code:    "bad_request",
		Message: "missing params",
	}

	data, e := json.Marshal(err)
	require.NoError(t, e)
	assert.NotContains(t, string(data), "details")
	assert.NotContains(t, string(data), "retryable")
	assert.NotContains(t, string(data), "retryAfterMs")
}
