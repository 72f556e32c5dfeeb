// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package mediaws

import (
	"encoding/base64"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/voicecampaign/internal/audiobridge"
	"github.com/rapidaai/voicecampaign/internal/health"
	"github.com/rapidaai/voicecampaign/internal/logging"
)

func newTestBridge() *Bridge {
	correlator := audiobridge.NewCorrelator(logging.NewTestLogger())
	factory := func(callID string, campaignID *uint64) audiobridge.Config {
		return audiobridge.Config{CallID: callID, CampaignID: campaignID}
	}
	return NewBridge(correlator, factory, logging.NewTestLogger(), health.NewMetrics())
}

func dialBridge(t *testing.T, bridge *Bridge) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(bridge)
	t.Cleanup(server.Close)
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBridge_StartRegistersSession(t *testing.T) {
	bridge := newTestBridge()
	conn := dialBridge(t, bridge)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": "start",
		"start": map[string]interface{}{"callSid": "CA1"},
	}))

	require.Eventually(t, func() bool {
		_, ok := bridge.Session("CA1")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestBridge_StopUnregistersSession(t *testing.T) {
	bridge := newTestBridge()
	conn := dialBridge(t, bridge)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": "start",
		"start": map[string]interface{}{"callSid": "CA2"},
	}))
	require.Eventually(t, func() bool {
		_, ok := bridge.Session("CA2")
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": "stop"}))

	require.Eventually(t, func() bool {
		_, ok := bridge.Session("CA2")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestBridge_MediaWithoutStartIsDropped(t *testing.T) {
	bridge := newTestBridge()
	conn := dialBridge(t, bridge)

	payload := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02})
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": "media",
		"media": map[string]interface{}{"track": "inbound", "chunk": "1", "payload": payload},
	}))

	require.Never(t, func() bool {
		_, ok := bridge.Session("")
		return ok
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func TestConnHandler_WriteMediaFrameAfterCloseIsNoop(t *testing.T) {
	c := &connHandler{closed: true}
	require.NoError(t, c.WriteMediaFrame("outbound", 1, []byte{0x01}))
}

func TestConnHandler_ClosedReflectsState(t *testing.T) {
	c := &connHandler{}
	require.False(t, c.Closed())
	c.closed = true
	require.True(t, c.Closed())
}

func TestBridge_StartMediaFormatAppliesToSubsequentMediaFrames(t *testing.T) {
	bridge := newTestBridge()
	conn := dialBridge(t, bridge)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": "start",
		"start": map[string]interface{}{
			"callSid": "CA4",
			"mediaFormat": map[string]interface{}{
				"encoding":   "alaw",
				"sampleRate": 8000,
				"channels":   1,
				"bitDepth":   8,
			},
		},
	}))

	var session *audiobridge.Session
	require.Eventually(t, func() bool {
		s, ok := bridge.Session("CA4")
		session = s
		return ok
	}, time.Second, 5*time.Millisecond)

	payload := base64.StdEncoding.EncodeToString([]byte{0x00, 0x00})
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": "media",
		"media": map[string]interface{}{"track": "inbound", "chunk": "1", "payload": payload},
	}))

	require.Eventually(t, func() bool {
		return session.SourceFormat().Codec == "alaw"
	}, time.Second, 5*time.Millisecond)

	format := session.SourceFormat()
	require.Equal(t, 8000, format.SampleRate)
	require.Equal(t, 1, format.Channels)
	require.Equal(t, 8, format.BitDepth)
}

func TestBridge_MalformedMessageDoesNotCrashConnection(t *testing.T) {
	bridge := newTestBridge()
	conn := dialBridge(t, bridge)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": "start",
		"start": map[string]interface{}{"callSid": fmt.Sprintf("CA%d", 3)},
	}))
	require.Eventually(t, func() bool {
		_, ok := bridge.Session("CA3")
		return ok
	}, time.Second, 5*time.Millisecond)
}
