package websocket

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cx-tal-miterani/rail-booking-system/internal/booking"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageFor(t *testing.T) {
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		to       booking.State
		wantType MessageType
		wantMsg  string
	}{
		{"payment started", booking.StatePaymentInProgress, MessageTypeProgress, booking.MsgProcessing},
		{"issuing", booking.StateIssuing, MessageTypeProgress, ""},
		{"confirmed", booking.StateConfirmed, MessageTypeConfirmed, booking.MsgConfirmed},
		{"issuance failed", booking.StateIssuanceFailedAfterPayment, MessageTypeFailed, booking.MsgIssuanceFailed},
		{"payment failed", booking.StatePaymentFailed, MessageTypeFailed, booking.MsgGenericFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := MessageFor(booking.Progress{SessionID: "sess-1", To: tt.to, At: at})
			assert.Equal(t, tt.wantType, msg.Type)
			assert.Equal(t, tt.wantMsg, msg.Message)
			assert.Equal(t, "sess-1", msg.SessionID)
			assert.Equal(t, at.UnixMilli(), msg.Timestamp)
		})
	}
}

func TestHub_DeliversToSessionClients(t *testing.T) {
	logger, _ := test.NewNullLogger()
	hub := NewHub(logger)
	defer hub.Stop()
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("session"))
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?session=sess-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount("sess-1") == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(booking.Progress{SessionID: "sess-other", To: booking.StateIssuing, At: time.Now()})
	hub.Publish(booking.Progress{
		SessionID: "sess-1",
		From:      booking.StateIssuing,
		To:        booking.StateConfirmed,
		PNR:       "PNR12345",
		At:        time.Now(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageTypeConfirmed, msg.Type)
	assert.Equal(t, "PNR12345", msg.PNR)
	assert.Equal(t, booking.StateIssuing, msg.From)
}

func TestHub_UnregistersOnClose(t *testing.T) {
	logger, _ := test.NewNullLogger()
	hub := NewHub(logger)
	defer hub.Stop()
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "sess-1")
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount("sess-1") == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount("sess-1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	logger, hook := test.NewNullLogger()
	hub := NewHub(logger)

	// No Run loop: the queue fills and further events are dropped
	finished := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			hub.Observer()(booking.Progress{SessionID: "sess-1", To: booking.StateIssuing})
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}
	assert.NotEmpty(t, hook.AllEntries())
}

func TestMessageFor_UsesOutcomeMessage(t *testing.T) {
	msg := MessageFor(booking.Progress{
		SessionID: "sess-1",
		From:      booking.StateIssuing,
		To:        booking.StateIssuanceFailedAfterPayment,
		Message:   "Train is Full (Waitlist Assigned)",
		At:        time.Now(),
	})

	assert.Equal(t, MessageTypeFailed, msg.Type)
	assert.Equal(t, "Train is Full (Waitlist Assigned)", msg.Message)
}

func TestHub_StoppedHubDoesNotBlock(t *testing.T) {
	logger, _ := test.NewNullLogger()
	hub := NewHub(logger)
	stopped := make(chan struct{})
	go func() {
		hub.Run()
		close(stopped)
	}()

	served := make(chan struct{}, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "sess-1")
		served <- struct{}{}
	}))
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	attached, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount("sess-1") == 1 }, time.Second, 10*time.Millisecond)
	<-served

	hub.Stop()
	hub.Stop()
	<-stopped

	// The read loop of an attached client exits without a running hub
	attached.Close()

	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer late.Close()

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeWS blocked after Stop")
	}

	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = late.ReadMessage()
	require.Error(t, err)
	var nerr net.Error
	if errors.As(err, &nerr) {
		assert.False(t, nerr.Timeout())
	}
}
