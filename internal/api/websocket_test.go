package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nebulabroadcast/nebula-worker/internal/asrun"
	"github.com/nebulabroadcast/nebula-worker/internal/auth"
	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/session"
)

func newTestClient(hub *Hub, subs ...string) *WSClient {
	c := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	for _, sub := range subs {
		c.subscriptions[sub] = struct{}{}
	}
	hub.Register(c)
	return c
}

func receive(t *testing.T, c *WSClient) WSMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	default:
		t.Fatal("no message queued")
		return WSMessage{}
	}
}

func TestEventName(t *testing.T) {
	if got := EventName(3, "asrun"); got != "playout.3.asrun" {
		t.Errorf("EventName() = %q", got)
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(testDeps().WS, testLogger())
	exact := newTestClient(hub, "playout.1.status")
	wildcard := newTestClient(hub, "playout.1.*")
	other := newTestClient(hub, "playout.2.*")

	if hub.ClientCount() != 3 {
		t.Fatalf("ClientCount() = %d, want 3", hub.ClientCount())
	}

	hub.PublishStatus(1, session.Stat{ChannelID: 1, Position: 3})

	for name, c := range map[string]*WSClient{"exact": exact, "wildcard": wildcard} {
		msg := receive(t, c)
		if msg.Type != WSTypeEvent || msg.EventType != "playout.1.status" {
			t.Errorf("%s client got %+v", name, msg)
		}
	}
	if len(other.send) != 0 {
		t.Error("client subscribed to channel 2 should not receive channel 1 events")
	}

	rec := &asrun.Record{ID: 9, UUID: "u-9", ChannelID: 1, ItemID: 42, Start: time.Unix(1700000000, 0)}
	hub.PublishAdvance(1, rec, &catalog.Item{ID: 42, Title: "News"})
	if len(exact.send) != 0 {
		t.Error("status-only subscriber should not receive as-run events")
	}
	msg := receive(t, wildcard)
	payload := msg.Payload.(map[string]any)
	if msg.EventType != "playout.1.asrun" || payload["id_asrun"] != float64(9) || payload["title"] != "News" {
		t.Errorf("as-run event = %+v", msg)
	}

	if err := hub.Publish(2, "lowerthird", map[string]any{"text": "hi"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if msg := receive(t, other); msg.EventType != "playout.2.lowerthird" {
		t.Errorf("plugin event = %+v", msg)
	}

	hub.Unregister(exact)
	hub.Unregister(exact)
	if hub.ClientCount() != 2 {
		t.Errorf("ClientCount() = %d, want 2", hub.ClientCount())
	}
	hub.closeAll()
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() after closeAll = %d", hub.ClientCount())
	}
}

func TestClientMessages(t *testing.T) {
	hub := NewHub(testDeps().WS, testLogger())
	c := newTestClient(hub)

	c.handleMessage([]byte(`{"type":"subscribe","id":"1","payload":{"channels":["playout.1.status","playout.2.*"]}}`))
	msg := receive(t, c)
	if msg.Type != WSTypeResponse || msg.ID != "1" {
		t.Errorf("subscribe response = %+v", msg)
	}
	if !c.isSubscribed("playout.1.status") || !c.isSubscribed("playout.2.asrun") || c.isSubscribed("playout.1.asrun") {
		t.Errorf("subscriptions = %v", c.subscriptions)
	}

	c.handleMessage([]byte(`{"type":"unsubscribe","id":"2","payload":{"channels":["playout.2.*"]}}`))
	receive(t, c)
	if c.isSubscribed("playout.2.asrun") {
		t.Error("unsubscribe left the wildcard in place")
	}

	c.handleMessage([]byte(`{"type":"ping","id":"3"}`))
	if msg := receive(t, c); msg.Type != WSTypePong || msg.ID != "3" {
		t.Errorf("ping reply = %+v", msg)
	}

	c.handleMessage([]byte(`{"type":"dance","id":"4"}`))
	if msg := receive(t, c); msg.Type != WSTypeError {
		t.Errorf("unknown type reply = %+v", msg)
	}

	c.handleMessage([]byte(`not json`))
	if msg := receive(t, c); msg.Type != WSTypeError {
		t.Errorf("invalid JSON reply = %+v", msg)
	}
}

func wsURL(base, query string) string {
	u := "ws" + strings.TrimPrefix(base, "http") + "/api/v1/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

func TestWebSocketStatusStream(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL, ""), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	sub := WSMessage{Type: WSTypeSubscribe, ID: "s1", Payload: WSSubscribePayload{Channels: []string{"playout.1.*"}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypeResponse || msg.ID != "s1" {
		t.Fatalf("subscribe response = %+v", msg)
	}

	srv.Hub().PublishStatus(1, session.Stat{ChannelID: 1, Position: 7.5})

	msg := readWS(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != "playout.1.status" {
		t.Fatalf("event = %+v", msg)
	}
	if payload := msg.Payload.(map[string]any); payload["position"] != 7.5 {
		t.Errorf("payload = %v", payload)
	}
}

func TestWebSocketRequiresTicket(t *testing.T) {
	srv, _ := securedServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts.URL, ""), nil)
	if err == nil {
		t.Fatal("Dial without ticket should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("response = %v, want 401", resp)
	}

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(ts.URL, "ticket=bogus"), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bogus ticket: err = %v", err)
	}

	ticket := srv.tickets.issue("test", auth.RoleViewer)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL, "ticket="+ticket), nil)
	if err != nil {
		t.Fatalf("Dial with ticket: %v", err)
	}
	conn.Close()
}
