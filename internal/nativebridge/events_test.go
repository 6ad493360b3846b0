package nativebridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

func TestDecodePushFrameLinkCaptured(t *testing.T) {
	frame := []byte(`{"channel":"link.captured","payload":{"url":"https://x.link/a","path":"/a","parameters":{"k":"v"}}}`)
	event, err := decodePushFrame(frame)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if event.Channel != ChannelLinkCaptured || event.LinkCaptured == nil {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.LinkCaptured.URL != "https://x.link/a" || event.LinkCaptured.Parameters["k"] != "v" {
		t.Fatalf("unexpected payload %+v", event.LinkCaptured)
	}
}

func TestDecodePushFrameAttributionEnriched(t *testing.T) {
	frame := []byte(`{"channel":"attribution.enriched","payload":{"url":"https://x.link/a","path":"/a","smartLinkId":"s1","clickId":"c1"}}`)
	event, err := decodePushFrame(frame)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if event.Channel != ChannelAttributionEnriched || event.Attribution == nil {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Attribution.SmartLinkID != "s1" {
		t.Fatalf("unexpected payload %+v", event.Attribution)
	}
}

func TestDecodePushFrameRejectsInvalid(t *testing.T) {
	cases := []struct {
		name  string
		frame string
	}{
		{"unknown channel", `{"channel":"mystery","payload":{}}`},
		{"missing payload", `{"channel":"link.captured"}`},
		{"captured without url", `{"channel":"link.captured","payload":{"path":"/a"}}`},
		{"captured extra field", `{"channel":"link.captured","payload":{"url":"u","bogus":1}}`},
		{"enriched wrong type", `{"channel":"attribution.enriched","payload":{"smartLinkId":7}}`},
		{"not json", `nope`},
	}
	for _, tc := range cases {
		if _, err := decodePushFrame([]byte(tc.frame)); err == nil {
			t.Fatalf("%s: expected decode to fail", tc.name)
		}
	}
}

func TestEventsStreamDeliversValidFrames(t *testing.T) {
	frames := []string{
		`{"channel":"link.captured","payload":{"url":"https://x.link/a","path":"/a"}}`,
		`{"channel":"link.captured","payload":{"bad":"frame"}}`,
		`{"channel":"attribution.enriched","payload":{"url":"https://x.link/a","smartLinkId":"s1"}}`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sdk/configure", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/v1/events/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		for _, frame := range frames {
			if err := conn.Write(r.Context(), websocket.MessageText, []byte(frame)); err != nil {
				return
			}
		}
		<-r.Context().Done()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	bridge := testBridge(srv.URL)
	if err := bridge.Configure(context.Background(), "key_123", EnvironmentSandbox); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := bridge.Events(ctx)
	if err != nil {
		t.Fatalf("events failed: %v", err)
	}

	var got []PushEvent
	timeout := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case event, ok := <-events:
			if !ok {
				t.Fatalf("stream closed early, got %d events", len(got))
			}
			got = append(got, event)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d", len(got))
		}
	}
	if got[0].Channel != ChannelLinkCaptured || got[1].Channel != ChannelAttributionEnriched {
		t.Fatalf("unexpected channels: %+v", got)
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			// A buffered frame may still drain; the close must follow.
			if _, stillOpen := <-events; stillOpen {
				t.Fatalf("expected stream to close after cancel")
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("stream did not close after cancel")
	}
}

func TestEventsRequiresConfigure(t *testing.T) {
	bridge := testBridge("http://127.0.0.1:0")
	if _, err := bridge.Events(context.Background()); err == nil {
		t.Fatalf("expected events to fail before configure")
	}
}
