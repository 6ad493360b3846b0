package nativebridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	eventStreamPath      = "/v1/events/stream"
	reconnectBaseDelay   = 500 * time.Millisecond
	reconnectMaxDelay    = 30 * time.Second
	eventChannelCapacity = 16
)

// Events opens the push-event stream. Frames arrive as JSON
// {"channel": ..., "payload": ...}; payloads are validated against the
// channel schema before they are forwarded. The subscriber reconnects with
// exponential backoff until ctx is cancelled or the bridge is closed.
func (b *HTTPBridge) Events(ctx context.Context) (<-chan PushEvent, error) {
	b.mu.Lock()
	configured := b.configured
	b.mu.Unlock()
	if !configured {
		return nil, &BridgeError{Code: CodeNotConfigured, Message: "configure must complete before subscribing to events"}
	}

	out := make(chan PushEvent, eventChannelCapacity)
	go b.streamEvents(ctx, out)
	return out, nil
}

func (b *HTTPBridge) streamEvents(ctx context.Context, out chan<- PushEvent) {
	defer close(out)
	delay := reconnectBaseDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.closed:
			return
		default:
		}
		err := b.readStream(ctx, out)
		if err == nil || ctx.Err() != nil {
			return
		}
		b.logger.Warn("event stream disconnected, reconnecting",
			zap.Error(err), zap.Duration("delay", delay))
		if waitErr := sleepContext(ctx, delay); waitErr != nil {
			return
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

// readStream dials the websocket and pumps frames until the connection
// drops. A nil return means the stream ended deliberately.
func (b *HTTPBridge) readStream(ctx context.Context, out chan<- PushEvent) error {
	header := http.Header{}
	if key := b.authHeader(); key != "" {
		header.Set("Authorization", "Bearer "+key)
	}
	conn, _, err := websocket.Dial(ctx, b.streamURL(), &websocket.DialOptions{
		HTTPClient: b.httpClient,
		HTTPHeader: header,
	})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	b.logger.Debug("event stream connected")

	for {
		select {
		case <-b.closed:
			return nil
		default:
		}
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		event, err := decodePushFrame(data)
		if err != nil {
			b.logger.Warn("dropping invalid push frame", zap.Error(err))
			continue
		}
		select {
		case out <- event:
		case <-ctx.Done():
			return nil
		case <-b.closed:
			return nil
		}
	}
}

func (b *HTTPBridge) streamURL() string {
	url := b.baseURL + eventStreamPath
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}

// decodePushFrame parses and validates one stream frame.
func decodePushFrame(data []byte) (PushEvent, error) {
	var frame struct {
		Channel string          `json:"channel"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return PushEvent{}, fmt.Errorf("decode frame: %w", err)
	}
	if len(frame.Payload) == 0 {
		return PushEvent{}, errors.New("frame has no payload")
	}
	switch PushChannel(frame.Channel) {
	case ChannelLinkCaptured:
		if err := validatePayload(linkCapturedSchema, frame.Payload); err != nil {
			return PushEvent{}, fmt.Errorf("link-captured payload: %w", err)
		}
		var payload LinkCapturedPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return PushEvent{}, err
		}
		return PushEvent{Channel: ChannelLinkCaptured, LinkCaptured: &payload}, nil
	case ChannelAttributionEnriched:
		if err := validatePayload(attributionEnrichedSchema, frame.Payload); err != nil {
			return PushEvent{}, fmt.Errorf("attribution-enriched payload: %w", err)
		}
		var payload LinkResult
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return PushEvent{}, err
		}
		return PushEvent{Channel: ChannelAttributionEnriched, Attribution: &payload}, nil
	default:
		return PushEvent{}, fmt.Errorf("unknown channel %q", frame.Channel)
	}
}
