package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/hsltrips/internal/adapters/nats"
)

// wsMessage is sent from client to subscribe/unsubscribe to trip events.
type wsMessage struct {
	Action  string `json:"action"`  // "subscribe" | "unsubscribe"
	Channel string `json:"channel"` // "ingested" | "failed"
}

var wsChannels = map[string]string{
	"ingested": natsadapter.SubjectTripIngested,
	"failed":   natsadapter.SubjectIngestFailed,
}

// EventSource delivers raw event payloads published on a subject. The
// returned func cancels the subscription.
type EventSource interface {
	Subscribe(subject string, handler func(data []byte)) (func() error, error)
}

type natsSource struct {
	nc *nats.Conn
}

func (s natsSource) Subscribe(subject string, handler func(data []byte)) (func() error, error) {
	sub, err := s.nc.Subscribe(subject, func(msg *nats.Msg) { handler(msg.Data) })
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

// WebSocketHandler relays trip ingestion events from NATS to the client.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	if nc == nil {
		return WebSocketRelay(nil)
	}
	return WebSocketRelay(natsSource{nc: nc})
}

// WebSocketRelay relays events from src. New connections receive "ingested"
// events; clients send {"action":"subscribe","channel":"failed"} to add failures.
func WebSocketRelay(src EventSource) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		slog.Info("ws client connected", "remote", remoteAddr)

		if src == nil {
			_ = c.WriteJSON(map[string]string{"error": "event stream not available"})
			return
		}

		var mu sync.Mutex
		subs := make(map[string]func() error) // channel -> unsubscribe

		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		subscribe := func(channel string) error {
			unsub, err := src.Subscribe(wsChannels[channel], func(data []byte) {
				_ = writeJSON(map[string]any{"channel": channel, "data": json.RawMessage(data)})
			})
			if err != nil {
				return err
			}
			subs[channel] = unsub
			return nil
		}

		if err := subscribe("ingested"); err != nil {
			slog.Warn("ws default subscribe", "error", err)
			return
		}

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			if _, ok := wsChannels[m.Channel]; !ok {
				_ = writeJSON(map[string]string{"error": "unknown channel: " + m.Channel})
				continue
			}

			switch m.Action {
			case "subscribe":
				if _, exists := subs[m.Channel]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "channel": m.Channel})
					continue
				}
				if err := subscribe(m.Channel); err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				_ = writeJSON(map[string]string{"status": "subscribed", "channel": m.Channel})

			case "unsubscribe":
				if unsub, exists := subs[m.Channel]; exists {
					_ = unsub()
					delete(subs, m.Channel)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "channel": m.Channel})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + m.Channel})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		close(done)
		for _, unsub := range subs {
			_ = unsub()
		}
		slog.Info("ws client disconnected", "remote", remoteAddr)
	}
}
