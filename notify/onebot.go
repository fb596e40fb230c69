// Package notify delivers notifications to chat groups over a OneBot-style
// websocket gateway. Delivery is best-effort: failures are returned to the
// caller for logging and never retried beyond one reconnect.
package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// segment is one OneBot message segment (text, image, ...).
type segment struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

// frame is the action envelope written to the gateway.
type frame struct {
	Action string `json:"action"`
	Params struct {
		GroupID int64     `json:"group_id"`
		Message []segment `json:"message"`
	} `json:"params"`
	Echo string `json:"echo"`
}

// OneBotSender maintains a persistent websocket connection to the gateway
// and implements the watch engine's Sender contract.
type OneBotSender struct {
	URL         string
	AccessToken string
	SendTimeout time.Duration
	Dialer      *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewOneBotSender builds a sender for the given ws:// endpoint. The
// connection is dialed lazily on first send and redialed after failures.
func NewOneBotSender(wsURL, accessToken string, sendTimeout time.Duration) *OneBotSender {
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &OneBotSender{URL: wsURL, AccessToken: accessToken, SendTimeout: sendTimeout}
}

func (s *OneBotSender) dialer() *websocket.Dialer {
	if s.Dialer != nil {
		return s.Dialer
	}
	return websocket.DefaultDialer
}

// ensureConn returns the live connection, dialing if needed. Caller holds mu.
func (s *OneBotSender) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	header := http.Header{}
	if s.AccessToken != "" {
		header.Set("Authorization", "Bearer "+s.AccessToken)
	}
	conn, _, err := s.dialer().DialContext(ctx, s.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial onebot gateway: %w", err)
	}
	s.conn = conn
	// Drain gateway responses so the socket buffer never fills; the send
	// path doesn't wait on acks.
	go s.readLoop(conn)
	slog.Info("connected to onebot gateway", slog.String("url", s.URL), slog.String("component", "notify"))
	return conn, nil
}

// readLoop discards inbound frames until the connection errors, then drops
// the cached connection so the next send redials.
func (s *OneBotSender) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
			}
			s.mu.Unlock()
			slog.Debug("onebot gateway connection closed", slog.Any("err", err), slog.String("component", "notify"))
			return
		}
	}
}

// Send delivers the text lines (one message, newline joined) and the optional
// rendered artifact to a group. One redial is attempted on a stale socket.
func (s *OneBotSender) Send(ctx context.Context, chatID int64, lines []string, artifact []byte) error {
	msg := make([]segment, 0, 2)
	msg = append(msg, segment{Type: "text", Data: map[string]string{"text": strings.Join(lines, "\n")}})
	if len(artifact) > 0 {
		msg = append(msg, segment{
			Type: "image",
			Data: map[string]string{"file": "base64://" + base64.StdEncoding.EncodeToString(artifact)},
		})
	}
	var f frame
	f.Action = "send_group_msg"
	f.Params.GroupID = chatID
	f.Params.Message = msg
	f.Echo = uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.write(ctx, f)
	if err == nil {
		return nil
	}
	// stale connection: drop it and retry once on a fresh dial
	s.closeLocked()
	if retryErr := s.write(ctx, f); retryErr != nil {
		return fmt.Errorf("send to group %d: %w", chatID, retryErr)
	}
	return nil
}

// write marshals one frame onto the connection with the send deadline set.
// Caller holds mu.
func (s *OneBotSender) write(ctx context.Context, f frame) error {
	conn, err := s.ensureConn(ctx)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(s.SendTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteJSON(f)
}

// Close shuts the gateway connection down politely.
func (s *OneBotSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *OneBotSender) closeLocked() error {
	if s.conn == nil {
		return nil
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
		time.Now().Add(500*time.Millisecond))
	err := s.conn.Close()
	s.conn = nil
	return err
}
