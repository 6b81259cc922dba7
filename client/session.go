package client

import (
	"chat-relay/envelope"
	"chat-relay/event"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message is one inbound frame with its data opened. Error frames keep
// their plaintext data.
type Message struct {
	Event string
	Data  []byte
}

func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}

type Session struct {
	ws    *websocket.Conn
	codec *envelope.Codec
	mu    sync.Mutex
}

// Send seals payload and writes one frame. Safe for concurrent use.
func (s *Session) Send(name event.Name, payload any) error {
	plain, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	sealed, err := s.codec.Encrypt(plain)
	if err != nil {
		return err
	}
	data, err := json.Marshal(sealed)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(event.Frame{Event: name, Data: data})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.WriteMessage(websocket.TextMessage, frame)
}

// SendRaw writes frame untouched.
func (s *Session) SendRaw(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.WriteMessage(websocket.TextMessage, frame)
}

// Receive blocks for the next frame.
func (s *Session) Receive() (Message, error) {
	_, raw, err := s.ws.ReadMessage()
	if err != nil {
		return Message{}, err
	}
	var frame event.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Message{}, fmt.Errorf("frame: %w", err)
	}
	if frame.Event == event.ErrorEvent {
		return Message{Event: string(frame.Event), Data: frame.Data}, nil
	}

	var sealed string
	if err := json.Unmarshal(frame.Data, &sealed); err != nil {
		return Message{}, fmt.Errorf("frame %s data: %w", frame.Event, err)
	}
	plain, err := s.codec.Decrypt(sealed)
	if err != nil {
		return Message{}, err
	}
	return Message{Event: string(frame.Event), Data: plain}, nil
}

// Expect skips frames until one named name arrives or timeout elapses.
func (s *Session) Expect(name string, timeout time.Duration) (Message, error) {
	if err := s.ws.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Message{}, err
	}
	defer func() { _ = s.ws.SetReadDeadline(time.Time{}) }()
	for {
		msg, err := s.Receive()
		if err != nil {
			return Message{}, fmt.Errorf("waiting for %s: %w", name, err)
		}
		if msg.Event == name {
			return msg, nil
		}
	}
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.ws.Close()
}
