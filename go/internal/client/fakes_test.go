package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/mcdev12/bingo/go/internal/apperr"
	"github.com/mcdev12/bingo/go/internal/bingo"
	"github.com/mcdev12/bingo/go/internal/events"
	"github.com/mcdev12/bingo/go/internal/models"
)

type fakeTransport struct {
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error

	mu      sync.Mutex
	written []events.Message
	onWrite func(t *fakeTransport, msg events.Message)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (t *fakeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case f := <-t.in:
		return f, nil
	case <-t.closed:
		return nil, t.closeErr
	}
}

func (t *fakeTransport) Write(ctx context.Context, frame []byte) error {
	select {
	case <-t.closed:
		return errors.New("write on closed transport")
	default:
	}
	msg, err := events.Decode(frame)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.written = append(t.written, msg)
	hook := t.onWrite
	t.mu.Unlock()
	if hook != nil {
		hook(t, msg)
	}
	return nil
}

func (t *fakeTransport) Close(code websocket.StatusCode, reason string) error {
	t.closeWith(&CloseError{Code: code, Reason: reason})
	return nil
}

// serverClose simulates the server ending the socket with code
func (t *fakeTransport) serverClose(code websocket.StatusCode) {
	t.closeWith(&CloseError{Code: code})
}

func (t *fakeTransport) closeWith(err error) {
	t.closeOnce.Do(func() {
		t.closeErr = err
		close(t.closed)
	})
}

func (t *fakeTransport) push(msg events.Message) {
	raw, _ := json.Marshal(msg)
	t.in <- raw
}

func (t *fakeTransport) Written() []events.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]events.Message(nil), t.written...)
}

type fakeDialer struct {
	mu         sync.Mutex
	failures   int
	failAll    bool
	dials      int
	transports []*fakeTransport
	onWrite    func(t *fakeTransport, msg events.Message)
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failAll || d.failures > 0 {
		if d.failures > 0 {
			d.failures--
		}
		return nil, errors.New("connection refused")
	}
	t := newFakeTransport()
	t.onWrite = d.onWrite
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

// fakeServer answers requests the way the gateway would for one player
type fakeServer struct {
	mu       sync.Mutex
	gameID   uuid.UUID
	playerID uuid.UUID
	marks    []int
	card     bingo.Card
	drawn    []int
	received []events.Message
	reject   map[int]apperr.Kind
}

func newFakeServer() *fakeServer {
	return &fakeServer{gameID: uuid.New(), playerID: uuid.New(), reject: map[int]apperr.Kind{}}
}

func (s *fakeServer) handle(t *fakeTransport, msg events.Message) {
	s.mu.Lock()
	s.received = append(s.received, msg)

	var data any
	var err error
	switch msg.Type {
	case events.EventTypeMarkNumber, events.EventTypeUnmarkNumber:
		req, _ := events.DecodeData[events.MarkNumberRequest](msg)
		if kind, ok := s.reject[req.Number]; ok {
			err = apperr.New(kind, string(msg.Type), "rejected")
			break
		}
		if msg.Type == events.EventTypeMarkNumber {
			s.marks = append(s.marks, req.Number)
		} else {
			kept := s.marks[:0]
			for _, m := range s.marks {
				if m != req.Number {
					kept = append(kept, m)
				}
			}
			s.marks = kept
		}
		data = events.MarkNumberResponse{Success: true}
	case events.EventTypeSyncState:
		data = events.SyncStateResponse{
			Game: &models.Game{
				ID:           s.gameID,
				Status:       models.GameStatusActive,
				DrawnNumbers: append([]int(nil), s.drawn...),
			},
			Player: &models.Player{
				ID:            s.playerID,
				GameID:        s.gameID,
				Card:          s.card,
				MarkedNumbers: append([]int(nil), s.marks...),
			},
		}
	case events.EventTypeValidateBingo:
		req, _ := events.DecodeData[events.ValidateBingoRequest](msg)
		claimed := bingo.NewMarkSet(append(append([]int(nil), req.MarkedNumbers...), s.marks...))
		res := bingo.CheckClaim(s.card, claimed, s.drawn)
		data = events.ValidateBingoResponse{Valid: res.Won, Lines: res.Lines}
	default:
		err = apperr.New(apperr.KindInvalidArgument, "dispatch", "unknown")
	}
	s.mu.Unlock()

	ack, _ := events.NewAck(msg.ID, data, err)
	t.push(ack)
}

// markRequests lists the numbers of mark/unmark requests in arrival order
func (s *fakeServer) markRequests() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, m := range s.received {
		if m.Type == events.EventTypeMarkNumber || m.Type == events.EventTypeUnmarkNumber {
			req, _ := events.DecodeData[events.MarkNumberRequest](m)
			out = append(out, req.Number)
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
