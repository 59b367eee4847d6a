package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bingo/go/internal/apperr"
	"github.com/mcdev12/bingo/go/internal/events"
)

// HandleMessage processes one inbound frame and acks the sender. Acks only
// ever go to the requesting connection.
func (s *Service) HandleMessage(ctx context.Context, conn *Connection, frame []byte) {
	start := s.clock.Now()

	msg, err := events.Decode(frame)
	if err != nil {
		s.reply(conn, "", nil, err)
		return
	}

	if !s.limiter.Allow(conn.ID) {
		s.metrics.RateLimited()
		s.reply(conn, msg.ID, nil, apperr.New(apperr.KindRateLimited, string(msg.Type), "too many requests"))
		return
	}

	data, err := s.dispatch(ctx, conn, msg)
	s.reply(conn, msg.ID, data, err)
	s.metrics.RequestHandled(string(msg.Type), err == nil, s.clock.Since(start))

	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", conn.ID).
			Str("type", string(msg.Type)).
			Msg("request rejected")
	}
}

func (s *Service) dispatch(ctx context.Context, conn *Connection, msg events.Message) (any, error) {
	b, ok := s.registry.Lookup(conn.ID)
	if !ok {
		return nil, apperr.New(apperr.KindInvalidState, string(msg.Type), "connection has not joined a game")
	}

	switch msg.Type {
	case events.EventTypeMarkNumber:
		return s.handleMark(ctx, b, msg, true)
	case events.EventTypeUnmarkNumber:
		return s.handleMark(ctx, b, msg, false)
	case events.EventTypeValidateBingo:
		return s.handleValidateBingo(ctx, b, msg)
	case events.EventTypeAdminDrawNumber:
		return s.handleAdminDraw(ctx, b, msg)
	case events.EventTypeSyncState:
		return s.handleSyncState(ctx, b)
	default:
		return nil, apperr.New(apperr.KindInvalidArgument, "dispatch", fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (s *Service) handleMark(ctx context.Context, b Binding, msg events.Message, mark bool) (any, error) {
	if b.IsAdmin {
		return nil, apperr.New(apperr.KindInvalidState, string(msg.Type), "admin connections have no card")
	}
	req, err := events.DecodeData[events.MarkNumberRequest](msg)
	if err != nil {
		return nil, err
	}
	if mark {
		_, err = s.app.MarkNumber(ctx, b.PlayerID, req.Number)
	} else {
		_, err = s.app.UnmarkNumber(ctx, b.PlayerID, req.Number)
	}
	if err != nil {
		return nil, err
	}
	return events.MarkNumberResponse{Success: true}, nil
}

func (s *Service) handleValidateBingo(ctx context.Context, b Binding, msg events.Message) (any, error) {
	if b.IsAdmin {
		return nil, apperr.New(apperr.KindInvalidState, string(msg.Type), "admin connections have no card")
	}
	req, err := events.DecodeData[events.ValidateBingoRequest](msg)
	if err != nil {
		return nil, err
	}
	res, err := s.app.ClaimBingo(ctx, b.PlayerID, req.MarkedNumbers)
	if err != nil {
		return nil, err
	}
	return events.ValidateBingoResponse{Valid: res.Valid, Lines: res.Lines}, nil
}

func (s *Service) handleAdminDraw(ctx context.Context, b Binding, msg events.Message) (any, error) {
	const op = "adminDrawNumber"
	if !b.IsAdmin {
		return nil, apperr.New(apperr.KindUnauthenticated, op, "admin connection required")
	}
	req, err := events.DecodeData[events.AdminDrawRequest](msg)
	if err != nil {
		return nil, err
	}
	if req.GameID != "" {
		id, err := uuid.Parse(req.GameID)
		if err != nil || id != b.GameID {
			return nil, apperr.New(apperr.KindInvalidArgument, op, "gameId does not match the joined game")
		}
	}

	res, err := s.app.DrawNumber(ctx, b.GameID)
	if err != nil {
		s.metrics.DrawRecorded(string(apperr.KindOf(err)))
		return nil, err
	}
	if !res.Committed {
		s.metrics.DrawRecorded("lost_race")
	}
	return events.AdminDrawResponse{Success: true, Number: res.Number}, nil
}

func (s *Service) handleSyncState(ctx context.Context, b Binding) (any, error) {
	g, err := s.app.GetGame(ctx, b.GameID)
	if err != nil {
		return nil, err
	}
	resp := events.SyncStateResponse{Game: g}
	if !b.IsAdmin {
		p, err := s.app.GetPlayer(ctx, b.PlayerID)
		if err != nil {
			return nil, err
		}
		resp.Player = p
	}
	return resp, nil
}

func (s *Service) reply(conn *Connection, id string, data any, err error) {
	msg, encErr := events.NewAck(id, data, err)
	if encErr != nil {
		msg, _ = events.NewAck(id, nil, apperr.Wrap(apperr.KindInternal, "ack", encErr))
	}
	s.sendMessage(conn, msg)
}

func (s *Service) sendMessage(conn *Connection, msg events.Message) {
	frame, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", string(msg.Type)).Msg("failed to encode message")
		return
	}
	if !conn.Enqueue(frame) {
		s.metrics.SendDropped(string(msg.Type))
	}
}
