package services

import (
	"bytes"
	"context"
	"encoding/json"

	"jeoparty/models"
	"jeoparty/pkg/errors"
)

// Message is the frame exchanged over a game socket.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventPayload holds every field an inbound event may carry.
type EventPayload struct {
	UserID        *string         `json:"user_id"`
	QuestionID    string          `json:"question_id"`
	PowerID       *string         `json:"power_id"`
	Value         int             `json:"value"`
	Amount        json.RawMessage `json:"amount"`
	ActivePlayers json.RawMessage `json:"active_players"`
	Timestamp     float64         `json:"timestamp"`
	TimeSent      float64         `json:"time_sent"`
	TimeReceived  float64         `json:"time_received"`
	Answer        string          `json:"answer"`
	Info          json.RawMessage `json:"info"`
}

func (p *EventPayload) user() (string, error) {
	if p.UserID == nil || *p.UserID == "" {
		return "", errors.New(errors.ErrCodeValidation, "user_id is required")
	}
	return *p.UserID, nil
}

func (p *EventPayload) power() (models.PowerUpKind, error) {
	if p.PowerID == nil {
		return "", errors.New(errors.ErrCodeValidation, "power_id is required")
	}
	return models.PowerUpKind(*p.PowerID), nil
}

// amount returns the wager as text. Clients send it either as a number or as
// the raw contents of an input field.
func (p *EventPayload) amount() string {
	raw := bytes.TrimSpace(p.Amount)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// unwrapJSON accepts an embedded object either directly or as a JSON string.
func unwrapJSON(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return json.RawMessage(s)
		}
	}
	return raw
}

func (p *EventPayload) activePlayers() (map[string]bool, error) {
	raw := unwrapJSON(p.ActivePlayers)
	active := make(map[string]bool)
	if len(raw) == 0 {
		return active, nil
	}
	if err := json.Unmarshal(raw, &active); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid active_players")
	}
	return active, nil
}

// HandleMessage routes one inbound frame from socket sid to its handler.
func (c *Coordinator) HandleMessage(ctx context.Context, sid string, msg Message) error {
	var p EventPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return errors.Wrap(err, errors.ErrCodeValidation, "invalid payload for "+msg.Type)
		}
	}

	switch msg.Type {
	case "presenter_join":
		userID, err := p.user()
		if err != nil {
			return err
		}
		return c.PresenterJoin(ctx, sid, userID)
	case "mark_question_active":
		return c.MarkQuestionActive(ctx, sid, p.QuestionID)
	case "enable_buzz":
		active, err := p.activePlayers()
		if err != nil {
			return err
		}
		return c.EnableBuzz(ctx, sid, active)
	case "disable_buzz":
		return c.DisableBuzz(ctx, sid)
	case "enable_powerup":
		kind, err := p.power()
		if err != nil {
			return err
		}
		return c.EnablePowerUp(ctx, sid, p.UserID, kind)
	case "disable_powerup":
		var kind *models.PowerUpKind
		if p.PowerID != nil {
			k := models.PowerUpKind(*p.PowerID)
			kind = &k
		}
		return c.DisablePowerUp(ctx, sid, p.UserID, kind)
	case "correct_answer", "wrong_answer", "undo_answer", "rewind_used", "first_turn", "edit_contestant_info",
		"finale_answer_correct", "finale_answer_wrong":
		userID, err := p.user()
		if err != nil {
			return err
		}
		return c.handleScoring(ctx, sid, msg.Type, userID, &p)
	case "enable_finale_wager":
		return c.EnableFinaleWager(ctx, sid)
	case "enable_finale_answer":
		return c.EnableFinaleAnswer(ctx, sid)
	}

	userID, err := p.user()
	if err != nil {
		return err
	}
	switch msg.Type {
	case "contestant_join":
		return c.ContestantJoin(ctx, sid, userID)
	case "buzzer_pressed":
		return c.BuzzerPressed(ctx, sid, userID)
	case "use_power_up":
		kind, err := p.power()
		if err != nil {
			return err
		}
		return c.UsePowerUp(ctx, sid, userID, kind)
	case "ping_request":
		return c.PingRequest(ctx, sid, userID, p.Timestamp)
	case "calculate_ping":
		return c.CalculatePing(ctx, sid, userID, p.TimeSent, p.TimeReceived)
	case "make_daily_wager":
		return c.MakeDailyWager(ctx, sid, userID, p.amount())
	case "make_finale_wager":
		return c.MakeFinaleWager(ctx, sid, userID, p.amount())
	case "give_finale_answer":
		return c.GiveFinaleAnswer(ctx, sid, userID, p.Answer)
	}
	return errors.New(errors.ErrCodeValidation, "unknown event "+msg.Type)
}

func (c *Coordinator) handleScoring(ctx context.Context, sid, event, userID string, p *EventPayload) error {
	switch event {
	case "correct_answer":
		return c.CorrectAnswer(ctx, sid, userID, p.Value)
	case "wrong_answer":
		return c.WrongAnswer(ctx, sid, userID, p.Value)
	case "undo_answer":
		return c.UndoAnswer(ctx, sid, userID, p.Value)
	case "rewind_used":
		return c.RewindUsed(ctx, sid, userID, p.Value)
	case "first_turn":
		return c.FirstTurn(ctx, sid, userID)
	case "edit_contestant_info":
		return c.EditContestantInfo(ctx, sid, userID, unwrapJSON(p.Info))
	}

	amount, ok := parseWager(p.amount())
	if !ok {
		return errors.New(errors.ErrCodeValidation, "invalid amount")
	}
	if event == "finale_answer_correct" {
		return c.FinaleAnswerCorrect(ctx, sid, userID, amount)
	}
	return c.FinaleAnswerWrong(ctx, sid, userID, amount)
}
