package game

import (
	"encoding/json"
	"fmt"
)

// Inbound message types.
const (
	MsgCreateLocalGame      = "CREATE_LOCAL_GAME"
	MsgJoinMatchmaking      = "JOIN_MATCHMAKING"
	MsgLeaveMatchmaking     = "LEAVE_MATCHMAKING"
	MsgJoinTournamentQueue  = "JOIN_TOURNAMENT_QUEUE"
	MsgLeaveTournamentQueue = "LEAVE_TOURNAMENT_QUEUE"
	MsgLeaveTournament      = "LEAVE_TOURNAMENT"
	MsgPlayerInput          = "PLAYER_INPUT"
	MsgLeaveGame            = "LEAVE_GAME"
	MsgPing                 = "PING"
)

// Outbound message types.
const (
	MsgMatchmakingSearching  = "MATCHMAKING_SEARCHING"
	MsgMatchmakingLeft       = "MATCHMAKING_LEFT"
	MsgTournamentQueueJoined = "TOURNAMENT_QUEUE_JOINED"
	MsgTournamentQueueLeft   = "TOURNAMENT_QUEUE_LEFT"
	MsgTournamentCreated     = "TOURNAMENT_CREATED"
	MsgTournamentState       = "TOURNAMENT_STATE"
	MsgMatchFound            = "MATCH_FOUND"
	MsgRoomCreated           = "ROOM_CREATED"
	MsgGameState             = "GAME_STATE"
	MsgStateUpdate           = "STATE_UPDATE"
	MsgGameOver              = "GAME_OVER"
	MsgPlayerDisconnected    = "PLAYER_DISCONNECTED"
	MsgPlayerReconnected     = "PLAYER_RECONNECTED"
	MsgPong                  = "PONG"
	MsgError                 = "ERROR"
)

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outboundEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

func encode(msgType string, payload any) ([]byte, error) {
	data, err := json.Marshal(outboundEnvelope{Type: msgType, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", msgType, err)
	}
	return data, nil
}

func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		return Envelope{}, ErrMalformedPayload
	}
	return env, nil
}

// decodePayload tolerates an absent payload for messages whose fields are all optional.
func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return ErrMalformedPayload
	}
	return nil
}

// Inbound payloads

type gameRequestPayload struct {
	Config MatchOptions `json:"config"`
}

type joinTournamentPayload struct {
	Size int `json:"size"`
}

type playerInputPayload struct {
	Action         Action   `json:"action"`
	PlayerPosition Position `json:"playerPosition,omitempty"`
}

// Outbound payloads

type ErrorPayload struct {
	Message string `json:"message"`
}

type SearchingPayload struct {
	QueueLength int `json:"queueLength"`
}

type TournamentQueuePayload struct {
	Size    int `json:"size"`
	Waiting int `json:"waiting,omitempty"`
}

type MatchFoundPayload struct {
	RoomId       string    `json:"roomId"`
	Player1      PlayerRef `json:"player1"`
	Player2      PlayerRef `json:"player2"`
	Position     Position  `json:"position"`
	TournamentId string    `json:"tournamentId,omitempty"`
	MatchId      string    `json:"matchId,omitempty"`
}

type RoomCreatedPayload struct {
	RoomId    string                `json:"roomId"`
	Mode      Mode                  `json:"mode"`
	Positions map[Position]string   `json:"positions"`
	Players   map[Position]SeatView `json:"players"`
}

type SeatView struct {
	Id       string `json:"id"`
	Username string `json:"username"`
}

type PaddleView struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type PlayerStateView struct {
	Id       string     `json:"id"`
	Username string     `json:"username"`
	Score    int        `json:"score"`
	Paddle   PaddleView `json:"paddle"`
}

type BallView struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

type PlayersView struct {
	Left  PlayerStateView `json:"left"`
	Right PlayerStateView `json:"right"`
}

// StateUpdatePayload is the per-tick snapshot.
type StateUpdatePayload struct {
	RoomId  string        `json:"roomId"`
	Tick    uint64        `json:"tick"`
	Players PlayersView   `json:"players"`
	Ball    BallView      `json:"ball"`
	Status  SessionStatus `json:"status"`
	Paused  bool          `json:"paused,omitempty"`
}

type CourtView struct {
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	WinScore int     `json:"winScore"`
	TickRate int     `json:"tickRate"`
}

// GameStatePayload is the full state sent when a game starts or a client resyncs.
type GameStatePayload struct {
	StateUpdatePayload
	Mode  Mode      `json:"mode"`
	Court CourtView `json:"court"`
}

type GameOverPayload struct {
	RoomId         string    `json:"roomId"`
	WinnerId       string    `json:"winnerId"`
	LoserId        string    `json:"loserId"`
	WinnerUsername string    `json:"winnerUsername"`
	LoserUsername  string    `json:"loserUsername"`
	FinalScore     ScoreView `json:"finalScore"`
	Forfeit        bool      `json:"forfeit,omitempty"`
}

type ScoreView struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

type PresencePayload struct {
	RoomId   string   `json:"roomId"`
	Position Position `json:"position"`
	UserId   string   `json:"userId"`
}

type TournamentPayload struct {
	Tournament TournamentView `json:"tournament"`
}
