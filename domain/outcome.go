package domain

import (
	"context"
	"time"
)

// Score is the final score of one match, keyed by court side.
type Score struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// MatchOutcome is emitted once per finished online or tournament match.
// TournamentId and MatchId are empty for matchmaking games.
type MatchOutcome struct {
	RoomId         string    `json:"roomId"`
	Mode           string    `json:"mode"`
	WinnerId       string    `json:"winnerId"`
	LoserId        string    `json:"loserId"`
	WinnerUsername string    `json:"winnerUsername"`
	LoserUsername  string    `json:"loserUsername"`
	FinalScore     Score     `json:"finalScore"`
	Forfeit        bool      `json:"forfeit"`
	TournamentId   string    `json:"tournamentId,omitempty"`
	MatchId        string    `json:"matchId,omitempty"`
	FinishedAt     time.Time `json:"finishedAt"`
}

// TournamentOutcome is emitted once when a tournament's final match finishes.
type TournamentOutcome struct {
	TournamentId     string         `json:"tournamentId"`
	Size             int            `json:"size"`
	ChampionId       string         `json:"championId"`
	ChampionUsername string         `json:"championUsername"`
	Participants     []string       `json:"participants"`
	EliminatedIn     map[string]int `json:"eliminatedIn"`
	FinishedAt       time.Time      `json:"finishedAt"`
}

// OutcomeSink receives finished-match events for an external stats service.
type OutcomeSink interface {
	RecordMatch(ctx context.Context, outcome MatchOutcome) error
	RecordTournament(ctx context.Context, outcome TournamentOutcome) error
}
