package game

import (
	"fmt"
	"math/bits"
	"sync"
	"time"
)

type MatchStatus string

const (
	MatchScheduled  MatchStatus = "scheduled"
	MatchInProgress MatchStatus = "in_progress"
	MatchFinished   MatchStatus = "finished"
)

type TournamentState string

const (
	TournamentWaiting  TournamentState = "waiting"
	TournamentStarted  TournamentState = "started"
	TournamentFinished TournamentState = "finished"
)

// Match is one pairing of the bracket. An empty player Id means the slot waits on a
// previous round.
type Match struct {
	Id       string
	Player1  PlayerRef
	Player2  PlayerRef
	Status   MatchStatus
	WinnerId string
	RoomId   string
	Walkover bool
}

func (m *Match) ready() bool {
	return m.Status == MatchScheduled && m.Player1.Id != "" && m.Player2.Id != ""
}

func (m *Match) has(userId string) bool {
	return m.Player1.Id == userId || m.Player2.Id == userId
}

func (m *Match) player(userId string) PlayerRef {
	if m.Player2.Id == userId {
		return m.Player2
	}
	return m.Player1
}

type Round struct {
	Matches []*Match
}

type Bracket struct {
	Rounds   []*Round
	WinnerId string
}

// Tournament is owned by the Coordinator. Every field below locker is guarded by it.
type Tournament struct {
	Id      string
	Size    int
	Players []PlayerRef

	locker     sync.Mutex
	bracket    Bracket
	state      TournamentState
	withdrawn  map[string]bool
	present    map[string]bool
	createdAt  time.Time
	finishedAt time.Time
}

func ValidTournamentSize(size int) bool {
	return size == 4 || size == 8
}

// RoundName labels a round counted from the final backwards.
func RoundName(index, total int) string {
	switch total - index {
	case 1:
		return "final"
	case 2:
		return "semi"
	case 3:
		return "quarter"
	}
	return fmt.Sprintf("round %d", index+1)
}

// newTournament seeds round 0 in arrival order, pairing consecutive players.
func newTournament(id string, players []PlayerRef, idgen UniqueIdGenerator, now time.Time) (*Tournament, error) {
	size := len(players)
	if !ValidTournamentSize(size) {
		return nil, ErrInvalidTournamentSize
	}

	t := &Tournament{
		Id:        id,
		Size:      size,
		Players:   players,
		state:     TournamentWaiting,
		withdrawn: map[string]bool{},
		present:   map[string]bool{},
		createdAt: now,
	}
	for _, p := range players {
		t.present[p.Id] = true
	}

	total := bits.TrailingZeros(uint(size))
	for r := 0; r < total; r++ {
		round := &Round{}
		for i := 0; i < size>>(r+1); i++ {
			match := &Match{Id: idgen.Generate(), Status: MatchScheduled}
			if r == 0 {
				match.Player1 = players[2*i]
				match.Player2 = players[2*i+1]
			}
			round.Matches = append(round.Matches, match)
		}
		t.bracket.Rounds = append(t.bracket.Rounds, round)
	}
	t.state = TournamentStarted
	return t, nil
}

func (t *Tournament) locateLocked(matchId string) (round, index int, ok bool) {
	for r, rnd := range t.bracket.Rounds {
		for i, m := range rnd.Matches {
			if m.Id == matchId {
				return r, i, true
			}
		}
	}
	return 0, 0, false
}

// recordWinnerLocked finishes a match and moves the winner into exactly one slot of
// the next round, or makes them champion after the final.
func (t *Tournament) recordWinnerLocked(round, index int, winnerId string, now time.Time) error {
	m := t.bracket.Rounds[round].Matches[index]
	if m.WinnerId != "" {
		return fmt.Errorf("%w: match %s already won by %s", ErrBracketInvariantBroken, m.Id, m.WinnerId)
	}
	if !m.has(winnerId) || winnerId == "" {
		return fmt.Errorf("%w: %s is not playing match %s", ErrBracketInvariantBroken, winnerId, m.Id)
	}
	winner := m.player(winnerId)
	m.Status = MatchFinished
	m.WinnerId = winnerId
	m.RoomId = ""

	if round == len(t.bracket.Rounds)-1 {
		t.bracket.WinnerId = winnerId
		t.state = TournamentFinished
		t.finishedAt = now
		return nil
	}

	next := t.bracket.Rounds[round+1].Matches[index/2]
	slot := &next.Player1
	if index%2 == 1 {
		slot = &next.Player2
	}
	if slot.Id != "" {
		return fmt.Errorf("%w: slot of match %s already filled", ErrBracketInvariantBroken, next.Id)
	}
	*slot = winner
	return nil
}

// resolveWalkoversLocked settles every ready match that has a withdrawn participant.
// If both withdrew, player1 advances.
func (t *Tournament) resolveWalkoversLocked(now time.Time) error {
	for {
		resolved := false
		for r, rnd := range t.bracket.Rounds {
			for i, m := range rnd.Matches {
				if !m.ready() || !(t.withdrawn[m.Player1.Id] || t.withdrawn[m.Player2.Id]) {
					continue
				}
				winner := m.Player1.Id
				if t.withdrawn[m.Player1.Id] && !t.withdrawn[m.Player2.Id] {
					winner = m.Player2.Id
				}
				m.Walkover = true
				if err := t.recordWinnerLocked(r, i, winner, now); err != nil {
					return err
				}
				resolved = true
			}
		}
		if !resolved {
			return nil
		}
	}
}

// readyMatchesLocked returns the matches that can be played right now.
func (t *Tournament) readyMatchesLocked() []*Match {
	var ready []*Match
	for _, rnd := range t.bracket.Rounds {
		for _, m := range rnd.Matches {
			if m.ready() {
				ready = append(ready, m)
			}
		}
	}
	return ready
}

func (t *Tournament) inProgressMatchOfLocked(userId string) *Match {
	for _, rnd := range t.bracket.Rounds {
		for _, m := range rnd.Matches {
			if m.Status == MatchInProgress && m.has(userId) {
				return m
			}
		}
	}
	return nil
}

// eliminatedInLocked is derived from the bracket: the round of the first finished
// match the user lost.
func (t *Tournament) eliminatedInLocked(userId string) (int, bool) {
	for r, rnd := range t.bracket.Rounds {
		for _, m := range rnd.Matches {
			if m.Status == MatchFinished && m.has(userId) && m.WinnerId != userId {
				return r, true
			}
		}
	}
	return 0, false
}

func (t *Tournament) engagedLocked(userId string) bool {
	if t.state == TournamentFinished || t.withdrawn[userId] {
		return false
	}
	_, eliminated := t.eliminatedInLocked(userId)
	return !eliminated
}

func (t *Tournament) EliminatedIn(userId string) (int, bool) {
	t.locker.Lock()
	defer t.locker.Unlock()
	return t.eliminatedInLocked(userId)
}

func (t *Tournament) State() TournamentState {
	t.locker.Lock()
	defer t.locker.Unlock()
	return t.state
}

func (t *Tournament) View() TournamentView {
	t.locker.Lock()
	defer t.locker.Unlock()
	return t.viewLocked()
}

func (t *Tournament) presentLocked() []string {
	ids := make([]string, 0, len(t.present))
	for _, p := range t.Players {
		if t.present[p.Id] {
			ids = append(ids, p.Id)
		}
	}
	return ids
}

func (t *Tournament) playerLocked(userId string) PlayerRef {
	for _, p := range t.Players {
		if p.Id == userId {
			return p
		}
	}
	return PlayerRef{}
}

// TournamentView is the wire shape of a tournament. Unknown players are null.
type TournamentView struct {
	Id      string          `json:"id"`
	Size    int             `json:"size"`
	State   TournamentState `json:"state"`
	Players []PlayerRef     `json:"players"`
	Bracket BracketView     `json:"bracket"`
}

type BracketView struct {
	Rounds   []RoundView `json:"rounds"`
	WinnerId *string     `json:"winnerId"`
}

type RoundView struct {
	Name    string      `json:"name"`
	Matches []MatchView `json:"matches"`
}

type MatchView struct {
	Id              string      `json:"id"`
	Player1Id       *string     `json:"player1Id"`
	Player2Id       *string     `json:"player2Id"`
	Player1Username *string     `json:"player1Username"`
	Player2Username *string     `json:"player2Username"`
	Status          MatchStatus `json:"status"`
	WinnerId        *string     `json:"winnerId"`
	RoomId          string      `json:"roomId,omitempty"`
	Walkover        bool        `json:"walkover,omitempty"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (t *Tournament) viewLocked() TournamentView {
	view := TournamentView{
		Id:      t.Id,
		Size:    t.Size,
		State:   t.state,
		Players: append([]PlayerRef(nil), t.Players...),
		Bracket: BracketView{WinnerId: nullable(t.bracket.WinnerId)},
	}
	total := len(t.bracket.Rounds)
	for r, rnd := range t.bracket.Rounds {
		rv := RoundView{Name: RoundName(r, total)}
		for _, m := range rnd.Matches {
			rv.Matches = append(rv.Matches, MatchView{
				Id:              m.Id,
				Player1Id:       nullable(m.Player1.Id),
				Player2Id:       nullable(m.Player2.Id),
				Player1Username: nullable(m.Player1.Username),
				Player2Username: nullable(m.Player2.Username),
				Status:          m.Status,
				WinnerId:        nullable(m.WinnerId),
				RoomId:          m.RoomId,
				Walkover:        m.Walkover,
			})
		}
		view.Bracket.Rounds = append(view.Bracket.Rounds, rv)
	}
	return view
}
