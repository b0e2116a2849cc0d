package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/e-kose/FT-PINPON-sub000/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// "23505" is the PostgreSQL error code for unique_violation
const uniqueViolation = "23505"

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRepo(ctx context.Context, connString string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PostgresRepo{pool: pool}, nil
}

func (pgr *PostgresRepo) Ping(ctx context.Context) error {
	if err := pgr.pool.Ping(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (pgr *PostgresRepo) Close() {
	pgr.pool.Close()
}

func (pgr *PostgresRepo) GetUserById(ctx context.Context, id string) (domain.User, error) {
	user := domain.User{Id: id}

	row := pgr.pool.QueryRow(ctx, "SELECT username FROM users WHERE id = $1", id)

	if err := row.Scan(&user.Username); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, classify(err)
	}

	return user, nil
}

// RecordMatch stores one finished match. Recording the same room twice is a no-op.
func (pgr *PostgresRepo) RecordMatch(ctx context.Context, o domain.MatchOutcome) error {
	_, err := pgr.pool.Exec(ctx, `
		INSERT INTO match_outcomes (
			room_id, mode, winner_id, loser_id, winner_username, loser_username,
			left_score, right_score, forfeit, tournament_id, match_id, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''), $12)
		ON CONFLICT (room_id) DO NOTHING`,
		o.RoomId, o.Mode, o.WinnerId, o.LoserId, o.WinnerUsername, o.LoserUsername,
		o.FinalScore.Left, o.FinalScore.Right, o.Forfeit, o.TournamentId, o.MatchId, o.FinishedAt,
	)
	if err != nil {
		return classify(err)
	}
	return nil
}

// RecordTournament stores the champion and every participant's placement in one
// transaction.
func (pgr *PostgresRepo) RecordTournament(ctx context.Context, o domain.TournamentOutcome) error {
	err := pgx.BeginFunc(ctx, pgr.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO tournament_outcomes (tournament_id, size, champion_id, champion_username, finished_at)
			VALUES ($1, $2, $3, $4, $5)`,
			o.TournamentId, o.Size, o.ChampionId, o.ChampionUsername, o.FinishedAt,
		)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, userId := range o.Participants {
			var eliminatedIn *int
			if round, ok := o.EliminatedIn[userId]; ok {
				eliminatedIn = &round
			}
			batch.Queue(
				"INSERT INTO tournament_placements (tournament_id, user_id, eliminated_in) VALUES ($1, $2, $3)",
				o.TournamentId, userId, eliminatedIn,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrDuplicateOutcome
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
}
