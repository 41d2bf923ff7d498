package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/minigame-host/errors"
	"github.com/lefinal/minigame-host/games"
	"go.uber.org/zap"
)

// PlayerStats are the accumulated statistics of a player.
type PlayerStats struct {
	// PlayerID identifies the player.
	PlayerID string `json:"player_id"`
	// Wins is the number of won rounds.
	Wins int `json:"wins"`
	// Losses is the number of lost rounds.
	Losses int `json:"losses"`
	// Kills is the number of eliminated opponents.
	Kills int `json:"kills"`
	// GamesPlayed is the number of rounds with a result.
	GamesPlayed int `json:"games_played"`
	// LastPlayed is when the player last finished a round.
	LastPlayed nulls.Time `json:"last_played"`
	// LastWin is when the player last won a round.
	LastWin nulls.Time `json:"last_win"`
}

// incrementStats increments the given columns for the player. If no stats
// exist yet, they are created. The record is used for setting additional
// columns.
func (m *Mall) incrementStats(ctx context.Context, player games.PlayerID, columns []string, set goqu.Record) error {
	insert := goqu.Record{"player_id": string(player)}
	update := goqu.Record{}
	for _, column := range columns {
		insert[column] = 1
		update[column] = goqu.L("? + 1", goqu.T("player_stats").Col(column))
	}
	for column, value := range set {
		insert[column] = value
		update[column] = value
	}
	// Build query.
	q, _, err := m.dialect.Insert("player_stats").
		Rows(insert).
		OnConflict(goqu.DoUpdate("player_id", update)).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, errors.Details{"player_id": player})
	}
	// Exec.
	result, err := m.db.Exec(ctx, q)
	if err != nil {
		return errors.NewExecQueryError(err, "exec query", q)
	}
	if result.RowsAffected() != 1 {
		return errors.NewInternalError("stats not updated", errors.Details{
			"query":         q,
			"rows_affected": result.RowsAffected(),
		})
	}
	return nil
}

// RecordWin counts a won round for the player.
func (m *Mall) RecordWin(ctx context.Context, player games.PlayerID) error {
	now := m.now()
	err := m.incrementStats(ctx, player, []string{"wins", "games_played"}, goqu.Record{
		"last_played": now,
		"last_win":    now,
	})
	if err != nil {
		return errors.Wrap(err, "increment stats", nil)
	}
	return nil
}

// RecordLoss counts a lost round for the player.
func (m *Mall) RecordLoss(ctx context.Context, player games.PlayerID) error {
	err := m.incrementStats(ctx, player, []string{"losses", "games_played"}, goqu.Record{
		"last_played": m.now(),
	})
	if err != nil {
		return errors.Wrap(err, "increment stats", nil)
	}
	return nil
}

// RecordKill counts an eliminated opponent for the player.
func (m *Mall) RecordKill(ctx context.Context, player games.PlayerID) error {
	err := m.incrementStats(ctx, player, []string{"kills"}, nil)
	if err != nil {
		return errors.Wrap(err, "increment stats", nil)
	}
	return nil
}

// selectPlayerStats builds the select for PlayerStats.
func (m *Mall) selectPlayerStats() *goqu.SelectDataset {
	return m.dialect.From("player_stats").
		Select(goqu.C("player_id"),
			goqu.C("wins"),
			goqu.C("losses"),
			goqu.C("kills"),
			goqu.C("games_played"),
			goqu.C("last_played"),
			goqu.C("last_win"))
}

// PlayerStats retrieves the PlayerStats for the player. If none exist,
// zero-stats are returned.
func (m *Mall) PlayerStats(ctx context.Context, player games.PlayerID) (PlayerStats, error) {
	// Build query.
	q, _, err := m.selectPlayerStats().Where(goqu.C("player_id").Eq(string(player))).ToSQL()
	if err != nil {
		return PlayerStats{}, errors.NewQueryToSQLError(err, errors.Details{"player_id": player})
	}
	// Query.
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return PlayerStats{}, errors.NewExecQueryError(err, "query db", q)
	}
	defer rows.Close()
	// Scan.
	if !rows.Next() {
		return PlayerStats{PlayerID: string(player)}, nil
	}
	var stats PlayerStats
	err = rows.Scan(&stats.PlayerID,
		&stats.Wins,
		&stats.Losses,
		&stats.Kills,
		&stats.GamesPlayed,
		&stats.LastPlayed,
		&stats.LastWin)
	if err != nil {
		return PlayerStats{}, errors.NewScanDBRowError(err, "scan row", q)
	}
	return stats, nil
}

// Leaderboard retrieves the PlayerStats with the most wins. Ties are decided by
// kills.
func (m *Mall) Leaderboard(ctx context.Context, limit int) ([]PlayerStats, error) {
	// Build query.
	q, _, err := m.selectPlayerStats().
		Order(goqu.C("wins").Desc(), goqu.C("kills").Desc(), goqu.C("player_id").Asc()).
		Limit(uint(limit)).ToSQL()
	if err != nil {
		return nil, errors.NewQueryToSQLError(err, errors.Details{"limit": limit})
	}
	// Query.
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return nil, errors.NewExecQueryError(err, "query db", q)
	}
	defer rows.Close()
	// Scan.
	leaderboard := make([]PlayerStats, 0, limit)
	for rows.Next() {
		var stats PlayerStats
		err = rows.Scan(&stats.PlayerID,
			&stats.Wins,
			&stats.Losses,
			&stats.Kills,
			&stats.GamesPlayed,
			&stats.LastPlayed,
			&stats.LastWin)
		if err != nil {
			return nil, errors.NewScanDBRowError(err, "scan row", q)
		}
		leaderboard = append(leaderboard, stats)
	}
	if rows.Err() != nil {
		return nil, errors.NewScanDBRowError(rows.Err(), "read rows", q)
	}
	return leaderboard, nil
}

// LogStats implements games.Stats without persistence. It is used when no
// database is configured.
type LogStats struct {
	Logger *zap.Logger
}

func (s LogStats) RecordWin(_ context.Context, player games.PlayerID) error {
	s.Logger.Debug("win", zap.Any("player_id", player))
	return nil
}

func (s LogStats) RecordLoss(_ context.Context, player games.PlayerID) error {
	s.Logger.Debug("loss", zap.Any("player_id", player))
	return nil
}

func (s LogStats) RecordKill(_ context.Context, player games.PlayerID) error {
	s.Logger.Debug("kill", zap.Any("player_id", player))
	return nil
}
