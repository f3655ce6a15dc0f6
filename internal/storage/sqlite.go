package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "practicebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- users / links ----

const userCols = `id, handle, solved_easy, solved_medium, solved_hard, score, streak, daily_solved, yesterday_solved, weekly_solved, last_week_solved, last_updated`

func (s *sqliteStore) Users(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userCols+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *sqliteStore) User(ctx context.Context, id int64) (User, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userCols+` FROM users WHERE id=?`, id)
	if err != nil {
		return User{}, false, err
	}
	defer rows.Close()
	users, err := scanUsers(rows)
	if err != nil {
		return User{}, false, err
	}
	if len(users) == 0 {
		return User{}, false, nil
	}
	return users[0], true, nil
}

func (s *sqliteStore) SaveUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(`+userCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   handle=excluded.handle,
		   solved_easy=excluded.solved_easy,
		   solved_medium=excluded.solved_medium,
		   solved_hard=excluded.solved_hard,
		   score=excluded.score,
		   streak=excluded.streak,
		   daily_solved=excluded.daily_solved,
		   yesterday_solved=excluded.yesterday_solved,
		   weekly_solved=excluded.weekly_solved,
		   last_week_solved=excluded.last_week_solved,
		   last_updated=excluded.last_updated`,
		u.ID, u.Handle, u.SolvedEasy, u.SolvedMedium, u.SolvedHard,
		u.Score, u.Streak, u.DailySolved, u.YesterdaySolved, u.WeeklySolved,
		u.LastWeekSolved, fmtTime(u.LastUpdated),
	)
	return err
}

func (s *sqliteStore) DeleteUser(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM display_info WHERE user_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) Links(ctx context.Context, userID int64) ([]DisplayInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, server_id, nickname, rank_daily, rank_weekly
		 FROM display_info WHERE user_id=? ORDER BY server_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DisplayInfo
	for rows.Next() {
		var d DisplayInfo
		if err := rows.Scan(&d.UserID, &d.ServerID, &d.Nickname, &d.RankDaily, &d.RankWeekly); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Link(ctx context.Context, userID, serverID int64, nickname string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO display_info(user_id, server_id, nickname) VALUES(?,?,?)
		 ON CONFLICT(user_id, server_id) DO UPDATE SET nickname=excluded.nickname`,
		userID, serverID, nickname)
	return err
}

func (s *sqliteStore) Unlink(ctx context.Context, userID, serverID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM display_info WHERE user_id=? AND server_id=?`, userID, serverID)
	return err
}

func (s *sqliteStore) ServerMembers(ctx context.Context, serverID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM display_info WHERE server_id=? ORDER BY user_id`, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ---- servers / channels ----

func (s *sqliteStore) Servers(ctx context.Context) ([]Server, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, last_updated FROM servers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Server
	for rows.Next() {
		var sv Server
		var ts string
		if err := rows.Scan(&sv.ID, &ts); err != nil {
			return nil, err
		}
		sv.LastUpdated = parseTime(ts)
		out = append(out, sv)
	}
	return out, rows.Err()
}

func (s *sqliteStore) EnsureServer(ctx context.Context, id int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO servers(id, last_updated) VALUES(?,?)`, id, fmtTime(now))
	return err
}

func (s *sqliteStore) TouchServer(ctx context.Context, id int64, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE servers SET last_updated=? WHERE id=?`, fmtTime(now), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("server %d not found", id)
	}
	return nil
}

func (s *sqliteStore) DeleteServer(ctx context.Context, id int64) error {
	if id == GlobalLeaderboardID {
		return errors.New("refusing to delete the global leaderboard server")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM display_info WHERE server_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE server_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM servers WHERE id=?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) Channels(ctx context.Context, serverID int64, purpose string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id FROM channels WHERE server_id=? AND purpose=? ORDER BY channel_id`,
		serverID, purpose)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AddChannel(ctx context.Context, serverID, channelID int64, purpose string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO channels(server_id, channel_id, purpose) VALUES(?,?,?)`,
		serverID, channelID, purpose)
	return err
}

// ---- rankings ----

func (s *sqliteStore) TopByScope(ctx context.Context, serverID int64, scope Scope, limit int) ([]User, error) {
	col, err := scopeColumn(scope)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+prefixCols("u", userCols)+`
		 FROM users u JOIN display_info d ON d.user_id = u.id
		 WHERE d.server_id=? AND u.`+col+` > 0
		 ORDER BY u.`+col+` DESC, u.id ASC
		 LIMIT ?`, serverID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *sqliteStore) SetRank(ctx context.Context, userID, serverID int64, scope Scope, rank int) error {
	col := "rank_daily"
	if scope == ScopeWeekly {
		col = "rank_weekly"
	} else if scope != ScopeDaily {
		return fmt.Errorf("unknown scope %q", scope)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE display_info SET `+col+`=? WHERE user_id=? AND server_id=?`,
		rank, userID, serverID)
	return err
}

func scopeColumn(scope Scope) (string, error) {
	// Rankings run over the most recently completed window, not the live
	// counters; the stats refresh rotates live counters into these columns
	// on the matching reset boundary.
	switch scope {
	case ScopeDaily:
		return "yesterday_solved", nil
	case ScopeWeekly:
		return "last_week_solved", nil
	default:
		return "", fmt.Errorf("unknown scope %q", scope)
	}
}

// ---- analytics ----

func (s *sqliteStore) Analytics(ctx context.Context) (Analytics, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO analytics(id, command_count) VALUES(1, 0)`); err != nil {
		return Analytics{}, err
	}
	var a Analytics
	if err := s.db.QueryRowContext(ctx,
		`SELECT command_count FROM analytics WHERE id=1`).Scan(&a.CommandCountToday); err != nil {
		return Analytics{}, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM analytics_users ORDER BY user_id`)
	if err != nil {
		return Analytics{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return Analytics{}, err
		}
		a.DistinctUsersToday = append(a.DistinctUsersToday, id)
	}
	return a, rows.Err()
}

func (s *sqliteStore) MarkCommandUse(ctx context.Context, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO analytics(id, command_count) VALUES(1, 1)
		 ON CONFLICT(id) DO UPDATE SET command_count = command_count + 1`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO analytics_users(user_id) VALUES(?)`, userID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) SaveAnalyticsRollup(ctx context.Context, snap AnalyticsSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO analytics_history(day, distinct_users, command_count) VALUES(?,?,?)
		 ON CONFLICT(day) DO UPDATE SET
		   distinct_users=excluded.distinct_users,
		   command_count=excluded.command_count`,
		snap.Day, snap.DistinctUsers, snap.CommandCount); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE analytics SET command_count=0 WHERE id=1`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM analytics_users`); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) AnalyticsHistory(ctx context.Context) ([]AnalyticsSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT day, distinct_users, command_count FROM analytics_history ORDER BY day`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnalyticsSnapshot
	for rows.Next() {
		var snap AnalyticsSnapshot
		if err := rows.Scan(&snap.Day, &snap.DistinctUsers, &snap.CommandCount); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// ---- boundary watermarks ----

func (s *sqliteStore) BoundaryMark(ctx context.Context, kind string) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT mark FROM boundary_marks WHERE kind=?`, kind).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return parseTime(raw), true, nil
}

func (s *sqliteStore) PutBoundaryMark(ctx context.Context, kind string, mark time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO boundary_marks(kind, mark) VALUES(?,?)
		 ON CONFLICT(kind) DO UPDATE SET mark=excluded.mark`,
		kind, fmtTime(mark))
	return err
}

// ---- helpers ----

func scanUsers(rows *sql.Rows) ([]User, error) {
	var out []User
	for rows.Next() {
		var u User
		var ts string
		if err := rows.Scan(&u.ID, &u.Handle, &u.SolvedEasy, &u.SolvedMedium, &u.SolvedHard,
			&u.Score, &u.Streak, &u.DailySolved, &u.YesterdaySolved, &u.WeeklySolved,
			&u.LastWeekSolved, &ts); err != nil {
			return nil, err
		}
		u.LastUpdated = parseTime(ts)
		out = append(out, u)
	}
	return out, rows.Err()
}

func prefixCols(prefix, cols string) string {
	parts := strings.Split(cols, ", ")
	for i, p := range parts {
		parts[i] = prefix + "." + p
	}
	return strings.Join(parts, ", ")
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
