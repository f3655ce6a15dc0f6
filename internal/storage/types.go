package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// GlobalLeaderboardID is the reserved identity of the sentinel server that
// aggregates users across every community. It is seeded by migration and is
// never deleted.
const GlobalLeaderboardID int64 = 0

// Channel purposes.
const (
	PurposeDailyQuestion = "daily_question"
	PurposeLeaderboard   = "leaderboard"
)

// Scope selects which rolling window a ranking query runs over.
type Scope string

const (
	ScopeDaily  Scope = "daily"
	ScopeWeekly Scope = "weekly"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// User is one tracked practice-platform account.
//
// DailySolved/WeeklySolved count the live window; the stats refresh rotates
// them into YesterdaySolved/LastWeekSolved on the matching reset boundary.
// Ranking queries and winner announcements read the completed-window columns.
type User struct {
	ID              int64
	Handle          string
	SolvedEasy      int
	SolvedMedium    int
	SolvedHard      int
	Score           int
	Streak          int
	DailySolved     int // solved since the last daily reset
	YesterdaySolved int
	WeeklySolved    int // solved since the last weekly reset
	LastWeekSolved  int
	LastUpdated     time.Time
}

// DisplayInfo is a user's per-server link entry.
type DisplayInfo struct {
	UserID     int64
	ServerID   int64
	Nickname   string
	RankDaily  int
	RankWeekly int
}

// Server is one community the bot serves.
type Server struct {
	ID          int64
	LastUpdated time.Time
}

// Analytics is the singleton record of today's global usage.
type Analytics struct {
	CommandCountToday  int
	DistinctUsersToday []int64
}

// AnalyticsSnapshot is one appended history entry.
type AnalyticsSnapshot struct {
	Day           string // YYYY-MM-DD, UTC
	DistinctUsers int
	CommandCount  int
}

// Store is the persistence API used by the maintenance engine and the
// command layer. Every method is an independent read-modify-persist; there
// is no cross-entity transaction surface.
type Store interface {
	// Users / links.
	Users(ctx context.Context) ([]User, error)
	User(ctx context.Context, id int64) (User, bool, error)
	SaveUser(ctx context.Context, u User) error
	DeleteUser(ctx context.Context, id int64) error
	Links(ctx context.Context, userID int64) ([]DisplayInfo, error)
	Link(ctx context.Context, userID, serverID int64, nickname string) error
	// Unlink removes the display_info row, detaching the user from the
	// server and the server from the user in one mutation.
	Unlink(ctx context.Context, userID, serverID int64) error
	ServerMembers(ctx context.Context, serverID int64) ([]int64, error)

	// Servers / channels.
	Servers(ctx context.Context) ([]Server, error)
	EnsureServer(ctx context.Context, id int64, now time.Time) error
	TouchServer(ctx context.Context, id int64, now time.Time) error
	DeleteServer(ctx context.Context, id int64) error
	Channels(ctx context.Context, serverID int64, purpose string) ([]int64, error)
	AddChannel(ctx context.Context, serverID, channelID int64, purpose string) error

	// Rankings.
	TopByScope(ctx context.Context, serverID int64, scope Scope, limit int) ([]User, error)
	SetRank(ctx context.Context, userID, serverID int64, scope Scope, rank int) error

	// Analytics. Analytics lazily creates the singleton row;
	// SaveAnalyticsRollup appends one history entry and resets today's
	// counters in a single transaction.
	Analytics(ctx context.Context) (Analytics, error)
	MarkCommandUse(ctx context.Context, userID int64) error
	SaveAnalyticsRollup(ctx context.Context, snap AnalyticsSnapshot) error
	AnalyticsHistory(ctx context.Context) ([]AnalyticsSnapshot, error)

	// Boundary watermarks (once-per-boundary guard).
	BoundaryMark(ctx context.Context, kind string) (mark time.Time, ok bool, err error)
	PutBoundaryMark(ctx context.Context, kind string, mark time.Time) error

	Close() error
}
