package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "practicebot/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("driver %q: store=%v err=%v, want nil/nil", driver, st, err)
		}
	}
}

func TestGlobalServerSeeded(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	servers, err := st.Servers(ctx)
	if err != nil {
		t.Fatalf("Servers: %v", err)
	}
	if len(servers) != 1 || servers[0].ID != GlobalLeaderboardID {
		t.Fatalf("fresh database should hold only the seeded sentinel, got %+v", servers)
	}
}

func TestUserRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	u := User{
		ID: 7, Handle: "alice",
		SolvedEasy: 10, SolvedMedium: 5, SolvedHard: 2,
		Score: 39, Streak: 3,
		DailySolved: 1, YesterdaySolved: 4,
		WeeklySolved: 6, LastWeekSolved: 11,
		LastUpdated: now,
	}
	if err := st.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	got, ok, err := st.User(ctx, 7)
	if err != nil || !ok {
		t.Fatalf("User: ok=%v err=%v", ok, err)
	}
	if !got.LastUpdated.Equal(u.LastUpdated) {
		t.Fatalf("last updated = %v, want %v", got.LastUpdated, u.LastUpdated)
	}
	got.LastUpdated = u.LastUpdated
	if got != u {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, u)
	}

	// Upsert overwrites in place.
	u.Streak = 4
	u.DailySolved = 2
	if err := st.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser update: %v", err)
	}
	got, _, _ = st.User(ctx, 7)
	if got.Streak != 4 || got.DailySolved != 2 {
		t.Fatalf("update not applied: %+v", got)
	}

	_, ok, err = st.User(ctx, 999)
	if err != nil || ok {
		t.Fatalf("missing user: ok=%v err=%v", ok, err)
	}
}

func TestLinkUnlinkSymmetry(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := st.SaveUser(ctx, User{ID: 1, Handle: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := st.EnsureServer(ctx, 10, now); err != nil {
		t.Fatal(err)
	}
	if err := st.Link(ctx, 1, 10, "Alice"); err != nil {
		t.Fatal(err)
	}
	if err := st.Link(ctx, 1, GlobalLeaderboardID, "Alice"); err != nil {
		t.Fatal(err)
	}

	links, err := st.Links(ctx, 1)
	if err != nil || len(links) != 2 {
		t.Fatalf("Links = %v, %v; want 2 links", links, err)
	}
	members, err := st.ServerMembers(ctx, 10)
	if err != nil || len(members) != 1 || members[0] != 1 {
		t.Fatalf("ServerMembers = %v, %v", members, err)
	}

	// Unlink detaches both directions at once.
	if err := st.Unlink(ctx, 1, 10); err != nil {
		t.Fatal(err)
	}
	links, _ = st.Links(ctx, 1)
	if len(links) != 1 || links[0].ServerID != GlobalLeaderboardID {
		t.Fatalf("after unlink: %v", links)
	}
	members, _ = st.ServerMembers(ctx, 10)
	if len(members) != 0 {
		t.Fatalf("after unlink server still lists member: %v", members)
	}
}

func TestDeleteUserRemovesLinks(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.SaveUser(ctx, User{ID: 1, Handle: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := st.Link(ctx, 1, GlobalLeaderboardID, ""); err != nil {
		t.Fatal(err)
	}
	if err := st.DeleteUser(ctx, 1); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, ok, _ := st.User(ctx, 1); ok {
		t.Fatal("user still present after delete")
	}
	if members, _ := st.ServerMembers(ctx, GlobalLeaderboardID); len(members) != 0 {
		t.Fatalf("dangling links after user delete: %v", members)
	}
}

func TestServerLifecycle(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	if err := st.EnsureServer(ctx, 10, now); err != nil {
		t.Fatal(err)
	}
	// Ensure is idempotent and keeps the original timestamp.
	if err := st.EnsureServer(ctx, 10, now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	later := now.Add(30 * time.Minute)
	if err := st.TouchServer(ctx, 10, later); err != nil {
		t.Fatalf("TouchServer: %v", err)
	}
	servers, _ := st.Servers(ctx)
	for _, sv := range servers {
		if sv.ID == 10 && !sv.LastUpdated.Equal(later) {
			t.Fatalf("touch not applied: %+v", sv)
		}
	}

	if err := st.TouchServer(ctx, 404, later); err == nil {
		t.Fatal("touching an unknown server should fail")
	}

	if err := st.AddChannel(ctx, 10, 100, PurposeDailyQuestion); err != nil {
		t.Fatal(err)
	}
	if err := st.DeleteServer(ctx, 10); err != nil {
		t.Fatalf("DeleteServer: %v", err)
	}
	if chans, _ := st.Channels(ctx, 10, PurposeDailyQuestion); len(chans) != 0 {
		t.Fatalf("channels survived server delete: %v", chans)
	}
}

func TestDeleteServerRefusesGlobal(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	if err := st.DeleteServer(context.Background(), GlobalLeaderboardID); err == nil {
		t.Fatal("deleting the global leaderboard server must fail")
	}
}

func TestChannelsByPurpose(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.EnsureServer(ctx, 10, time.Now()); err != nil {
		t.Fatal(err)
	}
	for _, c := range []struct {
		id      int64
		purpose string
	}{
		{100, PurposeDailyQuestion},
		{101, PurposeDailyQuestion},
		{200, PurposeLeaderboard},
	} {
		if err := st.AddChannel(ctx, 10, c.id, c.purpose); err != nil {
			t.Fatal(err)
		}
	}
	// Re-registering the same channel is a no-op.
	if err := st.AddChannel(ctx, 10, 100, PurposeDailyQuestion); err != nil {
		t.Fatal(err)
	}

	daily, err := st.Channels(ctx, 10, PurposeDailyQuestion)
	if err != nil {
		t.Fatal(err)
	}
	if len(daily) != 2 || daily[0] != 100 || daily[1] != 101 {
		t.Fatalf("daily channels = %v", daily)
	}
	lb, _ := st.Channels(ctx, 10, PurposeLeaderboard)
	if len(lb) != 1 || lb[0] != 200 {
		t.Fatalf("leaderboard channels = %v", lb)
	}
}

func TestTopByScopeOrdering(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.EnsureServer(ctx, 10, time.Now()); err != nil {
		t.Fatal(err)
	}
	// yesterday_solved: user 3 > user 1 > user 2; user 4 has zero and is
	// excluded; user 5 is not linked to the server.
	users := []User{
		{ID: 1, Handle: "a", YesterdaySolved: 5, LastWeekSolved: 1},
		{ID: 2, Handle: "b", YesterdaySolved: 2, LastWeekSolved: 9},
		{ID: 3, Handle: "c", YesterdaySolved: 8, LastWeekSolved: 4},
		{ID: 4, Handle: "d", YesterdaySolved: 0, LastWeekSolved: 2},
		{ID: 5, Handle: "e", YesterdaySolved: 9},
	}
	for _, u := range users {
		if err := st.SaveUser(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
	for _, id := range []int64{1, 2, 3, 4} {
		if err := st.Link(ctx, id, 10, ""); err != nil {
			t.Fatal(err)
		}
	}

	top, err := st.TopByScope(ctx, 10, ScopeDaily, 10)
	if err != nil {
		t.Fatalf("TopByScope daily: %v", err)
	}
	gotIDs := make([]int64, len(top))
	for i, u := range top {
		gotIDs[i] = u.ID
	}
	want := []int64{3, 1, 2}
	if len(gotIDs) != len(want) {
		t.Fatalf("daily top = %v, want %v", gotIDs, want)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("daily top = %v, want %v", gotIDs, want)
		}
	}

	top, err = st.TopByScope(ctx, 10, ScopeWeekly, 2)
	if err != nil {
		t.Fatalf("TopByScope weekly: %v", err)
	}
	if len(top) != 2 || top[0].ID != 2 || top[1].ID != 3 {
		t.Fatalf("weekly top-2 = %+v", top)
	}

	if _, err := st.TopByScope(ctx, 10, Scope("hourly"), 5); err == nil {
		t.Fatal("unknown scope should be rejected")
	}
}

func TestSetRank(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.SaveUser(ctx, User{ID: 1, Handle: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := st.EnsureServer(ctx, 10, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := st.Link(ctx, 1, 10, ""); err != nil {
		t.Fatal(err)
	}

	if err := st.SetRank(ctx, 1, 10, ScopeDaily, 2); err != nil {
		t.Fatal(err)
	}
	if err := st.SetRank(ctx, 1, 10, ScopeWeekly, 5); err != nil {
		t.Fatal(err)
	}
	links, _ := st.Links(ctx, 1)
	if len(links) != 1 || links[0].RankDaily != 2 || links[0].RankWeekly != 5 {
		t.Fatalf("ranks not applied: %+v", links)
	}
	if err := st.SetRank(ctx, 1, 10, Scope("hourly"), 1); err == nil {
		t.Fatal("unknown scope should be rejected")
	}
}

func TestAnalyticsRollup(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	// Three commands from two distinct users.
	for _, uid := range []int64{1, 2, 1} {
		if err := st.MarkCommandUse(ctx, uid); err != nil {
			t.Fatalf("MarkCommandUse: %v", err)
		}
	}
	a, err := st.Analytics(ctx)
	if err != nil {
		t.Fatalf("Analytics: %v", err)
	}
	if a.CommandCountToday != 3 || len(a.DistinctUsersToday) != 2 {
		t.Fatalf("analytics = %+v", a)
	}

	snap := AnalyticsSnapshot{Day: "2024-03-04", DistinctUsers: len(a.DistinctUsersToday), CommandCount: a.CommandCountToday}
	if err := st.SaveAnalyticsRollup(ctx, snap); err != nil {
		t.Fatalf("SaveAnalyticsRollup: %v", err)
	}

	// Counters reset together with the history append.
	a, _ = st.Analytics(ctx)
	if a.CommandCountToday != 0 || len(a.DistinctUsersToday) != 0 {
		t.Fatalf("counters not reset: %+v", a)
	}
	hist, err := st.AnalyticsHistory(ctx)
	if err != nil || len(hist) != 1 || hist[0] != snap {
		t.Fatalf("history = %v, %v", hist, err)
	}

	// Rolling the same day again overwrites rather than duplicating.
	snap.CommandCount = 9
	if err := st.SaveAnalyticsRollup(ctx, snap); err != nil {
		t.Fatal(err)
	}
	hist, _ = st.AnalyticsHistory(ctx)
	if len(hist) != 1 || hist[0].CommandCount != 9 {
		t.Fatalf("same-day rollup should upsert: %v", hist)
	}
}

func TestBoundaryMarks(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := st.BoundaryMark(ctx, "daily"); err != nil || ok {
		t.Fatalf("fresh mark: ok=%v err=%v", ok, err)
	}

	mark := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	if err := st.PutBoundaryMark(ctx, "daily", mark); err != nil {
		t.Fatalf("PutBoundaryMark: %v", err)
	}
	got, ok, err := st.BoundaryMark(ctx, "daily")
	if err != nil || !ok || !got.Equal(mark) {
		t.Fatalf("BoundaryMark = %v, %v, %v", got, ok, err)
	}

	// Kinds are independent.
	if _, ok, _ := st.BoundaryMark(ctx, "weekly"); ok {
		t.Fatal("weekly mark should be unset")
	}

	// Overwrite moves the watermark forward.
	next := mark.Add(24 * time.Hour)
	if err := st.PutBoundaryMark(ctx, "daily", next); err != nil {
		t.Fatal(err)
	}
	got, _, _ = st.BoundaryMark(ctx, "daily")
	if !got.Equal(next) {
		t.Fatalf("mark not advanced: %v", got)
	}
}
