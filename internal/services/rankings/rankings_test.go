package rankings

import (
	"context"
	"errors"
	"testing"
	"time"

	"practicebot/internal/gateway"
	"practicebot/internal/storage"
	logx "practicebot/pkg/logx"
)

type rankKey struct {
	user  int64
	scope storage.Scope
}

type fakeStore struct {
	top      map[storage.Scope][]storage.User
	channels []int64
	ranks    map[rankKey]int
	rankFail map[int64]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		top:      map[storage.Scope][]storage.User{},
		ranks:    map[rankKey]int{},
		rankFail: map[int64]error{},
	}
}

func (f *fakeStore) TopByScope(ctx context.Context, serverID int64, scope storage.Scope, limit int) ([]storage.User, error) {
	top := f.top[scope]
	if len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}

func (f *fakeStore) SetRank(ctx context.Context, userID, serverID int64, scope storage.Scope, rank int) error {
	if err := f.rankFail[userID]; err != nil {
		return err
	}
	f.ranks[rankKey{userID, scope}] = rank
	return nil
}

func (f *fakeStore) Channels(ctx context.Context, serverID int64, purpose string) ([]int64, error) {
	if purpose != storage.PurposeLeaderboard {
		return nil, nil
	}
	return f.channels, nil
}

type fakeSender struct {
	sent map[int64][]gateway.Embed
	fail map[int64]error
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: map[int64][]gateway.Embed{}, fail: map[int64]error{}}
}

func (f *fakeSender) SendEmbed(ctx context.Context, channelID int64, e gateway.Embed) error {
	if err := f.fail[channelID]; err != nil {
		return err
	}
	f.sent[channelID] = append(f.sent[channelID], e)
	return nil
}

func TestUpdateRankingsAssignsPositions(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.top[storage.ScopeDaily] = []storage.User{
		{ID: 3, YesterdaySolved: 8},
		{ID: 1, YesterdaySolved: 5},
		{ID: 2, YesterdaySolved: 2},
	}
	svc := New(store, newFakeSender(), logx.Nop())

	err := svc.UpdateRankings(context.Background(), storage.Server{ID: 10}, time.Now(), storage.ScopeDaily)
	if err != nil {
		t.Fatalf("UpdateRankings: %v", err)
	}
	want := map[rankKey]int{
		{3, storage.ScopeDaily}: 1,
		{1, storage.ScopeDaily}: 2,
		{2, storage.ScopeDaily}: 3,
	}
	for k, rank := range want {
		if store.ranks[k] != rank {
			t.Fatalf("rank[%v] = %d, want %d", k, store.ranks[k], rank)
		}
	}
}

func TestUpdateRankingsSkipsFailedWrite(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.top[storage.ScopeDaily] = []storage.User{
		{ID: 1, YesterdaySolved: 5},
		{ID: 2, YesterdaySolved: 3},
	}
	store.rankFail[1] = errors.New("locked")
	svc := New(store, newFakeSender(), logx.Nop())

	if err := svc.UpdateRankings(context.Background(), storage.Server{ID: 10}, time.Now(), storage.ScopeDaily); err != nil {
		t.Fatalf("a failed rank write must not abort the pass: %v", err)
	}
	if store.ranks[rankKey{2, storage.ScopeDaily}] != 2 {
		t.Fatal("remaining ranks should still be written")
	}
}

func TestSendLeaderboardWinners(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.top[storage.ScopeWeekly] = []storage.User{
		{ID: 1, Handle: "alice", LastWeekSolved: 9},
		{ID: 2, Handle: "bob", LastWeekSolved: 4},
	}
	store.channels = []int64{100, 101}
	sender := newFakeSender()
	svc := New(store, sender, logx.Nop())

	err := svc.SendLeaderboardWinners(context.Background(), storage.Server{ID: 10}, storage.ScopeWeekly)
	if err != nil {
		t.Fatalf("SendLeaderboardWinners: %v", err)
	}
	for _, ch := range store.channels {
		if len(sender.sent[ch]) != 1 {
			t.Fatalf("channel %d: %d announcements, want 1", ch, len(sender.sent[ch]))
		}
	}
	e := sender.sent[100][0]
	if len(e.Fields) != 2 {
		t.Fatalf("embed fields = %d, want 2", len(e.Fields))
	}
	if e.Fields[0].Name != "🥇 alice" || e.Fields[0].Value != "9 solved" {
		t.Fatalf("first field = %+v", e.Fields[0])
	}
}

func TestSendLeaderboardWinnersQuietCases(t *testing.T) {
	t.Parallel()

	// No winners: nothing sent.
	store := newFakeStore()
	store.channels = []int64{100}
	sender := newFakeSender()
	svc := New(store, sender, logx.Nop())
	if err := svc.SendLeaderboardWinners(context.Background(), storage.Server{ID: 10}, storage.ScopeDaily); err != nil {
		t.Fatalf("no winners: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("no announcement expected without winners")
	}

	// Winners but no registered channels: nothing sent, no error.
	store = newFakeStore()
	store.top[storage.ScopeDaily] = []storage.User{{ID: 1, Handle: "a", YesterdaySolved: 1}}
	sender = newFakeSender()
	svc = New(store, sender, logx.Nop())
	if err := svc.SendLeaderboardWinners(context.Background(), storage.Server{ID: 10}, storage.ScopeDaily); err != nil {
		t.Fatalf("no channels: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("no announcement expected without channels")
	}
}

func TestSendLeaderboardWinnersChannelFailureIsolated(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.top[storage.ScopeDaily] = []storage.User{{ID: 1, Handle: "a", YesterdaySolved: 1}}
	store.channels = []int64{100, 101}
	sender := newFakeSender()
	sender.fail[100] = gateway.ErrForbidden
	svc := New(store, sender, logx.Nop())

	if err := svc.SendLeaderboardWinners(context.Background(), storage.Server{ID: 10}, storage.ScopeDaily); err != nil {
		t.Fatalf("per-channel failure must not surface: %v", err)
	}
	if len(sender.sent[101]) != 1 {
		t.Fatal("remaining channels should still be announced")
	}
}
