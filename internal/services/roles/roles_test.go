package roles

import (
	"context"
	"errors"
	"testing"

	"practicebot/internal/gateway"
	"practicebot/internal/storage"
	logx "practicebot/pkg/logx"
)

type fakeStore struct {
	members map[int64][]int64
	users   map[int64]storage.User
}

func (f *fakeStore) ServerMembers(ctx context.Context, serverID int64) ([]int64, error) {
	return f.members[serverID], nil
}

func (f *fakeStore) User(ctx context.Context, id int64) (storage.User, bool, error) {
	u, ok := f.users[id]
	return u, ok, nil
}

type fakeGateway struct {
	roles    map[int64][]int64 // userID -> held role IDs
	rolesErr map[int64]error
	added    map[int64][]int64
	removed  map[int64][]int64
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		roles:    map[int64][]int64{},
		rolesErr: map[int64]error{},
		added:    map[int64][]int64{},
		removed:  map[int64][]int64{},
	}
}

func (f *fakeGateway) MemberRoles(ctx context.Context, serverID, userID int64) ([]int64, error) {
	if err := f.rolesErr[userID]; err != nil {
		return nil, err
	}
	return f.roles[userID], nil
}

func (f *fakeGateway) AddMemberRole(ctx context.Context, serverID, userID, roleID int64) error {
	f.added[userID] = append(f.added[userID], roleID)
	return nil
}

func (f *fakeGateway) RemoveMemberRole(ctx context.Context, serverID, userID, roleID int64) error {
	f.removed[userID] = append(f.removed[userID], roleID)
	return nil
}

var testLadder = []Milestone{
	{RoleID: 100, MinSolved: 10},
	{RoleID: 200, MinSolved: 50},
	{RoleID: 300, MinSolved: 100},
}

func newService(store *fakeStore, gw *fakeGateway) *Service {
	return New(Config{Milestones: map[int64][]Milestone{10: testLadder}}, store, gw, logx.Nop())
}

func user(id int64, solved int) storage.User {
	return storage.User{ID: id, SolvedEasy: solved}
}

func TestUpdateRolesGrantsHighestReached(t *testing.T) {
	t.Parallel()
	store := &fakeStore{
		members: map[int64][]int64{10: {1, 2, 3}},
		users: map[int64]storage.User{
			1: user(1, 5),   // below every milestone
			2: user(2, 60),  // reaches 100 and 200; holds only 200
			3: user(3, 150), // reaches all three; holds only 300
		},
	}
	gw := newFakeGateway()
	svc := newService(store, gw)

	if err := svc.UpdateRoles(context.Background(), storage.Server{ID: 10}); err != nil {
		t.Fatalf("UpdateRoles: %v", err)
	}

	if len(gw.added[1]) != 0 {
		t.Fatalf("user 1 should get no role, got %v", gw.added[1])
	}
	if len(gw.added[2]) != 1 || gw.added[2][0] != 200 {
		t.Fatalf("user 2 added = %v, want [200]", gw.added[2])
	}
	if len(gw.added[3]) != 1 || gw.added[3][0] != 300 {
		t.Fatalf("user 3 added = %v, want [300]", gw.added[3])
	}
}

func TestUpdateRolesRevokesOutgrownMilestone(t *testing.T) {
	t.Parallel()
	store := &fakeStore{
		members: map[int64][]int64{10: {1}},
		users:   map[int64]storage.User{1: user(1, 60)},
	}
	gw := newFakeGateway()
	gw.roles[1] = []int64{100} // held from before crossing 50
	svc := newService(store, gw)

	if err := svc.UpdateRoles(context.Background(), storage.Server{ID: 10}); err != nil {
		t.Fatalf("UpdateRoles: %v", err)
	}
	if len(gw.added[1]) != 1 || gw.added[1][0] != 200 {
		t.Fatalf("added = %v, want [200]", gw.added[1])
	}
	if len(gw.removed[1]) != 1 || gw.removed[1][0] != 100 {
		t.Fatalf("removed = %v, want [100]", gw.removed[1])
	}
}

func TestUpdateRolesIdempotent(t *testing.T) {
	t.Parallel()
	store := &fakeStore{
		members: map[int64][]int64{10: {1}},
		users:   map[int64]storage.User{1: user(1, 60)},
	}
	gw := newFakeGateway()
	gw.roles[1] = []int64{200}
	svc := newService(store, gw)

	if err := svc.UpdateRoles(context.Background(), storage.Server{ID: 10}); err != nil {
		t.Fatalf("UpdateRoles: %v", err)
	}
	if len(gw.added[1]) != 0 || len(gw.removed[1]) != 0 {
		t.Fatalf("already-correct member should be untouched: +%v -%v", gw.added[1], gw.removed[1])
	}
}

func TestUpdateRolesSkipsServerWithoutLadder(t *testing.T) {
	t.Parallel()
	store := &fakeStore{members: map[int64][]int64{99: {1}}}
	gw := newFakeGateway()
	svc := newService(store, gw)

	if err := svc.UpdateRoles(context.Background(), storage.Server{ID: 99}); err != nil {
		t.Fatalf("UpdateRoles: %v", err)
	}
	if len(gw.added) != 0 {
		t.Fatal("no ladder, no changes")
	}
}

func TestUpdateRolesDepartedMemberIgnored(t *testing.T) {
	t.Parallel()
	store := &fakeStore{
		members: map[int64][]int64{10: {1, 2}},
		users: map[int64]storage.User{
			1: user(1, 60),
			2: user(2, 60),
		},
	}
	gw := newFakeGateway()
	gw.rolesErr[1] = gateway.ErrNotFound // left the server
	svc := newService(store, gw)

	if err := svc.UpdateRoles(context.Background(), storage.Server{ID: 10}); err != nil {
		t.Fatalf("UpdateRoles: %v", err)
	}
	if len(gw.added[1]) != 0 {
		t.Fatal("departed member must not be modified")
	}
	if len(gw.added[2]) != 1 {
		t.Fatal("remaining members still synced")
	}
}

func TestUpdateRolesMemberFailureIsolated(t *testing.T) {
	t.Parallel()
	store := &fakeStore{
		members: map[int64][]int64{10: {1, 2}},
		users: map[int64]storage.User{
			1: user(1, 60),
			2: user(2, 60),
		},
	}
	gw := newFakeGateway()
	gw.rolesErr[1] = errors.New("rate limited")
	svc := newService(store, gw)

	if err := svc.UpdateRoles(context.Background(), storage.Server{ID: 10}); err != nil {
		t.Fatalf("per-member failure must not abort the sync: %v", err)
	}
	if len(gw.added[2]) != 1 {
		t.Fatal("remaining members still synced")
	}
}

func TestNewSortsLadder(t *testing.T) {
	t.Parallel()
	unsorted := map[int64][]Milestone{
		10: {{RoleID: 300, MinSolved: 100}, {RoleID: 100, MinSolved: 10}, {RoleID: 200, MinSolved: 50}},
	}
	svc := New(Config{Milestones: unsorted}, &fakeStore{}, newFakeGateway(), logx.Nop())
	ladder := svc.cfg.Milestones[10]
	for i := 1; i < len(ladder); i++ {
		if ladder[i-1].MinSolved > ladder[i].MinSolved {
			t.Fatalf("ladder not sorted: %+v", ladder)
		}
	}
}
