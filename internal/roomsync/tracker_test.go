package roomsync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/ledger"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/ledger/mocks"
)

type recorder struct {
	snaps    []dungeon.RoomSnapshot
	deltas   []dungeon.DoorOccupancyDelta
	releases int
}

func (r *recorder) OnRoomSnapshotUpdated(s dungeon.RoomSnapshot)      { r.snaps = append(r.snaps, s) }
func (r *recorder) OnDoorOccupancyDelta(d dungeon.DoorOccupancyDelta) { r.deltas = append(r.deltas, d) }
func (r *recorder) ReleaseInitialLoadingHold()                        { r.releases++ }

func TestTracker_RefreshDeliversSnapshotThenDeltas(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	room := testRoom()
	coord := room.Coord()

	gw.EXPECT().Actor().Return("me").AnyTimes()
	gw.EXPECT().FetchRoomState(gomock.Any(), coord).Return(room, nil).Times(2)
	gomock.InOrder(
		gw.EXPECT().FetchRoomOccupants(gomock.Any(), coord).Return([]ledger.RoomPresence{worker("A", dungeon.East), worker("B", dungeon.East)}, nil),
		gw.EXPECT().FetchRoomOccupants(gomock.Any(), coord).Return([]ledger.RoomPresence{worker("B", dungeon.East), worker("C", dungeon.East)}, nil),
	)

	tr := NewTracker(gw, nil)
	rec := &recorder{}
	tr.Subscribe(rec)

	require.NoError(t, tr.Refresh(context.Background(), coord))
	require.NoError(t, tr.Refresh(context.Background(), coord))

	assert.Len(t, rec.snaps, 2)
	assert.Equal(t, 1, rec.releases)
	require.Len(t, rec.deltas, 2)
	assert.Equal(t, []string{"A", "B"}, ids(rec.deltas[0].Joined))
	assert.Equal(t, []string{"C"}, ids(rec.deltas[1].Joined))
	assert.Equal(t, []string{"A"}, ids(rec.deltas[1].Left))

	latest, ok := tr.Latest()
	require.True(t, ok)
	assert.Equal(t, coord, latest.Position)
	assert.Equal(t, uint64(2), tr.Stats().Snapshots)
}

func TestTracker_RoomChangeResetsPrevious(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	gw.EXPECT().Actor().Return("me").AnyTimes()

	tr := NewTracker(gw, nil)
	rec := &recorder{}
	tr.Subscribe(rec)

	a := testRoom()
	b := testRoom()
	b.X = 2
	tr.Apply(a, []ledger.RoomPresence{worker("A", dungeon.East)})
	tr.Apply(b, []ledger.RoomPresence{worker("B", dungeon.East)})

	require.Len(t, rec.deltas, 2)
	assert.Equal(t, []string{"B"}, ids(rec.deltas[1].Joined))
	assert.Empty(t, rec.deltas[1].Left)
	coord, _ := tr.Room()
	assert.Equal(t, b.Coord(), coord)
}

func TestTracker_AbsentRoomEmitsNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	gw.EXPECT().FetchRoomState(gomock.Any(), gomock.Any()).Return(nil, nil)

	tr := NewTracker(gw, nil)
	rec := &recorder{}
	tr.Subscribe(rec)
	require.NoError(t, tr.Refresh(context.Background(), dungeon.Coord{}))
	assert.Empty(t, rec.snaps)
	assert.Equal(t, 0, rec.releases)
}

func TestTracker_RefreshCurrentUsesPlayerRoom(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	room := testRoom()
	gw.EXPECT().Actor().Return("me").AnyTimes()
	gw.EXPECT().FetchPlayerState(gomock.Any()).Return(&ledger.PlayerAccount{CurrentRoomX: 1, CurrentRoomY: -2}, nil)
	gw.EXPECT().FetchRoomState(gomock.Any(), room.Coord()).Return(room, nil)
	gw.EXPECT().FetchRoomOccupants(gomock.Any(), room.Coord()).Return([]ledger.RoomPresence{
		{Player: "me", Activity: ledger.ActivityBossFight, ActivityDirection: ledger.NoDirection},
	}, nil)

	tr := NewTracker(gw, nil)
	require.NoError(t, tr.RefreshCurrent(context.Background()))
	assert.True(t, tr.LocalFightingBoss(room.Coord()))
	assert.False(t, tr.LocalFightingBoss(dungeon.Coord{X: 5, Y: -2}), "hint only covers the snapshot's room")
}

func TestTracker_RefreshCurrentFollowsPlayerMove(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	start := testRoom()
	moved := testRoom()
	moved.X = 5
	gw.EXPECT().Actor().Return("me").AnyTimes()
	gw.EXPECT().FetchPlayerState(gomock.Any()).Return(&ledger.PlayerAccount{CurrentRoomX: 5, CurrentRoomY: -2}, nil).Times(2)
	gw.EXPECT().FetchRoomState(gomock.Any(), moved.Coord()).Return(moved, nil).Times(2)
	gw.EXPECT().FetchRoomOccupants(gomock.Any(), moved.Coord()).Return([]ledger.RoomPresence{worker("B", dungeon.East)}, nil).Times(2)

	tr := NewTracker(gw, nil)
	rec := &recorder{}
	tr.Subscribe(rec)
	tr.Apply(start, []ledger.RoomPresence{worker("A", dungeon.East)})

	require.NoError(t, tr.RefreshCurrent(context.Background()))
	require.NoError(t, tr.RefreshCurrent(context.Background()))

	latest, ok := tr.Latest()
	require.True(t, ok)
	assert.Equal(t, moved.Coord(), latest.Position)
	require.Len(t, rec.snaps, 3)
	assert.Equal(t, start.Coord(), rec.snaps[0].Position)
	assert.Equal(t, moved.Coord(), rec.snaps[1].Position)

	// The move resets history: B joins, A never leaves, and the repeat is quiet.
	require.Len(t, rec.deltas, 2)
	assert.Equal(t, []string{"B"}, ids(rec.deltas[1].Joined))
	assert.Empty(t, rec.deltas[1].Left)
}

func TestTracker_RefreshCurrentPlayerError(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	gw.EXPECT().Actor().Return("me").AnyTimes()
	gw.EXPECT().FetchPlayerState(gomock.Any()).Return(nil, errors.New("relay down"))
	gw.EXPECT().FetchRoomState(gomock.Any(), gomock.Any()).Times(0)

	tr := NewTracker(gw, nil)
	tr.Apply(testRoom(), nil)
	require.Error(t, tr.RefreshCurrent(context.Background()))
	assert.Equal(t, uint64(1), tr.Stats().RefreshFailures)
}

func TestTracker_FetchErrorCounted(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	gw.EXPECT().FetchRoomState(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom"))

	tr := NewTracker(gw, nil)
	require.Error(t, tr.Refresh(context.Background(), dungeon.Coord{}))
	assert.Equal(t, uint64(1), tr.Stats().RefreshFailures)
	_, ok := tr.Latest()
	assert.False(t, ok)
}
