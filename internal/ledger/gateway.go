// Package ledger defines the contract the engine consumes from the remote
// dungeon ledger, and the account shapes it returns.
package ledger

//go:generate go run go.uber.org/mock/mockgen@v0.5.0 -destination=./mocks/gateway_mock.go -package=mocks . Gateway

import (
	"context"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
)

// Gateway is the request/response surface of the ledger. Fetches return
// (nil, nil) when the account does not exist. Submissions return the
// transaction signature.
type Gateway interface {
	// Actor is the local wallet all submissions are signed for.
	Actor() string

	FetchGlobalState(ctx context.Context) (*GlobalState, error)
	FetchPlayerState(ctx context.Context) (*PlayerAccount, error)
	FetchRoomState(ctx context.Context, room dungeon.Coord) (*RoomAccount, error)
	FetchRoomOccupants(ctx context.Context, room dungeon.Coord) ([]RoomPresence, error)
	HasHelperStake(ctx context.Context, room dungeon.Coord, dir dungeon.Direction) (bool, error)
	CurrentSlot(ctx context.Context) (uint64, error)

	SubmitFinalize(ctx context.Context, room dungeon.Coord, dir dungeon.Direction) (string, error)
	SubmitClaim(ctx context.Context, room dungeon.Coord, dir dungeon.Direction) (string, error)
	SubmitBossTick(ctx context.Context, room dungeon.Coord) (string, error)
	PollConfirmation(ctx context.Context, signature string) (bool, error)
	IsFightParticipant(ctx context.Context, room dungeon.Coord, actor string) (bool, error)
}
