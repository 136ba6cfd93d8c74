package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/ledger"
)

// Relay method names.
const (
	methodGetGlobalState     = "getGlobalState"
	methodGetPlayer          = "getPlayer"
	methodGetRoom            = "getRoom"
	methodGetRoomOccupants   = "getRoomOccupants"
	methodHasHelperStake     = "hasHelperStake"
	methodGetSlot            = "getSlot"
	methodCompleteJob        = "completeJob"
	methodClaimJobReward     = "claimJobReward"
	methodTickBossFight      = "tickBossFight"
	methodGetSignatureStatus = "getSignatureStatuses"
	methodIsBossFighter      = "isBossFighter"
)

type roomParams struct {
	X     int8   `json:"x"`
	Y     int8   `json:"y"`
	Owner string `json:"owner,omitempty"`
}

type doorParams struct {
	X         int8   `json:"x"`
	Y         int8   `json:"y"`
	Direction uint8  `json:"direction"`
	Owner     string `json:"owner"`
}

type ownerParams struct {
	Owner string `json:"owner"`
}

type submitResult struct {
	Signature string `json:"signature"`
}

type signatureStatuses struct {
	Value []*struct {
		ConfirmationStatus string `json:"confirmationStatus"`
		Err                any    `json:"err"`
	} `json:"value"`
}

// Gateway is the relay-backed ledger.Gateway for one wallet.
type Gateway struct {
	c     *Client
	actor string
}

var _ ledger.Gateway = (*Gateway)(nil)

func NewGateway(c *Client, actor string) (*Gateway, error) {
	if c == nil {
		return nil, errors.New("rpc: nil client")
	}
	if strings.TrimSpace(actor) == "" {
		return nil, errors.New("rpc: actor wallet is required")
	}
	return &Gateway{c: c, actor: actor}, nil
}

func (g *Gateway) Actor() string { return g.actor }

func (g *Gateway) Client() *Client { return g.c }

func (g *Gateway) FetchGlobalState(ctx context.Context) (*ledger.GlobalState, error) {
	var out *ledger.GlobalState
	if err := g.c.Call(ctx, methodGetGlobalState, nil, schemaGlobal, &out); err != nil {
		return nil, notFoundIsAbsent(err)
	}
	return out, nil
}

func (g *Gateway) FetchPlayerState(ctx context.Context) (*ledger.PlayerAccount, error) {
	var out *ledger.PlayerAccount
	if err := g.c.Call(ctx, methodGetPlayer, ownerParams{Owner: g.actor}, schemaPlayer, &out); err != nil {
		return nil, notFoundIsAbsent(err)
	}
	return out, nil
}

func (g *Gateway) FetchRoomState(ctx context.Context, room dungeon.Coord) (*ledger.RoomAccount, error) {
	var out *ledger.RoomAccount
	if err := g.c.Call(ctx, methodGetRoom, roomParams{X: room.X, Y: room.Y}, schemaRoom, &out); err != nil {
		return nil, notFoundIsAbsent(err)
	}
	return out, nil
}

func (g *Gateway) FetchRoomOccupants(ctx context.Context, room dungeon.Coord) ([]ledger.RoomPresence, error) {
	var out []ledger.RoomPresence
	if err := g.c.Call(ctx, methodGetRoomOccupants, roomParams{X: room.X, Y: room.Y}, schemaOccupants, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gateway) HasHelperStake(ctx context.Context, room dungeon.Coord, dir dungeon.Direction) (bool, error) {
	var out bool
	err := g.c.Call(ctx, methodHasHelperStake, g.door(room, dir), "", &out)
	return out, err
}

func (g *Gateway) CurrentSlot(ctx context.Context) (uint64, error) {
	var out uint64
	err := g.c.Call(ctx, methodGetSlot, nil, "", &out)
	return out, err
}

func (g *Gateway) SubmitFinalize(ctx context.Context, room dungeon.Coord, dir dungeon.Direction) (string, error) {
	return g.submit(ctx, methodCompleteJob, g.door(room, dir))
}

func (g *Gateway) SubmitClaim(ctx context.Context, room dungeon.Coord, dir dungeon.Direction) (string, error) {
	return g.submit(ctx, methodClaimJobReward, g.door(room, dir))
}

func (g *Gateway) SubmitBossTick(ctx context.Context, room dungeon.Coord) (string, error) {
	return g.submit(ctx, methodTickBossFight, roomParams{X: room.X, Y: room.Y, Owner: g.actor})
}

// PollConfirmation reports whether the signature reached confirmed or
// finalized. A landed transaction that failed on chain is an error.
func (g *Gateway) PollConfirmation(ctx context.Context, signature string) (bool, error) {
	var out signatureStatuses
	params := []any{[]string{signature}, map[string]bool{"searchTransactionHistory": false}}
	if err := g.c.Call(ctx, methodGetSignatureStatus, params, "", &out); err != nil {
		return false, err
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return false, nil
	}
	st := out.Value[0]
	if st.Err != nil {
		return false, &ledger.Error{Code: ledger.ErrTxFailed, Message: fmt.Sprintf("%v", st.Err)}
	}
	switch st.ConfirmationStatus {
	case "confirmed", "finalized":
		return true, nil
	}
	return false, nil
}

func (g *Gateway) IsFightParticipant(ctx context.Context, room dungeon.Coord, actor string) (bool, error) {
	var out bool
	err := g.c.Call(ctx, methodIsBossFighter, roomParams{X: room.X, Y: room.Y, Owner: actor}, "", &out)
	return out, err
}

func (g *Gateway) door(room dungeon.Coord, dir dungeon.Direction) doorParams {
	return doorParams{X: room.X, Y: room.Y, Direction: uint8(dir), Owner: g.actor}
}

func (g *Gateway) submit(ctx context.Context, method string, params any) (string, error) {
	var out submitResult
	if err := g.c.Call(ctx, method, params, "", &out); err != nil {
		return "", err
	}
	if out.Signature == "" {
		return "", fmt.Errorf("%s: %w", method, &ledger.Error{Code: ledger.ErrBadResponse, Message: "empty signature"})
	}
	return out.Signature, nil
}

func notFoundIsAbsent(err error) error {
	if ledger.IsCode(err, ledger.ErrNotFound) {
		return nil
	}
	return err
}
