// Package host runs escrow invocations against the node's database. Every
// invocation executes on a staged copy of state that is committed in one
// batch on success and discarded on any failure, so a rejected message leaves
// no trace: no state change, no asset movement, no event.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/codes"

	"cyberswap/core/events"
	"cyberswap/core/state"
	"cyberswap/core/types"
	"cyberswap/native/common"
	"cyberswap/native/escrow"
	"cyberswap/native/registry"
	"cyberswap/observability"
	telemetry "cyberswap/observability/otel"
	"cyberswap/storage"
)

// ModuleName is the pause switch consulted before every invocation.
const ModuleName = "escrow"

var heightKey = []byte("host/height")

var ErrClosed = errors.New("host: closed")

// Options configure a Host. Zero values select sensible defaults.
type Options struct {
	// Emitter receives the events of committed invocations.
	Emitter events.Emitter
	// Router picks where settlement fees go. Nil selects the community pool.
	Router escrow.FeeRouter
	Pauses common.PauseView
	Logger *slog.Logger
	// Clock supplies block time. Nil selects time.Now.
	Clock func() time.Time
}

// Result describes a committed invocation.
type Result struct {
	InvocationID string            `json:"invocation_id"`
	Action       string            `json:"action"`
	Height       uint64            `json:"height"`
	Time         uint64            `json:"time"`
	Transfers    []escrow.Transfer `json:"transfers,omitempty"`
	Data         any               `json:"data,omitempty"`
	Events       []types.Event     `json:"events,omitempty"`
}

// Host serialises invocations against a database. Queries may run
// concurrently with each other but never observe a half-applied invocation.
type Host struct {
	mu      sync.RWMutex
	db      storage.Database
	emitter events.Emitter
	router  escrow.FeeRouter
	pauses  common.PauseView
	logger  *slog.Logger
	clock   func() time.Time
	closed  bool
}

// New wraps db.
func New(db storage.Database, opts Options) *Host {
	h := &Host{
		db:      db,
		emitter: opts.Emitter,
		router:  opts.Router,
		pauses:  opts.Pauses,
		logger:  opts.Logger,
		clock:   opts.Clock,
	}
	if h.emitter == nil {
		h.emitter = events.NoopEmitter{}
	}
	if h.router == nil {
		h.router = escrow.CommunityPool{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.clock == nil {
		h.clock = time.Now
	}
	return h
}

// Close marks the host closed. The database is owned by the caller.
func (h *Host) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

type invocation struct {
	id       string
	action   string
	staged   *storage.Staged
	state    *state.Manager
	registry *registry.Registry
	engine   *escrow.Engine
	buffer   *events.Buffer
	env      escrow.Env
}

func (h *Host) open(action string, nextBlock bool) (*invocation, error) {
	staged := storage.NewStaged(h.db)
	manager := state.NewManager(staged)
	var height uint64
	if _, err := manager.KVGet(heightKey, &height); err != nil {
		return nil, fmt.Errorf("host: load height: %w", err)
	}
	if nextBlock {
		height++
	}
	inv := &invocation{
		id:       uuid.NewString(),
		action:   action,
		staged:   staged,
		state:    manager,
		registry: registry.New(manager),
		buffer:   &events.Buffer{},
		env:      escrow.Env{Height: height, Time: uint64(h.clock().Unix())},
	}
	engine := escrow.NewEngine()
	engine.SetState(manager)
	engine.SetAssets(inv.registry)
	engine.SetFeeRouter(h.router)
	engine.SetEnv(inv.env)
	engine.SetEmitter(inv.buffer)
	engine.SetLogger(h.logger.With("invocation", inv.id, "action", action))
	inv.engine = engine
	return inv, nil
}

// deliver executes the transfers an escrow response asks for. Escrow always
// pays out of its own account.
func (inv *invocation) deliver(transfers []escrow.Transfer) error {
	for _, transfer := range transfers {
		if err := inv.registry.Deliver(escrow.ModuleAddress, transfer); err != nil {
			return &escrow.Error{Kind: escrow.KindGeneric, Reason: fmt.Sprintf("deliver %s to %s: %v", transfer.Asset, transfer.Recipient, err)}
		}
	}
	return nil
}

// run executes fn in a fresh invocation under the write lock and commits its
// effects only when fn and every resulting transfer succeed.
func (h *Host) run(ctx context.Context, action string, fn func(*invocation) (*escrow.Response, error)) (*Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "escrow."+action)
	defer span.End()
	start := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	result, err := h.runLocked(ctx, action, fn)
	kind := ""
	if err != nil {
		kind = escrow.KindOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
	}
	observability.Escrow().ObserveInvocation(action, kind, time.Since(start))
	return result, err
}

func (h *Host) runLocked(ctx context.Context, action string, fn func(*invocation) (*escrow.Response, error)) (*Result, error) {
	if h.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := common.Guard(h.pauses, ModuleName); err != nil {
		return nil, err
	}
	inv, err := h.open(action, true)
	if err != nil {
		return nil, err
	}
	resp, err := fn(inv)
	if err == nil {
		if resp == nil {
			resp = &escrow.Response{}
		}
		err = inv.deliver(resp.Transfers)
	}
	if err == nil {
		err = inv.state.KVPut(heightKey, inv.env.Height)
	}
	if err == nil {
		err = inv.staged.Commit()
	}
	if err != nil {
		inv.staged.Discard()
		h.logger.Warn("invocation rejected",
			"invocation", inv.id,
			"action", action,
			"kind", escrow.KindOf(err).String(),
			"error", err)
		return nil, err
	}

	metrics := observability.Escrow()
	for _, transfer := range resp.Transfers {
		metrics.RecordTransfer(transfer.Asset.Kind.String())
	}
	emitted := inv.buffer.Events()
	inv.buffer.Flush(h.emitter)
	result := &Result{
		InvocationID: inv.id,
		Action:       action,
		Height:       inv.env.Height,
		Time:         inv.env.Time,
		Transfers:    resp.Transfers,
		Data:         resp.Data,
	}
	for _, evt := range emitted {
		metrics.RecordEvent(evt.EventType())
		if typed, ok := evt.(types.Event); ok {
			result.Events = append(result.Events, typed)
		}
	}
	h.logger.Info("invocation committed",
		"invocation", inv.id,
		"action", action,
		"height", inv.env.Height,
		"transfers", len(resp.Transfers),
		"events", len(result.Events))
	return result, nil
}

// view runs fn against committed state under the read lock.
func (h *Host) view(ctx context.Context, fn func(*invocation) error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	inv, err := h.open("query", false)
	if err != nil {
		return err
	}
	defer inv.staged.Discard()
	return fn(inv)
}

func validation(format string, args ...any) error {
	return &escrow.Error{Kind: escrow.KindValidation, Reason: fmt.Sprintf(format, args...)}
}

func unauthorized(format string, args ...any) error {
	return &escrow.Error{Kind: escrow.KindUnauthorized, Reason: fmt.Sprintf(format, args...)}
}

// Execute delivers msg from info.Sender. Attached native funds move into
// escrow before the module runs. Asset hooks are rejected: only SendToken and
// SendNFT may deliver them.
func (h *Host) Execute(ctx context.Context, info escrow.Info, msg escrow.ExecuteMsg) (*Result, error) {
	action := msg.Name()
	if action == "" {
		action = "unknown"
	}
	return h.run(ctx, action, func(inv *invocation) (*escrow.Response, error) {
		if msg.IsHook() {
			return nil, unauthorized("hooks are delivered by asset contracts")
		}
		bank := inv.registry.Bank()
		for _, coin := range info.Funds {
			if err := bank.Send(info.Sender, escrow.ModuleAddress, coin.Denom, coin.Amount); err != nil {
				return nil, validation("attach funds: %v", err)
			}
		}
		return inv.engine.Execute(info, msg)
	})
}

// SendToken moves amount of contract from sender into escrow and notifies the
// module with hook, the way a token contract's send does.
func (h *Host) SendToken(ctx context.Context, sender, contract types.Address, amount *uint256.Int, hook []byte) (*Result, error) {
	return h.run(ctx, "receive", func(inv *invocation) (*escrow.Response, error) {
		if err := inv.registry.TransferToken(contract, sender, escrow.ModuleAddress, amount); err != nil {
			return nil, validation("send token: %v", err)
		}
		return inv.engine.Execute(escrow.Info{Sender: contract}, escrow.ExecuteMsg{
			Receive: &escrow.ReceiveMsg{Sender: sender, Amount: amount, Msg: hook},
		})
	})
}

// SendNFT notifies the module that sender is sending tokenID of collection
// with hook and, once admitted, moves the NFT into escrow.
func (h *Host) SendNFT(ctx context.Context, sender, collection types.Address, tokenID string, hook []byte) (*Result, error) {
	return h.run(ctx, "receive_nft", func(inv *invocation) (*escrow.Response, error) {
		resp, err := inv.engine.Execute(escrow.Info{Sender: collection}, escrow.ExecuteMsg{
			ReceiveNFT: &escrow.ReceiveNFTMsg{Sender: sender, TokenID: tokenID, Msg: hook},
		})
		if err != nil {
			return nil, err
		}
		if err := inv.registry.TransferNFT(collection, tokenID, sender, escrow.ModuleAddress); err != nil {
			return nil, validation("send nft: %v", err)
		}
		return resp, nil
	})
}

// Approve lets spender move owner's NFT until expires.
func (h *Host) Approve(ctx context.Context, owner, collection types.Address, tokenID string, spender types.Address, expires escrow.Expiration) (*Result, error) {
	return h.run(ctx, "approve_nft", func(inv *invocation) (*escrow.Response, error) {
		if err := inv.registry.Approve(collection, tokenID, owner, spender, expires); err != nil {
			return nil, registryError(err)
		}
		return &escrow.Response{}, nil
	})
}

// Revoke withdraws spender's approval on owner's NFT.
func (h *Host) Revoke(ctx context.Context, owner, collection types.Address, tokenID string, spender types.Address) (*Result, error) {
	return h.run(ctx, "revoke_nft", func(inv *invocation) (*escrow.Response, error) {
		if err := inv.registry.Revoke(collection, tokenID, owner, spender); err != nil {
			return nil, registryError(err)
		}
		return &escrow.Response{}, nil
	})
}

func registryError(err error) error {
	switch {
	case errors.Is(err, registry.ErrNotOwner):
		return unauthorized("%v", err)
	case errors.Is(err, registry.ErrNFTNotFound), errors.Is(err, registry.ErrUnknownToken):
		return &escrow.Error{Kind: escrow.KindNotFound, Reason: err.Error()}
	default:
		return validation("%v", err)
	}
}

// Query answers msg from committed state.
func (h *Host) Query(ctx context.Context, msg escrow.QueryMsg) (any, error) {
	var out any
	err := h.view(ctx, func(inv *invocation) error {
		var err error
		out, err = inv.engine.Query(msg)
		return err
	})
	return out, err
}

// Balance returns addr's committed balance of a native denomination.
func (h *Host) Balance(ctx context.Context, addr types.Address, denom string) (*uint256.Int, error) {
	var out *uint256.Int
	err := h.view(ctx, func(inv *invocation) error {
		var err error
		out, err = inv.registry.Bank().Balance(addr, denom)
		return err
	})
	return out, err
}

// TokenBalance returns holder's committed balance of contract.
func (h *Host) TokenBalance(ctx context.Context, contract, holder types.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := h.view(ctx, func(inv *invocation) error {
		var err error
		out, err = inv.registry.TokenBalance(contract, holder)
		return err
	})
	return out, err
}

// NFT returns the committed owner and approvals of an NFT.
func (h *Host) NFT(ctx context.Context, collection types.Address, tokenID string) (escrow.NFTAccess, error) {
	var out escrow.NFTAccess
	err := h.view(ctx, func(inv *invocation) error {
		var err error
		out, err = inv.registry.NFTAccess(collection, tokenID)
		return err
	})
	return out, err
}

// Height returns the height of the last committed invocation.
func (h *Host) Height(ctx context.Context) (uint64, error) {
	var out uint64
	err := h.view(ctx, func(inv *invocation) error {
		out = inv.env.Height
		return nil
	})
	return out, err
}
