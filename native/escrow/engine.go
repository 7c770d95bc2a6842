package escrow

import (
	"errors"
	"log/slog"

	"cyberswap/core/events"
	"cyberswap/core/types"
	"cyberswap/storage"
)

var (
	errNilState  = errors.New("escrow engine: state not configured")
	errNilAssets = errors.New("escrow engine: asset querier not configured")
)

// ModuleAddress is the account that holds every escrowed asset.
var ModuleAddress = types.DeriveAddress("escrow")

// Env describes the block the current invocation executes in.
type Env struct {
	Height uint64 `json:"height"`
	Time   uint64 `json:"time"`
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Counter(key []byte) (uint64, error)
	NextCounter(key []byte) (uint64, error)
	Store() storage.KV
}

// Engine executes escrow operations against one invocation's staged state.
// A fresh engine is configured per invocation; it is not safe for concurrent
// use.
type Engine struct {
	state   engineState
	assets  AssetQuerier
	router  FeeRouter
	emitter events.Emitter
	env     Env
	logger  *slog.Logger
}

// NewEngine creates an escrow engine with a no-op emitter and the community
// pool fee router.
func NewEngine() *Engine {
	return &Engine{
		router:  CommunityPool{},
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAssets configures the registry queried to admit fungible and
// non-fungible deposits.
func (e *Engine) SetAssets(assets AssetQuerier) { e.assets = assets }

// SetFeeRouter configures where settlement fees are sent. Passing nil restores
// the community pool router.
func (e *Engine) SetFeeRouter(router FeeRouter) {
	if router == nil {
		e.router = CommunityPool{}
		return
	}
	e.router = router
}

// SetEnv sets the block height and time used for expiry and approval checks.
func (e *Engine) SetEnv(env Env) { e.env = env }

// SetLogger overrides the logger. Passing nil restores slog.Default.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		e.logger = slog.Default()
		return
	}
	e.logger = logger
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(*event)
}

func (e *Engine) listings() (listingStore, error) {
	if e == nil || e.state == nil {
		return listingStore{}, errNilState
	}
	return listingStore{kv: e.state.Store()}, nil
}

func (e *Engine) buckets() (bucketStore, error) {
	if e == nil || e.state == nil {
		return bucketStore{}, errNilState
	}
	return bucketStore{kv: e.state.Store()}, nil
}

func (e *Engine) loadConfig() (Config, error) {
	if e == nil || e.state == nil {
		return Config{}, errNilState
	}
	var cfg Config
	ok, err := e.state.KVGet(configKey, &cfg)
	if err != nil {
		return Config{}, wrapGeneric(err, "load config")
	}
	if !ok {
		return Config{}, newError(KindGeneric, "escrow not initialised")
	}
	return cfg, nil
}

func (e *Engine) storeConfig(cfg Config) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return wrapGeneric(e.state.KVPut(configKey, cfg), "store config")
}

// Init stores the module configuration. It fails when a configuration already
// exists.
func (e *Engine) Init(cfg Config) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	sanitized, err := SanitizeConfig(cfg)
	if err != nil {
		return err
	}
	exists, err := e.state.KVGet(configKey, nil)
	if err != nil {
		return wrapGeneric(err, "load config")
	}
	if exists {
		return invalidState("escrow already initialised")
	}
	return e.storeConfig(sanitized)
}

// Config returns the stored configuration.
func (e *Engine) Config() (Config, error) {
	return e.loadConfig()
}

// checkDeposit validates an incoming balance against the whitelist.
func (e *Engine) checkDeposit(cfg Config, deposit GenericBalance) error {
	if deposit.IsEmpty() {
		return invalid("deposit must not be empty")
	}
	if err := deposit.CheckValid(); err != nil {
		return err
	}
	return cfg.checkWhitelisted(deposit)
}
