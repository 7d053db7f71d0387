package aux

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"

	"tally"
	"tally/config"
	"tally/infra/chaindb"
	"tally/infra/transport"
	"tally/internal/scope"
	"tally/internal/telemetry"
	"tally/node/diffusion"
	"tally/node/logic"
)

// Orchestrator sequences one run of the console: resolve the mode,
// correct parameters, acquire store, transport, logic, and diffusion in
// that order, host the plugin, and unwind everything in reverse on the
// way out, failure or not.
type Orchestrator struct {
	mode       RunMode
	configPath string
	params     NodeParameters
	tracer     trace.Tracer

	load           func(string) (*config.Config, error)
	openStore      func(path string, rebuild bool) (Store, error)
	listen         func(nc tally.NetworkConfig) (Endpoint, error)
	buildLogic     func(cfg *config.Config, st Store, genesis tally.BlockHash, tracer trace.Tracer) LogicRunner
	buildDiffusion func(ep Endpoint, nc tally.NetworkConfig, minVersion uint32) DiffusionRunner
}

// Option configures an Orchestrator. Use these to inject test
// dependencies.
type Option func(*Orchestrator)

// WithTracer traces the bootstrap phases.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithConfigLoader replaces the configuration source.
func WithConfigLoader(load func(string) (*config.Config, error)) Option {
	return func(o *Orchestrator) { o.load = load }
}

// WithStoreOpener replaces chain database acquisition.
func WithStoreOpener(open func(path string, rebuild bool) (Store, error)) Option {
	return func(o *Orchestrator) { o.openStore = open }
}

// WithListener replaces transport acquisition.
func WithListener(listen func(nc tally.NetworkConfig) (Endpoint, error)) Option {
	return func(o *Orchestrator) { o.listen = listen }
}

// WithLogicBuilder replaces logic layer construction.
func WithLogicBuilder(build func(cfg *config.Config, st Store, genesis tally.BlockHash, tracer trace.Tracer) LogicRunner) Option {
	return func(o *Orchestrator) { o.buildLogic = build }
}

// WithDiffusionBuilder replaces diffusion layer construction.
func WithDiffusionBuilder(build func(ep Endpoint, nc tally.NetworkConfig, minVersion uint32) DiffusionRunner) Option {
	return func(o *Orchestrator) { o.buildDiffusion = build }
}

// New builds an orchestrator with production wiring. Options override
// individual acquisitions for tests.
func New(mode RunMode, configPath string, params NodeParameters, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		mode:       mode,
		configPath: configPath,
		params:     params,
		load:       config.Load,
		openStore: func(path string, rebuild bool) (Store, error) {
			return chaindb.Open(path, chaindb.Options{Rebuild: rebuild})
		},
		listen: func(nc tally.NetworkConfig) (Endpoint, error) {
			return transport.Listen(nc)
		},
		buildLogic: func(cfg *config.Config, st Store, genesis tally.BlockHash, tracer trace.Tracer) LogicRunner {
			checker := logic.NewSkewChecker(logic.RealClock{}, cfg.NTPServers)
			return logic.NewLayer(logic.Params{
				Store:        st,
				SlotDuration: cfg.SlotDuration.Std(),
				ChainStart:   cfg.ChainStart,
				Genesis:      genesis,
				Tracer:       tracer,
			}, checker)
		},
		buildDiffusion: func(ep Endpoint, nc tally.NetworkConfig, minVersion uint32) DiffusionRunner {
			return diffusion.NewLayer(&diffusion.GossipBuilder{
				Endpoint:   ep.(*transport.Endpoint),
				Net:        nc,
				MinVersion: minVersion,
			})
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run resolves the mode and executes the plugin, either standalone or
// inside a fully bootstrapped node scope.
func (o *Orchestrator) Run(ctx context.Context, plugin Plugin) error {
	res, err := resolveMode(o.mode, o.configPath, o.load)
	if err != nil {
		return err
	}

	if !res.HasConfig() {
		env := Env{RunContext: RunContext{
			SelfName: o.params.SelfName,
			Secret:   o.params.Secret,
		}}
		if env.SelfName == "" {
			env.SelfName = "aux"
		}
		return runPlugin(ctx, plugin, env)
	}

	return o.runWithNode(ctx, res.Config, plugin)
}

// runWithNode is the full bootstrap. Every successful acquisition pushes
// its release onto the stack; the deferred unwind runs them in reverse
// on every exit path, and the primary failure stays first in the
// returned error.
func (o *Orchestrator) runWithNode(ctx context.Context, cfg *config.Config, plugin Plugin) (err error) {
	params := o.params
	if params.SelfName == "" {
		params.SelfName = cfg.NodeName
	}
	params, tempDB, err := correctParameters(params)
	if err != nil {
		return fmt.Errorf("prepare storage: %w", err)
	}
	if cfg.ListenPort != 0 {
		params.Net.DefaultPort = cfg.ListenPort
	}

	// Persist the forced topology next to the chain db so the file on
	// disk matches what this run actually gossips with.
	netPath := filepath.Join(filepath.Dir(params.DBPath), "network.yaml")
	if err := config.SaveNetwork(netPath, params.Net); err != nil {
		slog.Warn("Network config not persisted.", "path", netPath, "err", err)
	}

	genesis, err := cfg.Genesis()
	if err != nil {
		return fmt.Errorf("configured genesis: %w", err)
	}

	var rs scope.Stack
	defer rs.Unwind(&err)

	var st Store
	err = telemetry.Step(ctx, o.tracer, "open chain db", func(ctx context.Context) error {
		s, err := o.openStore(params.DBPath, params.Rebuild)
		if err != nil {
			return fmt.Errorf("open chain db: %w", err)
		}
		rs.Defer("chain db", func(context.Context) error { return s.Close() })
		if err := s.VerifyGenesis(ctx, genesis); err != nil {
			return err
		}
		st = s
		return nil
	})
	if err != nil {
		return err
	}

	var ep Endpoint
	err = telemetry.Step(ctx, o.tracer, "bind peer endpoint", func(ctx context.Context) error {
		e, err := o.listen(params.Net)
		if err != nil {
			return fmt.Errorf("bind peer endpoint: %w", err)
		}
		rs.Defer("peer endpoint", e.Close)
		slog.Info("Peer endpoint bound.", "addr", e.Addr())
		ep = e
		return nil
	})
	if err != nil {
		return err
	}

	lgRunner := o.buildLogic(cfg, st, genesis, o.tracer)
	dfRunner := o.buildDiffusion(ep, params.Net, cfg.MinPeerVersion)

	return lgRunner.Run(ctx, func(ctx context.Context, lg tally.Logic) error {
		return dfRunner.Run(ctx, lg, func(ctx context.Context, df tally.Diffusion) error {
			env := Env{
				RunContext: RunContext{
					TempDB:   tempDB,
					DBPath:   params.DBPath,
					SelfName: params.SelfName,
					Secret:   params.Secret,
					Config:   cfg,
				},
				Logic:     lg,
				Diffusion: df,
			}
			return runPlugin(ctx, plugin, env)
		})
	})
}
