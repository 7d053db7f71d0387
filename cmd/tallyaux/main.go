package main

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tally"
	aux "tally/auxiliary"
	"tally/cmd/tallyaux/ui"
	"tally/internal/buildinfo"
	"tally/internal/logging"
	"tally/internal/telemetry"
)

type rootFlags struct {
	mode       string
	configPath string
	logLevel   string
	dbPath     string
	rebuild    bool
	peers      []string
	withNode   bool
	secretPath string
	name       string
}

func main() {
	fl := &rootFlags{}

	if err := logging.Configure(logging.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "tallyaux",
		Short:         "Auxiliary console for a tally ledger node",
		Version:       buildinfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ui.ConfigureInteraction(false)
			return logging.Configure(fl.logLevel)
		},
	}

	root.PersistentFlags().StringVar(&fl.mode, "mode", "auto", "Run mode: auto, light, or with-config")
	root.PersistentFlags().StringVar(&fl.configPath, "config", "", "Node config path (default: ~/.config/tally/node.yaml)")
	root.PersistentFlags().StringVar(&fl.logLevel, "log-level", logging.LevelWarn, "Log verbosity: debug, info, warn, error")
	root.PersistentFlags().StringVar(&fl.dbPath, "db", "", "Chain database path (default: fresh temporary directory)")
	root.PersistentFlags().BoolVar(&fl.rebuild, "rebuild", false, "Drop existing chain state before the run")
	root.PersistentFlags().StringArrayVar(&fl.peers, "peer", nil, "Peer address host:port, repeatable")
	root.PersistentFlags().BoolVar(&fl.withNode, "with-node", false, "Run the node background workers alongside the session")
	root.PersistentFlags().StringVar(&fl.secretPath, "secret", "", "Signing secret path (default: next to the node config)")
	root.PersistentFlags().StringVar(&fl.name, "name", "", "Node name advertised to peers")

	root.AddCommand(replCmd(fl))
	root.AddCommand(runCmd(fl))
	root.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func replCmd(fl *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive console session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return hostSession(cmd.Context(), fl, aux.Plugin{
				Name:     "repl",
				WithNode: fl.withNode,
				Action: func(ctx context.Context, env aux.Env) error {
					return runREPL(ctx, env, cmd.InOrStdin(), cmd.OutOrStdout())
				},
			})
		},
	}
}

func runCmd(fl *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <command> [args...]",
		Short: "Execute one console command and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return hostSession(cmd.Context(), fl, aux.Plugin{
				Name:     "batch",
				WithNode: fl.withNode,
				Action: func(ctx context.Context, env aux.Env) error {
					return runBatch(ctx, env, cmd.OutOrStdout(), strings.Join(args, " "))
				},
			})
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			pairs := []ui.Pair{ui.KV("version", buildinfo.Version)}
			if buildinfo.Commit != "" {
				pairs = append(pairs, ui.KV("commit", buildinfo.Commit))
			}
			pairs = append(pairs, ui.KV("protocol", strconv.FormatUint(uint64(tally.ProtocolVersion), 10)))
			fmt.Fprint(cmd.OutOrStdout(), ui.KeyValues("", pairs...))
		},
	}
}

// hostSession bootstraps a run per the flags and hosts the plugin inside
// its scope.
func hostSession(ctx context.Context, fl *rootFlags, plugin aux.Plugin) error {
	mode, err := aux.ParseRunMode(fl.mode)
	if err != nil {
		return err
	}
	peers, err := parsePeers(fl.peers)
	if err != nil {
		return err
	}
	secret, err := loadOrCreateSecret(fl.secretPath)
	if err != nil {
		return err
	}

	tp := telemetry.NewProvider()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	o := aux.New(mode, fl.configPath, aux.NodeParameters{
		DBPath:   fl.dbPath,
		Rebuild:  fl.rebuild,
		SelfName: fl.name,
		Peers:    peers,
		Secret:   secret,
	}, aux.WithTracer(tp.Tracer("tallyaux/bootstrap")))
	return o.Run(ctx, plugin)
}

// parsePeers accepts host:port specs, falling back to the protocol
// default port for bare addresses.
func parsePeers(specs []string) ([]netip.AddrPort, error) {
	peers := make([]netip.AddrPort, 0, len(specs))
	for _, spec := range specs {
		ap, err := netip.ParseAddrPort(spec)
		if err != nil {
			addr, addrErr := netip.ParseAddr(spec)
			if addrErr != nil {
				return nil, fmt.Errorf("peer %q: %w", spec, err)
			}
			ap = netip.AddrPortFrom(addr, tally.DefaultPort)
		}
		peers = append(peers, ap)
	}
	return peers, nil
}
