package main

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"tally"
	aux "tally/auxiliary"
	"tally/cmd/tallyaux/ui"
	"tally/internal/buildinfo"
)

// errNodeRequired marks commands that need the full node stack behind
// them while the run is standalone.
var errNodeRequired = errors.New("node required: run without --mode light")

const waitSyncProbe = 500 * time.Millisecond

// session executes console commands against one run environment. The
// environment's Logic and Diffusion are only valid while the hosted
// action runs, which is exactly the session's lifetime.
type session struct {
	env aux.Env
	out io.Writer
}

func newSession(env aux.Env, out io.Writer) *session {
	return &session{env: env, out: out}
}

// execute runs a single command line. quit reports that the session
// should end; a command error never ends it.
func (s *session) execute(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "help":
		s.help()
		return false, nil
	case "tip":
		return false, s.tip(ctx)
	case "sync":
		return false, s.sync(ctx)
	case "peers":
		return false, s.peers()
	case "submit":
		return false, s.submit(ctx, args)
	case "wait-sync":
		return false, s.waitSync(ctx)
	case "version":
		s.version()
		return false, nil
	case "bye", "exit", "quit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q, try help", cmd)
	}
}

func (s *session) requireNode() error {
	if s.env.Standalone() {
		return errNodeRequired
	}
	return nil
}

func (s *session) help() {
	fmt.Fprint(s.out, ui.KeyValues("  ",
		ui.KV("help", "show this list"),
		ui.KV("tip", "best known chain tip"),
		ui.KV("sync", "sync judgement against the wall clock"),
		ui.KV("peers", "configured peers and their state"),
		ui.KV("submit <slot> <message>", "sign and submit a block extending the tip"),
		ui.KV("wait-sync", "block until the node judges itself in sync"),
		ui.KV("version", "console and protocol versions"),
		ui.KV("bye", "end the session"),
	))
}

func (s *session) tip(ctx context.Context) error {
	if err := s.requireNode(); err != nil {
		return err
	}

	tip, err := s.env.Logic.Tip(ctx)
	if err != nil {
		return err
	}
	if tip.Hash.IsZero() {
		fmt.Fprintln(s.out, ui.InfoMsg("Chain is empty."))
		return nil
	}
	fmt.Fprint(s.out, ui.KeyValues("",
		ui.KV("hash", tip.Hash.String()),
		ui.KV("slot", strconv.FormatUint(tip.Slot, 10)),
		ui.KV("height", strconv.FormatUint(tip.Height, 10)),
	))
	return nil
}

func (s *session) sync(ctx context.Context) error {
	if err := s.requireNode(); err != nil {
		return err
	}

	st := s.env.Logic.SyncState(ctx)
	verdict := ui.WarnMsg("Behind the wall clock.")
	if st.InSync {
		verdict = ui.SuccessMsg("In sync.")
	}
	fmt.Fprintln(s.out, verdict)
	fmt.Fprint(s.out, ui.KeyValues("  ",
		ui.KV("tip slot", strconv.FormatUint(st.TipSlot, 10)),
		ui.KV("wall slot", strconv.FormatUint(st.WallSlot, 10)),
		ui.KV("clock skew", st.ClockSkew.String()),
	))
	return nil
}

func (s *session) peers() error {
	if err := s.requireNode(); err != nil {
		return err
	}

	peers := s.env.Diffusion.Peers()
	if len(peers) == 0 {
		fmt.Fprintln(s.out, ui.InfoMsg("No peers configured."))
		return nil
	}

	rows := make([][]string, 0, len(peers))
	for _, p := range peers {
		version := "-"
		if p.Version != 0 {
			version = strconv.FormatUint(uint64(p.Version), 10)
		}
		seen := "never"
		if !p.LastSeen.IsZero() {
			seen = time.Since(p.LastSeen).Truncate(time.Second).String() + " ago"
		}
		rows = append(rows, []string{p.Addr.String(), version, seen})
	}
	fmt.Fprintln(s.out, ui.Table([]string{"ADDRESS", "VERSION", "LAST SEEN"}, rows))
	return nil
}

// submit signs the message with the console secret and hands the block
// first to local logic, then to the network. The payload carries the
// signature followed by the message bytes.
func (s *session) submit(ctx context.Context, args []string) error {
	if err := s.requireNode(); err != nil {
		return err
	}
	if len(args) < 2 {
		return errors.New("usage: submit <slot> <message>")
	}
	if len(s.env.Secret) == 0 {
		return errors.New("no signing secret in this run")
	}

	slot, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("slot %q: %w", args[0], err)
	}
	message := []byte(strings.Join(args[1:], " "))

	tip, err := s.env.Logic.Tip(ctx)
	if err != nil {
		return err
	}

	b := tally.Block{
		Header: tally.BlockHeader{
			Parent: tip.Hash,
			Slot:   slot,
			Height: tip.Height + 1,
		},
		Payload: append(ed25519.Sign(s.env.Secret, message), message...),
	}

	if err := s.env.Logic.AcceptBlock(ctx, b); err != nil {
		return fmt.Errorf("extend local chain: %w", err)
	}
	if err := s.env.Diffusion.SubmitBlock(ctx, b); err != nil {
		fmt.Fprintln(s.out, ui.WarnMsg("Accepted locally, network submission failed: %v", err))
		return nil
	}
	fmt.Fprintln(s.out, ui.SuccessMsg("Block %s at height %d submitted.",
		ui.Bold(b.Header.Hash().String()[:12]), b.Header.Height))
	return nil
}

func (s *session) waitSync(ctx context.Context) error {
	if err := s.requireNode(); err != nil {
		return err
	}

	st := s.env.Logic.SyncState(ctx)
	if st.InSync {
		fmt.Fprintln(s.out, ui.SuccessMsg("Already in sync."))
		return nil
	}
	fmt.Fprintln(s.out, ui.InfoMsg("Waiting for sync, tip slot %d, wall slot %d.", st.TipSlot, st.WallSlot))

	ticker := time.NewTicker(waitSyncProbe)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if st := s.env.Logic.SyncState(ctx); st.InSync {
				fmt.Fprintln(s.out, ui.SuccessMsg("In sync at slot %d.", st.TipSlot))
				return nil
			}
		}
	}
}

func (s *session) version() {
	pairs := []ui.Pair{
		ui.KV("version", buildinfo.Version),
	}
	if buildinfo.Commit != "" {
		pairs = append(pairs, ui.KV("commit", buildinfo.Commit))
	}
	pairs = append(pairs,
		ui.KV("protocol", strconv.FormatUint(uint64(tally.ProtocolVersion), 10)),
		ui.KV("run", s.runKind()),
	)
	fmt.Fprint(s.out, ui.KeyValues("", pairs...))
}

func (s *session) runKind() string {
	if s.env.Standalone() {
		return "standalone"
	}
	if s.env.TempDB {
		return "node (temporary db)"
	}
	return "node"
}

// runREPL reads command lines until EOF, bye, or cancellation. Command
// failures are reported and the loop continues.
func runREPL(ctx context.Context, env aux.Env, in io.Reader, out io.Writer) error {
	s := newSession(env, out)

	if ui.IsInteractive() {
		fmt.Fprintf(out, "%s %s\n", ui.Bold("tally aux console"), ui.Muted("("+s.runKind()+")"))
		fmt.Fprintln(out, ui.Muted("Type help for commands, bye to leave."))
	}

	scanner := bufio.NewScanner(in)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if ui.IsInteractive() {
			fmt.Fprint(out, ui.Prompt())
		}
		if !scanner.Scan() {
			return scanner.Err()
		}

		quit, err := s.execute(ctx, scanner.Text())
		if err != nil {
			fmt.Fprintln(out, ui.ErrorMsg("%v", err))
		}
		if quit {
			return nil
		}
	}
}

// runBatch executes exactly one command line.
func runBatch(ctx context.Context, env aux.Env, out io.Writer, line string) error {
	_, err := newSession(env, out).execute(ctx, line)
	return err
}
