package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"strings"
	"testing"

	"tally"
	aux "tally/auxiliary"
	"tally/cmd/tallyaux/ui"
)

type memLogic struct {
	tip      tally.Tip
	state    tally.SyncState
	accepted []tally.Block
}

func (l *memLogic) Tip(context.Context) (tally.Tip, error) { return l.tip, nil }

func (l *memLogic) SyncState(context.Context) tally.SyncState { return l.state }

func (l *memLogic) AcceptBlock(_ context.Context, b tally.Block) error {
	l.accepted = append(l.accepted, b)
	l.tip = tally.Tip{Hash: b.Header.Hash(), Slot: b.Header.Slot, Height: b.Header.Height}
	return nil
}

type memDiffusion struct {
	submitted []tally.Block
	peers     []tally.PeerStatus
}

func (d *memDiffusion) AnnounceTip(context.Context, tally.Tip) error { return nil }

func (d *memDiffusion) SubmitBlock(_ context.Context, b tally.Block) error {
	d.submitted = append(d.submitted, b)
	return nil
}

func (d *memDiffusion) RequestTip(context.Context) (tally.Tip, error) { return tally.Tip{}, nil }

func (d *memDiffusion) Peers() []tally.PeerStatus { return d.peers }

func nodeEnv(lg *memLogic, df *memDiffusion, secret ed25519.PrivateKey) aux.Env {
	return aux.Env{
		RunContext: aux.RunContext{SelfName: "aux", Secret: secret},
		Logic:      lg,
		Diffusion:  df,
	}
}

func TestSessionRefusesNodeCommandsStandalone(t *testing.T) {
	ui.ConfigureInteraction(true)
	var out bytes.Buffer
	s := newSession(aux.Env{RunContext: aux.RunContext{SelfName: "aux"}}, &out)

	for _, cmd := range []string{"tip", "sync", "peers", "submit 1 x", "wait-sync"} {
		_, err := s.execute(context.Background(), cmd)
		if !errors.Is(err, errNodeRequired) {
			t.Fatalf("%q error = %v, want node required", cmd, err)
		}
	}
}

func TestSessionTipOutput(t *testing.T) {
	ui.ConfigureInteraction(true)
	lg := &memLogic{}
	var out bytes.Buffer
	s := newSession(nodeEnv(lg, &memDiffusion{}, nil), &out)

	if _, err := s.execute(context.Background(), "tip"); err != nil {
		t.Fatalf("tip: %v", err)
	}
	if !strings.Contains(out.String(), "Chain is empty.") {
		t.Fatalf("empty chain output = %q", out.String())
	}

	out.Reset()
	header := tally.BlockHeader{Slot: 3, Height: 1}
	lg.tip = tally.Tip{Hash: header.Hash(), Slot: 3, Height: 1}
	if _, err := s.execute(context.Background(), "tip"); err != nil {
		t.Fatalf("tip: %v", err)
	}
	if !strings.Contains(out.String(), header.Hash().String()) {
		t.Fatalf("tip output %q misses hash", out.String())
	}
}

func TestSessionSubmitSignsAndGossips(t *testing.T) {
	ui.ConfigureInteraction(true)
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}

	parent := tally.BlockHeader{Slot: 1, Height: 1}
	lg := &memLogic{tip: tally.Tip{Hash: parent.Hash(), Slot: 1, Height: 1}}
	df := &memDiffusion{}
	var out bytes.Buffer
	s := newSession(nodeEnv(lg, df, priv), &out)

	if _, err := s.execute(context.Background(), "submit 5 hello world"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if len(lg.accepted) != 1 || len(df.submitted) != 1 {
		t.Fatalf("accepted %d, submitted %d, want 1 each", len(lg.accepted), len(df.submitted))
	}
	b := lg.accepted[0]
	if b.Header.Parent != parent.Hash() || b.Header.Slot != 5 || b.Header.Height != 2 {
		t.Fatalf("submitted header = %+v", b.Header)
	}

	if len(b.Payload) <= ed25519.SignatureSize {
		t.Fatalf("payload too short: %d bytes", len(b.Payload))
	}
	sig, msg := b.Payload[:ed25519.SignatureSize], b.Payload[ed25519.SignatureSize:]
	if string(msg) != "hello world" {
		t.Fatalf("message = %q", msg)
	}
	if !ed25519.Verify(pub, msg, sig) {
		t.Fatal("payload signature does not verify")
	}
}

func TestSessionSubmitUsage(t *testing.T) {
	ui.ConfigureInteraction(true)
	var out bytes.Buffer
	s := newSession(nodeEnv(&memLogic{}, &memDiffusion{}, make(ed25519.PrivateKey, ed25519.PrivateKeySize)), &out)

	if _, err := s.execute(context.Background(), "submit 5"); err == nil {
		t.Fatal("submit without message succeeded")
	}
}

func TestSessionUnknownCommand(t *testing.T) {
	ui.ConfigureInteraction(true)
	var out bytes.Buffer
	s := newSession(aux.Env{}, &out)

	_, err := s.execute(context.Background(), "frobnicate")
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("error = %v, want unknown command", err)
	}
}

func TestSessionByeEndsSession(t *testing.T) {
	ui.ConfigureInteraction(true)
	var out bytes.Buffer
	s := newSession(aux.Env{}, &out)

	quit, err := s.execute(context.Background(), "bye")
	if err != nil || !quit {
		t.Fatalf("bye = (%v, %v), want quit", quit, err)
	}
}

func TestREPLRunsUntilBye(t *testing.T) {
	ui.ConfigureInteraction(true)
	lg := &memLogic{state: tally.SyncState{InSync: true}}
	var out bytes.Buffer

	in := strings.NewReader("sync\nnope\nbye\ntip\n")
	err := runREPL(context.Background(), nodeEnv(lg, &memDiffusion{}, nil), in, &out)
	if err != nil {
		t.Fatalf("runREPL: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "In sync.") {
		t.Fatalf("output %q misses sync verdict", got)
	}
	if !strings.Contains(got, "unknown command") {
		t.Fatalf("output %q misses command error", got)
	}
	if strings.Contains(got, "Chain is empty.") {
		t.Fatal("commands after bye were executed")
	}
}

func TestBatchExecutesOneCommand(t *testing.T) {
	ui.ConfigureInteraction(true)
	var out bytes.Buffer
	err := runBatch(context.Background(), nodeEnv(&memLogic{}, &memDiffusion{}, nil), &out, "tip")
	if err != nil {
		t.Fatalf("runBatch: %v", err)
	}
	if !strings.Contains(out.String(), "Chain is empty.") {
		t.Fatalf("batch output = %q", out.String())
	}
}

func TestParsePeers(t *testing.T) {
	peers, err := parsePeers([]string{"10.0.0.1:3001", "10.0.0.2"})
	if err != nil {
		t.Fatalf("parsePeers: %v", err)
	}
	if peers[0].Port() != 3001 {
		t.Fatalf("explicit port = %d", peers[0].Port())
	}
	if peers[1].Port() != tally.DefaultPort {
		t.Fatalf("default port = %d, want %d", peers[1].Port(), tally.DefaultPort)
	}

	if _, err := parsePeers([]string{"not an address"}); err == nil {
		t.Fatal("bad peer spec accepted")
	}
}
