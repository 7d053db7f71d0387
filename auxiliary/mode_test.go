package aux

import (
	"errors"
	"io/fs"
	"testing"

	"tally/config"
)

func TestClassifyConfigErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errClass
	}{
		{"missing file", fs.ErrNotExist, classRecoverable},
		{"wrapped missing file", errors.Join(errors.New("read node config"), fs.ErrNotExist), classRecoverable},
		{"parse failure", &config.ParseError{Path: "x", Err: errors.New("bad yaml")}, classRecoverable},
		{"validation failure", &config.ValidationError{Field: "node-name", Reason: "empty"}, classRecoverable},
		{"anything else", errors.New("disk on fire"), classFatal},
		{"permission denied", fs.ErrPermission, classFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyConfigErr(tt.err); got != tt.want {
				t.Fatalf("classifyConfigErr(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestResolveLightNeverLoads(t *testing.T) {
	loads := 0
	res, err := resolveMode(ModeLight, "", func(string) (*config.Config, error) {
		loads++
		return config.Light(), nil
	})
	if err != nil {
		t.Fatalf("resolveMode(light) error = %v", err)
	}
	if res.HasConfig() {
		t.Fatal("light mode produced a configuration")
	}
	if loads != 0 {
		t.Fatalf("light mode loaded configuration %d times", loads)
	}
}

func TestResolveAutomaticFallsBack(t *testing.T) {
	recoverables := []error{
		fs.ErrNotExist,
		&config.ParseError{Path: "node.yaml", Err: errors.New("bad yaml")},
		&config.ValidationError{Field: "slot-duration", Reason: "must be positive"},
	}
	for _, loadErr := range recoverables {
		res, err := resolveMode(ModeAutomatic, "", func(string) (*config.Config, error) {
			return nil, loadErr
		})
		if err != nil {
			t.Fatalf("resolveMode(auto) with %v: error = %v, want fallback", loadErr, err)
		}
		if res.HasConfig() {
			t.Fatalf("resolveMode(auto) with %v produced a configuration", loadErr)
		}
	}
}

func TestResolveAutomaticPropagatesUnknownFailure(t *testing.T) {
	boom := errors.New("disk on fire")
	_, err := resolveMode(ModeAutomatic, "", func(string) (*config.Config, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("resolveMode(auto) error = %v, want %v propagated", err, boom)
	}
}

func TestResolveWithConfigIsStrict(t *testing.T) {
	// Even a recoverable failure kind is fatal under an explicit request.
	loadErr := &config.ParseError{Path: "node.yaml", Err: errors.New("bad yaml")}
	_, err := resolveMode(ModeWithConfig, "", func(string) (*config.Config, error) {
		return nil, loadErr
	})
	var perr *config.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("resolveMode(with-config) error = %v, want parse failure propagated", err)
	}
}

func TestParseRunMode(t *testing.T) {
	for s, want := range map[string]RunMode{
		"":            ModeAutomatic,
		"auto":        ModeAutomatic,
		"light":       ModeLight,
		"with-config": ModeWithConfig,
	} {
		got, err := ParseRunMode(s)
		if err != nil || got != want {
			t.Fatalf("ParseRunMode(%q) = %v, %v, want %v", s, got, err, want)
		}
	}
	if _, err := ParseRunMode("turbo"); err == nil {
		t.Fatal("ParseRunMode(turbo) succeeded, want error")
	}
}
