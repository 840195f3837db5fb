package closure

import (
	"context"
	stderrors "errors"
	"slices"
	"strings"
	"testing"

	"github.com/matzehuels/refcheck/pkg/artifact"
	"github.com/matzehuels/refcheck/pkg/errors"
	"github.com/matzehuels/refcheck/pkg/sandbox"
	"github.com/matzehuels/refcheck/pkg/trust"
)

func probeFixture(t *testing.T) (*fakeFacility, sandbox.Context, string) {
	t.Helper()
	dir := t.TempDir()
	root := place(t, dir, "app")
	ok := place(t, dir, "libok.so")
	f := newFake()
	f.add(root, "libc.so.6", "libok.so", "libgone.so", "libbroken.so")
	f.add(ok)
	f.resolve["libbroken.so"] = sandbox.Failed(errors.New(errors.ErrCodeEvaluation, "wrong machine"))

	sc, err := f.Create(context.Background(), "app", dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sc.Destroy() })
	return f, sc, root
}

func TestProbeReporting(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		want    []string
	}{
		{
			name: "quiet reports failures only",
			want: []string{
				"begin Testing libgone.so", "end false",
				"begin Testing libbroken.so", "detail", "end false",
			},
		},
		{
			name:    "verbose reports every attempt",
			verbose: true,
			want: []string{
				"begin Testing libok.so", "end true",
				"begin Testing libgone.so", "end false",
				"begin Testing libbroken.so", "detail", "end false",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, sc, root := probeFixture(t)
			rec := &recorder{}
			p := &Prober{Trust: trust.Default(), Reporter: rec, Verbose: tt.verbose}

			res, err := p.Probe(context.Background(), sc, root)
			if err != nil {
				t.Fatalf("Probe: %v", err)
			}
			if !slices.Equal(rec.events, tt.want) {
				t.Errorf("events = %v\nwant     %v", rec.events, tt.want)
			}
			if res.OK {
				t.Error("OK = true")
			}
			if len(res.Discovered) != 1 || !strings.HasSuffix(res.Discovered[0], "libok.so") {
				t.Errorf("Discovered = %v", res.Discovered)
			}
			if len(res.Skipped) != 1 || res.Skipped[0].Name != "libc.so.6" {
				t.Errorf("Skipped = %v", res.Skipped)
			}
		})
	}
}

func TestProbeFailureKinds(t *testing.T) {
	_, sc, root := probeFixture(t)
	res, err := (&Prober{Trust: trust.Default()}).Probe(context.Background(), sc, root)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(res.Failures) != 2 {
		t.Fatalf("Failures = %+v", res.Failures)
	}
	gone, broken := res.Failures[0], res.Failures[1]
	if gone.Kind != sandbox.KindNotFound || gone.Artifact != root {
		t.Errorf("libgone failure = %+v", gone)
	}
	if broken.Kind != sandbox.KindEvalError || broken.Reason() != "wrong machine" {
		t.Errorf("libbroken failure = %+v, reason %q", broken, broken.Reason())
	}
}

func TestProbeRecoversPanic(t *testing.T) {
	f, sc, root := probeFixture(t)
	f.panics["libgone.so"] = true
	rec := &recorder{}

	res, err := (&Prober{Trust: trust.Default(), Reporter: rec}).Probe(context.Background(), sc, root)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.Failures[0].Kind != sandbox.KindEvalError || !errors.Is(res.Failures[0].Err, errors.ErrCodeEvaluation) {
		t.Errorf("panic failure = %+v, want evaluation error", res.Failures[0])
	}
	if !strings.Contains(res.Failures[0].Err.Error(), "resolver exploded") {
		t.Errorf("panic value missing from %v", res.Failures[0].Err)
	}
	// Probing continued past the panic.
	if res.Failures[1].Dependency.Name != "libbroken.so" {
		t.Errorf("second failure = %+v", res.Failures[1])
	}
}

func TestProbeWithoutTrustTable(t *testing.T) {
	f, sc, root := probeFixture(t)
	res, err := (&Prober{}).Probe(context.Background(), sc, root)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !slices.Contains(f.resolved, "libc.so.6") {
		t.Errorf("resolved = %v, want libc.so.6 attempted with no trust table", f.resolved)
	}
	if len(res.Skipped) != 0 {
		t.Errorf("Skipped = %v", res.Skipped)
	}
}

type brokenContext struct{ sandbox.Context }

func (brokenContext) Resolve(context.Context, artifact.Declaration) (sandbox.Outcome, error) {
	return sandbox.Outcome{}, errors.New(errors.ErrCodeContextLifecycle, "worker gone")
}

func TestProbeContextErrorAborts(t *testing.T) {
	f, sc, root := probeFixture(t)
	rec := &recorder{}
	p := &Prober{Reporter: rec, Verbose: true}

	_, err := p.Probe(context.Background(), brokenContext{sc}, root)
	if !errors.Is(err, errors.ErrCodeContextLifecycle) {
		t.Fatalf("err = %v, want CONTEXT_LIFECYCLE", err)
	}
	if len(f.resolved) != 0 {
		t.Errorf("resolved = %v, want no further attempts", f.resolved)
	}
	if !slices.Equal(rec.events, []string{"begin Testing libc.so.6", "end false"}) {
		t.Errorf("events = %v", rec.events)
	}
}

func TestProbeLoadError(t *testing.T) {
	f, sc, root := probeFixture(t)
	f.loadErr[root] = stderrors.New("boom")
	if _, err := (&Prober{}).Probe(context.Background(), sc, root); err == nil {
		t.Error("Probe succeeded although the artifact failed to load")
	}
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		f    Failure
		want string
	}{
		{Failure{Kind: sandbox.KindNotFound}, "not found"},
		{Failure{Kind: sandbox.KindEvalError, Err: errors.New(errors.ErrCodeEvaluation, "bad elf")}, "bad elf"},
		{Failure{Kind: sandbox.KindEvalError, Err: stderrors.New("plain")}, "plain"},
		{
			Failure{Kind: sandbox.KindEvalError, Err: errors.Wrap(errors.ErrCodeEvaluation,
				errors.New(errors.ErrCodeInvalidFormat, "not a valid ELF binary"), "load libx.so")},
			"load libx.so: not a valid ELF binary",
		},
		{
			Failure{Kind: sandbox.KindEvalError, Err: errors.Wrap(errors.ErrCodeEvaluation, stderrors.New("EOF"), "read libx.so")},
			"read libx.so: EOF",
		},
		{Failure{Kind: sandbox.KindEvalError}, sandbox.KindEvalError.String()},
	}
	for _, tt := range tests {
		if got := tt.f.Reason(); got != tt.want {
			t.Errorf("Reason() = %q, want %q", got, tt.want)
		}
	}
}

func TestNopReporter(t *testing.T) {
	var r Reporter = NopReporter{}
	r.BeginAction("x")
	r.Detail("y")
	r.CompleteAction(true)
	if _, ok := orNop(nil).(NopReporter); !ok {
		t.Error("orNop(nil) is not a NopReporter")
	}
}
