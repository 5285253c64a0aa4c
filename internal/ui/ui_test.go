package ui

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/papapumpkin/strata/internal/compat"
	"github.com/papapumpkin/strata/internal/forge"
)

// captureStderr redirects os.Stderr to a pipe and returns the captured output.
func captureStderr(fn func()) string {
	r, w, _ := os.Pipe()
	orig := os.Stderr
	os.Stderr = w

	fn()

	w.Close()
	os.Stderr = orig

	out, _ := io.ReadAll(r)
	r.Close()
	return string(out)
}

func TestValidateResult_OK(t *testing.T) {
	p := New()
	output := captureStderr(func() {
		p.ValidateResult("Critters", 100, nil)
	})
	if !strings.Contains(output, `collection "Critters"`) || !strings.Contains(output, "100 edition(s), no errors") {
		t.Errorf("unexpected output:\n%s", output)
	}
}

func TestValidateResult_Errors(t *testing.T) {
	p := New()
	output := captureStderr(func() {
		p.ValidateResult("Critters", 100, []error{errors.New("layer Hair has no traits"), errors.New("duplicate layer")})
	})

	checks := []string{"2 error(s)", "layer Hair has no traits", "duplicate layer"}
	for _, c := range checks {
		if !strings.Contains(output, c) {
			t.Errorf("expected output to contain %q, got:\n%s", c, output)
		}
	}
}

func TestPlan(t *testing.T) {
	p := New()
	plan := &forge.Plan{Configs: []forge.ConfigPlan{{
		Index: 0, Name: "Critter", Size: 10, MaxCombinations: 6,
		Layers: []forge.LayerPlan{{Name: "Hair", Traits: []forge.TraitPlan{
			{Name: "BlueHair", Raw: "Rare", Weight: 3},
			{Name: "GoldHair", Raw: "5", Weight: 7, Locked: true},
		}}},
	}}}
	output := captureStderr(func() { p.Plan(plan) })

	checks := []string{"configuration 0 (Critter)", "10 editions, 6 combinations", "Hair", "BlueHair", "Rare", "locked"}
	for _, c := range checks {
		if !strings.Contains(output, c) {
			t.Errorf("expected output to contain %q, got:\n%s", c, output)
		}
	}
}

func TestCombos(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "no"},
		{42, "42"},
		{1 << 60, "too many"},
	}
	for _, tt := range tests {
		if got := combos(tt.n); got != tt.want {
			t.Errorf("combos(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestRules(t *testing.T) {
	p := New()
	audit := compat.Audit{Rules: []compat.RuleRecord{
		{Child: "BlueHair", IncompatibleParents: []string{"RedSkin"}, ParentIndex: 0, ChildIndex: 1, MaxCount: 40},
		{Child: "GoldCrown", Parents: []string{"GoldOutfit"}, Forced: true, Retired: true, ParentIndex: 0, ChildIndex: 1},
	}}
	output := captureStderr(func() { p.Rules(audit) })

	checks := []string{"BlueHair", "incompatible with", "RedSkin", "max 40", "GoldCrown", "forced with", "GoldOutfit", "retired"}
	for _, c := range checks {
		if !strings.Contains(output, c) {
			t.Errorf("expected output to contain %q, got:\n%s", c, output)
		}
	}
}

func TestRules_Empty(t *testing.T) {
	p := New()
	output := captureStderr(func() { p.Rules(compat.Audit{}) })
	if !strings.Contains(output, "(no rules)") {
		t.Errorf("expected empty marker, got:\n%s", output)
	}
}

func TestProgressLine(t *testing.T) {
	got := ProgressLine(forge.Progress{Config: 1, Generated: 3, Size: 5, Done: 13, Total: 15})
	want := "[strata] 13/15 editions | configuration 1: 3/5"
	if got != want {
		t.Errorf("ProgressLine = %q, want %q", got, want)
	}
}

func TestProgress_UsesCarriageReturn(t *testing.T) {
	p := New()
	output := captureStderr(func() {
		p.Progress(forge.Progress{Done: 1, Total: 2, Generated: 1, Size: 2})
		p.ProgressDone()
	})
	if !strings.HasPrefix(output, "\r") {
		t.Errorf("progress should start with \\r, got %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Errorf("ProgressDone should end the line, got %q", output)
	}
}

func TestRunDone(t *testing.T) {
	p := New()
	res := &forge.Result{
		RunID: "run-1", Seed: 9, RetriesUsed: 2,
		Editions: make([]forge.Edition, 15),
		Configs: []forge.ConfigResult{
			{Index: 0, Generated: 3, Replayed: 7, Retries: 2},
			{Index: 1, Generated: 5},
		},
	}
	output := captureStderr(func() { p.RunDone(res) })

	checks := []string{"run run-1 complete", "15 edition(s)", "seed 9", "configuration 0: 3 generated, 7 replayed, 2 collision(s)", "configuration 1: 5 generated"}
	for _, c := range checks {
		if !strings.Contains(output, c) {
			t.Errorf("expected output to contain %q, got:\n%s", c, output)
		}
	}
}

func TestRarity(t *testing.T) {
	p := New()
	output := captureStderr(func() {
		p.Rarity([]forge.LayerBreakdown{{Layer: "Skin", Traits: []forge.TraitCount{
			{Name: "RedSkin", Count: 3, Percent: 75},
			{Name: "GreenSkin", Count: 1, Percent: 25},
		}}})
	})

	checks := []string{"Skin", "RedSkin", "75.00% (3)", "GreenSkin", "25.00% (1)", strings.Repeat("█", 18)}
	for _, c := range checks {
		if !strings.Contains(output, c) {
			t.Errorf("expected output to contain %q, got:\n%s", c, output)
		}
	}
}
