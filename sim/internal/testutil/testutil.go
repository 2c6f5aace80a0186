// Package testutil provides shared test infrastructure for imp-sim.
// It resolves the bundled example scenarios and holds assertion helpers used
// across the sim/ test packages.
package testutil

import (
	"math"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/imp-sim/imp-sim/sim/scenario"
)

// ExamplePath returns the path of a scenario under the repository's
// examples/ directory. The path is resolved relative to this source file:
// sim/internal/testutil/ -> examples/.
func ExamplePath(t *testing.T, name string) string {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "examples", name)
}

// LoadExample loads and validates a bundled example scenario.
func LoadExample(t *testing.T, name string) *scenario.Scenario {
	t.Helper()
	sc, err := scenario.Load(ExamplePath(t, name))
	if err != nil {
		t.Fatalf("Failed to load example %s: %v", name, err)
	}
	return sc
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
