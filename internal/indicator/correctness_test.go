package indicator

import (
	"math"
	"math/rand"
	"testing"

	"ohlcv-features/internal/series"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// assertSeries checks defined-ness and value of every cell; NaN in want
// marks an expected undefined cell.
func assertSeries(t *testing.T, label string, got series.Series, want []float64, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: len=%d, want %d", label, len(got), len(want))
	}
	for i, w := range want {
		v, ok := got.Get(i)
		if math.IsNaN(w) {
			if ok {
				t.Errorf("%s[%d]: got %.6f, want undefined", label, i, v)
			}
			continue
		}
		if !ok {
			t.Errorf("%s[%d]: undefined, want %.6f", label, i, w)
			continue
		}
		assertClose(t, label, v, w, tol)
	}
}

var nan = math.NaN()

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA after bar 3: (100+102+104)/3 = 102
	// SMA after bar 4: (102+104+103)/3 = 103
	// SMA after bar 5: (104+103+105)/3 = 104
	x := series.FromFloats([]float64{100, 102, 104, 103, 105})
	assertSeries(t, "SMA(3)", sma(x, 3), []float64{nan, nan, 102, 103, 104}, 1e-9)
}

func TestSMA_GapResetsWindow(t *testing.T) {
	// The gap at index 2 empties the window; index 5 is the first bar with
	// three consecutive defined inputs after it.
	x := series.FromFloats([]float64{1, 2, nan, 4, 5, 6, 7})
	assertSeries(t, "SMA(3)", sma(x, 3), []float64{nan, nan, nan, nan, nan, 5, 6}, 1e-9)
}

func TestSMA_DefinedIffWindowValid(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	raw := make([]float64, 500)
	for i := range raw {
		raw[i] = rng.Float64() * 100
		if rng.Intn(15) == 0 {
			raw[i] = nan
		}
	}
	x := series.FromFloats(raw)
	for _, n := range []int{1, 2, 5, 20} {
		got := sma(x, n)
		for i := range raw {
			want := i >= n-1
			for j := i - n + 1; want && j <= i; j++ {
				want = !math.IsNaN(raw[j])
			}
			if got.Defined(i) != want {
				t.Fatalf("n=%d i=%d: defined=%v, want %v", n, i, got.Defined(i), want)
			}
		}
	}
}

// ────────────────────────────────────────────────────────────
// EMA / RMA Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// k = 2/(3+1) = 0.5
	// Seed at bar 3: SMA(10,11,12) = 11
	// Bar 4: (13-11)*0.5+11 = 12
	// Bar 5: (14-12)*0.5+12 = 13
	x := series.FromFloats([]float64{10, 11, 12, 13, 14})
	assertSeries(t, "EMA(3)", ema(x, 3), []float64{nan, nan, 11, 12, 13}, 1e-9)
}

func TestRMA_Correctness_Period3(t *testing.T) {
	// Seed: (3+6+9)/3 = 6
	// Next: (6*2+12)/3 = 8
	// Next: (8*2+2)/3 = 6
	x := series.FromFloats([]float64{3, 6, 9, 12, 2})
	assertSeries(t, "RMA(3)", rma(x, 3), []float64{nan, nan, 6, 8, 6}, 1e-9)
}

func TestEMA_RMA_ReseedAfterGap(t *testing.T) {
	x := series.FromFloats([]float64{50, 60, 70, 80, nan, 1, 2, 3, 4})
	fresh := series.FromFloats([]float64{1, 2, 3, 4})

	for name, fn := range map[string]func(series.Series, int) series.Series{"EMA": ema, "RMA": rma} {
		got := fn(x, 3)
		want := fn(fresh, 3)
		if got.Defined(5) || got.Defined(6) {
			t.Errorf("%s: defined before the window refilled", name)
		}
		for i := 2; i < 4; i++ {
			v, _ := got.Get(5 + i)
			w, _ := want.Get(i)
			assertClose(t, name+" after gap", v, w, 1e-12)
		}
	}
}

// ────────────────────────────────────────────────────────────
// StdDev Correctness
// ────────────────────────────────────────────────────────────

func TestStdDev_Population(t *testing.T) {
	// Window (2,4,4,4,5,5,7,9): mean 5, population variance 4, sd 2.
	x := series.FromFloats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	got := stddev(x, 8)
	v, ok := got.Get(7)
	if !ok {
		t.Fatal("stddev undefined at full window")
	}
	assertClose(t, "StdDev(8)", v, 2, 1e-9)
	if got.Defined(6) {
		t.Error("stddev defined before window full")
	}
}

func TestStdDev_ConstantIsZero(t *testing.T) {
	x := series.FromFloats([]float64{3.3, 3.3, 3.3, 3.3, 3.3, 3.3})
	got := stddev(x, 4)
	for i := 3; i < len(x); i++ {
		v, ok := got.Get(i)
		if !ok || v < 0 || v > 1e-6 {
			t.Errorf("stddev[%d] = %v,%v; want ~0", i, v, ok)
		}
	}
}

// ────────────────────────────────────────────────────────────
// Rolling Max/Min
// ────────────────────────────────────────────────────────────

func naiveExtremum(raw []float64, n int, max bool) []float64 {
	out := make([]float64, len(raw))
	for i := range raw {
		out[i] = nan
		if i < n-1 {
			continue
		}
		best, ok := 0.0, true
		for j := i - n + 1; j <= i; j++ {
			if math.IsNaN(raw[j]) {
				ok = false
				break
			}
			if j == i-n+1 || (max && raw[j] > best) || (!max && raw[j] < best) {
				best = raw[j]
			}
		}
		if ok {
			out[i] = best
		}
	}
	return out
}

func TestExtremum_MatchesNaive(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 30; trial++ {
		raw := make([]float64, 300+rng.Intn(200))
		for i := range raw {
			// Coarse values force ties.
			raw[i] = float64(rng.Intn(50))
			if trial%3 == 0 && rng.Intn(40) == 0 {
				raw[i] = nan
			}
		}
		x := series.FromFloats(raw)
		for _, n := range []int{1, 2, 3, 7, 20, 55, 200} {
			assertSeries(t, "max", rollMax(x, n), naiveExtremum(raw, n, true), 0)
			assertSeries(t, "min", rollMin(x, n), naiveExtremum(raw, n, false), 0)
		}
	}
}

func TestExtremum_RandomWindows(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	raw := make([]float64, 400)
	for i := range raw {
		raw[i] = rng.NormFloat64()
	}
	x := series.FromFloats(raw)
	for n := 1; n <= 200; n += 1 + rng.Intn(9) {
		assertSeries(t, "max", rollMax(x, n), naiveExtremum(raw, n, true), 0)
		assertSeries(t, "min", rollMin(x, n), naiveExtremum(raw, n, false), 0)
	}
}

// ────────────────────────────────────────────────────────────
// RSI Correctness
// ────────────────────────────────────────────────────────────

func TestRSI_RisingSeriesIs100(t *testing.T) {
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	got := RSISeries(series.FromFloats(closes), 14)
	for i := 0; i < 14; i++ {
		if got.Defined(i) {
			t.Errorf("rsi[%d] defined before seed", i)
		}
	}
	v, ok := got.Get(14)
	if !ok || v != 100 {
		t.Errorf("rsi at seed = %v,%v; want exactly 100", v, ok)
	}
}

func TestRSI_Correctness_Period3(t *testing.T) {
	// Closes: 10, 12, 11, 13, 12
	// Deltas: +2, -1, +2, -1
	// Seed at bar 3: gain=4/3, loss=1/3 → RS=4 → RSI=80
	// Bar 4: gain=(4/3*2+0)/3=8/9, loss=(1/3*2+1)/3=5/9 → RS=1.6 → RSI=61.538462
	got := RSISeries(series.FromFloats([]float64{10, 12, 11, 13, 12}), 3)
	assertSeries(t, "RSI(3)", got, []float64{nan, nan, nan, 80, 61.538462}, 1e-6)
}

func TestRSI_GapAfterSeedCarriesAverages(t *testing.T) {
	// Seed as above (gain 4/3, loss 1/3). Bar 4 is undefined so bars 4 and
	// 5 blank; bar 6 continues from the seed averages with delta +1:
	// gain=(4/3*2+1)/3=11/9, loss=(1/3*2)/3=2/9 → RS=5.5 → RSI=84.615385
	x := series.FromFloats([]float64{10, 12, 11, 13, nan, 14, 15})
	got := RSISeries(x, 3)
	assertSeries(t, "RSI(3)", got, []float64{nan, nan, nan, 80, nan, nan, 84.615385}, 1e-6)
}

func TestRSI_GapInSeedNeverSeeds(t *testing.T) {
	x := series.FromFloats([]float64{10, 11, nan, 13, 14, 15, 16, 17, 18})
	got := RSISeries(x, 3)
	for i := range x {
		if got.Defined(i) {
			t.Errorf("rsi[%d] defined after broken seed", i)
		}
	}
}
