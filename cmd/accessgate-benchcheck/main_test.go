package main

import (
	"strings"
	"testing"
)

const baselineOutput = `goos: linux
goarch: amd64
pkg: github.com/MrEthical07/accessgate
BenchmarkValidateAccess-8        500000   2000 ns/op   900 B/op   12 allocs/op
BenchmarkValidateAccess-8        500000   2200 ns/op   900 B/op   12 allocs/op
BenchmarkValidateAccess-8        500000   2100 ns/op   900 B/op   12 allocs/op
BenchmarkLogin-8                     100   9000000 ns/op
BenchmarkLoginWrongPassword-8        100   9500000 ns/op
BenchmarkUnrelated-8                 100   1 ns/op
PASS
`

func TestParseKeepsTrackedBenchmarks(t *testing.T) {
	s, err := parse(strings.NewReader(baselineOutput))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := len(s["BenchmarkValidateAccess"]["ns/op"]); got != 3 {
		t.Fatalf("validate samples = %d, want 3", got)
	}
	if _, ok := s["BenchmarkUnrelated"]; ok {
		t.Fatal("untracked benchmark kept")
	}
	if got := median(s["BenchmarkValidateAccess"]["ns/op"]); got != 2100 {
		t.Fatalf("median = %v, want 2100", got)
	}
}

func TestCompare(t *testing.T) {
	base, _ := parse(strings.NewReader(baselineOutput))

	same, _ := parse(strings.NewReader(baselineOutput))
	if _, failures := compare(base, same, defaultThreshold); len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}

	slower := strings.ReplaceAll(baselineOutput, "9000000 ns/op", "13000000 ns/op")
	cand, _ := parse(strings.NewReader(slower))
	rows, failures := compare(base, cand, defaultThreshold)
	if len(failures) != 1 || !strings.Contains(failures[0], "BenchmarkLogin ns/op") {
		t.Fatalf("failures = %v", failures)
	}
	if len(rows) != 4 || rows[0].benchmark != "BenchmarkLogin" {
		t.Fatalf("rows not sorted by name: %+v", rows)
	}

	missing, _ := parse(strings.NewReader("BenchmarkLogin-8 100 9000000 ns/op\n"))
	if _, failures := compare(base, missing, defaultThreshold); len(failures) == 0 {
		t.Fatal("expected missing-sample failures")
	}
}

func TestTrimProcs(t *testing.T) {
	cases := map[string]string{
		"BenchmarkLogin-16":   "BenchmarkLogin",
		"BenchmarkLogin":      "BenchmarkLogin",
		"BenchmarkLogin-fast": "BenchmarkLogin-fast",
	}
	for in, want := range cases {
		if got := trimProcs(in); got != want {
			t.Fatalf("trimProcs(%q) = %q, want %q", in, got, want)
		}
	}
}
