package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jlatone/block2-preview/wick"
)

func TestParseTables(t *testing.T) {
	idxFlags = []string{"IA:pq", "E:ab"}
	permFlags = []string{"v/4:qcchem"}
	defer func() { idxFlags, permFlags = nil, nil }()

	tm, pm, err := parseTables()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if got := tm[wick.IndexInactive|wick.IndexActive]; len(got) != 2 {
		t.Fatalf("%v, expected 2 indices", got)
	}
	if got := pm[wick.PermKey{Name: "v", N: 4}]; len(got) != 3 {
		t.Fatalf("%d generators, expected 3", len(got))
	}

	permFlags = []string{"w/4:bogus"}
	if _, _, err := parseTables(); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestExpandCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader("SUM <ij> h[ij] D[i] C[j]\n"))
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"expand", "--idx", "I:ij"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%+v", err)
	}
	if !strings.HasPrefix(out.String(), "EXPR /") {
		t.Fatalf("%q, expected an expression listing", out.String())
	}
	if !strings.Contains(out.String(), "h[") {
		t.Fatalf("%q, expected the coefficient tensor to survive", out.String())
	}
}
