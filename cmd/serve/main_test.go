package main

import (
	"testing"

	"github.com/paulmach/orb"
)

func Test_parseCenter(t *testing.T) {
	got, err := parseCenter("-93.26, 44.98")
	if err != nil {
		t.Fatal(err)
	}
	if got != (orb.Point{-93.26, 44.98}) {
		t.Errorf("parseCenter() = %v", got)
	}

	for _, s := range []string{"", "1", "a,b", "1,2,3"} {
		if _, err := parseCenter(s); err == nil {
			t.Errorf("parseCenter(%q) succeeded", s)
		}
	}
}
