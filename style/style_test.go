package style

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestSelector_Builders(t *testing.T) {
	a := NewSelector().WithType("road").WithClass("primary").WithClass("bridge").WithAttribute("zoom", "12")
	b := NewSelector().WithAttribute("zoom", "12").WithClass("bridge").WithType("road").WithClass("primary").WithClass("bridge")

	if !a.Equal(b) {
		t.Errorf("%s != %s", a, b)
	}
	if a.String() != "road.bridge.primary[zoom=12]" {
		t.Errorf("String() = %q", a.String())
	}

	// builders never alias the receiver
	c := a.WithAttribute("zoom", "13")
	if v, _ := a.Attribute("zoom"); v != "12" {
		t.Errorf("WithAttribute mutated the receiver: zoom=%s", v)
	}
	if a.Equal(c) {
		t.Error("different attribute values must not be equal")
	}
}

func TestSelector_Matches(t *testing.T) {
	query := NewSelector().WithType("road").WithClass("primary").WithClass("bridge").WithAttribute("zoom", "12").WithID("a1")

	tests := []struct {
		name    string
		pattern Selector
		want    bool
	}{
		{"empty pattern", NewSelector(), true},
		{"type", NewSelector().WithType("road"), true},
		{"other type", NewSelector().WithType("water"), false},
		{"class subset", NewSelector().WithClass("bridge"), true},
		{"missing class", NewSelector().WithClass("tunnel"), false},
		{"attribute", NewSelector().WithAttribute("zoom", "12"), true},
		{"attribute value", NewSelector().WithAttribute("zoom", "11"), false},
		{"missing attribute", NewSelector().WithAttribute("layer", "1"), false},
		{"id", NewSelector().WithID("a1"), true},
		{"other id", NewSelector().WithID("b2"), false},
		{"everything", query, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := query.Matches(tt.pattern); got != tt.want {
				t.Errorf("%s.Matches(%s) = %v, want %v", query, tt.pattern, got, tt.want)
			}
		})
	}

	// one-directional: the bare pattern does not match the richer selector
	if NewSelector().WithType("road").Matches(query) {
		t.Error("Matches must not be symmetric")
	}
}

func TestSelector_MatchesMonotonic(t *testing.T) {
	pattern := NewSelector().WithType("water").WithAttribute("class", "lake")
	query := NewSelector().WithType("water").WithAttribute("class", "lake")
	if !query.Matches(query) || !query.Matches(pattern) {
		t.Fatal("expected a match")
	}
	for _, kv := range [][2]string{{"zoom", "3"}, {"name", "x"}, {"brunnel", "bridge"}} {
		query = query.WithAttribute(kv[0], kv[1])
		if !query.Matches(pattern) {
			t.Fatalf("adding %s turned a match into a non-match", kv[0])
		}
		if !query.Matches(query) {
			t.Fatalf("%s does not match itself", query)
		}
	}
}

func TestParse(t *testing.T) {
	src := `
/* base */
water { background-color: #0000ff; }
road.primary[zoom=12], road#m1 {
	border-color: rgba(10, 20, 30, 0.5);
	border-width: 2px;
	line-width: 3w;
	z-index: 7;
	display: none
}
* { border-color: rgb(1,2,3) ; }
building[name="Town Hall"] { background-color: #abc; }
`
	rules, err := Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 5 {
		t.Fatalf("got %d rules, want 5", len(rules))
	}

	if rules[0].Selector.String() != "water" {
		t.Errorf("rule 0 selector = %s", rules[0].Selector)
	}
	if v, _ := rules[0].Get("background-color"); !reflect.DeepEqual(v, ColorValue{0, 0, 255, 1}) {
		t.Errorf("background-color = %#v", v)
	}

	if rules[1].Selector.String() != "road.primary[zoom=12]" || rules[2].Selector.String() != "road#m1" {
		t.Errorf("selector list = %s, %s", rules[1].Selector, rules[2].Selector)
	}

	want := map[string]Value{
		"border-color": ColorValue{10, 20, 30, 0.5},
		"border-width": NumberValue{2, Px},
		"line-width":   NumberValue{3, World},
		"z-index":      NumberValue{7, Unitless},
		"display":      StringValue("none"),
	}
	for name, w := range want {
		got, ok := rules[1].Get(name)
		if !ok || !reflect.DeepEqual(got, w) {
			t.Errorf("%s = %#v, want %#v", name, got, w)
		}
	}

	if !rules[3].Selector.Equal(NewSelector()) {
		t.Errorf("universal selector parsed as %s", rules[3].Selector)
	}
	if v, ok := rules[4].Selector.Attribute("name"); !ok || v != "Town Hall" {
		t.Errorf("quoted attribute = %q", v)
	}
	if v, _ := rules[4].Get("background-color"); !reflect.DeepEqual(v, ColorValue{0xaa, 0xbb, 0xcc, 1}) {
		t.Errorf("short hex = %#v", v)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		offset int
	}{
		{"missing brace", "water background-color: red; }", 6},
		{"bad color", "water { background-color: #12; }", 26},
		{"bad unit", "water { border-width: 2pt; }", 23},
		{"unterminated block", "water { display: none;", 22},
		{"rgb range", "a { border-color: rgb(300, 0, 0); }", 22},
		{"missing colon", "a { display none; }", 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
			if pe.Offset != tt.offset {
				t.Errorf("offset = %d, want %d (%v)", pe.Offset, tt.offset, err)
			}
		})
	}
}

func TestRulesCache_MatchingRulesOrder(t *testing.T) {
	c := NewRulesCache(quietLogger())
	err := c.Load(`
road { line-width: 1px; }
water { line-width: 9px; }
road.primary { line-width: 2px; }
* { line-width: 3px; }
`)
	if err != nil {
		t.Fatal(err)
	}

	q := NewSelector().WithType("road").WithClass("primary")
	got := c.MatchingRules(q)
	var sels []string
	for _, r := range got {
		sels = append(sels, r.Selector.String())
	}
	want := []string{"road", "road.primary", "*"}
	if !reflect.DeepEqual(sels, want) {
		t.Errorf("MatchingRules = %v, want %v", sels, want)
	}
}

func TestRulesCache_LastGoodWins(t *testing.T) {
	c := NewRulesCache(quietLogger())
	if err := c.Load("water { display: none; }"); err != nil {
		t.Fatal(err)
	}
	if err := c.Load("water { display: "); err == nil {
		t.Fatal("expected parse error")
	}
	if c.Len() != 1 {
		t.Errorf("rules replaced by a failed load: %d", c.Len())
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "style.css")
	if err := os.WriteFile(path, []byte("a { display: none; } b { display: none; }"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := c.LoadFile(path); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d after LoadFile", c.Len())
	}

	if err := os.WriteFile(path, []byte("a { display"), 0644); err != nil {
		t.Fatal(err)
	}
	err := c.Reload()
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Errorf("Reload error = %v, want a ParseError", err)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d after failed reload", c.Len())
	}

	if err := c.LoadFile(filepath.Join(dir, "missing.css")); err == nil {
		t.Error("expected error for a missing file")
	}
}
