package scope

import (
	"reflect"
	"testing"
)

func mustList(t *testing.T, s string) []Grant {
	t.Helper()
	grants, err := ParseList(s)
	if err != nil {
		t.Fatalf("ParseList(%q): %v", s, err)
	}
	return grants
}

func TestParseValid(t *testing.T) {
	tests := []struct {
		in   string
		want Grant
	}{
		{"*", Grant{Action: "*", Resource: "*"}},
		{"read:stations", Grant{Action: "read", Resource: "stations"}},
		{"read:*", Grant{Action: "read", Resource: "*"}},
		{"*:stations", Grant{Action: "*", Resource: "stations"}},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	for _, in := range []string{
		"",
		"read",
		"read:",
		":stations",
		":",
		"read:stations:extra",
		"read :stations",
		"read stations",
	} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error, got nil", in)
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, in := range []string{"*", "read:stations", "write:*"} {
		g, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if g.String() != in {
			t.Errorf("Parse(%q).String() = %q", in, g.String())
		}
	}
}

func TestSatisfiedWildcardLaws(t *testing.T) {
	tests := []struct {
		name     string
		required string
		granted  string
		want     bool
	}{
		{"bare star grants everything", "write:stations read:operators", "*", true},
		{"action wildcard covers resource", "read:stations", "read:*", true},
		{"action wildcard does not cross actions", "write:stations", "read:*", false},
		{"exact match", "read:stations", "read:stations", true},
		{"different resource", "read:operators", "read:stations", false},
		{"resource wildcard covers action", "read:stations", "*:stations", true},
		{"set cover needs every pair", "read:stations write:stations", "read:stations", false},
		{"set cover across grants", "read:stations write:stations", "read:* write:stations", true},
		{"empty requirement is satisfied", "", "read:stations", true},
		{"empty grants fail nonempty requirement", "read:stations", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Satisfied(mustList(t, tt.required), mustList(t, tt.granted))
			if got != tt.want {
				t.Errorf("Satisfied(%q, %q) = %v, want %v", tt.required, tt.granted, got, tt.want)
			}
		})
	}
}

func TestMissing(t *testing.T) {
	required := mustList(t, "read:a write:b")
	granted := mustList(t, "read:*")

	missing := Missing(required, granted)
	want := mustList(t, "write:b")
	if !reflect.DeepEqual(missing, want) {
		t.Errorf("Missing = %v, want %v", Strings(missing), Strings(want))
	}
}

func TestMissingPreservesOrderAndDedupes(t *testing.T) {
	required := mustList(t, "write:b read:a write:b delete:c")
	granted := mustList(t, "read:a")

	missing := Missing(required, granted)
	got := Strings(missing)
	want := []string{"write:b", "delete:c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Missing = %v, want %v", got, want)
	}
}

func TestMissingEmptyWhenSatisfied(t *testing.T) {
	required := mustList(t, "read:stations")
	granted := mustList(t, "*")
	if m := Missing(required, granted); len(m) != 0 {
		t.Errorf("expected no missing grants, got %v", Strings(m))
	}
}
