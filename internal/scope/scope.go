// Package scope implements the permission grammar used throughout Airwave.
// A scope grant is a string of the form "action:resource" where either
// segment may be the wildcard "*"; a bare "*" grants everything. Matching
// is pure set cover: a requirement set is satisfied only when every
// required pair has at least one satisfying grant.
package scope

import (
	"fmt"
	"strings"
)

// Wildcard is the segment (or whole grant) that matches anything.
const Wildcard = "*"

// Grant is a single parsed permission unit.
type Grant struct {
	Action   string
	Resource string
}

// String renders the grant back to its wire form.
func (g Grant) String() string {
	if g.Action == Wildcard && g.Resource == Wildcard {
		return Wildcard
	}
	return g.Action + ":" + g.Resource
}

// Parse validates and parses a single scope string. A bare "*" parses to
// the universal grant. Anything else must be "action:resource" with
// non-empty segments and no embedded whitespace.
func Parse(s string) (Grant, error) {
	if s == Wildcard {
		return Grant{Action: Wildcard, Resource: Wildcard}, nil
	}
	if strings.ContainsAny(s, " \t\n") {
		return Grant{}, fmt.Errorf("scope %q: contains whitespace", s)
	}
	action, resource, ok := strings.Cut(s, ":")
	if !ok {
		return Grant{}, fmt.Errorf("scope %q: missing ':' separator", s)
	}
	if action == "" || resource == "" {
		return Grant{}, fmt.Errorf("scope %q: empty segment", s)
	}
	if strings.Contains(resource, ":") {
		return Grant{}, fmt.Errorf("scope %q: more than one ':' separator", s)
	}
	return Grant{Action: action, Resource: resource}, nil
}

// ParseList parses a space-separated scope list, the storage form used by
// role templates. Returns an error naming the first malformed entry.
func ParseList(s string) ([]Grant, error) {
	fields := strings.Fields(s)
	grants := make([]Grant, 0, len(fields))
	for _, f := range fields {
		g, err := Parse(f)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, nil
}

// ParseAll parses each element of a string slice, the storage form used by
// API tokens and route declarations.
func ParseAll(ss []string) ([]Grant, error) {
	grants := make([]Grant, 0, len(ss))
	for _, s := range ss {
		g, err := Parse(s)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, nil
}

// covers reports whether a single granted pair satisfies a single required
// pair. Wildcards on the granted side match any segment; wildcards on the
// required side are matched literally.
func covers(granted, required Grant) bool {
	if granted.Action != Wildcard && granted.Action != required.Action {
		return false
	}
	if granted.Resource != Wildcard && granted.Resource != required.Resource {
		return false
	}
	return true
}

// Satisfied reports whether every required grant is covered by at least one
// granted grant. An empty requirement set is trivially satisfied. Order of
// grants is irrelevant; more grants only help.
func Satisfied(required, granted []Grant) bool {
	for _, req := range required {
		if !anyCovers(granted, req) {
			return false
		}
	}
	return true
}

// Missing returns the required grants with no satisfying grant, in their
// original order, deduplicated. Empty result means Satisfied would be true.
func Missing(required, granted []Grant) []Grant {
	var missing []Grant
	seen := make(map[Grant]struct{}, len(required))
	for _, req := range required {
		if _, dup := seen[req]; dup {
			continue
		}
		seen[req] = struct{}{}
		if !anyCovers(granted, req) {
			missing = append(missing, req)
		}
	}
	return missing
}

func anyCovers(granted []Grant, req Grant) bool {
	for _, g := range granted {
		if covers(g, req) {
			return true
		}
	}
	return false
}

// Strings converts a grant slice back to wire-form strings, used when
// rendering denial responses.
func Strings(grants []Grant) []string {
	out := make([]string, len(grants))
	for i, g := range grants {
		out[i] = g.String()
	}
	return out
}
