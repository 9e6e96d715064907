package dynlink

import (
	"slices"

	"github.com/ZenLiuCN/fn"
)

type fingerprint struct {
	digest string
	source string
}

// Consistency records, per interface name, the one fingerprint every loaded unit must agree on.
//
// Records are never removed by a failed load: a fingerprint stays true even if the unit
// that introduced it could not be activated.
type Consistency struct {
	records map[string]fingerprint
	used    map[string]struct{}
}

// NewConsistency create an empty registry.
func NewConsistency() *Consistency {
	return &Consistency{
		records: make(map[string]fingerprint),
		used:    make(map[string]struct{}),
	}
}

// Use marks an interface as imported by some loaded code.
func (c *Consistency) Use(name string) {
	c.used[name] = struct{}{}
}

// Used dump the sorted interface names marked by Use.
func (c *Consistency) Used() []string {
	v := fn.MapKeys(c.used)
	slices.Sort(v)
	return v
}

// Check records digest for name, or compares it with the recorded one.
func (c *Consistency) Check(name, digest, source string) error {
	if r, ok := c.records[name]; ok {
		if r.digest != digest {
			return &InconsistentAssumptions{Interface: name, First: r.source, Second: source}
		}
		return nil
	}
	c.records[name] = fingerprint{digest: digest, source: source}
	return nil
}

// Fingerprint returns the recorded digest of name and the file that introduced it.
func (c *Consistency) Fingerprint(name string) (digest, source string, ok bool) {
	var r fingerprint
	if r, ok = c.records[name]; ok {
		digest, source = r.digest, r.source
	}
	return
}

// Clear forgets every record, only a session reset does this.
func (c *Consistency) Clear() {
	clear(c.records)
	clear(c.used)
}
