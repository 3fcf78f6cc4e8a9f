package contract

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Format renders a Diff as a plain-text report. Sections always appear in the
// same order and list entries in path order, so equal diffs render equal text.
func Format(d *Diff) string {
	var b strings.Builder

	result := "PASS"
	if !d.Pass {
		result = "FAIL"
	}
	fmt.Fprintf(&b, "Overall Result: %s\n", result)

	b.WriteString("\nMatching Fields:\n")
	writeList(&b, d.Matched, func(p string) string { return p })

	b.WriteString("\nMismatched Fields:\n")
	if len(d.Mismatched) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, m := range d.Mismatched {
		fmt.Fprintf(&b, "  - %s → Expected: %s, Received: %s\n", m.Path, m.Expected, m.Actual)
	}

	b.WriteString("\nMissing Fields:\n")
	writeList(&b, d.Missing, func(p string) string { return p + " (expected, but missing)" })

	b.WriteString("\nExtra Fields:\n")
	writeList(&b, d.Extra, func(p string) string { return p })

	return b.String()
}

func writeList(b *strings.Builder, items []string, line func(string) string) {
	if len(items) == 0 {
		b.WriteString("  (none)\n")
		return
	}
	for _, it := range items {
		b.WriteString("  - ")
		b.WriteString(line(it))
		b.WriteByte('\n')
	}
}

// Fingerprint is a stable blake2b-256 digest of the normalised schema. Two
// contracts that reduce to the same schema share a fingerprint regardless of
// which shape they were written in.
func Fingerprint(c *Contract) string {
	// encoding/json writes map keys sorted, which makes the encoding canonical.
	data, err := json.Marshal(c.Normalized())
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
