package sqltype

import "strings"

// Fold describes which differences a collation ignores when comparing text.
type Fold int

const (
	// FoldNone compares text exactly (binary and case-sensitive collations).
	FoldNone Fold = iota
	// FoldCase ignores letter case only (accent-sensitive "_as_ci" collations).
	FoldCase
	// FoldCaseAndAccents ignores letter case and accents, as "_ci" collations do.
	FoldCaseAndAccents
)

// FoldForCollation returns how the named collation compares text.
// Unknown and empty names compare exactly.
func FoldForCollation(collation string) Fold {
	name := strings.ToLower(strings.TrimSpace(collation))
	switch {
	case strings.HasSuffix(name, "_as_ci"):
		return FoldCase
	case strings.HasSuffix(name, "_ci"):
		return FoldCaseAndAccents
	default:
		return FoldNone
	}
}
