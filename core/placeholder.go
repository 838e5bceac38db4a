package core

// placeholderIDs are correlation identifiers known to be non-unique. Some
// backends emit them verbatim for every call in a turn, so treating them as
// real ids would collapse distinct invocations into one.
var placeholderIDs = map[string]struct{}{
	"":                  {},
	"null":              {},
	"undefined":         {},
	"unknown":           {},
	"toolu_placeholder": {},
	"tool_placeholder":  {},
}

// IsPlaceholderID reports whether id is a known non-unique correlation
// identifier. A placeholder id signals that sequential/heuristic matching,
// not direct lookup, must be used, and that dedup keys must be minted fresh
// so two placeholder-id events never suppress each other.
func IsPlaceholderID(id string) bool {
	_, ok := placeholderIDs[id]
	return ok
}
