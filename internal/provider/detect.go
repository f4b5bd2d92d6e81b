package provider

import "strings"

// SplitModel splits "provider/bare-model" into its parts. Models without
// a recognized provider prefix come back with an empty provider.
func SplitModel(model string) (providerID, bare string) {
	if i := strings.IndexByte(model, '/'); i > 0 {
		prefix := model[:i]
		if _, ok := Get(prefix); ok {
			return prefix, model[i+1:]
		}
	}
	return "", model
}

// Detect resolves the provider responsible for a model identifier. An
// explicit "provider/" prefix always wins. Otherwise adapters that list
// the bare model AND have stored credentials are preferred, then name
// heuristics decide. hasCreds reports whether a provider currently has
// usable credentials (store or account pool).
func Detect(model string, hasCreds func(providerID string) bool) string {
	if id, _ := SplitModel(model); id != "" {
		return id
	}
	bare := model

	for _, a := range All() {
		for _, m := range a.Models() {
			if m == bare && hasCreds != nil && hasCreds(a.ID()) {
				return a.ID()
			}
		}
	}

	switch {
	case strings.HasPrefix(bare, "claude"):
		if hasCreds != nil && hasCreds("antigravity") {
			return "antigravity"
		}
		return "anthropic"
	case strings.HasPrefix(bare, "gemini"):
		return "antigravity"
	case strings.HasPrefix(bare, "gpt"), strings.HasPrefix(bare, "o1"),
		strings.HasPrefix(bare, "o3"), strings.HasPrefix(bare, "o4"),
		strings.HasPrefix(bare, "codex"):
		if hasCreds != nil && hasCreds("copilot") && !(hasCreds("openai")) {
			return "copilot"
		}
		return "openai"
	}
	return "openai"
}
