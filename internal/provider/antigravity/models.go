package antigravity

import "strings"

// fallbackChain orders the served models by capability, high to low.
// When a model fails persistently the dispatcher walks down this list.
var fallbackChain = []string{
	"claude-opus-4-6-thinking",
	"claude-opus-4-5-thinking",
	"claude-sonnet-4-5-thinking",
	"claude-sonnet-4-5",
	"gemini-3-pro-high",
	"gemini-3-pro-low",
	"gemini-2.5-pro",
	"gemini-3-flash",
	"gemini-2.5-flash",
	"gemini-2.5-flash-thinking",
	"gemini-2.5-flash-lite",
}

// extraModels are served but sit outside the fallback ordering.
var extraModels = []string{
	"gemini-3-pro-image",
}

var modelSet = func() map[string]bool {
	set := make(map[string]bool, len(fallbackChain)+len(extraModels))
	for _, m := range fallbackChain {
		set[m] = true
	}
	for _, m := range extraModels {
		set[m] = true
	}
	return set
}()

// IsModel reports whether the bare model name is served here.
func IsModel(bare string) bool { return modelSet[bare] }

// ModelNames returns every served bare model name.
func ModelNames() []string {
	out := make([]string, 0, len(modelSet))
	out = append(out, fallbackChain...)
	out = append(out, extraModels...)
	return out
}

// FallbackModels returns the models to try after the current one fails,
// in order. Models outside the chain fall back to the gemini-3-flash
// tier and below.
func FallbackModels(currentModel string) []string {
	bare := currentModel
	if i := strings.IndexByte(bare, '/'); i >= 0 {
		bare = bare[i+1:]
	}
	for i, m := range fallbackChain {
		if m == bare {
			return fallbackChain[i+1:]
		}
	}
	for i, m := range fallbackChain {
		if m == "gemini-3-flash" {
			return fallbackChain[i:]
		}
	}
	return nil
}
