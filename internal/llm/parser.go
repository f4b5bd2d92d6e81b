package llm

import (
	"regexp"
	"strings"

	"github.com/esprit-sec/esprit/internal/chat"
)

// Models request tools through a textual protocol embedded in their
// output:
//
//	<function=NAME>
//	  <parameter=KEY>VALUE</parameter>
//	</function>
//
// Only the first function block per turn is honored; the stream layer
// cuts reading at the closing marker so models rarely generate more.

const functionClose = "</function>"

var (
	functionRe  = regexp.MustCompile(`(?s)<function=([^>\s]+)>(.*?)</function>`)
	parameterRe = regexp.MustCompile(`(?s)<parameter=([^>\s]+)>(.*?)</parameter>`)
)

// truncateToFirstFunction cuts the content right after the first
// closing function marker, dropping any trailing text.
func truncateToFirstFunction(content string) string {
	if idx := strings.Index(content, functionClose); idx >= 0 {
		return content[:idx+len(functionClose)]
	}
	return content
}

// fixIncompleteToolCall closes a dangling function block left by a
// stream that stopped mid-call.
func fixIncompleteToolCall(content string) string {
	open := strings.LastIndex(content, "<function=")
	if open < 0 {
		return content
	}
	tail := content[open:]
	if strings.Contains(tail, functionClose) {
		return content
	}
	if strings.Count(tail, "<parameter=") > strings.Count(tail, "</parameter>") {
		content += "</parameter>"
	}
	return content + "\n" + functionClose
}

// parseToolInvocations extracts every function block from the content.
func parseToolInvocations(content string) []chat.ToolInvocation {
	matches := functionRe.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]chat.ToolInvocation, 0, len(matches))
	for _, m := range matches {
		inv := chat.ToolInvocation{
			Name:       m[1],
			Parameters: map[string]string{},
		}
		for _, pm := range parameterRe.FindAllStringSubmatch(m[2], -1) {
			inv.Parameters[pm[1]] = strings.TrimSpace(pm[2])
		}
		out = append(out, inv)
	}
	return out
}
