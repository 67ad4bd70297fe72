package promptbuild

import (
	"fmt"
	"sort"
	"strings"
)

// BuildUserPrompt renders the per-request prompt (spec §4.3 item 2): a
// timestamp line, optional labeled context key-values in sorted order for
// determinism, the user input, and a trailing instruction to analyze.
func BuildUserPrompt(input string, context map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Timestamp: %s\n", nowFunc().UTC().Format("2006-01-02T15:04:05Z"))

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Context:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, context[k])
		}
	}

	fmt.Fprintf(&b, "\nRequest: %s\n\n", input)
	b.WriteString("Analyze this request and produce the JSON envelope.")
	return b.String()
}
