package codebook

import "strings"

// maxPassageLen caps passage size so one oversized codebook section does
// not dominate the retrieval context.
const maxPassageLen = 1200

// SplitPassages splits codebook text into passages on blank lines, merging
// short fragments and splitting oversized blocks on line boundaries.
func SplitPassages(text string) []string {
	blocks := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")

	var passages []string
	var current strings.Builder

	flush := func() {
		if p := strings.TrimSpace(current.String()); p != "" {
			passages = append(passages, p)
		}
		current.Reset()
	}

	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		if len(block) > maxPassageLen {
			flush()
			passages = append(passages, splitLong(block)...)
			continue
		}

		if current.Len() > 0 && current.Len()+len(block) > maxPassageLen {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(block)
	}
	flush()

	return passages
}

// splitLong breaks an oversized block on line boundaries.
func splitLong(block string) []string {
	var out []string
	var current strings.Builder

	for _, line := range strings.Split(block, "\n") {
		if current.Len() > 0 && current.Len()+len(line) > maxPassageLen {
			out = append(out, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if p := strings.TrimSpace(current.String()); p != "" {
		out = append(out, p)
	}
	return out
}
