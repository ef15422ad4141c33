package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hpungsan/veileder/internal/catalog"
)

// ParseRanking extracts the first JSON array of integers from a model reply.
// Indices outside [0, n) and repeats are dropped. An error is returned when no
// array is found or nothing valid remains.
func ParseRanking(text string, n int) ([]int, error) {
	start := strings.IndexByte(text, '[')
	if start < 0 {
		return nil, fmt.Errorf("rank reply has no JSON array: %q", preview(text))
	}
	end := strings.IndexByte(text[start:], ']')
	if end < 0 {
		return nil, fmt.Errorf("rank reply has unterminated array: %q", preview(text))
	}

	var raw []float64
	if err := json.Unmarshal([]byte(text[start:start+end+1]), &raw); err != nil {
		return nil, fmt.Errorf("rank reply array is not numeric: %w", err)
	}

	seen := make(map[int]bool, len(raw))
	out := make([]int, 0, len(raw))
	for _, f := range raw {
		i := int(f)
		if float64(i) != f || i < 0 || i >= n || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("rank reply selected no valid candidates")
	}
	return out, nil
}

func preview(s string) string {
	const max = 80
	if cut := catalog.TruncateChars(s, max); cut != s {
		return cut + "..."
	}
	return s
}
