package advisor

import (
	"strings"

	"github.com/hpungsan/veileder/internal/catalog"
)

// Budgeted is the result of fitting blocks into a character budget.
type Budgeted struct {
	Blocks    []Block
	Context   string
	Chars     int  // block characters, separators excluded
	Truncated bool // the single kept block was cut to fit
}

// Budget keeps blocks in order while their summed length (in runes) stays
// within max and stops at the first block that would overflow. When that is
// the very first block, a max-rune prefix of it is kept instead so the answer
// is never starved of material. Blocks are joined with "\n".
func Budget(blocks []Block, max int) Budgeted {
	var out Budgeted
	if max <= 0 {
		return out
	}

	for _, b := range blocks {
		n := catalog.CountChars(b.Text)
		if out.Chars+n > max {
			if len(out.Blocks) == 0 {
				b.Text = catalog.TruncateChars(b.Text, max)
				out.Blocks = append(out.Blocks, b)
				out.Chars = catalog.CountChars(b.Text)
				out.Truncated = true
			}
			break
		}
		out.Blocks = append(out.Blocks, b)
		out.Chars += n
	}

	texts := make([]string, len(out.Blocks))
	for i, b := range out.Blocks {
		texts[i] = b.Text
	}
	out.Context = strings.Join(texts, "\n")
	return out
}
