package advisor

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hpungsan/veileder/internal/intent"
	"github.com/hpungsan/veileder/internal/knowledge"
)

// courseCodePattern is 2-4 letters (national letters included) then 3-4 digits.
var courseCodePattern = regexp.MustCompile(`^\p{Lu}{2,4}[0-9]{3,4}$`)

// ExtractCourses returns the course codes in text, upper-cased, in order of
// first appearance. It never touches the store.
func ExtractCourses(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, tok := range intent.Tokenize(text) {
		code := strings.ToUpper(tok)
		if seen[code] || !courseCodePattern.MatchString(code) {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}

// MatchPrograms returns the known program names whose lowercase form occurs
// in the lowercased text, ordered by position; on equal position the longer
// name comes first.
func MatchPrograms(text string, known []string) []string {
	lower := strings.ToLower(text)

	type hit struct {
		name string
		pos  int
	}
	var hits []hit
	seen := make(map[string]bool)
	for _, name := range known {
		needle := strings.ToLower(strings.TrimSpace(name))
		if needle == "" || seen[needle] {
			continue
		}
		if pos := strings.Index(lower, needle); pos >= 0 {
			seen[needle] = true
			hits = append(hits, hit{name: name, pos: pos})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].pos != hits[j].pos {
			return hits[i].pos < hits[j].pos
		}
		return len(hits[i].name) > len(hits[j].name)
	})

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.name
	}
	return out
}

// programCatalog caches the store's program list for a fixed time.
// Concurrent misses share one store call; the lock never spans it.
type programCatalog struct {
	store knowledge.Store
	ttl   time.Duration
	now   func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	names   []string
	fetched time.Time
	gen     uint64
}

func newProgramCatalog(store knowledge.Store, ttl time.Duration) *programCatalog {
	return &programCatalog{store: store, ttl: ttl, now: time.Now}
}

func (c *programCatalog) list(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	if c.ttl > 0 && !c.fetched.IsZero() && c.now().Sub(c.fetched) < c.ttl {
		names := c.names
		c.mu.Unlock()
		return names, nil
	}
	gen := c.gen
	c.mu.Unlock()

	v, err, _ := c.group.Do("programs", func() (any, error) {
		names, err := c.store.ListPrograms(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		// A fetch that raced an invalidate must not repopulate the cache.
		if c.gen == gen {
			c.names = names
			c.fetched = c.now()
		}
		c.mu.Unlock()
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// invalidate forces the next list call to hit the store.
func (c *programCatalog) invalidate() {
	c.mu.Lock()
	c.fetched = time.Time{}
	c.gen++
	c.mu.Unlock()
}
