package advisor

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/hpungsan/veileder/internal/catalog"
	"github.com/hpungsan/veileder/internal/errors"
	"github.com/hpungsan/veileder/internal/llm"
)

type fakeStore struct {
	mu       sync.Mutex
	courses  map[string]*catalog.CourseRecord
	programs map[string]*catalog.ProgramStructure
	chunks   []catalog.ScoredChunk

	listErr   error
	listDelay time.Duration
	embedErr  error
	searchErr error
	courseErr error

	calls map[string]int
	seenK []int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		courses:  make(map[string]*catalog.CourseRecord),
		programs: make(map[string]*catalog.ProgramStructure),
		calls:    make(map[string]int),
	}
}

func (f *fakeStore) count(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakeStore) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeStore) callsTo(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeStore) LookupCourse(_ context.Context, code string) (*catalog.CourseRecord, error) {
	f.count("course")
	if f.courseErr != nil {
		return nil, f.courseErr
	}
	c, ok := f.courses[catalog.NormalizeCode(code)]
	if !ok {
		return nil, errors.NewNotFound("course", code)
	}
	return c, nil
}

func (f *fakeStore) LookupProgram(_ context.Context, name string) (*catalog.ProgramStructure, error) {
	f.count("program")
	p, ok := f.programs[catalog.Normalize(name)]
	if !ok {
		return nil, errors.NewNotFound("program", name)
	}
	return p, nil
}

func (f *fakeStore) ListPrograms(context.Context) ([]string, error) {
	f.count("list")
	time.Sleep(f.listDelay)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var names []string
	for _, p := range f.programs {
		names = append(names, p.Name)
	}
	return names, nil
}

func (f *fakeStore) Embed(context.Context, string) ([]float32, error) {
	f.count("embed")
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{1, 0}, nil
}

func (f *fakeStore) Nearest(_ context.Context, _ []float32, k int) ([]catalog.ScoredChunk, error) {
	f.count("nearest")
	f.mu.Lock()
	f.seenK = append(f.seenK, k)
	f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if k > len(f.chunks) {
		k = len(f.chunks)
	}
	return f.chunks[:k], nil
}

func (f *fakeStore) addCourse(c *catalog.CourseRecord) {
	f.courses[c.Code] = c
}

func (f *fakeStore) addProgram(p *catalog.ProgramStructure) {
	f.programs[catalog.Normalize(p.Name)] = p
}

type completion struct {
	tier   llm.Tier
	system string
	user   string
}

type fakeService struct {
	mu          sync.Mutex
	reply       string
	err         error
	panicMsg    string
	rank        []int
	rankErr     error
	completions []completion
	rankCalls   int
	rankInputs  [][]string
}

func (f *fakeService) Complete(_ context.Context, tier llm.Tier, system, user string) (string, error) {
	f.mu.Lock()
	f.completions = append(f.completions, completion{tier: tier, system: system, user: user})
	f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeService) Rank(_ context.Context, _ llm.Tier, _ string, candidates []string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rankCalls++
	f.rankInputs = append(f.rankInputs, candidates)
	if f.rankErr != nil {
		return nil, f.rankErr
	}
	return f.rank, nil
}

func (f *fakeService) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completions) + f.rankCalls
}

func (f *fakeService) lastUser() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.completions) == 0 {
		return ""
	}
	return f.completions[len(f.completions)-1].user
}

var errBackend = stderrors.New("backend down")
