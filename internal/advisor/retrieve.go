package advisor

import (
	"context"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/hpungsan/veileder/internal/catalog"
	"github.com/hpungsan/veileder/internal/errors"
	"github.com/hpungsan/veileder/internal/intent"
	"github.com/hpungsan/veileder/internal/knowledge"
	"github.com/hpungsan/veileder/internal/llm"
	"github.com/hpungsan/veileder/internal/log"
)

// Retrieval branch names, used in notices.
const (
	BranchCourse  = "course"
	BranchProgram = "program"
	BranchEmbed   = "embedding"
	BranchSearch  = "similarity"
	BranchRerank  = "rerank"
)

// Plan is the retrieval input derived from intent, entities and session state.
// Identical plans produce identical store queries.
type Plan struct {
	Intent   intent.Intent `json:"intent"`
	Question string        `json:"-"`
	Courses  []string      `json:"courses,omitempty"`
	Programs []string      `json:"programs,omitempty"`
	RuleK    int           `json:"rule_k,omitempty"`
	RerankK  int           `json:"rerank_k,omitempty"`
}

// Empty reports whether the plan fetches nothing.
func (p Plan) Empty() bool {
	return len(p.Courses) == 0 && len(p.Programs) == 0 && p.RuleK <= 0
}

// buildPlan decides what to fetch. scopeCourse is the course in scope for
// exam and concept questions: a code from the question itself, else the
// conversation's current course.
func buildPlan(in intent.Intent, question string, entities intent.Entities, state sessionView, policy intent.Policy) Plan {
	p := Plan{Intent: in, Question: question}

	scopeCourse := state.CurrentEmne
	if len(entities.Courses) > 0 {
		scopeCourse = entities.Courses[0]
	}

	switch {
	case in == intent.OffTopic:
		return p
	case in == intent.SpecificEmne:
		p.Courses = entities.Courses
		p.RuleK = policy.TopK
	case in == intent.StudyOverview || in == intent.StudyFollowup:
		if len(entities.Programs) > 0 {
			p.Programs = entities.Programs[:1]
		} else if state.CurrentStudy != "" {
			p.Programs = []string{state.CurrentStudy}
		}
	case in == intent.Comparison:
		p.Programs = entities.Programs
		if len(p.Programs) == 0 && state.CurrentStudy != "" {
			p.Programs = []string{state.CurrentStudy}
		}
	case in == intent.ConceptExplanation:
		if scopeCourse != "" {
			p.Courses = []string{scopeCourse}
		}
	case in.IsRuleOriented():
		if in.IsExam() && scopeCourse != "" {
			p.Courses = []string{scopeCourse}
		}
		p.RuleK = policy.TopK
		p.RerankK = policy.RerankK
	}
	return p
}

// sessionView is the part of conversation state the planner reads.
type sessionView struct {
	CurrentStudy string
	CurrentEmne  string
}

// Retriever runs the branches of a plan concurrently on a worker pool.
type Retriever struct {
	store        knowledge.Store
	service      llm.Service
	pool         *ants.Pool
	rerank       bool
	previewChars int
}

// NewRetriever creates a retriever with a pool of workers goroutines.
func NewRetriever(store knowledge.Store, service llm.Service, workers int, rerank bool, previewChars int) (*Retriever, error) {
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &Retriever{
		store:        store,
		service:      service,
		pool:         pool,
		rerank:       rerank,
		previewChars: previewChars,
	}, nil
}

// Close releases the worker pool.
func (r *Retriever) Close() {
	r.pool.Release()
}

type branchResult struct {
	blocks  []Block
	notices []*errors.AdvisorError
}

// Retrieve executes the plan. Blocks are merged course, program, rule; a
// failing branch only contributes notices.
func (r *Retriever) Retrieve(ctx context.Context, plan Plan) ([]Block, []*errors.AdvisorError) {
	var branches []func() branchResult
	if len(plan.Courses) > 0 {
		branches = append(branches, func() branchResult { return r.courses(ctx, plan.Courses) })
	}
	if len(plan.Programs) > 0 {
		branches = append(branches, func() branchResult { return r.programs(ctx, plan.Programs) })
	}
	if plan.RuleK > 0 {
		branches = append(branches, func() branchResult { return r.rules(ctx, plan) })
	}

	results := make([]branchResult, len(branches))
	var wg sync.WaitGroup
	for i, run := range branches {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i] = safeBranch(run)
		}
		if err := r.pool.Submit(task); err != nil {
			log.Warnf("retrieval pool unavailable, running branch inline: %v", err)
			task()
		}
	}
	wg.Wait()

	var blocks []Block
	var notices []*errors.AdvisorError
	for _, res := range results {
		blocks = append(blocks, res.blocks...)
		notices = append(notices, res.notices...)
	}
	return blocks, notices
}

func safeBranch(run func() branchResult) (res branchResult) {
	defer func() {
		if p := recover(); p != nil {
			res = branchResult{notices: []*errors.AdvisorError{
				errors.NewRetrievalDegraded("branch", errors.NewInternal(panicError(p))),
			}}
		}
	}()
	return run()
}

func (r *Retriever) courses(ctx context.Context, codes []string) branchResult {
	var res branchResult
	for _, code := range codes {
		c, err := r.store.LookupCourse(ctx, code)
		if errors.Is(err, errors.ErrNotFound) {
			log.Debugf("course %s not in store", code)
			continue
		}
		if err != nil {
			res.notices = append(res.notices, degraded(BranchCourse, err))
			continue
		}
		res.blocks = append(res.blocks, courseBlock(c))
	}
	return res
}

func (r *Retriever) programs(ctx context.Context, names []string) branchResult {
	var res branchResult
	for _, name := range names {
		p, err := r.store.LookupProgram(ctx, name)
		if errors.Is(err, errors.ErrNotFound) {
			log.Debugf("program %q not in store", name)
			continue
		}
		if err != nil {
			res.notices = append(res.notices, degraded(BranchProgram, err))
			continue
		}
		res.blocks = append(res.blocks, programBlocks(p)...)
	}
	return res
}

func (r *Retriever) rules(ctx context.Context, plan Plan) branchResult {
	var res branchResult

	vec, err := r.store.Embed(ctx, plan.Question)
	if err != nil {
		res.notices = append(res.notices, degraded(BranchEmbed, err))
		return res
	}
	candidates, err := r.store.Nearest(ctx, vec, plan.RuleK)
	if err != nil {
		res.notices = append(res.notices, degraded(BranchSearch, err))
		return res
	}

	if r.rerank && plan.RerankK > 0 && r.service != nil {
		var notice *errors.AdvisorError
		candidates, notice = r.rerankChunks(ctx, plan.Question, candidates, plan.RerankK)
		if notice != nil {
			res.notices = append(res.notices, notice)
		}
	}

	for _, c := range candidates {
		res.blocks = append(res.blocks, ruleBlock(c))
	}
	return res
}

// rerankChunks asks the model to reorder candidates and keeps at most k.
// Any failure falls back to similarity order truncated to k.
func (r *Retriever) rerankChunks(ctx context.Context, question string, candidates []catalog.ScoredChunk, k int) ([]catalog.ScoredChunk, *errors.AdvisorError) {
	fallback := candidates
	if len(fallback) > k {
		fallback = fallback[:k]
	}
	if len(candidates) < 2 {
		return fallback, nil
	}

	previews := make([]string, len(candidates))
	for i, c := range candidates {
		previews[i] = catalog.TruncateChars(c.Content, r.previewChars)
	}

	order, err := r.service.Rank(ctx, llm.TierFast, question, previews)
	if err != nil {
		return fallback, degraded(BranchRerank, err)
	}

	picked := validRanking(order, len(candidates), k)
	if len(picked) == 0 {
		return fallback, degraded(BranchRerank, errors.NewInvalidRequest("rank selected no valid candidates"))
	}

	out := make([]catalog.ScoredChunk, len(picked))
	for i, idx := range picked {
		out[i] = candidates[idx]
	}
	return out, nil
}

// validRanking drops out-of-range and repeated indices and caps the result at k.
func validRanking(order []int, n, k int) []int {
	seen := make(map[int]bool, len(order))
	out := make([]int, 0, k)
	for _, i := range order {
		if i < 0 || i >= n || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
		if len(out) == k {
			break
		}
	}
	return out
}

func degraded(branch string, err error) *errors.AdvisorError {
	notice := errors.NewRetrievalDegraded(branch, err)
	log.Warnf("%s: %v", notice.Code, notice.Message)
	return notice
}
