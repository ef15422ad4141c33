// Package advisor answers study-advising questions. It extracts course codes
// and program names, classifies the question, resolves follow-ups against the
// conversation, retrieves context per intent, fits it to a budget and asks a
// generative model for the answer.
package advisor

import (
	"context"
	"strings"
	"time"

	"github.com/hpungsan/veileder/internal/catalog"
	"github.com/hpungsan/veileder/internal/errors"
	"github.com/hpungsan/veileder/internal/intent"
	"github.com/hpungsan/veileder/internal/knowledge"
	"github.com/hpungsan/veileder/internal/llm"
	"github.com/hpungsan/veileder/internal/log"
	"github.com/hpungsan/veileder/internal/session"
)

// Options tune an Advisor. Zero values take defaults.
type Options struct {
	Policies         intent.Table
	Workers          int
	DisableRerank    bool
	PreviewChars     int
	ProgramCacheTTL  time.Duration
	MaxQuestionChars int
}

const (
	defaultWorkers      = 4
	defaultPreviewChars = 600
	defaultMaxQuestion  = 2000
)

// Advisor is the question-answering pipeline.
type Advisor struct {
	store      knowledge.Store
	service    llm.Service
	sessions   *session.Store
	classifier *intent.Classifier
	policies   intent.Table
	programs   *programCatalog
	retriever  *Retriever
	maxChars   int
}

// New wires an Advisor. Call Close to release its worker pool.
func New(store knowledge.Store, service llm.Service, sessions *session.Store, opts Options) (*Advisor, error) {
	if opts.Policies == nil {
		opts.Policies = intent.DefaultTable()
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.PreviewChars <= 0 {
		opts.PreviewChars = defaultPreviewChars
	}
	if opts.MaxQuestionChars <= 0 {
		opts.MaxQuestionChars = defaultMaxQuestion
	}
	if sessions == nil {
		sessions = session.NewStore(0)
	}

	retriever, err := NewRetriever(store, service, opts.Workers, !opts.DisableRerank, opts.PreviewChars)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	return &Advisor{
		store:      store,
		service:    service,
		sessions:   sessions,
		classifier: intent.NewClassifier(),
		policies:   opts.Policies,
		programs:   newProgramCatalog(store, opts.ProgramCacheTTL),
		retriever:  retriever,
		maxChars:   opts.MaxQuestionChars,
	}, nil
}

// Close releases the retrieval pool.
func (a *Advisor) Close() {
	a.retriever.Close()
}

// RefreshPrograms drops the cached program list.
func (a *Advisor) RefreshPrograms() {
	a.programs.invalidate()
}

// AskInput is one question in a conversation.
type AskInput struct {
	Question       string
	ConversationID string
}

// AskOutput describes how a question was answered.
type AskOutput struct {
	Answer         string          `json:"answer"`
	Intent         intent.Intent   `json:"intent"`
	Rule           string          `json:"rule,omitempty"`
	Redirected     bool            `json:"redirected,omitempty"`
	Entities       intent.Entities `json:"entities"`
	Plan           Plan            `json:"plan"`
	Tier           llm.Tier        `json:"tier,omitempty"`
	ContextChars   int             `json:"context_chars"`
	Blocks         int             `json:"blocks"`
	Truncated      bool            `json:"truncated,omitempty"`
	ModelCalled    bool            `json:"model_called"`
	Notices        []Notice        `json:"notices,omitempty"`
	ConversationID string          `json:"conversation_id"`
}

// Notice is a non-fatal problem met while answering.
type Notice struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

func toNotices(errs []*errors.AdvisorError) []Notice {
	out := make([]Notice, 0, len(errs))
	for _, e := range errs {
		out = append(out, Notice{Code: e.Code, Message: e.Message})
	}
	return out
}

// Answer returns the reply text for question in conversation id. It never
// fails: invalid input, refusals and backend errors all map to fixed texts.
func (a *Advisor) Answer(ctx context.Context, question, conversationID string) (answer string) {
	out, err := a.Ask(ctx, AskInput{Question: question, ConversationID: conversationID})
	if err != nil {
		if errors.Is(err, errors.ErrInvalidRequest) {
			return InvalidMessage
		}
		log.Errorf("answer failed: %v", err)
		return FailureMessage
	}
	return out.Answer
}

// Ask runs the pipeline and reports its decisions. It returns an error only
// for invalid input; a panic inside the pipeline becomes FailureMessage.
func (a *Advisor) Ask(ctx context.Context, in AskInput) (out *AskOutput, err error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, errors.NewInvalidRequest("question is required")
	}
	if catalog.CountChars(question) > a.maxChars {
		return nil, errors.NewInvalidRequest("question is too long")
	}

	defer func() {
		if p := recover(); p != nil {
			log.Errorf("%s: recovered panic: %v", errors.ErrSynthesisFailure, p)
			out = &AskOutput{Answer: FailureMessage, ConversationID: in.ConversationID}
			err = nil
		}
	}()

	out = &AskOutput{ConversationID: in.ConversationID}
	courses := ExtractCourses(question)

	// Off-topic cues win over everything, so refuse before any store call.
	if pre := a.classifier.Classify(question, intent.Entities{Courses: courses}); pre.Intent == intent.OffTopic && !pre.Fallback {
		out.Intent, out.Rule = pre.Intent, pre.Rule
		out.Entities = intent.Entities{Courses: courses}
		out.Answer = RefusalMessage
		log.Debugf("%s via %s", errors.ErrScopeRefusal, pre.Rule)
		return out, nil
	}

	var notices []*errors.AdvisorError
	var programs []string
	known, listErr := a.programs.list(ctx)
	if listErr != nil {
		notice := errors.NewExtractionDegraded(listErr)
		log.Warnf("%s: %v", notice.Code, listErr)
		notices = append(notices, notice)
	} else {
		programs = MatchPrograms(question, known)
	}
	entities := intent.Entities{Courses: courses, Programs: programs}
	out.Entities = entities

	sessions := a.sessions
	if in.ConversationID == "" {
		// No id means no memory across calls.
		sessions = session.NewStore(0)
	}
	turn := sessions.Begin(in.ConversationID)
	defer turn.End()
	turn.Observe(entities.Courses, entities.Programs)
	state := turn.State()

	cls := a.classifier.Classify(question, entities)
	chosen := cls.Intent
	// A concept question stays on the concept path while a course is in scope.
	redirectable := cls.Fallback || (cls.Intent == intent.ConceptExplanation && state.CurrentEmne == "")
	if redirectable && entities.Empty() && state.CurrentStudy != "" {
		chosen = intent.StudyFollowup
		out.Redirected = true
	}
	out.Intent, out.Rule = chosen, cls.Rule

	policy := a.policies.Lookup(chosen)
	out.Tier = policy.Tier

	if chosen == intent.OffTopic {
		out.Answer = RefusalMessage
		out.Notices = toNotices(notices)
		return out, nil
	}

	plan := buildPlan(chosen, question, entities, sessionView{
		CurrentStudy: state.CurrentStudy,
		CurrentEmne:  state.CurrentEmne,
	}, policy)
	out.Plan = plan

	blocks, retrievalNotices := a.retriever.Retrieve(ctx, plan)
	notices = append(notices, retrievalNotices...)
	out.Notices = toNotices(notices)

	budgeted := Budget(blocks, policy.MaxContextChars)
	out.ContextChars = budgeted.Chars
	out.Blocks = len(budgeted.Blocks)
	out.Truncated = budgeted.Truncated

	log.Debugf("intent=%s rule=%s tier=%s blocks=%d chars=%d", chosen, cls.Rule, policy.Tier, out.Blocks, out.ContextChars)

	if policy.NeedsRetrieval && budgeted.Context == "" {
		out.Answer = NoInformationMessage
		return out, nil
	}

	out.ModelCalled = true
	out.Answer = a.synthesize(ctx, policy.Tier, budgeted.Context, question)
	return out, nil
}

func (a *Advisor) synthesize(ctx context.Context, tier llm.Tier, contextText, question string) string {
	if a.service == nil {
		log.Errorf("%s: no generative service configured", errors.ErrSynthesisFailure)
		return FailureMessage
	}
	text, err := a.service.Complete(ctx, tier, systemPrompt, userMessage(contextText, question))
	if err != nil {
		log.Errorf("%v", errors.NewSynthesisFailure(err))
		return FailureMessage
	}
	if strings.TrimSpace(text) == "" {
		log.Errorf("%s: empty model reply", errors.ErrSynthesisFailure)
		return FailureMessage
	}
	return text
}

// Classify runs extraction and classification only, without touching
// conversation state or calling any model. A non-nil error is an
// EXTRACTION_DEGRADED notice; the results are still usable.
func (a *Advisor) Classify(ctx context.Context, question string) (intent.Entities, intent.Classification, error) {
	courses := ExtractCourses(question)
	var programs []string
	var notice error
	known, err := a.programs.list(ctx)
	if err != nil {
		notice = errors.NewExtractionDegraded(err)
		log.Warnf("%v", notice)
	} else {
		programs = MatchPrograms(question, known)
	}
	entities := intent.Entities{Courses: courses, Programs: programs}
	return entities, a.classifier.Classify(question, entities), notice
}
