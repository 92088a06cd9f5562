package practice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
	"github.com/nishant160406/soft-skill-ai-coach/internal/ports"
)

// Store keys shared with the web frontend.
const (
	KeySessionData  = "sessionData"
	KeyLastQuestion = "lastQuestion"
	KeyLastResponse = "lastResponse"
	KeyLastResults  = "lastResults"
)

// AnalysisQuestion is sent with free-form text that answers no practice question.
const AnalysisQuestion = "Free-form communication analysis"

var (
	ErrEmptyAnswer = errors.New("answer is required")
	ErrNoResults   = errors.New("no practice results for this session")
)

// FillerCounter reports filler phrases in an answer.
type FillerCounter interface {
	Count(text string) []domain.FillerUsage
}

type Deps struct {
	Store     ports.SessionStore
	Evaluator ports.Evaluator
	Rules     ports.RulesEngine
	Fillers   FillerCounter
	Publisher ports.ResultPublisher
}

// Service runs the practice flow: score an answer, keep it with the tab's
// session and summarize the session on request.
type Service struct {
	store     ports.SessionStore
	evaluator ports.Evaluator
	rules     ports.RulesEngine
	fillers   FillerCounter
	publisher ports.ResultPublisher
	logger    *log.Logger
	clock     func() time.Time

	// mu serializes the read-modify-write of sessionData.
	mu sync.Mutex
}

func NewService(deps Deps, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:     deps.Store,
		evaluator: deps.Evaluator,
		rules:     deps.Rules,
		fillers:   deps.Fillers,
		publisher: deps.Publisher,
		logger:    logger.WithPrefix("practice"),
		clock:     time.Now,
	}
}

// Submit scores answer, appends it to the scope's session and publishes it.
// An unreachable evaluation service is not an error: the placeholder result
// is stored and returned with Fallback set.
func (s *Service) Submit(ctx context.Context, scope string, question string, answer string) (domain.QuestionResult, error) {
	result, err := s.score(ctx, question, answer)
	if err != nil {
		return domain.QuestionResult{}, err
	}
	if err := s.record(ctx, scope, result); err != nil {
		return domain.QuestionResult{}, err
	}
	if s.publisher != nil {
		if err := s.publisher.PublishResult(ctx, scope, result); err != nil {
			s.logger.Warn("failed to publish result", "scope", scope, "err", err)
		}
	}
	s.logger.Info("answer scored", "scope", scope, "overall", result.Results.Overall(), "fallback", result.Results.Fallback)
	return result, nil
}

// Analyze scores free-form text without storing it.
func (s *Service) Analyze(ctx context.Context, text string) (domain.QuestionResult, error) {
	return s.score(ctx, AnalysisQuestion, text)
}

func (s *Service) score(ctx context.Context, question string, answer string) (domain.QuestionResult, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return domain.QuestionResult{}, ErrEmptyAnswer
	}
	question = strings.TrimSpace(question)

	normalized := answer
	if s.rules != nil {
		out, err := s.rules.Apply(answer)
		if err != nil {
			s.logger.Warn("answer rules failed, scoring raw answer", "err", err)
		} else if strings.TrimSpace(out) != "" {
			normalized = out
		}
	}

	evaluation, err := s.evaluator.Evaluate(ctx, question, normalized)
	if err != nil {
		var serviceErr *domain.EvaluationServiceError
		if !errors.As(err, &serviceErr) {
			return domain.QuestionResult{}, fmt.Errorf("evaluate answer: %w", err)
		}
	}
	if evaluation.Fallback {
		// The local fallback echoes what the user actually said.
		evaluation.ImprovedAnswer = answer
	}

	result := domain.QuestionResult{
		Question: question,
		Response: answer,
		Results:  evaluation,
	}
	if s.fillers != nil {
		result.Fillers = s.fillers.Count(answer)
	}
	result.Overall = evaluation.Overall()
	return result, nil
}

func (s *Service) record(ctx context.Context, scope string, result domain.QuestionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok, err := s.loadSession(ctx, scope)
	if err != nil {
		return err
	}
	if !ok {
		session = domain.PracticeSession{Timestamp: s.clock().UTC()}
	}
	session.QuestionsAndResponses = append(session.QuestionsAndResponses, result)

	encoded, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	scores, err := json.Marshal(result.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	values := []struct{ key, value string }{
		{KeySessionData, string(encoded)},
		{KeyLastQuestion, result.Question},
		{KeyLastResponse, result.Response},
		{KeyLastResults, string(scores)},
	}
	for _, v := range values {
		if err := s.store.Set(ctx, scope, v.key, v.value); err != nil {
			return fmt.Errorf("store %s: %w", v.key, err)
		}
	}
	return nil
}

// Report summarizes the scope's session. Sessions written by older clients
// carry only the last question's keys and report as a single question.
func (s *Service) Report(ctx context.Context, scope string) (domain.Report, error) {
	session, ok, err := s.loadSession(ctx, scope)
	if err != nil {
		return domain.Report{}, err
	}
	if !ok {
		session, ok, err = s.loadLegacy(ctx, scope)
		if err != nil {
			return domain.Report{}, err
		}
	}
	if !ok || len(session.QuestionsAndResponses) == 0 {
		return domain.Report{}, ErrNoResults
	}

	questions := make([]domain.QuestionResult, len(session.QuestionsAndResponses))
	for i, q := range session.QuestionsAndResponses {
		q.Overall = q.Results.Overall()
		questions[i] = q
	}
	averages, overall := domain.Aggregate(questions)
	best, improvement := domain.Progress(questions)

	timestamp := session.Timestamp
	if timestamp.IsZero() {
		timestamp = s.clock().UTC()
	}
	return domain.Report{
		ID:          uuid.NewString(),
		Questions:   questions,
		Averages:    averages,
		Overall:     overall,
		Best:        best,
		Improvement: improvement,
		Timestamp:   timestamp,
	}, nil
}

// Reset forgets every practice value held for scope.
func (s *Service) Reset(ctx context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(ctx, scope); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	return nil
}

func (s *Service) loadSession(ctx context.Context, scope string) (domain.PracticeSession, bool, error) {
	raw, ok, err := s.store.Get(ctx, scope, KeySessionData)
	if err != nil || !ok {
		return domain.PracticeSession{}, false, err
	}
	var session domain.PracticeSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		s.logger.Warn("discarding unreadable session data", "scope", scope, "err", err)
		return domain.PracticeSession{}, false, nil
	}
	return session, true, nil
}

func (s *Service) loadLegacy(ctx context.Context, scope string) (domain.PracticeSession, bool, error) {
	question, okQ, err := s.store.Get(ctx, scope, KeyLastQuestion)
	if err != nil {
		return domain.PracticeSession{}, false, err
	}
	response, okR, err := s.store.Get(ctx, scope, KeyLastResponse)
	if err != nil {
		return domain.PracticeSession{}, false, err
	}
	raw, okS, err := s.store.Get(ctx, scope, KeyLastResults)
	if err != nil {
		return domain.PracticeSession{}, false, err
	}
	if !okQ || !okR || !okS {
		return domain.PracticeSession{}, false, nil
	}

	var results domain.Evaluation
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		s.logger.Warn("discarding unreadable legacy results", "scope", scope, "err", err)
		return domain.PracticeSession{}, false, nil
	}
	return domain.PracticeSession{
		QuestionsAndResponses: []domain.QuestionResult{{Question: question, Response: response, Results: results}},
	}, true, nil
}
