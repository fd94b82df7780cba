package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/teacher-eval-api/internal/dto"
	"github.com/noah-isme/teacher-eval-api/internal/models"
	"github.com/noah-isme/teacher-eval-api/internal/observability"
	"github.com/noah-isme/teacher-eval-api/internal/repository"
	"github.com/noah-isme/teacher-eval-api/internal/scoring"
)

var (
	// ErrDuplicateSubmission indicates the evaluator already answered for this target and period.
	ErrDuplicateSubmission = errors.New("evaluation already submitted")
	// ErrFormMismatch indicates the answers were written for a different form than the endpoint serves.
	ErrFormMismatch = errors.New("form does not match evaluation endpoint")
	// ErrIncompleteForm indicates a rating question was left unanswered.
	ErrIncompleteForm = errors.New("evaluation form incomplete")
	// ErrInvalidScore indicates an answer outside the accepted values.
	ErrInvalidScore = errors.New("invalid answer")
	// ErrSelfEvaluation indicates an evaluator targeted themselves.
	ErrSelfEvaluation = errors.New("evaluators cannot evaluate themselves")
	// ErrBlankPeriod indicates a period made only of whitespace.
	ErrBlankPeriod = errors.New("period must not be blank")
)

// AnswerError points at the question that broke a form rule. It unwraps to
// one of the submission sentinels.
type AnswerError struct {
	Err          error
	QuestionCode string
	Reason       string
}

func (e *AnswerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err, e.Reason)
}

func (e *AnswerError) Unwrap() error {
	return e.Err
}

func answerError(sentinel error, code, format string, args ...interface{}) error {
	return &AnswerError{Err: sentinel, QuestionCode: code, Reason: fmt.Sprintf(format, args...)}
}

// Evaluator is the authenticated user submitting a form.
type Evaluator struct {
	ID   uint
	Role string
}

// RecomputeEnqueuer schedules an asynchronous recompute of a teacher's period.
type RecomputeEnqueuer interface {
	Enqueue(ctx context.Context, teacherID uint, period string) (string, error)
}

// EvaluationService validates and records evaluation submissions.
type EvaluationService interface {
	Submit(ctx context.Context, evaluator Evaluator, kind models.EvaluationType, req dto.EvaluationSubmitRequest) (dto.EvaluationResponse, error)
	ListMine(ctx context.Context, evaluatorID uint, period string) ([]dto.EvaluationResponse, error)
}

// EvaluationSideEffects groups the best-effort collaborators run after a submission.
type EvaluationSideEffects struct {
	PeerAssignments       repository.PeerAssignmentRepository
	EvaluationAssignments repository.EvaluationAssignmentRepository
	Audit                 AuditRecorder
	Enqueuer              RecomputeEnqueuer
}

type evaluationService struct {
	repo        repository.EvaluationRepository
	aggregation AggregationService
	effects     EvaluationSideEffects
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewEvaluationService constructs the submission gatekeeper.
func NewEvaluationService(repo repository.EvaluationRepository, aggregation AggregationService, effects EvaluationSideEffects, validate *validator.Validate, logger zerolog.Logger) EvaluationService {
	return &evaluationService{
		repo:        repo,
		aggregation: aggregation,
		effects:     effects,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "evaluation_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/teacher-eval-api/internal/service/evaluation"),
		now:         time.Now,
	}
}

// AnonymousToken fingerprints a submission identity. Student tokens cover
// course, teacher, period and evaluator. Peer and department-head tokens drop
// the course and carry the type instead, so the unique index rejects a second
// review of the same teacher and period from any course.
func AnonymousToken(kind models.EvaluationType, courseID, teacherID uint, period string, evaluatorID uint) string {
	raw := fmt.Sprintf("%d|%d|%s|%d", courseID, teacherID, period, evaluatorID)
	if kind != models.EvaluationTypeStudent {
		raw = fmt.Sprintf("%d|%s|%d|%s", teacherID, period, evaluatorID, kind)
	}
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (s *evaluationService) Submit(ctx context.Context, evaluator Evaluator, kind models.EvaluationType, req dto.EvaluationSubmitRequest) (dto.EvaluationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "evaluations.submit", trace.WithAttributes(
		attribute.String("evaluation.type", string(kind)),
		attribute.Int64("teacher.id", int64(req.TeacherID)),
		attribute.Int64("course.id", int64(req.CourseID)),
	))
	defer span.End()

	outcome := "rejected"
	defer func() {
		observability.Submissions().WithLabelValues(string(kind), outcome).Inc()
	}()

	reject := func(status string, err error) (dto.EvaluationResponse, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		return dto.EvaluationResponse{}, err
	}

	if err := s.validator.Struct(req); err != nil {
		return reject("validation_failed", err)
	}
	if !kind.Valid() {
		return reject("unknown_form", fmt.Errorf("%w: unknown form %q", ErrFormMismatch, kind))
	}
	if evaluator.ID == req.TeacherID {
		return reject("self_evaluation", ErrSelfEvaluation)
	}

	period := strings.TrimSpace(req.Period)
	if period == "" {
		return reject("blank_period", ErrBlankPeriod)
	}
	token := AnonymousToken(kind, req.CourseID, req.TeacherID, period, evaluator.ID)

	var (
		exists bool
		err    error
	)
	if kind == models.EvaluationTypeStudent {
		exists, err = s.repo.ExistsByToken(ctx, token)
	} else {
		exists, err = s.repo.ExistsForEvaluator(ctx, evaluator.ID, req.TeacherID, period, kind)
	}
	if err != nil {
		return reject("duplicate_lookup_failed", err)
	}
	if exists {
		return reject("duplicate", ErrDuplicateSubmission)
	}

	form, answers, err := s.checkAnswers(kind, req)
	if err != nil {
		return reject("invalid_form", err)
	}

	var total float64
	if !req.ConflictOfInterest {
		total = scoring.Normalize(form.RatingAnswers(answers), form.RatingCount())
	}

	model := models.EvaluationResponse{
		Type:               kind,
		EvaluatorID:        evaluator.ID,
		TeacherID:          req.TeacherID,
		CourseID:           req.CourseID,
		Period:             period,
		AnonymousToken:     token,
		Answers:            datatypes.NewJSONSlice(answers),
		TotalScore:         total,
		ConflictOfInterest: req.ConflictOfInterest,
		SubmittedAt:        s.now().UTC(),
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		if errors.Is(err, repository.ErrDuplicateResponse) {
			return reject("duplicate", ErrDuplicateSubmission)
		}
		return reject("persist_failed", err)
	}
	outcome = "accepted"
	span.SetAttributes(attribute.Float64("evaluation.total_score", total))

	if err := s.aggregation.ApplySubmission(ctx, model); err != nil {
		s.logger.Error().Err(err).
			Uint("teacher_id", model.TeacherID).
			Str("period", model.Period).
			Msg("incremental stats refresh failed, scheduling recompute")
		if s.effects.Enqueuer != nil {
			if _, enqueueErr := s.effects.Enqueuer.Enqueue(ctx, model.TeacherID, model.Period); enqueueErr != nil {
				s.logger.Error().Err(enqueueErr).Msg("failed to enqueue recompute after refresh failure")
			}
		}
	}

	s.runSideEffects(ctx, evaluator, model)

	return dto.NewEvaluationResponse(model), nil
}

// checkAnswers enforces the form rules in order: every code must belong to the
// endpoint's form, scores must be in range, and every rating question must be
// answered unless a peer declared a conflict of interest.
func (s *evaluationService) checkAnswers(kind models.EvaluationType, req dto.EvaluationSubmitRequest) (*scoring.Form, []models.Answer, error) {
	if models.EvaluationType(req.Form) != kind {
		return nil, nil, fmt.Errorf("%w: %q answers cannot be sent to the %s endpoint", ErrFormMismatch, req.Form, kind)
	}
	form, _ := scoring.FormFor(kind)

	for _, a := range req.Answers {
		if _, ok := form.Lookup(a.QuestionCode); ok {
			continue
		}
		if other, ok := scoring.KindOf(a.QuestionCode); ok {
			return nil, nil, answerError(ErrFormMismatch, a.QuestionCode, "question %s belongs to the %s form, submit it to the %s endpoint", a.QuestionCode, other, other)
		}
		return nil, nil, answerError(ErrFormMismatch, a.QuestionCode, "unknown question %s", a.QuestionCode)
	}

	if req.ConflictOfInterest && kind != models.EvaluationTypePeer {
		return nil, nil, fmt.Errorf("%w: conflict of interest applies to peer reviews only", ErrInvalidScore)
	}

	answers := make([]models.Answer, 0, len(req.Answers))
	byCode := make(map[string]models.Answer, len(req.Answers))
	for _, a := range req.Answers {
		if _, dup := byCode[a.QuestionCode]; dup {
			return nil, nil, answerError(ErrInvalidScore, a.QuestionCode, "question %s answered twice", a.QuestionCode)
		}
		q, _ := form.Lookup(a.QuestionCode)
		answer := models.Answer{QuestionCode: a.QuestionCode}

		switch q.Type {
		case scoring.QuestionRating:
			if a.Score != nil {
				score := *a.Score
				if score != models.ScoreNotApplicable && (score < 1 || score > scoring.MaxRating) {
					return nil, nil, answerError(ErrInvalidScore, a.QuestionCode, "question %s score %d must be 1-%d or %d", a.QuestionCode, score, scoring.MaxRating, models.ScoreNotApplicable)
				}
				answer.Score = &score
			}
		case scoring.QuestionText:
			if a.Score != nil {
				return nil, nil, answerError(ErrInvalidScore, a.QuestionCode, "question %s takes a text response", a.QuestionCode)
			}
			answer.Response = strings.TrimSpace(s.sanitizer.Sanitize(a.Response))
		}

		byCode[a.QuestionCode] = answer
		answers = append(answers, answer)
	}

	if !req.ConflictOfInterest {
		for _, q := range form.RatingQuestions() {
			if a, ok := byCode[q.Code]; !ok || !a.HasScore() {
				return nil, nil, answerError(ErrIncompleteForm, q.Code, "question %s requires a score", q.Code)
			}
		}
	}

	return form, answers, nil
}

func (s *evaluationService) runSideEffects(ctx context.Context, evaluator Evaluator, model models.EvaluationResponse) {
	log := s.logger.With().
		Uint("evaluator_id", evaluator.ID).
		Uint("teacher_id", model.TeacherID).
		Uint("course_id", model.CourseID).
		Str("period", model.Period).
		Logger()

	switch model.Type {
	case models.EvaluationTypePeer:
		if s.effects.PeerAssignments == nil {
			return
		}
		if _, err := s.effects.PeerAssignments.Deactivate(ctx, evaluator.ID, model.TeacherID, model.CourseID, model.Period); err != nil {
			log.Warn().Err(err).Msg("failed to close peer assignment")
		}
	case models.EvaluationTypeStudent:
		if s.effects.EvaluationAssignments != nil {
			if _, err := s.effects.EvaluationAssignments.MarkCompleted(ctx, evaluator.ID, model.TeacherID, model.CourseID, model.Period); err != nil {
				log.Warn().Err(err).Msg("failed to complete evaluation assignment")
			}
		}
		if s.effects.Audit != nil {
			actorID := evaluator.ID
			_, err := s.effects.Audit.Record(ctx, AuditEntry{
				ActorID:    &actorID,
				ActorRole:  evaluator.Role,
				Action:     AuditActionEvaluationSubmit,
				Level:      models.AuditLevelInfo,
				EntityType: "evaluation_response",
				Details: map[string]interface{}{
					"responseId": model.ID,
					"teacherId":  model.TeacherID,
					"courseId":   model.CourseID,
					"period":     model.Period,
				},
			})
			if err != nil {
				log.Warn().Err(err).Msg("failed to audit evaluation submission")
			}
		}
	}
}

func (s *evaluationService) ListMine(ctx context.Context, evaluatorID uint, period string) ([]dto.EvaluationResponse, error) {
	filter := repository.EvaluationFilter{EvaluatorID: &evaluatorID, Period: strings.TrimSpace(period)}
	responses, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return dto.NewEvaluationResponseSlice(responses), nil
}
