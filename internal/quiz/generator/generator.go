package generator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	"github.com/yungbote/studyquiz-backend/internal/observability"
	pkgerrors "github.com/yungbote/studyquiz-backend/internal/pkg/errors"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
	"github.com/yungbote/studyquiz-backend/internal/quiz/session"
)

type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, req study.QuestionRequest) ([]study.Question, error)
}

// credentialed is implemented by clients that can tell up front whether calls would be refused.
type credentialed interface {
	HasCredentials() bool
}

type Store interface {
	GetMaterial(ctx context.Context, id uuid.UUID) (*study.StudyMaterial, error)
	GetSession(ctx context.Context, id uuid.UUID) (*study.QuizSession, error)
	SaveSession(ctx context.Context, s *study.QuizSession) error
	UpdateSession(ctx context.Context, s *study.QuizSession) error
	DeleteSession(ctx context.Context, id uuid.UUID) error
}

// Notifier extends the session events with the blocking prompt raised on missing credentials.
type Notifier interface {
	session.Notifier
	PipelineBlocked(reason string)
}

type nopNotifier struct{ session.NopNotifier }

func (nopNotifier) PipelineBlocked(string) {}

// Generator creates quiz sessions and fills them with questions in the background.
// Callers observe progress through the persisted session state and the notifier.
type Generator struct {
	log      *logger.Logger
	client   QuestionGenerator
	store    Store
	notifier Notifier
	now      func() time.Time
	wg       sync.WaitGroup
}

func New(log *logger.Logger, client QuestionGenerator, store Store, notifier Notifier) *Generator {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Generator{
		log:      log.With("service", "QuizGenerator"),
		client:   client,
		store:    store,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type job struct {
	material *study.StudyMaterial
	session  *study.QuizSession
	mistakes []study.Mistake
}

// StartGeneration creates a GENERATING session for the material and returns it once persisted.
// Question generation continues after the call returns. For MISTAKES_FIX the base session must
// hold at least one incorrect answer, otherwise ErrNoMistakes is returned and nothing is created.
// A client without credentials fails the call with a MissingCredentials error before anything is created.
func (g *Generator) StartGeneration(ctx context.Context, materialID uuid.UUID, quizType study.QuizType, baseSessionID *uuid.UUID) (*study.QuizSession, error) {
	if !quizType.Valid() {
		return nil, fmt.Errorf("quiz type %q: %w", quizType, pkgerrors.ErrInvalidArgument)
	}
	if err := g.checkCredentials(quizType); err != nil {
		return nil, err
	}
	material, err := g.store.GetMaterial(ctx, materialID)
	if err != nil {
		return nil, fmt.Errorf("load material: %w", err)
	}

	var mistakes []study.Mistake
	if quizType == study.QuizMistakesFix {
		if baseSessionID == nil {
			return nil, fmt.Errorf("mistakes quiz needs a base session: %w", pkgerrors.ErrInvalidArgument)
		}
		base, err := g.store.GetSession(ctx, *baseSessionID)
		if err != nil {
			return nil, fmt.Errorf("load base session: %w", err)
		}
		if base.MaterialID != material.ID {
			return nil, fmt.Errorf("base session belongs to another material: %w", pkgerrors.ErrInvalidArgument)
		}
		mistakes = session.Mistakes(base)
		if len(mistakes) == 0 {
			g.record(quizType, "no_mistakes")
			return nil, pkgerrors.ErrNoMistakes
		}
	}

	s, err := g.create(ctx, material.ID, quizType)
	if err != nil {
		return nil, err
	}

	bg := context.WithoutCancel(ctx)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		_ = g.generateInto(bg, job{material: material, session: s, mistakes: mistakes})
	}()
	return s, nil
}

// StartBackgroundGeneration creates one STANDARD session per material up front, in input order,
// then generates them one after another. Unknown material ids are skipped. Missing credentials
// stop the batch and remove the sessions that were not generated yet.
func (g *Generator) StartBackgroundGeneration(ctx context.Context, materialIDs []uuid.UUID) ([]*study.QuizSession, error) {
	if err := g.checkCredentials(study.QuizStandard); err != nil {
		return nil, err
	}
	materials := make([]*study.StudyMaterial, 0, len(materialIDs))
	for _, id := range materialIDs {
		m, err := g.store.GetMaterial(ctx, id)
		if errors.Is(err, pkgerrors.ErrNotFound) {
			g.log.Warn("skipping unknown material", "material_id", id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load material %s: %w", id, err)
		}
		materials = append(materials, m)
	}

	jobs := make([]job, 0, len(materials))
	out := make([]*study.QuizSession, 0, len(materials))
	for _, m := range materials {
		s, err := g.create(ctx, m.ID, study.QuizStandard)
		if err != nil {
			g.log.Error("create generating session failed", "material_id", m.ID, "error", err)
			continue
		}
		jobs = append(jobs, job{material: m, session: s})
		out = append(out, s)
	}
	if len(jobs) == 0 {
		return out, nil
	}

	bg := context.WithoutCancel(ctx)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		for i, j := range jobs {
			err := g.generateInto(bg, j)
			if pkgerrors.KindOf(err) != pkgerrors.KindMissingCredentials {
				continue
			}
			for _, rest := range jobs[i+1:] {
				g.discard(bg, rest.session, "blocked")
			}
			return
		}
	}()
	return out, nil
}

// Wait blocks until all background generation started so far has finished.
func (g *Generator) Wait() {
	g.wg.Wait()
}

func (g *Generator) create(ctx context.Context, materialID uuid.UUID, quizType study.QuizType) (*study.QuizSession, error) {
	s := &study.QuizSession{
		ID:          uuid.New(),
		MaterialID:  materialID,
		SessionType: quizType,
		Status:      study.StatusGenerating,
		CreatedAt:   g.now(),
	}
	s.SetAnswers(map[string]study.UserAnswer{})
	if err := g.store.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("save generating session: %w", err)
	}
	g.notifier.SessionCreated(s)
	return s, nil
}

// generateInto fills the job's session with questions. A failure removes the session; a session
// removed elsewhere while the request was in flight is left removed.
func (g *Generator) generateInto(ctx context.Context, j job) error {
	start := time.Now()
	log := g.log.With("session_id", j.session.ID, "material_id", j.material.ID, "quiz_type", j.session.SessionType)

	questions, err := g.client.GenerateQuestions(ctx, study.QuestionRequest{
		Image:            j.material.PreviewImage(),
		ExtractedText:    j.material.ExtractedText,
		Mode:             j.material.Mode,
		QuizType:         j.session.SessionType,
		PreviousMistakes: j.mistakes,
	})
	if err == nil {
		err = g.fill(ctx, j.session, questions)
		if errors.Is(err, pkgerrors.ErrNotFound) {
			log.Info("session removed during generation, dropping questions", "elapsed", time.Since(start).String())
			g.record(j.session.SessionType, "discarded")
			return err
		}
	}
	if err != nil {
		log.Error("quiz generation failed, removing session", "error", err, "elapsed", time.Since(start).String())
		if pkgerrors.KindOf(err) == pkgerrors.KindMissingCredentials {
			g.notifier.PipelineBlocked(blockedReason(err))
			g.discard(ctx, j.session, "blocked")
			return err
		}
		g.discard(ctx, j.session, "failed")
		return err
	}
	log.Info("quiz generated", "questions", len(questions), "elapsed", time.Since(start).String())
	g.record(j.session.SessionType, "succeeded")
	return nil
}

func (g *Generator) discard(ctx context.Context, s *study.QuizSession, result string) {
	if err := g.store.DeleteSession(ctx, s.ID); err != nil {
		g.log.Error("remove generating session", "session_id", s.ID, "error", err)
	}
	g.notifier.SessionRemoved(s.ID)
	g.record(s.SessionType, result)
}

// fill persists the generated questions. It only updates the existing row, so a session deleted
// meanwhile, alone or with its material, yields ErrNotFound instead of being written back.
func (g *Generator) fill(ctx context.Context, s *study.QuizSession, questions []study.Question) error {
	fresh := make([]study.Question, len(questions))
	for i, q := range questions {
		q.ID = uuid.NewString()
		fresh[i] = q
	}
	next, err := session.Begin(s, fresh)
	if err != nil {
		return err
	}
	if err := g.store.UpdateSession(ctx, next); err != nil {
		return fmt.Errorf("save generated session: %w", err)
	}
	g.notifier.SessionUpdated(next)
	return nil
}

func (g *Generator) checkCredentials(quizType study.QuizType) error {
	c, ok := g.client.(credentialed)
	if !ok || c.HasCredentials() {
		return nil
	}
	g.record(quizType, "blocked")
	err := pkgerrors.MissingCredentials()
	g.notifier.PipelineBlocked(blockedReason(err))
	return err
}

func blockedReason(err error) string {
	var pe *pkgerrors.PipelineError
	if errors.As(err, &pe) && pe.Code != "" {
		return pe.Code
	}
	return "API_KEY_MISSING"
}

func (g *Generator) record(quizType study.QuizType, result string) {
	if metrics := observability.Current(); metrics != nil {
		metrics.IncGeneration(string(quizType), result)
	}
}
