package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	"github.com/yungbote/studyquiz-backend/internal/observability"
	pkgerrors "github.com/yungbote/studyquiz-backend/internal/pkg/errors"
	"github.com/yungbote/studyquiz-backend/internal/pkg/httpx"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

const DefaultModel = "gemini-3-pro-preview"

// Client is the multimodal analysis client used by the ingestion pipeline and the quiz generator.
type Client interface {
	AnalyzeImage(ctx context.Context, image []byte) (*study.AnalysisResult, error)
	AnalyzeText(ctx context.Context, rawText string) (*study.AnalysisResult, error)
	GenerateQuestions(ctx context.Context, req study.QuestionRequest) ([]study.Question, error)
	// HasCredentials reports whether an API key was configured.
	HasCredentials() bool
	Close() error
}

type Config struct {
	APIKey string
	Model  string
}

// generator is the subset of *genai.GenerativeModel the client calls.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type client struct {
	log    *logger.Logger
	sdk    *genai.Client
	model  string
	tracer trace.Tracer

	image     generator
	text      generator
	questions generator

	seed func() string
}

// New builds a client. An empty API key yields a client whose calls all fail with MissingCredentials.
func New(ctx context.Context, cfg Config, baseLog *logger.Logger) (Client, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	log := baseLog.With("service", "GeminiClient", "model", model)

	if strings.TrimSpace(cfg.APIKey) == "" {
		log.Warn("GEMINI_API_KEY not set; analysis calls will require credentials")
		return newClient(log, model, nil, nil, nil), nil
	}

	sdk, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	jsonModel := func(schema *genai.Schema) *genai.GenerativeModel {
		m := sdk.GenerativeModel(model)
		m.ResponseMIMEType = "application/json"
		m.ResponseSchema = schema
		return m
	}
	c := newClient(log, model,
		jsonModel(imageAnalysisSchema()),
		jsonModel(textAnalysisSchema()),
		jsonModel(questionsSchema()),
	)
	c.sdk = sdk
	return c, nil
}

func newClient(log *logger.Logger, model string, image, text, questions generator) *client {
	return &client{
		log:       log,
		model:     model,
		tracer:    otel.Tracer("studyquiz/gemini"),
		image:     image,
		text:      text,
		questions: questions,
		seed: func() string {
			return strconv.FormatInt(rand.Int63(), 36)
		},
	}
}

func (c *client) HasCredentials() bool {
	return c.questions != nil
}

func (c *client) Close() error {
	if c.sdk == nil {
		return nil
	}
	return c.sdk.Close()
}

func (c *client) AnalyzeImage(ctx context.Context, image []byte) (result *study.AnalysisResult, err error) {
	ctx, done := c.begin(ctx, "analyze_image")
	defer func() { done(err) }()

	if c.image == nil {
		return nil, pkgerrors.MissingCredentials()
	}
	if len(image) == 0 {
		return nil, pkgerrors.NormalizationFailed(errors.New("empty image payload"))
	}
	blob := genai.Blob{MIMEType: mimetype.Detect(image).String(), Data: image}

	resp, err := c.image.GenerateContent(ctx, blob, genai.Text(literalImagePrompt))
	first, recited, err := recitationOf(resp, err)
	if err != nil {
		return nil, err
	}
	paraphrased := false
	if recited {
		c.log.Info("recitation detected, retrying with paraphrase prompt")
		paraphrased = true
		resp, err = c.image.GenerateContent(ctx, blob, genai.Text(paraphraseImagePrompt))
		second, recitedAgain, err := recitationOf(resp, err)
		if err != nil {
			return nil, err
		}
		if recitedAgain {
			urls := dedupe(append(citationURLs(first), citationURLs(second)...))
			c.log.Warn("recitation blocked after paraphrase", "citation_count", len(urls))
			return nil, pkgerrors.Recitation(urls)
		}
	}

	var parsed struct {
		Title         string `json:"title"`
		Summary       string `json:"summary"`
		ExtractedText string `json:"extractedText"`
		Mode          string `json:"mode"`
	}
	if err := decodeJSON(resp, &parsed); err != nil {
		return nil, err
	}
	return &study.AnalysisResult{
		Title:          parsed.Title,
		Summary:        parsed.Summary,
		Mode:           normalizeMode(parsed.Mode),
		ExtractedText:  parsed.ExtractedText,
		WasParaphrased: paraphrased,
	}, nil
}

func (c *client) AnalyzeText(ctx context.Context, rawText string) (result *study.AnalysisResult, err error) {
	ctx, done := c.begin(ctx, "analyze_text")
	defer func() { done(err) }()

	if c.text == nil {
		return nil, pkgerrors.MissingCredentials()
	}
	if strings.TrimSpace(rawText) == "" {
		return nil, pkgerrors.NormalizationFailed(errors.New("empty text payload"))
	}

	resp, err := c.text.GenerateContent(ctx, genai.Text(textAnalysisPrompt(rawText)))
	if _, recited, err := recitationOf(resp, err); err != nil {
		return nil, err
	} else if recited {
		return nil, pkgerrors.Recitation(nil)
	}

	var parsed struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
		Mode    string `json:"mode"`
	}
	if err := decodeJSON(resp, &parsed); err != nil {
		return nil, err
	}
	return &study.AnalysisResult{
		Title:         parsed.Title,
		Summary:       parsed.Summary,
		Mode:          normalizeMode(parsed.Mode),
		ExtractedText: rawText,
	}, nil
}

func (c *client) GenerateQuestions(ctx context.Context, req study.QuestionRequest) (questions []study.Question, err error) {
	ctx, done := c.begin(ctx, "generate_questions")
	defer func() { done(err) }()

	if c.questions == nil {
		return nil, pkgerrors.MissingCredentials()
	}

	parts := []genai.Part{genai.Text(questionPrompt(req, c.seed()))}
	if attachImage(req) {
		blob := genai.Blob{MIMEType: mimetype.Detect(req.Image).String(), Data: req.Image}
		parts = append([]genai.Part{blob}, parts...)
	}

	resp, err := c.questions.GenerateContent(ctx, parts...)
	if err == nil {
		var raw []study.Question
		if err = decodeJSON(resp, &raw); err == nil {
			questions = validQuestions(raw)
			if len(questions) == 0 {
				err = errors.New("no usable questions in response")
			}
		}
	}
	if err != nil {
		c.log.Error("question generation failed", "quiz_type", req.QuizType, "mode", req.Mode, "error", err)
		if pkgerrors.KindOf(err) == pkgerrors.KindMissingCredentials {
			return nil, err
		}
		return nil, pkgerrors.Unknown("GENERATION_FAILED", err, false)
	}
	return questions, nil
}

func (c *client) begin(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := c.tracer.Start(ctx, "gemini."+op, trace.WithAttributes(
		attribute.String("gemini.model", c.model),
	))
	start := time.Now()
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = pkgerrors.KindOf(err).String()
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.SetAttributes(attribute.String("gemini.outcome", outcome))
		span.End()
		if metrics := observability.Current(); metrics != nil {
			metrics.ObserveAnalysis(op, outcome, time.Since(start))
		}
	}
}

// recitationOf inspects a GenerateContent result. It returns the first candidate and whether it was
// stopped for recitation, or a classified error for any other failure.
func recitationOf(resp *genai.GenerateContentResponse, err error) (*genai.Candidate, bool, error) {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		if blocked.Candidate != nil && blocked.Candidate.FinishReason == genai.FinishReasonRecitation {
			return blocked.Candidate, true, nil
		}
		return nil, false, pkgerrors.Unknown("CONTENT_BLOCKED", err, true)
	}
	if err != nil {
		if httpx.IsRetryableError(err) {
			return nil, false, pkgerrors.Transient(err)
		}
		return nil, false, pkgerrors.Unknown("ANALYSIS_FAILED", err, false)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, false, pkgerrors.Unknown("EMPTY_RESPONSE", errors.New("no candidates"), false)
	}
	cand := resp.Candidates[0]
	return cand, cand.FinishReason == genai.FinishReasonRecitation, nil
}

func citationURLs(cand *genai.Candidate) []string {
	if cand == nil || cand.CitationMetadata == nil {
		return nil
	}
	out := []string{}
	for _, src := range cand.CitationMetadata.CitationSources {
		if src == nil || src.URI == nil {
			continue
		}
		if u := strings.TrimSpace(*src.URI); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

func decodeJSON(resp *genai.GenerateContentResponse, out any) error {
	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return pkgerrors.Unknown("EMPTY_RESPONSE", errors.New("empty response from Gemini"), false)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return pkgerrors.Unknown("MALFORMED_RESPONSE", fmt.Errorf("decode: %w", err), false)
	}
	return nil
}

func normalizeMode(raw string) study.Mode {
	m := study.Mode(strings.ToUpper(strings.TrimSpace(raw)))
	if m.Valid() {
		return m
	}
	return study.ModeTheory
}

func validQuestions(raw []study.Question) []study.Question {
	out := make([]study.Question, 0, len(raw))
	for _, q := range raw {
		if strings.TrimSpace(q.Text) == "" || len(q.Options) < 2 || !q.HasOption(q.CorrectAnswer) {
			continue
		}
		out = append(out, q)
	}
	return out
}
