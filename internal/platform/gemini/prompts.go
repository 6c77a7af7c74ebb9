package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
)

const (
	textAnalysisLimit    = 15000
	questionContextLimit = 10000
	shortTextThreshold   = 50

	StandardQuestionCount = 20
	MistakesQuestionCount = 10
)

const literalImagePrompt = "Analyze this textbook page. 1. Extract the full text (OCR). 2. Determine topic and summary. 3. Decide mode. CRITICAL: Output language must match the page text."

const paraphraseImagePrompt = `You are helping a student study. Analyze this educational material image.
1. Create a descriptive TITLE for this learning topic (your own words)
2. Write a helpful SUMMARY explaining the key concepts (paraphrased)
3. For extractedText: Write detailed study notes covering ALL concepts, formulas, definitions shown. Paraphrase for learning.
4. Determine MODE: "THEORY" for explanatory content, "PRACTICE" for exercises

CRITICAL: Output in the SAME LANGUAGE as source. Paraphrase - do not copy verbatim.`

func textAnalysisPrompt(raw string) string {
	return fmt.Sprintf(`Analyze this educational text and provide:
1. A descriptive TITLE for this learning topic
2. A brief SUMMARY explaining the key concepts
3. Determine MODE: "THEORY" for explanatory content, "PRACTICE" for exercises/problems

TEXT TO ANALYZE:
"""
%s
"""

CRITICAL: Output in the SAME LANGUAGE as the input text.`, firstRunes(raw, textAnalysisLimit))
}

// QuestionCount is the number of questions requested for a quiz type.
func QuestionCount(t study.QuizType) int {
	if t == study.QuizMistakesFix {
		return MistakesQuestionCount
	}
	return StandardQuestionCount
}

func questionPrompt(req study.QuestionRequest, seed string) string {
	count := QuestionCount(req.QuizType)

	var b strings.Builder
	switch {
	case req.QuizType == study.QuizMistakesFix && len(req.PreviousMistakes) > 0:
		mistakes, _ := json.Marshal(req.PreviousMistakes)
		fmt.Fprintf(&b, `The student previously made mistakes on these specific concepts:
%s

Generate %d NEW questions that specifically target these weak points to help them understand.
Use the textbook content below as the knowledge base.
Format as JSON.`, mistakes, count)
	case req.Mode == study.ModePractice:
		fmt.Fprintf(&b, "Generate %d PRACTICE problems similar to the ones found in the text/image below, but change the numbers/context. Random Seed: %s. Format as JSON.", count, seed)
	default:
		fmt.Fprintf(&b, "Generate %d multiple-choice questions based on the text below. Focus on reading comprehension and details. Random Seed: %s. Format as JSON.", count, seed)
	}
	fmt.Fprintf(&b, "\n\nCONTEXT TEXT FROM PAGE: \"%s...\"", firstRunes(req.ExtractedText, questionContextLimit))
	b.WriteString("\n\nCRITICAL: Questions must be in the same language as the context text.")
	return b.String()
}

// attachImage reports whether the question request should carry the material image.
func attachImage(req study.QuestionRequest) bool {
	if len(req.Image) == 0 {
		return false
	}
	return req.Mode == study.ModePractice || len([]rune(strings.TrimSpace(req.ExtractedText))) < shortTextThreshold
}

func firstRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
