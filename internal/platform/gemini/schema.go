package gemini

import (
	"github.com/google/generative-ai-go/genai"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
)

func modeSchema(desc string) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeString,
		Enum:        []string{string(study.ModeTheory), string(study.ModePractice)},
		Description: desc,
	}
}

func imageAnalysisSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":         {Type: genai.TypeString, Description: "Topic title."},
			"summary":       {Type: genai.TypeString, Description: "Brief summary."},
			"extractedText": {Type: genai.TypeString, Description: "The full text content extracted from the page (OCR)."},
			"mode":          modeSchema("THEORY for text/info, PRACTICE for exercises."),
		},
		Required: []string{"title", "summary", "mode", "extractedText"},
	}
}

func textAnalysisSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":   {Type: genai.TypeString, Description: "Topic title based on the text content."},
			"summary": {Type: genai.TypeString, Description: "Brief summary of the text."},
			"mode":    modeSchema("THEORY for explanatory/informational content, PRACTICE for exercises/problems."),
		},
		Required: []string{"title", "summary", "mode"},
	}
}

func questionsSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"id":            {Type: genai.TypeString},
				"text":          {Type: genai.TypeString},
				"type":          {Type: genai.TypeString, Enum: []string{"multiple_choice"}},
				"options":       {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
				"correctAnswer": {Type: genai.TypeString},
				"explanation":   {Type: genai.TypeString},
			},
			Required: []string{"id", "text", "type", "options", "correctAnswer", "explanation"},
		},
	}
}
