package study

type Mode string

const (
	ModeTheory   Mode = "THEORY"
	ModePractice Mode = "PRACTICE"
)

func (m Mode) Valid() bool { return m == ModeTheory || m == ModePractice }

type QuizType string

const (
	QuizStandard    QuizType = "STANDARD"
	QuizMistakesFix QuizType = "MISTAKES_FIX"
)

func (q QuizType) Valid() bool { return q == QuizStandard || q == QuizMistakesFix }

type QuizStatus string

const (
	StatusGenerating QuizStatus = "GENERATING"
	StatusInProgress QuizStatus = "IN_PROGRESS"
	StatusCompleted  QuizStatus = "COMPLETED"
)

type ItemKind string

const (
	KindImage   ItemKind = "image"
	KindPDFPage ItemKind = "pdf_page"
	KindText    ItemKind = "text"
)

type UploadStatus string

const (
	UploadQueued     UploadStatus = "queued"
	UploadProcessing UploadStatus = "processing"
	UploadRetrying   UploadStatus = "retrying"
	UploadFailed     UploadStatus = "failed"
)

type ErrorClass string

const (
	ErrorClassNone       ErrorClass = ""
	ErrorClassRecitation ErrorClass = "recitation"
	ErrorClassUnknown    ErrorClass = "unknown"
)

// Models lists every gorm model for automigration.
func Models() []any {
	return []any{
		&StudyMaterial{},
		&MaterialPreview{},
		&QuizSession{},
	}
}
