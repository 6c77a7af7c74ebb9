package study

// QueuedItem is one unit of pending ingestion. IDs are caller-assigned and never reused.
type QueuedItem struct {
	ID          string   `json:"id"`
	Kind        ItemKind `json:"kind"`
	SourceRef   string   `json:"sourceRef"`
	PageNumber  int      `json:"pageNumber,omitempty"`
	DisplayName string   `json:"displayName"`
}

// PendingUpload is the observable, process-local state of a QueuedItem.
type PendingUpload struct {
	ID             string       `json:"id"`
	DisplayName    string       `json:"displayName"`
	PreviewImage   []byte       `json:"previewImage,omitempty"`
	Status         UploadStatus `json:"status"`
	AttemptCount   int          `json:"attemptCount"`
	MaxAttempts    int          `json:"maxAttempts"`
	LastError      string       `json:"lastError,omitempty"`
	ErrorClass     ErrorClass   `json:"errorClass,omitempty"`
	CitationURLs   []string     `json:"citationUrls,omitempty"`
	RetainedSource *QueuedItem  `json:"retainedSource,omitempty"`
}

// Clone returns a copy that shares no slices with p.
func (p *PendingUpload) Clone() PendingUpload {
	out := *p
	if p.PreviewImage != nil {
		out.PreviewImage = append([]byte(nil), p.PreviewImage...)
	}
	if p.CitationURLs != nil {
		out.CitationURLs = append([]string(nil), p.CitationURLs...)
	}
	if p.RetainedSource != nil {
		src := *p.RetainedSource
		out.RetainedSource = &src
	}
	return out
}

// AnalysisResult is what the analysis client returns for one normalized payload.
type AnalysisResult struct {
	Title          string `json:"title"`
	Summary        string `json:"summary"`
	Mode           Mode   `json:"mode"`
	ExtractedText  string `json:"extractedText"`
	WasParaphrased bool   `json:"wasParaphrased"`
}
