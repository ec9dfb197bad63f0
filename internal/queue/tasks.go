package queue

const (
	TypePaperAnalyze = "paper:analyze"
	TypePaperIngest  = "paper:ingest"
)

// PaperAnalyzePayload drives one pipeline run on the worker.
type PaperAnalyzePayload struct {
	PaperID            string `json:"paper_id"`
	UserID             string `json:"user_id"`
	Provider           string `json:"provider,omitempty"`
	ExtractCoreContent bool   `json:"extract_core_content"`
	AnalyzeExperiments bool   `json:"analyze_experiments"`
	AnalyzeReferences  bool   `json:"analyze_references"`
}

// PaperIngestPayload extracts text from an uploaded file into the paper
// record, then chains into analysis.
type PaperIngestPayload struct {
	PaperID            string `json:"paper_id"`
	UserID             string `json:"user_id"`
	FileType           string `json:"file_type"`
	Provider           string `json:"provider,omitempty"`
	ExtractCoreContent bool   `json:"extract_core_content"`
	AnalyzeExperiments bool   `json:"analyze_experiments"`
	AnalyzeReferences  bool   `json:"analyze_references"`
}
