package models

import (
	"time"

	"github.com/google/uuid"
)

// Paper is an ingested academic paper plus the analysis fields the
// pipeline fills in phase by phase.
type Paper struct {
	ID                  uuid.UUID       `json:"id" db:"id"`
	OwnerID             uuid.UUID       `json:"owner_id" db:"owner_id"`
	Title               string          `json:"title" db:"title"`
	Content             string          `json:"content,omitempty" db:"content"`
	FilePath            string          `json:"file_path,omitempty" db:"file_path"`
	AnalysisStatus      string          `json:"analysis_status" db:"analysis_status"`
	AnalysisProgress    int             `json:"analysis_progress" db:"analysis_progress"`
	AnalysisError       string          `json:"analysis_error,omitempty" db:"analysis_error"`
	Sections            []Section       `json:"sections,omitempty" db:"sections"`
	Methodology         *Methodology    `json:"methodology,omitempty" db:"methodology"`
	KeyFindings         []string        `json:"key_findings,omitempty" db:"key_findings"`
	Weaknesses          []Weakness      `json:"weaknesses,omitempty" db:"weaknesses"`
	FutureWork          []FutureWork    `json:"future_work,omitempty" db:"future_work"`
	ExperimentData      *ExperimentData `json:"experiment_data,omitempty" db:"experiment_data"`
	CodeImplementation  string          `json:"code_implementation,omitempty" db:"code_implementation"`
	References          []string        `json:"references,omitempty" db:"references"`
	AnalysisCompletedAt *time.Time      `json:"analysis_completed_at,omitempty" db:"analysis_completed_at"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
}

const (
	AnalysisPending    = "pending"
	AnalysisProcessing = "processing"
	AnalysisCompleted  = "completed"
	AnalysisFailed     = "failed"
	AnalysisPartial    = "partial"
)

// Section is one structural unit of the paper with a short summary.
type Section struct {
	Title   string `json:"title"`
	Level   int    `json:"level"`
	Summary string `json:"summary"`
}

// Methodology describes the paper's technical approach.
type Methodology struct {
	ModelArchitecture string         `json:"modelArchitecture"`
	KeyComponents     []KeyComponent `json:"keyComponents"`
	Algorithm         string         `json:"algorithm"`
	Innovations       []string       `json:"innovations"`
}

type KeyComponent struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Weakness struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Impact      string `json:"impact"`
	Improvement string `json:"improvement"`
}

type FutureWork struct {
	Direction   string `json:"direction"`
	Description string `json:"description"`
}

type ExperimentData struct {
	Datasets        []string `json:"datasets"`
	Baselines       []string `json:"baselines"`
	Metrics         []string `json:"metrics"`
	ResultsSummary  string   `json:"results_summary"`
	AblationStudies string   `json:"ablation_studies"`
}
