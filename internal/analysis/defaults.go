package analysis

import "github.com/zhaxinji/recagent/internal/models"

// Placeholder values substituted when a phase exhausts its retries. They
// keep the record well-formed for downstream phases and the UI.

func defaultSections() []models.Section {
	return []models.Section{{
		Title:   "Full text",
		Level:   1,
		Summary: "Automatic section detection was unavailable for this paper.",
	}}
}

func defaultMethodology() *models.Methodology {
	return &models.Methodology{
		ModelArchitecture: "Methodology could not be extracted automatically; refer to the paper text.",
		KeyComponents: []models.KeyComponent{{
			Name:        "unknown",
			Description: "Automatic component extraction was unavailable.",
		}},
		Algorithm:   "Not extracted.",
		Innovations: []string{"Not extracted."},
	}
}

func defaultExperimentData() *models.ExperimentData {
	return &models.ExperimentData{
		Datasets:        []string{},
		Baselines:       []string{},
		Metrics:         []string{},
		ResultsSummary:  "Experimental results could not be extracted automatically.",
		AblationStudies: "",
	}
}

func defaultKeyFindings() []string {
	return []string{"Key findings could not be extracted automatically; refer to the paper text."}
}

func defaultWeaknesses() []models.Weakness {
	return []models.Weakness{{
		Type:        "other",
		Description: "Automatic weakness analysis was unavailable for this paper.",
		Impact:      "",
		Improvement: "",
	}}
}

func defaultFutureWork() []models.FutureWork {
	return []models.FutureWork{{
		Direction:   "Manual review",
		Description: "Future-work analysis was unavailable; consult the paper's conclusion.",
	}}
}

func defaultCodeImplementation(title string) string {
	return "# Code implementation for \"" + title + "\"\n" +
		"# Automatic code generation was unavailable for this paper.\n"
}

func defaultReferences() []string {
	return []string{}
}
