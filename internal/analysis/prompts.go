package analysis

// Prompt templates for every pipeline phase. Each instructs the model to
// return only JSON of an explicit shape; the extractors tolerate camelCase
// and snake_case key variants and re-emit the canonical form.

const sectionsSystem = `You are an expert reader of recommender-systems research papers. You respond with JSON only, never prose.`

const sectionsPrompt = `Identify the structural sections of the following paper and summarize each in one or two sentences.

Return ONLY a JSON object of this exact shape:
{"sections": [{"title": "<section heading>", "level": <1 for top-level, 2 for subsection>, "summary": "<1-2 sentence summary>"}]}

Paper text:
{{content}}`

const methodologySystem = `You are an expert in recommender-systems methodology. You respond with JSON only, never prose.`

const methodologyPrompt = `Extract the methodology of the following paper.

Return ONLY a JSON object of this exact shape:
{"modelArchitecture": "<overall architecture description>",
 "keyComponents": [{"name": "<component>", "description": "<what it does>"}],
 "algorithm": "<training/inference algorithm summary>",
 "innovations": ["<novel technique 1>", "<novel technique 2>"]}

All four keys are required. Paper text:
{{content}}`

const experimentsSystem = `You are an expert at reading experimental sections of research papers. You respond with JSON only, never prose.`

const experimentsPrompt = `Extract the experimental setup and results of the following paper.

Return ONLY a JSON object of this exact shape:
{"datasets": ["<dataset>"], "baselines": ["<baseline method>"], "metrics": ["<metric>"],
 "results_summary": "<main quantitative results>", "ablation_studies": "<ablation findings, or empty string>"}

Paper text:
{{content}}`

const findingsSystem = `You are an expert summarizer of research contributions. You respond with JSON only, never prose.`

const findingsPrompt = `List the 3-6 most important findings or contributions of the following paper.

Return ONLY a JSON object of this exact shape:
{"key_findings": ["<finding 1>", "<finding 2>", "<finding 3>"]}

Paper text:
{{content}}`

const weaknessesSystem = `You are a critical but fair peer reviewer for a recommender-systems venue. You respond with JSON only, never prose.`

const weaknessesPrompt = `Identify concrete weaknesses or limitations of the following paper.

Return ONLY a JSON object of this exact shape:
{"weaknesses": [{"type": "<methodological|experimental|theoretical|scalability|other>",
  "description": "<the weakness>", "impact": "<why it matters>",
  "improvement": "<how it could be addressed>"}]}

Paper text:
{{content}}`

const futureWorkSystem = `You are a research advisor suggesting follow-up work. You respond with JSON only, never prose.`

const futureWorkPrompt = `Based on the following paper, list promising future research directions. Include directions the authors name and natural extensions they do not.

Return ONLY a JSON object of this exact shape:
{"future_work": [{"direction": "<short title>", "description": "<1-3 sentence description>"}]}

Paper text:
{{content}}`

const codeSystem = `You are a senior machine-learning engineer who writes clean, runnable PyTorch. Respond with a single fenced python code block and nothing else.`

const codePrompt = `Implement the core model described by the following methodology as a single self-contained Python module using PyTorch. Include the model class, a loss function, and a minimal training loop skeleton. Use the paper's notation in comments where it helps.

Methodology:
{{methodology}}

Paper title: {{title}}`

const referencesSystem = `You extract bibliographies. You respond with JSON only, never prose.`

const referencesPrompt = `Extract up to 30 references cited by the following paper.

Return ONLY a JSON object of this exact shape:
{"references": ["<formatted reference string>"]}

Paper text:
{{content}}`
