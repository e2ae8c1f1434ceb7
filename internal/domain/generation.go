// Package domain holds the value types exchanged between the generator,
// the judge and the pipeline that composes them.
package domain

// GenerationTask describes one sampling call against the completion service.
// Tasks are immutable and consumed exactly once.
type GenerationTask struct {
	// Index is the 1-based submission position of this task.
	Index int `json:"index"`

	// Prompt is sent verbatim as the single user message.
	Prompt string `json:"prompt"`

	// Model selects the completion model.
	Model string `json:"model"`

	// Temperature is forwarded to the service without local validation.
	Temperature float64 `json:"temperature"`
}

// NewGenerationTasks builds count tasks indexed 1..count that share the same
// prompt, model and temperature.
func NewGenerationTasks(prompt, model string, count int, temperature float64) []GenerationTask {
	if count < 1 {
		return nil
	}
	tasks := make([]GenerationTask, count)
	for i := range tasks {
		tasks[i] = GenerationTask{
			Index:       i + 1,
			Prompt:      prompt,
			Model:       model,
			Temperature: temperature,
		}
	}
	return tasks
}

// GenerationResult is the outcome of a single GenerationTask.
// Text always holds something printable: the model answer on success or the
// FormatError rendering of Err on failure. Err is the tag callers should use
// to tell the two apart.
type GenerationResult struct {
	// Index matches the GenerationTask that produced this result.
	Index int `json:"index"`

	// Text is the answer or the marked error string.
	Text string `json:"text"`

	// Err is non-nil when the task failed.
	Err error `json:"-"`
}

// Failed reports whether the task behind this result failed.
func (r GenerationResult) Failed() bool { return r.Err != nil }

// SucceededResult creates a successful GenerationResult.
func SucceededResult(index int, text string) GenerationResult {
	return GenerationResult{Index: index, Text: text}
}

// FailedResult creates a failure GenerationResult whose text carries the
// error marker.
func FailedResult(index int, err error) GenerationResult {
	return GenerationResult{Index: index, Text: FormatError(err), Err: err}
}

// Texts returns the ordered text view of results, one string per result.
func Texts(results []GenerationResult) []string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return texts
}

// BatchSummary condenses a generation batch for reporting.
type BatchSummary struct {
	// Total is the number of results in the batch.
	Total int `json:"total"`

	// Succeeded counts results without an error tag.
	Succeeded int `json:"succeeded"`

	// Failed counts results with an error tag.
	Failed int `json:"failed"`

	// NearDuplicates counts successful answers that closely match an
	// earlier successful answer in the batch.
	NearDuplicates int `json:"near_duplicates"`

	// Compared is how many successful answers entered the similarity pass.
	// It is zero when the pass was skipped.
	Compared int `json:"compared"`

	// MeanSimilarity is the mean pairwise similarity (0.0-1.0) between
	// compared answers. It is zero when fewer than two answers were compared.
	MeanSimilarity float64 `json:"mean_similarity"`
}

// Summarize counts successes and failures in results. Similarity fields are
// left for the caller to fill.
func Summarize(results []GenerationResult) BatchSummary {
	s := BatchSummary{Total: len(results)}
	for _, r := range results {
		if r.Failed() {
			s.Failed++
			continue
		}
		s.Succeeded++
	}
	return s
}

// AllSucceeded reports whether no result in the batch failed.
func (s BatchSummary) AllSucceeded() bool { return s.Total > 0 && s.Failed == 0 }
