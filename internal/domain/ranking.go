package domain

import "fmt"

// RankingRequest is the single evaluation request handed to the judge.
// Answers are referenced by their 1-based position.
type RankingRequest struct {
	// OriginalPrompt is the question the answers respond to.
	OriginalPrompt string `json:"original_prompt"`

	// Answers holds one entry per generation, failures included.
	Answers []string `json:"answers"`

	// JudgeModel selects the model that performs the ranking.
	JudgeModel string `json:"judge_model"`

	// TopK is how many answers the judge is asked to select.
	TopK int `json:"top_k"`
}

// Normalize checks the request and clamps TopK into [1, len(Answers)].
// It returns the adjusted request and whether TopK was changed. Structural
// problems (no prompt, no model, no answers) are reported as a
// ValidationError.
func (r RankingRequest) Normalize() (RankingRequest, bool, error) {
	verr := NewValidationError("RankingRequest")
	if r.OriginalPrompt == "" {
		verr.AddError(ErrPromptEmpty.Error())
	}
	if r.JudgeModel == "" {
		verr.AddError(ErrModelEmpty.Error())
	}
	if len(r.Answers) == 0 {
		verr.AddError(ErrNoAnswers.Error())
	}
	if verr.HasErrors() {
		return r, false, verr
	}

	clamped := false
	switch {
	case r.TopK < 1:
		r.TopK = 1
		clamped = true
	case r.TopK > len(r.Answers):
		r.TopK = len(r.Answers)
		clamped = true
	}
	return r, clamped, nil
}

// RankingResult carries the judge's free-form evaluation.
// The selection inside Text is not parsed.
type RankingResult struct {
	// Text is the judge's prose or the marked error string.
	Text string `json:"text"`

	// TopK is the effective number of answers the judge was asked for.
	TopK int `json:"top_k"`

	// Path is where the evaluation was persisted. Empty on failure.
	Path string `json:"path,omitempty"`

	// Err is non-nil when ranking failed.
	Err error `json:"-"`
}

// Failed reports whether the ranking step failed.
func (r RankingResult) Failed() bool { return r.Err != nil }

// FailedRanking creates a failure RankingResult.
func FailedRanking(topK int, err error) RankingResult {
	return RankingResult{Text: FormatError(err), TopK: topK, Err: err}
}

// AnswerLabel returns the label the judge sees for the answer at 1-based
// position i.
func AnswerLabel(i int) string { return fmt.Sprintf("ANSWER %d", i) }
