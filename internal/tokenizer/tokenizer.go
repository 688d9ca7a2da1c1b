package tokenizer

// Estimator counts tokens for budget accounting. The context builder only
// depends on this interface so a model-exact tokenizer can replace the
// heuristic without touching the budget-fraction logic.
type Estimator interface {
	Estimate(text string) int
}

// Heuristic over-estimates at one token per three bytes. Conservative on
// purpose: overshooting the estimate trims context, undershooting overflows
// the model window.
type Heuristic struct{}

// Estimate returns ceil(len(text)/3), minimum 0.
func (Heuristic) Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 2) / 3
}
