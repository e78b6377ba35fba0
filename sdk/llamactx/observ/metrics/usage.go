package metrics

type usageData struct {
	PromptTokens    int
	OutputTokens    int
	ContextTokens   int
	TokensPerSecond float64
}

type usage struct {
	promptTokens    *avgMetric
	outputTokens    *avgMetric
	contextTokens   *avgMetric
	tokensPerSecond *avgMetric
}

func newUsage(name string) *usage {
	return &usage{
		promptTokens:    newAvgMetric(name + "_tkns_prompt"),
		outputTokens:    newAvgMetric(name + "_tkns_output"),
		contextTokens:   newAvgMetric(name + "_tkns_context"),
		tokensPerSecond: newAvgMetric(name + "_tkns_persecond"),
	}
}

func (u *usage) add(data usageData) {
	u.promptTokens.add(float64(data.PromptTokens))
	u.outputTokens.add(float64(data.OutputTokens))
	u.contextTokens.add(float64(data.ContextTokens))
	u.tokensPerSecond.add(data.TokensPerSecond)
}
