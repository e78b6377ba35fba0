// Package metrics constructs the metrics the application will track.
package metrics

import (
	"expvar"
	"time"
)

var m metrics

type metrics struct {
	answers          *expvar.Int
	cancellations    *expvar.Int
	errors           *expvar.Int
	panics           *expvar.Int
	evictions        *expvar.Int
	evictedTokens    *expvar.Int
	modelFileLoad    *avgMetric
	prefillTime      *avgMetric
	timeToFirstToken *avgMetric
	answerUsage      *usage
}

func init() {
	m = metrics{
		answers:          expvar.NewInt("llamactx_answers"),
		cancellations:    expvar.NewInt("llamactx_cancellations"),
		errors:           expvar.NewInt("llamactx_errors"),
		panics:           expvar.NewInt("llamactx_panics"),
		evictions:        expvar.NewInt("llamactx_evictions"),
		evictedTokens:    expvar.NewInt("llamactx_evicted_tokens"),
		modelFileLoad:    newAvgMetric("llamactx_model_load"),
		prefillTime:      newAvgMetric("llamactx_prefill"),
		timeToFirstToken: newAvgMetric("llamactx_ttft"),
		answerUsage:      newUsage("llamactx_usage_answers"),
	}
}

// AddAnswers increments the answers metric by 1.
func AddAnswers() int64 {
	m.answers.Add(1)
	return m.answers.Value()
}

// AddCancellations increments the cancellations metric by 1.
func AddCancellations() int64 {
	m.cancellations.Add(1)
	return m.cancellations.Value()
}

// AddErrors increments the errors metric by 1.
func AddErrors() int64 {
	m.errors.Add(1)
	return m.errors.Value()
}

// AddPanics increments the panics metric by 1.
func AddPanics() int64 {
	m.panics.Add(1)
	return m.panics.Value()
}

// AddEviction records one eviction that removed the specified number of
// tokens from a context.
func AddEviction(tokens int) {
	m.evictions.Add(1)
	m.evictedTokens.Add(int64(tokens))
}

// AddModelFileLoadTime captures the specified duration for loading a model file.
func AddModelFileLoadTime(duration time.Duration) {
	m.modelFileLoad.add(duration.Seconds())
}

// AddPrefillTime captures the specified duration for evaluating a prompt.
func AddPrefillTime(duration time.Duration) {
	m.prefillTime.add(duration.Seconds())
}

// AddTimeToFirstToken captures the specified duration for ttft.
func AddTimeToFirstToken(duration time.Duration) {
	m.timeToFirstToken.add(duration.Seconds())
}

// AddAnswerUsage captures the specified usage values for an answer.
func AddAnswerUsage(promptTokens, outputTokens, contextTokens int, tokensPerSecond float64) {
	data := usageData{
		PromptTokens:    promptTokens,
		OutputTokens:    outputTokens,
		ContextTokens:   contextTokens,
		TokensPerSecond: tokensPerSecond,
	}

	m.answerUsage.add(data)
}
