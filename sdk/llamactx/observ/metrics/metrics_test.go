package metrics

import (
	"expvar"
	"testing"
	"time"
)

func Test_Counters(t *testing.T) {
	before := m.answers.Value()

	if got := AddAnswers(); got != before+1 {
		t.Fatalf("expected answers %d, got %d", before+1, got)
	}

	AddEviction(12)
	if v := expvar.Get("llamactx_evicted_tokens").(*expvar.Int).Value(); v < 12 {
		t.Fatalf("expected at least 12 evicted tokens, got %d", v)
	}
}

func Test_AvgMetric(t *testing.T) {
	a := newAvgMetric("llamactx_test_avg")

	a.add(1)
	a.add(3)

	if avg := a.average(); avg != 2 {
		t.Fatalf("expected average 2, got %f", avg)
	}

	if a.min.Value() != 1 || a.max.Value() != 3 {
		t.Fatalf("expected min 1 and max 3, got %f and %f", a.min.Value(), a.max.Value())
	}

	AddPrefillTime(time.Second)
	if m.prefillTime.count.Value() < 1 {
		t.Fatal("expected a prefill sample")
	}
}
