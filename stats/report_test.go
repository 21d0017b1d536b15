package stats

import "testing"

func TestSamplesSummarizeSampleVarianceFlag(t *testing.T) {
	s := NewSamples()
	s.Add(10)
	s.Add(14)

	pop := s.Summarize(false)
	if pop.SD != 2 {
		t.Fatalf("population SD = %v, want 2", pop.SD)
	}

	sample := s.Summarize(true)
	want := 2 * 1.4142135623730951 // sqrt(8)
	if diff := sample.SD - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("sample SD = %v, want %v", sample.SD, want)
	}
}
