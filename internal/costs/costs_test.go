package costs

import (
	"context"
	"testing"
	"time"

	"studio/internal/domain"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name         string
		imagesOut    int
		outputTokens int
		totalTokens  int
		want         float64
	}{
		{
			name:      "one image at flat rate",
			imagesOut: 1,
			want:      0.0387,
		},
		{
			name:      "two images at flat rate",
			imagesOut: 2,
			want:      0.0774,
		},
		{
			name:         "output tokens win over image count",
			imagesOut:    5,
			outputTokens: 1000,
			want:         0.03,
		},
		{
			name:         "total tokens win over output tokens",
			imagesOut:    5,
			outputTokens: 1000,
			totalTokens:  2000,
			want:         0.06,
		},
		{
			name: "nothing billed",
			want: 0,
		},
		{
			name:        "rounding to four places",
			totalTokens: 1111,
			want:        0.0333,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Estimate(tt.imagesOut, tt.outputTokens, tt.totalTokens)
			if got != tt.want {
				t.Fatalf("Estimate(%d, %d, %d) = %v, want %v", tt.imagesOut, tt.outputTokens, tt.totalTokens, got, tt.want)
			}
		})
	}
}

func TestForUsage(t *testing.T) {
	got := ForUsage(domain.JobUsage{ImagesOut: 3})
	want := Estimate(3, 0, 0)
	if got != want {
		t.Fatalf("ForUsage = %v, want %v", got, want)
	}
}

type sumJobsStub struct {
	domain.JobRepository
	sums map[time.Time]float64
}

func (s *sumJobsStub) SumCostSince(_ context.Context, since time.Time) (float64, error) {
	return s.sums[since], nil
}

func TestSummarizeWindows(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC)
	todayStart := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	stub := &sumJobsStub{sums: map[time.Time]float64{
		todayStart:                    0.10,
		now.Add(-7 * 24 * time.Hour):  0.50,
		now.Add(-30 * 24 * time.Hour): 1.25,
	}}

	summary, err := Summarize(context.Background(), stub, now)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.Today != 0.10 || summary.Last7 != 0.50 || summary.Last30 != 1.25 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
