package costs

import (
	"context"
	"math"
	"time"

	"studio/internal/domain"
)

const (
	// TokensPerImage is the fixed output-token charge per generated image.
	TokensPerImage = 1290
	// PricePerMillionOutput is the USD price per million output tokens.
	PricePerMillionOutput = 30
)

// Estimate converts usage into USD, rounded to 4 decimal places. Token count
// preference: totalTokens, then outputTokens, then imagesOut at the fixed
// per-image rate. Pure and deterministic; used for live costing and reporting.
func Estimate(imagesOut, outputTokens, totalTokens int) float64 {
	tokens := totalTokens
	if tokens <= 0 {
		tokens = outputTokens
	}
	if tokens <= 0 {
		tokens = imagesOut * TokensPerImage
	}
	if tokens <= 0 {
		return 0
	}
	usd := float64(tokens) / 1_000_000 * PricePerMillionOutput
	return round4(usd)
}

// ForUsage estimates the cost of a recorded usage snapshot.
func ForUsage(usage domain.JobUsage) float64 {
	return Estimate(usage.ImagesOut, usage.OutputTokens, usage.TotalTokens)
}

// Summary aggregates spend over the standard reporting windows.
type Summary struct {
	Today  float64 `json:"today"`
	Last7  float64 `json:"last7"`
	Last30 float64 `json:"last30"`
}

// Summarize totals the cost of succeeded jobs finishing today, over the last
// 7 days and over the last 30 days.
func Summarize(ctx context.Context, jobs domain.JobRepository, now time.Time) (*Summary, error) {
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	today, err := jobs.SumCostSince(ctx, todayStart)
	if err != nil {
		return nil, err
	}
	last7, err := jobs.SumCostSince(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		return nil, err
	}
	last30, err := jobs.SumCostSince(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		return nil, err
	}

	return &Summary{
		Today:  round4(today),
		Last7:  round4(last7),
		Last30: round4(last30),
	}, nil
}

func round4(v float64) float64 {
	return math.Round(v*10_000) / 10_000
}
