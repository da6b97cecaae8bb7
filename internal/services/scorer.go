package services

import (
	"math"

	"anomaly-dashboard/internal/errors"
	"anomaly-dashboard/internal/models"
)

// ZScoreThreshold is exclusive: |z| == 2 is Normal.
const ZScoreThreshold = 2.0

type Distribution struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// Describe returns the mean and sample (n-1) standard deviation of the batch's
// sales amounts.
func Describe(batch []models.Transaction) (Distribution, error) {
	n := float64(len(batch))
	if len(batch) < 2 {
		return Distribution{}, errors.DegenerateDistribution("at least 2 records are required to score a batch")
	}

	identical := true
	mean := 0.0
	for _, tx := range batch {
		mean += tx.SalesAmount
		identical = identical && tx.SalesAmount == batch[0].SalesAmount
	}
	if identical {
		return Distribution{}, errors.DegenerateDistribution("sales amounts have zero variance")
	}
	mean /= n

	variance := 0.0
	for _, tx := range batch {
		d := tx.SalesAmount - mean
		variance += d * d
	}
	stdDev := math.Sqrt(variance / (n - 1))

	if stdDev == 0 || math.IsNaN(stdDev) || math.IsInf(stdDev, 0) {
		return Distribution{}, errors.DegenerateDistribution("sales amounts have zero variance")
	}

	return Distribution{Mean: mean, StdDev: stdDev}, nil
}

// Score standardizes every record against the whole batch, injected extremes
// included, and classifies it. The input is not modified.
func Score(batch []models.Transaction) ([]models.ScoredTransaction, Distribution, error) {
	dist, err := Describe(batch)
	if err != nil {
		return nil, Distribution{}, err
	}

	scored := make([]models.ScoredTransaction, len(batch))
	for i, tx := range batch {
		z := (tx.SalesAmount - dist.Mean) / dist.StdDev
		scored[i] = models.ScoredTransaction{
			Transaction:    tx,
			ZScore:         z,
			Classification: Classify(z),
		}
	}
	return scored, dist, nil
}

// Rescore recomputes scores from the sales amounts of an already scored batch.
func Rescore(scored []models.ScoredTransaction) ([]models.ScoredTransaction, Distribution, error) {
	batch := make([]models.Transaction, len(scored))
	for i := range scored {
		batch[i] = scored[i].Transaction
	}
	return Score(batch)
}

func Classify(z float64) models.Classification {
	if math.Abs(z) > ZScoreThreshold {
		return models.Anomaly
	}
	return models.Normal
}

// Anomalies returns the anomalous records in batch order.
func Anomalies(scored []models.ScoredTransaction) []models.ScoredTransaction {
	out := make([]models.ScoredTransaction, 0)
	for _, tx := range scored {
		if tx.Classification == models.Anomaly {
			out = append(out, tx)
		}
	}
	return out
}

func Summarize(scored []models.ScoredTransaction) models.Summary {
	summary := models.Summary{TotalRecords: len(scored)}
	for _, tx := range scored {
		if tx.Classification == models.Anomaly {
			summary.AnomalyCount++
		}
	}
	return summary
}
