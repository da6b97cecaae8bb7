package services

import (
	"math/rand/v2"
	"slices"
	"time"

	"anomaly-dashboard/internal/errors"
	"anomaly-dashboard/internal/models"
)

const (
	DefaultBatchSize         = 200
	DefaultAnomalyCount      = 5
	DefaultDays              = 90
	DefaultAnomalyMultiplier = 10

	firstProductID = 1000
	productIDCount = 20
	minQuantity    = 1
	maxQuantity    = 9
	minSalesAmount = 100
	maxSalesAmount = 999
)

var (
	DefaultStartDate = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

	productNames = []string{"Product_A", "Product_B", "Product_C"}
	categories   = []string{"Electronics", "Furniture", "Clothing"}
)

type SynthesizerConfig struct {
	BatchSize    int
	AnomalyCount int
	StartDate    time.Time
	Days         int
	// Multiplier applied to the batch maximum to build injected amounts.
	Multiplier float64
}

func DefaultSynthesizerConfig() SynthesizerConfig {
	return SynthesizerConfig{
		BatchSize:    DefaultBatchSize,
		AnomalyCount: DefaultAnomalyCount,
		StartDate:    DefaultStartDate,
		Days:         DefaultDays,
		Multiplier:   DefaultAnomalyMultiplier,
	}
}

// Synthesizer produces batches of synthetic sales with a known number of
// injected extreme amounts. It is not safe for concurrent use.
type Synthesizer struct {
	cfg SynthesizerConfig
	rng *rand.Rand
}

// NewSynthesizer returns a synthesizer drawing from rng. A nil rng gets a
// randomly seeded source, so every batch differs.
func NewSynthesizer(cfg SynthesizerConfig, rng *rand.Rand) *Synthesizer {
	if cfg.Multiplier == 0 {
		cfg.Multiplier = DefaultAnomalyMultiplier
	}
	if cfg.Days <= 0 {
		cfg.Days = DefaultDays
	}
	if cfg.StartDate.IsZero() {
		cfg.StartDate = DefaultStartDate
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Synthesizer{cfg: cfg, rng: rng}
}

// Generate returns BatchSize records. AnomalyCount distinct records, chosen
// uniformly, have their amount overwritten with Multiplier times the batch
// maximum taken before the overwrite. The indices of those records are
// returned in ascending order.
func (s *Synthesizer) Generate() ([]models.Transaction, []int, error) {
	if s.cfg.AnomalyCount < 0 || s.cfg.BatchSize <= s.cfg.AnomalyCount {
		return nil, nil, errors.InsufficientData(s.cfg.BatchSize, s.cfg.AnomalyCount)
	}

	batch := make([]models.Transaction, s.cfg.BatchSize)
	maxAmount := 0.0
	for i := range batch {
		batch[i] = s.record()
		maxAmount = max(maxAmount, batch[i].SalesAmount)
	}

	injected := s.rng.Perm(len(batch))[:s.cfg.AnomalyCount]
	slices.Sort(injected)

	extreme := maxAmount * s.cfg.Multiplier
	for _, idx := range injected {
		batch[idx].SalesAmount = extreme
	}

	return batch, injected, nil
}

func (s *Synthesizer) record() models.Transaction {
	return models.Transaction{
		Date:         s.cfg.StartDate.AddDate(0, 0, s.rng.IntN(s.cfg.Days)),
		ProductID:    firstProductID + s.rng.IntN(productIDCount),
		ProductName:  productNames[s.rng.IntN(len(productNames))],
		Category:     categories[s.rng.IntN(len(categories))],
		QuantitySold: minQuantity + s.rng.IntN(maxQuantity-minQuantity+1),
		SalesAmount:  float64(minSalesAmount + s.rng.IntN(maxSalesAmount-minSalesAmount+1)),
	}
}
