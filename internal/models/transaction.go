package models

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

type Transaction struct {
	Date         time.Time `json:"date"`
	ProductID    int       `json:"product_id"`
	ProductName  string    `json:"product_name"`
	Category     string    `json:"category"`
	QuantitySold int       `json:"quantity_sold"`
	SalesAmount  float64   `json:"sales_amount"`
}

// Key identifies a record by date and product id. Keys are not unique within
// a batch; positions are used wherever records must be told apart.
func (t Transaction) Key() RecordKey {
	return RecordKey{Date: t.Date, ProductID: t.ProductID}
}

type RecordKey struct {
	Date      time.Time
	ProductID int
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s#%d", k.Date.Format(DateLayout), k.ProductID)
}

type Classification string

const (
	Normal  Classification = "Normal"
	Anomaly Classification = "Anomaly"
)

type ScoredTransaction struct {
	Transaction
	ZScore         float64        `json:"z_score"`
	Classification Classification `json:"classification"`
}

type AnnotatedTransaction struct {
	ScoredTransaction
	Explanation string `json:"explanation"`
}

type Summary struct {
	TotalRecords int `json:"total_records"`
	AnomalyCount int `json:"anomaly_count"`
}

type ChartPoint struct {
	Date           string         `json:"date"`
	SalesAmount    float64        `json:"sales_amount"`
	Classification Classification `json:"classification"`
}

type CategoryBreakdown struct {
	Category     string  `json:"category"`
	Records      int     `json:"records"`
	Anomalies    int     `json:"anomalies"`
	TotalSales   float64 `json:"total_sales"`
	QuantitySold int     `json:"quantity_sold"`
}
