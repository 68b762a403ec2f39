package features

import (
	"sort"
	"time"

	"CandleCast/internal/domain/models"
)

// SentimentSeries is a time-ordered snapshot history for point-in-time joins.
type SentimentSeries []models.SentimentSnapshot

// NewSentimentSeries sorts a copy of snaps by time.
func NewSentimentSeries(snaps []models.SentimentSnapshot) SentimentSeries {
	s := append(SentimentSeries(nil), snaps...)
	sort.Slice(s, func(i, j int) bool { return s[i].TsMs < s[j].TsMs })
	return s
}

// At returns the last snapshot at or before ts, nil if none.
func (s SentimentSeries) At(tsMs int64) *models.SentimentSnapshot {
	i := sort.Search(len(s), func(i int) bool { return s[i].TsMs > tsMs })
	if i == 0 {
		return nil
	}
	return &s[i-1]
}

// AssembleAll builds vectors for a history of indicator sets, joining each
// with the sentiment known at its window end. Rejected sets are returned as
// validation errors and left out of the result.
func (a *Assembler) AssembleAll(sets []models.IndicatorSet, sentiment SentimentSeries) ([]models.FeatureVector, []error) {
	vectors := make([]models.FeatureVector, 0, len(sets))
	var rejected []error
	for _, set := range sets {
		at := time.UnixMilli(set.WindowEndMs)
		v, err := a.Assemble(set, sentiment, at)
		if err != nil {
			rejected = append(rejected, err)
			continue
		}
		vectors = append(vectors, v)
	}
	return vectors, rejected
}
