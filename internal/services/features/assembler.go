// Package features turns indicator sets into validated model feature vectors.
package features

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"CandleCast/internal/domain/models"
)

// Candle and sentiment feature names.
const (
	Open            = "open"
	High            = "high"
	Low             = "low"
	Close           = "close"
	Volume          = "volume"
	Return          = "candle_return"
	RangePct        = "range_pct"
	Sentiment       = "sentiment"
	GalaxyScore     = "galaxy_score"
	SocialDominance = "social_dominance"
	Interactions    = "interactions"
	SentimentStale  = "sentiment_stale"

	SentimentMA24h    = "sentiment_ma_24h"
	SentimentStd24h   = "sentiment_std_24h"
	InteractionsMA24h = "interactions_ma_24h"
)

// SentimentLags are the look-backs of the lagged sentiment features.
var SentimentLags = []time.Duration{time.Hour, 2 * time.Hour, 4 * time.Hour}

// sentimentRolling is the span of the rolling sentiment statistics.
const sentimentRolling = 24 * time.Hour

var candleFeatureNames = []string{Open, High, Low, Close, Volume, Return, RangePct}

// SentimentFeatureNames are optional: missing values are zero-filled.
var SentimentFeatureNames = sentimentFeatureNames()

func sentimentFeatureNames() []string {
	out := []string{Sentiment, GalaxyScore, SocialDominance, Interactions}
	for _, lag := range SentimentLags {
		out = append(out, SentimentLagName(lag))
	}
	for _, lag := range SentimentLags {
		out = append(out, GalaxyScoreLagName(lag))
	}
	return append(out, SentimentMA24h, SentimentStd24h, InteractionsMA24h, SentimentStale)
}

// SentimentLagName is the feature holding sentiment lag earlier, e.g. sentiment_lag_2h.
func SentimentLagName(lag time.Duration) string {
	return fmt.Sprintf("sentiment_lag_%dh", int(lag.Hours()))
}

// GalaxyScoreLagName is the feature holding galaxy score lag earlier.
func GalaxyScoreLagName(lag time.Duration) string {
	return fmt.Sprintf("galaxy_score_lag_%dh", int(lag.Hours()))
}

// DefaultFeatureNames is the model input for a given set of indicator names.
func DefaultFeatureNames(indicatorNames []string) []string {
	out := make([]string, 0, len(candleFeatureNames)+len(indicatorNames)+len(TimeFeatureNames)+len(SentimentFeatureNames))
	out = append(out, candleFeatureNames...)
	out = append(out, indicatorNames...)
	out = append(out, TimeFeatureNames...)
	return append(out, SentimentFeatureNames...)
}

// Assembler builds FeatureVectors. It holds no per-pair state and is safe for
// concurrent use.
type Assembler struct {
	staleness time.Duration
	required  []string
}

// NewAssembler creates an assembler. Every name in required must be present and
// finite in an accepted vector.
func NewAssembler(staleness time.Duration, required []string) *Assembler {
	return &Assembler{staleness: staleness, required: append([]string(nil), required...)}
}

// Required returns the feature names a vector must carry.
func (a *Assembler) Required() []string { return append([]string(nil), a.required...) }

// Lookback is how much sentiment history before a vector's time Assemble uses.
func (a *Assembler) Lookback() time.Duration {
	lb := sentimentRolling
	for _, lag := range SentimentLags {
		if lag > lb {
			lb = lag
		}
	}
	return lb + a.staleness
}

// Assemble joins an indicator set with the sentiment known at at. history must
// be ordered by time. A snapshot is used when it is at most the staleness bound
// older than the time it stands for; otherwise the field is zero. sentiment_stale
// is 1 when no current snapshot qualifies.
func (a *Assembler) Assemble(set models.IndicatorSet, history []models.SentimentSnapshot, at time.Time) (models.FeatureVector, error) {
	fields := make(map[string]float64, len(set.Values)+len(candleFeatureNames)+len(TimeFeatureNames)+len(SentimentFeatureNames))
	fields[Open] = set.Open
	fields[High] = set.High
	fields[Low] = set.Low
	fields[Close] = set.Close
	fields[Volume] = set.Volume
	fields[Return] = CandleReturn(set.Open, set.Close)
	if set.Close != 0 {
		fields[RangePct] = (set.High - set.Low) / set.Close
	}

	for name, v := range set.Values {
		if v.Valid {
			fields[name] = v.V
		}
	}
	for name, v := range TimeFeatures(set.Start()) {
		fields[name] = v
	}
	a.addSentiment(fields, SentimentSeries(history), at.UnixMilli())

	vec := models.FeatureVector{
		Pair:            set.Pair,
		DurationSeconds: set.DurationSeconds,
		WindowStartMs:   set.WindowStartMs,
		TsMs:            at.UnixMilli(),
		Close:           set.Close,
		Fields:          fields,
		SentimentStale:  fields[SentimentStale] == 1,
	}
	if err := a.validate(set, vec); err != nil {
		return models.FeatureVector{}, err
	}
	return vec, nil
}

func (a *Assembler) addSentiment(fields map[string]float64, history SentimentSeries, atMs int64) {
	if snap := a.fresh(history, atMs); snap != nil {
		fields[Sentiment] = orZero(snap.Sentiment)
		fields[GalaxyScore] = orZero(snap.GalaxyScore)
		fields[SocialDominance] = orZero(snap.SocialDominance)
		fields[Interactions] = logInteractions(snap)
		fields[SentimentStale] = 0
	} else {
		fields[Sentiment], fields[GalaxyScore], fields[SocialDominance], fields[Interactions] = 0, 0, 0, 0
		fields[SentimentStale] = 1
	}

	for _, lag := range SentimentLags {
		var sent, galaxy float64
		if snap := a.fresh(history, atMs-lag.Milliseconds()); snap != nil {
			sent, galaxy = orZero(snap.Sentiment), orZero(snap.GalaxyScore)
		}
		fields[SentimentLagName(lag)] = sent
		fields[GalaxyScoreLagName(lag)] = galaxy
	}

	fields[SentimentMA24h], fields[SentimentStd24h], fields[InteractionsMA24h] = rolling(history, atMs-sentimentRolling.Milliseconds(), atMs)
}

// fresh returns the last snapshot at or before tsMs when it is within the
// staleness bound.
func (a *Assembler) fresh(history SentimentSeries, tsMs int64) *models.SentimentSnapshot {
	snap := history.At(tsMs)
	if snap == nil || tsMs-snap.TsMs > a.staleness.Milliseconds() {
		return nil
	}
	return snap
}

// rolling returns the mean and sample standard deviation of sentiment and the
// mean log interactions over snapshots in (fromMs, toMs]. Missing values are
// skipped; an empty span yields zeros.
func rolling(history SentimentSeries, fromMs, toMs int64) (mean, std, interactions float64) {
	lo := sort.Search(len(history), func(i int) bool { return history[i].TsMs > fromMs })
	hi := sort.Search(len(history), func(i int) bool { return history[i].TsMs > toMs })

	var n, ni int
	var sum, sumSq, isum float64
	for _, s := range history[lo:hi] {
		if s.Sentiment.Finite() {
			n++
			sum += s.Sentiment.V
			sumSq += s.Sentiment.V * s.Sentiment.V
		}
		if s.Interactions.Finite() {
			ni++
			isum += logInteractions(&s)
		}
	}
	if n > 0 {
		mean = sum / float64(n)
	}
	if n > 1 {
		std = math.Sqrt(math.Max(sumSq-float64(n)*mean*mean, 0) / float64(n-1))
	}
	if ni > 0 {
		interactions = isum / float64(ni)
	}
	return mean, std, interactions
}

func logInteractions(s *models.SentimentSnapshot) float64 {
	return math.Log1p(math.Max(orZero(s.Interactions), 0))
}

func orZero(n models.NullFloat) float64 {
	if n.Finite() {
		return n.V
	}
	return 0
}

func (a *Assembler) validate(set models.IndicatorSet, vec models.FeatureVector) error {
	var missing, invalid []string
	for _, name := range a.required {
		if _, ok := vec.Fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name, v := range vec.Fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			invalid = append(invalid, name)
			delete(vec.Fields, name)
		}
	}

	if set.High < math.Max(set.Open, set.Close) || set.Low > math.Min(set.Open, set.Close) || set.Low <= 0 {
		invalid = append(invalid, High, Low)
	}
	for name, v := range vec.Fields {
		if (strings.HasPrefix(name, "rsi_") || name == models.IndStochK || name == models.IndStochD) && (v < 0 || v > 100) {
			invalid = append(invalid, name)
		}
	}
	lower, lok := vec.Fields[models.IndBBLower]
	mid, mok := vec.Fields[models.IndBBMiddle]
	upper, uok := vec.Fields[models.IndBBUpper]
	if lok && mok && uok && !(lower <= mid && mid <= upper) {
		invalid = append(invalid, models.IndBBMiddle)
	}

	if len(missing) == 0 && len(invalid) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(invalid)
	return &models.ValidationError{
		Subject: fmt.Sprintf("features %s", vec),
		Missing: missing,
		Invalid: dedupe(invalid),
	}
}

func dedupe(in []string) []string {
	out := in[:0]
	for i, s := range in {
		if i > 0 && in[i-1] == s {
			continue
		}
		out = append(out, s)
	}
	return out
}
