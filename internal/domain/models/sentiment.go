package models

// SentimentSnapshot is a point-in-time social metric sample for one pair.
type SentimentSnapshot struct {
	Pair            string    `json:"pair"`
	TsMs            int64     `json:"ts_ms"`
	Sentiment       NullFloat `json:"sentiment"`
	GalaxyScore     NullFloat `json:"galaxy_score"`
	AltRank         NullFloat `json:"alt_rank"`
	Interactions    NullFloat `json:"interactions"`
	SocialDominance NullFloat `json:"social_dominance"`
}
