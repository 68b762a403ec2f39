// Package lunarcrush fetches social metrics for a coin.
package lunarcrush

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"CandleCast/internal/domain/models"
	domsvc "CandleCast/internal/domain/service"
	pkghttp "CandleCast/pkg/http"
)

var quoteAssets = []string{"USDT", "USDC", "BUSD", "FDUSD", "USD", "EUR", "BTC"}

// Symbol strips the quote asset from a pair, BTCUSDT -> BTC.
func Symbol(pair string) string {
	p := strings.ToUpper(pair)
	for _, q := range quoteAssets {
		if strings.HasSuffix(p, q) && len(p) > len(q) {
			return strings.TrimSuffix(p, q)
		}
	}
	return p
}

type coinResponse struct {
	Data struct {
		Sentiment       *float64 `json:"sentiment"`
		GalaxyScore     *float64 `json:"galaxy_score"`
		AltRank         *float64 `json:"alt_rank"`
		Interactions    *float64 `json:"interactions_24h"`
		SocialDominance *float64 `json:"social_dominance"`
	} `json:"data"`
}

// Client calls the public coin endpoint.
type Client struct {
	baseURL string
	http    *pkghttp.Client
	now     func() time.Time
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: pkghttp.NewClient(
			pkghttp.WithTimeout(timeout),
			pkghttp.WithHeader("Authorization", "Bearer "+apiKey),
			pkghttp.WithHeader("Accept", "application/json"),
		),
		now: time.Now,
	}
}

func opt(v *float64) models.NullFloat {
	if v == nil {
		return models.Null()
	}
	return models.Some(*v)
}

// Fetch returns the current snapshot for pair.
func (c *Client) Fetch(ctx context.Context, pair string) (models.SentimentSnapshot, error) {
	var resp coinResponse
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/coins/%s/v1", c.baseURL, strings.ToLower(Symbol(pair))),
	}, &resp)
	if err != nil {
		return models.SentimentSnapshot{}, fmt.Errorf("lunarcrush %s: %w", pair, err)
	}
	d := resp.Data
	return models.SentimentSnapshot{
		Pair:            strings.ToUpper(pair),
		TsMs:            c.now().UnixMilli(),
		Sentiment:       opt(d.Sentiment),
		GalaxyScore:     opt(d.GalaxyScore),
		AltRank:         opt(d.AltRank),
		Interactions:    opt(d.Interactions),
		SocialDominance: opt(d.SocialDominance),
	}, nil
}

var _ domsvc.SentimentSource = (*Client)(nil)
