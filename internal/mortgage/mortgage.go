// Package mortgage looks up the 30-year fixed mortgage rate published by FRED.
package mortgage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-data-pipeline/internal/logger"
)

const (
	// SeriesID is the FRED series for the 30-year fixed rate average.
	SeriesID = "MORTGAGE30US"

	// RefinanceThreshold is the rate gap (percentage points) above which
	// refinancing is suggested.
	RefinanceThreshold = 1.0

	latestKey = "latest"
)

// ErrNoObservations is returned when the series has no usable rows.
var ErrNoObservations = errors.New("no observations in series")

// Observation is one published rate.
type Observation struct {
	Date string  `json:"date"`
	Rate float64 `json:"rate"`
}

// Client fetches the series CSV and caches the latest observation.
type Client struct {
	SeriesURL string
	http      *http.Client
	cache     *cache.Cache
}

func NewClient(seriesURL string, ttl time.Duration) *Client {
	return &Client{
		SeriesURL: seriesURL,
		http:      &http.Client{Timeout: 30 * time.Second},
		cache:     cache.New(ttl, 2*ttl),
	}
}

// Latest returns the most recent non-missing observation.
func (c *Client) Latest(ctx context.Context) (Observation, error) {
	if cached, found := c.cache.Get(latestKey); found {
		return cached.(Observation), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SeriesURL, nil)
	if err != nil {
		return Observation{}, fmt.Errorf("Latest: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Observation{}, fmt.Errorf("Latest: get series: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Observation{}, fmt.Errorf("Latest: get series: unexpected status %d", resp.StatusCode)
	}

	obs, err := LatestObservation(resp.Body)
	if err != nil {
		return Observation{}, fmt.Errorf("Latest: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().Str("date", obs.Date).Float64("rate", obs.Rate).Msg("Fetched mortgage rate")
	c.cache.Set(latestKey, obs, cache.DefaultExpiration)
	return obs, nil
}

// LatestObservation reads a FRED graph CSV and returns its last row with a
// value. Missing values are published as "." or left empty.
func LatestObservation(r io.Reader) (Observation, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return Observation{}, fmt.Errorf("LatestObservation: read header: %w", err)
	}

	dateCol, valueCol := -1, -1
	for i, h := range header {
		switch strings.ToUpper(strings.TrimSpace(h)) {
		case "OBSERVATION_DATE", "DATE":
			dateCol = i
		case SeriesID:
			valueCol = i
		}
	}
	if dateCol < 0 || valueCol < 0 {
		return Observation{}, fmt.Errorf("LatestObservation: missing observation_date or %s column", SeriesID)
	}

	var latest *Observation
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Observation{}, fmt.Errorf("LatestObservation: read row: %w", err)
		}
		if len(row) <= valueCol || len(row) <= dateCol {
			continue
		}
		value := strings.TrimSpace(row[valueCol])
		if value == "" || value == "." {
			continue
		}
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		latest = &Observation{Date: strings.TrimSpace(row[dateCol]), Rate: rate}
	}
	if latest == nil {
		return Observation{}, ErrNoObservations
	}
	return *latest, nil
}

// Advice compares a borrower's rate with the market rate.
type Advice struct {
	Success          bool    `json:"success"`
	YourRate         float64 `json:"your_rate"`
	CurrentRate      float64 `json:"current_rate"`
	RateDifference   float64 `json:"rate_difference"`
	ShouldRefinance  bool    `json:"should_refinance"`
	Date             string  `json:"date"`
	RefinanceMessage string  `json:"refinance_message"`
}

// NewAdvice suggests refinancing when yourRate exceeds the market rate by
// more than RefinanceThreshold.
func NewAdvice(yourRate float64, obs Observation) Advice {
	diff, _ := decimal.NewFromFloat(yourRate).Sub(decimal.NewFromFloat(obs.Rate)).Float64()
	should := diff > RefinanceThreshold
	msg := "Current rate difference doesn't warrant refinancing"
	if should {
		msg = "Consider refinancing"
	}
	return Advice{
		Success:          true,
		YourRate:         yourRate,
		CurrentRate:      obs.Rate,
		RateDifference:   diff,
		ShouldRefinance:  should,
		Date:             obs.Date,
		RefinanceMessage: msg,
	}
}
