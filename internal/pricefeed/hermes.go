/*
This file fetches the latest prices from a Pyth Hermes endpoint.

Hermes answers GET /v2/updates/price/latest?ids[]=<feed id>&parsed=true with the parsed price,
its exponent and publish time for every requested feed.
*/

package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/elys-network/fluxpool/internal/logger"
)

const (
	DefaultHermesURL = "https://hermes.pyth.network"
	hermesLatestPath = "/v2/updates/price/latest"
	MAX_RETRIES      = 3
	TIMEOUT_SECONDS  = 10

	// maxHermesBody caps the response size read from Hermes
	maxHermesBody = 1 << 20
)

type hermesResponse struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Conf        string `json:"conf"`
			Expo        int32  `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"parsed"`
}

// HermesFeed queries a Pyth Hermes service.
type HermesFeed struct {
	baseURL string
	client  *http.Client
	backoff time.Duration
}

// NewHermesFeed returns a feed for baseURL, or DefaultHermesURL when empty.
func NewHermesFeed(baseURL string) *HermesFeed {
	if baseURL == "" {
		baseURL = DefaultHermesURL
	}
	return &HermesFeed{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: TIMEOUT_SECONDS * time.Second},
		backoff: time.Second,
	}
}

func normalizeFeedID(id string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(id)), "0x")
}

// Latest fetches the current quote of a feed, retrying transport and server failures.
func (f *HermesFeed) Latest(ctx context.Context, ref string) (Quote, error) {
	log := logger.GetForComponent("price_feed")
	id := normalizeFeedID(ref)

	query := url.Values{}
	query.Add("ids[]", id)
	query.Set("parsed", "true")
	endpoint := f.baseURL + hermesLatestPath + "?" + query.Encode()

	var lastErr error
	for attempt := 1; attempt <= MAX_RETRIES; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return Quote{}, fmt.Errorf("failed to build request for %s: %w", id, err)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed on attempt %d: %w", attempt, err)
			log.Warn().Err(err).Str("feed", id).Int("attempt", attempt).Msg("HTTP request failed, will retry if attempts remain")
		} else {
			q, retry, err := processHermesResponse(resp, id)
			if err == nil {
				return q, nil
			}
			lastErr = err
			if !retry {
				return Quote{}, err
			}
			log.Warn().Err(err).Str("feed", id).Int("attempt", attempt).Msg("Hermes response rejected, will retry if attempts remain")
		}

		if attempt < MAX_RETRIES {
			select {
			case <-ctx.Done():
				return Quote{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * f.backoff):
			}
		}
	}

	log.Error().Err(lastErr).Str("feed", id).Int("maxRetries", MAX_RETRIES).Msg("All retry attempts failed")
	return Quote{}, fmt.Errorf("%w: feed %s after %d attempts: %w", ErrNoPriceAvailable, id, MAX_RETRIES, lastErr)
}

// processHermesResponse decodes a response. The boolean reports whether the failure is worth retrying.
func processHermesResponse(resp *http.Response, id string) (Quote, bool, error) {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return Quote{}, false, fmt.Errorf("%w: feed %s: status %d", ErrNoPriceAvailable, id, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, true, fmt.Errorf("hermes returned status %d for %s", resp.StatusCode, id)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHermesBody+1))
	if err != nil {
		return Quote{}, true, fmt.Errorf("failed to read response body for %s: %w", id, err)
	}
	if len(body) > maxHermesBody {
		return Quote{}, false, fmt.Errorf("%w: feed %s: response exceeds %d bytes", ErrNoPriceAvailable, id, maxHermesBody)
	}

	var parsed hermesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Quote{}, false, fmt.Errorf("%w: failed to parse JSON response for %s: %w", ErrNoPriceAvailable, id, err)
	}

	for _, p := range parsed.Parsed {
		if normalizeFeedID(p.ID) != id {
			continue
		}
		price, err := strconv.ParseInt(p.Price.Price, 10, 64)
		if err != nil {
			return Quote{}, false, fmt.Errorf("%w: feed %s: bad price %q: %w", ErrNoPriceAvailable, id, p.Price.Price, err)
		}
		if p.Price.PublishTime <= 0 {
			return Quote{}, false, fmt.Errorf("%w: feed %s: invalid publish time %d", ErrNoPriceAvailable, id, p.Price.PublishTime)
		}
		return Quote{Price: price, Expo: p.Price.Expo, PublishTime: time.Unix(p.Price.PublishTime, 0).UTC()}, false, nil
	}
	return Quote{}, false, fmt.Errorf("%w: feed %s missing from response", ErrNoPriceAvailable, id)
}
