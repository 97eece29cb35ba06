// Package pricefeed resolves asset prices from an oracle and enforces a staleness bound.
package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/fluxpool/internal/types"
	"github.com/elys-network/fluxpool/internal/utils"
)

var (
	ErrNoPriceAvailable = errors.New("no price available")
	ErrStalePrice       = errors.New("price is stale")
)

// Quote is a raw oracle price: the value is Price * 10^Expo.
type Quote struct {
	Price       int64
	Expo        int32
	PublishTime time.Time
}

// Feed returns the latest quote for a price feed reference.
type Feed interface {
	Latest(ctx context.Context, ref string) (Quote, error)
}

// Resolve fetches the quote for ref and converts it into a price for assetID.
// A quote published more than maxAge before now fails with ErrStalePrice; maxAge 0 disables the check.
func Resolve(ctx context.Context, feed Feed, assetID, ref string, maxAge time.Duration, now time.Time) (types.Price, error) {
	if ref == "" {
		return types.Price{}, fmt.Errorf("%w: asset %s has no price feed", ErrNoPriceAvailable, assetID)
	}
	q, err := feed.Latest(ctx, ref)
	if err != nil {
		return types.Price{}, err
	}
	if maxAge > 0 && now.Sub(q.PublishTime) > maxAge {
		return types.Price{}, fmt.Errorf("%w: %s published %s, older than %s", ErrStalePrice, assetID,
			q.PublishTime.UTC().Format(time.RFC3339), maxAge)
	}

	value, err := utils.PriceToDec(q.Price, q.Expo)
	if err != nil {
		return types.Price{}, fmt.Errorf("%w: %s: %w", ErrNoPriceAvailable, assetID, err)
	}
	return types.Price{AssetID: assetID, Value: value, PublishTime: q.PublishTime}, nil
}

// QuoteFromDec builds a quote carrying value with 18 decimals of precision.
func QuoteFromDec(value sdkmath.LegacyDec, publishTime time.Time) (Quote, error) {
	scaled := value.BigInt()
	if !scaled.IsInt64() {
		return Quote{}, fmt.Errorf("%w: %s out of range", utils.ErrInvalidPrice, value)
	}
	return Quote{Price: scaled.Int64(), Expo: -sdkmath.LegacyPrecision, PublishTime: publishTime}, nil
}
