/*

Operations do not move tokens themselves. They return an effect list that the transfer ledger executes.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
)

// Transfer is an instruction to send Coin (denominated in the asset id) to Recipient.
type Transfer struct {
	Recipient string        `json:"recipient"`
	Coin      sdktypes.Coin `json:"coin"`
}

// Response is the result of a mutating pool operation.
type Response struct {
	Action      string            `json:"action"`
	OperationID string            `json:"operation_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Transfers   []Transfer        `json:"transfers,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// PendingTransfers are the transfers of a committed operation that the ledger has not accepted yet.
type PendingTransfers struct {
	OperationID string     `json:"operation_id"`
	Action      string     `json:"action"`
	CreatedAt   time.Time  `json:"created_at"`
	Transfers   []Transfer `json:"transfers"`
}

// Price is a normalized asset price.
type Price struct {
	AssetID     string            `json:"asset_id"`
	Value       sdkmath.LegacyDec `json:"value"`
	PublishTime time.Time         `json:"publish_time"`
}
