package vault

import (
	"context"
	"encoding/json"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/elys-network/fluxpool/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transfer(to, denom string, amount int64) types.Transfer {
	return types.Transfer{Recipient: to, Coin: sdktypes.NewCoin(denom, sdkmath.NewInt(amount))}
}

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Fund("alice", sdktypes.NewCoin("uatom", sdkmath.NewInt(5)))

	require.NoError(t, l.EnqueueTransfers(ctx, "op-1", []types.Transfer{
		transfer("alice", "uatom", 3),
		transfer("alice", "uosmo", 7),
		transfer("bob", "uatom", 1),
	}))

	coins, err := l.Balances(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "8", coins.AmountOf("uatom").String())
	assert.Equal(t, "7", coins.AmountOf("uosmo").String())
	assert.Len(t, l.Settled(), 3)

	coins, err = l.Balances(ctx, "nobody")
	require.NoError(t, err)
	assert.True(t, coins.IsZero())
}

func TestMemoryLedgerRejectsInvalidCoins(t *testing.T) {
	l := NewMemoryLedger()
	bad := types.Transfer{Recipient: "alice", Coin: sdktypes.Coin{Denom: "", Amount: sdkmath.NewInt(1)}}

	err := l.EnqueueTransfers(context.Background(), "op", []types.Transfer{transfer("alice", "uatom", 1), bad})
	assert.Error(t, err)
	assert.Empty(t, l.Settled(), "nothing is settled when one transfer is invalid")
}

func TestKafkaLedgerPublishesOneMessagePerTransfer(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	var payloads []TransferMessage
	check := func(msg *sarama.ProducerMessage) error {
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var m TransferMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		payloads = append(payloads, m)
		return nil
	}
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(check)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(check)

	l := NewKafkaLedgerFromProducer(producer, "transfers")
	require.NoError(t, l.EnqueueTransfers(context.Background(), "op-7", []types.Transfer{
		transfer("alice", "uatom", 3),
		transfer("bob", "uosmo", 4),
	}))
	require.NoError(t, l.Close())

	require.Len(t, payloads, 2)
	assert.Equal(t, TransferMessage{OperationID: "op-7", Index: 0, Recipient: "alice", Denom: "uatom", Amount: "3"}, payloads[0])
	assert.Equal(t, "bob", payloads[1].Recipient)
}

func TestKafkaLedgerSkipsEmpty(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	l := NewKafkaLedgerFromProducer(producer, "transfers")
	require.NoError(t, l.EnqueueTransfers(context.Background(), "op", nil))
	require.NoError(t, l.Close())
}
