package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/dehublabs/predictiond/internal/domain"
)

// aggregatorABI is the read surface of a Chainlink-style AggregatorV3 feed.
const aggregatorABI = `[
  {"inputs":[],"name":"latestRoundData","outputs":[
    {"internalType":"uint80","name":"roundId","type":"uint80"},
    {"internalType":"int256","name":"answer","type":"int256"},
    {"internalType":"uint256","name":"startedAt","type":"uint256"},
    {"internalType":"uint256","name":"updatedAt","type":"uint256"},
    {"internalType":"uint80","name":"answeredInRound","type":"uint80"}],
   "stateMutability":"view","type":"function"},
  {"inputs":[],"name":"decimals","outputs":[
    {"internalType":"uint8","name":"","type":"uint8"}],
   "stateMutability":"view","type":"function"}
]`

// ChainlinkFeed reads an on-chain AggregatorV3 price feed over JSON-RPC.
type ChainlinkFeed struct {
	contract *bind.BoundContract
	address  common.Address
}

// NewChainlinkFeed binds the aggregator at address through the given client.
func NewChainlinkFeed(client *ethclient.Client, address common.Address) (*ChainlinkFeed, error) {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("oracle: parse aggregator abi: %w", err)
	}
	return &ChainlinkFeed{
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		address:  address,
	}, nil
}

// LatestRoundData calls latestRoundData on the aggregator and maps it into a
// PriceSample.
func (f *ChainlinkFeed) LatestRoundData(ctx context.Context) (domain.PriceSample, error) {
	var out []any
	err := f.contract.Call(&bind.CallOpts{Context: ctx}, &out, "latestRoundData")
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("oracle: latestRoundData %s: %w", f.address.Hex(), err)
	}
	if len(out) != 5 {
		return domain.PriceSample{}, fmt.Errorf("oracle: latestRoundData %s: unexpected output arity %d", f.address.Hex(), len(out))
	}

	roundID, ok := out[0].(*big.Int)
	if !ok {
		return domain.PriceSample{}, fmt.Errorf("oracle: latestRoundData %s: bad roundId type", f.address.Hex())
	}
	answer, ok := out[1].(*big.Int)
	if !ok {
		return domain.PriceSample{}, fmt.Errorf("oracle: latestRoundData %s: bad answer type", f.address.Hex())
	}
	updatedAt, ok := out[3].(*big.Int)
	if !ok {
		return domain.PriceSample{}, fmt.Errorf("oracle: latestRoundData %s: bad updatedAt type", f.address.Hex())
	}

	return domain.PriceSample{
		OracleRoundID: roundID,
		Price:         answer,
		UpdatedAt:     time.Unix(updatedAt.Int64(), 0).UTC(),
	}, nil
}

// Compile-time interface check.
var _ Feed = (*ChainlinkFeed)(nil)
