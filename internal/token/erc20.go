// Package token implements the staking-token custody capability: an ERC-20
// client over JSON-RPC for deployments against a real chain, and an
// in-memory vault for tests and the standalone mode.
package token

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// erc20ABI covers the calls the custody layer needs.
const erc20ABI = `[
  {"inputs":[{"name":"account","type":"address"}],"name":"balanceOf",
   "outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance",
   "outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer",
   "outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transferFrom",
   "outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

// ERC20Client talks to one ERC-20 token contract.
type ERC20Client struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	address  common.Address
	opts     *bind.TransactOpts
	custody  common.Address
}

// NewERC20Client binds the token at address. key signs outbound transfers;
// the key's address is the custody account that holds staked funds.
func NewERC20Client(client *ethclient.Client, address common.Address, key *ecdsa.PrivateKey, chainID *big.Int) (*ERC20Client, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("token: parse erc20 abi: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("token: build transactor: %w", err)
	}
	return &ERC20Client{
		client:   client,
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		address:  address,
		opts:     opts,
		custody:  opts.From,
	}, nil
}

// Custody returns the address holding staked funds.
func (c *ERC20Client) Custody() common.Address { return c.custody }

// BalanceOf returns the token balance of addr.
func (c *ERC20Client) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", addr); err != nil {
		return nil, fmt.Errorf("token: balanceOf %s: %w", addr.Hex(), err)
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("token: balanceOf %s: bad output type", addr.Hex())
	}
	return bal, nil
}

// Allowance returns how much spender may pull from owner.
func (c *ERC20Client) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, spender); err != nil {
		return nil, fmt.Errorf("token: allowance %s->%s: %w", owner.Hex(), spender.Hex(), err)
	}
	al, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("token: allowance %s->%s: bad output type", owner.Hex(), spender.Hex())
	}
	return al, nil
}

// TransferFrom pulls amount from `from` into custody and waits for the
// transaction to be mined.
func (c *ERC20Client) TransferFrom(ctx context.Context, from common.Address, amount *big.Int) error {
	opts := *c.opts
	opts.Context = ctx
	tx, err := c.contract.Transact(&opts, "transferFrom", from, c.custody, amount)
	if err != nil {
		return fmt.Errorf("token: transferFrom %s: %w", from.Hex(), err)
	}
	receipt, err := bind.WaitMined(ctx, c.client, tx)
	if err != nil {
		return fmt.Errorf("token: wait transferFrom %s: %w", from.Hex(), err)
	}
	if receipt.Status == 0 {
		return fmt.Errorf("token: transferFrom %s reverted (tx %s)", from.Hex(), tx.Hash().Hex())
	}
	return nil
}

// Transfer pays amount out of custody to `to` and waits for the transaction
// to be mined.
func (c *ERC20Client) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	opts := *c.opts
	opts.Context = ctx
	tx, err := c.contract.Transact(&opts, "transfer", to, amount)
	if err != nil {
		return fmt.Errorf("token: transfer %s: %w", to.Hex(), err)
	}
	receipt, err := bind.WaitMined(ctx, c.client, tx)
	if err != nil {
		return fmt.Errorf("token: wait transfer %s: %w", to.Hex(), err)
	}
	if receipt.Status == 0 {
		return fmt.Errorf("token: transfer %s reverted (tx %s)", to.Hex(), tx.Hash().Hex())
	}
	return nil
}
