// Package evm holds contract bindings shared by venues and execution checks.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/flashloan-arb/internal/apperror"
)

// ERC20ABI covers the read-only calls the engine needs.
const ERC20ABI = `[
	{
		"inputs": [{"internalType": "address", "name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "owner", "type": "address"},
			{"internalType": "address", "name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// Caller is satisfied by *ethclient.Client.
type Caller = ethereum.ContractCaller

// ERC20 reads token state over eth_call.
type ERC20 struct {
	caller Caller
	abi    abi.ABI
}

// NewERC20 parses the ABI once.
func NewERC20(caller Caller) (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 ABI: %w", err)
	}
	return &ERC20{caller: caller, abi: parsed}, nil
}

// BalanceOf returns the raw balance of account.
func (e *ERC20) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	return e.callUint(ctx, token, "balanceOf", account)
}

// Allowance returns how much spender may move on behalf of owner.
func (e *ERC20) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return e.callUint(ctx, token, "allowance", owner, spender)
}

func (e *ERC20) callUint(ctx context.Context, token common.Address, method string, args ...any) (*big.Int, error) {
	data, err := e.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}
	out, err := e.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext(method+" on "+token.Hex()))
	}
	return UnpackUint(e.abi, method, out)
}

// UnpackUint decodes a single uint256 return value.
func UnpackUint(a abi.ABI, method string, out []byte) (*big.Int, error) {
	values, err := a.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected output length for %s: %d", method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected output type for %s: %T", method, values[0])
	}
	return v, nil
}
