package evm

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/flashloan-arb/internal/apperror"
)

// stubCaller answers every eth_call with a fixed uint256.
type stubCaller struct {
	value *big.Int
	err   error
	last  ethereum.CallMsg
}

func (s *stubCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	s.last = msg
	if s.err != nil {
		return nil, s.err
	}
	return common.LeftPadBytes(s.value.Bytes(), 32), nil
}

var (
	usdc   = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	holder = common.HexToAddress("0x1111111111111111111111111111111111111111")
	router = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestERC20_BalanceOf(t *testing.T) {
	caller := &stubCaller{value: big.NewInt(123456789)}
	erc20, err := NewERC20(caller)
	if err != nil {
		t.Fatal(err)
	}

	got, err := erc20.BalanceOf(context.Background(), usdc, holder)
	if err != nil {
		t.Fatalf("BalanceOf() error = %v", err)
	}
	if got.Int64() != 123456789 {
		t.Errorf("BalanceOf() = %s", got)
	}
	if *caller.last.To != usdc {
		t.Errorf("call sent to %s, want token address", caller.last.To.Hex())
	}
	// balanceOf(address) selector
	if !bytes.Equal(caller.last.Data[:4], common.FromHex("0x70a08231")) {
		t.Errorf("selector = %x", caller.last.Data[:4])
	}
}

func TestERC20_Allowance(t *testing.T) {
	caller := &stubCaller{value: big.NewInt(42)}
	erc20, err := NewERC20(caller)
	if err != nil {
		t.Fatal(err)
	}

	got, err := erc20.Allowance(context.Background(), usdc, holder, router)
	if err != nil {
		t.Fatalf("Allowance() error = %v", err)
	}
	if got.Int64() != 42 {
		t.Errorf("Allowance() = %s", got)
	}
	if !bytes.Equal(caller.last.Data[:4], common.FromHex("0xdd62ed3e")) {
		t.Errorf("selector = %x", caller.last.Data[:4])
	}
}

func TestERC20_CallFailure(t *testing.T) {
	erc20, err := NewERC20(&stubCaller{err: errors.New("execution reverted")})
	if err != nil {
		t.Fatal(err)
	}
	_, err = erc20.BalanceOf(context.Background(), usdc, holder)
	if !apperror.HasCode(err, apperror.CodeContractCallFailed) {
		t.Errorf("error = %v, want CONTRACT_CALL_FAILED", err)
	}
}
