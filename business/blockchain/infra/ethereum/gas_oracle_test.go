package ethereum

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/flashloan-arb/internal/apperror"
	"github.com/fd1az/flashloan-arb/internal/logger"
)

type stubSuggester struct {
	wei   *big.Int
	err   error
	calls int
}

func (s *stubSuggester) SuggestGasPrice(context.Context) (*big.Int, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return new(big.Int).Set(s.wei), nil
}

func newTestOracle(t *testing.T, s *stubSuggester) *GasOracle {
	t.Helper()
	g, err := NewGasOracle(s, DefaultGasOracleConfig(), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestGasOracle_CachesPrice(t *testing.T) {
	s := &stubSuggester{wei: big.NewInt(25_000_000_000)}
	g := newTestOracle(t, s)
	ctx := context.Background()

	first, err := g.GasPrice(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, first.Gwei, 1e-9)

	s.wei = big.NewInt(99_000_000_000)
	second, err := g.GasPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, s.calls)
}

func TestGasOracle_CapsAtMax(t *testing.T) {
	s := &stubSuggester{wei: big.NewInt(0).Mul(big.NewInt(900), big.NewInt(1e9))}
	g := newTestOracle(t, s)

	price, err := g.GasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "500000000000", price.Wei.String())
}

func TestGasOracle_Error(t *testing.T) {
	g := newTestOracle(t, &stubSuggester{err: errors.New("connection refused")})

	_, err := g.GasPrice(context.Background())
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeEthereumRPCError))
}

func TestNewGasOracle_RequiresClient(t *testing.T) {
	_, err := NewGasOracle(nil, GasOracleConfig{CacheTTL: time.Second}, logger.Discard())
	require.Error(t, err)
}
