package app

import (
	"context"

	"github.com/shopspring/decimal"

	arbDomain "github.com/fd1az/flashloan-arb/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arb/internal/apperror"
	"github.com/fd1az/flashloan-arb/internal/logger"
)

// GasServiceConfig holds the per-class gas units and the native coin price.
type GasServiceConfig struct {
	Units     map[arbDomain.GasClass]uint64
	NativeUSD decimal.Decimal
}

// GasService converts the live gas price into a USD schedule per
// complexity class.
type GasService struct {
	oracle GasOracle
	cfg    GasServiceConfig
	logger logger.LoggerInterface
}

// NewGasService creates a new GasService.
func NewGasService(oracle GasOracle, cfg GasServiceConfig, log logger.LoggerInterface) (*GasService, error) {
	if oracle == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("gas oracle is required"))
	}
	if !cfg.NativeUSD.IsPositive() {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("native coin price must be positive"))
	}
	return &GasService{oracle: oracle, cfg: cfg, logger: log}, nil
}

// Schedule prices every class at the current gas price.
func (s *GasService) Schedule(ctx context.Context) (arbDomain.GasSchedule, error) {
	price, err := s.oracle.GasPrice(ctx)
	if err != nil {
		return arbDomain.GasSchedule{}, err
	}

	cost := func(class arbDomain.GasClass) decimal.Decimal {
		return arbDomain.NewGasCost(s.cfg.Units[class], price.Wei, s.cfg.NativeUSD).USD
	}
	sched := arbDomain.GasSchedule{
		Simple:  cost(arbDomain.GasSimple),
		Medium:  cost(arbDomain.GasMedium),
		Complex: cost(arbDomain.GasComplex),
	}

	s.logger.Debug(ctx, "gas schedule priced",
		"gwei", price.Gwei,
		"simple_usd", sched.Simple.StringFixed(4),
		"medium_usd", sched.Medium.StringFixed(4),
		"complex_usd", sched.Complex.StringFixed(4),
	)
	return sched, nil
}
