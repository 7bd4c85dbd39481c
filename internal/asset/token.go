// Package asset holds the token table and unit conversion.
package asset

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Token is one ERC20 the engine trades or borrows.
type Token struct {
	Symbol          string
	Address         common.Address
	Decimals        uint8
	LiquidityHolder common.Address // lending reserve; zero when unknown
}

// String returns the symbol.
func (t Token) String() string { return t.Symbol }

// Registry is a thread-safe symbol -> Token table.
type Registry struct {
	mu       sync.RWMutex
	bySymbol map[string]Token
}

// NewRegistry builds a registry. Duplicate symbols are rejected.
func NewRegistry(tokens ...Token) (*Registry, error) {
	r := &Registry{bySymbol: make(map[string]Token, len(tokens))}
	for _, t := range tokens {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a token.
func (r *Registry) Register(t Token) error {
	if t.Symbol == "" {
		return fmt.Errorf("asset: empty symbol")
	}
	if t.Decimals > 30 {
		return fmt.Errorf("asset: %s has suspicious decimals (%d)", t.Symbol, t.Decimals)
	}
	sym := strings.ToUpper(t.Symbol)
	t.Symbol = sym

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bySymbol[sym]; exists {
		return fmt.Errorf("asset: %s already registered", sym)
	}
	r.bySymbol[sym] = t
	return nil
}

// Get looks up a token by symbol, case-insensitively.
func (r *Registry) Get(symbol string) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.bySymbol[strings.ToUpper(symbol)]
	return t, ok
}

// MustGet panics on unknown symbols. Use only with validated config.
func (r *Registry) MustGet(symbol string) Token {
	t, ok := r.Get(symbol)
	if !ok {
		panic(fmt.Sprintf("asset: %s not found in registry", symbol))
	}
	return t
}

// All returns every token ordered by symbol.
func (r *Registry) All() []Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Token, 0, len(r.bySymbol))
	for _, t := range r.bySymbol {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
