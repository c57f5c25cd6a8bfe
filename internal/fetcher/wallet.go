package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// WalletOptions parameterise the on-chain balance reader.
type WalletOptions struct {
	RPCURL        string
	Timeout       time.Duration
	IncludeTokens bool
}

// TokenBalance is a non-zero ERC-20 balance as reported by the node.
type TokenBalance struct {
	Contract string
	Balance  *big.Int
}

// WalletBalance is the state of one address at one block.
type WalletBalance struct {
	Address     string
	BlockNumber uint64
	BalanceWei  *big.Int
	BalanceETH  decimal.Decimal
	Tokens      []TokenBalance
}

// WalletReader reads balances for an address.
type WalletReader interface {
	FetchBalance(ctx context.Context, address string) (WalletBalance, error)
}

// Wallets reads balances over Ethereum JSON-RPC.
type Wallets struct {
	opts      WalletOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

var _ WalletReader = (*Wallets)(nil)

// NewWallets builds a balance reader. The RPC connection is dialled lazily.
func NewWallets(opts WalletOptions, logger zerolog.Logger) *Wallets {
	return &Wallets{opts: opts, logger: logger.With().Str("component", "wallet_fetcher").Logger()}
}

// FetchBalance returns the ETH balance of address at the current head and,
// when enabled, its ERC-20 balances via alchemy_getTokenBalances.
func (w *Wallets) FetchBalance(ctx context.Context, address string) (WalletBalance, error) {
	if w.opts.RPCURL == "" {
		return WalletBalance{}, errors.New("ethereum rpc url not configured")
	}
	if !common.IsHexAddress(address) {
		return WalletBalance{}, fmt.Errorf("invalid address %q", address)
	}

	timeout := w.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := w.getClient(ctx)
	if err != nil {
		return WalletBalance{}, err
	}

	addr := common.HexToAddress(address)

	blockNumber, err := client.BlockNumber(ctx)
	if err != nil {
		return WalletBalance{}, fmt.Errorf("block number: %w", err)
	}

	wei, err := client.BalanceAt(ctx, addr, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return WalletBalance{}, fmt.Errorf("balance of %s: %w", addr.Hex(), err)
	}

	bal := WalletBalance{
		Address:     addr.Hex(),
		BlockNumber: blockNumber,
		BalanceWei:  wei,
		BalanceETH:  decimal.NewFromBigInt(wei, -18),
	}

	if w.opts.IncludeTokens {
		tokens, err := w.tokenBalances(ctx, client, addr)
		if err != nil {
			// Plain nodes do not serve the alchemy namespace; keep the ETH balance.
			w.logger.Warn().Err(err).Str("address", addr.Hex()).Msg("token balances unavailable")
		} else {
			bal.Tokens = tokens
		}
	}

	return bal, nil
}

type alchemyTokenBalances struct {
	Address       string `json:"address"`
	TokenBalances []struct {
		ContractAddress string  `json:"contractAddress"`
		TokenBalance    string  `json:"tokenBalance"`
		Error           *string `json:"error"`
	} `json:"tokenBalances"`
}

func (w *Wallets) tokenBalances(ctx context.Context, client *ethclient.Client, addr common.Address) ([]TokenBalance, error) {
	var res alchemyTokenBalances
	if err := client.Client().CallContext(ctx, &res, "alchemy_getTokenBalances", addr.Hex(), "erc20"); err != nil {
		return nil, err
	}

	tokens := make([]TokenBalance, 0, len(res.TokenBalances))
	for _, tb := range res.TokenBalances {
		if tb.Error != nil {
			continue
		}
		amount, ok := new(big.Int).SetString(strings.TrimPrefix(strings.ToLower(tb.TokenBalance), "0x"), 16)
		if !ok || amount.Sign() == 0 {
			continue
		}
		tokens = append(tokens, TokenBalance{Contract: strings.ToLower(tb.ContractAddress), Balance: amount})
	}
	return tokens, nil
}

func (w *Wallets) getClient(ctx context.Context) (*ethclient.Client, error) {
	w.clientMux.Lock()
	defer w.clientMux.Unlock()

	if w.client != nil {
		return w.client, nil
	}

	client, err := ethclient.DialContext(ctx, w.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	w.client = client
	return client, nil
}

// Close drops the RPC connection.
func (w *Wallets) Close() {
	w.clientMux.Lock()
	defer w.clientMux.Unlock()
	if w.client != nil {
		w.client.Close()
		w.client = nil
	}
}
