package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"PriceSentinel/internal/model"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
)

// EthSource implements BlockSource over an Ethereum JSON-RPC endpoint.
type EthSource struct {
	Client *ethclient.Client
}

// DialEth connects to rpcURL with optional proxy support.
func DialEth(ctx context.Context, rpcURL, proxyURL string) (*EthSource, error) {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
	rc, err := rpc.DialOptions(ctx, rpcURL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return &EthSource{Client: ethclient.NewClient(rc)}, nil
}

func (s *EthSource) BlockByNumber(ctx context.Context, number uint64) (model.Block, error) {
	return s.header(ctx, new(big.Int).SetUint64(number))
}

func (s *EthSource) LatestBlock(ctx context.Context) (model.Block, error) {
	return s.header(ctx, nil)
}

func (s *EthSource) header(ctx context.Context, number *big.Int) (model.Block, error) {
	h, err := s.Client.HeaderByNumber(ctx, number)
	if err != nil {
		return model.Block{}, err
	}
	return model.Block{Number: h.Number.Uint64(), Timestamp: int64(h.Time)}, nil
}

// Close releases the underlying RPC connection.
func (s *EthSource) Close() {
	s.Client.Close()
}

// ContractPriceSource reads a uint256 price from a contract view call evaluated at a block.
// The raw value is scaled down by Decimals. A zero value means the pool or feed has no price.
type ContractPriceSource struct {
	Client   *ethclient.Client
	Contract common.Address
	CallData []byte
	Decimals int32
}

// NewContractPriceSource parses the hex address and calldata of a price getter.
func NewContractPriceSource(client *ethclient.Client, contract, callData string, decimals int32) (*ContractPriceSource, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid contract address %q", contract)
	}
	data, err := hexutil.Decode(callData)
	if err != nil {
		return nil, fmt.Errorf("decode calldata: %w", err)
	}
	return &ContractPriceSource{
		Client:   client,
		Contract: common.HexToAddress(contract),
		CallData: data,
		Decimals: decimals,
	}, nil
}

func (s *ContractPriceSource) PriceAt(ctx context.Context, blockNumber uint64) (decimal.NullDecimal, error) {
	out, err := s.Client.CallContract(ctx, ethereum.CallMsg{
		To:   &s.Contract,
		Data: s.CallData,
	}, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decodePrice(out, s.Decimals)
}

// decodePrice interprets the first ABI word of out as an unsigned fixed-point value.
func decodePrice(out []byte, decimals int32) (decimal.NullDecimal, error) {
	if len(out) < 32 {
		return decimal.NullDecimal{}, fmt.Errorf("short call result: %d bytes", len(out))
	}
	raw := new(big.Int).SetBytes(out[:32])
	if raw.Sign() == 0 {
		return decimal.NullDecimal{}, nil
	}
	return decimal.NewNullDecimal(decimal.NewFromBigInt(raw, -decimals)), nil
}
