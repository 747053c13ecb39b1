package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrCall marks any failed contract read.
var ErrCall = errors.New("contract call failed")

// Contract binds an ABI to an address for view calls.
type Contract struct {
	address common.Address
	abi     abi.ABI
	reader  Reader
}

func NewContract(address common.Address, parsed abi.ABI, reader Reader) *Contract {
	return &Contract{address: address, abi: parsed, reader: reader}
}

func (c *Contract) Address() common.Address { return c.address }

// Call executes a view method against the latest block and returns the
// decoded outputs.
func (c *Contract) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: pack %s: %w", ErrCall, method, err)
	}
	to := c.address
	out, err := c.reader.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s on %s: %w", ErrCall, method, c.address.Hex(), err)
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %w", ErrCall, method, err)
	}
	return values, nil
}

func (c *Contract) CallBig(ctx context.Context, method string, args ...any) (*big.Int, error) {
	return first[*big.Int](ctx, c, method, args)
}

// CallUint256 reads an unsigned 256-bit output.
func (c *Contract) CallUint256(ctx context.Context, method string, args ...any) (*uint256.Int, error) {
	v, err := c.CallBig(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s returned negative value %s", ErrCall, method, v)
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("%w: %s overflows 256 bits", ErrCall, method)
	}
	return u, nil
}

func (c *Contract) CallUint64(ctx context.Context, method string, args ...any) (uint64, error) {
	return first[uint64](ctx, c, method, args)
}

func (c *Contract) CallUint8(ctx context.Context, method string, args ...any) (uint8, error) {
	return first[uint8](ctx, c, method, args)
}

func (c *Contract) CallString(ctx context.Context, method string, args ...any) (string, error) {
	return first[string](ctx, c, method, args)
}

func (c *Contract) CallAddress(ctx context.Context, method string, args ...any) (common.Address, error) {
	return first[common.Address](ctx, c, method, args)
}

func first[T any](ctx context.Context, c *Contract, method string, args []any) (T, error) {
	var zero T
	values, err := c.Call(ctx, method, args...)
	if err != nil {
		return zero, err
	}
	if len(values) == 0 {
		return zero, fmt.Errorf("%w: %s returned no values", ErrCall, method)
	}
	v, ok := values[0].(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s returned %T, want %T", ErrCall, method, values[0], zero)
	}
	return v, nil
}
