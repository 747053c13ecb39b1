package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const defaultReceiptPoll = 2 * time.Second

// ParseKey decodes a hex-encoded secp256k1 private key, with or without a
// 0x prefix.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if trimmed == "" {
		return nil, errors.New("empty private key")
	}
	return crypto.HexToECDSA(trimmed)
}

// Transactor signs and submits state-changing contract calls for a single
// account. It is built per operation and must not be shared between
// concurrent writers.
type Transactor struct {
	backend     Backend
	key         *ecdsa.PrivateKey
	from        common.Address
	signer      types.Signer
	receiptPoll time.Duration
}

type TransactorOption func(*Transactor)

// WithReceiptPoll sets how often WaitMined polls for a receipt.
func WithReceiptPoll(d time.Duration) TransactorOption {
	return func(t *Transactor) { t.receiptPoll = d }
}

func NewTransactor(ctx context.Context, backend Backend, hexKey string, opts ...TransactorOption) (*Transactor, error) {
	key, err := ParseKey(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	t := &Transactor{
		backend:     backend,
		key:         key,
		from:        crypto.PubkeyToAddress(key.PublicKey),
		signer:      types.LatestSignerForChainID(chainID),
		receiptPoll: defaultReceiptPoll,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// From returns the signing account.
func (t *Transactor) From() common.Address { return t.from }

// Transact packs method(args) for the contract, prices and signs the
// transaction, and submits it. It does not wait for inclusion.
func (t *Transactor) Transact(ctx context.Context, c *Contract, method string, args ...any) (*types.Transaction, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	nonce, err := t.backend.PendingNonceAt(ctx, t.from)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}
	head, err := t.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch head: %w", err)
	}

	to := c.address
	msg := ethereum.CallMsg{From: t.from, To: &to, Data: data}

	var tx *types.Transaction
	if head.BaseFee != nil {
		tip, err := t.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("suggest tip: %w", err)
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		msg.GasTipCap, msg.GasFeeCap = tip, feeCap
		gas, err := t.backend.EstimateGas(ctx, msg)
		if err != nil {
			return nil, fmt.Errorf("estimate gas for %s: %w", method, err)
		}
		tx = types.NewTx(&types.DynamicFeeTx{
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Value:     new(big.Int),
			Data:      data,
		})
	} else {
		price, err := t.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("suggest gas price: %w", err)
		}
		msg.GasPrice = price
		gas, err := t.backend.EstimateGas(ctx, msg)
		if err != nil {
			return nil, fmt.Errorf("estimate gas for %s: %w", method, err)
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: price,
			Gas:      gas,
			To:       &to,
			Value:    new(big.Int),
			Data:     data,
		})
	}

	signed, err := types.SignTx(tx, t.signer, t.key)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", method, err)
	}
	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}
	return signed, nil
}

// WaitMined blocks until the transaction has a receipt or ctx ends. A
// receipt with failed status is returned together with an error.
func (t *Transactor) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	ticker := time.NewTicker(t.receiptPoll)
	defer ticker.Stop()

	hash := tx.Hash()
	for {
		receipt, err := t.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("transaction %s reverted", hash.Hex())
			}
			return receipt, nil
		}
		// Lookup errors, including ethereum.NotFound, are retried until ctx expires.
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
