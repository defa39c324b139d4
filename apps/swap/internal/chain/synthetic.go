// Package chain produces synthetic on-chain evidence for simulated settlement:
// per-order deposit addresses and inbound/outbound transaction hashes formatted
// like the asset's native chain. Nothing here is derived from real keys.
package chain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"nexusswap/apps/swap/internal/assets"
)

const (
	base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	bech32Alphabet = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

	bech32PayloadLength = 38
	solanaAddressLength = 44
	tronAddressLength   = 33
	solanaTxHashLength  = 88
)

// Generator creates deposit addresses and transaction hashes.
type Generator struct {
	registry *assets.Registry
	mu       sync.Mutex
	entropy  io.Reader
}

// NewGenerator creates a generator reading randomness from entropy. A nil
// entropy source uses crypto/rand.
func NewGenerator(registry *assets.Registry, entropy io.Reader) *Generator {
	if entropy == nil {
		entropy = rand.Reader
	}
	return &Generator{registry: registry, entropy: entropy}
}

// DepositAddress returns a fresh address in the native format of symbol's chain.
func (g *Generator) DepositAddress(symbol string) (string, error) {
	asset := g.registry.Resolve(symbol)

	switch asset.Family {
	case assets.FamilyUTXO:
		prefix := asset.AddressPrefix
		if prefix == "" {
			prefix = "bc1q"
		}
		payload, err := g.alphabetString(bech32Alphabet, bech32PayloadLength)
		if err != nil {
			return "", err
		}
		return prefix + payload, nil
	case assets.FamilySolana:
		return g.alphabetString(base58Alphabet, solanaAddressLength)
	case assets.FamilyTron:
		body, err := g.alphabetString(base58Alphabet, tronAddressLength)
		if err != nil {
			return "", err
		}
		return "T" + body, nil
	default:
		raw, err := g.read(common.AddressLength)
		if err != nil {
			return "", err
		}
		return common.BytesToAddress(raw).Hex(), nil
	}
}

// TxHash returns a transaction hash formatted for symbol's chain: 0x-prefixed
// Keccak-256 for EVM chains, bare hex for UTXO and Tron, base58 for Solana.
func (g *Generator) TxHash(symbol string) (string, error) {
	asset := g.registry.Resolve(symbol)

	switch asset.Family {
	case assets.FamilySolana:
		return g.alphabetString(base58Alphabet, solanaTxHashLength)
	case assets.FamilyUTXO, assets.FamilyTron:
		raw, err := g.read(common.HashLength)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(raw), nil
	default:
		raw, err := g.read(common.HashLength)
		if err != nil {
			return "", err
		}
		return crypto.Keccak256Hash(raw).Hex(), nil
	}
}

func (g *Generator) read(n int) ([]byte, error) {
	buf := make([]byte, n)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := io.ReadFull(g.entropy, buf); err != nil {
		return nil, fmt.Errorf("failed to read entropy: %w", err)
	}
	return buf, nil
}

// alphabetString draws length characters uniformly from alphabet using
// rejection sampling on single bytes.
func (g *Generator) alphabetString(alphabet string, length int) (string, error) {
	limit := 256 - (256 % len(alphabet))
	var sb strings.Builder
	sb.Grow(length)

	for sb.Len() < length {
		raw, err := g.read(length)
		if err != nil {
			return "", err
		}
		for _, b := range raw {
			if int(b) >= limit {
				continue
			}
			sb.WriteByte(alphabet[int(b)%len(alphabet)])
			if sb.Len() == length {
				break
			}
		}
	}

	return sb.String(), nil
}
