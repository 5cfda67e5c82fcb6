package contract

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"racehouse/collection"
	"racehouse/errs"
)

// Minimal ERC-721 ABI: only ownerOf is called.
const erc721ABI = `[{"inputs":[{"internalType":"uint256","name":"tokenId","type":"uint256"}],"name":"ownerOf","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}]`

// OwnerCaller answers ownerOf for a token contract.
type OwnerCaller interface {
	OwnerOf(ctx context.Context, token common.Address, tokenID *big.Int) (common.Address, error)
}

// ERC721Caller calls ownerOf through a bound contract.
type ERC721Caller struct {
	backend bind.ContractCaller
	ABI     abi.ABI
}

func NewERC721Caller(backend bind.ContractCaller) (*ERC721Caller, error) {
	parsed, err := abi.JSON(strings.NewReader(erc721ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC-721 ABI: %w", err)
	}
	return &ERC721Caller{backend: backend, ABI: parsed}, nil
}

func (c *ERC721Caller) OwnerOf(ctx context.Context, token common.Address, tokenID *big.Int) (common.Address, error) {
	contract := bind.NewBoundContract(token, c.ABI, c.backend, nil, nil)

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "ownerOf", tokenID); err != nil {
		return common.Address{}, fmt.Errorf("ownerOf(%s) on %s: %w", tokenID, token.Hex(), err)
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("ownerOf returned %d values", len(out))
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("ownerOf returned %T", out[0])
	}
	return owner, nil
}

// OwnershipOracle checks that a wallet owns a collection token on chain.
type OwnershipOracle struct {
	caller   OwnerCaller
	registry *collection.Registry
}

func NewOwnershipOracle(caller OwnerCaller, registry *collection.Registry) *OwnershipOracle {
	return &OwnershipOracle{caller: caller, registry: registry}
}

// VerifyOwnership returns nil when address currently owns the token,
// errs.ErrAuthorization when someone else does, and an oracle error when the
// chain could not be queried.
func (o *OwnershipOracle) VerifyOwnership(ctx context.Context, collectionID, tokenID, address string) error {
	if !common.IsHexAddress(address) {
		return errs.Validation("invalid wallet address %q", address)
	}
	loader, err := o.registry.Get(collectionID)
	if err != nil {
		return err
	}
	if !common.IsHexAddress(loader.ContractAddress()) {
		return errs.Validation("collection %s has no contract address configured", collectionID)
	}
	onChainID, err := loader.OnChainID(tokenID)
	if err != nil {
		return err
	}

	owner, err := o.caller.OwnerOf(ctx, common.HexToAddress(loader.ContractAddress()), onChainID)
	if err != nil {
		log.Printf("❌ Ownership lookup failed for %s/%s: %v", collectionID, tokenID, err)
		return errs.Oracle(err, "failed to read owner of %s/%s", collectionID, tokenID)
	}
	if owner != common.HexToAddress(address) {
		return errs.Authorization("%s does not own %s/%s", address, collectionID, tokenID)
	}
	return nil
}
