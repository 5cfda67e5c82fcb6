package contract

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"racehouse/errs"
)

// VerifySignature checks an EIP-191 personal_sign signature over message
// against address. Both the 0/1 and 27/28 recovery id forms are accepted.
func VerifySignature(message, signature, address string) error {
	if !common.IsHexAddress(address) {
		return errs.Validation("invalid wallet address %q", address)
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return errs.Validation("signature is not hex: %v", err)
	}
	if len(sig) != crypto.SignatureLength {
		return errs.Validation("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return errs.Authorization("signature does not recover: %v", err)
	}
	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != common.HexToAddress(address) {
		return errs.Authorization("signature mismatch: expected %s, got %s", common.HexToAddress(address).Hex(), recovered.Hex())
	}
	return nil
}

// SignMessage produces the personal_sign signature a wallet would return.
func SignMessage(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}
