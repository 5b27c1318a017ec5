// Package wallet checks Ethereum personal_sign (EIP-191) signatures produced
// by browser wallets.
package wallet

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidAddress   = errors.New("invalid wallet address")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrSignerMismatch   = errors.New("signature does not match sender")
	ErrHashMismatch     = errors.New("message hash does not match ciphertext")
	ErrMissingSignature = errors.New("signature and sender are required")
)

// HashMessage returns the EIP-191 hash of msg as 0x-prefixed hex, the same
// value ethers' hashMessage produces in the browser.
func HashMessage(msg string) string {
	return hexutil.Encode(accounts.TextHash([]byte(msg)))
}

// RecoverAddress returns the account that personal_signed msg.
func RecoverAddress(msg, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}

	// Wallets encode the recovery id as 27/28.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("%w: recovery id", ErrInvalidSignature)
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(msg)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignature checks that address personal_signed msg.
func VerifySignature(msg, signature, address string) error {
	if !common.IsHexAddress(address) {
		return ErrInvalidAddress
	}
	signer, err := RecoverAddress(msg, signature)
	if err != nil {
		return err
	}
	if signer != common.HexToAddress(address) {
		return ErrSignerMismatch
	}
	return nil
}

// SignedMessage is the integrity metadata attached to a stored chat message.
type SignedMessage struct {
	Ciphertext string
	Hash       string
	Signature  string
	Sender     string
}

// VerifySignedMessage checks that Hash is the EIP-191 hash of Ciphertext and
// that a signature and sender are present. When the signature is a full
// 65-byte wallet signature and the sender an address, the signer recovered
// from Hash must be the sender.
func VerifySignedMessage(m SignedMessage) error {
	if !strings.EqualFold(HashMessage(m.Ciphertext), m.Hash) {
		return ErrHashMismatch
	}
	if m.Signature == "" || m.Sender == "" {
		return ErrMissingSignature
	}

	sig, err := hexutil.Decode(m.Signature)
	if err != nil || len(sig) != crypto.SignatureLength || !common.IsHexAddress(m.Sender) {
		return nil
	}
	return VerifySignature(m.Hash, m.Signature, m.Sender)
}

// NewNonce returns a random single-use login nonce.
func NewNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hexutil.Encode(buf)[2:], nil
}

// LoginMessage is the text a wallet signs to prove control of address.
func LoginMessage(address, nonce string) string {
	return fmt.Sprintf("Sign in to P2P Chat\n\nAddress: %s\nNonce: %s", common.HexToAddress(address).Hex(), nonce)
}

// NormalizeAddress returns the checksummed form of a hex address.
func NormalizeAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", ErrInvalidAddress
	}
	return common.HexToAddress(address).Hex(), nil
}
