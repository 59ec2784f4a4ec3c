package engine

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrNonceMismatch    = errors.New("nonce mismatch")
)

// signingDomain separates transaction digests from any other keccak payload.
var signingDomain = []byte("nft_market.tx")

// SigningHash is the digest a sender signs. It binds the transaction to one
// marketplace deployment and to the sender's nonce.
func SigningHash(market common.Address, tx Tx) common.Hash {
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], tx.Nonce)
	return crypto.Keccak256Hash(signingDomain, market.Bytes(), tx.From.Bytes(), nonce[:], []byte(tx.Method), compact(tx.Params))
}

// SignTx sets From to the key's address and signs tx for market.
func SignTx(tx Tx, market common.Address, key *ecdsa.PrivateKey) (Tx, error) {
	tx.From = crypto.PubkeyToAddress(key.PublicKey)
	sig, err := crypto.Sign(SigningHash(market, tx).Bytes(), key)
	if err != nil {
		return Tx{}, err
	}
	tx.Signature = sig
	return tx, nil
}

// Sender recovers the signer of tx and checks it against tx.From.
// Both recovery ids 0/1 and 27/28 are accepted.
func Sender(market common.Address, tx Tx) (common.Address, error) {
	if len(tx.Signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(tx.Signature))
	}
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, tx.Signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(SigningHash(market, tx).Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	signer := crypto.PubkeyToAddress(*pub)
	if signer != tx.From {
		return common.Address{}, fmt.Errorf("%w: signed by %s, not %s", ErrInvalidSignature, signer.Hex(), tx.From.Hex())
	}
	return signer, nil
}
