// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer abstracts over something that can produce a 65-byte r||s||v
// signature over WithdrawConfirm's 84-byte message. Three
// implementations are provided (RPCSigner, LocalSigner, KMSSigner);
// an operator selects one via config.
type Signer interface {
	Sign(ctx context.Context, message []byte) ([]byte, error)
}

// rpcSigningClient is the subset of chainclient.RPCClient's surface
// RPCSigner needs; kept minimal so tests can fake it without a full
// chainclient.Client.
type rpcSigningClient interface {
	Sign(ctx context.Context, account common.Address, data []byte) ([]byte, error)
}

// RPCSigner delegates signing to the RPC endpoint's eth_sign against a
// pre-unlocked account, mirroring how SendTransaction itself delegates
// signing: this engine never holds or manages private keys itself.
type RPCSigner struct {
	Client  rpcSigningClient
	Account common.Address
}

func (s *RPCSigner) Sign(ctx context.Context, message []byte) ([]byte, error) {
	return s.Client.Sign(ctx, s.Account, message)
}

// LocalSigner signs with an in-process ECDSA key, for operators who
// don't want their authority key held by the RPC endpoint.
type LocalSigner struct {
	Key *ecdsa.PrivateKey
}

func (s *LocalSigner) Sign(ctx context.Context, message []byte) ([]byte, error) {
	return crypto.Sign(crypto.Keccak256(message), s.Key)
}

// kmsClient is the subset of *kms.Client KMSSigner needs, kept minimal
// so tests can fake it without a full AWS SDK client.
type kmsClient interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// KMSSigner signs with an AWS KMS-held ECC_SECG_P256K1 key: the
// authority's private key never leaves KMS. KMS's ECDSA_SHA_256
// signing algorithm produces a DER-encoded (r, s) pair with no
// recovery id, so Sign derives v itself by trying both candidates
// against the public key fetched once at construction.
type KMSSigner struct {
	Client  kmsClient
	KeyID   string
	Address common.Address
}

// subjectPublicKeyInfo mirrors the X.509 SubjectPublicKeyInfo KMS
// returns from GetPublicKey. crypto/x509 can't parse it directly:
// its OID table only recognizes the NIST P-curves, not secp256k1
// (OID 1.3.132.0.10), so the EC point is pulled out of the bit string
// by hand instead.
type subjectPublicKeyInfo struct {
	Algorithm struct {
		Algorithm  asn1.ObjectIdentifier
		Parameters asn1.ObjectIdentifier
	}
	PublicKey asn1.BitString
}

// NewKMSSigner fetches keyID's public key from KMS once, deriving the
// Ethereum address Sign will recover signatures against.
func NewKMSSigner(ctx context.Context, client kmsClient, keyID string) (*KMSSigner, error) {
	out, err := client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: &keyID})
	if err != nil {
		return nil, fmt.Errorf("kms: fetching public key for %s: %w", keyID, err)
	}

	var info subjectPublicKeyInfo
	if _, err := asn1.Unmarshal(out.PublicKey, &info); err != nil {
		return nil, fmt.Errorf("kms: parsing public key for %s: %w", keyID, err)
	}
	point := info.PublicKey.RightAlign()
	if len(point) != 65 || point[0] != 0x04 {
		return nil, fmt.Errorf("kms: key %s is not an uncompressed EC point", keyID)
	}
	ecdsaPub := &ecdsa.PublicKey{
		Curve: crypto.S256(),
		X:     new(big.Int).SetBytes(point[1:33]),
		Y:     new(big.Int).SetBytes(point[33:65]),
	}
	return &KMSSigner{Client: client, KeyID: keyID, Address: crypto.PubkeyToAddress(*ecdsaPub)}, nil
}

// ecdsaDERSignature mirrors the ASN.1 SEQUENCE{r,s} KMS returns.
type ecdsaDERSignature struct {
	R, S *big.Int
}

func (s *KMSSigner) Sign(ctx context.Context, message []byte) ([]byte, error) {
	digest := crypto.Keccak256(message)
	out, err := s.Client.Sign(ctx, &kms.SignInput{
		KeyId:            &s.KeyID,
		Message:          digest,
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
	})
	if err != nil {
		return nil, fmt.Errorf("kms: signing with %s: %w", s.KeyID, err)
	}

	var der ecdsaDERSignature
	if _, err := asn1.Unmarshal(out.Signature, &der); err != nil {
		return nil, fmt.Errorf("kms: parsing DER signature: %w", err)
	}

	sVal := der.S
	halfOrder := new(big.Int).Rsh(crypto.S256().Params().N, 1)
	if sVal.Cmp(halfOrder) > 0 {
		sVal = new(big.Int).Sub(crypto.S256().Params().N, sVal)
	}

	sig := make([]byte, 65)
	der.R.FillBytes(sig[0:32])
	sVal.FillBytes(sig[32:64])
	for v := byte(0); v < 2; v++ {
		sig[64] = v
		recovered, err := crypto.SigToPub(digest, sig)
		if err == nil && crypto.PubkeyToAddress(*recovered) == s.Address {
			return sig, nil
		}
	}
	return nil, fmt.Errorf("kms: could not recover signature from %s to address %s", s.KeyID, s.Address)
}
