// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package abi

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func mustHexDecode(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestSelectorsMatchSpecLiterals(t *testing.T) {
	require.Equal(t, "26b3293f", DepositSelectorHex)
	require.Equal(t, "490a32c6", MessageSelectorHex)
	require.Equal(t, "1812d996", SignatureSelectorHex)
	require.Equal(t, "9ce318f6", WithdrawSelectorHex)
}

func TestTopicsMatchSpecLiterals(t *testing.T) {
	require.Equal(t,
		"0xe1fffcc4923d04b559f4d29a8bfc6cda04eb5b0d3c460751c2402c5c5cc9109c",
		DepositTopic.Hex())
	require.Equal(t,
		"0xeb043d149eedb81369bec43d4c3a3a53087debc88d2525f13bfaa3eecda28b5c",
		CollectedSignaturesTopic.Hex())
}

// TestPackDeposit: a given recipient, value and transactionHash pack
// exactly the expected call data.
func TestPackDeposit(t *testing.T) {
	recipient := common.HexToAddress("0xaff3454fce5edbc8cca8697c15331677e6ebcccc")
	value := big.NewInt(0xf0)
	txHash := common.HexToHash("0x884edad9ce6fa2440d8a54cc123490eb96d2768479d49ff9c7366125a9424364")

	data, err := PackDeposit(recipient, value, txHash)
	require.NoError(t, err)

	expected := mustHexDecode(t,
		"26b3293f"+
			"000000000000000000000000aff3454fce5edbc8cca8697c15331677e6ebcccc"+
			"00000000000000000000000000000000000000000000000000000000000000f0"+
			"884edad9ce6fa2440d8a54cc123490eb96d2768479d49ff9c7366125a9424364")
	require.Equal(t, expected, data)
}

// TestPackMessage: for message_hash = 0x...00f0, message_payload =
// selector || hash.
func TestPackMessage(t *testing.T) {
	messageHash := common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000f0")

	payload, err := PackMessage(messageHash)
	require.NoError(t, err)

	expected := mustHexDecode(t,
		"490a32c6"+"00000000000000000000000000000000000000000000000000000000000000f0")
	require.Equal(t, expected, payload)
}

func TestPackSignatureIndexPadding(t *testing.T) {
	messageHash := common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000f0")

	sig0, err := PackSignature(messageHash, 0)
	require.NoError(t, err)
	sig1, err := PackSignature(messageHash, 1)
	require.NoError(t, err)

	expected0 := mustHexDecode(t,
		"1812d996"+
			"00000000000000000000000000000000000000000000000000000000000000f0"+
			"0000000000000000000000000000000000000000000000000000000000000000")
	expected1 := mustHexDecode(t,
		"1812d996"+
			"00000000000000000000000000000000000000000000000000000000000000f0"+
			"0000000000000000000000000000000000000000000000000000000000000001")
	require.Equal(t, expected0, sig0)
	require.Equal(t, expected1, sig1)
}

func TestPadU32(t *testing.T) {
	var zero [32]byte
	zero[31] = 0
	require.Equal(t, zero, PadU32(0))

	var one [32]byte
	one[31] = 1
	require.Equal(t, one, PadU32(1))
}

// TestPackWithdraw checks the bit-exact wire layout.
func TestPackWithdraw(t *testing.T) {
	sig1 := make([]byte, 65)
	for i := range sig1 {
		sig1[i] = 0x11
	}
	sig2 := make([]byte, 65)
	for i := range sig2 {
		sig2[i] = 0x22
	}
	message := make([]byte, 84)
	for i := range message {
		message[i] = 0x33
	}

	payload, err := PackWithdraw([][]byte{sig1, sig2}, message)
	require.NoError(t, err)

	expected := mustHexDecode(t, ""+
		"9ce318f6"+
		"0000000000000000000000000000000000000000000000000000000000000080"+
		"00000000000000000000000000000000000000000000000000000000000000e0"+
		"0000000000000000000000000000000000000000000000000000000000000140"+
		"00000000000000000000000000000000000000000000000000000000000001a0"+
		"0000000000000000000000000000000000000000000000000000000000000002"+
		"0000000000000000000000000000000000000000000000000000000000000011"+
		"0000000000000000000000000000000000000000000000000000000000000022"+
		"0000000000000000000000000000000000000000000000000000000000000002"+
		"1111111111111111111111111111111111111111111111111111111111111111"+
		"2222222222222222222222222222222222222222222222222222222222222222"+
		"0000000000000000000000000000000000000000000000000000000000000002"+
		"1111111111111111111111111111111111111111111111111111111111111111"+
		"2222222222222222222222222222222222222222222222222222222222222222"+
		"0000000000000000000000000000000000000000000000000000000000000054"+
		"333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333"+
		"000000000000000000000000")

	require.Equal(t, expected, payload)
}

func TestPackWithdrawInvalidMessageLength(t *testing.T) {
	_, err := PackWithdraw(nil, make([]byte, 10))
	require.ErrorIs(t, err, ErrInvalidMessageLength)
}

func TestSplitSignatureInvalidLength(t *testing.T) {
	_, _, _, err := SplitSignature(make([]byte, 10))
	require.ErrorIs(t, err, ErrInvalidSignatureLength)
}
