// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/chainbridge-relay/relay/internal/chainclient"
	"github.com/chainbridge-relay/relay/internal/checkpoint"
	"github.com/chainbridge-relay/relay/internal/logstream"
	"github.com/chainbridge-relay/relay/internal/testlog"
)

// stubSigner returns a fixed signature regardless of input, so tests
// can assert exactly what message submitSignature() was called with.
type stubSigner struct {
	signature []byte
	gotCalls  [][]byte
}

func (s *stubSigner) Sign(ctx context.Context, message []byte) ([]byte, error) {
	s.gotCalls = append(s.gotCalls, message)
	return s.signature, nil
}

func TestWithdrawConfirmSubmitsSignature(t *testing.T) {
	recipient := common.HexToAddress("0xaff3454fce5edbc8cca8697c15331677e6ebcccc")
	value := big.NewInt(0xf0)
	txHash := common.HexToHash("0x884edad9ce6fa2440d8a54cc123490eb96d2768479d49ff9c7366125a9424364")

	client := &fakeChainClient{
		blockNumbers: []uint64{0x1011},
		logsByRange: map[[2]uint64][]chainclient.Log{
			{0x1, 0x1005}: {{Data: buildDepositLogData(recipient, value), TransactionHash: txHash}},
		},
	}
	store := newFakeCheckpointStore()
	signer := &stubSigner{signature: make([]byte, 65)}
	for i := range signer.signature {
		signer.signature[i] = 0x77
	}

	stream := logstream.New(client, logstream.Init{
		RequestTimeout: time.Second,
		PollInterval:   time.Millisecond,
		Confirmations:  12,
	}, testlog.Logger())

	r := NewWithdrawConfirm(stream, client, signer, store, WithdrawConfirmConfig{
		TestnetAccount:  common.HexToAddress("0x01"),
		TestnetContract: common.HexToAddress("0x00"),
		RequestTimeout:  time.Second,
	}, testlog.Logger(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		return store.Checked(checkpoint.FieldWithdrawConfirm) == 0x1005
	}, time.Second, time.Millisecond)
	cancel()
	<-errCh

	require.Len(t, signer.gotCalls, 1)
	wantMessage := buildWithdrawMessage(recipient, value, txHash)
	require.Equal(t, wantMessage, signer.gotCalls[0])
	require.Len(t, client.sentTransactions, 1)
}
