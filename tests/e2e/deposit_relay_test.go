// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package e2e

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/chainbridge-relay/relay/internal/chainclient"
	"github.com/chainbridge-relay/relay/internal/checkpoint"
	"github.com/chainbridge-relay/relay/internal/logstream"
	"github.com/chainbridge-relay/relay/internal/relay"
	"github.com/chainbridge-relay/relay/internal/testlog"
)

// logFixture mirrors the raw JSON shape internal/chainclient.rawLog
// decodes, used to hand-author eth_getLogs responses on the wire
// rather than going through Go structs, so this suite genuinely
// exercises hex encoding/decoding end to end.
type logFixture struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	TransactionHash string   `json:"transactionHash"`
	BlockNumber     string   `json:"blockNumber"`
}

func marshalLogs(fixtures ...logFixture) json.RawMessage {
	b, err := json.Marshal(fixtures)
	Expect(err).NotTo(HaveOccurred())
	return b
}

var _ = Describe("DepositRelay over a real JSON-RPC transport", func() {
	var (
		mainnet, testnet *fakeServer
		mainnetClient    *chainclient.RPCClient
		testnetClient    *chainclient.RPCClient
		store            checkpoint.Store
		cancel           context.CancelFunc
		errCh            chan error
	)

	BeforeEach(func() {
		mainnet = newFakeServer()
		testnet = newFakeServer()

		ctx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dialCancel()

		var err error
		mainnetClient, err = chainclient.Dial(ctx, mainnet.url())
		Expect(err).NotTo(HaveOccurred())
		testnetClient, err = chainclient.Dial(ctx, testnet.url())
		Expect(err).NotTo(HaveOccurred())

		store, err = checkpoint.OpenPebble(GinkgoT().TempDir(), common.Address{}, common.Address{})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		mainnetClient.Close()
		testnetClient.Close()
		Expect(store.Close()).To(Succeed())
		mainnet.close()
		testnet.close()
	})

	// S2 — DepositRelay single log, bit-exact
	It("submits a testnet deposit() transaction and advances the checkpoint", func() {
		mainnet.setBlockNumbers("0x1011")
		mainnet.setLogs("0x6", "0x1005", marshalLogs(logFixture{
			Address:         "0x0000000000000000000000000000000000000000",
			Topics:          []string{},
			Data:            "0x000000000000000000000000aff3454fce5edbc8cca8697c15331677e6ebcccc00000000000000000000000000000000000000000000000000000000000000f0",
			TransactionHash: "0x884edad9ce6fa2440d8a54cc123490eb96d2768479d49ff9c7366125a9424364",
			BlockNumber:     "0x1005",
		}))

		stream := logstream.New(mainnetClient, logstream.Init{
			After:          5,
			RequestTimeout: time.Second,
			PollInterval:   2 * time.Millisecond,
			Confirmations:  12,
		}, testlog.Logger())

		r := relay.NewDepositRelay(stream, testnetClient, store, relay.DepositRelayConfig{
			TestnetAccount:  common.HexToAddress("0x01"),
			TestnetContract: common.HexToAddress("0x00"),
			RequestTimeout:  time.Second,
			Tx:              relay.TxParams{Gas: 0, GasPrice: big.NewInt(0)},
		}, testlog.Logger(), nil, nil)

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		errCh = make(chan error, 1)
		go func() { errCh <- r.Run(ctx) }()

		Eventually(func() uint64 {
			return store.Checked(checkpoint.FieldDepositRelay)
		}, time.Second, 2*time.Millisecond).Should(Equal(uint64(0x1005)))

		cancel()
		Eventually(errCh, time.Second).Should(Receive())

		sent := testnet.sentTransactions()
		Expect(sent).To(HaveLen(1))
		Expect(sent[0].From).To(Equal(common.HexToAddress("0x01").Hex()))
		Expect(sent[0].To).To(Equal(common.HexToAddress("0x00").Hex()))
		Expect(sent[0].Data).To(Equal("0x26b3293f" +
			"000000000000000000000000aff3454fce5edbc8cca8697c15331677e6ebcccc" +
			"00000000000000000000000000000000000000000000000000000000000000f0" +
			"884edad9ce6fa2440d8a54cc123490eb96d2768479d49ff9c7366125a9424364"))
	})

	// S6 — gas/gasPrice overrides must survive real hexutil wire
	// encoding, not just the in-memory TransactionRequest unit tests
	// assert against.
	It("carries configured gas and gas price overrides onto the wire", func() {
		mainnet.setBlockNumbers("0x2")
		mainnet.setLogs("0x1", "0x1", marshalLogs(logFixture{
			Address: "0x0000000000000000000000000000000000000000",
			Topics:  []string{},
			Data: "0x0000000000000000000000000000000000000000000000000000000000000000" +
				"0000000000000000000000000000000000000000000000000000000000000000",
			TransactionHash: "0x0000000000000000000000000000000000000000000000000000000000000000",
			BlockNumber:     "0x1",
		}))

		stream := logstream.New(mainnetClient, logstream.Init{
			After:          0,
			RequestTimeout: time.Second,
			PollInterval:   2 * time.Millisecond,
			Confirmations:  1,
		}, testlog.Logger())

		r := relay.NewDepositRelay(stream, testnetClient, store, relay.DepositRelayConfig{
			TestnetAccount:  common.HexToAddress("0x01"),
			TestnetContract: common.HexToAddress("0x00"),
			RequestTimeout:  time.Second,
			Tx:              relay.TxParams{Gas: 0xfd, GasPrice: big.NewInt(0xa0)},
		}, testlog.Logger(), nil, nil)

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		errCh = make(chan error, 1)
		go func() { errCh <- r.Run(ctx) }()

		Eventually(func() uint64 {
			return store.Checked(checkpoint.FieldDepositRelay)
		}, time.Second, 2*time.Millisecond).Should(Equal(uint64(0x1)))

		cancel()
		Eventually(errCh, time.Second).Should(Receive())

		sent := testnet.sentTransactions()
		Expect(sent).To(HaveLen(1))
		Expect(sent[0].Gas).To(Equal("0xfd"))
		Expect(sent[0].GasPrice).To(Equal("0xa0"))
	})
})
