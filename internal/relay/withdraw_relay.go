// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainbridge-relay/relay/internal/abi"
	"github.com/chainbridge-relay/relay/internal/chainclient"
	"github.com/chainbridge-relay/relay/internal/checkpoint"
	"github.com/chainbridge-relay/relay/internal/logstream"
)

// WithdrawRelayConfig is WithdrawRelay's static configuration,
// spanning both chains since it reads from testnet and writes to
// mainnet.
type WithdrawRelayConfig struct {
	// TestnetAccount is compared against each CollectedSignatures
	// log's authority field to decide relayer election.
	TestnetAccount        common.Address
	TestnetContract       common.Address
	TestnetRequestTimeout time.Duration

	MainnetAccount        common.Address
	MainnetContract       common.Address
	MainnetRequestTimeout time.Duration

	RequiredSignatures uint32
	Tx                 TxParams
}

// RelayAssignment is one surviving CollectedSignatures event's derived
// call data, transient within a single batch.
type RelayAssignment struct {
	MessageHash       common.Hash
	MessagePayload    []byte
	SignaturePayloads [][]byte
}

// fetchedWithdraw is the per-assignment result of the Fetch stage:
// one message plus one signature per required_signatures slot, paired
// by index with RelayAssignment rather than by any re-derived key.
type fetchedWithdraw struct {
	message    []byte
	signatures [][]byte
}

// WithdrawRelay tails CollectedSignatures events on the testnet
// contract; for every event this authority is elected to relay,
// fetches the stored message and signatures via eth_call and submits
// an aggregate withdraw() transaction to the mainnet contract.
type WithdrawRelay struct {
	stream        *logstream.LogStream
	testnetClient chainclient.Client // eth_call fan-out for message/signature payloads
	mainnetClient chainclient.Client // withdraw() submission
	store         checkpoint.Store
	cfg           WithdrawRelayConfig
	logger        logging.Logger
	metrics       MetricsSink
	decider       Decider
}

// NewWithdrawRelay takes stream and testnetClient (both the testnet
// side: tailing CollectedSignatures and fetching payloads) separately
// from mainnetClient (where the aggregated withdraw() is submitted).
func NewWithdrawRelay(stream *logstream.LogStream, testnetClient, mainnetClient chainclient.Client, store checkpoint.Store, cfg WithdrawRelayConfig, logger logging.Logger, metrics MetricsSink, decider Decider) *WithdrawRelay {
	return &WithdrawRelay{stream: stream, testnetClient: testnetClient, mainnetClient: mainnetClient, store: store, cfg: cfg, logger: logger, metrics: metrics, decider: decider}
}

func (r *WithdrawRelay) Run(ctx context.Context) error {
	for {
		r.logger.Debug("withdraw relay phase", zap.Stringer("phase", PhaseWait))
		batch, err := r.stream.Next(ctx)
		if err != nil {
			return err
		}

		assignments, err := r.assignmentsForBatch(batch)
		if err != nil {
			return err
		}

		// Short-circuits straight to Yield when nothing survived relayer
		// election, rather than round-tripping through an empty
		// Fetch/RelayWithdraws stage; both are externally identical.
		if len(assignments) > 0 {
			r.logger.Debug("withdraw relay phase", zap.Stringer("phase", PhaseFetch), zap.Int("assignments", len(assignments)))
			fetched, err := r.fetchAll(ctx, assignments)
			if err != nil {
				return err
			}

			r.logger.Debug("withdraw relay phase", zap.Stringer("phase", PhaseRelayWithdraws))
			if err := r.relayAll(ctx, fetched); err != nil {
				return err
			}
		}

		if err := r.store.Advance(ctx, checkpoint.FieldWithdrawRelay, batch.To); err != nil {
			return err
		}
		recordBatch(r.metrics, metricsRelayWithdraw, len(batch.Logs))
		r.logger.Info("withdraw relay phase", zap.Stringer("phase", PhaseYield), zap.Uint64("block", batch.To))
	}
}

// assignmentsForBatch implements the Wait stage: relayer election,
// then building each surviving log's signature_payload_i /
// message_payload call data.
func (r *WithdrawRelay) assignmentsForBatch(batch *logstream.Batch) ([]RelayAssignment, error) {
	assignments := make([]RelayAssignment, 0, len(batch.Logs))
	for _, log := range batch.Logs {
		authority, messageHash, err := parseCollectedSignaturesLog(log)
		if err != nil {
			return nil, err
		}
		if authority != r.cfg.TestnetAccount {
			continue // kind 5: uninteresting, not an error.
		}

		messagePayload, err := abi.PackMessage(messageHash)
		if err != nil {
			return nil, err
		}
		sigPayloads := make([][]byte, r.cfg.RequiredSignatures)
		for i := range sigPayloads {
			sigPayloads[i], err = abi.PackSignature(messageHash, uint32(i))
			if err != nil {
				return nil, err
			}
		}

		assignments = append(assignments, RelayAssignment{
			MessageHash:       messageHash,
			MessagePayload:    messagePayload,
			SignaturePayloads: sigPayloads,
		})
	}
	return assignments, nil
}

// fetchAll implements the Fetch stage: one eth_call per message and
// per signature slot, fanned out in parallel and joined index-paired
// with assignments.
func (r *WithdrawRelay) fetchAll(ctx context.Context, assignments []RelayAssignment) ([]fetchedWithdraw, error) {
	results := make([]fetchedWithdraw, len(assignments))
	g, gctx := errgroup.WithContext(ctx)

	for i, a := range assignments {
		i, a := i, a
		results[i].signatures = make([][]byte, len(a.SignaturePayloads))

		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, r.cfg.TestnetRequestTimeout)
			defer cancel()
			msg, err := r.testnetClient.Call(cctx, r.cfg.TestnetContract, a.MessagePayload)
			if err != nil {
				return err
			}
			results[i].message = msg
			return nil
		})

		for j, payload := range a.SignaturePayloads {
			j, payload := j, payload
			g.Go(func() error {
				cctx, cancel := context.WithTimeout(gctx, r.cfg.TestnetRequestTimeout)
				defer cancel()
				sig, err := r.testnetClient.Call(cctx, r.cfg.TestnetContract, payload)
				if err != nil {
					return err
				}
				results[i].signatures[j] = sig
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// relayAll implements RelayWithdraws: builds and submits one mainnet
// withdraw() transaction per fetched result, in parallel.
func (r *WithdrawRelay) relayAll(ctx context.Context, fetched []fetchedWithdraw) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range fetched {
		f := f
		g.Go(func() error {
			return r.relayOne(gctx, f)
		})
	}
	return g.Wait()
}

func (r *WithdrawRelay) relayOne(ctx context.Context, f fetchedWithdraw) error {
	ok, err := allowed(ctx, r.decider, "withdraw")
	if err != nil {
		return err
	}
	if !ok {
		r.logger.Warn("withdraw disallowed by decider, blocking this batch from checkpointing")
		return ErrSubmissionDisallowed
	}

	data, err := abi.PackWithdraw(f.signatures, f.message)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, r.cfg.MainnetRequestTimeout)
	defer cancel()
	_, err = r.mainnetClient.SendTransaction(cctx, chainclient.TransactionRequest{
		From:     r.cfg.MainnetAccount,
		To:       r.cfg.MainnetContract,
		Gas:      r.cfg.Tx.Gas,
		GasPrice: r.cfg.Tx.GasPrice,
		Data:     data,
	})
	if err != nil {
		return err
	}
	recordTransaction(r.metrics, metricsRelayWithdraw)
	return nil
}
