// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package checkpoint

import (
	"context"
	"encoding/binary"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var (
	keySchemaVersion  = []byte("schema_version")
	keyMainnetAddress = []byte("mainnet_contract_address")
	keyTestnetAddress = []byte("testnet_contract_address")
)

func fieldKey(f Field) []byte {
	return []byte(f)
}

// PebbleStore is the default Store, an embedded pebble database
// holding one key per Checkpoint field. Writes go through a single
// pebble.Batch per call so a field update is atomic with respect to a
// crash.
type PebbleStore struct {
	db       *pebble.DB
	rec      Record
	counters *cachedCounters
}

// OpenPebble opens (or creates) a checkpoint database at dir. mainnet
// and testnet are only used to seed a brand-new database; an existing
// database's persisted addresses always win -- the contract-pair
// identity is read once at startup and never overwritten.
func OpenPebble(dir string, mainnet, testnet common.Address) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening pebble checkpoint database at %s", dir)
	}

	rec, err := loadOrInit(db, mainnet, testnet)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &PebbleStore{db: db, rec: rec, counters: newCachedCounters(rec)}, nil
}

func loadOrInit(db *pebble.DB, mainnet, testnet common.Address) (Record, error) {
	versionBytes, closer, err := db.Get(keySchemaVersion)
	if errors.Is(err, pebble.ErrNotFound) {
		return initFresh(db, mainnet, testnet)
	}
	if err != nil {
		return Record{}, errors.Wrap(err, "reading schema_version")
	}
	version := binary.BigEndian.Uint32(versionBytes)
	closer.Close()
	if version != schemaVersion {
		return Record{}, ErrSchemaMismatch
	}

	rec := Record{SchemaVersion: version}
	rec.CheckedDepositRelay, err = getUint64(db, fieldKey(FieldDepositRelay))
	if err != nil {
		return Record{}, err
	}
	rec.CheckedWithdrawRelay, err = getUint64(db, fieldKey(FieldWithdrawRelay))
	if err != nil {
		return Record{}, err
	}
	rec.CheckedWithdrawConfirm, err = getUint64(db, fieldKey(FieldWithdrawConfirm))
	if err != nil {
		return Record{}, err
	}
	mainnetBytes, closer, err := db.Get(keyMainnetAddress)
	if err != nil {
		return Record{}, errors.Wrap(err, "reading mainnet_contract_address")
	}
	rec.MainnetContractAddress = common.BytesToAddress(mainnetBytes)
	closer.Close()
	testnetBytes, closer, err := db.Get(keyTestnetAddress)
	if err != nil {
		return Record{}, errors.Wrap(err, "reading testnet_contract_address")
	}
	rec.TestnetContractAddress = common.BytesToAddress(testnetBytes)
	closer.Close()

	return rec, nil
}

func getUint64(db *pebble.DB, key []byte) (uint64, error) {
	value, closer, err := db.Get(key)
	if err != nil {
		return 0, errors.Wrapf(err, "reading %s", key)
	}
	defer closer.Close()
	return decodeUint64(value), nil
}

func initFresh(db *pebble.DB, mainnet, testnet common.Address) (Record, error) {
	versionBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(versionBytes, schemaVersion)

	batch := db.NewBatch()
	defer batch.Close()
	if err := batch.Set(keySchemaVersion, versionBytes, nil); err != nil {
		return Record{}, err
	}
	if err := batch.Set(keyMainnetAddress, mainnet.Bytes(), nil); err != nil {
		return Record{}, err
	}
	if err := batch.Set(keyTestnetAddress, testnet.Bytes(), nil); err != nil {
		return Record{}, err
	}
	for _, f := range allFields {
		if err := batch.Set(fieldKey(f), encodeUint64(0), nil); err != nil {
			return Record{}, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return Record{}, errors.Wrap(err, "committing fresh checkpoint record")
	}

	return Record{
		SchemaVersion:          schemaVersion,
		MainnetContractAddress: mainnet,
		TestnetContractAddress: testnet,
	}, nil
}

func (s *PebbleStore) Load(ctx context.Context) (Record, error) {
	rec := s.rec
	rec.CheckedDepositRelay = s.counters.get(FieldDepositRelay)
	rec.CheckedWithdrawRelay = s.counters.get(FieldWithdrawRelay)
	rec.CheckedWithdrawConfirm = s.counters.get(FieldWithdrawConfirm)
	return rec, nil
}

func (s *PebbleStore) Advance(ctx context.Context, field Field, block uint64) error {
	if block < s.counters.get(field) {
		return ErrRegression
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(fieldKey(field), encodeUint64(block), nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return errors.Wrapf(err, "committing checkpoint advance for %s", field)
	}

	s.counters.set(field, block)
	return nil
}

func (s *PebbleStore) Checked(field Field) uint64 {
	return s.counters.get(field)
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
