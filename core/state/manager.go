package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"vaultix/native/confirm"
	"vaultix/native/escrow"
	"vaultix/storage"
)

// Manager mediates all durable-store access. Every request obtains a Txn,
// runs exactly one engine operation against it, and either commits the
// buffered writes as a single atomic batch or discards them.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a buffered transaction over the current store contents.
func (m *Manager) Begin() *Txn {
	return &Txn{
		db:      m.db,
		pending: make(map[string][]byte),
	}
}

// Txn buffers writes over a snapshot of the store. Reads observe buffered
// writes first; nothing reaches the database until Commit.
type Txn struct {
	db      storage.Database
	pending map[string][]byte
	order   []string
	closed  bool
}

var errTxnClosed = errors.New("state: transaction already committed or discarded")

func (tx *Txn) get(key []byte) ([]byte, bool, error) {
	if tx.closed {
		return nil, false, errTxnClosed
	}
	if value, ok := tx.pending[string(key)]; ok {
		return value, true, nil
	}
	value, err := tx.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (tx *Txn) has(key []byte) (bool, error) {
	if tx.closed {
		return false, errTxnClosed
	}
	if _, ok := tx.pending[string(key)]; ok {
		return true, nil
	}
	return tx.db.Has(key)
}

func (tx *Txn) set(key, value []byte) error {
	if tx.closed {
		return errTxnClosed
	}
	k := string(key)
	if _, ok := tx.pending[k]; !ok {
		tx.order = append(tx.order, k)
	}
	tx.pending[k] = value
	return nil
}

// Commit flushes all buffered writes through a single batch. The transaction
// cannot be reused afterwards.
func (tx *Txn) Commit() error {
	if tx.closed {
		return errTxnClosed
	}
	tx.closed = true
	if len(tx.order) == 0 {
		return nil
	}
	ops := make([]storage.KV, 0, len(tx.order))
	for _, k := range tx.order {
		ops = append(ops, storage.KV{Key: []byte(k), Value: tx.pending[k]})
	}
	return tx.db.WriteBatch(ops)
}

// Discard drops all buffered writes.
func (tx *Txn) Discard() {
	tx.closed = true
	tx.pending = nil
	tx.order = nil
}

// --- Escrow records ---

// EscrowPut sanitizes and persists an escrow record.
func (tx *Txn) EscrowPut(e *escrow.Escrow) error {
	sanitized, err := escrow.SanitizeEscrow(e)
	if err != nil {
		return err
	}
	encoded, err := encodeEscrow(sanitized)
	if err != nil {
		return err
	}
	return tx.set(escrowKey(sanitized.ID), encoded)
}

// EscrowGet loads an escrow record by id.
func (tx *Txn) EscrowGet(id uint64) (*escrow.Escrow, bool, error) {
	data, ok, err := tx.get(escrowKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	e, err := decodeEscrow(data)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// EscrowHas reports whether an escrow record exists for the id.
func (tx *Txn) EscrowHas(id uint64) (bool, error) {
	return tx.has(escrowKey(id))
}

// --- Confirmation records ---

// ConfirmationGet loads a party's confirmation record.
func (tx *Txn) ConfirmationGet(escrowID uint64, party [20]byte) (*confirm.PartyConfirmation, bool, error) {
	data, ok, err := tx.get(confirmationPartyKey(escrowID, party))
	if err != nil || !ok {
		return nil, false, err
	}
	conf, err := decodeConfirmation(data)
	if err != nil {
		return nil, false, err
	}
	return conf, true, nil
}

// ConfirmationPut stores a party's confirmation record.
func (tx *Txn) ConfirmationPut(escrowID uint64, conf *confirm.PartyConfirmation) error {
	if conf == nil {
		return fmt.Errorf("state: nil confirmation")
	}
	encoded, err := encodeConfirmation(conf)
	if err != nil {
		return err
	}
	return tx.set(confirmationPartyKey(escrowID, conf.Party), encoded)
}

// ConfirmationStatusGet returns the overlay status, defaulting to Pending when
// no record exists.
func (tx *Txn) ConfirmationStatusGet(escrowID uint64) (confirm.Status, error) {
	data, ok, err := tx.get(confirmationStatusKey(escrowID))
	if err != nil || !ok {
		return confirm.StatusPending, err
	}
	var value uint8
	if err := rlp.DecodeBytes(data, &value); err != nil {
		return confirm.StatusPending, err
	}
	status := confirm.Status(value)
	if !status.Valid() {
		return confirm.StatusPending, nil
	}
	return status, nil
}

// ConfirmationStatusSet stores the overlay status.
func (tx *Txn) ConfirmationStatusSet(escrowID uint64, status confirm.Status) error {
	encoded, err := rlp.EncodeToBytes(uint8(status))
	if err != nil {
		return err
	}
	return tx.set(confirmationStatusKey(escrowID), encoded)
}

// ConfirmationCountGet returns the running confirmation counter.
func (tx *Txn) ConfirmationCountGet(escrowID uint64) (uint32, error) {
	data, ok, err := tx.get(confirmationCountKey(escrowID))
	if err != nil || !ok {
		return 0, err
	}
	var value uint32
	if err := rlp.DecodeBytes(data, &value); err != nil {
		return 0, err
	}
	return value, nil
}

// ConfirmationCountSet stores the running confirmation counter.
func (tx *Txn) ConfirmationCountSet(escrowID uint64, count uint32) error {
	encoded, err := rlp.EncodeToBytes(count)
	if err != nil {
		return err
	}
	return tx.set(confirmationCountKey(escrowID), encoded)
}

// ConfirmationPartiesGet returns the party-set snapshot recorded at the first
// confirmation.
func (tx *Txn) ConfirmationPartiesGet(escrowID uint64) ([][20]byte, bool, error) {
	data, ok, err := tx.get(confirmationPartiesKey(escrowID))
	if err != nil || !ok {
		return nil, false, err
	}
	var parties [][20]byte
	if err := rlp.DecodeBytes(data, &parties); err != nil {
		return nil, false, err
	}
	return parties, true, nil
}

// ConfirmationPartiesSet stores the party-set snapshot.
func (tx *Txn) ConfirmationPartiesSet(escrowID uint64, parties [][20]byte) error {
	encoded, err := rlp.EncodeToBytes(parties)
	if err != nil {
		return err
	}
	return tx.set(confirmationPartiesKey(escrowID), encoded)
}

// ConfirmationThresholdGet returns the policy snapshot recorded at the first
// confirmation.
func (tx *Txn) ConfirmationThresholdGet(escrowID uint64) (confirm.Threshold, bool, error) {
	data, ok, err := tx.get(confirmationThresholdKey(escrowID))
	if err != nil || !ok {
		return confirm.Threshold{}, false, err
	}
	threshold, err := decodeThreshold(data)
	if err != nil {
		return confirm.Threshold{}, false, err
	}
	return threshold, true, nil
}

// ConfirmationThresholdSet stores the policy snapshot.
func (tx *Txn) ConfirmationThresholdSet(escrowID uint64, threshold confirm.Threshold) error {
	encoded, err := encodeThreshold(threshold)
	if err != nil {
		return err
	}
	return tx.set(confirmationThresholdKey(escrowID), encoded)
}

// --- Token ledger ---

// VaultAddress derives the custody address for an asset.
func (tx *Txn) VaultAddress(asset string) [20]byte {
	return VaultAddress(asset)
}

// BalanceOf returns the ledger balance for an address, zero when absent.
func (tx *Txn) BalanceOf(asset string, addr [20]byte) (*big.Int, error) {
	return tx.loadAmount(balanceKey(asset, addr))
}

// Allowance returns what the owner has approved the custody vault to pull.
func (tx *Txn) Allowance(asset string, owner [20]byte) (*big.Int, error) {
	return tx.loadAmount(allowanceKey(asset, owner))
}

// Approve records the owner's allowance towards the custody vault, replacing
// any previous value.
func (tx *Txn) Approve(asset string, owner [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: allowance must be non-negative")
	}
	return tx.storeAmount(allowanceKey(asset, owner), amount)
}

// Mint credits an address outside of any transfer. Used only while applying
// genesis allocations.
func (tx *Txn) Mint(asset string, addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: mint amount must be positive")
	}
	balance, err := tx.BalanceOf(asset, addr)
	if err != nil {
		return err
	}
	return tx.storeAmount(balanceKey(asset, addr), new(big.Int).Add(balance, amount))
}

// Pull moves funds from a party into custody, consuming allowance.
func (tx *Txn) Pull(asset string, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: transfer amount must be positive")
	}
	allowance, err := tx.Allowance(asset, from)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("state: insufficient allowance")
	}
	if err := tx.move(asset, from, to, amount); err != nil {
		return err
	}
	return tx.storeAmount(allowanceKey(asset, from), new(big.Int).Sub(allowance, amount))
}

// Push moves funds out of custody to a party.
func (tx *Txn) Push(asset string, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: transfer amount must be positive")
	}
	return tx.move(asset, from, to, amount)
}

func (tx *Txn) move(asset string, from, to [20]byte, amount *big.Int) error {
	fromBalance, err := tx.BalanceOf(asset, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("state: insufficient balance")
	}
	toBalance, err := tx.BalanceOf(asset, to)
	if err != nil {
		return err
	}
	if err := tx.storeAmount(balanceKey(asset, from), new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return tx.storeAmount(balanceKey(asset, to), new(big.Int).Add(toBalance, amount))
}

func (tx *Txn) loadAmount(key []byte) (*big.Int, error) {
	data, ok, err := tx.get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	value := new(big.Int)
	if err := rlp.DecodeBytes(data, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (tx *Txn) storeAmount(key []byte, amount *big.Int) error {
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	return tx.set(key, encoded)
}

// --- Genesis marker ---

// GenesisApplied reports whether genesis allocations have been written.
func (tx *Txn) GenesisApplied() (bool, error) {
	return tx.has(genesisAppliedKey)
}

// SetGenesisApplied records that genesis allocations are in place.
func (tx *Txn) SetGenesisApplied() error {
	return tx.set(genesisAppliedKey, []byte{1})
}
