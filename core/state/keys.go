package state

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Storage keys are keccak hashes of a structured composite: a record-kind
// prefix followed by the numeric escrow id (big endian) and, where needed, a
// party address or asset symbol. The kind prefix makes the key space
// statically enumerable and rules out collisions between record kinds.
var (
	escrowPrefix        = []byte("escrow/record:")
	confPartyPrefix     = []byte("confirm/party:")
	confStatusPrefix    = []byte("confirm/status:")
	confCountPrefix     = []byte("confirm/count:")
	confPartiesPrefix   = []byte("confirm/parties:")
	confThresholdPrefix = []byte("confirm/threshold:")
	balancePrefix       = []byte("ledger/balance:")
	allowancePrefix     = []byte("ledger/allowance:")
	vaultPrefix         = []byte("ledger/vault:")

	genesisAppliedKey = ethcrypto.Keccak256([]byte("genesis/applied"))
)

func idBytes(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func escrowKey(id uint64) []byte {
	return ethcrypto.Keccak256(escrowPrefix, idBytes(id))
}

func confirmationPartyKey(id uint64, party [20]byte) []byte {
	return ethcrypto.Keccak256(confPartyPrefix, idBytes(id), party[:])
}

func confirmationStatusKey(id uint64) []byte {
	return ethcrypto.Keccak256(confStatusPrefix, idBytes(id))
}

func confirmationCountKey(id uint64) []byte {
	return ethcrypto.Keccak256(confCountPrefix, idBytes(id))
}

func confirmationPartiesKey(id uint64) []byte {
	return ethcrypto.Keccak256(confPartiesPrefix, idBytes(id))
}

func confirmationThresholdKey(id uint64) []byte {
	return ethcrypto.Keccak256(confThresholdPrefix, idBytes(id))
}

func balanceKey(asset string, addr [20]byte) []byte {
	return ethcrypto.Keccak256(balancePrefix, []byte(asset), []byte{':'}, addr[:])
}

// allowanceKey tracks what an owner has approved the custody vault to pull
// for a given asset. The spender is always the vault, so it is not part of
// the key.
func allowanceKey(asset string, owner [20]byte) []byte {
	return ethcrypto.Keccak256(allowancePrefix, []byte(asset), []byte{':'}, owner[:])
}

// VaultAddress derives the deterministic custody address for an asset.
func VaultAddress(asset string) [20]byte {
	digest := ethcrypto.Keccak256(vaultPrefix, []byte(asset))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}
