package event

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

const fingerprintSeed = "wallet-pnl:fingerprint:v1"

// Fingerprint computes a SHA-256 chain over the canonical bytes of the
// deterministically ordered event set. A cached replay result is valid
// only while the fingerprint of its input is unchanged — the event count
// alone is not enough, since upstream backfills can rewrite history
// without growing it.
func Fingerprint(events []Event) string {
	ordered := make([]Event, len(events))
	copy(ordered, events)
	SortDeterministic(ordered)

	hash := sha256.Sum256([]byte(fingerprintSeed))
	for i := range ordered {
		h := sha256.New()
		h.Write(hash[:])
		h.Write(canonicalBytes(&ordered[i]))
		copy(hash[:], h.Sum(nil))
	}
	return hex.EncodeToString(hash[:])
}

// canonicalBytes returns a deterministic serialization of one event.
// Strings are length-prefixed; decimals use their canonical string form
// so scale differences (1.50 vs 1.5) do not change the fingerprint.
func canonicalBytes(e *Event) []byte {
	buf := make([]byte, 0, 128)

	buf = appendInt64LE(buf, e.Seq)
	buf = appendInt64LE(buf, e.Timestamp.UnixMicro())
	buf = append(buf, byte(e.Kind))

	buf = appendString(buf, e.Wallet)
	buf = appendString(buf, e.MarketID)
	buf = appendString(buf, e.Outcome)
	buf = appendString(buf, e.AssetID)

	buf = appendString(buf, e.Size.String())
	buf = appendString(buf, e.Price.String())
	buf = appendString(buf, e.USDCAmount.String())

	return buf
}

func appendString(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, []byte(s)...)
}

func appendInt64LE(buf []byte, v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return append(buf, b[:]...)
}
