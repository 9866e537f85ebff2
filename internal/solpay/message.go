package solpay

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"
)

const (
	signingDomain = "\xffsolana offchain"

	formatRestrictedASCII byte = 0
	formatLimitedUTF8     byte = 1
	formatExtendedUTF8    byte = 2

	maxLedgerMessage = 1212
	maxMessage       = 65515
)

// CanonicalMessage is the exact text a wallet signs for an operation: the
// operation arguments plus the timestamp as a JSON object with sorted keys.
// The timestamp key always wins over an argument of the same name.
func CanonicalMessage(args map[string]string, timestampMs int64) ([]byte, error) {
	m := make(map[string]string, len(args)+1)
	for k, v := range args {
		m[k] = v
	}
	m["timestamp"] = strconv.FormatInt(timestampMs, 10)
	// encoding/json sorts map keys
	return json.Marshal(m)
}

// OffchainMessage wraps msg in the version 0 offchain message envelope
// wallets sign: signing domain, version, format, little-endian u16 length,
// then the message.
func OffchainMessage(msg []byte) ([]byte, error) {
	if len(msg) == 0 {
		return nil, fmt.Errorf("offchain message is empty")
	}
	if len(msg) > maxMessage {
		return nil, fmt.Errorf("offchain message too long: %d bytes", len(msg))
	}

	var format byte
	switch {
	case len(msg) <= maxLedgerMessage && isRestrictedASCII(msg):
		format = formatRestrictedASCII
	case len(msg) <= maxLedgerMessage && utf8.Valid(msg):
		format = formatLimitedUTF8
	case utf8.Valid(msg):
		format = formatExtendedUTF8
	default:
		return nil, fmt.Errorf("offchain message is not valid utf-8")
	}

	out := make([]byte, 0, len(signingDomain)+4+len(msg))
	out = append(out, signingDomain...)
	out = append(out, 0, format)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(msg)))
	return append(out, msg...), nil
}

func isRestrictedASCII(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}
