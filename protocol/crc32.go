package protocol

import (
	"hash/crc32"
	"strings"
)

// ConfigCRC computes the checksum used in "finalize_config crc=" for
// the config-negotiation sequence: the IEEE CRC-32 (matching Python's
// zlib.crc32) of the resolved config command lines joined by "\n".
// This is distinct from CRC16, which covers individual wire frames.
func ConfigCRC(lines []string) uint32 {
	return crc32.ChecksumIEEE([]byte(strings.Join(lines, "\n")))
}
