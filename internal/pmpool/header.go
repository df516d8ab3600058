package pmpool

import (
	"encoding/binary"
	"hash/crc32"
)

// SSBT1 root-object format constants.
const (
	magic       = "SSBT"
	fileVersion = 1

	// headerSize is fixed and page-sized, so the first node slot starts at
	// a page boundary (and therefore the required 256-byte alignment).
	headerSize = 4096
)

// Root-header field offsets.
const (
	offMagic      = 0x00 // [4]byte
	offVersion    = 0x04 // uint32
	offHeaderSize = 0x08 // uint32
	offLnum       = 0x0C // uint32
	offRnum       = 0x10 // uint32
	offReserved1  = 0x14 // uint32
	offCapacity   = 0x18 // uint64
	offHeadOff    = 0x20 // uint64
	offTailOff    = 0x28 // uint64
	offRootOff    = 0x30 // uint64
	offNextAlloc  = 0x38 // uint64
	offFreeHead   = 0x40 // uint64
	offGeneration = 0x48 // uint64
	offCRC32C     = 0x50 // uint32
	offReserved2  = 0x54 // through headerSize
)

// rootHeader is the decoded form of the fixed 4096-byte root object at the
// start of the pool file: the persistent layout's {headOff, tailOff,
// rootOff, Lnum, Rnum}, plus pool bookkeeping (capacity/nextAlloc/freeHead)
// and a CRC32-C over the rest, following the same "zero generation and crc,
// then checksum" discipline as the slot-cache header this is grounded on.
type rootHeader struct {
	Version    uint32
	Lnum       uint32
	Rnum       uint32
	Capacity   uint64
	HeadOff    uint64
	TailOff    uint64
	RootOff    uint64
	NextAlloc  uint64
	FreeHead   uint64
	Generation uint64
	CRC32C     uint32
}

func encodeRootHeader(h *rootHeader) []byte {
	buf := make([]byte, headerSize)

	copy(buf[offMagic:], magic)
	binary.LittleEndian.PutUint32(buf[offVersion:], h.Version)
	binary.LittleEndian.PutUint32(buf[offHeaderSize:], headerSize)
	binary.LittleEndian.PutUint32(buf[offLnum:], h.Lnum)
	binary.LittleEndian.PutUint32(buf[offRnum:], h.Rnum)
	binary.LittleEndian.PutUint64(buf[offCapacity:], h.Capacity)
	binary.LittleEndian.PutUint64(buf[offHeadOff:], h.HeadOff)
	binary.LittleEndian.PutUint64(buf[offTailOff:], h.TailOff)
	binary.LittleEndian.PutUint64(buf[offRootOff:], h.RootOff)
	binary.LittleEndian.PutUint64(buf[offNextAlloc:], h.NextAlloc)
	binary.LittleEndian.PutUint64(buf[offFreeHead:], h.FreeHead)
	binary.LittleEndian.PutUint64(buf[offGeneration:], h.Generation)

	crc := computeRootCRC(buf)
	binary.LittleEndian.PutUint32(buf[offCRC32C:], crc)

	return buf
}

func decodeRootHeader(buf []byte) rootHeader {
	var h rootHeader

	h.Version = binary.LittleEndian.Uint32(buf[offVersion:])
	h.Lnum = binary.LittleEndian.Uint32(buf[offLnum:])
	h.Rnum = binary.LittleEndian.Uint32(buf[offRnum:])
	h.Capacity = binary.LittleEndian.Uint64(buf[offCapacity:])
	h.HeadOff = binary.LittleEndian.Uint64(buf[offHeadOff:])
	h.TailOff = binary.LittleEndian.Uint64(buf[offTailOff:])
	h.RootOff = binary.LittleEndian.Uint64(buf[offRootOff:])
	h.NextAlloc = binary.LittleEndian.Uint64(buf[offNextAlloc:])
	h.FreeHead = binary.LittleEndian.Uint64(buf[offFreeHead:])
	h.Generation = binary.LittleEndian.Uint64(buf[offGeneration:])
	h.CRC32C = binary.LittleEndian.Uint32(buf[offCRC32C:])

	return h
}

func computeRootCRC(buf []byte) uint32 {
	tmp := make([]byte, headerSize)
	copy(tmp, buf)

	for i := offGeneration; i < offGeneration+8; i++ {
		tmp[i] = 0
	}
	for i := offCRC32C; i < offCRC32C+4; i++ {
		tmp[i] = 0
	}

	return crc32.Checksum(tmp, crc32.MakeTable(crc32.Castagnoli))
}

func validMagic(buf []byte) bool {
	return string(buf[offMagic:offMagic+4]) == magic
}

func validateRootCRC(buf []byte) bool {
	stored := binary.LittleEndian.Uint32(buf[offCRC32C:])
	return stored == computeRootCRC(buf)
}
