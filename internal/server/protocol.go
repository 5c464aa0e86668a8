package server

// Application opcodes. Every frame on the wire is binary; the first byte is
// the opcode and the remainder the payload.
const (
	// Inbound
	OpAuth        byte = 0xFF // payload: UTF-8 bearer token
	OpPaint       byte = 0xFE // payload: 7-byte pixel record
	OpSnapshotReq byte = 0xF9 // empty
	OpPong        byte = 0xF7 // empty

	// Outbound
	OpAuthOK     byte = 0xFC // empty
	OpAuthFail   byte = 0xFD // empty
	OpSnapshot   byte = 0xFB // payload: zstd-compressed raw canvas
	OpPaintBatch byte = 0xFA // payload: N × 7-byte pixel records
	OpPing       byte = 0xF8 // empty
)
