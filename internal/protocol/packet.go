// Package protocol defines the wire formats shared by the tunnel server and
// client: uplink frames, downlink batches, the slot-list handshake and slot
// index notifications.
package protocol

// MTU is the interface MTU both ends are configured with.
const MTU = 1500

// Wire sizes.
const (
	FrameHeaderSize    = 2 // int16 BE payload length
	SlotListHeaderSize = 4 // int32 BE length of the newline-joined id list
	SlotIndexSize      = 2 // uint16 BE slot index
)

// Limits.
const (
	MaxFramePayload = 1<<15 - 1 // largest length a signed 16-bit header can carry
	MaxSlotListSize = 1 << 20   // sanity bound for the handshake payload
	MaxSlots        = 1 << 16   // slot indices are uint16
)

// SlotListSeparator joins slot identifiers in the handshake payload.
const SlotListSeparator = "\n"
