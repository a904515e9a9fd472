package segment

import "github.com/andresmejia3/rashplayer/internal/types"

// Identity of the segment header.
const (
	Magic   uint32 = 0x52415348 // "RASH"
	Version uint32 = 1
)

// DefaultName is the well-known handle used to attach to the segment.
const DefaultName = "rashplayer_shm"

// Frame buffer geometry. The buffer is sized for the largest supported frame.
const (
	MaxFrameWidth   = 1920
	MaxFrameHeight  = 1080
	FrameChannels   = 4 // RGBA
	FrameBufferSize = MaxFrameWidth * MaxFrameHeight * FrameChannels
	PageSize        = 4096
)

// Header field offsets. All multi-byte fields are little-endian.
const (
	offMagic          = 0
	offVersion        = 4
	offFrameNumber    = 8
	offFrameTimestamp = 16
	offFrameReady     = 24
	offResultReady    = 28
	offCurrentState   = 32
	offStateRequest   = 36
	offFrameWidth     = 40
	offFrameHeight    = 44
	offFrameStride    = 48
	offVisionLatency  = 56
	offBrainLatency   = 64
	offTotalLatency   = 72
	offNumResults     = 88
	offResults        = 96

	resultSize = 48
	actionSize = 32

	offPendingAction = offResults + types.MaxResults*resultSize
)

// Vision result record layout, relative to the record start.
const (
	resTriggerID  = 0
	resFound      = 4
	resConfidence = 8
	resLocX       = 12
	resLocY       = 16
	resBoxX       = 20
	resBoxY       = 24
	resBoxW       = 28
	resBoxH       = 32
	resTimestamp  = 40
)

// Action command record layout, relative to the record start.
const (
	actKind      = 0
	actStartX    = 4
	actStartY    = 8
	actEndX      = 12
	actEndY      = 16
	actDuration  = 20
	actHold      = 24
	actRandomize = 28
)

// HeaderSize is the number of bytes used by the header fields.
const HeaderSize = offPendingAction + actionSize

// FrameOffset is the page-aligned start of the frame buffer.
const FrameOffset = (HeaderSize + PageSize - 1) / PageSize * PageSize

// Size is the total segment size, fixed for the life of the process.
const Size = FrameOffset + FrameBufferSize
