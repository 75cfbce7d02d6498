// Package neteqerr defines the NetEQ error taxonomy used across the engine.
//
// Internal routines return a Code; zero means success, any other value is
// a taxonomy entry grouped by thousands (instance/config, RecOut path,
// RecIn path, packet buffer, codec DB, DTMF, RED/RTP). The facade stores
// the negated code in its per-instance error slot and returns -1 to the
// caller, matching the convention described by the engine this package
// belongs to.
package neteqerr

// Code is a taxonomy error code. Zero is success.
type Code int

// 1xxx: instance / configuration errors.
const (
	FaultyInstruction Code = 1000 + iota
	FaultyNetworkType
	FaultyDelayValue
	FaultyPlayoutMode
	CorruptInstance
	IllegalMasterSlaveSwitch
	MasterSlaveError
)

// 2xxx: RecOut path errors.
const (
	UnknownBufStatDecision Code = 2000 + iota
	DecodingError
	SampleUnderrun
	DecodedTooMuch
)

// 3xxx: RecIn path errors.
const (
	CngError Code = 3000 + iota
	UnknownPayload
	BufferInsertError
)

// 4xxx: packet buffer errors.
const (
	InitError Code = 4000 + iota
	InsertError
	UnknownG723Header
	NonexistingPacket
	NotInitialized
	AmbiguousILBCFrameSize
)

// 5xxx: codec DB errors.
const (
	CodecDBFull Code = 5000 + iota
	CodecDBNotExist
	CodecDBUnknownCodec
	CodecDBPayloadTaken
	CodecDBUnsupportedCodec
	CodecDBUnsupportedFs
	CodecDBKindTaken
)

// 6xxx: DTMF errors.
const (
	DtmfParameterError Code = 6000 + iota
	DtmfInsertError
	DtmfUnknownSampleFreq
	DtmfNotSupported
)

// 7xxx: RED / RTP wire errors.
const (
	RedSplitError Code = 7000 + iota
	RtpTooShort
	RtpCorrupt
)

var names = map[Code]string{
	FaultyInstruction:        "FaultyInstruction",
	FaultyNetworkType:        "FaultyNetworkType",
	FaultyDelayValue:         "FaultyDelayValue",
	FaultyPlayoutMode:        "FaultyPlayoutMode",
	CorruptInstance:          "CorruptInstance",
	IllegalMasterSlaveSwitch: "IllegalMasterSlaveSwitch",
	MasterSlaveError:         "MasterSlaveError",

	UnknownBufStatDecision: "UnknownBufStatDecision",
	DecodingError:          "DecodingError",
	SampleUnderrun:         "SampleUnderrun",
	DecodedTooMuch:         "DecodedTooMuch",

	CngError:          "CngError",
	UnknownPayload:    "UnknownPayload",
	BufferInsertError: "BufferInsertError",

	InitError:              "InitError",
	InsertError:            "InsertError",
	UnknownG723Header:      "UnknownG723Header",
	NonexistingPacket:      "NonexistingPacket",
	NotInitialized:         "NotInitialized",
	AmbiguousILBCFrameSize: "AmbiguousILBCFrameSize",

	CodecDBFull:             "CodecDbFull",
	CodecDBNotExist:         "CodecDbNotExist",
	CodecDBUnknownCodec:     "CodecDbUnknownCodec",
	CodecDBPayloadTaken:     "CodecDbPayloadTaken",
	CodecDBUnsupportedCodec: "CodecDbUnsupportedCodec",
	CodecDBUnsupportedFs:    "CodecDbUnsupportedFs",
	CodecDBKindTaken:        "CodecDbKindTaken",

	DtmfParameterError:    "DtmfParameterError",
	DtmfInsertError:       "DtmfInsertError",
	DtmfUnknownSampleFreq: "DtmfUnknownSampleFreq",
	DtmfNotSupported:      "DtmfNotSupported",

	RedSplitError: "RedSplitError",
	RtpTooShort:   "RtpTooShort",
	RtpCorrupt:    "RtpCorrupt",
}

// String returns the taxonomy name for the code, or "Unknown" if unmapped.
func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	if c == 0 {
		return "Ok"
	}
	return "Unknown"
}

// Error implements the error interface so a Code can be returned directly
// from internal routines that prefer idiomatic Go error signatures.
func (c Code) Error() string {
	return c.String()
}
