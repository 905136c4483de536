// Package wire holds the byte-level constants of the OpenDMTP packet
// framing: header bytes, packet type codes, status codes, and command
// error codes. Nothing in this package allocates or blocks; it is the
// vocabulary the rest of pkg/dmtp encodes against.
package wire

// Header bytes classify a packet into the binary family or the ASCII
// family. PACKET_HEADER_BASIC packets are followed by a type byte and a
// one-byte length; '$' packets are text, terminated by '\r'.
const (
	HeaderBasic byte = 0xE0 // binary family
	HeaderASCII byte = '$'  // 0x24, ASCII family
)

// PacketType identifies the payload layout of a framed packet, independent
// of which header family carries it.
type PacketType byte

// Client-to-server packet types.
const (
	PktClientFixedFmtStd  PacketType = 0x31 // standard-resolution fixed event
	PktClientFixedFmtHigh PacketType = 0x32 // high-resolution fixed event
	PktClientFormatDef24  PacketType = 0x35 // custom format declaration, 24-bit descriptors
	PktClientFormatDef32  PacketType = 0x36 // custom format declaration, 32-bit descriptors
	PktClientCustomFmtStd PacketType = 0x3A // event encoded against a previously declared format
	PktClientCustomFmtHigh PacketType = 0x3B
	PktClientPropertyValue PacketType = 0x3E
	PktClientIdentify      PacketType = 0x01
	PktClientIdentifyUnique PacketType = 0x02
)

// Client diagnostic / control packet types.
const (
	PktClientError         PacketType = 0x05 // [error_code_u16][diagnostic payload]
	PktClientPropertyError PacketType = 0x06 // [key_u16][property error code_u16]
)

// Server-to-client packet types.
const (
	PktServerAck          PacketType = 0x81
	PktServerNak          PacketType = 0x82
	PktServerEOT          PacketType = 0x83
	PktServerGetProperty  PacketType = 0x85
	PktServerSetProperty  PacketType = 0x86
	PktServerFileUpload   PacketType = 0x87
	PktServerSpeakFreely  PacketType = 0x88 // grant: payload optional max event count
	PktServerSpeakBrief   PacketType = 0x89 // identification-only next session
)

// IsClient reports whether t is a client-originated packet type.
func (t PacketType) IsClient() bool { return byte(t) < 0x80 }

// IsServer reports whether t is a server-originated packet type.
func (t PacketType) IsServer() bool { return byte(t) >= 0x80 }

// StatusCode is the 16-bit domain enumeration carried by every Event.
// The leading nibble partitions the space per spec: 0x0 reserved,
// 0xF0 generic/location, 0xF1 motion, 0xF2 geozone, 0xF4 digital I/O,
// 0xF6 analog, 0xF7 temperature, 0xF8 misc (login/ack/nak), 0xF9 OBC,
// 0xFD device.
type StatusCode uint16

const (
	StatusNone StatusCode = 0x0000

	// Generic / location, 0xF0xx.
	StatusLocation       StatusCode = 0xF020
	StatusInitialized    StatusCode = 0xF011
	StatusWaymark        StatusCode = 0xF030
	StatusQuery          StatusCode = 0xF040

	// Motion, 0xF1xx.
	StatusMotionStart    StatusCode = 0xF112
	StatusMotionInMotion StatusCode = 0xF113
	StatusMotionStop     StatusCode = 0xF114
	StatusMotionDormant  StatusCode = 0xF115
	StatusMotionExcessSpeed StatusCode = 0xF11A
	StatusMotionMoving   StatusCode = 0xF11C

	// Geozone, 0xF2xx.
	StatusGeofenceArrive StatusCode = 0xF210
	StatusGeofenceDepart StatusCode = 0xF211
	StatusGeofenceViolation StatusCode = 0xF213

	// Odometer limits, 0xF250..0xF257 (one per counter, 0..7).
	StatusOdomLimit0 StatusCode = 0xF250
	StatusOdomLimit1 StatusCode = 0xF251
	StatusOdomLimit2 StatusCode = 0xF252
	StatusOdomLimit3 StatusCode = 0xF253
	StatusOdomLimit4 StatusCode = 0xF254
	StatusOdomLimit5 StatusCode = 0xF255
	StatusOdomLimit6 StatusCode = 0xF256
	StatusOdomLimit7 StatusCode = 0xF257

	// Digital I/O, 0xF4xx.
	StatusInputState  StatusCode = 0xF400
	StatusInputOn     StatusCode = 0xF402
	StatusInputOff    StatusCode = 0xF404

	// Analog, 0xF6xx.
	StatusAnalogRange StatusCode = 0xF600

	// Temperature, 0xF7xx.
	StatusTempRange StatusCode = 0xF710

	// Misc, 0xF8xx.
	StatusLogin      StatusCode = 0xF811
	StatusLogout     StatusCode = 0xF812
	StatusAck        StatusCode = 0xF813
	StatusNak        StatusCode = 0xF814

	// On-board computer, 0xF9xx.
	StatusOBCFault   StatusCode = 0xF900
	StatusOBCRange   StatusCode = 0xF910

	// Device, 0xFDxx.
	StatusLowBattery    StatusCode = 0xFD10
	StatusPowerFailure  StatusCode = 0xFD13
	StatusGPSExpired    StatusCode = 0xFD21
	StatusGPSFailure    StatusCode = 0xFD22
)

// ErrorCode is the 16-bit diagnostic code carried by a PktClientError
// packet (client reporting) or a PktServerNak payload (server
// complaint). As with the property key table, the values are assigned
// fresh in a block-per-category scheme.
type ErrorCode uint16

const (
	ErrorNone ErrorCode = 0x0000

	// Protocol-level complaints, either direction.
	ErrorChecksumFailed   ErrorCode = 0xF011
	ErrorPacketLength     ErrorCode = 0xF012
	ErrorPacketType       ErrorCode = 0xF013
	ErrorPacketPayload    ErrorCode = 0xF014
	ErrorSequence         ErrorCode = 0xF015
	ErrorInvalidAccount   ErrorCode = 0xF021
	ErrorInvalidDevice    ErrorCode = 0xF022

	// Property subsystem.
	ErrorPropertyReadOnly  ErrorCode = 0xF101
	ErrorPropertyWriteOnly ErrorCode = 0xF102
	ErrorPropertyInvalidID ErrorCode = 0xF103
	ErrorPropertyValue     ErrorCode = 0xF104
	ErrorCommandInvalid    ErrorCode = 0xF111
	ErrorCommandError      ErrorCode = 0xF112

	// Upload subsystem.
	ErrorUploadType   ErrorCode = 0xF311
	ErrorUploadLength ErrorCode = 0xF312
	ErrorUploadExtra  ErrorCode = 0xF313

	// GPS subsystem.
	ErrorGPSExpired ErrorCode = 0xF911
	ErrorGPSFailure ErrorCode = 0xF912

	// Internal / transport.
	ErrorTransportOpen  ErrorCode = 0xFE11
	ErrorTransportRead  ErrorCode = 0xFE12
	ErrorTransportWrite ErrorCode = 0xFE13
)

// CommandError is the 16-bit result code of a property-store command
// invocation, as distinct from a PropertyError kind. Values partition
// per spec §6: 0x0000 OK, 0x0001 OK-with-ack, 0xF01x argument kinds,
// 0xF02x overflow, 0xF1xx value, 0xF2xx unavailable, 0xF5xx execution,
// 0xFE0x generic, 0xFF01 feature-not-supported.
type CommandError uint16

const (
	CommandErrorOK        CommandError = 0x0000
	CommandErrorOKAck     CommandError = 0x0001
	CommandErrorArgCount  CommandError = 0xF010
	CommandErrorArgRange  CommandError = 0xF012
	CommandErrorOverflow  CommandError = 0xF020
	CommandErrorBadValue  CommandError = 0xF100
	CommandErrorUnavailable CommandError = 0xF200
	CommandErrorExecution CommandError = 0xF500
	CommandErrorGeneric   CommandError = 0xFE00
	CommandErrorUnsupported CommandError = 0xFF01
)
