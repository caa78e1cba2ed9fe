// Package agvtcp implements the framing of the vendor AGV TCP protocol.
//
// Every unit on the wire is a 16 byte big-endian header followed by a
// JSON body:
//
//	offset size field
//	0      1    sync, always 0x5A
//	1      1    protocol version
//	2      2    sequence number
//	4      4    body length
//	8      2    message type
//	10     6    reserved, zero
package agvtcp

import (
	"encoding/binary"
	"fmt"
)

const (
	SyncByte        byte = 0x5A
	ProtocolVersion byte = 0x01
	HeaderSize           = 16

	// DefaultMaxBodyLength bounds a declared body length. Larger values are
	// treated as line noise and trigger a resync.
	DefaultMaxBodyLength = 100000
)

// Well-known message types of the vendor protocol.
const (
	TypeStatusPush uint16 = 9300
	TypeHeartbeat  uint16 = 25940
)

// Frame is one decoded unit.
type Frame struct {
	Version  byte
	Sequence uint16
	Type     uint16
	Body     []byte
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame(type=%d seq=%d len=%d)", f.Type, f.Sequence, len(f.Body))
}

// MarshalBinary encodes f including its header.
func (f *Frame) MarshalBinary() ([]byte, error) {
	if uint64(len(f.Body)) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("body of %d bytes does not fit the length field", len(f.Body))
	}

	version := f.Version
	if version == 0 {
		version = ProtocolVersion
	}

	buf := make([]byte, HeaderSize+len(f.Body))
	buf[0] = SyncByte
	buf[1] = version
	binary.BigEndian.PutUint16(buf[2:4], f.Sequence)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(f.Body)))
	binary.BigEndian.PutUint16(buf[8:10], f.Type)
	copy(buf[HeaderSize:], f.Body)
	return buf, nil
}

// header is the parsed fixed part of a frame.
type header struct {
	version  byte
	sequence uint16
	length   uint32
	msgType  uint16
}

func parseHeader(b []byte) header {
	return header{
		version:  b[1],
		sequence: binary.BigEndian.Uint16(b[2:4]),
		length:   binary.BigEndian.Uint32(b[4:8]),
		msgType:  binary.BigEndian.Uint16(b[8:10]),
	}
}
