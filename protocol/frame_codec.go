// File: protocol/frame_codec.go
// Package protocol implements the frame codec with length enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Implements frame encoding/decoding with alias and payload size limits
// to prevent resource exhaustion when a peer desynchronizes.

package protocol

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed frame header length in bytes.
const HeaderSize = 44

// MaxAliasLen bounds the alias string on the wire.
const MaxAliasLen = 1 << 10 // 1 KiB

// MaxFramePayload bounds a single payload. A length field above this limit
// cannot be a valid frame and is reported as a protocol fault.
const MaxFramePayload = 1 << 24 // 16 MiB

// Header field offsets.
const (
	offDst         = 0
	offSrc         = 4
	offSerialize   = 8
	offRequestAck  = 12
	offIsAck       = 16
	offID          = 20
	offUrgent      = 24
	offDstRemote   = 28
	offLastNodePID = 32
	offBroadcast   = 36
	offAliasLen    = 40
)

func putFlag(b []byte, v bool) {
	var u uint32
	if v {
		u = 1
	}
	binary.LittleEndian.PutUint32(b, u)
}

func getFlag(b []byte) bool {
	return binary.LittleEndian.Uint32(b) != 0
}

// EncodeFrame serializes the frame into a fresh byte slice.
func EncodeFrame(f *Frame) []byte {
	out := make([]byte, f.WireSize())
	binary.LittleEndian.PutUint32(out[offDst:], f.Dst)
	binary.LittleEndian.PutUint32(out[offSrc:], f.Src)
	putFlag(out[offSerialize:], f.Serialize)
	putFlag(out[offRequestAck:], f.RequestAck)
	putFlag(out[offIsAck:], f.IsAck)
	binary.LittleEndian.PutUint32(out[offID:], f.ID)
	putFlag(out[offUrgent:], f.Urgent)
	binary.LittleEndian.PutUint32(out[offDstRemote:], f.DstRemote)
	binary.LittleEndian.PutUint32(out[offLastNodePID:], f.LastNodePID)
	putFlag(out[offBroadcast:], f.Broadcast)
	binary.LittleEndian.PutUint32(out[offAliasLen:], uint32(len(f.Alias)))
	n := copy(out[HeaderSize:], f.Alias)
	binary.LittleEndian.PutUint32(out[HeaderSize+n:], uint32(len(f.Payload)))
	copy(out[HeaderSize+n+4:], f.Payload)
	return out
}

// DecodeFrameFromBytes parses one frame from the head of raw.
// Returns frame, consumed bytes, and error. If the frame is incomplete,
// returns (nil, 0, nil) and raw is left for the next read to extend.
// A length field above its bound is unrecoverable: there is no in-band
// framing token to resynchronize on.
func DecodeFrameFromBytes(raw []byte) (*Frame, int, error) {
	if len(raw) < HeaderSize {
		return nil, 0, nil // Incomplete
	}
	aliasLen := binary.LittleEndian.Uint32(raw[offAliasLen:])
	if aliasLen > MaxAliasLen {
		return nil, 0, fmt.Errorf("alias length %d exceeds maximum %d", aliasLen, MaxAliasLen)
	}
	offset := HeaderSize + int(aliasLen)
	if len(raw) < offset+4 {
		return nil, 0, nil // Incomplete
	}
	payloadLen := binary.LittleEndian.Uint32(raw[offset:])
	if payloadLen > MaxFramePayload {
		return nil, 0, fmt.Errorf("payload length %d exceeds maximum %d", payloadLen, MaxFramePayload)
	}
	total := offset + 4 + int(payloadLen)
	if len(raw) < total {
		return nil, 0, nil // Incomplete
	}

	f := &Frame{
		Dst:         binary.LittleEndian.Uint32(raw[offDst:]),
		Src:         binary.LittleEndian.Uint32(raw[offSrc:]),
		Serialize:   getFlag(raw[offSerialize:]),
		RequestAck:  getFlag(raw[offRequestAck:]),
		IsAck:       getFlag(raw[offIsAck:]),
		ID:          binary.LittleEndian.Uint32(raw[offID:]),
		Urgent:      getFlag(raw[offUrgent:]),
		DstRemote:   binary.LittleEndian.Uint32(raw[offDstRemote:]),
		LastNodePID: binary.LittleEndian.Uint32(raw[offLastNodePID:]),
		Broadcast:   getFlag(raw[offBroadcast:]),
		Alias:       string(raw[HeaderSize:offset]),
	}
	if payloadLen > 0 {
		f.Payload = make([]byte, payloadLen)
		copy(f.Payload, raw[offset+4:total])
	}
	return f, total, nil
}
