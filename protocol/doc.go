// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package protocol implements the proctree wire format: a fixed 44-byte
// little-endian header followed by a length-prefixed alias string and a
// length-prefixed opaque payload. The decoder is strict and incremental:
// it consumes exactly one frame from the head of an accumulator buffer, or
// nothing at all.
package protocol
