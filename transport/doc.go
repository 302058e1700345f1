// File: transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-neighbour I/O layer for proctree. A process owns one Endpoint per
// direct neighbour: the non-blocking socketpair half connecting to it, a
// read accumulator feeding the frame decoder, and the two-tier write path
// (partial-frame cursor plus whole-frame send queue). Endpoints report
// everything they learn through the Sink interface; they never decide
// routing themselves.

package transport
