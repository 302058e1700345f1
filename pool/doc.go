// Package pool
// Author: momentics <momentics@gmail.com>
//
// Reusable scratch-buffer pooling for the endpoint read path. Buffers are
// fixed-size and recycled through sync.Pool so a busy router does not
// allocate per readiness event.
package pool
