// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package barrier implements a standalone N-party rendezvous over a SysV
// shared-memory segment, independent of the router and the executor. Any
// process attaching the same key participates. The barrier is reusable
// across generations and resettable after it broke.
package barrier
