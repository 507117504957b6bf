// Package knet is a portable, multi-goroutine TCP networking library built
// around a per-goroutine event reactor ("loop"). Applications accept,
// connect, read, and write over stream sockets without blocking; a
// Balancer distributes accepted connections across a pool of Loops;
// lifecycle events are delivered through a single user Callback.
//
// The three subsystems that carry the engineering weight are:
//
//   - the channel lifecycle: ChannelRef, a reference-counted handle
//     tracking a socket's state, watched events, and callback, safe to
//     share across loop goroutines while enforcing that socket operations
//     run on the owning Loop;
//   - the reactor/loop interaction: how a ChannelRef registers with its
//     Loop's selector, how readiness drives state transitions, and how
//     cross-goroutine requests reach the owning Loop's inbox;
//   - the load-balanced accept path: migrating an accepted connection to
//     a less-loaded Loop via a Balancer.
//
// Message framing, application protocols, TLS, and connection pooling are
// explicitly out of scope — this is the raw, non-blocking TCP core other
// packages build on.
package knet
