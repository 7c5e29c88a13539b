// Package transport moves history snapshots between machines.
//
// Three transports share one store-level contract (Snapshot to send, Merge to
// receive):
//
//   - Peer runs the stream protocol over any reader/writer pair, such as
//     stdin/stdout of this process.
//   - SSH spawns the ssh client and runs the stream protocol against a remote
//     "sync --server" over the child's pipes.
//   - Directory exchanges snapshot files through a shared folder.
//
// # Wire Protocol
//
//	mode token     ASCII "send" | "receive" | "bidirectional", then '\n'
//	length prefix  8 bytes, unsigned little-endian
//	payload        exactly length bytes, a complete database file
//
// The mode is named from the initiator's side. In a bidirectional exchange the
// initiator sends first and then receives; the responder receives first and
// then sends. Neither side ever waits to read while the other is waiting too.
package transport
