// Package vl1 implements the core of a layer-1 peer-to-peer overlay node.
//
// A node holds a long-lived identity, maintains authenticated sessions with
// peers over canonicalized physical paths, resolves unknown addresses
// through a small set of trusted roots, and forwards framed packets on
// behalf of other nodes. The package is agnostic to the upper-layer
// protocol carried inside forwarded packets.
package vl1
