// Package netio provides the wire transport for VL1: raw UDP socket I/O,
// interface liveness monitoring, and the VXLAN/Geneve tunnel encapsulations
// that back EndpointVXLAN and EndpointGeneve.
//
// The Linux-specific implementation uses golang.org/x/sys/unix for socket
// options (SO_BINDTODEVICE, IP_PKTINFO, per-call TTL) not exposed by the
// standard library, and github.com/godbus/dbus/v5 to watch NetworkManager
// for interface state changes.
package netio
