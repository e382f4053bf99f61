// Package icmp implements an ICMP echo (ping) client over raw sockets.
//
// # Codec
//
// Build, ComputeChecksum and (*EchoMessage).Marshal produce echo requests:
//
//	 0               1               2               3
//	+---------------+---------------+-------------------------------+
//	|     Kind      |     Code      |           Checksum            |
//	+---------------+---------------+-------------------------------+
//	|          Identifier           |        Sequence Number        |
//	+-------------------------------+-------------------------------+
//	|     Payload ...
//
// Multi-byte fields are big-endian. Raw IPv4 sockets deliver replies with the
// IP header attached; Decode skips it using the IHL field and reports
// malformed datagrams as a *DecodeError. DecodeLenient degrades them to the
// zero message and logs the reason instead.
//
// # Sessions
//
// A Session sends Count requests one after another, waiting up to Timeout
// for each reply. Any transport failure, including a timeout, aborts the
// session; no exchange is retried. Pinger opens and closes the raw socket
// around a session.
//
// # Privileges
//
// Raw ICMP sockets need root or CAP_NET_RAW on Linux:
//
//	setcap cap_net_raw+ep ./echoping
package icmp
