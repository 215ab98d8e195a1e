// Package gps runs the receiver side of the position pipeline: it owns the
// serial port (or a gpsd connection), feeds bytes through the nmea
// framing, validation and decoding stages, and publishes the latest fix.
//
// Transient failures (noise, bad checksums, timeouts) never stop the
// service; they are counted and kept as the last error in Snapshot.
package gps
