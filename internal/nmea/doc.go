// Package nmea frames and decodes NMEA 0183 sentences.
//
// The Framer turns an arbitrarily fragmented serial byte stream into
// checksum-verified sentences. The Decode* functions map one sentence to a
// typed value and never fail: malformed fields keep their zero value, since
// GPS streams routinely carry truncated or corrupted lines.
package nmea
