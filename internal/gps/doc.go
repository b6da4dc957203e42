// Package gps runs a receiver session: it polls a transport port, frames and
// decodes NMEA, tracks liveness, and publishes receiver events.
//
// Threading: every receiver.Event is produced on the session read-loop
// goroutine and reaches consumers only through Events().Subscribe.
// Write, Stop, Status and State().Snapshot may be called from any goroutine.
package gps
