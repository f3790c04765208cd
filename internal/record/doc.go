// Package record converts between iCalendar VTODO objects and tasks.Task.
//
// Decoding is strict about the fields the engine depends on (UID, STATUS and
// any DUE or COMPLETED timestamps) and lenient about the rest: a missing
// STATUS means NEEDS-ACTION, a missing SUMMARY becomes "Untitled" and a
// DATE-only DUE means the end of that day.
//
// Encoding always writes timestamps in UTC with second precision, so
// Decode(Encode(t)) yields a task equal to t for any task whose times carry
// no sub-second part.
//
// Record carries the original calendar object through a status change so
// that properties written by other clients survive the round trip.
package record
