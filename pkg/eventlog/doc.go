// Package eventlog records a machine-readable trace of a card session.
//
// It is separate from operational logging (slog): every exchange with the card,
// every session state transition and every handshake failure becomes an Event that
// can be written to a CBOR file, mirrored to slog, or both.
//
// # Basic Usage
//
//	// Console during development
//	logger := eventlog.NewSlogAdapter(slog.Default())
//
//	// Binary file for later replay with `satochip events`
//	file, _ := eventlog.NewFileLogger("session.clog")
//
//	// Both
//	logger := eventlog.NewMultiLogger(eventlog.NewSlogAdapter(slog.Default()), file)
//
// # Exchanges
//
// TracingTransmitter wraps a card link and emits one OUT and one IN event per round trip.
// Headers, lengths and status words are always recorded. Payload bytes are recorded only
// when enabled, and never for PIN instructions or secure channel envelopes.
package eventlog
