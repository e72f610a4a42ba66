package eventlog

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileLoggerWritesCBOR(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.clog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	sw := uint16(0x6A82)
	event := Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Category:     CategoryError,
		Error:        &ErrorEventData{Op: "select applet", Message: "not found", Status: &sw},
	}
	logger.Log(event)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if decoded.ConnectionID != "conn-123" {
		t.Errorf("ConnectionID: got %q", decoded.ConnectionID)
	}
	if decoded.Error == nil || decoded.Error.Status == nil || *decoded.Error.Status != sw {
		t.Errorf("Error: got %+v", decoded.Error)
	}
	if !decoded.Timestamp.Equal(event.Timestamp) {
		t.Errorf("Timestamp: got %v, want %v", decoded.Timestamp, event.Timestamp)
	}
}

func TestFileLoggerAppendsAndReplays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.clog")

	for run := 0; run < 2; run++ {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(Event{Timestamp: time.Now(), ConnectionID: "a", Category: CategoryState,
			StateChange: &StateChangeEvent{OldState: "DISCONNECTED", NewState: "CONNECTED"}})
		logger.Log(Event{Timestamp: time.Now(), ConnectionID: "b", Category: CategoryExchange,
			Direction: DirectionOut, Exchange: &ExchangeEvent{Size: 4, Header: []byte{0xB0, 0x3C, 0, 0}}})
		logger.Close()
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	count := 0
	for {
		_, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		count++
	}
	if count != 4 {
		t.Errorf("replayed %d events, want 4", count)
	}

	cat := CategoryExchange
	fr, err := NewFilteredReader(path, Filter{Category: &cat})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer fr.Close()

	for i := 0; i < 2; i++ {
		ev, err := fr.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if ev.ConnectionID != "b" || ev.Exchange == nil {
			t.Errorf("filtered event %d: %+v", i, ev)
		}
	}
	if _, err := fr.Next(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestFileLoggerCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.clog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	if err := logger.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	logger.Log(Event{ConnectionID: "late"})

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("events after Close must be dropped, file has %d bytes", info.Size())
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.clog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				logger.Log(Event{Timestamp: time.Now(), ConnectionID: "c", Category: CategoryState,
					StateChange: &StateChangeEvent{NewState: "CONNECTED"}})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	count := 0
	for {
		if _, err := r.Next(); err != nil {
			if err != io.EOF {
				t.Fatalf("Next failed after %d events: %v", count, err)
			}
			break
		}
		count++
	}
	if count != 200 {
		t.Errorf("got %d events, want 200", count)
	}
}
