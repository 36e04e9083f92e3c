package stopsignal

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestFile_RaiseFiredClear(t *testing.T) {
	sig := NewFile(filepath.Join(t.TempDir(), "voicelayer", "stop"))

	fired, err := sig.Fired()
	if err != nil || fired {
		t.Fatalf("Fired before Raise = %v, %v; want false", fired, err)
	}

	if err := sig.Raise(); err != nil {
		t.Fatalf("Raise: %v", err)
	}
	// Raising twice is a no-op.
	if err := sig.Raise(); err != nil {
		t.Fatalf("second Raise: %v", err)
	}

	fired, err = sig.Fired()
	if err != nil || !fired {
		t.Fatalf("Fired after Raise = %v, %v; want true", fired, err)
	}

	// Fired must not consume.
	fired, err = sig.Fired()
	if err != nil || !fired {
		t.Fatalf("second Fired = %v, %v; want true", fired, err)
	}

	if err := sig.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	fired, err = sig.Fired()
	if err != nil || fired {
		t.Fatalf("Fired after Clear = %v, %v; want false", fired, err)
	}

	// Clearing an absent signal is fine.
	if err := sig.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}

func TestConsume_ChecksAndClearsInOneStep(t *testing.T) {
	sig := &Mem{}
	if err := sig.Raise(); err != nil {
		t.Fatalf("Raise: %v", err)
	}

	fired, err := Consume(sig)
	if err != nil || !fired {
		t.Fatalf("Consume = %v, %v; want true", fired, err)
	}

	// The signal is retired; a stale observation cannot leak into a future
	// capture.
	fired, err = Consume(sig)
	if err != nil || fired {
		t.Fatalf("second Consume = %v, %v; want false", fired, err)
	}
}

func TestConsume_NotFired_DoesNotClear(t *testing.T) {
	sig := &Mem{}
	fired, err := Consume(sig)
	if err != nil || fired {
		t.Fatalf("Consume on idle signal = %v, %v; want false", fired, err)
	}
}

func TestConsume_StorageFailure_Propagates(t *testing.T) {
	ioErr := errors.New("storage gone")
	sig := &Mem{Err: ioErr}
	if _, err := Consume(sig); !errors.Is(err, ioErr) {
		t.Fatalf("Consume error = %v, want %v", err, ioErr)
	}
}
