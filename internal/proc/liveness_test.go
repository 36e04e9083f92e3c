package proc

import (
	"os"
	"testing"
)

func TestLiveness_OwnProcess_IsAlive(t *testing.T) {
	if got := Liveness(os.Getpid()); got != StatusAlive {
		t.Errorf("Liveness(self) = %v, want %v", got, StatusAlive)
	}
}

func TestLiveness_NonexistentPID_IsDead(t *testing.T) {
	// PIDs near the default pid_max are vanishingly unlikely to be in use.
	if got := Liveness(999999); got != StatusDead {
		t.Errorf("Liveness(999999) = %v, want %v", got, StatusDead)
	}
}

func TestLiveness_NonPositivePID_IsDead(t *testing.T) {
	for _, pid := range []int{0, -1} {
		if got := Liveness(pid); got != StatusDead {
			t.Errorf("Liveness(%d) = %v, want %v", pid, got, StatusDead)
		}
	}
}

func TestLiveness_InitProcess_Exists(t *testing.T) {
	// PID 1 always exists; depending on privileges it is either alive or
	// alive-foreign, and both must count as existing.
	if got := Liveness(1); !got.Exists() {
		t.Errorf("Liveness(1) = %v, want an existing status", got)
	}
}

func TestStatus_String(t *testing.T) {
	cases := map[Status]string{
		StatusDead:         "dead",
		StatusAlive:        "alive",
		StatusAliveForeign: "alive-foreign",
		Status(42):         "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
