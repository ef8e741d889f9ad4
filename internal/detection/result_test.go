package detection

import (
	"encoding/json"
	"testing"
)

func TestDirection_String(t *testing.T) {
	tests := []struct {
		d    Direction
		want string
	}{
		{NoTape, "NoTape"},
		{Left, "Left"},
		{Right, "Right"},
		{Steady, "Steady"},
		{DetectionError, "DetectionError"},
		{Direction(42), "Direction(42)"},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestResult_JSON(t *testing.T) {
	data, err := json.Marshal(Result{Direction: Left, Confidence: 12.5, Err: ErrComputation})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"direction":"Left","confidence":12.5}` {
		t.Errorf("json = %s", data)
	}

	var back Result
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if back.Direction != Left || back.Confidence != 12.5 {
		t.Errorf("round trip = %+v", back)
	}

	if err := json.Unmarshal([]byte(`{"direction":"Sideways"}`), &back); err == nil {
		t.Error("expected error for unknown direction")
	}
	if _, err := json.Marshal(Result{Direction: Direction(-1)}); err == nil {
		t.Error("expected error for invalid direction")
	}
}
