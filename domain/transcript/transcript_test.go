package transcript

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestAppendAssignsMonotonicSequence(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := New().WithNow(func() time.Time { return at })

	kinds := []EventKind{KindStateChanged, KindStepStarted, KindToolCall, KindStepFinished}
	for _, k := range kinds {
		if _, err := tr.Append(k, "s1", "", nil); err != nil {
			t.Fatalf("Append(%s): %v", k, err)
		}
	}

	events := tr.Events()
	if len(events) != len(kinds) {
		t.Fatalf("len = %d, want %d", len(events), len(kinds))
	}
	for i, e := range events {
		if e.Seq != uint64(i) {
			t.Errorf("events[%d].Seq = %d, want %d", i, e.Seq, i)
		}
		if e.Kind != kinds[i] {
			t.Errorf("events[%d].Kind = %s, want %s", i, e.Kind, kinds[i])
		}
		if !e.At.Equal(at) {
			t.Errorf("events[%d].At = %v, want %v", i, e.At, at)
		}
	}
}

func TestAppendRejectsEmptyKind(t *testing.T) {
	tr := New()
	if _, err := tr.Append("", "", "", nil); !errors.Is(err, ErrEmptyKind) {
		t.Fatalf("err = %v, want ErrEmptyKind", err)
	}
	if tr.Len() != 0 {
		t.Errorf("Len = %d after rejected append, want 0", tr.Len())
	}
}

func TestStepsFiltersByKind(t *testing.T) {
	tr := New()
	tr.Append(KindStepStarted, "s1", "", nil)
	tr.Append(KindVerdict, "s1", "rate_limited", nil)
	tr.Append(KindStepFinished, "s1", "", nil)
	tr.Append(KindStepStarted, "s2", "", nil)

	started := tr.Steps(KindStepStarted)
	if len(started) != 2 {
		t.Fatalf("step_started count = %d, want 2", len(started))
	}
	if started[0].StepID != "s1" || started[1].StepID != "s2" {
		t.Errorf("step order = %s, %s; want s1, s2", started[0].StepID, started[1].StepID)
	}
	if got := tr.Steps(KindVerdict); len(got) != 1 || got[0].Reason != "rate_limited" {
		t.Errorf("verdict filter = %+v", got)
	}
}

func TestEventsReturnsCopy(t *testing.T) {
	tr := New()
	tr.Append(KindMessage, "", "peer", json.RawMessage(`"hello"`))

	snap := tr.Events()
	snap[0].Reason = "mutated"

	if tr.Events()[0].Reason != "peer" {
		t.Error("external mutation leaked into the transcript")
	}
}

func TestMarshalJSONRendersEvents(t *testing.T) {
	tr := New().WithNow(func() time.Time { return time.Unix(0, 0).UTC() })
	tr.Append(KindSessionEnd, "", "halted", nil)

	data, err := json.Marshal(tr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out []Event
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].Kind != KindSessionEnd || out[0].Reason != "halted" {
		t.Errorf("round trip = %+v", out)
	}
}
