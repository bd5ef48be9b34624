package messaging

import "testing"

func TestLog_CapacityBoundsBuffer(t *testing.T) {
	log := NewLog(2)
	for i := 0; i < 5; i++ {
		log.Append(NewEnvelope(TypeContextShare, "node-a", BroadcastRecipient, nil))
	}
	if log.Len() != 2 {
		t.Errorf("expected buffer capped at 2, got %d", log.Len())
	}
}

func TestLog_EntriesReturnsChronologicalSnapshot(t *testing.T) {
	log := NewLog(0)
	log.Append(NewEnvelope(TypeConstitutionAnnounce, "node-a", BroadcastRecipient, map[string]interface{}{"n": 1}))
	log.Append(NewEnvelope(TypeConstitutionAnnounce, "node-a", BroadcastRecipient, map[string]interface{}{"n": 2}))
	entries := log.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Payload["n"] != 1 {
		t.Error("expected entries in insertion order")
	}
}

func TestLog_UnboundedWhenCapacityZero(t *testing.T) {
	log := NewLog(0)
	for i := 0; i < 50; i++ {
		log.Append(NewEnvelope(TypeContextShare, "node-a", BroadcastRecipient, nil))
	}
	if log.Len() != 50 {
		t.Errorf("expected 50 unbounded entries, got %d", log.Len())
	}
}
