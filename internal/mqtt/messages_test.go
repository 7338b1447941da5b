package mqtt

import (
	"testing"
)

func TestParseObject(t *testing.T) {
	tests := []struct {
		name       string
		json       string
		needRegion bool
		wantErr    bool
	}{
		{
			name: "valid spawn",
			json: `{"version": 1, "id": "orc-1", "kind": "orc", "tags": ["raider"]}`,
		},
		{
			name:       "valid entry",
			json:       `{"version": 1, "id": "elder", "region": "hall"}`,
			needRegion: true,
		},
		{
			name:       "entry without region",
			json:       `{"version": 1, "id": "elder"}`,
			needRegion: true,
			wantErr:    true,
		},
		{
			name:    "unsupported version",
			json:    `{"version": 2, "id": "orc-1"}`,
			wantErr: true,
		},
		{
			name:    "missing id",
			json:    `{"version": 1, "kind": "orc"}`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			json:    `{invalid}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseObject([]byte(tt.json), tt.needRegion)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.ID == "" {
				t.Error("expected id to be set")
			}
		})
	}
}

func TestParseCondition(t *testing.T) {
	msg, err := ParseCondition([]byte(`{"version": 1, "task": "Gather", "condition": "wood", "action": "counter_set", "value": 3}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Task != "Gather" || msg.Condition != "wood" || msg.Action != "counter_set" || msg.Value != 3 {
		t.Errorf("unexpected command: %+v", msg.ConditionCommand)
	}

	if _, err := ParseCondition([]byte(`{"version": 1, "task": "Gather"}`)); err == nil {
		t.Error("expected error for missing condition")
	}
}

func TestParseTask(t *testing.T) {
	msg, err := ParseTask([]byte(`{"version": 1, "task": "Feast", "state": "success"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Task != "Feast" || msg.State != "success" {
		t.Errorf("unexpected command: %+v", msg.TaskCommand)
	}
	if _, err := ParseTask([]byte(`{"version": 1, "state": "success"}`)); err == nil {
		t.Error("expected error for missing task")
	}
}

func TestParseContainer(t *testing.T) {
	msg, err := ParseContainer([]byte(`{"version": 1, "pool": "Storage", "item": "Wood", "delta": 7}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Divider != 1 {
		t.Errorf("expected default divider 1, got %d", msg.Divider)
	}
	if msg.DryRun {
		t.Error("expected dry_run false by default")
	}

	if _, err := ParseContainer([]byte(`{"version": 1, "pool": "Storage", "item": "Wood", "divider": -2}`)); err == nil {
		t.Error("expected error for negative divider")
	}
	if _, err := ParseContainer([]byte(`{"version": 1, "item": "Wood"}`)); err == nil {
		t.Error("expected error for missing pool")
	}
}
