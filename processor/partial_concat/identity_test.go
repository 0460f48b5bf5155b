package partialconcat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/journaldconcat/message"
)

func TestStreamIdentity(t *testing.T) {
	tests := []struct {
		name   string
		tag    string
		record message.Record
		want   string
	}{
		{"string id", "docker.app", message.Record{"container_id": "abc"}, "docker.app:abc"},
		{"numeric id", "docker.app", message.Record{"container_id": float64(7)}, "docker.app:7"},
		{"missing id", "docker.app", message.Record{"message": "x"}, "docker.app:"},
		{"null id", "docker.app", message.Record{"container_id": nil}, "docker.app:"},
		{"nil record", "docker.app", nil, "docker.app:"},
		{"empty tag", "", message.Record{"container_id": "abc"}, ":abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StreamIdentity(tt.tag, tt.record, "container_id"))
		})
	}
}

func TestIsPartial(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"literal true", "true", true},
		{"bytes true", []byte("true"), true},
		{"bool true", true, true},
		{"bool false", false, false},
		{"literal false", "false", false},
		{"capitalized", "True", false},
		{"upper", "TRUE", false},
		{"trailing newline", "true\n", false},
		{"padded", " true", false},
		{"substring", "untrue", false},
		{"one", "1", false},
		{"number", float64(1), false},
		{"empty", "", false},
		{"absent", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPartial(tt.value))
		})
	}
}
