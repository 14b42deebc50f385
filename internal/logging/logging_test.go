package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetupJSONAndLogError(t *testing.T) {
	var buf bytes.Buffer
	flush, err := Setup(Options{Level: "debug", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer flush()

	LogError("drive_upload", errors.New("quota"), map[string]interface{}{"user_id": "usr_1"})

	var line map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected a JSON log line, got %q: %v", buf.String(), err)
	}
	if line["error_type"] != "drive_upload" || line["user_id"] != "usr_1" || line["error"] != "quota" {
		t.Fatalf("unexpected fields: %v", line)
	}
	if logrus.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %s", logrus.GetLevel())
	}
}

func TestSetupFallsBackToInfoOnBadLevel(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Setup(Options{Level: "loud", Output: &buf}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if logrus.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level = %s", logrus.GetLevel())
	}
	LogEvent("message_sent", map[string]interface{}{"conversation_id": "cnv_1"})
	if !strings.Contains(buf.String(), "conversation_id=cnv_1") {
		t.Fatalf("missing field in %q", buf.String())
	}
}
