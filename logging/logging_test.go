package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestNew_Level(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"WARN", logrus.WarnLevel},
		{"", logrus.InfoLevel},
		{"loud", logrus.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log, err := New(Options{Level: tt.level})
			if err != nil {
				t.Fatal(err)
			}
			if got := log.GetLevel(); got != tt.want {
				t.Errorf("level = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_Outputs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var terminal bytes.Buffer

	log, err := New(Options{Level: "info", Dir: dir, Terminal: true, Stdout: &terminal})
	if err != nil {
		t.Fatal(err)
	}
	log.WithField("tile", "1/2/3").Info("Loaded tile")
	log.Debug("hidden")

	file, err := os.ReadFile(filepath.Join(dir, time.Now().Format("2006-01-02.log")))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	for name, out := range map[string]string{"file": string(file), "terminal": terminal.String()} {
		if !strings.Contains(out, "Loaded tile") || !strings.Contains(out, "1/2/3") {
			t.Errorf("%s output %q is missing the entry", name, out)
		}
		if strings.Contains(out, "hidden") {
			t.Errorf("%s output has a debug entry", name)
		}
	}
}
