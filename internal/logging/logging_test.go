// Nukepave - nuke-and-pave backup and restore for relational databases
// Copyright (C) 2025 blubskye
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.
//
// Source code: https://github.com/blubskye/nukepave

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelsAndJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Debug("hidden %d", 1)
	Info("restored %d tables", 3)
	Warn("plain message")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message logged at info level: %s", out)
	}
	if !strings.Contains(out, `"message":"restored 3 tables"`) || !strings.Contains(out, `"level":"info"`) {
		t.Errorf("missing info line: %s", out)
	}
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("missing warn line: %s", out)
	}
	if IsDebugEnabled() {
		t.Error("debug should be disabled at info level")
	}

	if err := SetLevelFromString("debug"); err != nil {
		t.Fatal(err)
	}
	Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("debug message missing after SetLevelFromString")
	}
	if err := SetLevelFromString("loud"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

func TestRedirect(t *testing.T) {
	var main, held bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &main})
	defer Init(DefaultConfig())

	restore := Redirect(&held)
	Info("during")
	restore()
	Info("after")

	if !strings.Contains(held.String(), "during") || strings.Contains(held.String(), "after") {
		t.Errorf("held = %q", held.String())
	}
	if strings.Contains(main.String(), "during") || !strings.Contains(main.String(), "after") {
		t.Errorf("main = %q", main.String())
	}
}

func TestSetLogFile(t *testing.T) {
	Init(Config{Level: "info", Format: "json", Output: &bytes.Buffer{}})
	defer Init(DefaultConfig())

	path := filepath.Join(t.TempDir(), "logs", "nukepave.log")
	if err := SetLogFile(path); err != nil {
		t.Fatal(err)
	}
	Error("disk full")
	if err := Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "disk full") {
		t.Errorf("log file = %q", data)
	}
}
