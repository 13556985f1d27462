package mailer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Range-Software/range-cloud/pkg/log"
)

func init() {
	_ = log.Init(log.Config{Level: "error"})
}

// writeCaptureScript writes a stand-in mail-submission program that records
// its arguments and stdin.
func writeCaptureScript(t *testing.T, dir string) (command, outFile string) {
	t.Helper()
	outFile = filepath.Join(dir, "captured.txt")
	command = filepath.Join(dir, "capture.sh")
	script := "#!/bin/sh\necho \"args: $@\" > " + outFile + "\ncat >> " + outFile + "\n"
	require.NoError(t, os.WriteFile(command, []byte(script), 0o755))
	return command, outFile
}

func waitForFile(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			return string(data)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("file %q was not written", path)
	return ""
}

func TestDeliverWritesMessageToTransport(t *testing.T) {
	command, outFile := writeCaptureScript(t, t.TempDir())

	m := New(Settings{
		FromAddress: "cloud@example.com",
		Command:     command,
		SendTimeout: 5 * time.Second,
	})
	m.Start()
	defer m.Stop()

	m.Submit("alice@example.com", "Authentication token created", "token body")

	content := waitForFile(t, outFile)
	assert.Contains(t, content, "args: -t alice@example.com")
	assert.Contains(t, content, "From:cloud@example.com")
	assert.Contains(t, content, "Subject:Authentication token created")
	assert.Contains(t, content, "token body")
}

func TestFailedDeliveryIsCountedNotRetried(t *testing.T) {
	m := New(Settings{Command: "/bin/false", SendTimeout: 5 * time.Second})
	m.Start()

	m.Submit("alice@example.com", "subject", "body")
	m.Stop()

	doc := m.Statistics()
	counters, ok := doc["counters"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, int64(1), counters["Failed"])
}

func TestStopDrainsQueue(t *testing.T) {
	command, outFile := writeCaptureScript(t, t.TempDir())

	m := New(Settings{Command: command, SendTimeout: 5 * time.Second})
	m.Submit("alice@example.com", "queued before start", "body")
	m.Start()
	m.Stop()

	content, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "queued before start")
}

func TestDefaults(t *testing.T) {
	m := New(Settings{})
	assert.Equal(t, "sendmail", m.settings.Command)
	assert.Equal(t, 30*time.Second, m.settings.SendTimeout)
}
