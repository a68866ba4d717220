package binutil

import (
	"encoding/json"
	"io/ioutil"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/gwphys/engine/gwlog"
	"github.com/xiaonanln/gwphys/engine/opmon"
)

func TestLogOutputs(t *testing.T) {
	assert.Equal(t, []string{"lumberjack:a.log", "stderr"}, LogOutputs("a.log", true))
	assert.Equal(t, []string{"stderr"}, LogOutputs("", true))
	assert.Equal(t, 0, len(LogOutputs("", false)))
}

func TestSetupGWLog(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")
	SetupGWLog("binutil", "info", logFile, false)
	defer func() {
		gwlog.SetOutput([]string{"stderr"})
		gwlog.SetLevel(gwlog.DebugLevel)
	}()
	gwlog.Debugf("hidden line")
	gwlog.Infof("visible line")
	gwlog.Sync()

	data, err := ioutil.ReadFile(logFile)
	assert.T(t, err == nil)
	assert.T(t, strings.Contains(string(data), "visible line"), string(data))
	assert.T(t, !strings.Contains(string(data), "hidden line"))
	assert.T(t, strings.Contains(string(data), "binutil"))
}

func TestServeOpmon(t *testing.T) {
	opmon.Snapshot()
	op := opmon.StartOperation("binutil.test")
	time.Sleep(time.Millisecond)
	op.Finish(0)

	w := httptest.NewRecorder()
	serveOpmon(w, httptest.NewRequest("GET", "/debug/opmon", nil))
	var stats []opmon.OpStat
	assert.T(t, json.Unmarshal(w.Body.Bytes(), &stats) == nil)
	assert.Equal(t, 1, len(stats))
	assert.Equal(t, "binutil.test", stats[0].Name)
	assert.Equal(t, uint64(1), stats[0].Count)
}
