// Package binutil holds the setup shared by the gwphys commands.
package binutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"net/url"
	"sync"

	"github.com/natefinch/lumberjack"
	"github.com/xiaonanln/gwphys/engine/gwlog"
	"github.com/xiaonanln/gwphys/engine/opmon"
	"go.uber.org/zap"
)

const lumberjackScheme = "lumberjack"

var registerSinkOnce sync.Once

// rotatingSink adapts a lumberjack logger to a zap sink
type rotatingSink struct {
	*lumberjack.Logger
}

func (rotatingSink) Sync() error {
	return nil
}

func newRotatingSink(u *url.URL) (zap.Sink, error) {
	filename := u.Opaque
	if filename == "" {
		filename = u.Path
	}
	logger := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    100, // megabytes
		MaxBackups: 100,
		MaxAge:     30, //days
		Compress:   true,
	}
	logger.Rotate() // rotate immediately
	return rotatingSink{logger}, nil
}

// LogOutputs returns the gwlog output paths for a log file and stderr
func LogOutputs(logFile string, logStderr bool) []string {
	outputs := make([]string, 0, 2)
	if logFile != "" {
		outputs = append(outputs, lumberjackScheme+":"+logFile)
	}
	if logStderr {
		outputs = append(outputs, "stderr")
	}
	return outputs
}

// SetupGWLog setup the gwlog system: the level, a rotating log file and stderr
func SetupGWLog(component string, logLevel string, logFile string, logStderr bool) {
	registerSinkOnce.Do(func() {
		if err := zap.RegisterSink(lumberjackScheme, newRotatingSink); err != nil {
			gwlog.Panic(err)
		}
	})
	gwlog.SetSource(component)
	gwlog.Infof("Set log level to %s", logLevel)
	gwlog.SetLevel(gwlog.ParseLevel(logLevel))
	gwlog.SetOutput(LogOutputs(logFile, logStderr))
}

// SetupHTTPServer starts the HTTP server for go tool pprof and the /debug/opmon stats
func SetupHTTPServer(ip string, port int) {
	if port == 0 {
		// pprof not enabled
		gwlog.Infof("pprof server not enabled")
		return
	}

	httpHost := fmt.Sprintf("%s:%d", ip, port)
	gwlog.Infof("http server listening on %s", httpHost)
	gwlog.Infof("pprof http://%s/debug/pprof/ ... available commands: ", httpHost)
	gwlog.Infof("    go tool pprof http://%s/debug/pprof/heap", httpHost)
	gwlog.Infof("    go tool pprof http://%s/debug/pprof/profile", httpHost)
	gwlog.Infof("operation stats at http://%s/debug/opmon", httpHost)

	go func() {
		if err := http.ListenAndServe(httpHost, nil); err != nil {
			gwlog.Errorf("http server stopped: %v", err)
		}
	}()
}

func init() {
	http.HandleFunc("/debug/opmon", serveOpmon)
}

// serveOpmon writes the stats gathered since the previous request
func serveOpmon(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.Encode(opmon.Snapshot())
}
