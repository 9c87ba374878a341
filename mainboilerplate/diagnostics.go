package mainboilerplate

import (
	"expvar"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// DiagnosticsConfig configures pull-based application metrics, debugging and diagnostics.
type DiagnosticsConfig struct {
	Port string `long:"port" env:"PORT" description:"Port on which to serve /debug/metrics, /debug/ready, /debug/pprof and /debug/vars. Diagnostics are not served if empty"`
}

// DiagnosticsMux returns a ServeMux of block cache and bridge metrics,
// a readiness check, and the runtime's profiling and expvar endpoints.
func DiagnosticsMux() *http.ServeMux {
	var mux = http.NewServeMux()

	mux.Handle("/debug/metrics", promhttp.Handler())
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/debug/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return mux
}

// InitDiagnosticsAndRecover serves the DiagnosticsMux if a Port is
// configured. The returned closure must be deferred by main: it recovers a
// panic, attempts to write a termination message, and re-panics.
func InitDiagnosticsAndRecover(cfg DiagnosticsConfig) func() {
	if cfg.Port != "" {
		var mux = DiagnosticsMux()
		go func() {
			var err = http.ListenAndServe(":"+cfg.Port, mux)
			log.WithFields(log.Fields{"err": err, "port": cfg.Port}).Warn("diagnostics server exited")
		}()
	}

	return func() {
		var r = recover()
		if r == nil {
			return
		}
		// Best effort. A long-running query may be run as a Job.
		if f, err := os.OpenFile(terminationLog, os.O_WRONLY, 0); err == nil {
			_, _ = fmt.Fprintf(f, "%+v", r)
			_ = f.Close()
		}
		panic(r)
	}
}

// Must logs a panic of |msg| if |err| is non-nil. |extra| are
// alternating keys and values of additional log fields.
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var fields = log.Fields{"err": err}
	for len(extra) >= 2 {
		fields[fmt.Sprint(extra[0])] = extra[1]
		extra = extra[2:]
	}
	log.WithFields(fields).Panic(msg)
}

// terminationLog is read by Kubernetes as the termination message of a container.
const terminationLog = "/dev/termination-log"
