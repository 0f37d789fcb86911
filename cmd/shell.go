// This package provides utilities that underlie the specific commands.
// The idea is to make the specific command files very small, e.g.:
//
//    func main() {
//      var c cmd.Config
//      err := cmd.ReadConfigFile(*configFile, &c)
//      cmd.FailOnError(err, "Reading config file")
//      scope, logger := cmd.StatsAndLogging(c.Syslog)
//      // command logic
//    }
//
// All commands share the same invocation pattern. They take a single
// "-config" flag naming a JSON file that is unmarshalled into a Config.

package cmd

import (
	"encoding/json"
	"expvar"
	"fmt"
	"io/ioutil"
	"log"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path"
	"runtime"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc/grpclog"

	"github.com/go-logr/zapr"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	blog "github.com/icao-pkd/trustdir/log"
	"github.com/icao-pkd/trustdir/metrics"
)

// Version is set at build time via -ldflags, e.g.
// -X github.com/icao-pkd/trustdir/cmd.Version=$(git describe).
var Version = "dev"

func init() {
	for _, v := range os.Args {
		if v == "--version" || v == "-version" {
			fmt.Println(VersionString())
			os.Exit(0)
		}
	}
}

// mysqlLogger proxies blog.Logger to provide the Print(...) method the
// mysql driver's logging hook expects.
type mysqlLogger struct {
	blog.Logger
}

func (m mysqlLogger) Print(v ...interface{}) {
	m.AuditErr(fmt.Sprintf("[mysql] %s", fmt.Sprint(v...)))
}

// grpcLogger implements grpclog.LoggerV2 over blog.Logger, so any gRPC
// client library logging lands in the same audit sink as the rest of the
// process. No gRPC server runs in this module.
type grpcLogger struct {
	blog.Logger
}

func (g grpcLogger) Info(args ...interface{})                  { g.Logger.Info(fmt.Sprint(args...)) }
func (g grpcLogger) Infoln(args ...interface{})                { g.Logger.Info(fmt.Sprintln(args...)) }
func (g grpcLogger) Infof(format string, args ...interface{})  { g.Logger.Info(fmt.Sprintf(format, args...)) }
func (g grpcLogger) Warning(args ...interface{})                 { g.Logger.Warning(fmt.Sprint(args...)) }
func (g grpcLogger) Warningln(args ...interface{})               { g.Logger.Warning(fmt.Sprintln(args...)) }
func (g grpcLogger) Warningf(format string, args ...interface{}) { g.Logger.Warning(fmt.Sprintf(format, args...)) }
func (g grpcLogger) Error(args ...interface{})                  { g.AuditErr(fmt.Sprint(args...)) }
func (g grpcLogger) Errorln(args ...interface{})                { g.AuditErr(fmt.Sprintln(args...)) }
func (g grpcLogger) Errorf(format string, args ...interface{})  { g.AuditErr(fmt.Sprintf(format, args...)) }
func (g grpcLogger) Fatal(args ...interface{}) {
	g.AuditErr(fmt.Sprint(args...))
	os.Exit(1)
}
func (g grpcLogger) Fatalln(args ...interface{}) {
	g.AuditErr(fmt.Sprintln(args...))
	os.Exit(1)
}
func (g grpcLogger) Fatalf(format string, args ...interface{}) {
	g.AuditErr(fmt.Sprintf(format, args...))
	os.Exit(1)
}
func (g grpcLogger) V(l int) bool { return false }

// StatsAndLogging constructs a metrics.Scope and an audit Logger from
// logConf, sets the logger as the process default, and points the mysql
// driver and gRPC's global logger at it. The core sink is a zap JSON
// logger (matching the teacher's zap/zapr dependency); a StdoutLevel of
// 7 or more raises zap's level to Debug, mirroring the teacher's syslog
// stdout-mirroring knob.
func StatsAndLogging(logConf SyslogConfig) (metrics.Scope, blog.Logger) {
	scope := metrics.NewPromScope(prometheus.DefaultRegisterer)

	level := zapcore.InfoLevel
	if logConf.StdoutLevel != nil && *logConf.StdoutLevel >= 7 {
		level = zapcore.DebugLevel
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.InitialFields = map[string]interface{}{"tag": path.Base(os.Args[0])}
	zapLogger, err := zapCfg.Build()
	FailOnError(err, "Could not build zap logger")

	logger := blog.New(zapr.NewLogger(zapLogger))

	blog.Set(logger)
	_ = mysql.SetLogger(mysqlLogger{logger})
	grpclog.SetLoggerV2(grpcLogger{logger})

	return scope, logger
}

// FailOnError exits and prints an error message if we encountered a problem.
func FailOnError(err error, msg string) {
	if err != nil {
		logger := blog.Get()
		logger.AuditErr(fmt.Sprintf("%s: %s", msg, err))
		fmt.Fprintf(os.Stderr, "%s: %s\n", msg, err)
		os.Exit(1)
	}
}

// DebugServer starts a server exposing Prometheus metrics and Go runtime
// profiling endpoints. Typical usage is to start it in a goroutine,
// configured with an address from the appropriate configuration object:
//
//   go cmd.DebugServer(c.DebugAddr)
func DebugServer(addr string) {
	if addr == "" {
		log.Fatal("unable to boot debug server because no address was given for it. Set debugAddr.")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("unable to boot debug server on %#v", addr)
	}
	_ = expvar.NewMap("enabled-features")
	http.Handle("/metrics", promhttp.Handler())
	if err := http.Serve(ln, nil); err != nil {
		log.Fatalf("unable to boot debug server: %v", err)
	}
}

// ReadConfigFile unmarshals the JSON file at filename into out.
func ReadConfigFile(filename string, out interface{}) error {
	configData, err := ioutil.ReadFile(filename)
	if err != nil {
		return err
	}
	return json.Unmarshal(configData, out)
}

// VersionString produces a friendly application version string.
func VersionString() string {
	name := path.Base(os.Args[0])
	return fmt.Sprintf("Versions: %s=(%s) Golang=(%s)", name, Version, runtime.Version())
}

var signalToName = map[os.Signal]string{
	syscall.SIGTERM: "SIGTERM",
	syscall.SIGINT:  "SIGINT",
	syscall.SIGHUP:  "SIGHUP",
}

// CatchSignals blocks until SIGTERM, SIGINT, or SIGHUP, runs callback, logs,
// and exits 0.
func CatchSignals(logger blog.Logger, callback func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	sig := <-sigChan
	logger.Info(fmt.Sprintf("Caught %s", signalToName[sig]))

	if callback != nil {
		callback()
	}

	logger.Info("Exiting")
	os.Exit(0)
}
