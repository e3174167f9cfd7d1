// NTP clock offset check

package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"example.com/ntp-check/base/zaplog"
	"example.com/ntp-check/benchmark"
	"example.com/ntp-check/core/check"
	"example.com/ntp-check/core/sampler"
	"example.com/ntp-check/core/timebase"
	"example.com/ntp-check/driver/clock"
)

const (
	defaultPort     = "123"
	defaultWarning  = "60"
	defaultCritical = "120"
	defaultTimeout  = 10
)

type checkConfig struct {
	Host              string `toml:"host,omitempty"`
	Port              string `toml:"port,omitempty"`
	IPVersion         int    `toml:"ip_version,omitempty"`
	Warning           string `toml:"warning,omitempty"`
	Critical          string `toml:"critical,omitempty"`
	TimeoutSeconds    int    `toml:"timeout_seconds,omitempty"`
	TimeOffsetSeconds int    `toml:"time_offset_seconds,omitempty"`
	Quiet             bool   `toml:"quiet,omitempty"`
	MetricsAddr       string `toml:"metrics_address,omitempty"`
}

var (
	log *zap.Logger
)

func initLogger(verbose bool) {
	c := zap.NewDevelopmentConfig()
	c.DisableStacktrace = true
	c.EncoderConfig.EncodeCaller = func(
		caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		p := caller.TrimmedPath()
		if len(p) > 30 {
			p = "..." + p[len(p)-27:]
		}
		enc.AppendString(fmt.Sprintf("%30s", p))
	}
	if !verbose {
		c.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	var err error
	log, err = c.Build()
	if err != nil {
		panic(err)
	}
	zaplog.SetLogger(log)
}

func loadConfig(configFile string) checkConfig {
	raw, err := os.ReadFile(configFile)
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}
	var cfg checkConfig
	err = toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields().Decode(&cfg)
	if err != nil {
		log.Fatal("failed to decode configuration", zap.Error(err))
	}
	return cfg
}

func runMonitor(log *zap.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	err := http.ListenAndServe(addr, mux)
	log.Fatal("failed to serve metrics", zap.Error(err))
}

func family(ipVersion int) sampler.Family {
	switch ipVersion {
	case 4:
		return sampler.FamilyIPv4
	case 6:
		return sampler.FamilyIPv6
	default:
		return sampler.FamilyUnspecified
	}
}

func runCheck(cfg checkConfig) {
	lclk := &clock.SystemClock{Log: log}
	timebase.RegisterClock(lclk)

	warning, err := check.ParseRange(cfg.Warning)
	if err != nil {
		log.Fatal("failed to parse warning threshold",
			zap.String("threshold", cfg.Warning), zap.Error(err))
	}
	critical, err := check.ParseRange(cfg.Critical)
	if err != nil {
		log.Fatal("failed to parse critical threshold",
			zap.String("threshold", cfg.Critical), zap.Error(err))
	}

	if cfg.MetricsAddr != "" {
		go runMonitor(log, cfg.MetricsAddr)
	}

	// Absolute bound on resolution plus the full sampling session; the
	// session budget of half the timeout leaves room for post-processing.
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var offset float64
	offsetKnown := false
	results, err := sampler.Sample(ctx, log, sampler.Config{
		Host:       cfg.Host,
		Port:       cfg.Port,
		Family:     family(cfg.IPVersion),
		Timeout:    timeout,
		TimeOffset: time.Duration(cfg.TimeOffsetSeconds) * time.Second,
	})
	if err != nil {
		log.Info("sampling failed", zap.Error(err))
	} else {
		best := check.BestServer(log, results)
		if best >= 0 {
			offset = check.AverageOffset(results[best])
			offsetKnown = true
		} else {
			log.Info("no peer meets the synchronization criteria")
		}
	}

	var status check.Status
	if offsetKnown {
		status = check.EvaluateOffset(offset, warning, critical)
		fmt.Printf("NTP %s: Offset %.10g secs|offset=%.10gs;%s;%s;\n",
			status, offset, offset, warning.PerfSpec(), critical.PerfSpec())
	} else {
		if cfg.Quiet {
			status = check.StatusCritical
		} else {
			status = check.StatusUnknown
		}
		fmt.Printf("NTP %s: Offset unknown|\n", status)
	}
	os.Exit(status.ExitCode())
}

func runBenchmark(remoteAddrStr string, numRequests int) {
	lclk := &clock.SystemClock{Log: log}
	timebase.RegisterClock(lclk)

	remoteAddr, err := net.ResolveUDPAddr("udp", remoteAddrStr)
	if err != nil {
		log.Fatal("failed to resolve remote address",
			zap.String("remote", remoteAddrStr), zap.Error(err))
	}
	benchmark.RunBenchmark(remoteAddr, numRequests)
}

// splitCommand separates the subcommand name from its arguments. A leading
// flag selects the check subcommand, so the tool can be invoked the way the
// classic plugin is, without naming a subcommand.
func splitCommand(args []string) (string, []string) {
	if strings.HasPrefix(args[0], "-") {
		return "check", args
	}
	return args[0], args[1:]
}

func exitWithUsage() {
	fmt.Println("usage: check_ntp_time check [options]")
	fmt.Println("       check_ntp_time benchmark [options]")
	os.Exit(check.StatusUnknown.ExitCode())
}

func main() {
	var (
		verbose           bool
		configFile        string
		host              string
		port              string
		useIPv4           bool
		useIPv6           bool
		warning           string
		critical          string
		timeoutSeconds    int
		timeOffsetSeconds int
		quiet             bool
		metricsAddr       string
		remoteAddrStr     string
		numRequests       int
	)

	checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
	benchmarkFlags := flag.NewFlagSet("benchmark", flag.ExitOnError)

	checkFlags.BoolVar(&verbose, "verbose", false, "Verbose logging")
	checkFlags.StringVar(&configFile, "config", "", "Config file")
	checkFlags.StringVar(&host, "H", "", "Host name or address of the NTP server")
	checkFlags.StringVar(&port, "p", defaultPort, "UDP port")
	checkFlags.BoolVar(&useIPv4, "4", false, "Use IPv4 only")
	checkFlags.BoolVar(&useIPv6, "6", false, "Use IPv6 only")
	checkFlags.StringVar(&warning, "w", defaultWarning, "Offset resulting in warning status (seconds)")
	checkFlags.StringVar(&critical, "c", defaultCritical, "Offset resulting in critical status (seconds)")
	checkFlags.IntVar(&timeoutSeconds, "t", defaultTimeout, "Socket timeout (seconds)")
	checkFlags.IntVar(&timeOffsetSeconds, "o", 0, "Expected offset of the server relative to the local clock (seconds)")
	checkFlags.BoolVar(&quiet, "q", false, "Report CRITICAL instead of UNKNOWN when no offset could be determined")
	checkFlags.StringVar(&metricsAddr, "metrics", "", "Address to serve Prometheus metrics on")

	benchmarkFlags.BoolVar(&verbose, "verbose", false, "Verbose logging")
	benchmarkFlags.StringVar(&remoteAddrStr, "remote", "", "Remote address")
	benchmarkFlags.IntVar(&numRequests, "n", 10_000, "Number of requests")

	if len(os.Args) < 2 {
		exitWithUsage()
	}
	cmd, cmdArgs := splitCommand(os.Args[1:])

	switch cmd {
	case checkFlags.Name():
		err := checkFlags.Parse(cmdArgs)
		if err != nil || checkFlags.NArg() != 0 {
			exitWithUsage()
		}
		if useIPv4 && useIPv6 {
			exitWithUsage()
		}
		initLogger(verbose)
		cfg := checkConfig{
			Port:           defaultPort,
			Warning:        defaultWarning,
			Critical:       defaultCritical,
			TimeoutSeconds: defaultTimeout,
		}
		if configFile != "" {
			cfg = loadConfig(configFile)
		}
		// Explicitly set flags take precedence over the config file.
		checkFlags.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "H":
				cfg.Host = host
			case "p":
				cfg.Port = port
			case "4":
				cfg.IPVersion = 4
			case "6":
				cfg.IPVersion = 6
			case "w":
				cfg.Warning = warning
			case "c":
				cfg.Critical = critical
			case "t":
				cfg.TimeoutSeconds = timeoutSeconds
			case "o":
				cfg.TimeOffsetSeconds = timeOffsetSeconds
			case "q":
				cfg.Quiet = quiet
			case "metrics":
				cfg.MetricsAddr = metricsAddr
			}
		})
		if cfg.Host == "" {
			exitWithUsage()
		}
		if cfg.Port == "" {
			cfg.Port = defaultPort
		}
		if cfg.Warning == "" {
			cfg.Warning = defaultWarning
		}
		if cfg.Critical == "" {
			cfg.Critical = defaultCritical
		}
		if cfg.TimeoutSeconds <= 0 {
			cfg.TimeoutSeconds = defaultTimeout
		}
		runCheck(cfg)
	case benchmarkFlags.Name():
		err := benchmarkFlags.Parse(cmdArgs)
		if err != nil || benchmarkFlags.NArg() != 0 {
			exitWithUsage()
		}
		if remoteAddrStr == "" {
			exitWithUsage()
		}
		initLogger(verbose)
		runBenchmark(remoteAddrStr, numRequests)
	default:
		exitWithUsage()
	}
}
