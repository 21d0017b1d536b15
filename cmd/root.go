// Package cmd implements the h2load CLI: a single cobra command
// exposing the full load-generator flag set, plus ambient enrichments
// such as a metrics endpoint, percentile selection, and BOLT tuning.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/h2load-go/h2load/config"
	"github.com/h2load-go/h2load/orchestrator"
	"github.com/h2load-go/h2load/stats"
)

var (
	flagRequests   uint64
	flagClients    uint64
	flagThreads    uint64
	flagMaxStreams uint32
	flagHeaders    []string
	flagNoTLSProto string
	flagData       string
	flagRate       uint64
	flagRatePeriod time.Duration
	flagDuration   time.Duration
	flagWarmUp     time.Duration
	flagActiveTO   time.Duration
	flagIdleTO     time.Duration
	flagH1         bool
	flagHdrTableSz uint32
	flagEncHdrSz   uint32
	flagQPS        uint64
	flagVerbose    bool

	flagPercentiles    string
	flagSampleVariance bool
	flagMetricsAddr    string
	flagInputFile      string
	flagBoltClass      string
	flagBoltHeader     string
	flagBoltContentLen int
)

// RootCmd is h2load's single cobra command.
var RootCmd = &cobra.Command{
	Use:   "h2load [flags] <url> [<url>...]",
	Short: "Multi-protocol HTTP/2, HTTP/1.1, and BOLT load generator",
	Long: `h2load drives many concurrent client connections against a single
target endpoint, measures per-request latency and throughput, and
reports aggregate statistics over HTTP/2, HTTP/1.1, or BOLT/SOFARPC.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := RootCmd.Flags()
	f.Uint64VarP(&flagRequests, "requests", "n", 1, "total requests (count mode)")
	f.Uint64VarP(&flagClients, "clients", "c", 1, "concurrent clients")
	f.Uint64VarP(&flagThreads, "threads", "t", 1, "worker threads")
	f.Uint32VarP(&flagMaxStreams, "max-concurrent-streams", "m", 1, "per-session in-flight request cap")
	f.StringArrayVarP(&flagHeaders, "header", "H", nil, "extra header \"Name: Value\" (repeatable)")
	f.StringVarP(&flagNoTLSProto, "no-tls-proto", "p", "", "protocol when scheme is http: h2c, http/1.1, sofarpc")
	f.StringVarP(&flagData, "data", "d", "", "POST body file (forces method POST, H1 pipelining=1)")
	f.Uint64VarP(&flagRate, "rate", "r", 0, "rate mode: connections created per period")
	f.DurationVar(&flagRatePeriod, "rate-period", time.Second, "rate mode period")
	f.DurationVarP(&flagDuration, "duration", "D", 0, "main-phase duration (timing mode)")
	f.DurationVar(&flagWarmUp, "warm-up-time", 0, "warm-up duration before the main phase")
	f.DurationVarP(&flagActiveTO, "connection-active-timeout", "T", 0, "per-connection lifetime cap")
	f.DurationVarP(&flagIdleTO, "connection-inactivity-timeout", "N", 0, "per-connection idle cap")
	f.BoolVar(&flagH1, "h1", false, "force HTTP/1.1 everywhere")
	f.Uint32Var(&flagHdrTableSz, "header-table-size", 0, "H2 HPACK decoder table size")
	f.Uint32Var(&flagEncHdrSz, "encoder-header-table-size", 0, "H2 HPACK encoder table size")
	f.Uint64Var(&flagQPS, "qps", 0, "queries-per-second mode (requires -D)")
	f.BoolVarP(&flagVerbose, "verbose", "v", false, "debug output")

	f.StringVar(&flagPercentiles, "percentiles", "", "comma-separated latency percentiles (default 50,75,90,95,99)")
	f.BoolVar(&flagSampleVariance, "sample-variance", false, "use sample variance instead of population variance")
	f.StringVar(&flagMetricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address")
	f.StringVar(&flagInputFile, "input-file", "", "read target URIs from this file, or - for stdin")
	f.StringVar(&flagBoltClass, "bolt-class", "com.h2load.BenchmarkService", "BOLT request class name")
	f.StringVar(&flagBoltHeader, "bolt-header", "", "BOLT request header bytes")
	f.IntVar(&flagBoltContentLen, "bolt-content-length", 1358, "BOLT request content length in bytes")

	RootCmd.Version = "0.1.0"
}

// Execute runs RootCmd; called once from main.main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cobra.Command, args []string) error {
	if flagVerbose {
		log.SetLevel(log.DebugLevel)
	}

	uris, err := resolveURIs(args, flagInputFile)
	if err != nil {
		return err
	}

	cfg, err := buildConfig(c, uris)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Infof("metrics listening on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Errorf("metrics server: %v", err)
			}
		}()
	}

	log.Infof("starting %s against %s with %d clients across %d threads",
		cfg.PacingMode(), uris[0], cfg.Nclients, cfg.Nthreads)

	report, err := orchestrator.Run(context.Background(), cfg)
	if err != nil {
		return err
	}

	printReport(report)
	return nil
}

func resolveURIs(args []string, inputFile string) ([]string, error) {
	if inputFile == "" {
		if len(args) == 0 {
			return nil, fmt.Errorf("h2load: at least one target URI is required")
		}
		return args, nil
	}
	var r *os.File
	if inputFile == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(inputFile)
		if err != nil {
			return nil, fmt.Errorf("h2load: reading --input-file: %w", err)
		}
		defer f.Close()
		r = f
	}
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}
	var uris []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			uris = append(uris, line)
		}
	}
	uris = append(uris, args...)
	return uris, nil
}

func readAll(r *os.File) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}

func buildConfig(c *cobra.Command, uris []string) (*config.Config, error) {
	targets, err := config.ParseTargets(uris)
	if err != nil {
		return nil, err
	}

	proto := config.ProtoH2
	if flagH1 {
		proto = config.ProtoH1
	} else if flagNoTLSProto != "" {
		proto, err = config.ParseNoTLSProto(flagNoTLSProto)
		if err != nil {
			return nil, err
		}
	}

	var headers []config.Header
	for _, h := range flagHeaders {
		hdr, err := config.ParseHeader(h)
		if err != nil {
			return nil, err
		}
		headers = append(headers, hdr)
	}

	var body []byte
	if flagData != "" {
		b, err := os.ReadFile(flagData)
		if err != nil {
			return nil, fmt.Errorf("h2load: reading -d/--data: %w", err)
		}
		body = b
	}

	percentiles, err := stats.ParsePercentiles(flagPercentiles)
	if err != nil {
		return nil, err
	}

	maxStreams := flagMaxStreams
	if maxStreams == 0 {
		maxStreams = 1
	}

	cfg := &config.Config{
		Targets:                targets,
		Protocol:               proto,
		UseTLS:                 targets[0].Scheme == "https",
		Headers:                headers,
		Body:                   body,
		Nreqs:                  flagRequests,
		Nclients:               flagClients,
		Nthreads:               flagThreads,
		Rate:                   flagRate,
		RateSet:                c.Flags().Changed("rate"),
		RatePeriod:             flagRatePeriod,
		QPS:                    flagQPS,
		QPSSet:                 c.Flags().Changed("qps"),
		Duration:               flagDuration,
		WarmUpTime:             flagWarmUp,
		ConnActiveTimeout:      flagActiveTO,
		ConnInactivityTimeout:  flagIdleTO,
		MaxConcurrentStreams:   maxStreams,
		HeaderTableSize:        flagHdrTableSz,
		EncoderHeaderTableSize: flagEncHdrSz,
		Verbose:                flagVerbose,
		Percentiles:            percentiles,
		SampleVariance:         flagSampleVariance,
		MetricsAddr:            flagMetricsAddr,
		BoltClassName:          []byte(flagBoltClass),
		BoltHeaderArg:          []byte(flagBoltHeader),
		BoltContentLength:      flagBoltContentLen,
		BoltTimeoutMs:          3000,
	}
	return cfg, nil
}

func printReport(r stats.Report) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(r)
}
