package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/n0needt0/go-goodies/log"
	"github.com/n0needt0/synthlog/internal/api"
	"github.com/n0needt0/synthlog/internal/config"
	"github.com/n0needt0/synthlog/internal/preview"
	"github.com/n0needt0/synthlog/internal/rewrite"
	"github.com/n0needt0/synthlog/internal/services"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	envPrefix = "SYNTHLOG_"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "synthlog",
		Short:         "Synthetic security log generator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "--config <FILE> (default config.yaml)")

	for _, name := range rewrite.Names() {
		root.AddCommand(newFormatCmd(name))
	}
	root.AddCommand(newFormatsCmd(), newServeCmd())
	return root
}

func newFormatCmd(name string) *cobra.Command {
	format, err := rewrite.Lookup(name)
	if err != nil {
		panic(err)
	}

	cmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Generate synthetic %s logs", name),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var conf config.Config
			if err := config.LoadConfig(cfgFile, envPrefix, cmd, &conf); err != nil {
				return errors.Wrap(err, "failed to load config")
			}
			setLogLevel(conf.Logging.Level)
			return Run(cmd.Context(), name, &conf)
		},
	}

	flags := cmd.Flags()
	flags.Int("count", format.DefaultCount, "number of records in batch mode")
	flags.String("outdir", ".", "batch output directory")
	flags.String("filename", "", "batch output file (default <format>.log)")
	flags.String("start", "2011-01-01", "first batch timestamp")
	flags.String("end", "2020-01-01", "last batch timestamp")
	flags.String("mode", "live", "live or batch")
	flags.String("output", "raw", "batch framing: raw, ndjson or parquet")
	flags.String("sink", "udp", "live sink: udp or hec")
	flags.Int64("seed", 0, "random seed, 0 seeds from the clock")
	return cmd
}

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the formats synthlog can generate",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range rewrite.Names() {
				f, _ := rewrite.Lookup(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s default count %d\n", name, f.DefaultCount)
			}
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ops API and the preview server until stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var conf config.Config
			if err := config.LoadConfig(cfgFile, envPrefix, cmd, &conf); err != nil {
				return errors.Wrap(err, "failed to load config")
			}
			setLogLevel(conf.Logging.Level)
			return Serve(&conf)
		},
	}
}

func setLogLevel(levelStr string) {
	switch strings.ToLower(levelStr) {
	case "debug":
		log.SetMinLogLevel(log.MinLevelDebug)
	case "info":
		log.SetMinLogLevel(log.MinLevelInfo)
	case "warn":
		log.SetMinLogLevel(log.MinLevelWarn)
	case "error":
		log.SetMinLogLevel(log.MinLevelError)
	}
}

// Server holds the HTTP surfaces of a run and brings them down on a signal
// or when the run ends.
type Server struct {
	Config   *config.Config
	Name     string
	quitterC chan time.Duration
	doneC    chan struct{}
	stopOnce sync.Once
	HttpApi  *api.API
	Preview  *preview.Server
	Services *services.Services
}

func NewServer(services *services.Services, conf *config.Config) *Server {
	return &Server{
		Config:   conf,
		Name:     conf.App.Name,
		quitterC: make(chan time.Duration),
		doneC:    make(chan struct{}),
		Services: services,
	}
}

// Start blocks until Stop is called or a signal arrives. quitterFn runs
// before the HTTP surfaces are shut down.
func (svc *Server) Start(quitterFn func(time.Duration)) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer signal.Stop(signalC)

	go func() {
		select {
		case sig := <-signalC:
			log.Debugf("Received signal %v", sig)
			if err := svc.Stop(2 * time.Second); err != nil {
				log.Fatalf("error stopping service: %v", err)
			}
		case <-svc.doneC:
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			st := svc.Services.Stats
			log.Infof("%s: emitted=%d failed=%d bytes=%d", svc.Name,
				st.RecordsEmitted.Load(), st.RecordsFailed.Load(), st.BytesEmitted.Load())
		case timeout := <-svc.quitterC:
			log.Debug("shutting down")

			if quitterFn != nil {
				quitterFn(timeout)
			}
			if svc.Preview != nil {
				svc.Preview.Shutdown()
			}
			if svc.HttpApi != nil {
				svc.HttpApi.Stop()
			}
			close(svc.doneC)
			return
		}
	}
}

func (svc *Server) Stop(timeout time.Duration) error {
	svc.stopOnce.Do(func() {
		defer close(svc.quitterC)

		log.Debugf("sending timeout %s to quitterC:", timeout)

		select {
		case svc.quitterC <- timeout:
			log.Debug("sent")
		case <-time.After(timeout + (100 * time.Millisecond)):
			log.Debug("timed out")
		}
	})
	return nil
}

// Done is closed once Start has returned
func (svc *Server) Done() <-chan struct{} {
	return svc.doneC
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Fatalf("failed to run: %s\n", err.Error())
		os.Exit(11)
	}
}
