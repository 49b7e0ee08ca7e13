package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/n0needt0/go-goodies/log"
	"github.com/n0needt0/synthlog/internal/alerts"
	"github.com/n0needt0/synthlog/internal/api"
	"github.com/n0needt0/synthlog/internal/archive"
	"github.com/n0needt0/synthlog/internal/config"
	"github.com/n0needt0/synthlog/internal/corpus"
	"github.com/n0needt0/synthlog/internal/emitter"
	"github.com/n0needt0/synthlog/internal/geo"
	"github.com/n0needt0/synthlog/internal/preview"
	"github.com/n0needt0/synthlog/internal/rewrite"
	"github.com/n0needt0/synthlog/internal/schedule"
	"github.com/n0needt0/synthlog/internal/services"
	"github.com/n0needt0/synthlog/internal/sink"
	"github.com/n0needt0/synthlog/internal/values"
	"github.com/pkg/errors"
)

const (
	ModeLive  = "live"
	ModeBatch = "batch"
)

// builder creates generators from the configuration. One geolocation
// database is shared by every generator it builds.
type builder struct {
	conf    *config.Config
	locator *geo.Locator
}

func newBuilder(conf *config.Config) (*builder, error) {
	b := &builder{conf: conf}
	if conf.GeoIP.DB != "" {
		l, err := geo.Open(conf.GeoIP.DB)
		if err != nil {
			return nil, err
		}
		b.locator = l
	}
	return b, nil
}

func (b *builder) Generator(name string) (*emitter.Generator, error) {
	format, err := rewrite.Lookup(name)
	if err != nil {
		return nil, err
	}

	opts := values.Options{Seed: b.conf.Seed}
	if b.conf.Generator.Pool != "" {
		if opts.Pool, err = values.LoadPool(b.conf.Generator.Pool); err != nil {
			return nil, err
		}
	}
	if b.conf.Generator.Countries != "" {
		if opts.Countries, err = values.LoadCountries(b.conf.Generator.Countries); err != nil {
			return nil, err
		}
	}
	v, err := values.New(opts)
	if err != nil {
		return nil, err
	}

	var c *corpus.Corpus
	if b.conf.Generator.CorpusDir != "" {
		c, err = corpus.LoadDir(b.conf.Generator.CorpusDir, name, v.Rand())
	} else {
		c, err = corpus.Load(name, v.Rand())
	}
	if err != nil {
		return nil, err
	}

	loc, err := b.conf.Location()
	if err != nil {
		return nil, err
	}
	gopts := emitter.Options{Location: loc}
	if format.Locate != "" && b.locator != nil {
		gopts.Annotators = append(gopts.Annotators, geo.NewAnnotator(b.locator, format.Locate))
	}

	return emitter.NewGenerator(format, c, v, gopts)
}

func (b *builder) Close() {
	if b.locator != nil {
		if err := b.locator.Close(); err != nil {
			log.Warnf("failed to close geoip db: %v", err)
		}
	}
}

// Run generates one format in the configured mode with the ops API alongside
func Run(parent context.Context, name string, conf *config.Config) error {
	runID := archive.NewRunID()
	if conf.Otel.Enabled {
		otelshutdown := InitOtelProvider(conf, runID, name)
		defer otelshutdown()
	}

	b, err := newBuilder(conf)
	if err != nil {
		return err
	}
	defer b.Close()

	g, err := b.Generator(name)
	if err != nil {
		return err
	}

	services := services.NewServices(conf)
	services.RunID = runID
	services.Format = name

	engine := emitter.NewEngine(g, services.Stats)
	engine.Counters = services.EmitterCounters()
	if d := conf.Delays(); len(d) > 0 {
		engine.Delays = d
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	server := NewServer(services, conf)
	server.HttpApi = api.NewAPI(services, conf)
	go server.HttpApi.Serve(":"+strconv.Itoa(conf.Server.ApiPort), server.HttpApi.NewRouter())
	go server.Start(func(time.Duration) { cancel() })
	defer func() {
		server.Stop(2 * time.Second)
		<-server.Done()
	}()

	log.Infof("run %s: format=%s mode=%s", services.RunID, name, conf.Mode)

	switch strings.ToLower(conf.Mode) {
	case ModeBatch:
		return runBatch(ctx, engine, conf, services)
	case ModeLive:
		return runLive(ctx, engine, conf, name)
	}
	return errors.Errorf("unknown mode %q, expected live or batch", conf.Mode)
}

func batchPath(conf *config.Config, name string, framing sink.Framing) string {
	file := conf.Filename
	if file == "" {
		file = name + ".log"
		if framing == sink.Parquet {
			file = name + ".parquet"
		}
	}
	return filepath.Join(conf.Outdir, file)
}

func newBatchSink(path string, framing sink.Framing) (sink.Sink, error) {
	if framing == sink.Parquet {
		p, err := sink.NewParquetSink(path)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	f, err := sink.NewFileSink(path, framing)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func runBatch(ctx context.Context, engine *emitter.Engine, conf *config.Config, svc *services.Services) error {
	start, end, err := schedule.ParseWindow(conf.Start, conf.End)
	if err != nil {
		return err
	}
	series, err := schedule.Schedule(start, end, conf.Count)
	if err != nil {
		return err
	}
	framing, err := sink.ParseFraming(conf.Output)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(conf.Outdir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", conf.Outdir)
	}
	path := batchPath(conf, svc.Format, framing)

	out, err := newBatchSink(path, framing)
	if err != nil {
		return err
	}

	target := out
	if conf.Batch.Forward {
		fwd, err := newLiveSink(ctx, conf)
		if err != nil {
			out.Close()
			return err
		}
		target = sink.NewTee(out, fwd)
	}

	err = engine.Batch(ctx, series, target)
	if cerr := target.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	file := path
	if !conf.Batch.NoCompress && framing != sink.Parquet {
		if file, err = archive.Compress(path); err != nil {
			return err
		}
	}
	log.Infof("batch output %s", file)

	up, err := archive.NewUploader(ctx, conf.Archive)
	if err != nil {
		return err
	}
	if up == nil {
		return nil
	}
	key := archive.ObjectKey(conf.Archive.Prefix, svc.Format, svc.RunID, file, time.Now())
	return archive.Publish(ctx, up, file, key, conf.Archive.KeepLocal)
}

func runLive(ctx context.Context, engine *emitter.Engine, conf *config.Config, name string) error {
	out, err := newLiveSink(ctx, conf)
	if err != nil {
		return err
	}
	defer out.Close()

	if conf.Alerts.Enabled || conf.Server.Dev {
		tracker := alerts.NewFailureTracker(alerts.NewClient(conf.Alerts, conf.App, conf.Server.Dev), name, conf.Alerts.Threshold)
		engine.OnFailure = tracker.Failure
		engine.OnSuccess = tracker.Success
	}

	return engine.Live(ctx, out)
}

func newLiveSink(ctx context.Context, conf *config.Config) (sink.Sink, error) {
	switch strings.ToLower(conf.Sink) {
	case "udp":
		u, err := sink.NewUDPForwarder(conf.Syslog.Host, conf.Syslog.Port)
		if err != nil {
			return nil, err
		}
		return u, nil
	case "hec":
		h, err := sink.NewHECSink(ctx, sink.HECConfig{
			Endpoint:      conf.HEC.Endpoint,
			Token:         conf.HEC.Token,
			Index:         conf.HEC.Index,
			Source:        conf.HEC.Source,
			SourceType:    conf.HEC.SourceType,
			Host:          conf.HEC.Host,
			Region:        conf.HEC.Region,
			TLSSkipVerify: conf.HEC.TLSSkipVerify,
			Timeout:       time.Duration(conf.HEC.TimeoutSeconds) * time.Second,
			ChannelID:     conf.HEC.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		return h, nil
	}
	return nil, errors.Errorf("unknown sink %q, expected udp or hec", conf.Sink)
}

// Serve runs the ops API and the preview server until a signal arrives
func Serve(conf *config.Config) error {
	runID := archive.NewRunID()
	if conf.Otel.Enabled {
		otelshutdown := InitOtelProvider(conf, runID, "")
		defer otelshutdown()
	}

	b, err := newBuilder(conf)
	if err != nil {
		return err
	}
	defer b.Close()

	services := services.NewServices(conf)
	services.RunID = runID

	server := NewServer(services, conf)
	server.HttpApi = api.NewAPI(services, conf)
	server.Preview = preview.NewServer(conf, b.Generator)

	if err := server.Preview.Listen(); err != nil {
		return err
	}
	go server.HttpApi.Serve(":"+strconv.Itoa(conf.Server.ApiPort), server.HttpApi.NewRouter())

	server.Start(nil)
	return nil
}
