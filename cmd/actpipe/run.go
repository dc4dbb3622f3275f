package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"actpipe/internal/config"
	"actpipe/internal/export"
	"actpipe/internal/lineage"
	"actpipe/internal/metrics"
	"actpipe/internal/objstore"
	"actpipe/internal/pipeline"
	"actpipe/internal/snapshot"
	"actpipe/internal/source"
	"actpipe/internal/state"
	"actpipe/internal/useragent"
	"actpipe/internal/warehouse"
)

func (a *app) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one batch from the configured source",
		RunE: func(cmd *cobra.Command, _ []string) error {
			orch, closeAll, err := build(a.cfg, a.log)
			if err != nil {
				return err
			}
			defer closeAll()

			res, err := orch.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d records, %d outputs, %d warnings\n",
				res.RunID, len(res.Records), len(res.Outputs), len(res.Warnings))
			return nil
		},
	}
	f := cmd.Flags()
	f.String("source", "", "source file path")
	f.String("source-kind", "", "source kind (csv, json, kafka)")
	f.String("data-dir", "", "directory for cleaned outputs")
	f.StringSlice("formats", nil, "output formats (json, csv, parquet)")
	f.String("state-backend", "", "lifetime value store (memory, pebble)")
	bind(a.v, f.Lookup("source"), "source.path")
	bind(a.v, f.Lookup("source-kind"), "source.kind")
	bind(a.v, f.Lookup("data-dir"), "output.data_dir")
	bind(a.v, f.Lookup("formats"), "output.formats")
	bind(a.v, f.Lookup("state-backend"), "state.backend")
	return cmd
}

// build wires every configured component. The returned func closes the ones that
// hold connections.
func build(cfg config.Config, log *slog.Logger) (*pipeline.Orchestrator, func(), error) {
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("close failed", "error", err)
			}
		}
	}
	fail := func(err error) (*pipeline.Orchestrator, func(), error) {
		closeAll()
		return nil, nil, err
	}

	opts := pipeline.Options{
		Classifier:  useragent.Default(),
		Snapshotter: snapshot.NewFilesystemSnapshotter(cfg.Output.MetricsDir),
		DataDir:     cfg.Output.DataDir,
		Metrics:     metrics.NewRegistry(),
		PushURL:     cfg.Metrics.PushgatewayURL,
		PushJob:     cfg.Metrics.Job,
		Log:         log,
	}

	switch cfg.Source.Kind {
	case "csv":
		opts.Source = source.CSVFile{Path: cfg.Source.Path}
	case "json":
		opts.Source = source.JSONFile{Path: cfg.Source.Path}
	case "kafka":
		maxRecords := cfg.Source.Kafka.MaxRecords
		if maxRecords == 0 {
			maxRecords = cfg.Batch.Size
		}
		k, err := source.NewKafka(source.KafkaConfig{
			Brokers:     strings.Join(cfg.Kafka.Brokers, ","),
			GroupID:     cfg.Source.Kafka.GroupID,
			Topic:       cfg.Source.Kafka.Topic,
			MaxRecords:  maxRecords,
			IdleTimeout: cfg.Source.Kafka.IdleTimeout,
		}, log)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, k.Close)
		opts.Source = k
	default:
		return fail(fmt.Errorf("unknown source kind %q", cfg.Source.Kind))
	}

	if cfg.State.Backend == "pebble" {
		opts.NewStore = func(runID string) (state.Store, error) {
			return state.NewPebbleStore(filepath.Join(cfg.State.Dir, runID), state.RemoveOnClose())
		}
	} else {
		opts.NewStore = func(string) (state.Store, error) { return state.NewInMemoryStore(), nil }
	}

	writers, err := export.Writers(cfg.Output.Formats)
	if err != nil {
		return fail(err)
	}
	opts.Writers = writers

	if cfg.Kafka.RecordsTopic != "" {
		p := export.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.RecordsTopic)
		closers = append(closers, p.Close)
		opts.Records = p
	}

	if cfg.Warehouse.Enabled {
		opts.Analyzer = warehouse.NewAnalyzer(warehouse.Options{
			Path:       cfg.Warehouse.Path,
			ReportsDir: cfg.Output.ReportsDir,
			BuildModel: cfg.Warehouse.BuildModels,
			ModelTable: cfg.Warehouse.ModelTable,
		}, log)
	}

	if cfg.Storage.Enabled {
		up, err := objstore.New(objstore.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
			Prefix:    cfg.Storage.Prefix,
		}, log)
		if err != nil {
			return fail(err)
		}
		uw, err := export.Writers(cfg.Storage.Objects)
		if err != nil {
			return fail(err)
		}
		opts.Uploader, opts.UploadWriters = up, uw
	}

	pub, closeManifest, err := manifestPublisher(cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeManifest)
	opts.Manifest = pub

	return pipeline.New(opts), closeAll, nil
}

func manifestPublisher(cfg config.Config) (lineage.Publisher, func() error, error) {
	var (
		pubs  lineage.MultiPublisher
		kafka *lineage.KafkaManifest
	)
	sink := cfg.Lineage.ManifestSink
	if sink == "file" || sink == "both" {
		pubs = append(pubs, lineage.NewFilesystemManifest(cfg.Lineage.ManifestDir))
	}
	if sink == "kafka" || sink == "both" {
		kafka = lineage.NewKafkaManifest(cfg.Kafka.Brokers, cfg.Kafka.ManifestTopic, lineage.DefaultKey)
		pubs = append(pubs, kafka)
	}
	if len(pubs) == 0 {
		return nil, nil, errors.New("no manifest sink configured")
	}
	closeFn := func() error { return nil }
	if kafka != nil {
		closeFn = kafka.Close
	}
	return pubs, closeFn, nil
}

func manifestReader(cfg config.Config) lineage.Reader {
	if cfg.Lineage.ManifestSink == "kafka" {
		return lineage.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.ManifestTopic, lineage.DefaultKey)
	}
	return lineage.NewFilesystemManifest(cfg.Lineage.ManifestDir)
}
