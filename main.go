package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"binlog2sql/internal/binlog"
	"binlog2sql/internal/checkpoint"
	"binlog2sql/internal/config"
	"binlog2sql/internal/meta"
	"binlog2sql/internal/metrics"
	"binlog2sql/internal/nats"
	"binlog2sql/internal/output"
	"binlog2sql/internal/processor"
	"binlog2sql/internal/window"
)

func main() {
	var args config.Args
	arg.MustParse(&args)

	// Setup logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetLevel(logrus.InfoLevel)

	// Load configuration, flags win over the file
	cfg, err := config.Load(args.Config)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	args.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	if args.Debug {
		if err := printConfig(os.Stdout, cfg); err != nil {
			logger.Fatalf("Failed to print config: %v", err)
		}
		return
	}

	if path := cfg.RunLogPath(time.Now()); path != "" {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			logger.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		logger.SetOutput(io.MultiWriter(os.Stderr, f))
		logger.Infof("Logging to %s", path)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Infof("Received signal: %v, shutting down...", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("binlog2sql failed: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	client, err := meta.Open(cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.User, cfg.MySQL.Password, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Check(ctx); err != nil {
		return err
	}
	serverID, err := client.ServerID(ctx)
	if err != nil {
		return err
	}
	replicaID := cfg.MySQL.ServerID
	if replicaID == 0 {
		replicaID = serverID
	}

	holder, closeHolder := openCheckpoint(cfg)
	defer closeHolder()

	opts := cfg.WindowOptions()
	if cfg.Checkpoint.Resume && holder != nil {
		pos, err := holder.Load()
		if err != nil {
			return fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if pos != nil {
			logger.Infof("Resuming from checkpoint %s", checkpoint.Format(*pos))
			opts.StartFile = pos.Name
			opts.StartPosition = pos.Pos
		}
	}

	w, err := window.Resolve(ctx, client, opts)
	if err != nil {
		return err
	}
	filter, err := cfg.FilterSpec()
	if err != nil {
		return err
	}
	logger.Infof("Window %s:%d to %s:%d (stop never: %v)", w.StartFile, w.StartPosition, w.StopFile, w.StopPosition, w.StopNever)

	// Sinks: stdout and the output file, then NATS
	writer, err := output.NewWriter(os.Stdout, cfg.Output.File)
	if err != nil {
		return err
	}
	defer writer.Close()
	sinks := processor.Sinks{writer}

	var publisher *nats.Publisher
	if cfg.NATS.URL != "" {
		publisher, err = nats.NewPublisher(
			cfg.NATS.URL,
			cfg.NATS.Subject,
			cfg.NATS.MaxReconnect,
			cfg.NATS.ReconnectWait.Duration,
			logger,
		)
		if err != nil {
			return fmt.Errorf("failed to create NATS publisher: %w", err)
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}

	var transformer *processor.Transformer
	if path := cfg.Mode.Transform; path != "" {
		if publisher != nil {
			transformer, err = processor.NewTransformer(path, logger, publisher.GetConn())
		} else {
			transformer, err = processor.NewTransformer(path, logger, nil)
		}
		if err != nil {
			return err
		}
	}

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Serve(cfg.Metrics.Addr, cfg.Metrics.Path, logger)
		if err != nil {
			return fmt.Errorf("failed to start metrics listener: %w", err)
		}
		defer srv.Close()
	}

	reader, err := binlog.NewReader(binlog.Config{
		Host:          cfg.MySQL.Host,
		Port:          cfg.MySQL.Port,
		User:          cfg.MySQL.User,
		Password:      cfg.MySQL.Password,
		ServerID:      replicaID,
		Flavor:        cfg.MySQL.Flavor,
		StartFile:     w.StartFile,
		StartPosition: w.StartPosition,
		Schemas:       cfg.Filter.Databases,
		Tables:        cfg.Filter.Tables,
	}, client, logger)
	if err != nil {
		return err
	}

	p := processor.NewProcessor(reader, sinks, processor.Options{
		Window:      w,
		Filter:      filter,
		Mode:        cfg.TranslationMode(),
		Transformer: transformer,
		Checkpoint:  holder,
	}, logger)

	_, err = p.Run(ctx)
	return err
}

// openCheckpoint picks the Redis holder when an address is configured,
// then the file holder
func openCheckpoint(cfg *config.Config) (checkpoint.Holder, func()) {
	c := cfg.Checkpoint
	switch {
	case c.RedisAddr != "":
		h := checkpoint.NewRedisHolder(c.RedisAddr, c.RedisPassword, c.RedisKey)
		return h, func() { h.Close() }
	case c.File != "":
		return checkpoint.NewFileHolder(c.File), func() {}
	}
	return nil, func() {}
}

// printConfig writes the effective configuration with the password hidden
func printConfig(w io.Writer, cfg *config.Config) error {
	shown := *cfg
	if shown.MySQL.Password != "" {
		shown.MySQL.Password = "******"
	}
	if shown.Checkpoint.RedisPassword != "" {
		shown.Checkpoint.RedisPassword = "******"
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(&shown)
}
