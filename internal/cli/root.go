package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/goforj/replaycache"
)

type options struct {
	driver        string
	prefix        string
	redisAddr     string
	redisDB       int
	redisPassword string
	sqlDriver     string
	sqlDSN        string
	sqlTable      string
	natsURL       string
	natsBucket    string
	dynamoTable   string
	dynamoRegion  string
	dynamoEnd     string
	logLevel      string
	metricsAddr   string
}

// session is the per-invocation wiring shared by every subcommand.
type session struct {
	store   replaycache.Store
	logger  *slog.Logger
	obs     replaycache.Observer
	closers []func()
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func (s *session) cache(ctx context.Context, opts ...replaycache.CacheOption) (*replaycache.Cache, error) {
	opts = append([]replaycache.CacheOption{replaycache.WithCacheObserver(s.obs)}, opts...)
	return replaycache.NewCache(ctx, s.store, opts...)
}

// NewRootCmd builds the replaycache command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "replaycache",
		Short: "Inspect and exercise a replayable key-value cache.",
		Long: `replaycache stores typed values in a key-value backend under generated keys,
counts every store call and records its inputs and outputs so the call
history can be replayed later.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.driver, "driver", string(replaycache.DriverMemory), "backend driver: memory, redis, sql, nats, dynamodb")
	flags.StringVar(&opts.prefix, "prefix", "", "key prefix for shared backends")
	flags.StringVar(&opts.redisAddr, "redis-addr", "127.0.0.1:6379", "redis address")
	flags.IntVar(&opts.redisDB, "redis-db", 0, "redis database number")
	flags.StringVar(&opts.redisPassword, "redis-password", "", "redis password")
	flags.StringVar(&opts.sqlDriver, "sql-driver", "sqlite", "database/sql driver: sqlite, pgx, mysql")
	flags.StringVar(&opts.sqlDSN, "sql-dsn", "file:replaycache.db", "database/sql data source name")
	flags.StringVar(&opts.sqlTable, "sql-table", "", "sql table name")
	flags.StringVar(&opts.natsURL, "nats-url", nats.DefaultURL, "nats server url")
	flags.StringVar(&opts.natsBucket, "nats-bucket", "replaycache", "jetstream key-value bucket")
	flags.StringVar(&opts.dynamoTable, "dynamo-table", "", "dynamodb table name")
	flags.StringVar(&opts.dynamoRegion, "dynamo-region", "us-east-1", "dynamodb region")
	flags.StringVar(&opts.dynamoEnd, "dynamo-endpoint", "", "dynamodb endpoint override (dynamodb-local)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while the command runs")

	root.AddCommand(
		newDemoCmd(opts),
		newStoreCmd(opts),
		newGetCmd(opts),
		newReplayCmd(opts),
		newCallsCmd(opts),
		newPageCmd(opts),
		newFlushCmd(opts),
	)
	return root
}

// Execute runs the root command with the process arguments.
func Execute() error {
	return NewRootCmd().Execute()
}

func openSession(cmd *cobra.Command, opts *options) (*session, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	level, err := parseLevel(opts.logLevel)
	if err != nil {
		return nil, err
	}
	s := &session{
		logger: slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})),
	}
	observers := replaycache.MultiObserver{replaycache.NewLogObserver(s.logger)}

	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics, err := replaycache.NewMetricsObserver(reg)
		if err != nil {
			return nil, err
		}
		observers = append(observers, metrics)
		srv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("metrics server stopped", "addr", opts.metricsAddr, "error", err)
			}
		}()
		s.closers = append(s.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}
	s.obs = observers

	store, closeStore, err := openStore(ctx, opts)
	if err != nil {
		s.close()
		return nil, err
	}
	s.closers = append(s.closers, closeStore)
	if err := replaycache.StoreErr(store); err != nil {
		s.close()
		return nil, err
	}
	s.store = store
	return s, nil
}

func openStore(ctx context.Context, opts *options) (replaycache.Store, func(), error) {
	prefix := replaycache.WithPrefix(opts.prefix)
	switch replaycache.Driver(strings.ToLower(opts.driver)) {
	case replaycache.DriverMemory:
		return replaycache.NewMemoryStore(ctx), func() {}, nil
	case replaycache.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     opts.redisAddr,
			DB:       opts.redisDB,
			Password: opts.redisPassword,
		})
		return replaycache.NewRedisStore(ctx, client, prefix), func() { _ = client.Close() }, nil
	case replaycache.DriverSQL:
		store := replaycache.NewSQLStore(ctx, opts.sqlDriver, opts.sqlDSN, opts.sqlTable, prefix)
		return store, func() {
			if closer, ok := store.(io.Closer); ok {
				_ = closer.Close()
			}
		}, nil
	case replaycache.DriverNATS:
		nc, err := nats.Connect(opts.natsURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		kv, err := natsBucket(nc, opts.natsBucket)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return replaycache.NewNATSStore(ctx, kv, prefix), nc.Close, nil
	case replaycache.DriverDynamo:
		store := replaycache.NewDynamoStore(ctx,
			replaycache.WithDynamoEndpoint(opts.dynamoRegion, opts.dynamoEnd),
			replaycache.WithDynamoTable(opts.dynamoTable),
			prefix,
		)
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown driver %q", opts.driver)
	}
}

func natsBucket(nc *nats.Conn, bucket string) (nats.KeyValue, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: bucket, History: 1})
	}
	if err != nil {
		return nil, fmt.Errorf("open kv bucket %q: %w", bucket, err)
	}
	return kv, nil
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid --log-level %q", name)
	}
	return level, nil
}

// parseKind accepts the short CLI spellings alongside the value kind names.
func parseKind(name string) (replaycache.Kind, error) {
	switch strings.ToLower(name) {
	case "text", "str", "string":
		return replaycache.KindText, nil
	case "bytes":
		return replaycache.KindBytes, nil
	case "int", "integer":
		return replaycache.KindInteger, nil
	case "float":
		return replaycache.KindFloat, nil
	default:
		return "", &replaycache.UnknownKindError{Kind: replaycache.Kind(name)}
	}
}
