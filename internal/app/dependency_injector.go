package app

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/krasnov-dev/voicepipe/internal/async"
	"github.com/krasnov-dev/voicepipe/internal/dispatch"
	"github.com/krasnov-dev/voicepipe/internal/hub"
	"github.com/krasnov-dev/voicepipe/internal/ident"
	"github.com/krasnov-dev/voicepipe/internal/infra/config"
	"github.com/krasnov-dev/voicepipe/internal/infra/mq"
	objectstore "github.com/krasnov-dev/voicepipe/internal/infra/store/object"
	taskstore "github.com/krasnov-dev/voicepipe/internal/infra/store/task"
	"github.com/krasnov-dev/voicepipe/internal/ingest"
	mio "github.com/krasnov-dev/voicepipe/internal/libs/minio"
	natsq "github.com/krasnov-dev/voicepipe/internal/libs/nats"
	rediscli "github.com/krasnov-dev/voicepipe/internal/libs/redis"
	rmq "github.com/krasnov-dev/voicepipe/internal/libs/rocketmq"
	"github.com/krasnov-dev/voicepipe/internal/transport"
	"github.com/krasnov-dev/voicepipe/internal/usecase"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const cfgPath = "./configs/local.yaml"

type Router interface {
	MountRoutes(*http.ServeMux) *http.ServeMux
}

type dependencyInjector struct {
	cfg    *config.Config
	logger *slog.Logger

	redis       *redis.Client
	taskStore   *taskstore.Store
	objectStore *objectstore.Store

	natsConn *nats.Conn
	js       nats.JetStreamContext

	publisher  mq.Publisher
	subscriber mq.Subscriber

	ids      *ident.Generator
	executor *async.Executor
	hub      *hub.Hub

	dispatcher *dispatch.Dispatcher
	ingestor   *ingest.Ingestor

	usecase transport.Usecase
	handler transport.Handler
	live    transport.Live
	router  Router
}

func newDI() *dependencyInjector {
	return &dependencyInjector{}
}

func (di *dependencyInjector) Config() *config.Config {
	if di.cfg == nil {
		di.cfg = config.MustLoad(cfgPath)
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		di.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

	}

	slog.SetDefault(di.logger)
	return di.logger
}

func (di *dependencyInjector) RedisClient(ctx context.Context) *redis.Client {
	if di.redis == nil {
		cfg := di.Config().Redis
		client, err := rediscli.NewClient(rediscli.Config{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			log.Fatalf("RedisClient: %+v", err)
		}

		di.redis = client
		di.Logger().Info("connected to redis", slog.String("addr", cfg.Addr))
	}
	return di.redis
}

func (di *dependencyInjector) TaskStore(ctx context.Context) *taskstore.Store {
	if di.taskStore == nil {
		di.taskStore = taskstore.NewRedisStore(di.RedisClient(ctx))
	}
	return di.taskStore
}

func (di *dependencyInjector) ObjectStore(ctx context.Context) *objectstore.Store {
	if di.objectStore == nil {
		cfg := di.Config().MinIO

		client, err := mio.NewClient(ctx, mio.Config{
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			UseSSL:          cfg.UseSSL,
			Bucket:          cfg.Bucket,
		})
		if err != nil {
			log.Fatalf("ObjectStore minio: %+v", err)
		}

		di.objectStore = objectstore.NewMinIOStore(client, cfg.Bucket, cfg.Endpoint, cfg.UseSSL)
		di.Logger().Info(
			"initialized MinIO object store",
			slog.String("endpoint", cfg.Endpoint),
			slog.String("bucket", cfg.Bucket),
		)
	}

	return di.objectStore
}

func (di *dependencyInjector) NATSConn(ctx context.Context) *nats.Conn {
	if di.natsConn == nil {
		cfg := di.Config().MQ
		nc, err := natsq.NewConnect(cfg.URL, natsq.Config{
			Name:          "voicepipe",
			MaxReconnects: cfg.MaxReconnects,
		})
		if err != nil {
			log.Fatalf("NATS connect: %+v", err)
		}
		di.natsConn = nc
	}
	return di.natsConn
}

func (di *dependencyInjector) JetStream(ctx context.Context) nats.JetStreamContext {
	if di.js == nil {
		cfg := di.Config().MQ
		js, err := natsq.NewJetStream(di.NATSConn(ctx), &nats.StreamConfig{
			Name: "VOICEPIPE",
			Subjects: []string{
				cfg.JobTopic + ".*",
				cfg.ResultTopic + ".*",
			},
			Storage:  nats.FileStorage,
			Replicas: 1,
		})
		if err != nil {
			log.Fatalf("DI JetStream: %+v", err)
		}

		di.js = js
	}
	return di.js
}

func (di *dependencyInjector) Publisher(ctx context.Context) mq.Publisher {
	if di.publisher == nil {
		cfg := di.Config().MQ
		switch cfg.Driver {
		case "nats":
			di.publisher = mq.NewNATSPublisher(di.JetStream(ctx))
		default:
			prod, err := rmq.NewProducer(rmq.Config{NameServer: cfg.NameServer}, cfg.ProducerGroup)
			if err != nil {
				log.Fatalf("RocketMQ producer: %+v", err)
			}
			di.publisher = mq.NewRocketPublisher(prod)
		}
		di.Logger().Info("message publisher ready", slog.String("driver", cfg.Driver))
	}
	return di.publisher
}

func (di *dependencyInjector) Subscriber(ctx context.Context) mq.Subscriber {
	if di.subscriber == nil {
		cfg := di.Config().MQ
		switch cfg.Driver {
		case "nats":
			di.subscriber = mq.NewNATSSubscriber(di.JetStream(ctx), "VOICEPIPE", cfg.Consumers)
		default:
			cons, err := rmq.NewPushConsumer(rmq.Config{NameServer: cfg.NameServer}, cfg.ResultGroup)
			if err != nil {
				log.Fatalf("RocketMQ consumer: %+v", err)
			}
			di.subscriber = mq.NewRocketSubscriber(cons)
		}
		di.Logger().Info("message subscriber ready", slog.String("driver", cfg.Driver))
	}
	return di.subscriber
}

func (di *dependencyInjector) IDs() *ident.Generator {
	if di.ids == nil {
		cfg := di.Config().Snowflake
		gen, err := ident.New(cfg.DatacenterID, cfg.WorkerID)
		if err != nil {
			log.Fatalf("ID generator: %+v", err)
		}
		di.ids = gen
	}
	return di.ids
}

func (di *dependencyInjector) Executor() *async.Executor {
	if di.executor == nil {
		cfg := di.Config().Executor
		di.executor = async.NewExecutor(cfg.PoolSize, cfg.QueueCapacity)
		di.Logger().Info("task executor ready",
			slog.Int("pool_size", cfg.PoolSize),
			slog.Int("queue_capacity", cfg.QueueCapacity),
		)
	}
	return di.executor
}

func (di *dependencyInjector) Hub() *hub.Hub {
	if di.hub == nil {
		di.hub = hub.New()
	}
	return di.hub
}

func (di *dependencyInjector) Dispatcher(ctx context.Context) *dispatch.Dispatcher {
	if di.dispatcher == nil {
		cfg := di.Config().MQ
		di.dispatcher = dispatch.New(
			di.Publisher(ctx),
			di.ObjectStore(ctx),
			cfg.JobTopic,
			cfg.JobTag,
		)
	}
	return di.dispatcher
}

func (di *dependencyInjector) Ingestor(ctx context.Context) *ingest.Ingestor {
	if di.ingestor == nil {
		di.ingestor = ingest.New(
			di.TaskStore(ctx),
			di.Hub(),
			di.IDs(),
			di.Executor(),
		)
	}
	return di.ingestor
}

func (di *dependencyInjector) Usecase(ctx context.Context) transport.Usecase {
	if di.usecase == nil {
		di.usecase = usecase.New(
			di.ObjectStore(ctx),
			di.TaskStore(ctx),
			di.Dispatcher(ctx),
			di.IDs(),
		)
	}

	return di.usecase
}

func (di *dependencyInjector) Handler(ctx context.Context) transport.Handler {
	if di.handler == nil {
		di.handler = transport.NewHandler(
			di.Config().MaxUploadBytesMb,
			di.Usecase(ctx),
			di.ObjectStore(ctx),
		)
	}

	return di.handler
}

func (di *dependencyInjector) Live(ctx context.Context) transport.Live {
	if di.live == nil {
		di.live = transport.NewLiveHandler(di.Hub())
	}

	return di.live
}

func (di *dependencyInjector) Router(ctx context.Context) Router {
	if di.router == nil {
		di.router = transport.NewRouter(di.Handler(ctx), di.Live(ctx))
	}

	return di.router
}
