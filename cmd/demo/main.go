// Command demo wires the clientlb load balancer core against a real
// etcd membership source and a plain TCP connector, printing a choice
// of endpoint once a second. It exists to exercise the public API
// end-to-end; it is not a library and carries none of the package's
// testable guarantees.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"clientlb/activecount"
	"clientlb/backoff"
	"clientlb/connector"
	"clientlb/lb"
	"clientlb/membership"
	"clientlb/metrics"
	"clientlb/selection"
	"clientlb/weighting"
)

func main() {
	endpoints := flag.String("etcd", "127.0.0.1:2379", "etcd cluster endpoint")
	prefix := flag.String("prefix", "/services/demo/", "etcd key prefix to watch for membership")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	etcdClient, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{*endpoints},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		logger.Fatal("connect to etcd", zap.Error(err))
	}
	defer etcdClient.Close()

	source, err := membership.NewEtcdSource(etcdClient, *prefix, logger)
	if err != nil {
		logger.Fatal("start membership source", zap.Error(err))
	}

	metricsFactory := metrics.NewLatencyFactory[string](50)

	balancer, err := lb.New[string, *metrics.Latency](
		source,
		metricsFactory,
		lb.WithName[string, *metrics.Latency]("demo"),
		lb.WithLogger[string, *metrics.Latency](logger),
		lb.WithConnector[string, *metrics.Latency](connector.NewDial()),
		lb.WithActiveCountPolicy[string, *metrics.Latency](activecount.Identity()),
		lb.WithBackoffPolicy[string, *metrics.Latency](backoff.Exponential(time.Second, 30*time.Second)),
		lb.WithWeightingStrategy[string, *metrics.Latency](weighting.Latency[string]()),
		lb.WithSelectionStrategy[string, *metrics.Latency](selection.NewWeightedRandom[string]()),
		lb.WithConnectRateLimiter[string, *metrics.Latency](rate.NewLimiter(rate.Limit(10), 10)),
	)
	if err != nil {
		logger.Fatal("build load balancer", zap.Error(err))
	}
	defer balancer.Shutdown()

	ctx := context.Background()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		chosen, err := balancer.Choose(ctx)
		if err != nil {
			logger.Warn("choose failed", zap.Error(err))
			continue
		}
		logger.Info("chose endpoint", zap.String("endpoint", chosen))
	}
}
