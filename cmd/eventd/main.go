package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/skein-run/skein/pkg/configs"
	kpool "github.com/skein-run/skein/pkg/conn/db/postgres/pool"
	"github.com/skein-run/skein/pkg/conn/mq"
	"github.com/skein-run/skein/pkg/domain/cluster"
	clusterpg "github.com/skein-run/skein/pkg/domain/cluster/db/postgres"
	"github.com/skein-run/skein/pkg/domain/consumer"
	jobpg "github.com/skein-run/skein/pkg/domain/job/db/postgres"
	runpg "github.com/skein-run/skein/pkg/domain/run/db/postgres"
	runk8s "github.com/skein-run/skein/pkg/domain/run/k8s"
	"github.com/skein-run/skein/pkg/utils/kubeutil"
	"github.com/skein-run/skein/pkg/utils/retry"
	k8s "github.com/skein-run/skein/pkg/workloads/k8s"
)

func main() {
	configPath := flag.String("config-path", "", "server config path")
	flag.Parse()

	conf, err := configs.Load(*configPath)
	if err != nil {
		log.Fatalf("can not read configuration: %s", err)
	}
	cconf := conf.Cluster()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := kpool.Connect(ctx, cconf.Database())
	if err != nil {
		log.Fatalf("can not connect to database: %s", err)
	}
	defer pool.Close()

	clientset, dyn := kubeutil.ConnectToK8s()
	cluster8s := k8s.Wrap(clientset, dyn)

	var clusters cluster.Interface
	if cconf.Dask() != nil {
		c, err := cluster.New(cconf, cluster8s, clusterpg.New(pool))
		if err != nil {
			log.Fatalf("can not set up the compute cluster manager: %s", err)
		}
		clusters = c
	}

	// The broker may come up after us. Keep dialing until it answers
	// or we are told to quit.
	qconf := cconf.Queue()
	queue, err := retry.Blocking(
		ctx, retry.StaticBackoff(3*time.Second),
		func() (*mq.Queue, error) {
			q, err := mq.Open(qconf.URL(), qconf.Name(), qconf.Prefetch())
			if err != nil {
				log.Printf("waiting for the status queue: %s", err)
				return nil, fmt.Errorf("%w: %w", retry.ErrRetry, err)
			}
			return q, nil
		},
	)
	if err != nil {
		log.Fatalf("can not connect to the status queue: %s", err)
	}
	defer queue.Close()

	deliveries, err := queue.Consume("eventd")
	if err != nil {
		log.Fatalf("can not consume the status queue: %s", err)
	}

	c := consumer.New(
		log.Default(),
		runpg.New(pool),
		jobpg.New(pool),
		runk8s.New(cconf, cluster8s),
		clusters,
		consumer.NewFingerprinter(),
		nil,
	)

	log.Printf("consuming run status events from queue %s", queue.Name)
	if err := c.Run(ctx, deliveries); err != nil {
		log.Printf("consumer stopped: %s", err)
	}
}
