// etcd.go adapts etcd's Watch API into the membership Source contract.
// It is the analogue of the teacher's registry.EtcdRegistry.Watch, but
// emits individual ADD/REMOVE events per key instead of a full
// re-Discover snapshot, and re-establishes its watch after a transient
// failure the way kanengo-ngrpc's etcd resolver watcher does.
package membership

import (
	"context"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// EtcdSource watches an etcd key prefix, treating each key under the
// prefix as one endpoint address. A PUT (create or update) is reported
// as ADD; a DELETE is reported as REMOVE.
type EtcdSource struct {
	client *clientv3.Client
	prefix string
	logger *zap.Logger

	ch     chan Event[string]
	ctx    context.Context
	cancel context.CancelFunc
}

// NewEtcdSource seeds the event stream with one ADD per currently
// existing key under prefix, then watches for subsequent changes.
func NewEtcdSource(client *clientv3.Client, prefix string, logger *zap.Logger) (*EtcdSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &EtcdSource{
		client: client,
		prefix: prefix,
		logger: logger,
		ch:     make(chan Event[string], 256),
		ctx:    ctx,
		cancel: cancel,
	}

	getCtx, getCancel := context.WithTimeout(ctx, 5*time.Second)
	resp, err := client.Get(getCtx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	getCancel()
	if err != nil {
		cancel()
		return nil, err
	}

	startRev := resp.Header.Revision + 1
	for _, kv := range resp.Kvs {
		s.ch <- Event[string]{Type: ADD, Endpoint: string(kv.Key)}
	}

	go s.watchLoop(startRev)

	return s, nil
}

func (s *EtcdSource) Events() <-chan Event[string] { return s.ch }

func (s *EtcdSource) Close() error {
	s.cancel()
	return nil
}

func (s *EtcdSource) watchLoop(fromRevision int64) {
	rev := fromRevision
	for {
		watchChan := s.client.Watch(s.ctx, s.prefix, clientv3.WithPrefix(), clientv3.WithRev(rev))
		for resp := range watchChan {
			if err := resp.Err(); err != nil {
				s.logger.Warn("membership: etcd watch error, re-establishing", zap.Error(err))
				break
			}
			for _, ev := range resp.Events {
				rev = resp.Header.Revision + 1
				switch ev.Type {
				case clientv3.EventTypePut:
					select {
					case s.ch <- Event[string]{Type: ADD, Endpoint: string(ev.Kv.Key)}:
					case <-s.ctx.Done():
						return
					}
				case clientv3.EventTypeDelete:
					select {
					case s.ch <- Event[string]{Type: REMOVE, Endpoint: string(ev.Kv.Key)}:
					case <-s.ctx.Done():
						return
					}
				}
			}
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(time.Second):
			// transient watch failure or channel close from the server side;
			// resume from the last seen revision after a short backoff.
		}
	}
}
