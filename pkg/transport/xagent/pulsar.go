package xagent

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/omeyang/xsink/pkg/appender/xrecord"
)

// pulsarProducer PulsarAgent 用到的生产者方法，与 pulsar.Producer 一致
type pulsarProducer interface {
	Send(ctx context.Context, msg *pulsar.ProducerMessage) (pulsar.MessageID, error)
	Close()
}

// PulsarAgent 同步发送到 Pulsar topic
//
// 生产者在首次 Send 时创建，创建失败按投递失败处理，下次 Send 重新尝试。
type PulsarAgent struct {
	name   string
	topic  string
	client pulsar.Client
	create func() (pulsarProducer, error)

	mu       sync.Mutex
	producer pulsarProducer
	closed   bool
}

// NewPulsarAgent 使用已有客户端创建 Agent，Close 不关闭 client
func NewPulsarAgent(name string, client pulsar.Client, topic string) (*PulsarAgent, error) {
	if topic == "" {
		return nil, fmt.Errorf("%w: pulsar: missing topic", ErrInvalidSpec)
	}
	a := &PulsarAgent{name: name, topic: topic}
	a.create = func() (pulsarProducer, error) {
		return client.CreateProducer(pulsar.ProducerOptions{Topic: topic})
	}
	return a, nil
}

func newPulsarFromSpec(spec Spec, _ ...Option) (Agent, error) {
	co := pulsar.ClientOptions{URL: spec.Address}
	if v, ok := spec.Options["operation_timeout"]; ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%w: pulsar operation_timeout %q: %w", ErrInvalidSpec, v, err)
		}
		co.OperationTimeout = d
	}
	if v, ok := spec.Options["connection_timeout"]; ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%w: pulsar connection_timeout %q: %w", ErrInvalidSpec, v, err)
		}
		co.ConnectionTimeout = d
	}
	client, err := pulsar.NewClient(co)
	if err != nil {
		return nil, fmt.Errorf("%w: pulsar: %w", ErrInvalidSpec, err)
	}
	a, err := NewPulsarAgent(spec.DisplayName(), client, spec.Target)
	if err != nil {
		client.Close()
		return nil, err
	}
	a.client = client
	return a, nil
}

// Name 实现 Agent
func (a *PulsarAgent) Name() string { return a.name }

func (a *PulsarAgent) ensureProducer() (pulsarProducer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	if a.producer != nil {
		return a.producer, nil
	}
	p, err := a.create()
	if err != nil {
		return nil, err
	}
	a.producer = p
	return p, nil
}

// Send 逐条同步发送，遇到第一个失败即停止
func (a *PulsarAgent) Send(ctx context.Context, batch []xrecord.Entry) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	p, err := a.ensureProducer()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrSendFailed, a.name, err)
	}
	for i, e := range batch {
		msg := &pulsar.ProducerMessage{
			Payload:    e.Payload,
			Key:        e.KeyString(),
			Properties: e.Headers,
		}
		if ts, ok := e.Headers[xrecord.HeaderTimestamp]; ok {
			if ms, perr := strconv.ParseInt(ts, 10, 64); perr == nil {
				msg.EventTime = time.UnixMilli(ms)
			}
		}
		if _, err := p.Send(ctx, msg); err != nil {
			return i, fmt.Errorf("%w: %s: %w", ErrSendFailed, a.name, err)
		}
	}
	return len(batch), nil
}

// Close 关闭生产者与自建的客户端；幂等
func (a *PulsarAgent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.producer != nil {
		a.producer.Close()
	}
	if a.client != nil {
		a.client.Close()
	}
	return nil
}
