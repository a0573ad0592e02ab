package xagent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/omeyang/xsink/pkg/appender/xrecord"
	"github.com/omeyang/xsink/pkg/observability/xlog"
)

// kafkaFlushTimeoutMs Close 时等待未完成投递的时间
const kafkaFlushTimeoutMs = 5000

// kafkaProducer KafkaAgent 用到的生产者方法，与 *kafka.Producer 一致
type kafkaProducer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// KafkaAgent 把条目生产到 Kafka topic，以条目 GUID 作为消息 key
type KafkaAgent struct {
	name     string
	topic    string
	producer kafkaProducer
	logger   xlog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewKafkaAgent 用 ConfigMap 创建生产者
//
// 配置会被复制，调用方的 ConfigMap 不会被修改。
func NewKafkaAgent(name, topic string, config *kafka.ConfigMap, opts ...Option) (*KafkaAgent, error) {
	if topic == "" {
		return nil, fmt.Errorf("%w: kafka: missing topic", ErrInvalidSpec)
	}
	cloned := kafka.ConfigMap{}
	if config != nil {
		for k, v := range *config {
			cloned[k] = v
		}
	}
	p, err := kafka.NewProducer(&cloned)
	if err != nil {
		return nil, fmt.Errorf("%w: kafka: %w", ErrInvalidSpec, err)
	}
	o := applyOptions(opts)
	a := newKafkaAgent(name, topic, p, o.logger)
	go a.drainEvents(p.Events())
	return a, nil
}

func newKafkaAgent(name, topic string, p kafkaProducer, logger xlog.Logger) *KafkaAgent {
	return &KafkaAgent{
		name:     name,
		topic:    topic,
		producer: p,
		logger:   xlog.OrDefault(logger).With(xlog.Agent(name)),
		done:     make(chan struct{}),
	}
}

func newKafkaFromSpec(spec Spec, opts ...Option) (Agent, error) {
	cfg := kafka.ConfigMap{"bootstrap.servers": spec.Address}
	for k, v := range spec.Options {
		cfg[k] = v
	}
	return NewKafkaAgent(spec.DisplayName(), spec.Target, &cfg, opts...)
}

// drainEvents 消费生产者的全局事件（错误、日志），Close 后退出
func (a *KafkaAgent) drainEvents(events chan kafka.Event) {
	for {
		select {
		case <-a.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if e, isErr := ev.(kafka.Error); isErr {
				a.logger.Warn(context.Background(), "kafka client error", xlog.Err(e))
			}
		}
	}
}

// Name 实现 Agent
func (a *KafkaAgent) Name() string { return a.name }

// Send 逐条 Produce 后等待全部投递报告
//
// 报告可能乱序到达，确认数为按批次顺序从头开始连续成功的条数。
func (a *KafkaAgent) Send(ctx context.Context, batch []xrecord.Entry) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	reports := make(chan kafka.Event, len(batch))
	produced := 0
	var produceErr error
	for i, e := range batch {
		if err := a.producer.Produce(a.message(i, e), reports); err != nil {
			produceErr = err
			break
		}
		produced++
	}

	ok := make([]bool, produced)
	var errs []error
	for range produced {
		select {
		case <-ctx.Done():
			return leading(ok), fmt.Errorf("%w: %s: %w", ErrSendFailed, a.name, ctx.Err())
		case ev := <-reports:
			m, isMsg := ev.(*kafka.Message)
			if !isMsg {
				errs = append(errs, fmt.Errorf("unexpected delivery event %v", ev))
				continue
			}
			i, _ := m.Opaque.(int)
			if m.TopicPartition.Error != nil {
				errs = append(errs, m.TopicPartition.Error)
				continue
			}
			if i >= 0 && i < produced {
				ok[i] = true
			}
		}
	}

	acked := leading(ok)
	if produceErr != nil {
		errs = append(errs, produceErr)
	}
	if acked == len(batch) {
		return acked, nil
	}
	return acked, fmt.Errorf("%w: %s: %w", ErrSendFailed, a.name, errors.Join(errs...))
}

func (a *KafkaAgent) message(i int, e xrecord.Entry) *kafka.Message {
	names := make([]string, 0, len(e.Headers))
	for k := range e.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	headers := make([]kafka.Header, 0, len(names))
	for _, k := range names {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(e.Headers[k])})
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &a.topic, Partition: kafka.PartitionAny},
		Key:            e.Key,
		Value:          e.Payload,
		Headers:        headers,
		Opaque:         i,
	}
}

// leading 返回从头开始连续为 true 的个数
func leading(ok []bool) int {
	for i, v := range ok {
		if !v {
			return i
		}
	}
	return len(ok)
}

// Close 等待未完成的投递后关闭生产者；幂等
func (a *KafkaAgent) Close() error {
	a.closeOnce.Do(func() {
		close(a.done)
		if left := a.producer.Flush(kafkaFlushTimeoutMs); left > 0 {
			a.logger.Warn(context.Background(), "kafka close with undelivered messages", xlog.Count(left))
		}
		a.producer.Close()
	})
	return nil
}
