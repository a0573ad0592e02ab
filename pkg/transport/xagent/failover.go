package xagent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker/v2"

	"github.com/omeyang/xsink/pkg/appender/xrecord"
	"github.com/omeyang/xsink/pkg/observability/xlog"
)

var _ Agent = (*Failover)(nil)

// Failover 按顺序尝试一组 Agent
//
// 一个 Agent 只确认了部分条目时，剩余条目交给下一个 Agent；
// 所有 Agent 都失败时返回累计确认数与 ErrSendFailed。
type Failover struct {
	name   string
	agents []*guarded
	logger xlog.Logger
}

// guarded 带重试与熔断的单个 Agent
type guarded struct {
	agent    Agent
	attempts uint
	delay    time.Duration
	breaker  *gobreaker.CircuitBreaker[int]
}

// Member Failover 的一个成员及其重试参数
type Member struct {
	Agent      Agent
	Retries    uint
	RetryDelay time.Duration
}

// NewFailover 由 Spec 列表构造 Failover；任一 Spec 构造失败时关闭已构造的 Agent
func NewFailover(specs []Spec, opts ...Option) (*Failover, error) {
	if len(specs) == 0 {
		return nil, ErrNoAgents
	}
	members := make([]Member, 0, len(specs))
	for _, s := range specs {
		a, err := New(s, opts...)
		if err != nil {
			for _, m := range members {
				_ = m.Agent.Close()
			}
			return nil, err
		}
		members = append(members, Member{Agent: a, Retries: s.Retries, RetryDelay: s.RetryDelay})
	}
	return NewFailoverOf(members, opts...)
}

// NewFailoverOf 由已构造的 Agent 组成 Failover
func NewFailoverOf(members []Member, opts ...Option) (*Failover, error) {
	if len(members) == 0 {
		return nil, ErrNoAgents
	}
	o := applyOptions(opts)
	f := &Failover{logger: o.logger}
	names := make([]string, 0, len(members))
	for _, m := range members {
		if m.Agent == nil {
			return nil, fmt.Errorf("%w: nil agent", ErrInvalidSpec)
		}
		names = append(names, m.Agent.Name())
		delay := m.RetryDelay
		if delay <= 0 {
			delay = DefaultRetryDelay
		}
		f.agents = append(f.agents, &guarded{
			agent:    m.Agent,
			attempts: m.Retries + 1,
			delay:    delay,
			breaker:  f.newBreaker(m.Agent.Name(), o),
		})
	}
	f.name = "failover[" + strings.Join(names, ",") + "]"
	return f, nil
}

func (f *Failover) newBreaker(name string, o options) *gobreaker.CircuitBreaker[int] {
	st := gobreaker.Settings{
		Name:    name,
		Timeout: o.breakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return o.breakerFailures > 0 && c.ConsecutiveFailures >= o.breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn(context.Background(), "agent breaker state changed",
				xlog.Agent(name), xlog.Key(from.String()+"->"+to.String()))
		},
	}
	return gobreaker.NewCircuitBreaker[int](st)
}

// Name 实现 Agent
func (f *Failover) Name() string { return f.name }

// Len 成员数
func (f *Failover) Len() int { return len(f.agents) }

// Send 实现 Agent
func (f *Failover) Send(ctx context.Context, batch []xrecord.Entry) (int, error) {
	total := 0
	var errs []error
	for _, g := range f.agents {
		if total == len(batch) {
			break
		}
		n, err := g.send(ctx, batch[total:])
		total += n
		if err == nil {
			return total, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			f.logger.Debug(ctx, "agent skipped by breaker", xlog.Agent(g.agent.Name()))
		} else {
			f.logger.Warn(ctx, "agent send failed", xlog.Agent(g.agent.Name()), xlog.Count(n), xlog.Err(err))
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if total == len(batch) {
		return total, nil
	}
	return total, fmt.Errorf("%w: %w", ErrSendFailed, errors.Join(errs...))
}

// send 在单个 Agent 上重试；每次重试只发送尚未确认的部分
func (g *guarded) send(ctx context.Context, batch []xrecord.Entry) (int, error) {
	acked := 0
	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(g.attempts),
		retry.Delay(g.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	).Do(func() error {
		n, err := g.breaker.Execute(func() (int, error) {
			return safeSend(ctx, g.agent, batch[acked:])
		})
		acked += n
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return retry.Unrecoverable(err)
		}
		return err
	})
	return acked, err
}

// Close 关闭全部成员
func (f *Failover) Close() error {
	var errs []error
	for _, g := range f.agents {
		if err := g.agent.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", g.agent.Name(), err))
		}
	}
	return errors.Join(errs...)
}
