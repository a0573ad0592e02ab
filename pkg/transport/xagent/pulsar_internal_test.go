package xagent

import (
	"context"
	"errors"
	"testing"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xsink/pkg/appender/xrecord"
)

type fakePulsar struct {
	sent   []*pulsar.ProducerMessage
	failAt int
	closed bool
}

func (f *fakePulsar) Send(_ context.Context, msg *pulsar.ProducerMessage) (pulsar.MessageID, error) {
	if len(f.sent) == f.failAt {
		return nil, errors.New("producer disconnected")
	}
	f.sent = append(f.sent, msg)
	return nil, nil
}

func (f *fakePulsar) Close() { f.closed = true }

func newTestPulsar(p pulsarProducer, createErr error) *PulsarAgent {
	return &PulsarAgent{
		name:  "p",
		topic: "logs",
		create: func() (pulsarProducer, error) {
			if createErr != nil {
				return nil, createErr
			}
			return p, nil
		},
	}
}

func TestPulsarAgent_SendStopsAtFirstFailure(t *testing.T) {
	fp := &fakePulsar{failAt: 2}
	a := newTestPulsar(fp, nil)
	batch := []xrecord.Entry{
		{Key: []byte("a"), Payload: []byte("1"), Headers: map[string]string{xrecord.HeaderTimestamp: "1700000000000"}},
		{Key: []byte("b"), Payload: []byte("2")},
		{Key: []byte("c"), Payload: []byte("3")},
	}

	n, err := a.Send(context.Background(), batch)
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(1700000000000), fp.sent[0].EventTime.UnixMilli())

	require.NoError(t, a.Close())
	assert.True(t, fp.closed)
	_, err = a.Send(context.Background(), batch)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPulsarAgent_LazyProducerRetried(t *testing.T) {
	a := newTestPulsar(nil, errors.New("connection refused"))
	n, err := a.Send(context.Background(), []xrecord.Entry{{Key: []byte("a")}})
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.Zero(t, n)

	fp := &fakePulsar{failAt: -1}
	a.create = func() (pulsarProducer, error) { return fp, nil }
	n, err = a.Send(context.Background(), []xrecord.Entry{{Key: []byte("a")}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
