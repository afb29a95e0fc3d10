package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JonMunkholm/storesync/internal/core"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sample() core.Notification {
	return core.Notification{
		BatchID:   "b-1",
		Entity:    "gastos",
		Operation: core.OpInsert,
		Terminal:  "caja-1",
		Records: []*core.Record{
			core.RecordOf("id_ga", json.Number("4"), "costo", "10.5"),
		},
	}
}

type recordingSink struct {
	mu    sync.Mutex
	got   []core.Notification
	err   error
	block chan struct{}
}

func (s *recordingSink) Notify(ctx context.Context, n core.Notification) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestEncode(t *testing.T) {
	body, err := encode(sample())
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, "b-1", msg["batchId"])
	assert.Equal(t, "gastos", msg["entity"])
	assert.Equal(t, "INSERT", msg["operation"])
	assert.EqualValues(t, 1, msg["count"])
	assert.Len(t, msg["data"], 1)
}

func TestFanout_DeliversToAllSinks(t *testing.T) {
	ok := &recordingSink{}
	failing := &recordingSink{err: errors.New("down")}
	after := &recordingSink{}

	err := Fanout{ok, failing, after}.Notify(context.Background(), sample())

	assert.Error(t, err)
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 1, after.count())
}

func TestLogSink(t *testing.T) {
	assert.NoError(t, NewLogSink(discard()).Notify(context.Background(), sample()))
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, 8, time.Second, discard())

	for _, id := range []string{"a", "b", "c"} {
		n := sample()
		n.BatchID = id
		require.NoError(t, d.Notify(context.Background(), n))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	require.Equal(t, 3, sink.count())
	assert.Equal(t, "a", sink.got[0].BatchID)
	assert.Equal(t, "c", sink.got[2].BatchID)
	assert.ErrorIs(t, d.Notify(context.Background(), sample()), ErrClosed)
}

func TestDispatcher_QueueFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(sink, 1, time.Second, discard())

	// The worker takes the first notification and blocks in the sink; the
	// second fills the queue.
	require.NoError(t, d.Notify(context.Background(), sample()))
	require.Eventually(t, func() bool { return d.Pending() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, d.Notify(context.Background(), sample()))

	assert.ErrorIs(t, d.Notify(context.Background(), sample()), ErrQueueFull)

	close(sink.block)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 2, sink.count())
}

func TestDispatcher_CloseHonoursDeadline(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(sink, 1, time.Second, discard())
	require.NoError(t, d.Notify(context.Background(), sample()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)

	close(sink.block)
}

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (p *fakeProducer) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var out kgo.ProduceResults
	for _, r := range rs {
		p.records = append(p.records, r)
		out = append(out, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return out
}

func (p *fakeProducer) Close() {}

func TestKafkaSink(t *testing.T) {
	p := &fakeProducer{}
	sink := &KafkaSink{client: p, topic: "storesync.changes"}

	require.NoError(t, sink.Notify(context.Background(), sample()))
	require.Len(t, p.records, 1)
	assert.Equal(t, "storesync.changes", p.records[0].Topic)
	assert.Equal(t, []byte("gastos"), p.records[0].Key)
	assert.Equal(t, "batch_id", p.records[0].Headers[0].Key)

	p.err = errors.New("not leader")
	assert.ErrorContains(t, sink.Notify(context.Background(), sample()), "not leader")
}

func TestKafkaConfig_Validate(t *testing.T) {
	assert.Error(t, KafkaConfig{Topic: "t"}.Validate())
	assert.Error(t, KafkaConfig{Brokers: []string{"localhost:9092"}}.Validate())
	assert.NoError(t, KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}.Validate())
}

type fakePublisher struct {
	exchange, key string
	msg           amqp091.Publishing
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	p.exchange, p.key, p.msg = exchange, key, msg
	return nil
}

func TestAMQPSink(t *testing.T) {
	p := &fakePublisher{}
	sink := &AMQPSink{ch: p, exchange: "storesync"}

	require.NoError(t, sink.Notify(context.Background(), sample()))
	assert.Equal(t, "storesync", p.exchange)
	assert.Equal(t, "sync.gastos", p.key)
	assert.Equal(t, "application/json", p.msg.ContentType)
	assert.Equal(t, "b-1", p.msg.MessageId)
	assert.NoError(t, sink.Close())

	assert.Error(t, AMQPConfig{URL: "amqp://localhost"}.Validate())
}

type fakeInserter struct {
	docs []any
}

func (f *fakeInserter) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	f.docs = append(f.docs, document)
	return &mongo.InsertOneResult{}, nil
}

func TestMongoSink(t *testing.T) {
	coll := &fakeInserter{}
	sink := &MongoSink{coll: coll}

	require.NoError(t, sink.Notify(context.Background(), sample()))
	require.Len(t, coll.docs, 1)

	doc := coll.docs[0].(ChangeLog)
	assert.Equal(t, "gastos", doc.Entity)
	assert.Equal(t, 1, doc.Count)
	assert.Equal(t, bson.D{{Key: "id_ga", Value: "4"}, {Key: "costo", Value: "10.5"}}, doc.Records[0])
	assert.NoError(t, sink.Close(context.Background()))
}
