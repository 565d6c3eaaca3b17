//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/peril-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/peril-risk-service/internal/config"
	"github.com/couchcryptid/peril-risk-service/internal/domain"
	"github.com/couchcryptid/peril-risk-service/internal/observability"
	"github.com/couchcryptid/peril-risk-service/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSourceTopic = "test-claims-submitted"
	testSinkTopic   = "test-claim-decisions"
)

// publishedDecision holds a deserialized message read from the sink topic.
type publishedDecision struct {
	Decision domain.ClaimDecision
	Key      string
	Headers  map[string]string
}

func readDecision(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedDecision {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var d domain.ClaimDecision
	require.NoError(t, json.Unmarshal(msg.Value, &d), "unmarshal sink message")
	return publishedDecision{Decision: d, Key: string(msg.Key), Headers: headers}
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func submissionMessage(t *testing.T, sub domain.ClaimSubmission) kafkago.Message {
	t.Helper()
	payload, err := json.Marshal(sub)
	require.NoError(t, err)
	return kafkago.Message{Key: []byte(sub.Claim.ID), Value: payload, Time: fixedNow}
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaReaderWriter verifies the adapter layer round-trips one claim
// submission through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-reader")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })

	msg := submissionMessage(t, domain.ClaimSubmission{Claim: eligibleClaim("clm-1", 18000)})
	require.NoError(t, producer.WriteMessages(ctx, msg))

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("clm-1"), raw.Key)
	assert.Equal(t, msg.Value, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit)
	require.NoError(t, raw.Commit(ctx))

	transformer := pipeline.NewTransformer(newClaimService(), discardLogger())
	out, err := transformer.Transform(ctx, raw)
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.OutputEvent{out}))

	pd := readDecision(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, "clm-1", pd.Key)
	assert.Equal(t, "approved", pd.Headers["status"])
	_, err = time.Parse(time.RFC3339, pd.Headers["decided_at"])
	require.NoError(t, err, "decided_at should be valid RFC3339")

	assert.Equal(t, domain.ClaimApproved, pd.Decision.Status)
	assert.InDelta(t, 18000, pd.Decision.ApprovedAmount, 0)
	assert.Equal(t, fixedNow, pd.Decision.DecidedAt)
}

// TestPipelineEndToEnd wires Reader, ClaimTransformer and Writer with a real
// broker and checks every submission produces one decision.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })

	// Even claims are under the automation cap, odd ones exceed it.
	const n = 20
	msgs := make([]kafkago.Message, 0, n)
	for i := range n {
		amount := 12000.0
		if i%2 == 1 {
			amount = 75000
		}
		msgs = append(msgs, submissionMessage(t, domain.ClaimSubmission{Claim: eligibleClaim(fmt.Sprintf("clm-%02d", i), amount)}))
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, pipeline.NewTransformer(newClaimService(), discardLogger()), writer, discardLogger(), metrics, pipeline.Options{BatchSize: 50, Concurrency: 4})

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	statuses := map[domain.ClaimStatus]int{}
	seen := map[string]bool{}
	for len(seen) < n {
		pd := readDecision(ctx, t, consumer)
		seen[pd.Key] = true
		statuses[pd.Decision.Status]++
		assert.Equal(t, string(pd.Decision.Status), pd.Headers["status"])
	}

	pipelineCancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, n/2, statuses[domain.ClaimApproved], "claims under the cap are approved")
	assert.Equal(t, n/2, statuses[domain.ClaimUnderReview], "claims over the cap go to review")
	assert.True(t, p.Processed())
}

// TestPipelineTransformError verifies a poison message is skipped and the
// pipeline keeps deciding valid claims.
func TestPipelineTransformError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-poison")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })

	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{"), Time: fixedNow},
		submissionMessage(t, domain.ClaimSubmission{Claim: domain.Claim{Amount: 100}}),
		submissionMessage(t, domain.ClaimSubmission{Claim: eligibleClaim("good", 9000)}),
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, pipeline.NewTransformer(newClaimService(), discardLogger()), writer, discardLogger(), metrics, pipeline.Options{BatchSize: 50, Concurrency: 4})

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	pd := readDecision(ctx, t, consumer)
	assert.Equal(t, "good", pd.Key)
	assert.Equal(t, domain.ClaimApproved, pd.Decision.Status)

	// The invalid JSON and the claim without an id were both skipped.
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	require.Error(t, err, "expected no second message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
}
