//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/peril-risk-service/internal/claims"
	"github.com/couchcryptid/peril-risk-service/internal/domain"
	"github.com/couchcryptid/peril-risk-service/internal/observability"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("peril-risk-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// startRedis runs a Redis server and returns its host:port.
func startRedis(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "start redis container")
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	addr, err := container.PortEndpoint(ctx, "6379/tcp", "")
	require.NoError(t, err)
	return addr
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// fixedNow is the decision time used by the claim service in these tests.
var fixedNow = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

type stubDamage struct{}

func (stubDamage) AnalyzeDamage(context.Context, domain.Imagery, domain.Imagery) (domain.DamageAnalysisResult, error) {
	return domain.DamageAnalysisResult{DamagePercentage: 10, DamageTypes: []string{"roof_damage"}, AnalysisConfidence: 82, EstimatedLoss: 30000}, nil
}

type stubFraud struct{}

func (stubFraud) DetectFraud(context.Context, domain.Claim) (domain.FraudAnalysisResult, error) {
	return domain.FraudAnalysisResult{RiskLevel: domain.FraudLow, FraudProbability: 0.05, RiskFactors: []string{}}, nil
}

func newClaimService() *claims.Service {
	return claims.NewService(stubDamage{}, stubFraud{}, domain.DefaultFallbackPolicy(), claims.DefaultOptions(),
		clockwork.NewFakeClockAt(fixedNow), observability.NewMetricsForTesting(), discardLogger())
}

// eligibleClaim passes every automation gate with the stub analyzers.
func eligibleClaim(id string, amount float64) domain.Claim {
	return domain.Claim{
		ID:           id,
		PropertyID:   "prop-" + id,
		Type:         "wind",
		IncidentDate: fixedNow.Add(-96 * time.Hour),
		ReportedDate: fixedNow.Add(-72 * time.Hour),
		Amount:       amount,
		Documents:    []domain.Document{{URL: "a"}, {URL: "b"}},
		PreImagery:   &domain.Imagery{ImageURL: "https://img/pre.png"},
		PostImagery:  &domain.Imagery{ImageURL: "https://img/post.png"},
	}
}
