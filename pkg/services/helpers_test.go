package services_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/orchestrator/pkg/mocks"
	"github.com/dukex/orchestrator/pkg/models"
	"github.com/dukex/orchestrator/pkg/persistence/file"
	"github.com/dukex/orchestrator/pkg/services"
	"github.com/dukex/orchestrator/pkg/signing"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var epoch = time.Date(2024, 5, 10, 11, 58, 0, 0, time.UTC)

type fixture struct {
	deps    services.Deps
	store   *file.Persistence
	remotes map[string]*mocks.MockRemote
	bus     *mocks.MockEventBus
	clock   *clockwork.FakeClock
	signer  *signing.Signer
	issuer  *signing.IdentityIssuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := file.NewPersistence(slog.New(slog.NewTextHandler(io.Discard, nil)), file.MemoryURL)
	require.NoError(t, err)

	signer, err := signing.NewSigner(testSecret, "webhook")
	require.NoError(t, err)

	issuer, err := signing.NewIdentityIssuer(testSecret, time.Hour)
	require.NoError(t, err)

	f := &fixture{
		store:   store,
		remotes: make(map[string]*mocks.MockRemote),
		bus:     &mocks.MockEventBus{},
		clock:   clockwork.NewFakeClockAt(epoch),
		signer:  signer,
		issuer:  issuer,
	}

	f.bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	f.deps = services.Deps{
		Persistence: store,
		Remotes: func(cluster *models.Cluster) (services.Remote, error) {
			return f.remotes[cluster.ID], nil
		},
		Publisher: f.bus,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:     f.clock,
	}

	return f
}

func (f *fixture) runs() *services.Runs {
	return services.NewRuns(f.deps, services.RunsConfig{
		Signer:      f.signer,
		Identity:    f.issuer,
		WebhookURL:  "http://orchestrator.local/webhook",
		TokenMaxAge: 24 * time.Hour,
	})
}

func (f *fixture) cluster(t *testing.T, name string) (*models.Cluster, *mocks.MockRemote) {
	t.Helper()

	cluster := &models.Cluster{Name: name, URL: "http://" + name + ".local/api/v1"}
	require.NoError(t, f.store.SaveCluster(t.Context(), cluster))

	remote := &mocks.MockRemote{}
	f.remotes[cluster.ID] = remote

	return cluster, remote
}

func (f *fixture) definition(t *testing.T, cluster *models.Cluster, externalID string) *models.Definition {
	t.Helper()

	definition := &models.Definition{ClusterID: cluster.ID, ExternalID: externalID}
	require.NoError(t, f.store.SaveDefinition(t.Context(), definition))

	return definition
}

func (f *fixture) run(t *testing.T, definition *models.Definition, externalID string, state models.RunState) *models.Run {
	t.Helper()

	run := &models.Run{
		DefinitionID:  definition.ID,
		ExternalID:    externalID,
		ExecutionDate: epoch,
		State:         state,
		WebhookToken:  signing.NewToken(),
	}
	require.NoError(t, f.store.SaveRun(t.Context(), run))

	return run
}
