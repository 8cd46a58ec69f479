package systemtest

import (
	"context"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	internalhttp "github.com/ngajar-feri/myrvm-edge/internal/api/http"
	"github.com/ngajar-feri/myrvm-edge/internal/audit"
	"github.com/ngajar-feri/myrvm-edge/internal/auth"
	"github.com/ngajar-feri/myrvm-edge/internal/commands"
	"github.com/ngajar-feri/myrvm-edge/internal/db"
	"github.com/ngajar-feri/myrvm-edge/internal/devices"
	"github.com/ngajar-feri/myrvm-edge/internal/handshake"
	"github.com/ngajar-feri/myrvm-edge/internal/machines"
	"github.com/ngajar-feri/myrvm-edge/internal/mlmodels"
	"github.com/ngajar-feri/myrvm-edge/internal/operators"
	pgtest "github.com/ngajar-feri/myrvm-edge/systemtest/postgres"
	"github.com/ngajar-feri/myrvm-edge/systemtest/tests"
)

const (
	testJWTSecret   = "system-test-jwt-secret"
	testKioskSecret = "system-test-kiosk-secret"
	testAdminAPIKey = "system-test-admin-key"
)

func TestSystemIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed system test in short mode")
	}

	ctx := context.Background()

	container, err := pgtest.StartPostgres(ctx, "postgres", "postgres", "myrvm_test")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgtest.TerminatePostgres(context.Background(), container)
	})

	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, db.RunMigrations(dbURL, ""))

	pool, err := db.InitDB(ctx, dbURL, "")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	tokenConf := auth.Config{
		Secret:       testJWTSecret,
		Issuer:       "myrvm-edge-systemtest",
		OperatorTTL:  time.Hour,
		TransportTTL: time.Hour,
	}

	queue := commands.NewMemoryQueue(10*time.Minute, 100)
	deviceSvc := devices.NewService(devices.NewStore(pool))
	machineStore := machines.NewStore(pool)
	modelStore := mlmodels.NewStore(pool)
	auditSink := audit.NewPostgresSink(pool)

	handshakeSvc := handshake.NewService(deviceSvc, machineStore, modelStore, auditSink, handshake.Config{
		KioskBaseURL: "https://kiosk.test/screen",
		KioskSecret:  testKioskSecret,
		KioskTTL:     24 * time.Hour,
		Token:        tokenConf,
	})

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	internalhttp.SetupRoute(engine, &internalhttp.Services{
		Devices:     deviceSvc,
		Handshake:   handshakeSvc,
		Queue:       queue,
		Machines:    machineStore,
		Models:      modelStore,
		Operators:   operators.NewService(pool, tokenConf),
		Audit:       auditSink,
		JWTSecret:   testJWTSecret,
		AdminAPIKey: testAdminAPIKey,
	})

	env := &tests.Env{
		Router:      engine,
		JWTSecret:   testJWTSecret,
		AdminAPIKey: testAdminAPIKey,
	}

	t.Run("HealthCheck", func(t *testing.T) { tests.TestHealthCheck(t, env) })
	t.Run("OperatorAuth", func(t *testing.T) { tests.TestOperatorAuth(t, env) })
	t.Run("DeviceLifecycle", func(t *testing.T) { tests.TestDeviceLifecycle(t, env) })
	t.Run("HandshakeAndHeartbeat", func(t *testing.T) { tests.TestHandshakeAndHeartbeat(t, env) })
	t.Run("CommandDelivery", func(t *testing.T) { tests.TestCommandDelivery(t, env) })
	t.Run("MachinesAndModels", func(t *testing.T) { tests.TestMachinesAndModels(t, env) })
}
