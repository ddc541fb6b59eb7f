package config

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newBoundCommand(t *testing.T) (*cobra.Command, *viper.Viper) {
	t.Helper()
	cmd := &cobra.Command{Use: "ibtop"}
	v := viper.New()
	BindFlags(cmd, v)
	return cmd, v
}

func TestFromViperReflectsParsedFlags(t *testing.T) {
	cmd, v := newBoundCommand(t)
	require.NoError(t, cmd.ParseFlags([]string{"--hca=mlx5_0", "--threads=8", "--service-type=test"}))

	cfg := FromViper(v)
	require.Equal(t, "mlx5_0", cfg.HCA)
	require.Equal(t, 8, cfg.Threads)
	require.Equal(t, ServiceTypeTest, cfg.ServiceType)
}

func TestFromViperReflectsEnvironment(t *testing.T) {
	cmd, v := newBoundCommand(t)
	require.NoError(t, cmd.ParseFlags(nil))
	t.Setenv("IBTOP_HCA", "mlx5_1")
	t.Setenv("IBTOP_UPDATE_INTERVAL", "5")

	cfg := FromViper(v)
	require.Equal(t, "mlx5_1", cfg.HCA)
	require.Equal(t, 5, cfg.UpdateInterval)
}

func TestValidateRequiresHCAForIBMadWithoutScopeFile(t *testing.T) {
	cfg := Config{ServiceType: ServiceTypeIBMad, Threads: 1, UpdateInterval: 1}
	require.Error(t, Validate(cfg))

	cfg.ScopeFile = "/tmp/scope.csv"
	require.NoError(t, Validate(cfg))

	cfg.ScopeFile = ""
	cfg.HCA = "mlx5_0"
	require.NoError(t, Validate(cfg))
}

func TestValidateAllowsTestServiceTypeWithoutHCA(t *testing.T) {
	cfg := Config{ServiceType: ServiceTypeTest, Threads: 1, UpdateInterval: 1}
	require.NoError(t, Validate(cfg))
}

func TestValidateRejectsUnknownServiceType(t *testing.T) {
	cfg := Config{ServiceType: "bogus", Threads: 1, UpdateInterval: 1, HCA: "mlx5_0"}
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsNonPositiveThreadsAndInterval(t *testing.T) {
	base := Config{ServiceType: ServiceTypeTest, Threads: 1, UpdateInterval: 1}

	zeroThreads := base
	zeroThreads.Threads = 0
	require.Error(t, Validate(zeroThreads))

	zeroInterval := base
	zeroInterval.UpdateInterval = 0
	require.Error(t, Validate(zeroInterval))
}
