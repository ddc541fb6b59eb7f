package ibmad

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/newellz2/ibtop/internal/transport"
)

// writeFakeSysfs builds a minimal InfiniBand class tree for one device,
// one port, so readLID/readPortState can be tested without real
// hardware or a dependency on rdmamap's own sysfs root (rdmamap reads
// the real "/sys" directly, so device enumeration and counters are left
// to the integration-only paths; this test covers only the sysfs reads
// this package owns outright).
func writeFakeSysfs(t *testing.T, device string, port int, lid string, state string) string {
	t.Helper()
	root := t.TempDir()
	portDir := filepath.Join(root, classPath, device, portsDir, strconv.Itoa(port))
	require.NoError(t, os.MkdirAll(portDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(portDir, lidFile), []byte(lid+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(portDir, stateFile), []byte(state+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(portDir, physFile), []byte("5: LinkUp\n"), 0o644))
	return root
}

func TestReadLIDParsesHexValue(t *testing.T) {
	root := writeFakeSysfs(t, "mlx5_0", 1, "0x11", "4: ACTIVE")
	tr := &Transport{sysfsRoot: root}

	lid, err := tr.readLID("mlx5_0")
	require.NoError(t, err)
	require.Equal(t, uint16(0x11), lid)
}

func TestReadPortStateParsesActive(t *testing.T) {
	root := writeFakeSysfs(t, "mlx5_0", 1, "0x11", "4: ACTIVE")
	tr := &Transport{sysfsRoot: root}

	state, phys := tr.readPortState("mlx5_0", 1)
	require.Equal(t, "LinkUp", phys)
	require.Equal(t, transport.LinkStateActive, state)
}

func TestDeviceGUIDIsStableAndDistinct(t *testing.T) {
	a := deviceGUID("mlx5_0")
	b := deviceGUID("mlx5_1")
	require.NotEqual(t, a, b)
	require.Equal(t, a, deviceGUID("mlx5_0"))
}
