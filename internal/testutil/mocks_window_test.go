package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/passthru/internal/interfaces"
	"github.com/Norgate-AV/passthru/internal/testutil"
)

// The window mocks carry no build constraint so the portable packages test
// on every host.
var (
	_ interfaces.WindowAPI     = (*testutil.MockWindowAPI)(nil)
	_ interfaces.WindowProcAPI = (*testutil.MockWindowProcs)(nil)
	_ interfaces.Injector      = (*testutil.MockInjector)(nil)
)

func TestMockWindowAPI_ClientMapping(t *testing.T) {
	t.Parallel()

	api := testutil.NewMockWindowAPI().
		WithChain(0x10, 0x20).
		WithClient(0x20, interfaces.Point{X: 100, Y: 50}, 40, 30)

	child, err := api.GetChild(0x10)
	require.NoError(t, err)
	assert.Equal(t, interfaces.HWND(0x20), child)

	p, err := api.ScreenToClient(0x20, interfaces.Point{X: 110, Y: 70})
	require.NoError(t, err)
	assert.Equal(t, interfaces.Point{X: 10, Y: 20}, p)

	require.NoError(t, api.PostMessage(0x20, 0x0200, 0, 1))
	assert.Len(t, api.Messages(), 1)
}
