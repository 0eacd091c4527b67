//go:build windows

package windows

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"

	"github.com/Norgate-AV/passthru/internal/interfaces"
	"github.com/Norgate-AV/passthru/internal/logger"
)

func openSelf(t *testing.T, api *WindowsAPI) interfaces.Handle {
	t.Helper()

	process, err := api.OpenProcess(windows.GetCurrentProcessId())
	require.NoError(t, err)
	t.Cleanup(func() { _ = api.CloseHandle(process) })

	return process
}

func TestProcessMemory_RoundTrip(t *testing.T) {
	api := NewWindowsAPI(logger.NewNoOpLogger())
	process := openSelf(t, api)

	addr, err := api.VirtualAllocEx(process, 64, interfaces.PageReadWrite)
	require.NoError(t, err)
	require.NotZero(t, addr)

	payload := []byte("passthru")
	require.NoError(t, api.WriteProcessMemory(process, addr, payload))

	got := make([]byte, len(payload))
	var read uintptr
	require.NoError(t, windows.ReadProcessMemory(windows.Handle(process), addr, &got[0], uintptr(len(got)), &read))
	assert.Equal(t, payload, got)

	require.NoError(t, api.VirtualFreeEx(process, addr))
}

func TestRemoteThread_ExitCode(t *testing.T) {
	api := NewWindowsAPI(logger.NewNoOpLogger())
	process := openSelf(t, api)

	getPid := kernel32.NewProc("GetCurrentProcessId")
	require.NoError(t, getPid.Find())

	thread, err := api.CreateRemoteThread(process, getPid.Addr(), 0)
	require.NoError(t, err)
	defer api.CloseHandle(thread)

	require.NoError(t, api.WaitForThread(thread, 5*time.Second))

	code, err := api.GetExitCodeThread(thread)
	require.NoError(t, err)
	assert.Equal(t, windows.GetCurrentProcessId(), code)
}

func TestEnumProcessModules_FindsKernel32(t *testing.T) {
	api := NewWindowsAPI(logger.NewNoOpLogger())
	process := openSelf(t, api)

	modules, err := api.EnumProcessModules(process)
	require.NoError(t, err)

	found := false
	for _, m := range modules {
		if strings.EqualFold(m.Name, "kernel32.dll") {
			found = true
			assert.NotZero(t, m.Base)
		}
	}

	assert.True(t, found, "kernel32.dll is loaded in every process")
}

func TestLoadLibraryAddress(t *testing.T) {
	api := NewWindowsAPI(logger.NewNoOpLogger())

	addr, err := api.LoadLibraryAddress()
	require.NoError(t, err)
	assert.NotZero(t, addr)
}

func TestOpenProcess_InvalidPid(t *testing.T) {
	api := NewWindowsAPI(logger.NewNoOpLogger())

	_, err := api.OpenProcess(0xFFFFFFF0)
	assert.Error(t, err)
}

func TestGetCtrlTypeName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "CTRL_C", GetCtrlTypeName(CTRL_C_EVENT))
	assert.Equal(t, "CTRL_CLOSE", GetCtrlTypeName(CTRL_CLOSE_EVENT))
	assert.Equal(t, "UNKNOWN", GetCtrlTypeName(42))
}

func TestLongPtrIndex(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ^uintptr(19), longPtrIndex(GWL_EXSTYLE))
	assert.Equal(t, ^uintptr(3), longPtrIndex(GWLP_WNDPROC))
}

func TestShellExecute_RejectsInvalidFile(t *testing.T) {
	t.Parallel()

	err := ShellExecute(0, "open", "passthru\x00.exe", "", "", windows.SW_HIDE)
	assert.Error(t, err)
}

func TestIsElevated_MatchesToken(t *testing.T) {
	t.Parallel()

	assert.Equal(t, windows.GetCurrentProcessToken().IsElevated(), IsElevated())
}
