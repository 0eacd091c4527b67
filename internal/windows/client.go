//go:build windows

package windows

import (
	"github.com/Norgate-AV/passthru/internal/logger"
)

// Client provides methods for interacting with Windows APIs
// It composes specialized managers for different categories of functionality
type Client struct {
	log     logger.LoggerInterface
	Process *processManager
	Module  *moduleManager
	Window  *windowManager
}

// NewClient creates a new Windows API client
func NewClient(log logger.LoggerInterface) *Client {
	return &Client{
		log:     log,
		Process: newProcessManager(log),
		Module:  newModuleManager(log),
		Window:  newWindowManager(log),
	}
}
