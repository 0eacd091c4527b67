package inject

import (
	"errors"
	"fmt"

	"github.com/Norgate-AV/passthru/internal/interfaces"
)

// DefaultChildDepth is how many first-child levels separate a top-level
// window from the surface that handles its mouse input.
const DefaultChildDepth = 4

// ErrNoChild is returned when a window in the chain has no child
var ErrNoChild = errors.New("window has no child")

// TargetResolver maps the window a caller names to the window that is
// actually subclassed.
type TargetResolver func(api interfaces.WindowAPI, window interfaces.HWND) (interfaces.HWND, error)

// ChildChain follows the first child depth times. Depth 0 targets the window itself.
func ChildChain(depth int) TargetResolver {
	return func(api interfaces.WindowAPI, window interfaces.HWND) (interfaces.HWND, error) {
		current := window
		for level := 1; level <= depth; level++ {
			child, err := api.GetChild(current)
			if err != nil {
				return 0, fmt.Errorf("child %d of %#x: %w", level, window, err)
			}

			if child == 0 {
				return 0, fmt.Errorf("child %d of %#x: %w", level, window, ErrNoChild)
			}

			current = child
		}

		return current, nil
	}
}
