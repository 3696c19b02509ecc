package refl

import (
	"errors"
	"fmt"

	"github.com/sky-flux/refl/abeles"
)

// Sentinel errors for the refl package.
var (
	ErrConfiguration   = errors.New("refl: invalid model configuration")
	ErrMissingData     = errors.New("refl: no measured data")
	ErrNumerical       = errors.New("refl: non-finite value in computation")
	ErrNotImplemented  = errors.New("refl: layer variant not implemented")
	ErrParameterBounds = errors.New("refl: parameter out of bounds")
)

// kernelError maps an abeles failure onto the refl taxonomy, keeping the
// kernel error in the chain.
func kernelError(err error) error {
	if errors.Is(err, abeles.ErrShape) {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return fmt.Errorf("%w: %w", ErrNumerical, err)
}
