package registry

import (
	"errors"
	"fmt"
)

var (
	ErrFeatureDisabled   = errors.New("feature disabled")
	ErrRebindBlocked     = errors.New("rebind blocked")
	ErrNotFound          = errors.New("binding not found")
	ErrUnbound           = errors.New("no identity bound to this address")
	ErrCredentialMissing = errors.New("bound identity has no credential")
	ErrStorage           = errors.New("storage error")
)

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
