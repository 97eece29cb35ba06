package pool

import "errors"

var (
	ErrUnauthorized        = errors.New("sender is not the pool admin")
	ErrAssetNotFound       = errors.New("asset is not registered")
	ErrProviderNotFound    = errors.New("provider has no account")
	ErrSameAssetSwap       = errors.New("cannot swap an asset for itself")
	ErrZeroAmount          = errors.New("amount must be positive")
	ErrNotInstantiated     = errors.New("pool is not instantiated")
	ErrAlreadyInstantiated = errors.New("pool is already instantiated")
	ErrBalancesUnavailable = errors.New("ledger cannot report balances")
	ErrInvalidAsset        = errors.New("asset id is not a valid denom")
)
