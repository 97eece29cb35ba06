package utils

import (
	"errors"
	"fmt"

	"github.com/cosmos/cosmos-sdk/types/bech32"
)

var ErrInvalidAddress = errors.New("address is invalid")

// ValidateAddress checks that addr is a bech32 string with the expected human readable part.
// An empty prefix only requires the address to be non-empty.
func ValidateAddress(addr, prefix string) error {
	if addr == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if prefix == "" {
		return nil
	}

	hrp, _, err := bech32.DecodeAndConvert(addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidAddress, addr, err)
	}
	if hrp != prefix {
		return fmt.Errorf("%w: %s has prefix %q, expected %q", ErrInvalidAddress, addr, hrp, prefix)
	}
	return nil
}
