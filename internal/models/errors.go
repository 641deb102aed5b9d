package models

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrDuplicate       = errors.New("already exists")
	ErrCryptoFailure   = errors.New("crypto failure")
)

// Entity errors
var (
	ErrCardNotFound   = fmt.Errorf("%w: card", ErrNotFound)
	ErrUserNotFound   = fmt.Errorf("%w: user", ErrNotFound)
	ErrUsernameExists = fmt.Errorf("%w: username", ErrDuplicate)
	ErrCardNumberUsed = fmt.Errorf("%w: card number", ErrDuplicate)
)

// Card lifecycle and transfer errors
var (
	ErrInvalidStateTransition = errors.New("invalid card state transition")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidTransfer        = errors.New("invalid transfer")

	ErrSameCard            = fmt.Errorf("%w: same card", ErrInvalidTransfer)
	ErrNotOwner            = fmt.Errorf("%w: not owner", ErrInvalidTransfer)
	ErrSourceInactive      = fmt.Errorf("%w: source inactive", ErrInvalidTransfer)
	ErrDestinationInactive = fmt.Errorf("%w: destination inactive", ErrInvalidTransfer)
	ErrNonPositiveAmount   = fmt.Errorf("%w: non-positive amount", ErrInvalidTransfer)
	ErrAmountPrecision     = fmt.Errorf("%w: amount has more than two decimal places", ErrInvalidTransfer)
)
