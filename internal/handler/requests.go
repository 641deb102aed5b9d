package handler

import "github.com/shopspring/decimal"

// RegisterRequest is the body of register and create-admin calls
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Email    string `json:"email"    validate:"omitempty,email"`
}

// LoginRequest is the body of a login call
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse carries an issued bearer token
type TokenResponse struct {
	Token string `json:"token"`
}

// TransferRequest moves amount between two cards of the caller
type TransferRequest struct {
	FromCardID int64            `json:"fromCardId" validate:"required,gt=0"`
	ToCardID   int64            `json:"toCardId"   validate:"required,gt=0"`
	Amount     *decimal.Decimal `json:"amount"     validate:"required"`
}

// IssueCardRequest is the body of an administrative card creation
type IssueCardRequest struct {
	UserID    int64            `json:"userId"    validate:"required,gt=0"`
	OwnerName string           `json:"ownerName" validate:"required,max=100"`
	Balance   *decimal.Decimal `json:"balance"`
}
