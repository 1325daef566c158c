package core

import "errors"

var ErrIntentNotFound = errors.New("payment intent not found")
var ErrProductNotFound = errors.New("product not found")
var ErrUnsupportedAsset = errors.New("no adapter for chain and currency")
var ErrDuplicateTransaction = errors.New("transaction already claimed by another payment")
var ErrNoBuyerWallet = errors.New("buyer wallet address not set")
