package services

import "errors"

var ErrInvalidInput = errors.New("invalid input")
