package model

import "errors"

var (
	ErrSurveyNotFound = errors.New("survey not found")
	ErrNoCatalog      = errors.New("survey catalog is empty")
	ErrInvalidPhone   = errors.New("invalid phone number")
)
