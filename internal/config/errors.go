package config

import "errors"

// ErrInvalidConfig — недопустимое значение конфигурации.
var ErrInvalidConfig = errors.New("invalid config")
