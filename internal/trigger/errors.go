package trigger

import "errors"

var (
	// ErrUnsupportedMessage — сообщение неизвестного типа в очереди триггеров.
	ErrUnsupportedMessage = errors.New("unsupported trigger message")

	// ErrInvalidTrigger — триггер без event и workflow_id или с некорректной конфигурацией.
	ErrInvalidTrigger = errors.New("invalid trigger")
)
