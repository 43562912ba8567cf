package worker

import "errors"

// Ошибки executor'а.
var (
	// ErrUnknownHandler — нет обработчика с таким именем.
	ErrUnknownHandler = errors.New("unknown step handler")

	// ErrInvalidConfig — невалидная конфигурация шага.
	ErrInvalidConfig = errors.New("invalid step config")

	// ErrStepCancelled — выполнение шага прервано отменой context.
	ErrStepCancelled = errors.New("step execution cancelled")

	// ErrStepFailed — шаг завершился ошибкой по своей логике (обработчик fail).
	ErrStepFailed = errors.New("step failed")

	// ErrHTTPRequest — HTTP-запрос завершился ошибкой.
	ErrHTTPRequest = errors.New("http request failed")
)
