package mq

import "errors"

var (
	// ErrNoChannel — AMQP канал недоступен (соединение разорвано, идёт reconnect).
	ErrNoChannel = errors.New("no amqp channel available")

	// ErrConnectionClosed — соединение закрыто через Close.
	ErrConnectionClosed = errors.New("amqp connection closed")
)
