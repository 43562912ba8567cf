package repo

import (
	"errors"

	"github.com/shaiso/dagflow/internal/store"
)

var (
	// ErrNotFound — запись не найдена в БД.
	// Совпадает со store.ErrNotFound, чтобы DefinitionStore распознавал промах.
	ErrNotFound = store.ErrNotFound

	// ErrCorruptDefinition — сохранённое определение не разбирается.
	ErrCorruptDefinition = errors.New("corrupt workflow definition")
)
