package parser

import (
	"errors"

	"github.com/pumpmybags/pmb/pkg/signal"
	"github.com/pumpmybags/pmb/pkg/signal/extract"
	"github.com/pumpmybags/pmb/pkg/signal/parser/json"
)

var ErrNotFound = errors.New("parser: not found")

func NewParser(name string) (signal.Parser, error) {
	switch name {
	case "extract":
		return extract.Parser{}, nil
	case "json":
		return json.Parser{}, nil
	default:
		return nil, ErrNotFound
	}
}
