package parsers

import (
	"fmt"
	"io"

	"github.com/emilienrk/capitalview-sub000/src/models"
	"github.com/emilienrk/capitalview-sub000/src/parsers/binance"
)

// Parser turns an exchange ledger export into a reviewable import preview.
// Nothing is persisted at this stage.
type Parser interface {
	Parse(file io.Reader) (*models.ImportPreview, error)
}

func GetParser(source, fiatBase string) (Parser, error) {
	switch source {
	case "binance":
		return binance.NewParser(fiatBase), nil
	default:
		return nil, fmt.Errorf("no parser available for source: %s", source)
	}
}
