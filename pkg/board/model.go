package board

import (
	"errors"
	"fmt"

	"github.com/srg/adaboard/internal/codec"
)

// AdafruitCompanyID is the Bluetooth SIG company identifier of Adafruit Industries.
const AdafruitCompanyID uint16 = 0x0822

// Manufacturer data field types.
const fieldProductID uint16 = 0x0001

// DefaultPixelCount is used when the board model is unknown.
const DefaultPixelCount = 10

var ErrNotAdafruit = errors.New("not an Adafruit manufacturer data record")

// Model describes one supported board.
type Model struct {
	Name      string `json:"name"`
	ProductID uint16 `json:"product_id"`
	Pixels    int    `json:"pixels"`
	// FlipsOrientation marks boards whose sensor frame is mounted upside down.
	FlipsOrientation bool `json:"flips_orientation,omitempty"`
}

var (
	CircuitPlaygroundBluefruit = Model{Name: "Circuit Playground Bluefruit", ProductID: 0x8045, Pixels: 10}
	CLUE                       = Model{Name: "CLUE", ProductID: 0x8072, Pixels: 1, FlipsOrientation: true}
	FeatherSense               = Model{Name: "Feather Bluefruit Sense", ProductID: 0x8088, Pixels: 1}

	UnknownModel = Model{Name: "Unknown", Pixels: DefaultPixelCount}
)

var models = map[uint16]Model{
	CircuitPlaygroundBluefruit.ProductID: CircuitPlaygroundBluefruit,
	CLUE.ProductID:                       CLUE,
	FeatherSense.ProductID:               FeatherSense,
}

// ModelForProduct returns the model of productID, or UnknownModel carrying the id.
func ModelForProduct(productID uint16) (Model, bool) {
	if m, ok := models[productID]; ok {
		return m, true
	}
	m := UnknownModel
	m.ProductID = productID
	return m, false
}

// ManufacturerFields splits Adafruit manufacturer data into its typed fields.
//
// Layout: [company u16 LE] then repeated [len u8][type u16 LE][value (len-2 bytes)].
func ManufacturerFields(data []byte) (map[uint16][]byte, error) {
	company, err := codec.Uint16(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAdafruit, err)
	}
	if company != AdafruitCompanyID {
		return nil, fmt.Errorf("%w: company 0x%04X", ErrNotAdafruit, company)
	}

	fields := make(map[uint16][]byte)
	rest := data[2:]
	for len(rest) > 0 {
		n := int(rest[0])
		if n < 2 || len(rest) < 1+n {
			return fields, fmt.Errorf("truncated manufacturer field: length %d, %d bytes left", n, len(rest)-1)
		}
		typ, _ := codec.Uint16(rest[1:])
		fields[typ] = rest[3 : 1+n]
		rest = rest[1+n:]
	}
	return fields, nil
}

// ParseManufacturerData resolves the board model advertised in data.
func ParseManufacturerData(data []byte) (Model, error) {
	fields, err := ManufacturerFields(data)
	if err != nil && len(fields) == 0 {
		return UnknownModel, err
	}
	raw, ok := fields[fieldProductID]
	if !ok {
		return UnknownModel, fmt.Errorf("no product id in manufacturer data")
	}
	pid, err := codec.Uint16(raw)
	if err != nil {
		return UnknownModel, fmt.Errorf("product id: %w", err)
	}
	m, _ := ModelForProduct(pid)
	return m, nil
}
