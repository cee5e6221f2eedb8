package game

import (
	"encoding/json"
	"fmt"
)

// Color is the color of an organ, virus or medicine card. Multi behaves as a
// wildcard: it is compatible with every other color.
type Color string

const (
	ColorRed    Color = "red"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
	ColorYellow Color = "yellow"
	ColorMulti  Color = "multi"
)

// Kind is the card variant tag.
type Kind string

const (
	KindOrgan     Kind = "organ"
	KindVirus     Kind = "virus"
	KindMedicine  Kind = "medicine"
	KindTreatment Kind = "treatment"
)

// Treatment identifies one of the special action cards.
type Treatment string

const (
	TreatmentTransplant   Treatment = "transplant"
	TreatmentOrganThief   Treatment = "organ_thief"
	TreatmentInfection    Treatment = "infection"
	TreatmentLatexGlove   Treatment = "latex_glove"
	TreatmentMedicalError Treatment = "medical_error"
)

// Card is a tagged variant: colored cards carry a Color, treatment cards a
// Treatment. The zero Card is not a valid card.
type Card struct {
	Kind      Kind
	Color     Color
	Treatment Treatment
}

// CardJSON is the wire representation of a card.
type CardJSON struct {
	Type          string `json:"type"`
	Color         string `json:"color,omitempty"`
	TreatmentType string `json:"treatment_type,omitempty"`
}

// MarshalJSON implements json.Marshaler for Card.
func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(CardJSON{
		Type:          string(c.Kind),
		Color:         string(c.Color),
		TreatmentType: string(c.Treatment),
	})
}

// UnmarshalJSON implements json.Unmarshaler for Card.
func (c *Card) UnmarshalJSON(data []byte) error {
	var cj CardJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return err
	}

	switch Kind(cj.Type) {
	case KindOrgan, KindVirus, KindMedicine:
		c.Kind = Kind(cj.Type)
		switch Color(cj.Color) {
		case ColorRed, ColorGreen, ColorBlue, ColorYellow, ColorMulti:
			c.Color = Color(cj.Color)
		default:
			return fmt.Errorf("invalid card color: %q", cj.Color)
		}
	case KindTreatment:
		c.Kind = KindTreatment
		switch Treatment(cj.TreatmentType) {
		case TreatmentTransplant, TreatmentOrganThief, TreatmentInfection,
			TreatmentLatexGlove, TreatmentMedicalError:
			c.Treatment = Treatment(cj.TreatmentType)
		default:
			return fmt.Errorf("invalid treatment type: %q", cj.TreatmentType)
		}
	default:
		return fmt.Errorf("invalid card type: %q", cj.Type)
	}
	return nil
}

// toMap returns the card as a payload tree node for game updates.
func (c Card) toMap() M {
	m := M{"type": string(c.Kind)}
	if c.Kind == KindTreatment {
		m["treatment_type"] = string(c.Treatment)
	} else {
		m["color"] = string(c.Color)
	}
	return m
}

var colorNamesES = map[Color]string{
	ColorRed:    "Rojo",
	ColorGreen:  "Verde",
	ColorBlue:   "Azul",
	ColorYellow: "Amarillo",
	ColorMulti:  "Multicolor",
}

var treatmentNamesES = map[Treatment]string{
	TreatmentTransplant:   "Trasplante",
	TreatmentOrganThief:   "Ladrón de Órganos",
	TreatmentInfection:    "Contagio",
	TreatmentLatexGlove:   "Guante de Látex",
	TreatmentMedicalError: "Error Médico",
}

// Name returns the user-facing Spanish name of the card.
func (c Card) Name() string {
	switch c.Kind {
	case KindOrgan:
		return "Órgano " + colorNamesES[c.Color]
	case KindVirus:
		return "Virus " + colorNamesES[c.Color]
	case KindMedicine:
		return "Medicina " + colorNamesES[c.Color]
	case KindTreatment:
		return treatmentNamesES[c.Treatment]
	}
	return "?"
}

// String returns a compact representation for logs.
func (c Card) String() string {
	if c.Kind == KindTreatment {
		return string(c.Kind) + ":" + string(c.Treatment)
	}
	return string(c.Kind) + ":" + string(c.Color)
}

// colorsCompatible reports whether two colors may interact: either they are
// equal or at least one of them is the Multi wildcard.
func colorsCompatible(a, b Color) bool {
	return a == b || a == ColorMulti || b == ColorMulti
}
