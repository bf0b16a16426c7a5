package proxy

import (
	"encoding/json"
	"strings"

	"ppcgate/internal/clientjs"
)

// rulesView is what the rules page and its JSON variant show.
type rulesView struct {
	Campaign bool            `json:"campaign"`
	Revision uint64          `json:"revision"`
	HomePath string          `json:"home_path"`
	Home     string          `json:"home_class"`
	Script   clientjs.Config `json:"script"`
	Stages   []stageView     `json:"stages"`
}

type stageView struct {
	Name      string         `json:"name"`
	Injectors []injectorView `json:"injectors"`
}

type injectorView struct {
	Name    string `json:"name"`
	Element string `json:"element,omitempty"`
	ID      string `json:"id,omitempty"`
	Body    string `json:"body,omitempty"`
}

func (v rulesView) variant() string {
	if v.Campaign {
		return "campaign"
	}
	return "organic"
}

func (v rulesView) otherVariant() string {
	if v.Campaign {
		return "organic"
	}
	return "campaign"
}

func (v rulesView) otherHref() string {
	if v.Campaign {
		return "?campaign=0"
	}
	return "?campaign=1"
}

func (iv injectorView) trimmedBody() string {
	return strings.TrimSpace(iv.Body)
}

// openTag is the start tag of an injected element without a text body.
func (iv injectorView) openTag() string {
	return `<` + iv.Element + ` id="` + iv.ID + `">`
}

func scriptJSON(cfg clientjs.Config) (string, error) {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
