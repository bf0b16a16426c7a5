// Package clientjs renders the footer script that tags campaign traffic and
// drives the booking widget in the browser.
package clientjs

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"ppcgate/internal/campaign"
	"ppcgate/internal/inject"
	"ppcgate/internal/profile"
)

// InjectorName is the footer injector name; the script element gets
// id="ppcgate-behavior".
const InjectorName = "behavior"

// CloseStyle is the inline style of the synthesized close badge.
const CloseStyle = "position:absolute;top:-8px;right:-8px;width:24px;height:24px;" +
	"background:#333;color:white;border-radius:50%;display:flex;align-items:center;" +
	"justify-content:center;font-size:20px;cursor:pointer;line-height:1;z-index:9999;font-weight:bold;"

//go:embed behavior.js
var behavior string

// Source returns the unconfigured script, a single function expression
// taking the Config object.
func Source() string { return behavior }

// Config is passed to the script as its only argument.
type Config struct {
	HomeClass      string   `json:"homeClass"`
	CampaignParams []string `json:"campaignParams"`
	CampaignClass  string   `json:"campaignClass"`
	WidgetSelector string   `json:"widgetSelector"`
	RevealClass    string   `json:"revealClass"`
	StorageKey     string   `json:"storageKey"`
	RevealDelayMS  int64    `json:"revealDelayMs"`
	PollIntervalMS int64    `json:"pollIntervalMs"`
	CloseClass     string   `json:"closeClass"`
	CloseLabel     string   `json:"closeLabel"`
	CloseGlyph     string   `json:"closeGlyph"`
	CloseStyle     string   `json:"closeStyle"`
}

// FromProfile builds the script config for a site profile.
func FromProfile(p *profile.Profile) Config {
	if p == nil {
		p = profile.Default()
	}
	w := p.Widget
	return Config{
		HomeClass:      p.HomeClass,
		CampaignParams: campaign.Names(p.ExtraCampaigns...),
		CampaignClass:  campaign.MarkerClass,
		WidgetSelector: w.Selector,
		RevealClass:    w.RevealClass,
		StorageKey:     w.StorageKey,
		RevealDelayMS:  w.RevealDelay.Milliseconds(),
		PollIntervalMS: w.PollInterval.Milliseconds(),
		CloseClass:     w.CloseClass,
		CloseLabel:     w.CloseLabel,
		CloseGlyph:     "×",
		CloseStyle:     CloseStyle,
	}
}

// Render returns the self-invoking script for cfg. The JSON encoder escapes
// <, > and &, so no config value can close the surrounding <script> element.
func Render(cfg Config) (string, error) {
	if cfg.WidgetSelector == "" {
		return "", fmt.Errorf("render client script: empty widget selector")
	}
	if cfg.PollIntervalMS <= 0 {
		return "", fmt.Errorf("render client script: poll interval %dms", cfg.PollIntervalMS)
	}
	arg, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("render client script: %w", err)
	}
	var b strings.Builder
	b.Grow(len(behavior) + len(arg) + 8)
	b.WriteString("(")
	b.WriteString(strings.TrimSpace(behavior))
	b.WriteString(")(")
	b.Write(arg)
	b.WriteString(");")
	return b.String(), nil
}

// Injector returns the footer-stage injector emitting the configured script
// for the page's profile.
func Injector() inject.Injector {
	return inject.Script(InjectorName, func(ctx inject.Context) (string, error) {
		return Render(FromProfile(ctx.Profile))
	})
}
