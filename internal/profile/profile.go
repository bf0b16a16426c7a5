// Package profile describes the site-specific markup hooks the style rules
// and the client script target. Defaults match the production theme; a YAML
// file can override any field.
package profile

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile lists the selectors and link patterns of one site.
type Profile struct {
	HomeClass      string   `yaml:"home_class"`
	SocialDomains  []string `yaml:"social_domains"`
	BookingDomain  string   `yaml:"booking_domain"`
	HeroImages     []string `yaml:"hero_images"`
	HeroContainer  string   `yaml:"hero_container"`
	CTAButtons     []string `yaml:"cta_buttons"`
	HeroColumn     string   `yaml:"hero_column"`
	HeroMain       string   `yaml:"hero_main"`
	Widget         Widget   `yaml:"widget"`
	ExtraCampaigns []string `yaml:"extra_campaign_params"`
}

// Widget configures the third-party booking widget controller.
type Widget struct {
	Selector     string        `yaml:"selector"`
	RevealClass  string        `yaml:"reveal_class"`
	StorageKey   string        `yaml:"storage_key"`
	RevealDelay  time.Duration `yaml:"reveal_delay"`
	PollInterval time.Duration `yaml:"poll_interval"`
	CloseClass   string        `yaml:"close_class"`
	CloseLabel   string        `yaml:"close_label"`
}

// Default returns the profile of the production landing page.
func Default() *Profile {
	return &Profile{
		HomeClass:     "home",
		SocialDomains: []string{"facebook", "instagram"},
		BookingDomain: "dm.pcols.com",
		HeroImages: []string{
			".elementor-element-c2fb0be img",
			`.elementor-widget-image img[src*="home-image1a"]`,
		},
		HeroContainer: ".elementor-element-71dcd21 .elementor-widget-image",
		CTAButtons: []string{
			"#health_right .yellow-btn .elementor-button",
			".elementor-element-1afbc76 .elementor-button",
		},
		HeroColumn: "#health_right",
		HeroMain:   "#health_main",
		Widget: Widget{
			Selector:     ".zd-plugin",
			RevealClass:  "zd-delayed-show",
			StorageKey:   "sams_zocdoc_dismissed",
			RevealDelay:  5 * time.Second,
			PollInterval: 500 * time.Millisecond,
			CloseClass:   "sams-zocdoc-close",
			CloseLabel:   "Close booking widget",
		},
	}
}

// Load reads a YAML profile from path on top of Default.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Profile, error) {
	p := Default()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	p.normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) normalize() {
	p.HomeClass = strings.TrimSpace(p.HomeClass)
	p.BookingDomain = strings.TrimSpace(p.BookingDomain)
	p.Widget.Selector = strings.TrimSpace(p.Widget.Selector)
	p.SocialDomains = compact(p.SocialDomains)
	p.HeroImages = compact(p.HeroImages)
	p.CTAButtons = compact(p.CTAButtons)
	p.ExtraCampaigns = compact(p.ExtraCampaigns)
}

// Characters that would break out of a selector list, a rule block or the
// <style> element the rules are rendered into.
const (
	selectorForbidden = "<{};"
	classForbidden    = " \t\n.#<>{};\"'"
	domainForbidden   = " \t\n<>\"'\\"
)

// Validate rejects profiles the rules and client script cannot work with.
func (p *Profile) Validate() error {
	var errs []error
	if p.HomeClass == "" {
		errs = append(errs, errors.New("home_class is required"))
	}
	for _, c := range []struct{ name, value string }{
		{"home_class", p.HomeClass},
		{"widget.reveal_class", p.Widget.RevealClass},
		{"widget.close_class", p.Widget.CloseClass},
	} {
		if strings.ContainsAny(c.value, classForbidden) {
			errs = append(errs, fmt.Errorf("%s %q must be a single class name", c.name, c.value))
		}
	}
	for _, sel := range []struct {
		name   string
		values []string
	}{
		{"hero_images", p.HeroImages},
		{"hero_container", []string{p.HeroContainer}},
		{"cta_buttons", p.CTAButtons},
		{"hero_column", []string{p.HeroColumn}},
		{"hero_main", []string{p.HeroMain}},
		{"widget.selector", []string{p.Widget.Selector}},
	} {
		for _, v := range sel.values {
			if strings.ContainsAny(v, selectorForbidden) {
				errs = append(errs, fmt.Errorf("%s %q: selectors must not contain any of %q", sel.name, v, selectorForbidden))
			}
		}
	}
	for _, d := range append([]string{p.BookingDomain}, p.SocialDomains...) {
		if strings.ContainsAny(d, domainForbidden) {
			errs = append(errs, fmt.Errorf("link pattern %q must not contain spaces, quotes or markup", d))
		}
	}
	if p.Widget.Selector == "" {
		errs = append(errs, errors.New("widget.selector is required"))
	}
	if p.Widget.StorageKey == "" {
		errs = append(errs, errors.New("widget.storage_key is required"))
	}
	if p.Widget.RevealDelay < 0 {
		errs = append(errs, errors.New("widget.reveal_delay must not be negative"))
	}
	if p.Widget.PollInterval <= 0 {
		errs = append(errs, errors.New("widget.poll_interval must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid profile: %w", errors.Join(errs...))
	}
	return nil
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
