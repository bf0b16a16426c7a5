// Package styles defines the front-page style rules. Each rule is
// independent of the others and emits its own <style> block; every
// declaration carries !important so it wins over the theme.
package styles

import (
	"github.com/aymerick/douceur/css"

	"ppcgate/internal/campaign"
	"ppcgate/internal/inject"
	"ppcgate/internal/profile"
)

// Rule names, also used as injector names.
const (
	RuleSocialLinks    = "hide-social-links"
	RuleScheduleButton = "hide-schedule-button"
	RuleMenuToggle     = "hide-menu-toggle"
	RulePhoneLink      = "phone-link"
	RuleHeroFocalPoint = "hero-focal-point"
	RuleBookingCTA     = "booking-cta"
	RuleWidget         = "widget-container"
	RuleHeaderLayout   = "header-layout"
)

// Rule is one named stylesheet builder.
type Rule struct {
	Name  string
	Build func(ctx inject.Context) *css.Stylesheet
}

// Rules returns every rule in registration order.
func Rules() []Rule {
	return []Rule{
		{RuleSocialLinks, socialLinks},
		{RuleScheduleButton, scheduleButton},
		{RuleMenuToggle, menuToggle},
		{RulePhoneLink, phoneLink},
		{RuleHeroFocalPoint, heroFocalPoint},
		{RuleBookingCTA, bookingCTA},
		{RuleWidget, widgetContainer},
		{RuleHeaderLayout, headerLayout},
	}
}

// Injectors wraps Rules as head-stage injectors.
func Injectors() []inject.Injector {
	rules := Rules()
	out := make([]inject.Injector, 0, len(rules))
	for _, r := range rules {
		out = append(out, inject.Style(r.Name, r.Build))
	}
	return out
}

func prof(ctx inject.Context) *profile.Profile {
	if ctx.Profile != nil {
		return ctx.Profile
	}
	return profile.Default()
}

func socialLinks(ctx inject.Context) *css.Stylesheet {
	p := prof(ctx)
	if len(p.SocialDomains) == 0 {
		return nil
	}
	return sheet(
		rule(scope(p.HomeClass, HrefContains(".header-mobile ", p.SocialDomains...)...),
			important("display", "none")),
	)
}

func scheduleButton(ctx inject.Context) *css.Stylesheet {
	p := prof(ctx)
	if p.BookingDomain == "" {
		return nil
	}
	return sheet(
		rule(scope(p.HomeClass, HrefContains(".menu-btn > ", p.BookingDomain)...),
			important("display", "none")),
	)
}

// menuToggle hides the hamburger on narrow viewports, and on every viewport
// for campaign traffic: through the explicit flag when the proxy saw the
// campaign parameters, and through the body marker class otherwise.
func menuToggle(ctx inject.Context) *css.Stylesheet {
	p := prof(ctx)
	home := p.HomeClass
	out := sheet(
		maxWidth(MenuBreakpoint,
			rule(scope(home, ".menu-toggle", "#site-navigation .menu-toggle"),
				important("display", "none"),
				important("visibility", "hidden")),
		),
		rule([]string{"body." + home + "." + campaign.MarkerClass + " .menu-toggle"},
			important("display", "none")),
	)
	if ctx.Campaign {
		out.Rules = append(out.Rules,
			rule(scope(home, ".menu-toggle"), important("display", "none")))
	}
	return out
}

func phoneLink(ctx inject.Context) *css.Stylesheet {
	home := prof(ctx).HomeClass
	tel := `.header-mobile a[href^="tel:"]`
	return sheet(
		maxWidth(NarrowBreakpoint,
			rule(scope(home, tel),
				important("font-size", "24px"),
				important("font-weight", "600"),
				important("padding", "10px 15px"),
				important("display", "inline-block"),
				important("text-align", "right"),
				important("width", "100%"),
				important("margin-bottom", "10px")),
			rule(scope(home, tel+":hover"),
				important("text-decoration", "underline")),
		),
		maxWidth(NarrowerBreakpoint,
			rule(scope(home, tel), important("font-size", "22px")),
		),
	)
}

func heroFocalPoint(ctx inject.Context) *css.Stylesheet {
	p := prof(ctx)
	if len(p.HeroImages) == 0 {
		return nil
	}
	narrow := []*css.Rule{
		rule(scope(p.HomeClass, p.HeroImages...),
			important("object-position", "center right"),
			important("object-fit", "cover")),
	}
	if p.HeroContainer != "" {
		narrow = append(narrow, rule(scope(p.HomeClass, p.HeroContainer),
			important("overflow", "hidden")))
	}
	return sheet(
		maxWidth(NarrowBreakpoint, narrow...),
		maxWidth(NarrowerBreakpoint,
			rule(scope(p.HomeClass, p.HeroImages...),
				important("object-position", "70% center")),
		),
	)
}

func bookingCTA(ctx inject.Context) *css.Stylesheet {
	p := prof(ctx)
	if len(p.CTAButtons) == 0 {
		return nil
	}
	narrow := []*css.Rule{
		rule(scope(p.HomeClass, p.CTAButtons...),
			important("font-size", "20px"),
			important("padding", "18px 30px"),
			important("width", "100%"),
			important("max-width", "100%"),
			important("display", "block"),
			important("text-align", "center"),
			important("margin", "20px 0"),
			important("font-weight", "600")),
	}
	if p.HeroMain != "" {
		narrow = append(narrow, rule(scope(p.HomeClass, p.HeroMain),
			important("min-height", "auto")))
	}
	if p.HeroColumn != "" {
		narrow = append(narrow, rule(scope(p.HomeClass, p.HeroColumn),
			important("order", "-1")))
	}
	return sheet(maxWidth(NarrowBreakpoint, narrow...))
}

func widgetContainer(ctx inject.Context) *css.Stylesheet {
	p := prof(ctx)
	w := p.Widget
	return sheet(
		rule(scope(p.HomeClass, w.Selector),
			important("opacity", "0"),
			important("transition", "opacity 0.3s ease-in")),
		rule(scope(p.HomeClass, w.Selector+"."+w.RevealClass),
			important("opacity", "1")),
		maxWidth(NarrowBreakpoint,
			rule(scope(p.HomeClass, w.Selector+" img"),
				important("max-width", "150px"),
				important("height", "auto")),
			rule(scope(p.HomeClass, w.Selector),
				important("position", "fixed"),
				important("bottom", "20px"),
				important("right", "20px"),
				important("z-index", "9998"),
				important("background", "rgba(255, 255, 255, 0.95)"),
				important("padding", "10px"),
				important("border-radius", "8px"),
				important("box-shadow", "0 4px 12px rgba(0, 0, 0, 0.15)")),
		),
	)
}

func headerLayout(ctx inject.Context) *css.Stylesheet {
	home := prof(ctx).HomeClass
	return sheet(
		maxWidth(NarrowBreakpoint,
			rule(scope(home, ".header-mobile"),
				important("display", "flex"),
				important("flex-direction", "column"),
				important("align-items", "flex-end"),
				important("gap", "10px"),
				important("padding", "10px 0")),
			rule(scope(home, ".inside-header"),
				important("display", "flex"),
				important("justify-content", "space-between"),
				important("align-items", "center"),
				important("flex-wrap", "wrap")),
			rule(scope(home, ".site-logo"), important("flex", "0 0 auto")),
			rule(scope(home, ".menu-btn"), important("flex", "0 0 auto")),
			rule(scope(home, ".inside-header > *"), important("margin", "5px 0")),
		),
	)
}
