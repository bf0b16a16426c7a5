package profile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	p := Default()
	require.NoError(t, p.Validate())
	assert.Equal(t, 5*time.Second, p.Widget.RevealDelay)
	assert.Equal(t, ".zd-plugin", p.Widget.Selector)
	assert.Equal(t, "sams_zocdoc_dismissed", p.Widget.StorageKey)
}

func TestParseOverridesDefaults(t *testing.T) {
	t.Parallel()
	p, err := Parse([]byte(`
booking_domain: book.example.com
widget:
  reveal_delay: 2s
  selector: " .booking-widget "
extra_campaign_params: [msclkid, ""]
`))
	require.NoError(t, err)
	assert.Equal(t, "book.example.com", p.BookingDomain)
	assert.Equal(t, 2*time.Second, p.Widget.RevealDelay)
	assert.Equal(t, ".booking-widget", p.Widget.Selector)
	assert.Equal(t, []string{"msclkid"}, p.ExtraCampaigns)
	// untouched fields keep their defaults
	assert.Equal(t, "home", p.HomeClass)
	assert.Equal(t, "sams_zocdoc_dismissed", p.Widget.StorageKey)
}

func TestParseRejectsInvalid(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"empty home class":   "home_class: ''",
		"selector home":      "home_class: body.home",
		"no widget selector": "widget: {selector: ''}",
		"zero poll":          "widget: {poll_interval: 0s}",
		"bad yaml":           "widget: [",
		"style end in hero":  "hero_main: '#x</style><script>alert(1)</script>'",
		"rule block":         "cta_buttons: ['a { color: red }']",
		"markup in selector": "widget: {selector: '.zd-plugin<'}",
		"quote in domain":    `social_domains: ['face"book']`,
		"markup in domain":   "booking_domain: '</style>'",
		"space reveal class": "widget: {reveal_class: 'a b'}",
	}
	for name, src := range cases {
		_, err := Parse([]byte(src))
		assert.Error(t, err, name)
	}
}

func TestStoreReloadKeepsPreviousOnError(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte("booking_domain: one.example\n"), 0o600))

	s, err := NewStore(path, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, "one.example", s.Current().BookingDomain)
	rev := s.Revision()

	require.NoError(t, os.WriteFile(path, []byte("booking_domain: two.example\n"), 0o600))
	require.NoError(t, s.Reload())
	assert.Equal(t, "two.example", s.Current().BookingDomain)
	assert.Greater(t, s.Revision(), rev)

	require.NoError(t, os.WriteFile(path, []byte("home_class: ''\n"), 0o600))
	assert.Error(t, s.Reload())
	assert.Equal(t, "two.example", s.Current().BookingDomain)
}

func TestStoreWatchPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte("booking_domain: one.example\n"), 0o600))
	s, err := NewStore(path, logrus.New())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Watch(ctx))

	require.NoError(t, os.WriteFile(path, []byte("booking_domain: watched.example\n"), 0o600))
	assert.Eventually(t, func() bool {
		return s.Current().BookingDomain == "watched.example"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStoreWithoutPathUsesDefault(t *testing.T) {
	t.Parallel()
	s, err := NewStore("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), s.Current())
	assert.NoError(t, s.Reload())
	assert.NoError(t, s.Watch(context.Background()))
}
