package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/spf13/cobra"
	"golang.org/x/net/html"

	"ppcgate/internal/audit"
	"ppcgate/internal/browsercheck"
	"ppcgate/internal/campaign"
	"ppcgate/internal/profile"
	"ppcgate/internal/proxy"
)

type auditOptions struct {
	Campaign bool
	JSON     bool
	Timeout  time.Duration
	Profile  *profile.Profile
	Client   *http.Client
}

var auditFlags auditOptions

var auditCmd = &cobra.Command{
	Use:   "audit URL",
	Short: "Rewrite a fetched page offline and check every injected selector",
	Long: `Fetches URL straight from the origin, runs it through the same rewriter the
proxy uses, then reports for a desktop and a mobile viewport which injected
selectors match, and whether the key elements end up hidden.

Exits non-zero when the gate stays closed or a selector does not parse.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := profile.NewStore(profilePath, logger)
		if err != nil {
			return err
		}
		opts := auditFlags
		opts.Profile = store.Current()
		return runAudit(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
	},
}

func init() {
	auditCmd.Flags().BoolVar(&auditFlags.Campaign, "campaign", false, "audit the campaign variant (adds gclid)")
	auditCmd.Flags().BoolVar(&auditFlags.JSON, "json", false, "print findings as JSON")
	auditCmd.Flags().DurationVar(&auditFlags.Timeout, "timeout", 30*time.Second, "fetch timeout")
}

type viewportAudit struct {
	Name     string          `json:"name"`
	Width    int             `json:"width"`
	Findings []findingJSON   `json:"findings"`
	Hidden   map[string]bool `json:"hidden"`
}

type findingJSON struct {
	Injector string `json:"rule"`
	Media    string `json:"media,omitempty"`
	Active   bool   `json:"active"`
	Selector string `json:"selector"`
	Matches  int    `json:"matches"`
	Dynamic  bool   `json:"dynamic,omitempty"`
	Err      string `json:"error,omitempty"`
}

func toJSON(fs []audit.Finding) []findingJSON {
	out := make([]findingJSON, 0, len(fs))
	for _, f := range fs {
		j := findingJSON{
			Injector: f.Injector,
			Media:    f.Media,
			Active:   f.Active,
			Selector: f.Selector,
			Matches:  f.Matches,
			Dynamic:  f.Dynamic,
		}
		if f.Err != nil {
			j.Err = f.Err.Error()
		}
		out = append(out, j)
	}
	return out
}

var errGateClosed = errors.New("gate closed: the page is not the front page")

func runAudit(ctx context.Context, w io.Writer, target string, opts auditOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Profile == nil {
		opts.Profile = profile.Default()
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return fmt.Errorf("audit: bad url %q", target)
	}
	if opts.Campaign {
		q := u.Query()
		q.Set(campaign.Params[0], "audit")
		u.RawQuery = q.Encode()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "ppcgate-audit/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	logger.WithField("url", u.String()).Info("fetch")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("audit: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("audit: fetch: status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("audit: read: %w", err)
	}

	store, err := profile.NewStore("", logger)
	if err != nil {
		return err
	}
	store.Set(opts.Profile)
	rw := proxy.NewRewriter(proxy.RewriterConfig{HomePath: u.Path, Profiles: store, Logger: logger})
	out, oc, err := rw.Bytes(ctx, req, body)
	if err != nil {
		return fmt.Errorf("audit: rewrite: %w", err)
	}
	if !oc.Open {
		return errGateClosed
	}
	doc, err := html.Parse(bytes.NewReader(out))
	if err != nil {
		return fmt.Errorf("audit: parse rewritten page: %w", err)
	}

	runtime := []string{opts.Profile.Widget.RevealClass, campaign.MarkerClass}
	probes := browsercheck.Probes(opts.Profile)
	var results []viewportAudit
	var broken int
	for _, vp := range []struct {
		name string
		vp   audit.Viewport
	}{{"desktop", audit.Desktop}, {"mobile", audit.Mobile}} {
		rep, err := audit.Run(doc, audit.Options{Viewport: vp.vp, RuntimeClasses: runtime})
		if err != nil {
			return err
		}
		audit.SortFindings(rep.Findings)
		broken += len(rep.Errors())
		results = append(results, viewportAudit{
			Name:     vp.name,
			Width:    vp.vp.Width,
			Findings: toJSON(rep.Findings),
			Hidden:   hiddenProbes(doc, vp.vp, probes),
		})
	}

	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		printAudit(w, oc.Campaign, results)
	}
	if broken > 0 {
		return fmt.Errorf("audit: %d selectors failed to parse", broken)
	}
	return nil
}

// hiddenProbes evaluates the static cascade for each probe selector.
func hiddenProbes(doc *html.Node, vp audit.Viewport, probes []string) map[string]bool {
	cascade := audit.NewCascade(doc, vp)
	out := make(map[string]bool, len(probes))
	for _, p := range probes {
		sel, err := cascadia.Compile(p)
		if err != nil {
			continue
		}
		n := cascadia.Query(doc, sel)
		if n == nil {
			continue
		}
		out[p] = cascade.Hidden(n)
	}
	return out
}

func printAudit(w io.Writer, campaignTraffic bool, results []viewportAudit) {
	variant := "organic"
	if campaignTraffic {
		variant = "campaign"
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range results {
		fmt.Fprintf(tw, "== %s %dpx (%s)\n", r.Name, r.Width, variant)
		fmt.Fprintln(tw, "RULE\tMEDIA\tACTIVE\tMATCHES\tSELECTOR")
		for _, f := range r.Findings {
			matches := fmt.Sprint(f.Matches)
			switch {
			case f.Err != "":
				matches = "ERR " + f.Err
			case f.Dynamic && f.Matches == 0:
				matches = "dynamic"
			}
			media := f.Media
			if media == "" {
				media = "all"
			}
			fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\n", f.Injector, media, f.Active, matches, f.Selector)
		}
		if len(r.Hidden) > 0 {
			fmt.Fprintln(tw, "ELEMENT\tHIDDEN")
			for _, p := range sortedKeys(r.Hidden) {
				fmt.Fprintf(tw, "%s\t%v\n", p, r.Hidden[p])
			}
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
