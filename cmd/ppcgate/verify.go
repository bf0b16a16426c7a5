package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"ppcgate/internal/audit"
	"ppcgate/internal/browsercheck"
	"ppcgate/internal/campaign"
	"ppcgate/internal/profile"
)

var verifyFlags struct {
	settle  time.Duration
	timeout time.Duration
	mobile  bool
}

var verifyCmd = &cobra.Command{
	Use:   "verify URL",
	Short: "Load a proxied page in headless Chrome and report its state",
	Long: `Opens URL (normally the proxy's own address) in headless Chrome, waits for
the page to settle and prints the body classes, the injected elements, the
booking widget state and the computed visibility of the key elements.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := profile.NewStore(profilePath, logger)
		if err != nil {
			return err
		}
		checker := browsercheck.New(logger)
		defer checker.Close()

		opt := browsercheck.Options{
			Viewport: audit.Desktop,
			Settle:   verifyFlags.settle,
			Timeout:  verifyFlags.timeout,
			Probes:   browsercheck.Probes(store.Current()),
		}
		if verifyFlags.mobile {
			opt.Viewport = audit.Mobile
			opt.Mobile = true
		}
		res, err := checker.Verify(cmd.Context(), args[0], opt)
		if err != nil {
			return err
		}
		return printVerify(cmd.Context(), cmd.OutOrStdout(), res)
	},
}

func init() {
	verifyCmd.Flags().DurationVar(&verifyFlags.settle, "settle", 6*time.Second, "wait after load before reading the page")
	verifyCmd.Flags().DurationVar(&verifyFlags.timeout, "timeout", 45*time.Second, "overall browser timeout")
	verifyCmd.Flags().BoolVar(&verifyFlags.mobile, "mobile", false, "emulate a phone")
}

func printVerify(_ context.Context, w io.Writer, res *browsercheck.Result) error {
	out := struct {
		*browsercheck.Result
		Width    int  `json:"width"`
		Campaign bool `json:"campaign"`
	}{res, res.Viewport.Width, res.HasClass(campaign.MarkerClass)}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	return nil
}
