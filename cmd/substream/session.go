package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/guarzo/substream/common"
)

type sessionView struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	Valid        bool      `json:"valid"`
}

func (c *cli) sessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or manage the stored OAuth session",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the stored session with tokens redacted",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return c.printSession()
			},
		},
		&cobra.Command{
			Use:   "refresh",
			Short: "Force a refresh of the access token",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				current, _ := c.app.Store.AccessToken()
				out := c.app.Refresher.RefreshAfterRejection(cmd.Context(), current)
				if !out.Success() {
					return fmt.Errorf("refresh failed (status %d): %w", out.StatusCode, out.Err)
				}
				return c.printSession()
			},
		},
		&cobra.Command{
			Use:   "token",
			Short: "Print a valid access token, refreshing it if needed",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return c.printToken()
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Discard the stored session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := c.app.Store.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(c.out, "session cleared")
				return nil
			},
		},
	)
	return cmd
}

func (c *cli) printSession() error {
	sess := c.app.Store.Snapshot()
	view := sessionView{
		AccessToken:  common.Redact(sess.AccessToken),
		RefreshToken: common.Redact(sess.RefreshToken),
		ExpiresAt:    sess.ExpiresAt,
		Valid:        c.app.Store.IsValid(),
	}
	if c.asJSON {
		return c.printJSON(view)
	}
	fmt.Fprintf(c.out, "access token:  %s\nrefresh token: %s\n", view.AccessToken, view.RefreshToken)
	if !view.ExpiresAt.IsZero() {
		fmt.Fprintf(c.out, "expires at:    %s\n", view.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Fprintf(c.out, "valid:         %t\n", view.Valid)
	return nil
}

type tokenView struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Expiry      time.Time `json:"expiry,omitempty"`
}

func (c *cli) printToken() error {
	tok, err := c.app.TokenSource().Token()
	if err != nil {
		return fmt.Errorf("obtain access token: %w", err)
	}
	if c.asJSON {
		return c.printJSON(tokenView{AccessToken: tok.AccessToken, TokenType: tok.Type(), Expiry: tok.Expiry})
	}
	fmt.Fprintln(c.out, tok.AccessToken)
	return nil
}
