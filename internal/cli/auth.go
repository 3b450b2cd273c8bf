package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// addAuthCommands adds authentication commands.
func addAuthCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newLoginCmd(app))
	rootCmd.AddCommand(newLogoutCmd(app))
}

func newLoginCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to Kite Connect",
		Long: `Login to Kite Connect and save the day's access token.

If password and TOTP secret are configured in credentials.toml the login is
automatic. Otherwise open the printed URL, sign in, and pass the
request_token from the redirect with --request-token.`,
		Example: `  trader login
  trader login --request-token <token>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			kite, err := app.Kite()
			if err != nil {
				return err
			}

			if token, _ := cmd.Flags().GetString("request-token"); token != "" {
				if err := kite.CompleteLogin(ctx, token); err != nil {
					output.Error("Login failed: %v", err)
					return err
				}
				output.Success("Login successful")
				return nil
			}

			if err := kite.Login(ctx); err != nil {
				output.Error("Login failed: %v", err)
				output.Info("Open %s and rerun with --request-token", kite.LoginURL())
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]bool{"authenticated": true})
			}
			output.Success("Login successful")
			return nil
		},
	}

	cmd.Flags().String("request-token", "", "request token from the Kite login redirect")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Invalidate the session and remove the saved token",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			kite, err := app.Kite()
			if err != nil {
				return err
			}
			if err := kite.Logout(cmd.Context()); err != nil {
				output.Error("Logout failed: %v", err)
				return err
			}
			output.Success("Logged out")
			return nil
		},
	}
}
