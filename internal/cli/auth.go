package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nifty-options-trader/pkg/utils"
)

// addAuthCommands adds authentication commands.
func addAuthCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newLoginCmd(app))
	rootCmd.AddCommand(newAuthStatusCmd(app))
}

func newLoginCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to Zerodha Kite Connect",
		Long: `Login to Zerodha Kite Connect via the OAuth flow.

Opens the Kite login page in a browser. After logging in you are
redirected to a URL carrying a request_token parameter; paste that
token back here to complete the session.`,
		Example: `  trader login
  trader login --token=<request_token>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			if app.Zerodha == nil {
				output.Error("Broker not configured. Please check your credentials.toml")
				return fmt.Errorf("broker not configured")
			}

			if app.Zerodha.IsAuthenticated() {
				output.Success("✓ Already logged in")
				showSessionExpiry(output)
				return nil
			}

			token, _ := cmd.Flags().GetString("token")
			if token != "" {
				return completeLogin(ctx, app, output, token)
			}

			loginURL := app.Zerodha.LoginURL()

			output.Info("Opening Zerodha login page...")
			output.Println()
			output.Bold("Login URL:")
			output.Println(loginURL)
			output.Println()

			if err := openURL(loginURL); err != nil {
				output.Warning("Could not open browser automatically")
			}

			output.Info("After logging in, you'll be redirected to a URL like:")
			output.Dim("  https://your-redirect-url.com/?request_token=XXXXXX&status=success")
			output.Println()
			output.Bold("Paste the request_token value here:")

			reader := bufio.NewReader(os.Stdin)
			fmt.Print("> ")
			inputToken, _ := reader.ReadString('\n')
			inputToken = strings.TrimSpace(inputToken)

			if inputToken == "" {
				output.Error("No token provided")
				return fmt.Errorf("no token provided")
			}

			return completeLogin(ctx, app, output, inputToken)
		},
	}

	cmd.Flags().String("token", "", "Request token from redirect URL")

	return cmd
}

func completeLogin(ctx context.Context, app *App, output *Output, token string) error {
	output.Info("Completing login with token...")

	if err := app.Zerodha.CompleteLogin(ctx, token); err != nil {
		output.Error("Login failed: %v", err)
		return err
	}

	output.Success("✓ Login successful!")
	showSessionExpiry(output)
	return nil
}

// showSessionExpiry prints when the Kite session lapses. Sessions
// expire at 6 AM IST the next day.
func showSessionExpiry(output *Output) {
	now := time.Now().In(utils.IndiaLocation)
	expiry := time.Date(now.Year(), now.Month(), now.Day()+1, 6, 0, 0, 0, utils.IndiaLocation)
	if now.Hour() < 6 {
		expiry = time.Date(now.Year(), now.Month(), now.Day(), 6, 0, 0, 0, utils.IndiaLocation)
	}

	output.Println()
	output.Bold("Session")
	output.Printf("  Expires: %s (%s remaining)\n",
		expiry.Format("02 Jan 2006, 03:04 PM"),
		FormatDuration(expiry.Sub(now)))
}

func openURL(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}
	return cmd.Start()
}

func newAuthStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "auth-status",
		Short: "Check authentication status",
		Long:  "Display current authentication status and session expiry.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Zerodha == nil {
				output.Error("Broker not configured")
				return nil
			}

			if !app.Zerodha.IsAuthenticated() {
				output.Warning("Not authenticated")
				output.Println()
				output.Info("Run 'trader login' to authenticate")
				return nil
			}

			output.Success("✓ Authenticated")

			// A cheap API call verifies the session is still live.
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if _, err := app.Zerodha.GetPositions(ctx); err != nil {
				output.Warning("Session may be expired: %v", err)
				output.Info("Run 'trader login' to re-authenticate")
				return nil
			}

			showSessionExpiry(output)
			return nil
		},
	}
}
