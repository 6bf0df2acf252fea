package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ducth/stallbot/internal/browser"
	"github.com/ducth/stallbot/internal/config"
)

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Open a visible browser to log in and save cookies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}

			// Login is always interactive: force a visible window.
			browserCfg := cfg.Browser
			browserCfg.Headless = false

			sess := browser.NewSession(browserCfg, cfg.CookiesPath())
			if err := sess.Start(context.Background()); err != nil {
				return err
			}
			defer sess.Close()

			fmt.Println("A browser window is open. Log in to messenger.com,")
			fmt.Println("then come back here and press Enter to save the session.")
			bufio.NewReader(os.Stdin).ReadString('\n')

			if err := sess.SaveCookies(); err != nil {
				return err
			}
			fmt.Printf("Session saved to %s. You can now run `stallbot run`.\n", cfg.CookiesPath())
			return nil
		},
	}
}
