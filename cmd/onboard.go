package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/ducth/stallbot/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive first-run setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard()
		},
	}
}

func runOnboard() error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	adminChat := ""
	if cfg.Telegram.AdminChatID != 0 {
		adminChat = strconv.FormatInt(cfg.Telegram.AdminChatID, 10)
	}
	quiet := time.Duration(cfg.Pipeline.QuietPeriod).String()
	headless := cfg.Browser.Headless

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Data directory").
				Description("Where the database, cookies, and meetup log live.").
				Value(&cfg.DataDir),
			huh.NewInput().
				Title("Timezone").
				Description("IANA zone used for prompts and the meetup log.").
				Value(&cfg.Timezone),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram admin chat ID").
				Description("Your chat with the bot. Send /start to the bot and check the logs if unsure.").
				Value(&adminChat).
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					_, err := strconv.ParseInt(s, 10, 64)
					return err
				}),
			huh.NewInput().
				Title("Quiet period").
				Description("How long a buyer must stay quiet before I reply (e.g. 3s).").
				Value(&quiet).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
			huh.NewConfirm().
				Title("Run browser headless?").
				Value(&headless),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("onboard form: %w", err)
	}

	if adminChat != "" {
		id, _ := strconv.ParseInt(adminChat, 10, 64)
		cfg.Telegram.AdminChatID = id
	}
	if q, err := time.ParseDuration(quiet); err == nil {
		cfg.Pipeline.QuietPeriod = config.Duration(q)
	}
	cfg.Browser.Headless = headless

	if err := cfg.Save(cfgPath); err != nil {
		return err
	}

	fmt.Printf("Config written to %s\n\n", cfgPath)
	fmt.Println("Secrets are read from the environment, never the config file:")
	fmt.Println("  export STALLBOT_ENGINE_API_KEY=...")
	fmt.Println("  export STALLBOT_TELEGRAM_TOKEN=...")
	fmt.Println()
	fmt.Println("Next: `stallbot login` to save marketplace cookies, then `stallbot run`.")
	if f, err := os.Stat(cfgPath); err == nil && f.Mode().Perm()&0o077 != 0 {
		_ = os.Chmod(cfgPath, 0o600)
	}
	return nil
}
