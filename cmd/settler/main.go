package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mantraapp1/23-oct-mantra-sub003/internal/config"
	"github.com/mantraapp1/23-oct-mantra-sub003/internal/http_api"
	"github.com/mantraapp1/23-oct-mantra-sub003/internal/notifier"
	"github.com/mantraapp1/23-oct-mantra-sub003/internal/rail"
	"github.com/mantraapp1/23-oct-mantra-sub003/internal/repository"
	"github.com/mantraapp1/23-oct-mantra-sub003/internal/settlement"
	"github.com/mantraapp1/23-oct-mantra-sub003/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "settler",
		Usage: "Settler pays authors for ad views and settles approved withdrawals",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "rail-gateway-url", Aliases: []string{"g"}, Usage: "Payment rail gateway URL"},
			&cli.StringFlag{Name: "funding-address", Aliases: []string{"f"}, Usage: "Funding account address"},
			&cli.IntFlag{Name: "api-port", Aliases: []string{"a"}, Usage: "HTTP API port"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("rail-gateway-url") {
		cfg.RailGatewayURL = c.String("rail-gateway-url")
	}
	if c.IsSet("funding-address") {
		cfg.FundingAddress = c.String("funding-address")
	}
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}

	// Flag overrides bypassed the load-time validation
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %v", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer log.Sync()

	// Initialize database
	db, err := repository.NewPostgres(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize the rail client and refuse to start against the wrong network
	railClient := rail.NewClient(cfg, log)
	if err := railClient.VerifyNetwork(ctx); err != nil {
		return fmt.Errorf("failed to verify rail network: %v", err)
	}

	// Operator alert channels; a misconfigured channel is skipped, not fatal
	var channels []notifier.Channel
	if cfg.TelegramBotToken != "" && cfg.TelegramOperatorChatID != 0 {
		telegram, err := notifier.NewTelegramChannel(cfg.TelegramBotToken, cfg.TelegramOperatorChatID, log)
		if err != nil {
			log.Warnw("telegram alerts disabled", "error", err)
		} else {
			channels = append(channels, telegram)
		}
	}
	if cfg.OperatorEmail != "" {
		channels = append(channels, notifier.NewEmailChannel(
			cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPSender, cfg.OperatorEmail, log))
	}
	notify := notifier.NewNotifier(db, log, channels...)

	// Settlement engines
	distribution := settlement.NewDistribution(db, railClient, notify, log, cfg)
	withdrawals := settlement.NewWithdrawalEngine(db, railClient, notify, log, cfg)
	coordinator := settlement.NewCoordinator(distribution, withdrawals, db, log)

	// API server for manual triggers and run history
	apiServer := http_api.NewHTTPServer(coordinator, log, cfg)
	go apiServer.Start()

	// Run on the interval until a signal arrives
	scheduler := settlement.NewScheduler(coordinator, cfg.RunInterval, cfg.RunTimeBudget, log)
	scheduler.Start(ctx)

	if err := apiServer.Shutdown(); err != nil {
		log.Error("Failed to shut down HTTP server: ", err)
	}
	return nil
}
