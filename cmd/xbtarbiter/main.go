package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dankeder/xbtarbiter/api"
	"github.com/dankeder/xbtarbiter/internal/config"
	"github.com/dankeder/xbtarbiter/pkg/arbiter"
	"github.com/dankeder/xbtarbiter/pkg/forex"
	"github.com/dankeder/xbtarbiter/pkg/market"
	"github.com/dankeder/xbtarbiter/pkg/market/bitstamp"
	"github.com/dankeder/xbtarbiter/pkg/market/coinbase"
	"github.com/dankeder/xbtarbiter/pkg/market/kraken"
)

var knownMarkets = []string{"bitstamp", "kraken", "coinbase"}

var (
	cfgFile     string
	marketsFlag string
	logger      *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "xbtarbiter",
		Short: "XBT exchange arbiter",
		Long:  `Compares prices across cryptocurrency exchanges and trades matched buy/sell pairs when a fee-aware profit opportunity exists`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.xbtarbiter/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&marketsFlag, "markets", "all", "comma-separated list of markets to use")

	rootCmd.AddCommand(balanceCommand())
	rootCmd.AddCommand(pricesCommand())
	rootCmd.AddCommand(ordersCommand())
	rootCmd.AddCommand(tradingCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func balanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Print account balance for each market",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			_, markets, err := setup(ctx)
			if err != nil {
				return err
			}
			printBalances(markets)
			return nil
		},
	}
}

func pricesCommand() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Print current highest-bid and lowest-ask prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			_, markets, err := setup(ctx)
			if err != nil {
				return err
			}
			if watch {
				return watchPrices(ctx)
			}
			return printPrices(ctx, markets)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "stream live prices over websocket")
	return cmd
}

func ordersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "Print open orders for each market",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			_, markets, err := setup(ctx)
			if err != nil {
				return err
			}
			return printOpenOrders(ctx, markets)
		},
	}
}

func tradingCommand() *cobra.Command {
	var (
		dryRun    bool
		noConfirm bool
		minProfit string
		maxVolume string
	)
	cmd := &cobra.Command{
		Use:   "trading",
		Short: "Start continuous trading",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, markets, err := setup(ctx)
			if err != nil {
				return err
			}
			if len(markets) < 2 {
				return fmt.Errorf("trading requires at least 2 connected markets, have %d", len(markets))
			}

			minProfitDec, err := decimal.NewFromString(minProfit)
			if err != nil {
				return fmt.Errorf("invalid --min-profit %q: %w", minProfit, err)
			}
			if minProfitDec.IsNegative() {
				return fmt.Errorf("value of --min-profit must be greater than or equal to 0")
			}
			maxVolumeDec, err := decimal.NewFromString(maxVolume)
			if err != nil {
				return fmt.Errorf("invalid --max-volume %q: %w", maxVolume, err)
			}
			if maxVolumeDec.LessThan(cfg.MinTradeVolume()) {
				return fmt.Errorf("value of --max-volume must be greater than or equal to %s XBT", cfg.MinTradeVolume())
			}

			tradeLog, tradeLogFile, err := arbiter.OpenTradeLog(cfg.Trading.TradeLogFile)
			if err != nil {
				return err
			}
			defer tradeLogFile.Close()

			if dryRun {
				printBanner("DRY RUN trading (no real trades will be performed)")
			}
			if noConfirm {
				printBanner("AUTOMATIC TRADING - no trade confirmations")
			}
			fmt.Printf("%s\nMax volume is %s XBT\n%s\n\n",
				strings.Repeat("-", 80), maxVolumeDec, strings.Repeat("-", 80))

			var confirm arbiter.ConfirmFunc
			if !noConfirm {
				confirm = promptConfirm(os.Stdin, os.Stdout)
			}

			executor := arbiter.NewExecutor(arbiter.ExecutorConfig{
				MinTradeVolume:         cfg.MinTradeVolume(),
				DryRun:                 dryRun,
				PollInterval:           cfg.OrderPollInterval(),
				CancelSiblingOnFailure: cfg.Trading.CancelSiblingOnFailure,
			}, tradeLog, confirm, logger, os.Stdout)

			scanner := arbiter.NewScanner(markets, logger)
			loop := arbiter.NewLoop(scanner, executor, arbiter.LoopConfig{
				MinProfit:   minProfitDec,
				MaxVolume:   maxVolumeDec,
				AutoConfirm: noConfirm,
				CycleDelay:  cfg.CycleDelay(),
			}, logger, os.Stdout, os.Stdin)

			if cfg.Server.Enabled {
				apiServer := api.NewServer(loop, logger, fmt.Sprintf("%d", cfg.Server.Port))
				go func() {
					if err := apiServer.Start(); err != nil {
						logger.WithError(err).Error("Status API server failed")
					}
				}()
			}

			return loop.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "dry-run operation, do not place orders")
	cmd.Flags().BoolVar(&noConfirm, "no-confirm", false, "trade automatically, do not confirm trades")
	cmd.Flags().StringVar(&minProfit, "min-profit", "0.0", "min profit to make a trade (in USD)")
	cmd.Flags().StringVar(&maxVolume, "max-volume", "0.01", "max volume to trade in one order (in XBT)")
	return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// setup loads configuration, initializes logging and connects the selected
// markets. A market that fails to connect is reported and excluded.
func setup(ctx context.Context) (*config.Config, []market.Adapter, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	logger = logrus.New()
	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	selected, err := selectedMarkets(marketsFlag)
	if err != nil {
		return nil, nil, err
	}

	markets, err := connect(ctx, cfg, selected)
	if err != nil {
		return nil, nil, err
	}
	return cfg, markets, nil
}

func selectedMarkets(flag string) (map[string]bool, error) {
	selected := make(map[string]bool)
	if flag == "all" {
		for _, name := range knownMarkets {
			selected[name] = true
		}
		return selected, nil
	}
	for _, name := range strings.Split(flag, ",") {
		name = strings.TrimSpace(name)
		known := false
		for _, k := range knownMarkets {
			if name == k {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown market: %s", name)
		}
		selected[name] = true
	}
	return selected, nil
}

// connect builds adapters for the selected markets in declared order. The
// order is what makes opportunity selection tie-breaks deterministic.
func connect(ctx context.Context, cfg *config.Config, selected map[string]bool) ([]market.Adapter, error) {
	var markets []market.Adapter

	if selected["bitstamp"] && cfg.Markets.Bitstamp.Enabled {
		fmt.Println("Connecting to Bitstamp ...")
		m, err := bitstamp.New(ctx, bitstamp.Config{
			ClientID: cfg.Markets.Bitstamp.ClientID,
			Key:      cfg.Markets.Bitstamp.Key,
			Secret:   cfg.Markets.Bitstamp.Secret,
		}, logger)
		if err != nil {
			fmt.Printf("Failed to connect: %v\n", err)
		} else {
			markets = append(markets, m)
		}
	}

	if selected["kraken"] && cfg.Markets.Kraken.Enabled {
		fmt.Println("Connecting to Kraken ...")
		rate, err := forex.NewProvider(cfg.Forex.EURUSDEndpoint).EURUSD(ctx)
		if err != nil {
			fmt.Printf("Failed to connect: %v\n", err)
		} else {
			m, err := kraken.New(ctx, kraken.Config{
				Key:        cfg.Markets.Kraken.Key,
				Secret:     cfg.Markets.Kraken.Secret,
				EURUSDRate: rate,
			}, logger)
			if err != nil {
				fmt.Printf("Failed to connect: %v\n", err)
			} else {
				markets = append(markets, m)
			}
		}
	}

	if selected["coinbase"] && cfg.Markets.Coinbase.Enabled {
		fmt.Println("Connecting to Coinbase ...")
		m, err := coinbase.New(ctx, coinbase.Config{
			APIKeyName:    cfg.Markets.Coinbase.APIKeyName,
			PrivateKeyPEM: cfg.Markets.Coinbase.PrivateKeyPEM,
		}, logger)
		if err != nil {
			fmt.Printf("Failed to connect: %v\n", err)
		} else {
			markets = append(markets, m)
		}
	}

	fmt.Println()
	if len(markets) == 0 {
		return nil, fmt.Errorf("no markets connected")
	}
	return markets, nil
}

func printBalances(markets []market.Adapter) {
	totalXBT := decimal.Zero
	totalUSD := decimal.Zero
	for _, m := range markets {
		fmt.Printf("%-20s  %s XBT    %s USD    [fee %s%%]\n",
			m.Name(), m.BalanceXBT().StringFixed(8), m.BalanceUSD().StringFixed(5), m.TradeFee())
		totalXBT = totalXBT.Add(m.BalanceXBT())
		totalUSD = totalUSD.Add(m.BalanceUSD())
	}
	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("%22s%s XBT    %s USD\n", "", totalXBT.StringFixed(8), totalUSD.StringFixed(5))
}

func printPrices(ctx context.Context, markets []market.Adapter) error {
	for _, m := range markets {
		if err := m.RefreshOrderBook(ctx); err != nil {
			return err
		}
		bid := m.HighestBid()
		ask := m.LowestAsk()
		fmt.Printf("%-20s  BID %s @ %s USD    ASK %s @ %s USD\n",
			m.Name(),
			bid.Volume.StringFixed(8), bid.Price.StringFixed(5),
			ask.Volume.StringFixed(8), ask.Price.StringFixed(5))
	}
	return nil
}

func watchPrices(ctx context.Context) error {
	stream := bitstamp.NewStream("", func(update bitstamp.BookUpdate) {
		fmt.Printf("%-20s  BID %s @ %s USD    ASK %s @ %s USD\n",
			"bitstamp.net",
			update.HighestBid.Volume.StringFixed(8), update.HighestBid.Price.StringFixed(5),
			update.LowestAsk.Volume.StringFixed(8), update.LowestAsk.Price.StringFixed(5))
	}, logger)
	if err := stream.Connect(ctx); err != nil {
		return err
	}
	defer stream.Close()
	<-ctx.Done()
	return nil
}

func printOpenOrders(ctx context.Context, markets []market.Adapter) error {
	for _, m := range markets {
		if err := m.RefreshOrders(ctx); err != nil {
			return err
		}
		fmt.Printf("%s orders:\n", m.Name())
		orders := m.OpenOrders()
		if len(orders) == 0 {
			fmt.Println("  [none]")
			continue
		}
		for _, o := range orders {
			fmt.Printf("  %s: %s %s XBT @ %s USD\n",
				o.ID, o.Type, o.Volume.StringFixed(8), o.Price.StringFixed(5))
		}
	}
	return nil
}

func promptConfirm(in *os.File, out *os.File) arbiter.ConfirmFunc {
	reader := bufio.NewReader(in)
	return func(opp *arbiter.Opportunity) (bool, error) {
		fmt.Fprintf(out, "Do you want to proceed with the trade? [Y/n] ")
		answer, err := reader.ReadString('\n')
		if err != nil {
			return false, err
		}
		answer = strings.TrimSpace(answer)
		return answer == "" || strings.EqualFold(answer, "y"), nil
	}
}

func printBanner(text string) {
	line := strings.Repeat("=", 80)
	fmt.Printf("%s\n%s\n%s\n\n", line, text, line)
}
