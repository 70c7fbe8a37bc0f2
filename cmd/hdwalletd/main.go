// Command hdwalletd is a small reference CLI over the wallet engine,
// grounded on the teacher's migration/cmd/encrypt flag-based tool for
// command shape and on Jasonyou1995-simple-eth-hd-wallet's cobra/viper
// root command for subcommand wiring. It exists to exercise Init and
// CreateReceive (through its init and address subcommands) against a
// FileDB store; it is not itself part of the engine's public API.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"sync"

	"github.com/btcsuite/btclog"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/cobra"

	"github.com/opd-ai/hdwallet/config"
	"github.com/opd-ai/hdwallet/feeestimator"
	"github.com/opd-ai/hdwallet/network"
	"github.com/opd-ai/hdwallet/wallet"
	"github.com/opd-ai/hdwallet/walletdb"
	"github.com/opd-ai/hdwallet/walletlog"
	"github.com/opd-ai/hdwallet/workerpool"
)

var (
	cfgFile    string
	baseDir    string
	passphrase string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hdwalletd",
		Short: "Reference CLI for the HD wallet engine",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file")
	root.PersistentFlags().StringVar(&baseDir, "base", "./hdwallet-data", "base directory for the encrypted file store")
	root.PersistentFlags().StringVar(&passphrase, "passphrase", "", "master key passphrase (optional)")

	root.AddCommand(initCmd(), addressCmd())
	return root
}

// logBackendOnce installs the stdout btclog backend at most once per
// process; repeated buildContext calls (one per cobra RunE) must not stack
// duplicate backends onto walletlog.
var logBackendOnce sync.Once

// installLogger wires a real btclog backend into walletlog, following the
// teacher's btcsuite-style UseLogger convention instead of leaving the
// package's disabled default in place. level is parsed with
// btclog.LevelFromString; an unrecognized level falls back to InfoLevel.
func installLogger(level string) {
	logBackendOnce.Do(func() {
		backend := btclog.NewBackend(os.Stdout)
		logger := backend.Logger("HDWALLET")
		lvl, ok := btclog.LevelFromString(level)
		if !ok {
			lvl = btclog.InfoLevel
		}
		logger.SetLevel(lvl)
		walletlog.UseLogger(logger)
	})
}

func buildContext() (*wallet.Context, *config.EngineConfig, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	installLogger(cfg.LogLevel)

	net, err := networkByName(cfg.Network)
	if err != nil {
		return nil, nil, err
	}

	db, err := walletdb.NewFileDB(baseDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	var pool *workerpool.Pool
	if cfg.SignerConcurrency > 1 {
		pool = workerpool.New(cfg.SignerConcurrency)
	}

	return &wallet.Context{
		DB:      db,
		Network: net,
		Fees:    feeestimator.Static{RatePerKB: btcutil.Amount(cfg.FeeRatePerKB)},
		Pool:    pool,
		Log:     walletlog.Logger(),
	}, cfg, nil
}

func networkByName(name string) (*network.Network, error) {
	switch name {
	case "main":
		return network.Main, nil
	case "testnet3":
		return network.Testnet3, nil
	case "regtest":
		return network.Regtest, nil
	case "simnet":
		return network.Simnet, nil
	default:
		return nil, fmt.Errorf("unknown network %q", name)
	}
}

func initCmd() *cobra.Command {
	var witness bool
	var wid uint32
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a new seed and initialize a wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			wctx, _, err := buildContext()
			if err != nil {
				return err
			}

			seed := make([]byte, 32)
			if _, err := rand.Read(seed); err != nil {
				return fmt.Errorf("generate seed: %w", err)
			}

			w := wallet.New(wctx, wid)
			if err := w.Init(context.Background(), wallet.InitOptions{
				Seed:       seed,
				Passphrase: passphrase,
				Witness:    witness,
			}); err != nil {
				return fmt.Errorf("init wallet: %w", err)
			}

			fmt.Printf("wallet %d initialized: id=%s\n", wid, w.ID())
			return nil
		},
	}
	cmd.Flags().BoolVar(&witness, "witness", true, "use segwit addresses for the default account")
	cmd.Flags().Uint32Var(&wid, "wid", 1, "wallet identifier to register")
	return cmd
}

func addressCmd() *cobra.Command {
	var wid uint32
	var account uint32
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Print the current receive address for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			wctx, cfg, err := buildContext()
			if err != nil {
				return err
			}

			w, err := wallet.Open(context.Background(), wctx, wid)
			if err != nil {
				return fmt.Errorf("open wallet: %w", err)
			}
			if passphrase != "" {
				timeout := cfg.UnlockTimeout
				if timeout == 0 {
					timeout = wallet.DefaultUnlockTimeout
				}
				if err := w.Unlock(passphrase, timeout); err != nil {
					return fmt.Errorf("unlock: %w", err)
				}
			}

			ring, err := w.CreateReceive(context.Background(), account)
			if err != nil {
				return fmt.Errorf("derive receive address: %w", err)
			}
			addr, err := ring.Address(wctx.Network)
			if err != nil {
				return fmt.Errorf("render address: %w", err)
			}
			fmt.Println(addr)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&wid, "wid", 1, "wallet identifier")
	cmd.Flags().Uint32Var(&account, "account", 0, "account index")
	return cmd
}
