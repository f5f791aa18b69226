package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/pumpmybags/pmb"
	"github.com/pumpmybags/pmb/pkg/signal/extract"
)

func main() {
	// Create signal based context
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, os.Kill)
	go func() {
		select {
		case <-c:
			cancel()
		case <-ctx.Done():
			cancel()
		}
		signal.Stop(c)
	}()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Println(fmt.Errorf("couldn't load .env: %w", err))
	}

	// Launch command
	cmd := newCommand()
	if err := cmd.ParseAndRun(ctx, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func newCommand() *ffcli.Command {
	fs := flag.NewFlagSet("pmb", flag.ExitOnError)

	return &ffcli.Command{
		ShortUsage: "pmb [flags] <subcommand>",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			newRunCommand(),
			newExtractCommand(),
		},
	}
}

func newRunCommand() *ffcli.Command {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	db := fs.String("db", "pmb.db", "signal database path")
	usersDB := fs.String("users-db", "pmb-users.db", "user database path")
	token := fs.String("telegram-token", "", "telegram token")
	adminChat := fs.Int64("telegram-admin-chat", 0, "telegram chat id for logs and admin commands (optional)")
	parser := fs.String("parser", "extract", "signal parser: extract or json")
	schedule := fs.String("check-schedule", "0 * * * *", "cron schedule for signal updates")

	return &ffcli.Command{
		Name:       "run",
		ShortUsage: "pmb run [flags]",
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ff.PlainParser),
			ff.WithEnvVarPrefix("PMB"),
		},
		ShortHelp: "run pmb bot",
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			if *db == "" {
				return errors.New("missing db path")
			}
			if *usersDB == "" {
				return errors.New("missing users db path")
			}
			if *token == "" {
				return errors.New("missing telegram token")
			}
			bot, err := pmb.NewBot(*db, *usersDB, *token, *adminChat, *parser, *schedule)
			if err != nil {
				return err
			}
			return bot.Run(ctx)
		},
	}
}

// newExtractCommand parses a message from the command line and dumps the
// extracted fields, useful to debug why a call was read a certain way.
func newExtractCommand() *ffcli.Command {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)

	return &ffcli.Command{
		Name:       "extract",
		ShortUsage: "pmb extract <message>",
		ShortHelp:  "show the fields extracted from a message",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return errors.New("missing message")
			}
			var text string
			for i, arg := range args {
				if i > 0 {
					text += " "
				}
				text += arg
			}
			d := extract.Extract(text)
			fmt.Printf("coin: %s\n", d.Coin)
			fmt.Printf("position: %s\n", d.Position)
			fmt.Printf("entry: %s\n", d.Entry)
			fmt.Printf("take profit: %s\n", d.TakeProfit)
			for tier, target := range d.Targets {
				fmt.Printf("target %d: %s\n", tier, target)
			}
			fmt.Printf("stop loss: %s\n", d.StopLoss)
			fmt.Printf("timeframe: %s\n", d.Timeframe)
			fmt.Printf("risk: %s\n", d.Risk)
			return nil
		},
	}
}
