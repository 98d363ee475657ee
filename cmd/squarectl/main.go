package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adda-Baaj/square-connect/internal/app"
	"github.com/Adda-Baaj/square-connect/internal/config"
	"github.com/Adda-Baaj/square-connect/internal/logger"
	"github.com/spf13/pflag"
)

const usage = "usage: squarectl [-X METHOD] [--params JSON | --params-file FILE] <path>\n       squarectl --history N"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "squarectl: %v\n", err)
		}
		os.Exit(1)
	}
}

type envelope struct {
	StatusCode int `json:"status_code"`
	Data       any `json:"data"`
}

func run(args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("squarectl", pflag.ContinueOnError)
	method := flags.StringP("method", "X", "GET", "HTTP method")
	rawParams := flags.String("params", "", "request params as a JSON object")
	paramsFile := flags.String("params-file", "", "request params from a YAML or JSON file")
	history := flags.Int("history", 0, "print the N most recent journal entries and exit")
	flags.String("access-token", "", "access token (env SQUARE_ACCESS_TOKEN)")
	flags.String("base-url", "", "API base URL (env SQUARE_BASE_URL)")
	flags.String("log-level", "", "log level (env SQUARE_LOG_LEVEL)")
	flags.String("publishers-file", "", "publishers definition file (env SQUARE_PUBLISHERS_FILE)")
	flags.String("journal-type", "", "journal backend: bbolt or none (env SQUARE_JOURNAL_TYPE)")
	flags.String("journal-path", "", "journal database path (env SQUARE_JOURNAL_PATH)")
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := app.NewRunner(ctx, cfg, log)
	if err != nil {
		log.ErrorObj("failed to initialize runner", "error", err)
		return err
	}
	defer func() {
		if cerr := runner.Close(); cerr != nil {
			log.ErrorObj("runner close failed", "error", cerr)
		}
	}()

	if *history > 0 {
		entries, err := runner.History(*history)
		if err != nil {
			return fmt.Errorf("read history: %w", err)
		}
		return writeJSON(stdout, entries)
	}

	if flags.NArg() != 1 {
		return errors.New(usage)
	}
	if *rawParams != "" && *paramsFile != "" {
		return errors.New("--params and --params-file are mutually exclusive")
	}

	params, err := app.ParseParams(*rawParams)
	if err != nil {
		return err
	}
	if *paramsFile != "" {
		if params, err = app.LoadParams(*paramsFile); err != nil {
			return err
		}
	}

	resp, callErr := runner.Call(ctx, app.Call{
		Path:   flags.Arg(0),
		Method: *method,
		Params: params,
	})
	if resp != nil {
		if err := writeJSON(stdout, envelope{StatusCode: resp.StatusCode, Data: resp.Data}); err != nil {
			return err
		}
	}
	return callErr
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
