package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/example/deepverify/internal/client"
	"github.com/example/deepverify/internal/config"
	"github.com/example/deepverify/internal/flow"
	"github.com/example/deepverify/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	imagePath := flag.String("image", "", "path to the image to verify")
	baseURL := flag.String("url", cfg.Client.BaseURL, "base URL of the detection API")
	requestTimeout := flag.Duration("request-timeout", cfg.Client.RequestTimeout, "budget for receiving the response headers")
	readTimeout := flag.Duration("read-timeout", cfg.Client.ReadTimeout, "budget for reading the response body")
	checkHealth := flag.Bool("health", false, "check the API health and exit")
	flag.Parse()

	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync() //nolint:errcheck

	detector := client.New(client.Config{
		BaseURL:        *baseURL,
		RequestTimeout: *requestTimeout,
		ReadTimeout:    *readTimeout,
	}, logger)

	ctx := context.Background()

	if *checkHealth {
		status, err := detector.Health(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("%s (model loaded: %t)\n", status.Message, status.ModelLoaded)
		return
	}

	if *imagePath == "" {
		fmt.Fprintln(os.Stderr, "usage: verify -image <path> [-url <base url>]")
		os.Exit(2)
	}

	controller := flow.NewController(detector, logger)
	controller.Subscribe(func(s flow.State) {
		logger.Debug("state changed", zap.Stringer("status", s.Status))
	})

	controller.SelectImage(nil, *imagePath)

	state, err := controller.Submit(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if state.Status != flow.StatusSuccess {
		fmt.Fprintln(os.Stderr, state.Message)
		os.Exit(1)
	}

	result := state.Result
	verdict := "FAKE"
	if result.IsAuthentic() {
		verdict = "AUTHENTIC"
	}
	fmt.Printf("%s (label: %s)\n", verdict, result.Label)
	fmt.Printf("  Real: %6.2f%%\n", result.ProbReal*100)
	fmt.Printf("  Fake: %6.2f%%\n", result.ProbFake*100)
}
