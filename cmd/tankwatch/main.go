package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"codeberg.org/mutker/tankctl/internal/client"
	"codeberg.org/mutker/tankctl/internal/config"
	"codeberg.org/mutker/tankctl/internal/logger"
	"codeberg.org/mutker/tankctl/internal/transport"
)

var cfg *config.ClientConfig

func init() {
	var err error
	cfg, err = config.LoadClient(os.Args[1:])
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.InitWithWriter(os.Stderr, cfg.LogLevel.String(), false)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	conn := transport.NewClient(transport.ClientConfig{URL: cfg.WebsocketURL()}, logger.Component("ws"))
	agent := client.NewAgent(client.Config{
		Capacity:     cfg.Capacity,
		Increment:    cfg.SimIncrement,
		Grace:        cfg.Grace,
		TickInterval: cfg.TickInterval,
	}, logger.Component("agent"))
	session := client.NewSession(agent, client.NewAPI(cfg.Server, cfg.RequestTimeout), conn.Signals(), logger.Component("session"))

	commands := make(chan client.Command)
	go readCommands(ctx, cancel, commands)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = conn.Run(ctx)
	}()

	fmt.Println("Commands: on, off, reset, quit")
	_ = session.Run(ctx, commands, render())

	cancel()
	wg.Wait()
}

// render prints a line whenever the displayed state changes.
func render() func(client.View) {
	var last string
	return func(v client.View) {
		line := fmt.Sprintf("[%s] %5.1f%% %-13s %6.0f L  motor %s",
			v.State, v.Reading.Percentage, v.Status, v.Volume, onOff(v.MotorOn))
		if v.Simulated {
			line += "  (simulated)"
		}
		if line == last {
			return
		}
		last = line
		fmt.Println(line)
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func readCommands(ctx context.Context, cancel context.CancelFunc, commands chan<- client.Command) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		var cmd client.Command
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "on":
			cmd.Kind = client.CommandMotorOn
		case "off":
			cmd.Kind = client.CommandMotorOff
		case "reset":
			cmd.Kind = client.CommandReset
		case "quit", "exit":
			cancel()
			return
		case "":
			continue
		default:
			fmt.Println("Unknown command")
			continue
		}

		select {
		case commands <- cmd:
		case <-ctx.Done():
			return
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
