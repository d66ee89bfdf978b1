// Package main provides the connector entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/siacavazzi/amogus-sonos-connector/internal/app/assets"
	"github.com/siacavazzi/amogus-sonos-connector/internal/app/dispatcher"
	"github.com/siacavazzi/amogus-sonos-connector/internal/app/registry"
	"github.com/siacavazzi/amogus-sonos-connector/internal/app/tracker"
	"github.com/siacavazzi/amogus-sonos-connector/internal/domain/device"
	"github.com/siacavazzi/amogus-sonos-connector/internal/infra/config"
	"github.com/siacavazzi/amogus-sonos-connector/internal/infra/discovery"
	"github.com/siacavazzi/amogus-sonos-connector/internal/infra/gateway"
	"github.com/siacavazzi/amogus-sonos-connector/internal/infra/logger"
	"github.com/siacavazzi/amogus-sonos-connector/internal/infra/sonos"
)

var (
	app        = kingpin.New("sonos-connector", "Connect Sonos speakers to the party game server")
	configPath = app.Flag("config", "Path to config file").Default("config/connector.yaml").String()
	serverURL  = app.Flag("server", "Game server URL (overrides config)").String()
	volume     = app.Flag("volume", "Speaker volume 0-100 (overrides config)").Default("-1").Int()
	bedroom    = app.Flag("include-bedroom", "Offer bedroom speakers for selection").Bool()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stderr)").String()

	startCmd = app.Command("start", "Connect and relay game events (default)").Default()
	roomCode = startCmd.Arg("room-code", "4-character game room code").String()

	listSoundsCmd = app.Command("list-sounds", "List known sound names and exit")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listSoundsCmd.FullCommand() {
		for _, name := range assets.Catalog() {
			fmt.Println(name)
		}
		return
	}

	loggerConfig := logger.Config{Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}
	applyFlags(cfg)

	printBanner()

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Connector error: %v", err)
		os.Exit(1)
	}
}

// applyFlags lets command-line flags win over file and env values.
func applyFlags(cfg *config.Config) {
	if *serverURL != "" {
		cfg.Server.URL = *serverURL
	}
	if *volume >= 0 && *volume <= 100 {
		cfg.Playback.Volume = *volume
	}
	if *bedroom {
		cfg.Discovery.IncludeBedroom = true
	}
}

func printBanner() {
	fmt.Println("=========================================")
	fmt.Println("  AMONG US - SONOS CONNECTOR")
	fmt.Println("  Connect your speakers to the game!")
	fmt.Println("=========================================")
}

// run executes the connector. Using a separate function ensures defer
// statements run even when returning with an error.
func run(cfg *config.Config) error {
	stdin := bufio.NewReader(os.Stdin)

	code, err := resolveRoomCode(stdin)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	control, err := sonos.New(cfg.Control.Settings)
	if err != nil {
		return err
	}
	reg := registry.New(control, cfg.CommandTimeout())

	zlog.Info().Msg("discovering speakers...")
	found, err := discovery.Browse(ctx, cfg.DiscoveryTimeout())
	if err != nil {
		return err
	}
	candidates := device.Filter(found, cfg.Discovery.IncludeBedroom)

	selected, err := selectDevices(stdin, reg, candidates)
	if err != nil {
		return err
	}
	reg.Select(selected)

	if len(selected) > 0 {
		zlog.Info().Msgf("setting volume to %d%% on %d speaker(s)", cfg.Playback.Volume, len(selected))
		reg.SetVolumeAll(ctx, cfg.Playback.Volume)
	} else {
		zlog.Warn().Msg("running without speakers: events will be received but not played")
	}

	resolver := assets.NewResolver(cfg.Assets.BaseURL)
	disp := dispatcher.New(reg, resolver, tracker.New(), dispatcher.Config{
		DefaultLoopDuration: cfg.LoopDefaultDuration(),
	})

	gwConfig := gateway.Config{
		ServerURL:   cfg.Server.URL,
		RoomCode:    code,
		ClientID:    uuid.New().String(),
		JoinTimeout: cfg.JoinTimeout(),
	}
	dialer := func(ctx context.Context) (dispatcher.Conn, error) {
		return gateway.Dial(ctx, gwConfig)
	}

	supervisor := dispatcher.NewSupervisor(dialer, disp, dispatcher.SupervisorConfig{
		InitialDelay: cfg.ReconnectInitialDelay(),
		MaxDelay:     cfg.ReconnectMaxDelay(),
	})

	zlog.Info().Msgf("joining room %s at %s (Ctrl+C to quit)", code, cfg.Server.URL)
	err = supervisor.Run(ctx)

	// Shutdown is deliberate from here on: silence any loops before exit.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.CommandTimeout())
	defer cancel()
	disp.Shutdown(shutdownCtx)

	stats := disp.GetStats()
	zlog.Info().Msgf("shutting down: %d event(s) dispatched, %d dropped", stats.Dispatched, stats.Malformed)
	return err
}

// resolveRoomCode takes the room code from the argument or prompts for
// it, then validates the format.
func resolveRoomCode(stdin *bufio.Reader) (string, error) {
	code := *roomCode
	if code == "" {
		fmt.Print("Enter room code: ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read room code: %w", err)
		}
		code = strings.TrimSpace(line)
	}
	return gateway.NormalizeRoomCode(code)
}

// selectDevices runs the interactive speaker selection. "a" selects
// everything, "p N" pings a speaker to identify it, a comma list picks
// a subset. With no speakers found the user may confirm a diagnostic
// no-op run.
func selectDevices(stdin *bufio.Reader, reg *registry.Registry, candidates []device.Device) ([]device.Device, error) {
	if len(candidates) == 0 {
		fmt.Print("No speakers found. Continue without playback? [y/N]: ")
		line, _ := stdin.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(line)) != "y" {
			return nil, fmt.Errorf("no speakers found")
		}
		return nil, nil
	}

	fmt.Println("\nFound speakers:")
	for i, dev := range candidates {
		fmt.Printf("  %d) %s\n", i+1, dev)
	}

	for {
		fmt.Print("Select speakers [a=all, p N=ping N, or e.g. 1,3]: ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("failed to read selection: %w", err)
		}
		input := strings.TrimSpace(line)

		switch {
		case input == "" || strings.EqualFold(input, "a"):
			return candidates, nil

		case strings.HasPrefix(strings.ToLower(input), "p "):
			idx, err := parseIndex(strings.TrimSpace(input[2:]), len(candidates))
			if err != nil {
				fmt.Println(err)
				continue
			}
			dev := candidates[idx]
			if err := reg.Ping(context.Background(), dev); err != nil {
				fmt.Printf("  %s did not respond: %v\n", dev, err)
			} else {
				fmt.Printf("  %s responded\n", dev)
			}

		default:
			selected, err := parseSelection(input, candidates)
			if err != nil {
				fmt.Println(err)
				continue
			}
			return selected, nil
		}
	}
}

func parseIndex(s string, n int) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil || idx < 1 || idx > n {
		return 0, fmt.Errorf("expected a number between 1 and %d", n)
	}
	return idx - 1, nil
}

func parseSelection(input string, candidates []device.Device) ([]device.Device, error) {
	seen := make(map[int]bool)
	selected := make([]device.Device, 0)
	for _, part := range strings.Split(input, ",") {
		idx, err := parseIndex(strings.TrimSpace(part), len(candidates))
		if err != nil {
			return nil, err
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		selected = append(selected, candidates[idx])
	}
	return selected, nil
}
