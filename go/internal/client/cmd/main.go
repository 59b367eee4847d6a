package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bingo/go/internal/apperr"
	"github.com/mcdev12/bingo/go/internal/bingo"
	"github.com/mcdev12/bingo/go/internal/client"
	"github.com/mcdev12/bingo/go/internal/events"
	"github.com/mcdev12/bingo/go/internal/game"
	"github.com/mcdev12/bingo/go/internal/logging"
	"github.com/mcdev12/bingo/go/internal/models"
)

const usage = `usage: bingo-client [-config client.yaml] <command>

commands:
  create <name> [interval_sec]   create a game (admin)
  start|pause|resume|end <id>    change game status (admin)
  draw <id>                      draw a number (admin)
  join <join_code> <name>        register as a player
  play                           connect and play interactively`

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	configPath := flag.String("config", "client.yaml", "path to the client config file")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	cfg, err := client.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Setup(cfg.LogLevel, true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flag.Args()); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func run(ctx context.Context, cfg *client.Config, args []string) error {
	if len(args) == 0 {
		flag.Usage()
		return errors.New("missing command")
	}

	api := game.NewGameServiceClient(&http.Client{Timeout: 30 * time.Second}, cfg.ServerURL, cfg.AdminKey)

	switch cmd := args[0]; cmd {
	case "create":
		if len(args) < 2 {
			return errors.New("create needs a name")
		}
		req := &game.CreateGameRequest{Name: args[1], DrawMode: models.DrawModeManual}
		if len(args) > 2 {
			interval, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid interval %q: %w", args[2], err)
			}
			req.DrawMode = models.DrawModeTimed
			req.DrawIntervalSec = interval
		}
		res, err := api.CreateGame(ctx, req)
		if err != nil {
			return apperr.FromConnect("create", err)
		}
		fmt.Printf("game %s created, join code %s\n", res.Game.ID, res.Game.JoinCode)

	case "start", "pause", "resume", "end":
		if len(args) < 2 {
			return fmt.Errorf("%s needs a game id", cmd)
		}
		calls := map[string]func(context.Context, string) (*game.GameResponse, error){
			"start":  api.StartGame,
			"pause":  api.PauseGame,
			"resume": api.ResumeGame,
			"end":    api.EndGame,
		}
		res, err := calls[cmd](ctx, args[1])
		if err != nil {
			return apperr.FromConnect(cmd, err)
		}
		fmt.Printf("game %s is %s\n", res.Game.ID, res.Game.Status)

	case "draw":
		if len(args) < 2 {
			return errors.New("draw needs a game id")
		}
		res, err := api.DrawNumber(ctx, args[1])
		if err != nil {
			return apperr.FromConnect(cmd, err)
		}
		fmt.Printf("drew %d (%d drawn)\n", res.Number, res.DrawnCount)

	case "join":
		if len(args) < 3 {
			return errors.New("join needs a join code and a name")
		}
		res, err := api.JoinGame(ctx, args[1], args[2])
		if err != nil {
			return apperr.FromConnect(cmd, err)
		}
		fmt.Printf("joined game %s as player %s\n", res.Game.ID, res.Player.ID)
		printCard(res.Player.Card, nil)

	case "play":
		return play(ctx, cfg)

	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func play(ctx context.Context, cfg *client.Config) error {
	connCfg, err := cfg.ConnConfig()
	if err != nil {
		return err
	}

	store, err := client.OpenBoltQueueStore(cfg.QueuePath)
	if err != nil {
		return err
	}
	defer store.Close()

	conn := client.NewConn(connCfg, client.WSDialer{})
	session := client.NewSession(conn, client.NewQueue(store, cfg.MaxRetries), client.WithSyncBackoff(cfg.Backoff))

	bus := conn.Bus()
	defer events.Subscribe(bus, client.TopicStateChanged, func(ev client.StateChanged) {
		fmt.Printf("[%s]\n", ev.To)
	})()
	defer events.Subscribe(bus, client.TopicReconnectFailed, func(ev client.ReconnectFailed) {
		fmt.Printf("could not reconnect after %d attempts, type 'retry'\n", ev.Attempts)
	})()
	defer events.Subscribe(bus, client.TopicBingo, func(ev events.PlayerBingoPayload) {
		fmt.Printf("BINGO! %s\n", ev.PlayerName)
	})()

	if err := session.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("initial connect failed, retrying in the background")
	}
	defer session.Stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, cfg, session, line); quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, cfg *client.Config, s *client.Session, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	number := func() (int, bool) {
		if len(fields) < 2 {
			fmt.Println("which number?")
			return 0, false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Printf("%q is not a number\n", fields[1])
			return 0, false
		}
		return n, true
	}

	var err error
	switch fields[0] {
	case "mark":
		if n, ok := number(); ok {
			err = s.MarkNumber(ctx, n)
		}
	case "unmark":
		if n, ok := number(); ok {
			err = s.UnmarkNumber(ctx, n)
		}
	case "bingo":
		var res *events.ValidateBingoResponse
		if res, err = s.ClaimBingo(ctx); err == nil {
			if res.Valid {
				fmt.Printf("bingo confirmed: %v\n", res.Lines)
			} else {
				fmt.Println("no complete line yet")
			}
		}
	case "draw":
		var id uuid.UUID
		if id, err = uuid.Parse(cfg.GameID); err == nil {
			var n int
			if n, err = s.DrawNumber(ctx, id); err == nil {
				fmt.Printf("drew %d\n", n)
			}
		}
	case "sync":
		err = s.Resync(ctx)
	case "retry":
		err = s.Conn().Retry(ctx)
	case "card":
		snap := s.Snapshot()
		if snap.Player != nil {
			printCard(snap.Player.Card, snap.Marks)
		}
		if snap.Game != nil {
			fmt.Printf("status %s, drawn %v\n", snap.Game.Status, snap.Game.DrawnNumbers)
		}
	case "quit", "exit":
		return true
	default:
		fmt.Println("commands: mark N, unmark N, bingo, draw, sync, retry, card, quit")
	}

	if err != nil {
		fmt.Printf("%s: %v\n", apperr.KindOf(err), err)
	}
	return false
}

func printCard(card bingo.Card, marks []int) {
	marked := bingo.NewMarkSet(marks)
	fmt.Println(" B   I   N   G   O")
	for row := 0; row < bingo.Size; row++ {
		for col := 0; col < bingo.Size; col++ {
			n := card.Grid[row][col]
			switch {
			case card.IsFree(row, col):
				fmt.Print("**  ")
			case marked.Has(n):
				fmt.Printf("%2d* ", n)
			default:
				fmt.Printf("%2d  ", n)
			}
		}
		fmt.Println()
	}
}
