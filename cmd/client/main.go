package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mapleleafu/typerace/client"
	"github.com/mapleleafu/typerace/config"
	"github.com/mapleleafu/typerace/models"
	"github.com/mapleleafu/typerace/transport"
)

const usage = `Commands:
  ready        mark yourself ready
  <0-100>      report progress
  quit         leave the server
While a race runs, any other line is compared against the race text.`

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	conn, err := transport.NewClient(cfg.UnicastAddr(), cfg.ResponseTimeout)
	if err != nil {
		return err
	}
	events := client.NewChanObserver(64)
	session := client.NewSession(conn, events)
	lines := bufio.NewScanner(in)

	st, err := join(ctx, session, lines, out)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Quit(); err != nil {
			log.Printf("Failed to disconnect from server: %v", err)
		}
	}()

	listener, err := transport.ListenMulticast(cfg.MulticastAddress, cfg.MulticastPort, cfg.NetworkInterface)
	if err != nil {
		return err
	}
	defer listener.Close()

	fmt.Fprintln(out, usage)
	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g.Go(func() error {
		return session.Listen(ctx, listener)
	})
	g.Go(func() error {
		render(ctx, st, events, out)
		return nil
	})
	// stdin cannot be interrupted, so input stays outside the group
	go func() {
		if err := input(ctx, session, st, lines, out); err != nil {
			log.Printf("Error reading input: %v", err)
		}
		cancel()
	}()
	return g.Wait()
}

func join(ctx context.Context, session *client.Session, lines *bufio.Scanner, out io.Writer) (*client.State, error) {
	for {
		fmt.Fprint(out, "Enter your username: ")
		if !lines.Scan() {
			return nil, io.EOF
		}
		username := strings.TrimSpace(lines.Text())
		if username == "" || strings.ContainsAny(username, " \t") {
			fmt.Fprintln(out, "ERROR: Username cannot be empty or contain spaces")
			continue
		}

		st, err := session.Join(ctx, username)
		var rejected client.ErrJoinRejected
		switch {
		case err == nil:
			fmt.Fprintln(out, "Successfully joined the server!")
			return st, nil
		case errors.As(err, &rejected):
			fmt.Fprintln(out, "ERROR:", rejected.Reason)
		case errors.Is(err, transport.ErrTimeout):
			fmt.Fprintln(out, "ERROR: server did not answer, try again")
		default:
			return nil, err
		}
	}
}

// input reads commands until quit or EOF.
func input(ctx context.Context, session *client.Session, st *client.State, lines *bufio.Scanner, out io.Writer) error {
	for lines.Scan() {
		line := strings.TrimSpace(lines.Text())
		switch {
		case line == "":
		case line == "quit":
			return nil
		case line == "ready":
			if err := session.Ready(ctx); err != nil {
				fmt.Fprintln(out, "ERROR:", err)
			}
		default:
			pct, err := strconv.Atoi(line)
			if err != nil {
				if st.Phase() != models.Running {
					fmt.Fprintln(out, usage)
					continue
				}
				pct = client.ProgressFor(line, st.RaceText())
			}
			if err := session.SendProgress(pct); err != nil {
				fmt.Fprintln(out, "ERROR:", err)
			}
		}
	}
	return lines.Err()
}

func render(ctx context.Context, st *client.State, events *client.ChanObserver, out io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events.C:
			switch e.Kind {
			case client.PhaseChanged:
				fmt.Fprintf(out, "== %s ==\n", e.Phase)
			case client.RaceTextReceived:
				fmt.Fprintf(out, "Type this:\n%s\n", e.Text)
			case client.RaceEnded:
				if e.Winner == st.Self() {
					fmt.Fprintln(out, "You won!")
				} else {
					fmt.Fprintf(out, "%s won the race\n", e.Winner)
				}
			case client.PlayersChanged:
				printPlayers(out, st)
			}
		}
	}
}

func printPlayers(out io.Writer, st *client.State) {
	players := st.Players()
	names := make([]string, 0, len(players))
	for name := range players {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := players[name]
		label := name
		if name == st.Self() {
			label += " (you)"
		}
		switch {
		case p.InRace:
			fmt.Fprintf(out, "  - %s %d%%\n", label, p.Progress)
		case p.Ready:
			fmt.Fprintf(out, "  - %s [ready]\n", label)
		default:
			fmt.Fprintf(out, "  - %s [not ready]\n", label)
		}
	}
}
