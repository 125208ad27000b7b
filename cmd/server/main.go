package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mapleleafu/typerace/config"
	"github.com/mapleleafu/typerace/content"
	"github.com/mapleleafu/typerace/game"
	"github.com/mapleleafu/typerace/handlers"
	"github.com/mapleleafu/typerace/repository"
	"github.com/mapleleafu/typerace/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal(err)
	}
	log.Println("Server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	provider, closeParagraphs, err := openContent(cfg)
	if err != nil {
		return err
	}
	defer closeParagraphs()

	opts := handlers.Options{
		StartDelay:     cfg.GameStartDelay,
		ProgressTick:   cfg.ProgressTick,
		ContentTimeout: cfg.ResponseTimeout,
		Content:        provider,
	}
	if cfg.HTTPAddr != "" {
		opts.Hub = handlers.NewHub()
	}
	state := game.NewState(cfg.MinPlayers)
	api := &handlers.API{State: state, Hub: opts.Hub}

	if cfg.PostgresEnabled() {
		db, err := repository.ConnectToPostgreSQL(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		races := repository.NewRaceStore(db)
		if err := races.EnsureSchema(ctx); err != nil {
			return err
		}
		opts.Races, api.Races = races, races
	} else {
		log.Println("DB_HOST not set, race history disabled")
	}

	if cfg.MongoEnabled() {
		client, err := repository.ConnectMongoDB(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		defer client.Disconnect(context.Background())
		journal := repository.NewJournalStore(client, cfg.MongoDatabase)
		opts.Journal, api.Journal = journal, journal
	} else {
		log.Println("MONGO_URI not set, race journal disabled")
	}

	unicast, err := transport.ListenUnicast(":" + strconv.Itoa(cfg.ServerPort))
	if err != nil {
		return err
	}
	defer unicast.Close()

	multicast, err := transport.DialMulticast(cfg.MulticastAddress, cfg.MulticastPort, cfg.NetworkInterface)
	if err != nil {
		return err
	}
	defer multicast.Close()

	srv := handlers.NewServer(state, unicast, multicast, opts)
	defer srv.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Server listening on %s, multicasting to %s:%d", unicast.LocalAddr(), cfg.MulticastAddress, cfg.MulticastPort)
		return unicast.Serve(ctx, srv.HandleMessage)
	})
	if httpServer := newHTTPServer(cfg, api); httpServer != nil {
		g.Go(func() error {
			opts.Hub.Run(ctx)
			return nil
		})
		g.Go(func() error {
			log.Printf("HTTP API running on http://localhost%s", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	} else {
		log.Println("HTTP_ADDR empty, HTTP API disabled")
	}
	return g.Wait()
}

// newHTTPServer returns nil when the HTTP API is disabled.
func newHTTPServer(cfg *config.Config, api *handlers.API) *http.Server {
	if cfg.HTTPAddr == "" {
		return nil
	}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handlers.NewRouter(api),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// openContent picks the paragraph source: the sqlite store when configured,
// with the builtin paragraphs behind it, otherwise the builtin paragraphs alone.
func openContent(cfg *config.Config) (content.Provider, func(), error) {
	builtin := content.Builtin(rand.New(rand.NewSource(time.Now().UnixNano())))
	if cfg.ParagraphsDB == "" {
		return builtin, func() {}, nil
	}

	store, err := repository.OpenParagraphStore(cfg.ParagraphsDB)
	if err != nil {
		return nil, nil, err
	}
	if cfg.ParagraphsFile != "" {
		paragraphs, err := repository.LoadParagraphsFile(cfg.ParagraphsFile)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		added, err := store.Seed(paragraphs)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		log.Printf("Seeded %d new paragraphs from %s", added, cfg.ParagraphsFile)
	}
	closeFn := func() {
		if err := store.Close(); err != nil {
			log.Printf("Error closing paragraph store: %v", err)
		}
	}
	return content.Fallback{Primary: store, Secondary: builtin}, closeFn, nil
}
