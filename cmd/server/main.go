package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/transcript-portal/authapi"
	"github.com/jrsteele09/transcript-portal/devauth"
	"github.com/jrsteele09/transcript-portal/internal/config"
	"github.com/jrsteele09/transcript-portal/internal/logging"
	"github.com/jrsteele09/transcript-portal/server"
	"github.com/jrsteele09/transcript-portal/session"
	"github.com/jrsteele09/transcript-portal/session/storage"
	"github.com/jrsteele09/transcript-portal/token"
	fakeuserrepo "github.com/jrsteele09/transcript-portal/users/repofake"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

type options struct {
	port        string
	envFile     string
	storeDir    string
	devAuth     bool
	devAuthPort string
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func parseFlags(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("transcript-portal", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.port, "port", "p", "", "listen port (default $PORT or 8080)")
	flagSet.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flagSet.StringVar(&opts.storeDir, "store-dir", "", "shared durable store directory (default $STORE_DIR)")
	flagSet.BoolVar(&opts.devAuth, "dev-auth", false, "also serve the development auth API")
	flagSet.StringVar(&opts.devAuthPort, "dev-auth-port", "8081", "listen port for --dev-auth")
	return opts, flagSet.Parse(args)
}

func run(opts options) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New(opts.envFile)
	logging.Setup(c.GetEnv())
	displayAppname(c.GetAppName())

	port := c.GetPort()
	if opts.port != "" {
		port = ":" + opts.port
	}
	storeDir := c.GetStoreDir()
	if opts.storeDir != "" {
		storeDir = opts.storeDir
	}

	var servers []*http.Server
	stopJanitor := func() {}
	if opts.devAuth {
		devServer, stop, err := newDevAuthServer(c, ":"+opts.devAuthPort)
		if err != nil {
			return err
		}
		servers = append(servers, devServer)
		stopJanitor = stop
	}
	defer stopJanitor()

	store, err := storage.NewFileStore(storeDir)
	if err != nil {
		return err
	}
	defer store.Close()

	portal, err := server.New(c, authapi.NewClient(c.GetAPIBaseURL()),
		server.WithBroadcastChannel(session.NewStorageChannel(store, c.GetBroadcastKey())),
	)
	if err != nil {
		return err
	}
	servers = append(servers, &http.Server{Addr: port, Handler: portal, ReadHeaderTimeout: 10 * time.Second})

	errs := make(chan error, len(servers))
	for _, s := range servers {
		go func(s *http.Server) { errs <- listenAndServe(s) }(s)
	}

	select {
	case err := <-errs:
		returnError = err
	case <-waitForStopSignal():
	}

	for _, s := range servers {
		if err := shutdown(s); err != nil && returnError == nil {
			returnError = err
		}
	}
	portal.WaitBackground()
	return returnError
}

// newDevAuthServer builds the development auth API with one seeded user per role.
func newDevAuthServer(c config.Config, addr string) (*http.Server, func(), error) {
	tokens := token.New(token.NewHMACSigner(c.GetJWTSecret()),
		token.WithTokenExpiry(c.GetTokenExpiry()),
		token.WithIssuer(c.GetAppName()),
	)
	svc, err := devauth.NewService(fakeuserrepo.NewFakeUserRepo(), tokens,
		devauth.WithSeedUsers(devauth.DefaultSeedUsers(config.GetEnv("DEV_PASSWORD", "password"))),
	)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	devauth.NewHandler(svc).Register(mux)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := svc.CleanupRevokedTokens(); n > 0 {
					log.Debug().Int("dropped", n).Msg("revoked token cache cleanup")
				}
			}
		}
	}()
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}, cancel, nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
