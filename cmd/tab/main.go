// tab is a terminal stand-in for a browser tab. Every tab started against
// the same --store-dir shares cookies and the cross-tab keys, so signing out
// in one tab signs out the others, and closing the last tab ends the session.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jrsteele09/transcript-portal/authapi"
	"github.com/jrsteele09/transcript-portal/internal/config"
	"github.com/jrsteele09/transcript-portal/internal/logging"
	"github.com/jrsteele09/transcript-portal/session"
	"github.com/jrsteele09/transcript-portal/session/storage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const cookiePrefix = "cookie_"

type printNavigator struct {
	out io.Writer
}

func (n printNavigator) Navigate(path string) {
	fmt.Fprintf(n.out, "-> %s\n", path)
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, in io.Reader, out io.Writer) error {
	var envFile, storeDir, apiURL string
	flagSet := pflag.NewFlagSet("tab", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flagSet.StringVar(&storeDir, "store-dir", "", "shared durable store directory (default $STORE_DIR)")
	flagSet.StringVar(&apiURL, "api", "", "auth API base URL (default $API_BASE_URL)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	c := config.New(envFile)
	logging.Setup(c.GetEnv())
	if storeDir == "" {
		storeDir = c.GetStoreDir()
	}
	if apiURL == "" {
		apiURL = c.GetAPIBaseURL()
	}

	store, err := storage.NewFileStore(storeDir)
	if err != nil {
		return err
	}
	defer store.Close()

	nav := printNavigator{out: out}
	coord, err := session.New(session.Deps{
		Cookies:   session.NewStoreJar(store, cookiePrefix),
		Store:     store,
		API:       authapi.NewClient(apiURL),
		Navigator: nav,
	}, session.WithNames(session.NamesFromConfig(c)))
	if err != nil {
		return err
	}
	coord.Bootstrap()
	<-coord.Ready()
	defer func() {
		coord.Teardown()
		coord.Close()
	}()

	if coord.IsAuthenticated() {
		fmt.Fprintf(out, "restored session for %s (%s)\n", coord.User().String("email"), coord.GetUserRole())
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	fmt.Fprintln(out, "commands: login <email> <password> | logout | whoami | quit")
	for {
		select {
		case <-stop:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handle(coord, nav, out, line); quit {
				return nil
			}
		}
	}
}

// handle runs one command line and reports whether the tab should close.
func handle(coord *session.Coordinator, nav session.Navigator, out io.Writer, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "login":
		if len(fields) != 3 {
			fmt.Fprintln(out, "usage: login <email> <password>")
			return false
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		res := coord.Login(ctx, fields[1], fields[2])
		fmt.Fprintln(out, res.Message)
		if res.Success {
			nav.Navigate(res.Redirect)
		}
	case "logout":
		coord.Logout()
	case "whoami":
		if !coord.IsAuthenticated() {
			fmt.Fprintln(out, "signed out")
			return false
		}
		fmt.Fprintf(out, "%s (%s)\n", coord.User().String("email"), coord.GetUserRole())
	case "quit", "exit":
		return true
	default:
		log.Debug().Str("command", fields[0]).Msg("unknown command")
		fmt.Fprintf(out, "unknown command %q\n", fields[0])
	}
	return false
}
