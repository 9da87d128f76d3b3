package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"

	"github.com/Waji18/CloseTable/auth"
	"github.com/Waji18/CloseTable/federated"
	"github.com/Waji18/CloseTable/guard"
	"github.com/Waji18/CloseTable/identity"
	"github.com/Waji18/CloseTable/internal/config"
	"github.com/Waji18/CloseTable/internal/obs"
	"github.com/Waji18/CloseTable/internal/utils"
	"github.com/Waji18/CloseTable/sessions/store"
	"github.com/Waji18/CloseTable/users"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppName(c.GetAppName())
	logger := obs.NewLogger(c.GetAppName(), c.GetEnv())
	obs.Init()

	if addr := c.GetMetricsAddr(); addr != "" {
		go serveMetrics(addr, logger)
	}

	client := identity.NewClient(c.GetAPIBaseURL(),
		identity.WithLogger(logger),
		identity.WithHTTPClient(&http.Client{Timeout: c.GetHTTPTimeout()}),
		identity.WithNominalTokenLifetime(c.GetNominalTokenLifetime()),
	)
	manager, err := auth.NewManager(client, store.NewFileRepo(c.GetDataFolder()),
		auth.WithLogger(logger),
		auth.WithRefreshLead(c.GetRefreshLead()),
		auth.WithIdleTimeout(c.GetIdleTimeout()),
	)
	if err != nil {
		return err
	}
	manager.Start()
	defer manager.Close()

	app := &app{
		client:  client,
		manager: manager,
		log:     logger,
	}
	if clientID := c.GetGoogleClientID(); clientID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		google, err := federated.NewGoogleAuthenticator(ctx, clientID, c.GetGoogleClientSecret(), c.GetGoogleRedirectURL())
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("google sign-in unavailable")
		} else {
			app.google = google
		}
	}

	lines := make(chan string)
	go readLines(lines)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	app.printStatus()
	for {
		fmt.Print("> ")
		select {
		case <-stop:
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			// Any typed line counts as user activity.
			manager.Touch()
			if quit := app.dispatch(line); quit {
				return nil
			}
		}
	}
}

func readLines(lines chan<- string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	close(lines)
}

func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Handler())
	logger.Info().Str("addr", addr).Msg("metrics listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn().Err(err).Msg("metrics listener stopped")
	}
}

type app struct {
	client  *identity.Client
	manager *auth.Manager
	google  *federated.GoogleAuthenticator
	log     zerolog.Logger

	googleState string
}

// dispatch runs one command line; it reports true when the user quits.
func (a *app) dispatch(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch fields[0] {
	case "login":
		if len(fields) != 3 {
			fmt.Println("usage: login <email> <password>")
			return false
		}
		if err := a.manager.Login(ctx, fields[1], fields[2]); err != nil {
			fmt.Printf("login failed: %s\n", err)
			return false
		}
		a.printStatus()

	case "signup":
		if len(fields) != 4 {
			fmt.Println("usage: signup <name> <email> <password>")
			return false
		}
		u, err := a.client.Signup(ctx, identity.SignupRequest{Name: fields[1], Email: fields[2], Password: fields[3]})
		if err != nil {
			fmt.Printf("signup failed: %s\n", err)
			return false
		}
		fmt.Printf("account created for %s (%s), you can log in now\n", u.Name, u.Email)

	case "google":
		a.googleSignIn(ctx, fields[1:])

	case "whoami":
		a.printStatus()

	case "profile":
		u, err := a.client.FetchProfile(ctx)
		if err != nil {
			fmt.Printf("profile fetch failed: %s\n", err)
			return false
		}
		fmt.Printf("%s <%s> role=%s joined=%s\n", u.Name, u.Email, u.Role, u.CreatedAt.Format("2006-01-02"))

	case "upgrade":
		if err := a.manager.UpgradeRole(ctx, users.RoleOwner); err != nil {
			fmt.Printf("role upgrade failed: %s\n", err)
			return false
		}
		fmt.Println("you are now a Restaurant Owner")

	case "refresh":
		if err := a.manager.RefreshNow(ctx); err != nil {
			fmt.Printf("refresh failed: %s\n", err)
		}

	case "dashboard":
		// The owner dashboard is gated the same way the web client
		// gates its routes.
		switch guard.Decide(a.manager.Snapshot(), users.RoleOwner, users.RoleAdmin) {
		case guard.Allow:
			fmt.Println("owner dashboard: restaurants, menus, reservations")
		case guard.RedirectToLogin:
			fmt.Println("please log in first")
		case guard.RedirectToHome:
			fmt.Println("owners and admins only (try 'upgrade')")
		case guard.Pending:
			fmt.Println("still loading")
		}

	case "logout":
		a.manager.Logout(ctx)
		fmt.Println("logged out")

	case "help":
		fmt.Println("commands: login signup google whoami profile upgrade refresh dashboard logout quit")

	case "quit", "exit":
		return true

	default:
		fmt.Printf("unknown command %q (try 'help')\n", fields[0])
	}
	return false
}

// googleSignIn prints the consent URL on the first call and exchanges the
// pasted code on the second.
func (a *app) googleSignIn(ctx context.Context, args []string) {
	if a.google == nil {
		fmt.Println("google sign-in is not configured (set GOOGLE_CLIENT_ID)")
		return
	}

	if len(args) == 0 {
		state, err := federated.State()
		if err != nil {
			fmt.Printf("google sign-in failed: %s\n", err)
			return
		}
		a.googleState = state
		fmt.Println("visit the URL below, then run: google <code>")
		fmt.Println(a.google.AuthURL(state))
		return
	}

	fid, err := a.google.Exchange(ctx, args[0])
	if err != nil {
		fmt.Printf("google sign-in failed: %s\n", err)
		return
	}
	a.googleState = ""
	if err := a.manager.LoginFederated(ctx, fid); err != nil {
		fmt.Printf("google sign-in rejected: %s\n", err)
		return
	}
	a.printStatus()
}

func (a *app) printStatus() {
	if !a.manager.IsAuthenticated() {
		fmt.Println("not logged in")
		return
	}
	u := utils.Value(a.manager.CurrentUser())
	fmt.Printf("logged in as %s <%s> role=%s\n", u.Name, u.Email, u.Role)
}

func displayAppName(appName string) {
	myFigure := figure.NewFigure(appName, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
