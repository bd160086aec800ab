package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"ypgattendance/internal/app"
	"ypgattendance/internal/config"
	"ypgattendance/internal/logging"
	"ypgattendance/internal/models"
	"ypgattendance/internal/services"
)

const usage = `usage: ypgctl <command> [flags]

commands:
  migrate                                   create or update the database schema
  setup-pin <pin>                           configure the security pin (4 digits)
  pin-status                                show whether a security pin is configured
  clear-attempts [-identifier X] [-kind K]  delete login attempt records
  attempts [-identifier X] [-kind K] [-locked]
                                            list login attempt records
  create-user -username U -password P [-role R] [-email E]
                                            create an account
`

type cli struct {
	core *app.Core
	out  io.Writer
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load(config.ResolvePath())
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := app.OpenStores(ctx, cfg)
	if err != nil {
		log.Fatal("storage init failed", zap.Error(err))
	}
	defer st.Close()

	core, err := app.NewCore(cfg, st, nil, log)
	if err != nil {
		log.Fatal("service init failed", zap.Error(err))
	}

	c := &cli{core: core, out: os.Stdout}
	if err := c.run(services.WithActor(ctx, "ypgctl"), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(c.out, usage)
		return flag.ErrHelp
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "migrate":
		// OpenStores already applied the schema
		fmt.Fprintln(c.out, "schema is up to date")
		return nil
	case "setup-pin":
		return c.setupPin(ctx, rest)
	case "pin-status":
		return c.pinStatus(ctx)
	case "clear-attempts":
		return c.clearAttempts(ctx, rest)
	case "attempts":
		return c.listAttempts(ctx, rest)
	case "create-user":
		return c.createUser(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprint(c.out, usage)
		return nil
	}
	fmt.Fprint(c.out, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

func (c *cli) setupPin(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("setup-pin takes exactly one argument")
	}
	if err := c.core.Gateway.SetupPin(ctx, args[0]); err != nil {
		if errors.Is(err, services.ErrAlreadyConfigured) {
			return fmt.Errorf("a security pin is already configured; change it through the API")
		}
		return err
	}
	fmt.Fprintln(c.out, "security pin configured")
	return nil
}

func (c *cli) pinStatus(ctx context.Context) error {
	st, err := c.core.Gateway.PinStatus(ctx)
	if err != nil {
		return err
	}
	if !st.Configured {
		fmt.Fprintln(c.out, "security pin: not configured")
		return nil
	}
	fmt.Fprintf(c.out, "security pin: configured (since %s)\n", st.UpdatedAt.Format(time.RFC3339))
	return nil
}

func attemptFlags(name string, args []string) (models.AttemptFilter, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	identifier := fs.String("identifier", "", "identifier (username or client IP)")
	kind := fs.String("kind", "", "attempt kind: password or pin")
	locked := fs.Bool("locked", false, "only locked records")
	if err := fs.Parse(args); err != nil {
		return models.AttemptFilter{}, err
	}
	f := models.AttemptFilter{Identifier: *identifier, LockedOnly: *locked}
	if *kind != "" {
		k, err := models.ParseAttemptKind(*kind)
		if err != nil {
			return f, err
		}
		f.Kind = k
	}
	return f, nil
}

func (c *cli) clearAttempts(ctx context.Context, args []string) error {
	f, err := attemptFlags("clear-attempts", args)
	if err != nil {
		return err
	}
	n, err := c.core.Gateway.ClearAttempts(ctx, f.Identifier, f.Kind)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "cleared %d login attempt record(s)\n", n)
	return nil
}

func (c *cli) listAttempts(ctx context.Context, args []string) error {
	f, err := attemptFlags("attempts", args)
	if err != nil {
		return err
	}
	recs, err := c.core.Gateway.Attempts(ctx, f)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTIFIER\tKIND\tFAILURES\tLOCKED\tMIN LEFT")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%d\n", r.Identifier, r.Kind, r.FailureCount, r.Locked, c.core.Gateway.RemainingLockMinutes(r))
	}
	return tw.Flush()
}

func (c *cli) createUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	username := fs.String("username", "", "login name")
	password := fs.String("password", "", "initial password")
	role := fs.String("role", "admin", "role name")
	email := fs.String("email", "", "email for password resets")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		return fmt.Errorf("-username and -password are required")
	}
	p, err := c.core.Credentials.Create(ctx, *username, *password, *role, *email)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "created user %q (id %d, role %s)\n", p.Username, p.ID, p.Role)
	return nil
}
