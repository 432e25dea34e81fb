package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/flagdesk/internal/client"
	"github.com/patrickwarner/flagdesk/internal/config"
	"github.com/patrickwarner/flagdesk/internal/db"
	"github.com/patrickwarner/flagdesk/internal/detail"
	"github.com/patrickwarner/flagdesk/internal/models"
	"github.com/patrickwarner/flagdesk/internal/token"
	"github.com/patrickwarner/flagdesk/internal/views"
	"github.com/patrickwarner/flagdesk/internal/workflow"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	api      *client.Client
	session  client.Session
	logger   *zap.Logger
	out      io.Writer
	errOut   io.Writer
	window   int
	assigner *workflow.Assigner
	resolver *workflow.Resolver
}

func newCommandLine(cfg config.ClientConfig, logger *zap.Logger, out, errOut io.Writer) *commandLine {
	session := client.NewSession(cfg.Token, cfg.TokenFile)
	opts := []client.Option{client.WithLogger(logger)}
	if cfg.Timeout > 0 {
		opts = append(opts, client.WithTimeout(cfg.Timeout))
	}
	api := client.New(cfg.APIURL, session, opts...)
	return &commandLine{
		api:      api,
		session:  session,
		logger:   logger,
		out:      out,
		errOut:   errOut,
		window:   cfg.ContextWindow,
		assigner: workflow.NewAssigner(api, logger),
		resolver: workflow.NewResolver(api, logger),
	}
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.errOut, "Usage:")
	fmt.Fprintln(cli.errOut, "  list [-status pending|assigned|resolved] [-mine]  - admin tabs, or your assigned flags with -mine")
	fmt.Fprintln(cli.errOut, "  show -id ID                                       - flag detail with message context or quiz review")
	fmt.Fprintln(cli.errOut, "  faculty                                           - faculty available for assignment")
	fmt.Fprintln(cli.errOut, "  assign -id ID -faculty USER_ID [-version V]       - assign or reassign a flag")
	fmt.Fprintln(cli.errOut, "  resolve -id ID -feedback TEXT [-corrected TEXT] [-version V]")
	fmt.Fprintln(cli.errOut, "  notifications                                     - your resolution notifications")
	fmt.Fprintln(cli.errOut, "  report [-since 168h]                              - lifecycle activity counts")
	fmt.Fprintln(cli.errOut, "  login -token TOKEN                                - store a session token")
	fmt.Fprintln(cli.errOut, "  token -secret S -user ID -name NAME -role ROLE    - mint a development token")
	fmt.Fprintln(cli.errOut, "  watch                                             - stream lifecycle updates from Redis")
}

func (cli *commandLine) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.errOut)
	return fs
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	switch args[1] {
	case "list":
		return cli.list(ctx, args[2:])
	case "show":
		return cli.show(ctx, args[2:])
	case "faculty":
		return cli.faculty(ctx)
	case "assign":
		return cli.assign(ctx, args[2:])
	case "resolve":
		return cli.resolve(ctx, args[2:])
	case "notifications":
		return cli.notifications(ctx)
	case "report":
		return cli.report(ctx, args[2:])
	case "login":
		return cli.login(args[2:])
	case "token":
		return cli.mintToken(args[2:])
	case "watch":
		return cli.watch(ctx)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) list(ctx context.Context, args []string) error {
	fs := cli.flagSet("list")
	status := fs.String("status", "pending", "Tab to show: pending, assigned or resolved.")
	mine := fs.Bool("mine", false, "Show the flags assigned to you instead of the admin tabs.")
	if err := fs.Parse(args); err != nil {
		return errHelp
	}

	if *mine {
		items, err := cli.api.GetAssignedFlags(ctx)
		if err != nil {
			return err
		}
		return views.RenderFaculty(cli.out, views.NewFacultyDashboard(items))
	}

	selected, err := models.ParseStatus(*status)
	if err != nil {
		fmt.Fprintf(cli.errOut, "unknown status %q\n", *status)
		fs.Usage()
		return errHelp
	}
	items, err := cli.api.ListFlags(ctx, "")
	if err != nil {
		return err
	}
	return views.RenderAdmin(cli.out, views.NewAdminDashboard(items), selected)
}

func (cli *commandLine) show(ctx context.Context, args []string) error {
	fs := cli.flagSet("show")
	id := fs.Int("id", 0, "Flag ID.")
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	if *id <= 0 {
		fs.Usage()
		return errHelp
	}
	v, err := detail.NewRouter(cli.api, cli.window, cli.logger).Route(ctx, *id)
	if err != nil {
		return err
	}
	return views.RenderDetail(cli.out, v)
}

func (cli *commandLine) faculty(ctx context.Context) error {
	users, err := cli.assigner.Faculty(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		_, err := fmt.Fprintln(cli.out, "No faculty members found.")
		return err
	}
	for _, u := range users {
		fmt.Fprintf(cli.out, "%d\t%s\n", u.ID, u.Name)
	}
	return nil
}

func versionOpts(v int) []client.MutationOption {
	if v > 0 {
		return []client.MutationOption{client.IfVersion(v)}
	}
	return nil
}

func (cli *commandLine) assign(ctx context.Context, args []string) error {
	fs := cli.flagSet("assign")
	id := fs.Int("id", 0, "Flag ID.")
	facultyID := fs.Int("faculty", 0, "Faculty user ID, see `flagctl faculty`.")
	version := fs.Int("version", 0, "Only assign if the flag is still at this version.")
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	if *id <= 0 || *facultyID <= 0 {
		fs.Usage()
		return errHelp
	}
	items, err := cli.assigner.Assign(ctx, *id, *facultyID, versionOpts(*version)...)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Flag #%d assigned.\n\n", *id)
	return views.RenderAdmin(cli.out, views.NewAdminDashboard(items), models.StatusAssigned)
}

func (cli *commandLine) resolve(ctx context.Context, args []string) error {
	fs := cli.flagSet("resolve")
	id := fs.Int("id", 0, "Flag ID.")
	feedback := fs.String("feedback", "", "Feedback for the knowledge base.")
	corrected := fs.String("corrected", "", "Corrected response. Sends the standard correction notice to the student.")
	version := fs.Int("version", 0, "Only resolve if the flag is still at this version.")
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	if *id <= 0 {
		fs.Usage()
		return errHelp
	}
	form := workflow.ResolutionForm{Type: models.ResolutionFeedback, Feedback: *feedback}
	if *corrected != "" {
		form.Type = models.ResolutionCorrected
		form.CorrectedResponse = *corrected
	}
	res, err := cli.resolver.Resolve(ctx, *id, form, versionOpts(*version)...)
	var verr *workflow.ValidationError
	if errors.As(err, &verr) {
		for _, field := range verr.FieldNames() {
			fmt.Fprintf(cli.errOut, "  %s: %s\n", field, verr.Fields[field])
		}
		return err
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Flag #%d resolved. Student notified: %q\n\n", *id, res.StudentNotification)
	items, err := cli.api.GetAssignedFlags(ctx)
	if err != nil {
		return fmt.Errorf("resolution saved but list refresh failed: %w", err)
	}
	return views.RenderFaculty(cli.out, views.NewFacultyDashboard(items))
}

func (cli *commandLine) notifications(ctx context.Context) error {
	ns, err := cli.api.ListNotifications(ctx)
	if err != nil {
		return err
	}
	if len(ns) == 0 {
		_, err := fmt.Fprintln(cli.out, "No notifications.")
		return err
	}
	for _, n := range ns {
		fmt.Fprintf(cli.out, "%s  flag #%d  %s\n", n.CreatedAt.Local().Format("2006-01-02 15:04"), n.FlagID, n.Text)
	}
	return nil
}

func (cli *commandLine) report(ctx context.Context, args []string) error {
	fs := cli.flagSet("report")
	since := fs.Duration("since", 7*24*time.Hour, "Look-back window.")
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	counts, err := cli.api.FlagActivity(ctx, *since)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%-10s %-10s %8s\n", "ACTION", "OUTCOME", "COUNT")
	for _, c := range counts {
		fmt.Fprintf(cli.out, "%-10s %-10s %8d\n", c.Action, c.Outcome, c.Count)
	}
	return nil
}

func (cli *commandLine) login(args []string) error {
	fs := cli.flagSet("login")
	tok := fs.String("token", "", "Session token issued by the flagdesk API.")
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	if strings.TrimSpace(*tok) == "" {
		fs.Usage()
		return errHelp
	}
	fileSession, ok := cli.session.(client.FileSession)
	if !ok {
		return errors.New("FLAGDESK_TOKEN is set; unset it to use a stored session")
	}
	if err := fileSession.Save(strings.TrimSpace(*tok)); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Session saved to %s\n", fileSession.Path)
	return nil
}

func (cli *commandLine) mintToken(args []string) error {
	fs := cli.flagSet("token")
	secret := fs.String("secret", "", "TOKEN_SECRET of the API server.")
	userID := fs.Int("user", 0, "User ID.")
	name := fs.String("name", "", "Display name.")
	role := fs.String("role", models.RoleFaculty, "student, faculty or admin.")
	ttl := fs.Duration("ttl", 12*time.Hour, "Token lifetime.")
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	if *secret == "" {
		fs.Usage()
		return errHelp
	}
	tok, err := token.Generate(models.User{ID: *userID, Name: *name, Role: *role}, []byte(*secret), *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cli.out, tok)
	return err
}

func (cli *commandLine) watch(ctx context.Context) error {
	cfg := config.Load()
	rs, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer rs.Close()
	updates, err := rs.SubscribeFlagUpdates(ctx, cfg.RedisChannel, cli.logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.errOut, "watching %s on %s (Ctrl-C to stop)\n", cfg.RedisChannel, cfg.RedisAddr)
	for u := range updates {
		fmt.Fprintf(cli.out, "%s  flag #%d  %-8s -> %-9s v%d  by user %d\n",
			u.At.Local().Format("15:04:05"), u.FlagID, u.Action, models.NormalizeStatus(u.Status).Label(), u.Version, u.ActorID)
	}
	return nil
}
