package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/algohub/algohub/internal/log"
	"github.com/algohub/algohub/internal/model"
	"github.com/algohub/algohub/internal/nmap"
	"github.com/algohub/algohub/internal/report"
	"github.com/algohub/algohub/internal/resolve"
	"github.com/algohub/algohub/internal/runner"
	"github.com/algohub/algohub/internal/state"
	"github.com/algohub/algohub/internal/tools"
	"github.com/algohub/algohub/internal/webapi"
	"github.com/algohub/algohub/internal/workflow"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// passwordEnv is read when --password is not given
const passwordEnv = model.EnvPrefix + "_PASSWORD"

type credsFlags struct {
	domain   string
	user     string
	password string
}

func (f *credsFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.domain, "domain", "d", "", "Active Directory domain")
	cmd.Flags().StringVarP(&f.user, "user", "u", "", "domain user")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "password of the user, defaults to $"+passwordEnv)
}

func (f *credsFlags) credentials() (model.Credentials, error) {
	creds := model.Credentials{
		Domain:   f.domain,
		User:     f.user,
		Password: f.password,
	}
	if creds.Password == "" {
		creds.Password = os.Getenv(passwordEnv)
	}
	return creds, creds.Validate()
}

func openStore(ctx context.Context) (*state.Store, error) {
	store := state.New(config.StateFile)
	created, err := store.Init()
	if err != nil {
		return nil, err
	}
	if created {
		slog.InfoContext(ctx, "state file created", "path", store.Path())
	}
	return store, nil
}

func toolbox() tools.Toolbox {
	return tools.New(runner.New(), config.Tools, config.Gowitness)
}

func commandContext(cmd *cobra.Command) context.Context {
	return log.ContextAttrs(cmd.Context(), slog.Group("algohub",
		slog.String("cmd", cmd.Name()),
		slog.Int("pid", os.Getpid()),
	))
}

func blackboxCmd() *cobra.Command {
	var subnets, dcs []string
	cmd := &cobra.Command{
		Use:   "blackbox [subnet...]",
		Short: "port scan, screenshots and relay targets of subnets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			valid, err := model.ParseSubnets(model.ParseTargets(append(subnets, args...)...))
			if err != nil {
				return err
			}
			if len(valid) == 0 {
				return fmt.Errorf("%w: no subnet given", model.ErrInvalidTarget)
			}

			scanner, err := nmap.New(config.Nmap)
			if err != nil {
				return err
			}
			store, err := openStore(ctx)
			if err != nil {
				return err
			}

			bb := workflow.BlackBox{
				Layout:  model.Layout{Root: config.OutputDir},
				Scanner: scanner,
				Tools:   toolbox(),
				DCHosts: model.ParseTargets(dcs...),
			}
			sched := workflow.Scheduler{
				Store:    store,
				Category: model.CategoryBlackBox,
				Limit:    config.Concurrency.BlackBox,
			}
			summary, err := sched.Run(ctx, valid, bb.Pipeline)
			if err != nil {
				return err
			}
			urls, rerr := bb.GlobalRelay(ctx)
			printSummary(os.Stdout, summary)
			if rerr != nil {
				return rerr
			}
			fmt.Fprintf(os.Stdout, "relay targets: %d in %s\n", len(urls), bb.Layout.GlobalRelay())
			return summaryErr(summary)
		},
	}
	cmd.Flags().StringSliceVarP(&subnets, "subnets", "s", nil, "subnets in CIDR notation, comma separated")
	cmd.Flags().StringSliceVar(&dcs, "dc", nil, "domain controllers added to the relay targets")
	return cmd
}

func grayboxCmd() *cobra.Command {
	var dcs []string
	var cf credsFlags
	cmd := &cobra.Command{
		Use:   "graybox [dc...]",
		Short: "authenticated enumeration of domain controllers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			creds, err := cf.credentials()
			if err != nil {
				return err
			}
			targets := model.ParseTargets(append(dcs, args...)...)
			if len(targets) == 0 {
				return fmt.Errorf("%w: no domain controller given", model.ErrInvalidTarget)
			}
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			ctx = log.ContextAttrs(ctx, slog.Any("creds", creds))

			gb := workflow.GrayBox{
				Layout:   model.Layout{Root: config.OutputDir},
				Resolver: resolve.New(config.DNS),
				Tools:    toolbox(),
				Creds:    creds,
				SubScans: config.Concurrency.SubScans,
			}
			sched := workflow.Scheduler{
				Store:    store,
				Category: model.CategoryGrayBox,
				Limit:    config.Concurrency.GrayBox,
			}
			summary, err := sched.Run(ctx, targets, gb.Pipeline)
			if err != nil {
				return err
			}
			printSummary(os.Stdout, summary)
			return summaryErr(summary)
		},
	}
	cmd.Flags().StringSliceVar(&dcs, "dc", nil, "domain controllers, host names or IPv4 addresses")
	cf.register(cmd)
	return cmd
}

func manspiderCmd() *cobra.Command {
	var cidrs []string
	var mode string
	var cf credsFlags
	cmd := &cobra.Command{
		Use:   "manspider [cidr...]",
		Short: "crawl SMB shares for sensitive files or credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			spider, err := tools.SpiderModeByName(mode)
			if err != nil {
				return err
			}
			creds, err := cf.credentials()
			if err != nil {
				return err
			}
			targets := model.ParseTargets(append(cidrs, args...)...)
			if len(targets) == 0 {
				return fmt.Errorf("%w: no network given", model.ErrInvalidTarget)
			}
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			ctx = log.ContextAttrs(ctx, slog.Any("creds", creds), slog.String("mode", spider.Name))

			ms := workflow.ManSpider{
				Layout: model.Layout{Root: config.OutputDir},
				Tools:  toolbox(),
				Creds:  creds,
				Mode:   spider,
			}
			sched := workflow.Scheduler{
				Store:    store,
				Category: ms.Category(),
				Limit:    config.Concurrency.ManSpider,
			}
			summary, err := sched.Run(ctx, targets, ms.Pipeline)
			if err != nil {
				return err
			}
			printSummary(os.Stdout, summary)
			return summaryErr(summary)
		},
	}
	cmd.Flags().StringSliceVar(&cidrs, "cidr", nil, "networks to crawl")
	cmd.Flags().StringVarP(&mode, "mode", "m", tools.StandardSpider.Name, "standard (list files) or creds (grep credentials)")
	cf.register(cmd)
	return cmd
}

func aclCmd() *cobra.Command {
	var baseDN, output string
	var trustees []string
	var cf credsFlags
	cmd := &cobra.Command{
		Use:   "acl <dc>",
		Short: "find DACL entries granting write or control rights on domain objects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			creds, err := cf.credentials()
			if err != nil {
				return err
			}
			dc := strings.TrimSpace(args[0])
			ip, err := resolve.New(config.DNS).Resolve(ctx, dc)
			if err != nil {
				return err
			}
			if baseDN == "" {
				baseDN = model.BaseDN(creds.Domain)
			}
			if output == "" {
				output = model.Layout{Root: config.OutputDir}.ACLFile(dc)
			}
			ctx = log.ContextAttrs(ctx, slog.Any("creds", creds), slog.String("dc_ip", ip.String()))

			hunt := workflow.ACLHunt{
				Tools:    toolbox(),
				Creds:    creds,
				Limit:    config.Concurrency.ACL,
				Trustees: trustees,
			}
			hunted, err := hunt.Run(ctx, ip, baseDN)
			if err != nil {
				return err
			}
			if err := tools.WriteACL(output, hunted.Findings); err != nil {
				return err
			}
			printACL(os.Stdout, hunted, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&baseDN, "base-dn", "b", "", "search base, defaults to the naming context of the domain")
	cmd.Flags().StringArrayVarP(&trustees, "filter", "f", nil, "keep trustees containing the value, repeatable")
	cmd.Flags().StringVarP(&output, "output", "o", "", "JSON report, defaults to <output_dir>/acl/<dc>_acl.json")
	cf.register(cmd)
	return cmd
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve the aggregated results to the dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		gin.SetMode(gin.ReleaseMode)
		api := webapi.New(func(ctx context.Context) (report.Document, error) {
			return report.Build(ctx, config.OutputDir, config.Gowitness.DBFile)
		})
		return webapi.Serve(ctx, config.Web.Listen, api)
	},
}

func stateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "inspect the record of the scanned targets",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "create the state file unless it exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := state.New(config.StateFile).Init()
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(os.Stdout, "created %s\n", config.StateFile)
			} else {
				fmt.Fprintf(os.Stdout, "%s already exists\n", config.StateFile)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "list the scanned targets per category",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := state.New(config.StateFile)
			for _, cat := range model.Categories() {
				targets, err := store.Scanned(cat)
				if err != nil {
					return err
				}
				printScanned(os.Stdout, cat, targets)
			}
			return nil
		},
	})
	return cmd
}
