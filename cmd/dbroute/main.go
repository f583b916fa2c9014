// Command dbroute prints the route units and rewritten SQL of statement cases against a
// dbroute YAML configuration.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/qjerry/dbroute"
	"github.com/qjerry/dbroute/config"
	"github.com/qjerry/dbroute/metadata"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "dbroute",
		Short:        "Route and rewrite SQL against sharding, encrypt and mask rules",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "dbroute.yaml", "dbroute YAML config")
	root.AddCommand(newRouteCmd(&configPath), newRulesCmd(&configPath))
	return root
}

func newRouteCmd(configPath *string) *cobra.Command {
	var casePath string
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Print route units and actual SQL of every case",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cases, err := LoadCases(casePath)
			if err != nil {
				return err
			}
			return withDBRoute(cmd.Context(), *configPath, func(dr *dbroute.DBRoute) error {
				for _, c := range cases {
					if err := routeCase(cmd.Context(), cmd.OutOrStdout(), dr, c); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&casePath, "case", "", "YAML file holding a sequence of cases")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func newRulesCmd(configPath *string) *cobra.Command {
	var database string
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the rule configurations of a database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDBRoute(cmd.Context(), *configPath, func(dr *dbroute.DBRoute) error {
				rules, err := dr.Snapshot(database)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "# %s version %d\n", rules.Database().Name, rules.Version())
				for _, cfg := range rules.Configurations() {
					data, err := yaml.Marshal(map[string]any{string(cfg.Kind()): cfg})
					if err != nil {
						return err
					}
					fmt.Fprint(out, string(data))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&database, "database", "d", "", "logic database name")
	_ = cmd.MarkFlagRequired("database")
	return cmd
}

func withDBRoute(ctx context.Context, configPath string, fc func(dr *dbroute.DBRoute) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	dr, closeFn, err := config.NewDBRoute(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()
	return fc(dr)
}

func routeCase(ctx context.Context, out io.Writer, dr *dbroute.DBRoute, c Case) error {
	stmt, err := c.Statement()
	if err != nil {
		return err
	}
	ec, err := dr.Route(ctx, &dbroute.QueryContext{
		Database:   c.Database,
		Statement:  stmt,
		Params:     c.Params,
		Connection: metadata.ConnectionContext{CurrentDatabase: c.CurrentDatabase},
	})
	if err != nil {
		return errors.Wrapf(err, "case `%s`", c.Name)
	}
	fmt.Fprintf(out, "== %s [%s] %s\n", c.Name, ec.Engine, ec.ID)
	for _, u := range ec.Units {
		fmt.Fprintf(out, "%s ::: %s ::: %v\n", u.DataSource, u.SQL, u.Params)
	}
	return nil
}
