package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/engram/internal"
	"github.com/starford/engram/internal/apperr"
	"github.com/starford/engram/internal/models"
	"github.com/starford/engram/internal/vcs"
)

func withWorkspace(ctx context.Context, cmd *cli.Command, fn func(*internal.Workspace) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ws, err := internal.OpenWorkspace(ctx, cfg, cliLogger(cmd))
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ws)
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create an empty history for the project",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "category",
				Usage: "Category to track (repeatable); defaults to the configured set",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cats := cmd.StringSlice("category"); len(cats) > 0 {
				cfg.Memory.Categories = cats
				if err := cfg.Memory.Validate(); err != nil {
					return fmt.Errorf("category: %w", err)
				}
			}
			ws, err := internal.InitWorkspace(ctx, cfg, cliLogger(cmd))
			if errors.Is(err, apperr.ErrAlreadyExists) {
				out.Info("already initialized: %s\n", filepath.Join(cfg.Memory.KnowledgeDir(), vcs.DirName))
				return nil
			}
			if err != nil {
				return err
			}
			defer ws.Close()
			out.Success("initialized %s\n", ws.Repo.Dir())
			out.Info("tracking: %s\n", strings.Join(ws.Repo.Categories(), ", "))
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show staged, new and removed blocks",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			err := withWorkspace(ctx, cmd, func(ws *internal.Workspace) error {
				st, err := ws.Service.Status(ctx)
				if err != nil {
					return err
				}
				out.Status(st)
				return nil
			})
			if errors.Is(err, apperr.ErrNotInitialized) {
				out.Warning("no history for this project yet\n")
				out.Info("Run 'engram init' to start tracking it.\n")
				return nil
			}
			return err
		},
	}
}

func stageCommand() *cli.Command {
	return &cli.Command{
		Name:      "stage",
		Usage:     "Mark session ids for the next commit",
		ArgsUsage: "<session-id>...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "Stage every new or modified id"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ids := cmd.Args().Slice()
			all := cmd.Bool("all")
			if !all && len(ids) == 0 {
				return fmt.Errorf("stage: give session ids or --all")
			}
			return withWorkspace(ctx, cmd, func(ws *internal.Workspace) error {
				n, err := ws.Service.Stage(ctx, ids, all)
				if err != nil {
					return err
				}
				out.Success("staged %d session(s)\n", n)
				return nil
			})
		},
	}
}

func commitCommand() *cli.Command {
	return &cli.Command{
		Name:  "commit",
		Usage: "Record staged blocks as a new commit",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "Commit message", Required: true},
			&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "Commit every change, including removals"},
			&cli.StringSliceFlag{Name: "session", Aliases: []string{"s"}, Usage: "Commit only this session id (repeatable)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withWorkspace(ctx, cmd, func(ws *internal.Workspace) error {
				c, err := ws.Service.Commit(ctx, vcs.CommitOptions{
					Message:    cmd.String("message"),
					SessionIDs: cmd.StringSlice("session"),
					All:        cmd.Bool("all"),
				})
				if err != nil {
					return err
				}
				out.Success("[%s %s] %s (%d sessions)\n", c.Branch, c.ShortHash(), c.Message, len(c.SessionIDs))
				return nil
			})
		},
	}
}

func logCommand() *cli.Command {
	return &cli.Command{
		Name:      "log",
		Usage:     "List commits newest first",
		ArgsUsage: "[ref]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of commits (0 for all)"},
			&cli.BoolFlag{Name: "verbose", Usage: "Show session ids and category hashes"},
			&cli.StringFlag{Name: "grep", Usage: "Only commits whose message or session ids contain this text"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withWorkspace(ctx, cmd, func(ws *internal.Workspace) error {
				commits, err := ws.Service.Log(ctx, vcs.LogOptions{
					From:  cmd.Args().First(),
					Limit: int(cmd.Int("limit")),
					Grep:  cmd.String("grep"),
				})
				if err != nil {
					return err
				}
				out.Log(commits, cmd.Bool("verbose"))
				return nil
			})
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a commit and its blocks",
		ArgsUsage: "[ref]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Usage: "Only this category"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ref := cmd.Args().First()
			if ref == "" {
				ref = "HEAD"
			}
			return withWorkspace(ctx, cmd, func(ws *internal.Workspace) error {
				res, err := ws.Service.Show(ctx, ref, cmd.String("category"))
				if err != nil {
					return err
				}
				out.Show(res)
				return nil
			})
		},
	}
}

func branchCommand() *cli.Command {
	return &cli.Command{
		Name:      "branch",
		Usage:     "List, create or delete branches",
		ArgsUsage: "[start-ref]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "create", Aliases: []string{"c"}, Usage: "Create a branch at HEAD or start-ref"},
			&cli.StringFlag{Name: "delete", Aliases: []string{"d"}, Usage: "Delete a branch"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			create, del := cmd.String("create"), cmd.String("delete")
			if create != "" && del != "" {
				return fmt.Errorf("branch: --create and --delete are exclusive")
			}
			return withWorkspace(ctx, cmd, func(ws *internal.Workspace) error {
				switch {
				case create != "":
					br, err := ws.Service.CreateBranch(ctx, create, cmd.Args().First())
					if err != nil {
						return err
					}
					out.Success("created branch %s at %s\n", br.Name, models.Short(br.Hash))
				case del != "":
					if err := ws.Service.DeleteBranch(ctx, del); err != nil {
						return err
					}
					out.Success("deleted branch %s\n", del)
				default:
					branches, err := ws.Service.Branches(ctx)
					if err != nil {
						return err
					}
					out.Branches(branches)
				}
				return nil
			})
		},
	}
}

func checkoutCommand() *cli.Command {
	return &cli.Command{
		Name:      "checkout",
		Usage:     "Rewrite category files to match a branch or commit",
		ArgsUsage: "<ref>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Report what would change without writing"},
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Proceed over uncommitted changes"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			target := cmd.Args().First()
			if target == "" {
				return fmt.Errorf("checkout: missing target")
			}
			return withWorkspace(ctx, cmd, func(ws *internal.Workspace) error {
				res, err := ws.Service.Checkout(ctx, target, vcs.CheckoutOptions{
					DryRun: cmd.Bool("dry-run"),
					Force:  cmd.Bool("force"),
				})
				if err != nil {
					return err
				}
				out.Checkout(res)
				return nil
			})
		},
	}
}

func diffCommand() *cli.Command {
	return &cli.Command{
		Name:      "diff",
		Usage:     "Block-level diff between refs, where WORKING names the working tree",
		ArgsUsage: "[from] [to]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Usage: "Only this category"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withWorkspace(ctx, cmd, func(ws *internal.Workspace) error {
				res, err := ws.Service.Diff(ctx, cmd.Args().Get(0), cmd.Args().Get(1), cmd.String("category"))
				if err != nil {
					return err
				}
				out.Diff(res)
				return nil
			})
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Full-text search over working-tree blocks",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Maximum number of hits"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query := strings.Join(cmd.Args().Slice(), " ")
			if query == "" {
				return fmt.Errorf("search: missing query")
			}
			return withWorkspace(ctx, cmd, func(ws *internal.Workspace) error {
				results, err := ws.Service.Search(ctx, query, int(cmd.Int("limit")))
				if err != nil {
					return err
				}
				out.SearchResults(results)
				return nil
			})
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API with live events",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
				return fmt.Errorf("app run error: %w", err)
			}
			return nil
		},
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve MCP tools on stdin/stdout",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
		},
	}
}
