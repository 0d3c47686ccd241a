package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cvcreator-backend/internal/bootstrap"
	"cvcreator-backend/internal/documents"
	"cvcreator-backend/internal/owners"
	"cvcreator-backend/internal/shared/config"
	"cvcreator-backend/internal/shared/storage/db"
)

var (
	version    = "dev"
	jsonOutput bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cvctl",
		Short:         "Administer stored resumes and cover letters",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{"version": version})
				return
			}
			fmt.Printf("cvctl %s\n", version)
		},
	})

	rootCmd.AddCommand(newMigrateCmd(), newDocumentsCmd(), newOwnerCmd())
	return rootCmd
}

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{Use: "migrate", Short: "Manage the database schema"}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				if err := db.RunMigrations(ctx, app.DB); err != nil {
					return fail(err)
				}
				return reportVersion(ctx, app)
			})
		},
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), reportVersion)
		},
	})
	return migrateCmd
}

func reportVersion(ctx context.Context, app *bootstrap.App) error {
	v, err := db.MigrationVersion(ctx, app.DB)
	if err != nil {
		return fail(err)
	}
	if jsonOutput {
		printJSON(map[string]int64{"version": v})
	} else {
		fmt.Printf("schema version %d\n", v)
	}
	return nil
}

func newDocumentsCmd() *cobra.Command {
	docsCmd := &cobra.Command{Use: "documents", Aliases: []string{"docs"}, Short: "Inspect and remove documents"}

	var (
		kind   string
		search string
		limit  int
	)
	listCmd := &cobra.Command{
		Use:   "list OWNER_ID",
		Short: "List an owner's documents, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := documents.ListOptions{Search: search, Limit: limit}
			if kind != "" {
				k, err := documents.ParseKind(kind)
				if err != nil {
					return fail(err)
				}
				opts.Kind = k
			}
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				items, err := app.DocumentsService.List(ctx, args[0], opts)
				if err != nil {
					return fail(err)
				}
				if jsonOutput {
					printJSON(items)
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tKIND\tFILE NAME\tUPDATED")
				for _, s := range items {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Kind, s.FileName, s.UpdatedAt.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}
	listCmd.Flags().StringVar(&kind, "kind", "", "Only resume or coverletter")
	listCmd.Flags().StringVar(&search, "search", "", "Case-insensitive file name filter")
	listCmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (0 for all)")

	showCmd := &cobra.Command{
		Use:   "show DOCUMENT_ID",
		Short: "Print a document's metadata and form values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				doc, err := app.DocumentsService.Find(ctx, args[0])
				if err != nil {
					return fail(err)
				}
				printJSON(doc)
				return nil
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete DOCUMENT_ID",
		Short: "Delete a document's blob and row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				if err := app.DocumentsService.Delete(ctx, args[0]); err != nil {
					return fail(err)
				}
				report(map[string]any{"ok": true, "deleted": args[0]}, "deleted "+args[0])
				return nil
			})
		},
	}

	var ttl time.Duration
	signCmd := &cobra.Command{
		Use:   "sign DOCUMENT_ID",
		Short: "Print a time-limited download URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				if ttl > 0 {
					app.DocumentsService.SignedURLTTL = ttl
				}
				url, err := app.DocumentsService.SignedURL(ctx, args[0])
				if err != nil {
					return fail(err)
				}
				report(map[string]any{"url": url}, url)
				return nil
			})
		},
	}
	signCmd.Flags().DurationVar(&ttl, "ttl", 0, "URL lifetime (defaults to SIGNED_URL_TTL)")

	docsCmd.AddCommand(listCmd, showCmd, deleteCmd, signCmd)
	return docsCmd
}

func newOwnerCmd() *cobra.Command {
	ownerCmd := &cobra.Command{Use: "owner", Short: "Manage owners"}

	var email, name string
	addCmd := &cobra.Command{
		Use:   "add OWNER_ID",
		Short: "Register an owner or refresh its profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				owner, err := app.OwnersService.Register(ctx, owners.Owner{ID: args[0], Email: email, FullName: name})
				if err != nil {
					return fail(err)
				}
				report(owner, "registered "+owner.ID)
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&email, "email", "", "Contact email")
	addCmd.Flags().StringVar(&name, "name", "", "Full name")

	purgeCmd := &cobra.Command{
		Use:   "purge OWNER_ID",
		Short: "Delete every document of an owner, then the owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				result, err := app.OwnersService.Purge(ctx, args[0])
				report(result, fmt.Sprintf("found=%d deleted=%d retained=%d owner_deleted=%t",
					result.Documents.Found, result.Documents.Deleted, result.Documents.Retained, result.OwnerDeleted))
				if err != nil {
					return fail(err)
				}
				return nil
			})
		},
	}

	ownerCmd.AddCommand(addCmd, purgeCmd)
	return ownerCmd
}

func withApp(ctx context.Context, fn func(context.Context, *bootstrap.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fail(err)
	}
	app, err := bootstrap.Build(cfg)
	if err != nil {
		return fail(err)
	}
	defer app.Close()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, app)
}

func withDB(ctx context.Context, fn func(context.Context, *bootstrap.App) error) error {
	return withApp(ctx, func(ctx context.Context, app *bootstrap.App) error {
		if app.DB == nil {
			return fail(db.ErrNoDatabaseURL)
		}
		return fn(ctx, app)
	})
}

func report(v any, text string) {
	if jsonOutput {
		printJSON(v)
		return
	}
	fmt.Println(text)
}

func fail(err error) error {
	if jsonOutput {
		printJSON(map[string]any{"ok": false, "error": err.Error()})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
