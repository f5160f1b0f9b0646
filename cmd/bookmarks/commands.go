package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/OCAP2/bookmarks/internal/bookmarks"
	"github.com/OCAP2/bookmarks/internal/geo"
	"github.com/OCAP2/bookmarks/internal/storage"
	"github.com/OCAP2/bookmarks/pkg/core"
	"github.com/spf13/cobra"
)

var errCategoryNotFound = errors.New("category not found")

// withApp loads the category directory and runs fn on the owner goroutine.
func withApp(cmd *cobra.Command, rt *runtime, withCloud bool, fn func(a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, rt, withCloud)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.loadAll(ctx); err != nil {
		return err
	}
	return fn(a)
}

func (a *app) category(name string) (core.GroupID, error) {
	id, ok := a.mgr.CategoryByName(name)
	if !ok {
		return core.InvalidGroupID, fmt.Errorf("%w: %q", errCategoryNotFound, name)
	}
	return id, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newListCmd(rt *runtime) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List categories in the category directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rt, false, func(a *app) error {
				st := a.mgr.Status()
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), st.Categories)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tBOOKMARKS\tTRACKS\tVISIBLE\tFILE")
				for _, c := range st.Categories {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%t\t%s\n", c.Name, c.Bookmarks, c.Tracks, c.Visible, c.File)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newImportCmd(rt *runtime) *cobra.Command {
	var move bool
	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Import category files into the category directory",
		Long:  "Import reads .geojson, .geojson.gz and share .zip files. With --move the source file is removed once imported.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rt, false, func(a *app) error {
				var failed []error
				a.setFileCallbacks(
					func(path string, _ bool) {
						fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", path)
					},
					func(path string, err error) {
						failed = append(failed, fmt.Errorf("%s: %w", path, err))
					},
				)
				for _, path := range args {
					a.mgr.LoadBookmark(path, move)
				}
				if err := a.wait(cmd.Context(), func() bool { return !a.mgr.IsLoading() }); err != nil {
					return err
				}
				return errors.Join(failed...)
			})
		},
	}
	cmd.Flags().BoolVar(&move, "move", false, "remove source files after a successful import")
	return cmd
}

func newExportCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <category> <file>",
		Short: "Write a category to a file",
		Long:  "The format follows the extension: .geojson or .geojson.gz.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := storage.FormatOf(args[1])
			if err != nil {
				return err
			}
			if format == storage.FormatArchive {
				return fmt.Errorf("use share to build archives")
			}
			return withApp(cmd, rt, false, func(a *app) error {
				id, err := a.category(args[0])
				if err != nil {
					return err
				}
				if err := a.mgr.SaveToFile(id, args[1], format == storage.FormatBinary); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s\n", args[0], args[1])
				return nil
			})
		},
	}
	return cmd
}

func newAddBookmarkCmd(rt *runtime) *cobra.Command {
	var (
		category    string
		name        string
		description string
		coords      string
		color       string
	)
	cmd := &cobra.Command{
		Use:   "add-bookmark",
		Short: "Add a bookmark to a category, creating the category if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := geo.PositionFromString(coords)
			if err != nil {
				return err
			}
			return withApp(cmd, rt, false, func(a *app) error {
				cat, catName := a.targetCategory(category)
				c := a.mgr.LastEditedBMColor()
				if color != "" {
					c = core.ParseColor(color)
				}
				var id core.MarkID
				a.mgr.Edit(func(es *bookmarks.EditSession) {
					id = es.CreateBookmark(core.BookmarkData{
						Name:        name,
						Description: description,
						Color:       c,
						Position:    pos,
						Timestamp:   time.Now(),
					}, cat)
				})
				a.mgr.SetLastEditedBmCategory(cat)
				a.mgr.SetLastEditedBmColor(c)
				fmt.Fprintf(cmd.OutOrStdout(), "added bookmark %d to %s\n", uint64(id), catName)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category name (default: last edited)")
	cmd.Flags().StringVar(&name, "name", "", "bookmark name")
	cmd.Flags().StringVar(&description, "description", "", "bookmark description")
	cmd.Flags().StringVar(&coords, "coords", "", `position as "lon,lat"`)
	cmd.Flags().StringVar(&color, "color", "", "color name (default: last used)")
	_ = cmd.MarkFlagRequired("coords")
	return cmd
}

func newAddTrackCmd(rt *runtime) *cobra.Command {
	var (
		category    string
		name        string
		description string
		points      string
		color       string
		width       float64
	)
	cmd := &cobra.Command{
		Use:   "add-track",
		Short: "Add a track to a category, creating the category if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := geo.ParsePolyline(points)
			if err != nil {
				return err
			}
			return withApp(cmd, rt, false, func(a *app) error {
				cat, catName := a.targetCategory(category)
				c := core.DefaultColor
				if color != "" {
					c = core.ParseColor(color)
				}
				var id core.LineID
				a.mgr.Edit(func(es *bookmarks.EditSession) {
					id = es.CreateTrack(core.TrackData{
						Name:        name,
						Description: description,
						Color:       c,
						Width:       width,
						Points:      line,
						Timestamp:   time.Now(),
					}, cat)
				})
				a.mgr.SetLastEditedBmCategory(cat)
				fmt.Fprintf(cmd.OutOrStdout(), "added track %d to %s\n", uint64(id), catName)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category name (default: last edited)")
	cmd.Flags().StringVar(&name, "name", "", "track name")
	cmd.Flags().StringVar(&description, "description", "", "track description")
	cmd.Flags().StringVar(&points, "points", "", `points as JSON, "[[lon,lat],...]"`)
	cmd.Flags().StringVar(&color, "color", "", "color name")
	cmd.Flags().Float64Var(&width, "width", 3, "line width")
	_ = cmd.MarkFlagRequired("points")
	return cmd
}

func newDeleteCategoryCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-category <category>",
		Short: "Delete a category and its file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rt, false, func(a *app) error {
				id, err := a.category(args[0])
				if err != nil {
					return err
				}
				a.mgr.DeleteBookmarkCategory(id)
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newShareCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "share <category>",
		Short: "Build a share archive for a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rt, false, func(a *app) error {
				id, err := a.category(args[0])
				if err != nil {
					return err
				}
				var res *bookmarks.SharingResult
				a.mgr.PrepareFileForSharing(id, func(r bookmarks.SharingResult) { res = &r })
				if err := a.wait(cmd.Context(), func() bool { return res != nil }); err != nil {
					return err
				}
				if res.Code != bookmarks.SharingSuccess {
					return fmt.Errorf("share %s: %s %s", args[0], res.Code, res.Error)
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Path)
				return nil
			})
		},
	}
}

func newStatusCmd(rt *runtime) *cobra.Command {
	var flushes int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the manager status as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rt, false, func(a *app) error {
				report, err := a.report(flushes)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().IntVar(&flushes, "flushes", 10, "number of recent flushes to include")
	return cmd
}
