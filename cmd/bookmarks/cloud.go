package main

import (
	"fmt"
	"time"

	"github.com/OCAP2/bookmarks/internal/cloud"
	"github.com/OCAP2/bookmarks/internal/config"
	"github.com/spf13/cobra"
)

func cloudConfigured() error {
	switch config.GetCloudConfig().Type {
	case "", "none":
		return cloud.ErrCloudUnavailable
	}
	return nil
}

// syncOutcome is the last OnSynchronizationFinished call.
type syncOutcome struct {
	result cloud.SyncResult
	err    string
}

func (o *syncOutcome) asError(t cloud.SyncType) error {
	if o == nil || o.result == cloud.ResultSuccess {
		return nil
	}
	if o.err == "" {
		return fmt.Errorf("%s: %s", t, o.result)
	}
	return fmt.Errorf("%s: %s: %s", t, o.result, o.err)
}

func newBackupCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Upload every category file to the backup store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cloudConfigured(); err != nil {
				return err
			}
			return withApp(cmd, rt, true, func(a *app) error {
				var done *syncOutcome
				a.mgr.SetCloudHandlers(cloud.Handlers{
					OnSynchronizationFinished: func(t cloud.SyncType, result cloud.SyncResult, errStr string) {
						if t == cloud.SyncBackup {
							done = &syncOutcome{result: result, err: errStr}
						}
					},
				})
				a.mgr.SetCloudEnabled(true)
				if err := a.wait(cmd.Context(), func() bool { return done != nil }); err != nil {
					return err
				}
				if err := done.asError(cloud.SyncBackup); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "backed up %d files\n", len(a.mgr.BackupFiles()))
				return nil
			})
		},
	}
}

func newRestoreCmd(rt *runtime) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace every category by the ones in the backup store",
		Long:  "Without --yes the backup is downloaded and checked, then discarded.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cloudConfigured(); err != nil {
				return err
			}
			return withApp(cmd, rt, true, func(a *app) error {
				var (
					done     *syncOutcome
					prepared bool
				)
				out := cmd.OutOrStdout()
				a.mgr.SetCloudHandlers(cloud.Handlers{
					OnRestoreRequested: func(result cloud.RestoreRequestResult, backupTime time.Time) {
						if result == cloud.RestoreBackupExists {
							fmt.Fprintf(out, "backup from %s\n", backupTime.Format(time.RFC3339))
						}
					},
					OnRestoredFilesPrepared: func() { prepared = true },
					OnSynchronizationFinished: func(t cloud.SyncType, result cloud.SyncResult, errStr string) {
						if t == cloud.SyncRestore {
							done = &syncOutcome{result: result, err: errStr}
						}
					},
				})
				if err := a.mgr.RequestCloudRestoring(); err != nil {
					return err
				}
				ctx := cmd.Context()
				if err := a.wait(ctx, func() bool { return prepared || done != nil }); err != nil {
					return err
				}
				if done != nil {
					return done.asError(cloud.SyncRestore)
				}

				if !yes {
					if err := a.mgr.CancelCloudRestoring(); err != nil {
						return err
					}
					fmt.Fprintln(out, "backup is valid; rerun with --yes to replace local categories")
					return nil
				}
				if err := a.mgr.ApplyCloudRestoring(); err != nil {
					return err
				}
				if err := done.asError(cloud.SyncRestore); err != nil {
					return err
				}
				fmt.Fprintf(out, "restored %d categories\n", len(a.mgr.CategoryIDs()))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "apply the restore")
	return cmd
}
