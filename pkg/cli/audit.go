package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/opsboard/pkg/audit"
)

type auditFlags struct {
	Role   string
	Actor  string
	Types  []string
	Since  time.Duration
	Limit  int
	Format string
}

func auditCommand(flags *globalFlags) *cobra.Command {
	var f auditFlags
	cmd := &cobra.Command{
		Use:          "audit",
		Short:        "list recorded administration changes, newest first",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: withEnv(flags, func(ctx context.Context, cmd *cobra.Command, e *env, _ []string) error {
			filter := audit.Filter{RoleCode: f.Role, Actor: f.Actor, Limit: f.Limit}
			for _, t := range f.Types {
				filter.EventTypes = append(filter.EventTypes, audit.EventType(t))
			}
			if f.Since > 0 {
				since := time.Now().Add(-f.Since)
				filter.Since = &since
			}

			svc, err := e.service(nil)
			if err != nil {
				return err
			}
			events, err := svc.SearchAudit(ctx, filter)
			if err != nil {
				return err
			}

			if f.Format != "" && f.Format != "table" {
				format, err := audit.ParseExportFormat(f.Format)
				if err != nil {
					return err
				}
				return audit.Export(cmd.OutOrStdout(), events, format)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tEVENT\tSTATUS\tACTOR\tROLE\tSUBJECT")
			for _, ev := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					ev.Timestamp.UTC().Format(time.RFC3339), ev.EventType, ev.Status, ev.Actor, ev.RoleCode, ev.Subject)
			}
			return tw.Flush()
		}),
	}

	fs := cmd.Flags()
	fs.StringVar(&f.Role, "role", "", "only events for this role")
	fs.StringVar(&f.Actor, "actor", "", "only events by this administrator email")
	fs.StringSliceVar(&f.Types, "type", nil, "only these event types, e.g. role.create,role.assign")
	fs.DurationVar(&f.Since, "since", 0, "only events newer than this, e.g. 24h")
	fs.IntVar(&f.Limit, "limit", audit.DefaultLimit, "maximum number of events")
	fs.StringVarP(&f.Format, "output", "o", "table", "table, json, ndjson or csv")

	cmd.AddCommand(auditArchiveCommand(flags))
	return cmd
}

func auditArchiveCommand(flags *globalFlags) *cobra.Command {
	var (
		since  time.Duration
		bucket string
	)
	cmd := &cobra.Command{
		Use:          "archive",
		Short:        "upload recent audit events to S3 as NDJSON",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: withEnv(flags, func(ctx context.Context, cmd *cobra.Command, e *env, _ []string) error {
			cfg := e.cfg.Authz.AuditArchive
			if bucket != "" {
				cfg.Bucket = bucket
			}
			archiver, err := audit.NewS3Archiver(ctx, cfg)
			if err != nil {
				return err
			}

			svc, err := e.service(nil)
			if err != nil {
				return err
			}
			now := time.Now()
			from := now.Add(-since)
			events, err := collectAudit(ctx, svc, audit.Filter{Since: &from, Until: &now})
			if err != nil {
				return err
			}

			key, err := archiver.Archive(ctx, events, now)
			if err != nil {
				return err
			}
			e.logger.WithField("key", key).WithField("events", len(events)).Info("Audit events archived")
			fmt.Fprintf(cmd.OutOrStdout(), "s3://%s/%s (%d events)\n", cfg.Bucket, key, len(events))
			return nil
		}),
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "archive events newer than this")
	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket to upload to, overriding OPSBOARD_AUDIT_S3_BUCKET")
	return cmd
}

type auditSearcher interface {
	SearchAudit(ctx context.Context, filter audit.Filter) ([]*audit.Event, error)
}

// collectAudit pages through every event matching filter
func collectAudit(ctx context.Context, s auditSearcher, filter audit.Filter) ([]*audit.Event, error) {
	filter.Limit = audit.MaxLimit
	all := []*audit.Event{}
	for {
		page, err := s.SearchAudit(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < filter.Limit {
			return all, nil
		}
		filter.Offset += len(page)
	}
}
