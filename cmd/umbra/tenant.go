package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oriys/umbra/internal/store"
)

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage the tenant directory",
	}

	cmd.AddCommand(
		tenantAddCmd(),
		tenantListCmd(),
		tenantGetCmd(),
		tenantEnableCmd(),
		tenantDisableCmd(),
	)
	return cmd
}

func tenantAddCmd() *cobra.Command {
	var (
		name     string
		domain   string
		inactive bool
	)

	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Register a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.CreateTenant(cmd.Context(), &store.TenantRecord{
				ID:     args[0],
				Name:   name,
				Domain: domain,
				Active: !inactive,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Registered tenant %s (%s)\n", rec.ID, boolLabel(rec.Active, "active", "inactive"))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to id)")
	cmd.Flags().StringVar(&domain, "domain", "", "Dedicated domain for subdomain resolution")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Register in disabled state")

	return cmd
}

func tenantListCmd() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			tenants, err := s.ListTenants(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDOMAIN\tSTATUS\tCREATED")
			for _, t := range tenants {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					t.ID,
					truncate(t.Name, 24),
					truncate(t.Domain, 32),
					boolLabel(t.Active, "active", "disabled"),
					t.CreatedAt.Format("2006-01-02 15:04"),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum tenants to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Listing offset")

	return cmd
}

func tenantGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.GetTenant(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("ID:      %s\n", rec.ID)
			fmt.Printf("Name:    %s\n", rec.Name)
			fmt.Printf("Domain:  %s\n", rec.Domain)
			fmt.Printf("Status:  %s\n", boolLabel(rec.Active, "active", "disabled"))
			fmt.Printf("Created: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("Updated: %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func tenantEnableCmd() *cobra.Command {
	return setActiveCmd("enable", true)
}

func tenantDisableCmd() *cobra.Command {
	return setActiveCmd("disable", false)
}

func setActiveCmd(verb string, active bool) *cobra.Command {
	var justification string

	cmd := &cobra.Command{
		Use:   verb + " <id>",
		Short: verb + " a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if justification == "" {
				return fmt.Errorf("--why is required: status flips are audited")
			}

			s, err := getStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := setTenantActiveAudited(cmd.Context(), s, args[0], active, verb, justification)
			if err != nil {
				return err
			}

			fmt.Printf("Tenant %s is now %s\n", rec.ID, boolLabel(rec.Active, "active", "disabled"))
			return nil
		},
	}

	cmd.Flags().StringVar(&justification, "why", "", "Justification recorded in the audit trail")

	return cmd
}
