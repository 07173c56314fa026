package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leadlift/leadlift/internal/version"
)

// resolveServerURL returns the server URL from the flag or LEADLIFT_SERVER_URL
// env var. Prints a warning to stderr when falling back to the env var.
// Returns an error if neither is set.
func resolveServerURL(cmd *cobra.Command, flagValue string) (string, error) {
	normalize := func(v string) string {
		for len(v) > 0 && v[len(v)-1] == '/' {
			v = v[:len(v)-1]
		}
		return v
	}
	if cmd.Flags().Changed("server") {
		return normalize(flagValue), nil
	}
	if v := os.Getenv("LEADLIFT_SERVER_URL"); v != "" {
		fmt.Fprintf(os.Stderr, "leadlift: WARNING: using server URL from LEADLIFT_SERVER_URL environment variable\n")
		return normalize(v), nil
	}
	return "", fmt.Errorf("server URL required: use --server flag or set LEADLIFT_SERVER_URL")
}

// resolveIdentity returns the (user, tenant) pair from flags or the
// LEADLIFT_USER_ID / LEADLIFT_TENANT_ID env vars.
func resolveIdentity(userFlag, tenantFlag string) (string, string, error) {
	user := userFlag
	if user == "" {
		user = os.Getenv("LEADLIFT_USER_ID")
	}
	tenant := tenantFlag
	if tenant == "" {
		tenant = os.Getenv("LEADLIFT_TENANT_ID")
	}
	if user == "" || tenant == "" {
		return "", "", fmt.Errorf("identity required: use --user/--tenant or set LEADLIFT_USER_ID and LEADLIFT_TENANT_ID")
	}
	return user, tenant, nil
}

func resolveAdminToken() (string, error) {
	if v := os.Getenv("LEADLIFT_ADMIN_TOKEN"); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("admin token required: set LEADLIFT_ADMIN_TOKEN")
}

func main() {
	rootCmd := &cobra.Command{
		Use:     "leadlift",
		Short:   "Leadlift - Google tag and conversion provisioning for tenants",
		Version: version.Version,
	}
	rootCmd.SetVersionTemplate(version.String("leadlift") + "\n")

	rootCmd.AddCommand(newTenantsCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newAccountsCmd())
	rootCmd.AddCommand(newTrackingsCmd())
	rootCmd.AddCommand(newProvisionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newTenantsCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Manage tenants (admin)",
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "Leadlift server URL (or set LEADLIFT_SERVER_URL)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List all tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveServerURL(cmd, serverURL)
			if err != nil {
				return err
			}
			token, err := resolveAdminToken()
			if err != nil {
				return err
			}
			return listTenants(resolved, token)
		},
	}

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveServerURL(cmd, serverURL)
			if err != nil {
				return err
			}
			token, err := resolveAdminToken()
			if err != nil {
				return err
			}
			return createTenant(resolved, token, args[0])
		},
	}

	cmd.AddCommand(list)
	cmd.AddCommand(create)
	return cmd
}

func newStatusCmd() *cobra.Command {
	var (
		serverURL string
		user      string
		tenant    string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which Google scopes are connected for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveServerURL(cmd, serverURL)
			if err != nil {
				return err
			}
			userID, tenantID, err := resolveIdentity(user, tenant)
			if err != nil {
				return err
			}
			return showStatus(resolved, userID, tenantID)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Leadlift server URL (or set LEADLIFT_SERVER_URL)")
	cmd.Flags().StringVar(&user, "user", "", "User id (or set LEADLIFT_USER_ID)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant id (or set LEADLIFT_TENANT_ID)")

	return cmd
}

func newAccountsCmd() *cobra.Command {
	var (
		serverURL string
		user      string
		tenant    string
		scope     string
	)

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List remote Google accounts reachable for one scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveServerURL(cmd, serverURL)
			if err != nil {
				return err
			}
			userID, tenantID, err := resolveIdentity(user, tenant)
			if err != nil {
				return err
			}
			return listAccounts(resolved, userID, tenantID, scope)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Leadlift server URL (or set LEADLIFT_SERVER_URL)")
	cmd.Flags().StringVar(&user, "user", "", "User id (or set LEADLIFT_USER_ID)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant id (or set LEADLIFT_TENANT_ID)")
	cmd.Flags().StringVar(&scope, "scope", "tag-manager", "Product scope: tag-manager|ads|analytics")

	return cmd
}

func newTrackingsCmd() *cobra.Command {
	var (
		serverURL string
		user      string
		tenant    string
	)

	cmd := &cobra.Command{
		Use:   "trackings",
		Short: "List tracking definitions for a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveServerURL(cmd, serverURL)
			if err != nil {
				return err
			}
			userID, tenantID, err := resolveIdentity(user, tenant)
			if err != nil {
				return err
			}
			return listTrackings(resolved, userID, tenantID)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Leadlift server URL (or set LEADLIFT_SERVER_URL)")
	cmd.Flags().StringVar(&user, "user", "", "User id (or set LEADLIFT_USER_ID)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant id (or set LEADLIFT_TENANT_ID)")

	return cmd
}

func newProvisionCmd() *cobra.Command {
	var (
		serverURL string
		user      string
		tenant    string
	)

	cmd := &cobra.Command{
		Use:   "provision <tracking-id>",
		Short: "Provision a tracking definition end to end",
		Long: `Drive a tracking definition to the active state: tag graph in the
tenant's GTM container, then the Ads conversion action when one is
configured. Safe to re-run after a failure; completed steps are adopted,
not repeated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveServerURL(cmd, serverURL)
			if err != nil {
				return err
			}
			userID, tenantID, err := resolveIdentity(user, tenant)
			if err != nil {
				return err
			}
			return provisionTracking(resolved, userID, tenantID, args[0])
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Leadlift server URL (or set LEADLIFT_SERVER_URL)")
	cmd.Flags().StringVar(&user, "user", "", "User id (or set LEADLIFT_USER_ID)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant id (or set LEADLIFT_TENANT_ID)")

	return cmd
}
