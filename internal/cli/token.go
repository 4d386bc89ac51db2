package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/tally/auth"
	"github.com/xraph/tally/config"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/member"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	Tenant string
	User   string
	Role   string
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a member",
		Long: `Issue a signed bearer token with the configured JWT secret.

Example:
  tally token --tenant acme --user mbr_01h455vb4pex5vsknk084sn02q --role admin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runToken(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&opts.User, "user", "", "member id (required)")
	cmd.Flags().StringVar(&opts.Role, "role", string(member.RoleEmployee), "role claim (admin|employee)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runToken(opts *TokenOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured")
	}
	if _, err := id.ParseMemberID(opts.User); err != nil {
		return fmt.Errorf("--user: %w", err)
	}
	if role := member.Role(opts.Role); !role.Valid() {
		return fmt.Errorf("--role: unknown role %q", opts.Role)
	}

	am, err := auth.NewManager(cfg.Auth.JWTSecret,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithTTL(cfg.Auth.TokenTTL),
	)
	if err != nil {
		return err
	}
	token, err := am.Issue(opts.Tenant, opts.User, opts.Role)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}
