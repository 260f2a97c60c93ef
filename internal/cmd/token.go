package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/todohub/internal/auth"
	"github.com/Iron-Ham/todohub/internal/config"
	"github.com/Iron-Ham/todohub/internal/store"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer credential",
	Long: `Issue a bearer credential signed with auth.secret.

By default the credential is minted offline for the given name and user id
(a random id when --user-id is omitted). With --resolve the user is looked up
in Redis, and created if missing, exactly like POST /auth.

Examples:
  todohub token --name alice
  todohub token --name alice --resolve`,
	RunE: runToken,
}

var (
	tokenName    string
	tokenUserID  string
	tokenResolve bool
)

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name (required)")
	tokenCmd.Flags().StringVar(&tokenUserID, "user-id", "", "user id to embed (default: random)")
	tokenCmd.Flags().BoolVar(&tokenResolve, "resolve", false, "look the user up in Redis, creating it if missing")
	_ = tokenCmd.MarkFlagRequired("name")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireSecret(); err != nil {
		return err
	}
	issuer, err := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	identity := auth.Identity{UserID: tokenUserID, Name: tokenName}
	switch {
	case tokenResolve:
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if identity, err = resolveIdentity(ctx, cfg.Redis, tokenName); err != nil {
			return err
		}
	case identity.UserID == "":
		identity.UserID = uuid.NewString()
	}

	token, err := issuer.Issue(identity)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func resolveIdentity(ctx context.Context, rc config.RedisConfig, name string) (auth.Identity, error) {
	st, err := store.New(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB}, rc.KeyPrefix)
	if err != nil {
		return auth.Identity{}, err
	}
	defer func() { _ = st.Close() }()

	user, err := st.LoginOrCreate(ctx, name)
	if err != nil {
		return auth.Identity{}, err
	}
	return auth.Identity{UserID: user.ID, Name: user.Name}, nil
}
