package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sendiq/sendiq/internal/auth"
	"github.com/sendiq/sendiq/internal/config"
	"github.com/sendiq/sendiq/internal/database"
	"github.com/sendiq/sendiq/internal/logger"
	"github.com/sendiq/sendiq/internal/repository"
)

var rootCmd = &cobra.Command{
	Use:   "sendiqctl",
	Short: "Administrative tool for the SendIQ server",
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API bearer tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue an API bearer token signed with security.api_secret",
	RunE:  runTokenIssue,
}

var authorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "Grant the server access to the mailbox",
}

var authorizeURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the OAuth consent URL",
	RunE:  runAuthorizeURL,
}

var authorizeExchangeCmd = &cobra.Command{
	Use:   "exchange [code]",
	Short: "Exchange an authorization code and store the resulting credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthorizeExchange,
}

func init() {
	tokenIssueCmd.Flags().String("subject", "sendiqctl", "Token subject identifying the API client")
	authorizeURLCmd.Flags().String("state", "sendiq", "OAuth state parameter")

	tokenCmd.AddCommand(tokenIssueCmd)
	authorizeCmd.AddCommand(authorizeURLCmd)
	authorizeCmd.AddCommand(authorizeExchangeCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(authorizeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	subject, _ := cmd.Flags().GetString("subject")

	tok, err := auth.NewAPITokens(cfg.Security).Issue(subject)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}

func runAuthorizeURL(cmd *cobra.Command, args []string) error {
	creds, closeFn, err := credentialProvider()
	if err != nil {
		return err
	}
	defer closeFn()

	state, _ := cmd.Flags().GetString("state")
	url, err := creds.AuthCodeURL(state)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), url)
	return nil
}

func runAuthorizeExchange(cmd *cobra.Command, args []string) error {
	creds, closeFn, err := credentialProvider()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	tok, err := creds.Exchange(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Credential stored (expires %s)\n", tok.Expiry.Format(time.RFC3339))
	return nil
}

// credentialProvider opens the configured store and builds the mailbox credential provider
func credentialProvider() (*auth.CredentialProvider, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New("warn", "text")

	kv, closeFn, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	creds, err := auth.NewCredentialProvider(cfg.Gmail, repository.NewTokenRepository(kv, cfg.Storage.KeyPrefix), log)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return creds, closeFn, nil
}

func openStore(cfg *config.Config) (database.KV, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		rdb, err := database.NewRedis(cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return rdb, func() { rdb.Close() }, nil
	case config.BackendPostgres:
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return db, func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("storage backend %q is not shared with the server", cfg.Storage.Backend)
	}
}
