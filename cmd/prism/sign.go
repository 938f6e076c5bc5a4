package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"Prism/internal/api/middleware"
)

func newSignCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign PATH",
		Short: "Mint a bearer token for one worker or admin request",
		Example: `
  prism sign --signing-key "$KEY" /transform/photos/cat.jpg/width=300
  prism sign --signing-key "$KEY" --method DELETE /variants/photos/cat.jpg
`,
		Args:    cobra.ExactArgs(1),
		PreRunE: bindFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseSigningKey(viper.GetString("signing-key"))
			if err != nil {
				return err
			}
			if len(key) == 0 {
				return fmt.Errorf("signing-key is required")
			}
			method := strings.ToUpper(viper.GetString("method"))
			token, err := middleware.SignRequest(key, method, args[0], viper.GetDuration("ttl"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.String("signing-key", "", "HS256 key (raw or JWK JSON)")
	flags.String("method", http.MethodGet, "HTTP method the token is valid for")
	flags.Duration("ttl", 5*time.Minute, "token lifetime")
	return cmd
}

// newKeygenCommand generates an HS256 signing key as a symmetric JWK.
func newKeygenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "keygen",
		Short:   "Generate an HS256 signing key for signed worker requests",
		Args:    cobra.NoArgs,
		PreRunE: bindFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := make([]byte, 32)
			if _, err := rand.Read(secret); err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			key, err := jwk.FromRaw(secret)
			if err != nil {
				return fmt.Errorf("create JWK: %w", err)
			}
			kid := viper.GetString("kid")
			if kid == "" {
				kid = "prism-" + base64.RawURLEncoding.EncodeToString(secret[:6])
			}
			if err := key.Set(jwk.KeyIDKey, kid); err != nil {
				return fmt.Errorf("set kid: %w", err)
			}
			if err := key.Set(jwk.AlgorithmKey, "HS256"); err != nil {
				return fmt.Errorf("set alg: %w", err)
			}
			if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
				return fmt.Errorf("set use: %w", err)
			}
			return printJSON(cmd, key)
		},
	}
	cmd.Flags().String("kid", "", "key id (default derived from the key)")
	return cmd
}
