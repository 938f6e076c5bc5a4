package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"Prism/internal/core/edge"
	"Prism/internal/core/origin"
	"Prism/internal/core/worker"
	"Prism/internal/storage/factory"
)

// serverConfig is everything serve needs, resolved from flags, PRISM_* env and the
// config file.
type serverConfig struct {
	Listen          string
	ShutdownTimeout time.Duration
	MemoryLimit     int64

	OriginURL      string
	Origin         factory.Config
	OriginMaxBytes int64
	OriginTimeout  time.Duration

	Variants        factory.Config
	VariantsBaseURL string
	Retention       time.Duration
	SweepInterval   time.Duration

	Worker worker.Config

	EdgeEntries       int
	EdgeMaxEntryBytes int64
	Distribution      string
	Region            string

	SecretHeader  string
	SharedSecret  string
	SigningKey    []byte
	SignatureSkew time.Duration

	RateLimit  int
	RateWindow time.Duration
	RateBurst  int
}

func bindFlags(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}

// addStoreFlags registers the backend flags for one store under prefix.
func addStoreFlags(flags *pflag.FlagSet, prefix, what string) {
	flags.String(prefix+"-backend", "memory", what+" backend (memory, disk, s3, aws, azure, gcs, redis)")
	flags.String(prefix+"-prefix", "", what+" key prefix inside the bucket or container")
	flags.String(prefix+"-dir", "", what+" directory (disk)")
	flags.String(prefix+"-disk-max-size", "", what+" disk size cap, e.g. 10GB (disk)")
	flags.String(prefix+"-endpoint", "", what+" endpoint (s3, aws, azure)")
	flags.String(prefix+"-region", "", what+" region (s3, aws)")
	flags.String(prefix+"-bucket", "", what+" bucket (s3, aws, gcs)")
	flags.Bool(prefix+"-insecure", false, what+" endpoint uses plain HTTP (s3, aws)")
	flags.Bool(prefix+"-force-path-style", false, what+" path-style addressing (s3, aws)")
	flags.String(prefix+"-azure-account", "", what+" storage account (azure)")
	flags.String(prefix+"-azure-key", "", what+" shared key (azure)")
	flags.String(prefix+"-azure-sas-token", "", what+" SAS token (azure)")
	flags.String(prefix+"-azure-container", "", what+" container (azure)")
	flags.String(prefix+"-redis-url", "", what+" redis URL (redis)")
}

// storeConfig reads the flags registered by addStoreFlags.
func storeConfig(prefix string) (factory.Config, error) {
	cfg := factory.Config{
		Backend:        viper.GetString(prefix + "-backend"),
		Prefix:         viper.GetString(prefix + "-prefix"),
		Dir:            viper.GetString(prefix + "-dir"),
		Endpoint:       viper.GetString(prefix + "-endpoint"),
		Region:         viper.GetString(prefix + "-region"),
		Bucket:         viper.GetString(prefix + "-bucket"),
		Insecure:       viper.GetBool(prefix + "-insecure"),
		ForcePathStyle: viper.GetBool(prefix + "-force-path-style"),
		AzureAccount:   viper.GetString(prefix + "-azure-account"),
		AzureKey:       viper.GetString(prefix + "-azure-key"),
		AzureSASToken:  viper.GetString(prefix + "-azure-sas-token"),
		AzureContainer: viper.GetString(prefix + "-azure-container"),
		RedisURL:       viper.GetString(prefix + "-redis-url"),
	}
	size, err := parseBytes(prefix+"-disk-max-size", viper.GetString(prefix+"-disk-max-size"))
	if err != nil {
		return factory.Config{}, err
	}
	cfg.MaxSizeBytes = size
	return cfg, nil
}

func addServeFlags(flags *pflag.FlagSet) {
	flags.String("listen", ":8080", "listen address")
	flags.Duration("shutdown-timeout", 30*time.Second, "grace period for in-flight requests and variant writes")
	flags.String("memory-limit", "", "soft Go heap limit, e.g. 1GiB (empty leaves the runtime default)")

	flags.String("origin-url", "", "origin web server base URL; when set the origin store flags are ignored")
	flags.String("origin-max-size", humanize.IBytes(uint64(origin.DefaultMaxSourceSizeBytes)), "largest original accepted")
	flags.Duration("origin-timeout", 10*time.Second, "origin HTTP timeout")
	addStoreFlags(flags, "origin", "origin store")

	addStoreFlags(flags, "variants", "variant store")
	flags.String("variants-base-url", "", "public URL of the variant store, used for oversized redirects (default: this server's /variants route)")
	flags.Duration("retention", 90*24*time.Hour, "variant retention for backends with native expiry")
	flags.Duration("sweep-interval", 10*time.Minute, "disk variant store cleanup interval")

	flags.Bool("persist", true, "store every produced variant")
	flags.String("cache-control", worker.DefaultCacheControl, "Cache-Control sent with variants")
	flags.String("max-payload", humanize.Bytes(worker.DefaultMaxPayloadBytes), "largest variant returned inline (0 disables)")
	flags.Duration("timeout", 30*time.Second, "per-request transformation deadline")
	flags.Duration("persist-timeout", 30*time.Second, "background variant write deadline")
	flags.Int("max-dimension", 0, "largest accepted width or height (0 = unbounded)")
	flags.Int("max-source-pixels", 0, "largest decoded original in pixels (0 = default)")
	flags.Bool("coalesce", false, "collapse concurrent requests for the same variant")

	flags.Int("edge-entries", edge.DefaultLRUEntries, "in-process edge cache entries (0 disables)")
	flags.String("edge-max-entry", humanize.IBytes(edge.DefaultMaxEntryBytes), "largest variant kept in the edge cache")
	flags.String("cloudfront-distribution", "", "CloudFront distribution to invalidate")
	flags.String("region", "", "deployment region, selects the origin shield")

	flags.String("secret-header", "X-Origin-Secret", "header carrying the shared secret")
	flags.String("shared-secret", "", "shared secret accepted on /transform and /variants")
	flags.String("signing-key", "", "HS256 key (raw or JWK JSON) for signed worker requests")
	flags.Duration("signature-skew", 30*time.Second, "accepted clock skew for signed requests")

	flags.Int("rate-limit", 0, "requests per client per rate window on /img (0 disables)")
	flags.Duration("rate-window", time.Minute, "rate limit window")
	flags.Int("rate-burst", 0, "rate limit burst (0 = rate-limit)")
}

func loadServerConfig() (serverConfig, error) {
	var (
		cfg serverConfig
		err error
	)
	cfg.Listen = viper.GetString("listen")
	cfg.ShutdownTimeout = viper.GetDuration("shutdown-timeout")
	if cfg.MemoryLimit, err = parseBytes("memory-limit", viper.GetString("memory-limit")); err != nil {
		return cfg, err
	}

	cfg.OriginURL = strings.TrimSpace(viper.GetString("origin-url"))
	if cfg.Origin, err = storeConfig("origin"); err != nil {
		return cfg, err
	}
	cfg.Origin.ReadOnly = true
	if cfg.OriginMaxBytes, err = parseBytes("origin-max-size", viper.GetString("origin-max-size")); err != nil {
		return cfg, err
	}
	cfg.OriginTimeout = viper.GetDuration("origin-timeout")

	if cfg.Variants, err = storeConfig("variants"); err != nil {
		return cfg, err
	}
	cfg.VariantsBaseURL = viper.GetString("variants-base-url")
	cfg.Retention = viper.GetDuration("retention")
	cfg.Variants.TTL = cfg.Retention
	cfg.SweepInterval = viper.GetDuration("sweep-interval")

	maxPayload, err := parseBytes("max-payload", viper.GetString("max-payload"))
	if err != nil {
		return cfg, err
	}
	cfg.Worker = worker.Config{
		Persist:         viper.GetBool("persist"),
		CacheControl:    viper.GetString("cache-control"),
		MaxPayloadBytes: maxPayload,
		Timeout:         viper.GetDuration("timeout"),
		PersistTimeout:  viper.GetDuration("persist-timeout"),
		MaxDimension:    viper.GetInt("max-dimension"),
		MaxSourcePixels: viper.GetInt("max-source-pixels"),
		Coalesce:        viper.GetBool("coalesce"),
	}
	if err := cfg.Worker.Validate(); err != nil {
		return cfg, err
	}

	cfg.EdgeEntries = viper.GetInt("edge-entries")
	if cfg.EdgeMaxEntryBytes, err = parseBytes("edge-max-entry", viper.GetString("edge-max-entry")); err != nil {
		return cfg, err
	}
	cfg.Distribution = viper.GetString("cloudfront-distribution")
	cfg.Region = viper.GetString("region")

	cfg.SecretHeader = viper.GetString("secret-header")
	cfg.SharedSecret = viper.GetString("shared-secret")
	if cfg.SigningKey, err = parseSigningKey(viper.GetString("signing-key")); err != nil {
		return cfg, err
	}
	cfg.SignatureSkew = viper.GetDuration("signature-skew")

	cfg.RateLimit = viper.GetInt("rate-limit")
	cfg.RateWindow = viper.GetDuration("rate-window")
	cfg.RateBurst = viper.GetInt("rate-burst")

	return cfg, cfg.validate()
}

func (c serverConfig) validate() error {
	if c.OriginURL == "" && sameStore(c.Origin, c.Variants) {
		return fmt.Errorf("origin and variant stores must be distinct")
	}
	if c.RateLimit > 0 && c.RateWindow <= 0 {
		return fmt.Errorf("rate-window must be positive")
	}
	return nil
}

// sameStore reports whether two store configs address the same objects. Two memory
// stores are separate instances and never collide.
func sameStore(a, b factory.Config) bool {
	backend := strings.ToLower(a.Backend)
	if backend != strings.ToLower(b.Backend) || a.Prefix != b.Prefix {
		return false
	}
	switch backend {
	case "", factory.BackendMemory:
		return false
	case factory.BackendDisk:
		return a.Dir == b.Dir
	case factory.BackendAzure:
		return a.AzureAccount == b.AzureAccount && a.AzureContainer == b.AzureContainer
	case factory.BackendRedis:
		return a.RedisURL == b.RedisURL
	default:
		return a.Endpoint == b.Endpoint && a.Bucket == b.Bucket
	}
}

func parseBytes(name, value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	size, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return int64(size), nil
}

// parseSigningKey accepts a raw secret or a symmetric JWK as printed by keygen.
func parseSigningKey(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if !strings.HasPrefix(value, "{") {
		return []byte(value), nil
	}
	key, err := jwk.ParseKey([]byte(value))
	if err != nil {
		return nil, fmt.Errorf("parse signing-key JWK: %w", err)
	}
	var raw []byte
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("signing-key must be a symmetric (oct) JWK: %w", err)
	}
	return raw, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
