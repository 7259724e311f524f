// Package route53 implements the provider interface for Amazon Route 53.
//
// A credential's zone_id is the hosted zone ID ("Z123" or "/hostedzone/Z123").
// Each upsert is one ChangeResourceRecordSets call carrying a single UPSERT
// change, which Route 53 applies atomically.
//
// Credentials and region come from the ambient AWS environment unless
// ACCESS_KEY_ID and SECRET_ACCESS_KEY are configured.
package route53

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/aws/smithy-go"

	"gitlab.bluewillows.net/root/ddnsweaver/pkg/provider"
)

// DefaultRegion is used when no region is configured. Route 53 is global and
// signs requests for us-east-1.
const DefaultRegion = "us-east-1"

// API is the subset of the Route 53 client used by the provider.
type API interface {
	ChangeResourceRecordSets(ctx context.Context, params *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
	ListHostedZones(ctx context.Context, params *route53.ListHostedZonesInput, optFns ...func(*route53.Options)) (*route53.ListHostedZonesOutput, error)
}

// Provider implements provider.Provider for Route 53.
type Provider struct {
	name   string
	client API
	logger *slog.Logger
}

// ProviderOption is a functional option for configuring the Provider.
type ProviderOption func(*Provider)

// WithProviderLogger sets a custom logger for the provider.
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a provider around an existing Route 53 client.
func New(name string, client API, opts ...ProviderOption) (*Provider, error) {
	if client == nil {
		return nil, fmt.Errorf("route53 client is required")
	}

	p := &Provider{
		name:   name,
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewFromMap creates a Route 53 provider from a configuration map.
// Keys: REGION, ENDPOINT, ACCESS_KEY_ID, SECRET_ACCESS_KEY, SESSION_TOKEN. All optional.
func NewFromMap(name string, config map[string]string, opts ...ProviderOption) (*Provider, error) {
	region := config["REGION"]
	if region == "" {
		region = DefaultRegion
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}

	keyID, secret := config["ACCESS_KEY_ID"], config["SECRET_ACCESS_KEY"]
	switch {
	case keyID != "" && secret != "":
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(keyID, secret, config["SESSION_TOKEN"]),
		))
	case keyID != "" || secret != "":
		return nil, provider.ErrConfigInvalid("ACCESS_KEY_ID", keyID, "ACCESS_KEY_ID and SECRET_ACCESS_KEY must be set together")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	var clientOpts []func(*route53.Options)
	if endpoint := config["ENDPOINT"]; endpoint != "" {
		clientOpts = append(clientOpts, func(o *route53.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	return New(name, route53.NewFromConfig(awsCfg, clientOpts...), opts...)
}

// Name returns the provider instance name.
func (p *Provider) Name() string { return p.name }

// Type returns "route53".
func (p *Provider) Type() string { return "route53" }

// Ping lists at most one hosted zone to confirm credentials and reachability.
func (p *Provider) Ping(ctx context.Context) error {
	_, err := p.client.ListHostedZones(ctx, &route53.ListHostedZonesInput{MaxItems: aws.Int32(1)})
	return provider.WrapError(p.name, "ping", classify(err))
}

// Upsert sends a single UPSERT change for the record.
func (p *Provider) Upsert(ctx context.Context, change provider.Change) error {
	if err := change.Validate(); err != nil {
		return err
	}
	addr, err := change.Addr()
	if err != nil {
		return err
	}

	zoneID := normalizeZoneID(change.ZoneID)
	name := change.FQDN()

	out, err := p.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String("ddnsweaver update"),
			Changes: []types.Change{{
				Action: types.ChangeActionUpsert,
				ResourceRecordSet: &types.ResourceRecordSet{
					Name:            aws.String(name),
					Type:            types.RRType(change.Type),
					TTL:             aws.Int64(int64(change.TTL)),
					ResourceRecords: []types.ResourceRecord{{Value: aws.String(addr.String())}},
				},
			}},
		},
	})
	if err != nil {
		return provider.WrapError(p.name, "upsert", classify(err))
	}

	attrs := []any{
		slog.String("provider", p.name),
		slog.String("zone_id", zoneID),
		slog.String("name", name),
		slog.String("type", string(change.Type)),
		slog.String("value", addr.String()),
	}
	if out != nil && out.ChangeInfo != nil {
		attrs = append(attrs,
			slog.String("change_id", aws.ToString(out.ChangeInfo.Id)),
			slog.String("status", string(out.ChangeInfo.Status)),
		)
	}
	p.logger.Info("upserted record", attrs...)
	return nil
}

// normalizeZoneID strips the "/hostedzone/" prefix the console and API
// responses carry.
func normalizeZoneID(id string) string {
	return strings.TrimPrefix(id, "/hostedzone/")
}

// classify attaches the provider sentinel matching a Route 53 API error.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		// No API response at all: transport, DNS or credential resolution failure.
		return fmt.Errorf("%w: %w", provider.ErrProviderUnavailable, err)
	}

	switch apiErr.ErrorCode() {
	case "AccessDenied", "AccessDeniedException", "InvalidClientTokenId",
		"SignatureDoesNotMatch", "UnrecognizedClientException", "ExpiredToken":
		return fmt.Errorf("%w: %w", provider.ErrUnauthorized, err)
	case "NoSuchHostedZone":
		return fmt.Errorf("%w: %w", provider.ErrZoneMismatch, err)
	case "InvalidChangeBatch", "InvalidInput":
		return fmt.Errorf("%w: %w", provider.ErrInvalidChange, err)
	case "Throttling", "ThrottlingException", "PriorRequestNotComplete", "ServiceUnavailable":
		return fmt.Errorf("%w: %w", provider.ErrProviderUnavailable, err)
	}

	if apiErr.ErrorFault() == smithy.FaultServer {
		return fmt.Errorf("%w: %w", provider.ErrProviderUnavailable, err)
	}
	return err
}

// Factory adapts NewFromMap to provider.Factory.
func Factory() provider.Factory {
	return func(name string, config map[string]string) (provider.Provider, error) {
		return NewFromMap(name, config)
	}
}

// Ensure Provider implements provider.Provider at compile time.
var _ provider.Provider = (*Provider)(nil)
