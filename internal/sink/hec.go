package sink

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/google/uuid"
	"github.com/mosajjal/Go-Splunk-HTTP/splunk/v2"
	"github.com/n0needt0/go-goodies/log"
	"github.com/n0needt0/synthlog/internal/domain"
	"github.com/pkg/errors"
)

const secretPrefix = "arn:aws:secretsmanager:"

type HECConfig struct {
	Endpoint      string
	Token         string
	Index         string
	Source        string
	SourceType    string
	Host          string
	Region        string
	TLSSkipVerify bool
	Timeout       time.Duration
	// request channel, a fresh uuid when empty or invalid
	ChannelID string
}

// HECSink posts records to a Splunk HTTP Event Collector
type HECSink struct {
	client *splunk.Client
	conf   HECConfig
}

func NewHECSink(ctx context.Context, conf HECConfig) (*HECSink, error) {
	if conf.Endpoint == "" {
		return nil, errors.New("hec endpoint not configured")
	}
	token, err := ResolveToken(ctx, conf.Token, conf.Region)
	if err != nil {
		return nil, err
	}
	if conf.Timeout <= 0 {
		conf.Timeout = 10 * time.Second
	}

	rt := &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: conf.TLSSkipVerify}}
	httpClient := &http.Client{Timeout: conf.Timeout, Transport: rt}

	endpoint := strings.TrimSuffix(conf.Endpoint, "/")
	if !strings.HasSuffix(endpoint, "/services/collector") {
		endpoint += "/services/collector"
	}

	if _, err := uuid.Parse(conf.ChannelID); err != nil {
		conf.ChannelID = uuid.New().String()
	}

	client := splunk.NewClient(
		httpClient,
		endpoint,
		token,
		conf.ChannelID,
		conf.Source,
		conf.SourceType,
		conf.Index,
	)
	if err := client.CheckHealth(); err != nil {
		log.Warnf("hec %s is not healthy: %v", endpoint, err)
	}
	log.Infof("forwarding records to hec %s", endpoint)
	return &HECSink{client: client, conf: conf}, nil
}

func (h *HECSink) Write(_ context.Context, rec domain.Record) error {
	event := &splunk.Event{
		Time:       splunk.EventTime{Time: rec.Timestamp},
		Host:       h.conf.Host,
		Source:     h.conf.Source,
		SourceType: h.sourceType(rec),
		Index:      h.conf.Index,
		Event:      rec.Line,
	}
	if err := h.client.LogEvents([]*splunk.Event{event}); err != nil {
		return domain.SendFailure{Sink: "hec", Err: err}
	}
	return nil
}

func (h *HECSink) sourceType(rec domain.Record) string {
	if h.conf.SourceType != "" {
		return h.conf.SourceType
	}
	return rec.Format
}

// ChannelID returns the request channel the sink posts on
func (h *HECSink) ChannelID() string {
	return h.conf.ChannelID
}

func (h *HECSink) Close() error {
	return nil
}

// ResolveToken returns token, or the secret it names when it is a
// Secrets Manager ARN
func ResolveToken(ctx context.Context, token, region string) (string, error) {
	if !strings.HasPrefix(token, secretPrefix) {
		return token, nil
	}
	log.Info("getting hec token from aws secrets manager")

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return "", errors.Wrap(err, "unable to load aws config")
	}
	sm := secretsmanager.NewFromConfig(cfg, func(o *secretsmanager.Options) {
		if region != "" {
			o.Region = region
		}
	})
	secret, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(token),
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to get secret %s", token)
	}
	if secret.SecretString == nil {
		return "", errors.Errorf("secret %s has no string value", token)
	}
	return *secret.SecretString, nil
}
