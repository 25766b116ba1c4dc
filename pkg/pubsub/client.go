package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/angelmondragon/agencyhub-backend/pkg/config"
	"github.com/angelmondragon/agencyhub-backend/pkg/logger"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	kindTopic        = "topics"
	kindSubscription = "subscriptions"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoSubscriptions   = errors.New("pubsub subscription name is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client wraps the Pub/Sub v2 client with the project's topic and
// subscription names. Resources are never created here; they are
// provisioned out of band and only verified.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: psClient, projectID: projectID, cfg: cfg}

	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project":      projectID,
			"topic":        cfg.ContractsTopic,
			"subscription": cfg.NotificationsSubscription,
		}), "pubsub client initialized")
	}
	return c, nil
}

// Ping checks that every configured subscription and the contracts topic exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	names := subscriptionNames(c.cfg)
	if len(names) == 0 {
		return errNoSubscriptions
	}
	for _, name := range names {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
			Subscription: c.subscriptionResourceName(name),
		})
		if err := describeLookupError("subscription", name, err); err != nil {
			return err
		}
	}
	if topic := strings.TrimSpace(c.cfg.ContractsTopic); topic != "" {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{
			Topic: c.topicResourceName(topic),
		})
		if err := describeLookupError("topic", topic, err); err != nil {
			return err
		}
	}
	return nil
}

func describeLookupError(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

func subscriptionNames(cfg config.PubSubConfig) []string {
	var names []string
	if name := strings.TrimSpace(cfg.NotificationsSubscription); name != "" {
		names = append(names, name)
	}
	return names
}

// Subscription accepts a short id or a full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	if fullName := c.subscriptionResourceName(name); fullName != "" {
		return c.client.Subscriber(fullName)
	}
	return nil
}

// NotificationsSubscription feeds contract events to the notification worker.
func (c *Client) NotificationsSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.NotificationsSubscription)
}

// Publisher accepts a short id or a full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	if fullName := c.topicResourceName(name); fullName != "" {
		return c.client.Publisher(fullName)
	}
	return nil
}

func (c *Client) ContractsPublisher() *pubsub.Publisher {
	return c.Publisher(c.cfg.ContractsTopic)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) subscriptionResourceName(name string) string {
	return c.resourceName(kindSubscription, name)
}

func (c *Client) topicResourceName(name string) string {
	return c.resourceName(kindTopic, name)
}

// resourceName expands an id to projects/<project>/<kind>/<id>. Names that
// are already fully qualified pass through.
func (c *Client) resourceName(kind, name string) string {
	if c == nil {
		return ""
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	if c.projectID == "" {
		return ""
	}
	return "projects/" + c.projectID + "/" + kind + "/" + name
}
