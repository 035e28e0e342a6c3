package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/medfarma-backend/pkg/config"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

// Role names what a process does with the back-office event stream. The
// client only verifies the resources its roles touch.
type Role string

const (
	// RolePublish relays the outbox into the automation topic.
	RolePublish Role = "publish"
	// RoleAutomation consumes the webhook forwarding subscription.
	RoleAutomation Role = "automation"
	// RoleAnalytics consumes the BigQuery sink subscription.
	RoleAnalytics Role = "analytics"
)

var errProjectIDRequired = errors.New("gcp project id is required")

// Client wraps the Pub/Sub v2 client with the back-office topic layout.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	roles     []Role

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient creates a Pub/Sub v2 client and checks that the topic or
// subscriptions used by roles exist.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger, roles ...Role) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	if len(roles) == 0 {
		return nil, errors.New("at least one pubsub role is required")
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:     psClient,
		projectID:  gcp.ProjectID,
		cfg:        cfg,
		roles:      roles,
		publishers: map[string]*pubsub.Publisher{},
	}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "roles", roles), "pubsub client initialized")
	}
	return c, nil
}

// resources lists the topic and subscription names the roles depend on.
func resources(cfg config.PubSubConfig, roles []Role) (topics, subscriptions []string, err error) {
	for _, role := range roles {
		var name string
		switch role {
		case RolePublish:
			name = cfg.AutomationTopic
		case RoleAutomation:
			name = cfg.AutomationSubscription
		case RoleAnalytics:
			name = cfg.AnalyticsSubscription
		default:
			return nil, nil, fmt.Errorf("unknown pubsub role %q", role)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, nil, fmt.Errorf("pubsub %s role has no resource configured", role)
		}
		if role == RolePublish {
			topics = append(topics, name)
		} else {
			subscriptions = append(subscriptions, name)
		}
	}
	return topics, subscriptions, nil
}

// Ping checks that every resource used by the client's roles exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	topics, subscriptions, err := resources(c.cfg, c.roles)
	if err != nil {
		return err
	}
	for _, name := range topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.resourceName("topics", name)})
		if err := describeLookup("topic", name, err); err != nil {
			return err
		}
	}
	for _, name := range subscriptions {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: c.resourceName("subscriptions", name)})
		if err := describeLookup("subscription", name, err); err != nil {
			return err
		}
	}
	return nil
}

func describeLookup(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

// Subscription returns a Subscriber for an ID or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.resourceName("subscriptions", name)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

// AutomationSubscription feeds the webhook forwarder.
func (c *Client) AutomationSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.AutomationSubscription)
}

// AnalyticsSubscription feeds the BigQuery sink.
func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.AnalyticsSubscription)
}

// Publisher returns the shared publisher for topic with message ordering
// enabled, so messages sharing an ordering key keep their commit order.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.resourceName("topics", topic)
	if full == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[full]; ok {
		return p
	}
	p := c.client.Publisher(full)
	p.EnableMessageOrdering = true
	c.publishers[full] = p
	return p
}

// Close flushes cached publishers and releases the client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, p := range c.publishers {
		p.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// resourceName expands a short ID into projects/<p>/<kind>/<id>. Full
// names of the same kind pass through.
func (c *Client) resourceName(kind, name string) string {
	if c == nil {
		return ""
	}
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	p := strings.TrimSpace(c.projectID)
	if p == "" {
		return ""
	}
	return "projects/" + p + "/" + kind + "/" + n
}
