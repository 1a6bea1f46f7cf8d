package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/opbridge/opbridge/internal/config"
	"github.com/opbridge/opbridge/internal/subscription"
)

const webPushTTL = 86400

// WebPushNotifier delivers alerts to every registered browser push
// subscription. Endpoints that report 410 Gone are pruned.
type WebPushNotifier struct {
	vapidEnv *config.VAPIDEnv
	repo     subscription.Repository
}

func NewWebPushNotifier(vapidEnv *config.VAPIDEnv, repo subscription.Repository) *WebPushNotifier {
	return &WebPushNotifier{
		vapidEnv: vapidEnv,
		repo:     repo,
	}
}

func (n *WebPushNotifier) Name() string { return "webpush" }

func (n *WebPushNotifier) Configured() bool {
	return n.vapidEnv.VAPIDPublicKey != "" && n.vapidEnv.VAPIDPrivateKey != ""
}

func (n *WebPushNotifier) Send(ctx context.Context, msg *Message) error {
	subs, err := n.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list push subscriptions: %w", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	for _, sub := range subs {
		n.sendToSubscription(ctx, sub, data)
	}
	return nil
}

func (n *WebPushNotifier) sendToSubscription(ctx context.Context, sub *subscription.Subscription, data []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}

	resp, err := webpush.SendNotification(data, wpSub, &webpush.Options{
		VAPIDPublicKey:  n.vapidEnv.VAPIDPublicKey,
		VAPIDPrivateKey: n.vapidEnv.VAPIDPrivateKey,
		Subscriber:      n.vapidEnv.VAPIDContact,
		TTL:             webPushTTL,
	})
	if err != nil {
		slog.Error("web push: failed to send", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		slog.Info("web push: subscription expired, removing", "endpoint", sub.Endpoint)
		if err := n.repo.Delete(ctx, sub.ID); err != nil {
			slog.Error("web push: failed to delete expired subscription", "id", sub.ID, "error", err)
		}
		return
	}
	if resp.StatusCode >= 400 {
		slog.Warn("web push: unexpected status", "endpoint", sub.Endpoint, "status", resp.StatusCode)
	}
}
