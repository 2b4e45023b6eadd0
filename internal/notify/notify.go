// Package notify sends web push notifications for engine events:
// milestone bonuses, donations, and upcoming calls.
package notify

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/sweatpact/sweatpact/internal/model"
	"github.com/sweatpact/sweatpact/internal/store"
)

// ErrExpired is returned when a push subscription is no longer valid (410 Gone).
var ErrExpired = errors.New("push subscription expired")

// Payload is the JSON sent to the push service.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Config holds VAPID configuration.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
}

// Service fans notifications out to all of a user's push subscriptions,
// pruning expired endpoints as it goes.
type Service struct {
	cfg    Config
	subs   *store.PushStore
	logger *slog.Logger
}

func NewService(cfg Config, subs *store.PushStore, logger *slog.Logger) *Service {
	return &Service{cfg: cfg, subs: subs, logger: logger}
}

// VAPIDPublicKey returns the VAPID public key for client-side subscription.
func (s *Service) VAPIDPublicKey() string {
	return s.cfg.VAPIDPublicKey
}

// Enabled reports whether VAPID keys are configured.
func (s *Service) Enabled() bool {
	return s.cfg.VAPIDPublicKey != "" && s.cfg.VAPIDPrivateKey != ""
}

// NotifyUser sends the payload to every subscription the user has.
// Delivery is best effort; failures are logged, expired subscriptions
// removed.
func (s *Service) NotifyUser(userID string, payload Payload) {
	if !s.Enabled() {
		return
	}
	subs, err := s.subs.ListByUser(userID)
	if err != nil {
		s.logger.Error("list push subscriptions", "user_id", userID, "error", err)
		return
	}
	for i := range subs {
		if err := s.send(&subs[i], payload); err != nil {
			if errors.Is(err, ErrExpired) {
				if err := s.subs.DeleteByEndpoint(subs[i].Endpoint); err != nil {
					s.logger.Error("prune expired subscription", "error", err)
				}
				continue
			}
			s.logger.Warn("push delivery failed", "user_id", userID, "error", err)
		}
	}
}

// NotifyMilestoneBonus announces a streak bonus payout.
func (s *Service) NotifyMilestoneBonus(userID string, days int, amount model.Pence) {
	s.NotifyUser(userID, Payload{
		Title: fmt.Sprintf("%d-day streak!", days),
		Body:  fmt.Sprintf("You unlocked a %s bonus donation.", amount),
		Tag:   model.NotifTypeMilestoneBonus,
	})
}

// NotifyDonation announces a completed donation.
func (s *Service) NotifyDonation(userID string, amount model.Pence, charityName string) {
	s.NotifyUser(userID, Payload{
		Title: "Donation made",
		Body:  fmt.Sprintf("%s went to %s for your workout.", amount, charityName),
		Tag:   model.NotifTypeDonationMade,
	})
}

// NotifyCallReminder announces an upcoming coaching call.
func (s *Service) NotifyCallReminder(c *model.Call) {
	s.NotifyUser(c.UserID, Payload{
		Title: "Coaching call soon",
		Body:  fmt.Sprintf("Your %s call starts at %s.", c.CallType, c.ScheduledAt.Format("15:04")),
		Tag:   model.NotifTypeCallReminder,
	})
}

func (s *Service) send(sub *model.PushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotification(data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		Subscriber:      s.cfg.Subscriber,
		TTL:             86400,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}

// GenerateVAPIDKeys generates a new ECDSA P-256 key pair for VAPID.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.Bytes())

	return publicKey, privateKey, nil
}
