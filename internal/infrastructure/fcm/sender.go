package fcm

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/go-notify-nosql/internal/config"
)

// maxMulticast is the FCM limit on tokens per multicast request.
const maxMulticast = 500

// Result summarises one multicast push.
type Result struct {
	Sent int
	// Unregistered lists tokens FCM reported as no longer valid.
	Unregistered []string
}

// Sender delivers push notifications through Firebase Cloud Messaging.
type Sender struct {
	client *messaging.Client
}

func NewSender(ctx context.Context, cfg config.Firebase) (*Sender, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return &Sender{client: client}, nil
}

// Send pushes one notification to every token, in chunks of maxMulticast.
func (s *Sender) Send(ctx context.Context, tokens []string, title, body string, data map[string]string) (Result, error) {
	var res Result
	for start := 0; start < len(tokens); start += maxMulticast {
		end := min(start+maxMulticast, len(tokens))
		chunk := tokens[start:end]
		br, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens:       chunk,
			Notification: &messaging.Notification{Title: title, Body: body},
			Data:         data,
		})
		if err != nil {
			return res, fmt.Errorf("fcm multicast: %w", err)
		}
		res.Sent += br.SuccessCount
		for i, r := range br.Responses {
			if !r.Success && messaging.IsUnregistered(r.Error) {
				res.Unregistered = append(res.Unregistered, chunk[i])
			}
		}
	}
	return res, nil
}
